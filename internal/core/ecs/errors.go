package ecs

import "errors"

// Sentinel errors returned by world operations. Callers match them with
// errors.Is; the binding table maps each one to a result code.
var (
	ErrStaleHandle            = errors.New("ecs: stale entity handle")
	ErrDuplicateComponent     = errors.New("ecs: entity already has component")
	ErrMissingComponent       = errors.New("ecs: entity does not have component")
	ErrUnknownComponentType   = errors.New("ecs: unknown component type")
	ErrWorldMismatch          = errors.New("ecs: handle belongs to a different world")
	ErrNullHandle             = errors.New("ecs: null handle")
	ErrDuplicateComponentType = errors.New("ecs: component type already registered")
	ErrTooManyComponentTypes  = errors.New("ecs: too many component types")
	ErrWorldLocked            = errors.New("ecs: structural change while world is locked")
	ErrNotPlainData           = errors.New("ecs: component type is not plain data")
	ErrInvalidLayout          = errors.New("ecs: invalid component layout")
	ErrWorldDestroyed         = errors.New("ecs: world destroyed")
	ErrTypeMismatch           = errors.New("ecs: value type does not match component type")
	ErrMissingResource        = errors.New("ecs: resource not present")
)
