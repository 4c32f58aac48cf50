package capi

import (
	"errors"

	"github.com/ecsbridge/ecscore/internal/core/ecs"
	"github.com/ecsbridge/ecscore/internal/core/system"
)

// ResultCode is the status every binding entry returns. Values are part of
// the C ABI and never renumbered.
type ResultCode int32

const (
	ResultOK                     ResultCode = 0
	ResultStaleHandle            ResultCode = 1
	ResultDuplicateComponent     ResultCode = 2
	ResultMissingComponent       ResultCode = 3
	ResultUnknownComponentType   ResultCode = 4
	ResultWorldMismatch          ResultCode = 5
	ResultNullHandle             ResultCode = 6
	ResultInvalidArgument        ResultCode = 7
	ResultWorldLocked            ResultCode = 8
	ResultDuplicateComponentType ResultCode = 9
	ResultTooManyComponentTypes  ResultCode = 10
	ResultSystemFailed           ResultCode = 11
	ResultScheduleInvalid        ResultCode = 12
	ResultInternal               ResultCode = 99
)

func (r ResultCode) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultStaleHandle:
		return "stale_handle"
	case ResultDuplicateComponent:
		return "duplicate_component"
	case ResultMissingComponent:
		return "missing_component"
	case ResultUnknownComponentType:
		return "unknown_component_type"
	case ResultWorldMismatch:
		return "world_mismatch"
	case ResultNullHandle:
		return "null_handle"
	case ResultInvalidArgument:
		return "invalid_argument"
	case ResultWorldLocked:
		return "world_locked"
	case ResultDuplicateComponentType:
		return "duplicate_component_type"
	case ResultTooManyComponentTypes:
		return "too_many_component_types"
	case ResultSystemFailed:
		return "system_failed"
	case ResultScheduleInvalid:
		return "schedule_invalid"
	case ResultInternal:
		return "internal"
	}
	return "unknown"
}

// codeOf maps an error from the core to its result code. Anything
// unrecognized is internal.
func codeOf(err error) ResultCode {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, ecs.ErrStaleHandle):
		return ResultStaleHandle
	case errors.Is(err, ecs.ErrDuplicateComponentType):
		return ResultDuplicateComponentType
	case errors.Is(err, ecs.ErrDuplicateComponent):
		return ResultDuplicateComponent
	case errors.Is(err, ecs.ErrMissingComponent):
		return ResultMissingComponent
	case errors.Is(err, ecs.ErrUnknownComponentType):
		return ResultUnknownComponentType
	case errors.Is(err, ecs.ErrWorldMismatch):
		return ResultWorldMismatch
	case errors.Is(err, ecs.ErrNullHandle), errors.Is(err, ecs.ErrWorldDestroyed):
		return ResultNullHandle
	case errors.Is(err, ecs.ErrWorldLocked), errors.Is(err, system.ErrTickInProgress):
		return ResultWorldLocked
	case errors.Is(err, ecs.ErrTooManyComponentTypes):
		return ResultTooManyComponentTypes
	case errors.Is(err, ecs.ErrInvalidLayout), errors.Is(err, ecs.ErrNotPlainData), errors.Is(err, ecs.ErrTypeMismatch):
		return ResultInvalidArgument
	case errors.Is(err, system.ErrDuplicateSystem),
		errors.Is(err, system.ErrUnknownDependency),
		errors.Is(err, system.ErrDependencyCycle),
		errors.Is(err, system.ErrPhaseOrder):
		return ResultScheduleInvalid
	}
	return ResultInternal
}
