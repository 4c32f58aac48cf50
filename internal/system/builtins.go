package system

import (
	"github.com/ecsbridge/ecscore/internal/component"
	"github.com/ecsbridge/ecscore/internal/core/ecs"
	coresys "github.com/ecsbridge/ecscore/internal/core/system"
)

// Builtins registers the stock components and systems.
type Builtins struct {
	World     *ecs.World
	Contacts  *ContactSystem
	Colliders *ColliderSystem
}

// RegisterComponents registers every stock component type on w.
func RegisterComponents(w *ecs.World) error {
	for _, reg := range []func() error{
		func() error { _, err := ecs.Register[component.Transform](w); return err },
		func() error { _, err := ecs.Register[component.Velocity](w); return err },
		func() error { _, err := ecs.Register[component.Actor](w); return err },
		func() error { _, err := ecs.Register[component.Name](w); return err },
		func() error { _, err := ecs.Register[component.Collider](w); return err },
		func() error { _, err := ecs.Register[component.Lifetime](w); return err },
	} {
		if err := reg(); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builtins) Build(s *coresys.Scheduler) error {
	if err := RegisterComponents(b.World); err != nil {
		return err
	}
	movement, err := NewMovementSystem(b.World)
	if err != nil {
		return err
	}
	lifetime, err := NewLifetimeSystem(b.World)
	if err != nil {
		return err
	}
	if b.Contacts == nil {
		b.Contacts = NewContactSystem()
	}
	if b.Colliders, err = NewColliderSystem(b.World); err != nil {
		return err
	}
	for _, sys := range []coresys.System{b.Contacts, movement, lifetime, b.Colliders} {
		if err := s.Register(sys); err != nil {
			return err
		}
	}
	return nil
}
