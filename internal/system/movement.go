package system

import (
	"github.com/ecsbridge/ecscore/internal/component"
	"github.com/ecsbridge/ecscore/internal/core/ecs"
	coresys "github.com/ecsbridge/ecscore/internal/core/system"
)

// MovementSystem integrates Velocity into Transform.Position every tick.
// Phase 2 (Update).
type MovementSystem struct {
	view   *ecs.View2[component.Transform, component.Velocity]
	access coresys.Access
}

func NewMovementSystem(w *ecs.World) (*MovementSystem, error) {
	view, err := ecs.NewView2[component.Transform, component.Velocity](w)
	if err != nil {
		return nil, err
	}
	return &MovementSystem{
		view: view,
		access: coresys.Access{
			Reads:  []ecs.ComponentTypeID{ecs.MustID[component.Velocity](w)},
			Writes: []ecs.ComponentTypeID{ecs.MustID[component.Transform](w)},
		},
	}, nil
}

func (s *MovementSystem) Name() string           { return "movement" }
func (s *MovementSystem) Phase() coresys.Phase   { return coresys.PhaseUpdate }
func (s *MovementSystem) Access() coresys.Access { return s.access }

func (s *MovementSystem) Update(ctx *coresys.Context) error {
	s.view.Reset()
	for s.view.Next() {
		tr, vel := s.view.Get()
		tr.Position = tr.Position.Add(vel.Linear.Scale(ctx.Dt))
	}
	return nil
}
