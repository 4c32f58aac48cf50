package system

import (
	"github.com/ecsbridge/ecscore/internal/component"
	"github.com/ecsbridge/ecscore/internal/core/ecs"
	coresys "github.com/ecsbridge/ecscore/internal/core/system"
)

// LifetimeSystem counts Lifetime down and queues despawns for expired
// entities. Phase 4 (Cleanup).
type LifetimeSystem struct {
	view   *ecs.View[component.Lifetime]
	access coresys.Access
}

func NewLifetimeSystem(w *ecs.World) (*LifetimeSystem, error) {
	view, err := ecs.NewView[component.Lifetime](w)
	if err != nil {
		return nil, err
	}
	return &LifetimeSystem{
		view:   view,
		access: coresys.Access{Writes: []ecs.ComponentTypeID{ecs.MustID[component.Lifetime](w)}},
	}, nil
}

func (s *LifetimeSystem) Name() string           { return "lifetime" }
func (s *LifetimeSystem) Phase() coresys.Phase   { return coresys.PhaseCleanup }
func (s *LifetimeSystem) Access() coresys.Access { return s.access }

func (s *LifetimeSystem) Update(ctx *coresys.Context) error {
	s.view.Reset()
	for s.view.Next() {
		l := s.view.Get()
		l.Remaining -= ctx.Dt
		if l.Remaining <= 0 {
			ctx.Commands.Despawn(s.view.Entity())
		}
	}
	return nil
}
