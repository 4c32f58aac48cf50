package system

import (
	"go.uber.org/zap"

	"github.com/ecsbridge/ecscore/internal/component"
	"github.com/ecsbridge/ecscore/internal/core/ecs"
	coresys "github.com/ecsbridge/ecscore/internal/core/system"
)

// ColliderSystem picks up colliders added since its last run and keeps a
// per-kind tally. Phase 3 (PostUpdate), after spawns from Update applied.
type ColliderSystem struct {
	collider ecs.ComponentTypeID
	access   coresys.Access
	byKind   map[component.ShapeKind]int
}

func NewColliderSystem(w *ecs.World) (*ColliderSystem, error) {
	id, err := ecs.Register[component.Collider](w)
	if err != nil {
		return nil, err
	}
	return &ColliderSystem{
		collider: id,
		access: coresys.Access{
			Reads:         []ecs.ComponentTypeID{id},
			ResourceReads: []ecs.ResourceKey{ecs.ResourceOf[coresys.Time]()},
		},
		byKind: make(map[component.ShapeKind]int),
	}, nil
}

func (s *ColliderSystem) Name() string           { return "colliders" }
func (s *ColliderSystem) Phase() coresys.Phase   { return coresys.PhasePostUpdate }
func (s *ColliderSystem) Access() coresys.Access { return s.access }

func (s *ColliderSystem) Update(ctx *coresys.Context) error {
	it, err := ctx.Query(ecs.Query{Added: []ecs.ComponentTypeID{s.collider}})
	if err != nil {
		return err
	}
	tm, err := ecs.Resource[coresys.Time](ctx.World)
	if err != nil {
		return err
	}
	for c := range it.Chunks() {
		cols := ecs.ColumnOf[component.Collider](c, s.collider)
		for row, col := range cols {
			s.byKind[col.Shape.Kind]++
			ctx.Log.Debug("collider added",
				zap.Stringer("entity", c.Entity(row)),
				zap.Stringer("shape", col.Shape.Kind),
				zap.Float64("at", tm.Elapsed),
			)
		}
	}
	return nil
}

// Registered reports how many colliders of kind have been seen.
func (s *ColliderSystem) Registered(kind component.ShapeKind) int { return s.byKind[kind] }
