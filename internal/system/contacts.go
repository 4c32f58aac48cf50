package system

import (
	"go.uber.org/zap"

	"github.com/ecsbridge/ecscore/internal/core/event"
	coresys "github.com/ecsbridge/ecscore/internal/core/system"
)

// ContactSystem tracks which entity pairs the host reports as overlapping.
// Phase 1 (PreUpdate), so Update systems see this tick's contacts.
type ContactSystem struct {
	overlaps map[pair]struct{}
	hits     int
}

type pair struct{ a, b uint64 }

func newPair(a, b uint64) pair {
	if a > b {
		a, b = b, a
	}
	return pair{a, b}
}

func NewContactSystem() *ContactSystem {
	return &ContactSystem{overlaps: make(map[pair]struct{})}
}

func (s *ContactSystem) Name() string           { return "contacts" }
func (s *ContactSystem) Phase() coresys.Phase   { return coresys.PhasePreUpdate }
func (s *ContactSystem) Access() coresys.Access { return coresys.Access{Locks: []string{"contacts"}} }

func (s *ContactSystem) Update(ctx *coresys.Context) error {
	for _, ev := range event.Read[event.ActorEvent](ctx.Events) {
		p := newPair(uint64(ev.Entity), uint64(ev.Other))
		switch ev.Kind {
		case event.ActorBeginOverlap:
			s.overlaps[p] = struct{}{}
		case event.ActorEndOverlap:
			delete(s.overlaps, p)
		case event.ActorHit:
			s.hits++
		}
		ctx.Log.Debug("actor event",
			zap.Stringer("kind", ev.Kind),
			zap.Stringer("entity", ev.Entity),
			zap.Stringer("other", ev.Other),
		)
	}
	return nil
}

// Overlapping reports the number of pairs currently overlapping.
func (s *ContactSystem) Overlapping() int { return len(s.overlaps) }

// Hits reports the number of hit events seen so far.
func (s *ContactSystem) Hits() int { return s.hits }
