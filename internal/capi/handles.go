package capi

import (
	"sync"
	"sync/atomic"

	"github.com/ecsbridge/ecscore/internal/core/ecs"
	"github.com/ecsbridge/ecscore/internal/core/system"
)

// WorldHandle and QueryHandle are opaque integers handed to foreign
// callers. Zero is never issued.
type (
	WorldHandle uint64
	QueryHandle uint64
)

// EntityRef is an entity id tagged with the serial of the world that
// issued it.
type EntityRef struct {
	ID    uint64
	World uint32
}

// World entry states. tick and world_destroy claim an idle entry with one
// compare-and-swap, so neither can start while the other runs.
const (
	worldIdle int32 = iota
	worldTicking
	worldDestroyed
)

type worldEntry struct {
	world *ecs.World
	sched *system.Scheduler
	state atomic.Int32
}

// claim moves the entry from idle to next and reports the state that
// blocked it otherwise.
func (w *worldEntry) claim(next int32) (int32, bool) {
	if w.state.CompareAndSwap(worldIdle, next) {
		return worldIdle, true
	}
	return w.state.Load(), false
}

type queryEntry struct {
	mu    sync.Mutex
	owner WorldHandle
	world *ecs.World
	ids   []ecs.EntityID
	pos   int
}

// table maps handles to live objects. Handles are never reused.
type table[T any] struct {
	mu    sync.Mutex
	next  uint64
	items map[uint64]T
}

func newTable[T any]() *table[T] {
	return &table[T]{items: make(map[uint64]T)}
}

func (t *table[T]) put(v T) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.items[t.next] = v
	return t.next
}

func (t *table[T]) get(h uint64) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.items[h]
	return v, ok
}

func (t *table[T]) take(h uint64) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.items[h]
	delete(t.items, h)
	return v, ok
}

// removeIf drops every entry matching fn.
func (t *table[T]) removeIf(fn func(T) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for h, v := range t.items {
		if fn(v) {
			delete(t.items, h)
		}
	}
}

func (t *table[T]) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}
