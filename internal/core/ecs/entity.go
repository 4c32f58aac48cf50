package ecs

import "fmt"

// EntityID encodes a 32-bit index in the lower bits and a 32-bit generation
// in the upper bits. Generation increments on despawn to invalidate stale refs.
// Generations start at 1, so the zero EntityID is never issued.
type EntityID uint64

func NewEntityID(index uint32, generation uint32) EntityID {
	return EntityID(uint64(generation)<<32 | uint64(index))
}

func (id EntityID) Index() uint32      { return uint32(id) }
func (id EntityID) Generation() uint32 { return uint32(id >> 32) }
func (id EntityID) IsZero() bool       { return id == 0 }

func (id EntityID) String() string {
	return fmt.Sprintf("%dv%d", id.Index(), id.Generation())
}

// entityMeta locates a live entity inside archetype storage.
type entityMeta struct {
	arch       *archetype
	row        int
	generation uint32
	alive      bool
}

// entityRegistry manages entity slots with generational indices and a free list.
type entityRegistry struct {
	metas    []entityMeta
	freeList []uint32
	live     int
}

func newEntityRegistry(capacity int) entityRegistry {
	return entityRegistry{
		metas:    make([]entityMeta, 0, capacity),
		freeList: make([]uint32, 0, capacity/4),
	}
}

// allocate pops a recycled slot or appends a new one and marks it alive.
func (r *entityRegistry) allocate() (EntityID, *entityMeta) {
	var idx uint32
	if n := len(r.freeList); n > 0 {
		idx = r.freeList[n-1]
		r.freeList = r.freeList[:n-1]
	} else {
		idx = uint32(len(r.metas))
		r.metas = append(r.metas, entityMeta{generation: 1})
	}
	meta := &r.metas[idx]
	meta.alive = true
	r.live++
	return NewEntityID(idx, meta.generation), meta
}

// lookup returns the meta for id when id refers to a live entity.
func (r *entityRegistry) lookup(id EntityID) (*entityMeta, bool) {
	idx := id.Index()
	if int(idx) >= len(r.metas) {
		return nil, false
	}
	meta := &r.metas[idx]
	if !meta.alive || meta.generation != id.Generation() {
		return nil, false
	}
	return meta, true
}

// release bumps the slot generation and returns it to the free list.
func (r *entityRegistry) release(id EntityID) {
	meta := &r.metas[id.Index()]
	meta.alive = false
	meta.arch = nil
	meta.row = -1
	meta.generation++
	if meta.generation == 0 {
		meta.generation = 1
	}
	r.freeList = append(r.freeList, id.Index())
	r.live--
}
