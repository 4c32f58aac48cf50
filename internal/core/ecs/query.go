package ecs

import (
	"fmt"
	"iter"
	"reflect"
	"unsafe"
)

// ChunkRows caps the number of rows handed out in one Chunk.
const ChunkRows = 1024

// Query filters entities by component presence. Reads and Writes are both
// required; the split only documents intent and is not enforced here.
//
// Added components are required too, and a row only matches when each of
// them was inserted after change tick Since.
type Query struct {
	Reads    []ComponentTypeID
	Writes   []ComponentTypeID
	Excludes []ComponentTypeID
	Added    []ComponentTypeID
	Since    uint64
}

// QueryIter walks the matching archetypes chunk by chunk.
type QueryIter struct {
	archs []*archetype
	added []ComponentTypeID
	since uint64
	ai    int
	row   int
	cur   Chunk
}

// Query evaluates q against the current archetype set. Archetypes are
// visited in creation order, rows in storage order.
func (w *World) Query(q Query) (*QueryIter, error) {
	if w.destroyed {
		return nil, ErrWorldDestroyed
	}
	var include, exclude mask
	for _, set := range [][]ComponentTypeID{q.Reads, q.Writes, q.Added} {
		for _, id := range set {
			if !w.components.known(id) {
				return nil, fmt.Errorf("query component %d: %w", id, ErrUnknownComponentType)
			}
			include.set(id)
		}
	}
	for _, id := range q.Excludes {
		if !w.components.known(id) {
			return nil, fmt.Errorf("query exclude %d: %w", id, ErrUnknownComponentType)
		}
		exclude.set(id)
	}
	it := &QueryIter{added: q.Added, since: q.Since}
	for _, a := range w.archetypes {
		if a.mask.contains(include) && !a.mask.intersects(exclude) {
			it.archs = append(it.archs, a)
		}
	}
	return it, nil
}

// Next advances to the next non-empty chunk. With an Added filter a chunk
// is a run of consecutive matching rows.
func (it *QueryIter) Next() bool {
	for it.ai < len(it.archs) {
		a := it.archs[it.ai]
		for it.row < a.len() && !it.fresh(a, it.row) {
			it.row++
		}
		if it.row < a.len() {
			end := it.row + 1
			for end < a.len() && end-it.row < ChunkRows && it.fresh(a, end) {
				end++
			}
			it.cur = Chunk{arch: a, start: it.row, end: end}
			it.row = end
			return true
		}
		it.ai++
		it.row = 0
	}
	return false
}

// fresh reports whether every Added component of row was inserted after
// the iterator's since tick.
func (it *QueryIter) fresh(a *archetype, row int) bool {
	for _, id := range it.added {
		if a.column(id).added[row] <= it.since {
			return false
		}
	}
	return true
}

func (it *QueryIter) Chunk() Chunk { return it.cur }

// Chunks adapts the iterator to a range-over-func sequence.
func (it *QueryIter) Chunks() iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		for it.Next() {
			if !yield(it.cur) {
				return
			}
		}
	}
}

// Count drains the iterator and returns the number of matching entities.
func (it *QueryIter) Count() int {
	n := 0
	for it.Next() {
		n += it.cur.Len()
	}
	return n
}

// Chunk is a row range of one archetype. Row arguments are relative to the
// chunk start.
type Chunk struct {
	arch       *archetype
	start, end int
}

func (c Chunk) Len() int { return c.end - c.start }

// Entities returns the chunk's entity column. Do not modify.
func (c Chunk) Entities() []EntityID { return c.arch.entities[c.start:c.end] }

func (c Chunk) Entity(row int) EntityID { return c.arch.entities[c.start+row] }

func (c Chunk) Has(id ComponentTypeID) bool { return c.arch.mask.has(id) }

// AddedTick returns the change tick at which component id was inserted on
// row, or 0 when the archetype lacks id.
func (c Chunk) AddedTick(id ComponentTypeID, row int) uint64 {
	col := c.arch.column(id)
	if col == nil {
		return 0
	}
	return col.added[c.start+row]
}

// Components lists the chunk archetype's component types.
func (c Chunk) Components() []ComponentTypeID { return c.arch.ids }

// Pointer returns the address of component id at row, or nil when the
// archetype lacks id.
func (c Chunk) Pointer(id ComponentTypeID, row int) unsafe.Pointer {
	col := c.arch.column(id)
	if col == nil {
		return nil
	}
	return col.ptr(c.start + row)
}

// Bytes returns a live view of a plain-data component at row, or nil.
func (c Chunk) Bytes(id ComponentTypeID, row int) []byte {
	col := c.arch.column(id)
	if col == nil || !col.info.Plain {
		return nil
	}
	return col.bytes(c.start + row)
}

// Value returns an addressable reflect view of component id at row.
func (c Chunk) Value(id ComponentTypeID, row int) reflect.Value {
	col := c.arch.column(id)
	if col == nil {
		return reflect.Value{}
	}
	return col.value(c.start + row)
}

// ColumnOf returns the chunk's slice of component id without copying. It
// returns nil when the archetype lacks id and panics when T is not id's type.
func ColumnOf[T any](c Chunk, id ComponentTypeID) []T {
	col := c.arch.column(id)
	if col == nil {
		return nil
	}
	if col.info.Type != reflect.TypeFor[T]() {
		panic(fmt.Sprintf("ecs: column %s holds %s, not %s", col.info.Name, col.info.Type, reflect.TypeFor[T]()))
	}
	if c.Len() == 0 {
		return nil
	}
	return unsafe.Slice((*T)(col.ptr(c.start)), c.Len())
}
