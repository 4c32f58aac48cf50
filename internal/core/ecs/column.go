package ecs

import (
	"reflect"
	"unsafe"
)

// column is dense storage for one component type inside one archetype.
// The backing slice is allocated through reflect so the GC sees the real
// element type; base caches its data pointer for unsafe row addressing.
type column struct {
	info *ComponentInfo
	data reflect.Value
	base unsafe.Pointer
	size uintptr
	// added holds the world change tick at which each row's value was
	// inserted. Moves between archetypes carry it along.
	added []uint64
}

func newColumn(info *ComponentInfo, capacity int) *column {
	c := &column{info: info, size: info.Size}
	c.reserve(capacity)
	return c
}

// reserveKeep makes room for at least n rows, keeping the first keep rows.
func (c *column) reserveKeep(n, keep int) {
	if c.data.IsValid() && c.data.Len() >= n {
		return
	}
	newCap := 8
	if c.data.IsValid() {
		newCap = max(2*c.data.Len(), newCap)
	}
	newCap = max(newCap, n)
	next := reflect.MakeSlice(reflect.SliceOf(c.info.Type), newCap, newCap)
	added := make([]uint64, newCap)
	if c.data.IsValid() && keep > 0 {
		reflect.Copy(next, c.data.Slice(0, keep))
		copy(added, c.added[:keep])
	}
	c.data = next
	c.base = next.UnsafePointer()
	c.added = added
}

func (c *column) reserve(n int) { c.reserveKeep(n, 0) }

func (c *column) ptr(row int) unsafe.Pointer {
	return unsafe.Add(c.base, uintptr(row)*c.size)
}

// bytes returns a view of row's raw memory. Only valid for plain types.
func (c *column) bytes(row int) []byte {
	if c.size == 0 {
		return []byte{}
	}
	return unsafe.Slice((*byte)(c.ptr(row)), c.size)
}

// value returns an addressable view of row.
func (c *column) value(row int) reflect.Value {
	return c.data.Index(row)
}

// copyRow copies src[srcRow] into c[dstRow].
func (c *column) copyRow(dstRow int, src *column, srcRow int) {
	c.added[dstRow] = src.added[srcRow]
	if c.size == 0 {
		return
	}
	if c.info.Plain {
		copy(c.bytes(dstRow), src.bytes(srcRow))
		return
	}
	c.data.Index(dstRow).Set(src.data.Index(srcRow))
}

// zero clears row so the GC can reclaim anything it referenced.
func (c *column) zero(row int) {
	c.added[row] = 0
	if c.size == 0 {
		return
	}
	if c.info.Plain {
		clear(c.bytes(row))
		return
	}
	c.data.Index(row).SetZero()
}

// drop runs the type's drop hook on row, if any.
func (c *column) drop(row int) {
	if c.info.drop != nil {
		c.info.drop(c.ptr(row))
	}
}
