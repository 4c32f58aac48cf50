package ecs

import (
	"reflect"
	"unsafe"
)

// viewCache remembers which archetypes match a view. Archetypes are only
// ever appended, so a stale cache just scans the new tail.
type viewCache struct {
	w        *World
	include  mask
	exclude  mask
	scanned  int
	version  uint64
	matching []*archetype

	ai  int
	row int
	cur *archetype
}

func newViewCache(w *World, ids []ComponentTypeID, excludes []ComponentTypeID) viewCache {
	return viewCache{w: w, include: maskOf(ids), exclude: maskOf(excludes), row: -1}
}

func (v *viewCache) refresh() {
	if v.scanned > len(v.w.archetypes) {
		v.matching = v.matching[:0]
		v.scanned = 0
	}
	if v.version == v.w.archVersion && v.scanned == len(v.w.archetypes) {
		return
	}
	for _, a := range v.w.archetypes[v.scanned:] {
		if a.mask.contains(v.include) && !a.mask.intersects(v.exclude) {
			v.matching = append(v.matching, a)
		}
	}
	v.scanned = len(v.w.archetypes)
	v.version = v.w.archVersion
}

func (v *viewCache) reset() {
	v.refresh()
	v.ai = 0
	v.row = -1
	v.cur = nil
}

// advance moves to the next row and reports whether the archetype changed.
func (v *viewCache) advance() (ok, switched bool) {
	if v.cur != nil {
		v.row++
		if v.row < v.cur.len() {
			return true, false
		}
		v.ai++
	}
	for v.ai < len(v.matching) {
		a := v.matching[v.ai]
		if a.len() > 0 {
			v.cur = a
			v.row = 0
			return true, true
		}
		v.ai++
	}
	v.cur = nil
	return false, false
}

func (v *viewCache) entity() EntityID { return v.cur.entities[v.row] }

// count returns the number of matching entities.
func (v *viewCache) count() int {
	v.refresh()
	n := 0
	for _, a := range v.matching {
		n += a.len()
	}
	return n
}

func typedID[T any](w *World) (ComponentTypeID, error) {
	return w.RegisterComponentType(reflect.TypeFor[T]())
}

// View iterates every entity holding an A. Structural changes during an
// iteration invalidate it; queue them through Commands instead.
//
//	v, _ := ecs.NewView[Position](w)
//	for v.Next() {
//	    p := v.Get()
//	}
type View[A any] struct {
	viewCache
	a     ComponentTypeID
	baseA unsafe.Pointer
	sizeA uintptr
}

// NewView registers A if needed and builds a view that skips entities
// holding any of excludes.
func NewView[A any](w *World, excludes ...ComponentTypeID) (*View[A], error) {
	a, err := typedID[A](w)
	if err != nil {
		return nil, err
	}
	v := &View[A]{viewCache: newViewCache(w, []ComponentTypeID{a}, excludes), a: a}
	v.reset()
	return v, nil
}

// Reset rewinds the view and picks up archetypes created since last use.
func (v *View[A]) Reset() { v.reset() }

func (v *View[A]) Next() bool {
	ok, switched := v.advance()
	if switched {
		c := v.cur.column(v.a)
		v.baseA, v.sizeA = c.base, c.size
	}
	return ok
}

func (v *View[A]) Entity() EntityID { return v.entity() }

func (v *View[A]) Get() *A {
	return (*A)(unsafe.Add(v.baseA, uintptr(v.row)*v.sizeA))
}

func (v *View[A]) Count() int { return v.count() }

// View2 iterates every entity holding both A and B.
type View2[A, B any] struct {
	viewCache
	a, b         ComponentTypeID
	baseA, baseB unsafe.Pointer
	sizeA, sizeB uintptr
}

func NewView2[A, B any](w *World, excludes ...ComponentTypeID) (*View2[A, B], error) {
	a, err := typedID[A](w)
	if err != nil {
		return nil, err
	}
	b, err := typedID[B](w)
	if err != nil {
		return nil, err
	}
	v := &View2[A, B]{viewCache: newViewCache(w, []ComponentTypeID{a, b}, excludes), a: a, b: b}
	v.reset()
	return v, nil
}

func (v *View2[A, B]) Reset() { v.reset() }

func (v *View2[A, B]) Next() bool {
	ok, switched := v.advance()
	if switched {
		ca, cb := v.cur.column(v.a), v.cur.column(v.b)
		v.baseA, v.sizeA = ca.base, ca.size
		v.baseB, v.sizeB = cb.base, cb.size
	}
	return ok
}

func (v *View2[A, B]) Entity() EntityID { return v.entity() }

func (v *View2[A, B]) Get() (*A, *B) {
	return (*A)(unsafe.Add(v.baseA, uintptr(v.row)*v.sizeA)),
		(*B)(unsafe.Add(v.baseB, uintptr(v.row)*v.sizeB))
}

func (v *View2[A, B]) Count() int { return v.count() }

// View3 iterates every entity holding A, B and C.
type View3[A, B, C any] struct {
	viewCache
	a, b, c             ComponentTypeID
	baseA, baseB, baseC unsafe.Pointer
	sizeA, sizeB, sizeC uintptr
}

func NewView3[A, B, C any](w *World, excludes ...ComponentTypeID) (*View3[A, B, C], error) {
	a, err := typedID[A](w)
	if err != nil {
		return nil, err
	}
	b, err := typedID[B](w)
	if err != nil {
		return nil, err
	}
	c, err := typedID[C](w)
	if err != nil {
		return nil, err
	}
	v := &View3[A, B, C]{viewCache: newViewCache(w, []ComponentTypeID{a, b, c}, excludes), a: a, b: b, c: c}
	v.reset()
	return v, nil
}

func (v *View3[A, B, C]) Reset() { v.reset() }

func (v *View3[A, B, C]) Next() bool {
	ok, switched := v.advance()
	if switched {
		ca, cb, cc := v.cur.column(v.a), v.cur.column(v.b), v.cur.column(v.c)
		v.baseA, v.sizeA = ca.base, ca.size
		v.baseB, v.sizeB = cb.base, cb.size
		v.baseC, v.sizeC = cc.base, cc.size
	}
	return ok
}

func (v *View3[A, B, C]) Entity() EntityID { return v.entity() }

func (v *View3[A, B, C]) Get() (*A, *B, *C) {
	off := uintptr(v.row)
	return (*A)(unsafe.Add(v.baseA, off*v.sizeA)),
		(*B)(unsafe.Add(v.baseB, off*v.sizeB)),
		(*C)(unsafe.Add(v.baseC, off*v.sizeC))
}

func (v *View3[A, B, C]) Count() int { return v.count() }

// Each calls fn for every entity holding an A.
func Each[A any](w *World, fn func(EntityID, *A)) error {
	v, err := NewView[A](w)
	if err != nil {
		return err
	}
	for v.Next() {
		fn(v.Entity(), v.Get())
	}
	return nil
}

func Each2[A, B any](w *World, fn func(EntityID, *A, *B)) error {
	v, err := NewView2[A, B](w)
	if err != nil {
		return err
	}
	for v.Next() {
		a, b := v.Get()
		fn(v.Entity(), a, b)
	}
	return nil
}

func Each3[A, B, C any](w *World, fn func(EntityID, *A, *B, *C)) error {
	v, err := NewView3[A, B, C](w)
	if err != nil {
		return err
	}
	for v.Next() {
		a, b, c := v.Get()
		fn(v.Entity(), a, b, c)
	}
	return nil
}
