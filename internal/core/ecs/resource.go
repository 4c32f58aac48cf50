package ecs

import (
	"fmt"
	"reflect"
)

// ResourceKey identifies a resource type in system access declarations.
type ResourceKey struct{ t reflect.Type }

// ResourceOf returns the key of resource type T.
func ResourceOf[T any]() ResourceKey { return ResourceKey{reflect.TypeFor[T]()} }

func (k ResourceKey) String() string {
	if k.t == nil {
		return "<nil>"
	}
	return k.t.String()
}

// InsertResource stores v as the world's single T, replacing any previous
// one. Like other structural changes it fails while the world is frozen.
func InsertResource[T any](w *World, v T) error {
	if err := w.mutable(); err != nil {
		return fmt.Errorf("insert resource %s: %w", reflect.TypeFor[T](), err)
	}
	p := new(T)
	*p = v
	w.resources[reflect.TypeFor[T]()] = p
	return nil
}

// InitResource inserts the zero T unless one is already present.
func InitResource[T any](w *World) error {
	if HasResource[T](w) {
		return nil
	}
	var zero T
	return InsertResource(w, zero)
}

// Resource returns the world's T. The pointer stays valid until the
// resource is replaced or removed; systems writing through it declare the
// resource in their access.
func Resource[T any](w *World) (*T, error) {
	if w.destroyed {
		return nil, ErrWorldDestroyed
	}
	p, ok := w.resources[reflect.TypeFor[T]()]
	if !ok {
		return nil, fmt.Errorf("resource %s: %w", reflect.TypeFor[T](), ErrMissingResource)
	}
	return p.(*T), nil
}

func HasResource[T any](w *World) bool {
	_, ok := w.resources[reflect.TypeFor[T]()]
	return ok
}

// RemoveResource deletes the world's T.
func RemoveResource[T any](w *World) error {
	t := reflect.TypeFor[T]()
	if err := w.mutable(); err != nil {
		return fmt.Errorf("remove resource %s: %w", t, err)
	}
	if _, ok := w.resources[t]; !ok {
		return fmt.Errorf("remove resource %s: %w", t, ErrMissingResource)
	}
	delete(w.resources, t)
	return nil
}

// ResourceCount reports how many resources the world holds.
func (w *World) ResourceCount() int { return len(w.resources) }

// SetResource queues InsertResource(w, v) on c.
func SetResource[T any](c *Commands, v T) {
	c.ops = append(c.ops, command{op: cmdFunc, fn: func(w *World) error { return InsertResource(w, v) }})
}
