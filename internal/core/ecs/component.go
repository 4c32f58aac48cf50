package ecs

import (
	"fmt"
	"reflect"
)

// Register registers T with w, or returns its id if already registered.
func Register[T any](w *World, opts ...ComponentOption) (ComponentTypeID, error) {
	return w.RegisterComponentType(reflect.TypeFor[T](), opts...)
}

// ID returns T's component type id in w.
func ID[T any](w *World) (ComponentTypeID, bool) {
	return w.LookupComponentType(reflect.TypeFor[T]())
}

// MustID is ID for types the caller registered itself. It panics otherwise.
func MustID[T any](w *World) ComponentTypeID {
	id, ok := ID[T](w)
	if !ok {
		panic(fmt.Sprintf("ecs: component %s not registered", reflect.TypeFor[T]()))
	}
	return id
}

// Add attaches value to e, registering T on first use.
func Add[T any](w *World, e EntityID, value T) error {
	id, err := Register[T](w)
	if err != nil {
		return err
	}
	c, row, err := w.insert(e, id)
	if err != nil {
		return fmt.Errorf("add %s to %s: %w", reflect.TypeFor[T](), e, err)
	}
	*(*T)(c.ptr(row)) = value
	return nil
}

// Set overwrites e's T, adding it when absent.
func Set[T any](w *World, e EntityID, value T) error {
	if p, err := Get[T](w, e); err == nil {
		*p = value
		return nil
	}
	return Add(w, e, value)
}

// Get returns a pointer to e's T. The pointer is invalidated by any
// structural change to e's archetype.
func Get[T any](w *World, e EntityID) (*T, error) {
	id, ok := ID[T](w)
	if !ok {
		return nil, fmt.Errorf("get %s of %s: %w", reflect.TypeFor[T](), e, ErrUnknownComponentType)
	}
	c, row, err := w.slot(e, id)
	if err != nil {
		return nil, fmt.Errorf("get %s of %s: %w", reflect.TypeFor[T](), e, err)
	}
	return (*T)(c.ptr(row)), nil
}

// Remove detaches e's T.
func Remove[T any](w *World, e EntityID) error {
	id, ok := ID[T](w)
	if !ok {
		return fmt.Errorf("remove %s from %s: %w", reflect.TypeFor[T](), e, ErrUnknownComponentType)
	}
	return w.RemoveComponent(e, id)
}

func Has[T any](w *World, e EntityID) bool {
	id, ok := ID[T](w)
	return ok && w.HasComponent(e, id)
}
