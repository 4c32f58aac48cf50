package ecs

import (
	"fmt"
	"reflect"

	"go.uber.org/multierr"
)

type commandOp uint8

const (
	cmdSpawn commandOp = iota
	cmdDespawn
	cmdInsert
	cmdRemove
	cmdFunc
)

type command struct {
	op     commandOp
	entity EntityID
	id     ComponentTypeID
	value  any
	values []any
	fn     func(*World) error
}

// Commands records structural changes to apply once the world is no longer
// frozen. Each system owns one buffer, so recording needs no locking.
type Commands struct {
	ops []command
}

// Spawn queues a new entity carrying values, one component per value.
func (c *Commands) Spawn(values ...any) {
	c.ops = append(c.ops, command{op: cmdSpawn, values: values})
}

func (c *Commands) Despawn(e EntityID) {
	c.ops = append(c.ops, command{op: cmdDespawn, entity: e})
}

// Insert queues an add-or-overwrite of value's type on e.
func (c *Commands) Insert(e EntityID, value any) {
	c.ops = append(c.ops, command{op: cmdInsert, entity: e, value: value})
}

func (c *Commands) Remove(e EntityID, id ComponentTypeID) {
	c.ops = append(c.ops, command{op: cmdRemove, entity: e, id: id})
}

// RemoveOf queues removal of e's T. T must already be registered when the
// buffer is applied.
func RemoveOf[T any](c *Commands, e EntityID) {
	c.ops = append(c.ops, command{op: cmdRemove, entity: e, value: reflect.TypeFor[T]()})
}

func (c *Commands) Len() int { return len(c.ops) }

func (c *Commands) Reset() { c.ops = c.ops[:0] }

// Apply executes the queued commands in order and empties the buffer. A
// failing command does not stop the rest; all failures are combined.
func (c *Commands) Apply(w *World) error {
	var errs error
	for _, cmd := range c.ops {
		errs = multierr.Append(errs, w.apply(cmd))
	}
	c.Reset()
	return errs
}

func (w *World) apply(cmd command) error {
	switch cmd.op {
	case cmdSpawn:
		e, err := w.Spawn()
		if err != nil {
			return err
		}
		var errs error
		for _, v := range cmd.values {
			errs = multierr.Append(errs, w.insertAny(e, v))
		}
		return errs
	case cmdDespawn:
		return w.Despawn(cmd.entity)
	case cmdInsert:
		return w.insertAny(cmd.entity, cmd.value)
	case cmdRemove:
		id := cmd.id
		if t, ok := cmd.value.(reflect.Type); ok {
			known, ok := w.LookupComponentType(t)
			if !ok {
				return fmt.Errorf("remove %s from %s: %w", t, cmd.entity, ErrUnknownComponentType)
			}
			id = known
		}
		return w.RemoveComponent(cmd.entity, id)
	case cmdFunc:
		return cmd.fn(w)
	}
	return nil
}

// insertAny sets v on e, registering v's type on first use.
func (w *World) insertAny(e EntityID, v any) error {
	if v == nil {
		return fmt.Errorf("insert on %s: nil value: %w", e, ErrTypeMismatch)
	}
	rv := reflect.ValueOf(v)
	id, err := w.RegisterComponentType(rv.Type())
	if err != nil {
		return err
	}
	return w.SetComponentValue(e, id, rv)
}
