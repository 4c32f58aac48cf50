package event

import (
	"reflect"
	"sync"
)

// Bus is a double-buffered event bus. Events emitted in tick N are readable
// in tick N+1. The scheduler calls SwapBuffers and DispatchAll at tick start.
//
// Emit may be called from systems running in parallel. Readers only touch
// the front buffer, which is stable for the whole tick.
type Bus struct {
	mu       sync.Mutex
	front    map[reflect.Type][]any
	back     map[reflect.Type][]any
	handlers map[reflect.Type][]any
	// types in first-seen order, so dispatch order is stable.
	order []reflect.Type
	seen  map[reflect.Type]bool
}

func NewBus() *Bus {
	return &Bus{
		front:    make(map[reflect.Type][]any),
		back:     make(map[reflect.Type][]any),
		handlers: make(map[reflect.Type][]any),
		seen:     make(map[reflect.Type]bool),
	}
}

func (b *Bus) track(t reflect.Type) {
	if b.seen[t] {
		return
	}
	b.seen[t] = true
	b.order = append(b.order, t)
}

// Emit queues an event into the back buffer (will be readable next tick).
func Emit[T any](b *Bus, event T) {
	t := reflect.TypeFor[T]()
	b.mu.Lock()
	b.track(t)
	b.back[t] = append(b.back[t], event)
	b.mu.Unlock()
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	t := reflect.TypeFor[T]()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.track(t)
	b.handlers[t] = append(b.handlers[t], fn)
}

// Read returns this tick's events of type T in emission order.
func Read[T any](b *Bus) []T {
	b.mu.Lock()
	events := b.front[reflect.TypeFor[T]()]
	b.mu.Unlock()
	if len(events) == 0 {
		return nil
	}
	out := make([]T, len(events))
	for i, ev := range events {
		out[i] = ev.(T)
	}
	return out
}

// Pending reports how many events wait in the back buffer.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, evs := range b.back {
		n += len(evs)
	}
	return n
}

// SwapBuffers rotates back→front and clears the new back buffer.
// Called once at tick start.
func (b *Bus) SwapBuffers() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.front, b.back = b.back, b.front
	for k := range b.back {
		clear(b.back[k])
		b.back[k] = b.back[k][:0]
	}
}

// DispatchAll delivers all front-buffer events to their subscribed handlers.
func (b *Bus) DispatchAll() {
	b.mu.Lock()
	order := append([]reflect.Type(nil), b.order...)
	b.mu.Unlock()
	for _, t := range order {
		b.mu.Lock()
		events := b.front[t]
		handlers := append([]any(nil), b.handlers[t]...)
		b.mu.Unlock()
		for _, ev := range events {
			for _, h := range handlers {
				callHandler(h, ev)
			}
		}
	}
}

func callHandler(handler any, event any) {
	reflect.ValueOf(handler).Call([]reflect.Value{reflect.ValueOf(event)})
}
