package hostbridge

import (
	"sort"
	"sync"
)

// TickFunc is a per-frame callback. Returning false unregisters it.
type TickFunc func(dt float32) bool

// TickerHandle identifies a registered TickFunc.
type TickerHandle uint64

// Ticker is the host's per-frame update signal.
type Ticker interface {
	AddTicker(fn TickFunc) TickerHandle
	RemoveTicker(h TickerHandle)
}

// ManualTicker is a Ticker driven by explicit Advance calls. Host
// simulators and tests use it in place of an engine's frame loop.
type ManualTicker struct {
	mu    sync.Mutex
	next  TickerHandle
	funcs map[TickerHandle]TickFunc
}

func NewManualTicker() *ManualTicker {
	return &ManualTicker{funcs: make(map[TickerHandle]TickFunc)}
}

func (m *ManualTicker) AddTicker(fn TickFunc) TickerHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	m.funcs[m.next] = fn
	return m.next
}

func (m *ManualTicker) RemoveTicker(h TickerHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.funcs, h)
}

// Len returns the number of registered callbacks.
func (m *ManualTicker) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.funcs)
}

// Advance calls every callback once in registration order and drops those
// that return false.
func (m *ManualTicker) Advance(dt float32) {
	m.mu.Lock()
	handles := make([]TickerHandle, 0, len(m.funcs))
	for h := range m.funcs {
		handles = append(handles, h)
	}
	m.mu.Unlock()
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })

	for _, h := range handles {
		m.mu.Lock()
		fn, ok := m.funcs[h]
		m.mu.Unlock()
		if !ok {
			continue
		}
		if !fn(dt) {
			m.RemoveTicker(h)
		}
	}
}
