package system

import (
	"slices"

	"github.com/ecsbridge/ecscore/internal/core/ecs"
)

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseStartup    Phase = iota // 0: first tick only
	PhasePreUpdate               // 1: react to last tick's events
	PhaseUpdate                  // 2: simulation
	PhasePostUpdate              // 3: derived state
	PhaseCleanup                 // 4: despawns, bookkeeping
	phaseCount
)

func (p Phase) String() string {
	switch p {
	case PhaseStartup:
		return "startup"
	case PhasePreUpdate:
		return "pre_update"
	case PhaseUpdate:
		return "update"
	case PhasePostUpdate:
		return "post_update"
	case PhaseCleanup:
		return "cleanup"
	}
	return "unknown"
}

// ParsePhase maps a phase name back to its value.
func ParsePhase(s string) (Phase, bool) {
	for p := PhaseStartup; p < phaseCount; p++ {
		if p.String() == s {
			return p, true
		}
	}
	return 0, false
}

// Access declares what a system touches. The scheduler never runs two
// systems with conflicting access at the same time.
type Access struct {
	Reads  []ecs.ComponentTypeID
	Writes []ecs.ComponentTypeID
	// ResourceReads and ResourceWrites declare world resources the same way.
	ResourceReads  []ecs.ResourceKey
	ResourceWrites []ecs.ResourceKey
	// Locks names shared resources outside the world, e.g. a script VM.
	Locks []string
	// Exclusive systems run alone.
	Exclusive bool
}

// Conflicts reports whether a and b may not run concurrently: a write
// against a read or write of the same component type or resource, a shared
// lock, or either side exclusive.
func (a Access) Conflicts(b Access) bool {
	if a.Exclusive || b.Exclusive {
		return true
	}
	if writeConflict(a.Reads, a.Writes, b.Reads, b.Writes) ||
		writeConflict(a.ResourceReads, a.ResourceWrites, b.ResourceReads, b.ResourceWrites) {
		return true
	}
	for _, l := range a.Locks {
		if slices.Contains(b.Locks, l) {
			return true
		}
	}
	return false
}

func writeConflict[K comparable](aReads, aWrites, bReads, bWrites []K) bool {
	for _, w := range aWrites {
		if slices.Contains(bWrites, w) || slices.Contains(bReads, w) {
			return true
		}
	}
	for _, w := range bWrites {
		if slices.Contains(aReads, w) {
			return true
		}
	}
	return false
}

// System is the interface every ECS system implements.
type System interface {
	Name() string
	Phase() Phase
	Access() Access
	Update(ctx *Context) error
}

// Func adapts a plain function to System.
type Func struct {
	name   string
	phase  Phase
	access Access
	fn     func(*Context) error
}

func NewFunc(name string, phase Phase, access Access, fn func(*Context) error) *Func {
	return &Func{name: name, phase: phase, access: access, fn: fn}
}

func (f *Func) Name() string              { return f.name }
func (f *Func) Phase() Phase              { return f.phase }
func (f *Func) Access() Access            { return f.access }
func (f *Func) Update(ctx *Context) error { return f.fn(ctx) }

// Plugin bundles related systems and setup.
type Plugin interface {
	Build(s *Scheduler) error
}

// PluginFunc adapts a function to Plugin.
type PluginFunc func(s *Scheduler) error

func (f PluginFunc) Build(s *Scheduler) error { return f(s) }
