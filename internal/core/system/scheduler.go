package system

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ecsbridge/ecscore/internal/core/ecs"
	"github.com/ecsbridge/ecscore/internal/core/event"
)

var (
	ErrDuplicateSystem    = errors.New("system: duplicate system name")
	ErrUnknownDependency  = errors.New("system: ordering refers to unknown system")
	ErrDependencyCycle    = errors.New("system: ordering constraints form a cycle")
	ErrPhaseOrder         = errors.New("system: ordering target runs in a later phase")
	ErrTickInProgress     = errors.New("system: tick already in progress")
	ErrSchedulerWorldGone = errors.New("system: world destroyed")
)

// node is a registered system plus its scheduling state.
type node struct {
	sys    System
	name   string
	phase  Phase
	access Access
	after  []string
	order  int
	level  int

	cmds    ecs.Commands
	log     *zap.Logger
	diag    *Diagnostic
	lastRun uint64
}

// Time is the world resource the scheduler refreshes before every tick.
type Time struct {
	Dt      float32
	Tick    uint64
	Elapsed float64 // seconds summed over every dt so far
}

// Scheduler runs registered systems once per Tick, phase by phase.
// Within a phase, systems are grouped into batches of mutually
// non-conflicting systems; batches run in order, systems inside a batch may
// run in parallel.
type Scheduler struct {
	world   *ecs.World
	events  *event.Bus
	log     *zap.Logger
	workers int

	mu      sync.Mutex
	nodes   []*node
	byName  map[string]*node
	plan    [phaseCount][][]*node
	dirty   bool
	started bool
	tick    uint64
	elapsed float64
	last    Report

	running atomic.Bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithWorkers bounds how many systems of one batch run at once.
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithEvents shares an existing bus instead of creating one.
func WithEvents(b *event.Bus) Option {
	return func(s *Scheduler) { s.events = b }
}

func New(world *ecs.World, opts ...Option) *Scheduler {
	s := &Scheduler{
		world:   world,
		log:     zap.NewNop(),
		workers: runtime.GOMAXPROCS(0),
		byName:  make(map[string]*node),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.events == nil {
		s.events = event.NewBus()
	}
	return s
}

func (s *Scheduler) World() *ecs.World  { return s.world }
func (s *Scheduler) Events() *event.Bus { return s.events }
func (s *Scheduler) Workers() int       { return s.workers }

// Running reports whether a Tick is in progress.
func (s *Scheduler) Running() bool { return s.running.Load() }

// RegisterOption customizes one registration.
type RegisterOption func(*node)

// After orders the system behind the named systems. Targets in an earlier
// phase are already satisfied.
func After(names ...string) RegisterOption {
	return func(n *node) { n.after = append(n.after, names...) }
}

// Register adds sys. The schedule is recompiled lazily on the next Tick.
func (s *Scheduler) Register(sys System, opts ...RegisterOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := sys.Name()
	if s.running.Load() {
		return fmt.Errorf("register %s: %w", name, ErrTickInProgress)
	}
	if _, ok := s.byName[name]; ok {
		return fmt.Errorf("register %s: %w", name, ErrDuplicateSystem)
	}
	n := &node{
		sys:    sys,
		name:   name,
		phase:  sys.Phase(),
		access: sys.Access(),
		order:  len(s.nodes),
		log:    s.log.With(zap.String("system", name)),
	}
	for _, opt := range opts {
		opt(n)
	}
	s.nodes = append(s.nodes, n)
	s.byName[name] = n
	s.dirty = true
	return nil
}

// RegisterFunc is shorthand for Register(NewFunc(...)).
func (s *Scheduler) RegisterFunc(name string, phase Phase, access Access, fn func(*Context) error, opts ...RegisterOption) error {
	return s.Register(NewFunc(name, phase, access, fn), opts...)
}

// AddPlugin lets p register its systems.
func (s *Scheduler) AddPlugin(p Plugin) error {
	if err := p.Build(s); err != nil {
		return fmt.Errorf("plugin %T: %w", p, err)
	}
	return nil
}

// Systems lists registered system names in registration order.
func (s *Scheduler) Systems() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.nodes))
	for i, n := range s.nodes {
		out[i] = n.name
	}
	return out
}

// Compile validates ordering constraints and rebuilds the batch plan.
func (s *Scheduler) Compile() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compileLocked()
}

func (s *Scheduler) compileLocked() error {
	var plan [phaseCount][][]*node
	for p := PhaseStartup; p < phaseCount; p++ {
		batches, err := s.compilePhase(p)
		if err != nil {
			return err
		}
		plan[p] = batches
	}
	s.plan = plan
	s.dirty = false
	for p := PhaseStartup; p < phaseCount; p++ {
		if len(plan[p]) > 0 {
			s.log.Debug("phase compiled",
				zap.Stringer("phase", p),
				zap.Int("batches", len(plan[p])),
			)
		}
	}
	return nil
}

// compilePhase orders p's systems topologically (registration order breaks
// ties) and assigns each the lowest batch level above every earlier system
// it conflicts with or depends on.
func (s *Scheduler) compilePhase(p Phase) ([][]*node, error) {
	var members []*node
	for _, n := range s.nodes {
		if n.phase == p {
			members = append(members, n)
		}
	}
	if len(members) == 0 {
		return nil, nil
	}

	deps := make(map[*node][]*node, len(members))
	for _, n := range members {
		for _, target := range n.after {
			t, ok := s.byName[target]
			if !ok {
				return nil, fmt.Errorf("%s after %s: %w", n.name, target, ErrUnknownDependency)
			}
			switch {
			case t.phase < p:
				continue
			case t.phase > p:
				return nil, fmt.Errorf("%s after %s: %w", n.name, target, ErrPhaseOrder)
			}
			if t == n {
				return nil, fmt.Errorf("%s after itself: %w", n.name, ErrDependencyCycle)
			}
			deps[n] = append(deps[n], t)
		}
	}

	placed := make(map[*node]bool, len(members))
	sorted := make([]*node, 0, len(members))
	for len(sorted) < len(members) {
		progressed := false
		for _, n := range members {
			if placed[n] {
				continue
			}
			ready := true
			for _, d := range deps[n] {
				if !placed[d] {
					ready = false
					break
				}
			}
			if ready {
				placed[n] = true
				sorted = append(sorted, n)
				progressed = true
				break
			}
		}
		if !progressed {
			var stuck []string
			for _, n := range members {
				if !placed[n] {
					stuck = append(stuck, n.name)
				}
			}
			return nil, fmt.Errorf("phase %s %v: %w", p, stuck, ErrDependencyCycle)
		}
	}

	var batches [][]*node
	for i, n := range sorted {
		n.level = 0
		for _, prev := range sorted[:i] {
			if prev.level >= n.level && (n.access.Conflicts(prev.access) || dependsOn(deps, n, prev)) {
				n.level = prev.level + 1
			}
		}
		for len(batches) <= n.level {
			batches = append(batches, nil)
		}
		batches[n.level] = append(batches[n.level], n)
	}
	return batches, nil
}

func dependsOn(deps map[*node][]*node, n, target *node) bool {
	for _, d := range deps[n] {
		if d == target {
			return true
		}
	}
	return false
}

// Plan returns the batch layout of phase p, compiling first if needed.
func (s *Scheduler) Plan(p Phase) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dirty {
		if err := s.compileLocked(); err != nil {
			return nil, err
		}
	}
	if p < 0 || p >= phaseCount {
		return nil, nil
	}
	out := make([][]string, len(s.plan[p]))
	for i, batch := range s.plan[p] {
		for _, n := range batch {
			out[i] = append(out[i], n.name)
		}
	}
	return out, nil
}

// Tick runs one frame: event buffers rotate, then every phase runs in
// order. Startup runs on the first tick only. Tick is synchronous; effects
// are committed before it returns.
func (s *Scheduler) Tick(dt float32) Report {
	if !s.running.CompareAndSwap(false, true) {
		return Report{Dt: dt, Failure: ErrTickInProgress}
	}
	defer s.running.Store(false)

	start := time.Now()
	plan, first, report, ok := s.prepare(dt)
	if ok {
		s.elapsed += float64(dt)
		if err := ecs.InsertResource(s.world, Time{Dt: dt, Tick: report.Tick, Elapsed: s.elapsed}); err != nil {
			report.Failure = err
			ok = false
		}
	}
	if ok {
		s.events.SwapBuffers()
		s.events.DispatchAll()
		for p := first; p < phaseCount; p++ {
			s.runPhase(p, plan[p], dt, &report)
		}
	}
	report.Duration = time.Since(start)

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()
	if !report.OK() {
		s.log.Warn("tick finished with failures",
			zap.Uint64("tick", report.Tick),
			zap.Int("failures", len(report.Diagnostics)),
			zap.Error(report.Failure),
		)
	}
	return report
}

// prepare compiles if needed and claims the next tick number.
func (s *Scheduler) prepare(dt float32) (plan [phaseCount][][]*node, first Phase, report Report, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	report = Report{Tick: s.tick + 1, Dt: dt}
	if s.world.Destroyed() {
		report.Failure = ErrSchedulerWorldGone
		return plan, 0, report, false
	}
	if s.dirty {
		if err := s.compileLocked(); err != nil {
			report.Failure = err
			return plan, 0, report, false
		}
	}
	s.tick++
	first = PhasePreUpdate
	if !s.started {
		first = PhaseStartup
		s.started = true
	}
	return s.plan, first, report, true
}

// LastReport returns the report of the most recent Tick.
func (s *Scheduler) LastReport() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// TickCount returns how many ticks have run.
func (s *Scheduler) TickCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}
