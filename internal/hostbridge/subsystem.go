package hostbridge

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ecsbridge/ecscore/internal/component"
	"github.com/ecsbridge/ecscore/internal/core/ecs"
	"github.com/ecsbridge/ecscore/internal/core/event"
	"github.com/ecsbridge/ecscore/internal/core/system"
)

// SetupFunc registers systems and seeds the world right after Initialize
// builds them.
type SetupFunc func(w *ecs.World, s *system.Scheduler) error

// Subsystem owns one world and scheduler for the lifetime of a host game
// instance. Initialize and Deinitialize are idempotent and may be called in
// any order. During a tick, systems may use the read-only methods and
// SendActorEvent; actor registration and Deinitialize are refused until
// the tick ends.
type Subsystem struct {
	log      *zap.Logger
	capacity int
	workers  int
	setup    []SetupFunc

	mu     sync.Mutex
	host   Ticker
	handle TickerHandle
	world  *ecs.World
	sched  *system.Scheduler
	actors map[ActorPtr]ecs.EntityID
	active bool
	// ticking is set while Tick runs the scheduler without holding mu, so
	// systems may call back into the subsystem.
	ticking bool
}

// Option configures a Subsystem.
type Option func(*Subsystem)

func WithLogger(l *zap.Logger) Option {
	return func(s *Subsystem) { s.log = l }
}

func WithCapacity(n int) Option {
	return func(s *Subsystem) { s.capacity = n }
}

func WithWorkers(n int) Option {
	return func(s *Subsystem) { s.workers = n }
}

// WithSetup appends fn to the setup chain run by Initialize.
func WithSetup(fn SetupFunc) Option {
	return func(s *Subsystem) { s.setup = append(s.setup, fn) }
}

func NewSubsystem(opts ...Option) *Subsystem {
	s := &Subsystem{log: zap.NewNop(), capacity: 1024}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize builds the world and scheduler, runs the setup chain and
// hooks Tick into host's frame signal. A second call is a no-op.
func (s *Subsystem) Initialize(host Ticker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return nil
	}
	if host == nil {
		return fmt.Errorf("initialize: %w", ecs.ErrNullHandle)
	}

	world := ecs.NewWorld(ecs.WithCapacity(s.capacity), ecs.WithLogger(s.log.Named("world")))
	sched := system.New(world,
		system.WithWorkers(s.workers),
		system.WithLogger(s.log.Named("scheduler")),
	)
	for _, fn := range append([]SetupFunc{registerCore}, s.setup...) {
		if err := fn(world, sched); err != nil {
			_ = world.Destroy()
			return fmt.Errorf("initialize setup: %w", err)
		}
	}

	s.world = world
	s.sched = sched
	s.actors = make(map[ActorPtr]ecs.EntityID)
	s.host = host
	s.active = true
	s.handle = host.AddTicker(s.Tick)
	s.log.Info("subsystem initialized",
		zap.Stringer("world", world.ID()),
		zap.Int("systems", len(sched.Systems())),
	)
	return nil
}

// registerCore registers the components the actor mirror needs.
func registerCore(w *ecs.World, _ *system.Scheduler) error {
	if _, err := ecs.Register[component.Transform](w); err != nil {
		return err
	}
	_, err := ecs.Register[component.Actor](w)
	return err
}

// Deinitialize unhooks from the host and destroys the world. Calling it
// before Initialize, or twice, is a no-op.
func (s *Subsystem) Deinitialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return nil
	}
	if s.ticking {
		return fmt.Errorf("deinitialize: %w", system.ErrTickInProgress)
	}
	s.active = false
	s.host.RemoveTicker(s.handle)
	err := s.world.Destroy()
	s.log.Info("subsystem deinitialized", zap.Uint64("ticks", s.sched.TickCount()))
	s.world, s.sched, s.host, s.actors = nil, nil, nil, nil
	return err
}

// Tick is the per-frame callback registered with the host. It returns
// false once the subsystem is deinitialized so the host drops it.
func (s *Subsystem) Tick(dt float32) bool {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return false
	}
	if s.ticking {
		s.mu.Unlock()
		return true
	}
	s.ticking = true
	sched := s.sched
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.ticking = false
		s.mu.Unlock()
	}()

	r := sched.Tick(dt)
	if !r.OK() {
		s.log.Warn("tick failures", zap.Uint64("tick", r.Tick), zap.Error(r.Err()))
	}
	return true
}

func (s *Subsystem) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// World returns the live world, or nil when not initialized.
func (s *Subsystem) World() *ecs.World {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.world
}

func (s *Subsystem) Scheduler() *system.Scheduler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched
}

// RegisterActor spawns an entity mirroring a host actor.
func (s *Subsystem) RegisterActor(ptr ActorPtr, tag uint32, pos FVector, rot FQuat) (ecs.EntityID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return 0, fmt.Errorf("register actor: %w", ecs.ErrWorldDestroyed)
	}
	if ptr == 0 {
		return 0, fmt.Errorf("register actor: %w", ecs.ErrNullHandle)
	}
	if s.ticking {
		return 0, fmt.Errorf("register actor: %w", ecs.ErrWorldLocked)
	}
	if e, ok := s.entityOf(ptr); ok {
		return e, nil
	}
	e, err := s.world.Spawn()
	if err != nil {
		return 0, fmt.Errorf("register actor: %w", err)
	}
	tr := component.IdentityTransform()
	tr.Position = ToVec3(pos)
	tr.Rotation = ToQuat(rot)
	if err := ecs.Add(s.world, e, tr); err != nil {
		return 0, err
	}
	if err := ecs.Add(s.world, e, component.Actor{Handle: ToActorHandle(ptr, tag)}); err != nil {
		return 0, err
	}
	s.actors[ptr] = e
	return e, nil
}

// UnregisterActor despawns the entity mirroring ptr, if any. An entity a
// system already despawned counts as gone.
func (s *Subsystem) UnregisterActor(ptr ActorPtr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return nil
	}
	if s.ticking {
		return fmt.Errorf("unregister actor: %w", ecs.ErrWorldLocked)
	}
	e, ok := s.entityOf(ptr)
	if !ok {
		return nil
	}
	delete(s.actors, ptr)
	return s.world.Despawn(e)
}

// ActorEntity returns the live entity mirroring ptr.
func (s *Subsystem) ActorEntity(ptr ActorPtr) (ecs.EntityID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return 0, false
	}
	return s.entityOf(ptr)
}

// entityOf looks up ptr and forgets entries whose entity no longer lives.
// Callers hold mu.
func (s *Subsystem) entityOf(ptr ActorPtr) (ecs.EntityID, bool) {
	e, ok := s.actors[ptr]
	if !ok {
		return 0, false
	}
	if !s.world.IsAlive(e) {
		delete(s.actors, ptr)
		return 0, false
	}
	return e, true
}

// SendActorEvent queues a host notification; systems read it next tick.
func (s *Subsystem) SendActorEvent(kind event.ActorEventKind, actor, other ActorPtr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return fmt.Errorf("send actor event: %w", ecs.ErrWorldDestroyed)
	}
	ev := event.ActorEvent{Kind: kind}
	if e, ok := s.entityOf(actor); ok {
		ev.Entity = e
		if a, err := ecs.Get[component.Actor](s.world, e); err == nil {
			ev.ActorTag = a.Handle.Tag
		}
	}
	if e, ok := s.entityOf(other); ok {
		ev.Other = e
		if a, err := ecs.Get[component.Actor](s.world, e); err == nil {
			ev.OtherTag = a.Handle.Tag
		}
	}
	event.Emit(s.sched.Events(), ev)
	return nil
}
