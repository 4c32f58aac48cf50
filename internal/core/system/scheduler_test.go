package system

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecsbridge/ecscore/internal/core/ecs"
	"github.com/ecsbridge/ecscore/internal/core/event"
)

type position struct{ X, Y, Z float32 }
type velocity struct{ X, Y, Z float32 }
type counter struct{ N int }
type score struct{ N int }

func noop(*Context) error { return nil }

func TestGravityScenario(t *testing.T) {
	w := ecs.NewWorld()
	e, err := w.Spawn()
	require.NoError(t, err)
	require.NoError(t, ecs.Add(w, e, position{}))
	pos := ecs.MustID[position](w)

	s := New(w)
	require.NoError(t, s.RegisterFunc("Gravity", PhaseUpdate, Access{Writes: []ecs.ComponentTypeID{pos}},
		func(ctx *Context) error {
			return ecs.Each(ctx.World, func(_ ecs.EntityID, p *position) {
				p.Y -= 9.8 * ctx.Dt
			})
		}))

	r := s.Tick(0)
	require.True(t, r.OK(), "%v", r.Err())
	p, err := ecs.Get[position](w, e)
	require.NoError(t, err)
	assert.Equal(t, position{}, *p)

	r = s.Tick(1)
	require.True(t, r.OK(), "%v", r.Err())
	p, err = ecs.Get[position](w, e)
	require.NoError(t, err)
	assert.InDelta(t, -9.8, p.Y, 1e-6)
	assert.Equal(t, uint64(2), s.TickCount())
}

func TestPlanBatchesByConflict(t *testing.T) {
	w := ecs.NewWorld()
	pos, _ := ecs.Register[position](w)
	vel, _ := ecs.Register[velocity](w)

	s := New(w)
	require.NoError(t, s.RegisterFunc("a", PhaseUpdate, Access{Writes: []ecs.ComponentTypeID{pos}}, noop))
	require.NoError(t, s.RegisterFunc("b", PhaseUpdate, Access{Writes: []ecs.ComponentTypeID{vel}}, noop))
	require.NoError(t, s.RegisterFunc("c", PhaseUpdate, Access{Reads: []ecs.ComponentTypeID{pos}}, noop))
	require.NoError(t, s.RegisterFunc("d", PhaseUpdate, Access{Reads: []ecs.ComponentTypeID{vel}}, noop, After("c")))
	require.NoError(t, s.RegisterFunc("e", PhaseUpdate, Access{Exclusive: true}, noop))
	require.NoError(t, s.RegisterFunc("f", PhaseUpdate, Access{Locks: []string{"vm"}}, noop))
	require.NoError(t, s.RegisterFunc("g", PhaseUpdate, Access{Locks: []string{"vm"}}, noop))

	plan, err := s.Plan(PhaseUpdate)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}, {"d"}, {"e"}, {"f"}, {"g"}}, plan)
}

func TestAfterOrdersWithinPhase(t *testing.T) {
	w := ecs.NewWorld()
	s := New(w)
	var order []string
	rec := func(name string) func(*Context) error {
		return func(*Context) error { order = append(order, name); return nil }
	}
	require.NoError(t, s.RegisterFunc("late", PhaseUpdate, Access{Exclusive: true}, rec("late"), After("early")))
	require.NoError(t, s.RegisterFunc("early", PhaseUpdate, Access{Exclusive: true}, rec("early")))
	require.NoError(t, s.RegisterFunc("pre", PhasePreUpdate, Access{}, rec("pre")))
	require.NoError(t, s.RegisterFunc("boot", PhaseStartup, Access{}, rec("boot")))
	require.NoError(t, s.RegisterFunc("post", PhasePostUpdate, Access{}, rec("post"), After("pre")))

	require.True(t, s.Tick(0.016).OK())
	assert.Equal(t, []string{"boot", "pre", "early", "late", "post"}, order)

	order = nil
	require.True(t, s.Tick(0.016).OK())
	assert.Equal(t, []string{"pre", "early", "late", "post"}, order, "startup runs once")
}

func TestCompileErrors(t *testing.T) {
	t.Run("unknown", func(t *testing.T) {
		s := New(ecs.NewWorld())
		require.NoError(t, s.RegisterFunc("a", PhaseUpdate, Access{}, noop, After("ghost")))
		r := s.Tick(0)
		assert.ErrorIs(t, r.Err(), ErrUnknownDependency)
		assert.Zero(t, s.TickCount())
	})
	t.Run("cycle", func(t *testing.T) {
		s := New(ecs.NewWorld())
		require.NoError(t, s.RegisterFunc("a", PhaseUpdate, Access{}, noop, After("b")))
		require.NoError(t, s.RegisterFunc("b", PhaseUpdate, Access{}, noop, After("a")))
		assert.ErrorIs(t, s.Compile(), ErrDependencyCycle)
	})
	t.Run("later phase", func(t *testing.T) {
		s := New(ecs.NewWorld())
		require.NoError(t, s.RegisterFunc("a", PhasePreUpdate, Access{}, noop, After("b")))
		require.NoError(t, s.RegisterFunc("b", PhaseUpdate, Access{}, noop))
		assert.ErrorIs(t, s.Compile(), ErrPhaseOrder)
	})
	t.Run("duplicate", func(t *testing.T) {
		s := New(ecs.NewWorld())
		require.NoError(t, s.RegisterFunc("a", PhaseUpdate, Access{}, noop))
		assert.ErrorIs(t, s.RegisterFunc("a", PhaseCleanup, Access{}, noop), ErrDuplicateSystem)
	})
}

func TestFailuresAreIsolated(t *testing.T) {
	w := ecs.NewWorld()
	s := New(w)
	boom := errors.New("boom")
	var ran atomic.Int32
	require.NoError(t, s.RegisterFunc("fails", PhaseUpdate, Access{}, func(*Context) error { return boom }))
	require.NoError(t, s.RegisterFunc("panics", PhaseUpdate, Access{}, func(*Context) error { panic("bad") }))
	require.NoError(t, s.RegisterFunc("fine", PhaseUpdate, Access{}, func(*Context) error { ran.Add(1); return nil }))

	r := s.Tick(0)
	assert.False(t, r.OK())
	assert.Equal(t, int32(1), ran.Load())
	assert.Equal(t, 3, r.Executed)
	require.Len(t, r.Diagnostics, 2)
	assert.ErrorIs(t, r.Err(), boom)

	var panicked bool
	for _, d := range r.Diagnostics {
		if d.System == "panics" {
			panicked = d.Panic
		}
	}
	assert.True(t, panicked)
	assert.False(t, w.Frozen())
	assert.Equal(t, r.Tick, s.LastReport().Tick)
}

func TestStructuralChangesGoThroughCommands(t *testing.T) {
	w := ecs.NewWorld()
	e, _ := w.Spawn()
	require.NoError(t, ecs.Add(w, e, counter{}))
	s := New(w)

	var direct error
	require.NoError(t, s.RegisterFunc("spawner", PhaseUpdate, Access{}, func(ctx *Context) error {
		_, direct = ctx.World.Spawn()
		ctx.Commands.Spawn(counter{N: 7})
		ctx.Commands.Despawn(e)
		return nil
	}))
	require.NoError(t, s.RegisterFunc("observer", PhasePostUpdate, Access{}, func(ctx *Context) error {
		n := 0
		_ = ecs.Each(ctx.World, func(_ ecs.EntityID, c *counter) { n += c.N })
		if n != 7 {
			return errors.New("post update must see committed commands")
		}
		return nil
	}))

	r := s.Tick(0)
	require.True(t, r.OK(), "%v", r.Err())
	assert.ErrorIs(t, direct, ecs.ErrWorldLocked)
	assert.False(t, w.IsAlive(e))
	assert.Equal(t, 1, w.Len())
}

func TestNestedTickIsRejected(t *testing.T) {
	s := New(ecs.NewWorld())
	var nested Report
	require.NoError(t, s.RegisterFunc("reenter", PhaseUpdate, Access{}, func(*Context) error {
		nested = s.Tick(0)
		return nil
	}))
	require.True(t, s.Tick(0).OK())
	assert.ErrorIs(t, nested.Failure, ErrTickInProgress)
	assert.NoError(t, s.RegisterFunc("x", PhaseUpdate, Access{}, noop), "registration reopens after the tick")
}

func TestEventsReachNextTick(t *testing.T) {
	s := New(ecs.NewWorld())
	var seen []int
	require.NoError(t, s.RegisterFunc("emit", PhaseUpdate, Access{}, func(ctx *Context) error {
		event.Emit(ctx.Events, score{N: int(ctx.Tick)})
		return nil
	}))
	require.NoError(t, s.RegisterFunc("read", PhasePreUpdate, Access{}, func(ctx *Context) error {
		for _, ev := range event.Read[score](ctx.Events) {
			seen = append(seen, ev.N)
		}
		return nil
	}))
	for i := 0; i < 3; i++ {
		require.True(t, s.Tick(0).OK())
	}
	assert.Equal(t, []int{1, 2}, seen)
}

func TestPluginRegistersSystems(t *testing.T) {
	s := New(ecs.NewWorld())
	p := PluginFunc(func(s *Scheduler) error {
		return s.RegisterFunc("from_plugin", PhaseCleanup, Access{}, noop)
	})
	require.NoError(t, s.AddPlugin(p))
	assert.Equal(t, []string{"from_plugin"}, s.Systems())
}

// Run with -race: overlapping writers must be serialized, disjoint writers
// may run together without touching the same memory.
func TestConcurrentBatchesRace(t *testing.T) {
	w := ecs.NewWorld()
	for i := 0; i < 256; i++ {
		e, _ := w.Spawn()
		require.NoError(t, ecs.Add(w, e, counter{}))
		require.NoError(t, ecs.Add(w, e, score{}))
	}
	cid, sid := ecs.MustID[counter](w), ecs.MustID[score](w)

	s := New(w, WithWorkers(4))
	for i := 0; i < 4; i++ {
		require.NoError(t, s.RegisterFunc("count"+string(rune('a'+i)), PhaseUpdate,
			Access{Writes: []ecs.ComponentTypeID{cid}},
			func(ctx *Context) error {
				return ecs.Each(ctx.World, func(_ ecs.EntityID, c *counter) { c.N++ })
			}))
		require.NoError(t, s.RegisterFunc("score"+string(rune('a'+i)), PhaseUpdate,
			Access{Writes: []ecs.ComponentTypeID{sid}},
			func(ctx *Context) error {
				return ecs.Each(ctx.World, func(_ ecs.EntityID, sc *score) { sc.N += 2 })
			}))
	}
	for i := 0; i < 10; i++ {
		require.True(t, s.Tick(0).OK())
	}
	require.NoError(t, ecs.Each2(w, func(_ ecs.EntityID, c *counter, sc *score) {
		assert.Equal(t, 40, c.N)
		assert.Equal(t, 80, sc.N)
	}))
}

func TestDisjointWritersAreOrderIndependent(t *testing.T) {
	run := func(swap bool) uint64 {
		w := ecs.NewWorld()
		cid, _ := ecs.Register[counter](w)
		sid, _ := ecs.Register[score](w)
		for i := 0; i < 32; i++ {
			e, _ := w.Spawn()
			require.NoError(t, ecs.Add(w, e, counter{N: i}))
			require.NoError(t, ecs.Add(w, e, score{N: i}))
		}
		s := New(w)
		incC := NewFunc("c", PhaseUpdate, Access{Writes: []ecs.ComponentTypeID{cid}}, func(ctx *Context) error {
			return ecs.Each(ctx.World, func(_ ecs.EntityID, c *counter) { c.N *= 3 })
		})
		incS := NewFunc("s", PhaseUpdate, Access{Writes: []ecs.ComponentTypeID{sid}}, func(ctx *Context) error {
			return ecs.Each(ctx.World, func(_ ecs.EntityID, sc *score) { sc.N += 5 })
		})
		if swap {
			require.NoError(t, s.Register(incS))
			require.NoError(t, s.Register(incC))
		} else {
			require.NoError(t, s.Register(incC))
			require.NoError(t, s.Register(incS))
		}
		for i := 0; i < 3; i++ {
			require.True(t, s.Tick(1).OK())
		}
		return w.Checksum()
	}
	assert.Equal(t, run(false), run(true))
}

type gravity struct{ G float32 }

func TestResourceAccessConflicts(t *testing.T) {
	w := ecs.NewWorld()
	g := ecs.ResourceOf[gravity]()
	s := New(w)
	require.NoError(t, s.RegisterFunc("read1", PhaseUpdate, Access{ResourceReads: []ecs.ResourceKey{g}}, noop))
	require.NoError(t, s.RegisterFunc("read2", PhaseUpdate, Access{ResourceReads: []ecs.ResourceKey{g}}, noop))
	require.NoError(t, s.RegisterFunc("write", PhaseUpdate, Access{ResourceWrites: []ecs.ResourceKey{g}}, noop))
	require.NoError(t, s.RegisterFunc("other", PhaseUpdate, Access{ResourceWrites: []ecs.ResourceKey{ecs.ResourceOf[Time]()}}, noop))

	plan, err := s.Plan(PhaseUpdate)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"read1", "read2", "other"}, {"write"}}, plan)
}

func TestSchedulerRefreshesTime(t *testing.T) {
	w := ecs.NewWorld()
	s := New(w)
	var seen []Time
	require.NoError(t, s.RegisterFunc("clock", PhaseUpdate, Access{ResourceReads: []ecs.ResourceKey{ecs.ResourceOf[Time]()}},
		func(ctx *Context) error {
			tm, err := ecs.Resource[Time](ctx.World)
			if err != nil {
				return err
			}
			seen = append(seen, *tm)
			return nil
		}))
	require.True(t, s.Tick(0.5).OK())
	require.True(t, s.Tick(0.25).OK())
	require.Len(t, seen, 2)
	assert.Equal(t, Time{Dt: 0.25, Tick: 2, Elapsed: 0.75}, seen[1])
}

func TestAddedQueriesSeeEachInsertOnce(t *testing.T) {
	w := ecs.NewWorld()
	pos, err := ecs.Register[position](w)
	require.NoError(t, err)
	before, err := w.Spawn()
	require.NoError(t, err)
	require.NoError(t, ecs.Add(w, before, position{}))

	s := New(w)
	var batches [][]ecs.EntityID
	require.NoError(t, s.RegisterFunc("watch", PhaseUpdate, Access{Reads: []ecs.ComponentTypeID{pos}},
		func(ctx *Context) error {
			it, err := ctx.Query(ecs.Query{Added: []ecs.ComponentTypeID{pos}})
			if err != nil {
				return err
			}
			var got []ecs.EntityID
			for c := range it.Chunks() {
				got = append(got, c.Entities()...)
			}
			batches = append(batches, got)
			return nil
		}))
	// Spawns after watch in the same phase; its entity shows up next tick.
	require.NoError(t, s.RegisterFunc("spawner", PhaseUpdate, Access{Exclusive: true},
		func(ctx *Context) error {
			if ctx.Tick == 1 {
				ctx.Commands.Spawn(position{X: 1})
			}
			return nil
		}, After("watch")))

	for i := 0; i < 4; i++ {
		require.True(t, s.Tick(0).OK())
		if i == 2 {
			e, err := w.Spawn()
			require.NoError(t, err)
			require.NoError(t, ecs.Add(w, e, position{}))
		}
	}
	require.Len(t, batches, 4)
	assert.Equal(t, []ecs.EntityID{before}, batches[0])
	assert.Len(t, batches[1], 1)
	assert.NotEqual(t, before, batches[1][0])
	assert.Empty(t, batches[2])
	assert.Len(t, batches[3], 1)
}
