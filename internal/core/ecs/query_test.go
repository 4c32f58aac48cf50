package ecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// populate builds entities across four archetypes:
// {position}, {position, velocity}, {position, health}, {velocity, health}.
func populate(t *testing.T, w *World) map[string][]EntityID {
	t.Helper()
	groups := map[string][]EntityID{}
	spawn := func(name string, values ...any) {
		e, err := w.Spawn()
		require.NoError(t, err)
		for _, v := range values {
			require.NoError(t, w.insertAny(e, v))
		}
		groups[name] = append(groups[name], e)
	}
	for i := 0; i < 5; i++ {
		spawn("p", position{X: float32(i)})
		spawn("pv", position{X: float32(i)}, velocity{Y: 1})
		spawn("ph", position{X: float32(i)}, health{HP: int32(i)})
		spawn("vh", velocity{Y: 2}, health{HP: 7})
	}
	return groups
}

func collect(t *testing.T, w *World, q Query) map[EntityID]bool {
	t.Helper()
	it, err := w.Query(q)
	require.NoError(t, err)
	out := map[EntityID]bool{}
	for c := range it.Chunks() {
		for _, e := range c.Entities() {
			require.False(t, out[e], "entity %s yielded twice", e)
			out[e] = true
		}
	}
	return out
}

func TestQueryIncludeExclude(t *testing.T) {
	w := NewWorld()
	groups := populate(t, w)
	pos, vel, hp := MustID[position](w), MustID[velocity](w), MustID[health](w)

	expect := func(names ...string) map[EntityID]bool {
		out := map[EntityID]bool{}
		for _, n := range names {
			for _, e := range groups[n] {
				out[e] = true
			}
		}
		return out
	}

	assert.Equal(t, expect("p", "pv", "ph"), collect(t, w, Query{Reads: []ComponentTypeID{pos}}))
	assert.Equal(t, expect("pv"), collect(t, w, Query{Reads: []ComponentTypeID{pos}, Writes: []ComponentTypeID{vel}}))
	assert.Equal(t, expect("p", "ph"), collect(t, w, Query{Reads: []ComponentTypeID{pos}, Excludes: []ComponentTypeID{vel}}))
	assert.Equal(t, expect("ph", "vh"), collect(t, w, Query{Writes: []ComponentTypeID{hp}}))
	assert.Equal(t, expect("p", "pv", "ph", "vh"), collect(t, w, Query{}))
	assert.Empty(t, collect(t, w, Query{Reads: []ComponentTypeID{pos, vel, hp}}))
}

func TestQuerySkipsEmptyArchetypes(t *testing.T) {
	w := NewWorld()
	e, _ := w.Spawn()
	require.NoError(t, Add(w, e, position{}))
	require.NoError(t, Add(w, e, velocity{}))

	it, err := w.Query(Query{Reads: []ComponentTypeID{MustID[position](w)}})
	require.NoError(t, err)
	var chunks int
	for it.Next() {
		chunks++
		assert.Positive(t, it.Chunk().Len())
	}
	assert.Equal(t, 1, chunks)
}

func TestQueryChunksLargeArchetypes(t *testing.T) {
	w := NewWorld()
	n := ChunkRows*2 + 10
	for i := 0; i < n; i++ {
		e, _ := w.Spawn()
		require.NoError(t, Add(w, e, health{HP: int32(i)}))
	}
	hp := MustID[health](w)
	it, err := w.Query(Query{Writes: []ComponentTypeID{hp}})
	require.NoError(t, err)

	var sizes []int
	sum := 0
	for it.Next() {
		c := it.Chunk()
		sizes = append(sizes, c.Len())
		for _, h := range ColumnOf[health](c, hp) {
			sum += int(h.HP)
		}
	}
	assert.Equal(t, []int{ChunkRows, ChunkRows, 10}, sizes)
	assert.Equal(t, n*(n-1)/2, sum)
}

func TestColumnOfWritesThrough(t *testing.T) {
	w := NewWorld()
	e, _ := w.Spawn()
	require.NoError(t, Add(w, e, position{X: 1}))
	pos := MustID[position](w)

	it, err := w.Query(Query{Writes: []ComponentTypeID{pos}})
	require.NoError(t, err)
	require.True(t, it.Next())
	col := ColumnOf[position](it.Chunk(), pos)
	col[0].X = 42

	p, err := Get[position](w, e)
	require.NoError(t, err)
	assert.Equal(t, float32(42), p.X)

	assert.Panics(t, func() { ColumnOf[velocity](it.Chunk(), pos) })
}

func TestViews(t *testing.T) {
	w := NewWorld()
	groups := populate(t, w)

	v, err := NewView2[position, velocity](w)
	require.NoError(t, err)
	assert.Equal(t, len(groups["pv"]), v.Count())
	for v.Next() {
		p, vel := v.Get()
		p.Y += vel.Y
	}
	for _, e := range groups["pv"] {
		p, _ := Get[position](w, e)
		assert.Equal(t, float32(1), p.Y)
	}

	excl, err := NewView[position](w, MustID[health](w))
	require.NoError(t, err)
	assert.Equal(t, len(groups["p"])+len(groups["pv"]), excl.Count())

	// A view picks up archetypes created after it was built.
	e, _ := w.Spawn()
	require.NoError(t, Add(w, e, position{}))
	require.NoError(t, Add(w, e, label{"late"}))
	excl.Reset()
	n := 0
	for excl.Next() {
		n++
	}
	assert.Equal(t, len(groups["p"])+len(groups["pv"])+1, n)

	total := 0
	require.NoError(t, Each3(w, func(_ EntityID, _ *velocity, h *health, _ *position) { total++ }))
	assert.Zero(t, total)
	require.NoError(t, Each2(w, func(_ EntityID, _ *velocity, h *health) { total += int(h.HP) }))
	assert.Equal(t, 5*7, total)
}

func TestCommandsApplyInOrder(t *testing.T) {
	w := NewWorld()
	e, _ := w.Spawn()
	require.NoError(t, Add(w, e, health{1}))
	gone, _ := w.Spawn()

	var cmds Commands
	cmds.Spawn(position{X: 1}, velocity{X: 2})
	cmds.Insert(e, health{9})
	cmds.Insert(e, position{})
	cmds.Despawn(gone)
	cmds.Despawn(gone)
	RemoveOf[position](&cmds, e)
	assert.Equal(t, 6, cmds.Len())

	err := cmds.Apply(w)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStaleHandle)
	assert.Zero(t, cmds.Len())

	h, err := Get[health](w, e)
	require.NoError(t, err)
	assert.Equal(t, int32(9), h.HP)
	assert.False(t, Has[position](w, e))
	assert.False(t, w.IsAlive(gone))

	v, err := NewView2[position, velocity](w)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Count())
}

func BenchmarkView2(b *testing.B) {
	w := NewWorld()
	for i := 0; i < 10000; i++ {
		e, _ := w.Spawn()
		_ = Add(w, e, position{})
		_ = Add(w, e, velocity{X: 1})
	}
	v, _ := NewView2[position, velocity](w)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v.Reset()
		for v.Next() {
			p, vel := v.Get()
			p.X += vel.X
		}
	}
}

func TestQueryAddedSince(t *testing.T) {
	w := NewWorld()
	groups := populate(t, w)
	pos := MustID[position](w)
	vel := MustID[velocity](w)

	all := collect(t, w, Query{Added: []ComponentTypeID{pos}})
	assert.Len(t, all, 15, "since 0 every component counts as added")

	since := w.ChangeTick()
	w.AdvanceChangeTick()
	assert.Empty(t, collect(t, w, Query{Added: []ComponentTypeID{pos}, Since: since}))

	// A late velocity moves the entity; its position keeps the old stamp.
	late := groups["p"][2]
	require.NoError(t, Add(w, late, velocity{X: 1}))
	fresh, err := w.Spawn()
	require.NoError(t, err)
	require.NoError(t, Add(w, fresh, position{}))

	assert.Equal(t, map[EntityID]bool{fresh: true},
		collect(t, w, Query{Added: []ComponentTypeID{pos}, Since: since}))
	assert.Equal(t, map[EntityID]bool{late: true},
		collect(t, w, Query{Reads: []ComponentTypeID{pos}, Added: []ComponentTypeID{vel}, Since: since}))

	stamp, err := w.AddedTick(late, vel)
	require.NoError(t, err)
	assert.Equal(t, since+1, stamp)
	stamp, err = w.AddedTick(late, pos)
	require.NoError(t, err)
	assert.Equal(t, since, stamp)
}

func TestQueryAddedSplitsChunks(t *testing.T) {
	w := NewWorld()
	var ids []EntityID
	for i := 0; i < 6; i++ {
		e, err := w.Spawn()
		require.NoError(t, err)
		require.NoError(t, Add(w, e, position{}))
		ids = append(ids, e)
	}
	since := w.ChangeTick()
	w.AdvanceChangeTick()
	pos := MustID[position](w)
	// Re-adding rows 1, 2 and 4 moves them to the end of the archetype.
	for _, i := range []int{1, 2, 4} {
		require.NoError(t, Remove[position](w, ids[i]))
		require.NoError(t, Add(w, ids[i], position{X: 1}))
	}

	it, err := w.Query(Query{Added: []ComponentTypeID{pos}, Since: since})
	require.NoError(t, err)
	var n int
	for c := range it.Chunks() {
		for row := 0; row < c.Len(); row++ {
			assert.Greater(t, c.AddedTick(pos, row), since)
			n++
		}
	}
	assert.Equal(t, 3, n)
}
