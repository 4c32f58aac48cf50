package ecs

import (
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type position struct{ X, Y, Z float32 }
type velocity struct{ X, Y, Z float32 }
type health struct{ HP int32 }
type label struct{ Text string }
type tag struct{}

// outerPosition names the package-level position where a local type shadows it.
type outerPosition = position

func TestSpawnIDsAreDistinct(t *testing.T) {
	w := NewWorld()
	seen := make(map[EntityID]bool)
	for i := 0; i < 1000; i++ {
		e, err := w.Spawn()
		require.NoError(t, err)
		require.False(t, e.IsZero())
		require.False(t, seen[e], "duplicate id %s", e)
		seen[e] = true
	}
	assert.Equal(t, 1000, w.Len())
}

func TestDespawnInvalidatesEvenAfterReuse(t *testing.T) {
	w := NewWorld()
	e, err := w.Spawn()
	require.NoError(t, err)
	require.NoError(t, w.Despawn(e))
	assert.False(t, w.IsAlive(e))

	reused, err := w.Spawn()
	require.NoError(t, err)
	assert.Equal(t, e.Index(), reused.Index(), "slot should be recycled")
	assert.NotEqual(t, e, reused)
	assert.False(t, w.IsAlive(e))
	assert.True(t, w.IsAlive(reused))

	assert.ErrorIs(t, w.Despawn(e), ErrStaleHandle)
	assert.ErrorIs(t, Add(w, e, health{1}), ErrStaleHandle)
	require.NoError(t, Add(w, reused, health{1}))
	_, err = Get[health](w, e)
	assert.ErrorIs(t, err, ErrStaleHandle)
}

func TestFreeListIsLIFO(t *testing.T) {
	w := NewWorld()
	ids, err := w.SpawnBatch(3)
	require.NoError(t, err)
	require.NoError(t, w.Despawn(ids[0]))
	require.NoError(t, w.Despawn(ids[2]))
	e, err := w.Spawn()
	require.NoError(t, err)
	assert.Equal(t, ids[2].Index(), e.Index())
	assert.Equal(t, uint32(2), e.Generation())
}

func TestDuplicateAddKeepsFirstValue(t *testing.T) {
	w := NewWorld()
	e, _ := w.Spawn()
	require.NoError(t, Add(w, e, health{10}))
	assert.ErrorIs(t, Add(w, e, health{99}), ErrDuplicateComponent)
	h, err := Get[health](w, e)
	require.NoError(t, err)
	assert.Equal(t, int32(10), h.HP)
}

func TestAddGetRoundTrip(t *testing.T) {
	w := NewWorld()
	e, _ := w.Spawn()
	require.NoError(t, Add(w, e, position{1, 2, 3}))
	require.NoError(t, Add(w, e, label{"hero"}))
	require.NoError(t, Add(w, e, tag{}))

	p, err := Get[position](w, e)
	require.NoError(t, err)
	assert.Equal(t, position{1, 2, 3}, *p)
	l, err := Get[label](w, e)
	require.NoError(t, err)
	assert.Equal(t, "hero", l.Text)
	assert.True(t, Has[tag](w, e))

	id := MustID[position](w)
	b, err := w.ComponentBytes(e, id)
	require.NoError(t, err)
	assert.Len(t, b, 12)

	_, err = w.ComponentBytes(e, MustID[label](w))
	assert.ErrorIs(t, err, ErrNotPlainData)
}

func TestRemoveComponent(t *testing.T) {
	w := NewWorld()
	e, _ := w.Spawn()
	require.NoError(t, Add(w, e, position{1, 2, 3}))
	require.NoError(t, Add(w, e, velocity{4, 5, 6}))

	require.NoError(t, Remove[velocity](w, e))
	assert.False(t, Has[velocity](w, e))
	p, err := Get[position](w, e)
	require.NoError(t, err)
	assert.Equal(t, position{1, 2, 3}, *p)

	assert.ErrorIs(t, Remove[velocity](w, e), ErrMissingComponent)
	_, err = Get[velocity](w, e)
	assert.ErrorIs(t, err, ErrMissingComponent)
}

func TestSwapRemoveFixesMovedRow(t *testing.T) {
	w := NewWorld()
	ids, err := w.SpawnBatch(3)
	require.NoError(t, err)
	for i, e := range ids {
		require.NoError(t, Add(w, e, health{int32(i)}))
	}
	require.NoError(t, w.Despawn(ids[0]))

	for i, e := range ids[1:] {
		h, err := Get[health](w, e)
		require.NoError(t, err)
		assert.Equal(t, int32(i+1), h.HP)
	}
}

func TestDropHookRunsOnRemovalOnly(t *testing.T) {
	w := NewWorld()
	var dropped []int32
	_, err := Register[health](w, WithDrop(func(h *health) { dropped = append(dropped, h.HP) }))
	require.NoError(t, err)

	a, _ := w.Spawn()
	b, _ := w.Spawn()
	require.NoError(t, Add(w, a, health{1}))
	require.NoError(t, Add(w, b, health{2}))

	require.NoError(t, Add(w, a, position{}))
	assert.Empty(t, dropped, "moving between archetypes must not drop")

	require.NoError(t, Remove[health](w, a))
	require.NoError(t, w.Despawn(b))
	assert.Equal(t, []int32{1, 2}, dropped)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	w := NewWorld()
	u := uuid.New()
	first, err := Register[position](w, WithUUID(u))
	require.NoError(t, err)
	again, err := Register[position](w)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	_, err = Register[velocity](w, WithUUID(u))
	assert.ErrorIs(t, err, ErrDuplicateComponentType)
	_, err = Register[velocity](w, WithName("position"))
	assert.ErrorIs(t, err, ErrDuplicateComponentType)

	got, ok := w.LookupComponentUUID(u)
	require.True(t, ok)
	assert.Equal(t, first, got)
}

func TestSameNamedTypesRegisterSeparately(t *testing.T) {
	type position struct{ Lat, Lon float64 }

	w := NewWorld()
	e, err := w.Spawn()
	require.NoError(t, err)
	require.NoError(t, Add(w, e, velocity{X: 1}))
	require.NoError(t, Add(w, e, outerPosition{X: 1, Y: 2}))
	require.NoError(t, w.insertAny(e, position{Lat: 3, Lon: 4}))

	outer, err := Get[outerPosition](w, e)
	require.NoError(t, err)
	assert.Equal(t, float32(2), outer.Y)
	inner, err := Get[position](w, e)
	require.NoError(t, err)
	assert.Equal(t, 4.0, inner.Lon)

	outerID := MustID[outerPosition](w)
	innerID := MustID[position](w)
	assert.NotEqual(t, outerID, innerID)
	got, ok := w.LookupComponent("position")
	require.True(t, ok)
	assert.Equal(t, outerID, got, "the short name stays with the first type")
	got, ok = w.LookupComponent(qualifiedName(reflect.TypeFor[outerPosition]()))
	require.True(t, ok)
	assert.Equal(t, outerID, got)
	info, ok := w.ComponentInfo(innerID)
	require.True(t, ok)
	assert.NotEqual(t, "position", info.Name)
}

func TestRawComponents(t *testing.T) {
	w := NewWorld()
	id, err := w.RegisterRawComponent("Raw", uuid.Nil, 8, 4)
	require.NoError(t, err)
	_, err = w.RegisterRawComponent("Bad", uuid.Nil, 6, 4)
	assert.ErrorIs(t, err, ErrInvalidLayout)

	e, _ := w.Spawn()
	assert.ErrorIs(t, w.AddComponentBytes(e, id, []byte{1, 2, 3}), ErrInvalidLayout)
	assert.False(t, w.HasComponent(e, id))

	require.NoError(t, w.AddComponentBytes(e, id, []byte{1, 2, 3, 4, 5, 6, 7, 8}))
	require.NoError(t, w.SetComponentBytes(e, id, []byte{8, 7, 6, 5, 4, 3, 2, 1}))
	b, err := w.ComponentBytes(e, id)
	require.NoError(t, err)
	assert.Equal(t, []byte{8, 7, 6, 5, 4, 3, 2, 1}, b)
}

func TestUnknownComponentType(t *testing.T) {
	w := NewWorld()
	e, _ := w.Spawn()
	assert.ErrorIs(t, w.AddComponentBytes(e, 42, []byte{}), ErrUnknownComponentType)
	assert.ErrorIs(t, w.RemoveComponent(e, 42), ErrUnknownComponentType)
	_, err := w.Query(Query{Reads: []ComponentTypeID{42}})
	assert.ErrorIs(t, err, ErrUnknownComponentType)
}

func TestFrozenWorldRejectsStructuralChanges(t *testing.T) {
	w := NewWorld()
	e, _ := w.Spawn()
	require.NoError(t, Add(w, e, health{1}))

	w.Freeze()
	_, err := w.Spawn()
	assert.ErrorIs(t, err, ErrWorldLocked)
	assert.ErrorIs(t, w.Despawn(e), ErrWorldLocked)
	assert.ErrorIs(t, Add(w, e, position{}), ErrWorldLocked)
	assert.NoError(t, Set(w, e, health{5}), "overwrite stays allowed")
	w.Thaw()

	h, err := Get[health](w, e)
	require.NoError(t, err)
	assert.Equal(t, int32(5), h.HP)
}

func TestClearAndDestroy(t *testing.T) {
	w := NewWorld()
	ids, _ := w.SpawnBatch(10)
	for _, e := range ids {
		require.NoError(t, Add(w, e, health{1}))
	}
	archs := w.ArchetypeCount()
	require.NoError(t, w.Clear())
	assert.Zero(t, w.Len())
	assert.Equal(t, archs, w.ArchetypeCount())
	for _, e := range ids {
		assert.False(t, w.IsAlive(e))
	}

	require.NoError(t, w.Destroy())
	require.NoError(t, w.Destroy())
	_, err := w.Spawn()
	assert.ErrorIs(t, err, ErrWorldDestroyed)
}

func TestChecksumIgnoresArchetypeCreationOrder(t *testing.T) {
	build := func(flip bool) *World {
		w := NewWorld()
		_, _ = Register[position](w)
		_, _ = Register[health](w)
		a, _ := w.Spawn()
		b, _ := w.Spawn()
		if flip {
			require.NoError(t, Add(w, b, health{2}))
			require.NoError(t, Add(w, a, position{1, 1, 1}))
		} else {
			require.NoError(t, Add(w, a, position{1, 1, 1}))
			require.NoError(t, Add(w, b, health{2}))
		}
		return w
	}
	assert.Equal(t, build(false).Checksum(), build(true).Checksum())

	w := build(false)
	before := w.Checksum()
	require.NoError(t, Set(w, NewEntityID(1, 1), health{3}))
	assert.NotEqual(t, before, w.Checksum())
}

func BenchmarkAddRemove(b *testing.B) {
	w := NewWorld()
	e, _ := w.Spawn()
	_, _ = Register[position](w)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = Add(w, e, position{})
		_ = Remove[position](w, e)
	}
}
