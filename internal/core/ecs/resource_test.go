package ecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gravity struct{ G float32 }
type input struct{ Fire bool }

func TestResources(t *testing.T) {
	w := NewWorld()
	_, err := Resource[gravity](w)
	require.ErrorIs(t, err, ErrMissingResource)

	require.NoError(t, InsertResource(w, gravity{G: -9.8}))
	g, err := Resource[gravity](w)
	require.NoError(t, err)
	assert.Equal(t, float32(-9.8), g.G)

	g.G = -1.6
	again, err := Resource[gravity](w)
	require.NoError(t, err)
	assert.Equal(t, float32(-1.6), again.G, "the pointer writes through")

	require.NoError(t, InsertResource(w, gravity{G: 3}))
	again, err = Resource[gravity](w)
	require.NoError(t, err)
	assert.Equal(t, float32(3), again.G)

	require.NoError(t, InitResource[input](w))
	in, err := Resource[input](w)
	require.NoError(t, err)
	in.Fire = true
	require.NoError(t, InitResource[input](w))
	assert.True(t, in.Fire, "init keeps an existing value")
	assert.Equal(t, 2, w.ResourceCount())

	require.NoError(t, RemoveResource[gravity](w))
	assert.False(t, HasResource[gravity](w))
	assert.ErrorIs(t, RemoveResource[gravity](w), ErrMissingResource)
}

func TestResourcesFollowWorldLocks(t *testing.T) {
	w := NewWorld()
	require.NoError(t, InsertResource(w, gravity{}))

	w.Freeze()
	assert.ErrorIs(t, InsertResource(w, input{}), ErrWorldLocked)
	assert.ErrorIs(t, RemoveResource[gravity](w), ErrWorldLocked)
	_, err := Resource[gravity](w)
	assert.NoError(t, err, "reads are fine while frozen")

	var c Commands
	SetResource(&c, input{Fire: true})
	w.Thaw()
	require.NoError(t, c.Apply(w))
	in, err := Resource[input](w)
	require.NoError(t, err)
	assert.True(t, in.Fire)

	require.NoError(t, w.Destroy())
	_, err = Resource[input](w)
	assert.ErrorIs(t, err, ErrWorldDestroyed)
}

func TestResourceKeys(t *testing.T) {
	assert.Equal(t, ResourceOf[gravity](), ResourceOf[gravity]())
	assert.NotEqual(t, ResourceOf[gravity](), ResourceOf[input]())
	assert.Equal(t, "ecs.gravity", ResourceOf[gravity]().String())
}
