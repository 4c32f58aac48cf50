package inspect

import (
	"errors"
	"strings"
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecsbridge/ecscore/internal/component"
	"github.com/ecsbridge/ecscore/internal/core/ecs"
	"github.com/ecsbridge/ecscore/internal/core/system"
)

func fixture(t *testing.T) (*ecs.World, *system.Scheduler) {
	t.Helper()
	w := ecs.NewWorld()
	e, err := w.Spawn()
	require.NoError(t, err)
	require.NoError(t, ecs.Add(w, e, component.IdentityTransform()))
	require.NoError(t, ecs.Add(w, e, component.Name{Value: "player"}))

	s := system.New(w)
	tr := ecs.MustID[component.Transform](w)
	require.NoError(t, s.RegisterFunc("move", system.PhaseUpdate, system.Access{Writes: []ecs.ComponentTypeID{tr}},
		func(*system.Context) error { return nil }))
	require.NoError(t, s.RegisterFunc("broken", system.PhaseCleanup, system.Access{},
		func(*system.Context) error { return errors.New("boom") }))
	s.Tick(0.016)
	return w, s
}

func TestLines(t *testing.T) {
	w, s := fixture(t)
	text := strings.Join(Lines(w, s), "\n")
	assert.Contains(t, text, "entities 1")
	assert.Contains(t, text, "Transform")
	assert.Contains(t, text, "typed")
	assert.Contains(t, text, "Transform, Name")
	assert.Contains(t, text, "[move]")
	assert.Contains(t, text, "boom")
}

func screenText(scr tcell.SimulationScreen) string {
	cells, width, _ := scr.GetContents()
	var b strings.Builder
	for i, c := range cells {
		if i > 0 && i%width == 0 {
			b.WriteByte('\n')
		}
		if len(c.Runes) > 0 {
			b.WriteRune(c.Runes[0])
		}
	}
	return b.String()
}

func TestInspectorDrawsAndQuits(t *testing.T) {
	w, s := fixture(t)
	scr := tcell.NewSimulationScreen("UTF-8")
	require.NoError(t, scr.Init())
	defer scr.Fini()
	scr.SetSize(60, 12)

	in := New(scr, w, s)
	in.Draw()
	assert.Contains(t, screenText(scr), "entities 1")

	assert.True(t, in.HandleEvent(tcell.NewEventKey(tcell.KeyDown, 0, tcell.ModNone)))
	in.Draw()
	assert.Equal(t, 1, in.scroll)
	assert.NotContains(t, screenText(scr), "entities 1")

	assert.False(t, in.HandleEvent(tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone)))
	assert.False(t, in.HandleEvent(tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone)))
}
