// Package inspect renders a live text view of a world and its schedule.
package inspect

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"github.com/ecsbridge/ecscore/internal/core/ecs"
	"github.com/ecsbridge/ecscore/internal/core/system"
)

var phases = []system.Phase{
	system.PhaseStartup,
	system.PhasePreUpdate,
	system.PhaseUpdate,
	system.PhasePostUpdate,
	system.PhaseCleanup,
}

// Lines renders the inspector text for w and s.
func Lines(w *ecs.World, s *system.Scheduler) []string {
	rep := s.LastReport()
	out := []string{
		fmt.Sprintf("world %s  entities %d  archetypes %d", w.ID(), w.Len(), w.ArchetypeCount()),
		fmt.Sprintf("tick %d  dt %.4f  took %s  systems %d", rep.Tick, rep.Dt, rep.Duration, rep.Executed),
		"",
		"components",
	}
	for _, c := range w.ComponentTypes() {
		kind := "typed"
		if c.Plain {
			kind = "plain"
		}
		out = append(out, fmt.Sprintf("  %3d %-20s %4dB %s", c.ID, c.Name, c.Size, kind))
	}

	out = append(out, "", "archetypes")
	for _, a := range w.Archetypes() {
		if a.Len == 0 {
			continue
		}
		names := make([]string, len(a.Components))
		for i, id := range a.Components {
			info, _ := w.ComponentInfo(id)
			names[i] = info.Name
		}
		out = append(out, fmt.Sprintf("  #%-3d %6d  %s", a.Index, a.Len, strings.Join(names, ", ")))
	}

	out = append(out, "", "schedule")
	for _, p := range phases {
		plan, err := s.Plan(p)
		if err != nil {
			out = append(out, fmt.Sprintf("  %-12s error: %v", p, err))
			continue
		}
		if len(plan) == 0 {
			continue
		}
		batches := make([]string, len(plan))
		for i, b := range plan {
			batches[i] = "[" + strings.Join(b, " ") + "]"
		}
		out = append(out, fmt.Sprintf("  %-12s %s", p, strings.Join(batches, " ")))
	}

	if rep.Failure != nil || len(rep.Diagnostics) > 0 {
		out = append(out, "", "failures")
		if rep.Failure != nil {
			out = append(out, "  "+rep.Failure.Error())
		}
		for _, d := range rep.Diagnostics {
			out = append(out, "  "+d.Error())
		}
	}
	return out
}

// Inspector draws Lines onto a tcell screen.
type Inspector struct {
	screen tcell.Screen
	world  *ecs.World
	sched  *system.Scheduler
	scroll int
}

func New(screen tcell.Screen, w *ecs.World, s *system.Scheduler) *Inspector {
	return &Inspector{screen: screen, world: w, sched: s}
}

var (
	styleText   = tcell.StyleDefault
	styleHeader = tcell.StyleDefault.Bold(true)
	styleFail   = tcell.StyleDefault.Foreground(tcell.ColorRed)
)

// Draw repaints the screen.
func (in *Inspector) Draw() {
	in.screen.Clear()
	lines := Lines(in.world, in.sched)
	sw, sh := in.screen.Size()
	in.scroll = max(0, min(in.scroll, len(lines)-sh))
	failing := false
	for y := 0; y < sh && in.scroll+y < len(lines); y++ {
		line := lines[in.scroll+y]
		st := styleText
		switch {
		case line == "failures":
			failing = true
			st = styleHeader
		case line != "" && !strings.HasPrefix(line, " "):
			st = styleHeader
		case failing:
			st = styleFail
		}
		putText(in.screen, 0, y, runewidth.Truncate(line, sw, "…"), st)
	}
	in.screen.Show()
}

// HandleEvent applies a key press. It reports false when the viewer
// should close.
func (in *Inspector) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			return false
		case tcell.KeyUp:
			in.scroll--
		case tcell.KeyDown:
			in.scroll++
		case tcell.KeyRune:
			if ev.Rune() == 'q' {
				return false
			}
		}
	case *tcell.EventResize:
		in.screen.Sync()
	}
	return true
}

// putText writes s at (x, y), advancing by each rune's display width.
func putText(scr tcell.Screen, x, y int, s string, st tcell.Style) {
	sw, _ := scr.Size()
	for _, r := range s {
		if x >= sw {
			break
		}
		scr.SetContent(x, y, r, nil, st)
		x += max(runewidth.RuneWidth(r), 1)
	}
}
