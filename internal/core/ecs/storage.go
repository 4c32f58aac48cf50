package ecs

import "go.uber.org/zap"

// archetypeFor returns the archetype for m, creating it on first sight.
func (w *World) archetypeFor(m mask) *archetype {
	if a, ok := w.byMask[m]; ok {
		return a
	}
	a := newArchetype(len(w.archetypes), m, &w.components, w.archCapacity)
	w.archetypes = append(w.archetypes, a)
	w.byMask[m] = a
	w.archVersion++
	w.log.Debug("archetype created",
		zap.Int("index", a.index),
		zap.Int("components", len(a.ids)),
	)
	return a
}

// addTarget follows (or creates) the cached transition src + {id}.
func (w *World) addTarget(src *archetype, id ComponentTypeID) *archetype {
	if dst, ok := src.addEdges[id]; ok {
		return dst
	}
	m := src.mask
	m.set(id)
	dst := w.archetypeFor(m)
	src.addEdges[id] = dst
	dst.removeEdges[id] = src
	return dst
}

// removeTarget follows (or creates) the cached transition src - {id}.
func (w *World) removeTarget(src *archetype, id ComponentTypeID) *archetype {
	if dst, ok := src.removeEdges[id]; ok {
		return dst
	}
	m := src.mask
	m.unset(id)
	dst := w.archetypeFor(m)
	src.removeEdges[id] = dst
	dst.addEdges[id] = src
	return dst
}

// moveEntity relocates e from its current archetype into dst and returns the
// new row. Shared values are copied; values of components dst lacks are
// dropped.
func (w *World) moveEntity(e EntityID, meta *entityMeta, dst *archetype) int {
	src, srcRow := meta.arch, meta.row
	dstRow := dst.pushRow(e)
	for i, id := range src.ids {
		sc := src.columns[i]
		if dc := dst.column(id); dc != nil {
			dc.copyRow(dstRow, sc, srcRow)
		} else {
			sc.drop(srcRow)
		}
	}
	w.removeRow(src, srcRow)
	meta.arch = dst
	meta.row = dstRow
	return dstRow
}

// removeRow swap-removes row from a. The last row fills the hole and its
// entity's back-pointer is updated. Drop hooks are the caller's job.
func (w *World) removeRow(a *archetype, row int) {
	last := len(a.entities) - 1
	if row != last {
		moved := a.entities[last]
		a.entities[row] = moved
		for _, c := range a.columns {
			c.copyRow(row, c, last)
		}
		if m, ok := w.entities.lookup(moved); ok {
			m.row = row
		}
	}
	for _, c := range a.columns {
		c.zero(last)
	}
	a.entities = a.entities[:last]
}

// dropRow runs every drop hook for row in a.
func dropRow(a *archetype, row int) {
	for _, c := range a.columns {
		c.drop(row)
	}
}
