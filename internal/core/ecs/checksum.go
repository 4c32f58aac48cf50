package ecs

import (
	"encoding/binary"
	"slices"

	"github.com/cespare/xxhash/v2"
)

// Checksum fingerprints the world's live state. Two worlds holding the same
// entities with the same plain-data component values hash equal regardless
// of archetype creation order. Components holding Go pointers contribute
// only their presence.
func (w *World) Checksum() uint64 {
	h := xxhash.New()
	var buf [8]byte

	archs := make([]*archetype, 0, len(w.archetypes))
	for _, a := range w.archetypes {
		if a.len() > 0 {
			archs = append(archs, a)
		}
	}
	slices.SortFunc(archs, func(a, b *archetype) int {
		switch {
		case a.mask.less(b.mask):
			return -1
		case b.mask.less(a.mask):
			return 1
		}
		return 0
	})

	rows := make([]int, 0, 64)
	for _, a := range archs {
		for _, word := range a.mask {
			binary.LittleEndian.PutUint64(buf[:], word)
			h.Write(buf[:])
		}
		rows = rows[:0]
		for i := range a.entities {
			rows = append(rows, i)
		}
		slices.SortFunc(rows, func(x, y int) int {
			ex, ey := a.entities[x], a.entities[y]
			switch {
			case ex < ey:
				return -1
			case ex > ey:
				return 1
			}
			return 0
		})
		for _, row := range rows {
			binary.LittleEndian.PutUint64(buf[:], uint64(a.entities[row]))
			h.Write(buf[:])
			for _, c := range a.columns {
				if c.info.Plain {
					h.Write(c.bytes(row))
				}
			}
		}
	}
	return h.Sum64()
}
