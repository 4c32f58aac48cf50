package ecs

import "math/bits"

// mask is a set of up to 256 component type ids. It keys archetypes and
// drives query matching.
type mask [4]uint64

func (m *mask) set(id ComponentTypeID) {
	m[id>>6] |= uint64(1) << (id & 63)
}

func (m *mask) unset(id ComponentTypeID) {
	m[id>>6] &^= uint64(1) << (id & 63)
}

func (m mask) has(id ComponentTypeID) bool {
	return m[id>>6]&(uint64(1)<<(id&63)) != 0
}

// contains reports whether every bit of sub is also set in m.
func (m mask) contains(sub mask) bool {
	return m[0]&sub[0] == sub[0] &&
		m[1]&sub[1] == sub[1] &&
		m[2]&sub[2] == sub[2] &&
		m[3]&sub[3] == sub[3]
}

func (m mask) intersects(o mask) bool {
	return m[0]&o[0] != 0 || m[1]&o[1] != 0 || m[2]&o[2] != 0 || m[3]&o[3] != 0
}

func (m mask) count() int {
	return bits.OnesCount64(m[0]) + bits.OnesCount64(m[1]) +
		bits.OnesCount64(m[2]) + bits.OnesCount64(m[3])
}

// ids returns the set members in ascending order.
func (m mask) ids() []ComponentTypeID {
	out := make([]ComponentTypeID, 0, m.count())
	for w, word := range m {
		for word != 0 {
			b := bits.TrailingZeros64(word)
			out = append(out, ComponentTypeID(w*64+b))
			word &= word - 1
		}
	}
	return out
}

// less orders masks by their highest differing word, giving archetypes a
// canonical order independent of creation order.
func (m mask) less(o mask) bool {
	for i := len(m) - 1; i >= 0; i-- {
		if m[i] != o[i] {
			return m[i] < o[i]
		}
	}
	return false
}

func maskOf(ids []ComponentTypeID) mask {
	var m mask
	for _, id := range ids {
		m.set(id)
	}
	return m
}
