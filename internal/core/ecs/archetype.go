package ecs

// archetype groups all entities that share an identical component set.
// Its mask never changes after creation; entities move between archetypes
// instead.
type archetype struct {
	index    int
	mask     mask
	ids      []ComponentTypeID
	columns  []*column
	slots    [MaxComponentTypes]int16
	entities []EntityID

	addEdges    map[ComponentTypeID]*archetype
	removeEdges map[ComponentTypeID]*archetype
}

func newArchetype(index int, m mask, reg *componentRegistry, capacity int) *archetype {
	a := &archetype{
		index:       index,
		mask:        m,
		ids:         m.ids(),
		entities:    make([]EntityID, 0, capacity),
		addEdges:    make(map[ComponentTypeID]*archetype),
		removeEdges: make(map[ComponentTypeID]*archetype),
	}
	for i := range a.slots {
		a.slots[i] = -1
	}
	a.columns = make([]*column, len(a.ids))
	for i, id := range a.ids {
		info, _ := reg.info(id)
		a.columns[i] = newColumn(info, capacity)
		a.slots[id] = int16(i)
	}
	return a
}

func (a *archetype) len() int { return len(a.entities) }

func (a *archetype) column(id ComponentTypeID) *column {
	s := a.slots[id]
	if s < 0 {
		return nil
	}
	return a.columns[s]
}

// pushRow appends e and returns its row. Column slots for the row hold zero
// values until the caller fills them.
func (a *archetype) pushRow(e EntityID) int {
	row := len(a.entities)
	for _, c := range a.columns {
		c.reserveKeep(row+1, row)
	}
	a.entities = append(a.entities, e)
	return row
}
