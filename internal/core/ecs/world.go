package ecs

import (
	"fmt"
	"reflect"
	"sync/atomic"
	"unsafe"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var worldSerial atomic.Uint32

// World is the top-level ECS container. It owns the entity registry, the
// component registry and every archetype with its columns.
//
// A World is not safe for concurrent structural mutation. While frozen (the
// scheduler freezes it for the duration of a phase) reads and in-place
// component writes may proceed from several goroutines, and structural
// calls fail with ErrWorldLocked.
type World struct {
	id     uuid.UUID
	serial uint32
	log    *zap.Logger

	components componentRegistry
	entities   entityRegistry

	archetypes   []*archetype
	byMask       map[mask]*archetype
	empty        *archetype
	archVersion  uint64
	archCapacity int

	// changeTick stamps component insertions for Added queries.
	changeTick uint64
	resources  map[reflect.Type]any

	frozen    atomic.Bool
	destroyed bool
}

// Option configures a World.
type Option func(*worldOptions)

type worldOptions struct {
	capacity int
	log      *zap.Logger
}

// WithCapacity presizes the entity registry.
func WithCapacity(n int) Option {
	return func(o *worldOptions) { o.capacity = n }
}

// WithLogger sets the logger used for lifecycle and archetype diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(o *worldOptions) { o.log = l }
}

func NewWorld(opts ...Option) *World {
	o := worldOptions{capacity: 1024, log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	w := &World{
		id:           uuid.New(),
		serial:       worldSerial.Add(1),
		log:          o.log,
		components:   newComponentRegistry(),
		entities:     newEntityRegistry(o.capacity),
		byMask:       make(map[mask]*archetype, 32),
		archCapacity: 16,
		changeTick:   1,
		resources:    make(map[reflect.Type]any),
	}
	w.empty = w.archetypeFor(mask{})
	w.log.Debug("world created", zap.Stringer("world", w.id), zap.Uint32("serial", w.serial))
	return w
}

// ID returns the process-unique instance id.
func (w *World) ID() uuid.UUID { return w.id }

// Serial is a small per-process counter, distinct for every world created.
func (w *World) Serial() uint32 { return w.serial }

func (w *World) Logger() *zap.Logger { return w.log }

// Freeze forbids structural changes until Thaw.
func (w *World) Freeze()      { w.frozen.Store(true) }
func (w *World) Thaw()        { w.frozen.Store(false) }
func (w *World) Frozen() bool { return w.frozen.Load() }

func (w *World) Destroyed() bool { return w.destroyed }

// ChangeTick is the stamp the next component insertion receives. It starts
// at 1, so a query with Since 0 sees every component as added.
func (w *World) ChangeTick() uint64 { return w.changeTick }

// AdvanceChangeTick moves insertions made from now on past every stamp
// handed out so far and returns the new tick. The scheduler calls it after
// each phase's systems ran, before their commands apply.
func (w *World) AdvanceChangeTick() uint64 {
	w.changeTick++
	return w.changeTick
}

func (w *World) mutable() error {
	if w.destroyed {
		return ErrWorldDestroyed
	}
	if w.frozen.Load() {
		return ErrWorldLocked
	}
	return nil
}

// ---------- entities ----------

// Spawn creates an entity with no components.
func (w *World) Spawn() (EntityID, error) {
	if err := w.mutable(); err != nil {
		return 0, fmt.Errorf("spawn: %w", err)
	}
	return w.spawn(), nil
}

func (w *World) spawn() EntityID {
	e, meta := w.entities.allocate()
	meta.arch = w.empty
	meta.row = w.empty.pushRow(e)
	return e
}

// SpawnBatch creates n empty entities.
func (w *World) SpawnBatch(n int) ([]EntityID, error) {
	if err := w.mutable(); err != nil {
		return nil, fmt.Errorf("spawn batch: %w", err)
	}
	out := make([]EntityID, n)
	for i := range out {
		out[i] = w.spawn()
	}
	return out, nil
}

// Despawn removes e and all its components. The slot is recycled with a new
// generation, so e stays invalid forever.
func (w *World) Despawn(e EntityID) error {
	if err := w.mutable(); err != nil {
		return fmt.Errorf("despawn %s: %w", e, err)
	}
	meta, ok := w.entities.lookup(e)
	if !ok {
		return fmt.Errorf("despawn %s: %w", e, ErrStaleHandle)
	}
	dropRow(meta.arch, meta.row)
	w.removeRow(meta.arch, meta.row)
	w.entities.release(e)
	return nil
}

func (w *World) IsAlive(e EntityID) bool {
	if w.destroyed {
		return false
	}
	_, ok := w.entities.lookup(e)
	return ok
}

// Len returns the number of live entities.
func (w *World) Len() int { return w.entities.live }

// Clear despawns every entity. Archetypes and registered types survive.
func (w *World) Clear() error {
	if err := w.mutable(); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	w.clear()
	return nil
}

func (w *World) clear() {
	for _, a := range w.archetypes {
		for row, e := range a.entities {
			dropRow(a, row)
			for _, c := range a.columns {
				c.zero(row)
			}
			w.entities.release(e)
		}
		a.entities = a.entities[:0]
	}
}

// Destroy drops every stored value and releases storage. Any later call on
// the world fails with ErrWorldDestroyed.
func (w *World) Destroy() error {
	if w.destroyed {
		return nil
	}
	if w.frozen.Load() {
		return fmt.Errorf("destroy: %w", ErrWorldLocked)
	}
	n := w.entities.live
	w.clear()
	w.archetypes = nil
	w.byMask = nil
	w.empty = nil
	w.resources = nil
	w.destroyed = true
	w.log.Debug("world destroyed", zap.Stringer("world", w.id), zap.Int("entities", n))
	return nil
}

// ---------- component registry ----------

// RegisterComponentType registers t. Registering an already known type
// returns its id and is allowed while frozen.
func (w *World) RegisterComponentType(t reflect.Type, opts ...ComponentOption) (ComponentTypeID, error) {
	if id, ok := w.components.byType[t]; ok && !w.destroyed {
		return id, nil
	}
	if err := w.mutable(); err != nil {
		return 0, fmt.Errorf("register %s: %w", t, err)
	}
	return w.components.register(t, opts...)
}

// RegisterRawComponent registers a plain-data type known only by layout.
func (w *World) RegisterRawComponent(name string, id uuid.UUID, size, align uintptr) (ComponentTypeID, error) {
	if err := w.mutable(); err != nil {
		return 0, fmt.Errorf("register %s: %w", name, err)
	}
	return w.components.registerRaw(name, id, size, align)
}

func (w *World) ComponentInfo(id ComponentTypeID) (ComponentInfo, bool) {
	info, ok := w.components.info(id)
	if !ok {
		return ComponentInfo{}, false
	}
	return *info, true
}

func (w *World) LookupComponent(name string) (ComponentTypeID, bool) {
	id, ok := w.components.byName[name]
	return id, ok
}

func (w *World) LookupComponentUUID(u uuid.UUID) (ComponentTypeID, bool) {
	id, ok := w.components.byUUID[u]
	return id, ok
}

func (w *World) LookupComponentType(t reflect.Type) (ComponentTypeID, bool) {
	id, ok := w.components.byType[t]
	return id, ok
}

// ComponentTypes lists registered types in id order.
func (w *World) ComponentTypes() []ComponentInfo {
	out := make([]ComponentInfo, len(w.components.infos))
	copy(out, w.components.infos)
	return out
}

// ---------- components ----------

// insert moves e into the archetype that adds id and returns the (zeroed)
// destination slot.
func (w *World) insert(e EntityID, id ComponentTypeID) (*column, int, error) {
	if err := w.mutable(); err != nil {
		return nil, 0, err
	}
	meta, ok := w.entities.lookup(e)
	if !ok {
		return nil, 0, ErrStaleHandle
	}
	if !w.components.known(id) {
		return nil, 0, ErrUnknownComponentType
	}
	if meta.arch.mask.has(id) {
		return nil, 0, ErrDuplicateComponent
	}
	dst := w.addTarget(meta.arch, id)
	row := w.moveEntity(e, meta, dst)
	col := dst.column(id)
	col.added[row] = w.changeTick
	return col, row, nil
}

// slot locates the stored value of id on e.
func (w *World) slot(e EntityID, id ComponentTypeID) (*column, int, error) {
	if w.destroyed {
		return nil, 0, ErrWorldDestroyed
	}
	meta, ok := w.entities.lookup(e)
	if !ok {
		return nil, 0, ErrStaleHandle
	}
	if !w.components.known(id) {
		return nil, 0, ErrUnknownComponentType
	}
	c := meta.arch.column(id)
	if c == nil {
		return nil, 0, ErrMissingComponent
	}
	return c, meta.row, nil
}

func (w *World) checkValue(id ComponentTypeID, v reflect.Value) error {
	info, ok := w.components.info(id)
	if !ok {
		return ErrUnknownComponentType
	}
	if !v.IsValid() || !v.Type().AssignableTo(info.Type) {
		return fmt.Errorf("%s: %w", info.Name, ErrTypeMismatch)
	}
	return nil
}

func (w *World) checkBytes(id ComponentTypeID, b []byte) error {
	info, ok := w.components.info(id)
	if !ok {
		return ErrUnknownComponentType
	}
	if !info.Plain {
		return fmt.Errorf("%s: %w", info.Name, ErrNotPlainData)
	}
	if uintptr(len(b)) != info.Size {
		return fmt.Errorf("%s: got %d bytes, want %d: %w", info.Name, len(b), info.Size, ErrInvalidLayout)
	}
	return nil
}

// AddComponentValue attaches v as component id. A duplicate add fails and
// leaves the stored value unchanged.
func (w *World) AddComponentValue(e EntityID, id ComponentTypeID, v reflect.Value) error {
	if err := w.checkValue(id, v); err != nil {
		return fmt.Errorf("add component to %s: %w", e, err)
	}
	c, row, err := w.insert(e, id)
	if err != nil {
		return fmt.Errorf("add component %d to %s: %w", id, e, err)
	}
	c.value(row).Set(v)
	return nil
}

// SetComponentValue overwrites component id on e, adding it when absent.
// Overwriting is allowed while the world is frozen; adding is not.
func (w *World) SetComponentValue(e EntityID, id ComponentTypeID, v reflect.Value) error {
	if err := w.checkValue(id, v); err != nil {
		return fmt.Errorf("set component on %s: %w", e, err)
	}
	c, row, err := w.slot(e, id)
	if err == nil {
		c.value(row).Set(v)
		return nil
	}
	if err != ErrMissingComponent {
		return fmt.Errorf("set component %d on %s: %w", id, e, err)
	}
	return w.AddComponentValue(e, id, v)
}

// AddComponentBytes attaches a plain-data component from its raw bytes.
func (w *World) AddComponentBytes(e EntityID, id ComponentTypeID, b []byte) error {
	if err := w.checkBytes(id, b); err != nil {
		return fmt.Errorf("add component to %s: %w", e, err)
	}
	c, row, err := w.insert(e, id)
	if err != nil {
		return fmt.Errorf("add component %d to %s: %w", id, e, err)
	}
	copy(c.bytes(row), b)
	return nil
}

// SetComponentBytes overwrites a plain-data component, adding it when absent.
func (w *World) SetComponentBytes(e EntityID, id ComponentTypeID, b []byte) error {
	if err := w.checkBytes(id, b); err != nil {
		return fmt.Errorf("set component on %s: %w", e, err)
	}
	c, row, err := w.slot(e, id)
	if err == nil {
		copy(c.bytes(row), b)
		return nil
	}
	if err != ErrMissingComponent {
		return fmt.Errorf("set component %d on %s: %w", id, e, err)
	}
	return w.AddComponentBytes(e, id, b)
}

// RemoveComponent detaches id from e and runs its drop hook.
func (w *World) RemoveComponent(e EntityID, id ComponentTypeID) error {
	if err := w.mutable(); err != nil {
		return fmt.Errorf("remove component %d from %s: %w", id, e, err)
	}
	meta, ok := w.entities.lookup(e)
	if !ok {
		return fmt.Errorf("remove component %d from %s: %w", id, e, ErrStaleHandle)
	}
	if !w.components.known(id) {
		return fmt.Errorf("remove component %d from %s: %w", id, e, ErrUnknownComponentType)
	}
	if !meta.arch.mask.has(id) {
		return fmt.Errorf("remove component %d from %s: %w", id, e, ErrMissingComponent)
	}
	w.moveEntity(e, meta, w.removeTarget(meta.arch, id))
	return nil
}

func (w *World) HasComponent(e EntityID, id ComponentTypeID) bool {
	_, _, err := w.slot(e, id)
	return err == nil
}

// ComponentPointer returns the address of e's component id. The pointer is
// invalidated by any structural change to e's archetype.
func (w *World) ComponentPointer(e EntityID, id ComponentTypeID) (unsafe.Pointer, error) {
	c, row, err := w.slot(e, id)
	if err != nil {
		return nil, fmt.Errorf("get component %d of %s: %w", id, e, err)
	}
	return c.ptr(row), nil
}

// ComponentBytes returns a live byte view of a plain-data component.
func (w *World) ComponentBytes(e EntityID, id ComponentTypeID) ([]byte, error) {
	c, row, err := w.slot(e, id)
	if err != nil {
		return nil, fmt.Errorf("get component %d of %s: %w", id, e, err)
	}
	if !c.info.Plain {
		return nil, fmt.Errorf("get component %s of %s: %w", c.info.Name, e, ErrNotPlainData)
	}
	return c.bytes(row), nil
}

// ComponentValue returns an addressable reflect view of e's component id.
func (w *World) ComponentValue(e EntityID, id ComponentTypeID) (reflect.Value, error) {
	c, row, err := w.slot(e, id)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("get component %d of %s: %w", id, e, err)
	}
	return c.value(row), nil
}

// EntityComponents lists e's component types in ascending id order.
func (w *World) EntityComponents(e EntityID) ([]ComponentTypeID, error) {
	if w.destroyed {
		return nil, ErrWorldDestroyed
	}
	meta, ok := w.entities.lookup(e)
	if !ok {
		return nil, fmt.Errorf("components of %s: %w", e, ErrStaleHandle)
	}
	return append([]ComponentTypeID(nil), meta.arch.ids...), nil
}

// ---------- introspection ----------

// ArchetypeInfo summarizes one archetype.
type ArchetypeInfo struct {
	Index      int
	Components []ComponentTypeID
	Len        int
}

// AddedTick returns the change tick at which e received component id.
func (w *World) AddedTick(e EntityID, id ComponentTypeID) (uint64, error) {
	c, row, err := w.slot(e, id)
	if err != nil {
		return 0, err
	}
	return c.added[row], nil
}

func (w *World) ArchetypeCount() int { return len(w.archetypes) }

// Archetypes lists every archetype in creation order.
func (w *World) Archetypes() []ArchetypeInfo {
	out := make([]ArchetypeInfo, len(w.archetypes))
	for i, a := range w.archetypes {
		out[i] = ArchetypeInfo{
			Index:      a.index,
			Components: append([]ComponentTypeID(nil), a.ids...),
			Len:        a.len(),
		}
	}
	return out
}
