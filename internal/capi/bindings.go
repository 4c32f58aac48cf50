package capi

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ecsbridge/ecscore/internal/core/ecs"
	"github.com/ecsbridge/ecscore/internal/core/system"
)

// BindingsVersion is bumped whenever an entry is added, removed or changes
// signature.
const BindingsVersion = 1

// SystemFunc is a foreign system body. It receives the world handle so it
// can call back into the table.
type SystemFunc func(w WorldHandle, dt float32) ResultCode

// SystemDesc declares a foreign system.
type SystemDesc struct {
	Name      string
	Phase     system.Phase
	Reads     []uint8
	Writes    []uint8
	Exclusive bool
	After     []string
}

// Bindings is the fixed table of entry points offered to a foreign host.
// Only plain data, integer handles and byte slices cross it. Every entry
// fails closed and never panics.
type Bindings struct {
	Version uint32

	WorldCreate  func() (WorldHandle, ResultCode)
	WorldDestroy func(w WorldHandle) ResultCode
	WorldLen     func(w WorldHandle) (uint32, ResultCode)

	RegisterComponent func(w WorldHandle, name string, id [16]byte, size, align uintptr) (uint8, ResultCode)
	LookupComponent   func(w WorldHandle, id [16]byte) (uint8, ResultCode)

	Spawn   func(w WorldHandle) (EntityRef, ResultCode)
	Despawn func(w WorldHandle, e EntityRef) ResultCode
	IsAlive func(w WorldHandle, e EntityRef) bool

	AddComponent    func(w WorldHandle, e EntityRef, c uint8, data []byte) ResultCode
	SetComponent    func(w WorldHandle, e EntityRef, c uint8, data []byte) ResultCode
	GetComponent    func(w WorldHandle, e EntityRef, c uint8, dst []byte) ResultCode
	RemoveComponent func(w WorldHandle, e EntityRef, c uint8) ResultCode
	HasComponent    func(w WorldHandle, e EntityRef, c uint8) bool

	QueryBegin func(w WorldHandle, reads, writes, excludes []uint8) (QueryHandle, ResultCode)
	QueryNext  func(q QueryHandle) (EntityRef, bool, ResultCode)
	QueryEnd   func(q QueryHandle) ResultCode

	RegisterSystem func(w WorldHandle, desc SystemDesc, fn SystemFunc) ResultCode
	Tick           func(w WorldHandle, dt float32) ResultCode

	// LastError describes the most recent failure on this table.
	LastError func() string
}

// Option configures NewBindings.
type Option func(*bindingState)

func WithLogger(l *zap.Logger) Option {
	return func(r *bindingState) { r.log = l }
}

// WithWorkers sets the scheduler worker bound for worlds created later.
func WithWorkers(n int) Option {
	return func(r *bindingState) { r.workers = n }
}

func WithCapacity(n int) Option {
	return func(r *bindingState) { r.capacity = n }
}

type bindingState struct {
	log      *zap.Logger
	workers  int
	capacity int

	worlds  *table[*worldEntry]
	queries *table[*queryEntry]

	errMu   sync.Mutex
	lastErr string
}

// NewBindings builds a populated table. Each table owns its own handle
// space; handles from one table mean nothing to another.
func NewBindings(opts ...Option) *Bindings {
	r := &bindingState{
		log:      zap.NewNop(),
		capacity: 1024,
		worlds:   newTable[*worldEntry](),
		queries:  newTable[*queryEntry](),
	}
	for _, opt := range opts {
		opt(r)
	}
	return &Bindings{
		Version:           BindingsVersion,
		WorldCreate:       r.worldCreate,
		WorldDestroy:      r.worldDestroy,
		WorldLen:          r.worldLen,
		RegisterComponent: r.registerComponent,
		LookupComponent:   r.lookupComponent,
		Spawn:             r.spawn,
		Despawn:           r.despawn,
		IsAlive:           r.isAlive,
		AddComponent:      r.addComponent,
		SetComponent:      r.setComponent,
		GetComponent:      r.getComponent,
		RemoveComponent:   r.removeComponent,
		HasComponent:      r.hasComponent,
		QueryBegin:        r.queryBegin,
		QueryNext:         r.queryNext,
		QueryEnd:          r.queryEnd,
		RegisterSystem:    r.registerSystem,
		Tick:              r.tick,
		LastError:         r.lastError,
	}
}

// fail records err and returns its code.
func (r *bindingState) fail(op string, err error) ResultCode {
	code := codeOf(err)
	r.setErr(fmt.Sprintf("%s: %v", op, err))
	if code == ResultInternal {
		r.log.Error("binding call failed", zap.String("op", op), zap.Error(err))
	}
	return code
}

func (r *bindingState) failCode(op string, code ResultCode, msg string) ResultCode {
	r.setErr(fmt.Sprintf("%s: %s", op, msg))
	return code
}

func (r *bindingState) setErr(msg string) {
	r.errMu.Lock()
	r.lastErr = msg
	r.errMu.Unlock()
}

func (r *bindingState) lastError() string {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.lastErr
}

// guard converts a panic escaping an entry into ResultInternal.
func (r *bindingState) guard(op string, code *ResultCode) {
	if p := recover(); p != nil {
		r.log.Error("binding call panicked", zap.String("op", op), zap.Any("panic", p))
		*code = r.failCode(op, ResultInternal, fmt.Sprint(p))
	}
}

func (r *bindingState) lookupWorld(op string, h WorldHandle) (*worldEntry, ResultCode) {
	if h == 0 {
		return nil, r.failCode(op, ResultNullHandle, "zero world handle")
	}
	w, ok := r.worlds.get(uint64(h))
	if !ok {
		return nil, r.failCode(op, ResultNullHandle, fmt.Sprintf("unknown world handle %d", h))
	}
	return w, ResultOK
}

// entity validates ref against w.
func (r *bindingState) entity(op string, w *worldEntry, ref EntityRef) (ecs.EntityID, ResultCode) {
	if ref.ID == 0 {
		return 0, r.failCode(op, ResultNullHandle, "zero entity")
	}
	if ref.World != w.world.Serial() {
		return 0, r.failCode(op, ResultWorldMismatch,
			fmt.Sprintf("entity from world %d used on world %d", ref.World, w.world.Serial()))
	}
	return ecs.EntityID(ref.ID), ResultOK
}

func (r *bindingState) ref(w *worldEntry, e ecs.EntityID) EntityRef {
	return EntityRef{ID: uint64(e), World: w.world.Serial()}
}

// ---------- worlds ----------

func (r *bindingState) worldCreate() (h WorldHandle, code ResultCode) {
	defer r.guard("world_create", &code)
	world := ecs.NewWorld(ecs.WithCapacity(r.capacity), ecs.WithLogger(r.log.Named("world")))
	sched := system.New(world,
		system.WithWorkers(r.workers),
		system.WithLogger(r.log.Named("scheduler")),
	)
	h = WorldHandle(r.worlds.put(&worldEntry{world: world, sched: sched}))
	r.log.Debug("world handle issued", zap.Uint64("handle", uint64(h)), zap.Stringer("world", world.ID()))
	return h, ResultOK
}

func (r *bindingState) worldDestroy(h WorldHandle) (code ResultCode) {
	defer r.guard("world_destroy", &code)
	w, code := r.lookupWorld("world_destroy", h)
	if code != ResultOK {
		return code
	}
	if state, ok := w.claim(worldDestroyed); !ok {
		if state == worldDestroyed {
			return r.failCode("world_destroy", ResultNullHandle, "world already destroyed")
		}
		return r.failCode("world_destroy", ResultWorldLocked, "tick in progress")
	}
	r.worlds.take(uint64(h))
	r.queries.removeIf(func(q *queryEntry) bool { return q.owner == h })
	if err := w.world.Destroy(); err != nil {
		return r.fail("world_destroy", err)
	}
	return ResultOK
}

func (r *bindingState) worldLen(h WorldHandle) (n uint32, code ResultCode) {
	defer r.guard("world_len", &code)
	w, code := r.lookupWorld("world_len", h)
	if code != ResultOK {
		return 0, code
	}
	return uint32(w.world.Len()), ResultOK
}

// ---------- component types ----------

func (r *bindingState) registerComponent(h WorldHandle, name string, id [16]byte, size, align uintptr) (c uint8, code ResultCode) {
	defer r.guard("register_component", &code)
	w, code := r.lookupWorld("register_component", h)
	if code != ResultOK {
		return 0, code
	}
	tid, err := w.world.RegisterRawComponent(name, uuid.UUID(id), size, align)
	if err != nil {
		return 0, r.fail("register_component", err)
	}
	return uint8(tid), ResultOK
}

func (r *bindingState) lookupComponent(h WorldHandle, id [16]byte) (c uint8, code ResultCode) {
	defer r.guard("lookup_component", &code)
	w, code := r.lookupWorld("lookup_component", h)
	if code != ResultOK {
		return 0, code
	}
	tid, ok := w.world.LookupComponentUUID(uuid.UUID(id))
	if !ok {
		return 0, r.failCode("lookup_component", ResultUnknownComponentType, uuid.UUID(id).String())
	}
	return uint8(tid), ResultOK
}

// ---------- entities ----------

func (r *bindingState) spawn(h WorldHandle) (ref EntityRef, code ResultCode) {
	defer r.guard("spawn", &code)
	w, code := r.lookupWorld("spawn", h)
	if code != ResultOK {
		return EntityRef{}, code
	}
	e, err := w.world.Spawn()
	if err != nil {
		return EntityRef{}, r.fail("spawn", err)
	}
	return r.ref(w, e), ResultOK
}

func (r *bindingState) despawn(h WorldHandle, ref EntityRef) (code ResultCode) {
	defer r.guard("despawn", &code)
	w, code := r.lookupWorld("despawn", h)
	if code != ResultOK {
		return code
	}
	e, code := r.entity("despawn", w, ref)
	if code != ResultOK {
		return code
	}
	if err := w.world.Despawn(e); err != nil {
		return r.fail("despawn", err)
	}
	return ResultOK
}

func (r *bindingState) isAlive(h WorldHandle, ref EntityRef) (alive bool) {
	defer func() {
		if recover() != nil {
			alive = false
		}
	}()
	w, ok := r.worlds.get(uint64(h))
	if !ok || ref.World != w.world.Serial() {
		return false
	}
	return w.world.IsAlive(ecs.EntityID(ref.ID))
}

// ---------- components ----------

func (r *bindingState) addComponent(h WorldHandle, ref EntityRef, c uint8, data []byte) (code ResultCode) {
	defer r.guard("add_component", &code)
	w, code := r.lookupWorld("add_component", h)
	if code != ResultOK {
		return code
	}
	e, code := r.entity("add_component", w, ref)
	if code != ResultOK {
		return code
	}
	if err := w.world.AddComponentBytes(e, ecs.ComponentTypeID(c), data); err != nil {
		return r.fail("add_component", err)
	}
	return ResultOK
}

func (r *bindingState) setComponent(h WorldHandle, ref EntityRef, c uint8, data []byte) (code ResultCode) {
	defer r.guard("set_component", &code)
	w, code := r.lookupWorld("set_component", h)
	if code != ResultOK {
		return code
	}
	e, code := r.entity("set_component", w, ref)
	if code != ResultOK {
		return code
	}
	if err := w.world.SetComponentBytes(e, ecs.ComponentTypeID(c), data); err != nil {
		return r.fail("set_component", err)
	}
	return ResultOK
}

// getComponent copies the stored bytes into dst, which must be exactly the
// component size.
func (r *bindingState) getComponent(h WorldHandle, ref EntityRef, c uint8, dst []byte) (code ResultCode) {
	defer r.guard("get_component", &code)
	w, code := r.lookupWorld("get_component", h)
	if code != ResultOK {
		return code
	}
	e, code := r.entity("get_component", w, ref)
	if code != ResultOK {
		return code
	}
	b, err := w.world.ComponentBytes(e, ecs.ComponentTypeID(c))
	if err != nil {
		return r.fail("get_component", err)
	}
	if len(dst) != len(b) {
		return r.failCode("get_component", ResultInvalidArgument,
			fmt.Sprintf("buffer is %d bytes, component is %d", len(dst), len(b)))
	}
	copy(dst, b)
	return ResultOK
}

func (r *bindingState) removeComponent(h WorldHandle, ref EntityRef, c uint8) (code ResultCode) {
	defer r.guard("remove_component", &code)
	w, code := r.lookupWorld("remove_component", h)
	if code != ResultOK {
		return code
	}
	e, code := r.entity("remove_component", w, ref)
	if code != ResultOK {
		return code
	}
	if err := w.world.RemoveComponent(e, ecs.ComponentTypeID(c)); err != nil {
		return r.fail("remove_component", err)
	}
	return ResultOK
}

func (r *bindingState) hasComponent(h WorldHandle, ref EntityRef, c uint8) (has bool) {
	defer func() {
		if recover() != nil {
			has = false
		}
	}()
	w, ok := r.worlds.get(uint64(h))
	if !ok || ref.World != w.world.Serial() {
		return false
	}
	return w.world.HasComponent(ecs.EntityID(ref.ID), ecs.ComponentTypeID(c))
}

// ---------- queries ----------

func toIDs(in []uint8) []ecs.ComponentTypeID {
	out := make([]ecs.ComponentTypeID, len(in))
	for i, c := range in {
		out[i] = ecs.ComponentTypeID(c)
	}
	return out
}

// queryBegin snapshots the matching entity ids. Entities despawned before
// QueryNext reaches them are skipped.
func (r *bindingState) queryBegin(h WorldHandle, reads, writes, excludes []uint8) (q QueryHandle, code ResultCode) {
	defer r.guard("query_begin", &code)
	w, code := r.lookupWorld("query_begin", h)
	if code != ResultOK {
		return 0, code
	}
	it, err := w.world.Query(ecs.Query{Reads: toIDs(reads), Writes: toIDs(writes), Excludes: toIDs(excludes)})
	if err != nil {
		return 0, r.fail("query_begin", err)
	}
	entry := &queryEntry{owner: h, world: w.world}
	for chunk := range it.Chunks() {
		entry.ids = append(entry.ids, chunk.Entities()...)
	}
	return QueryHandle(r.queries.put(entry)), ResultOK
}

func (r *bindingState) queryNext(h QueryHandle) (ref EntityRef, ok bool, code ResultCode) {
	defer r.guard("query_next", &code)
	if h == 0 {
		return EntityRef{}, false, r.failCode("query_next", ResultNullHandle, "zero query handle")
	}
	q, found := r.queries.get(uint64(h))
	if !found {
		return EntityRef{}, false, r.failCode("query_next", ResultNullHandle, fmt.Sprintf("unknown query handle %d", h))
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.pos < len(q.ids) {
		e := q.ids[q.pos]
		q.pos++
		if q.world.IsAlive(e) {
			return EntityRef{ID: uint64(e), World: q.world.Serial()}, true, ResultOK
		}
	}
	return EntityRef{}, false, ResultOK
}

func (r *bindingState) queryEnd(h QueryHandle) (code ResultCode) {
	defer r.guard("query_end", &code)
	if h == 0 {
		return r.failCode("query_end", ResultNullHandle, "zero query handle")
	}
	if _, ok := r.queries.take(uint64(h)); !ok {
		return r.failCode("query_end", ResultNullHandle, fmt.Sprintf("unknown query handle %d", h))
	}
	return ResultOK
}

// ---------- scheduling ----------

// foreignSystem adapts a SystemFunc to system.System.
type foreignSystem struct {
	desc   SystemDesc
	handle WorldHandle
	fn     SystemFunc
}

func (f *foreignSystem) Name() string        { return f.desc.Name }
func (f *foreignSystem) Phase() system.Phase { return f.desc.Phase }

func (f *foreignSystem) Access() system.Access {
	return system.Access{Reads: toIDs(f.desc.Reads), Writes: toIDs(f.desc.Writes), Exclusive: f.desc.Exclusive}
}

func (f *foreignSystem) Update(ctx *system.Context) error {
	if code := f.fn(f.handle, ctx.Dt); code != ResultOK {
		return fmt.Errorf("foreign system %s returned %s", f.desc.Name, code)
	}
	return nil
}

func (r *bindingState) registerSystem(h WorldHandle, desc SystemDesc, fn SystemFunc) (code ResultCode) {
	defer r.guard("register_system", &code)
	w, code := r.lookupWorld("register_system", h)
	if code != ResultOK {
		return code
	}
	if fn == nil || desc.Name == "" {
		return r.failCode("register_system", ResultInvalidArgument, "system needs a name and a function")
	}
	if _, ok := system.ParsePhase(desc.Phase.String()); !ok {
		return r.failCode("register_system", ResultInvalidArgument, fmt.Sprintf("phase %d", desc.Phase))
	}
	for _, c := range append(append([]uint8(nil), desc.Reads...), desc.Writes...) {
		if _, ok := w.world.ComponentInfo(ecs.ComponentTypeID(c)); !ok {
			return r.failCode("register_system", ResultUnknownComponentType, fmt.Sprintf("component %d", c))
		}
	}
	sys := &foreignSystem{desc: desc, handle: h, fn: fn}
	if err := w.sched.Register(sys, system.After(desc.After...)); err != nil {
		return r.fail("register_system", err)
	}
	return ResultOK
}

// tick runs one frame. System failures do not stop the frame; they are
// reported as ResultSystemFailed with details in LastError.
func (r *bindingState) tick(h WorldHandle, dt float32) (code ResultCode) {
	defer r.guard("tick", &code)
	w, code := r.lookupWorld("tick", h)
	if code != ResultOK {
		return code
	}
	if state, ok := w.claim(worldTicking); !ok {
		if state == worldDestroyed {
			return r.failCode("tick", ResultNullHandle, "world destroyed")
		}
		return r.failCode("tick", ResultWorldLocked, "tick in progress")
	}
	defer w.state.Store(worldIdle)
	rep := w.sched.Tick(dt)
	if rep.Failure != nil {
		return r.fail("tick", rep.Failure)
	}
	if len(rep.Diagnostics) > 0 {
		return r.failCode("tick", ResultSystemFailed, rep.Err().Error())
	}
	return ResultOK
}
