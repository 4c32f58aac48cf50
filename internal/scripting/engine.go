package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/google/uuid"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ecsbridge/ecscore/internal/core/ecs"
	"github.com/ecsbridge/ecscore/internal/core/system"
)

// VMLock is the scheduler lock every script system holds. It keeps script
// systems out of each other's batches.
const VMLock = "scripting.vm"

// APIVersion is exposed to scripts as API_VERSION.
const APIVersion = 1

// Engine wraps a single gopher-lua VM whose scripts define systems with
// register_system{...}. Definitions are collected at load time and turned
// into scheduler systems by Build.
type Engine struct {
	mu    sync.Mutex
	vm    *lua.LState
	log   *zap.Logger
	world *ecs.World

	defs     []*scriptDef
	byName   map[string]*scriptDef
	api      *lua.LTable
	entityMT *lua.LTable

	// set while a script system runs
	ctx *system.Context
	cur *scriptSystem
}

// scriptDef is one register_system call before component names resolve.
type scriptDef struct {
	name      string
	phase     system.Phase
	reads     []string
	writes    []string
	locks     []string
	after     []string
	exclusive bool
	run       *lua.LFunction
}

// NewEngine creates a VM bound to w. Scripts see API_VERSION and
// register_system.
func NewEngine(w *ecs.World, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(APIVersion))

	e := &Engine{
		vm:     vm,
		log:    log,
		world:  w,
		byName: make(map[string]*scriptDef),
	}
	e.entityMT = vm.NewTypeMetatable("entity")
	vm.SetField(e.entityMT, "__tostring", vm.NewFunction(e.luaEntityString))
	vm.SetField(e.entityMT, "__eq", vm.NewFunction(e.luaEntityEq))

	e.api = vm.NewTable()
	for name, fn := range map[string]lua.LGFunction{
		"each":    e.luaEach,
		"get":     e.luaGet,
		"set":     e.luaSet,
		"spawn":   e.luaSpawn,
		"despawn": e.luaDespawn,
		"log":     e.luaLog,
	} {
		e.api.RawSetString(name, vm.NewFunction(fn))
	}
	vm.SetGlobal("register_system", vm.NewFunction(e.luaRegisterSystem))
	return e
}

// LoadDir runs every .lua file in dir in name order. A missing dir is
// not an error.
func (e *Engine) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// LoadString runs src as a chunk called name.
func (e *Engine) LoadString(name, src string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn, err := e.vm.LoadString(src)
	if err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}
	e.vm.Push(fn)
	if err := e.vm.PCall(0, lua.MultRet, nil); err != nil {
		return fmt.Errorf("run %s: %w", name, err)
	}
	return nil
}

// Systems lists defined script system names in definition order.
func (e *Engine) Systems() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.defs))
	for i, d := range e.defs {
		out[i] = d.name
	}
	return out
}

// Build registers every defined script system. It satisfies system.Plugin.
func (e *Engine) Build(s *system.Scheduler) error {
	e.mu.Lock()
	defs := append([]*scriptDef(nil), e.defs...)
	e.mu.Unlock()

	var errs error
	for _, d := range defs {
		sys, err := e.resolve(d)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if err := s.Register(sys, system.After(d.after...)); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		e.log.Info("lua system registered",
			zap.String("system", d.name),
			zap.Stringer("phase", d.phase),
		)
	}
	return errs
}

// Close releases the VM.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vm.Close()
}

func (e *Engine) lookup(name string) (ecs.ComponentTypeID, bool) {
	if u, err := uuid.Parse(name); err == nil {
		return e.world.LookupComponentUUID(u)
	}
	return e.world.LookupComponent(name)
}

func (e *Engine) resolve(d *scriptDef) (*scriptSystem, error) {
	s := &scriptSystem{engine: e, def: d, declared: make(map[ecs.ComponentTypeID]bool)}
	for _, name := range d.reads {
		id, ok := e.lookup(name)
		if !ok {
			return nil, fmt.Errorf("script system %s: read %q: %w", d.name, name, ecs.ErrUnknownComponentType)
		}
		s.access.Reads = append(s.access.Reads, id)
		if _, ok := s.declared[id]; !ok {
			s.declared[id] = false
		}
	}
	for _, name := range d.writes {
		id, ok := e.lookup(name)
		if !ok {
			return nil, fmt.Errorf("script system %s: write %q: %w", d.name, name, ecs.ErrUnknownComponentType)
		}
		s.access.Writes = append(s.access.Writes, id)
		s.declared[id] = true
	}
	s.access.Locks = append([]string{VMLock}, d.locks...)
	s.access.Exclusive = d.exclusive
	return s, nil
}

// scriptSystem adapts a script definition to system.System. declared maps
// every declared component to whether it may be written.
type scriptSystem struct {
	engine   *Engine
	def      *scriptDef
	access   system.Access
	declared map[ecs.ComponentTypeID]bool
}

func (s *scriptSystem) Name() string          { return s.def.name }
func (s *scriptSystem) Phase() system.Phase   { return s.def.phase }
func (s *scriptSystem) Access() system.Access { return s.access }

func (s *scriptSystem) Update(ctx *system.Context) error {
	return s.engine.run(s, ctx)
}

func (e *Engine) run(s *scriptSystem, ctx *system.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ctx, e.cur = ctx, s
	defer func() { e.ctx, e.cur = nil, nil }()

	c := e.vm.NewTable()
	e.api.ForEach(func(k, v lua.LValue) { c.RawSet(k, v) })
	c.RawSetString("dt", lua.LNumber(ctx.Dt))
	c.RawSetString("tick", lua.LNumber(ctx.Tick))
	c.RawSetString("name", lua.LString(s.def.name))

	if err := e.vm.CallByParam(lua.P{Fn: s.def.run, NRet: 0, Protect: true}, c); err != nil {
		return fmt.Errorf("lua %s: %w", s.def.name, err)
	}
	return nil
}

// component resolves name for the running system. write demands write
// access.
func (e *Engine) component(L *lua.LState, name string, write bool) (ecs.ComponentTypeID, ecs.ComponentInfo) {
	id, ok := e.lookup(name)
	if !ok {
		L.RaiseError("unknown component %q", name)
	}
	w, declared := e.cur.declared[id]
	if !declared {
		L.RaiseError("%s: component %s not declared in reads or writes", e.cur.def.name, name)
	}
	if write && !w {
		L.RaiseError("%s: component %s not declared in writes", e.cur.def.name, name)
	}
	info, _ := e.world.ComponentInfo(id)
	return id, info
}

// ---------- entities ----------

func (e *Engine) newEntity(L *lua.LState, id ecs.EntityID) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = id
	L.SetMetatable(ud, e.entityMT)
	return ud
}

func checkEntity(L *lua.LState, n int) ecs.EntityID {
	ud := L.CheckUserData(n)
	id, ok := ud.Value.(ecs.EntityID)
	if !ok {
		L.ArgError(n, "entity expected")
	}
	return id
}

func (e *Engine) luaEntityString(L *lua.LState) int {
	L.Push(lua.LString(checkEntity(L, 1).String()))
	return 1
}

func (e *Engine) luaEntityEq(L *lua.LState) int {
	L.Push(lua.LBool(checkEntity(L, 1) == checkEntity(L, 2)))
	return 1
}

// ---------- script api ----------

func (e *Engine) requireRunning(L *lua.LState) {
	if e.cur == nil {
		L.RaiseError("ctx used outside a running system")
	}
}

// each(names, fn [, excludes [, added]]) calls fn(entity, c1, c2, ...) for
// every entity holding all named components. Names in added must also have
// been inserted since the system last ran. Tables for written components
// are stored back after fn returns.
func (e *Engine) luaEach(L *lua.LState) int {
	e.requireRunning(L)
	names := stringList(L, L.CheckTable(1))
	fn := L.CheckFunction(2)
	excludes := e.optionalIDs(L, 3)
	added := e.optionalIDs(L, 4)

	ids := make([]ecs.ComponentTypeID, len(names))
	for i, name := range names {
		ids[i], _ = e.component(L, name, false)
	}
	it, err := e.ctx.Query(ecs.Query{Reads: ids, Excludes: excludes, Added: added})
	if err != nil {
		L.RaiseError("%v", err)
	}

	vals := make([]lua.LValue, len(ids))
	for chunk := range it.Chunks() {
		for row := 0; row < chunk.Len(); row++ {
			L.Push(fn)
			L.Push(e.newEntity(L, chunk.Entity(row)))
			for j, id := range ids {
				vals[j] = toLua(L, chunk.Value(id, row))
				L.Push(vals[j])
			}
			L.Call(1+len(ids), 0)
			for j, id := range ids {
				if !e.cur.declared[id] {
					continue
				}
				if err := fromLua(vals[j], chunk.Value(id, row)); err != nil {
					L.RaiseError("%s: %v", names[j], err)
				}
			}
		}
	}
	return 0
}

// optionalIDs resolves an optional list of component names at arg n.
func (e *Engine) optionalIDs(L *lua.LState, n int) []ecs.ComponentTypeID {
	if L.Get(n) == lua.LNil {
		return nil
	}
	var ids []ecs.ComponentTypeID
	for _, name := range stringList(L, L.CheckTable(n)) {
		id, ok := e.lookup(name)
		if !ok {
			L.RaiseError("unknown component %q", name)
		}
		ids = append(ids, id)
	}
	return ids
}

// get(entity, name) returns the component as a table, or nil.
func (e *Engine) luaGet(L *lua.LState) int {
	e.requireRunning(L)
	ent := checkEntity(L, 1)
	id, _ := e.component(L, L.CheckString(2), false)
	v, err := e.world.ComponentValue(ent, id)
	if err != nil {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(toLua(L, v))
	return 1
}

// set(entity, name, table) overwrites a component in place, or queues an
// insert when the entity lacks it.
func (e *Engine) luaSet(L *lua.LState) int {
	e.requireRunning(L)
	ent := checkEntity(L, 1)
	name := L.CheckString(2)
	id, info := e.component(L, name, true)
	val := L.CheckAny(3)

	v := reflect.New(info.Type).Elem()
	cur, err := e.world.ComponentValue(ent, id)
	present := err == nil
	if present {
		v.Set(cur)
	}
	if err := fromLua(val, v); err != nil {
		L.RaiseError("%s: %v", name, err)
	}
	if present {
		if err := e.world.SetComponentValue(ent, id, v); err != nil {
			L.RaiseError("%v", err)
		}
		return 0
	}
	e.checkInsertable(L, id, info)
	e.ctx.Commands.Insert(ent, v.Interface())
	return 0
}

// spawn{Name = table, ...} queues a new entity.
func (e *Engine) luaSpawn(L *lua.LState) int {
	e.requireRunning(L)
	t := L.CheckTable(1)
	var values []any
	var failed error
	t.ForEach(func(k, val lua.LValue) {
		if failed != nil {
			return
		}
		name := lua.LVAsString(k)
		id, ok := e.lookup(name)
		if !ok {
			failed = fmt.Errorf("unknown component %q", name)
			return
		}
		info, _ := e.world.ComponentInfo(id)
		e.checkInsertable(L, id, info)
		v := reflect.New(info.Type).Elem()
		if err := fromLua(val, v); err != nil {
			failed = fmt.Errorf("%s: %v", name, err)
			return
		}
		values = append(values, v.Interface())
	})
	if failed != nil {
		L.RaiseError("%v", failed)
	}
	e.ctx.Commands.Spawn(values...)
	return 0
}

// checkInsertable rejects types the command buffer cannot route back to
// id, such as foreign raw layouts.
func (e *Engine) checkInsertable(L *lua.LState, id ecs.ComponentTypeID, info ecs.ComponentInfo) {
	if got, ok := e.world.LookupComponentType(info.Type); !ok || got != id {
		L.RaiseError("component %s cannot be inserted from scripts", info.Name)
	}
}

func (e *Engine) luaDespawn(L *lua.LState) int {
	e.requireRunning(L)
	e.ctx.Commands.Despawn(checkEntity(L, 1))
	return 0
}

func (e *Engine) luaLog(L *lua.LState) int {
	e.requireRunning(L)
	e.ctx.Log.Info(L.CheckString(1), zap.String("script", e.cur.def.name))
	return 0
}

// register_system{name=, phase=, reads=, writes=, locks=, after=,
// exclusive=, run=function(ctx) ... end}
func (e *Engine) luaRegisterSystem(L *lua.LState) int {
	t := L.CheckTable(1)
	name := lStr(t, "name")
	if name == "" {
		L.ArgError(1, "name is required")
	}
	if _, dup := e.byName[name]; dup {
		L.RaiseError("system %s defined twice", name)
	}
	run, ok := t.RawGetString("run").(*lua.LFunction)
	if !ok {
		L.ArgError(1, "run must be a function")
	}
	phase := system.PhaseUpdate
	if s := lStr(t, "phase"); s != "" {
		p, ok := system.ParsePhase(s)
		if !ok {
			L.ArgError(1, fmt.Sprintf("unknown phase %q", s))
		}
		phase = p
	}
	d := &scriptDef{
		name:      name,
		phase:     phase,
		reads:     optStringList(L, t, "reads"),
		writes:    optStringList(L, t, "writes"),
		locks:     optStringList(L, t, "locks"),
		after:     optStringList(L, t, "after"),
		exclusive: lua.LVAsBool(t.RawGetString("exclusive")),
		run:       run,
	}
	e.defs = append(e.defs, d)
	e.byName[name] = d
	return 0
}

func lStr(t *lua.LTable, key string) string {
	if s, ok := t.RawGetString(key).(lua.LString); ok {
		return string(s)
	}
	return ""
}

func stringList(L *lua.LState, t *lua.LTable) []string {
	out := make([]string, 0, t.Len())
	for i := 1; i <= t.Len(); i++ {
		s, ok := t.RawGetInt(i).(lua.LString)
		if !ok {
			L.RaiseError("expected a list of strings")
		}
		out = append(out, string(s))
	}
	return out
}

func optStringList(L *lua.LState, t *lua.LTable, key string) []string {
	switch v := t.RawGetString(key).(type) {
	case *lua.LTable:
		return stringList(L, v)
	case *lua.LNilType:
		return nil
	default:
		L.RaiseError("%s must be a list of strings", key)
		return nil
	}
}
