// Command libecscore builds the binding table as a C shared library:
//
//	go build -buildmode=c-shared -o libecscore.so ./cmd/libecscore
//
// Logging is configured from ECSCORE_LOG_LEVEL and ECSCORE_LOG_FORMAT.
package main

/*
#include "ecscore.h"
*/
import "C"

import (
	"os"
	"unsafe"

	"go.uber.org/zap"

	"github.com/ecsbridge/ecscore/internal/capi"
	"github.com/ecsbridge/ecscore/internal/config"
	"github.com/ecsbridge/ecscore/internal/core/system"
	"github.com/ecsbridge/ecscore/internal/logging"
)

var bindings = newBindings()

func newBindings() *capi.Bindings {
	log, err := logging.New(config.LoggingConfig{
		Level:  os.Getenv("ECSCORE_LOG_LEVEL"),
		Format: os.Getenv("ECSCORE_LOG_FORMAT"),
	})
	if err != nil {
		log = zap.NewNop()
	}
	return capi.NewBindings(capi.WithLogger(log.Named("ecscore")))
}

func main() {}

func ids(p *C.uint8_t, n C.size_t) []uint8 {
	if p == nil || n == 0 {
		return nil
	}
	return unsafe.Slice((*uint8)(unsafe.Pointer(p)), int(n))
}

func buf(p unsafe.Pointer, n C.size_t) []byte {
	if p == nil || n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(p), int(n))
}

func ref(e C.ecs_entity) capi.EntityRef {
	return capi.EntityRef{ID: uint64(e.id), World: uint32(e.world)}
}

func code(c capi.ResultCode) C.int32_t { return C.int32_t(c) }

var nullHandle = code(capi.ResultNullHandle)

//export ecs_bindings_version
func ecs_bindings_version() C.uint32_t { return C.uint32_t(bindings.Version) }

//export ecs_world_create
func ecs_world_create(out *C.uint64_t) C.int32_t {
	if out == nil {
		return nullHandle
	}
	h, c := bindings.WorldCreate()
	*out = C.uint64_t(h)
	return code(c)
}

//export ecs_world_destroy
func ecs_world_destroy(w C.uint64_t) C.int32_t {
	return code(bindings.WorldDestroy(capi.WorldHandle(w)))
}

//export ecs_world_len
func ecs_world_len(w C.uint64_t, out *C.uint32_t) C.int32_t {
	if out == nil {
		return nullHandle
	}
	n, c := bindings.WorldLen(capi.WorldHandle(w))
	*out = C.uint32_t(n)
	return code(c)
}

//export ecs_register_component
func ecs_register_component(w C.uint64_t, name *C.char, id *C.uint8_t, size, align C.size_t, out *C.uint8_t) C.int32_t {
	if id == nil || out == nil {
		return nullHandle
	}
	var u [16]byte
	copy(u[:], ids(id, 16))
	t, c := bindings.RegisterComponent(capi.WorldHandle(w), C.GoString(name), u, uintptr(size), uintptr(align))
	*out = C.uint8_t(t)
	return code(c)
}

//export ecs_lookup_component
func ecs_lookup_component(w C.uint64_t, id *C.uint8_t, out *C.uint8_t) C.int32_t {
	if id == nil || out == nil {
		return nullHandle
	}
	var u [16]byte
	copy(u[:], ids(id, 16))
	t, c := bindings.LookupComponent(capi.WorldHandle(w), u)
	*out = C.uint8_t(t)
	return code(c)
}

//export ecs_spawn
func ecs_spawn(w C.uint64_t, out *C.ecs_entity) C.int32_t {
	if out == nil {
		return nullHandle
	}
	e, c := bindings.Spawn(capi.WorldHandle(w))
	out.id = C.uint64_t(e.ID)
	out.world = C.uint32_t(e.World)
	return code(c)
}

//export ecs_despawn
func ecs_despawn(w C.uint64_t, e C.ecs_entity) C.int32_t {
	return code(bindings.Despawn(capi.WorldHandle(w), ref(e)))
}

//export ecs_is_alive
func ecs_is_alive(w C.uint64_t, e C.ecs_entity) C.int32_t {
	if bindings.IsAlive(capi.WorldHandle(w), ref(e)) {
		return 1
	}
	return 0
}

//export ecs_add_component
func ecs_add_component(w C.uint64_t, e C.ecs_entity, t C.uint8_t, data unsafe.Pointer, n C.size_t) C.int32_t {
	return code(bindings.AddComponent(capi.WorldHandle(w), ref(e), uint8(t), buf(data, n)))
}

//export ecs_set_component
func ecs_set_component(w C.uint64_t, e C.ecs_entity, t C.uint8_t, data unsafe.Pointer, n C.size_t) C.int32_t {
	return code(bindings.SetComponent(capi.WorldHandle(w), ref(e), uint8(t), buf(data, n)))
}

//export ecs_get_component
func ecs_get_component(w C.uint64_t, e C.ecs_entity, t C.uint8_t, dst unsafe.Pointer, n C.size_t) C.int32_t {
	if dst == nil {
		return nullHandle
	}
	return code(bindings.GetComponent(capi.WorldHandle(w), ref(e), uint8(t), buf(dst, n)))
}

//export ecs_remove_component
func ecs_remove_component(w C.uint64_t, e C.ecs_entity, t C.uint8_t) C.int32_t {
	return code(bindings.RemoveComponent(capi.WorldHandle(w), ref(e), uint8(t)))
}

//export ecs_has_component
func ecs_has_component(w C.uint64_t, e C.ecs_entity, t C.uint8_t) C.int32_t {
	if bindings.HasComponent(capi.WorldHandle(w), ref(e), uint8(t)) {
		return 1
	}
	return 0
}

//export ecs_query_begin
func ecs_query_begin(w C.uint64_t, reads *C.uint8_t, nreads C.size_t, writes *C.uint8_t, nwrites C.size_t,
	excludes *C.uint8_t, nexcludes C.size_t, out *C.uint64_t) C.int32_t {
	if out == nil {
		return nullHandle
	}
	q, c := bindings.QueryBegin(capi.WorldHandle(w), ids(reads, nreads), ids(writes, nwrites), ids(excludes, nexcludes))
	*out = C.uint64_t(q)
	return code(c)
}

//export ecs_query_next
func ecs_query_next(q C.uint64_t, out *C.ecs_entity, ok *C.int32_t) C.int32_t {
	if out == nil || ok == nil {
		return nullHandle
	}
	e, more, c := bindings.QueryNext(capi.QueryHandle(q))
	out.id = C.uint64_t(e.ID)
	out.world = C.uint32_t(e.World)
	*ok = 0
	if more {
		*ok = 1
	}
	return code(c)
}

//export ecs_query_end
func ecs_query_end(q C.uint64_t) C.int32_t {
	return code(bindings.QueryEnd(capi.QueryHandle(q)))
}

//export ecs_register_system
func ecs_register_system(w C.uint64_t, name *C.char, phase C.int32_t,
	reads *C.uint8_t, nreads C.size_t, writes *C.uint8_t, nwrites C.size_t,
	after **C.char, nafter C.size_t, exclusive C.int32_t,
	fn C.ecs_system_fn, user unsafe.Pointer) C.int32_t {
	if fn == nil {
		return nullHandle
	}
	desc := capi.SystemDesc{
		Name:      C.GoString(name),
		Phase:     system.Phase(phase),
		Reads:     append([]uint8(nil), ids(reads, nreads)...),
		Writes:    append([]uint8(nil), ids(writes, nwrites)...),
		Exclusive: exclusive != 0,
	}
	if after != nil && nafter > 0 {
		for _, s := range unsafe.Slice(after, int(nafter)) {
			desc.After = append(desc.After, C.GoString(s))
		}
	}
	return code(bindings.RegisterSystem(capi.WorldHandle(w), desc, foreignFunc(fn, user)))
}

//export ecs_tick
func ecs_tick(w C.uint64_t, dt C.float) C.int32_t {
	return code(bindings.Tick(capi.WorldHandle(w), float32(dt)))
}

// ecs_last_error copies the last failure message, NUL terminated, and
// returns its full length.
//
//export ecs_last_error
func ecs_last_error(dst *C.char, n C.size_t) C.size_t {
	msg := bindings.LastError()
	if dst != nil && n > 0 {
		out := unsafe.Slice((*byte)(unsafe.Pointer(dst)), int(n))
		k := copy(out[:len(out)-1], msg)
		out[k] = 0
	}
	return C.size_t(len(msg))
}
