package main

/*
#include "ecscore.h"

static int32_t ecs_call_system(ecs_system_fn fn, uint64_t world, float dt, void *user) {
	return fn(world, dt, user);
}
*/
import "C"

import (
	"unsafe"

	"github.com/ecsbridge/ecscore/internal/capi"
)

// foreignFunc wraps a C system pointer as a capi.SystemFunc. user is host
// memory and is passed back untouched.
func foreignFunc(fn C.ecs_system_fn, user unsafe.Pointer) capi.SystemFunc {
	return func(w capi.WorldHandle, dt float32) capi.ResultCode {
		return capi.ResultCode(C.ecs_call_system(fn, C.uint64_t(w), C.float(dt), user))
	}
}
