package scripting

import (
	"encoding"
	"fmt"
	"reflect"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

var textMarshaler = reflect.TypeFor[encoding.TextMarshaler]()

// fieldKey is the table key for a struct field. It matches the lowercased
// keys scene files use.
func fieldKey(f reflect.StructField) string { return strings.ToLower(f.Name) }

// toLua converts a component value into Lua. Structs become tables keyed
// by fieldKey, arrays and slices become sequences, and text marshalers
// become strings.
func toLua(L *lua.LState, v reflect.Value) lua.LValue {
	if !v.IsValid() {
		return lua.LNil
	}
	if v.Type().Implements(textMarshaler) {
		if b, err := v.Interface().(encoding.TextMarshaler).MarshalText(); err == nil {
			return lua.LString(b)
		}
	}
	switch v.Kind() {
	case reflect.Bool:
		return lua.LBool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return lua.LNumber(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return lua.LNumber(v.Uint())
	case reflect.Float32, reflect.Float64:
		return lua.LNumber(v.Float())
	case reflect.String:
		return lua.LString(v.String())
	case reflect.Struct:
		t := L.NewTable()
		for i := 0; i < v.NumField(); i++ {
			f := v.Type().Field(i)
			if !f.IsExported() {
				continue
			}
			t.RawSetString(fieldKey(f), toLua(L, v.Field(i)))
		}
		return t
	case reflect.Array, reflect.Slice:
		t := L.NewTable()
		for i := 0; i < v.Len(); i++ {
			t.Append(toLua(L, v.Index(i)))
		}
		return t
	}
	return lua.LNil
}

// fromLua stores lv into the settable v. nil leaves v unchanged, so a
// partial table updates only the fields it names.
func fromLua(lv lua.LValue, v reflect.Value) error {
	if lv == lua.LNil {
		return nil
	}
	if s, ok := lv.(lua.LString); ok && v.CanAddr() {
		if u, ok := v.Addr().Interface().(encoding.TextUnmarshaler); ok {
			return u.UnmarshalText([]byte(s))
		}
	}
	switch v.Kind() {
	case reflect.Bool:
		b, ok := lv.(lua.LBool)
		if !ok {
			return mismatch(lv, v)
		}
		v.SetBool(bool(b))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := lv.(lua.LNumber)
		if !ok || v.OverflowInt(int64(n)) {
			return mismatch(lv, v)
		}
		v.SetInt(int64(n))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, ok := lv.(lua.LNumber)
		if !ok || n < 0 || v.OverflowUint(uint64(n)) {
			return mismatch(lv, v)
		}
		v.SetUint(uint64(n))
	case reflect.Float32, reflect.Float64:
		n, ok := lv.(lua.LNumber)
		if !ok {
			return mismatch(lv, v)
		}
		v.SetFloat(float64(n))
	case reflect.String:
		s, ok := lv.(lua.LString)
		if !ok {
			return mismatch(lv, v)
		}
		v.SetString(string(s))
	case reflect.Struct:
		t, ok := lv.(*lua.LTable)
		if !ok {
			return mismatch(lv, v)
		}
		for i := 0; i < v.NumField(); i++ {
			f := v.Type().Field(i)
			if !f.IsExported() {
				continue
			}
			if err := fromLua(t.RawGetString(fieldKey(f)), v.Field(i)); err != nil {
				return fmt.Errorf("%s: %w", fieldKey(f), err)
			}
		}
	case reflect.Array:
		t, ok := lv.(*lua.LTable)
		if !ok {
			return mismatch(lv, v)
		}
		for i := 0; i < v.Len(); i++ {
			if err := fromLua(t.RawGetInt(i+1), v.Index(i)); err != nil {
				return fmt.Errorf("[%d]: %w", i+1, err)
			}
		}
	case reflect.Slice:
		t, ok := lv.(*lua.LTable)
		if !ok {
			return mismatch(lv, v)
		}
		s := reflect.MakeSlice(v.Type(), t.Len(), t.Len())
		for i := 0; i < s.Len(); i++ {
			if err := fromLua(t.RawGetInt(i+1), s.Index(i)); err != nil {
				return fmt.Errorf("[%d]: %w", i+1, err)
			}
		}
		v.Set(s)
	default:
		return fmt.Errorf("unsupported kind %s", v.Kind())
	}
	return nil
}

func mismatch(lv lua.LValue, v reflect.Value) error {
	return fmt.Errorf("cannot store %s in %s", lv.Type(), v.Type())
}
