package ecs

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/google/uuid"
)

// MaxComponentTypes is the number of distinct component types one world can
// register.
const MaxComponentTypes = 256

// ComponentTypeID identifies a registered component type within one world.
type ComponentTypeID uint8

// ComponentInfo describes a registered component type.
type ComponentInfo struct {
	ID    ComponentTypeID
	Name  string
	UUID  uuid.UUID
	Type  reflect.Type
	Size  uintptr
	Align uintptr
	// Plain is true when the type holds no Go pointers and can be copied
	// as raw bytes across the binding table.
	Plain bool
	drop  func(unsafe.Pointer)
}

// HasDrop reports whether the type runs a hook when a value leaves storage.
func (c ComponentInfo) HasDrop() bool { return c.drop != nil }

// ComponentOption customizes a component type at registration.
type ComponentOption func(*ComponentInfo)

// WithName overrides the registry name. Without it the Go type name is
// used, or the package-qualified name when another type already holds the
// short one. The package-qualified name always resolves as well.
func WithName(name string) ComponentOption {
	return func(c *ComponentInfo) { c.Name = name }
}

// WithUUID attaches a stable 128-bit identifier, used by data loaders and
// foreign callers to address the type independent of registration order.
func WithUUID(id uuid.UUID) ComponentOption {
	return func(c *ComponentInfo) { c.UUID = id }
}

// WithDrop installs a hook that runs when a value is removed from storage by
// RemoveComponent, Despawn, Clear or Destroy. It does not run when a value
// merely moves between archetypes.
func WithDrop[T any](fn func(*T)) ComponentOption {
	return func(c *ComponentInfo) {
		c.drop = func(p unsafe.Pointer) { fn((*T)(p)) }
	}
}

// componentRegistry tracks all component types known to a world.
type componentRegistry struct {
	infos  []ComponentInfo
	byType map[reflect.Type]ComponentTypeID
	byName map[string]ComponentTypeID
	byUUID map[uuid.UUID]ComponentTypeID
}

func newComponentRegistry() componentRegistry {
	return componentRegistry{
		// Full capacity up front keeps &infos[i] stable for columns.
		infos:  make([]ComponentInfo, 0, MaxComponentTypes),
		byType: make(map[reflect.Type]ComponentTypeID, 16),
		byName: make(map[string]ComponentTypeID, 16),
		byUUID: make(map[uuid.UUID]ComponentTypeID, 16),
	}
}

// register adds a Go type. Registering the same type again returns the
// existing id and ignores opts.
func (r *componentRegistry) register(t reflect.Type, opts ...ComponentOption) (ComponentTypeID, error) {
	if id, ok := r.byType[t]; ok {
		return id, nil
	}
	name := t.Name()
	if name == "" {
		name = t.String()
	}
	qualified := qualifiedName(t)
	info := ComponentInfo{
		Name:  name,
		Type:  t,
		Size:  t.Size(),
		Align: uintptr(t.Align()),
		Plain: pointerFree(t),
	}
	for _, opt := range opts {
		opt(&info)
	}
	// Only a name picked with WithName must be unique; a defaulted one
	// falls back to the qualified form.
	if info.Name == name {
		if _, taken := r.byName[name]; taken {
			info.Name = qualified
			if _, taken := r.byName[qualified]; taken {
				info.Name = fmt.Sprintf("%s#%d", qualified, len(r.infos))
			}
		}
	}
	id, err := r.add(info)
	if err != nil {
		return 0, err
	}
	r.byType[t] = id
	if _, taken := r.byName[qualified]; !taken {
		r.byName[qualified] = id
	}
	return id, nil
}

// qualifiedName is the import path plus type name, e.g.
// "github.com/x/y/component.Transform".
func qualifiedName(t reflect.Type) string {
	if t.PkgPath() == "" || t.Name() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// registerRaw adds a foreign plain-data type known only by its layout. Each
// call creates a distinct type even when layouts coincide.
func (r *componentRegistry) registerRaw(name string, id uuid.UUID, size, align uintptr) (ComponentTypeID, error) {
	t, err := rawType(size, align)
	if err != nil {
		return 0, err
	}
	return r.add(ComponentInfo{
		Name:  name,
		UUID:  id,
		Type:  t,
		Size:  size,
		Align: align,
		Plain: true,
	})
}

func (r *componentRegistry) add(info ComponentInfo) (ComponentTypeID, error) {
	if len(r.infos) >= MaxComponentTypes {
		return 0, fmt.Errorf("register %s: %w", info.Name, ErrTooManyComponentTypes)
	}
	if info.Name == "" {
		return 0, fmt.Errorf("register component: empty name: %w", ErrInvalidLayout)
	}
	if _, ok := r.byName[info.Name]; ok {
		return 0, fmt.Errorf("register %s: name taken: %w", info.Name, ErrDuplicateComponentType)
	}
	if info.UUID != uuid.Nil {
		if other, ok := r.byUUID[info.UUID]; ok {
			return 0, fmt.Errorf("register %s: uuid %s already used by %s: %w",
				info.Name, info.UUID, r.infos[other].Name, ErrDuplicateComponentType)
		}
	}
	info.ID = ComponentTypeID(len(r.infos))
	r.infos = append(r.infos, info)
	r.byName[info.Name] = info.ID
	if info.UUID != uuid.Nil {
		r.byUUID[info.UUID] = info.ID
	}
	return info.ID, nil
}

func (r *componentRegistry) info(id ComponentTypeID) (*ComponentInfo, bool) {
	if int(id) >= len(r.infos) {
		return nil, false
	}
	return &r.infos[id], true
}

func (r *componentRegistry) known(id ComponentTypeID) bool {
	return int(id) < len(r.infos)
}

// rawType builds a pointer-free Go type with the requested size and alignment.
func rawType(size, align uintptr) (reflect.Type, error) {
	var word reflect.Type
	switch align {
	case 1:
		word = reflect.TypeFor[uint8]()
	case 2:
		word = reflect.TypeFor[uint16]()
	case 4:
		word = reflect.TypeFor[uint32]()
	case 8:
		word = reflect.TypeFor[uint64]()
	default:
		return nil, fmt.Errorf("alignment %d: %w", align, ErrInvalidLayout)
	}
	if size%align != 0 {
		return nil, fmt.Errorf("size %d not a multiple of alignment %d: %w", size, align, ErrInvalidLayout)
	}
	return reflect.ArrayOf(int(size/align), word), nil
}

// pointerFree reports whether values of t contain no Go pointers.
func pointerFree(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return t.Len() == 0 || pointerFree(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !pointerFree(t.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
