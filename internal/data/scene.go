package data

import (
	"errors"
	"fmt"
	"os"
	"reflect"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ecsbridge/ecscore/internal/component"
	"github.com/ecsbridge/ecscore/internal/core/ecs"
	"github.com/ecsbridge/ecscore/internal/core/event"
)

// Scene is a YAML file describing entities to spawn. Component keys are
// registered component names or UUIDs.
//
//	prefabs:
//	  crate:
//	    Transform: {scale: {x: 2, y: 2, z: 2}}
//	entities:
//	  - name: crate-1
//	    prefab: crate
//	    components:
//	      Transform: {position: {x: 3}}
type Scene struct {
	Prefabs  map[string]yaml.Node `yaml:"prefabs"`
	Entities []SceneEntity        `yaml:"entities"`
}

// SceneEntity is one entry of the entities list. Components stays a raw
// mapping node so decoding can wait for the world's registry.
type SceneEntity struct {
	Name       string    `yaml:"name"`
	Prefab     string    `yaml:"prefab"`
	Count      int       `yaml:"count"` // copies to spawn, 0 means 1
	Components yaml.Node `yaml:"components"`
}

// ErrScene marks malformed scene content.
var ErrScene = errors.New("invalid scene")

// LoadScene reads and parses a scene file.
func LoadScene(path string) (*Scene, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene: %w", err)
	}
	s, err := ParseScene(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func ParseScene(raw []byte) (*Scene, error) {
	var s Scene
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse scene: %w", err)
	}
	for name, node := range s.Prefabs {
		if node.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("prefab %s (line %d): components must be a mapping: %w", name, node.Line, ErrScene)
		}
	}
	for i, e := range s.Entities {
		if e.Components.Kind != 0 && e.Components.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("entity %d (line %d): components must be a mapping: %w", i, e.Components.Line, ErrScene)
		}
		if e.Prefab != "" {
			if _, ok := s.Prefabs[e.Prefab]; !ok {
				return nil, fmt.Errorf("entity %d: unknown prefab %q: %w", i, e.Prefab, ErrScene)
			}
		}
		if e.Count < 0 {
			return nil, fmt.Errorf("entity %d: negative count: %w", i, ErrScene)
		}
	}
	return &s, nil
}

// SceneLoader spawns scenes into one world.
type SceneLoader struct {
	world    *ecs.World
	log      *zap.Logger
	events   *event.Bus
	defaults map[reflect.Type]reflect.Value
}

type LoaderOption func(*SceneLoader)

func WithLoaderLogger(l *zap.Logger) LoaderOption {
	return func(s *SceneLoader) { s.log = l }
}

// WithSpawnEvents emits event.EntitySpawned for every created entity.
func WithSpawnEvents(b *event.Bus) LoaderOption {
	return func(s *SceneLoader) { s.events = b }
}

// WithDefault sets the starting value components of type T are decoded
// over. Without one, decoding starts from the zero value.
func WithDefault[T any](v T) LoaderOption {
	return func(s *SceneLoader) { s.defaults[reflect.TypeFor[T]()] = reflect.ValueOf(v) }
}

func NewSceneLoader(w *ecs.World, opts ...LoaderOption) *SceneLoader {
	s := &SceneLoader{
		world: w,
		log:   zap.NewNop(),
		defaults: map[reflect.Type]reflect.Value{
			reflect.TypeFor[component.Transform](): reflect.ValueOf(component.IdentityTransform()),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// pending is one decoded component waiting to be attached.
type pending struct {
	id    ecs.ComponentTypeID
	value reflect.Value
	bytes []byte
}

// SpawnFile loads path and spawns it.
func (l *SceneLoader) SpawnFile(path string) ([]ecs.EntityID, error) {
	s, err := LoadScene(path)
	if err != nil {
		return nil, err
	}
	return l.Spawn(s)
}

// Spawn decodes every entity first, then creates them. Either all entities
// are created or none are.
func (l *SceneLoader) Spawn(s *Scene) ([]ecs.EntityID, error) {
	prefabs := make(map[string][]pending, len(s.Prefabs))
	for name, node := range s.Prefabs {
		comps, err := l.decode(&node, nil)
		if err != nil {
			return nil, fmt.Errorf("prefab %s: %w", name, err)
		}
		prefabs[name] = comps
	}

	plans := make([][]pending, len(s.Entities))
	for i := range s.Entities {
		e := &s.Entities[i]
		comps, err := l.decode(&e.Components, prefabs[e.Prefab])
		if err != nil {
			return nil, fmt.Errorf("entity %d %s: %w", i, e.Name, err)
		}
		plans[i] = comps
	}

	nameID, hasName := ecs.ID[component.Name](l.world)
	var spawned []ecs.EntityID
	rollback := func() {
		for _, id := range spawned {
			_ = l.world.Despawn(id)
		}
	}
	for i, e := range s.Entities {
		count := max(e.Count, 1)
		for n := 0; n < count; n++ {
			name := e.Name
			if count > 1 && name != "" {
				name = fmt.Sprintf("%s#%d", e.Name, n)
			}
			id, err := l.world.Spawn()
			if err != nil {
				rollback()
				return nil, fmt.Errorf("spawn entity %d: %w", i, err)
			}
			spawned = append(spawned, id)
			if err := l.attach(id, plans[i]); err != nil {
				rollback()
				return nil, fmt.Errorf("entity %d %s: %w", i, e.Name, err)
			}
			if name != "" && hasName && !l.world.HasComponent(id, nameID) {
				if err := l.world.AddComponentValue(id, nameID, reflect.ValueOf(component.Name{Value: name})); err != nil {
					rollback()
					return nil, fmt.Errorf("entity %d %s: %w", i, e.Name, err)
				}
			}
			if l.events != nil {
				event.Emit(l.events, event.EntitySpawned{Entity: id, Name: name})
			}
		}
	}
	l.log.Info("scene spawned", zap.Int("entities", len(spawned)), zap.Int("prefabs", len(prefabs)))
	return spawned, nil
}

func (l *SceneLoader) attach(id ecs.EntityID, comps []pending) error {
	for _, c := range comps {
		var err error
		if c.bytes != nil {
			err = l.world.AddComponentBytes(id, c.id, c.bytes)
		} else {
			err = l.world.AddComponentValue(id, c.id, c.value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// decode turns a component mapping into values. base supplies starting
// values for keys it shares with node and components node does not name.
func (l *SceneLoader) decode(node *yaml.Node, base []pending) ([]pending, error) {
	out := make([]pending, len(base))
	index := make(map[ecs.ComponentTypeID]int, len(base))
	for i, b := range base {
		out[i] = b
		if b.value.IsValid() {
			// Copy so decoding over it cannot reach the prefab's value.
			v := reflect.New(b.value.Type()).Elem()
			v.Set(b.value)
			out[i].value = v
		}
		index[b.id] = i
	}
	if node.Kind == 0 {
		return out, nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		id, err := l.resolve(key.Value)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", key.Line, err)
		}
		info, _ := l.world.ComponentInfo(id)

		var start reflect.Value
		if j, ok := index[id]; ok {
			start = out[j].value
		}
		p, err := l.decodeOne(info, val, start)
		if err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", val.Line, info.Name, err)
		}
		if j, ok := index[id]; ok {
			out[j] = p
		} else {
			index[id] = len(out)
			out = append(out, p)
		}
	}
	return out, nil
}

func (l *SceneLoader) resolve(key string) (ecs.ComponentTypeID, error) {
	if u, err := uuid.Parse(key); err == nil {
		if id, ok := l.world.LookupComponentUUID(u); ok {
			return id, nil
		}
		return 0, fmt.Errorf("component %s: %w", key, ecs.ErrUnknownComponentType)
	}
	if id, ok := l.world.LookupComponent(key); ok {
		return id, nil
	}
	return 0, fmt.Errorf("component %q: %w", key, ecs.ErrUnknownComponentType)
}

// decodeOne decodes val over start, or over the type's default. A !!binary
// scalar supplies the raw bytes of a plain-data component.
func (l *SceneLoader) decodeOne(info ecs.ComponentInfo, val *yaml.Node, start reflect.Value) (pending, error) {
	if val.ShortTag() == "!!binary" {
		if !info.Plain {
			return pending{}, ecs.ErrNotPlainData
		}
		var raw string
		if err := val.Decode(&raw); err != nil {
			return pending{}, err
		}
		b := []byte(raw)
		if uintptr(len(b)) != info.Size {
			return pending{}, fmt.Errorf("got %d bytes, want %d: %w", len(b), info.Size, ecs.ErrInvalidLayout)
		}
		return pending{id: info.ID, bytes: b}, nil
	}

	ptr := reflect.New(info.Type)
	switch {
	case start.IsValid():
		ptr.Elem().Set(start)
	default:
		if d, ok := l.defaults[info.Type]; ok {
			ptr.Elem().Set(d)
		}
	}
	// An empty or null value keeps the starting value.
	if !(val.Kind == yaml.ScalarNode && (val.ShortTag() == "!!null" || val.Value == "")) {
		if err := val.Decode(ptr.Interface()); err != nil {
			return pending{}, err
		}
	}
	return pending{id: info.ID, value: ptr.Elem()}, nil
}
