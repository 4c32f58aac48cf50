package event

import "github.com/ecsbridge/ecscore/internal/core/ecs"

// ActorEventKind enumerates host notifications about actors.
type ActorEventKind uint8

const (
	ActorBeginOverlap ActorEventKind = iota
	ActorEndOverlap
	ActorHit
)

func (k ActorEventKind) String() string {
	switch k {
	case ActorBeginOverlap:
		return "begin_overlap"
	case ActorEndOverlap:
		return "end_overlap"
	case ActorHit:
		return "hit"
	}
	return "unknown"
}

// ActorEvent is sent by the host when two actors interact. Entity fields are
// zero when the actor has no entity in the world.
type ActorEvent struct {
	Kind     ActorEventKind
	Entity   ecs.EntityID
	Other    ecs.EntityID
	ActorTag uint32
	OtherTag uint32
}

// EntitySpawned is emitted by scene loading for each created entity.
type EntitySpawned struct {
	Entity ecs.EntityID
	Name   string
}
