package component

import "github.com/google/uuid"

// UUID is a 128-bit identifier in RFC 4122 byte order.
type UUID [16]byte

func UUIDFrom(u uuid.UUID) UUID { return UUID(u) }

func (u UUID) Std() uuid.UUID { return uuid.UUID(u) }
func (u UUID) IsNil() bool    { return u == UUID{} }
func (u UUID) String() string { return uuid.UUID(u).String() }

// ParseUUID accepts the textual forms understood by google/uuid.
func ParseUUID(s string) (UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return UUID{}, err
	}
	return UUID(u), nil
}

// ActorHandle is a non-owning reference to a host object. The core stores,
// compares and returns it but never dereferences or frees Ptr. Tag lets the
// host tell reused addresses apart.
type ActorHandle struct {
	Ptr uintptr
	Tag uint32
}

func (h ActorHandle) IsNil() bool { return h.Ptr == 0 }
