package component

// Transform places an entity in world space.
// Pure data: mutations happen in systems.
type Transform struct {
	Position Vec3
	Rotation Quat
	Scale    Vec3
}

// IdentityTransform has unit rotation and scale at the origin.
func IdentityTransform() Transform {
	return Transform{Rotation: QuatIdentity, Scale: Vec3One}
}

// Forward returns the local +X axis in world space.
func (t Transform) Forward() Vec3 { return t.Rotation.Rotate(Vec3{X: 1}) }

// Velocity is linear motion in units per second.
type Velocity struct {
	Linear Vec3
}

// Actor links an entity to its host-side object.
type Actor struct {
	Handle ActorHandle
}

// Name is a human-readable label. It holds a Go string, so it is stored
// with typed copies and never crosses the binding table as bytes.
type Name struct {
	Value string
}

// Collider gives an entity a collision volume for host queries.
type Collider struct {
	Shape CollisionShape
}

// Lifetime despawns an entity once Remaining seconds have elapsed.
type Lifetime struct {
	Remaining float32
}
