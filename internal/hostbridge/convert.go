package hostbridge

import (
	"encoding/binary"

	"github.com/ecsbridge/ecscore/internal/component"
)

// Host-side value layouts. Field order matches what the engine hands over;
// every conversion to and from core types is total.

type FVector struct {
	X, Y, Z float32
}

// FQuat is stored X, Y, Z, W.
type FQuat struct {
	X, Y, Z, W float32
}

// FColor is stored B, G, R, A.
type FColor struct {
	B, G, R, A uint8
}

// FGuid is four 32-bit words; A holds the most significant bytes.
type FGuid struct {
	A, B, C, D uint32
}

// FCollisionShape mirrors the engine's tagged union. Data holds the box
// half extent, the sphere radius in [0], or capsule radius and half height
// in [0] and [1].
type FCollisionShape struct {
	ShapeType uint8
	Data      [3]float32
}

// ActorPtr is the raw address of a host actor. It is never dereferenced.
type ActorPtr uintptr

func ToVec3(v FVector) component.Vec3    { return component.Vec3{X: v.X, Y: v.Y, Z: v.Z} }
func ToFVector(v component.Vec3) FVector { return FVector{X: v.X, Y: v.Y, Z: v.Z} }

func ToQuat(q FQuat) component.Quat {
	return component.Quat{W: q.W, X: q.X, Y: q.Y, Z: q.Z}
}

func ToFQuat(q component.Quat) FQuat {
	return FQuat{X: q.X, Y: q.Y, Z: q.Z, W: q.W}
}

func ToColor(c FColor) component.Color {
	return component.Color{R: c.R, G: c.G, B: c.B, A: c.A}
}

func ToFColor(c component.Color) FColor {
	return FColor{B: c.B, G: c.G, R: c.R, A: c.A}
}

func ToUUID(g FGuid) component.UUID {
	var u component.UUID
	binary.BigEndian.PutUint32(u[0:4], g.A)
	binary.BigEndian.PutUint32(u[4:8], g.B)
	binary.BigEndian.PutUint32(u[8:12], g.C)
	binary.BigEndian.PutUint32(u[12:16], g.D)
	return u
}

func ToFGuid(u component.UUID) FGuid {
	return FGuid{
		A: binary.BigEndian.Uint32(u[0:4]),
		B: binary.BigEndian.Uint32(u[4:8]),
		C: binary.BigEndian.Uint32(u[8:12]),
		D: binary.BigEndian.Uint32(u[12:16]),
	}
}

// ToCollisionShape converts a host shape. Unknown shape types become lines.
func ToCollisionShape(s FCollisionShape) component.CollisionShape {
	switch component.ShapeKind(s.ShapeType) {
	case component.ShapeBox:
		return component.Box(component.Vec3{X: s.Data[0], Y: s.Data[1], Z: s.Data[2]})
	case component.ShapeSphere:
		return component.Sphere(s.Data[0])
	case component.ShapeCapsule:
		return component.Capsule(s.Data[0], s.Data[1])
	}
	return component.CollisionShape{Kind: component.ShapeLine}
}

func ToFCollisionShape(s component.CollisionShape) FCollisionShape {
	out := FCollisionShape{ShapeType: uint8(s.Kind)}
	switch s.Kind {
	case component.ShapeBox:
		out.Data = [3]float32{s.HalfExtent.X, s.HalfExtent.Y, s.HalfExtent.Z}
	case component.ShapeSphere:
		out.Data[0] = s.Radius
	case component.ShapeCapsule:
		out.Data[0], out.Data[1] = s.Radius, s.HalfHeight
	default:
		out.ShapeType = uint8(component.ShapeLine)
	}
	return out
}

// ToActorHandle wraps p without taking ownership.
func ToActorHandle(p ActorPtr, tag uint32) component.ActorHandle {
	return component.ActorHandle{Ptr: uintptr(p), Tag: tag}
}

func ToActorPtr(h component.ActorHandle) ActorPtr { return ActorPtr(h.Ptr) }
