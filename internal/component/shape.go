package component

import "fmt"

// ShapeKind selects which CollisionShape fields are meaningful.
type ShapeKind uint8

const (
	ShapeLine ShapeKind = iota
	ShapeBox
	ShapeSphere
	ShapeCapsule
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeLine:
		return "line"
	case ShapeBox:
		return "box"
	case ShapeSphere:
		return "sphere"
	case ShapeCapsule:
		return "capsule"
	}
	return fmt.Sprintf("shape(%d)", uint8(k))
}

func ParseShapeKind(s string) (ShapeKind, error) {
	for k := ShapeLine; k <= ShapeCapsule; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown shape kind %q", s)
}

func (k ShapeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *ShapeKind) UnmarshalText(b []byte) error {
	v, err := ParseShapeKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// CollisionShape describes a query or collision volume.
//
//	Box:     HalfExtent
//	Sphere:  Radius
//	Capsule: Radius, HalfHeight
type CollisionShape struct {
	Kind       ShapeKind
	HalfExtent Vec3
	Radius     float32
	HalfHeight float32
}

func Box(halfExtent Vec3) CollisionShape {
	return CollisionShape{Kind: ShapeBox, HalfExtent: halfExtent}
}

func Sphere(radius float32) CollisionShape {
	return CollisionShape{Kind: ShapeSphere, Radius: radius}
}

func Capsule(radius, halfHeight float32) CollisionShape {
	return CollisionShape{Kind: ShapeCapsule, Radius: radius, HalfHeight: halfHeight}
}

// Extent returns the axis-aligned half size enclosing the shape.
func (s CollisionShape) Extent() Vec3 {
	switch s.Kind {
	case ShapeBox:
		return s.HalfExtent
	case ShapeSphere:
		return Vec3{s.Radius, s.Radius, s.Radius}
	case ShapeCapsule:
		return Vec3{s.Radius, s.Radius, s.HalfHeight}
	}
	return Vec3{}
}
