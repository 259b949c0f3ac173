package actor

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

var (
	// ErrInvalidShape reports construction parameters no shape can be built from.
	ErrInvalidShape = errors.New("invalid shape")
)

// planeExtent bounds the AABB of infinite shapes without producing infinities
// in downstream arithmetic.
const planeExtent = math.MaxFloat64 / 4

// ShapeType represents the type of collision shape.
// The order is the canonical order used by the narrowphase dispatch table.
type ShapeType int

const (
	ShapeTypeSphere ShapeType = iota
	ShapeTypePlane
	ShapeTypeBox
	ShapeTypeCompound
	ShapeTypeConvexPolyhedron
	ShapeTypeHeightfield
	ShapeTypeTrimesh
)

func (t ShapeType) String() string {
	switch t {
	case ShapeTypeSphere:
		return "sphere"
	case ShapeTypePlane:
		return "plane"
	case ShapeTypeBox:
		return "box"
	case ShapeTypeCompound:
		return "compound"
	case ShapeTypeConvexPolyhedron:
		return "convex"
	case ShapeTypeHeightfield:
		return "heightfield"
	case ShapeTypeTrimesh:
		return "trimesh"
	}
	return fmt.Sprintf("ShapeType(%d)", int(t))
}

// Shape is the closed set of collision geometries: Sphere, Plane, Box,
// ConvexPolyhedron, Compound, Heightfield and Trimesh.
type Shape interface {
	Type() ShapeType
	// BoundingRadius is the radius of a sphere around the local origin enclosing the shape
	BoundingRadius() float64
	// LocalInertia returns the diagonal of the inertia tensor for the given mass
	LocalInertia(mass float64) mgl64.Vec3
	// WorldAABB computes the axis-aligned bounding box at the given transform
	WorldAABB(transform Transform) AABB
	Volume() float64

	sealed()
}

// Convex shapes expose a support mapping, used by GJK overlap tests.
type Convex interface {
	Shape
	Support(direction mgl64.Vec3) mgl64.Vec3
}

// Sphere represents a sphere collision shape centered at the local origin
type Sphere struct {
	Radius float64
}

func NewSphere(radius float64) (*Sphere, error) {
	if radius < 0 || math.IsNaN(radius) || math.IsInf(radius, 0) {
		return nil, fmt.Errorf("%w: sphere radius %v", ErrInvalidShape, radius)
	}
	return &Sphere{Radius: radius}, nil
}

func (s *Sphere) sealed() {}

func (s *Sphere) Type() ShapeType { return ShapeTypeSphere }

func (s *Sphere) BoundingRadius() float64 { return s.Radius }

func (s *Sphere) LocalInertia(mass float64) mgl64.Vec3 {
	// I = (2/5) * m * r²
	i := 2.0 / 5.0 * mass * s.Radius * s.Radius
	return mgl64.Vec3{i, i, i}
}

func (s *Sphere) WorldAABB(transform Transform) AABB {
	r := mgl64.Vec3{s.Radius, s.Radius, s.Radius}
	return AABB{
		Min: transform.Position.Sub(r),
		Max: transform.Position.Add(r),
	}
}

func (s *Sphere) Volume() float64 {
	return 4.0 / 3.0 * math.Pi * s.Radius * s.Radius * s.Radius
}

func (s *Sphere) Support(direction mgl64.Vec3) mgl64.Vec3 {
	if direction.LenSqr() < 1e-20 {
		return mgl64.Vec3{s.Radius, 0, 0}
	}
	return direction.Normalize().Mul(s.Radius)
}

// Plane is an infinite half-space whose surface passes through the local origin
// with its outward normal along local +Z.
type Plane struct{}

func NewPlane() *Plane {
	return &Plane{}
}

func (p *Plane) sealed() {}

func (p *Plane) Type() ShapeType { return ShapeTypePlane }

func (p *Plane) BoundingRadius() float64 { return math.Inf(1) }

func (p *Plane) LocalInertia(mass float64) mgl64.Vec3 { return mgl64.Vec3{} }

func (p *Plane) Volume() float64 { return 0 }

// WorldNormal returns the outward normal for the given orientation.
func (p *Plane) WorldNormal(rotation mgl64.Quat) mgl64.Vec3 {
	return rotation.Rotate(mgl64.Vec3{0, 0, 1})
}

func (p *Plane) WorldAABB(transform Transform) AABB {
	aabb := AABB{
		Min: mgl64.Vec3{-planeExtent, -planeExtent, -planeExtent},
		Max: mgl64.Vec3{planeExtent, planeExtent, planeExtent},
	}

	// Axis aligned planes can be bounded on one side
	n := p.WorldNormal(transform.Rotation)
	for i := 0; i < 3; i++ {
		if n[i] == 1 {
			aabb.Max[i] = transform.Position[i]
		} else if n[i] == -1 {
			aabb.Min[i] = transform.Position[i]
		}
	}
	return aabb
}

// Box represents an oriented box collision shape
// The box is defined by its half-extents (half-width, half-height, half-depth)
type Box struct {
	HalfExtents mgl64.Vec3
	hull        *ConvexPolyhedron
}

func NewBox(halfExtents mgl64.Vec3) (*Box, error) {
	for i := 0; i < 3; i++ {
		if !(halfExtents[i] > 0) || math.IsInf(halfExtents[i], 0) {
			return nil, fmt.Errorf("%w: box half extents %v", ErrInvalidShape, halfExtents)
		}
	}
	return &Box{HalfExtents: halfExtents}, nil
}

func (b *Box) sealed() {}

func (b *Box) Type() ShapeType { return ShapeTypeBox }

// SetHalfExtents resizes the box and drops its cached polyhedron.
func (b *Box) SetHalfExtents(halfExtents mgl64.Vec3) error {
	if _, err := NewBox(halfExtents); err != nil {
		return err
	}
	b.HalfExtents = halfExtents
	b.hull = nil
	return nil
}

func (b *Box) BoundingRadius() float64 {
	return b.HalfExtents.Len()
}

func (b *Box) LocalInertia(mass float64) mgl64.Vec3 {
	// full edge lengths
	x := b.HalfExtents.X() * 2
	y := b.HalfExtents.Y() * 2
	z := b.HalfExtents.Z() * 2

	// I = (m/12) * (dimension1² + dimension2²)
	factor := mass / 12.0
	return mgl64.Vec3{
		factor * (y*y + z*z),
		factor * (x*x + z*z),
		factor * (x*x + y*y),
	}
}

func (b *Box) Volume() float64 {
	return 8.0 * b.HalfExtents.X() * b.HalfExtents.Y() * b.HalfExtents.Z()
}

func (b *Box) corners() [8]mgl64.Vec3 {
	hx, hy, hz := b.HalfExtents.X(), b.HalfExtents.Y(), b.HalfExtents.Z()
	return [8]mgl64.Vec3{
		{-hx, -hy, -hz},
		{+hx, -hy, -hz},
		{+hx, +hy, -hz},
		{-hx, +hy, -hz},
		{-hx, -hy, +hz},
		{+hx, -hy, +hz},
		{+hx, +hy, +hz},
		{-hx, +hy, +hz},
	}
}

func (b *Box) WorldAABB(transform Transform) AABB {
	aabb := EmptyAABB()
	for _, corner := range b.corners() {
		aabb = aabb.Extend(transform.PointToWorld(corner))
	}
	return aabb
}

func (b *Box) Support(direction mgl64.Vec3) mgl64.Vec3 {
	hx, hy, hz := b.HalfExtents.X(), b.HalfExtents.Y(), b.HalfExtents.Z()

	if direction.X() < 0 {
		hx = -hx
	}
	if direction.Y() < 0 {
		hy = -hy
	}
	if direction.Z() < 0 {
		hz = -hz
	}

	return mgl64.Vec3{hx, hy, hz}
}

// ConvexPolyhedron returns the polyhedral form of the box, built on first use.
func (b *Box) ConvexPolyhedron() *ConvexPolyhedron {
	if b.hull != nil {
		return b.hull
	}

	corners := b.corners()
	// Faces wound counter-clockwise seen from outside
	faces := [][]int{
		{3, 2, 1, 0}, // -z
		{4, 5, 6, 7}, // +z
		{5, 4, 0, 1}, // -y
		{2, 3, 7, 6}, // +y
		{0, 4, 7, 3}, // -x
		{1, 2, 6, 5}, // +x
	}
	hull, err := NewConvexPolyhedron(corners[:], faces)
	if err != nil {
		// half extents are validated positive, the box topology cannot be degenerate
		panic(err)
	}
	hull.UniqueAxes = []mgl64.Vec3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	b.hull = hull

	return hull
}
