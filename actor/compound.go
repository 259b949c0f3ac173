package actor

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// CompoundChild places a shape inside a compound, relative to the compound origin.
type CompoundChild struct {
	Shape       Shape
	Offset      mgl64.Vec3
	Orientation mgl64.Quat
}

// Compound groups several shapes into one rigid shape.
type Compound struct {
	Children []CompoundChild
}

func NewCompound() *Compound {
	return &Compound{}
}

func (c *Compound) sealed() {}

func (c *Compound) Type() ShapeType { return ShapeTypeCompound }

func (c *Compound) AddChild(shape Shape, offset mgl64.Vec3, orientation mgl64.Quat) error {
	if shape == nil {
		return fmt.Errorf("%w: nil compound child", ErrInvalidShape)
	}
	if shape == Shape(c) {
		return fmt.Errorf("%w: compound cannot contain itself", ErrInvalidShape)
	}
	if orientation.Len() == 0 {
		orientation = mgl64.QuatIdent()
	}
	c.Children = append(c.Children, CompoundChild{
		Shape:       shape,
		Offset:      offset,
		Orientation: orientation.Normalize(),
	})
	return nil
}

func (c *Compound) BoundingRadius() float64 {
	radius := 0.0
	for _, child := range c.Children {
		radius = math.Max(radius, child.Offset.Len()+child.Shape.BoundingRadius())
	}
	return radius
}

func (c *Compound) WorldAABB(transform Transform) AABB {
	aabb := EmptyAABB()
	for _, child := range c.Children {
		aabb = aabb.Union(child.Shape.WorldAABB(transform.Compose(child.Offset, child.Orientation)))
	}
	return aabb
}

func (c *Compound) Volume() float64 {
	volume := 0.0
	for _, child := range c.Children {
		volume += child.Shape.Volume()
	}
	return volume
}

func (c *Compound) LocalInertia(mass float64) mgl64.Vec3 {
	return AggregateInertia(c.Children, mass)
}

// AggregateInertia splits mass between the parts by volume (evenly when no part
// has volume) and sums their inertia about the common origin with the
// parallel-axis theorem. Only the diagonal of the summed tensor is returned.
func AggregateInertia(parts []CompoundChild, mass float64) mgl64.Vec3 {
	if len(parts) == 0 {
		return mgl64.Vec3{}
	}

	totalVolume := 0.0
	for _, part := range parts {
		totalVolume += part.Shape.Volume()
	}

	var tensor mgl64.Mat3
	for _, part := range parts {
		partMass := mass / float64(len(parts))
		if totalVolume > 0 {
			partMass = mass * part.Shape.Volume() / totalVolume
		}

		// rotate the part's principal inertia into the compound frame
		r := part.Orientation.Mat4().Mat3()
		local := mgl64.Diag3(part.Shape.LocalInertia(partMass))
		rotated := r.Mul3(local).Mul3(r.Transpose())

		// parallel axis: m * (|d|² E - d dᵀ)
		d := part.Offset
		shift := mgl64.Diag3(mgl64.Vec3{1, 1, 1}).Mul(d.LenSqr()).Sub(d.OuterProd3(d)).Mul(partMass)

		tensor = tensor.Add(rotated).Add(shift)
	}

	return tensor.Diag()
}
