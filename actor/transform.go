package actor

import "github.com/go-gl/mathgl/mgl64"

// Transform represents a position and orientation in 3D space
type Transform struct {
	Position mgl64.Vec3
	Rotation mgl64.Quat
}

// NewTransform creates an identity transform
func NewTransform() Transform {
	return Transform{
		Position: mgl64.Vec3{0, 0, 0},
		Rotation: mgl64.QuatIdent(),
	}
}

func (t Transform) PointToWorld(local mgl64.Vec3) mgl64.Vec3 {
	return t.Rotation.Rotate(local).Add(t.Position)
}

func (t Transform) PointToLocal(world mgl64.Vec3) mgl64.Vec3 {
	return t.Rotation.Conjugate().Rotate(world.Sub(t.Position))
}

func (t Transform) VectorToWorld(local mgl64.Vec3) mgl64.Vec3 {
	return t.Rotation.Rotate(local)
}

func (t Transform) VectorToLocal(world mgl64.Vec3) mgl64.Vec3 {
	return t.Rotation.Conjugate().Rotate(world)
}

// Compose places a child frame, given relative to t, into t's parent space.
func (t Transform) Compose(offset mgl64.Vec3, orientation mgl64.Quat) Transform {
	return Transform{
		Position: t.PointToWorld(offset),
		Rotation: t.Rotation.Mul(orientation),
	}
}
