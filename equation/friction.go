package equation

import (
	"github.com/akmonengine/ballista/actor"
	"github.com/go-gl/mathgl/mgl64"
)

// Friction resists sliding along the tangent T, bounded by ±slipForce.
type Friction struct {
	Base
	RI, RJ mgl64.Vec3
	T      mgl64.Vec3
}

func NewFriction(bodyA, bodyB *actor.RigidBody, slipForce float64) *Friction {
	return &Friction{Base: newBase(bodyA, bodyB, -slipForce, slipForce)}
}

// Reset prepares a pooled friction equation for reuse.
func (f *Friction) Reset(bodyA, bodyB *actor.RigidBody, slipForce float64) {
	id := f.ID
	*f = Friction{Base: newBase(bodyA, bodyB, -slipForce, slipForce)}
	f.ID = id
}

func (f *Friction) ComputeB(h float64) float64 {
	rixt := f.RI.Cross(f.T)
	rjxt := f.RJ.Cross(f.T)

	f.JacobianA = JacobianElement{Spatial: f.T.Mul(-1), Rotational: rixt.Mul(-1)}
	f.JacobianB = JacobianElement{Spatial: f.T, Rotational: rjxt}

	return f.bias(0, f.ComputeGW(), h)
}
