package equation

import (
	"math"

	"github.com/akmonengine/ballista/actor"
	"github.com/go-gl/mathgl/mgl64"
)

// Rotational keeps the angle between AxisA (on BodyA) and AxisB (on BodyB) at
// MaxAngle; the default of π/2 keeps them perpendicular. Axes are in world space.
type Rotational struct {
	Base
	AxisA, AxisB mgl64.Vec3
	MaxAngle     float64
}

func NewRotational(bodyA, bodyB *actor.RigidBody, maxForce float64) *Rotational {
	return &Rotational{
		Base:     newBase(bodyA, bodyB, -maxForce, maxForce),
		AxisA:    mgl64.Vec3{1, 0, 0},
		AxisB:    mgl64.Vec3{0, 1, 0},
		MaxAngle: math.Pi / 2,
	}
}

func (r *Rotational) ComputeB(h float64) float64 {
	ni, nj := r.AxisA, r.AxisB

	r.JacobianA = JacobianElement{Rotational: nj.Cross(ni)}
	r.JacobianB = JacobianElement{Rotational: ni.Cross(nj)}

	g := math.Cos(r.MaxAngle) - ni.Dot(nj)
	return r.bias(g, r.ComputeGW(), h)
}

// Cone keeps the angle between AxisA and AxisB below Angle. It only pushes
// when the axes leave the cone.
type Cone struct {
	Base
	AxisA, AxisB mgl64.Vec3
	Angle        float64
}

func NewCone(bodyA, bodyB *actor.RigidBody, maxForce float64) *Cone {
	return &Cone{
		Base:  newBase(bodyA, bodyB, 0, maxForce),
		AxisA: mgl64.Vec3{1, 0, 0},
		AxisB: mgl64.Vec3{1, 0, 0},
	}
}

func (c *Cone) ComputeB(h float64) float64 {
	ni, nj := c.AxisA, c.AxisB

	// C = ni·nj - cos(angle), positive inside the cone
	c.JacobianA = JacobianElement{Rotational: ni.Cross(nj)}
	c.JacobianB = JacobianElement{Rotational: nj.Cross(ni)}

	g := ni.Dot(nj) - math.Cos(c.Angle)
	return c.bias(g, c.ComputeGW(), h)
}

// RotationalMotor drives the relative angular velocity around AxisA/AxisB to TargetVelocity.
type RotationalMotor struct {
	Base
	AxisA, AxisB   mgl64.Vec3
	TargetVelocity float64
}

func NewRotationalMotor(bodyA, bodyB *actor.RigidBody, maxForce float64) *RotationalMotor {
	return &RotationalMotor{Base: newBase(bodyA, bodyB, -maxForce, maxForce)}
}

func (m *RotationalMotor) ComputeB(h float64) float64 {
	m.JacobianA = JacobianElement{Rotational: m.AxisA}
	m.JacobianB = JacobianElement{Rotational: m.AxisB.Mul(-1)}

	gw := m.ComputeGW() - m.TargetVelocity
	return m.bias(0, gw, h)
}
