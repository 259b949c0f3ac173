// Package equation implements velocity constraints between two bodies in the
// SPOOK formulation: each equation holds a 12 component Jacobian, a force box
// and the a/b/eps stabilization parameters derived from stiffness, relaxation
// and the timestep.
package equation

import (
	"sync/atomic"

	"github.com/akmonengine/ballista/actor"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	DefaultMaxForce   = 1e6
	DefaultStiffness  = 1e7
	DefaultRelaxation = 4
	DefaultTimeStep   = 1.0 / 60.0
)

var equationIDs atomic.Int64

// JacobianElement is one body's half of a Jacobian row.
type JacobianElement struct {
	Spatial    mgl64.Vec3
	Rotational mgl64.Vec3
}

func (j JacobianElement) MultiplyElement(other JacobianElement) float64 {
	return j.Spatial.Dot(other.Spatial) + j.Rotational.Dot(other.Rotational)
}

func (j JacobianElement) MultiplyVectors(spatial, rotational mgl64.Vec3) float64 {
	return j.Spatial.Dot(spatial) + j.Rotational.Dot(rotational)
}

// Equation is implemented by every constraint kind the solver accepts.
type Equation interface {
	Core() *Base
	// ComputeB returns the right hand side of the SPOOK system for timestep h
	ComputeB(h float64) float64
}

// Base carries the state shared by every equation kind.
type Base struct {
	ID           int
	BodyA, BodyB *actor.RigidBody
	MinForce     float64
	MaxForce     float64

	Stiffness  float64
	Relaxation float64
	A, B, Eps  float64

	JacobianA JacobianElement
	JacobianB JacobianElement

	Enabled bool
	// Lambda is the impulse found by the last solve, Multiplier the matching force
	Lambda     float64
	Multiplier float64
}

func newBase(bodyA, bodyB *actor.RigidBody, minForce, maxForce float64) Base {
	b := Base{
		ID:       int(equationIDs.Add(1)),
		BodyA:    bodyA,
		BodyB:    bodyB,
		MinForce: minForce,
		MaxForce: maxForce,
		Enabled:  true,
	}
	b.SetSpookParams(DefaultStiffness, DefaultRelaxation, DefaultTimeStep)
	return b
}

func (e *Base) Core() *Base { return e }

// SetSpookParams derives a, b and eps from stiffness k, relaxation d and timestep h.
func (e *Base) SetSpookParams(stiffness, relaxation, h float64) {
	e.Stiffness = stiffness
	e.Relaxation = relaxation
	e.A = 4.0 / (h * (1 + 4*relaxation))
	e.B = (4.0 * relaxation) / (1 + 4*relaxation)
	e.Eps = 4.0 / (h * h * stiffness * (1 + 4*relaxation))
}

// bias assembles B = -g*a - GW*b - h*GiMf.
func (e *Base) bias(g, gw, h float64) float64 {
	return -g*e.A - gw*e.B - h*e.ComputeGiMf()
}

// ComputeGW returns J·v with the bodies' current velocities.
func (e *Base) ComputeGW() float64 {
	return e.JacobianA.MultiplyVectors(e.BodyA.Velocity, e.BodyA.AngularVelocity) +
		e.JacobianB.MultiplyVectors(e.BodyB.Velocity, e.BodyB.AngularVelocity)
}

// ComputeGWlambda returns J·Δv with the solver's velocity corrections.
func (e *Base) ComputeGWlambda() float64 {
	return e.JacobianA.MultiplyVectors(e.BodyA.VLambda, e.BodyA.WLambda) +
		e.JacobianB.MultiplyVectors(e.BodyB.VLambda, e.BodyB.WLambda)
}

// ComputeGiMf returns J·M⁻¹·f for the accumulated forces and torques.
func (e *Base) ComputeGiMf() float64 {
	bi, bj := e.BodyA, e.BodyB

	iMfi := bi.Force.Mul(bi.InvMassSolve)
	iMfj := bj.Force.Mul(bj.InvMassSolve)
	invIiTaui := bi.InvInertiaWorldSolve.Mul3x1(bi.Torque)
	invIjTauj := bj.InvInertiaWorldSolve.Mul3x1(bj.Torque)

	return e.JacobianA.MultiplyVectors(iMfi, invIiTaui) + e.JacobianB.MultiplyVectors(iMfj, invIjTauj)
}

// ComputeGiMGt returns the effective inverse mass J·M⁻¹·Jᵀ.
func (e *Base) ComputeGiMGt() float64 {
	bi, bj := e.BodyA, e.BodyB
	ga, gb := e.JacobianA, e.JacobianB

	result := bi.InvMassSolve*ga.Spatial.LenSqr() + bj.InvMassSolve*gb.Spatial.LenSqr()
	result += ga.Rotational.Dot(bi.InvInertiaWorldSolve.Mul3x1(ga.Rotational))
	result += gb.Rotational.Dot(bj.InvInertiaWorldSolve.Mul3x1(gb.Rotational))

	return result
}

// ComputeC returns the SPOOK denominator J·M⁻¹·Jᵀ + eps.
func (e *Base) ComputeC() float64 {
	return e.ComputeGiMGt() + e.Eps
}

// AddToWlambda projects the impulse delta into the bodies' velocity
// corrections. Bodies without solver mass are never written.
func (e *Base) AddToWlambda(deltaLambda float64) {
	for _, side := range [2]struct {
		body *actor.RigidBody
		j    JacobianElement
	}{{e.BodyA, e.JacobianA}, {e.BodyB, e.JacobianB}} {
		b := side.body
		if b.InvMassSolve == 0 {
			continue
		}
		b.VLambda = b.VLambda.Add(side.j.Spatial.Mul(b.InvMassSolve * deltaLambda))
		b.WLambda = b.WLambda.Add(b.InvInertiaWorldSolve.Mul3x1(side.j.Rotational).Mul(deltaLambda))
	}
}
