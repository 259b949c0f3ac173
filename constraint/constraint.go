// Package constraint provides persistent joints between two bodies. Each joint
// owns a fixed set of equations that the world hands to the solver every step
// after refreshing them with Update.
package constraint

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/akmonengine/ballista/actor"
	"github.com/akmonengine/ballista/equation"
	"github.com/go-gl/mathgl/mgl64"
)

var ErrInvalidConstraint = errors.New("invalid constraint")

var constraintIDs atomic.Int64

type Constraint interface {
	ID() int
	Bodies() (a, b *actor.RigidBody)
	Equations() []equation.Equation
	// Update refreshes the equations from the current body poses.
	Update()
	// CollideConnected reports whether the two bodies still collide with each other.
	CollideConnected() bool
	Enable()
	Disable()
}

type base struct {
	id               int
	bodyA, bodyB     *actor.RigidBody
	equations        []equation.Equation
	collideConnected bool
}

func newBase(bodyA, bodyB *actor.RigidBody) (base, error) {
	if bodyA == nil || bodyB == nil {
		return base{}, fmt.Errorf("%w: nil body", ErrInvalidConstraint)
	}
	if bodyA == bodyB {
		return base{}, fmt.Errorf("%w: body %d constrained to itself", ErrInvalidConstraint, bodyA.ID)
	}

	bodyA.WakeUp()
	bodyB.WakeUp()

	return base{
		id:               int(constraintIDs.Add(1)),
		bodyA:            bodyA,
		bodyB:            bodyB,
		collideConnected: true,
	}, nil
}

func (c *base) ID() int { return c.id }

func (c *base) Bodies() (a, b *actor.RigidBody) { return c.bodyA, c.bodyB }

func (c *base) Equations() []equation.Equation { return c.equations }

func (c *base) CollideConnected() bool { return c.collideConnected }

func (c *base) SetCollideConnected(collide bool) { c.collideConnected = collide }

func (c *base) Enable() {
	for _, eq := range c.equations {
		eq.Core().Enabled = true
	}
}

func (c *base) Disable() {
	for _, eq := range c.equations {
		eq.Core().Enabled = false
	}
}

func checkMaxForce(maxForce float64) (float64, error) {
	if maxForce == 0 {
		return equation.DefaultMaxForce, nil
	}
	if maxForce < 0 {
		return 0, fmt.Errorf("%w: max force %v", ErrInvalidConstraint, maxForce)
	}
	return maxForce, nil
}

// PointToPoint pins PivotA (local to body A) onto PivotB (local to body B)
// with one bilateral contact equation per world axis.
type PointToPoint struct {
	base
	PivotA, PivotB mgl64.Vec3

	EquationX, EquationY, EquationZ *equation.Contact
}

// NewPointToPoint creates a ball joint. A zero maxForce selects equation.DefaultMaxForce.
func NewPointToPoint(bodyA *actor.RigidBody, pivotA mgl64.Vec3, bodyB *actor.RigidBody, pivotB mgl64.Vec3, maxForce float64) (*PointToPoint, error) {
	b, err := newBase(bodyA, bodyB)
	if err != nil {
		return nil, err
	}
	if maxForce, err = checkMaxForce(maxForce); err != nil {
		return nil, err
	}

	p := &PointToPoint{base: b, PivotA: pivotA, PivotB: pivotB}
	p.EquationX = bilateralContact(bodyA, bodyB, mgl64.Vec3{1, 0, 0}, maxForce)
	p.EquationY = bilateralContact(bodyA, bodyB, mgl64.Vec3{0, 1, 0}, maxForce)
	p.EquationZ = bilateralContact(bodyA, bodyB, mgl64.Vec3{0, 0, 1}, maxForce)
	p.equations = []equation.Equation{p.EquationX, p.EquationY, p.EquationZ}

	return p, nil
}

func bilateralContact(bodyA, bodyB *actor.RigidBody, normal mgl64.Vec3, maxForce float64) *equation.Contact {
	c := equation.NewContact(bodyA, bodyB, maxForce)
	c.MinForce = -maxForce
	c.NI = normal
	return c
}

func (p *PointToPoint) Update() {
	ri := p.bodyA.VectorToWorld(p.PivotA)
	rj := p.bodyB.VectorToWorld(p.PivotB)

	for _, eq := range [3]*equation.Contact{p.EquationX, p.EquationY, p.EquationZ} {
		eq.RI = ri
		eq.RJ = rj
	}
}

// Distance keeps the body centers Distance apart.
type Distance struct {
	base
	Distance float64
	Equation *equation.Contact
}

// NewDistance creates a distance joint. A negative distance keeps the current separation.
func NewDistance(bodyA, bodyB *actor.RigidBody, distance, maxForce float64) (*Distance, error) {
	b, err := newBase(bodyA, bodyB)
	if err != nil {
		return nil, err
	}
	if maxForce, err = checkMaxForce(maxForce); err != nil {
		return nil, err
	}
	if distance < 0 {
		distance = bodyB.Transform.Position.Sub(bodyA.Transform.Position).Len()
	}

	d := &Distance{base: b, Distance: distance}
	d.Equation = bilateralContact(bodyA, bodyB, mgl64.Vec3{1, 0, 0}, maxForce)
	d.equations = []equation.Equation{d.Equation}

	return d, nil
}

func (d *Distance) Update() {
	halfDistance := d.Distance * 0.5

	normal := d.bodyB.Transform.Position.Sub(d.bodyA.Transform.Position)
	if normal.LenSqr() > 0 {
		normal = normal.Normalize()
	} else {
		normal = mgl64.Vec3{1, 0, 0}
	}

	d.Equation.NI = normal
	d.Equation.RI = normal.Mul(halfDistance)
	d.Equation.RJ = normal.Mul(-halfDistance)
}

// Lock removes every relative degree of freedom: a point to point joint at the
// midpoint of the bodies plus three rotational equations keeping the local axes
// of both bodies in their initial relative orientation.
type Lock struct {
	PointToPoint

	xA, xB, yA, yB, zA, zB mgl64.Vec3

	RotationalEquation1 *equation.Rotational
	RotationalEquation2 *equation.Rotational
	RotationalEquation3 *equation.Rotational
}

func NewLock(bodyA, bodyB *actor.RigidBody, maxForce float64) (*Lock, error) {
	if bodyA == nil || bodyB == nil {
		return nil, fmt.Errorf("%w: nil body", ErrInvalidConstraint)
	}

	halfWay := bodyA.Transform.Position.Add(bodyB.Transform.Position).Mul(0.5)
	p2p, err := NewPointToPoint(bodyA, bodyA.PointToLocal(halfWay), bodyB, bodyB.PointToLocal(halfWay), maxForce)
	if err != nil {
		return nil, err
	}
	maxForce = p2p.EquationX.MaxForce

	l := &Lock{
		PointToPoint: *p2p,
		xA:           bodyA.VectorToLocal(mgl64.Vec3{1, 0, 0}),
		xB:           bodyB.VectorToLocal(mgl64.Vec3{1, 0, 0}),
		yA:           bodyA.VectorToLocal(mgl64.Vec3{0, 1, 0}),
		yB:           bodyB.VectorToLocal(mgl64.Vec3{0, 1, 0}),
		zA:           bodyA.VectorToLocal(mgl64.Vec3{0, 0, 1}),
		zB:           bodyB.VectorToLocal(mgl64.Vec3{0, 0, 1}),

		RotationalEquation1: equation.NewRotational(bodyA, bodyB, maxForce),
		RotationalEquation2: equation.NewRotational(bodyA, bodyB, maxForce),
		RotationalEquation3: equation.NewRotational(bodyA, bodyB, maxForce),
	}
	l.equations = append(l.equations, l.RotationalEquation1, l.RotationalEquation2, l.RotationalEquation3)

	return l, nil
}

func (l *Lock) Update() {
	l.PointToPoint.Update()

	l.RotationalEquation1.AxisA = l.bodyA.VectorToWorld(l.xA)
	l.RotationalEquation1.AxisB = l.bodyB.VectorToWorld(l.yB)

	l.RotationalEquation2.AxisA = l.bodyA.VectorToWorld(l.yA)
	l.RotationalEquation2.AxisB = l.bodyB.VectorToWorld(l.zB)

	l.RotationalEquation3.AxisA = l.bodyA.VectorToWorld(l.zA)
	l.RotationalEquation3.AxisB = l.bodyB.VectorToWorld(l.xB)
}
