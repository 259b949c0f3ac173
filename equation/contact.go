package equation

import (
	"github.com/akmonengine/ballista/actor"
	"github.com/go-gl/mathgl/mgl64"
)

// Contact keeps two bodies from interpenetrating along NI.
// RI and RJ are the world offsets from each body's center to its contact point,
// NI is the contact normal pointing out of BodyA.
type Contact struct {
	Base
	Restitution float64
	RI, RJ      mgl64.Vec3
	NI          mgl64.Vec3

	// ShapeA and ShapeB are the attachment ids of the touching shapes
	ShapeA, ShapeB int
}

func NewContact(bodyA, bodyB *actor.RigidBody, maxForce float64) *Contact {
	return &Contact{Base: newBase(bodyA, bodyB, 0, maxForce)}
}

// Reset prepares a pooled contact for reuse between new bodies.
func (c *Contact) Reset(bodyA, bodyB *actor.RigidBody) {
	id := c.ID
	*c = Contact{Base: newBase(bodyA, bodyB, 0, DefaultMaxForce)}
	c.ID = id
}

// Penetration returns the signed separation of the contact points along NI,
// negative when the bodies overlap.
func (c *Contact) Penetration() float64 {
	pi := c.BodyA.Transform.Position.Add(c.RI)
	pj := c.BodyB.Transform.Position.Add(c.RJ)
	return pj.Sub(pi).Dot(c.NI)
}

func (c *Contact) ComputeB(h float64) float64 {
	bi, bj := c.BodyA, c.BodyB
	n := c.NI

	rixn := c.RI.Cross(n)
	rjxn := c.RJ.Cross(n)

	c.JacobianA = JacobianElement{Spatial: n.Mul(-1), Rotational: rixn.Mul(-1)}
	c.JacobianB = JacobianElement{Spatial: n, Rotational: rjxn}

	g := c.Penetration()

	ePlusOne := c.Restitution + 1
	gw := ePlusOne*bj.Velocity.Dot(n) - ePlusOne*bi.Velocity.Dot(n) +
		bj.AngularVelocity.Dot(rjxn) - bi.AngularVelocity.Dot(rixn)

	return c.bias(g, gw, h)
}

// ImpactVelocityAlongNormal returns the approach speed of the contact points along NI.
func (c *Contact) ImpactVelocityAlongNormal() float64 {
	xi := c.BodyA.Transform.Position.Add(c.RI)
	xj := c.BodyB.Transform.Position.Add(c.RJ)
	vi := c.BodyA.VelocityAtWorldPoint(xi)
	vj := c.BodyB.VelocityAtWorldPoint(xj)
	return c.NI.Dot(vi.Sub(vj))
}
