package constraint

import (
	"fmt"

	"github.com/akmonengine/ballista/actor"
	"github.com/akmonengine/ballista/equation"
	"github.com/akmonengine/ballista/mathx"
	"github.com/go-gl/mathgl/mgl64"
)

func unitAxis(axis mgl64.Vec3) (mgl64.Vec3, error) {
	if axis.LenSqr() == 0 || !mathx.IsFinite(axis) {
		return mgl64.Vec3{}, fmt.Errorf("%w: axis %v", ErrInvalidConstraint, axis)
	}
	return axis.Normalize(), nil
}

// Hinge allows rotation around one axis only. AxisA and AxisB are the hinge
// axis in each body's local frame. An optional motor drives the relative
// angular velocity around the axis.
type Hinge struct {
	PointToPoint
	AxisA, AxisB mgl64.Vec3

	RotationalEquation1 *equation.Rotational
	RotationalEquation2 *equation.Rotational
	MotorEquation       *equation.RotationalMotor

	motorEnabled bool
}

func NewHinge(bodyA *actor.RigidBody, pivotA, axisA mgl64.Vec3, bodyB *actor.RigidBody, pivotB, axisB mgl64.Vec3, maxForce float64) (*Hinge, error) {
	axisA, err := unitAxis(axisA)
	if err != nil {
		return nil, err
	}
	axisB, err = unitAxis(axisB)
	if err != nil {
		return nil, err
	}

	p2p, err := NewPointToPoint(bodyA, pivotA, bodyB, pivotB, maxForce)
	if err != nil {
		return nil, err
	}
	maxForce = p2p.EquationX.MaxForce

	h := &Hinge{
		PointToPoint:        *p2p,
		AxisA:               axisA,
		AxisB:               axisB,
		RotationalEquation1: equation.NewRotational(bodyA, bodyB, maxForce),
		RotationalEquation2: equation.NewRotational(bodyA, bodyB, maxForce),
		MotorEquation:       equation.NewRotationalMotor(bodyA, bodyB, maxForce),
	}
	h.MotorEquation.Enabled = false
	h.equations = append(h.equations, h.RotationalEquation1, h.RotationalEquation2, h.MotorEquation)

	return h, nil
}

func (h *Hinge) EnableMotor() {
	h.motorEnabled = true
	h.MotorEquation.Enabled = true
}

func (h *Hinge) DisableMotor() {
	h.motorEnabled = false
	h.MotorEquation.Enabled = false
}

func (h *Hinge) SetMotorSpeed(speed float64) {
	h.MotorEquation.TargetVelocity = speed
}

func (h *Hinge) SetMotorMaxForce(maxForce float64) {
	h.MotorEquation.MaxForce = maxForce
	h.MotorEquation.MinForce = -maxForce
}

// Enable turns the joint back on, leaving the motor as it was.
func (h *Hinge) Enable() {
	h.PointToPoint.Enable()
	h.MotorEquation.Enabled = h.motorEnabled
}

func (h *Hinge) Update() {
	h.PointToPoint.Update()

	worldAxisA := h.bodyA.VectorToWorld(h.AxisA)
	worldAxisB := h.bodyB.VectorToWorld(h.AxisB)

	// both tangents of the hinge axis on A must stay perpendicular to the axis on B
	t1, t2 := mathx.Tangents(worldAxisA)
	h.RotationalEquation1.AxisA = t1
	h.RotationalEquation1.AxisB = worldAxisB
	h.RotationalEquation2.AxisA = t2
	h.RotationalEquation2.AxisB = worldAxisB

	if h.MotorEquation.Enabled {
		h.MotorEquation.AxisA = worldAxisA
		h.MotorEquation.AxisB = worldAxisB
	}
}

// ConeTwist limits the swing of AxisB around AxisA to Angle and the twist
// around it to TwistAngle.
type ConeTwist struct {
	PointToPoint
	AxisA, AxisB mgl64.Vec3
	Angle        float64
	TwistAngle   float64

	ConeEquation  *equation.Cone
	TwistEquation *equation.Rotational
}

func NewConeTwist(bodyA *actor.RigidBody, pivotA, axisA mgl64.Vec3, bodyB *actor.RigidBody, pivotB, axisB mgl64.Vec3, angle, twistAngle, maxForce float64) (*ConeTwist, error) {
	axisA, err := unitAxis(axisA)
	if err != nil {
		return nil, err
	}
	axisB, err = unitAxis(axisB)
	if err != nil {
		return nil, err
	}
	if angle < 0 || twistAngle < 0 {
		return nil, fmt.Errorf("%w: negative cone angle", ErrInvalidConstraint)
	}

	p2p, err := NewPointToPoint(bodyA, pivotA, bodyB, pivotB, maxForce)
	if err != nil {
		return nil, err
	}
	maxForce = p2p.EquationX.MaxForce

	c := &ConeTwist{
		PointToPoint:  *p2p,
		AxisA:         axisA,
		AxisB:         axisB,
		Angle:         angle,
		TwistAngle:    twistAngle,
		ConeEquation:  equation.NewCone(bodyA, bodyB, maxForce),
		TwistEquation: equation.NewRotational(bodyA, bodyB, maxForce),
	}
	// one sided: the twist equation only acts once the limit is exceeded
	c.TwistEquation.MinForce = -maxForce
	c.TwistEquation.MaxForce = 0
	c.equations = append(c.equations, c.ConeEquation, c.TwistEquation)

	return c, nil
}

func (c *ConeTwist) Update() {
	c.PointToPoint.Update()

	c.ConeEquation.AxisA = c.bodyA.VectorToWorld(c.AxisA)
	c.ConeEquation.AxisB = c.bodyB.VectorToWorld(c.AxisB)
	c.ConeEquation.Angle = c.Angle

	twistA, _ := mathx.Tangents(c.AxisA)
	twistB, _ := mathx.Tangents(c.AxisB)
	c.TwistEquation.AxisA = c.bodyA.VectorToWorld(twistA)
	c.TwistEquation.AxisB = c.bodyB.VectorToWorld(twistB)
	c.TwistEquation.MaxAngle = c.TwistAngle
}
