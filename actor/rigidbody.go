package actor

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/akmonengine/ballista/mathx"
	"github.com/go-gl/mathgl/mgl64"
)

var (
	// ErrInvalidMass reports a negative or non-finite body mass.
	ErrInvalidMass = errors.New("invalid mass")

	bodyIDs  atomic.Int64
	shapeIDs atomic.Int64
)

// BodyType represents the type of rigid body
type BodyType int

const (
	// BodyTypeDynamic bodies are affected by forces, gravity, and collisions
	// They have finite mass and can move freely
	BodyTypeDynamic BodyType = iota

	// BodyTypeStatic bodies are immovable and have infinite mass
	// They are not affected by forces or gravity (e.g., ground, walls)
	BodyTypeStatic

	// BodyTypeKinematic bodies move with their velocity only, pushing dynamic
	// bodies without being affected by them
	BodyTypeKinematic
)

// SleepState is the position of a body in the sleep state machine.
type SleepState int

const (
	SleepStateAwake SleepState = iota
	SleepStateSleepy
	SleepStateSleeping
)

func (s SleepState) String() string {
	switch s {
	case SleepStateAwake:
		return "awake"
	case SleepStateSleepy:
		return "sleepy"
	case SleepStateSleeping:
		return "sleeping"
	}
	return fmt.Sprintf("SleepState(%d)", int(s))
}

// ShapeAttachment places a shape on a body.
type ShapeAttachment struct {
	ID          int
	Shape       Shape
	Offset      mgl64.Vec3
	Orientation mgl64.Quat
	// Material overrides the body material for this shape when set
	Material *Material
}

// RigidBody represents a rigid body in the physics simulation
type RigidBody struct {
	ID int
	// Index is the body's slot in its world, -1 outside of a world
	Index int
	Type  BodyType

	Mass    float64
	InvMass float64

	// Spatial properties
	PreviousTransform     Transform
	Transform             Transform
	InterpolatedTransform Transform

	Velocity        mgl64.Vec3 // Linear velocity (m/s)
	AngularVelocity mgl64.Vec3 // rad/s

	Force  mgl64.Vec3
	Torque mgl64.Vec3

	// Diagonal inertia in the body frame
	InertiaLocal    mgl64.Vec3
	InvInertiaLocal mgl64.Vec3
	InvInertiaWorld mgl64.Mat3

	// Mass properties seen by the solver; zero for sleeping and kinematic bodies
	InvMassSolve         float64
	InvInertiaWorldSolve mgl64.Mat3

	// Velocity corrections accumulated by the solver
	VLambda mgl64.Vec3
	WLambda mgl64.Vec3

	LinearFactor   mgl64.Vec3
	AngularFactor  mgl64.Vec3
	LinearDamping  float64
	AngularDamping float64

	CollisionFilterGroup int
	CollisionFilterMask  int
	// CollisionResponse false keeps contact detection and events but no contact forces
	CollisionResponse bool

	Material *Material
	Shapes   []ShapeAttachment

	AllowSleep             bool
	SleepState             SleepState
	SleepSpeedLimit        float64
	SleepTimeLimit         float64
	TimeLastSleepy         float64
	WakeUpAfterNarrowphase bool

	boundingRadius float64
	aabb           AABB
	aabbDirty      bool
}

// NewRigidBody creates a body without shapes. A dynamic body with zero mass is
// made static; static and kinematic bodies always carry zero mass.
func NewRigidBody(transform Transform, mass float64, bodyType BodyType) (*RigidBody, error) {
	if mass < 0 || math.IsNaN(mass) || math.IsInf(mass, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMass, mass)
	}
	if bodyType == BodyTypeDynamic && mass == 0 {
		bodyType = BodyTypeStatic
	}
	if bodyType != BodyTypeDynamic {
		mass = 0
	}
	if transform.Rotation.Len() == 0 {
		transform.Rotation = mgl64.QuatIdent()
	}
	transform.Rotation = transform.Rotation.Normalize()

	rb := &RigidBody{
		ID:                    int(bodyIDs.Add(1)),
		Index:                 -1,
		Type:                  bodyType,
		Mass:                  mass,
		PreviousTransform:     transform,
		Transform:             transform,
		InterpolatedTransform: transform,
		LinearFactor:          mgl64.Vec3{1, 1, 1},
		AngularFactor:         mgl64.Vec3{1, 1, 1},
		LinearDamping:         0.01,
		AngularDamping:        0.01,
		CollisionFilterGroup:  1,
		CollisionFilterMask:   -1,
		CollisionResponse:     true,
		AllowSleep:            true,
		SleepSpeedLimit:       0.1,
		SleepTimeLimit:        1,
		aabbDirty:             true,
	}
	rb.UpdateMassProperties()

	return rb, nil
}

// AddShape attaches shape at a local offset and orientation and returns the attachment id.
func (rb *RigidBody) AddShape(shape Shape, offset mgl64.Vec3, orientation mgl64.Quat) (int, error) {
	if shape == nil {
		return 0, fmt.Errorf("%w: nil shape", ErrInvalidShape)
	}
	if orientation.Len() == 0 {
		orientation = mgl64.QuatIdent()
	}
	attachment := ShapeAttachment{
		ID:          int(shapeIDs.Add(1)),
		Shape:       shape,
		Offset:      offset,
		Orientation: orientation.Normalize(),
	}
	rb.Shapes = append(rb.Shapes, attachment)

	rb.updateBoundingRadius()
	rb.UpdateMassProperties()
	rb.aabbDirty = true

	return attachment.ID, nil
}

// RemoveShape detaches the shape with the given attachment id.
func (rb *RigidBody) RemoveShape(id int) bool {
	for i, s := range rb.Shapes {
		if s.ID == id {
			rb.Shapes = append(rb.Shapes[:i], rb.Shapes[i+1:]...)
			rb.updateBoundingRadius()
			rb.UpdateMassProperties()
			rb.aabbDirty = true
			return true
		}
	}
	return false
}

func (rb *RigidBody) updateBoundingRadius() {
	rb.boundingRadius = 0
	for _, s := range rb.Shapes {
		rb.boundingRadius = math.Max(rb.boundingRadius, s.Offset.Len()+s.Shape.BoundingRadius())
	}
}

func (rb *RigidBody) BoundingRadius() float64 {
	return rb.boundingRadius
}

// UpdateMassProperties recomputes the inverse mass and inertia from Mass and
// the attached shapes.
func (rb *RigidBody) UpdateMassProperties() {
	rb.InvMass = 0
	if rb.Mass > 0 {
		rb.InvMass = 1.0 / rb.Mass
	}

	switch {
	case len(rb.Shapes) == 0 || rb.Mass <= 0:
		rb.InertiaLocal = mgl64.Vec3{}
	case len(rb.Shapes) == 1 && rb.Shapes[0].Offset == (mgl64.Vec3{}) && rb.Shapes[0].Orientation == mgl64.QuatIdent():
		rb.InertiaLocal = rb.Shapes[0].Shape.LocalInertia(rb.Mass)
	default:
		parts := make([]CompoundChild, len(rb.Shapes))
		for i, s := range rb.Shapes {
			parts[i] = CompoundChild{Shape: s.Shape, Offset: s.Offset, Orientation: s.Orientation}
		}
		rb.InertiaLocal = AggregateInertia(parts, rb.Mass)
	}

	rb.InvInertiaLocal = mgl64.Vec3{}
	for i := 0; i < 3; i++ {
		if rb.InertiaLocal[i] > 0 {
			rb.InvInertiaLocal[i] = 1.0 / rb.InertiaLocal[i]
		}
	}

	rb.UpdateInertiaWorld()
	rb.UpdateSolveMassProperties()
}

// UpdateInertiaWorld recomputes I_world^-1 = R * I_local^-1 * R^T from the current orientation.
func (rb *RigidBody) UpdateInertiaWorld() {
	r := rb.Transform.Rotation.Mat4().Mat3()
	rb.InvInertiaWorld = r.Mul3(mgl64.Diag3(rb.InvInertiaLocal)).Mul3(r.Transpose())
}

// UpdateSolveMassProperties refreshes the mass properties used by the solver.
func (rb *RigidBody) UpdateSolveMassProperties() {
	if rb.SleepState == SleepStateSleeping || rb.Type != BodyTypeDynamic {
		rb.InvMassSolve = 0
		rb.InvInertiaWorldSolve = mgl64.Mat3{}
		return
	}
	rb.InvMassSolve = rb.InvMass
	rb.InvInertiaWorldSolve = rb.InvInertiaWorld
}

// ShapeTransform returns the world transform of an attachment.
func (rb *RigidBody) ShapeTransform(s ShapeAttachment) Transform {
	return rb.Transform.Compose(s.Offset, s.Orientation)
}

// UpdateAABB recomputes the world bounds of all attached shapes.
func (rb *RigidBody) UpdateAABB() {
	rb.aabb = EmptyAABB()
	for _, s := range rb.Shapes {
		rb.aabb = rb.aabb.Union(s.Shape.WorldAABB(rb.ShapeTransform(s)))
	}
	if len(rb.Shapes) == 0 {
		rb.aabb = AABB{Min: rb.Transform.Position, Max: rb.Transform.Position}
	}
	rb.aabbDirty = false
}

func (rb *RigidBody) AABB() AABB {
	if rb.aabbDirty {
		rb.UpdateAABB()
	}
	return rb.aabb
}

// MarkAABBDirty must be called after moving the body by hand.
func (rb *RigidBody) MarkAABBDirty() {
	rb.aabbDirty = true
}

// SetPosition teleports the body and keeps its cached state consistent.
func (rb *RigidBody) SetPosition(p mgl64.Vec3) {
	rb.Transform.Position = p
	rb.PreviousTransform.Position = p
	rb.InterpolatedTransform.Position = p
	rb.aabbDirty = true
}

// SetRotation replaces the orientation and keeps its cached state consistent.
func (rb *RigidBody) SetRotation(q mgl64.Quat) {
	q = q.Normalize()
	rb.Transform.Rotation = q
	rb.PreviousTransform.Rotation = q
	rb.InterpolatedTransform.Rotation = q
	rb.UpdateInertiaWorld()
	rb.aabbDirty = true
}

func (rb *RigidBody) PointToLocal(world mgl64.Vec3) mgl64.Vec3 {
	return rb.Transform.PointToLocal(world)
}

func (rb *RigidBody) PointToWorld(local mgl64.Vec3) mgl64.Vec3 {
	return rb.Transform.PointToWorld(local)
}

func (rb *RigidBody) VectorToLocal(world mgl64.Vec3) mgl64.Vec3 {
	return rb.Transform.VectorToLocal(world)
}

func (rb *RigidBody) VectorToWorld(local mgl64.Vec3) mgl64.Vec3 {
	return rb.Transform.VectorToWorld(local)
}

// VelocityAtWorldPoint returns v + ω × (p - x).
func (rb *RigidBody) VelocityAtWorldPoint(p mgl64.Vec3) mgl64.Vec3 {
	return rb.Velocity.Add(rb.AngularVelocity.Cross(p.Sub(rb.Transform.Position)))
}

// ApplyForce adds a world force applied at a point relative to the center of mass.
func (rb *RigidBody) ApplyForce(force, relativePoint mgl64.Vec3) {
	if rb.Type != BodyTypeDynamic {
		return
	}
	if rb.SleepState == SleepStateSleeping {
		rb.WakeUp()
	}
	rb.Force = rb.Force.Add(force)
	rb.Torque = rb.Torque.Add(relativePoint.Cross(force))
}

// ApplyLocalForce applies a force given in body coordinates at a local point.
func (rb *RigidBody) ApplyLocalForce(localForce, localPoint mgl64.Vec3) {
	rb.ApplyForce(rb.VectorToWorld(localForce), rb.VectorToWorld(localPoint))
}

func (rb *RigidBody) ApplyTorque(torque mgl64.Vec3) {
	if rb.Type != BodyTypeDynamic {
		return
	}
	if rb.SleepState == SleepStateSleeping {
		rb.WakeUp()
	}
	rb.Torque = rb.Torque.Add(torque)
}

// ApplyImpulse changes the velocity immediately; relativePoint is relative to the center of mass.
func (rb *RigidBody) ApplyImpulse(impulse, relativePoint mgl64.Vec3) {
	if rb.Type != BodyTypeDynamic {
		return
	}
	rb.WakeUp()

	dv := mathx.Scale(impulse.Mul(rb.InvMass), rb.LinearFactor)
	rb.Velocity = rb.Velocity.Add(dv)

	dw := mathx.Scale(rb.InvInertiaWorld.Mul3x1(relativePoint.Cross(impulse)), rb.AngularFactor)
	rb.AngularVelocity = rb.AngularVelocity.Add(dw)
}

func (rb *RigidBody) ClearForces() {
	rb.Force = mgl64.Vec3{0, 0, 0}
	rb.Torque = mgl64.Vec3{0, 0, 0}
}

// ApplyDamping scales velocities by (1-damping)^dt.
func (rb *RigidBody) ApplyDamping(dt float64) {
	if rb.Type != BodyTypeDynamic {
		return
	}
	rb.Velocity = rb.Velocity.Mul(math.Pow(1.0-rb.LinearDamping, dt))
	rb.AngularVelocity = rb.AngularVelocity.Mul(math.Pow(1.0-rb.AngularDamping, dt))
}

// Integrate advances the body by dt with semi-implicit Euler. Orientation is
// renormalized when quatNormalize is set, approximately when fast is set.
func (rb *RigidBody) Integrate(dt float64, quatNormalize, fast bool) {
	if rb.Type == BodyTypeStatic || rb.SleepState == SleepStateSleeping {
		return
	}

	rb.PreviousTransform = rb.Transform

	iMdt := rb.InvMass * dt
	rb.Velocity = rb.Velocity.Add(mathx.Scale(rb.Force.Mul(iMdt), rb.LinearFactor))

	angularAccel := rb.InvInertiaWorld.Mul3x1(rb.Torque)
	rb.AngularVelocity = rb.AngularVelocity.Add(mathx.Scale(angularAccel.Mul(dt), rb.AngularFactor))

	rb.Transform.Position = rb.Transform.Position.Add(rb.Velocity.Mul(dt))

	omega := mathx.Scale(rb.AngularVelocity, rb.AngularFactor)
	rb.Transform.Rotation = mathx.IntegrateQuat(rb.Transform.Rotation, omega, dt)
	if quatNormalize {
		if fast {
			rb.Transform.Rotation = mathx.NormalizeFast(rb.Transform.Rotation)
		} else {
			rb.Transform.Rotation = rb.Transform.Rotation.Normalize()
		}
	}

	rb.aabbDirty = true
	rb.UpdateInertiaWorld()
}

// Interpolate sets InterpolatedTransform between the previous and current pose.
func (rb *RigidBody) Interpolate(alpha float64) {
	rb.InterpolatedTransform.Position = rb.PreviousTransform.Position.Add(
		rb.Transform.Position.Sub(rb.PreviousTransform.Position).Mul(alpha))
	rb.InterpolatedTransform.Rotation = mgl64.QuatSlerp(rb.PreviousTransform.Rotation, rb.Transform.Rotation, alpha)
}

func (rb *RigidBody) IsAwake() bool {
	return rb.SleepState == SleepStateAwake
}

func (rb *RigidBody) IsSleeping() bool {
	return rb.SleepState == SleepStateSleeping
}

// WakeUp puts the body back in the awake state and reports whether it was sleeping.
func (rb *RigidBody) WakeUp() bool {
	wasSleeping := rb.SleepState == SleepStateSleeping
	rb.SleepState = SleepStateAwake
	rb.WakeUpAfterNarrowphase = false
	return wasSleeping
}

func (rb *RigidBody) Sleep() {
	rb.SleepState = SleepStateSleeping
	rb.ClearForces()
	rb.Velocity = mgl64.Vec3{}
	rb.AngularVelocity = mgl64.Vec3{}
	rb.WakeUpAfterNarrowphase = false
}

// SleepTick advances the sleep state machine at simulated time now and
// returns the resulting state.
func (rb *RigidBody) SleepTick(now float64) SleepState {
	if !rb.AllowSleep || rb.Type != BodyTypeDynamic {
		return rb.SleepState
	}

	speedSq := rb.Velocity.LenSqr() + rb.AngularVelocity.LenSqr()
	limitSq := rb.SleepSpeedLimit * rb.SleepSpeedLimit

	switch {
	case rb.SleepState == SleepStateAwake && speedSq < limitSq:
		rb.SleepState = SleepStateSleepy
		rb.TimeLastSleepy = now
	case rb.SleepState == SleepStateSleepy && speedSq > limitSq:
		rb.WakeUp()
	case rb.SleepState == SleepStateSleepy && now-rb.TimeLastSleepy > rb.SleepTimeLimit:
		rb.Sleep()
	}

	return rb.SleepState
}
