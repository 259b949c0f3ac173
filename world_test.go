package ballista

import (
	"math"
	"testing"

	"github.com/akmonengine/ballista/actor"
	"github.com/akmonengine/ballista/constraint"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const step = 1.0 / 60.0

func newBody(t *testing.T, pos mgl64.Vec3, mass float64, shape actor.Shape) *actor.RigidBody {
	t.Helper()

	bodyType := actor.BodyTypeDynamic
	if mass == 0 {
		bodyType = actor.BodyTypeStatic
	}
	rb, err := actor.NewRigidBody(actor.Transform{Position: pos, Rotation: mgl64.QuatIdent()}, mass, bodyType)
	require.NoError(t, err)
	_, err = rb.AddShape(shape, mgl64.Vec3{}, mgl64.QuatIdent())
	require.NoError(t, err)
	return rb
}

func newSphereBody(t *testing.T, pos mgl64.Vec3, radius, mass float64) *actor.RigidBody {
	t.Helper()
	sphere, err := actor.NewSphere(radius)
	require.NoError(t, err)
	return newBody(t, pos, mass, sphere)
}

func newBoxBody(t *testing.T, pos, halfExtents mgl64.Vec3, mass float64) *actor.RigidBody {
	t.Helper()
	box, err := actor.NewBox(halfExtents)
	require.NoError(t, err)
	return newBody(t, pos, mass, box)
}

// newPlaneBody returns a static ground plane through the origin facing +z.
func newPlaneBody(t *testing.T) *actor.RigidBody {
	t.Helper()
	return newBody(t, mgl64.Vec3{}, 0, actor.NewPlane())
}

func addBodies(t *testing.T, w *World, bodies ...*actor.RigidBody) {
	t.Helper()
	for _, b := range bodies {
		require.NoError(t, w.AddBody(b))
	}
}

// ============================================================================
// Registry
// ============================================================================

func TestWorld_AddBody(t *testing.T) {
	w := New()
	a := newSphereBody(t, mgl64.Vec3{}, 1, 1)
	b := newSphereBody(t, mgl64.Vec3{5, 0, 0}, 1, 1)

	addBodies(t, w, a, b)
	require.NoError(t, w.AddBody(a), "adding twice is a no-op")

	assert.Len(t, w.Bodies, 2)
	assert.Equal(t, 0, a.Index)
	assert.Equal(t, 1, b.Index)
	assert.Same(t, w.DefaultMaterial, a.Material)

	got, err := w.BodyByID(b.ID)
	require.NoError(t, err)
	assert.Same(t, b, got)

	assert.ErrorIs(t, w.AddBody(nil), ErrUnknownBody)
}

func TestWorld_AddBodyRejectsUnsupportedPair(t *testing.T) {
	w := New()
	hf, err := actor.NewHeightfield([][]float64{{0, 0}, {0, 0}}, 1)
	require.NoError(t, err)
	addBodies(t, w, newBody(t, mgl64.Vec3{}, 0, hf))

	// two static bodies never meet
	require.NoError(t, w.AddBody(newPlaneBody(t)))

	dynamicPlane := newBody(t, mgl64.Vec3{}, 1, actor.NewPlane())
	err = w.AddBody(dynamicPlane)
	assert.ErrorIs(t, err, ErrUnsupportedShapePair)
	assert.Equal(t, -1, dynamicPlane.Index)
	assert.Len(t, w.Bodies, 2)
}

func TestWorld_RemoveBody(t *testing.T) {
	w := New()
	a := newSphereBody(t, mgl64.Vec3{}, 1, 1)
	b := newSphereBody(t, mgl64.Vec3{3, 0, 0}, 1, 1)
	c := newSphereBody(t, mgl64.Vec3{6, 0, 0}, 1, 1)
	addBodies(t, w, a, b, c)

	dist, err := constraint.NewDistance(a, b, 3, 1e6)
	require.NoError(t, err)
	require.NoError(t, w.AddConstraint(dist))
	lock, err := constraint.NewLock(b, c, 1e6)
	require.NoError(t, err)
	require.NoError(t, w.AddConstraint(lock))

	require.NoError(t, w.RemoveBody(a))

	assert.Equal(t, []*actor.RigidBody{b, c}, w.Bodies)
	assert.Equal(t, 0, b.Index)
	assert.Equal(t, 1, c.Index)
	assert.Equal(t, -1, a.Index)
	assert.Len(t, w.Constraints, 1, "constraints on the removed body go with it")
	assert.False(t, w.RemoveConstraint(dist))

	assert.ErrorIs(t, w.RemoveBody(a), ErrUnknownBody)
	_, err = w.BodyByID(a.ID)
	assert.ErrorIs(t, err, ErrUnknownBody)
}

func TestWorld_AddConstraintNeedsBodies(t *testing.T) {
	w := New()
	a := newSphereBody(t, mgl64.Vec3{}, 1, 1)
	b := newSphereBody(t, mgl64.Vec3{3, 0, 0}, 1, 1)
	addBodies(t, w, a)

	lock, err := constraint.NewLock(a, b, 1e6)
	require.NoError(t, err)
	assert.ErrorIs(t, w.AddConstraint(lock), ErrUnknownBody)
	assert.Empty(t, w.Constraints)
}

func TestWorld_ContactMaterial(t *testing.T) {
	w := New()
	ice := actor.NewMaterial("ice")
	steel := actor.NewMaterial("steel")

	assert.Nil(t, w.ContactMaterial(ice, steel))
	assert.Nil(t, w.ContactMaterial(nil, steel))

	cm, err := actor.NewContactMaterial(ice, steel, 0.01, 0.2)
	require.NoError(t, err)
	require.NoError(t, w.AddContactMaterial(cm))

	assert.Same(t, cm, w.ContactMaterial(ice, steel))
	assert.Same(t, cm, w.ContactMaterial(steel, ice))

	orphan, err := actor.NewContactMaterial(nil, nil, 0.1, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, w.AddContactMaterial(orphan), actor.ErrInvalidMaterial)
}

// ============================================================================
// Stepping
// ============================================================================

func TestWorld_StepRejectsInvalidTimeStep(t *testing.T) {
	w := New()
	for _, dt := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		assert.ErrorIs(t, w.Step(dt), ErrInvalidTimeStep)
	}
	assert.ErrorIs(t, w.StepElapsed(step, -1, 0), ErrInvalidTimeStep)
}

func TestWorld_FreeFall(t *testing.T) {
	w := New()
	w.Gravity = mgl64.Vec3{0, 0, -10}
	body := newSphereBody(t, mgl64.Vec3{0, 0, 100}, 1, 1)
	body.LinearDamping = 0
	addBodies(t, w, body)

	for i := 0; i < 60; i++ {
		require.NoError(t, w.Step(step))
	}

	assert.InDelta(t, -10, body.Velocity.Z(), 1e-9)
	// semi-implicit Euler falls slightly further than the analytic 5m
	assert.InDelta(t, 95, body.Transform.Position.Z(), 0.1)
	assert.Equal(t, 60, w.StepNumber)
	assert.InDelta(t, 1, w.Time, 1e-9)
	assert.Equal(t, mgl64.Vec3{}, body.Force, "forces are cleared after each step")
}

func TestWorld_SphereRestsOnPlane(t *testing.T) {
	w := New()
	w.Gravity = mgl64.Vec3{0, 0, -10}
	ground := newPlaneBody(t)
	ball := newSphereBody(t, mgl64.Vec3{0, 0, 5}, 1, 1)
	addBodies(t, w, ground, ball)

	for i := 0; i < 300; i++ {
		require.NoError(t, w.Step(step))
		require.GreaterOrEqual(t, ball.Transform.Position.Z(), 0.8, "step %d", i)
	}

	assert.InDelta(t, 1, ball.Transform.Position.Z(), 0.05)
	assert.Less(t, ball.Velocity.Len(), 0.1)
	assert.Equal(t, mgl64.Vec3{}, ground.Transform.Position)
}

func TestWorld_BoxRestsOnPlane(t *testing.T) {
	w := New()
	w.AllowSleep = true
	w.Gravity = mgl64.Vec3{0, 0, -10}
	ground := newPlaneBody(t)
	box := newBoxBody(t, mgl64.Vec3{0, 0, 2}, mgl64.Vec3{0.5, 0.5, 0.5}, 1)
	addBodies(t, w, ground, box)

	// the box lands after about half a second and must not rock afterwards
	const settled = 180
	for i := 0; i < 600; i++ {
		require.NoError(t, w.Step(step))
		if i >= settled {
			require.Less(t, box.AngularVelocity.Len(), box.SleepSpeedLimit, "step %d", i)
		}
	}

	assert.InDelta(t, 0.5, box.Transform.Position.Z(), 0.05)
	assert.Less(t, box.Velocity.Len(), 0.1)
	assert.Equal(t, actor.SleepStateSleeping, box.SleepState)
}

func TestWorld_RestingBoxFallsAsleep(t *testing.T) {
	tests := []struct {
		name   string
		ground func(t *testing.T) *actor.RigidBody
		height float64
	}{
		{"on a plane", newPlaneBody, 0.5},
		{"on a static box", func(t *testing.T) *actor.RigidBody {
			return newBoxBody(t, mgl64.Vec3{}, mgl64.Vec3{0.5, 0.5, 0.5}, 0)
		}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := New()
			w.AllowSleep = true
			box := newBoxBody(t, mgl64.Vec3{0, 0, tt.height}, mgl64.Vec3{0.5, 0.5, 0.5}, 1)
			addBodies(t, w, tt.ground(t), box)

			maxSpin := 0.0
			for i := 0; i < 300 && box.SleepState != actor.SleepStateSleeping; i++ {
				require.NoError(t, w.Step(step))
				maxSpin = max(maxSpin, box.AngularVelocity.Len())
			}

			assert.Equal(t, actor.SleepStateSleeping, box.SleepState)
			assert.Less(t, maxSpin, 0.01)
			assert.InDelta(t, tt.height, box.Transform.Position.Z(), 0.01)
		})
	}
}

func TestWorld_StepElapsed(t *testing.T) {
	w := New()
	body := newSphereBody(t, mgl64.Vec3{}, 1, 1)
	addBodies(t, w, body)

	require.NoError(t, w.StepElapsed(step, 2.5*step, 0))
	assert.Equal(t, 2, w.StepNumber)
	assert.InDelta(t, 0.5*step, w.accumulator, 1e-12)

	// alpha = 0.5 places the interpolated pose halfway between the last two
	mid := body.PreviousTransform.Position.Add(body.Transform.Position).Mul(0.5)
	assert.InDelta(t, mid.Z(), body.InterpolatedTransform.Position.Z(), 1e-9)

	require.NoError(t, w.StepElapsed(step, 100*step, 3))
	assert.Equal(t, 5, w.StepNumber, "sub steps are capped")
	assert.Less(t, w.accumulator, step)
}

func TestWorld_ConstraintDisablesCollision(t *testing.T) {
	w := New()
	w.Gravity = mgl64.Vec3{}
	a := newSphereBody(t, mgl64.Vec3{}, 1, 1)
	b := newSphereBody(t, mgl64.Vec3{1, 0, 0}, 1, 1)
	addBodies(t, w, a, b)

	p2p, err := constraint.NewPointToPoint(a, mgl64.Vec3{0.5, 0, 0}, b, mgl64.Vec3{-0.5, 0, 0}, 1e6)
	require.NoError(t, err)
	p2p.SetCollideConnected(false)
	require.NoError(t, w.AddConstraint(p2p))

	require.NoError(t, w.Step(step))
	assert.Empty(t, w.Narrowphase.Contacts)

	w.RemoveConstraint(p2p)
	require.NoError(t, w.Step(step))
	assert.NotEmpty(t, w.Narrowphase.Contacts)
}

func TestWorld_SleepAndWake(t *testing.T) {
	w := New()
	w.AllowSleep = true
	w.Gravity = mgl64.Vec3{}
	body := newSphereBody(t, mgl64.Vec3{}, 1, 1)
	body.SleepTimeLimit = 0.1
	addBodies(t, w, body)

	capture := &eventCapture{}
	w.Events.Subscribe(SLEEPY, capture.capture)
	w.Events.Subscribe(SLEEP, capture.capture)
	w.Events.Subscribe(WAKE_UP, capture.capture)

	for i := 0; i < 30; i++ {
		require.NoError(t, w.Step(step))
	}
	assert.Equal(t, actor.SleepStateSleeping, body.SleepState)
	assert.Equal(t, 1, capture.countType(SLEEPY))
	assert.Equal(t, 1, capture.countType(SLEEP))

	// an awake body hitting it wakes it up
	hammer := newSphereBody(t, mgl64.Vec3{1.9, 0, 0}, 1, 1)
	hammer.Velocity = mgl64.Vec3{-5, 0, 0}
	hammer.AllowSleep = false
	addBodies(t, w, hammer)

	require.NoError(t, w.Step(step))
	assert.NotEqual(t, actor.SleepStateSleeping, body.SleepState)
	assert.Equal(t, 1, capture.countType(WAKE_UP))
}

func TestWorld_KinematicOverlapOnly(t *testing.T) {
	w := New()
	w.Gravity = mgl64.Vec3{}
	ground := newBoxBody(t, mgl64.Vec3{}, mgl64.Vec3{1, 1, 1}, 0)
	mover, err := actor.NewRigidBody(actor.Transform{Position: mgl64.Vec3{1.5, 0, 0}}, 0, actor.BodyTypeKinematic)
	require.NoError(t, err)
	box, err := actor.NewBox(mgl64.Vec3{1, 1, 1})
	require.NoError(t, err)
	_, err = mover.AddShape(box, mgl64.Vec3{}, mgl64.QuatIdent())
	require.NoError(t, err)
	addBodies(t, w, ground, mover)

	capture := &eventCapture{}
	w.Events.Subscribe(BEGIN_CONTACT, capture.capture)

	require.NoError(t, w.Step(step))
	assert.Empty(t, w.Narrowphase.Contacts)
	assert.Len(t, w.Narrowphase.Overlaps, 1)
	assert.Equal(t, 1, capture.countType(BEGIN_CONTACT))
}

func TestWorld_ParallelIntegration(t *testing.T) {
	w := New()
	w.Workers = 4
	w.Gravity = mgl64.Vec3{0, 0, -10}
	var bodies []*actor.RigidBody
	for i := 0; i < 16; i++ {
		b := newSphereBody(t, mgl64.Vec3{float64(i) * 5, 0, 10}, 1, 1)
		bodies = append(bodies, b)
	}
	addBodies(t, w, bodies...)

	require.NoError(t, w.Step(step))
	for _, b := range bodies {
		assert.InDelta(t, bodies[0].Transform.Position.Z(), b.Transform.Position.Z(), 1e-12)
		assert.Less(t, b.Transform.Position.Z(), 10.0)
	}
}

func TestWorld_AABBQuery(t *testing.T) {
	w := New()
	a := newSphereBody(t, mgl64.Vec3{}, 1, 1)
	b := newSphereBody(t, mgl64.Vec3{10, 0, 0}, 1, 1)
	addBodies(t, w, a, b)

	found := w.AABBQuery(actor.AABB{Min: mgl64.Vec3{-2, -2, -2}, Max: mgl64.Vec3{2, 2, 2}})
	assert.Equal(t, []*actor.RigidBody{a}, found)
}
