package constraint

import (
	"errors"
	"math"
	"testing"

	"github.com/akmonengine/ballista/actor"
	"github.com/akmonengine/ballista/equation"
	"github.com/akmonengine/ballista/solver"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dt = 1.0 / 60.0

var gravity = mgl64.Vec3{0, -9.81, 0}

func newBody(t *testing.T, pos mgl64.Vec3, mass float64) *actor.RigidBody {
	t.Helper()

	bodyType := actor.BodyTypeDynamic
	if mass == 0 {
		bodyType = actor.BodyTypeStatic
	}
	rb, err := actor.NewRigidBody(actor.Transform{Position: pos, Rotation: mgl64.QuatIdent()}, mass, bodyType)
	require.NoError(t, err)

	box, err := actor.NewBox(mgl64.Vec3{0.2, 0.2, 0.2})
	require.NoError(t, err)
	_, err = rb.AddShape(box, mgl64.Vec3{}, mgl64.QuatIdent())
	require.NoError(t, err)
	rb.AllowSleep = false

	return rb
}

// simulate runs a minimal step loop: forces, constraint update, solve, integrate.
func simulate(c Constraint, steps int, g mgl64.Vec3) {
	a, b := c.Bodies()
	bodies := []*actor.RigidBody{a, b}

	s := solver.NewGSSolver()
	s.Iterations = 20

	for range steps {
		for _, body := range bodies {
			if body.Type == actor.BodyTypeDynamic {
				body.Force = body.Force.Add(g.Mul(body.Mass))
			}
			body.UpdateSolveMassProperties()
		}

		c.Update()
		s.RemoveAllEquations()
		for _, eq := range c.Equations() {
			s.AddEquation(eq)
		}
		s.Solve(dt, bodies)

		for _, body := range bodies {
			body.Integrate(dt, true, false)
			body.ClearForces()
		}
	}
}

func angleBetween(a, b mgl64.Vec3) float64 {
	return math.Acos(math.Max(-1, math.Min(1, a.Normalize().Dot(b.Normalize()))))
}

// =============================================================================
// Construction
// =============================================================================

func TestConstructionErrors(t *testing.T) {
	a := newBody(t, mgl64.Vec3{}, 1)
	b := newBody(t, mgl64.Vec3{1, 0, 0}, 1)

	tests := []struct {
		name string
		make func() error
	}{
		{"nil body", func() error {
			_, err := NewPointToPoint(a, mgl64.Vec3{}, nil, mgl64.Vec3{}, 0)
			return err
		}},
		{"same body", func() error {
			_, err := NewDistance(a, a, 1, 0)
			return err
		}},
		{"negative max force", func() error {
			_, err := NewLock(a, b, -1)
			return err
		}},
		{"zero hinge axis", func() error {
			_, err := NewHinge(a, mgl64.Vec3{}, mgl64.Vec3{}, b, mgl64.Vec3{}, mgl64.Vec3{0, 0, 1}, 0)
			return err
		}},
		{"negative cone angle", func() error {
			_, err := NewConeTwist(a, mgl64.Vec3{}, mgl64.Vec3{1, 0, 0}, b, mgl64.Vec3{}, mgl64.Vec3{1, 0, 0}, -1, 0, 0)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(tt.make(), ErrInvalidConstraint))
		})
	}
}

func TestEquationSets(t *testing.T) {
	a := newBody(t, mgl64.Vec3{}, 1)
	b := newBody(t, mgl64.Vec3{1, 0, 0}, 1)

	p2p, err := NewPointToPoint(a, mgl64.Vec3{}, b, mgl64.Vec3{}, 0)
	require.NoError(t, err)
	assert.Len(t, p2p.Equations(), 3)
	assert.Equal(t, -equation.DefaultMaxForce, p2p.EquationX.MinForce)

	dist, err := NewDistance(a, b, -1, 10)
	require.NoError(t, err)
	assert.Len(t, dist.Equations(), 1)
	assert.InDelta(t, 1.0, dist.Distance, 1e-12)
	assert.Equal(t, 10.0, dist.Equation.MaxForce)

	lock, err := NewLock(a, b, 0)
	require.NoError(t, err)
	assert.Len(t, lock.Equations(), 6)

	hinge, err := NewHinge(a, mgl64.Vec3{}, mgl64.Vec3{0, 0, 2}, b, mgl64.Vec3{}, mgl64.Vec3{0, 0, 1}, 0)
	require.NoError(t, err)
	assert.Len(t, hinge.Equations(), 6)
	assert.InDelta(t, 1.0, hinge.AxisA.Len(), 1e-12)
	assert.False(t, hinge.MotorEquation.Enabled)

	cone, err := NewConeTwist(a, mgl64.Vec3{}, mgl64.Vec3{1, 0, 0}, b, mgl64.Vec3{}, mgl64.Vec3{1, 0, 0}, 0.5, 0.2, 0)
	require.NoError(t, err)
	assert.Len(t, cone.Equations(), 5)
	assert.Equal(t, 0.0, cone.TwistEquation.MaxForce)

	assert.NotEqual(t, p2p.ID(), dist.ID())
	assert.True(t, p2p.CollideConnected())
	p2p.SetCollideConnected(false)
	assert.False(t, p2p.CollideConnected())
}

func TestConstraintWakesBodies(t *testing.T) {
	a := newBody(t, mgl64.Vec3{}, 1)
	b := newBody(t, mgl64.Vec3{1, 0, 0}, 1)
	a.Sleep()

	_, err := NewDistance(a, b, 1, 0)
	require.NoError(t, err)
	assert.True(t, a.IsAwake())
}

func TestEnableDisableKeepsMotorState(t *testing.T) {
	a := newBody(t, mgl64.Vec3{}, 0)
	b := newBody(t, mgl64.Vec3{1, 0, 0}, 1)

	hinge, err := NewHinge(a, mgl64.Vec3{}, mgl64.Vec3{0, 0, 1}, b, mgl64.Vec3{-1, 0, 0}, mgl64.Vec3{0, 0, 1}, 0)
	require.NoError(t, err)

	hinge.Disable()
	for _, eq := range hinge.Equations() {
		assert.False(t, eq.Core().Enabled)
	}

	hinge.Enable()
	assert.True(t, hinge.EquationX.Enabled)
	assert.False(t, hinge.MotorEquation.Enabled)

	hinge.EnableMotor()
	hinge.Disable()
	hinge.Enable()
	assert.True(t, hinge.MotorEquation.Enabled)
}

// =============================================================================
// Behaviour under simulation
// =============================================================================

func TestPointToPointPendulum(t *testing.T) {
	anchor := newBody(t, mgl64.Vec3{}, 0)
	bob := newBody(t, mgl64.Vec3{1, 0, 0}, 1)

	p2p, err := NewPointToPoint(anchor, mgl64.Vec3{}, bob, mgl64.Vec3{-1, 0, 0}, 0)
	require.NoError(t, err)

	simulate(p2p, 30, gravity)

	pivotA := anchor.PointToWorld(p2p.PivotA)
	pivotB := bob.PointToWorld(p2p.PivotB)
	assert.Less(t, pivotA.Sub(pivotB).Len(), 0.05)
	assert.Less(t, bob.Transform.Position.Y(), -0.2, "the bob should have swung down")
}

func TestDistanceKeepsSeparation(t *testing.T) {
	anchor := newBody(t, mgl64.Vec3{}, 0)
	bob := newBody(t, mgl64.Vec3{0, -2, 0}, 1)
	bob.Velocity = mgl64.Vec3{3, 0, 0}

	dist, err := NewDistance(anchor, bob, 2, 0)
	require.NoError(t, err)

	simulate(dist, 90, gravity)

	assert.InDelta(t, 2.0, bob.Transform.Position.Len(), 0.05)
}

func TestLockHoldsPose(t *testing.T) {
	anchor := newBody(t, mgl64.Vec3{}, 0)
	body := newBody(t, mgl64.Vec3{1, 0, 0}, 1)
	body.AngularVelocity = mgl64.Vec3{0.5, 0.5, 0}

	lock, err := NewLock(anchor, body, 0)
	require.NoError(t, err)

	simulate(lock, 60, gravity)

	assert.Less(t, body.Transform.Position.Sub(mgl64.Vec3{1, 0, 0}).Len(), 0.05)
	angle := 2 * math.Acos(math.Min(1, math.Abs(body.Transform.Rotation.W)))
	assert.Less(t, angle, 0.05)
}

func TestHingeConstrainsRotationAxis(t *testing.T) {
	anchor := newBody(t, mgl64.Vec3{}, 0)
	door := newBody(t, mgl64.Vec3{1, 0, 0}, 1)
	door.AngularVelocity = mgl64.Vec3{1, 0, 0}

	hinge, err := NewHinge(anchor, mgl64.Vec3{}, mgl64.Vec3{0, 0, 1}, door, mgl64.Vec3{-1, 0, 0}, mgl64.Vec3{0, 0, 1}, 0)
	require.NoError(t, err)

	simulate(hinge, 30, gravity)

	assert.InDelta(t, 0.0, door.Transform.Position.Z(), 0.05)
	assert.InDelta(t, 0.0, door.AngularVelocity.X(), 0.1)
	assert.InDelta(t, 0.0, door.AngularVelocity.Y(), 0.1)
	assert.Less(t, door.Transform.Position.Y(), -0.1, "the door should swing around the hinge")
}

func TestHingeMotorDrivesSpeed(t *testing.T) {
	anchor := newBody(t, mgl64.Vec3{}, 0)
	wheel := newBody(t, mgl64.Vec3{}, 1)

	hinge, err := NewHinge(anchor, mgl64.Vec3{}, mgl64.Vec3{0, 0, 1}, wheel, mgl64.Vec3{}, mgl64.Vec3{0, 0, 1}, 0)
	require.NoError(t, err)
	hinge.EnableMotor()
	hinge.SetMotorSpeed(2)
	hinge.SetMotorMaxForce(100)

	simulate(hinge, 60, mgl64.Vec3{})

	// the motor drives ωA - ωB towards the target and A is static
	assert.InDelta(t, -2.0, wheel.AngularVelocity.Z(), 0.1)
	assert.Equal(t, 100.0, hinge.MotorEquation.MaxForce)
	assert.Equal(t, -100.0, hinge.MotorEquation.MinForce)
}

func TestConeTwistLimitsSwing(t *testing.T) {
	anchor := newBody(t, mgl64.Vec3{}, 0)
	bob := newBody(t, mgl64.Vec3{0, -1, 0}, 1)
	bob.Velocity = mgl64.Vec3{4, 0, 0}

	limit := math.Pi / 8
	down := mgl64.Vec3{0, -1, 0}
	cone, err := NewConeTwist(anchor, mgl64.Vec3{}, down, bob, mgl64.Vec3{0, 1, 0}, down, limit, limit, 0)
	require.NoError(t, err)

	simulate(cone, 60, gravity)

	swing := angleBetween(anchor.VectorToWorld(down), bob.VectorToWorld(down))
	assert.Less(t, swing, limit+0.1)
}
