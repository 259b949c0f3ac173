package ballista

import (
	"math/rand"
	"testing"

	"github.com/akmonengine/ballista/actor"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomScene(t *testing.T, rng *rand.Rand, n int) []*actor.RigidBody {
	t.Helper()

	bodies := []*actor.RigidBody{newPlaneBody(t)}
	for i := 0; i < n; i++ {
		pos := mgl64.Vec3{rng.Float64()*30 - 15, rng.Float64()*30 - 15, rng.Float64()*30 - 15}
		mass := 1.0
		if rng.Intn(5) == 0 {
			mass = 0
		}

		var body *actor.RigidBody
		if rng.Intn(2) == 0 {
			body = newSphereBody(t, pos, 0.2+rng.Float64()*2, mass)
		} else {
			half := mgl64.Vec3{0.2 + rng.Float64(), 0.2 + rng.Float64(), 0.2 + rng.Float64()}
			body = newBoxBody(t, pos, half, mass)
			axis := mgl64.Vec3{rng.Float64(), rng.Float64(), rng.Float64() + 0.1}.Normalize()
			body.SetRotation(mgl64.QuatRotate(rng.Float64()*6, axis))
		}
		bodies = append(bodies, body)
	}
	return bodies
}

func pairSet(pairsA, pairsB []*actor.RigidBody) map[uint64]int {
	set := make(map[uint64]int, len(pairsA))
	for k := range pairsA {
		set[PackPair(pairsA[k].ID, pairsB[k].ID)]++
	}
	return set
}

func TestBroadphases_MatchNaive(t *testing.T) {
	for _, useBoxes := range []bool{false, true} {
		rng := rand.New(rand.NewSource(7))
		bodies := randomScene(t, rng, 120)

		naive := &NaiveBroadphase{UseBoundingBoxes: useBoxes}
		want := pairSet(naive.CollisionPairs(bodies, nil, nil))
		require.NotEmpty(t, want)
		for key, count := range want {
			require.Equal(t, 1, count, "naive reported %x twice", key)
		}

		sap := NewSAPBroadphase()
		sap.UseBoundingBoxes = useBoxes
		sapAuto := NewSAPBroadphase()
		sapAuto.UseBoundingBoxes = useBoxes
		sapAuto.AutoDetectAxis = true

		grid, err := NewGridBroadphase(mgl64.Vec3{-10, -10, -10}, mgl64.Vec3{10, 10, 10}, 6, 6, 6)
		require.NoError(t, err)
		grid.UseBoundingBoxes = useBoxes

		for name, bp := range map[string]Broadphase{"sap": sap, "sap auto axis": sapAuto, "grid": grid} {
			got := pairSet(bp.CollisionPairs(bodies, nil, nil))
			assert.Equal(t, want, got, "%s, bounding boxes %v", name, useBoxes)
		}
	}
}

func TestSAP_TracksMovingBodies(t *testing.T) {
	a := newSphereBody(t, mgl64.Vec3{0, 0, 0}, 1, 1)
	b := newSphereBody(t, mgl64.Vec3{10, 0, 0}, 1, 1)
	bodies := []*actor.RigidBody{a, b}

	sap := NewSAPBroadphase()
	pairsA, _ := sap.CollisionPairs(bodies, nil, nil)
	assert.Empty(t, pairsA)

	b.SetPosition(mgl64.Vec3{-1, 0, 0})
	pairsA, pairsB := sap.CollisionPairs(bodies, nil, nil)
	require.Len(t, pairsA, 1)
	assert.ElementsMatch(t, []*actor.RigidBody{a, b}, []*actor.RigidBody{pairsA[0], pairsB[0]})
}

func TestSAP_BodyTracking(t *testing.T) {
	a := newSphereBody(t, mgl64.Vec3{0, 0, 0}, 1, 1)
	b := newSphereBody(t, mgl64.Vec3{0.5, 0, 0}, 1, 1)

	sap := NewSAPBroadphase()
	sap.BodyAdded(a)
	sap.BodyAdded(b)
	sap.BodyAdded(a)
	assert.Len(t, sap.entries, 2)

	sap.BodyRemoved(a)
	assert.Len(t, sap.entries, 1)
	pairsA, _ := sap.CollisionPairs([]*actor.RigidBody{b}, nil, nil)
	assert.Empty(t, pairsA)
}

func TestSAP_DetectAxis(t *testing.T) {
	var bodies []*actor.RigidBody
	for i := 0; i < 10; i++ {
		bodies = append(bodies, newSphereBody(t, mgl64.Vec3{0, float64(i) * 3, 0}, 1, 1))
	}

	sap := NewSAPBroadphase()
	sap.AutoDetectAxis = true
	sap.CollisionPairs(bodies, nil, nil)
	assert.Equal(t, 1, sap.Axis)
}

func TestNeedsCollision(t *testing.T) {
	dynamic := newSphereBody(t, mgl64.Vec3{}, 1, 1)
	other := newSphereBody(t, mgl64.Vec3{}, 1, 1)
	static := newSphereBody(t, mgl64.Vec3{}, 1, 0)
	staticToo := newSphereBody(t, mgl64.Vec3{}, 1, 0)
	sleeping := newSphereBody(t, mgl64.Vec3{}, 1, 1)
	sleeping.SleepState = actor.SleepStateSleeping
	filtered := newSphereBody(t, mgl64.Vec3{}, 1, 1)
	filtered.CollisionFilterGroup = 2
	filtered.CollisionFilterMask = 2

	tests := []struct {
		name string
		a, b *actor.RigidBody
		want bool
	}{
		{"same body", dynamic, dynamic, false},
		{"two dynamic", dynamic, other, true},
		{"dynamic and static", dynamic, static, true},
		{"two static", static, staticToo, false},
		{"sleeping and static", sleeping, static, false},
		{"sleeping and dynamic", sleeping, dynamic, true},
		{"filtered out", dynamic, filtered, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NeedsCollision(tt.a, tt.b))
			assert.Equal(t, tt.want, NeedsCollision(tt.b, tt.a))
		})
	}
}

func TestBroadphases_AABBQuery(t *testing.T) {
	a := newBoxBody(t, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1}, 1)
	b := newBoxBody(t, mgl64.Vec3{5, 0, 0}, mgl64.Vec3{1, 1, 1}, 1)
	c := newBoxBody(t, mgl64.Vec3{0, 5, 0}, mgl64.Vec3{1, 1, 1}, 1)
	bodies := []*actor.RigidBody{a, b, c}
	box := actor.AABB{Min: mgl64.Vec3{-0.5, -0.5, -0.5}, Max: mgl64.Vec3{4.5, 0.5, 0.5}}

	grid, err := NewGridBroadphase(mgl64.Vec3{-10, -10, -10}, mgl64.Vec3{10, 10, 10}, 4, 4, 4)
	require.NoError(t, err)

	for name, bp := range map[string]Broadphase{"naive": NewNaiveBroadphase(), "sap": NewSAPBroadphase(), "grid": grid} {
		got := bp.AABBQuery(bodies, box, nil)
		assert.ElementsMatch(t, []*actor.RigidBody{a, b}, got, name)
	}
}
