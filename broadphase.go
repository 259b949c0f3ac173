package ballista

import (
	"math"

	"github.com/akmonengine/ballista/actor"
	"github.com/go-gl/mathgl/mgl64"
)

// Broadphase finds the body pairs that may be touching. Returned slices have
// equal length; pair k is (pairsA[k], pairsB[k]).
type Broadphase interface {
	CollisionPairs(bodies []*actor.RigidBody, pairsA, pairsB []*actor.RigidBody) ([]*actor.RigidBody, []*actor.RigidBody)
	AABBQuery(bodies []*actor.RigidBody, aabb actor.AABB, result []*actor.RigidBody) []*actor.RigidBody
}

// BodyTracker is implemented by broadphases that keep their own body list.
// The world notifies them when bodies come and go.
type BodyTracker interface {
	BodyAdded(body *actor.RigidBody)
	BodyRemoved(body *actor.RigidBody)
}

// NeedsCollision reports whether two bodies should be tested at all: their
// filters must accept each other and at least one of them must be able to move.
func NeedsCollision(a, b *actor.RigidBody) bool {
	if a == b {
		return false
	}
	if a.CollisionFilterGroup&b.CollisionFilterMask == 0 || b.CollisionFilterGroup&a.CollisionFilterMask == 0 {
		return false
	}
	if isInert(a) && isInert(b) {
		return false
	}
	return true
}

func isInert(b *actor.RigidBody) bool {
	return b.Type == actor.BodyTypeStatic || b.SleepState == actor.SleepStateSleeping
}

// boundingSphereTest is the default overlap test; planes have an infinite radius and always pass.
func boundingSphereTest(a, b *actor.RigidBody) bool {
	r := a.BoundingRadius() + b.BoundingRadius()
	if math.IsInf(r, 1) {
		return true
	}
	d := a.Transform.Position.Sub(b.Transform.Position)
	return d.LenSqr() < r*r
}

func intersectionTest(a, b *actor.RigidBody, useBoundingBoxes bool) bool {
	if useBoundingBoxes {
		return a.AABB().Overlaps(b.AABB())
	}
	return boundingSphereTest(a, b)
}

// bodyBounds is the union of the body AABB and its bounding sphere box, so a
// culling structure built on it never drops a pair either test accepts.
func bodyBounds(b *actor.RigidBody) actor.AABB {
	r := b.BoundingRadius()
	p := b.Transform.Position
	ext := mgl64.Vec3{r, r, r}
	return b.AABB().Union(actor.AABB{Min: p.Sub(ext), Max: p.Add(ext)})
}

func naiveAABBQuery(bodies []*actor.RigidBody, aabb actor.AABB, result []*actor.RigidBody) []*actor.RigidBody {
	for _, b := range bodies {
		if b.AABB().Overlaps(aabb) {
			result = append(result, b)
		}
	}
	return result
}

// NaiveBroadphase tests every pair.
type NaiveBroadphase struct {
	UseBoundingBoxes bool
}

func NewNaiveBroadphase() *NaiveBroadphase {
	return &NaiveBroadphase{}
}

func (n *NaiveBroadphase) CollisionPairs(bodies []*actor.RigidBody, pairsA, pairsB []*actor.RigidBody) ([]*actor.RigidBody, []*actor.RigidBody) {
	for i := 0; i < len(bodies); i++ {
		for j := i + 1; j < len(bodies); j++ {
			a, b := bodies[i], bodies[j]
			if !NeedsCollision(a, b) {
				continue
			}
			if intersectionTest(a, b, n.UseBoundingBoxes) {
				pairsA = append(pairsA, a)
				pairsB = append(pairsB, b)
			}
		}
	}
	return pairsA, pairsB
}

func (n *NaiveBroadphase) AABBQuery(bodies []*actor.RigidBody, aabb actor.AABB, result []*actor.RigidBody) []*actor.RigidBody {
	return naiveAABBQuery(bodies, aabb, result)
}
