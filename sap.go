package ballista

import "github.com/akmonengine/ballista/actor"

type sapEntry struct {
	body   *actor.RigidBody
	lo, hi float64
}

// SAPBroadphase sorts bodies along one axis and sweeps for overlapping
// intervals. The list is kept between steps, so insertion sort stays cheap
// while the scene is coherent.
type SAPBroadphase struct {
	// Axis is 0, 1 or 2 for x, y or z
	Axis             int
	AutoDetectAxis   bool
	UseBoundingBoxes bool

	entries []sapEntry
	members map[*actor.RigidBody]struct{}
}

func NewSAPBroadphase() *SAPBroadphase {
	return &SAPBroadphase{
		members: make(map[*actor.RigidBody]struct{}),
	}
}

func (s *SAPBroadphase) BodyAdded(body *actor.RigidBody) {
	if _, ok := s.members[body]; ok {
		return
	}
	s.members[body] = struct{}{}
	s.entries = append(s.entries, sapEntry{body: body})
}

func (s *SAPBroadphase) BodyRemoved(body *actor.RigidBody) {
	if _, ok := s.members[body]; !ok {
		return
	}
	delete(s.members, body)
	for i := range s.entries {
		if s.entries[i].body == body {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
}

// sync rebuilds the list when it went out of step with bodies, e.g. when the
// broadphase is used without a world.
func (s *SAPBroadphase) sync(bodies []*actor.RigidBody) {
	if len(s.entries) == len(bodies) {
		return
	}
	clear(s.members)
	s.entries = s.entries[:0]
	for _, b := range bodies {
		s.BodyAdded(b)
	}
}

func (s *SAPBroadphase) detectAxis() {
	var sum, sumSq [3]float64
	for _, e := range s.entries {
		p := e.body.Transform.Position
		for k := 0; k < 3; k++ {
			sum[k] += p[k]
			sumSq[k] += p[k] * p[k]
		}
	}
	n := float64(len(s.entries))
	best, bestVar := 0, -1.0
	for k := 0; k < 3; k++ {
		variance := sumSq[k] - sum[k]*sum[k]/n
		if variance > bestVar {
			best, bestVar = k, variance
		}
	}
	s.Axis = best
}

func (s *SAPBroadphase) updateIntervals() {
	for i := range s.entries {
		b := bodyBounds(s.entries[i].body)
		s.entries[i].lo = b.Min[s.Axis]
		s.entries[i].hi = b.Max[s.Axis]
	}
}

func (s *SAPBroadphase) sortEntries() {
	for i := 1; i < len(s.entries); i++ {
		e := s.entries[i]
		j := i - 1
		for ; j >= 0 && s.entries[j].lo > e.lo; j-- {
			s.entries[j+1] = s.entries[j]
		}
		s.entries[j+1] = e
	}
}

func (s *SAPBroadphase) prepare(bodies []*actor.RigidBody) {
	s.sync(bodies)
	if len(s.entries) == 0 {
		return
	}
	if s.AutoDetectAxis {
		s.detectAxis()
	}
	s.updateIntervals()
	s.sortEntries()
}

func (s *SAPBroadphase) CollisionPairs(bodies []*actor.RigidBody, pairsA, pairsB []*actor.RigidBody) ([]*actor.RigidBody, []*actor.RigidBody) {
	s.prepare(bodies)

	for i := range s.entries {
		a := s.entries[i]
		for j := i + 1; j < len(s.entries); j++ {
			b := s.entries[j]
			if b.lo > a.hi {
				break
			}
			if !NeedsCollision(a.body, b.body) {
				continue
			}
			if intersectionTest(a.body, b.body, s.UseBoundingBoxes) {
				pairsA = append(pairsA, a.body)
				pairsB = append(pairsB, b.body)
			}
		}
	}
	return pairsA, pairsB
}

// AABBQuery sweeps the sorted list and stops past the box on the sort axis.
func (s *SAPBroadphase) AABBQuery(bodies []*actor.RigidBody, aabb actor.AABB, result []*actor.RigidBody) []*actor.RigidBody {
	s.prepare(bodies)

	upper := aabb.Max[s.Axis]
	for _, e := range s.entries {
		if e.lo > upper {
			break
		}
		if e.hi < aabb.Min[s.Axis] {
			continue
		}
		if e.body.AABB().Overlaps(aabb) {
			result = append(result, e.body)
		}
	}
	return result
}
