// Package gjk implements the Gilbert-Johnson-Keerthi overlap test for convex
// shapes described by a support mapping.
//
// Two convex sets overlap when their Minkowski difference A - B contains the
// origin. GJK grows a simplex (point, segment, triangle, tetrahedron) of
// support points of A - B towards the origin and stops as soon as the origin
// is enclosed or provably out of reach. Only Support() is needed from each
// shape, so spheres, boxes and polyhedra share one code path.
//
// References:
//   - Gilbert, Johnson, Keerthi: "A Fast Procedure for Computing the Distance Between
//     Complex Objects in Three-Dimensional Space" (1988)
//   - Van den Bergen: "Collision Detection in Interactive 3D Environments" (2003)
package gjk

import (
	"sync"

	"github.com/akmonengine/ballista/actor"
	"github.com/go-gl/mathgl/mgl64"
)

// MaxIterations bounds the refinement loop; reaching it reports no overlap.
const MaxIterations = 32

const (
	degenerateEps = 1e-10
	touchEps      = 1e-16
)

// Simplex holds 1 to 4 support points of the Minkowski difference, the most
// recent one last.
type Simplex struct {
	Points [4]mgl64.Vec3
	Count  int
}

func (s *Simplex) Reset() {
	s.Count = 0
}

func (s *Simplex) push(p mgl64.Vec3) {
	s.Points[s.Count] = p
	s.Count++
}

// set replaces the simplex content, oldest point first.
func (s *Simplex) set(points ...mgl64.Vec3) {
	s.Count = copy(s.Points[:], points)
}

var SimplexPool = sync.Pool{
	New: func() interface{} {
		return &Simplex{}
	},
}

// SupportWorld returns the point of shape, placed at t, furthest along the world direction.
func SupportWorld(shape actor.Convex, t actor.Transform, direction mgl64.Vec3) mgl64.Vec3 {
	return t.PointToWorld(shape.Support(t.VectorToLocal(direction)))
}

// MinkowskiSupport returns the support point of A - B along direction.
func MinkowskiSupport(a actor.Convex, ta actor.Transform, b actor.Convex, tb actor.Transform, direction mgl64.Vec3) mgl64.Vec3 {
	return SupportWorld(a, ta, direction).Sub(SupportWorld(b, tb, direction.Mul(-1)))
}

// Intersect reports whether a placed at ta and b placed at tb overlap.
// Touching shapes count as overlapping.
func Intersect(a actor.Convex, ta actor.Transform, b actor.Convex, tb actor.Transform) bool {
	simplex := SimplexPool.Get().(*Simplex)
	defer SimplexPool.Put(simplex)
	simplex.Reset()

	return Run(a, ta, b, tb, simplex)
}

// Run is Intersect with a caller provided simplex, left holding the final
// simplex on return.
func Run(a actor.Convex, ta actor.Transform, b actor.Convex, tb actor.Transform, simplex *Simplex) bool {
	direction := tb.Position.Sub(ta.Position)
	if direction.LenSqr() < 1e-8 {
		direction = mgl64.Vec3{1, 0, 0}
	}

	simplex.set(MinkowskiSupport(a, ta, b, tb, direction))
	direction = simplex.Points[0].Mul(-1)
	if direction.LenSqr() < touchEps {
		return true
	}

	for range MaxIterations {
		p := MinkowskiSupport(a, ta, b, tb, direction)

		// the new point does not pass the origin: A - B cannot contain it
		if p.Dot(direction) < 0 {
			return false
		}

		simplex.push(p)
		if simplex.evolve(&direction) {
			return true
		}
		if direction.LenSqr() < touchEps {
			return true
		}
	}

	return false
}

// evolve keeps the feature of the simplex closest to the origin and points
// direction at the origin from it. It reports true once the origin is enclosed.
func (s *Simplex) evolve(direction *mgl64.Vec3) bool {
	switch s.Count {
	case 2:
		return s.segment(direction)
	case 3:
		return s.triangle(direction)
	case 4:
		return s.tetrahedron(direction)
	}
	return false
}

func (s *Simplex) segment(direction *mgl64.Vec3) bool {
	a, b := s.Points[1], s.Points[0]
	ab := b.Sub(a)
	ao := a.Mul(-1)

	if ab.LenSqr() < degenerateEps {
		if ao.LenSqr() < degenerateEps {
			return true
		}
		s.set(a)
		*direction = ao
		return false
	}

	if ab.Dot(ao) <= 0 {
		s.set(a)
		*direction = ao
		return false
	}

	perp := ab.Cross(ao).Cross(ab)
	if perp.LenSqr() < degenerateEps {
		// origin on the segment
		return true
	}
	*direction = perp
	return false
}

func (s *Simplex) triangle(direction *mgl64.Vec3) bool {
	a, b, c := s.Points[2], s.Points[1], s.Points[0]
	ab := b.Sub(a)
	ac := c.Sub(a)
	ao := a.Mul(-1)
	normal := ab.Cross(ac)

	if normal.LenSqr() < degenerateEps {
		s.set(b, a)
		return s.segment(direction)
	}

	if ab.Cross(normal).Dot(ao) > 0 {
		s.set(b, a)
		*direction = ab.Cross(ao).Cross(ab)
		return false
	}
	if normal.Cross(ac).Dot(ao) > 0 {
		s.set(c, a)
		*direction = ac.Cross(ao).Cross(ac)
		return false
	}

	if normal.Dot(ao) > 0 {
		*direction = normal
		return false
	}
	if normal.Dot(ao) == 0 {
		// origin in the triangle plane and inside its edges
		return true
	}

	// below: flip the winding so the normal faces the origin
	s.set(a, c, b)
	*direction = normal.Mul(-1)
	return false
}

func (s *Simplex) tetrahedron(direction *mgl64.Vec3) bool {
	a, b, c, d := s.Points[3], s.Points[2], s.Points[1], s.Points[0]
	ab := b.Sub(a)
	ac := c.Sub(a)
	ad := d.Sub(a)
	ao := a.Mul(-1)

	// face normals oriented away from the opposite vertex
	abc := outward(ab.Cross(ac), ad)
	acd := outward(ac.Cross(ad), ab)
	adb := outward(ad.Cross(ab), ac)

	if abc.LenSqr() < degenerateEps || acd.LenSqr() < degenerateEps || adb.LenSqr() < degenerateEps {
		s.set(c, b, a)
		return s.triangle(direction)
	}

	switch {
	case abc.Dot(ao) > 0:
		s.set(c, b, a)
	case acd.Dot(ao) > 0:
		s.set(d, c, a)
	case adb.Dot(ao) > 0:
		s.set(b, d, a)
	default:
		return true
	}

	return s.triangle(direction)
}

func outward(normal, towardOpposite mgl64.Vec3) mgl64.Vec3 {
	if normal.Dot(towardOpposite) > 0 {
		return normal.Mul(-1)
	}
	return normal
}
