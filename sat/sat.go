// Package sat implements the Separating Axis Theorem for convex polyhedra and
// the face clipping that turns a separating axis into a contact manifold.
//
// Two convex hulls are disjoint if and only if their projections on some axis
// do not overlap. For polyhedra the candidate axes are the face normals of
// both hulls and the cross products of their edge directions. The axis of
// least overlap is the contact normal; the faces most aligned with it are then
// clipped against each other (Sutherland-Hodgman) to produce contact points.
//
// References:
//   - Gottschalk: "Separating Axis Theorem" (1996)
//   - Gregorius: "The Separating Axis Test between Convex Polyhedra", GDC 2013
package sat

import (
	"math"

	"github.com/akmonengine/ballista/actor"
	"github.com/go-gl/mathgl/mgl64"
)

// EdgeAxisBias scales the overlap found on edge-edge axes before it is compared
// with the best face axis. Above 1, face axes win near ties.
var EdgeAxisBias = 1.05

// ContactMargin is the largest gap at which two features are still reported
// as touching. Resting contacts keep their points while the solver lifts them
// within this distance.
const ContactMargin = 1e-4

const (
	edgeAxisSlop     = 1e-6
	parallelEdgesEps = 1e-12
)

// Project returns the interval covered by hull, placed at t, along the world axis.
func Project(hull *actor.ConvexPolyhedron, axis mgl64.Vec3, t actor.Transform) (lo, hi float64) {
	localAxis := t.VectorToLocal(axis)
	offset := t.Position.Dot(axis)

	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range hull.Vertices {
		d := v.Dot(localAxis)
		lo = math.Min(lo, d)
		hi = math.Max(hi, d)
	}

	return lo + offset, hi + offset
}

// TestSepAxis projects both hulls on axis and returns the overlap depth.
// ok is false when the axis separates them by more than ContactMargin; a gap
// within the margin is returned as a negative depth.
func TestSepAxis(axis mgl64.Vec3, hullA *actor.ConvexPolyhedron, ta actor.Transform, hullB *actor.ConvexPolyhedron, tb actor.Transform) (depth float64, ok bool) {
	minA, maxA := Project(hullA, axis, ta)
	minB, maxB := Project(hullB, axis, tb)

	if maxA+ContactMargin < minB || maxB+ContactMargin < minA {
		return 0, false
	}

	return math.Min(maxA-minB, maxB-minA), true
}

// FindSeparatingAxis searches the face axes of both hulls and the cross
// products of their unique edges for the axis of least overlap.
//
// Returns:
//   - axis: unit vector pointing from B towards A
//   - depth: overlap along axis, negative down to -ContactMargin for a near contact
//   - ok: false when a separating axis exists, i.e. the hulls do not touch
func FindSeparatingAxis(hullA *actor.ConvexPolyhedron, ta actor.Transform, hullB *actor.ConvexPolyhedron, tb actor.Transform) (axis mgl64.Vec3, depth float64, ok bool) {
	dmin := math.Inf(1)

	for _, side := range [2]struct {
		hull *actor.ConvexPolyhedron
		t    actor.Transform
	}{{hullA, ta}, {hullB, tb}} {
		for _, n := range side.hull.FaceAxes() {
			worldNormal := side.t.VectorToWorld(n)
			d, overlap := TestSepAxis(worldNormal, hullA, ta, hullB, tb)
			if !overlap {
				return mgl64.Vec3{}, 0, false
			}
			if d < dmin {
				dmin = d
				axis = worldNormal
			}
		}
	}

	for _, edgeA := range hullA.UniqueEdges {
		worldEdgeA := ta.VectorToWorld(edgeA)
		for _, edgeB := range hullB.UniqueEdges {
			cross := worldEdgeA.Cross(tb.VectorToWorld(edgeB))
			if cross.LenSqr() < parallelEdgesEps {
				continue
			}
			cross = cross.Normalize()

			d, overlap := TestSepAxis(cross, hullA, ta, hullB, tb)
			if !overlap {
				return mgl64.Vec3{}, 0, false
			}
			if d*EdgeAxisBias+edgeAxisSlop < dmin {
				dmin = d
				axis = cross
			}
		}
	}

	if math.IsInf(dmin, 1) {
		return mgl64.Vec3{}, 0, false
	}

	if tb.Position.Sub(ta.Position).Dot(axis) > 0 {
		axis = axis.Mul(-1)
	}

	return axis, dmin, true
}
