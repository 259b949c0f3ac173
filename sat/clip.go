package sat

import (
	"math"
	"slices"

	"github.com/akmonengine/ballista/actor"
	"github.com/akmonengine/ballista/mathx"
	"github.com/go-gl/mathgl/mgl64"
)

// MaxManifoldPoints bounds the contacts kept by ReduceManifold.
const MaxManifoldPoints = 4

const mergeEpsilonSq = 1e-16

// ContactPoint is a clipped point of the incident face.
// Normal is the reference face normal, Depth the signed distance of Point to
// the reference face (negative when penetrating).
type ContactPoint struct {
	Point  mgl64.Vec3
	Normal mgl64.Vec3
	Depth  float64
}

// Clipper holds the scratch polygons reused between clipping calls.
// A Clipper must not be shared between goroutines.
type Clipper struct {
	worldVerts []mgl64.Vec3
	in, out    []mgl64.Vec3
}

// ClipAgainstHull picks the face of hullB most aligned with sepNormal (the
// incident face) and clips it against hullA. sepNormal points from B to A, as
// returned by FindSeparatingAxis. Points are appended to result.
func (c *Clipper) ClipAgainstHull(hullA *actor.ConvexPolyhedron, ta actor.Transform, hullB *actor.ConvexPolyhedron, tb actor.Transform, sepNormal mgl64.Vec3, minDist, maxDist float64, result []ContactPoint) []ContactPoint {
	closest := -1
	dmax := math.Inf(-1)
	for i, n := range hullB.FaceNormals {
		if d := tb.VectorToWorld(n).Dot(sepNormal); d > dmax {
			dmax = d
			closest = i
		}
	}
	if closest < 0 {
		return result
	}

	c.worldVerts = c.worldVerts[:0]
	for _, vi := range hullB.Faces[closest] {
		c.worldVerts = append(c.worldVerts, tb.PointToWorld(hullB.Vertices[vi]))
	}

	return c.ClipFaceAgainstHull(sepNormal, hullA, ta, c.worldVerts, minDist, maxDist, result)
}

// ClipFaceAgainstHull clips a world space polygon against the side planes of
// the face of hullA most opposed to sepNormal (the reference face), then keeps
// the points lying behind that face with a depth within [minDist, maxDist].
func (c *Clipper) ClipFaceAgainstHull(sepNormal mgl64.Vec3, hullA *actor.ConvexPolyhedron, ta actor.Transform, worldVertsB []mgl64.Vec3, minDist, maxDist float64, result []ContactPoint) []ContactPoint {
	closest := -1
	dmin := math.Inf(1)
	for i, n := range hullA.FaceNormals {
		if d := ta.VectorToWorld(n).Dot(sepNormal); d < dmin {
			dmin = d
			closest = i
		}
	}
	if closest < 0 {
		return result
	}

	face := hullA.Faces[closest]
	faceNormal := ta.VectorToWorld(hullA.FaceNormals[closest])

	c.in = append(c.in[:0], worldVertsB...)
	for i := range face {
		a := ta.PointToWorld(hullA.Vertices[face[i]])
		b := ta.PointToWorld(hullA.Vertices[face[(i+1)%len(face)]])

		// side plane through the edge, facing out of the face polygon
		sideNormal := b.Sub(a).Cross(faceNormal)
		length := sideNormal.Len()
		if length == 0 {
			continue
		}
		sideNormal = sideNormal.Mul(1 / length)

		c.out = ClipFaceAgainstPlane(c.in, sideNormal, -sideNormal.Dot(a), c.out[:0])
		c.in, c.out = c.out, c.in
		if len(c.in) == 0 {
			return result
		}
	}

	planeConstant := -faceNormal.Dot(ta.PointToWorld(hullA.Vertices[face[0]]))
	for _, p := range c.in {
		depth := faceNormal.Dot(p) + planeConstant
		if depth <= minDist {
			depth = minDist
		}
		if depth <= maxDist && depth <= ContactMargin {
			result = append(result, ContactPoint{Point: p, Normal: faceNormal, Depth: depth})
		}
	}

	return result
}

// ClipFaceAgainstPlane is one Sutherland-Hodgman pass: it keeps the part of
// the polygon where planeNormal·p + planeConstant <= 0 and appends it to out.
// Points on the plane are kept; consecutive duplicates are merged.
func ClipFaceAgainstPlane(in []mgl64.Vec3, planeNormal mgl64.Vec3, planeConstant float64, out []mgl64.Vec3) []mgl64.Vec3 {
	if len(in) == 0 {
		return out
	}
	start := len(out)

	first := in[len(in)-1]
	dFirst := planeNormal.Dot(first) + planeConstant
	for _, last := range in {
		dLast := planeNormal.Dot(last) + planeConstant

		switch {
		case dFirst <= 0 && dLast <= 0:
			out = appendPoint(out, start, last)
		case dFirst <= 0:
			out = appendPoint(out, start, lerp(first, last, dFirst/(dFirst-dLast)))
		case dLast <= 0:
			out = appendPoint(out, start, lerp(first, last, dFirst/(dFirst-dLast)))
			out = appendPoint(out, start, last)
		}

		first, dFirst = last, dLast
	}

	if n := len(out); n-start > 1 && out[n-1].Sub(out[start]).LenSqr() < mergeEpsilonSq {
		out = out[:n-1]
	}

	return out
}

func appendPoint(out []mgl64.Vec3, start int, p mgl64.Vec3) []mgl64.Vec3 {
	if n := len(out); n > start && out[n-1].Sub(p).LenSqr() < mergeEpsilonSq {
		return out
	}
	return append(out, p)
}

func lerp(a, b mgl64.Vec3, t float64) mgl64.Vec3 {
	return a.Add(b.Sub(a).Mul(t))
}

// ReduceManifold keeps at most MaxManifoldPoints contacts: the extreme points
// along two tangents of normal, completed with the deepest remaining ones.
// The kept points are appended to result, which must not alias points.
func ReduceManifold(points []ContactPoint, normal mgl64.Vec3, result []ContactPoint) []ContactPoint {
	if len(points) <= MaxManifoldPoints {
		return append(result, points...)
	}

	tangent1, tangent2 := mathx.Tangents(normal)

	minX, maxX, minY, maxY := 0, 0, 0, 0
	minXval, maxXval := math.Inf(1), math.Inf(-1)
	minYval, maxYval := math.Inf(1), math.Inf(-1)

	for i, p := range points {
		x := p.Point.Dot(tangent1)
		y := p.Point.Dot(tangent2)

		if x < minXval {
			minXval, minX = x, i
		}
		if x > maxXval {
			maxXval, maxX = x, i
		}
		if y < minYval {
			minYval, minY = y, i
		}
		if y > maxYval {
			maxYval, maxY = y, i
		}
	}

	var buf [MaxManifoldPoints]int
	keep := append(buf[:0], minX, maxX, minY, maxY)
	slices.Sort(keep)
	keep = slices.Compact(keep)

	for len(keep) < MaxManifoldPoints {
		deepest := -1
		for i, p := range points {
			if slices.Contains(keep, i) {
				continue
			}
			if deepest < 0 || p.Depth < points[deepest].Depth {
				deepest = i
			}
		}
		keep = append(keep, deepest)
	}
	slices.Sort(keep)

	for _, i := range keep {
		result = append(result, points[i])
	}
	return result
}
