package ballista

import (
	"math"

	"github.com/akmonengine/ballista/actor"
	"github.com/akmonengine/ballista/mathx"
	"github.com/go-gl/mathgl/mgl64"
)

type RaycastMode int

const (
	// RaycastClosest keeps the hit nearest to From
	RaycastClosest RaycastMode = iota
	// RaycastAny stops at the first hit found
	RaycastAny
	// RaycastAll reports every hit to the callback
	RaycastAll
)

// RayOptions filters what a ray can hit.
type RayOptions struct {
	SkipBackfaces          bool
	CollisionFilterMask    int
	CollisionFilterGroup   int
	CheckCollisionResponse bool
}

// DefaultRayOptions hits every body and both sides of surfaces.
func DefaultRayOptions() RayOptions {
	return RayOptions{CollisionFilterMask: -1, CollisionFilterGroup: -1}
}

// RaycastResult describes one ray hit. HitFaceIndex is -1 for shapes without faces.
type RaycastResult struct {
	RayFromWorld   mgl64.Vec3
	RayToWorld     mgl64.Vec3
	HitPointWorld  mgl64.Vec3
	HitNormalWorld mgl64.Vec3
	HasHit         bool
	Body           *actor.RigidBody
	Shape          actor.Shape
	ShapeID        int
	HitFaceIndex   int
	Distance       float64
}

// Ray is a segment cast through a world.
type Ray struct {
	From, To mgl64.Vec3
	Mode     RaycastMode
	RayOptions
	// Callback receives every hit in RaycastAll mode; returning false stops the cast
	Callback func(result RaycastResult) bool

	direction mgl64.Vec3
	result    RaycastResult
	stopped   bool
	bodies    []*actor.RigidBody
	leaves    []leaf
	triangles []int
}

func NewRay(from, to mgl64.Vec3, mode RaycastMode, options RayOptions) *Ray {
	return &Ray{From: from, To: to, Mode: mode, RayOptions: options}
}

// Result returns the last hit kept by the ray.
func (r *Ray) Result() RaycastResult {
	return r.result
}

// IntersectWorld casts the ray and reports whether anything was hit.
func (r *Ray) IntersectWorld(w *World) bool {
	r.result = RaycastResult{RayFromWorld: r.From, RayToWorld: r.To, HitFaceIndex: -1, Distance: -1}
	r.stopped = false

	segment := r.To.Sub(r.From)
	if segment.LenSqr() == 0 {
		return false
	}
	r.direction = segment.Normalize()

	aabb := actor.EmptyAABB().Extend(r.From).Extend(r.To)
	r.bodies = w.Broadphase.AABBQuery(w.Bodies, aabb, r.bodies[:0])

	for _, body := range r.bodies {
		if r.stopped {
			break
		}
		if r.CollisionFilterGroup&body.CollisionFilterMask == 0 || body.CollisionFilterGroup&r.CollisionFilterMask == 0 {
			continue
		}
		if r.CheckCollisionResponse && !body.CollisionResponse {
			continue
		}
		if !body.AABB().OverlapsRay(r.From, r.To) {
			continue
		}

		r.leaves = flattenBody(body, r.leaves[:0])
		for i := range r.leaves {
			if r.stopped {
				break
			}
			r.intersectLeaf(body, &r.leaves[i])
		}
	}
	return r.result.HasHit
}

func (r *Ray) intersectLeaf(body *actor.RigidBody, l *leaf) {
	switch s := l.shape.(type) {
	case *actor.Sphere:
		r.intersectSphere(body, l, s)
	case *actor.Plane:
		r.intersectPlane(body, l, s)
	case *actor.Box:
		r.intersectHull(body, l, s.ConvexPolyhedron(), l.t)
	case *actor.ConvexPolyhedron:
		r.intersectHull(body, l, s, l.t)
	case *actor.Heightfield:
		r.intersectHeightfield(body, l, s)
	case *actor.Trimesh:
		r.intersectTrimesh(body, l, s)
	}
}

func (r *Ray) report(body *actor.RigidBody, l *leaf, point, normal mgl64.Vec3, faceIndex int) {
	if r.SkipBackfaces && normal.Dot(r.direction) > 0 {
		return
	}
	hit := RaycastResult{
		RayFromWorld:   r.From,
		RayToWorld:     r.To,
		HitPointWorld:  point,
		HitNormalWorld: normal,
		HasHit:         true,
		Body:           body,
		Shape:          l.shape,
		ShapeID:        l.id,
		HitFaceIndex:   faceIndex,
		Distance:       point.Sub(r.From).Len(),
	}

	switch r.Mode {
	case RaycastClosest:
		if !r.result.HasHit || hit.Distance < r.result.Distance {
			r.result = hit
		}
	case RaycastAny:
		r.result = hit
		r.stopped = true
	case RaycastAll:
		r.result = hit
		if r.Callback != nil && !r.Callback(hit) {
			r.stopped = true
		}
	}
}

func (r *Ray) intersectSphere(body *actor.RigidBody, l *leaf, s *actor.Sphere) {
	center := l.t.Position
	d := r.To.Sub(r.From)
	m := r.From.Sub(center)

	a := d.Dot(d)
	b := 2 * d.Dot(m)
	c := m.Dot(m) - s.Radius*s.Radius
	disc := b*b - 4*a*c
	if disc < 0 {
		return
	}

	sq := math.Sqrt(disc)
	for k, t := range [2]float64{(-b - sq) / (2 * a), (-b + sq) / (2 * a)} {
		if k == 1 && disc == 0 {
			break
		}
		if t < 0 || t > 1 {
			continue
		}
		point := r.From.Add(d.Mul(t))
		r.report(body, l, point, point.Sub(center).Mul(1/s.Radius), -1)
		if r.stopped {
			return
		}
	}
}

func (r *Ray) intersectPlane(body *actor.RigidBody, l *leaf, p *actor.Plane) {
	normal := p.WorldNormal(l.t.Rotation)
	d1 := r.From.Sub(l.t.Position).Dot(normal)
	d2 := r.To.Sub(l.t.Position).Dot(normal)
	if d1*d2 > 0 || math.Abs(d1-d2) < 1e-12 {
		return
	}
	t := d1 / (d1 - d2)
	r.report(body, l, r.From.Add(r.To.Sub(r.From).Mul(t)), normal, -1)
}

func (r *Ray) intersectHull(body *actor.RigidBody, l *leaf, hull *actor.ConvexPolyhedron, t actor.Transform) {
	segment := r.To.Sub(r.From)
	for i, face := range hull.Faces {
		normal := t.VectorToWorld(hull.FaceNormals[i])
		denom := normal.Dot(segment)
		if math.Abs(denom) < 1e-12 {
			continue
		}
		v0 := t.PointToWorld(hull.Vertices[face[0]])
		s := normal.Dot(v0.Sub(r.From)) / denom
		if s < 0 || s > 1 {
			continue
		}
		point := r.From.Add(segment.Mul(s))
		if !pointInFace(hull, i, t.PointToLocal(point)) {
			continue
		}
		r.report(body, l, point, normal, i)
		if r.stopped {
			return
		}
	}
}

// segmentTriangle intersects from + s*(to-from), s in [0,1], with the triangle abc.
func segmentTriangle(from, to, a, b, c mgl64.Vec3) (float64, bool) {
	e1, e2 := b.Sub(a), c.Sub(a)
	m := mgl64.Mat3FromCols(e1, e2, from.Sub(to))
	x, err := mathx.Solve3(m, from.Sub(a))
	if err != nil {
		return 0, false
	}
	u, v, s := x[0], x[1], x[2]
	if u < 0 || v < 0 || u+v > 1 || s < 0 || s > 1 {
		return 0, false
	}
	return s, true
}

func (r *Ray) intersectHeightfield(body *actor.RigidBody, l *leaf, hf *actor.Heightfield) {
	from, to := l.t.PointToLocal(r.From), l.t.PointToLocal(r.To)
	x0, y0, x1, y1 := hf.CellRange(actor.EmptyAABB().Extend(from).Extend(to))

	for xi := x0; xi < x1; xi++ {
		for yi := y0; yi < y1; yi++ {
			for k, upper := range [2]bool{false, true} {
				a, b, c := hf.Triangle(xi, yi, upper)
				s, ok := segmentTriangle(from, to, a, b, c)
				if !ok {
					continue
				}
				normal := l.t.VectorToWorld(b.Sub(a).Cross(c.Sub(a)).Normalize())
				point := r.From.Add(r.To.Sub(r.From).Mul(s))
				r.report(body, l, point, normal, 2*(xi*(hf.SizeY()-1)+yi)+k)
				if r.stopped {
					return
				}
			}
		}
	}
}

func (r *Ray) intersectTrimesh(body *actor.RigidBody, l *leaf, mesh *actor.Trimesh) {
	from, to := l.t.PointToLocal(r.From), l.t.PointToLocal(r.To)
	r.triangles = mesh.TrianglesOnRay(from, to, r.triangles[:0])

	for _, i := range r.triangles {
		a, b, c := mesh.TriangleVertices(i)
		s, ok := segmentTriangle(from, to, a, b, c)
		if !ok {
			continue
		}
		point := r.From.Add(r.To.Sub(r.From).Mul(s))
		r.report(body, l, point, l.t.VectorToWorld(mesh.Normals[i]), i)
		if r.stopped {
			return
		}
	}
}
