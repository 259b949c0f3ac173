package ballista

import (
	"math"
	"slices"

	"github.com/akmonengine/ballista/actor"
	"github.com/akmonengine/ballista/mathx"
	"github.com/akmonengine/ballista/sat"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	// clipRange bounds the incident face distances kept by convex clipping
	clipRange = 100.0
	// maxPlaneContacts is the number of deepest vertices kept against a plane
	maxPlaneContacts = 4
)

var fallbackNormal = mgl64.Vec3{0, 1, 0}

func hullOf(shape actor.Shape) *actor.ConvexPolyhedron {
	switch s := shape.(type) {
	case *actor.Box:
		return s.ConvexPolyhedron()
	case *actor.ConvexPolyhedron:
		return s
	}
	return nil
}

// relativeTransform expresses child in the frame of parent.
func relativeTransform(parent, child actor.Transform) actor.Transform {
	return actor.Transform{
		Position: parent.PointToLocal(child.Position),
		Rotation: parent.Rotation.Conjugate().Mul(child.Rotation),
	}
}

func sphereSphere(n *Narrowphase, pc *pairContext) {
	ra := pc.a.shape.(*actor.Sphere).Radius
	rb := pc.b.shape.(*actor.Sphere).Radius
	xa, xb := pc.a.t.Position, pc.b.t.Position

	d := xb.Sub(xa)
	dist := d.Len()
	if dist > ra+rb {
		return
	}
	normal := fallbackNormal
	if dist > 1e-12 {
		normal = d.Mul(1 / dist)
	}
	n.addContact(pc, normal, xa.Add(normal.Mul(ra)), xb.Sub(normal.Mul(rb)))
}

func spherePlane(n *Narrowphase, pc *pairContext) {
	r := pc.a.shape.(*actor.Sphere).Radius
	center := pc.a.t.Position
	planeNormal := pc.b.shape.(*actor.Plane).WorldNormal(pc.b.t.Rotation)

	dist := center.Sub(pc.b.t.Position).Dot(planeNormal)
	if dist > r {
		return
	}
	n.addContact(pc, planeNormal.Mul(-1), center.Sub(planeNormal.Mul(r)), center.Sub(planeNormal.Mul(dist)))
}

func sphereConvex(n *Narrowphase, pc *pairContext) {
	r := pc.a.shape.(*actor.Sphere).Radius
	n.sphereHull(pc, r, pc.a.t.Position, hullOf(pc.b.shape), pc.b.t)
}

// sphereHull collides a sphere with a hull placed at t. Outside the hull the
// contact goes to the closest point of the faces the center is in front of;
// a center inside the hull is pushed out through the nearest face.
func (n *Narrowphase) sphereHull(pc *pairContext, r float64, center mgl64.Vec3, hull *actor.ConvexPolyhedron, t actor.Transform) {
	local := t.PointToLocal(center)

	if hull.PointIsInside(local) {
		face, best := -1, math.Inf(-1)
		for i, f := range hull.Faces {
			d := hull.FaceNormals[i].Dot(local.Sub(hull.Vertices[f[0]]))
			if d > best {
				face, best = i, d
			}
		}
		if face < 0 {
			return
		}
		faceNormal := t.VectorToWorld(hull.FaceNormals[face])
		n.addContact(pc, faceNormal.Mul(-1), center.Sub(faceNormal.Mul(r)), center.Sub(faceNormal.Mul(best)))
		return
	}

	closest, bestSq := mgl64.Vec3{}, math.Inf(1)
	for i, f := range hull.Faces {
		fn := hull.FaceNormals[i]
		d := fn.Dot(local.Sub(hull.Vertices[f[0]]))
		if d <= 0 || d > r {
			continue
		}
		if pointInFace(hull, i, local) {
			if d*d < bestSq {
				closest, bestSq = local.Sub(fn.Mul(d)), d*d
			}
			continue
		}
		for k := range f {
			p := closestOnSegment(local, hull.Vertices[f[k]], hull.Vertices[f[(k+1)%len(f)]])
			if dsq := p.Sub(local).LenSqr(); dsq < bestSq {
				closest, bestSq = p, dsq
			}
		}
	}
	if bestSq > r*r {
		return
	}

	world := t.PointToWorld(closest)
	normal := world.Sub(center)
	if normal.LenSqr() < 1e-24 {
		return
	}
	normal = normal.Normalize()
	n.addContact(pc, normal, center.Add(normal.Mul(r)), world)
}

// pointInFace reports whether the projection of p lies inside face i.
func pointInFace(hull *actor.ConvexPolyhedron, i int, p mgl64.Vec3) bool {
	face := hull.Faces[i]
	normal := hull.FaceNormals[i]
	for k := range face {
		a := hull.Vertices[face[k]]
		b := hull.Vertices[face[(k+1)%len(face)]]
		if b.Sub(a).Cross(p.Sub(a)).Dot(normal) < 0 {
			return false
		}
	}
	return true
}

func closestOnSegment(p, a, b mgl64.Vec3) mgl64.Vec3 {
	ab := b.Sub(a)
	lenSq := ab.LenSqr()
	if lenSq == 0 {
		return a
	}
	t := mgl64.Clamp(p.Sub(a).Dot(ab)/lenSq, 0, 1)
	return a.Add(ab.Mul(t))
}

// closestOnTriangle projects p on the triangle abc. Degenerate triangles are
// reported with ok false.
func closestOnTriangle(p, a, b, c mgl64.Vec3) (mgl64.Vec3, bool) {
	e1, e2 := b.Sub(a), c.Sub(a)
	m := mgl64.Mat3FromCols(e1, e2, e1.Cross(e2))
	x, err := mathx.Solve3(m, p.Sub(a))
	if err != nil {
		return mgl64.Vec3{}, false
	}
	if u, v := x[0], x[1]; u >= 0 && v >= 0 && u+v <= 1 {
		return a.Add(e1.Mul(u)).Add(e2.Mul(v)), true
	}

	best := closestOnSegment(p, a, b)
	for _, q := range [2]mgl64.Vec3{closestOnSegment(p, b, c), closestOnSegment(p, c, a)} {
		if q.Sub(p).LenSqr() < best.Sub(p).LenSqr() {
			best = q
		}
	}
	return best, true
}

func sphereHeightfield(n *Narrowphase, pc *pairContext) {
	r := pc.a.shape.(*actor.Sphere).Radius
	center := pc.a.t.Position
	hf := pc.b.shape.(*actor.Heightfield)

	local := pc.b.t.PointToLocal(center)
	if local.Z()-r > hf.MaxValue() {
		return
	}
	ext := mgl64.Vec3{r, r, r}
	x0, y0, x1, y1 := hf.CellRange(actor.AABB{Min: local.Sub(ext), Max: local.Add(ext)})

	for xi := x0; xi < x1; xi++ {
		for yi := y0; yi < y1; yi++ {
			for _, upper := range [2]bool{false, true} {
				pillar := hf.ConvexTrianglePillar(xi, yi, upper)
				pt := pc.b.t.Compose(pillar.Offset, mgl64.QuatIdent())
				if pt.Position.Sub(center).Len() > pillar.Hull.BoundingRadius()+r {
					continue
				}
				n.sphereHull(pc, r, center, pillar.Hull, pt)
				if pc.done() {
					return
				}
			}
		}
	}
}

func sphereTrimesh(n *Narrowphase, pc *pairContext) {
	r := pc.a.shape.(*actor.Sphere).Radius
	center := pc.a.t.Position
	mesh := pc.b.shape.(*actor.Trimesh)

	local := pc.b.t.PointToLocal(center)
	ext := mgl64.Vec3{r, r, r}
	n.triangles = mesh.TrianglesInAABB(actor.AABB{Min: local.Sub(ext), Max: local.Add(ext)}, n.triangles[:0])

	for _, i := range n.triangles {
		a, b, c := mesh.TriangleVertices(i)
		closest, ok := closestOnTriangle(local, a, b, c)
		if !ok {
			continue
		}
		dist := closest.Sub(local).Len()
		if dist > r {
			continue
		}

		world := pc.b.t.PointToWorld(closest)
		var normal mgl64.Vec3
		if dist > 1e-12 {
			normal = world.Sub(center).Normalize()
		} else {
			normal = pc.b.t.VectorToWorld(mesh.Normals[i]).Mul(-1)
		}
		if !n.addContact(pc, normal, center.Add(normal.Mul(r)), world) {
			return
		}
	}
}

// planeConvex keeps the deepest hull vertices below the plane, or within
// sat.ContactMargin above it.
func planeConvex(n *Narrowphase, pc *pairContext) {
	planeNormal := pc.a.shape.(*actor.Plane).WorldNormal(pc.a.t.Rotation)
	hull := hullOf(pc.b.shape)

	n.points = n.points[:0]
	for _, v := range hull.Vertices {
		w := pc.b.t.PointToWorld(v)
		if d := w.Sub(pc.a.t.Position).Dot(planeNormal); d <= sat.ContactMargin {
			n.points = append(n.points, sat.ContactPoint{Point: w, Normal: planeNormal, Depth: d})
		}
	}
	slices.SortStableFunc(n.points, func(p, q sat.ContactPoint) int {
		switch {
		case p.Depth < q.Depth:
			return -1
		case p.Depth > q.Depth:
			return 1
		}
		return 0
	})
	if len(n.points) > maxPlaneContacts {
		n.points = n.points[:maxPlaneContacts]
	}

	for _, p := range n.points {
		if !n.addContact(pc, planeNormal, p.Point.Sub(planeNormal.Mul(p.Depth)), p.Point) {
			return
		}
	}
}

func planeTrimesh(n *Narrowphase, pc *pairContext) {
	planeNormal := pc.a.shape.(*actor.Plane).WorldNormal(pc.a.t.Rotation)
	mesh := pc.b.shape.(*actor.Trimesh)

	for i := 0; i < mesh.NumVertices(); i++ {
		w := pc.b.t.PointToWorld(mesh.Vertex(i))
		d := w.Sub(pc.a.t.Position).Dot(planeNormal)
		if d > sat.ContactMargin {
			continue
		}
		if !n.addContact(pc, planeNormal, w.Sub(planeNormal.Mul(d)), w) {
			return
		}
	}
}

func convexConvex(n *Narrowphase, pc *pairContext) {
	n.hullContacts(pc, hullOf(pc.a.shape), pc.a.t, hullOf(pc.b.shape), pc.b.t)
}

// hullContacts runs SAT between two hulls and turns the clipped incident face
// into contacts.
func (n *Narrowphase) hullContacts(pc *pairContext, hullA *actor.ConvexPolyhedron, ta actor.Transform, hullB *actor.ConvexPolyhedron, tb actor.Transform) {
	axis, _, ok := sat.FindSeparatingAxis(hullA, ta, hullB, tb)
	if !ok {
		return
	}

	n.points = n.clipper.ClipAgainstHull(hullA, ta, hullB, tb, axis, -clipRange, clipRange, n.points[:0])
	normal := axis.Mul(-1)
	n.manifold = sat.ReduceManifold(n.points, normal, n.manifold[:0])
	for _, p := range n.manifold {
		// move the incident point back onto the reference face of A
		pointA := p.Point.Sub(p.Normal.Mul(p.Depth))
		if !n.addContact(pc, normal, pointA, p.Point) {
			return
		}
	}
}

func convexHeightfield(n *Narrowphase, pc *pairContext) {
	hull := hullOf(pc.a.shape)
	hf := pc.b.shape.(*actor.Heightfield)

	local := pc.a.shape.WorldAABB(relativeTransform(pc.b.t, pc.a.t))
	if local.Min.Z() > hf.MaxValue() {
		return
	}
	x0, y0, x1, y1 := hf.CellRange(local)
	radius := hull.BoundingRadius()

	for xi := x0; xi < x1; xi++ {
		for yi := y0; yi < y1; yi++ {
			for _, upper := range [2]bool{false, true} {
				pillar := hf.ConvexTrianglePillar(xi, yi, upper)
				pt := pc.b.t.Compose(pillar.Offset, mgl64.QuatIdent())
				if pt.Position.Sub(pc.a.t.Position).Len() > pillar.Hull.BoundingRadius()+radius {
					continue
				}
				n.hullContacts(pc, hull, pc.a.t, pillar.Hull, pt)
				if pc.done() {
					return
				}
			}
		}
	}
}

func convexTrimesh(n *Narrowphase, pc *pairContext) {
	hull := hullOf(pc.a.shape)
	mesh := pc.b.shape.(*actor.Trimesh)

	local := pc.a.shape.WorldAABB(relativeTransform(pc.b.t, pc.a.t))
	n.triangles = mesh.TrianglesInAABB(local, n.triangles[:0])
	thickness := hull.BoundingRadius()

	for _, i := range n.triangles {
		pillar, ok := mesh.TrianglePillar(i, thickness)
		if !ok {
			continue
		}
		n.hullContacts(pc, hull, pc.a.t, pillar.Hull, pc.b.t.Compose(pillar.Offset, mgl64.QuatIdent()))
		if pc.done() {
			return
		}
	}
}
