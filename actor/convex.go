package actor

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const edgeEpsilon = 1e-9

// ConvexPolyhedron is a closed convex hull described by its vertices and
// faces. Each face lists vertex indices counter-clockwise seen from outside.
type ConvexPolyhedron struct {
	Vertices    []mgl64.Vec3
	Faces       [][]int
	FaceNormals []mgl64.Vec3
	UniqueEdges []mgl64.Vec3

	// UniqueAxes, when set, replaces the face normals as candidate face axes in SAT
	UniqueAxes []mgl64.Vec3

	boundingRadius float64
}

func NewConvexPolyhedron(vertices []mgl64.Vec3, faces [][]int) (*ConvexPolyhedron, error) {
	hull := &ConvexPolyhedron{
		Vertices: append([]mgl64.Vec3(nil), vertices...),
		Faces:    make([][]int, len(faces)),
	}
	for i, face := range faces {
		hull.Faces[i] = append([]int(nil), face...)
	}
	if err := hull.rebuild(); err != nil {
		return nil, err
	}
	return hull, nil
}

func (c *ConvexPolyhedron) sealed() {}

func (c *ConvexPolyhedron) Type() ShapeType { return ShapeTypeConvexPolyhedron }

// SetVertices replaces the vertex positions, keeping the face topology.
func (c *ConvexPolyhedron) SetVertices(vertices []mgl64.Vec3) error {
	if len(vertices) != len(c.Vertices) {
		return fmt.Errorf("%w: expected %d vertices, got %d", ErrInvalidShape, len(c.Vertices), len(vertices))
	}
	previous := c.Vertices
	c.Vertices = append([]mgl64.Vec3(nil), vertices...)
	if err := c.rebuild(); err != nil {
		c.Vertices = previous
		_ = c.rebuild()
		return err
	}
	return nil
}

// Scale multiplies every vertex component-wise by s.
func (c *ConvexPolyhedron) Scale(s mgl64.Vec3) error {
	scaled := make([]mgl64.Vec3, len(c.Vertices))
	for i, v := range c.Vertices {
		scaled[i] = mgl64.Vec3{v[0] * s[0], v[1] * s[1], v[2] * s[2]}
	}
	return c.SetVertices(scaled)
}

func (c *ConvexPolyhedron) rebuild() error {
	if len(c.Vertices) < 4 || len(c.Faces) < 4 {
		return fmt.Errorf("%w: polyhedron needs at least 4 vertices and 4 faces", ErrInvalidShape)
	}
	for _, v := range c.Vertices {
		for _, x := range v {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return fmt.Errorf("%w: non-finite vertex %v", ErrInvalidShape, v)
			}
		}
	}
	if err := c.computeNormals(); err != nil {
		return err
	}
	c.computeEdges()
	c.updateBoundingRadius()
	return nil
}

func (c *ConvexPolyhedron) centroid() mgl64.Vec3 {
	var sum mgl64.Vec3
	for _, v := range c.Vertices {
		sum = sum.Add(v)
	}
	return sum.Mul(1.0 / float64(len(c.Vertices)))
}

func (c *ConvexPolyhedron) computeNormals() error {
	center := c.centroid()
	c.FaceNormals = make([]mgl64.Vec3, len(c.Faces))

	for i, face := range c.Faces {
		if len(face) < 3 {
			return fmt.Errorf("%w: face %d has %d vertices", ErrInvalidShape, i, len(face))
		}
		for _, idx := range face {
			if idx < 0 || idx >= len(c.Vertices) {
				return fmt.Errorf("%w: face %d references vertex %d", ErrInvalidShape, i, idx)
			}
		}

		va, vb, vc := c.Vertices[face[0]], c.Vertices[face[1]], c.Vertices[face[2]]
		n := vb.Sub(va).Cross(vc.Sub(vb))
		if n.LenSqr() < 1e-24 {
			return fmt.Errorf("%w: face %d is degenerate", ErrInvalidShape, i)
		}
		n = n.Normalize()
		if n.Dot(va.Sub(center)) < 0 {
			return fmt.Errorf("%w: face %d normal points into the hull", ErrInvalidShape, i)
		}
		c.FaceNormals[i] = n
	}
	return nil
}

func (c *ConvexPolyhedron) computeEdges() {
	c.UniqueEdges = c.UniqueEdges[:0]
	for _, face := range c.Faces {
		for j := range face {
			a := c.Vertices[face[j]]
			b := c.Vertices[face[(j+1)%len(face)]]
			edge := b.Sub(a)
			if edge.LenSqr() < 1e-24 {
				continue
			}
			edge = edge.Normalize()

			duplicate := false
			for _, e := range c.UniqueEdges {
				if e.Sub(edge).LenSqr() < edgeEpsilon || e.Add(edge).LenSqr() < edgeEpsilon {
					duplicate = true
					break
				}
			}
			if !duplicate {
				c.UniqueEdges = append(c.UniqueEdges, edge)
			}
		}
	}
}

func (c *ConvexPolyhedron) updateBoundingRadius() {
	maxSq := 0.0
	for _, v := range c.Vertices {
		maxSq = math.Max(maxSq, v.LenSqr())
	}
	c.boundingRadius = math.Sqrt(maxSq)
}

func (c *ConvexPolyhedron) BoundingRadius() float64 { return c.boundingRadius }

// FaceAxes returns the candidate face axes used by the separating axis test.
func (c *ConvexPolyhedron) FaceAxes() []mgl64.Vec3 {
	if c.UniqueAxes != nil {
		return c.UniqueAxes
	}
	return c.FaceNormals
}

func (c *ConvexPolyhedron) LocalAABB() AABB {
	aabb := EmptyAABB()
	for _, v := range c.Vertices {
		aabb = aabb.Extend(v)
	}
	return aabb
}

// LocalInertia approximates the hull by its local bounding box.
func (c *ConvexPolyhedron) LocalInertia(mass float64) mgl64.Vec3 {
	return boxInertia(c.LocalAABB(), mass)
}

func boxInertia(aabb AABB, mass float64) mgl64.Vec3 {
	size := aabb.Max.Sub(aabb.Min)
	x, y, z := size.X(), size.Y(), size.Z()
	factor := mass / 12.0
	return mgl64.Vec3{
		factor * (y*y + z*z),
		factor * (x*x + z*z),
		factor * (x*x + y*y),
	}
}

func (c *ConvexPolyhedron) WorldAABB(transform Transform) AABB {
	aabb := EmptyAABB()
	for _, v := range c.Vertices {
		aabb = aabb.Extend(transform.PointToWorld(v))
	}
	return aabb
}

// Volume integrates signed tetrahedra fanned from the centroid over every face.
func (c *ConvexPolyhedron) Volume() float64 {
	center := c.centroid()
	volume := 0.0
	for _, face := range c.Faces {
		a := c.Vertices[face[0]].Sub(center)
		for j := 1; j+1 < len(face); j++ {
			b := c.Vertices[face[j]].Sub(center)
			d := c.Vertices[face[j+1]].Sub(center)
			volume += a.Dot(b.Cross(d)) / 6.0
		}
	}
	return math.Abs(volume)
}

func (c *ConvexPolyhedron) Support(direction mgl64.Vec3) mgl64.Vec3 {
	best := c.Vertices[0]
	bestDot := best.Dot(direction)
	for _, v := range c.Vertices[1:] {
		if d := v.Dot(direction); d > bestDot {
			best, bestDot = v, d
		}
	}
	return best
}

// WorldVertices appends the transformed vertices to out.
func (c *ConvexPolyhedron) WorldVertices(transform Transform, out []mgl64.Vec3) []mgl64.Vec3 {
	for _, v := range c.Vertices {
		out = append(out, transform.PointToWorld(v))
	}
	return out
}

// PointIsInside reports whether a local point lies inside every face plane.
func (c *ConvexPolyhedron) PointIsInside(p mgl64.Vec3) bool {
	for i, face := range c.Faces {
		if c.FaceNormals[i].Dot(p.Sub(c.Vertices[face[0]])) > 0 {
			return false
		}
	}
	return true
}
