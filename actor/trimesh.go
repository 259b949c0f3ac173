package actor

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const trimeshTreeDepth = 8

// Trimesh is an arbitrary triangle soup. Triangles are indexed in an octree
// for region queries.
type Trimesh struct {
	Indices [][3]int
	// Normals holds one unit normal per triangle, zero for degenerate triangles
	Normals []mgl64.Vec3

	vertices       []mgl64.Vec3
	scale          mgl64.Vec3
	scaled         []mgl64.Vec3
	localAABB      AABB
	boundingRadius float64
	tree           *Octree[int]
}

func NewTrimesh(vertices []mgl64.Vec3, indices [][3]int) (*Trimesh, error) {
	if len(indices) == 0 {
		return nil, fmt.Errorf("%w: trimesh without triangles", ErrInvalidShape)
	}
	for i, tri := range indices {
		for _, idx := range tri {
			if idx < 0 || idx >= len(vertices) {
				return nil, fmt.Errorf("%w: triangle %d references vertex %d", ErrInvalidShape, i, idx)
			}
		}
	}
	for _, v := range vertices {
		for _, x := range v {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return nil, fmt.Errorf("%w: non-finite vertex %v", ErrInvalidShape, v)
			}
		}
	}

	t := &Trimesh{
		Indices:  append([][3]int(nil), indices...),
		vertices: append([]mgl64.Vec3(nil), vertices...),
		scale:    mgl64.Vec3{1, 1, 1},
	}
	t.rebuild()
	return t, nil
}

func (t *Trimesh) sealed() {}

func (t *Trimesh) Type() ShapeType { return ShapeTypeTrimesh }

// SetScale rescales the mesh component-wise and rebuilds its index.
func (t *Trimesh) SetScale(scale mgl64.Vec3) error {
	for i := 0; i < 3; i++ {
		if !(scale[i] > 0) || math.IsInf(scale[i], 0) {
			return fmt.Errorf("%w: trimesh scale %v", ErrInvalidShape, scale)
		}
	}
	t.scale = scale
	t.rebuild()
	return nil
}

func (t *Trimesh) Scale() mgl64.Vec3 { return t.scale }

func (t *Trimesh) rebuild() {
	t.scaled = make([]mgl64.Vec3, len(t.vertices))
	t.localAABB = EmptyAABB()
	t.boundingRadius = 0
	for i, v := range t.vertices {
		t.scaled[i] = mgl64.Vec3{v[0] * t.scale[0], v[1] * t.scale[1], v[2] * t.scale[2]}
		t.localAABB = t.localAABB.Extend(t.scaled[i])
		t.boundingRadius = math.Max(t.boundingRadius, t.scaled[i].Len())
	}

	t.Normals = make([]mgl64.Vec3, len(t.Indices))
	for i := range t.Indices {
		a, b, c := t.TriangleVertices(i)
		n := b.Sub(a).Cross(c.Sub(a))
		if n.LenSqr() > 1e-24 {
			t.Normals[i] = n.Normalize()
		}
	}

	t.tree = NewOctree[int](t.localAABB, trimeshTreeDepth)
	for i := range t.Indices {
		a, b, c := t.TriangleVertices(i)
		t.tree.Insert(EmptyAABB().Extend(a).Extend(b).Extend(c), i)
	}
}

func (t *Trimesh) NumVertices() int { return len(t.scaled) }

// Vertex returns a scaled local vertex.
func (t *Trimesh) Vertex(i int) mgl64.Vec3 { return t.scaled[i] }

// TriangleVertices returns the scaled local corners of triangle i.
func (t *Trimesh) TriangleVertices(i int) (mgl64.Vec3, mgl64.Vec3, mgl64.Vec3) {
	tri := t.Indices[i]
	return t.scaled[tri[0]], t.scaled[tri[1]], t.scaled[tri[2]]
}

// TrianglesInAABB appends the triangles whose bounds may overlap a local box.
func (t *Trimesh) TrianglesInAABB(aabb AABB, result []int) []int {
	candidates := t.tree.Query(aabb, nil)
	for _, i := range candidates {
		a, b, c := t.TriangleVertices(i)
		if EmptyAABB().Extend(a).Extend(b).Extend(c).Overlaps(aabb) {
			result = append(result, i)
		}
	}
	return result
}

// TrianglesOnRay appends the triangles whose octree nodes a local segment crosses.
func (t *Trimesh) TrianglesOnRay(from, to mgl64.Vec3, result []int) []int {
	return t.tree.QueryRay(from, to, result)
}

func (t *Trimesh) BoundingRadius() float64 { return t.boundingRadius }

func (t *Trimesh) LocalAABB() AABB { return t.localAABB }

func (t *Trimesh) WorldAABB(transform Transform) AABB {
	return t.localAABB.Transformed(transform)
}

// Volume uses the enclosed volume for closed meshes and the bounding box otherwise.
func (t *Trimesh) Volume() float64 {
	volume := 0.0
	for i := range t.Indices {
		a, b, c := t.TriangleVertices(i)
		volume += a.Dot(b.Cross(c)) / 6.0
	}
	if v := math.Abs(volume); v > 1e-12 {
		return v
	}
	size := t.localAABB.Max.Sub(t.localAABB.Min)
	return size.X() * size.Y() * size.Z()
}

// LocalInertia approximates the mesh by its local bounding box.
func (t *Trimesh) LocalInertia(mass float64) mgl64.Vec3 {
	return boxInertia(t.localAABB, mass)
}

// TrianglePillar extrudes triangle i along the opposite of its normal by
// thickness into a convex prism, returned with its local offset.
func (t *Trimesh) TrianglePillar(i int, thickness float64) (Pillar, bool) {
	n := t.Normals[i]
	if n.LenSqr() == 0 {
		return Pillar{}, false
	}
	a, b, c := t.TriangleVertices(i)
	center := a.Add(b).Add(c).Mul(1.0 / 3.0).Sub(n.Mul(thickness / 2))
	down := n.Mul(-thickness)

	vertices := []mgl64.Vec3{
		a.Sub(center), b.Sub(center), c.Sub(center),
		a.Add(down).Sub(center), b.Add(down).Sub(center), c.Add(down).Sub(center),
	}
	faces := [][]int{{0, 1, 2}, {5, 4, 3}, {0, 3, 4, 1}, {1, 4, 5, 2}, {2, 5, 3, 0}}

	hull, err := NewConvexPolyhedron(vertices, faces)
	if err != nil {
		return Pillar{}, false
	}
	return Pillar{Hull: hull, Offset: center}, true
}
