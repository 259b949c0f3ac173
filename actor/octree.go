package actor

import "github.com/go-gl/mathgl/mgl64"

// Octree indexes values by their bounding boxes. A value is stored in the
// deepest node that fully contains its box.
type Octree[T any] struct {
	MaxDepth int
	root     *octreeNode[T]
}

type octreeNode[T any] struct {
	aabb     AABB
	data     []T
	children []*octreeNode[T]
}

func NewOctree[T any](bounds AABB, maxDepth int) *Octree[T] {
	return &Octree[T]{
		MaxDepth: maxDepth,
		root:     &octreeNode[T]{aabb: bounds},
	}
}

func (o *Octree[T]) Bounds() AABB {
	return o.root.aabb
}

// Insert stores value under aabb. It returns false if aabb lies outside the tree bounds.
func (o *Octree[T]) Insert(aabb AABB, value T) bool {
	return o.root.insert(aabb, value, 0, o.MaxDepth)
}

func (n *octreeNode[T]) insert(aabb AABB, value T, level, maxDepth int) bool {
	if !n.aabb.Contains(aabb) {
		return false
	}

	if level < maxDepth {
		if n.children == nil {
			n.subdivide()
		}
		for _, child := range n.children {
			if child.insert(aabb, value, level+1, maxDepth) {
				return true
			}
		}
	}

	n.data = append(n.data, value)
	return true
}

func (n *octreeNode[T]) subdivide() {
	half := n.aabb.HalfExtents()
	n.children = make([]*octreeNode[T], 8)
	for i := range n.children {
		min := n.aabb.Min
		if i&1 != 0 {
			min[0] += half[0]
		}
		if i&2 != 0 {
			min[1] += half[1]
		}
		if i&4 != 0 {
			min[2] += half[2]
		}
		n.children[i] = &octreeNode[T]{aabb: AABB{Min: min, Max: min.Add(half)}}
	}
}

// Query appends to result every value stored in a node overlapping aabb.
// Values may not overlap aabb themselves; callers refine the candidates.
func (o *Octree[T]) Query(aabb AABB, result []T) []T {
	queue := []*octreeNode[T]{o.root}
	for len(queue) > 0 {
		n := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if !n.aabb.Overlaps(aabb) {
			continue
		}
		result = append(result, n.data...)
		queue = append(queue, n.children...)
	}
	return result
}

// QueryRay appends the values of every node the segment from -> to crosses.
func (o *Octree[T]) QueryRay(from, to mgl64.Vec3, result []T) []T {
	queue := []*octreeNode[T]{o.root}
	for len(queue) > 0 {
		n := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if !n.aabb.OverlapsRay(from, to) {
			continue
		}
		result = append(result, n.data...)
		queue = append(queue, n.children...)
	}
	return result
}
