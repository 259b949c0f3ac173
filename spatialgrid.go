package ballista

import (
	"fmt"
	"math"

	"github.com/akmonengine/ballista/actor"
	"github.com/go-gl/mathgl/mgl64"
)

// ============================================================================
// Types
// ============================================================================

// CellKey holds the integer coordinates of a grid bin.
type CellKey struct {
	X, Y, Z int
}

// Cell lists the indices of the bodies touching a bin.
type Cell struct {
	bodyIndices []int
}

// GridBroadphase splits a fixed box of the world into NX*NY*NZ bins. Bodies
// outside the box are clamped into the border bins, and bodies without finite
// bounds (planes) are paired with every other body.
type GridBroadphase struct {
	Min, Max         mgl64.Vec3
	NX, NY, NZ       int
	UseBoundingBoxes bool

	cells     []Cell
	unbounded []int
	seen      []int
	stamp     int
}

// ============================================================================
// Constructor
// ============================================================================

func NewGridBroadphase(min, max mgl64.Vec3, nx, ny, nz int) (*GridBroadphase, error) {
	if nx <= 0 || ny <= 0 || nz <= 0 {
		return nil, fmt.Errorf("%w: grid bins %dx%dx%d", ErrInvalidConfig, nx, ny, nz)
	}
	for k := 0; k < 3; k++ {
		if !(max[k] > min[k]) || !finite(min[k]) || !finite(max[k]) {
			return nil, fmt.Errorf("%w: grid bounds %v..%v", ErrInvalidConfig, min, max)
		}
	}

	cells := make([]Cell, nx*ny*nz)
	for i := range cells {
		cells[i].bodyIndices = make([]int, 0, 8)
	}

	return &GridBroadphase{
		Min:   min,
		Max:   max,
		NX:    nx,
		NY:    ny,
		NZ:    nz,
		cells: cells,
	}, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Insert adds a body to every bin its bounds touch.
func (g *GridBroadphase) Insert(bodyIndex int, body *actor.RigidBody) {
	if math.IsInf(body.BoundingRadius(), 1) {
		g.unbounded = append(g.unbounded, bodyIndex)
		return
	}

	bounds := bodyBounds(body)
	minCell := g.worldToCell(bounds.Min)
	maxCell := g.worldToCell(bounds.Max)

	for x := minCell.X; x <= maxCell.X; x++ {
		for y := minCell.Y; y <= maxCell.Y; y++ {
			for z := minCell.Z; z <= maxCell.Z; z++ {
				cellIdx := g.cellIndex(CellKey{x, y, z})
				g.cells[cellIdx].bodyIndices = append(g.cells[cellIdx].bodyIndices, bodyIndex)
			}
		}
	}
}

func (g *GridBroadphase) Clear() {
	for i := range g.cells {
		g.cells[i].bodyIndices = g.cells[i].bodyIndices[:0]
	}
	g.unbounded = g.unbounded[:0]
}

func (g *GridBroadphase) CollisionPairs(bodies []*actor.RigidBody, pairsA, pairsB []*actor.RigidBody) ([]*actor.RigidBody, []*actor.RigidBody) {
	g.Clear()
	for i, b := range bodies {
		g.Insert(i, b)
	}
	return g.FindPairs(bodies, pairsA, pairsB)
}

// FindPairs reports every pair sharing a bin once, in body order.
func (g *GridBroadphase) FindPairs(bodies []*actor.RigidBody, pairsA, pairsB []*actor.RigidBody) ([]*actor.RigidBody, []*actor.RigidBody) {
	if cap(g.seen) < len(bodies) {
		g.seen = make([]int, len(bodies))
		g.stamp = 0
	}
	g.seen = g.seen[:len(bodies)]

	test := func(a, b *actor.RigidBody) {
		if NeedsCollision(a, b) && intersectionTest(a, b, g.UseBoundingBoxes) {
			pairsA = append(pairsA, a)
			pairsB = append(pairsB, b)
		}
	}

	for _, u := range g.unbounded {
		for j, other := range bodies {
			if j == u {
				continue
			}
			// two unbounded bodies are paired once
			if math.IsInf(other.BoundingRadius(), 1) && j < u {
				continue
			}
			test(bodies[u], other)
		}
	}

	for bodyIdx, bodyA := range bodies {
		if math.IsInf(bodyA.BoundingRadius(), 1) {
			continue
		}
		g.stamp++
		bounds := bodyBounds(bodyA)
		minCell := g.worldToCell(bounds.Min)
		maxCell := g.worldToCell(bounds.Max)

		for x := minCell.X; x <= maxCell.X; x++ {
			for y := minCell.Y; y <= maxCell.Y; y++ {
				for z := minCell.Z; z <= maxCell.Z; z++ {
					for _, otherIdx := range g.cells[g.cellIndex(CellKey{x, y, z})].bodyIndices {
						if otherIdx <= bodyIdx || g.seen[otherIdx] == g.stamp {
							continue
						}
						g.seen[otherIdx] = g.stamp
						test(bodyA, bodies[otherIdx])
					}
				}
			}
		}
	}

	return pairsA, pairsB
}

func (g *GridBroadphase) AABBQuery(bodies []*actor.RigidBody, aabb actor.AABB, result []*actor.RigidBody) []*actor.RigidBody {
	return naiveAABBQuery(bodies, aabb, result)
}

// worldToCell converts a world position into clamped bin coordinates.
func (g *GridBroadphase) worldToCell(pos mgl64.Vec3) CellKey {
	return CellKey{
		X: g.axisCell(pos.X(), 0, g.NX),
		Y: g.axisCell(pos.Y(), 1, g.NY),
		Z: g.axisCell(pos.Z(), 2, g.NZ),
	}
}

func (g *GridBroadphase) axisCell(v float64, axis, n int) int {
	size := (g.Max[axis] - g.Min[axis]) / float64(n)
	f := math.Floor((v - g.Min[axis]) / size)
	if f < 0 || math.IsNaN(f) {
		return 0
	}
	if f > float64(n-1) {
		return n - 1
	}
	return int(f)
}

// cellIndex flattens bin coordinates into the cell slice.
func (g *GridBroadphase) cellIndex(key CellKey) int {
	return (key.X*g.NY+key.Y)*g.NZ + key.Z
}
