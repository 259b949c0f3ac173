package actor

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Heightfield is a regular grid of heights in the local XY plane. The sample
// Data[xi][yi] sits at (xi*ElementSize, yi*ElementSize, Data[xi][yi]).
// Every grid cell is split into a lower and an upper triangle.
type Heightfield struct {
	Data         [][]float64
	ElementSize  float64
	CacheEnabled bool

	minValue, maxValue float64
	boundingRadius     float64
	pillars            map[pillarKey]Pillar
}

type pillarKey struct {
	xi, yi int
	upper  bool
}

// Pillar is a convex prism under one heightfield triangle, positioned at Offset
// in the heightfield's local frame.
type Pillar struct {
	Hull   *ConvexPolyhedron
	Offset mgl64.Vec3
}

func NewHeightfield(data [][]float64, elementSize float64) (*Heightfield, error) {
	if !(elementSize > 0) || math.IsInf(elementSize, 0) {
		return nil, fmt.Errorf("%w: heightfield element size %v", ErrInvalidShape, elementSize)
	}
	if len(data) < 2 || len(data[0]) < 2 {
		return nil, fmt.Errorf("%w: heightfield needs at least 2x2 samples", ErrInvalidShape)
	}
	rows := len(data[0])
	copied := make([][]float64, len(data))
	for i, column := range data {
		if len(column) != rows {
			return nil, fmt.Errorf("%w: heightfield column %d has %d samples, want %d", ErrInvalidShape, i, len(column), rows)
		}
		for _, h := range column {
			if math.IsNaN(h) || math.IsInf(h, 0) {
				return nil, fmt.Errorf("%w: non-finite height in column %d", ErrInvalidShape, i)
			}
		}
		copied[i] = append([]float64(nil), column...)
	}

	h := &Heightfield{
		Data:         copied,
		ElementSize:  elementSize,
		CacheEnabled: true,
	}
	h.UpdateMinMax()
	return h, nil
}

func (h *Heightfield) sealed() {}

func (h *Heightfield) Type() ShapeType { return ShapeTypeHeightfield }

// UpdateMinMax refreshes the cached height range after Data was edited and
// drops cached pillars.
func (h *Heightfield) UpdateMinMax() {
	h.minValue, h.maxValue = math.Inf(1), math.Inf(-1)
	for _, column := range h.Data {
		for _, v := range column {
			h.minValue = math.Min(h.minValue, v)
			h.maxValue = math.Max(h.maxValue, v)
		}
	}
	h.boundingRadius = 0
	for _, corner := range h.cornersOf(h.localAABB()) {
		h.boundingRadius = math.Max(h.boundingRadius, corner.Len())
	}
	h.ClearCache()
}

func (h *Heightfield) ClearCache() {
	h.pillars = make(map[pillarKey]Pillar)
}

func (h *Heightfield) MinValue() float64 { return h.minValue }
func (h *Heightfield) MaxValue() float64 { return h.maxValue }

func (h *Heightfield) SizeX() int { return len(h.Data) }
func (h *Heightfield) SizeY() int { return len(h.Data[0]) }

func (h *Heightfield) pillarBottom() float64 {
	return h.minValue - 1
}

func (h *Heightfield) localAABB() AABB {
	return AABB{
		Min: mgl64.Vec3{0, 0, h.pillarBottom()},
		Max: mgl64.Vec3{float64(h.SizeX()-1) * h.ElementSize, float64(h.SizeY()-1) * h.ElementSize, h.maxValue},
	}
}

func (h *Heightfield) cornersOf(aabb AABB) [8]mgl64.Vec3 {
	var out [8]mgl64.Vec3
	for i := range out {
		out[i] = aabb.Min
		if i&1 != 0 {
			out[i][0] = aabb.Max[0]
		}
		if i&2 != 0 {
			out[i][1] = aabb.Max[1]
		}
		if i&4 != 0 {
			out[i][2] = aabb.Max[2]
		}
	}
	return out
}

func (h *Heightfield) BoundingRadius() float64 { return h.boundingRadius }

// LocalInertia is zero: heightfields are meant for static bodies.
func (h *Heightfield) LocalInertia(mass float64) mgl64.Vec3 { return mgl64.Vec3{} }

func (h *Heightfield) Volume() float64 { return 0 }

func (h *Heightfield) WorldAABB(transform Transform) AABB {
	return h.localAABB().Transformed(transform)
}

// IndexOfPosition returns the cell containing the local point (x, y).
// With clamp, positions outside the grid map to the nearest border cell.
func (h *Heightfield) IndexOfPosition(x, y float64, clamp bool) (int, int, bool) {
	w := float64(h.SizeX()-1) * h.ElementSize
	d := float64(h.SizeY()-1) * h.ElementSize
	if !clamp && (x < 0 || y < 0 || x > w || y > d) {
		return 0, 0, false
	}
	return h.cellIndex(x, h.SizeX()-2), h.cellIndex(y, h.SizeY()-2), true
}

// cellIndex converts a coordinate into a cell index clamped to [0, last]
// without overflowing on huge or infinite inputs.
func (h *Heightfield) cellIndex(v float64, last int) int {
	f := math.Floor(v / h.ElementSize)
	if f < 0 || math.IsNaN(f) {
		return 0
	}
	if f > float64(last) {
		return last
	}
	return int(f)
}

// CellRange returns the cells [x0,x1)x[y0,y1) overlapped by a local box.
func (h *Heightfield) CellRange(local AABB) (x0, y0, x1, y1 int) {
	w, d := h.SizeX()-1, h.SizeY()-1
	x0 = h.cellIndex(local.Min.X(), w-1)
	y0 = h.cellIndex(local.Min.Y(), d-1)
	x1 = h.cellIndex(local.Max.X(), w-1) + 1
	y1 = h.cellIndex(local.Max.Y(), d-1) + 1
	return x0, y0, x1, y1
}

// Triangle returns the three local corners of the lower or upper triangle of a cell.
func (h *Heightfield) Triangle(xi, yi int, upper bool) (mgl64.Vec3, mgl64.Vec3, mgl64.Vec3) {
	es := h.ElementSize
	x0, y0 := float64(xi)*es, float64(yi)*es
	x1, y1 := x0+es, y0+es

	if upper {
		return mgl64.Vec3{x1, y1, h.Data[xi+1][yi+1]},
			mgl64.Vec3{x0, y1, h.Data[xi][yi+1]},
			mgl64.Vec3{x1, y0, h.Data[xi+1][yi]}
	}
	return mgl64.Vec3{x0, y0, h.Data[xi][yi]},
		mgl64.Vec3{x1, y0, h.Data[xi+1][yi]},
		mgl64.Vec3{x0, y1, h.Data[xi][yi+1]}
}

// HeightAt interpolates the surface height at the local point (x, y).
func (h *Heightfield) HeightAt(x, y float64) float64 {
	xi, yi, _ := h.IndexOfPosition(x, y, true)
	fx := x/h.ElementSize - float64(xi)
	fy := y/h.ElementSize - float64(yi)

	if fx+fy > 1 {
		h11, h01, h10 := h.Data[xi+1][yi+1], h.Data[xi][yi+1], h.Data[xi+1][yi]
		return h11 + (1-fx)*(h01-h11) + (1-fy)*(h10-h11)
	}
	h00, h10, h01 := h.Data[xi][yi], h.Data[xi+1][yi], h.Data[xi][yi+1]
	return h00 + fx*(h10-h00) + fy*(h01-h00)
}

// RectMinMax returns the height range over the samples [x0,x1]x[y0,y1].
func (h *Heightfield) RectMinMax(x0, y0, x1, y1 int) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := x0; i <= x1 && i < h.SizeX(); i++ {
		for j := y0; j <= y1 && j < h.SizeY(); j++ {
			lo = math.Min(lo, h.Data[i][j])
			hi = math.Max(hi, h.Data[i][j])
		}
	}
	return lo, hi
}

// ConvexTrianglePillar builds the prism spanning from below the field up to
// one triangle of cell (xi, yi). Pillars are cached when CacheEnabled is set.
func (h *Heightfield) ConvexTrianglePillar(xi, yi int, upper bool) Pillar {
	key := pillarKey{xi: xi, yi: yi, upper: upper}
	if h.CacheEnabled {
		if p, ok := h.pillars[key]; ok {
			return p
		}
	}

	es := h.ElementSize
	bottom := h.pillarBottom()
	var vertices []mgl64.Vec3
	var faces [][]int
	var offset mgl64.Vec3

	if upper {
		top := math.Min(h.Data[xi+1][yi+1], math.Min(h.Data[xi][yi+1], h.Data[xi+1][yi]))
		mid := (top-bottom)/2 + bottom
		offset = mgl64.Vec3{(float64(xi) + 0.25) * es, (float64(yi) + 0.25) * es, mid}
		vertices = []mgl64.Vec3{
			{0.75 * es, 0.75 * es, h.Data[xi+1][yi+1] - mid},
			{-0.25 * es, 0.75 * es, h.Data[xi][yi+1] - mid},
			{0.75 * es, -0.25 * es, h.Data[xi+1][yi] - mid},
			{0.75 * es, 0.75 * es, bottom - mid},
			{-0.25 * es, 0.75 * es, bottom - mid},
			{0.75 * es, -0.25 * es, bottom - mid},
		}
		faces = [][]int{{0, 1, 2}, {5, 4, 3}, {2, 5, 3, 0}, {3, 4, 1, 0}, {1, 4, 5, 2}}
	} else {
		top := math.Min(h.Data[xi][yi], math.Min(h.Data[xi+1][yi], h.Data[xi][yi+1]))
		mid := (top-bottom)/2 + bottom
		offset = mgl64.Vec3{(float64(xi) + 0.25) * es, (float64(yi) + 0.25) * es, mid}
		vertices = []mgl64.Vec3{
			{-0.25 * es, -0.25 * es, h.Data[xi][yi] - mid},
			{0.75 * es, -0.25 * es, h.Data[xi+1][yi] - mid},
			{-0.25 * es, 0.75 * es, h.Data[xi][yi+1] - mid},
			{-0.25 * es, -0.25 * es, bottom - mid},
			{0.75 * es, -0.25 * es, bottom - mid},
			{-0.25 * es, 0.75 * es, bottom - mid},
		}
		faces = [][]int{{0, 1, 2}, {5, 4, 3}, {0, 2, 5, 3}, {1, 0, 3, 4}, {4, 5, 2, 1}}
	}

	hull, err := NewConvexPolyhedron(vertices, faces)
	if err != nil {
		// heights are finite and the bottom lies a full unit below every sample
		panic(err)
	}
	p := Pillar{Hull: hull, Offset: offset}
	if h.CacheEnabled {
		h.pillars[key] = p
	}
	return p
}
