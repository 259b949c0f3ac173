package mathx

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolve3(t *testing.T) {
	t.Run("diagonal system", func(t *testing.T) {
		x, err := Solve3(mgl64.Diag3(mgl64.Vec3{2, 4, 8}), mgl64.Vec3{2, 2, 2})
		require.NoError(t, err)
		assert.InDelta(t, 1.0, x.X(), 1e-12)
		assert.InDelta(t, 0.5, x.Y(), 1e-12)
		assert.InDelta(t, 0.25, x.Z(), 1e-12)
	})

	t.Run("needs pivoting", func(t *testing.T) {
		// rows: [0 1 0], [1 0 0], [0 0 1]
		m := mgl64.Mat3FromRows(mgl64.Vec3{0, 1, 0}, mgl64.Vec3{1, 0, 0}, mgl64.Vec3{0, 0, 1})
		x, err := Solve3(m, mgl64.Vec3{3, 5, 7})
		require.NoError(t, err)
		assert.True(t, x.ApproxEqual(mgl64.Vec3{5, 3, 7}), "got %v", x)
	})

	t.Run("general system round trips", func(t *testing.T) {
		m := mgl64.Mat3FromRows(mgl64.Vec3{3, 1, -2}, mgl64.Vec3{1, 4, 1}, mgl64.Vec3{-1, 2, 5})
		want := mgl64.Vec3{1, -2, 0.5}
		x, err := Solve3(m, m.Mul3x1(want))
		require.NoError(t, err)
		assert.True(t, x.ApproxEqualThreshold(want, 1e-9), "got %v", x)
	})

	t.Run("singular system fails", func(t *testing.T) {
		m := mgl64.Mat3FromRows(mgl64.Vec3{1, 2, 3}, mgl64.Vec3{2, 4, 6}, mgl64.Vec3{0, 0, 1})
		_, err := Solve3(m, mgl64.Vec3{1, 1, 1})
		assert.ErrorIs(t, err, ErrSingular)
	})

	t.Run("non-finite input fails", func(t *testing.T) {
		m := mgl64.Diag3(mgl64.Vec3{1, 1, 1})
		_, err := Solve3(m, mgl64.Vec3{math.Inf(1), 0, 0})
		assert.ErrorIs(t, err, ErrSingular)
	})
}

func TestTangents(t *testing.T) {
	normals := []mgl64.Vec3{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, -1},
		mgl64.Vec3{1, 1, 1}.Normalize(),
	}
	for _, n := range normals {
		t1, t2 := Tangents(n)
		assert.InDelta(t, 1.0, t1.Len(), 1e-9)
		assert.InDelta(t, 1.0, t2.Len(), 1e-9)
		assert.InDelta(t, 0.0, t1.Dot(n), 1e-9)
		assert.InDelta(t, 0.0, t2.Dot(n), 1e-9)
		assert.InDelta(t, 0.0, t1.Dot(t2), 1e-9)
	}
}

func TestIntegrateQuat(t *testing.T) {
	q := mgl64.QuatIdent()
	w := mgl64.Vec3{0, 0, math.Pi}
	dt := 1.0 / 600
	for i := 0; i < 600; i++ {
		q = IntegrateQuat(q, w, dt).Normalize()
	}
	// half a turn around z
	rotated := q.Rotate(mgl64.Vec3{1, 0, 0})
	assert.InDelta(t, -1.0, rotated.X(), 1e-2)
	assert.InDelta(t, 0.0, rotated.Z(), 1e-9)
}

func TestNormalizeFast(t *testing.T) {
	q := mgl64.Quat{W: 1.01, V: mgl64.Vec3{0, 0, 0}}
	n := NormalizeFast(q)
	assert.InDelta(t, 1.0, n.Len(), 1e-3)
}
