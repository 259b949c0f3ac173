// Package mathx holds the few numeric helpers the engine needs on top of mgl64:
// a guarded 3x3 dense solve, tangent bases and quaternion integration.
package mathx

import (
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ErrSingular is returned by Solve3 when the system has no unique finite solution.
var ErrSingular = errors.New("mathx: singular or non-finite system")

const pivotEpsilon = 1e-12

// Solve3 solves m·x = b with Gaussian elimination and partial pivoting.
// It never returns NaN or Inf components: such results are reported as ErrSingular.
func Solve3(m mgl64.Mat3, b mgl64.Vec3) (mgl64.Vec3, error) {
	// augmented rows [a0 a1 a2 | b]
	var rows [3][4]float64
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			rows[r][c] = m.At(r, c)
		}
		rows[r][3] = b[r]
	}

	for col := 0; col < 3; col++ {
		pivot := col
		for r := col + 1; r < 3; r++ {
			if math.Abs(rows[r][col]) > math.Abs(rows[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(rows[pivot][col]) < pivotEpsilon || math.IsNaN(rows[pivot][col]) {
			return mgl64.Vec3{}, ErrSingular
		}
		rows[col], rows[pivot] = rows[pivot], rows[col]

		for r := col + 1; r < 3; r++ {
			f := rows[r][col] / rows[col][col]
			for c := col; c < 4; c++ {
				rows[r][c] -= f * rows[col][c]
			}
		}
	}

	var x mgl64.Vec3
	for r := 2; r >= 0; r-- {
		sum := rows[r][3]
		for c := r + 1; c < 3; c++ {
			sum -= rows[r][c] * x[c]
		}
		x[r] = sum / rows[r][r]
	}
	if !IsFinite(x) {
		return mgl64.Vec3{}, ErrSingular
	}
	return x, nil
}

// IsFinite reports whether every component of v is a finite number.
func IsFinite(v mgl64.Vec3) bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// Tangents returns two unit vectors orthogonal to n and to each other.
// n is expected to be normalized; a zero n yields the X and Y axes.
func Tangents(n mgl64.Vec3) (mgl64.Vec3, mgl64.Vec3) {
	if n.LenSqr() < 1e-20 {
		return mgl64.Vec3{1, 0, 0}, mgl64.Vec3{0, 1, 0}
	}
	n = n.Normalize()

	var t1 mgl64.Vec3
	if math.Abs(n.X()) < 0.9 {
		t1 = mgl64.Vec3{1, 0, 0}.Cross(n).Normalize()
	} else {
		t1 = mgl64.Vec3{0, 1, 0}.Cross(n).Normalize()
	}
	t2 := n.Cross(t1)

	return t1, t2
}

// IntegrateQuat advances q by the angular velocity w over dt:
// q += 0.5·dt·(w as pure quaternion)·q. The result is not normalized.
func IntegrateQuat(q mgl64.Quat, w mgl64.Vec3, dt float64) mgl64.Quat {
	spin := mgl64.Quat{W: 0, V: w}.Mul(q).Scale(0.5 * dt)
	return q.Add(spin)
}

// NormalizeFast renormalizes q with a first order approximation of 1/sqrt,
// accurate when q is already close to unit length.
func NormalizeFast(q mgl64.Quat) mgl64.Quat {
	f := (3.0 - q.Dot(q)) / 2.0
	if f == 0 {
		return mgl64.Quat{W: 0}
	}
	return q.Scale(f)
}

// Scale multiplies a and b component-wise.
func Scale(a, b mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}
