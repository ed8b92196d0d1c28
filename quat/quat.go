package quat

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// RotationMatrix returns the 3x3 body-to-NED direction cosine matrix for the
// unit quaternion q given as (w, x, y, z).
func RotationMatrix(q [4]float64) *mat.Dense {
	w, x, y, z := q[0], q[1], q[2], q[3]

	return mat.NewDense(3, 3, []float64{
		w*w + x*x - y*y - z*z, 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), w*w - x*x + y*y - z*z, 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), w*w - x*x - y*y + z*z,
	})
}

// Normalize returns q scaled to unit norm. A zero quaternion is returned as
// the identity rotation.
func Normalize(q [4]float64) [4]float64 {
	n := math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
	if n == 0 {
		return [4]float64{1, 0, 0, 0}
	}

	return [4]float64{q[0] / n, q[1] / n, q[2] / n, q[3] / n}
}

// FromYaw returns the quaternion for a pure yaw rotation of psi radians.
func FromYaw(psi float64) [4]float64 {
	return [4]float64{math.Cos(psi / 2), 0, 0, math.Sin(psi / 2)}
}
