package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/navlab/navcov/quat"
	"github.com/navlab/navcov/state"
)

var (
	testQuat  [4]float64
	testAccel *mat.VecDense
	testGyro  *mat.VecDense
)

func init() {
	testQuat = quat.Normalize([4]float64{0.95, 0.1, -0.05, 0.2})
	testAccel = mat.NewVecDense(3, []float64{0.3, -0.1, -9.8})
	testGyro = mat.NewVecDense(3, []float64{0.02, -0.01, 0.05})
}

func cross(a, b []float64) []float64 {
	return []float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func rotate(r *mat.Dense, v []float64) []float64 {
	out := make([]float64, 3)
	for i := 0; i < 3; i++ {
		out[i] = r.At(i, 0)*v[0] + r.At(i, 1)*v[1] + r.At(i, 2)*v[2]
	}

	return out
}

func TestTransitionMatchesNumericalJacobian(t *testing.T) {
	assert := assert.New(t)

	s := NewStrapdown()
	dt := 0.01

	r := quat.RotationMatrix(testQuat)
	w := []float64{testGyro.AtVec(0), testGyro.AtVec(1), testGyro.AtVec(2)}
	a := []float64{testAccel.AtVec(0), testAccel.AtVec(1), testAccel.AtVec(2)}

	// the error-state equations written out componentwise
	propagate := func(xOut, x []float64) {
		copy(xOut, x)

		th := x[state.Quat.Idx : state.Quat.Idx+3]
		v := x[state.Vel.Idx : state.Vel.Idx+3]
		bg := x[state.GyroBias.Idx : state.GyroBias.Idx+3]
		ba := x[state.AccelBias.Idx : state.AccelBias.Idx+3]

		wth := cross(w, th)
		rath := rotate(r, cross(a, th))
		rba := rotate(r, ba)

		for i := 0; i < 3; i++ {
			xOut[state.Quat.Idx+i] = th[i] - dt*wth[i] - dt*bg[i]
			xOut[state.Vel.Idx+i] = v[i] - dt*rath[i] - dt*rba[i]
			xOut[state.Pos.Idx+i] = x[state.Pos.Idx+i] + dt*v[i]
		}
	}

	want := mat.NewDense(state.Size, state.Size, nil)
	fd.Jacobian(want, propagate, make([]float64, state.Size), &fd.JacobianSettings{
		Formula: fd.Central,
	})

	got := s.Transition(testQuat, testAccel, testGyro, dt)
	assert.True(mat.EqualApprox(got, want, 1e-8))
}

func TestPropagatePreservesSymmetry(t *testing.T) {
	assert := assert.New(t)

	s := NewStrapdown()
	p := mat.NewDense(state.Size, state.Size, nil)
	for i := 0; i < state.Size; i++ {
		p.Set(i, i, 0.5)
		for j := i + 1; j < state.Size; j++ {
			v := 0.01 / float64(1+i+j)
			p.Set(i, j, v)
			p.Set(j, i, v)
		}
	}

	accelVar := mat.NewVecDense(3, []float64{0.1, 0.1, 0.1})
	s.Propagate(p, testQuat, testAccel, accelVar, testGyro, 2.25e-4, 0.01)

	assert.True(mat.EqualApprox(p, p.T(), 1e-12))
}

func TestPropagateLeavesBiasVarianceAlone(t *testing.T) {
	assert := assert.New(t)

	s := NewStrapdown()
	p := mat.NewDense(state.Size, state.Size, nil)
	for i := 0; i < state.Size; i++ {
		p.Set(i, i, float64(1+i))
	}

	zero := mat.NewVecDense(3, nil)
	s.Propagate(p, testQuat, testAccel, zero, testGyro, 0, 0.01)

	// bias rows of F are identity and the bias states receive no IMU noise,
	// so their variance must not change during propagation
	for axis := 0; axis < 3; axis++ {
		i := state.GyroBias.Idx + axis
		assert.InDelta(float64(1+i), p.At(i, i), 1e-12)

		i = state.AccelBias.Idx + axis
		assert.InDelta(float64(1+i), p.At(i, i), 1e-12)
	}
}

func TestPropagateGrowsAttitudeWithGyroNoise(t *testing.T) {
	assert := assert.New(t)

	s := NewStrapdown()
	p := mat.NewDense(state.Size, state.Size, nil)

	accelVar := mat.NewVecDense(3, nil)
	s.Propagate(p, [4]float64{1, 0, 0, 0}, testAccel, accelVar, testGyro, 1.0, 0.5)

	// starting from zero covariance the attitude variance is exactly dt^2 * gyroVar
	for i := 0; i < 3; i++ {
		assert.InDelta(0.25, p.At(state.Quat.Idx+i, state.Quat.Idx+i), 1e-12)
	}
}
