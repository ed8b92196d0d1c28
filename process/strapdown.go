package process

import (
	"github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/mat"

	"github.com/navlab/navcov/quat"
	"github.com/navlab/navcov/state"
)

// Strapdown is the discrete linearised strapdown error-state model. It
// propagates a covariance matrix as P' = F*P*F' + G*Q*G' where F is the
// error-state transition matrix, G maps the IMU noise inputs into the error
// state and Q is the diagonal IMU noise variance.
//
// The attitude error is resolved in the body frame:
//
//	dTheta' = (I - [w x]dt)*dTheta - dt*dbg
//	dVel'   = -R*[a x]*dt*dTheta + dVel - R*dt*dba
//	dPos'   = dPos + dt*dVel
//
// Bias, magnetic field and wind errors carry over unchanged; their noise is
// injected separately by the covariance core.
//
// The full-size scratch matrices are allocated once at construction.
type Strapdown struct {
	f   *mat.Dense
	g   *mat.Dense
	q   *mat.DiagDense
	fp  *mat.Dense
	fpf *mat.Dense
	gq  *mat.Dense
	gqg *mat.Dense
}

// NewStrapdown creates a new strapdown propagation model.
func NewStrapdown() *Strapdown {
	f, _ := matrix.NewDenseValIdentity(state.Size, 1.0)

	return &Strapdown{
		f:   f,
		g:   mat.NewDense(state.Size, 6, nil),
		q:   mat.NewDiagDense(6, nil),
		fp:  mat.NewDense(state.Size, state.Size, nil),
		fpf: mat.NewDense(state.Size, state.Size, nil),
		gq:  mat.NewDense(state.Size, 6, nil),
		gqg: mat.NewDense(state.Size, state.Size, nil),
	}
}

// Propagate implements navcov.Propagator. p is replaced with
// F*p*F' + G*Q*G' for the transition linearised about the attitude q and the
// mean accel and gyro rates over the step dt.
func (s *Strapdown) Propagate(p *mat.Dense, q [4]float64, accel mat.Vector, accelVar mat.Vector, gyro mat.Vector, gyroVar, dt float64) {
	s.build(q, accel, gyro, dt)

	for i := 0; i < 3; i++ {
		s.q.SetDiag(i, gyroVar)
		s.q.SetDiag(3+i, accelVar.AtVec(i))
	}

	s.fp.Mul(s.f, p)
	s.fpf.Mul(s.fp, s.f.T())

	s.gq.Mul(s.g, s.q)
	s.gqg.Mul(s.gq, s.g.T())

	p.Add(s.fpf, s.gqg)
}

// Transition returns a copy of the error-state transition matrix F
// linearised about attitude q and the given mean rates.
func (s *Strapdown) Transition(q [4]float64, accel, gyro mat.Vector, dt float64) *mat.Dense {
	s.build(q, accel, gyro, dt)

	out := mat.NewDense(state.Size, state.Size, nil)
	out.Copy(s.f)

	return out
}

func (s *Strapdown) build(q [4]float64, accel, gyro mat.Vector, dt float64) {
	r := quat.RotationMatrix(q)
	wx := skew(gyro)
	ax := skew(accel)

	// attitude rows
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			v := -dt * wx.At(i, j)
			if i == j {
				v++
			}
			s.f.Set(state.Quat.Idx+i, state.Quat.Idx+j, v)

			s.f.Set(state.Quat.Idx+i, state.GyroBias.Idx+j, ident(i, j, -dt))
			s.g.Set(state.Quat.Idx+i, j, ident(i, j, -dt))
		}
	}

	// velocity rows
	var ra mat.Dense
	ra.Mul(r, ax)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			s.f.Set(state.Vel.Idx+i, state.Quat.Idx+j, -dt*ra.At(i, j))
			s.f.Set(state.Vel.Idx+i, state.AccelBias.Idx+j, -dt*r.At(i, j))
			s.g.Set(state.Vel.Idx+i, 3+j, -dt*r.At(i, j))

			s.f.Set(state.Vel.Idx+i, state.Vel.Idx+j, ident(i, j, 1))
		}
	}

	// position rows
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			s.f.Set(state.Pos.Idx+i, state.Vel.Idx+j, ident(i, j, dt))
			s.f.Set(state.Pos.Idx+i, state.Pos.Idx+j, ident(i, j, 1))
		}
	}
}

func skew(v mat.Vector) *mat.Dense {
	x, y, z := v.AtVec(0), v.AtVec(1), v.AtVec(2)

	return mat.NewDense(3, 3, []float64{
		0, -z, y,
		z, 0, -x,
		-y, x, 0,
	})
}

func ident(i, j int, v float64) float64 {
	if i == j {
		return v
	}

	return 0
}
