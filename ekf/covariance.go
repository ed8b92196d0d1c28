package ekf

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/navlab/navcov"
	"github.com/navlab/navcov/matrix"
	"github.com/navlab/navcov/noise"
	"github.com/navlab/navcov/process"
	"github.com/navlab/navcov/quat"
	"github.com/navlab/navcov/state"
)

const (
	// oneG is standard gravity, m/s^2
	oneG = 9.80665
	// badAccBiasPNoise replaces the accel noise density while accel data is
	// untrustworthy, inflating uncertainty instead of signalling a fault
	badAccBiasPNoise = 4.9

	// dtEpsilon floors integration intervals before division
	dtEpsilon = 1.1920929e-7

	quatVarMax     = 1.0
	velVarMax      = 1e6
	posVarMax      = 1e6
	gyroBiasVarMax = 1.0
	magVarMax      = 1.0
	windVelVarMax  = 1e6

	// magTraceMax gates earth/body field process noise injection; growing the
	// field variances past this ill-conditions the matrix once 3-axis fusion
	// has stopped correcting them
	magTraceMax = 0.1
)

// Covariance owns the error covariance matrix of the navigation filter and
// implements its prediction, repair and reset operations. It is created once
// per filter instance, is not safe for concurrent use and performs no
// allocation on the cycle path.
type Covariance struct {
	p      *mat.Dense
	params *noise.Params
	prop   navcov.Propagator
	log    *slog.Logger

	// dtAvg is the average filter update interval, s
	dtAvg float64

	prevGyroBiasVar   [3]float64
	prevAccelBiasVar  [3]float64
	gyroBiasInhibited [3]bool
	accelBiasInhibited [3]bool

	magDeclCovReset bool

	// prediction scratch
	accelVar  *mat.VecDense
	accelMean *mat.VecDense
	gyroMean  *mat.VecDense
}

// New creates a new covariance core from the given noise parameters.
// A nil prop selects the built-in strapdown propagation model and a nil
// logger the process default. It returns error if params is nil or invalid.
func New(params *noise.Params, prop navcov.Propagator, logger *slog.Logger) (*Covariance, error) {
	if params == nil {
		return nil, fmt.Errorf("Invalid noise parameters: %v", params)
	}

	if err := params.Validate(); err != nil {
		return nil, err
	}

	if prop == nil {
		prop = process.NewStrapdown()
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Covariance{
		p:         mat.NewDense(state.Size, state.Size, nil),
		params:    params,
		prop:      prop,
		log:       logger,
		dtAvg:     0.01,
		accelVar:  mat.NewVecDense(3, nil),
		accelMean: mat.NewVecDense(3, nil),
		gyroMean:  mat.NewVecDense(3, nil),
	}, nil
}

// SetUpdateInterval sets the average filter update interval used for process
// noise injection and stability thresholds. It returns error if dt is not
// positive.
func (c *Covariance) SetUpdateInterval(dt float64) error {
	if dt <= 0 {
		return fmt.Errorf("Invalid update interval: %v", dt)
	}
	c.dtAvg = dt

	return nil
}

// UpdateInterval returns the average filter update interval.
func (c *Covariance) UpdateInterval() float64 {
	return c.dtAvg
}

// At returns P(i, j).
func (c *Covariance) At(i, j int) float64 {
	return c.p.At(i, j)
}

// Var returns the variance P(i, i).
func (c *Covariance) Var(i int) float64 {
	return c.p.At(i, i)
}

// Matrix returns a symmetric copy of the covariance matrix.
func (c *Covariance) Matrix() mat.Symmetric {
	return matrix.SymmetricCopy(c.p)
}

// BlockTrace returns the diagonal sum of group g.
func (c *Covariance) BlockTrace(g state.Group) float64 {
	return matrix.BlockTrace(c.p, g.Idx, g.DOF)
}

// Initialise sets the starting covariance from the configured noise
// parameters and the active aiding modes in cx. Do not call before the
// attitude quaternion in cx has been initialised.
func (c *Covariance) Initialise(cx *navcov.Context) {
	c.p.Zero()

	c.ResetQuatCov(cx, math.NaN())

	vv := c.velInitVar(cx)
	matrix.UncorrelateVariances(c.p, state.Vel.Idx, vv[:])

	pv := c.posInitVar(cx)
	matrix.UncorrelateVariances(c.p, state.Pos.Idx, pv[:])

	c.ResetGyroBiasCov()
	c.ResetAccelBiasCov()
	c.ResetMagCov()
	c.ResetWindCov()
}

// velInitVar returns the initial velocity variances for the active aiding
// modes. Without velocity aiding a fixed 0.5 m/s uncertainty applies.
func (c *Covariance) velInitVar(cx *navcov.Context) [3]float64 {
	var v float64
	if cx.GNSS {
		v = sq(math.Max(c.params.GPSVelNoise, 0.01))
	} else {
		v = sq(0.5)
	}

	return [3]float64{v, v, sq(1.5) * v}
}

// posInitVar returns the initial position variances. The vertical variance
// follows the active height source in fixed override priority:
// default < baro < GNSS height < range height.
func (c *Covariance) posInitVar(cx *navcov.Context) [3]float64 {
	z := sq(1.0)
	if cx.Baro {
		z = sq(math.Max(c.params.BaroNoise, 0.01))
	}

	var xy float64
	if cx.GNSS {
		xy = sq(math.Max(c.params.GPSPosNoise, 0.01))

		if cx.GNSSHeight {
			z = sq(math.Max(1.5*c.params.GPSPosNoise, 0.01))
		}
	} else {
		xy = sq(math.Max(c.params.PosNoAidNoise, 0.01))
	}

	if cx.RangeHeight {
		z = sq(math.Max(c.params.RangeNoise, 0.01))
	}

	return [3]float64{xy, xy, z}
}

// Predict advances the covariance one filter step using the delayed IMU
// sample imu, then repairs the result. Numerical anomalies are absorbed by
// FixErrors rather than reported.
func (c *Covariance) Predict(cx *navcov.Context, imu navcov.IMUSample) {
	// average update interval reduces accumulated prediction error from
	// small single frame dt values
	dt := c.dtAvg

	gyroVar := sq(noise.Density(c.params.GyroNoise))

	for i := 0; i < 3; i++ {
		if cx.BadAccVertical || imu.DeltaVelClipping[i] {
			// inflate the accel process noise while the data is untrustworthy
			c.accelVar.SetVec(i, sq(badAccBiasPNoise))
		} else {
			c.accelVar.SetVec(i, sq(noise.Density(c.params.AccelNoise)))
		}
	}

	meanRate(c.accelMean, imu.DeltaVel, imu.DeltaVelDT)
	meanRate(c.gyroMean, imu.DeltaAng, imu.DeltaAngDT)
	c.prop.Propagate(c.p, cx.Quat, c.accelMean, c.accelVar, c.gyroMean, gyroVar, 0.5*(imu.DeltaVelDT+imu.DeltaAngDT))

	// gyro bias: random walk noise, or freeze at the cached variance while
	// the axis is inhibited
	gyroBiasProcessNoise := sq(dt * noise.Density(c.params.GyroBiasPNoise))
	for axis := 0; axis < state.GyroBias.DOF; axis++ {
		i := state.GyroBias.Idx + axis

		if !cx.GyroBiasInhibit[axis] {
			c.p.Set(i, i, c.p.At(i, i)+gyroBiasProcessNoise)
			c.gyroBiasInhibited[axis] = false
		} else {
			if !c.gyroBiasInhibited[axis] {
				c.prevGyroBiasVar[axis] = c.p.At(i, i)
				c.gyroBiasInhibited[axis] = true
			}
			matrix.Uncorrelate(c.p, i, 1, c.prevGyroBiasVar[axis])
		}
	}

	// accel bias: same handling
	accelBiasProcessNoise := sq(dt * noise.Density(c.params.AccelBiasPNoise))
	for axis := 0; axis < state.AccelBias.DOF; axis++ {
		i := state.AccelBias.Idx + axis

		if !cx.AccelBiasInhibit[axis] {
			c.p.Set(i, i, c.p.At(i, i)+accelBiasProcessNoise)
			c.accelBiasInhibited[axis] = false
		} else {
			if !c.accelBiasInhibited[axis] {
				c.prevAccelBiasVar[axis] = c.p.At(i, i)
				c.accelBiasInhibited[axis] = true
			}
			matrix.Uncorrelate(c.p, i, 1, c.prevAccelBiasVar[axis])
		}
	}

	if cx.MagFusion {
		// stop growing the field variances once they are large; unchecked
		// growth ill-conditions the matrix when fusion no longer corrects it
		if matrix.BlockTrace(c.p, state.MagEarth.Idx, state.MagEarth.DOF) < magTraceMax {
			pn := sq(dt * noise.Density(c.params.MagEarthPNoise))
			for axis := 0; axis < state.MagEarth.DOF; axis++ {
				i := state.MagEarth.Idx + axis
				c.p.Set(i, i, c.p.At(i, i)+pn)
			}
		}

		if matrix.BlockTrace(c.p, state.MagBody.Idx, state.MagBody.DOF) < magTraceMax {
			pn := sq(dt * noise.Density(c.params.MagBodyPNoise))
			for axis := 0; axis < state.MagBody.DOF; axis++ {
				i := state.MagBody.Idx + axis
				c.p.Set(i, i, c.p.At(i, i)+pn)
			}
		}
	}

	if cx.WindEstimation {
		if matrix.BlockTrace(c.p, state.WindVel.Idx, state.WindVel.DOF) < sq(c.params.InitialWindUncertainty) {
			nsd := noise.Density(c.params.WindVelNSD) * (1 + c.params.WindVelNSDScaler*math.Abs(cx.HeightRateLPF))
			pn := sq(nsd) * dt
			for axis := 0; axis < state.WindVel.DOF; axis++ {
				i := state.WindVel.Idx + axis
				c.p.Set(i, i, c.p.At(i, i)+pn)
			}
		}
	}

	matrix.CopyUpperToLower(c.p)

	c.FixErrors(cx, false)
}

// FixErrors repairs gross errors in the covariance matrix: it clamps the
// kinematic group variances into safe bounds, bounds the accel bias variance
// ratio, zeroes the blocks of inactive optional states and, when
// forceSymmetry is set, symmetrizes each named block. forceSymmetry is used
// after measurement updates that touched individual blocks only.
func (c *Covariance) FixErrors(cx *navcov.Context, forceSymmetry bool) {
	c.ConstrainStateVar(state.Quat, 0, quatVarMax)
	c.ConstrainStateVar(state.Vel, 1e-6, velVarMax)
	c.ConstrainStateVar(state.Pos, 1e-6, posVarMax)
	c.ConstrainStateVar(state.GyroBias, 0, gyroBiasVarMax)

	if !cx.AccelBiasInhibit[0] || !cx.AccelBiasInhibit[1] || !cx.AccelBiasInhibit[2] {
		// find the maximum accel bias variance over the non-inhibited axes
		// and request a block reset if any variance is below the safe minimum
		minSafeStateVar := 1e-9 / sq(c.dtAvg)
		maxStateVar := minSafeStateVar
		resetRequired := false

		for axis := 0; axis < state.AccelBias.DOF; axis++ {
			if cx.AccelBiasInhibit[axis] {
				continue
			}

			i := state.AccelBias.Idx + axis
			if c.p.At(i, i) > maxStateVar {
				maxStateVar = c.p.At(i, i)
			} else if c.p.At(i, i) < minSafeStateVar {
				resetRequired = true
			}
		}

		// the max/min variance ratio must not exceed 100 and the variance
		// must stay below an absolute 0.1 g uncertainty ceiling
		minStateVarTarget := 5e-8 / sq(c.dtAvg)
		minAllowedStateVar := math.Max(0.01*maxStateVar, minStateVarTarget)

		for axis := 0; axis < state.AccelBias.DOF; axis++ {
			if cx.AccelBiasInhibit[axis] {
				continue
			}

			i := state.AccelBias.Idx + axis
			c.p.Set(i, i, matrix.Constrain(c.p.At(i, i), minAllowedStateVar, sq(0.1*oneG)))
		}

		// a variance below the safe minimum cannot be recovered by clamping
		if resetRequired {
			c.ResetAccelBiasCov()
		}
	}

	if forceSymmetry {
		for _, g := range []state.Group{state.Quat, state.Vel, state.Pos, state.GyroBias, state.AccelBias} {
			matrix.MakeRowColSymmetric(c.p, g.Idx, g.DOF)
		}
	}

	// inactive optional states are held at zero variance and covariance
	if !cx.MagFusion {
		matrix.Uncorrelate(c.p, state.MagEarth.Idx, state.MagEarth.DOF, 0)
		matrix.Uncorrelate(c.p, state.MagBody.Idx, state.MagBody.DOF, 0)
	} else {
		c.ConstrainStateVar(state.MagEarth, 0, magVarMax)
		c.ConstrainStateVar(state.MagBody, 0, magVarMax)

		if forceSymmetry {
			matrix.MakeRowColSymmetric(c.p, state.MagEarth.Idx, state.MagEarth.DOF)
			matrix.MakeRowColSymmetric(c.p, state.MagBody.Idx, state.MagBody.DOF)
		}
	}

	if !cx.WindEstimation {
		matrix.Uncorrelate(c.p, state.WindVel.Idx, state.WindVel.DOF, 0)
	} else {
		c.ConstrainStateVar(state.WindVel, 0, windVelVarMax)

		if forceSymmetry {
			matrix.MakeRowColSymmetric(c.p, state.WindVel.Idx, state.WindVel.DOF)
		}
	}
}

// CheckAndFixUpdate guards a measurement update against producing a negative
// variance. khp is the K*H*P term about to be subtracted from P. Every state
// whose variance would go negative is zeroed and decorrelated instead.
// It returns true iff no state required correction.
func (c *Covariance) CheckAndFixUpdate(khp mat.Matrix) bool {
	healthy := true

	for i := 0; i < state.Size; i++ {
		if c.p.At(i, i) < khp.At(i, i) {
			matrix.Uncorrelate(c.p, i, 1, 0)
			healthy = false
		}
	}

	return healthy
}

// ConstrainStateVar clamps every variance of group g into [min, max].
func (c *Covariance) ConstrainStateVar(g state.Group, min, max float64) {
	matrix.ConstrainDiag(c.p, g.Idx, g.DOF, min, max)
}

// ResetQuatCov resets the attitude covariance block from the configured tilt
// uncertainty and the supplied yaw observation noise. Pass NaN to use the
// default yaw uncertainty.
func (c *Covariance) ResetQuatCov(cx *navcov.Context, yawNoise float64) {
	tiltVar := sq(math.Max(c.params.InitialTiltErr, 0.01))
	yawVar := sq(0.01)

	if !math.IsNaN(yawNoise) && !math.IsInf(yawNoise, 0) {
		yawVar = math.Max(sq(yawNoise), yawVar)
	}

	c.ResetQuatCovNED(cx, [3]float64{tiltVar, tiltVar, yawVar})
}

// ResetQuatCovNED rotates the NED-frame rotation variance triple into the
// body frame and overwrites the attitude block with it, decorrelating the
// attitude from all other states.
func (c *Covariance) ResetQuatCovNED(cx *navcov.Context, rotVarNED [3]float64) {
	r := quat.RotationMatrix(cx.Quat)
	d := mat.NewDiagDense(3, rotVarNED[:])

	var rtd, block mat.Dense
	rtd.Mul(r.T(), d)
	block.Mul(&rtd, r)

	matrix.UncorrelateSetBlock(c.p, state.Quat.Idx, state.Quat.DOF, &block)
}

// RequestMagDeclinationReset arms the one-shot notification emitted by the
// next ResetMagCov call.
func (c *Covariance) RequestMagDeclinationReset() {
	c.magDeclCovReset = true
}

// ResetMagCov resets the earth and body magnetic field blocks to the
// configured magnetometer noise variance, decorrelated from all other states.
func (c *Covariance) ResetMagCov() {
	if c.magDeclCovReset {
		c.log.Info("reset mag declination covariance")
		c.magDeclCovReset = false
	}

	magVar := sq(c.params.MagNoise)
	matrix.Uncorrelate(c.p, state.MagEarth.Idx, state.MagEarth.DOF, magVar)
	matrix.Uncorrelate(c.p, state.MagBody.Idx, state.MagBody.DOF, magVar)
}

// ResetGyroBiasCov resets the gyro bias block to the switch-on uncertainty.
func (c *Covariance) ResetGyroBiasCov() {
	matrix.Uncorrelate(c.p, state.GyroBias.Idx, state.GyroBias.DOF, sq(c.params.SwitchOnGyroBias))
}

// ResetGyroBiasZCov resets only the vertical gyro bias axis, used when the
// yaw is re-aligned.
func (c *Covariance) ResetGyroBiasZCov() {
	matrix.Uncorrelate(c.p, state.GyroBias.Idx+2, 1, sq(c.params.SwitchOnGyroBias))
}

// ResetAccelBiasCov resets the accel bias block to the switch-on uncertainty.
func (c *Covariance) ResetAccelBiasCov() {
	matrix.Uncorrelate(c.p, state.AccelBias.Idx, state.AccelBias.DOF, sq(c.params.SwitchOnAccelBias))
}

// ResetWindCov resets the wind block to the initial wind uncertainty.
func (c *Covariance) ResetWindCov() {
	matrix.Uncorrelate(c.p, state.WindVel.Idx, state.WindVel.DOF, sq(c.params.InitialWindUncertainty))
}

// ResetVelCov resets the velocity block using the initial variance selection
// for the aiding modes in cx.
func (c *Covariance) ResetVelCov(cx *navcov.Context) {
	vv := c.velInitVar(cx)
	matrix.UncorrelateVariances(c.p, state.Vel.Idx, vv[:])
}

// ResetPosCov resets the position block using the initial variance selection
// for the aiding modes in cx.
func (c *Covariance) ResetPosCov(cx *navcov.Context) {
	pv := c.posInitVar(cx)
	matrix.UncorrelateVariances(c.p, state.Pos.Idx, pv[:])
}

func meanRate(dst *mat.VecDense, delta mat.Vector, dt float64) {
	d := math.Max(dt, dtEpsilon)

	for i := 0; i < 3; i++ {
		dst.SetVec(i, delta.AtVec(i)/d)
	}
}

func sq(v float64) float64 {
	return v * v
}
