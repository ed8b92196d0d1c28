package navcov

import "gonum.org/v1/gonum/mat"

// IMUSample is one delayed, time-synchronised batch of integrated inertial
// data used for a single covariance prediction step.
type IMUSample struct {
	// DeltaAng is the integrated angular rate over DeltaAngDT, in rad
	DeltaAng mat.Vector
	// DeltaVel is the integrated acceleration over DeltaVelDT, in m/s
	DeltaVel mat.Vector
	// DeltaAngDT is the delta angle integration interval, in s
	DeltaAngDT float64
	// DeltaVelDT is the delta velocity integration interval, in s
	DeltaVelDT float64
	// DeltaVelClipping flags per-axis accelerometer clipping during integration
	DeltaVelClipping [3]bool
}

// Context carries the externally owned state the covariance core reads every
// cycle: the nominal attitude, bias-inhibit flags, fault flags and the active
// aiding modes. It is owned and mutated by the orchestrating filter between
// cycles and is never written by the covariance core.
type Context struct {
	// Quat is the nominal body-to-NED attitude quaternion (w, x, y, z)
	Quat [4]float64

	// GyroBiasInhibit freezes covariance growth of a gyro bias axis
	GyroBiasInhibit [3]bool
	// AccelBiasInhibit freezes covariance growth of an accel bias axis
	AccelBiasInhibit [3]bool
	// BadAccVertical is set while the vertical accelerometer is unreliable
	BadAccVertical bool

	// GNSS is set when GNSS velocity/position aiding is available
	GNSS bool
	// Baro is set when a barometric height source is available
	Baro bool
	// GNSSHeight is set when GNSS height is the active height source
	GNSSHeight bool
	// RangeHeight is set when range-finder height is the active height source
	RangeHeight bool
	// MagFusion is set while 3-axis magnetometer fusion is active
	MagFusion bool
	// WindEstimation is set while the wind velocity states are active
	WindEstimation bool

	// HeightRateLPF is the low-pass-filtered height rate, in m/s, used to
	// scale the wind process noise
	HeightRateLPF float64
}

// Propagator applies the linearised process model to a covariance matrix:
// p is replaced with F*p*F' plus the IMU noise contribution. Implementations
// must preserve approximate symmetry; the caller enforces exact symmetry
// afterwards. accel and gyro are mean rates over the step, accelVar is the
// per-axis accelerometer noise variance, gyroVar the common gyro noise
// variance and dt the averaged integration interval.
type Propagator interface {
	Propagate(p *mat.Dense, q [4]float64, accel mat.Vector, accelVar mat.Vector, gyro mat.Vector, gyroVar, dt float64)
}
