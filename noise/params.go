package noise

import "fmt"

// Params holds the process noise densities and initial uncertainties of the
// covariance core. Densities are per-second quantities; values used as such
// are clamped into [0,1] with Density at the point of use, never on load.
type Params struct {
	// GyroNoise is the angular rate noise density, rad/s
	GyroNoise float64
	// AccelNoise is the acceleration noise density, m/s^2
	AccelNoise float64
	// GyroBiasPNoise is the gyro bias random walk density, rad/s^2
	GyroBiasPNoise float64
	// AccelBiasPNoise is the accel bias random walk density, m/s^3
	AccelBiasPNoise float64
	// MagEarthPNoise is the earth field random walk density, gauss/s
	MagEarthPNoise float64
	// MagBodyPNoise is the body field random walk density, gauss/s
	MagBodyPNoise float64
	// WindVelNSD is the wind velocity noise spectral density, m/s^2/sqrt(Hz)
	WindVelNSD float64
	// WindVelNSDScaler scales WindVelNSD with the vertical velocity magnitude
	WindVelNSDScaler float64

	// GPSVelNoise is the GNSS velocity observation noise, m/s
	GPSVelNoise float64
	// GPSPosNoise is the GNSS horizontal position observation noise, m
	GPSPosNoise float64
	// BaroNoise is the barometric height observation noise, m
	BaroNoise float64
	// RangeNoise is the range finder height observation noise, m
	RangeNoise float64
	// PosNoAidNoise is the horizontal position hold noise without aiding, m
	PosNoAidNoise float64

	// InitialTiltErr is the 1-sigma tilt error after initial alignment, rad
	InitialTiltErr float64
	// SwitchOnGyroBias is the 1-sigma gyro bias at switch on, rad/s
	SwitchOnGyroBias float64
	// SwitchOnAccelBias is the 1-sigma accel bias at switch on, m/s^2
	SwitchOnAccelBias float64
	// MagNoise is the magnetometer observation noise, gauss
	MagNoise float64
	// InitialWindUncertainty is the 1-sigma initial wind speed, m/s
	InitialWindUncertainty float64
}

// NewDefaultParams returns the stock multirotor tuning.
func NewDefaultParams() *Params {
	return &Params{
		GyroNoise:        1.5e-2,
		AccelNoise:       3.5e-1,
		GyroBiasPNoise:   1.0e-3,
		AccelBiasPNoise:  1.0e-2,
		MagEarthPNoise:   1.0e-3,
		MagBodyPNoise:    1.0e-4,
		WindVelNSD:       1.0e-2,
		WindVelNSDScaler: 0.5,

		GPSVelNoise:   0.3,
		GPSPosNoise:   0.5,
		BaroNoise:     3.5,
		RangeNoise:    0.1,
		PosNoAidNoise: 10.0,

		InitialTiltErr:         0.1,
		SwitchOnGyroBias:       0.1,
		SwitchOnAccelBias:      0.2,
		MagNoise:               5.0e-2,
		InitialWindUncertainty: 1.0,
	}
}

// Validate returns an error if any parameter is negative.
func (p *Params) Validate() error {
	for _, v := range []struct {
		name string
		val  float64
	}{
		{"gyro noise", p.GyroNoise},
		{"accel noise", p.AccelNoise},
		{"gyro bias process noise", p.GyroBiasPNoise},
		{"accel bias process noise", p.AccelBiasPNoise},
		{"earth field process noise", p.MagEarthPNoise},
		{"body field process noise", p.MagBodyPNoise},
		{"wind velocity NSD", p.WindVelNSD},
		{"wind velocity NSD scaler", p.WindVelNSDScaler},
		{"GNSS velocity noise", p.GPSVelNoise},
		{"GNSS position noise", p.GPSPosNoise},
		{"baro noise", p.BaroNoise},
		{"range noise", p.RangeNoise},
		{"no-aid position noise", p.PosNoAidNoise},
		{"initial tilt error", p.InitialTiltErr},
		{"switch-on gyro bias", p.SwitchOnGyroBias},
		{"switch-on accel bias", p.SwitchOnAccelBias},
		{"mag noise", p.MagNoise},
		{"initial wind uncertainty", p.InitialWindUncertainty},
	} {
		if v.val < 0 {
			return fmt.Errorf("Invalid %s: %v", v.name, v.val)
		}
	}

	return nil
}

// Density clamps a noise density into [0,1] before it is squared into a
// variance.
func Density(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}

	return v
}
