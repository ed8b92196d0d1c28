package sim

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/navlab/navcov"
	"github.com/navlab/navcov/ekf"
	"github.com/navlab/navcov/state"
)

// gravity is standard gravity, m/s^2
const gravity = 9.80665

// Config configures an open-loop covariance simulation: the filter predicts
// from synthetic IMU data without measurement fusion, so the recorded
// variances show pure uncertainty growth and the stabiliser at work.
type Config struct {
	// Cycles is the number of predict cycles to run
	Cycles int
	// DT is the update interval, s
	DT float64
	// GyroNoise is the 1-sigma synthetic gyro noise, rad/s
	GyroNoise float64
	// AccelNoise is the 1-sigma synthetic accel noise, m/s^2
	AccelNoise float64
	// Seed seeds the noise source
	Seed uint64
}

// Trace records the variance history of selected states over a simulation.
type Trace struct {
	time   []float64
	states []int
	data   *mat.Dense
}

// Time returns the cycle timestamps.
func (tr *Trace) Time() []float64 {
	out := make([]float64, len(tr.time))
	copy(out, tr.time)

	return out
}

// States returns the recorded state indices.
func (tr *Trace) States() []int {
	out := make([]int, len(tr.states))
	copy(out, tr.states)

	return out
}

// Data returns the recorded variances, one row per cycle and one column per
// recorded state.
func (tr *Trace) Data() *mat.Dense {
	out := mat.NewDense(len(tr.time), len(tr.states), nil)
	out.Copy(tr.data)

	return out
}

// Run executes cfg.Cycles predict/repair cycles on cov, feeding it noisy
// stationary IMU samples, and records the variances of the requested state
// indices. It returns error if the configuration or a state index is
// invalid.
func Run(cov *ekf.Covariance, cx *navcov.Context, cfg Config, states []int) (*Trace, error) {
	if cov == nil || cx == nil {
		return nil, fmt.Errorf("Invalid simulation inputs: cov %v, cx %v", cov, cx)
	}

	if cfg.Cycles <= 0 {
		return nil, fmt.Errorf("Invalid cycle count: %d", cfg.Cycles)
	}

	if err := cov.SetUpdateInterval(cfg.DT); err != nil {
		return nil, err
	}

	if len(states) == 0 {
		return nil, fmt.Errorf("No states to record")
	}

	for _, s := range states {
		if s < 0 || s >= state.Size {
			return nil, fmt.Errorf("Invalid state index: %d", s)
		}
	}

	gyroNoise, err := newAxisNoise(cfg.GyroNoise, cfg.Seed)
	if err != nil {
		return nil, err
	}

	accelNoise, err := newAxisNoise(cfg.AccelNoise, cfg.Seed+1)
	if err != nil {
		return nil, err
	}

	tr := &Trace{
		time:   make([]float64, cfg.Cycles),
		states: states,
		data:   mat.NewDense(cfg.Cycles, len(states), nil),
	}

	deltaAng := mat.NewVecDense(3, nil)
	deltaVel := mat.NewVecDense(3, nil)

	for k := 0; k < cfg.Cycles; k++ {
		w := gyroNoise.Rand(nil)
		a := accelNoise.Rand(nil)

		// stationary vehicle: zero rates plus noise, gravity on the z axis
		for i := 0; i < 3; i++ {
			deltaAng.SetVec(i, w[i]*cfg.DT)
			deltaVel.SetVec(i, a[i]*cfg.DT)
		}
		deltaVel.SetVec(2, (a[2]-gravity)*cfg.DT)

		cov.Predict(cx, navcov.IMUSample{
			DeltaAng:   deltaAng,
			DeltaVel:   deltaVel,
			DeltaAngDT: cfg.DT,
			DeltaVelDT: cfg.DT,
		})

		tr.time[k] = float64(k+1) * cfg.DT
		for col, s := range states {
			tr.data.Set(k, col, cov.Var(s))
		}
	}

	return tr, nil
}

func newAxisNoise(sigma float64, seed uint64) (*distmv.Normal, error) {
	if sigma <= 0 {
		return nil, fmt.Errorf("Invalid noise sigma: %v", sigma)
	}

	cov := mat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		cov.SetSym(i, i, sigma*sigma)
	}

	src := rand.New(rand.NewSource(seed))
	dist, ok := distmv.NewNormal(make([]float64, 3), cov, src)
	if !ok {
		return nil, fmt.Errorf("Failed to create noise distribution")
	}

	return dist, nil
}
