// Package walker implements a planar locomotion environment with the
// same interface and termination semantics as the MuJoCo Hopper and
// Walker2d tasks, simulated in pure Go.
//
// The body is a point mass with a torso angle: a forward thrust
// actuator and a vertical leg actuator. The state vector is
// [x, z, θ, ẋ, ż, θ̇]. Like Hopper, the observation omits the x
// position and clips velocities to [-10, 10].
package walker

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/gotrpo/environment"
	ts "github.com/samuelfneumann/gotrpo/timestep"
	"github.com/samuelfneumann/gotrpo/utils/floatutils"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
)

const (
	// Name is the environment name used for configuration
	Name = "Walker-v0"

	nq = 3 // Positions: x, z, θ
	nv = 3 // Velocities

	// ObsDims is the number of observation dimensions
	ObsDims = nq - 1 + nv

	// ActionDims is the number of actuators
	ActionDims = 2

	// RestHeight is the torso height at which the leg spring is
	// at rest
	RestHeight = 1.25

	timestep  = 0.005
	frameSkip = 4

	thrustGain   = 3.0
	drag         = 0.5
	legGain      = 8.0
	legStiffness = 20.0
	legDamping   = 2.0
	tiltGain     = 2.0
	angStiffness = 4.0
	angDamping   = 1.0

	startNoise = 0.005
	maxVel     = 10.0
)

// Walker implements the planar locomotion environment
type Walker struct {
	*Run
	starter *environment.UniformStarter

	state           *mat.VecDense
	currentTimeStep ts.TimeStep
	discount        float64
}

// New returns a new Walker environment. Episodes are cut off after
// cutoff steps; a cutoff <= 0 disables the step limit so that episodes
// end only when the walker becomes unhealthy.
func New(cutoff int, seed uint64, discount float64) (*Walker, ts.TimeStep,
	error) {
	if discount < 0 || discount > 1 {
		return nil, ts.TimeStep{}, fmt.Errorf("new: discount %v not in "+
			"[0, 1]", discount)
	}

	init := []float64{0, RestHeight, 0, 0, 0, 0}
	bounds := make([]r1.Interval, len(init))
	for i := range bounds {
		bounds[i] = r1.Interval{Min: init[i] - startNoise,
			Max: init[i] + startNoise}
	}

	w := &Walker{
		starter:  environment.NewUniformStarter(bounds, seed),
		discount: discount,
	}
	w.Run = newRun(w, cutoff)

	step, err := w.Reset()
	return w, step, err
}

// Seed reseeds the starting state distribution
func (w *Walker) Seed(seed uint64) {
	w.starter.Seed(seed)
}

// Reset resets the environment to a new starting state
func (w *Walker) Reset() (ts.TimeStep, error) {
	w.state = w.starter.Start()

	t := ts.New(ts.First, 0, w.discount, w.obs(), 0)
	w.currentTimeStep = t
	return t, nil
}

// CurrentTimeStep returns the most recent timestep
func (w *Walker) CurrentTimeStep() ts.TimeStep {
	return w.currentTimeStep
}

// State returns a copy of the full simulator state
func (w *Walker) State() *mat.VecDense {
	return mat.VecDenseCopyOf(w.state)
}

// Dt returns the simulated time between two consecutive timesteps
func (w *Walker) Dt() float64 {
	return timestep * frameSkip
}

// Step takes one environmental step given the action and returns the
// next timestep as well as whether the episode has ended
func (w *Walker) Step(action *mat.VecDense) (ts.TimeStep, bool, error) {
	if action.Len() != ActionDims {
		return ts.TimeStep{}, true, fmt.Errorf("step: invalid number of "+
			"action dimensions \n\thave(%v) \n\twant(%v)", action.Len(),
			ActionDims)
	}
	if w.currentTimeStep.Last() {
		return ts.TimeStep{}, true, fmt.Errorf("step: episode has ended, " +
			"call Reset() first")
	}

	ctrl := make([]float64, ActionDims)
	for i := range ctrl {
		ctrl[i] = floatutils.Clip(action.AtVec(i), -1.0, 1.0)
	}

	before := w.state.AtVec(0)
	for i := 0; i < frameSkip; i++ {
		w.simulate(ctrl)
	}
	xVel := (w.state.AtVec(0) - before) / w.Dt()

	t := ts.New(ts.Mid, w.GetReward(xVel, ctrl), w.discount, w.obs(),
		w.currentTimeStep.Number+1)
	t.Info = map[string]float64{ts.XVelocity: xVel}
	last := w.End(&t)
	w.currentTimeStep = t

	return t, last, nil
}

// simulate advances the state by one semi-implicit Euler step
func (w *Walker) simulate(ctrl []float64) {
	s := w.state.RawVector().Data
	x, z, theta := s[0], s[1], s[2]
	vx, vz, omega := s[3], s[4], s[5]

	ax := thrustGain*ctrl[0]*math.Cos(theta) - drag*vx
	az := legGain*ctrl[1] - legStiffness*(z-RestHeight) - legDamping*vz
	alpha := tiltGain*ctrl[0] - angStiffness*theta - angDamping*omega

	vx += timestep * ax
	vz += timestep * az
	omega += timestep * alpha

	s[0] = x + timestep*vx
	s[1] = z + timestep*vz
	s[2] = theta + timestep*omega
	s[3], s[4], s[5] = vx, vz, omega
}

// obs returns the current observation
func (w *Walker) obs() *mat.VecDense {
	s := w.state.RawVector().Data
	o := make([]float64, ObsDims)
	copy(o, s[1:nq])
	copy(o[nq-1:], floatutils.ClipSlice(s[nq:], -maxVel, maxVel))
	return mat.NewVecDense(ObsDims, o)
}

// ObservationSpec returns the observation specification
func (w *Walker) ObservationSpec() environment.Spec {
	low := make([]float64, ObsDims)
	high := make([]float64, ObsDims)
	for i := range high {
		high[i] = math.Inf(1.0)
		low[i] = math.Inf(-1.0)
	}

	return environment.NewSpec(mat.NewVecDense(ObsDims, nil),
		environment.Observation, mat.NewVecDense(ObsDims, low),
		mat.NewVecDense(ObsDims, high), environment.Continuous)
}

// ActionSpec returns the action specification
func (w *Walker) ActionSpec() environment.Spec {
	low := mat.NewVecDense(ActionDims, []float64{-1, -1})
	high := mat.NewVecDense(ActionDims, []float64{1, 1})

	return environment.NewSpec(mat.NewVecDense(ActionDims, nil),
		environment.Action, low, high, environment.Continuous)
}

// Close implements the environment.Environment interface
func (w *Walker) Close() error {
	return nil
}
