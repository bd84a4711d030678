package walker

import (
	"math"

	"github.com/samuelfneumann/gotrpo/environment"
	ts "github.com/samuelfneumann/gotrpo/timestep"
	"gonum.org/v1/gonum/mat"
)

const (
	healthyReward = 1.0
	ctrlCost      = 1e-3

	minHeight = 0.7
	maxHeight = 2.0
	maxAngle  = 1.0
	maxState  = 100.0
)

// Run implements the running task for the Walker environment. In this
// task the agent is rewarded for forward velocity plus a healthy bonus,
// less a quadratic control cost, as in OpenAI Gym Hopper.
//
// Episodes are ended when a timestep limit is reached or:
//		1. An illegal value exists in the underlying state, such as
//		   NaN or ±Inf
//		2. The height of the torso leaves [0.7, 2.0]
//		3. The torso angle leaves [-1, 1]
//		4. At least one element of the state (except x and z) is not
//		   within [-100, 100]
type Run struct {
	health    environment.Ender
	stepLimit environment.Ender
	cutoff    int
}

func newRun(w *Walker, cutoff int) *Run {
	return &Run{
		health:    environment.NewFunctionEnder(w.State, unhealthy),
		stepLimit: environment.NewStepLimit(cutoff),
		cutoff:    cutoff,
	}
}

// GetReward returns the reward for moving with forward velocity xVel
// under control ctrl
func (r *Run) GetReward(xVel float64, ctrl []float64) float64 {
	c := mat.NewVecDense(len(ctrl), ctrl)
	return xVel + healthyReward - ctrlCost*mat.Dot(c, c)
}

// End checks if a timestep should be the last in the episode and
// adjusts the timestep accordingly. End returns whether the argument
// timestep is the last in the episode.
func (r *Run) End(t *ts.TimeStep) bool {
	if r.health.End(t) {
		return true
	}
	return r.cutoff > 0 && r.stepLimit.End(t)
}

// Healthy returns whether a full walker state is healthy
func Healthy(state *mat.VecDense) bool {
	return !unhealthy(state)
}

func unhealthy(s *mat.VecDense) bool {
	for i := 0; i < s.Len(); i++ {
		v := s.AtVec(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
		if i >= 2 && math.Abs(v) >= maxState {
			return true
		}
	}

	height, angle := s.AtVec(1), s.AtVec(2)
	return height < minHeight || height > maxHeight ||
		math.Abs(angle) > maxAngle
}
