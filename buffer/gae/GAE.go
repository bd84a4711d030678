// Package gae implements discounted returns and generalized advantage
// estimates - GAE(λ) - over complete episode trajectories, following
// https://arxiv.org/abs/1506.02438, and the construction of flat
// training batches from a number of such trajectories.
package gae

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// RewardScaleThreshold is the discount factor at and above which
// rewards are used raw. Below it, rewards are scaled by (1 - ℽ) before
// being discounted so that returns stay on the scale of a single
// reward as ℽ approaches 1.
const RewardScaleThreshold = 0.999

// ValueFunction predicts the value of each row of a matrix of
// observations
type ValueFunction interface {
	Predict(obs *mat.Dense) []float64
}

// Trajectory stores a single complete episode. Observations, Actions,
// Rewards, and UnscaledObservations are filled by the rollout; the
// remaining fields are filled by AddDiscountedReturn, AddValue, and
// AddAdvantage in that order.
type Trajectory struct {
	Observations         *mat.Dense // T × D, scaled
	Actions              *mat.Dense // T × A
	Rewards              []float64  // T
	UnscaledObservations *mat.Dense // T × D

	DiscountedReturn []float64
	Values           []float64
	Advantages       []float64
}

// Len returns the number of steps in the trajectory
func (t *Trajectory) Len() int {
	return len(t.Rewards)
}

// Validate returns an error if the rows of the trajectory's matrices
// do not each match its number of rewards
func (t *Trajectory) Validate() error {
	steps := t.Len()
	if steps == 0 {
		return invalid("validate", "empty trajectory")
	}
	if t.Observations == nil || t.Actions == nil {
		return invalid("validate", "missing observations or actions")
	}
	if r, _ := t.Observations.Dims(); r != steps {
		return invalid("validate", "observation rows \n\twant(%v)\n\thave(%v)",
			steps, r)
	}
	if r, _ := t.Actions.Dims(); r != steps {
		return invalid("validate", "action rows \n\twant(%v)\n\thave(%v)",
			steps, r)
	}
	if t.UnscaledObservations != nil {
		if r, _ := t.UnscaledObservations.Dims(); r != steps {
			return invalid("validate", "unscaled observation rows "+
				"\n\twant(%v)\n\thave(%v)", steps, r)
		}
	}
	return nil
}

// Discount computes the discounted cumulative sum of x. Given
// x = [x0 x1 ... xN] and discount ℽ, the returned slice y has
//
//	y[t] = x[t] + ℽ x[t+1] + ℽ² x[t+2] + ... + ℽ^(N-t) xN
//
// which is computed backwards as y[t] = x[t] + ℽ y[t+1], y[N+1] = 0.
func Discount(x []float64, gamma float64) []float64 {
	y := make([]float64, len(x))
	next := 0.0
	for t := len(x) - 1; t >= 0; t-- {
		next = x[t] + gamma*next
		y[t] = next
	}
	return y
}

// scaledRewards returns the rewards to discount for a given ℽ
func scaledRewards(rewards []float64, gamma float64) []float64 {
	scaled := make([]float64, len(rewards))
	copy(scaled, rewards)
	if gamma < RewardScaleThreshold {
		for i := range scaled {
			scaled[i] *= 1 - gamma
		}
	}
	return scaled
}

// AddDiscountedReturn fills the DiscountedReturn of each trajectory
func AddDiscountedReturn(trajectories []*Trajectory, gamma float64) {
	for _, t := range trajectories {
		t.DiscountedReturn = Discount(scaledRewards(t.Rewards, gamma), gamma)
	}
}

// AddValue fills the Values of each trajectory with the predictions of
// a value function on the trajectory's scaled observations
func AddValue(trajectories []*Trajectory, v ValueFunction) error {
	for i, t := range trajectories {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("addValue: trajectory %d: %w", i, err)
		}

		values := v.Predict(t.Observations)
		if len(values) != t.Len() {
			return invalid("addValue", "trajectory %d: values "+
				"\n\twant(%v)\n\thave(%v)", i, t.Len(), len(values))
		}
		t.Values = values
	}
	return nil
}

// AddAdvantage fills the Advantages of each trajectory with GAE(λ)
// estimates. Values must have been added before calling AddAdvantage.
// The TD residual at step t is
//
//	δ[t] = r[t] - V[t] + ℽ V[t+1]
//
// with V[T] = 0, where r is scaled as for AddDiscountedReturn. The
// advantages are then the discounted sum of δ with decay ℽλ.
func AddAdvantage(trajectories []*Trajectory, gamma, lambda float64) error {
	for i, t := range trajectories {
		steps := t.Len()
		if len(t.Values) != steps {
			return invalid("addAdvantage", "trajectory %d: values "+
				"\n\twant(%v)\n\thave(%v)", i, steps, len(t.Values))
		}
		if steps == 0 {
			t.Advantages = []float64{}
			continue
		}

		rewards := mat.NewVecDense(steps, scaledRewards(t.Rewards, gamma))
		values := mat.NewVecDense(steps, t.Values)

		nextValues := mat.NewVecDense(steps, nil)
		if steps > 1 {
			nextValues.SliceVec(0, steps-1).(*mat.VecDense).CopyVec(
				values.SliceVec(1, steps))
		}

		deltas := mat.NewVecDense(steps, nil)
		deltas.AddScaledVec(rewards, gamma, nextValues)
		deltas.SubVec(deltas, values)

		t.Advantages = Discount(deltas.RawVector().Data, gamma*lambda)
	}
	return nil
}

func wrapf(err error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{err}, args...)...)
}
