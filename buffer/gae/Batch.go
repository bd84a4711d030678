package gae

import (
	"fmt"

	"github.com/samuelfneumann/gotrpo/utils/floatutils"
	"github.com/samuelfneumann/gotrpo/utils/matutils"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// AdvantageEpsilon is added to the advantage standard deviation before
// normalizing so that a batch of identical advantages does not divide
// by zero
const AdvantageEpsilon = 1e-6

// Batch is a flat concatenation of a number of trajectories, in
// rollout order, used for a single policy and value function update.
// Each field has one row or element per step of every trajectory.
type Batch struct {
	Observations      *mat.Dense
	Actions           *mat.Dense
	Advantages        []float64 // normalized
	DiscountedReturns []float64
}

// Build concatenates the trajectories into a Batch and normalizes the
// concatenated advantages to zero mean and unit variance. Returns and
// advantages must have been added to each trajectory.
func Build(trajectories []*Trajectory) (*Batch, error) {
	if len(trajectories) == 0 {
		return nil, invalid("build", "no trajectories")
	}

	obs := make([]*mat.Dense, len(trajectories))
	acts := make([]*mat.Dense, len(trajectories))
	var advantages, returns []float64
	for i, t := range trajectories {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("build: trajectory %d: %w", i, err)
		}
		if len(t.Advantages) != t.Len() {
			return nil, invalid("build", "trajectory %d: advantages "+
				"\n\twant(%v)\n\thave(%v)", i, t.Len(), len(t.Advantages))
		}
		if len(t.DiscountedReturn) != t.Len() {
			return nil, invalid("build", "trajectory %d: returns "+
				"\n\twant(%v)\n\thave(%v)", i, t.Len(),
				len(t.DiscountedReturn))
		}

		obs[i] = t.Observations
		acts[i] = t.Actions
		advantages = append(advantages, t.Advantages...)
		returns = append(returns, t.DiscountedReturn...)
	}

	observations, err := matutils.VStack(obs...)
	if err != nil {
		return nil, &GAEError{"build", fmt.Errorf("%w: observations: %v",
			ErrInvalidInput, err)}
	}
	actions, err := matutils.VStack(acts...)
	if err != nil {
		return nil, &GAEError{"build", fmt.Errorf("%w: actions: %v",
			ErrInvalidInput, err)}
	}

	mean, std := stat.PopMeanStdDev(advantages, nil)
	floats.AddConst(-mean, advantages)
	floats.Scale(1/(std+AdvantageEpsilon), advantages)

	return &Batch{
		Observations:      observations,
		Actions:           actions,
		Advantages:        advantages,
		DiscountedReturns: returns,
	}, nil
}

// Len returns the number of steps in the batch
func (b *Batch) Len() int {
	return len(b.Advantages)
}

// StatKeys lists the keys of Stats in the order they are logged
var StatKeys = []string{
	"_mean_obs", "_min_obs", "_max_obs", "_std_obs",
	"_mean_act", "_min_act", "_max_act", "_std_act",
	"_mean_adv", "_min_adv", "_max_adv", "_std_adv",
	"_mean_discrew", "_min_discrew", "_max_discrew", "_std_discrew",
}

// Stats returns summary statistics of the batch, keyed by the names
// under which they are logged. The _std entries hold variances: the
// mean per-column variance for observations and actions, and the
// variance of the vector for advantages and returns.
func (b *Batch) Stats() map[string]float64 {
	stats := make(map[string]float64, 16)

	matStats := func(suffix string, m *mat.Dense) {
		data := m.RawMatrix().Data
		stats["_mean_"+suffix] = stat.Mean(data, nil)
		stats["_min_"+suffix] = floatutils.Min(data...)
		stats["_max_"+suffix] = floatutils.Max(data...)
		_, vars := matutils.ColMeanVar(m)
		stats["_std_"+suffix] = stat.Mean(vars, nil)
	}
	vecStats := func(suffix string, v []float64) {
		mean, variance := stat.PopMeanVariance(v, nil)
		stats["_mean_"+suffix] = mean
		stats["_min_"+suffix] = floatutils.Min(v...)
		stats["_max_"+suffix] = floatutils.Max(v...)
		stats["_std_"+suffix] = variance
	}

	matStats("obs", b.Observations)
	matStats("act", b.Actions)
	vecStats("adv", b.Advantages)
	vecStats("discrew", b.DiscountedReturns)

	return stats
}
