package experiment

import (
	"context"
	"fmt"

	"github.com/golang/glog"
	"github.com/samuelfneumann/gotrpo/buffer/gae"
	"github.com/samuelfneumann/gotrpo/environment"
	"github.com/samuelfneumann/gotrpo/experiment/checkpointer"
	"github.com/samuelfneumann/gotrpo/experiment/tracker"
	"github.com/samuelfneumann/gotrpo/policy"
	"github.com/samuelfneumann/gotrpo/scaler"
	"github.com/samuelfneumann/gotrpo/utils/matutils"
	"github.com/samuelfneumann/gotrpo/valuefn"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Trainer runs the training loop of a single run. Each iteration of
// the loop collects a batch of complete episodes with the current
// policy, updates the observation scaler, computes returns and
// advantages, updates the policy and value function, writes one row to
// the log, and checkpoints if due. Checkpoints therefore hold the
// models trained on every batch up to and including their episode.
type Trainer struct {
	config  Config
	env     environment.Environment
	policy  Policy
	valueFn ValueFunction
	logger  Logger

	scaler       *scaler.Scaler
	checkpointer checkpointer.Checkpointer
	paths        checkpointer.Paths

	obsDim  int // Environment observation dimension + time feature
	actDim  int
	episode int
}

// NewTrainer returns a new Trainer. Checkpoints are saved under paths.
func NewTrainer(config Config, env environment.Environment, policy Policy,
	valueFn ValueFunction, logger Logger,
	paths checkpointer.Paths) (*Trainer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("newTrainer: %v", err)
	}

	obsDim := env.ObservationSpec().Dims() + 1
	actDim := env.ActionSpec().Dims()
	s := scaler.New(obsDim)

	check, err := checkpointer.NewEpisode(
		config.SaveFrequency(),
		map[string]checkpointer.Serializable{
			checkpointer.ScalerFile:  s,
			checkpointer.PolicyFile:  policy,
			checkpointer.ValueFnFile: valueFn,
		},
		paths.Checkpoint,
	)
	if err != nil {
		return nil, fmt.Errorf("newTrainer: %v", err)
	}

	return &Trainer{
		config:       config,
		env:          env,
		policy:       policy,
		valueFn:      valueFn,
		logger:       logger,
		scaler:       s,
		checkpointer: check,
		paths:        paths,
		obsDim:       obsDim,
		actDim:       actDim,
	}, nil
}

// Episode returns the number of training episodes run so far, not
// including the warm-up episodes
func (t *Trainer) Episode() int {
	return t.episode
}

// Scaler returns the observation scaler
func (t *Trainer) Scaler() *scaler.Scaler {
	return t.scaler
}

// regime returns the number of episodes per batch and the maximum
// number of steps per episode for the next batch
func (t *Trainer) regime() (episodes, maxIteration int) {
	interval := t.config.UpdateIntervalEpisodes
	if interval > 0 && t.episode >= interval {
		return LateBatchEpisodes, LateMaxIteration
	}
	return t.config.BatchSize, t.config.MaxIteration
}

// Run runs the warm-up episodes and then trains until NumEpisodes
// episodes have been run. Cancelling ctx stops training between
// episodes.
func (t *Trainer) Run(ctx context.Context) error {
	glog.Infof("run: %d warm-up episodes", WarmupEpisodes)
	if _, err := t.rollout(ctx, WarmupEpisodes, t.config.MaxIteration); err != nil {
		return fmt.Errorf("run: warm-up: %w", err)
	}
	if _, err := t.checkpointer.Checkpoint(WarmupEpisodes); err != nil {
		return fmt.Errorf("run: warm-up: %v", err)
	}

	for t.episode < t.config.NumEpisodes {
		if err := t.Iterate(ctx); err != nil {
			return fmt.Errorf("run: episode %d: %w", t.episode, err)
		}
	}
	glog.Infof("run: finished %d episodes", t.episode)
	return nil
}

// Iterate runs a single training iteration
func (t *Trainer) Iterate(ctx context.Context) error {
	episodes, maxIteration := t.regime()
	trajectories, err := t.rollout(ctx, episodes, maxIteration)
	if err != nil {
		return fmt.Errorf("iterate: %w", err)
	}
	t.episode += len(trajectories)

	if err := gae.AddValue(trajectories, t.valueFn); err != nil {
		return fmt.Errorf("iterate: %w", err)
	}
	gae.AddDiscountedReturn(trajectories, t.config.Gamma)
	if err := gae.AddAdvantage(trajectories, t.config.Gamma,
		t.config.Lambda); err != nil {
		return fmt.Errorf("iterate: %w", err)
	}

	batch, err := gae.Build(trajectories)
	if err != nil {
		return fmt.Errorf("iterate: %w", err)
	}
	stats := batch.Stats()
	stats[tracker.EpisodeKey] = float64(t.episode)
	t.logger.Log(stats, append(gae.StatKeys, tracker.EpisodeKey)...)

	policyStats, err := t.policy.Update(batch.Observations, batch.Actions,
		batch.Advantages)
	if err != nil {
		return fmt.Errorf("iterate: could not update policy: %w", err)
	}
	t.logger.Log(policyStats, policy.UpdateKeys...)

	valueStats, err := t.valueFn.Fit(batch.Observations,
		batch.DiscountedReturns)
	if err != nil {
		return fmt.Errorf("iterate: could not fit value function: %w", err)
	}
	t.logger.Log(valueStats, valuefn.FitKeys...)

	if err := t.logger.Write(true); err != nil {
		return fmt.Errorf("iterate: %v", err)
	}

	if _, err := t.checkpointer.Checkpoint(t.episode); err != nil {
		return fmt.Errorf("iterate: %v", err)
	}
	return nil
}

// rollout runs a batch of episodes, updates the scaler with their
// unscaled observations, and logs the mean return
// and total number of steps of the batch
func (t *Trainer) rollout(ctx context.Context, episodes,
	maxIteration int) ([]*gae.Trajectory, error) {
	scale, offset := t.scaler.GetWithTimeFeature()
	returns := tracker.NewReturn()
	lengths := tracker.NewEpisodeLength()

	trajectories := make([]*gae.Trajectory, 0, episodes)
	for i := 0; i < episodes; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("rollout: %w", err)
		}

		traj, err := t.runEpisode(scale, offset, maxIteration, returns,
			lengths)
		if err != nil {
			return nil, fmt.Errorf("rollout: episode %d: %w", i, err)
		}
		trajectories = append(trajectories, traj)
	}

	unscaled := make([]*mat.Dense, len(trajectories))
	for i, traj := range trajectories {
		unscaled[i] = traj.UnscaledObservations
	}
	stacked, err := matutils.VStack(unscaled...)
	if err != nil {
		return nil, fmt.Errorf("rollout: %v", err)
	}
	if err := t.scaler.Update(stacked); err != nil {
		return nil, fmt.Errorf("rollout: could not update scaler: %w", err)
	}

	steps := 0
	for _, l := range lengths.Lengths() {
		steps += l
	}
	t.logger.Log(map[string]float64{
		tracker.MeanRewardKey: stat.Mean(returns.Returns(), nil),
		tracker.StepsKey:      float64(steps),
	}, tracker.MeanRewardKey, tracker.StepsKey)
	glog.V(1).Infof("rollout: %d episodes, %d steps", episodes, steps)

	return trajectories, nil
}

// RunEpisode runs a single episode of at most maxIteration steps and
// returns its trajectory. Each observation is extended with the
// elapsed time feature and then normalised as (obs - offset) * scale
// before being passed to the policy.
func (t *Trainer) RunEpisode(scale, offset []float64,
	maxIteration int) (*gae.Trajectory, error) {
	return t.runEpisode(scale, offset, maxIteration)
}

func (t *Trainer) runEpisode(scale, offset []float64, maxIteration int,
	trackers ...tracker.Tracker) (*gae.Trajectory, error) {
	if len(scale) != t.obsDim || len(offset) != t.obsDim {
		return nil, fmt.Errorf("runEpisode: illegal scale or offset size "+
			"\n\twant(%v)\n\thave(%v, %v)", t.obsDim, len(scale),
			len(offset))
	}

	step, err := t.env.Reset()
	if err != nil {
		return nil, fmt.Errorf("runEpisode: could not reset: %v", err)
	}
	for _, tr := range trackers {
		tr.Track(step)
	}

	var observations, unscaled, actions, rewards []float64
	timeFeature := 0.0
	for i := 0; i < maxIteration; i++ {
		raw := make([]float64, t.obsDim)
		for j := 0; j < t.obsDim-1; j++ {
			raw[j] = step.Observation.AtVec(j)
		}
		raw[t.obsDim-1] = timeFeature
		unscaled = append(unscaled, raw...)

		obs := make([]float64, t.obsDim)
		floats.SubTo(obs, raw, offset)
		floats.Mul(obs, scale)
		observations = append(observations, obs...)

		action := t.policy.Sample(obs)
		if len(action) != t.actDim {
			return nil, fmt.Errorf("runEpisode: illegal action size "+
				"\n\twant(%v)\n\thave(%v)", t.actDim, len(action))
		}
		actions = append(actions, action...)

		var done bool
		step, done, err = t.env.Step(mat.NewVecDense(t.actDim, action))
		if err != nil {
			return nil, fmt.Errorf("runEpisode: could not step: %v", err)
		}
		for _, tr := range trackers {
			tr.Track(step)
		}
		rewards = append(rewards, step.Reward)
		timeFeature += TimeFeatureStep

		if done || step.Last() {
			break
		}
	}
	for _, tr := range trackers {
		tr.EndEpisode()
	}

	if len(rewards) == 0 {
		return nil, fmt.Errorf("runEpisode: episode ended before any step")
	}

	steps := len(rewards)
	return &gae.Trajectory{
		Observations:         mat.NewDense(steps, t.obsDim, observations),
		Actions:              mat.NewDense(steps, t.actDim, actions),
		Rewards:              rewards,
		UnscaledObservations: mat.NewDense(steps, t.obsDim, unscaled),
	}, nil
}
