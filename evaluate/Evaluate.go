// Package evaluate runs saved policy checkpoints in an environment for a
// number of random seeds and records how far and how long each one
// walks.
package evaluate

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/golang/glog"
	"github.com/samuelfneumann/gotrpo/environment"
	"github.com/samuelfneumann/gotrpo/experiment"
	"github.com/samuelfneumann/gotrpo/experiment/checkpointer"
	"github.com/samuelfneumann/gotrpo/experiment/tracker"
	"github.com/samuelfneumann/gotrpo/policy"
	"github.com/samuelfneumann/gotrpo/scaler"
	ts "github.com/samuelfneumann/gotrpo/timestep"
	"github.com/samuelfneumann/gotrpo/utils/progressbar"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultSeeds is the number of seeds each checkpoint is run for
	DefaultSeeds = 10

	// DefaultMaxSteps caps an evaluation episode in case a policy
	// stays healthy forever
	DefaultMaxSteps = 10000

	progressWidth = 40
)

// Result is the outcome of running one checkpoint for one seed
type Result struct {
	Model         string
	Steps         int
	RewardPerStep float64
	Rewards       float64
	Seed          int
}

// EnvFactory creates a seeded environment
type EnvFactory func(seed uint64) (environment.Environment, error)

// Config configures an evaluation
type Config struct {
	ModelRoot string

	// Checkpoints are named <run>/<checkpoint> relative to ModelRoot
	Checkpoints []string

	Seeds    int
	MaxSteps int

	// Progress receives a progress bar if non-nil
	Progress io.Writer
}

// Validate returns an error if the Config is unusable
func (c Config) Validate() error {
	if len(c.Checkpoints) == 0 {
		return fmt.Errorf("validate: no checkpoints to evaluate")
	}
	if c.Seeds < 1 {
		return fmt.Errorf("validate: seeds must be positive, have %v",
			c.Seeds)
	}
	if c.MaxSteps < 1 {
		return fmt.Errorf("validate: max steps must be positive, have %v",
			c.MaxSteps)
	}
	return nil
}

// Checkpoints lists the checkpoints of each run in models, named
// <run>/<checkpoint>. Checkpoints of a run are ordered numerically.
func Checkpoints(modelRoot string, models []string) ([]string, error) {
	var names []string
	for _, model := range models {
		entries, err := os.ReadDir(filepath.Join(modelRoot, model))
		if err != nil {
			return nil, fmt.Errorf("checkpoints: could not read model "+
				"%v: %v", model, err)
		}

		var dirs []string
		for _, entry := range entries {
			if entry.IsDir() {
				dirs = append(dirs, entry.Name())
			}
		}
		sort.Slice(dirs, func(i, j int) bool {
			a, errA := strconv.Atoi(dirs[i])
			b, errB := strconv.Atoi(dirs[j])
			if errA != nil || errB != nil {
				return dirs[i] < dirs[j]
			}
			return a < b
		})

		for _, dir := range dirs {
			names = append(names, model+"/"+dir)
		}
	}
	return names, nil
}

// checkpoint is a loaded checkpoint
type checkpoint struct {
	name          string
	policy        *policy.Gaussian
	scale, offset []float64
}

func load(modelRoot, name string) (checkpoint, error) {
	dir := filepath.Join(modelRoot, filepath.FromSlash(name))

	s, err := scaler.Load(checkpointer.ScalerPath(dir))
	if err != nil {
		return checkpoint{}, fmt.Errorf("load: %v", err)
	}
	p, err := policy.Load(checkpointer.PolicyPath(dir))
	if err != nil {
		return checkpoint{}, fmt.Errorf("load: %v", err)
	}
	if p.ObsDim() != s.Dims() {
		return checkpoint{}, fmt.Errorf("load: checkpoint %v: policy "+
			"observation size %v does not match scaler size %v", name,
			p.ObsDim(), s.Dims())
	}

	scale, offset := s.GetWithTimeFeature()
	return checkpoint{name: name, policy: p, scale: scale, offset: offset}, nil
}

// Run evaluates each checkpoint once for each seed 0, 1, ...,
// Seeds-1. Results are ordered by seed and then by checkpoint.
//
// The reward of an evaluation episode is the sum of the forward
// velocities reported by the environment, falling back to the reward
// for environments that do not report them.
func Run(ctx context.Context, config Config,
	newEnv EnvFactory) ([]Result, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("run: %v", err)
	}

	checkpoints := make([]checkpoint, len(config.Checkpoints))
	for i, name := range config.Checkpoints {
		c, err := load(config.ModelRoot, name)
		if err != nil {
			return nil, fmt.Errorf("run: %v", err)
		}
		checkpoints[i] = c
	}

	var bar *progressbar.ManualProgressBar
	if config.Progress != nil {
		bar = progressbar.NewManualProgressBarTo(config.Progress,
			progressWidth, config.Seeds*len(checkpoints))
		defer bar.Close()
	}

	results := make([]Result, 0, config.Seeds*len(checkpoints))
	for seed := 0; seed < config.Seeds; seed++ {
		for _, c := range checkpoints {
			if err := ctx.Err(); err != nil {
				return results, fmt.Errorf("run: %w", err)
			}

			result, err := runCheckpoint(c, seed, config.MaxSteps, newEnv)
			if err != nil {
				return results, fmt.Errorf("run: %v", err)
			}
			results = append(results, result)
			glog.V(1).Infof("run: %v seed %d: %d steps, reward %.3f",
				c.name, seed, result.Steps, result.Rewards)

			if bar != nil {
				bar.Increment()
				bar.Display()
			}
		}
	}
	return results, nil
}

func runCheckpoint(c checkpoint, seed, maxSteps int,
	newEnv EnvFactory) (Result, error) {
	env, err := newEnv(uint64(seed))
	if err != nil {
		return Result{}, fmt.Errorf("runCheckpoint: could not create "+
			"environment: %v", err)
	}
	defer func() {
		if err := env.Close(); err != nil {
			glog.Warningf("runCheckpoint: could not close environment: %v",
				err)
		}
	}()

	if obsDim := env.ObservationSpec().Dims() + 1; obsDim != c.policy.ObsDim() {
		return Result{}, fmt.Errorf("runCheckpoint: checkpoint %v expects "+
			"%v observation dimensions, environment has %v", c.name,
			c.policy.ObsDim(), obsDim)
	}
	c.policy.Seed(uint64(seed))

	rewards := tracker.NewInfoReturn(ts.XVelocity)
	lengths := tracker.NewEpisodeLength()
	if err := runEpisode(env, c, maxSteps, rewards, lengths); err != nil {
		return Result{}, fmt.Errorf("runCheckpoint: %v: %v", c.name, err)
	}

	steps := lengths.Lengths()[0]
	total := rewards.Returns()[0]
	return Result{
		Model:         c.name,
		Steps:         steps,
		RewardPerStep: total / float64(steps),
		Rewards:       total,
		Seed:          seed,
	}, nil
}

// runEpisode runs the checkpoint's policy until the episode ends or
// maxSteps steps have been taken
func runEpisode(env environment.Environment, c checkpoint, maxSteps int,
	trackers ...tracker.Tracker) error {
	step, err := env.Reset()
	if err != nil {
		return fmt.Errorf("runEpisode: could not reset: %v", err)
	}
	for _, tr := range trackers {
		tr.Track(step)
	}

	obsDim := c.policy.ObsDim()
	obs := make([]float64, obsDim)
	timeFeature := 0.0
	for i := 0; i < maxSteps; i++ {
		for j := 0; j < obsDim-1; j++ {
			obs[j] = step.Observation.AtVec(j)
		}
		obs[obsDim-1] = timeFeature
		floats.Sub(obs, c.offset)
		floats.Mul(obs, c.scale)

		action := c.policy.Sample(obs)

		var done bool
		step, done, err = env.Step(mat.NewVecDense(len(action), action))
		if err != nil {
			return fmt.Errorf("runEpisode: could not step: %v", err)
		}
		for _, tr := range trackers {
			tr.Track(step)
		}
		timeFeature += experiment.TimeFeatureStep

		if done || step.Last() {
			break
		}
	}
	for _, tr := range trackers {
		tr.EndEpisode()
	}
	return nil
}
