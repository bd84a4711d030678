// Package experiment implements the training loop of a TRPO-style
// policy optimisation run: rollouts of complete episodes, observation
// normalisation, advantage estimation, and the policy and value
// function updates.
package experiment

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/samuelfneumann/gotrpo/experiment/checkpointer"
	"github.com/samuelfneumann/gotrpo/policy"
	"github.com/samuelfneumann/gotrpo/valuefn"
	"gonum.org/v1/gonum/mat"
)

// Constants of the training schedule
const (
	// WarmupEpisodes are run before training to initialise the
	// observation scaler. They are not counted toward NumEpisodes.
	WarmupEpisodes = checkpointer.WarmupEpisodes

	// Once UpdateIntervalEpisodes episodes have been run, each batch
	// uses LateBatchEpisodes episodes of at most LateMaxIteration steps
	LateBatchEpisodes = 10
	LateMaxIteration  = 2000

	// TimeFeatureStep is the increment per step of the elapsed time
	// feature appended to each observation
	TimeFeatureStep = 1e-3
)

// Policy is a stochastic policy trained on batches of experience
type Policy interface {
	checkpointer.Serializable
	Sample(obs []float64) []float64
	Update(obs, act *mat.Dense, adv []float64) (map[string]float64, error)
}

// ValueFunction is a state value function trained by regression on
// discounted returns
type ValueFunction interface {
	checkpointer.Serializable
	Predict(obs *mat.Dense) []float64
	Fit(obs *mat.Dense, targets []float64) (map[string]float64, error)
}

// Logger accumulates and writes one row of statistics per training
// iteration. Keys named in order are placed first, in that order.
type Logger interface {
	Log(items map[string]float64, order ...string)
	Write(display bool) error
}

// Config represents a configuration of a training run
type Config struct {
	Environment string

	NumEpisodes  int
	Gamma        float64
	Lambda       float64
	KLTarget     float64
	BatchSize    int // Episodes per batch
	MaxIteration int // Steps per episode

	// ModelSaveFrequency is the checkpoint interval in episodes. If 0,
	// NumEpisodes is used.
	ModelSaveFrequency int

	// UpdateIntervalEpisodes is the number of episodes after which
	// batches switch to LateBatchEpisodes and LateMaxIteration. If 0,
	// batches never switch.
	UpdateIntervalEpisodes int

	Seed      uint64
	ModelRoot string
	LogRoot   string

	Policy  policy.Config
	ValueFn valuefn.Config
}

// DefaultConfig returns the default training configuration
func DefaultConfig() Config {
	return Config{
		Environment:  "Walker-v0",
		NumEpisodes:  200000,
		Gamma:        0.995,
		Lambda:       0.98,
		KLTarget:     0.003,
		BatchSize:    20,
		MaxIteration: 1000,
		ModelRoot:    "model",
		LogRoot:      "log-files",
		Policy:       policy.DefaultConfig(),
		ValueFn:      valuefn.DefaultConfig(),
	}
}

// LoadConfig reads a JSON configuration from a file. Fields missing
// from the file keep their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("loadConfig: could not read config: %v",
			err)
	}
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("loadConfig: could not decode config: "+
			"%v", err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("loadConfig: %v", err)
	}
	return config, nil
}

// SaveFrequency returns the checkpoint interval in episodes
func (c Config) SaveFrequency() int {
	if c.ModelSaveFrequency == 0 {
		return c.NumEpisodes
	}
	return c.ModelSaveFrequency
}

// PolicyConfig returns the policy configuration with the run's KL
// target
func (c Config) PolicyConfig() policy.Config {
	p := c.Policy
	p.KLTarget = c.KLTarget
	return p
}

// Validate returns an error if the configuration cannot be run
func (c Config) Validate() error {
	if c.NumEpisodes < 1 {
		return fmt.Errorf("validate: number of episodes must be positive "+
			"\n\thave(%v)", c.NumEpisodes)
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("validate: gamma must be in [0, 1] \n\thave(%v)",
			c.Gamma)
	}
	if c.Lambda < 0 || c.Lambda > 1 {
		return fmt.Errorf("validate: lambda must be in [0, 1] \n\thave(%v)",
			c.Lambda)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("validate: batch size must be positive "+
			"\n\thave(%v)", c.BatchSize)
	}
	if c.MaxIteration < 1 {
		return fmt.Errorf("validate: max iteration must be positive "+
			"\n\thave(%v)", c.MaxIteration)
	}
	if c.ModelSaveFrequency < 0 {
		return fmt.Errorf("validate: model save frequency must be "+
			"non-negative \n\thave(%v)", c.ModelSaveFrequency)
	}
	if c.UpdateIntervalEpisodes < 0 {
		return fmt.Errorf("validate: update interval must be "+
			"non-negative \n\thave(%v)", c.UpdateIntervalEpisodes)
	}
	if c.ModelRoot == "" {
		return fmt.Errorf("validate: missing model root")
	}
	if err := c.PolicyConfig().Validate(); err != nil {
		return fmt.Errorf("validate: policy: %v", err)
	}
	if err := c.ValueFn.Validate(); err != nil {
		return fmt.Errorf("validate: value function: %v", err)
	}
	return nil
}
