// Package envconfig provides configuration structs for creating
// environments by name with default physical parameters and tasks.
// Environment configurations in this package are JSON serializable.
package envconfig

import (
	"fmt"

	env "github.com/samuelfneumann/gotrpo/environment"
	"github.com/samuelfneumann/gotrpo/environment/gym"
	"github.com/samuelfneumann/gotrpo/environment/walker"
	ts "github.com/samuelfneumann/gotrpo/timestep"
)

// Config implements a specific configuration of a specific environment.
// Names other than the in-tree walker are created through OpenAI Gym.
type Config struct {
	Environment   string
	EpisodeCutoff int
	Discount      float64
}

// NewConfig returns a new environment Config
func NewConfig(name string, episodeCutoff int, discount float64) Config {
	return Config{
		Environment:   name,
		EpisodeCutoff: episodeCutoff,
		Discount:      discount,
	}
}

// Gym returns whether the configured environment is an OpenAI Gym
// environment
func (c Config) Gym() bool {
	return c.Environment != walker.Name
}

// Validate returns an error if the Config cannot create an environment
func (c Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("validate: no environment name")
	}
	if c.Discount < 0 || c.Discount > 1 {
		return fmt.Errorf("validate: discount %v not in [0, 1]", c.Discount)
	}
	if c.Gym() && c.EpisodeCutoff > 0 {
		return fmt.Errorf("validate: gym environment %v only supports its "+
			"default episode cutoff", c.Environment)
	}
	return nil
}

// Create returns the environment described by the Config as well as
// the first timestep of the environment.
func (c Config) Create(seed uint64) (env.Environment, ts.TimeStep, error) {
	if err := c.Validate(); err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("create: %v", err)
	}

	if !c.Gym() {
		w, step, err := walker.New(c.EpisodeCutoff, seed, c.Discount)
		if err != nil {
			return nil, ts.TimeStep{}, fmt.Errorf("create: %v", err)
		}
		return w, step, nil
	}

	e, step, err := gym.New(c.Environment, c.Discount, seed)
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("create: %v", err)
	}
	return e, step, nil
}

// Make is a factory for creating the environment with the given name
// using default physical parameters and no extra episode cutoff.
func Make(name string, discount float64, seed uint64) (env.Environment,
	error) {
	e, _, err := NewConfig(name, 0, discount).Create(seed)
	return e, err
}
