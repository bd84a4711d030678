package valuefn

import (
	"fmt"

	"github.com/samuelfneumann/gotrpo/solver"
)

// Config is the JSON-serialisable configuration of an MLP value
// function
type Config struct {
	Hidden int // Number of hidden units
	Epochs int // Gradient steps per call to Fit
	Solver *solver.Solver
}

// DefaultConfig returns the default value function configuration
func DefaultConfig() Config {
	s, err := solver.NewDefaultAdam(1e-2, 1)
	if err != nil {
		panic(fmt.Sprintf("defaultConfig: %v", err))
	}
	return Config{
		Hidden: 64,
		Epochs: 50,
		Solver: s,
	}
}

// Validate returns an error if the configuration cannot produce a
// value function
func (c Config) Validate() error {
	if c.Hidden < 1 {
		return fmt.Errorf("validate: hidden units must be positive "+
			"\n\thave(%v)", c.Hidden)
	}
	if c.Epochs < 1 {
		return fmt.Errorf("validate: epochs must be positive \n\thave(%v)",
			c.Epochs)
	}
	if err := c.Solver.Validate(); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	return nil
}
