package policy

import "fmt"

// Config is the JSON-serialisable configuration of a Gaussian policy
type Config struct {
	InitLogStd   float64 // Initial log standard deviation of each action
	LearningRate float64 // Step size of each gradient step
	Epochs       int     // Maximum gradient steps per update

	// KLTarget is the desired KL divergence between the policies before
	// and after an update. Beta, the KL penalty coefficient, is adapted
	// after each update to track it. Eta weights a squared hinge
	// penalty on a KL divergence larger than 2 * KLTarget.
	KLTarget float64
	Beta     float64
	Eta      float64
}

// DefaultConfig returns the default policy configuration
func DefaultConfig() Config {
	return Config{
		InitLogStd:   -0.5,
		LearningRate: 3e-3,
		Epochs:       20,
		KLTarget:     0.003,
		Beta:         1.0,
		Eta:          50.0,
	}
}

// Validate returns an error if the configuration cannot produce a
// policy
func (c Config) Validate() error {
	if c.LearningRate <= 0 {
		return fmt.Errorf("validate: learning rate must be positive "+
			"\n\thave(%v)", c.LearningRate)
	}
	if c.Epochs < 1 {
		return fmt.Errorf("validate: epochs must be positive \n\thave(%v)",
			c.Epochs)
	}
	if c.KLTarget <= 0 {
		return fmt.Errorf("validate: KL target must be positive "+
			"\n\thave(%v)", c.KLTarget)
	}
	if c.Beta <= 0 {
		return fmt.Errorf("validate: beta must be positive \n\thave(%v)",
			c.Beta)
	}
	if c.Eta < 0 {
		return fmt.Errorf("validate: eta must be non-negative \n\thave(%v)",
			c.Eta)
	}
	return nil
}
