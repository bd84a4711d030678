// Package environment outlines the interfaces and structs needed to
// implement concrete locomotion environments
package environment

import (
	ts "github.com/samuelfneumann/gotrpo/timestep"
	"gonum.org/v1/gonum/mat"
)

// Starter implements a distribution of starting states and samples
// starting states for environments
type Starter interface {
	Start() *mat.VecDense
}

// Ender determines whether an episode should end on a given timestep.
// When End() returns true, the argument timestep is modified so that
// its StepType is timestep.Last.
type Ender interface {
	End(*ts.TimeStep) bool
}

// Environment implements a simulated environment which an agent
// interacts with one episode at a time.
//
// Step returns the next timestep and whether that timestep ended the
// episode. An episode ends when the simulated body is no longer
// healthy or when the environment's own cutoff is reached.
type Environment interface {
	Reset() (ts.TimeStep, error)
	Step(action *mat.VecDense) (ts.TimeStep, bool, error)

	// Seed reseeds the distribution of starting states. The next call
	// to Reset() samples from the reseeded distribution.
	Seed(seed uint64)

	ObservationSpec() Spec
	ActionSpec() Spec
	Close() error
}
