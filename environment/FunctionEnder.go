package environment

import (
	ts "github.com/samuelfneumann/gotrpo/timestep"
	"gonum.org/v1/gonum/mat"
)

// FunctionEnder ends an episode whenever a function of a vector
// (usually the underlying environment state) returns true.
type FunctionEnder struct {
	state func() *mat.VecDense
	end   func(*mat.VecDense) bool
}

// NewFunctionEnder returns a new FunctionEnder which ends episodes
// when f returns true for the vector returned by state. If state is
// nil, f is evaluated on the timestep's observation.
func NewFunctionEnder(state func() *mat.VecDense,
	f func(*mat.VecDense) bool) Ender {
	return &FunctionEnder{state, f}
}

// End determines whether or not the current episode should be ended,
// returning a boolean to indicate episode termination. If the episode
// should be ended, End() will modify the timestep so that its StepType
// field is timestep.Last.
func (f *FunctionEnder) End(t *ts.TimeStep) bool {
	v := t.Observation
	if f.state != nil {
		v = f.state()
	}
	if f.end(v) {
		t.StepType = ts.Last
		return true
	}
	return false
}
