// Package gym provides access to OpenAI Gym environments, in particular
// the MuJoCo locomotion suite, through the Go bindings of GoGym found at
// https://github.com/samuelfneumann/gogym.
//
// All environments only work with their default tasks and episode
// cutoffs. GoGym does not expose the info dictionary of a step, so
// timesteps of a GymEnv carry no Info.
package gym

import (
	"fmt"

	"github.com/samuelfneumann/gogym"
	env "github.com/samuelfneumann/gotrpo/environment"
	ts "github.com/samuelfneumann/gotrpo/timestep"
	"gonum.org/v1/gonum/mat"
)

// MuJoCo locomotion environments
const (
	HopperV4      = "Hopper-v4"
	Walker2dV4    = "Walker2d-v4"
	HalfCheetahV4 = "HalfCheetah-v4"
	AntV4         = "Ant-v4"
	HumanoidV4    = "Humanoid-v4"
)

// GymEnv implements access to an OpenAI Gym environment using GoGym
type GymEnv struct {
	gogym.Environment
	name string

	currentStep ts.TimeStep
	discount    float64
}

// New returns a new GymEnv with the given name, which must be a legal
// name from the OpenAI Gym suite.
func New(name string, discount float64, seed uint64) (*GymEnv,
	ts.TimeStep, error) {
	goGymEnv, err := gogym.Make(name)
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("new: could not create "+
			"environment %v: %v", name, err)
	}

	gymEnv := &GymEnv{
		Environment: goGymEnv,
		name:        name,
		discount:    discount,
	}
	gymEnv.Seed(seed)

	t, err := gymEnv.Reset()
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("new: %v", err)
	}
	return gymEnv, t, nil
}

// Name returns the Gym name of the environment
func (g *GymEnv) Name() string {
	return g.name
}

// Seed seeds the environment
func (g *GymEnv) Seed(seed uint64) {
	g.Environment.Seed(int(seed))
}

// Step takes a single environmental step
func (g *GymEnv) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	if g.currentStep.Last() {
		return ts.TimeStep{}, true, fmt.Errorf("step: cannot step after " +
			"the last timestep, reset the environment first")
	}

	obs, reward, done, err := g.Environment.Step(a)
	if err != nil {
		return ts.TimeStep{}, true, fmt.Errorf("step: could not step "+
			"GoGym environment: %v", err)
	}

	t := ts.New(ts.Mid, reward, g.discount, obs, g.currentStep.Number+1)
	if done {
		t.StepType = ts.Last
	}
	g.currentStep = t

	return t, done, nil
}

// Reset resets the environment to some starting state
func (g *GymEnv) Reset() (ts.TimeStep, error) {
	obs, err := g.Environment.Reset()
	if err != nil {
		return ts.TimeStep{}, fmt.Errorf("reset: could not reset "+
			"environment: %v", err)
	}

	t := ts.New(ts.First, 0, g.discount, obs, 0)
	g.currentStep = t

	return t, nil
}

// CurrentTimeStep returns the current timestep in the environment
func (g *GymEnv) CurrentTimeStep() ts.TimeStep {
	return g.currentStep
}

// boxSpec returns the Spec of a continuous GoGym space
func boxSpec(space gogym.Space, t env.SpecType) (env.Spec, error) {
	if _, ok := space.(*gogym.BoxSpace); !ok {
		return env.Spec{}, fmt.Errorf("only continuous BoxSpace spaces are "+
			"supported, have %T", space)
	}

	low := space.Low()[0]
	high := space.High()[0]
	shape := mat.NewVecDense(low.Len(), nil)
	return env.NewSpec(shape, t, low, high, env.Continuous), nil
}

// ObservationSpec returns the observation spec of the environment
func (g *GymEnv) ObservationSpec() env.Spec {
	spec, err := boxSpec(g.ObservationSpace(), env.Observation)
	if err != nil {
		panic(fmt.Sprintf("observationSpec: %v", err))
	}
	return spec
}

// ActionSpec returns the action specification of the environment
func (g *GymEnv) ActionSpec() env.Spec {
	spec, err := boxSpec(g.ActionSpace(), env.Action)
	if err != nil {
		panic(fmt.Sprintf("actionSpec: %v", err))
	}
	return spec
}

// Close performs resource cleanup after the environment is no longer
// needed
func (g *GymEnv) Close() error {
	g.Environment.Close()
	return nil
}

// Shutdown releases the Python interpreter used by all GymEnvs. No
// GymEnv can be used after Shutdown.
func Shutdown() {
	gogym.Close()
}
