package gym_test

import (
	"testing"

	"github.com/samuelfneumann/gotrpo/environment/gym"
	"gonum.org/v1/gonum/mat"
)

func TestMuJoCo(t *testing.T) {
	defer gym.Shutdown()

	envs := []string{
		gym.HopperV4,
		gym.Walker2dV4,
		gym.HalfCheetahV4,
		gym.AntV4,
		gym.HumanoidV4,
	}

	for _, envName := range envs {
		env, step, err := gym.New(envName, 0.99, 123)
		if err != nil {
			t.Skipf("gym environment %v unavailable: %v", envName, err)
		}
		if !step.First() || step.Observation == nil {
			t.Errorf("env %v: new should return the first timestep", envName)
		}

		obsDims := env.ObservationSpec().Dims()
		if step.Observation.Len() != obsDims {
			t.Errorf("env %v: observation size \n\twant(%v)\n\thave(%v)",
				envName, obsDims, step.Observation.Len())
		}

		// Take a bunch of steps in the environment to ensure it works
		size := env.ActionSpec().Dims()
		for i := 0; i < 15; i++ {
			next, done, err := env.Step(mat.NewVecDense(size, nil))
			if err != nil {
				t.Fatalf("env %v: %v", envName, err)
			}
			if next.Number != i+1 {
				t.Errorf("env %v: step number \n\twant(%v)\n\thave(%v)",
					envName, i+1, next.Number)
			}

			if done {
				if _, err := env.Reset(); err != nil {
					t.Fatalf("env %v: %v", envName, err)
				}
				break
			}
		}

		if err := env.Close(); err != nil {
			t.Errorf("env %v: %v", envName, err)
		}
	}
}
