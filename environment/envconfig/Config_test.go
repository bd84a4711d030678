package envconfig

import (
	"testing"

	"github.com/samuelfneumann/gotrpo/environment/walker"
	"gonum.org/v1/gonum/mat"
)

func TestCreateWalker(t *testing.T) {
	c := NewConfig(walker.Name, 10, 0.99)
	if c.Gym() {
		t.Fatalf("%v should not be a gym environment", walker.Name)
	}

	e, step, err := c.Create(3)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if !step.First() {
		t.Errorf("first step should have type First, have %v", step.StepType)
	}
	if e.ObservationSpec().Dims() != walker.ObsDims {
		t.Errorf("observation dims \n\twant(%v)\n\thave(%v)", walker.ObsDims,
			e.ObservationSpec().Dims())
	}

	a := mat.NewVecDense(e.ActionSpec().Dims(), nil)
	steps := 0
	for done := false; !done && steps < 20; steps++ {
		if _, done, err = e.Step(a); err != nil {
			t.Fatal(err)
		}
	}
	if steps > 10 {
		t.Errorf("episode should be cut off after 10 steps, ran %v", steps)
	}
}

func TestMakeWalker(t *testing.T) {
	e, err := Make(walker.Name, 0.995, 0)
	if err != nil {
		t.Fatal(err)
	}
	if e.ActionSpec().Dims() != walker.ActionDims {
		t.Errorf("action dims \n\twant(%v)\n\thave(%v)", walker.ActionDims,
			e.ActionSpec().Dims())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"no name", NewConfig("", 0, 0.99)},
		{"negative discount", NewConfig(walker.Name, 0, -0.1)},
		{"large discount", NewConfig(walker.Name, 0, 1.1)},
		{"gym cutoff", NewConfig("Hopper-v4", 100, 0.99)},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if err := test.config.Validate(); err == nil {
				t.Error("expected an error")
			}
			if _, _, err := test.config.Create(0); err == nil {
				t.Error("expected create to fail")
			}
		})
	}
}
