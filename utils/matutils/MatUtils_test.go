package matutils

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestColMeanVar(t *testing.T) {
	m := mat.NewDense(4, 2, []float64{
		1, 10,
		2, 10,
		3, 10,
		4, 10,
	})
	means, vars := ColMeanVar(m)

	if !floats.EqualApprox(means, []float64{2.5, 10}, 1e-12) {
		t.Errorf("means: have %v", means)
	}
	if !floats.EqualApprox(vars, []float64{1.25, 0}, 1e-12) {
		t.Errorf("vars: have %v", vars)
	}
}

func TestVStack(t *testing.T) {
	a := mat.NewDense(1, 2, []float64{1, 2})
	b := mat.NewDense(2, 2, []float64{3, 4, 5, 6})

	s, err := VStack(a, b)
	if err != nil {
		t.Fatal(err)
	}
	want := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	if !mat.Equal(s, want) {
		t.Errorf("want %v have %v", mat.Formatted(want), mat.Formatted(s))
	}

	if _, err := VStack(a, mat.NewDense(1, 3, nil)); err == nil {
		t.Error("expected error stacking mismatched columns")
	}
	if _, err := VStack(); err == nil {
		t.Error("expected error stacking nothing")
	}
}

func TestAllFinite(t *testing.T) {
	if !AllFinite(mat.NewDense(2, 2, []float64{1, 2, 3, 4})) {
		t.Error("finite matrix reported non-finite")
	}
	if AllFinite(mat.NewDense(1, 2, []float64{1, math.NaN()})) {
		t.Error("NaN matrix reported finite")
	}
}
