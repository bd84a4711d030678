package policy

import (
	"math"
	"path/filepath"
	"testing"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

func randomDense(r, c int, seed uint64) *mat.Dense {
	src := rand.New(rand.NewSource(seed))
	data := make([]float64, r*c)
	for i := range data {
		data[i] = src.NormFloat64()
	}
	return mat.NewDense(r, c, data)
}

func newTestGaussian(t *testing.T, obsDim, actDim int) *Gaussian {
	t.Helper()
	g, err := NewGaussian(obsDim, actDim, DefaultConfig(), 1)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestNewGaussianInvalid(t *testing.T) {
	if _, err := NewGaussian(0, 1, DefaultConfig(), 0); err == nil {
		t.Error("expected error for zero observation dimension")
	}

	config := DefaultConfig()
	config.Epochs = 0
	if _, err := NewGaussian(2, 1, config, 0); err == nil {
		t.Error("expected error for zero epochs")
	}
}

func TestLogProb(t *testing.T) {
	g := newTestGaussian(t, 3, 2)
	g.weights = randomDense(2, 4, 3)
	g.logStd = []float64{-0.3, 0.2}

	obs := randomDense(5, 3, 4)
	act := randomDense(5, 2, 5)
	got := g.LogProb(obs, act)

	for i := 0; i < 5; i++ {
		mean := g.Mean(obs.RawRowView(i))
		want := 0.0
		for j := 0; j < 2; j++ {
			n := distuv.Normal{Mu: mean[j], Sigma: math.Exp(g.logStd[j])}
			want += n.LogProb(act.At(i, j))
		}
		if !scalar.EqualWithinAbs(got[i], want, 1e-10) {
			t.Errorf("row %d: \n\twant(%v)\n\thave(%v)", i, want, got[i])
		}
	}
}

func TestEntropy(t *testing.T) {
	g := newTestGaussian(t, 2, 3)
	g.logStd = []float64{-1, 0, 0.5}

	want := 0.0
	for _, s := range g.logStd {
		want += distuv.Normal{Mu: 0, Sigma: math.Exp(s)}.Entropy()
	}
	if !scalar.EqualWithinAbs(g.Entropy(), want, 1e-10) {
		t.Errorf("\n\twant(%v)\n\thave(%v)", want, g.Entropy())
	}
}

func TestKL(t *testing.T) {
	g := newTestGaussian(t, 2, 2)
	obs := randomDense(4, 2, 1)

	if kl := g.KL(obs, g.Clone()); !scalar.EqualWithinAbs(kl, 0, 1e-12) {
		t.Errorf("KL with itself: \n\twant(%v)\n\thave(%v)", 0.0, kl)
	}

	// Shifting the mean by δ with unit variance gives KL = δ²/2 per dim
	old := g.Clone()
	g.logStd = []float64{0, 0}
	old.logStd = []float64{0, 0}
	g.weights.Set(0, 2, 0.5)
	want := 0.5 * 0.5 * 0.5
	if kl := g.KL(obs, old); !scalar.EqualWithinAbs(kl, want, 1e-12) {
		t.Errorf("shifted mean: \n\twant(%v)\n\thave(%v)", want, kl)
	}
}

// The analytic gradients of the surrogate loss must match central
// finite differences.
func TestGradient(t *testing.T) {
	const (
		obsDim = 3
		actDim = 2
		n      = 7
		h      = 1e-6
	)

	g := newTestGaussian(t, obsDim, actDim)
	g.weights = randomDense(actDim, obsDim+1, 10)
	g.logStd = []float64{-0.4, 0.1}
	x := g.features(randomDense(n, obsDim, 11))
	act := randomDense(n, actDim, 12)
	adv := randomDense(1, n, 13).RawRowView(0)

	oldMu := g.means(x)
	oldLogStd := g.LogStd()
	o := objective{
		x:         x,
		act:       act,
		adv:       adv,
		oldMu:     oldMu,
		oldLogStd: oldLogStd,
		oldLogp:   logProb(oldMu, act, oldLogStd),
		klTarget:  1e-4,
		beta:      0.7,
		eta:       5,
	}

	// Move away from the old policy so the KL terms are active
	g.weights.Apply(func(i, j int, v float64) float64 {
		return v + 0.1*float64(i-j)
	}, g.weights)
	g.logStd[0] += 0.2

	_, kl, gradW, gradS := o.evaluate(g)
	if kl <= 2*o.klTarget {
		t.Fatalf("KL %v does not activate hinge penalty", kl)
	}

	for i := 0; i < actDim; i++ {
		for j := 0; j < obsDim+1; j++ {
			v := g.weights.At(i, j)
			g.weights.Set(i, j, v+h)
			up, _, _, _ := o.evaluate(g)
			g.weights.Set(i, j, v-h)
			down, _, _, _ := o.evaluate(g)
			g.weights.Set(i, j, v)

			want := (up - down) / (2 * h)
			if !scalar.EqualWithinAbsOrRel(gradW.At(i, j), want, 1e-6, 1e-5) {
				t.Errorf("weight (%d, %d): \n\twant(%v)\n\thave(%v)", i, j,
					want, gradW.At(i, j))
			}
		}
	}

	for j := 0; j < actDim; j++ {
		v := g.logStd[j]
		g.logStd[j] = v + h
		up, _, _, _ := o.evaluate(g)
		g.logStd[j] = v - h
		down, _, _, _ := o.evaluate(g)
		g.logStd[j] = v

		want := (up - down) / (2 * h)
		if !scalar.EqualWithinAbsOrRel(gradS[j], want, 1e-6, 1e-5) {
			t.Errorf("log std %d: \n\twant(%v)\n\thave(%v)", j, want,
				gradS[j])
		}
	}
}

func TestUpdateImprovesAdvantagedActions(t *testing.T) {
	config := DefaultConfig()
	config.LearningRate = 0.05
	config.KLTarget = 0.01
	g, err := NewGaussian(1, 1, config, 0)
	if err != nil {
		t.Fatal(err)
	}

	const n = 20
	obs := mat.NewDense(n, 1, nil)
	act := mat.NewDense(n, 1, nil)
	adv := make([]float64, n)
	for i := 0; i < n; i++ {
		obs.Set(i, 0, 1)
		if i%2 == 0 {
			act.Set(i, 0, 1)
			adv[i] = 1
		} else {
			act.Set(i, 0, -1)
			adv[i] = -1
		}
	}

	before := g.LogProb(obs, act)
	stats, err := g.Update(obs, act, adv)
	if err != nil {
		t.Fatal(err)
	}
	after := g.LogProb(obs, act)

	if after[0] <= before[0] {
		t.Errorf("log probability of advantaged action did not increase: "+
			"\n\tbefore(%v)\n\tafter(%v)", before[0], after[0])
	}
	if after[1] >= before[1] {
		t.Errorf("log probability of disadvantaged action did not "+
			"decrease: \n\tbefore(%v)\n\tafter(%v)", before[1], after[1])
	}

	for _, key := range UpdateKeys {
		if _, ok := stats[key]; !ok {
			t.Errorf("missing statistic %s", key)
		}
	}
	if stats["KL"] <= 0 {
		t.Errorf("KL should be positive after a step: %v", stats["KL"])
	}
}

func TestBetaAdaptation(t *testing.T) {
	obs := randomDense(10, 2, 1)
	act := randomDense(10, 1, 2)
	adv := randomDense(1, 10, 3).RawRowView(0)

	// A negligible step leaves KL far below the target
	config := DefaultConfig()
	config.LearningRate = 1e-12
	g, err := NewGaussian(2, 1, config, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.Update(obs, act, adv); err != nil {
		t.Fatal(err)
	}
	want := config.Beta / BetaRate
	if !scalar.EqualWithinAbs(g.Beta(), want, 1e-12) {
		t.Errorf("decrease: \n\twant(%v)\n\thave(%v)", want, g.Beta())
	}

	// A large step overshoots the target
	config.LearningRate = 1
	config.Epochs = 1
	g, err = NewGaussian(2, 1, config, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.Update(obs, act, adv); err != nil {
		t.Fatal(err)
	}
	want = config.Beta * BetaRate
	if !scalar.EqualWithinAbs(g.Beta(), want, 1e-12) {
		t.Errorf("increase: \n\twant(%v)\n\thave(%v)", want, g.Beta())
	}
}

func TestUpdateInvalid(t *testing.T) {
	g := newTestGaussian(t, 2, 1)
	obs := mat.NewDense(3, 2, nil)

	if _, err := g.Update(obs, mat.NewDense(2, 1, nil),
		[]float64{1, 2, 3}); err == nil {
		t.Error("expected error for action rows")
	}
	if _, err := g.Update(obs, mat.NewDense(3, 1, nil),
		[]float64{1, 2}); err == nil {
		t.Error("expected error for advantage length")
	}
	if _, err := g.Update(mat.NewDense(3, 4, nil), mat.NewDense(3, 1, nil),
		[]float64{1, 2, 3}); err == nil {
		t.Error("expected error for observation width")
	}
}

func TestSampleSeeded(t *testing.T) {
	g1 := newTestGaussian(t, 2, 2)
	g2 := newTestGaussian(t, 2, 2)
	obs := []float64{0.3, -0.2}

	for i := 0; i < 10; i++ {
		a1, a2 := g1.Sample(obs), g2.Sample(obs)
		if !floats.Equal(a1, a2) {
			t.Fatalf("sample %d: \n\twant(%v)\n\thave(%v)", i, a1, a2)
		}
	}

	g2.Seed(99)
	if floats.Equal(g1.Sample(obs), g2.Sample(obs)) {
		t.Error("differently seeded policies sampled the same action")
	}
}

func TestSaveLoad(t *testing.T) {
	g := newTestGaussian(t, 3, 2)
	g.weights = randomDense(2, 4, 7)
	g.logStd = []float64{-0.1, 0.3}
	g.beta = 2.25

	filename := filepath.Join(t.TempDir(), "policy.gob")
	if err := g.Save(filename); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(filename)
	if err != nil {
		t.Fatal(err)
	}

	if loaded.ObsDim() != 3 || loaded.ActDim() != 2 {
		t.Errorf("dims: \n\twant(%v, %v)\n\thave(%v, %v)", 3, 2,
			loaded.ObsDim(), loaded.ActDim())
	}
	if !mat.Equal(loaded.weights, g.weights) {
		t.Errorf("weights: \n\twant(%v)\n\thave(%v)", g.weights,
			loaded.weights)
	}
	if !floats.Equal(loaded.LogStd(), g.LogStd()) {
		t.Errorf("log std: \n\twant(%v)\n\thave(%v)", g.LogStd(),
			loaded.LogStd())
	}
	if loaded.Beta() != 2.25 {
		t.Errorf("beta: \n\twant(%v)\n\thave(%v)", 2.25, loaded.Beta())
	}

	obs := []float64{1, 2, 3}
	g.Seed(5)
	loaded.Seed(5)
	if !floats.Equal(g.Sample(obs), loaded.Sample(obs)) {
		t.Error("loaded policy samples differ")
	}
}
