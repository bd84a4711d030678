// Package policy implements a linear Gaussian policy over continuous
// actions, trained with a KL-penalised surrogate objective.
package policy

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"os"

	"github.com/golang/glog"
	"github.com/samuelfneumann/gotrpo/utils/floatutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// Bounds on the adaptive KL penalty coefficient
	MinBeta = 1.0 / 35.0
	MaxBeta = 35.0

	// BetaRate multiplies or divides beta after an update whose KL
	// divergence strays from the target by more than a factor of 2
	BetaRate = 1.5
)

var log2Pi = math.Log(2 * math.Pi)

// Gaussian implements a multi-dimensional linear Gaussian policy with
// diagonal covariance. The mean of each action dimension is a linear
// function of the observation plus a bias, and the log standard
// deviation of each action dimension is a free parameter independent
// of the observation.
type Gaussian struct {
	obsDim int
	actDim int

	weights *mat.Dense // actDim × (obsDim + 1), last column is the bias
	logStd  []float64
	beta    float64

	config Config
	seed   uint64
	normal distuv.Normal
}

// NewGaussian creates a new Gaussian policy with zero mean weights
func NewGaussian(obsDim, actDim int, config Config,
	seed uint64) (*Gaussian, error) {
	if obsDim < 1 || actDim < 1 {
		return nil, fmt.Errorf("newGaussian: dimensions must be positive "+
			"\n\thave(obs=%v, act=%v)", obsDim, actDim)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("newGaussian: %v", err)
	}

	logStd := make([]float64, actDim)
	for i := range logStd {
		logStd[i] = config.InitLogStd
	}

	g := &Gaussian{
		obsDim:  obsDim,
		actDim:  actDim,
		weights: mat.NewDense(actDim, obsDim+1, nil),
		logStd:  logStd,
		beta:    config.Beta,
		config:  config,
	}
	g.Seed(seed)
	return g, nil
}

// Seed seeds the source used to sample actions
func (g *Gaussian) Seed(seed uint64) {
	g.seed = seed
	g.normal = distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(seed)}
}

// ObsDim returns the observation dimension
func (g *Gaussian) ObsDim() int { return g.obsDim }

// ActDim returns the action dimension
func (g *Gaussian) ActDim() int { return g.actDim }

// Beta returns the current KL penalty coefficient
func (g *Gaussian) Beta() float64 { return g.beta }

// LogStd returns a copy of the log standard deviations
func (g *Gaussian) LogStd() []float64 {
	return append([]float64(nil), g.logStd...)
}

// Mean returns the mean action for a single observation
func (g *Gaussian) Mean(obs []float64) []float64 {
	if len(obs) != g.obsDim {
		panic(fmt.Sprintf("mean: illegal observation size \n\twant(%v)"+
			"\n\thave(%v)", g.obsDim, len(obs)))
	}
	x := mat.NewVecDense(g.obsDim+1, append(append([]float64(nil), obs...),
		1.0))
	mean := mat.NewVecDense(g.actDim, nil)
	mean.MulVec(g.weights, x)
	return mean.RawVector().Data
}

// Sample samples an action for a single observation
func (g *Gaussian) Sample(obs []float64) []float64 {
	action := g.Mean(obs)
	for j := range action {
		action[j] += math.Exp(g.logStd[j]) * g.normal.Rand()
	}
	return action
}

// features appends a column of ones to obs
func (g *Gaussian) features(obs mat.Matrix) *mat.Dense {
	r, c := obs.Dims()
	if c != g.obsDim {
		panic(fmt.Sprintf("features: illegal observation size "+
			"\n\twant(%v)\n\thave(%v)", g.obsDim, c))
	}
	x := mat.NewDense(r, c+1, nil)
	x.Slice(0, r, 0, c).(*mat.Dense).Copy(obs)
	for i := 0; i < r; i++ {
		x.Set(i, c, 1.0)
	}
	return x
}

// means returns the N × actDim matrix of means for features x
func (g *Gaussian) means(x *mat.Dense) *mat.Dense {
	r, _ := x.Dims()
	mu := mat.NewDense(r, g.actDim, nil)
	mu.Mul(x, g.weights.T())
	return mu
}

// logProb returns the log density of each row of act
func logProb(mu, act *mat.Dense, logStd []float64) []float64 {
	r, c := act.Dims()
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		lp := -0.5 * float64(c) * log2Pi
		for j := 0; j < c; j++ {
			z := (act.At(i, j) - mu.At(i, j)) / math.Exp(logStd[j])
			lp -= logStd[j] + 0.5*z*z
		}
		out[i] = lp
	}
	return out
}

// LogProb returns the log density of each action in act, one per row,
// given the matching rows of obs
func (g *Gaussian) LogProb(obs, act *mat.Dense) []float64 {
	return logProb(g.means(g.features(obs)), act, g.logStd)
}

// klDivergence returns the mean over rows of KL(old || new) between
// diagonal Gaussians
func klDivergence(oldMu *mat.Dense, oldLogStd []float64, mu *mat.Dense,
	logStd []float64) float64 {
	r, c := mu.Dims()
	total := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			oldVar := math.Exp(2 * oldLogStd[j])
			variance := math.Exp(2 * logStd[j])
			diff := oldMu.At(i, j) - mu.At(i, j)
			total += logStd[j] - oldLogStd[j] +
				(oldVar+diff*diff)/(2*variance) - 0.5
		}
	}
	return total / float64(r)
}

// KL returns the mean KL divergence KL(old || g) over the observations
func (g *Gaussian) KL(obs *mat.Dense, old *Gaussian) float64 {
	return klDivergence(old.means(old.features(obs)), old.logStd,
		g.means(g.features(obs)), g.logStd)
}

// Entropy returns the differential entropy of the policy, which does
// not depend on the observation
func (g *Gaussian) Entropy() float64 {
	entropy := 0.0
	for _, s := range g.logStd {
		entropy += s + 0.5*(1+log2Pi)
	}
	return entropy
}

// Clone returns a deep copy of the policy
func (g *Gaussian) Clone() *Gaussian {
	clone := *g
	clone.weights = mat.DenseCopyOf(g.weights)
	clone.logStd = g.LogStd()
	clone.Seed(g.seed)
	return &clone
}

// objective holds the fixed quantities of a single update
type objective struct {
	x         *mat.Dense
	act       *mat.Dense
	adv       []float64
	oldMu     *mat.Dense
	oldLogStd []float64
	oldLogp   []float64
	klTarget  float64
	beta      float64
	eta       float64
}

// evaluate returns the loss and KL divergence at the current policy
// parameters, and the gradient of the loss with respect to the mean
// weights and the log standard deviations. The loss is
//
//	-mean(adv * ratio) + β KL + η max(0, KL - 2 KLTarget)²
//
// where ratio is the ratio of new to old action probabilities.
func (o objective) evaluate(g *Gaussian) (loss, kl float64, gradW *mat.Dense,
	gradS []float64) {
	mu := g.means(o.x)
	logp := logProb(mu, o.act, g.logStd)
	kl = klDivergence(o.oldMu, o.oldLogStd, mu, g.logStd)

	n := float64(len(o.adv))
	hinge := math.Max(0, kl-2*o.klTarget)
	penalty := o.beta + 2*o.eta*hinge

	gradMu := mat.NewDense(len(o.adv), g.actDim, nil)
	gradS = make([]float64, g.actDim)
	surrogate := 0.0
	for i, adv := range o.adv {
		ratio := math.Exp(logp[i] - o.oldLogp[i])
		surrogate += adv * ratio
		for j := 0; j < g.actDim; j++ {
			variance := math.Exp(2 * g.logStd[j])
			diff := o.act.At(i, j) - mu.At(i, j)
			drift := mu.At(i, j) - o.oldMu.At(i, j)
			oldVar := math.Exp(2 * o.oldLogStd[j])

			gradMu.Set(i, j, (-adv*ratio*diff+penalty*drift)/(variance*n))
			gradS[j] += -adv * ratio * (diff*diff/variance - 1) / n
			gradS[j] -= penalty * (oldVar + drift*drift) / (variance * n)
		}
	}
	for j := range gradS {
		gradS[j] += penalty
	}

	gradW = mat.NewDense(g.actDim, g.obsDim+1, nil)
	gradW.Mul(gradMu.T(), o.x)

	loss = -surrogate/n + o.beta*kl + o.eta*hinge*hinge
	return loss, kl, gradW, gradS
}

// UpdateKeys lists the keys of the statistics returned by Update in the
// order they are logged
var UpdateKeys = []string{"PolicyLoss", "PolicyEntropy", "KL", "Beta"}

// Update performs gradient descent on the KL-penalised surrogate loss
// for at most Epochs steps, stopping early if the KL divergence from
// the policy before the update exceeds 4 * KLTarget. Beta is then
// adapted: increased if the final KL divergence exceeds 2 * KLTarget
// and decreased if it is below KLTarget / 2.
//
// The returned map holds PolicyLoss, PolicyEntropy, KL, and Beta.
func (g *Gaussian) Update(obs, act *mat.Dense,
	adv []float64) (map[string]float64, error) {
	n, c := obs.Dims()
	if n == 0 || c != g.obsDim {
		return nil, fmt.Errorf("update: illegal observation shape "+
			"\n\twant(N×%v)\n\thave(%v×%v)", g.obsDim, n, c)
	}
	if r, c := act.Dims(); r != n || c != g.actDim {
		return nil, fmt.Errorf("update: illegal action shape "+
			"\n\twant(%v×%v)\n\thave(%v×%v)", n, g.actDim, r, c)
	}
	if len(adv) != n {
		return nil, fmt.Errorf("update: illegal number of advantages "+
			"\n\twant(%v)\n\thave(%v)", n, len(adv))
	}

	x := g.features(obs)
	oldMu := g.means(x)
	oldLogStd := g.LogStd()
	o := objective{
		x:         x,
		act:       act,
		adv:       adv,
		oldMu:     oldMu,
		oldLogStd: oldLogStd,
		oldLogp:   logProb(oldMu, act, oldLogStd),
		klTarget:  g.config.KLTarget,
		beta:      g.beta,
		eta:       g.config.Eta,
	}

	lr := g.config.LearningRate
	var loss, kl float64
	for e := 0; e < g.config.Epochs; e++ {
		var gradW *mat.Dense
		var gradS []float64
		loss, kl, gradW, gradS = o.evaluate(g)
		if kl > 4*o.klTarget {
			glog.V(1).Infof("update: early stop at epoch %d, KL %.4g", e, kl)
			break
		}

		g.weights.Apply(func(i, j int, v float64) float64 {
			return v - lr*gradW.At(i, j)
		}, g.weights)
		for j := range g.logStd {
			g.logStd[j] -= lr * gradS[j]
		}
	}
	loss, kl, _, _ = o.evaluate(g)

	if !floatutils.AllFinite(loss, kl) {
		return nil, fmt.Errorf("update: non-finite loss (%v) or KL (%v)",
			loss, kl)
	}

	if kl > 2*o.klTarget {
		g.beta = math.Min(MaxBeta, BetaRate*g.beta)
	} else if kl < o.klTarget/2 {
		g.beta = math.Max(MinBeta, g.beta/BetaRate)
	}

	return map[string]float64{
		"PolicyLoss":    loss,
		"PolicyEntropy": g.Entropy(),
		"KL":            kl,
		"Beta":          g.beta,
	}, nil
}

// record is the serialized form of a Gaussian
type record struct {
	ObsDim  int
	ActDim  int
	Weights []float64
	LogStd  []float64
	Beta    float64
	Config  Config
	Seed    uint64
}

// GobEncode implements the gob.GobEncoder interface
func (g *Gaussian) GobEncode() ([]byte, error) {
	r := record{
		ObsDim:  g.obsDim,
		ActDim:  g.actDim,
		Weights: mat.DenseCopyOf(g.weights).RawMatrix().Data,
		LogStd:  g.logStd,
		Beta:    g.beta,
		Config:  g.config,
		Seed:    g.seed,
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode policy: %v", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface
func (g *Gaussian) GobDecode(in []byte) error {
	var r record
	if err := gob.NewDecoder(bytes.NewReader(in)).Decode(&r); err != nil {
		return fmt.Errorf("gobdecode: could not decode policy: %v", err)
	}
	if len(r.Weights) != r.ActDim*(r.ObsDim+1) || len(r.LogStd) != r.ActDim {
		return fmt.Errorf("gobdecode: corrupt policy of size %v×%v",
			r.ObsDim, r.ActDim)
	}

	g.obsDim = r.ObsDim
	g.actDim = r.ActDim
	g.weights = mat.NewDense(r.ActDim, r.ObsDim+1, r.Weights)
	g.logStd = r.LogStd
	g.beta = r.Beta
	g.config = r.Config
	g.Seed(r.Seed)
	return nil
}

// Save saves the policy to a file
func (g *Gaussian) Save(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("save: could not create file: %v", err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(g); err != nil {
		return fmt.Errorf("save: could not encode policy: %v", err)
	}
	return nil
}

// Load loads a policy previously saved with Save
func Load(filename string) (*Gaussian, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("load: could not open file: %v", err)
	}
	defer file.Close()

	g := &Gaussian{}
	if err := gob.NewDecoder(file).Decode(g); err != nil {
		return nil, fmt.Errorf("load: could not decode policy: %v", err)
	}
	return g, nil
}
