// Package valuefn implements a state value function approximated by a
// single hidden layer neural network. Predictions are computed
// directly with gonum, while training builds a Gorgonia computational
// graph sized to the training batch.
package valuefn

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/golang/glog"
	"github.com/samuelfneumann/gotrpo/solver"
	"github.com/samuelfneumann/gotrpo/utils/matutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// MLP implements the value function
//
//	v(s) = w2ᵀ tanh(W1ᵀ [s; 1]) + b2
//
// Each call to Fit trains on the given batch together with the batch
// of the previous call, which smooths the value function over
// consecutive policies.
type MLP struct {
	obsDim int
	hidden int

	w1 *mat.Dense // (obsDim + 1) × hidden, last row is the bias
	w2 []float64  // hidden
	b2 float64

	config Config

	prevObs     *mat.Dense
	prevTargets []float64
}

// NewMLP creates a new MLP value function with Glorot uniform
// initialized weights
func NewMLP(obsDim int, config Config, seed uint64) (*MLP, error) {
	if obsDim < 1 {
		return nil, fmt.Errorf("newMLP: observation dimension must be "+
			"positive \n\thave(%v)", obsDim)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("newMLP: %v", err)
	}

	src := rand.NewSource(seed)
	glorot := func(fanIn, fanOut int) distuv.Uniform {
		bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
		return distuv.Uniform{Min: -bound, Max: bound, Src: src}
	}

	w1 := mat.NewDense(obsDim+1, config.Hidden, nil)
	init1 := glorot(obsDim, config.Hidden)
	for i := 0; i < obsDim; i++ {
		for j := 0; j < config.Hidden; j++ {
			w1.Set(i, j, init1.Rand())
		}
	}

	w2 := make([]float64, config.Hidden)
	init2 := glorot(config.Hidden, 1)
	for i := range w2 {
		w2[i] = init2.Rand()
	}

	return &MLP{
		obsDim: obsDim,
		hidden: config.Hidden,
		w1:     w1,
		w2:     w2,
		config: config,
	}, nil
}

// features appends a column of ones to obs
func (m *MLP) features(obs mat.Matrix) *mat.Dense {
	r, c := obs.Dims()
	if c != m.obsDim {
		panic(fmt.Sprintf("features: illegal observation size "+
			"\n\twant(%v)\n\thave(%v)", m.obsDim, c))
	}
	x := mat.NewDense(r, c+1, nil)
	x.Slice(0, r, 0, c).(*mat.Dense).Copy(obs)
	for i := 0; i < r; i++ {
		x.Set(i, c, 1.0)
	}
	return x
}

// Predict returns the predicted value of each row of obs
func (m *MLP) Predict(obs *mat.Dense) []float64 {
	x := m.features(obs)
	r, _ := x.Dims()

	h := mat.NewDense(r, m.hidden, nil)
	h.Mul(x, m.w1)
	h.Apply(func(_, _ int, v float64) float64 { return math.Tanh(v) }, h)

	out := mat.NewVecDense(r, nil)
	out.MulVec(h, mat.NewVecDense(m.hidden, m.w2))

	values := out.RawVector().Data
	for i := range values {
		values[i] += m.b2
	}
	return values
}

// ExplainedVariance returns 1 - Var(targets - predictions) / Var(targets)
func ExplainedVariance(predictions, targets []float64) float64 {
	residuals := make([]float64, len(targets))
	for i := range residuals {
		residuals[i] = targets[i] - predictions[i]
	}
	_, residualVar := stat.PopMeanVariance(residuals, nil)
	_, targetVar := stat.PopMeanVariance(targets, nil)
	return 1 - residualVar/targetVar
}

// FitKeys lists the keys of the statistics returned by Fit in the order
// they are logged
var FitKeys = []string{"ValFuncLoss", "ExplainedVarNew", "ExplainedVarOld"}

// Fit trains the value function toward targets, one per row of obs,
// for Epochs full-batch gradient steps on the mean squared error. The
// training set is the current batch stacked on top of the previous
// call's batch.
//
// The returned map holds ValFuncLoss, the mean squared error on the
// current batch after training, and ExplainedVarOld and
// ExplainedVarNew, the explained variance of the current batch
// before and after training.
func (m *MLP) Fit(obs *mat.Dense, targets []float64) (map[string]float64,
	error) {
	n, c := obs.Dims()
	if n == 0 || c != m.obsDim {
		return nil, fmt.Errorf("fit: illegal observation shape "+
			"\n\twant(N×%v)\n\thave(%v×%v)", m.obsDim, n, c)
	}
	if len(targets) != n {
		return nil, fmt.Errorf("fit: illegal number of targets "+
			"\n\twant(%v)\n\thave(%v)", n, len(targets))
	}

	explainedVarOld := ExplainedVariance(m.Predict(obs), targets)

	trainObs, trainTargets := obs, targets
	if m.prevObs != nil {
		var err error
		trainObs, err = matutils.VStack(obs, m.prevObs)
		if err != nil {
			return nil, fmt.Errorf("fit: could not stack previous batch: %v",
				err)
		}
		trainTargets = append(append([]float64(nil), targets...),
			m.prevTargets...)
	}

	if err := m.train(m.features(trainObs), trainTargets); err != nil {
		return nil, fmt.Errorf("fit: %v", err)
	}
	m.prevObs = mat.DenseCopyOf(obs)
	m.prevTargets = append([]float64(nil), targets...)

	predictions := m.Predict(obs)
	loss := 0.0
	for i, p := range predictions {
		loss += (p - targets[i]) * (p - targets[i])
	}
	loss /= float64(n)

	return map[string]float64{
		"ValFuncLoss":     loss,
		"ExplainedVarNew": ExplainedVariance(predictions, targets),
		"ExplainedVarOld": explainedVarOld,
	}, nil
}

// train builds the computational graph for a batch of features x and
// runs the configured number of solver steps on it
func (m *MLP) train(x *mat.Dense, targets []float64) error {
	n, features := x.Dims()
	g := G.NewGraph()

	input := G.NewMatrix(g, tensor.Float64,
		G.WithShape(n, features),
		G.WithName("input"),
		G.WithValue(tensor.New(
			tensor.WithShape(n, features),
			tensor.WithBacking(x.RawMatrix().Data),
		)),
	)
	target := G.NewVector(g, tensor.Float64,
		G.WithShape(n),
		G.WithName("target"),
		G.WithValue(tensor.New(
			tensor.WithShape(n),
			tensor.WithBacking(append([]float64(nil), targets...)),
		)),
	)

	w1 := G.NewMatrix(g, tensor.Float64,
		G.WithShape(features, m.hidden),
		G.WithName("w1"),
		G.WithValue(tensor.New(
			tensor.WithShape(features, m.hidden),
			tensor.WithBacking(mat.DenseCopyOf(m.w1).RawMatrix().Data),
		)),
	)
	w2 := G.NewVector(g, tensor.Float64,
		G.WithShape(m.hidden),
		G.WithName("w2"),
		G.WithValue(tensor.New(
			tensor.WithShape(m.hidden),
			tensor.WithBacking(append([]float64(nil), m.w2...)),
		)),
	)
	b2 := G.NewScalar(g, tensor.Float64, G.WithName("b2"),
		G.WithValue(m.b2))
	learnables := G.Nodes{w1, w2, b2}

	hidden := G.Must(G.Tanh(G.Must(G.Mul(input, w1))))
	prediction := G.Must(G.Mul(hidden, w2))
	prediction = G.Must(G.Add(prediction, b2))

	loss := G.Must(G.Sub(prediction, target))
	loss = G.Must(G.Square(loss))
	loss = G.Must(G.Mean(loss))
	var lossVal G.Value
	G.Read(loss, &lossVal)

	if _, err := G.Grad(loss, learnables...); err != nil {
		return fmt.Errorf("train: could not compute gradient: %v", err)
	}

	vm := G.NewTapeMachine(g, G.BindDualValues(learnables...))
	defer vm.Close()

	// Solver state is tied to the nodes of this graph
	s := m.config.Solver.Fresh()
	for epoch := 0; epoch < m.config.Epochs; epoch++ {
		if err := vm.RunAll(); err != nil {
			return fmt.Errorf("train: epoch %d: %v", epoch, err)
		}
		if err := s.Step(G.NodesToValueGrads(learnables)); err != nil {
			return fmt.Errorf("train: epoch %d: could not step solver: %v",
				epoch, err)
		}
		vm.Reset()
	}
	if lossVal != nil {
		glog.V(1).Infof("train: value function training loss %v", lossVal)
	}

	copy(m.w1.RawMatrix().Data, w1.Value().Data().([]float64))
	copy(m.w2, w2.Value().Data().([]float64))
	m.b2 = scalarValue(b2.Value())

	if !matutils.AllFinite(m.w1) {
		return fmt.Errorf("train: non-finite weights after training")
	}
	return nil
}

func scalarValue(v G.Value) float64 {
	switch s := v.Data().(type) {
	case float64:
		return s
	case []float64:
		return s[0]
	default:
		panic(fmt.Sprintf("scalarValue: unexpected value type %T", s))
	}
}

// record is the serialized form of an MLP
type record struct {
	ObsDim int
	Hidden int
	Epochs int
	Solver []byte // JSON encoded solver.Solver
	W1     []float64
	W2     []float64
	B2     float64
}

// GobEncode implements the gob.GobEncoder interface. The previous
// batch is not encoded.
func (m *MLP) GobEncode() ([]byte, error) {
	s, err := json.Marshal(m.config.Solver)
	if err != nil {
		return nil, fmt.Errorf("gobencode: could not encode solver: %v", err)
	}

	r := record{
		ObsDim: m.obsDim,
		Hidden: m.hidden,
		Epochs: m.config.Epochs,
		Solver: s,
		W1:     mat.DenseCopyOf(m.w1).RawMatrix().Data,
		W2:     m.w2,
		B2:     m.b2,
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode value "+
			"function: %v", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface
func (m *MLP) GobDecode(in []byte) error {
	var r record
	if err := gob.NewDecoder(bytes.NewReader(in)).Decode(&r); err != nil {
		return fmt.Errorf("gobdecode: could not decode value function: %v",
			err)
	}
	if len(r.W1) != (r.ObsDim+1)*r.Hidden || len(r.W2) != r.Hidden {
		return fmt.Errorf("gobdecode: corrupt value function of size "+
			"%v×%v", r.ObsDim, r.Hidden)
	}

	s := &solver.Solver{}
	if err := json.Unmarshal(r.Solver, s); err != nil {
		return fmt.Errorf("gobdecode: could not decode solver: %v", err)
	}

	m.obsDim = r.ObsDim
	m.hidden = r.Hidden
	m.w1 = mat.NewDense(r.ObsDim+1, r.Hidden, r.W1)
	m.w2 = r.W2
	m.b2 = r.B2
	m.config = Config{Hidden: r.Hidden, Epochs: r.Epochs, Solver: s}
	m.prevObs = nil
	m.prevTargets = nil
	return nil
}

// Save saves the value function to a file
func (m *MLP) Save(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("save: could not create file: %v", err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(m); err != nil {
		return fmt.Errorf("save: could not encode value function: %v", err)
	}
	return nil
}

// Load loads a value function previously saved with Save
func Load(filename string) (*MLP, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("load: could not open file: %v", err)
	}
	defer file.Close()

	m := &MLP{}
	if err := gob.NewDecoder(file).Decode(m); err != nil {
		return nil, fmt.Errorf("load: could not decode value function: %v",
			err)
	}
	return m, nil
}
