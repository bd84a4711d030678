// Package scaler implements a running estimate of the per-dimension
// mean and variance of observations, used to normalize observations
// before they are passed to a policy.
package scaler

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"os"

	"github.com/samuelfneumann/gotrpo/utils/matutils"
	"gonum.org/v1/gonum/mat"
)

// Scaler tracks the mean and variance of each observation dimension
// over an unbounded stream of arbitrarily sized batches. Batches are
// merged using the parallel combination of Chan et al.:
//
//	δ  = μ_b - μ_a
//	μ  = μ_a + δ n / (m + n)
//	σ² = (m σ²_a + n σ²_b) / (m + n) + δ² m n / (m + n)²
//
// which stays accurate when the means are large relative to the
// spread. σ² is floored at zero.
type Scaler struct {
	dims        int
	means       []float64
	vars        []float64
	count       int
	initialized bool
}

// New returns a new Scaler for observations with dims dimensions
func New(dims int) *Scaler {
	return &Scaler{
		dims:  dims,
		means: make([]float64, dims),
		vars:  make([]float64, dims),
	}
}

// Update merges a batch of observations, one per row, into the running
// statistics. The first batch sets the statistics directly.
func (s *Scaler) Update(batch mat.Matrix) error {
	n, c := batch.Dims()
	if n == 0 {
		return &ScalerError{"update", fmt.Errorf("%w: empty batch",
			ErrInvalidInput)}
	}
	if c != s.dims {
		return &ScalerError{"update", fmt.Errorf("%w: illegal observation "+
			"size \n\twant(%v)\n\thave(%v)", ErrInvalidInput, s.dims, c)}
	}
	if !matutils.AllFinite(batch) {
		return &ScalerError{"update", fmt.Errorf("%w: non-finite "+
			"observation", ErrInvalidInput)}
	}

	batchMeans, batchVars := matutils.ColMeanVar(batch)
	if !s.initialized {
		s.means = batchMeans
		s.vars = batchVars
		s.count = n
		s.initialized = true
		return nil
	}

	m := float64(s.count)
	nf := float64(n)
	for i := 0; i < s.dims; i++ {
		delta := batchMeans[i] - s.means[i]
		vars := (m*s.vars[i]+nf*batchVars[i])/(m+nf) +
			delta*delta*m*nf/((m+nf)*(m+nf))
		s.vars[i] = math.Max(0.0, vars)
		s.means[i] += delta * nf / (m + nf)
	}
	s.count += n

	return nil
}

// Get returns the scale and offset with which to normalize an
// observation o as (o - offset) * scale. The scale of dimension i is
// 1 / (σ_i + 0.1) / 3 and the offset is μ_i.
func (s *Scaler) Get() (scale, offset []float64) {
	scale = make([]float64, s.dims)
	offset = make([]float64, s.dims)
	for i := range scale {
		scale[i] = 1 / (math.Sqrt(s.vars[i]) + 0.1) / 3
	}
	copy(offset, s.means)
	return scale, offset
}

// GetWithTimeFeature returns the scale and offset as Get does, but
// with the last dimension left untouched (scale 1, offset 0). The last
// observation dimension holds the elapsed episode time rather than a
// physical quantity.
func (s *Scaler) GetWithTimeFeature() (scale, offset []float64) {
	scale, offset = s.Get()
	if s.dims > 0 {
		scale[s.dims-1] = 1.0
		offset[s.dims-1] = 0.0
	}
	return scale, offset
}

// Means returns a copy of the running means
func (s *Scaler) Means() []float64 {
	return append([]float64(nil), s.means...)
}

// Vars returns a copy of the running variances
func (s *Scaler) Vars() []float64 {
	return append([]float64(nil), s.vars...)
}

// Count returns the number of observations seen
func (s *Scaler) Count() int {
	return s.count
}

// Dims returns the number of observation dimensions
func (s *Scaler) Dims() int {
	return s.dims
}

// Initialized returns whether at least one batch has been seen
func (s *Scaler) Initialized() bool {
	return s.initialized
}

// record is the serialized form of a Scaler
type record struct {
	Vars  []float64
	Means []float64
	Count int
}

// GobEncode implements the gob.GobEncoder interface
func (s *Scaler) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	err := enc.Encode(record{Vars: s.vars, Means: s.means, Count: s.count})
	if err != nil {
		return nil, fmt.Errorf("gobencode: could not encode scaler: %v", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface. A decoded Scaler
// is initialized, so that the next Update merges with the decoded
// statistics.
func (s *Scaler) GobDecode(in []byte) error {
	var r record
	dec := gob.NewDecoder(bytes.NewReader(in))
	if err := dec.Decode(&r); err != nil {
		return fmt.Errorf("gobdecode: could not decode scaler: %v", err)
	}
	if len(r.Vars) != len(r.Means) {
		return fmt.Errorf("gobdecode: %d variances for %d means",
			len(r.Vars), len(r.Means))
	}

	s.dims = len(r.Means)
	s.means = r.Means
	s.vars = r.Vars
	s.count = r.Count
	s.initialized = true
	return nil
}

// Save saves the Scaler to a file
func (s *Scaler) Save(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("save: could not create file: %v", err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(s); err != nil {
		return fmt.Errorf("save: could not encode scaler: %v", err)
	}
	return nil
}

// Load loads a Scaler previously saved with Save
func Load(filename string) (*Scaler, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("load: could not open file: %v", err)
	}
	defer file.Close()

	s := &Scaler{}
	if err := gob.NewDecoder(file).Decode(s); err != nil {
		return nil, fmt.Errorf("load: could not decode scaler: %v", err)
	}
	return s, nil
}
