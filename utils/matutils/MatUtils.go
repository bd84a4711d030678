// Package matutils implements utility function for working with mat.Matrix
// structs
package matutils

import (
	"fmt"

	"github.com/samuelfneumann/gotrpo/utils/floatutils"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ColMeanVar computes the mean and population variance (dividing by N,
// not N-1) of each column of a matrix.
func ColMeanVar(matrix mat.Matrix) (means, vars []float64) {
	r, c := matrix.Dims()
	means = make([]float64, c)
	vars = make([]float64, c)

	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, matrix)
		mean, variance := stat.PopMeanVariance(col, nil)
		means[j] = mean
		vars[j] = variance
	}
	return means, vars
}

// VStack concatenates matrices with the same number of columns along
// the rows, preserving order.
func VStack(matrices ...*mat.Dense) (*mat.Dense, error) {
	if len(matrices) == 0 {
		return nil, fmt.Errorf("vstack: no matrices to stack")
	}

	_, cols := matrices[0].Dims()
	rows := 0
	for i, m := range matrices {
		r, c := m.Dims()
		if c != cols {
			return nil, fmt.Errorf("vstack: matrix %d has %d columns "+
				"\n\twant(%v)\n\thave(%v)", i, c, cols, c)
		}
		rows += r
	}

	backing := make([]float64, 0, rows*cols)
	for _, m := range matrices {
		r, _ := m.Dims()
		for i := 0; i < r; i++ {
			backing = append(backing, m.RawRowView(i)...)
		}
	}
	return mat.NewDense(rows, cols, backing), nil
}

// AllFinite returns whether every element of a matrix is finite
func AllFinite(matrix mat.Matrix) bool {
	r, c := matrix.Dims()
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, matrix)
		if !floatutils.AllFinite(row...) {
			return false
		}
	}
	return true
}
