// Package models holds the estimators fitted per flux variable: ordinary
// least squares, a climatological mean, transformer pipelines, and the named
// registry the CLI picks them from.
package models

import (
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/Noofbiz/fluxbench/frame"
)

var (
	// ErrNotFitted is returned by Predict before Fit.
	ErrNotFitted = errors.New("models: estimator is not fitted")
	// ErrNoRows is returned when fitting on an empty table.
	ErrNoRows = errors.New("models: no training rows")
)

// Estimator is a single-target regression model. Estimators read the numeric
// columns of X and ignore any grouping key.
type Estimator interface {
	Fit(X *frame.Frame, y []float64) error
	Predict(X *frame.Frame) ([]float64, error)
	fmt.Stringer
}

func checkRows(X *frame.Frame, y []float64) error {
	if X.Len() != len(y) {
		return fmt.Errorf("%w: %d rows but %d targets", frame.ErrLength, X.Len(), len(y))
	}
	if len(y) == 0 {
		return ErrNoRows
	}
	return nil
}

// Linear is an ordinary least squares regression with an intercept.
type Linear struct {
	// Features restricts the fit to these columns. Empty means every numeric
	// column of the training table.
	Features []string

	columns   []string
	intercept float64
	coef      []float64
}

// NewLinear creates a linear regression over the given features.
func NewLinear(features ...string) *Linear {
	return &Linear{Features: features}
}

func (l *Linear) design(X *frame.Frame) (*frame.Frame, error) {
	if len(l.Features) == 0 && l.columns == nil {
		return X, nil
	}
	cols := l.columns
	if cols == nil {
		cols = l.Features
	}
	return X.Select(cols...)
}

// Fit solves the least squares problem on mean-centred columns, so the
// intercept is the target mean less the slopes times the column means. A
// rank-deficient system, such as one with a constant column, gets the
// minimum-norm solution.
func (l *Linear) Fit(X *frame.Frame, y []float64) error {
	if err := checkRows(X, y); err != nil {
		return err
	}
	l.columns = nil
	sel, err := l.design(X)
	if err != nil {
		return err
	}
	cols := sel.Columns()
	n, p := sel.Len(), len(cols)

	xMean := make([]float64, p)
	for j, c := range cols {
		v, _ := sel.Column(c)
		xMean[j] = stat.Mean(v, nil)
	}
	yMean := stat.Mean(y, nil)

	coef := make([]float64, p)
	if p > 0 {
		A := mat.NewDense(n, p, nil)
		for i, row := range sel.Rows() {
			for j, v := range row {
				A.Set(i, j, v-xMean[j])
			}
		}
		yc := make([]float64, n)
		for i, v := range y {
			yc[i] = v - yMean
		}
		beta, err := solve(A, mat.NewVecDense(n, yc))
		if err != nil {
			return err
		}
		copy(coef, beta)
	}

	l.columns = cols
	l.coef = coef
	l.intercept = yMean - floats.Dot(coef, xMean)
	return nil
}

// solve returns the minimum-norm least squares solution of A·x = b. Singular
// values below a relative cutoff are treated as zero.
func solve(A *mat.Dense, b *mat.VecDense) ([]float64, error) {
	n, p := A.Dims()
	var svd mat.SVD
	if !svd.Factorize(A, mat.SVDThin) {
		return nil, errors.New("models: least squares fit failed: SVD did not converge")
	}
	out := make([]float64, p)
	rank := svd.Rank(float64(max(n, p)) * eps)
	if rank == 0 {
		return out, nil
	}
	var sol mat.VecDense
	svd.SolveVecTo(&sol, b, rank)
	copy(out, sol.RawVector().Data)
	return out, nil
}

// eps is the float64 machine epsilon.
const eps = 0x1p-52

// Predict evaluates the fitted hyperplane. Rows containing NaN predict NaN.
func (l *Linear) Predict(X *frame.Frame) ([]float64, error) {
	if l.coef == nil {
		return nil, ErrNotFitted
	}
	sel, err := l.design(X)
	if err != nil {
		return nil, err
	}
	rows := sel.Rows()
	out := make([]float64, len(rows))
	for i, row := range rows {
		out[i] = l.intercept + floats.Dot(row, l.coef)
	}
	return out, nil
}

// Coefficients returns the intercept and per-column slopes.
func (l *Linear) Coefficients() (float64, map[string]float64) {
	out := make(map[string]float64, len(l.coef))
	for j, c := range l.columns {
		out[c] = l.coef[j]
	}
	return l.intercept, out
}

func (l *Linear) String() string {
	if len(l.Features) == 0 {
		return "LinearRegression()"
	}
	return fmt.Sprintf("LinearRegression(features=[%s])", strings.Join(l.Features, ", "))
}

// Mean predicts the mean of the training target everywhere.
type Mean struct {
	mean   float64
	fitted bool
}

func NewMean() *Mean { return &Mean{} }

func (m *Mean) Fit(X *frame.Frame, y []float64) error {
	if err := checkRows(X, y); err != nil {
		return err
	}
	m.mean = frame.NaNMean(y)
	m.fitted = true
	return nil
}

func (m *Mean) Predict(X *frame.Frame) ([]float64, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}
	out := make([]float64, X.Len())
	for i := range out {
		out[i] = m.mean
	}
	return out, nil
}

func (m *Mean) String() string { return "Mean()" }
