package models

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noofbiz/fluxbench/frame"
	"github.com/Noofbiz/fluxbench/simple"
	"github.com/Noofbiz/fluxbench/transforms"
)

func index(n int) []time.Time {
	start := time.Date(2004, 3, 1, 0, 0, 0, 0, time.UTC)
	idx := make([]time.Time, n)
	for i := range idx {
		idx[i] = start.Add(time.Duration(i) * 30 * time.Minute)
	}
	return idx
}

func table(t *testing.T, cols map[string][]float64, order ...string) *frame.Frame {
	t.Helper()
	f := frame.New(index(len(cols[order[0]])))
	for _, c := range order {
		require.NoError(t, f.Set(c, cols[c]))
	}
	return f
}

func TestLinearRecoversCoefficients(t *testing.T) {
	sw := []float64{0, 100, 200, 300, 400, 500}
	ta := []float64{270, 275, 271, 280, 290, 285}
	y := make([]float64, len(sw))
	for i := range y {
		y[i] = 3 + 0.5*sw[i] - 2*ta[i]
	}
	X := table(t, map[string][]float64{"SWdown": sw, "Tair": ta}, "SWdown", "Tair")

	l := NewLinear()
	require.NoError(t, l.Fit(X, y))
	b0, coef := l.Coefficients()
	assert.InDelta(t, 3, b0, 1e-6)
	assert.InDelta(t, 0.5, coef["SWdown"], 1e-6)
	assert.InDelta(t, -2, coef["Tair"], 1e-6)

	pred, err := l.Predict(X)
	require.NoError(t, err)
	assert.InDeltaSlice(t, y, pred, 1e-6)
}

func TestLinearRankDeficient(t *testing.T) {
	sw := []float64{1, 2, 3, 4, 5, 6}
	X := table(t, map[string][]float64{
		"SWdown": sw,
		"Rainf":  {0, 0, 0, 0, 0, 0},
	}, "SWdown", "Rainf")
	y := make([]float64, len(sw))
	for i := range y {
		y[i] = 4 + 3*sw[i]
	}

	l := NewLinear()
	require.NoError(t, l.Fit(X, y))
	b0, coef := l.Coefficients()
	assert.InDelta(t, 4, b0, 1e-6)
	assert.InDelta(t, 3, coef["SWdown"], 1e-6)
	assert.InDelta(t, 0, coef["Rainf"], 1e-9)

	// Duplicated columns share the slope evenly.
	dup := table(t, map[string][]float64{"a": sw, "b": sw}, "a", "b")
	require.NoError(t, l.Fit(dup, y))
	_, coef = l.Coefficients()
	assert.InDelta(t, 1.5, coef["a"], 1e-6)
	assert.InDelta(t, 1.5, coef["b"], 1e-6)
	pred, err := l.Predict(dup)
	require.NoError(t, err)
	assert.InDeltaSlice(t, y, pred, 1e-6)
}

func TestLinearFeatureSubset(t *testing.T) {
	sw := []float64{1, 2, 3, 4}
	X := table(t, map[string][]float64{
		"SWdown": sw,
		"Wind":   {9, 1, 7, 3},
	}, "SWdown", "Wind")
	y := []float64{2, 4, 6, 8}

	l := NewLinear("SWdown")
	require.NoError(t, l.Fit(X, y))
	_, coef := l.Coefficients()
	assert.Len(t, coef, 1)
	assert.InDelta(t, 2, coef["SWdown"], 1e-6)
	assert.Equal(t, "LinearRegression(features=[SWdown])", l.String())

	noSW := table(t, map[string][]float64{"Wind": {1}}, "Wind")
	_, err := l.Predict(noSW)
	assert.ErrorIs(t, err, frame.ErrNoColumn)
}

func TestLinearErrors(t *testing.T) {
	X := table(t, map[string][]float64{"a": {1, 2}}, "a")
	_, err := NewLinear().Predict(X)
	assert.ErrorIs(t, err, ErrNotFitted)
	assert.ErrorIs(t, NewLinear().Fit(X, []float64{1}), frame.ErrLength)
	assert.ErrorIs(t, NewLinear().Fit(frame.New(nil), nil), ErrNoRows)
}

func TestMean(t *testing.T) {
	X := table(t, map[string][]float64{"a": {1, 2, 3}}, "a")
	m := NewMean()
	_, err := m.Predict(X)
	assert.ErrorIs(t, err, ErrNotFitted)
	require.NoError(t, m.Fit(X, []float64{1, math.NaN(), 5}))
	pred, err := m.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 3, 3}, pred)
}

func TestPipelineDropsLaggedBoundaryRows(t *testing.T) {
	sw := []float64{1, 3, 4, 10, 11, 15}
	X := table(t, map[string][]float64{"SWdown": sw}, "SWdown")
	require.NoError(t, X.SetKey(frame.SiteKey, []string{"a", "a", "a", "b", "b", "b"}))
	// y depends on the current and the previous value.
	y := []float64{math.NaN(), 3 + 1, 4 + 3, math.NaN(), 11 + 10, 15 + 11}

	lag, err := transforms.NewLag(1, "30min")
	require.NoError(t, err)
	cleaner := transforms.NewCleaner(true)
	p := NewPipeline(NewLinear(), lag, cleaner)
	require.NoError(t, p.Fit(X, y))
	assert.Equal(t, transforms.Fitted, lag.State())
	assert.Equal(t, transforms.Fitted, cleaner.State())

	_, coef := p.Estimator.(*Linear).Coefficients()
	assert.InDelta(t, 1, coef["SWdown"], 1e-6)
	assert.InDelta(t, 1, coef["SWdown"+transforms.LagSuffix], 1e-6)

	test := table(t, map[string][]float64{"SWdown": {10, 20}}, "SWdown")
	pred, err := p.Predict(test)
	require.NoError(t, err)
	require.Len(t, pred, 2)
	assert.InDelta(t, 20+10, pred[1], 1e-6)
	// The first row has no lag and uses the training mean of the lagged column.
	mean := (1.0 + 3 + 10 + 11) / 4
	assert.InDelta(t, 10+mean, pred[0], 1e-6)
}

func TestPipelinePredictBeforeFit(t *testing.T) {
	p := NewPipeline(NewMean())
	_, err := p.Predict(table(t, map[string][]float64{"a": {1}}, "a"))
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestPipelineAllRowsIncomplete(t *testing.T) {
	X := table(t, map[string][]float64{"a": {math.NaN(), 1}}, "a")
	p := NewPipeline(NewMean())
	assert.ErrorIs(t, p.Fit(X, []float64{1, math.NaN()}), ErrNoRows)
}

func TestRegistry(t *testing.T) {
	r := Default(Options{Seed: 1})
	assert.Equal(t, []string{"STH_lin", "ST_lin", "S_lin", "lag_lin", "mean", "mlp"}, r.Names())

	a, err := r.Get("S_lin")
	require.NoError(t, err)
	b, err := r.Get("S_lin")
	require.NoError(t, err)
	assert.NotSame(t, a, b, "each Get returns a fresh estimator")
	assert.Equal(t, "LinearRegression(features=[SWdown])", a.String())

	lagLin, err := r.Get("lag_lin")
	require.NoError(t, err)
	require.IsType(t, &Pipeline{}, lagLin)
	assert.Len(t, lagLin.(*Pipeline).Steps, 2)

	mlp, err := r.Get("mlp")
	require.NoError(t, err)
	assert.IsType(t, &simple.Model{}, mlp.(*Pipeline).Estimator)

	_, err = r.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownModel)

	bad := Default(Options{LagPeriods: -1})
	_, err = bad.Get("lag_lin")
	assert.ErrorIs(t, err, transforms.ErrInvalidParam)
}
