package plots

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot/plotter"

	"github.com/Noofbiz/fluxbench/datasets"
)

func fixture(t *testing.T) (sim, obs *datasets.Dataset) {
	t.Helper()
	idx := make([]time.Time, 48)
	start := time.Date(2006, 1, 1, 0, 0, 0, 0, time.UTC)
	qle := make([]float64, len(idx))
	for i := range idx {
		idx[i] = start.Add(time.Duration(i) * 30 * time.Minute)
		qle[i] = 100 * math.Sin(float64(i)/8)
	}
	obs = datasets.NewDataset("Hesse", idx)
	require.NoError(t, obs.Set("Qle", qle))
	qle[3] = math.NaN()
	sim = datasets.NewDataset("Hesse", idx)
	require.NoError(t, sim.Set("Qle", qle))
	require.NoError(t, sim.Set("NEE", make([]float64, len(idx))))
	return sim, obs
}

func TestDiagnosticWritesPNGs(t *testing.T) {
	sim, obs := fixture(t)
	dir := filepath.Join(t.TempDir(), "figures")

	files, err := NewPlotter(nil).Diagnostic(dir, sim, obs, "S_lin", "Hesse")
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "S_lin_Hesse_Qle_timeseries.png"),
		filepath.Join(dir, "S_lin_Hesse_Qle_scatter.png"),
	}, files)
	for _, f := range files {
		info, err := os.Stat(f)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}

func TestAlignSkipsMissing(t *testing.T) {
	sim, obs := fixture(t)
	p := align(sim, obs, "Qle")
	assert.Len(t, p.obs, 48)
	assert.Len(t, p.sim, 47)
	assert.Len(t, p.scatter, 47)
}

func TestAutoRange(t *testing.T) {
	lo, hi := autoRange(plotter.XYs{{X: 0, Y: 10}, {X: 5, Y: 2}})
	assert.InDelta(t, -0.6, lo, 1e-12)
	assert.InDelta(t, 10.6, hi, 1e-12)

	lo, hi = autoRange(nil)
	assert.Equal(t, -1.0, lo)
	assert.Equal(t, 1.0, hi)
}
