package datasets

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noofbiz/fluxbench/frame"
)

func halfHourly(n int) []time.Time {
	start := time.Date(2002, 1, 1, 0, 30, 0, 0, time.UTC)
	idx := make([]time.Time, n)
	for i := range idx {
		idx[i] = start.Add(time.Duration(i) * 30 * time.Minute)
	}
	return idx
}

func sampleDataset(t *testing.T, site string) *Dataset {
	t.Helper()
	ds := NewDataset(site, halfHourly(4))
	ds.Latitude, ds.Longitude = 42.5, -72.2
	ds.Attrs["Production_source"] = "PALS"
	require.NoError(t, ds.Set("Qle", []float64{10, 20, math.NaN(), 40}))
	require.NoError(t, ds.Set("Qle_qc", []float64{1, 0, 1, 1}))
	require.NoError(t, ds.Set("Qh", []float64{1, 2, 3, 4}))
	return ds
}

func TestDatasetFrameQC(t *testing.T) {
	ds := sampleDataset(t, "Harvard")

	raw, err := ds.Frame([]string{"Qle", "Qh"}, false)
	require.NoError(t, err)
	qle, _ := raw.Column("Qle")
	assert.Equal(t, 20.0, qle[1])

	qc, err := ds.Frame([]string{"Qle", "Qh"}, true)
	require.NoError(t, err)
	qle, _ = qc.Column("Qle")
	assert.True(t, math.IsNaN(qle[1]), "gap-filled value must be masked")
	assert.Equal(t, 40.0, qle[3])
	qh, _ := qc.Column("Qh")
	assert.Equal(t, []float64{1, 2, 3, 4}, qh, "variables without flags are untouched")

	_, err = ds.Frame([]string{"NEE"}, false)
	assert.ErrorIs(t, err, ErrMissingVariable)
}

func TestListFrameAddsSiteKey(t *testing.T) {
	a := sampleDataset(t, "A")
	b := sampleDataset(t, "B")

	f, err := ListFrame([]*Dataset{a, b}, []string{"Qh"}, true)
	require.NoError(t, err)
	assert.Equal(t, 8, f.Len())
	key, ok := f.Key()
	require.True(t, ok)
	assert.Equal(t, frame.SiteKey, key.Name)
	assert.Equal(t, []string{"A", "A", "A", "A", "B", "B", "B", "B"}, key.Labels)

	empty, err := ListFrame(nil, []string{"Qh"}, true)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
	assert.Equal(t, []string{"Qh"}, empty.Columns())
}

func TestCollectionExcept(t *testing.T) {
	c := Collection{
		"Tumba":   sampleDataset(t, "Tumba"),
		"Amplero": sampleDataset(t, "Amplero"),
		"Hesse":   sampleDataset(t, "Hesse"),
	}
	others := c.Except("Hesse")
	require.Len(t, others, 2)
	assert.Equal(t, "Amplero", others[0].Site)
	assert.Equal(t, "Tumba", others[1].Site)
	assert.Equal(t, []string{"Amplero", "Hesse", "Tumba"}, c.SiteNames())
}

func TestCopyMeta(t *testing.T) {
	ds := sampleDataset(t, "Hesse")
	meta := ds.CopyMeta()
	assert.Empty(t, meta.Vars)
	assert.Equal(t, ds.Time, meta.Time)
	assert.Equal(t, ds.Attrs, meta.Attrs)
	meta.Attrs["x"] = "y"
	assert.NotContains(t, ds.Attrs, "x")
}

func TestNetCDFRoundTrip(t *testing.T) {
	ds := sampleDataset(t, "Harvard")
	path := filepath.Join(t.TempDir(), "Harvard.nc")
	require.NoError(t, WriteNetCDF(path, ds))

	got, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, "Harvard", got.Site)
	assert.Equal(t, ds.Time, got.Time)
	assert.Equal(t, []float64{1.0}, got.Y)
	assert.Equal(t, []float64{1.0}, got.X)
	assert.Equal(t, 42.5, got.Latitude)
	assert.Equal(t, -72.2, got.Longitude)
	assert.Equal(t, ds.Attrs, got.Attrs)
	assert.Equal(t, []string{"Qh", "Qle"}, got.Variables())
	assert.Equal(t, ds.Vars["Qh"], got.Vars["Qh"])
	assert.Equal(t, ds.Vars["Qle_qc"], got.Vars["Qle_qc"])
	qle := got.Vars["Qle"]
	assert.Equal(t, 10.0, qle[0])
	assert.True(t, math.IsNaN(qle[2]))
}

func TestWriteNetCDFRejectsEmpty(t *testing.T) {
	err := WriteNetCDF(filepath.Join(t.TempDir(), "e.nc"), NewDataset("e", nil))
	assert.Error(t, err)
}

func TestDecodeTime(t *testing.T) {
	got, err := decodeTime([]float64{0, 1800, 3600}, "seconds since 2002-01-01 00:30:00")
	require.NoError(t, err)
	assert.Equal(t, halfHourly(3), got)

	got, err = decodeTime([]float64{1}, "days since 2000-01-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2000, 1, 2, 0, 0, 0, 0, time.UTC), got[0])

	_, err = decodeTime([]float64{1}, "fortnights since 2000-01-01")
	assert.Error(t, err)
	_, err = decodeTime([]float64{1}, "seconds")
	assert.Error(t, err)
}

func TestCSVRoundTrip(t *testing.T) {
	ds := sampleDataset(t, "Loobos")
	path := filepath.Join(t.TempDir(), "Loobos.csv")
	require.NoError(t, WriteCSV(path, ds))

	n, err := countCSVRows(path)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	got, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, "Loobos", got.Site)
	assert.Equal(t, ds.Time, got.Time)
	assert.Equal(t, ds.Vars["Qh"], got.Vars["Qh"])
	assert.Equal(t, ds.Vars["Qle_qc"], got.Vars["Qle_qc"])
	assert.True(t, math.IsNaN(got.Vars["Qle"][2]))
}

func TestReadCSVRequiresTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("Qle,Qh\n1,2\n"), 0o644))
	_, err := ReadCSV(path)
	assert.Error(t, err)

	_, err = Open(filepath.Join(t.TempDir(), "data.parquet"))
	assert.Error(t, err)
}

func TestLoaderLoadSites(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "flux"), 0o755))
	for _, s := range []string{"Hesse", "Tumba"} {
		require.NoError(t, WriteNetCDF(filepath.Join(dir, "flux", s+"Fluxnet.1.4_flux.nc"), sampleDataset(t, "ignored")))
	}

	l := NewLoader(filepath.Join(dir, "{family}", "{site}Fluxnet.1.4_{family}.nc"), nil)
	assert.Equal(t, filepath.Join(dir, "met", "HesseFluxnet.1.4_met.nc"), l.Path(Met, "Hesse"))

	c, err := l.LoadSites(context.Background(), Flux, []string{"Hesse", "Tumba"})
	require.NoError(t, err)
	require.Len(t, c, 2)
	assert.Equal(t, "Hesse", c["Hesse"].Site)

	_, err = l.LoadSites(context.Background(), Met, []string{"Hesse"})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.LoadSites(ctx, Flux, []string{"Hesse"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTrainingBatch(t *testing.T) {
	f := frame.New(halfHourly(3))
	require.NoError(t, f.Set("a", []float64{1, 2, 3}))
	require.NoError(t, f.Set("b", []float64{4, 5, 6}))

	b, err := MakeTrainingBatch(f, []float64{7, 8, 9})
	require.NoError(t, err)
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, 2, b.InputDim)
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, b.Inputs)

	in, lab, err := b.Batch([]int{2, 0})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{3, 6}, {1, 4}}, in)
	assert.Equal(t, [][]float32{{9}, {7}}, lab)

	_, _, err = b.Batch([]int{3})
	assert.Error(t, err)

	_, err = NewTrainingBatch([][]float64{{1}}, nil)
	assert.Error(t, err)

	inT, labT, err := b.ToGomlxTensors()
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, inT.Shape().Dimensions)
	assert.Equal(t, []int{3, 1}, labT.Shape().Dimensions)
}

func TestTensorBatchReadsTensorValues(t *testing.T) {
	b, err := NewTrainingBatch([][]float64{{1, 4}, {2, 5}, {3, 6}}, []float64{7, 8, 9})
	require.NoError(t, err)
	inT, labT, err := b.ToGomlxTensors()
	require.NoError(t, err)

	tb, err := NewTensorBatch(inT, labT)
	require.NoError(t, err)
	assert.Equal(t, 3, tb.Len())

	in, lab, err := tb.Batch([]int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{2, 5}, {3, 6}}, in)
	assert.Equal(t, [][]float32{{8}, {9}}, lab)

	_, _, err = tb.Batch([]int{-1})
	assert.Error(t, err)
}

func TestExpand(t *testing.T) {
	got := Expand("bench/{name}/{name}_{site}Fluxnet.1.4.nc", map[string]string{"name": "Manabe", "site": "Tumba"})
	assert.Equal(t, "bench/Manabe/Manabe_TumbaFluxnet.1.4.nc", got)
}
