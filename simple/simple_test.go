package simple

import (
	"math"
	"testing"
	"time"

	"github.com/Noofbiz/fluxbench/datasets"
	"github.com/Noofbiz/fluxbench/frame"
)

func mse(preds, labels []float64) float64 {
	var sum float64
	for i := range preds {
		d := preds[i] - labels[i]
		sum += d * d
	}
	return sum / float64(len(preds))
}

func syntheticFrame(t *testing.T, n int) (*frame.Frame, []float64) {
	t.Helper()
	idx := make([]time.Time, n)
	a := make([]float64, n)
	b := make([]float64, n)
	y := make([]float64, n)
	start := time.Date(2003, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := range n {
		idx[i] = start.Add(time.Duration(i) * 30 * time.Minute)
		a[i] = float64(i % 10)
		b[i] = float64((i / 10) % 10)
		y[i] = 200*a[i] + 50*b[i] + 10
	}
	f := frame.New(idx)
	if err := f.Set("SWdown", a); err != nil {
		t.Fatal(err)
	}
	if err := f.Set("Tair", b); err != nil {
		t.Fatal(err)
	}
	return f, y
}

// TestModelFitReducesError checks that training beats the untrained network
// and that predictions come back in target units.
func TestModelFitReducesError(t *testing.T) {
	X, y := syntheticFrame(t, 200)

	before := NewModel(Config{HiddenSizes: []int{16}, Epochs: 1, LearningRate: 1e-9, Seed: 42})
	if err := before.Fit(X, y); err != nil {
		t.Fatalf("Fit error: %v", err)
	}
	predBefore, err := before.Predict(X)
	if err != nil {
		t.Fatalf("Predict error: %v", err)
	}

	model := NewModel(Config{HiddenSizes: []int{16}, Epochs: 50, LearningRate: 0.01, BatchSize: 16, Seed: 42})
	if err := model.Fit(X, y); err != nil {
		t.Fatalf("Fit error: %v", err)
	}
	predAfter, err := model.Predict(X)
	if err != nil {
		t.Fatalf("Predict error: %v", err)
	}
	if len(predAfter) != X.Len() {
		t.Fatalf("want %d predictions, got %d", X.Len(), len(predAfter))
	}

	mseBefore, mseAfter := mse(predBefore, y), mse(predAfter, y)
	t.Logf("mse before=%.3f after=%.3f", mseBefore, mseAfter)
	if !(mseAfter < mseBefore) {
		t.Fatalf("expected mse to decrease after training: before=%.3f after=%.3f", mseBefore, mseAfter)
	}
	for i, p := range predAfter {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			t.Fatalf("non-finite prediction at %d: %v", i, p)
		}
	}
}

func TestModelDeterministicWithSeed(t *testing.T) {
	X, y := syntheticFrame(t, 60)
	var preds [2][]float64
	for k := range preds {
		m := NewModel(Config{Epochs: 3, Seed: 7})
		if err := m.Fit(X, y); err != nil {
			t.Fatalf("Fit error: %v", err)
		}
		p, err := m.Predict(X)
		if err != nil {
			t.Fatalf("Predict error: %v", err)
		}
		preds[k] = p
	}
	for i := range preds[0] {
		if preds[0][i] != preds[1][i] {
			t.Fatalf("prediction %d differs between identical seeds: %v vs %v", i, preds[0][i], preds[1][i])
		}
	}
}

func TestModelPredictBeforeFit(t *testing.T) {
	X, _ := syntheticFrame(t, 5)
	if _, err := NewModel(Config{}).Predict(X); err != ErrNotFitted {
		t.Fatalf("want ErrNotFitted, got %v", err)
	}
}

func TestModelPredictMissingColumn(t *testing.T) {
	X, y := syntheticFrame(t, 20)
	m := NewModel(Config{Epochs: 1, Seed: 1})
	if err := m.Fit(X, y); err != nil {
		t.Fatalf("Fit error: %v", err)
	}
	other, err := X.Select("SWdown")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Predict(other); err == nil {
		t.Fatal("expected error for missing feature column")
	}
}

// TestTrainWithTrainingBatch drives the trainer directly through the
// datasets batch type.
func TestTrainWithTrainingBatch(t *testing.T) {
	inputs := [][]float64{{0}, {1}, {2}, {3}}
	labels := []float64{0, 1, 2, 3}
	batch, err := datasets.NewTrainingBatch(inputs, labels)
	if err != nil {
		t.Fatal(err)
	}
	m := NewModel(Config{Epochs: 5, BatchSize: 2, Seed: 3})
	m.init(1)
	if err := m.TrainWithDataset(batch); err != nil {
		t.Fatalf("TrainWithDataset error: %v", err)
	}
	if err := m.TrainWithDataset(nil); err == nil {
		t.Fatal("expected error for nil dataset")
	}
	empty, _ := datasets.NewTrainingBatch(nil, nil)
	if err := m.TrainWithDataset(empty); err == nil {
		t.Fatal("expected error for empty dataset")
	}
}
