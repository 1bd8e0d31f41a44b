package simple

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/Noofbiz/fluxbench/datasets"
	"github.com/Noofbiz/fluxbench/frame"
)

// ErrNotFitted is returned by Predict before Fit.
var ErrNotFitted = errors.New("simple: model is not fitted")

// Config holds configurable hyperparameters for the MLP model and training.
type Config struct {
	// HiddenSizes is the list of hidden layer sizes. Example: []int{64, 32}
	// If empty, a single hidden layer of size 16 will be used.
	HiddenSizes []int

	// LearningRate used by SGD.
	LearningRate float64

	// Epochs to train for (default if 0 will be set by NewModel to 10).
	Epochs int

	// BatchSize for mini-batch updates (default if 0 will be set by NewModel to 32).
	BatchSize int

	// Seed controls RNG for weight init and shuffling. If zero, time-based seed is used.
	Seed int64
}

// Dataset is the minimal interface the trainer requires. datasets.TrainingBatch
// and datasets.TensorBatch satisfy it.
type Dataset interface {
	Len() int
	// Batch returns inputs and labels for the provided indices.
	Batch(indices []int) ([][]float32, [][]float32, error)
}

// scaler standardises one column.
type scaler struct{ mean, std float64 }

func newScaler(v []float64) scaler {
	mean, std := stat.MeanStdDev(v, nil)
	if std == 0 || math.IsNaN(std) {
		std = 1
	}
	return scaler{mean: mean, std: std}
}

func (s scaler) apply(v float64) float64  { return (v - s.mean) / s.std }
func (s scaler) invert(v float64) float64 { return v*s.std + s.mean }

// Model is a small multi-layer perceptron regressor with one output. Inputs
// and target are standardised at fit time. Training is plain mini-batch SGD
// with ReLU hidden layers and a mean-squared-error loss.
type Model struct {
	Config Config

	columns []string
	xScale  []scaler
	yScale  scaler

	// layerSizes includes input size, hidden sizes, then output size.
	layerSizes []int

	// weights[l] is a matrix of shape [out][in] for layer l -> l+1
	weights [][][]float32
	biases  [][]float32

	rng *rand.Rand
}

// NewModel creates an unfitted model. The network is built on Fit, once the
// number of input columns is known.
func NewModel(cfg Config) *Model {
	if len(cfg.HiddenSizes) == 0 {
		cfg.HiddenSizes = []int{16}
	}
	if cfg.LearningRate == 0 {
		cfg.LearningRate = 0.01
	}
	if cfg.Epochs == 0 {
		cfg.Epochs = 10
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 32
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	return &Model{Config: cfg}
}

func (m *Model) String() string {
	return fmt.Sprintf("MLP(hidden=%v, epochs=%d)", m.Config.HiddenSizes, m.Config.Epochs)
}

// init allocates the layers with Glorot-uniform weights.
func (m *Model) init(inputDim int) {
	m.rng = rand.New(rand.NewSource(m.Config.Seed))
	sizes := make([]int, 0, 2+len(m.Config.HiddenSizes))
	sizes = append(sizes, inputDim)
	sizes = append(sizes, m.Config.HiddenSizes...)
	sizes = append(sizes, 1)
	m.layerSizes = sizes

	L := len(sizes) - 1
	m.weights = make([][][]float32, L)
	m.biases = make([][]float32, L)
	for l := range L {
		in, out := sizes[l], sizes[l+1]
		limit := float32(math.Sqrt(6.0 / float64(in+out)))
		w := make([][]float32, out)
		for j := range w {
			row := make([]float32, in)
			for i := range row {
				row[i] = (m.rng.Float32()*2 - 1) * limit
			}
			w[j] = row
		}
		m.weights[l] = w
		m.biases[l] = make([]float32, out)
	}
}

// Fit trains the network on the columns of X against y. Rows must be free of
// NaN.
func (m *Model) Fit(X *frame.Frame, y []float64) error {
	if X.Len() != len(y) {
		return fmt.Errorf("simple: %d rows but %d targets", X.Len(), len(y))
	}
	if X.Len() == 0 {
		return errors.New("simple: no training rows")
	}
	m.columns = X.Columns()
	m.xScale = make([]scaler, len(m.columns))
	for j, c := range m.columns {
		v, _ := X.Column(c)
		m.xScale[j] = newScaler(v)
	}
	m.yScale = newScaler(y)

	rows := m.scaleRows(X.Rows())
	target := make([]float64, len(y))
	for i, v := range y {
		target[i] = m.yScale.apply(v)
	}
	batch, err := datasets.NewTrainingBatch(rows, target)
	if err != nil {
		return err
	}
	inT, labT, err := batch.ToGomlxTensors()
	if err != nil {
		return err
	}
	ds, err := datasets.NewTensorBatch(inT, labT)
	if err != nil {
		return err
	}
	m.init(len(m.columns))
	return m.TrainWithDataset(ds)
}

// Predict returns one prediction per row of X.
func (m *Model) Predict(X *frame.Frame) ([]float64, error) {
	if m.weights == nil {
		return nil, ErrNotFitted
	}
	sel, err := X.Select(m.columns...)
	if err != nil {
		return nil, err
	}
	rows := m.scaleRows(sel.Rows())
	in := make([][]float32, len(rows))
	for i, r := range rows {
		in[i] = make([]float32, len(r))
		for j, v := range r {
			in[i][j] = float32(v)
		}
	}
	preds, err := m.PredictBatch(in)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(preds))
	for i, p := range preds {
		out[i] = m.yScale.invert(float64(p[0]))
	}
	return out, nil
}

func (m *Model) scaleRows(rows [][]float64) [][]float64 {
	for _, r := range rows {
		for j := range r {
			r[j] = m.xScale[j].apply(r[j])
		}
	}
	return rows
}

func activationReLU(x []float32) {
	for i := range x {
		if x[i] < 0 {
			x[i] = 0
		}
	}
}

// forwardSingle returns the pre-activations of each layer and the activations
// of every layer including the input (acts[0]).
func (m *Model) forwardSingle(input []float32) (preActs [][]float32, acts [][]float32, err error) {
	if len(input) != m.layerSizes[0] {
		return nil, nil, fmt.Errorf("input has %d features, want %d", len(input), m.layerSizes[0])
	}
	L := len(m.weights)
	acts = make([][]float32, L+1)
	acts[0] = append([]float32(nil), input...)
	preActs = make([][]float32, L)
	for l := range L {
		W, b := m.weights[l], m.biases[l]
		pre := make([]float32, len(b))
		for j := range pre {
			sum := b[j]
			for i, x := range acts[l] {
				sum += W[j][i] * x
			}
			pre[j] = sum
		}
		preActs[l] = pre

		act := append([]float32(nil), pre...)
		if l < L-1 {
			activationReLU(act)
		}
		acts[l+1] = act
	}
	return preActs, acts, nil
}

// PredictBatch runs a forward pass over already standardised inputs and
// returns standardised outputs of shape [batch][1].
func (m *Model) PredictBatch(inputs [][]float32) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		_, acts, err := m.forwardSingle(in)
		if err != nil {
			return nil, err
		}
		out[i] = acts[len(acts)-1]
	}
	return out, nil
}

// TrainWithDataset runs mini-batch SGD over ds, averaging gradients within each
// batch.
func (m *Model) TrainWithDataset(ds Dataset) error {
	if ds == nil {
		return errors.New("dataset is nil")
	}
	n := ds.Len()
	if n == 0 {
		return errors.New("dataset has no examples")
	}
	lr := float32(m.Config.LearningRate)

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	L := len(m.weights)
	gradW := make([][][]float32, L)
	gradB := make([][]float32, L)
	for l := range L {
		gradW[l] = make([][]float32, len(m.biases[l]))
		for j := range gradW[l] {
			gradW[l][j] = make([]float32, len(m.weights[l][j]))
		}
		gradB[l] = make([]float32, len(m.biases[l]))
	}

	for range m.Config.Epochs {
		m.rng.Shuffle(n, func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
		for start := 0; start < n; start += m.Config.BatchSize {
			end := min(start+m.Config.BatchSize, n)
			inputs, labels, err := ds.Batch(indices[start:end])
			if err != nil {
				return err
			}
			if len(inputs) == 0 {
				continue
			}
			for l := range L {
				clear(gradB[l])
				for j := range gradW[l] {
					clear(gradW[l][j])
				}
			}
			for ex := range inputs {
				if err := m.backprop(inputs[ex], labels[ex], gradW, gradB); err != nil {
					return err
				}
			}

			scale := lr / float32(len(inputs))
			for l := range L {
				for j := range m.biases[l] {
					m.biases[l][j] -= scale * gradB[l][j]
					for i := range m.weights[l][j] {
						m.weights[l][j][i] -= scale * gradW[l][j][i]
					}
				}
			}
		}
	}
	return nil
}

// backprop accumulates the squared-error gradients of one example.
func (m *Model) backprop(in, label []float32, gradW [][][]float32, gradB [][]float32) error {
	preacts, acts, err := m.forwardSingle(in)
	if err != nil {
		return err
	}
	out := acts[len(acts)-1]
	delta := make([]float32, len(out))
	for j := range out {
		delta[j] = 2 * (out[j] - label[j])
	}
	for l := len(m.weights) - 1; l >= 0; l-- {
		for j, d := range delta {
			gradB[l][j] += d
			for i, a := range acts[l] {
				gradW[l][j][i] += d * a
			}
		}
		if l == 0 {
			break
		}
		prev := make([]float32, len(acts[l]))
		for i := range prev {
			if preacts[l-1][i] <= 0 {
				continue
			}
			var sum float32
			for j, d := range delta {
				sum += m.weights[l][j][i] * d
			}
			prev[i] = sum
		}
		delta = prev
	}
	return nil
}
