package datasets

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/Noofbiz/fluxbench/frame"
)

// TrainingBatch stores training examples in flat contiguous float32 buffers.
type TrainingBatch struct {
	Inputs    []float32
	Labels    []float32
	BatchSize int
	InputDim  int
	LabelDim  int
}

// MakeTrainingBatch flattens the numeric columns of X and the target y.
func MakeTrainingBatch(X *frame.Frame, y []float64) (*TrainingBatch, error) {
	return NewTrainingBatch(X.Rows(), y)
}

// NewTrainingBatch flattens row-major inputs and a single-output target.
func NewTrainingBatch(inputs [][]float64, labels []float64) (*TrainingBatch, error) {
	if len(inputs) != len(labels) {
		return nil, fmt.Errorf("inputs and labels batch sizes don't match: %d != %d", len(inputs), len(labels))
	}
	if len(inputs) == 0 {
		return &TrainingBatch{LabelDim: 1}, nil
	}

	batchSize := len(inputs)
	inputDim := len(inputs[0])

	flatInputs := make([]float32, batchSize*inputDim)
	flatLabels := make([]float32, batchSize)

	for i := range batchSize {
		if len(inputs[i]) != inputDim {
			return nil, fmt.Errorf("inconsistent input dimensions at example %d: expected %d, got %d",
				i, inputDim, len(inputs[i]))
		}
		for j, v := range inputs[i] {
			flatInputs[i*inputDim+j] = float32(v)
		}
		flatLabels[i] = float32(labels[i])
	}

	return &TrainingBatch{
		Inputs:    flatInputs,
		Labels:    flatLabels,
		BatchSize: batchSize,
		InputDim:  inputDim,
		LabelDim:  1,
	}, nil
}

// Len returns the number of examples.
func (b *TrainingBatch) Len() int { return b.BatchSize }

// Batch returns inputs and labels for the given example indices. The returned
// slices share memory with the batch.
func (b *TrainingBatch) Batch(indices []int) ([][]float32, [][]float32, error) {
	inputs := make([][]float32, len(indices))
	labels := make([][]float32, len(indices))
	for pos, i := range indices {
		if i < 0 || i >= b.BatchSize {
			return nil, nil, fmt.Errorf("index %d out of range [0, %d)", i, b.BatchSize)
		}
		inputs[pos] = b.Inputs[i*b.InputDim : (i+1)*b.InputDim]
		labels[pos] = b.Labels[i*b.LabelDim : (i+1)*b.LabelDim]
	}
	return inputs, labels, nil
}

// ToGomlxTensors converts the batch to gomlx tensors shaped
// [BatchSize, InputDim] and [BatchSize, LabelDim].
func (b *TrainingBatch) ToGomlxTensors() (*tensors.Tensor, *tensors.Tensor, error) {
	// handle empty batch gracefully
	if b.BatchSize == 0 || b.InputDim == 0 {
		inT := tensors.FromAnyValue(make([][]float32, 0))
		labT := tensors.FromAnyValue(make([][]float32, 0))
		return inT, labT, nil
	}
	all := make([]int, b.BatchSize)
	for i := range all {
		all[i] = i
	}
	inputs, labels, err := b.Batch(all)
	if err != nil {
		return nil, nil, err
	}
	return tensors.FromAnyValue(inputs), tensors.FromAnyValue(labels), nil
}

// TensorBatch serves training examples from a pair of gomlx tensors shaped
// [examples, inputs] and [examples, labels].
type TensorBatch struct {
	inputs [][]float32
	labels [][]float32
}

// NewTensorBatch reads the values of the input and label tensors.
func NewTensorBatch(inputs, labels *tensors.Tensor) (*TensorBatch, error) {
	in, ok := inputs.Value().([][]float32)
	if !ok {
		return nil, fmt.Errorf("input tensor must be a rank-2 float32 tensor, got %s", inputs.Shape())
	}
	lab, ok := labels.Value().([][]float32)
	if !ok {
		return nil, fmt.Errorf("label tensor must be a rank-2 float32 tensor, got %s", labels.Shape())
	}
	if len(in) != len(lab) {
		return nil, fmt.Errorf("inputs and labels batch sizes don't match: %d != %d", len(in), len(lab))
	}
	return &TensorBatch{inputs: in, labels: lab}, nil
}

// Len returns the number of examples.
func (b *TensorBatch) Len() int { return len(b.inputs) }

// Batch returns inputs and labels for the given example indices.
func (b *TensorBatch) Batch(indices []int) ([][]float32, [][]float32, error) {
	inputs := make([][]float32, len(indices))
	labels := make([][]float32, len(indices))
	for pos, i := range indices {
		if i < 0 || i >= len(b.inputs) {
			return nil, nil, fmt.Errorf("index %d out of range [0, %d)", i, len(b.inputs))
		}
		inputs[pos] = b.inputs[i]
		labels[pos] = b.labels[i]
	}
	return inputs, labels, nil
}
