package models

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/Noofbiz/fluxbench/frame"
	"github.com/Noofbiz/fluxbench/transforms"
)

// Pipeline chains transformers in front of a final estimator.
type Pipeline struct {
	Steps     []transforms.Transformer
	Estimator Estimator

	means map[string]float64
}

// NewPipeline creates a pipeline ending in est.
func NewPipeline(est Estimator, steps ...transforms.Transformer) *Pipeline {
	return &Pipeline{Steps: steps, Estimator: est}
}

// Fit fits and applies every step in order, drops the rows the steps left
// incomplete together with their targets, and fits the estimator on the rest.
// The column means of the training table are kept to fill gaps at predict time.
func (p *Pipeline) Fit(X *frame.Frame, y []float64) error {
	if err := checkRows(X, y); err != nil {
		return err
	}
	cur := X
	for _, step := range p.Steps {
		if err := step.Fit(cur, nil); err != nil {
			return fmt.Errorf("fitting %v: %w", step, err)
		}
		var err error
		if cur, err = step.Transform(cur); err != nil {
			return fmt.Errorf("applying %v: %w", step, err)
		}
	}

	mask := cur.CompleteRows()
	for i, v := range y {
		if math.IsNaN(v) {
			mask[i] = false
		}
	}
	rows := frame.MaskRows(mask)
	if len(rows) == 0 {
		return ErrNoRows
	}
	train := cur.Take(rows)
	target := make([]float64, len(rows))
	for i, r := range rows {
		target[i] = y[r]
	}

	p.means = make(map[string]float64, train.NumColumns())
	for _, c := range train.Columns() {
		p.means[c], _ = train.Mean(c)
	}
	return p.Estimator.Fit(train, target)
}

// Predict applies the fitted steps, replaces missing values with the training
// means and predicts.
func (p *Pipeline) Predict(X *frame.Frame) ([]float64, error) {
	if p.means == nil {
		return nil, ErrNotFitted
	}
	cur := X
	for _, step := range p.Steps {
		var err error
		if cur, err = step.Transform(cur); err != nil {
			return nil, fmt.Errorf("applying %v: %w", step, err)
		}
	}
	filled := cur.Clone()
	for _, c := range filled.Columns() {
		mean, ok := p.means[c]
		if !ok {
			continue
		}
		col, _ := filled.Column(c)
		v := slices.Clone(col)
		changed := false
		for i := range v {
			if math.IsNaN(v[i]) {
				v[i] = mean
				changed = true
			}
		}
		if changed {
			if err := filled.Set(c, v); err != nil {
				return nil, err
			}
		}
	}
	return p.Estimator.Predict(filled)
}

func (p *Pipeline) String() string {
	parts := make([]string, 0, len(p.Steps)+1)
	for _, s := range p.Steps {
		parts = append(parts, fmt.Sprint(s))
	}
	parts = append(parts, p.Estimator.String())
	return "Pipeline(" + strings.Join(parts, " -> ") + ")"
}
