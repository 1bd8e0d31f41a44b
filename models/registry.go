package models

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Noofbiz/fluxbench/datasets"
	"github.com/Noofbiz/fluxbench/simple"
	"github.com/Noofbiz/fluxbench/transforms"
)

// ErrUnknownModel is returned for a name with no registered factory.
var ErrUnknownModel = errors.New("models: unknown model")

// Factory builds a fresh, unfitted estimator.
type Factory func() (Estimator, error)

// Options tune the default model set.
type Options struct {
	LagPeriods int
	LagFreq    string
	Seed       int64
}

// Registry maps model names to factories.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Get returns a new estimator for name.
func (r *Registry) Get(name string) (Estimator, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return f()
}

// Names returns the registered model names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Default returns the registry of built-in models:
//
//	S_lin    linear on SWdown
//	ST_lin   linear on SWdown, Tair
//	STH_lin  linear on SWdown, Tair, Qair
//	lag_lin  Lag -> Cleaner -> linear on every met variable and its lag
//	mean     training mean of the flux
//	mlp      small neural network on every met variable
func Default(opts Options) *Registry {
	if opts.LagPeriods == 0 {
		opts.LagPeriods = transforms.DefaultLagPeriods
	}
	if opts.LagFreq == "" {
		opts.LagFreq = transforms.DefaultLagFreq
	}

	r := NewRegistry()
	r.Register("S_lin", linear("SWdown"))
	r.Register("ST_lin", linear("SWdown", "Tair"))
	r.Register("STH_lin", linear("SWdown", "Tair", "Qair"))
	r.Register("lag_lin", func() (Estimator, error) {
		lag, err := transforms.NewLag(opts.LagPeriods, opts.LagFreq)
		if err != nil {
			return nil, err
		}
		return NewPipeline(NewLinear(), lag, transforms.NewCleaner(true)), nil
	})
	r.Register("mean", func() (Estimator, error) { return NewMean(), nil })
	r.Register("mlp", func() (Estimator, error) {
		return NewPipeline(simple.NewModel(simple.Config{
			HiddenSizes: []int{2 * len(datasets.MetVars)},
			Epochs:      20,
			Seed:        opts.Seed,
		})), nil
	})
	return r
}

func linear(features ...string) Factory {
	return func() (Estimator, error) { return NewLinear(features...), nil }
}
