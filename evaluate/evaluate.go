// Package evaluate compares simulated fluxes with flux-tower observations.
package evaluate

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/Noofbiz/fluxbench/datasets"
)

// ErrNoOverlap is returned when no simulated variable can be compared.
var ErrNoOverlap = errors.New("evaluate: no overlapping variables")

// Metric computes one statistic from paired simulated and observed values.
type Metric struct {
	Name string
	Fn   func(sim, obs []float64) float64
}

// Metrics is the standard PLUMBER metric set, in report column order.
var Metrics = []Metric{
	{"rmse", RMSE},
	{"nme", NME},
	{"mbe", MBE},
	{"sd_diff", SDDiff},
	{"corr", Corr},
	{"extreme_5", Extreme(0.05)},
	{"extreme_95", Extreme(0.95)},
}

// Row holds the metrics of one variable.
type Row struct {
	Variable string
	N        int
	Values   map[string]float64
}

// Results is the evaluation of one simulation.
type Results struct {
	Name    string
	Metrics []string
	Rows    []Row
}

// Value returns a metric of a variable.
func (r *Results) Value(variable, metric string) (float64, bool) {
	for _, row := range r.Rows {
		if row.Variable == variable {
			v, ok := row.Values[metric]
			return v, ok
		}
	}
	return 0, false
}

// Evaluator computes metrics for simulations.
type Evaluator struct {
	Logger *slog.Logger
}

func NewEvaluator(logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{Logger: logger}
}

// Evaluate compares every simulated variable that obs also has. Values are
// paired on time and only pairs where both are finite count.
func (e *Evaluator) Evaluate(sim, obs *datasets.Dataset, name string) (*Results, error) {
	obsRow := make(map[int64]int, obs.Len())
	for i, t := range obs.Time {
		obsRow[t.UnixNano()] = i
	}

	res := &Results{Name: name}
	for _, m := range Metrics {
		res.Metrics = append(res.Metrics, m.Name)
	}

	for _, v := range sim.Variables() {
		o, ok := obs.Vars[v]
		if !ok {
			e.Logger.Warn("variable not in observations", "variable", v, "model", name)
			continue
		}
		s := sim.Vars[v]
		var ps, po []float64
		for i, t := range sim.Time {
			j, ok := obsRow[t.UnixNano()]
			if !ok || !finite(s[i]) || !finite(o[j]) {
				continue
			}
			ps = append(ps, s[i])
			po = append(po, o[j])
		}
		if len(ps) == 0 {
			e.Logger.Warn("no overlapping data", "variable", v, "model", name)
			continue
		}
		row := Row{Variable: v, N: len(ps), Values: make(map[string]float64, len(Metrics))}
		for _, m := range Metrics {
			row.Values[m.Name] = m.Fn(ps, po)
		}
		res.Rows = append(res.Rows, row)
	}
	if len(res.Rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoOverlap, name)
	}
	return res, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// RMSE is the root mean squared error.
func RMSE(sim, obs []float64) float64 {
	return floats.Distance(sim, obs, 2) / math.Sqrt(float64(len(sim)))
}

// NME is the normalised mean error: total absolute error over the total
// absolute deviation of the observations from their mean.
func NME(sim, obs []float64) float64 {
	mean := stat.Mean(obs, nil)
	var dev float64
	for _, o := range obs {
		dev += math.Abs(o - mean)
	}
	return floats.Distance(sim, obs, 1) / dev
}

// MBE is the mean bias error.
func MBE(sim, obs []float64) float64 {
	return stat.Mean(sim, nil) - stat.Mean(obs, nil)
}

// SDDiff is the absolute relative difference of the standard deviations.
func SDDiff(sim, obs []float64) float64 {
	return math.Abs(1 - stat.StdDev(sim, nil)/stat.StdDev(obs, nil))
}

// Corr is the Pearson correlation.
func Corr(sim, obs []float64) float64 {
	return stat.Correlation(sim, obs, nil)
}

// Extreme returns the absolute difference of the p quantiles.
func Extreme(p float64) func(sim, obs []float64) float64 {
	return func(sim, obs []float64) float64 {
		return math.Abs(quantile(p, sim) - quantile(p, obs))
	}
}

func quantile(p float64, v []float64) float64 {
	s := append([]float64(nil), v...)
	sort.Float64s(s)
	return stat.Quantile(p, stat.LinInterp, s, nil)
}
