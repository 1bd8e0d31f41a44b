// Package simulate fits models with leave-one-site-out training, caches the
// resulting simulations and runs the evaluate/plot/report flow over them.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/Noofbiz/fluxbench/datasets"
	"github.com/Noofbiz/fluxbench/frame"
	"github.com/Noofbiz/fluxbench/models"
)

var (
	// ErrNoTrainableVariables is returned when no flux variable had any
	// complete training rows.
	ErrNoTrainableVariables = errors.New("simulate: no fluxes successfully fitted")
	// ErrUnknownSite is returned for a site missing from the loaded data.
	ErrUnknownSite = errors.New("simulate: unknown site")
)

// SiteLoader reads one variable family for a set of sites.
type SiteLoader interface {
	LoadSites(ctx context.Context, family datasets.Family, sites []string) (datasets.Collection, error)
}

// Driver fits a model on every site but one and predicts the held-out site.
type Driver struct {
	Loader   SiteLoader
	Sites    []string
	MetVars  []string
	FluxVars []string
	Logger   *slog.Logger
}

// NewDriver creates a driver over the default variable sets.
func NewDriver(loader SiteLoader, sites []string, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		Loader:   loader,
		Sites:    sites,
		MetVars:  datasets.MetVars,
		FluxVars: datasets.FluxVars,
		Logger:   logger,
	}
}

// FitPredict trains model on the quality-controlled data of every other site,
// once per flux variable, and returns its predictions for site driven by the
// site's gap-filled meteorology. Variables without complete training rows are
// skipped.
func (d *Driver) FitPredict(ctx context.Context, model models.Estimator, name, site string) (*datasets.Dataset, error) {
	log := d.Logger.With("model", name, "site", site)

	log.Info("loading all data")
	met, err := d.Loader.LoadSites(ctx, datasets.Met, d.Sites)
	if err != nil {
		return nil, err
	}
	flux, err := d.Loader.LoadSites(ctx, datasets.Flux, d.Sites)
	if err != nil {
		return nil, err
	}
	heldOut, ok := met[site]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSite, site)
	}

	log.Debug("converting")
	metTrain, err := datasets.ListFrame(met.Except(site), d.MetVars, true)
	if err != nil {
		return nil, fmt.Errorf("building met training table: %w", err)
	}
	// Gap-filled data for the testing period, or the model cannot predict.
	metTest, err := heldOut.Frame(d.MetVars, false)
	if err != nil {
		return nil, fmt.Errorf("building met testing table: %w", err)
	}
	fluxAll, err := datasets.ListFrame(flux.Except(site), d.FluxVars, true)
	if err != nil {
		return nil, fmt.Errorf("building flux training table: %w", err)
	}
	fluxTrain, err := alignRows(metTrain, fluxAll)
	if err != nil {
		return nil, err
	}

	log.Info("fitting and running", "flux_vars", d.FluxVars, "met_vars", d.MetVars)
	complete := metTrain.CompleteRows()
	sims := make(map[string][]float64, len(d.FluxVars))
	for _, v := range d.FluxVars {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		target, _ := fluxTrain.Column(v)
		mask := make([]bool, len(complete))
		for i := range mask {
			mask[i] = complete[i] && !math.IsNaN(target[i])
		}
		n := frame.CountTrue(mask)
		if n == 0 {
			log.Warn("no training data, skipping variable", "variable", v)
			continue
		}
		log.Info("training variable", "variable", v, "complete", n, "total", metTrain.Len())

		X, err := metTrain.Filter(mask)
		if err != nil {
			return nil, err
		}
		y := make([]float64, 0, n)
		for _, r := range frame.MaskRows(mask) {
			y = append(y, target[r])
		}
		if err := model.Fit(X, y); err != nil {
			return nil, fmt.Errorf("fitting %s for %s: %w", name, v, err)
		}
		pred, err := model.Predict(metTest)
		if err != nil {
			return nil, fmt.Errorf("predicting %s for %s: %w", name, v, err)
		}
		sims[v] = pred
	}
	if len(sims) == 0 {
		return nil, fmt.Errorf("%w: %s at %s", ErrNoTrainableVariables, name, site)
	}

	out := heldOut.CopyMeta()
	out.Site = site
	out.Y, out.X = []float64{1.0}, []float64{1.0}
	for _, v := range d.FluxVars {
		if pred, ok := sims[v]; ok {
			if err := out.Set(v, pred); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// alignRows returns the columns of other laid out on the rows of base, matched
// by grouping label and time. Rows of base with no match are NaN.
func alignRows(base, other *frame.Frame) (*frame.Frame, error) {
	type rowKey struct {
		label string
		t     int64
	}
	label := func(f *frame.Frame, i int) string {
		if k, ok := f.Key(); ok {
			return k.Labels[i]
		}
		return ""
	}

	pos := make(map[rowKey]int, other.Len())
	for i, t := range other.Index() {
		pos[rowKey{label(other, i), t.UnixNano()}] = i
	}

	out := frame.New(base.Index())
	for _, c := range other.Columns() {
		src, _ := other.Column(c)
		col := make([]float64, base.Len())
		for i, t := range base.Index() {
			j, ok := pos[rowKey{label(base, i), t.UnixNano()}]
			if !ok {
				col[i] = math.NaN()
				continue
			}
			col[i] = src[j]
		}
		if err := out.Set(c, col); err != nil {
			return nil, err
		}
	}
	if k, ok := base.Key(); ok {
		if err := out.SetKey(k.Name, k.Labels); err != nil {
			return nil, err
		}
	}
	return out, nil
}
