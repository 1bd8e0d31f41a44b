package simulate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Noofbiz/fluxbench/datasets"
	"github.com/Noofbiz/fluxbench/evaluate"
	"github.com/Noofbiz/fluxbench/models"
	"github.com/Noofbiz/fluxbench/report"
)

// AllSites selects every configured site.
const AllSites = "all"

// Evaluator scores a simulation against observations.
type Evaluator interface {
	Evaluate(sim, obs *datasets.Dataset, name string) (*evaluate.Results, error)
}

// Plotter draws diagnostic figures into dir and returns their paths.
type Plotter interface {
	Diagnostic(dir string, sim, obs *datasets.Dataset, name, site string) ([]string, error)
}

// ReportWriter writes the report document of one model at one site.
type ReportWriter interface {
	Write(path, model, name, site string, res *evaluate.Results, files []string) error
}

// Runner wires fitting, caching, evaluation, plotting and reporting.
type Runner struct {
	Driver           *Driver
	Store            *Store
	Evaluator        Evaluator
	Plotter          Plotter
	Reports          ReportWriter
	BenchmarkPattern string
	Logger           *slog.Logger
}

func (r *Runner) log() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func (r *Runner) sites(site string) []string {
	if site == AllSites {
		return r.Driver.Sites
	}
	return []string{site}
}

// Simulation returns the cached simulation of name at site, or fits and
// caches a new one.
func (r *Runner) Simulation(ctx context.Context, model models.Estimator, name, site string) (*datasets.Dataset, error) {
	if r.Store.Exists(name, site) {
		r.log().Info("already run, loading cached simulation", "model", name, "site", site, "path", r.Store.SimPath(name, site))
		return r.Store.Load(name, site)
	}
	sim, err := r.Driver.FitPredict(ctx, model, name, site)
	if err != nil {
		return nil, err
	}
	if _, err := r.Store.Save(name, site, sim); err != nil {
		return nil, err
	}
	return sim, nil
}

// FitPredictEval produces (or loads) the simulation of name at site, then
// evaluates and plots it against the site's observed fluxes.
func (r *Runner) FitPredictEval(ctx context.Context, model models.Estimator, name, site string) (*evaluate.Results, []string, error) {
	sim, err := r.Simulation(ctx, model, name, site)
	if err != nil {
		return nil, nil, err
	}
	return r.evaluate(ctx, sim, name, site)
}

func (r *Runner) evaluate(ctx context.Context, sim *datasets.Dataset, name, site string) (*evaluate.Results, []string, error) {
	flux, err := r.Driver.Loader.LoadSites(ctx, datasets.Flux, []string{site})
	if err != nil {
		return nil, nil, err
	}
	obs, ok := flux[site]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownSite, site)
	}

	r.log().Info("evaluating", "model", name, "site", site)
	res, err := r.Evaluator.Evaluate(sim, obs, name)
	if err != nil {
		return nil, nil, err
	}
	files, err := r.Plotter.Diagnostic(r.Store.FigureDir(name), sim, obs, name, site)
	if err != nil {
		return nil, nil, err
	}
	return res, files, nil
}

// Run fits, evaluates and reports model at site, or at every configured site
// when site is AllSites.
func (r *Runner) Run(ctx context.Context, model models.Estimator, name, site string) error {
	for _, s := range r.sites(site) {
		res, files, err := r.FitPredictEval(ctx, model, name, s)
		if err != nil {
			return fmt.Errorf("running %s at %s: %w", name, s, err)
		}
		if err := r.Reports.Write(r.Store.ReportPath(name, s), model.String(), name, s, res, files); err != nil {
			return err
		}
	}
	return nil
}

// Eval evaluates and reports an existing simulation. With simFile set the
// file first replaces the cached simulation. With site AllSites every site
// that has a cached simulation is evaluated.
func (r *Runner) Eval(ctx context.Context, name, site, simFile string) error {
	if site == AllSites {
		if simFile != "" {
			return errors.New("simulate: a simulation file can only be evaluated at a single site")
		}
		n := 0
		for _, s := range r.Driver.Sites {
			if !r.Store.Exists(name, s) {
				r.log().Info("no cached simulation, skipping", "model", name, "site", s)
				continue
			}
			if err := r.evalOne(ctx, name, s, ""); err != nil {
				return err
			}
			n++
		}
		r.log().Info("evaluated cached simulations", "model", name, "sites", n)
		return nil
	}
	return r.evalOne(ctx, name, site, simFile)
}

func (r *Runner) evalOne(ctx context.Context, name, site, simFile string) error {
	var (
		sim *datasets.Dataset
		err error
	)
	if simFile != "" {
		r.log().Warn("overwriting cached simulation", "model", name, "site", site, "source", simFile, "path", r.Store.SimPath(name, site))
		sim, err = r.Store.Import(name, site, simFile)
	} else {
		sim, err = r.Store.Load(name, site)
	}
	if err != nil {
		return err
	}
	res, files, err := r.evaluate(ctx, sim, name, site)
	if err != nil {
		return fmt.Errorf("evaluating %s at %s: %w", name, site, err)
	}
	return r.Reports.Write(r.Store.ReportPath(name, site), report.NotGenerated, name, site, res, files)
}

// ImportBenchmark copies the benchmark simulations of name at every
// configured site into the cache, replacing existing ones.
func (r *Runner) ImportBenchmark(ctx context.Context, name string) error {
	r.log().Info("importing benchmark", "model", name, "sites", len(r.Driver.Sites))
	for _, s := range r.Driver.Sites {
		if err := ctx.Err(); err != nil {
			return err
		}
		src := datasets.Expand(r.BenchmarkPattern, map[string]string{"name": name, "site": s})
		if r.Store.Exists(name, s) {
			r.log().Warn("overwriting cached simulation", "model", name, "site", s, "source", src)
		}
		if _, err := r.Store.Import(name, s, src); err != nil {
			return err
		}
		r.log().Debug("imported", "model", name, "site", s)
	}
	return nil
}
