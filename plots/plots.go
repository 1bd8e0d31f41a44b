// Package plots draws diagnostic figures comparing simulated and observed
// fluxes.
package plots

import (
	"fmt"
	"image/color"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Noofbiz/fluxbench/datasets"
)

var (
	obsColor = color.RGBA{R: 120, G: 120, B: 120, A: 200}
	simColor = color.RGBA{R: 20, G: 80, B: 200, A: 220}
)

// Plotter writes PNG figures.
type Plotter struct {
	Width  vg.Length
	Height vg.Length
	Logger *slog.Logger
}

func NewPlotter(logger *slog.Logger) *Plotter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Plotter{Width: 8 * vg.Inch, Height: 4 * vg.Inch, Logger: logger}
}

// pairs holds the time-aligned values of one variable.
type pairs struct {
	obs, sim plotter.XYs
	scatter  plotter.XYs
}

func align(sim, obs *datasets.Dataset, v string) pairs {
	var p pairs
	simRow := make(map[int64]int, sim.Len())
	for i, t := range sim.Time {
		simRow[t.UnixNano()] = i
	}
	s := sim.Vars[v]
	o := obs.Vars[v]
	for i, t := range sim.Time {
		if !math.IsNaN(s[i]) {
			p.sim = append(p.sim, plotter.XY{X: float64(t.Unix()), Y: s[i]})
		}
	}
	for j, t := range obs.Time {
		if math.IsNaN(o[j]) {
			continue
		}
		p.obs = append(p.obs, plotter.XY{X: float64(t.Unix()), Y: o[j]})
		if i, ok := simRow[t.UnixNano()]; ok && !math.IsNaN(s[i]) {
			p.scatter = append(p.scatter, plotter.XY{X: o[j], Y: s[i]})
		}
	}
	return p
}

// Diagnostic writes a time series and a scatter plot for every simulated
// variable that obs also has into dir, and returns the written paths.
func (pl *Plotter) Diagnostic(dir string, sim, obs *datasets.Dataset, name, site string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var files []string
	for _, v := range sim.Variables() {
		if _, ok := obs.Vars[v]; !ok {
			continue
		}
		p := align(sim, obs, v)
		if len(p.scatter) == 0 {
			pl.Logger.Warn("nothing to plot", "variable", v, "model", name, "site", site)
			continue
		}

		ts := filepath.Join(dir, fmt.Sprintf("%s_%s_%s_timeseries.png", name, site, v))
		if err := pl.timeseries(ts, p, fmt.Sprintf("%s at %s: %s", name, site, v), v); err != nil {
			return nil, fmt.Errorf("plotting %s time series: %w", v, err)
		}
		sc := filepath.Join(dir, fmt.Sprintf("%s_%s_%s_scatter.png", name, site, v))
		if err := pl.scatter(sc, p.scatter, fmt.Sprintf("%s at %s: %s", name, site, v), v); err != nil {
			return nil, fmt.Errorf("plotting %s scatter: %w", v, err)
		}
		files = append(files, ts, sc)
	}
	pl.Logger.Debug("wrote diagnostic plots", "model", name, "site", site, "files", len(files))
	return files, nil
}

func (pl *Plotter) timeseries(path string, p pairs, title, v string) error {
	plt := plot.New()
	plt.Title.Text = title
	plt.X.Label.Text = "time"
	plt.Y.Label.Text = v
	plt.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02"}
	plt.Add(plotter.NewGrid())

	ol, err := plotter.NewLine(p.obs)
	if err != nil {
		return err
	}
	ol.Color = obsColor
	ol.Width = vg.Points(0.8)
	plt.Add(ol)
	plt.Legend.Add("observed", ol)

	sl, err := plotter.NewLine(p.sim)
	if err != nil {
		return err
	}
	sl.Color = simColor
	sl.Width = vg.Points(0.8)
	plt.Add(sl)
	plt.Legend.Add("simulated", sl)

	return plt.Save(pl.Width, pl.Height, path)
}

func (pl *Plotter) scatter(path string, xys plotter.XYs, title, v string) error {
	plt := plot.New()
	plt.Title.Text = title
	plt.X.Label.Text = "observed " + v
	plt.Y.Label.Text = "simulated " + v
	plt.Add(plotter.NewGrid())

	sc, err := plotter.NewScatter(xys)
	if err != nil {
		return err
	}
	sc.GlyphStyle.Color = simColor
	sc.GlyphStyle.Radius = vg.Points(1.5)
	plt.Add(sc)

	lo, hi := autoRange(xys)
	one, err := plotter.NewLine(plotter.XYs{{X: lo, Y: lo}, {X: hi, Y: hi}})
	if err != nil {
		return err
	}
	one.Color = obsColor
	one.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	plt.Add(one)
	plt.Legend.Add("1:1", one)
	plt.X.Min, plt.X.Max = lo, hi
	plt.Y.Min, plt.Y.Max = lo, hi

	return plt.Save(pl.Height, pl.Height, path)
}

// autoRange returns a padded range covering both axes of xys.
func autoRange(xys plotter.XYs) (lo, hi float64) {
	if len(xys) == 0 {
		return -1, 1
	}
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, p := range xys {
		lo = math.Min(lo, math.Min(p.X, p.Y))
		hi = math.Max(hi, math.Max(p.X, p.Y))
	}
	pad := (hi - lo) * 0.06
	if pad == 0 {
		pad = 1.0
	}
	return lo - pad, hi + pad
}
