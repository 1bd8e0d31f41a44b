package datasets

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/Noofbiz/fluxbench/frame"
)

// This package loads flux-tower site data and turns it into tables for model
// training.
//
// Layout and intended usage:
//
// Dataset
//   - One site's time series of meteorological or flux variables, with the
//     one-point grid coordinates (y, x, latitude, longitude) and global
//     attributes of the file it came from.
//   - Quality-control flags live next to their variable as "<var>_qc"
//     series (1 = observed, anything else = gap-filled).
//
// Collection
//   - Site name -> Dataset for one variable family (met or flux).
//
// Frame / ListFrame
//   - Convert one or many datasets into a frame.Frame restricted to a set of
//     variables, optionally masking gap-filled values (qc) to NaN. ListFrame
//     adds a "site" grouping key.

// ErrMissingVariable is returned when a dataset lacks a requested variable.
var ErrMissingVariable = errors.New("datasets: missing variable")

// QCSuffix marks the quality-control flag series of a variable.
const QCSuffix = "_qc"

// Family is a group of variables stored together per site.
type Family string

const (
	Met  Family = "met"
	Flux Family = "flux"
)

// MetVars are the meteorological drivers used as model inputs.
var MetVars = []string{"SWdown", "Tair", "LWdown", "Wind", "Rainf", "PSurf", "Qair"}

// FluxVars are the fluxes models are trained to predict.
var FluxVars = []string{"Qh", "Qle", "NEE"}

// Sites are the PLUMBER flux-tower sites.
var Sites = []string{
	"Amplero", "Blodgett", "Bugac", "ElSaler", "ElSaler2",
	"Espirra", "FortPeck", "Harvard", "Hesse", "Howard",
	"Howlandm", "Hyytiala", "Kruger", "Loobos", "Merbleue",
	"Mopane", "Palang", "Sylvania", "Tumba", "UniMich",
}

// Dataset is a geo-referenced time series for a single site.
type Dataset struct {
	Site string
	Time []time.Time

	// Y and X are the grid coordinates of the single point.
	Y []float64
	X []float64

	Latitude  float64
	Longitude float64

	// Vars maps a variable name to one value per time step. Missing values are NaN.
	Vars  map[string][]float64
	Attrs map[string]string
}

// NewDataset creates an empty dataset for a site on the given time axis.
func NewDataset(site string, times []time.Time) *Dataset {
	return &Dataset{
		Site:      site,
		Time:      slices.Clone(times),
		Y:         []float64{1.0},
		X:         []float64{1.0},
		Latitude:  math.NaN(),
		Longitude: math.NaN(),
		Vars:      make(map[string][]float64),
		Attrs:     make(map[string]string),
	}
}

// Len returns the number of time steps.
func (d *Dataset) Len() int { return len(d.Time) }

// Variables returns the variable names in sorted order, excluding QC flags.
func (d *Dataset) Variables() []string {
	names := make([]string, 0, len(d.Vars))
	for n := range d.Vars {
		if strings.HasSuffix(n, QCSuffix) {
			continue
		}
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Set adds or replaces a variable series.
func (d *Dataset) Set(name string, values []float64) error {
	if len(values) != len(d.Time) {
		return fmt.Errorf("datasets: %s has %d values for %d time steps", name, len(values), len(d.Time))
	}
	d.Vars[name] = slices.Clone(values)
	return nil
}

// CopyMeta returns a dataset with the same site, time axis, coordinates and
// attributes but no variables.
func (d *Dataset) CopyMeta() *Dataset {
	out := &Dataset{
		Site:      d.Site,
		Time:      slices.Clone(d.Time),
		Y:         slices.Clone(d.Y),
		X:         slices.Clone(d.X),
		Latitude:  d.Latitude,
		Longitude: d.Longitude,
		Vars:      make(map[string][]float64),
		Attrs:     maps.Clone(d.Attrs),
	}
	if out.Attrs == nil {
		out.Attrs = make(map[string]string)
	}
	return out
}

// Frame returns the named variables as a table indexed by time. With qc set,
// values whose quality-control flag exists and is not 1 are replaced by NaN.
func (d *Dataset) Frame(vars []string, qc bool) (*frame.Frame, error) {
	f := frame.New(d.Time)
	for _, v := range vars {
		values, ok := d.Vars[v]
		if !ok {
			return nil, fmt.Errorf("%w: %s at %s", ErrMissingVariable, v, d.Site)
		}
		if qc {
			if flags, ok := d.Vars[v+QCSuffix]; ok {
				values = applyQC(values, flags)
			}
		}
		if err := f.Set(v, values); err != nil {
			return nil, fmt.Errorf("%s at %s: %w", v, d.Site, err)
		}
	}
	return f, nil
}

func applyQC(values, flags []float64) []float64 {
	out := slices.Clone(values)
	for i := range out {
		if i >= len(flags) || flags[i] != 1 {
			out[i] = math.NaN()
		}
	}
	return out
}

// ListFrame concatenates the frames of several datasets and labels every row
// with its site.
func ListFrame(list []*Dataset, vars []string, qc bool) (*frame.Frame, error) {
	frames := make([]*frame.Frame, 0, len(list))
	for _, ds := range list {
		f, err := ds.Frame(vars, qc)
		if err != nil {
			return nil, err
		}
		labels := make([]string, f.Len())
		for i := range labels {
			labels[i] = ds.Site
		}
		if err := f.SetKey(frame.SiteKey, labels); err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	if len(frames) == 0 {
		f := frame.New(nil)
		for _, v := range vars {
			_ = f.Set(v, nil)
		}
		_ = f.SetKey(frame.SiteKey, nil)
		return f, nil
	}
	return frame.Concat(frames...)
}

// Collection maps site names to datasets of one variable family.
type Collection map[string]*Dataset

// SiteNames returns the sites in sorted order.
func (c Collection) SiteNames() []string {
	names := slices.Collect(maps.Keys(c))
	sort.Strings(names)
	return names
}

// Except returns every dataset but the given site's, sorted by site name.
func (c Collection) Except(site string) []*Dataset {
	out := make([]*Dataset, 0, len(c))
	for _, s := range c.SiteNames() {
		if s == site {
			continue
		}
		out = append(out, c[s])
	}
	return out
}
