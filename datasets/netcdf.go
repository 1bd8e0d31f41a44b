package datasets

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ctessum/cdf"
)

// timeUnits is the time encoding used when writing netCDF files.
const timeUnits = "seconds since 1970-01-01 00:00:00"

// coordinate variables that are not data series.
var coordVars = map[string]bool{
	"time": true, "y": true, "x": true,
	"latitude": true, "longitude": true, "lat": true, "lon": true,
}

// ReadNetCDF loads a site dataset from a netCDF file with a leading "time"
// dimension. Variables on a spatial grid are reduced to their first cell.
func ReadNetCDF(path string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	f, err := cdf.Open(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open netcdf %s: %w", path, err)
	}
	h := f.Header

	raw, err := readFloats(f, "time")
	if err != nil {
		return nil, fmt.Errorf("failed to read time from %s: %w", path, err)
	}
	units, _ := h.GetAttribute("time", "units").(string)
	times, err := decodeTime(raw, units)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	ds := NewDataset("", times)
	for _, a := range h.Attributes("") {
		if s, ok := h.GetAttribute("", a).(string); ok {
			ds.Attrs[a] = s
		}
	}
	ds.Site = ds.Attrs["site"]
	delete(ds.Attrs, "site")

	vars := make(map[string]bool)
	for _, v := range h.Variables() {
		vars[v] = true
	}
	if vars["y"] {
		if ds.Y, err = readFloats(f, "y"); err != nil {
			return nil, err
		}
	}
	if vars["x"] {
		if ds.X, err = readFloats(f, "x"); err != nil {
			return nil, err
		}
	}
	for _, names := range [][2]string{{"latitude", "lat"}, {"longitude", "lon"}} {
		for _, n := range names {
			if !vars[n] {
				continue
			}
			v, err := readFloats(f, n)
			if err != nil {
				return nil, err
			}
			if len(v) > 0 {
				if names[0] == "latitude" {
					ds.Latitude = v[0]
				} else {
					ds.Longitude = v[0]
				}
			}
			break
		}
	}

	n := len(times)
	for _, v := range h.Variables() {
		dims := h.Dimensions(v)
		if coordVars[v] || len(dims) == 0 || dims[0] != "time" {
			continue
		}
		values, err := readFloats(f, v)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s from %s: %w", v, path, err)
		}
		if n == 0 || len(values)%n != 0 {
			return nil, fmt.Errorf("%s: variable %s has %d values for %d time steps", path, v, len(values), n)
		}
		cells := len(values) / n
		fill, hasFill := fillValue(h, v)
		series := make([]float64, n)
		for i := range series {
			x := values[i*cells]
			if hasFill && x == fill {
				x = math.NaN()
			}
			series[i] = x
		}
		ds.Vars[v] = series
	}
	return ds, nil
}

// WriteNetCDF writes a dataset as a netCDF file with dimensions (time, y, x),
// one grid point, and one float64 variable per series.
func WriteNetCDF(path string, ds *Dataset) error {
	if len(ds.Time) == 0 {
		return errors.New("datasets: cannot write a dataset with no time steps")
	}
	y, x := pointOr(ds.Y), pointOr(ds.X)

	h := cdf.NewHeader([]string{"time", "y", "x"}, []int{len(ds.Time), 1, 1})
	attrs := make([]string, 0, len(ds.Attrs))
	for k := range ds.Attrs {
		attrs = append(attrs, k)
	}
	sort.Strings(attrs)
	for _, k := range attrs {
		if k == "site" {
			continue
		}
		h.AddAttribute("", k, ds.Attrs[k])
	}
	if ds.Site != "" {
		h.AddAttribute("", "site", ds.Site)
	}

	h.AddVariable("time", []string{"time"}, []float64{0})
	h.AddAttribute("time", "units", timeUnits)
	h.AddVariable("y", []string{"y"}, []float64{0})
	h.AddVariable("x", []string{"x"}, []float64{0})
	h.AddVariable("latitude", []string{"y", "x"}, []float64{0})
	h.AddVariable("longitude", []string{"y", "x"}, []float64{0})

	// Sort the names so they write in the same order every time.
	names := make([]string, 0, len(ds.Vars))
	for n := range ds.Vars {
		if coordVars[n] {
			return fmt.Errorf("datasets: variable name %q is reserved", n)
		}
		if len(ds.Vars[n]) != len(ds.Time) {
			return fmt.Errorf("datasets: %s has %d values for %d time steps", n, len(ds.Vars[n]), len(ds.Time))
		}
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		h.AddVariable(n, []string{"time", "y", "x"}, []float64{0})
	}
	h.Define()

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	f, err := cdf.Create(file, h) // writes the header
	if err != nil {
		return fmt.Errorf("failed to create netcdf %s: %w", path, err)
	}

	secs := make([]float64, len(ds.Time))
	for i, t := range ds.Time {
		secs[i] = float64(t.Unix()) + float64(t.Nanosecond())/1e9
	}
	writes := []struct {
		name string
		data []float64
	}{
		{"time", secs},
		{"y", []float64{y}},
		{"x", []float64{x}},
		{"latitude", []float64{ds.Latitude}},
		{"longitude", []float64{ds.Longitude}},
	}
	for _, n := range names {
		writes = append(writes, struct {
			name string
			data []float64
		}{n, ds.Vars[n]})
	}
	for _, w := range writes {
		if err := writeFloats(f, w.name, w.data); err != nil {
			return fmt.Errorf("writing variable %s to netcdf file: %w", w.name, err)
		}
	}
	return file.Sync()
}

func pointOr(v []float64) float64 {
	if len(v) == 0 {
		return 1.0
	}
	return v[0]
}

func writeFloats(f *cdf.File, name string, data []float64) error {
	end := f.Header.Lengths(name)
	n := 1
	for _, l := range end {
		n *= l
	}
	if len(data) != n {
		return fmt.Errorf("dims are %d but array length is %d", n, len(data))
	}
	start := make([]int, len(end))
	w := f.Writer(name, start, end)
	_, err := w.Write(data)
	return err
}

// readFloats reads a whole variable and converts it to float64.
func readFloats(f *cdf.File, name string) ([]float64, error) {
	n := 1
	for _, l := range f.Header.Lengths(name) {
		n *= l
	}
	r := f.Reader(name, nil, nil)
	buf := r.Zero(n)
	if _, err := r.Read(buf); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return toFloat64s(buf)
}

func toFloat64s(buf any) ([]float64, error) {
	switch v := buf.(type) {
	case []float64:
		return v, nil
	case []float32:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, nil
	case []int16:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, nil
	case []int8:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, nil
	case []uint8:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported netcdf variable type %T", buf)
	}
}

func fillValue(h *cdf.Header, v string) (float64, bool) {
	for _, a := range []string{"_FillValue", "missing_value"} {
		vals, err := toFloat64s(h.GetAttribute(v, a))
		if err == nil && len(vals) > 0 {
			return vals[0], true
		}
	}
	return 0, false
}

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	time.RFC3339,
}

// decodeTime converts CF-style "<unit> since <reference>" offsets to times.
func decodeTime(raw []float64, units string) ([]time.Time, error) {
	unit, ref, ok := strings.Cut(strings.TrimSpace(units), " since ")
	if !ok {
		return nil, fmt.Errorf("unsupported time units %q", units)
	}
	var scale time.Duration
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "seconds", "second", "s":
		scale = time.Second
	case "minutes", "minute", "min":
		scale = time.Minute
	case "hours", "hour", "h":
		scale = time.Hour
	case "days", "day", "d":
		scale = 24 * time.Hour
	default:
		return nil, fmt.Errorf("unsupported time unit %q", unit)
	}
	ref = strings.TrimSpace(ref)
	var base time.Time
	var err error
	for _, layout := range timeLayouts {
		if base, err = time.ParseInLocation(layout, ref, time.UTC); err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("unsupported time reference %q", ref)
	}
	out := make([]time.Time, len(raw))
	for i, v := range raw {
		out[i] = base.Add(time.Duration(math.Round(v * float64(scale)))).UTC()
	}
	return out, nil
}
