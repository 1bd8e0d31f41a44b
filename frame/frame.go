// Package frame provides a small labeled table used to move site data
// between loaders, transformers and estimators.
//
// A Frame has a time index, an ordered set of float64 columns (missing values
// are NaN) and an optional grouping Key holding one string label per row. The
// grouping key is the only non-numeric column a Frame can carry.
package frame

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"time"
)

var (
	// ErrLength is returned when a column or key does not match the frame length.
	ErrLength = errors.New("frame: length mismatch")
	// ErrNoColumn is returned when a named column does not exist.
	ErrNoColumn = errors.New("frame: no such column")
	// ErrMismatch is returned when frames cannot be combined.
	ErrMismatch = errors.New("frame: incompatible frames")
)

// SiteKey is the name of the grouping key used for multi-site tables.
const SiteKey = "site"

// Key is a grouping column: one label per row.
type Key struct {
	Name   string
	Labels []string
}

// Group is the set of rows sharing one key label.
type Group struct {
	Label string
	Rows  []int
}

// Frame is a time-indexed table of float64 columns.
type Frame struct {
	index []time.Time
	names []string
	cols  map[string][]float64
	key   *Key
}

// New creates an empty frame over the given index. The index is copied.
func New(index []time.Time) *Frame {
	return &Frame{
		index: slices.Clone(index),
		cols:  make(map[string][]float64),
	}
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.index) }

// Index returns the time index. Callers must not modify it.
func (f *Frame) Index() []time.Time { return f.index }

// Columns returns the numeric column names in order.
func (f *Frame) Columns() []string { return slices.Clone(f.names) }

// NumColumns returns the number of numeric columns.
func (f *Frame) NumColumns() int { return len(f.names) }

// Column returns the values of a numeric column. Callers must not modify it.
func (f *Frame) Column(name string) ([]float64, bool) {
	v, ok := f.cols[name]
	return v, ok
}

// Set adds or replaces a numeric column. The values are copied.
func (f *Frame) Set(name string, values []float64) error {
	if len(values) != len(f.index) {
		return fmt.Errorf("%w: column %q has %d values, frame has %d rows", ErrLength, name, len(values), len(f.index))
	}
	if name == "" {
		return fmt.Errorf("frame: empty column name")
	}
	if f.key != nil && f.key.Name == name {
		return fmt.Errorf("%w: %q is the grouping key", ErrMismatch, name)
	}
	if _, ok := f.cols[name]; !ok {
		f.names = append(f.names, name)
	}
	f.cols[name] = slices.Clone(values)
	return nil
}

// SetKey attaches a grouping key. The labels are copied.
func (f *Frame) SetKey(name string, labels []string) error {
	if len(labels) != len(f.index) {
		return fmt.Errorf("%w: key %q has %d labels, frame has %d rows", ErrLength, name, len(labels), len(f.index))
	}
	if _, ok := f.cols[name]; ok {
		return fmt.Errorf("%w: %q is already a numeric column", ErrMismatch, name)
	}
	f.key = &Key{Name: name, Labels: slices.Clone(labels)}
	return nil
}

// Key returns the grouping key, if any.
func (f *Frame) Key() (Key, bool) {
	if f.key == nil {
		return Key{}, false
	}
	return *f.key, true
}

// HasKey reports whether the frame carries a grouping key with the given name.
func (f *Frame) HasKey(name string) bool {
	return f.key != nil && f.key.Name == name
}

// WithoutKey returns a copy of the frame with the grouping key removed.
func (f *Frame) WithoutKey() *Frame {
	out := f.Clone()
	out.key = nil
	return out
}

// Groups returns the rows of each key label, sorted by label. An ungrouped
// frame is a single group with an empty label covering every row.
func (f *Frame) Groups() []Group {
	if f.key == nil {
		rows := make([]int, len(f.index))
		for i := range rows {
			rows[i] = i
		}
		return []Group{{Rows: rows}}
	}
	byLabel := make(map[string][]int)
	for i, l := range f.key.Labels {
		byLabel[l] = append(byLabel[l], i)
	}
	labels := make([]string, 0, len(byLabel))
	for l := range byLabel {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	groups := make([]Group, len(labels))
	for i, l := range labels {
		groups[i] = Group{Label: l, Rows: byLabel[l]}
	}
	return groups
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	out := New(f.index)
	out.names = slices.Clone(f.names)
	for n, v := range f.cols {
		out.cols[n] = slices.Clone(v)
	}
	if f.key != nil {
		out.key = &Key{Name: f.key.Name, Labels: slices.Clone(f.key.Labels)}
	}
	return out
}

// Select returns a frame restricted to the named numeric columns, in the
// given order. The grouping key is kept.
func (f *Frame) Select(names ...string) (*Frame, error) {
	out := New(f.index)
	for _, n := range names {
		v, ok := f.cols[n]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrNoColumn, n)
		}
		out.names = append(out.names, n)
		out.cols[n] = slices.Clone(v)
	}
	if f.key != nil {
		out.key = &Key{Name: f.key.Name, Labels: slices.Clone(f.key.Labels)}
	}
	return out, nil
}

// Take returns the given rows, in the given order.
func (f *Frame) Take(rows []int) *Frame {
	idx := make([]time.Time, len(rows))
	for i, r := range rows {
		idx[i] = f.index[r]
	}
	out := New(idx)
	out.names = slices.Clone(f.names)
	for n, v := range f.cols {
		col := make([]float64, len(rows))
		for i, r := range rows {
			col[i] = v[r]
		}
		out.cols[n] = col
	}
	if f.key != nil {
		labels := make([]string, len(rows))
		for i, r := range rows {
			labels[i] = f.key.Labels[r]
		}
		out.key = &Key{Name: f.key.Name, Labels: labels}
	}
	return out
}

// Filter returns the rows where mask is true.
func (f *Frame) Filter(mask []bool) (*Frame, error) {
	if len(mask) != len(f.index) {
		return nil, fmt.Errorf("%w: mask has %d entries, frame has %d rows", ErrLength, len(mask), len(f.index))
	}
	return f.Take(MaskRows(mask)), nil
}

// CompleteRows returns a mask that is true where no numeric column is NaN.
func (f *Frame) CompleteRows() []bool {
	mask := make([]bool, len(f.index))
	for i := range mask {
		mask[i] = true
	}
	for _, n := range f.names {
		for i, v := range f.cols[n] {
			if math.IsNaN(v) {
				mask[i] = false
			}
		}
	}
	return mask
}

// Join returns the columns of f followed by the columns of other. Both frames
// must share the same index. The key of f wins; other's key is dropped.
func (f *Frame) Join(other *Frame) (*Frame, error) {
	if !sameIndex(f.index, other.index) {
		return nil, fmt.Errorf("%w: join requires identical indexes", ErrMismatch)
	}
	out := f.Clone()
	for _, n := range other.names {
		if _, ok := out.cols[n]; ok {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrMismatch, n)
		}
		out.names = append(out.names, n)
		out.cols[n] = slices.Clone(other.cols[n])
	}
	return out, nil
}

// Rows returns the numeric data in row-major order.
func (f *Frame) Rows() [][]float64 {
	rows := make([][]float64, len(f.index))
	for i := range rows {
		row := make([]float64, len(f.names))
		for j, n := range f.names {
			row[j] = f.cols[n][i]
		}
		rows[i] = row
	}
	return rows
}

// Mean returns the mean of a column ignoring NaN, or NaN if the column has no
// values.
func (f *Frame) Mean(name string) (float64, error) {
	v, ok := f.cols[name]
	if !ok {
		return math.NaN(), fmt.Errorf("%w: %q", ErrNoColumn, name)
	}
	return NaNMean(v), nil
}

// Concat stacks frames row-wise. All frames must have the same numeric columns
// and either all carry a key of the same name or none.
func Concat(frames ...*Frame) (*Frame, error) {
	if len(frames) == 0 {
		return New(nil), nil
	}
	first := frames[0]
	var idx []time.Time
	for i, fr := range frames {
		if !slices.Equal(fr.names, first.names) {
			return nil, fmt.Errorf("%w: frame %d columns %v differ from %v", ErrMismatch, i, fr.names, first.names)
		}
		if (fr.key == nil) != (first.key == nil) || (fr.key != nil && fr.key.Name != first.key.Name) {
			return nil, fmt.Errorf("%w: frame %d grouping key differs", ErrMismatch, i)
		}
		idx = append(idx, fr.index...)
	}
	out := New(idx)
	out.names = slices.Clone(first.names)
	for _, n := range first.names {
		col := make([]float64, 0, len(idx))
		for _, fr := range frames {
			col = append(col, fr.cols[n]...)
		}
		out.cols[n] = col
	}
	if first.key != nil {
		labels := make([]string, 0, len(idx))
		for _, fr := range frames {
			labels = append(labels, fr.key.Labels...)
		}
		out.key = &Key{Name: first.key.Name, Labels: labels}
	}
	return out, nil
}

// MaskRows converts a boolean mask into row positions.
func MaskRows(mask []bool) []int {
	rows := make([]int, 0, len(mask))
	for i, ok := range mask {
		if ok {
			rows = append(rows, i)
		}
	}
	return rows
}

// CountTrue counts the selected rows of a mask.
func CountTrue(mask []bool) int {
	n := 0
	for _, ok := range mask {
		if ok {
			n++
		}
	}
	return n
}

// NaNMean averages the non-NaN values of v.
func NaNMean(v []float64) float64 {
	var sum float64
	n := 0
	for _, x := range v {
		if math.IsNaN(x) {
			continue
		}
		sum += x
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

func sameIndex(a, b []time.Time) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
