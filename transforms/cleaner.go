package transforms

import (
	"fmt"
	"slices"
	"time"

	"github.com/Noofbiz/fluxbench/frame"
)

// Float64 is the data type of every numeric frame column.
const Float64 = "float64"

// ColumnType pairs a column name with its data type.
type ColumnType struct {
	Name  string
	DType string
}

// TableMeta is what Cleaner remembers about a table.
type TableMeta struct {
	Columns []string
	Index   []time.Time
	Types   []ColumnType
	// Key holds the grouping labels popped from the table, nil if it had none.
	Key *frame.Key
}

type cleanerState struct {
	x *TableMeta
	y *TableMeta
}

// Cleaner strips the grouping column from tables so estimators only see
// numeric data, and keeps the metadata needed to rebuild them.
//
// RemoveNA is carried as a parameter but does not filter rows.
type Cleaner struct {
	RemoveNA bool

	fitted *cleanerState
}

// NewCleaner creates a cleaner.
func NewCleaner(removeNA bool) *Cleaner {
	return &Cleaner{RemoveNA: removeNA}
}

// Fit records column, index, type and grouping metadata of X and, when given,
// of y. The inputs are not modified.
func (c *Cleaner) Fit(X, y *frame.Frame) error {
	st := &cleanerState{x: describe(X)}
	if y != nil {
		st.y = describe(y)
	}
	c.fitted = st
	return nil
}

func describe(f *frame.Frame) *TableMeta {
	m := &TableMeta{
		Columns: f.Columns(),
		Index:   slices.Clone(f.Index()),
	}
	for _, name := range m.Columns {
		m.Types = append(m.Types, ColumnType{Name: name, DType: Float64})
	}
	if k, ok := f.Key(); ok {
		m.Key = &frame.Key{Name: k.Name, Labels: slices.Clone(k.Labels)}
	}
	return m
}

// Transform returns X without its grouping column.
func (c *Cleaner) Transform(X *frame.Frame) (*frame.Frame, error) {
	if c.fitted == nil {
		return nil, fmt.Errorf("%w: Cleaner", ErrNotFitted)
	}
	return X.WithoutKey(), nil
}

// Restore re-attaches the grouping labels captured from X at fit time. X must
// have the fitted table's time index, row for row.
func (c *Cleaner) Restore(X *frame.Frame) (*frame.Frame, error) {
	if c.fitted == nil {
		return nil, fmt.Errorf("%w: Cleaner", ErrNotFitted)
	}
	want := c.fitted.x.Index
	if X.Len() != len(want) {
		return nil, fmt.Errorf("%w: restoring %d rows onto a table fitted with %d", frame.ErrLength, X.Len(), len(want))
	}
	for i, t := range X.Index() {
		if !t.Equal(want[i]) {
			return nil, fmt.Errorf("%w: row %d is at %s, fitted table has %s", frame.ErrMismatch, i, t, want[i])
		}
	}
	out := X.Clone()
	k := c.fitted.x.Key
	if k == nil {
		return out, nil
	}
	if err := out.SetKey(k.Name, k.Labels); err != nil {
		return nil, fmt.Errorf("restore %q: %w", k.Name, err)
	}
	return out, nil
}

// XMeta returns the metadata captured from X, or nil when unfitted.
func (c *Cleaner) XMeta() *TableMeta {
	if c.fitted == nil {
		return nil
	}
	return c.fitted.x
}

// YMeta returns the metadata captured from y, or nil when unfitted or when
// Fit received no target table.
func (c *Cleaner) YMeta() *TableMeta {
	if c.fitted == nil {
		return nil
	}
	return c.fitted.y
}

// State reports whether Fit has been called.
func (c *Cleaner) State() State {
	if c.fitted == nil {
		return Unfitted
	}
	return Fitted
}

// Params returns the cleaner parameters.
func (c *Cleaner) Params() Params {
	return Params{"remove_na": c.RemoveNA}
}

// SetParams updates "remove_na" and discards any fitted state.
func (c *Cleaner) SetParams(p Params) error {
	for k, v := range p {
		if k != "remove_na" {
			return fmt.Errorf("%w: unknown Cleaner parameter %q", ErrInvalidParam, k)
		}
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("%w: remove_na must be a bool, got %T", ErrInvalidParam, v)
		}
		c.RemoveNA = b
	}
	c.fitted = nil
	return nil
}

func (c *Cleaner) String() string {
	return fmt.Sprintf("Cleaner(remove_na=%t)", c.RemoveNA)
}
