package transforms

import (
	"fmt"
	"math"
	"time"

	"github.com/Noofbiz/fluxbench/frame"
)

// LagSuffix is appended to the name of every lagged column.
const LagSuffix = "_lag"

// Default lag parameters: one period at 30 minute spacing.
const (
	DefaultLagPeriods = 1
	DefaultLagFreq    = "30min"
)

// lagState is the fitted payload of a Lag.
type lagState struct {
	nInput  int
	nOutput int
	columns []string
	means   map[string]float64
}

// Lag adds a time-shifted copy of every numeric column.
//
// Shifting is done on the time index, per group of the frame's grouping key:
// the lagged value at time t is the value the same group had at
// t - Periods*Freq, or NaN when the group has no row at that time.
type Lag struct {
	periods int
	freq    string
	step    time.Duration

	fitted *lagState
}

// NewLag creates a lag transformer. periods must be positive.
func NewLag(periods int, freq string) (*Lag, error) {
	l := &Lag{}
	if err := l.configure(periods, freq); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Lag) configure(periods int, freq string) error {
	if periods <= 0 {
		return fmt.Errorf("%w: lag periods must be positive, got %d", ErrInvalidParam, periods)
	}
	if freq == "" {
		freq = DefaultLagFreq
	}
	d, err := ParseFreq(freq)
	if err != nil {
		return err
	}
	l.periods = periods
	l.freq = freq
	l.step = time.Duration(periods) * d
	return nil
}

// Fit records the number of numeric features and their means.
func (l *Lag) Fit(X, _ *frame.Frame) error {
	cols := X.Columns()
	st := &lagState{
		nInput:  len(cols),
		nOutput: 2 * len(cols),
		columns: cols,
		means:   make(map[string]float64, len(cols)),
	}
	for _, c := range cols {
		m, err := X.Mean(c)
		if err != nil {
			return err
		}
		st.means[c] = m
	}
	l.fitted = st
	return nil
}

// Transform returns X with a lagged copy of each numeric column appended.
// Rows keep their input order and the grouping key is preserved. The copy of
// column c is named c+LagSuffix, suffixed again while that name is taken, so
// input columns are never overwritten.
func (l *Lag) Transform(X *frame.Frame) (*frame.Frame, error) {
	if l.fitted == nil {
		return nil, fmt.Errorf("%w: Lag", ErrNotFitted)
	}
	cols := X.Columns()
	if len(cols) != l.fitted.nInput {
		return nil, fmt.Errorf("%w: fitted on %d numeric columns, got %d", ErrFeatureMismatch, l.fitted.nInput, len(cols))
	}

	n := X.Len()
	idx := X.Index()
	src := make([]int, n)
	for i := range src {
		src[i] = -1
	}
	for _, g := range X.Groups() {
		at := make(map[int64]int, len(g.Rows))
		for _, r := range g.Rows {
			k := idx[r].UnixNano()
			if _, dup := at[k]; !dup {
				at[k] = r
			}
		}
		for _, r := range g.Rows {
			if j, ok := at[idx[r].Add(-l.step).UnixNano()]; ok {
				src[r] = j
			}
		}
	}

	taken := make(map[string]bool, 2*len(cols))
	for _, c := range cols {
		taken[c] = true
	}
	out := X.Clone()
	for _, c := range cols {
		// A name already in use gets the suffix again until it is free.
		name := c + LagSuffix
		for taken[name] {
			name += LagSuffix
		}
		taken[name] = true

		v, _ := X.Column(c)
		lagged := make([]float64, n)
		for r, j := range src {
			if j < 0 {
				lagged[r] = math.NaN()
				continue
			}
			lagged[r] = v[j]
		}
		if err := out.Set(name, lagged); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// State reports whether Fit has been called.
func (l *Lag) State() State {
	if l.fitted == nil {
		return Unfitted
	}
	return Fitted
}

// Params returns the lag parameters.
func (l *Lag) Params() Params {
	return Params{"periods": l.periods, "freq": l.freq}
}

// SetParams updates "periods" and/or "freq" and discards any fitted state.
func (l *Lag) SetParams(p Params) error {
	periods, freq := l.periods, l.freq
	for k, v := range p {
		switch k {
		case "periods":
			n, ok := v.(int)
			if !ok {
				return fmt.Errorf("%w: periods must be an int, got %T", ErrInvalidParam, v)
			}
			periods = n
		case "freq":
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("%w: freq must be a string, got %T", ErrInvalidParam, v)
			}
			freq = s
		default:
			return fmt.Errorf("%w: unknown Lag parameter %q", ErrInvalidParam, k)
		}
	}
	if err := l.configure(periods, freq); err != nil {
		return err
	}
	l.fitted = nil
	return nil
}

// NInputFeatures is the number of numeric columns seen by Fit.
func (l *Lag) NInputFeatures() int {
	if l.fitted == nil {
		return 0
	}
	return l.fitted.nInput
}

// NOutputFeatures is the number of numeric columns Transform produces.
func (l *Lag) NOutputFeatures() int {
	if l.fitted == nil {
		return 0
	}
	return l.fitted.nOutput
}

// Means returns the per-column means captured by Fit. Transform does not use
// them; they are kept for NA substitution by callers.
func (l *Lag) Means() map[string]float64 {
	if l.fitted == nil {
		return nil
	}
	out := make(map[string]float64, len(l.fitted.means))
	for k, v := range l.fitted.means {
		out[k] = v
	}
	return out
}

func (l *Lag) String() string {
	return fmt.Sprintf("Lag(periods=%d, freq=%s)", l.periods, l.freq)
}
