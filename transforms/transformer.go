// Package transforms provides stateful table transformers that reshape site
// data before it reaches an estimator.
//
// Every transformer follows the same life cycle: it starts Unfitted, Fit
// captures whatever state Transform needs, and Transform refuses to run until
// that state exists.
package transforms

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Noofbiz/fluxbench/frame"
)

var (
	// ErrNotFitted is returned by Transform when Fit has not been called.
	ErrNotFitted = errors.New("transforms: transformer is not fitted")
	// ErrFeatureMismatch is returned when Transform sees a different number of
	// numeric features than Fit did.
	ErrFeatureMismatch = errors.New("transforms: feature count does not match fit")
	// ErrInvalidParam is returned for bad constructor or SetParams values.
	ErrInvalidParam = errors.New("transforms: invalid parameter")
)

// State is the fit state of a transformer.
type State int

const (
	Unfitted State = iota
	Fitted
)

func (s State) String() string {
	switch s {
	case Unfitted:
		return "unfitted"
	case Fitted:
		return "fitted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Params holds the constructor parameters of a transformer by name.
type Params map[string]any

// Transformer is a stateful table transformation.
type Transformer interface {
	// Fit captures state from X (and optionally the target table y).
	Fit(X, y *frame.Frame) error
	// Transform applies the fitted transformation to X.
	Transform(X *frame.Frame) (*frame.Frame, error)
	State() State
	Params() Params
	// SetParams updates parameters and resets the transformer to Unfitted.
	SetParams(p Params) error
}

var freqPattern = regexp.MustCompile(`^\s*(\d*)\s*([A-Za-z]+)\s*$`)

// ParseFreq parses a time frequency. It accepts offset aliases such as
// "30min", "30T", "H", "2h", "D", "S" and "ms", as well as Go durations like
// "30m" or "1h30m".
func ParseFreq(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("%w: frequency %q must be positive", ErrInvalidParam, s)
		}
		return d, nil
	}
	m := freqPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: unrecognised frequency %q", ErrInvalidParam, s)
	}
	n := 1
	if m[1] != "" {
		var err error
		n, err = strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("%w: frequency %q must be positive", ErrInvalidParam, s)
		}
	}
	var unit time.Duration
	switch m[2] {
	case "min", "T", "m":
		unit = time.Minute
	case "H", "h":
		unit = time.Hour
	case "D", "d":
		unit = 24 * time.Hour
	case "S", "s":
		unit = time.Second
	case "L", "ms":
		unit = time.Millisecond
	default:
		switch strings.ToLower(m[2]) {
		case "minute", "minutes":
			unit = time.Minute
		case "hour", "hours":
			unit = time.Hour
		case "day", "days":
			unit = 24 * time.Hour
		default:
			return 0, fmt.Errorf("%w: unrecognised frequency unit %q", ErrInvalidParam, m[2])
		}
	}
	return time.Duration(n) * unit, nil
}
