package datasets

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// Open reads a site dataset, choosing the codec from the file extension
// (".nc" for netCDF, ".csv" for CSV).
func Open(path string) (*Dataset, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".nc", ".nc4", ".cdf":
		return ReadNetCDF(path)
	case ".csv":
		return ReadCSV(path)
	default:
		return nil, fmt.Errorf("datasets: unsupported file type %q", path)
	}
}

// Expand substitutes {key} placeholders in a path template.
func Expand(pattern string, values map[string]string) string {
	pairs := make([]string, 0, 2*len(values))
	for k, v := range values {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(pattern)
}

// Loader reads site datasets from files named by a path template containing
// {family} and {site}, e.g. "data/PALS/datasets/{family}/{site}Fluxnet.1.4_{family}.nc".
type Loader struct {
	Pattern string
	Logger  *slog.Logger
}

// NewLoader creates a loader for the given path template.
func NewLoader(pattern string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{Pattern: pattern, Logger: logger}
}

// Path returns the file holding one site's data for a family.
func (l *Loader) Path(family Family, site string) string {
	return Expand(l.Pattern, map[string]string{"family": string(family), "site": site})
}

// LoadSites reads the given sites for one variable family.
func (l *Loader) LoadSites(ctx context.Context, family Family, sites []string) (Collection, error) {
	out := make(Collection, len(sites))
	for _, s := range sites {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := l.Path(family, s)
		ds, err := Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s data for %s: %w", family, s, err)
		}
		ds.Site = s
		out[s] = ds
	}
	l.logger().Debug("loaded site data", "family", family, "sites", len(out))
	return out, nil
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}
