// Package config loads fluxbench settings from defaults, an optional YAML
// file, FLUXBENCH_ environment variables and command-line flags, in that order
// of increasing precedence.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/Noofbiz/fluxbench/datasets"
	"github.com/Noofbiz/fluxbench/transforms"
)

// DefaultFile is read when present and no file is given explicitly.
const DefaultFile = "fluxbench.yaml"

const envPrefix = "FLUXBENCH_"

const (
	DefaultDataPattern      = "data/PALS/datasets/{family}/{site}Fluxnet.1.4_{family}.nc"
	DefaultBenchmarkPattern = "data/PALS/benchmarks/{name}/{name}_{site}Fluxnet.1.4.nc"
	DefaultOutputDir        = "source"
)

// LagConfig configures the lag transformer of lagged models.
type LagConfig struct {
	Periods int    `koanf:"periods" validate:"gt=0"`
	Freq    string `koanf:"freq" validate:"required"`
}

// Config holds every setting.
type Config struct {
	DataPattern      string    `koanf:"data_pattern" validate:"required"`
	BenchmarkPattern string    `koanf:"benchmark_pattern" validate:"required"`
	OutputDir        string    `koanf:"output_dir" validate:"required"`
	Sites            []string  `koanf:"sites" validate:"min=1,dive,required"`
	MetVars          []string  `koanf:"met_vars" validate:"min=1,dive,required"`
	FluxVars         []string  `koanf:"flux_vars" validate:"min=1,dive,required"`
	LogLevel         string    `koanf:"log_level" validate:"oneof=debug info warn error"`
	LogFormat        string    `koanf:"log_format" validate:"oneof=text json"`
	Lag              LagConfig `koanf:"lag"`
	Seed             int64     `koanf:"seed"`

	// File is the configuration file that was read, if any.
	File string `koanf:"-"`
}

func defaults() map[string]any {
	return map[string]any{
		"data_pattern":      DefaultDataPattern,
		"benchmark_pattern": DefaultBenchmarkPattern,
		"output_dir":        DefaultOutputDir,
		"sites":             datasets.Sites,
		"met_vars":          datasets.MetVars,
		"flux_vars":         datasets.FluxVars,
		"log_level":         "info",
		"log_format":        "text",
		"lag.periods":       transforms.DefaultLagPeriods,
		"lag.freq":          transforms.DefaultLagFreq,
		"seed":              int64(42),
	}
}

// keyFor maps a flag or environment name such as "lag-periods" or
// "LAG_PERIODS" to its config key.
func keyFor(name string) string {
	key := strings.ToLower(strings.ReplaceAll(name, "-", "_"))
	if rest, ok := strings.CutPrefix(key, "lag_"); ok {
		return "lag." + rest
	}
	return key
}

// listKeys hold comma-separated lists when set from the environment.
var listKeys = map[string]bool{"sites": true, "met_vars": true, "flux_vars": true}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load reads the configuration. path may be empty, in which case DefaultFile
// is used when it exists. flags may be nil; only flags that were set apply.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(envPrefix, ".", func(name, value string) (string, any) {
		key := keyFor(strings.TrimPrefix(name, envPrefix))
		if listKeys[key] {
			return key, splitList(value)
		}
		return key, value
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed || f.Name == "config" {
				return "", nil
			}
			return keyFor(f.Name), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and that the path templates carry the
// placeholders they are expanded with.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for _, p := range []string{"{family}", "{site}"} {
		if !strings.Contains(c.DataPattern, p) {
			return fmt.Errorf("invalid config: data_pattern %q lacks %s", c.DataPattern, p)
		}
	}
	if !strings.Contains(c.BenchmarkPattern, "{site}") {
		return fmt.Errorf("invalid config: benchmark_pattern %q lacks {site}", c.BenchmarkPattern)
	}
	if _, err := transforms.ParseFreq(c.Lag.Freq); err != nil {
		return fmt.Errorf("invalid config: lag.freq: %w", err)
	}
	return nil
}

// NewLogger builds the process logger from the log settings.
func NewLogger(c *Config, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch c.LogFormat {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", c.LogFormat)
	}
}
