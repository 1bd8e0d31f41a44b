// Command fluxbench fits empirical flux models with leave-one-site-out
// training, evaluates them against flux-tower observations and writes an rst
// report per model and site.
//
// Usage:
//
//	fluxbench run <name> <site|all>
//	fluxbench eval <name> <site|all> [file]
//	fluxbench import-benchmark <name>
//	fluxbench models
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Noofbiz/fluxbench/config"
	"github.com/Noofbiz/fluxbench/datasets"
	"github.com/Noofbiz/fluxbench/evaluate"
	"github.com/Noofbiz/fluxbench/models"
	"github.com/Noofbiz/fluxbench/plots"
	"github.com/Noofbiz/fluxbench/report"
	"github.com/Noofbiz/fluxbench/simulate"
)

// app holds what the subcommands share once configuration is loaded.
type app struct {
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
}

func (a *app) registry() *models.Registry {
	return models.Default(models.Options{
		LagPeriods: a.cfg.Lag.Periods,
		LagFreq:    a.cfg.Lag.Freq,
		Seed:       a.cfg.Seed,
	})
}

func (a *app) runner() *simulate.Runner {
	loader := datasets.NewLoader(a.cfg.DataPattern, a.logger)
	driver := simulate.NewDriver(loader, a.cfg.Sites, a.logger)
	driver.MetVars = a.cfg.MetVars
	driver.FluxVars = a.cfg.FluxVars
	return &simulate.Runner{
		Driver:           driver,
		Store:            simulate.NewStore(a.cfg.OutputDir),
		Evaluator:        evaluate.NewEvaluator(a.logger),
		Plotter:          plots.NewPlotter(a.logger),
		Reports:          report.NewWriter(a.logger),
		BenchmarkPattern: a.cfg.BenchmarkPattern,
		Logger:           a.logger,
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "fluxbench",
		Short: "Fit, evaluate and report empirical flux models",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			cfg, err := config.Load(a.cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			logger, err := config.NewLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a.cfg, a.logger = cfg, logger
			if cfg.File != "" {
				logger.Debug("using config file", "path", cfg.File)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default: ./"+config.DefaultFile+")")
	pf.String("data-pattern", "", "site data path template with {family} and {site}")
	pf.String("benchmark-pattern", "", "benchmark path template with {name} and {site}")
	pf.String("output-dir", "", "directory holding models, simulations and reports")
	pf.StringSlice("sites", nil, "sites to train and run on")
	pf.String("log-level", "", "log level (debug|info|warn|error)")
	pf.String("log-format", "", "log format (text|json)")
	pf.Int("lag-periods", 0, "number of periods lagged models shift by")
	pf.String("lag-freq", "", "time step of one lag period, e.g. 30min")
	pf.Int64("seed", 0, "random seed for stochastic models")

	root.AddCommand(newRunCmd(a), newEvalCmd(a), newImportBenchmarkCmd(a), newModelsCmd(a))
	return root
}

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run <name> <site|all>",
		Short: "Fit and run a model at a site, then evaluate and report it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, site := args[0], args[1]
			model, err := a.registry().Get(name)
			if err != nil {
				return err
			}
			return a.runner().Run(cmd.Context(), model, name, site)
		},
	}
}

func newEvalCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "eval <name> <site|all> [file]",
		Short: "Evaluate an existing simulation, optionally importing it from a file first",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var file string
			if len(args) == 3 {
				file = args[2]
			}
			return a.runner().Eval(cmd.Context(), args[0], args[1], file)
		},
	}
}

func newImportBenchmarkCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import-benchmark <name>",
		Short: "Copy a benchmark's simulations for every site into the model store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runner().ImportBenchmark(cmd.Context(), args[0])
		},
	}
}

func newModelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the available models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := a.registry()
			for _, n := range r.Names() {
				m, err := r.Get(n)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", n, m)
			}
			return nil
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
