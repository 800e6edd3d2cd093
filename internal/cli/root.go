// Package cli implements the charsort command line.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/okian/charsort/internal/config"
	"github.com/okian/charsort/pkg/logger"
	"github.com/okian/charsort/pkg/metrics"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format   string // "json" | "text"
	Driver   string
	Database string

	// Config is the effective configuration once flags are applied.
	Config *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the charsort CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "charsort",
		Short: "Rank characters by pairwise comparison",
		Long: `charsort ranks the characters of a list from "which do you prefer?" answers.

Each list is ranked either by binary insertion sort or by Glicko ratings.
Configuration comes from defaults, the YAML file named by CHARSORT_CONFIG
and CHARSORT_* environment variables; --driver and --db override the store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			if err := logger.InitWith(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat); err != nil {
				return WrapExitError(ExitCommandError, "failed to initialize logging", err)
			}
			metrics.Configure(
				metrics.WithNamespace(cfg.MetricsNamespace),
				metrics.WithSubsystem(cfg.MetricsSubsystem),
				metrics.WithHistogramBuckets(cfg.MetricsBuckets),
			)
			opts.Config = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", "", "store driver (memory|sqlite|postgres)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "store DSN; a path selects sqlite unless --driver is given")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewCharCommand(opts))
	cmd.AddCommand(NewNextCommand(opts))
	cmd.AddCommand(NewCompareCommand(opts))
	cmd.AddCommand(NewUndoCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewGraphCommand(opts))

	return cmd
}

// loadConfig layers --driver and --db over the loaded configuration.
func loadConfig(cmd *cobra.Command, opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return nil, err
	}
	driverSet := cmd.Flags().Changed("driver")
	if driverSet {
		cfg.StoreDriver = opts.Driver
	}
	if opts.Database != "" {
		cfg.StoreDSN = opts.Database
		if !driverSet && cfg.StoreDriver == config.DriverMemory {
			cfg.StoreDriver = config.DriverSQLite
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
