// Package cli provides the command-line interface for the portfolio tracker.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"portfolio-tracker/internal/analysis/indicators"
	"portfolio-tracker/internal/config"
	"portfolio-tracker/internal/logging"
	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/quotes"
	"portfolio-tracker/internal/refresh"
	"portfolio-tracker/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-06-01"
)

// App holds the application dependencies. Quote services are built on
// first use so commands that only compute, like project, never open the
// database.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Store    store.SeriesStore
	Sync     refresh.SyncRecorder // nil without persistence
	Resolver *quotes.Resolver
	Engine   *indicators.Engine
	Now      func() time.Time

	closers []func() error
}

// NewRootCmd creates the root command for the CLI. A nil cfg is loaded from
// the --config directory before any command runs.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	return newRootCmd(&App{Config: cfg, Logger: logger})
}

func newRootCmd(app *App) *cobra.Command {
	if app.Now == nil {
		app.Now = time.Now
	}

	rootCmd := &cobra.Command{
		Use:   "tracker",
		Short: "Portfolio tracker - ETF quotes, indicators and simulations",
		Long: `Portfolio tracker resolves daily price history for ETFs and stocks by ISIN
or ticker from several quote providers, with fallback and a local store.

On top of the history it computes technical indicators, risk metrics,
drawdowns, support/resistance levels, moving-average crossovers,
correlations, DCA back-tests and savings projections.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ParseFormat(mustString(cmd, "output")); err != nil {
				return err
			}
			if app.Config == nil {
				dir, _ := cmd.Flags().GetString("config")
				cfg, err := config.Load(dir)
				if err != nil {
					return err
				}
				app.Config = cfg
				app.Logger = logging.NewLoggerWithConfig(cfg.Logging)
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/portfolio-tracker)")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "output format: table, json or yaml")
	rootCmd.PersistentFlags().Bool("json", false, "shorthand for --output json")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	addQuoteCommands(rootCmd, app)
	addAnalysisCommands(rootCmd, app)
	addSimulationCommands(rootCmd, app)
	addCacheCommands(rootCmd, app)
	addWatchCommand(rootCmd, app)

	return rootCmd
}

func mustString(cmd *cobra.Command, name string) string {
	s, _ := cmd.Flags().GetString(name)
	return s
}

// services builds the store, resolver and engine unless already set.
func (a *App) services(ctx context.Context) error {
	if a.Engine == nil {
		an := a.Config.Analysis
		a.Engine = indicators.NewEngine(an.Workers, indicators.Params{
			RSIPeriod:       an.RSIPeriod,
			BollingerPeriod: an.BollingerPeriod,
			BollingerK:      an.BollingerK,
			RiskFreeRate:    an.RiskFreeRate,
		})
	}
	if a.Resolver != nil {
		return nil
	}

	if a.Store == nil {
		opts := []store.Option{store.WithMaxAge(a.Config.Store.MaxAge), store.WithLogger(a.Logger)}
		if path := a.Config.Store.DBPath; path != "" {
			backend, err := store.NewSQLiteBackend(path)
			if err != nil {
				a.Logger.Warn().Err(err).Str("path", path).Msg("Failed to open series database, continuing in memory")
			} else {
				opts = append(opts, store.WithBackend(backend))
				a.Sync = backend
			}
		}
		st, err := store.NewMemoryStore(ctx, opts...)
		if err != nil {
			return fmt.Errorf("opening series store: %w", err)
		}
		a.Store = st
		a.closers = append(a.closers, st.Close)
	}

	resolver, err := quotes.NewResolverFromConfig(a.Config, a.Store, a.Logger)
	if err != nil {
		return err
	}
	a.Resolver = resolver
	return nil
}

// Close releases the store.
func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

// period reads and validates the --period flag.
func period(cmd *cobra.Command) (models.Period, error) {
	return models.ParsePeriod(mustString(cmd, "period"))
}

// benchmark resolves the configured benchmark. Failures only cost beta.
func (a *App) benchmark(ctx context.Context, p models.Period) *models.PriceSeries {
	id := models.InstrumentID(a.Config.Analysis.Benchmark).Normalize()
	if id == "" {
		return nil
	}
	series, err := a.Resolver.Resolve(ctx, id, p)
	if err != nil {
		a.Logger.Warn().Err(err).Str("benchmark", id.String()).Msg("Benchmark unavailable, beta omitted")
		return nil
	}
	return series
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsStructured() {
				return output.Render(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("Portfolio tracker v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsStructured() {
				return output.Render(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			dir := mustString(cmd, "config")
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			if output.IsStructured() {
				return output.Render(map[string]string{"path": dir})
			}
			output.Println(dir)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsStructured() {
				return output.Render(map[string]bool{"valid": true})
			}
			output.Success("Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Quotes")
	output.Printf("  Sources:         %v\n", cfg.Quotes.Sources)
	output.Printf("  Timeout:         %s\n", cfg.Quotes.Timeout)
	output.Printf("  Retries:         %d\n", cfg.Quotes.RetryAttempts)
	output.Printf("  Breaker:         %d failures, %s cooldown\n", cfg.Quotes.BreakerFailures, cfg.Quotes.BreakerCooldown)
	output.Println()

	output.Bold("Store")
	output.Printf("  Max age:         %s\n", cfg.Store.MaxAge)
	output.Printf("  Database:        %s\n", cfg.Store.DBPath)
	output.Println()

	a := cfg.Analysis
	output.Bold("Analysis")
	output.Printf("  RSI period:      %d\n", a.RSIPeriod)
	output.Printf("  Bollinger:       %d, k=%.1f\n", a.BollingerPeriod, a.BollingerK)
	output.Printf("  Drawdown:        %.0f%% threshold\n", a.DrawdownThreshold*100)
	output.Printf("  Levels:          window %d, tolerance %.1f%%\n", a.LevelWindow, a.LevelTolerance*100)
	output.Printf("  Benchmark:       %s\n", a.Benchmark)
	output.Println()

	output.Bold("Refresh")
	output.Printf("  Schedule:        %s\n", cfg.Refresh.Schedule)
	output.Printf("  Period:          %s\n", cfg.Refresh.Period)
	output.Printf("  Watchlist:       %v\n", cfg.Refresh.Watchlist)
}
