// Package config provides configuration management for the portfolio tracker.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/logging"
)

// Config holds all application configuration.
type Config struct {
	Quotes      QuotesConfig      `mapstructure:"quotes"`
	Store       StoreConfig       `mapstructure:"store"`
	Analysis    AnalysisConfig    `mapstructure:"analysis"`
	Refresh     RefreshConfig     `mapstructure:"refresh"`
	Logging     logging.LogConfig `mapstructure:"logging"`
	Credentials Credentials       `mapstructure:"-" json:"-"` // Loaded separately
	Symbols     map[string]string `mapstructure:"symbols"`    // ISIN -> ticker overrides
}

// QuotesConfig holds quote acquisition configuration.
type QuotesConfig struct {
	Sources           []string      `mapstructure:"sources"` // priority order
	Timeout           time.Duration `mapstructure:"timeout"`
	RetryAttempts     int           `mapstructure:"retry_attempts"` // extra attempts on Unavailable
	RetryInitialDelay time.Duration `mapstructure:"retry_initial_delay"`
	RetryMaxDelay     time.Duration `mapstructure:"retry_max_delay"`
	BreakerFailures   int           `mapstructure:"breaker_failures"`
	BreakerCooldown   time.Duration `mapstructure:"breaker_cooldown"`
	MaxGapDays        int           `mapstructure:"max_gap_days"`
	Concurrency       int           `mapstructure:"concurrency"`
	UserAgent         string        `mapstructure:"user_agent"`
}

// StoreConfig holds series store configuration.
type StoreConfig struct {
	MaxAge time.Duration `mapstructure:"max_age"`
	DBPath string        `mapstructure:"db_path"` // empty disables persistence
}

// AnalysisConfig holds indicator and detector parameters.
type AnalysisConfig struct {
	RSIPeriod         int     `mapstructure:"rsi_period"`
	BollingerPeriod   int     `mapstructure:"bollinger_period"`
	BollingerK        float64 `mapstructure:"bollinger_k"`
	DrawdownThreshold float64 `mapstructure:"drawdown_threshold"`
	ReboundDays       int     `mapstructure:"rebound_days"`
	LevelWindow       int     `mapstructure:"level_window"`
	LevelTolerance    float64 `mapstructure:"level_tolerance"`
	CrossConfirmDays  int     `mapstructure:"cross_confirm_days"`
	Benchmark         string  `mapstructure:"benchmark"`
	MinOverlap        int     `mapstructure:"min_overlap"`
	RiskFreeRate      float64 `mapstructure:"risk_free_rate"`
	Workers           int     `mapstructure:"workers"`
}

// RefreshConfig holds scheduled refresh configuration.
type RefreshConfig struct {
	Schedule  string   `mapstructure:"schedule"` // cron spec
	Watchlist []string `mapstructure:"watchlist"`
	Period    string   `mapstructure:"period"`
}

// Credentials holds API credentials.
type Credentials struct {
	EODHD EODHDCredentials `mapstructure:"eodhd"`
}

// EODHDCredentials holds EODHD API credentials.
type EODHDCredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/portfolio-tracker"
	}
	return filepath.Join(home, ".config", "portfolio-tracker")
}

// Default returns the configuration used when no file overrides a value.
func Default() *Config {
	cfg := &Config{}
	v := viper.New()
	setDefaults(v, DefaultConfigDir())
	// Unmarshal of defaults only fails on programming errors.
	if err := v.Unmarshal(cfg); err != nil {
		panic(err)
	}
	return cfg
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config file is replaced by a template and defaults apply.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("quotes.sources", []string{"yahoo", "justetf", "eodhd"})
	v.SetDefault("quotes.timeout", 10*time.Second)
	v.SetDefault("quotes.retry_attempts", 1)
	v.SetDefault("quotes.retry_initial_delay", 500*time.Millisecond)
	v.SetDefault("quotes.retry_max_delay", 5*time.Second)
	v.SetDefault("quotes.breaker_failures", 5)
	v.SetDefault("quotes.breaker_cooldown", 2*time.Minute)
	v.SetDefault("quotes.max_gap_days", 10)
	v.SetDefault("quotes.concurrency", 4)
	v.SetDefault("quotes.user_agent", "Mozilla/5.0 (compatible; portfolio-tracker)")

	v.SetDefault("store.max_age", 24*time.Hour)
	v.SetDefault("store.db_path", filepath.Join(configDir, "series.db"))

	v.SetDefault("analysis.rsi_period", 14)
	v.SetDefault("analysis.bollinger_period", 20)
	v.SetDefault("analysis.bollinger_k", 2.0)
	v.SetDefault("analysis.drawdown_threshold", 0.10)
	v.SetDefault("analysis.rebound_days", 30)
	v.SetDefault("analysis.level_window", 5)
	v.SetDefault("analysis.level_tolerance", 0.015)
	v.SetDefault("analysis.cross_confirm_days", 3)
	v.SetDefault("analysis.benchmark", "IE00B4L5Y983")
	v.SetDefault("analysis.min_overlap", 20)
	v.SetDefault("analysis.risk_free_rate", 0.03)
	v.SetDefault("analysis.workers", 4)

	v.SetDefault("refresh.schedule", "0 22 * * 1-5")
	v.SetDefault("refresh.period", "1y")

	logDefaults := logging.DefaultLogConfig()
	v.SetDefault("logging.level", logDefaults.Level)
	v.SetDefault("logging.console", logDefaults.Console)
	v.SetDefault("logging.file", logDefaults.File)
	v.SetDefault("logging.file_path", filepath.Join(configDir, "logs", "tracker.log"))
	v.SetDefault("logging.max_size", logDefaults.MaxSize)
	v.SetDefault("logging.max_backups", logDefaults.MaxBackups)
	v.SetDefault("logging.max_age", logDefaults.MaxAge)
}

func loadConfigFile(configDir string, target *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		// Config file not found, create template and carry on with defaults
		if err := createTemplateConfig(configDir); err != nil {
			return err
		}
	}

	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EODHD_API_KEY"); v != "" {
		cfg.Credentials.EODHD.APIKey = v
	}
	if v := os.Getenv("TRACKER_DB_PATH"); v != "" {
		cfg.Store.DBPath = v
	}
	if v := os.Getenv("TRACKER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

var knownSources = map[string]bool{"yahoo": true, "justetf": true, "eodhd": true}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Quotes.Sources) == 0 {
		return apperrors.NewValidationError("quotes.sources", c.Quotes.Sources, "at least one source is required")
	}
	seen := make(map[string]bool)
	for _, s := range c.Quotes.Sources {
		if !knownSources[s] {
			return apperrors.NewValidationError("quotes.sources", s, "unknown source")
		}
		if seen[s] {
			return apperrors.NewValidationError("quotes.sources", s, "listed twice")
		}
		seen[s] = true
	}
	if c.Quotes.Timeout <= 0 {
		return apperrors.NewValidationError("quotes.timeout", c.Quotes.Timeout, "must be positive")
	}
	if c.Quotes.RetryAttempts < 0 {
		return apperrors.NewValidationError("quotes.retry_attempts", c.Quotes.RetryAttempts, "must be non-negative")
	}
	if c.Store.MaxAge <= 0 {
		return apperrors.NewValidationError("store.max_age", c.Store.MaxAge, "must be positive")
	}

	a := c.Analysis
	if a.RSIPeriod <= 0 || a.BollingerPeriod <= 0 || a.LevelWindow <= 0 {
		return apperrors.NewValidationError("analysis", a, "periods and windows must be positive")
	}
	if a.BollingerK <= 0 {
		return apperrors.NewValidationError("analysis.bollinger_k", a.BollingerK, "must be positive")
	}
	if a.DrawdownThreshold <= 0 || a.DrawdownThreshold >= 1 {
		return apperrors.NewValidationError("analysis.drawdown_threshold", a.DrawdownThreshold, "must be between 0 and 1")
	}
	if a.LevelTolerance <= 0 || a.LevelTolerance >= 0.5 {
		return apperrors.NewValidationError("analysis.level_tolerance", a.LevelTolerance, "must be between 0 and 0.5")
	}
	if a.MinOverlap < 2 {
		return apperrors.NewValidationError("analysis.min_overlap", a.MinOverlap, "must be at least 2")
	}

	return nil
}

// SymbolFor returns the configured ticker override for an instrument.
// Viper lowercases map keys, so lookups are case-insensitive.
func (c *Config) SymbolFor(instrument string) (string, bool) {
	sym, ok := c.Symbols[strings.ToLower(instrument)]
	return sym, ok && sym != ""
}

// MaxGap returns the tolerated calendar gap between consecutive points.
func (q QuotesConfig) MaxGap() time.Duration {
	return time.Duration(q.MaxGapDays) * 24 * time.Hour
}
