package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "portfolio-tracker/internal/errors"
)

func TestLoadCreatesTemplates(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "config.toml"))
	assert.FileExists(t, filepath.Join(dir, "credentials.toml"))

	info, err := os.Stat(filepath.Join(dir, "credentials.toml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	assert.Equal(t, []string{"yahoo", "justetf", "eodhd"}, cfg.Quotes.Sources)
	assert.Equal(t, 10*time.Second, cfg.Quotes.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.Store.MaxAge)
	assert.Equal(t, 14, cfg.Analysis.RSIPeriod)
	assert.Equal(t, 0.10, cfg.Analysis.DrawdownThreshold)
}

func TestLoadReadsTemplateBack(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	require.NoError(t, err)

	// Second load parses the template written by the first.
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.Quotes.RetryInitialDelay)
	assert.Equal(t, "0 22 * * 1-5", cfg.Refresh.Schedule)
	assert.Equal(t, 0.015, cfg.Analysis.LevelTolerance)
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	content := `
[quotes]
sources = ["justetf", "yahoo"]
timeout = "3s"

[analysis]
drawdown_threshold = 0.2

[symbols]
IE00B4L5Y983 = "IWDA.AS"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "credentials.toml"), []byte("[eodhd]\napi_key = \"file-key\"\n"), 0600))

	t.Setenv("EODHD_API_KEY", "env-key")
	t.Setenv("TRACKER_DB_PATH", filepath.Join(dir, "other.db"))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"justetf", "yahoo"}, cfg.Quotes.Sources)
	assert.Equal(t, 3*time.Second, cfg.Quotes.Timeout)
	assert.Equal(t, 0.2, cfg.Analysis.DrawdownThreshold)
	assert.Equal(t, 20, cfg.Analysis.BollingerPeriod)
	assert.Equal(t, "env-key", cfg.Credentials.EODHD.APIKey)
	assert.Equal(t, filepath.Join(dir, "other.db"), cfg.Store.DBPath)

	sym, ok := cfg.SymbolFor("IE00B4L5Y983")
	assert.True(t, ok)
	assert.Equal(t, "IWDA.AS", sym)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no sources", func(c *Config) { c.Quotes.Sources = nil }},
		{"unknown source", func(c *Config) { c.Quotes.Sources = []string{"bloomberg"} }},
		{"duplicate source", func(c *Config) { c.Quotes.Sources = []string{"yahoo", "yahoo"} }},
		{"zero timeout", func(c *Config) { c.Quotes.Timeout = 0 }},
		{"threshold too large", func(c *Config) { c.Analysis.DrawdownThreshold = 1.5 }},
		{"zero tolerance", func(c *Config) { c.Analysis.LevelTolerance = 0 }},
		{"overlap too small", func(c *Config) { c.Analysis.MinOverlap = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrConfigInvalid))
		})
	}
}

func TestMaxGap(t *testing.T) {
	q := QuotesConfig{MaxGapDays: 10}
	assert.Equal(t, 240*time.Hour, q.MaxGap())
}
