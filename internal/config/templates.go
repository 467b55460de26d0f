package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Portfolio Tracker Configuration

[quotes]
# Sources in priority order: yahoo, justetf, eodhd
sources = ["yahoo", "justetf", "eodhd"]
# Per-source request timeout
timeout = "10s"
# Extra attempts for a source that is temporarily unavailable
retry_attempts = 1
retry_initial_delay = "500ms"
retry_max_delay = "5s"
# Consecutive failures before a source is skipped for breaker_cooldown
breaker_failures = 5
breaker_cooldown = "2m"
# Largest tolerated calendar gap between two points, in days
max_gap_days = 10
# Concurrent resolutions for batch commands
concurrency = 4

[store]
# Series older than max_age are refreshed on next access
max_age = "24h"
# SQLite file for persisted series; empty keeps everything in memory
# db_path = "~/.config/portfolio-tracker/series.db"

[analysis]
rsi_period = 14
bollinger_period = 20
bollinger_k = 2.0
# Peak-to-trough decline that opens a drawdown episode
drawdown_threshold = 0.10
rebound_days = 30
# Support/resistance pivot window (days each side) and clustering tolerance
level_window = 5
level_tolerance = 0.015
cross_confirm_days = 3
# Benchmark instrument for beta
benchmark = "IE00B4L5Y983"
min_overlap = 20
risk_free_rate = 0.03
workers = 4

[refresh]
# Cron schedule for background refresh (minute hour dom month dow)
schedule = "0 22 * * 1-5"
period = "1y"
watchlist = []

[logging]
level = "info"
console = true
file = true
max_size = 50
max_backups = 7
max_age = 30

# Ticker overrides for instruments the sources do not resolve by ISIN
[symbols]
# IE00B4L5Y983 = "IWDA.AS"
`

const credentialsTemplate = `# Portfolio Tracker Credentials
# IMPORTANT: Keep this file secure! Do not commit to version control.

[eodhd]
# API key from https://eodhd.com (leave empty to skip this source)
api_key = ""
`

// createTemplateConfig writes the default config template. Existing files
// are left alone.
func createTemplateConfig(configDir string) error {
	return writeTemplate(configDir, "config.toml", configTemplate, 0644)
}

// createTemplateCredentials writes the credentials template with restricted
// permissions.
func createTemplateCredentials(configDir string) error {
	return writeTemplate(configDir, "credentials.toml", credentialsTemplate, 0600)
}

func writeTemplate(configDir, name, content string, perm os.FileMode) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		return fmt.Errorf("writing %s template: %w", name, err)
	}
	return nil
}
