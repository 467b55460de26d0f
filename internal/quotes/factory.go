package quotes

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"portfolio-tracker/internal/config"
	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/resilience"
	"portfolio-tracker/internal/store"
	"portfolio-tracker/pkg/utils"
)

// NewSources builds the adapters named in cfg.Quotes.Sources, in order.
func NewSources(cfg *config.Config, logger zerolog.Logger) ([]Source, error) {
	opts := HTTPOptions{
		// The resolver bounds each call; this only guards against a stuck body read.
		Client:    &http.Client{Timeout: cfg.Quotes.Timeout * 2},
		UserAgent: cfg.Quotes.UserAgent,
		Symbols: func(id models.InstrumentID) (string, bool) {
			return cfg.SymbolFor(id.String())
		},
		Logger: logger,
	}

	sources := make([]Source, 0, len(cfg.Quotes.Sources))
	for _, name := range cfg.Quotes.Sources {
		switch name {
		case "yahoo":
			sources = append(sources, NewYahooSource(opts))
		case "justetf":
			sources = append(sources, NewJustETFSource(opts))
		case "eodhd":
			sources = append(sources, NewEODHDSource(cfg.Credentials.EODHD.APIKey, opts))
		default:
			return nil, fmt.Errorf("unknown quote source %q", name)
		}
	}
	return sources, nil
}

// BreakerConfig returns a breaker config in which only transient failures
// count against a source.
func BreakerConfig(failures int, cooldown time.Duration) resilience.CircuitBreakerConfig {
	cfg := resilience.DefaultCircuitBreakerConfig()
	cfg.FailureThreshold = failures
	cfg.Cooldown = cooldown
	cfg.IsFailure = func(err error) bool {
		return apperrors.KindOf(err) == apperrors.ErrUnavailable
	}
	return cfg
}

// NewResolverFromConfig wires a resolver with breakers from configuration.
func NewResolverFromConfig(cfg *config.Config, st store.SeriesStore, logger zerolog.Logger) (*Resolver, error) {
	sources, err := NewSources(cfg, logger)
	if err != nil {
		return nil, err
	}

	retry := utils.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Quotes.RetryAttempts + 1
	retry.InitialDelay = cfg.Quotes.RetryInitialDelay
	retry.MaxDelay = cfg.Quotes.RetryMaxDelay

	rc := ResolverConfig{
		MaxAge:      cfg.Store.MaxAge,
		Timeout:     cfg.Quotes.Timeout,
		Retry:       retry,
		MaxGap:      cfg.Quotes.MaxGap(),
		Concurrency: cfg.Quotes.Concurrency,
	}

	breakers := resilience.NewCircuitBreakerRegistry(BreakerConfig(cfg.Quotes.BreakerFailures, cfg.Quotes.BreakerCooldown))

	return NewResolver(st, sources,
		WithConfig(rc),
		WithLogger(logger.With().Str("component", "resolver").Logger()),
		WithBreakers(breakers),
	), nil
}
