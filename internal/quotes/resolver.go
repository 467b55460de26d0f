package quotes

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/logging"
	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/resilience"
	"portfolio-tracker/internal/store"
	"portfolio-tracker/pkg/utils"
)

// ResolverConfig holds the resolution policy.
type ResolverConfig struct {
	MaxAge      time.Duration // store entries younger than this are served without fetching
	Timeout     time.Duration // per adapter call
	Retry       utils.RetryConfig
	MaxGap      time.Duration // largest tolerated gap between consecutive points
	Concurrency int           // batch resolutions in flight
}

// DefaultResolverConfig returns the default policy: one retry for
// unavailable sources after 500ms, 10s per call, 10 day gap tolerance.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		MaxAge:      store.DefaultMaxAge,
		Timeout:     10 * time.Second,
		Retry:       utils.DefaultRetryConfig(),
		MaxGap:      10 * 24 * time.Hour,
		Concurrency: 4,
	}
}

// Resolver turns an instrument and period into a validated price series.
type Resolver struct {
	sources  []Source
	store    store.SeriesStore
	cfg      ResolverConfig
	breakers *resilience.CircuitBreakerRegistry
	monitor  *resilience.SourceMonitor
	logger   zerolog.Logger
	now      func() time.Time

	group singleflight.Group
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithConfig sets the resolution policy.
func WithConfig(cfg ResolverConfig) ResolverOption {
	return func(r *Resolver) { r.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

// WithBreakers guards each source with a circuit breaker from reg.
func WithBreakers(reg *resilience.CircuitBreakerRegistry) ResolverOption {
	return func(r *Resolver) { r.breakers = reg }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// NewResolver creates a resolver trying sources in the given order.
func NewResolver(st store.SeriesStore, sources []Source, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		sources: sources,
		store:   st,
		cfg:     DefaultResolverConfig(),
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.monitor == nil {
		r.monitor = resilience.NewSourceMonitor()
	}
	return r
}

// Sources returns the adapter names in priority order.
func (r *Resolver) Sources() []string {
	names := make([]string, len(r.sources))
	for i, s := range r.sources {
		names[i] = s.Name()
	}
	return names
}

// Monitor returns the per-source availability monitor.
func (r *Resolver) Monitor() *resilience.SourceMonitor {
	return r.monitor
}

// Breakers returns the circuit breaker registry, or nil.
func (r *Resolver) Breakers() *resilience.CircuitBreakerRegistry {
	return r.breakers
}

// Resolve returns the series for id over period. A fresh stored series is
// returned without touching the sources. When every source fails and a
// stale series is stored, the stale series is returned; otherwise the error
// is a *errors.ResolutionError.
func (r *Resolver) Resolve(ctx context.Context, id models.InstrumentID, period models.Period) (*models.PriceSeries, error) {
	res := r.ResolveResult(ctx, id, period)
	return res.Series, res.Err
}

// Refresh is Resolve ignoring store freshness.
func (r *Resolver) Refresh(ctx context.Context, id models.InstrumentID, period models.Period) models.QuoteResult {
	return r.resolve(ctx, id, period, true)
}

// ResolveResult is Resolve reporting whether a stale series was served.
func (r *Resolver) ResolveResult(ctx context.Context, id models.InstrumentID, period models.Period) models.QuoteResult {
	return r.resolve(ctx, id, period, false)
}

func (r *Resolver) resolve(ctx context.Context, id models.InstrumentID, period models.Period, force bool) models.QuoteResult {
	id = id.Normalize()
	key := models.SeriesKey{Instrument: id, Period: period}

	// Concurrent callers for the same key share one resolution. A fetch is
	// not abandoned when the first caller goes away; adapter timeouts bound it.
	// A forced refresh never joins a plain resolution that may be served from
	// the store.
	flight := key.String()
	if force {
		flight += "!"
	}
	fetchCtx := context.WithoutCancel(ctx)
	v, _, shared := r.group.Do(flight, func() (interface{}, error) {
		return r.resolveKey(fetchCtx, key, force), nil
	})
	res := v.(models.QuoteResult)
	if shared {
		r.logger.Debug().Str("key", key.String()).Bool("force", force).Msg("Joined in-flight resolution")
	}
	return res
}

func (r *Resolver) resolveKey(ctx context.Context, key models.SeriesKey, force bool) models.QuoteResult {
	logger := logging.WithInstrument(r.logger, key.Instrument.String())
	result := models.QuoteResult{Instrument: key.Instrument}

	cached, haveCached := r.store.Get(key)
	if haveCached && !force && r.store.IsFresh(key, r.cfg.MaxAge) {
		logger.Debug().Str("period", string(key.Period)).Str("source", cached.Series.Source).Msg("Serving fresh series from store")
		result.Series = cached.Series
		return result
	}

	var attempts []*apperrors.AdapterError
	for _, src := range r.sources {
		series, err := r.trySource(ctx, logger, src, key)
		if err == nil {
			if perr := r.store.Put(ctx, key, series, r.now()); perr != nil {
				logger.Warn().Err(perr).Msg("Failed to store resolved series")
			}
			result.Series = series
			return result
		}
		attempts = append(attempts, err)
	}

	resErr := &apperrors.ResolutionError{
		Instrument: key.Instrument.String(),
		Period:     string(key.Period),
		Attempts:   attempts,
	}

	if haveCached {
		logger.Warn().Err(resErr).
			Time("fetched_at", cached.FetchedAt).
			Msg("All sources failed, serving stale series")
		result.Series = cached.Series
		result.Stale = true
		return result
	}

	logger.Error().Err(resErr).Str("period", string(key.Period)).Msg("All sources exhausted")
	result.Err = resErr
	return result
}

// trySource runs one adapter under its circuit breaker with retry on
// Unavailable, then validates the series it returned.
func (r *Resolver) trySource(ctx context.Context, logger zerolog.Logger, src Source, key models.SeriesKey) (*models.PriceSeries, *apperrors.AdapterError) {
	name := src.Name()
	inst := key.Instrument.String()

	retry := r.cfg.Retry
	retry.Retryable = func(err error) bool {
		return apperrors.KindOf(err) == apperrors.ErrUnavailable && !errors.Is(err, resilience.ErrCircuitOpen)
	}
	retry.OnRetry = func(next int, delay time.Duration, err error) {
		logger.Debug().Str("source", name).Int("attempt", next).Dur("delay", delay).Msg("Retrying unavailable source")
	}

	attempt := 0
	series, err := utils.RetryWithResult(ctx, retry, func() (*models.PriceSeries, error) {
		attempt++
		return r.fetchOnce(ctx, logger, src, key, attempt)
	})
	if err != nil {
		return nil, classify(name, inst, err)
	}

	if verr := series.Validate(r.now(), r.cfg.MaxGap); verr != nil {
		ae := apperrors.BadData(name, inst, "invalid series", verr)
		logging.LogAttempt(logger, name, inst, "bad_data", attempt, 0, ae)
		return nil, ae
	}

	series.Instrument = key.Instrument
	series.Period = key.Period
	series.Source = name
	return series, nil
}

func (r *Resolver) fetchOnce(ctx context.Context, logger zerolog.Logger, src Source, key models.SeriesKey, attempt int) (*models.PriceSeries, error) {
	name := src.Name()
	inst := key.Instrument.String()

	call := func() (*models.PriceSeries, error) {
		callCtx := ctx
		if r.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
			defer cancel()
		}
		series, err := src.Fetch(callCtx, key.Instrument, key.Period)
		if err != nil {
			return nil, classify(name, inst, err)
		}
		if series == nil {
			return nil, apperrors.BadData(name, inst, "nil series", nil)
		}
		return series, nil
	}

	start := time.Now()
	var series *models.PriceSeries
	var err error
	if r.breakers != nil {
		series, err = resilience.ExecuteWithResult(r.breakers.Get(name), call)
		if errors.Is(err, resilience.ErrCircuitOpen) {
			err = apperrors.Unavailable(name, inst, err)
		}
	} else {
		series, err = call()
	}
	elapsed := time.Since(start)

	kind := apperrors.KindOf(err)
	r.monitor.Observe(name, kind != apperrors.ErrUnavailable, elapsed, err)
	logging.LogAttempt(logger, name, inst, outcomeName(kind), attempt, elapsed, err)

	return series, err
}

func outcomeName(kind error) string {
	switch kind {
	case nil:
		return "ok"
	case apperrors.ErrNotFound:
		return "not_found"
	case apperrors.ErrBadData:
		return "bad_data"
	default:
		return "unavailable"
	}
}
