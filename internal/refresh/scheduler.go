// Package refresh re-fetches the watchlist on a cron schedule so the series
// store stays warm between interactive runs.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"portfolio-tracker/internal/config"
	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/quotes"
)

// SyncType is the key under which refresh runs are recorded.
const SyncType = "watchlist"

// Refresher re-resolves a batch of instruments ignoring store freshness.
type Refresher interface {
	RefreshAll(ctx context.Context, ids []models.InstrumentID, period models.Period) []models.QuoteResult
}

// SyncRecorder persists the time of the last completed run.
type SyncRecorder interface {
	GetLastSync(dataType string) time.Time
	SetLastSync(dataType string, t time.Time) error
}

// Run summarizes one refresh pass.
type Run struct {
	Started  time.Time            `json:"started" yaml:"started"`
	Duration time.Duration        `json:"duration" yaml:"duration"`
	Total    int                  `json:"total" yaml:"total"`
	Stale    int                  `json:"stale" yaml:"stale"`
	Failed   []FailedInstrument   `json:"failed,omitempty" yaml:"failed,omitempty"`
	Results  []models.QuoteResult `json:"-" yaml:"-"`
}

// FailedInstrument is an instrument the run could not resolve.
type FailedInstrument struct {
	Instrument models.InstrumentID `json:"instrument" yaml:"instrument"`
	Error      string              `json:"error" yaml:"error"`
}

// OK reports whether every instrument resolved.
func (r Run) OK() bool { return len(r.Failed) == 0 }

// Scheduler manages the refresh cron task.
type Scheduler struct {
	Cron      *cron.Cron
	refresher Refresher
	recorder  SyncRecorder
	watchlist []models.InstrumentID
	period    models.Period
	logger    zerolog.Logger
	now       func() time.Time

	mu      sync.Mutex
	last    *Run
	running bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRecorder records completed runs in rec.
func WithRecorder(rec SyncRecorder) Option {
	return func(s *Scheduler) { s.recorder = rec }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates a scheduler for the given watchlist. Schedules use
// the standard five field cron syntax.
func NewScheduler(refresher Refresher, watchlist []models.InstrumentID, period models.Period, opts ...Option) *Scheduler {
	s := &Scheduler{
		Cron:      cron.New(),
		refresher: refresher,
		watchlist: watchlist,
		period:    period,
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromConfig builds a scheduler from the refresh section of cfg.
func NewFromConfig(cfg *config.Config, resolver *quotes.Resolver, rec SyncRecorder, logger zerolog.Logger) (*Scheduler, error) {
	period, err := models.ParsePeriod(cfg.Refresh.Period)
	if err != nil {
		return nil, fmt.Errorf("refresh period: %w", err)
	}
	ids := make([]models.InstrumentID, 0, len(cfg.Refresh.Watchlist))
	for _, w := range cfg.Refresh.Watchlist {
		ids = append(ids, models.InstrumentID(w).Normalize())
	}
	opts := []Option{WithLogger(logger.With().Str("component", "refresh").Logger())}
	if rec != nil {
		opts = append(opts, WithRecorder(rec))
	}
	return NewScheduler(resolver, ids, period, opts...), nil
}

// Register adds the refresh task under schedule.
func (s *Scheduler) Register(ctx context.Context, schedule string) error {
	if _, err := s.Cron.AddFunc(schedule, func() { s.RunNow(ctx) }); err != nil {
		return fmt.Errorf("register refresh task: %w", err)
	}
	s.logger.Info().Str("schedule", schedule).Int("instruments", len(s.watchlist)).Msg("Refresh task registered")
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info().Msg("Scheduler started")
}

// Stop stops the scheduler and waits for a running task to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// Next returns the next scheduled run, or the zero time.
func (s *Scheduler) Next() time.Time {
	entries := s.Cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// RunNow refreshes the watchlist immediately. Overlapping runs are skipped:
// the second caller gets the previous run's summary.
func (s *Scheduler) RunNow(ctx context.Context) Run {
	s.mu.Lock()
	if s.running {
		last := s.last
		s.mu.Unlock()
		s.logger.Warn().Msg("Refresh already running, skipping")
		if last != nil {
			return *last
		}
		return Run{}
	}
	s.running = true
	s.mu.Unlock()

	run := s.run(ctx)

	s.mu.Lock()
	s.running = false
	s.last = &run
	s.mu.Unlock()
	return run
}

// Last returns the summary of the most recent run in this process.
func (s *Scheduler) Last() (Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Run{}, false
	}
	return *s.last, true
}

// LastSync returns the recorded time of the last run, which may predate
// this process.
func (s *Scheduler) LastSync() time.Time {
	if s.recorder == nil {
		if run, ok := s.Last(); ok {
			return run.Started
		}
		return time.Time{}
	}
	return s.recorder.GetLastSync(SyncType)
}

func (s *Scheduler) run(ctx context.Context) Run {
	run := Run{Started: s.now(), Total: len(s.watchlist)}
	if len(s.watchlist) == 0 {
		s.logger.Info().Msg("Watchlist is empty, nothing to refresh")
		return run
	}

	s.logger.Info().Int("instruments", len(s.watchlist)).Str("period", string(s.period)).Msg("Refreshing watchlist")
	run.Results = s.refresher.RefreshAll(ctx, s.watchlist, s.period)
	for _, res := range run.Results {
		if res.Stale {
			run.Stale++
		}
	}
	for _, res := range quotes.Failed(run.Results) {
		msg := "no series"
		if res.Err != nil {
			msg = res.Err.Error()
		}
		run.Failed = append(run.Failed, FailedInstrument{Instrument: res.Instrument, Error: msg})
		s.logger.Error().Str("instrument", res.Instrument.String()).Str("error", msg).Msg("Refresh failed")
	}
	run.Duration = s.now().Sub(run.Started)

	if s.recorder != nil {
		if err := s.recorder.SetLastSync(SyncType, run.Started); err != nil {
			s.logger.Error().Err(err).Msg("Failed to record refresh")
		}
	}

	s.logger.Info().
		Int("total", run.Total).
		Int("failed", len(run.Failed)).
		Int("stale", run.Stale).
		Dur("duration", run.Duration).
		Msg("Watchlist refreshed")
	return run
}
