// Package store provides the series store: an in-memory cache of fetched
// price series keyed by instrument and period, optionally persisted.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/models"
)

// DefaultMaxAge is one trading day.
const DefaultMaxAge = 24 * time.Hour

// SeriesStore defines the cache contract used by the quote resolver.
type SeriesStore interface {
	// Get returns the cached series for key regardless of its age.
	Get(key models.SeriesKey) (Entry, bool)
	// Put stores series under key, replacing any previous entry.
	Put(ctx context.Context, key models.SeriesKey, series *models.PriceSeries, fetchedAt time.Time) error
	// IsFresh reports whether the entry for key was fetched less than maxAge ago.
	IsFresh(key models.SeriesKey, maxAge time.Duration) bool
	// Entries lists all cached entries, fresh or stale.
	Entries() []EntryInfo
	// Invalidate drops the entry for key.
	Invalidate(ctx context.Context, key models.SeriesKey) error
	Close() error
}

// Backend persists series on behalf of a MemoryStore.
type Backend interface {
	SaveSeries(ctx context.Context, entry Entry) error
	LoadSeries(ctx context.Context) ([]Entry, error)
	DeleteSeries(ctx context.Context, key models.SeriesKey) error
	Close() error
}

// Entry is a cached series with its fetch time.
type Entry struct {
	Key       models.SeriesKey
	Series    *models.PriceSeries
	FetchedAt time.Time
}

// Age returns how long ago the entry was fetched.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}

// EntryInfo describes a cached entry without its points.
type EntryInfo struct {
	Instrument models.InstrumentID `json:"instrument" yaml:"instrument"`
	Period     models.Period       `json:"period" yaml:"period"`
	Source     string              `json:"source" yaml:"source"`
	Points     int                 `json:"points" yaml:"points"`
	From       time.Time           `json:"from" yaml:"from"`
	To         time.Time           `json:"to" yaml:"to"`
	FetchedAt  time.Time           `json:"fetched_at" yaml:"fetched_at"`
	Fresh      bool                `json:"fresh" yaml:"fresh"`
}

// MemoryStore implements SeriesStore with a map guarded by a RWMutex.
// Reads run concurrently; writes are serialized per key.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[models.SeriesKey]Entry
	closed  bool

	keyMu    sync.Mutex
	keyLocks map[models.SeriesKey]*sync.Mutex

	backend Backend
	maxAge  time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithBackend persists every write through b.
func WithBackend(b Backend) Option {
	return func(s *MemoryStore) { s.backend = b }
}

// WithLogger reports persisted series dropped on load.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *MemoryStore) { s.logger = logger }
}

// WithMaxAge sets the age used for EntryInfo.Fresh.
func WithMaxAge(d time.Duration) Option {
	return func(s *MemoryStore) { s.maxAge = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates a store. With a backend, previously persisted
// series are loaded before the store is returned; a persisted series that
// fails validation is skipped so readers never see it.
func NewMemoryStore(ctx context.Context, opts ...Option) (*MemoryStore, error) {
	s := &MemoryStore{
		entries:  make(map[models.SeriesKey]Entry),
		keyLocks: make(map[models.SeriesKey]*sync.Mutex),
		maxAge:   DefaultMaxAge,
		now:      time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.backend != nil {
		loaded, err := s.backend.LoadSeries(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load persisted series: %w", err)
		}
		now := s.now()
		for _, e := range loaded {
			if err := e.Series.Validate(now, 0); err != nil {
				s.logger.Warn().Err(err).Str("key", e.Key.String()).Msg("Skipping invalid persisted series")
				continue
			}
			s.entries[e.Key] = e
		}
	}
	return s, nil
}

// Get returns the cached entry for key.
func (s *MemoryStore) Get(key models.SeriesKey) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

// Put validates and stores series under key.
func (s *MemoryStore) Put(ctx context.Context, key models.SeriesKey, series *models.PriceSeries, fetchedAt time.Time) error {
	if err := series.Validate(s.now(), 0); err != nil {
		return apperrors.NewDataError("series", key.String(), "refusing to store invalid series", err)
	}

	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	entry := Entry{Key: key, Series: series, FetchedAt: fetchedAt}

	if s.backend != nil {
		if err := s.backend.SaveSeries(ctx, entry); err != nil {
			return fmt.Errorf("failed to persist %s: %w", key, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperrors.ErrStoreClosed
	}
	s.entries[key] = entry
	return nil
}

// IsFresh reports whether now - fetchedAt < maxAge for the entry at key.
func (s *MemoryStore) IsFresh(key models.SeriesKey, maxAge time.Duration) bool {
	e, ok := s.Get(key)
	if !ok {
		return false
	}
	return e.Age(s.now()) < maxAge
}

// Entries lists cached entries sorted by key.
func (s *MemoryStore) Entries() []EntryInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	infos := make([]EntryInfo, 0, len(s.entries))
	for _, e := range s.entries {
		info := EntryInfo{
			Instrument: e.Key.Instrument,
			Period:     e.Key.Period,
			FetchedAt:  e.FetchedAt,
			Fresh:      e.Age(now) < s.maxAge,
		}
		if e.Series != nil {
			info.Source = e.Series.Source
			info.Points = e.Series.Len()
			if info.Points > 0 {
				info.From = e.Series.First().Date
				info.To = e.Series.Last().Date
			}
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Instrument != infos[j].Instrument {
			return infos[i].Instrument < infos[j].Instrument
		}
		return infos[i].Period < infos[j].Period
	})
	return infos
}

// Invalidate drops key from the store and its backend.
func (s *MemoryStore) Invalidate(ctx context.Context, key models.SeriesKey) error {
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	if s.backend != nil {
		if err := s.backend.DeleteSeries(ctx, key); err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}

	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Close closes the backend, if any.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	if s.backend != nil {
		return s.backend.Close()
	}
	return nil
}

func (s *MemoryStore) lockFor(key models.SeriesKey) *sync.Mutex {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()
	l, ok := s.keyLocks[key]
	if !ok {
		l = &sync.Mutex{}
		s.keyLocks[key] = l
	}
	return l
}
