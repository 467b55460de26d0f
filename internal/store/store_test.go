package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/models"
)

var testNow = time.Date(2024, 6, 14, 18, 0, 0, 0, time.UTC)

func dailySeries(id models.InstrumentID, source string, n int, start float64) *models.PriceSeries {
	s := &models.PriceSeries{Instrument: id, Period: models.Period1Y, Source: source}
	day := models.Day(testNow).AddDate(0, 0, -n)
	for i := 0; i < n; i++ {
		s.Points = append(s.Points, models.PricePoint{Date: day.AddDate(0, 0, i), Close: start + float64(i)})
	}
	return s
}

func newTestStore(t *testing.T, opts ...Option) *MemoryStore {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	s, err := NewMemoryStore(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMemoryStoreFreshness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := models.SeriesKey{Instrument: "IE00B4L5Y983", Period: models.Period1Y}

	_, ok := s.Get(key)
	assert.False(t, ok)
	assert.False(t, s.IsFresh(key, DefaultMaxAge))

	require.NoError(t, s.Put(ctx, key, dailySeries(key.Instrument, "yahoo", 30, 70), testNow.Add(-time.Hour)))
	assert.True(t, s.IsFresh(key, DefaultMaxAge))
	assert.False(t, s.IsFresh(key, 30*time.Minute))

	// Stale entries stay readable.
	require.NoError(t, s.Put(ctx, key, dailySeries(key.Instrument, "justetf", 30, 70), testNow.Add(-48*time.Hour)))
	e, ok := s.Get(key)
	require.True(t, ok)
	assert.Equal(t, "justetf", e.Series.Source)
	assert.False(t, s.IsFresh(key, DefaultMaxAge))

	infos := s.Entries()
	require.Len(t, infos, 1)
	assert.False(t, infos[0].Fresh)
	assert.Equal(t, 30, infos[0].Points)
}

func TestMemoryStoreRejectsInvalidSeries(t *testing.T) {
	s := newTestStore(t)
	key := models.SeriesKey{Instrument: "X", Period: models.Period1Y}

	bad := dailySeries("X", "yahoo", 5, 10)
	bad.Points[2].Close = -1

	err := s.Put(context.Background(), key, bad, testNow)
	require.Error(t, err)
	var dataErr *apperrors.DataError
	assert.True(t, errors.As(err, &dataErr))

	_, ok := s.Get(key)
	assert.False(t, ok)
}

func TestMemoryStoreInvalidate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := models.SeriesKey{Instrument: "A", Period: models.Period1Y}
	b := models.SeriesKey{Instrument: "B", Period: models.Period1M}

	require.NoError(t, s.Put(ctx, a, dailySeries("A", "yahoo", 10, 1), testNow))
	require.NoError(t, s.Put(ctx, b, dailySeries("B", "yahoo", 10, 1), testNow))
	require.NoError(t, s.Invalidate(ctx, a))

	_, ok := s.Get(a)
	assert.False(t, ok)
	infos := s.Entries()
	require.Len(t, infos, 1)
	assert.Equal(t, models.InstrumentID("B"), infos[0].Instrument)
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := models.SeriesKey{Instrument: models.InstrumentID(fmt.Sprintf("I%d", i%4)), Period: models.Period1Y}
			_ = s.Put(ctx, key, dailySeries(key.Instrument, "yahoo", 20, float64(i)), testNow)
			s.Get(key)
			s.IsFresh(key, time.Hour)
			s.Entries()
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.Entries(), 4)
}

func TestMemoryStoreClosed(t *testing.T) {
	s, err := NewMemoryStore(context.Background(), WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	key := models.SeriesKey{Instrument: "A", Period: models.Period1Y}
	err = s.Put(context.Background(), key, dailySeries("A", "yahoo", 3, 1), testNow)
	assert.ErrorIs(t, err, apperrors.ErrStoreClosed)
}
