package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"portfolio-tracker/internal/config"
	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/quotes"
	"portfolio-tracker/internal/store"
)

var testNow = time.Date(2024, 6, 14, 18, 0, 0, 0, time.UTC)

func clock() time.Time { return testNow }

// staticSource serves canned closes per instrument.
type staticSource struct {
	closes map[models.InstrumentID][]float64
}

func (s *staticSource) Name() string { return "fake" }

func (s *staticSource) Fetch(ctx context.Context, id models.InstrumentID, period models.Period) (*models.PriceSeries, error) {
	closes, ok := s.closes[id]
	if !ok {
		return nil, apperrors.NotFound("fake", id.String(), "unknown instrument")
	}
	series := &models.PriceSeries{Instrument: id}
	first := models.Day(testNow).AddDate(0, 0, -(len(closes) - 1))
	for i, c := range closes {
		series.Points = append(series.Points, models.PricePoint{Date: first.AddDate(0, 0, i), Close: c})
	}
	return series, nil
}

func trending(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + 0.1*float64(i) + 2*math.Sin(float64(i)/3)
	}
	return out
}

func flat(n int, price float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = price
	}
	return out
}

func newTestApp(t *testing.T, closes map[models.InstrumentID][]float64) *App {
	t.Helper()
	cfg := config.Default()
	cfg.Store.DBPath = ""
	cfg.Analysis.Benchmark = ""

	st, err := store.NewMemoryStore(context.Background(), store.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	resolver := quotes.NewResolver(st, []quotes.Source{&staticSource{closes: closes}}, quotes.WithClock(clock))
	return &App{
		Config:   cfg,
		Logger:   zerolog.Nop(),
		Store:    st,
		Resolver: resolver,
		Now:      clock,
	}
}

func run(t *testing.T, app *App, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(app)
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func decode(t *testing.T, out string, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(out), v), out)
}

func TestQuoteCommand(t *testing.T) {
	app := newTestApp(t, map[models.InstrumentID][]float64{"IE00B4L5Y983": {100, 101, 99}})

	out, err := run(t, app, "quote", "ie00b4l5y983", "XX0000000000", "--output", "json")
	require.NoError(t, err)

	var rows []map[string]interface{}
	decode(t, out, &rows)
	require.Len(t, rows, 2)
	assert.Equal(t, "IE00B4L5Y983", rows[0]["instrument"])
	assert.Equal(t, "fake", rows[0]["source"])
	assert.Equal(t, 99.0, rows[0]["close"])
	assert.InDelta(t, 99.0/101-1, rows[0]["change_1d"], 1e-12)
	assert.Equal(t, "XX0000000000", rows[1]["instrument"])
	assert.NotEmpty(t, rows[1]["error"])
}

func TestQuoteAllFailed(t *testing.T) {
	app := newTestApp(t, nil)

	out, err := run(t, app, "quote", "XX0000000000")
	assert.Error(t, err)
	assert.Contains(t, out, "XX0000000000")
}

func TestInvalidFlags(t *testing.T) {
	app := newTestApp(t, nil)

	_, err := run(t, app, "quote", "A", "--output", "xml")
	assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)

	_, err = run(t, app, "quote", "A", "--period", "fortnight")
	assert.ErrorIs(t, err, apperrors.ErrInvalidPeriod)
}

func TestAnalyzeCommand(t *testing.T) {
	app := newTestApp(t, map[models.InstrumentID][]float64{
		"LONG":  trending(260),
		"SHORT": trending(30),
	})

	out, err := run(t, app, "analyze", "LONG", "SHORT", "--json", "--returns", "monthly")
	require.NoError(t, err)

	var results []struct {
		Snapshot map[string]interface{} `json:"snapshot"`
		Trend    string                 `json:"trend"`
		Metrics  map[string]interface{} `json:"metrics"`
		Returns  []interface{}          `json:"returns"`
	}
	decode(t, out, &results)
	require.Len(t, results, 2)

	long := results[0]
	assert.Equal(t, "LONG", long.Snapshot["instrument"])
	assert.NotNil(t, long.Snapshot["sma200"])
	assert.NotNil(t, long.Snapshot["rsi"])
	assert.Nil(t, long.Snapshot["beta"], "no benchmark configured")
	assert.NotEqual(t, "unknown", long.Trend)
	assert.NotNil(t, long.Metrics)
	assert.NotEmpty(t, long.Returns)

	short := results[1]
	assert.NotNil(t, short.Snapshot["sma20"])
	assert.Nil(t, short.Snapshot["sma50"], "absent, not zero")
	assert.Equal(t, "unknown", short.Trend)
	assert.NotNil(t, short.Metrics)
}

func TestAnalyzeTableOutput(t *testing.T) {
	app := newTestApp(t, map[models.InstrumentID][]float64{"SHORT": trending(30)})

	out, err := run(t, app, "analyze", "SHORT")
	require.NoError(t, err)
	assert.Contains(t, out, "SMA20")
	assert.Contains(t, out, "n/a")
	assert.Contains(t, out, "Max drawdown")
}

func TestRecoveryTableYAML(t *testing.T) {
	app := newTestApp(t, nil)

	out, err := run(t, app, "drawdowns", "-o", "yaml")
	require.NoError(t, err)

	var rows []struct {
		Drop   float64 `yaml:"drop"`
		Needed float64 `yaml:"needed"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 10)
	assert.InDelta(t, 0.25, rows[1].Needed, 1e-12)
	assert.InDelta(t, 1.0, rows[5].Needed, 1e-12)
}

func TestDrawdownsCommand(t *testing.T) {
	closes := []float64{100, 110, 99, 88, 95, 111, 112}
	app := newTestApp(t, map[models.InstrumentID][]float64{"DD": closes})

	out, err := run(t, app, "drawdowns", "DD", "--json")
	require.NoError(t, err)

	var res struct {
		MaxDrawdown float64                  `json:"max_drawdown"`
		Episodes    []map[string]interface{} `json:"episodes"`
	}
	decode(t, out, &res)
	assert.InDelta(t, 0.2, res.MaxDrawdown, 1e-12)
	require.Len(t, res.Episodes, 1)
	assert.InDelta(t, 0.2, res.Episodes[0]["depth"], 1e-12)
	assert.NotNil(t, res.Episodes[0]["recovery_date"])
}

func TestCorrelateCommand(t *testing.T) {
	app := newTestApp(t, map[models.InstrumentID][]float64{
		"A": trending(60),
		"B": trending(60),
		"C": trending(5),
	})

	out, err := run(t, app, "correlate", "A", "B", "C", "--json")
	require.NoError(t, err)

	var res struct {
		Pairs []struct {
			A           string   `json:"a"`
			B           string   `json:"b"`
			Correlation *float64 `json:"correlation"`
		} `json:"pairs"`
	}
	decode(t, out, &res)
	require.Len(t, res.Pairs, 3)
	require.NotNil(t, res.Pairs[0].Correlation)
	assert.InDelta(t, 1.0, *res.Pairs[0].Correlation, 1e-9)
	assert.Nil(t, res.Pairs[2].Correlation)

	_, err = run(t, app, "correlate", "A", "MISSING")
	assert.Error(t, err)
}

func TestDCACommand(t *testing.T) {
	app := newTestApp(t, map[models.InstrumentID][]float64{"FLAT": flat(366, 50)})

	out, err := run(t, app, "dca", "FLAT", "--amount", "100", "--json")
	require.NoError(t, err)

	var res map[string]interface{}
	decode(t, out, &res)
	assert.Equal(t, 12.0, res["contributions"], "2023-06-15 through 2024-05-15")
	assert.Equal(t, "1200", res["total_invested"])
	assert.Equal(t, "0", res["return_pct"])
	assert.Nil(t, res["purchases"])

	_, err = run(t, app, "dca", "FLAT", "--amount", "ten")
	assert.Error(t, err)
}

func TestProjectCommand(t *testing.T) {
	app := newTestApp(t, nil)

	out, err := run(t, app, "project", "--initial", "1000", "--monthly", "100", "--years", "2", "--rate", "0", "--json")
	require.NoError(t, err)

	var res struct {
		FinalValue string `json:"final_value"`
		Points     []struct {
			Month int `json:"month"`
		} `json:"points"`
		Scenarios []struct {
			Name string  `json:"name"`
			Rate float64 `json:"rate"`
		} `json:"scenarios"`
	}
	decode(t, out, &res)
	assert.Equal(t, "3400", res.FinalValue)
	require.Len(t, res.Points, 3, "year ends only")
	assert.Equal(t, 24, res.Points[2].Month)
	require.Len(t, res.Scenarios, 3)
	assert.Equal(t, 4.0, res.Scenarios[2].Rate)

	_, err = run(t, app, "project", "--years", "0")
	assert.Error(t, err)
}

func TestCacheCommands(t *testing.T) {
	app := newTestApp(t, map[models.InstrumentID][]float64{"A": {1, 2, 3}})

	_, err := run(t, app, "quote", "A", "--period", "1mo")
	require.NoError(t, err)

	out, err := run(t, app, "cache", "status", "--json")
	require.NoError(t, err)
	var status struct {
		Entries []store.EntryInfo `json:"entries"`
	}
	decode(t, out, &status)
	require.Len(t, status.Entries, 1)
	assert.Equal(t, models.InstrumentID("A"), status.Entries[0].Instrument)
	assert.True(t, status.Entries[0].Fresh)

	out, err = run(t, app, "cache", "refresh", "--json")
	require.NoError(t, err)
	var rows []map[string]interface{}
	decode(t, out, &rows)
	require.Len(t, rows, 1)

	out, err = run(t, app, "cache", "invalidate", "a", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"removed": 1}`, out)
	assert.Empty(t, app.Store.Entries())
}

func TestSourcesCommand(t *testing.T) {
	app := newTestApp(t, map[models.InstrumentID][]float64{"A": {1, 2, 3}})

	out, err := run(t, app, "sources", "A", "--json")
	require.NoError(t, err)

	var reports []struct {
		Name   string `json:"name"`
		Status *struct {
			Available bool  `json:"available"`
			Calls     int64 `json:"calls"`
		} `json:"status"`
	}
	decode(t, out, &reports)
	require.Len(t, reports, 1)
	assert.Equal(t, "fake", reports[0].Name)
	require.NotNil(t, reports[0].Status)
	assert.True(t, reports[0].Status.Available)
	assert.EqualValues(t, 1, reports[0].Status.Calls)
}

func TestWatchOnce(t *testing.T) {
	app := newTestApp(t, map[models.InstrumentID][]float64{"A": {1, 2, 3}})
	app.Config.Refresh.Watchlist = []string{"a", "missing"}

	out, err := run(t, app, "watch", "--once", "--json")
	require.NoError(t, err)

	var res struct {
		Total  int `json:"total"`
		Failed []struct {
			Instrument string `json:"instrument"`
		} `json:"failed"`
	}
	decode(t, out, &res)
	assert.Equal(t, 2, res.Total)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "MISSING", res.Failed[0].Instrument)
}

func TestVersionYAML(t *testing.T) {
	out, err := run(t, newTestApp(t, nil), "version", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "version: "+Version)
	assert.NotContains(t, out, "{")
}
