package quotes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/models"
)

func testOptions(srv *httptest.Server) HTTPOptions {
	return HTTPOptions{Client: srv.Client(), BaseURL: srv.URL, Now: clock}
}

func unix(date string) int64 {
	t, _ := time.Parse(models.DateLayout, date)
	return t.Add(14 * time.Hour).Unix()
}

func TestYahooSourceFetch(t *testing.T) {
	var chartPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/v1/finance/search"):
			assert.Equal(t, string(testISIN), r.URL.Query().Get("q"))
			fmt.Fprint(w, `{"quotes":[{"symbol":"IWDA.AS","quoteType":"ETF"}]}`)
		case strings.HasPrefix(r.URL.Path, "/v8/finance/chart/"):
			chartPath = r.URL.Path
			assert.Equal(t, "1y", r.URL.Query().Get("range"))
			fmt.Fprintf(w, `{"chart":{"result":[{"meta":{"currency":"EUR","symbol":"IWDA.AS"},
				"timestamp":[%d,%d,%d,%d],
				"indicators":{"quote":[{"open":[80.1,null,81.0,81.5],"high":[81,null,82,82],"low":[79,null,80,81],
				"close":[80.5,null,81.7,81.9],"volume":[1000,null,1200,900]}]}}],"error":null}}`,
				unix("2024-06-10"), unix("2024-06-11"), unix("2024-06-12"), unix("2024-06-13"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src := NewYahooSource(testOptions(srv))
	series, err := src.Fetch(context.Background(), testISIN, models.Period1Y)
	require.NoError(t, err)

	assert.Equal(t, "/v8/finance/chart/IWDA.AS", chartPath)
	assert.Equal(t, "yahoo", series.Source)
	require.Equal(t, 3, series.Len(), "null bar skipped")
	assert.Equal(t, "2024-06-10", series.First().Date.Format(models.DateLayout))
	assert.Equal(t, 81.9, series.Last().Close)
	assert.Equal(t, int64(1200), series.Points[1].Volume)
	assert.NoError(t, series.Validate(testNow, 10*24*time.Hour))
}

func TestYahooSourceSymbolOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v8/finance/chart/VWCE.DE" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `{"chart":{"result":[{"timestamp":[%d],"indicators":{"quote":[{"close":[110.2]}]}}]}}`, unix("2024-06-13"))
	}))
	defer srv.Close()

	opts := testOptions(srv)
	opts.Symbols = func(id models.InstrumentID) (string, bool) {
		return "VWCE.DE", id == "IE00BK5BQT80"
	}
	series, err := NewYahooSource(opts).Fetch(context.Background(), "IE00BK5BQT80", models.Period1M)
	require.NoError(t, err)
	assert.Equal(t, 110.2, series.Last().Close)
}

func TestYahooSourceOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   error
	}{
		{"not found status", http.StatusNotFound, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`, apperrors.ErrNotFound},
		{"api not found", http.StatusOK, `{"chart":{"result":null,"error":{"code":"Not Found","description":"delisted"}}}`, apperrors.ErrNotFound},
		{"empty result", http.StatusOK, `{"chart":{"result":[],"error":null}}`, apperrors.ErrNotFound},
		{"server error", http.StatusBadGateway, `bad gateway`, apperrors.ErrUnavailable},
		{"rate limited", http.StatusTooManyRequests, `slow down`, apperrors.ErrUnavailable},
		{"garbage", http.StatusOK, `<html>`, apperrors.ErrBadData},
		{"forbidden", http.StatusForbidden, `nope`, apperrors.ErrBadData},
		{"mismatched arrays", http.StatusOK, `{"chart":{"result":[{"timestamp":[1,2],"indicators":{"quote":[{"close":[1]}]}}]}}`, apperrors.ErrBadData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewYahooSource(testOptions(srv)).Fetch(context.Background(), "AAPL", models.Period1Y)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperrors.KindOf(err))
		})
	}
}

func TestYahooSourceTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	opts := testOptions(srv)
	srv.Close()

	_, err := NewYahooSource(opts).Fetch(context.Background(), "AAPL", models.Period1Y)
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
}

func TestJustETFSourceFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/etfs/IE00B4L5Y983/performance-chart", r.URL.Path)
		assert.Equal(t, "2023-06-14", r.URL.Query().Get("dateFrom"))
		assert.Equal(t, "2024-06-14", r.URL.Query().Get("dateTo"))
		fmt.Fprint(w, `{"series":[
			{"date":"2024-06-12","value":{"raw":88.41,"localized":"88,41"}},
			{"date":"2024-06-10","value":{"raw":87.90,"localized":"87,90"}},
			{"date":"2024-06-11","value":88.02},
			{"date":"2024-06-13","value":null}
		]}`)
	}))
	defer srv.Close()

	series, err := NewJustETFSource(testOptions(srv)).Fetch(context.Background(), testISIN, models.Period1Y)
	require.NoError(t, err)
	require.Equal(t, 3, series.Len())
	assert.Equal(t, []float64{87.90, 88.02, 88.41}, series.Closes())
	assert.Equal(t, "justetf", series.Source)
}

func TestJustETFSourceOutcomes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "LU0000000000"):
			fmt.Fprint(w, `{"series":[]}`)
		case strings.Contains(r.URL.Path, "DE0000000001"):
			fmt.Fprint(w, `{"series":[{"date":"13/06/2024","value":1}]}`)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()
	src := NewJustETFSource(testOptions(srv))
	ctx := context.Background()

	_, err := src.Fetch(ctx, "VWCE.DE", models.Period1Y)
	assert.ErrorIs(t, err, apperrors.ErrNotFound, "tickers are not ISINs")

	_, err = src.Fetch(ctx, "LU0000000000", models.Period1Y)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = src.Fetch(ctx, "DE0000000001", models.Period1Y)
	assert.ErrorIs(t, err, apperrors.ErrBadData)

	_, err = src.Fetch(ctx, testISIN, models.Period1Y)
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
}

func TestEODHDSourceFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("api_token"))
		switch r.URL.Path {
		case "/api/search/IE00B4L5Y983":
			fmt.Fprint(w, `[{"Code":"IWDA","Exchange":"AS","Name":"iShares Core MSCI World","Currency":"EUR","ISIN":"IE00B4L5Y983"}]`)
		case "/api/eod/IWDA.AS":
			assert.Equal(t, "2024-01-01", r.URL.Query().Get("from"))
			fmt.Fprint(w, `[
				{"date":"2024-06-12","open":88.0,"high":88.6,"low":87.9,"close":88.41,"adjusted_close":88.41,"volume":15000},
				{"date":"2024-06-13","open":88.4,"high":88.9,"low":88.1,"close":"88.77","adjusted_close":88.77,"volume":12000}
			]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	series, err := NewEODHDSource("secret", testOptions(srv)).Fetch(context.Background(), testISIN, models.PeriodYTD)
	require.NoError(t, err)
	require.Equal(t, 2, series.Len())
	assert.Equal(t, 88.77, series.Last().Close)
	assert.Equal(t, 88.0, series.First().Open)
	assert.Equal(t, int64(12000), series.Last().Volume)
}

func TestEODHDSourceWithoutKey(t *testing.T) {
	_, err := NewEODHDSource("", HTTPOptions{}).Fetch(context.Background(), testISIN, models.Period1Y)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestEODHDSourceUnlistedISIN(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	_, err := NewEODHDSource("k", testOptions(srv)).Fetch(context.Background(), testISIN, models.Period1Y)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestNormalize(t *testing.T) {
	d := func(s string) time.Time { t, _ := time.Parse(models.DateLayout, s); return t }
	points := []models.PricePoint{
		{Date: d("2024-06-12"), Close: 3},
		{Date: d("2024-06-10"), Close: 1},
		{Date: d("2024-06-12"), Close: 4},
		{Date: d("2024-06-11"), Close: 0},
		{Date: d("2023-01-01"), Close: 9},
	}
	s := normalize("X", models.Period1M, "test", points, testNow)
	require.Equal(t, 2, s.Len())
	assert.Equal(t, []float64{1, 4}, s.Closes(), "sorted, deduped keeping last, trimmed")
}

func TestTransportErrorHidesAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	opts := testOptions(srv)
	srv.Close()

	_, err := NewEODHDSource("0123456789abcdef", opts).Fetch(context.Background(), "IWDA.AS", models.Period1Y)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
	assert.NotContains(t, err.Error(), "0123456789abcdef")
}
