// Package quotes acquires historical price series. Each provider sits behind
// a Source adapter; the Resolver walks the adapters in priority order with
// retry, fallback and a series store in front.
package quotes

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"portfolio-tracker/internal/models"
)

// Source adapts one quote provider. Fetch returns a normalized series for
// the period or an *errors.AdapterError of kind NotFound, Unavailable or
// BadData. A missing instrument is never reported as a transient failure.
type Source interface {
	Name() string
	Fetch(ctx context.Context, id models.InstrumentID, period models.Period) (*models.PriceSeries, error)
}

// HTTPOptions is shared by the HTTP based adapters.
type HTTPOptions struct {
	Client    *http.Client
	BaseURL   string // overrides the provider endpoint, mainly for tests
	UserAgent string
	Symbols   func(models.InstrumentID) (string, bool) // ticker overrides
	Logger    zerolog.Logger
	Now       func() time.Time
}

func (o *HTTPOptions) setDefaults(baseURL string) {
	if o.Client == nil {
		o.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if o.BaseURL == "" {
		o.BaseURL = baseURL
	}
	if o.UserAgent == "" {
		o.UserAgent = "Mozilla/5.0"
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

func (o *HTTPOptions) symbolFor(id models.InstrumentID) (string, bool) {
	if o.Symbols == nil {
		return "", false
	}
	return o.Symbols(id)
}

// normalize sorts points by date, keeps the last point for duplicate dates,
// drops empty bars and trims the series to the requested period.
func normalize(id models.InstrumentID, period models.Period, source string, points []models.PricePoint, now time.Time) *models.PriceSeries {
	sort.SliceStable(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })

	start := period.Start(now)
	out := make([]models.PricePoint, 0, len(points))
	for _, p := range points {
		if p.Close == 0 || p.Date.Before(start) {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Date.Equal(p.Date) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}

	return &models.PriceSeries{
		Instrument: id,
		Period:     period,
		Source:     source,
		Points:     out,
	}
}
