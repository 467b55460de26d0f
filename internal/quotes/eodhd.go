package quotes

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/logging"
	"portfolio-tracker/internal/models"
)

// EODHDSource fetches end-of-day prices from eodhd.com. ISINs are mapped to
// "CODE.EXCHANGE" tickers through the search API.
type EODHDSource struct {
	opts   HTTPOptions
	apiKey string
}

// NewEODHDSource creates an EODHD adapter. Without an API key every fetch
// reports NotFound so the resolver moves on.
func NewEODHDSource(apiKey string, opts HTTPOptions) *EODHDSource {
	opts.setDefaults("https://eodhd.com")
	opts.Logger = logging.WithSource(opts.Logger, "eodhd")
	return &EODHDSource{opts: opts, apiKey: apiKey}
}

func (s *EODHDSource) Name() string { return "eodhd" }

// eodhdSearchResult matches a single item in the search API response.
type eodhdSearchResult struct {
	Code     string `json:"Code"`
	Exchange string `json:"Exchange"`
	Name     string `json:"Name"`
	Currency string `json:"Currency"`
	ISIN     string `json:"ISIN"`
}

type eodhdBar struct {
	Date   string          `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// Fetch implements Source.
func (s *EODHDSource) Fetch(ctx context.Context, id models.InstrumentID, period models.Period) (*models.PriceSeries, error) {
	if s.apiKey == "" {
		return nil, apperrors.NotFound(s.Name(), id.String(), "no API key configured")
	}

	ticker, err := s.ticker(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.opts.Now()
	u := fmt.Sprintf("%s/api/eod/%s?fmt=json&api_token=%s&from=%s&to=%s",
		s.opts.BaseURL, url.PathEscape(ticker), url.QueryEscape(s.apiKey),
		period.Start(now).Format(models.DateLayout), models.Day(now).Format(models.DateLayout))

	var bars []eodhdBar
	if err := getJSON(ctx, s.opts.Client, s.opts.Logger, s.request(id, u), &bars); err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, apperrors.NotFound(s.Name(), id.String(), "no prices for "+ticker)
	}

	points := make([]models.PricePoint, 0, len(bars))
	for _, b := range bars {
		date, err := models.ParseDate(b.Date)
		if err != nil {
			return nil, apperrors.BadData(s.Name(), id.String(), "bad date "+b.Date, err)
		}
		points = append(points, models.PricePoint{
			Date:   date,
			Close:  b.Close.InexactFloat64(),
			Open:   b.Open.InexactFloat64(),
			High:   b.High.InexactFloat64(),
			Low:    b.Low.InexactFloat64(),
			Volume: b.Volume,
		})
	}

	return normalize(id, period, s.Name(), points, now), nil
}

// ticker resolves the EODHD ticker for id.
func (s *EODHDSource) ticker(ctx context.Context, id models.InstrumentID) (string, error) {
	if sym, ok := s.opts.symbolFor(id); ok && strings.Contains(sym, ".") {
		return sym, nil
	}
	if !id.IsISIN() {
		return id.String(), nil
	}

	u := fmt.Sprintf("%s/api/search/%s?fmt=json&api_token=%s", s.opts.BaseURL, url.PathEscape(id.String()), url.QueryEscape(s.apiKey))
	var results []eodhdSearchResult
	if err := getJSON(ctx, s.opts.Client, s.opts.Logger, s.request(id, u), &results); err != nil {
		return "", err
	}
	for _, r := range results {
		if r.Code != "" && r.Exchange != "" && (r.ISIN == "" || strings.EqualFold(r.ISIN, id.String())) {
			return r.Code + "." + r.Exchange, nil
		}
	}
	return "", apperrors.NotFound(s.Name(), id.String(), "ISIN not listed")
}

func (s *EODHDSource) request(id models.InstrumentID, u string) request {
	return request{
		source:     s.Name(),
		instrument: id.String(),
		url:        u,
		headers:    map[string]string{"User-Agent": s.opts.UserAgent, "Accept": "application/json"},
	}
}
