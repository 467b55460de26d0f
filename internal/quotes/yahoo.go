package quotes

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/logging"
	"portfolio-tracker/internal/models"
)

// YahooSource fetches daily bars from the Yahoo Finance chart API. ISINs
// are mapped to tickers through the symbol overrides or the search API.
type YahooSource struct {
	opts HTTPOptions
}

// NewYahooSource creates a Yahoo Finance adapter.
func NewYahooSource(opts HTTPOptions) *YahooSource {
	opts.setDefaults("https://query1.finance.yahoo.com")
	opts.Logger = logging.WithSource(opts.Logger, "yahoo")
	return &YahooSource{opts: opts}
}

func (s *YahooSource) Name() string { return "yahoo" }

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency string `json:"currency"`
				Symbol   string `json:"symbol"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type yahooSearch struct {
	Quotes []struct {
		Symbol    string `json:"symbol"`
		QuoteType string `json:"quoteType"`
	} `json:"quotes"`
}

// yahooRanges maps periods onto the chart API range parameter.
var yahooRanges = map[models.Period]string{
	models.Period1W:  "5d",
	models.Period1M:  "1mo",
	models.Period3M:  "3mo",
	models.Period6M:  "6mo",
	models.Period1Y:  "1y",
	models.Period2Y:  "2y",
	models.Period5Y:  "5y",
	models.Period10Y: "10y",
	models.PeriodYTD: "ytd",
	models.PeriodMax: "max",
}

// Fetch implements Source.
func (s *YahooSource) Fetch(ctx context.Context, id models.InstrumentID, period models.Period) (*models.PriceSeries, error) {
	symbol, err := s.symbol(ctx, id)
	if err != nil {
		return nil, err
	}

	rng, ok := yahooRanges[period]
	if !ok {
		return nil, apperrors.BadData(s.Name(), id.String(), "unsupported period "+string(period), nil)
	}

	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=%s&includeAdjustedClose=false",
		s.opts.BaseURL, url.PathEscape(symbol), rng)

	var chart yahooChart
	if err := getJSON(ctx, s.opts.Client, s.opts.Logger, s.request(id, u), &chart); err != nil {
		return nil, err
	}
	if chart.Chart.Error != nil {
		if strings.EqualFold(chart.Chart.Error.Code, "Not Found") {
			return nil, apperrors.NotFound(s.Name(), id.String(), chart.Chart.Error.Description)
		}
		return nil, apperrors.BadData(s.Name(), id.String(), "api error: "+chart.Chart.Error.Description, nil)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 {
		return nil, apperrors.NotFound(s.Name(), id.String(), "no data returned for "+symbol)
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, apperrors.BadData(s.Name(), id.String(), "chart without quote block", nil)
	}
	quote := result.Indicators.Quote[0]
	if len(quote.Close) != len(result.Timestamp) {
		return nil, apperrors.BadData(s.Name(), id.String(),
			fmt.Sprintf("%d timestamps but %d closes", len(result.Timestamp), len(quote.Close)), nil)
	}

	points := make([]models.PricePoint, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		c := at(quote.Close, i)
		if c == 0 {
			continue // skip null bars (holidays etc.)
		}
		points = append(points, models.PricePoint{
			Date:   models.Day(time.Unix(ts, 0).UTC()),
			Close:  c,
			Open:   at(quote.Open, i),
			High:   at(quote.High, i),
			Low:    at(quote.Low, i),
			Volume: int64(at(quote.Volume, i)),
		})
	}

	return normalize(id, period, s.Name(), points, s.opts.Now()), nil
}

// symbol resolves the Yahoo ticker for id.
func (s *YahooSource) symbol(ctx context.Context, id models.InstrumentID) (string, error) {
	if sym, ok := s.opts.symbolFor(id); ok {
		return sym, nil
	}
	if !id.IsISIN() {
		return id.String(), nil
	}

	u := fmt.Sprintf("%s/v1/finance/search?q=%s&quotesCount=5&newsCount=0", s.opts.BaseURL, url.QueryEscape(id.String()))
	var res yahooSearch
	if err := getJSON(ctx, s.opts.Client, s.opts.Logger, s.request(id, u), &res); err != nil {
		return "", err
	}
	for _, q := range res.Quotes {
		if q.Symbol != "" {
			return q.Symbol, nil
		}
	}
	return "", apperrors.NotFound(s.Name(), id.String(), "no ticker for ISIN")
}

func (s *YahooSource) request(id models.InstrumentID, u string) request {
	return request{
		source:     s.Name(),
		instrument: id.String(),
		url:        u,
		headers:    map[string]string{"User-Agent": s.opts.UserAgent, "Accept": "application/json"},
	}
}

func at(vals []*float64, i int) float64 {
	if i >= len(vals) || vals[i] == nil {
		return 0
	}
	return *vals[i]
}
