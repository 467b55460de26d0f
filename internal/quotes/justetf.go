package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/logging"
	"portfolio-tracker/internal/models"
)

// JustETFSource fetches the justETF performance chart, which covers most
// UCITS ETFs listed in Europe. Only ISINs are supported.
type JustETFSource struct {
	opts     HTTPOptions
	currency string
}

// NewJustETFSource creates a justETF adapter quoting in EUR.
func NewJustETFSource(opts HTTPOptions) *JustETFSource {
	opts.setDefaults("https://www.justetf.com")
	opts.Logger = logging.WithSource(opts.Logger, "justetf")
	return &JustETFSource{opts: opts, currency: "EUR"}
}

func (s *JustETFSource) Name() string { return "justetf" }

type justETFChart struct {
	Series []struct {
		Date  string          `json:"date"`
		Value json.RawMessage `json:"value"`
	} `json:"series"`
}

// justETFValue is either {"raw": 22.26, "localized": "22,26"} or a bare number.
func justETFValue(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var obj struct {
		Raw *float64 `json:"raw"`
	}
	if raw[0] == '{' {
		if err := json.Unmarshal(raw, &obj); err != nil {
			return 0, err
		}
		if obj.Raw == nil {
			return 0, nil
		}
		return *obj.Raw, nil
	}
	var v float64
	err := json.Unmarshal(raw, &v)
	return v, err
}

// Fetch implements Source.
func (s *JustETFSource) Fetch(ctx context.Context, id models.InstrumentID, period models.Period) (*models.PriceSeries, error) {
	if !id.IsISIN() {
		return nil, apperrors.NotFound(s.Name(), id.String(), "justETF only knows ISINs")
	}

	now := s.opts.Now()
	q := url.Values{}
	q.Set("locale", "en")
	q.Set("currency", s.currency)
	q.Set("valuesType", "MARKET_VALUE")
	q.Set("reduceData", "false")
	q.Set("includeDividends", "false")
	q.Set("dateFrom", period.Start(now).Format(models.DateLayout))
	q.Set("dateTo", models.Day(now).Format(models.DateLayout))

	u := fmt.Sprintf("%s/api/etfs/%s/performance-chart?%s", s.opts.BaseURL, url.PathEscape(id.String()), q.Encode())

	var chart justETFChart
	err := getJSON(ctx, s.opts.Client, s.opts.Logger, request{
		source:     s.Name(),
		instrument: id.String(),
		url:        u,
		headers: map[string]string{
			"User-Agent": s.opts.UserAgent,
			"Accept":     "application/json, text/plain, */*",
			"Referer":    "https://www.justetf.com/en/etf-profile.html?isin=" + id.String(),
		},
	}, &chart)
	if err != nil {
		return nil, err
	}
	if len(chart.Series) == 0 {
		return nil, apperrors.NotFound(s.Name(), id.String(), "empty series")
	}

	points := make([]models.PricePoint, 0, len(chart.Series))
	for _, p := range chart.Series {
		if p.Date == "" {
			continue
		}
		date, err := models.ParseDate(p.Date)
		if err != nil {
			return nil, apperrors.BadData(s.Name(), id.String(), "bad date "+p.Date, err)
		}
		v, err := justETFValue(p.Value)
		if err != nil {
			return nil, apperrors.BadData(s.Name(), id.String(), "bad value on "+p.Date, err)
		}
		points = append(points, models.PricePoint{Date: date, Close: v})
	}

	return normalize(id, period, s.Name(), points, now), nil
}
