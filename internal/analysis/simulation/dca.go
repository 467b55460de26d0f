// Package simulation runs periodic contribution (DCA) back-tests over a
// price series and compound growth projections. Money is kept in decimals.
package simulation

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/models"
)

// Frequency is how often a contribution is made.
type Frequency string

const (
	Weekly    Frequency = "weekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
)

// ParseFrequency accepts weekly, monthly or quarterly.
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(strings.ToLower(strings.TrimSpace(s))); f {
	case Weekly, Monthly, Quarterly:
		return f, nil
	}
	return "", apperrors.NewValidationError("frequency", s, "must be weekly, monthly or quarterly")
}

// next returns the k-th scheduled date after anchor. Monthly dates keep the
// anchor's day, clamped to the end of shorter months.
func (f Frequency) next(anchor time.Time, k int) time.Time {
	switch f {
	case Weekly:
		return anchor.AddDate(0, 0, 7*k)
	case Quarterly:
		return addMonths(anchor, 3*k)
	default:
		return addMonths(anchor, k)
	}
}

func addMonths(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	lastDay := first.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// DCAConfig describes a contribution plan. A zero Start means the first
// date of the series; a zero End means its last date.
type DCAConfig struct {
	Contribution decimal.Decimal
	Frequency    Frequency
	Start        time.Time
	End          time.Time
}

// Purchase is one executed contribution.
type Purchase struct {
	Scheduled time.Time       `json:"scheduled" yaml:"scheduled"`
	Date      time.Time       `json:"date" yaml:"date"`
	Price     decimal.Decimal `json:"price" yaml:"price"`
	Amount    decimal.Decimal `json:"amount" yaml:"amount"`
	Units     decimal.Decimal `json:"units" yaml:"units"`
}

// DCAResult summarizes a simulated plan.
type DCAResult struct {
	Instrument    models.InstrumentID `json:"instrument" yaml:"instrument"`
	Contribution  decimal.Decimal     `json:"contribution" yaml:"contribution"`
	Frequency     Frequency           `json:"frequency" yaml:"frequency"`
	Contributions int                 `json:"contributions" yaml:"contributions"`
	TotalInvested decimal.Decimal     `json:"total_invested" yaml:"total_invested"`
	Units         decimal.Decimal     `json:"units" yaml:"units"`
	FinalValue    decimal.Decimal     `json:"final_value" yaml:"final_value"`
	AveragePrice  decimal.Decimal     `json:"average_price" yaml:"average_price"`
	ReturnPct     decimal.Decimal     `json:"return_pct" yaml:"return_pct"`
	Purchases     []Purchase          `json:"purchases,omitempty" yaml:"purchases,omitempty"`
}

// unitsPrecision bounds the decimal places kept for fractional units.
const unitsPrecision = 8

// SimulateDCA buys Contribution/price units on every scheduled date. A date
// without a close uses the next trading day's close; dates before the first
// close or past the last close are not executed, and a trading day already
// filled by an earlier date is not bought twice. Final value is valued at
// the last close.
func SimulateDCA(series *models.PriceSeries, cfg DCAConfig) (DCAResult, error) {
	if series.Len() == 0 {
		return DCAResult{}, apperrors.Wrap(apperrors.ErrInsufficientData, "dca needs at least one close")
	}
	if !cfg.Contribution.IsPositive() {
		return DCAResult{}, apperrors.NewValidationError("contribution", cfg.Contribution.String(), "must be positive")
	}
	if cfg.Frequency == "" {
		cfg.Frequency = Monthly
	}

	start, end := models.Day(cfg.Start), models.Day(cfg.End)
	if cfg.Start.IsZero() {
		start = series.First().Date
	}
	if cfg.End.IsZero() || end.After(series.Last().Date) {
		end = series.Last().Date
	}
	if end.Before(start) {
		return DCAResult{}, apperrors.NewValidationError("end", end.Format(models.DateLayout), "is before start")
	}

	res := DCAResult{
		Instrument:   series.Instrument,
		Contribution: cfg.Contribution,
		Frequency:    cfg.Frequency,
	}

	first := series.First().Date
	filled := -1
	for k := 0; ; k++ {
		scheduled := cfg.Frequency.next(start, k)
		if scheduled.After(end) {
			break
		}
		if scheduled.Before(first) {
			continue
		}
		idx := series.OnOrAfter(scheduled)
		if idx < 0 {
			break
		}
		if idx == filled {
			continue
		}
		filled = idx
		p := series.Points[idx]
		if p.Close <= 0 {
			return DCAResult{}, apperrors.NewDataError("price", series.Instrument.String(),
				fmt.Sprintf("non-positive close on %s", p.Date.Format(models.DateLayout)), nil)
		}
		price := decimal.NewFromFloat(p.Close)
		units := cfg.Contribution.DivRound(price, unitsPrecision)

		res.Purchases = append(res.Purchases, Purchase{
			Scheduled: scheduled,
			Date:      p.Date,
			Price:     price,
			Amount:    cfg.Contribution,
			Units:     units,
		})
		res.Contributions++
		res.Units = res.Units.Add(units)
	}

	if res.Contributions == 0 {
		return DCAResult{}, apperrors.Wrap(apperrors.ErrInsufficientData, "no contribution date falls inside the series")
	}

	res.TotalInvested = cfg.Contribution.Mul(decimal.NewFromInt(int64(res.Contributions)))
	res.FinalValue = res.Units.Mul(decimal.NewFromFloat(series.Last().Close)).Round(2)
	res.AveragePrice = res.TotalInvested.DivRound(res.Units, 4)
	res.ReturnPct = res.FinalValue.Sub(res.TotalInvested).Div(res.TotalInvested).Mul(decimal.NewFromInt(100)).Round(2)
	return res, nil
}
