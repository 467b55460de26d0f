package indicators

import (
	"fmt"
	"time"

	"portfolio-tracker/internal/models"
)

// BucketReturn is the return of one calendar year or month.
type BucketReturn struct {
	Label  string    `json:"label" yaml:"label"`
	Start  time.Time `json:"start" yaml:"start"`
	End    time.Time `json:"end" yaml:"end"`
	Base   float64   `json:"base" yaml:"base"`
	Close  float64   `json:"close" yaml:"close"`
	Return float64   `json:"return" yaml:"return"`
}

// AnnualReturns groups the series by calendar year.
func AnnualReturns(series *models.PriceSeries) []BucketReturn {
	return bucketReturns(series, func(t time.Time) string { return t.Format("2006") })
}

// MonthlyReturns groups the series by calendar month.
func MonthlyReturns(series *models.PriceSeries) []BucketReturn {
	return bucketReturns(series, func(t time.Time) string { return t.Format("2006-01") })
}

// bucketReturns measures each bucket from the previous bucket's last close
// to its own last close. The first bucket has no predecessor and starts
// from its own first close.
func bucketReturns(series *models.PriceSeries, label func(time.Time) string) []BucketReturn {
	if series == nil || series.Len() == 0 {
		return nil
	}

	var out []BucketReturn
	var cur *BucketReturn
	for _, p := range series.Points {
		l := label(p.Date)
		if cur == nil || cur.Label != l {
			base := p.Close
			if cur != nil {
				base = cur.Close
				out = append(out, *cur)
			}
			cur = &BucketReturn{Label: l, Start: p.Date, Base: base}
		}
		cur.End = p.Date
		cur.Close = p.Close
		if cur.Base != 0 {
			cur.Return = cur.Close/cur.Base - 1
		}
	}
	return append(out, *cur)
}

// Change is the return between a reference date and the last close.
type Change struct {
	Label  string  `json:"label" yaml:"label"`
	Return float64 `json:"return" yaml:"return"`
	Delta  float64 `json:"delta" yaml:"delta"`
}

// PeriodChanges reports the change since yesterday, the start of the week,
// month and year, and 30 and 90 days ago. Each reference uses the last close
// on or before its date; references outside the series are omitted.
func PeriodChanges(series *models.PriceSeries, now time.Time) []Change {
	if series == nil || series.Len() < 2 {
		return nil
	}
	today := models.Day(now)
	last := series.Last().Close

	weekday := (int(today.Weekday()) + 6) % 7 // Monday = 0
	refs := []struct {
		label string
		date  time.Time
	}{
		{"1d", series.Points[series.Len()-2].Date},
		{"week", today.AddDate(0, 0, -weekday)},
		{"month", time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)},
		{"ytd", time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)},
		{"30d", today.AddDate(0, 0, -30)},
		{"90d", today.AddDate(0, 0, -90)},
	}

	var out []Change
	for _, r := range refs {
		base, ok := closeOnOrBefore(series, r.date)
		if !ok || base == 0 {
			continue
		}
		out = append(out, Change{Label: r.label, Return: last/base - 1, Delta: last - base})
	}
	return out
}

func closeOnOrBefore(series *models.PriceSeries, date time.Time) (float64, bool) {
	if series.Len() == 0 || series.First().Date.After(date) {
		return 0, false
	}
	found := 0.0
	for _, p := range series.Points {
		if p.Date.After(date) {
			break
		}
		found = p.Close
	}
	return found, true
}

// TotalReturn is last close over first close minus one.
func TotalReturn(closes []float64) (float64, error) {
	if len(closes) < 2 {
		return 0, insufficient("total return", 2, len(closes))
	}
	if closes[0] == 0 {
		return 0, fmt.Errorf("total return: first close is zero")
	}
	return closes[len(closes)-1]/closes[0] - 1, nil
}
