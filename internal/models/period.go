package models

import (
	"fmt"
	"strings"
	"time"

	apperrors "portfolio-tracker/internal/errors"
)

// DateLayout is the layout used for dates on the wire and in storage.
const DateLayout = "2006-01-02"

// Period is a named look-back window for a price series.
type Period string

const (
	Period1W  Period = "1w"
	Period1M  Period = "1mo"
	Period3M  Period = "3mo"
	Period6M  Period = "6mo"
	Period1Y  Period = "1y"
	Period2Y  Period = "2y"
	Period5Y  Period = "5y"
	Period10Y Period = "10y"
	PeriodYTD Period = "ytd"
	PeriodMax Period = "max"
)

// maxYears bounds the "max" period for providers that need explicit dates.
const maxYears = 20

var periods = map[Period]struct{}{
	Period1W: {}, Period1M: {}, Period3M: {}, Period6M: {}, Period1Y: {},
	Period2Y: {}, Period5Y: {}, Period10Y: {}, PeriodYTD: {}, PeriodMax: {},
}

// ParsePeriod parses a period name such as "6mo" or "1y".
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := periods[p]; !ok {
		return "", fmt.Errorf("%w: %q", apperrors.ErrInvalidPeriod, s)
	}
	return p, nil
}

// AllPeriods returns the supported periods, shortest first.
func AllPeriods() []Period {
	return []Period{Period1W, Period1M, Period3M, Period6M, PeriodYTD, Period1Y, Period2Y, Period5Y, Period10Y, PeriodMax}
}

// Start returns the first calendar day covered by the period ending at now.
func (p Period) Start(now time.Time) time.Time {
	today := Day(now)
	switch p {
	case Period1W:
		return today.AddDate(0, 0, -7)
	case Period1M:
		return today.AddDate(0, -1, 0)
	case Period3M:
		return today.AddDate(0, -3, 0)
	case Period6M:
		return today.AddDate(0, -6, 0)
	case Period1Y:
		return today.AddDate(-1, 0, 0)
	case Period2Y:
		return today.AddDate(-2, 0, 0)
	case Period5Y:
		return today.AddDate(-5, 0, 0)
	case Period10Y:
		return today.AddDate(-10, 0, 0)
	case PeriodYTD:
		return time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return today.AddDate(-maxYears, 0, 0)
	}
}

// Days returns the approximate number of calendar days in the period.
func (p Period) Days(now time.Time) int {
	return int(Day(now).Sub(p.Start(now)).Hours()/24) + 1
}

// Day truncates t to a UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date, tolerating a trailing time part.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// SeriesKey identifies a cached series.
type SeriesKey struct {
	Instrument InstrumentID
	Period     Period
}

// String returns the key as "instrument/period".
func (k SeriesKey) String() string {
	return string(k.Instrument) + "/" + string(k.Period)
}
