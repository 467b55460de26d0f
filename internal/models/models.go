// Package models provides domain models for the portfolio tracker.
package models

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// InstrumentID names a tradable asset. It is usually an ISIN but a provider
// ticker (e.g. "VWCE.DE") is accepted too.
type InstrumentID string

// String returns the identifier as a string.
func (id InstrumentID) String() string {
	return string(id)
}

// Normalize returns the identifier trimmed and upper-cased.
func (id InstrumentID) Normalize() InstrumentID {
	return InstrumentID(strings.ToUpper(strings.TrimSpace(string(id))))
}

// IsISIN reports whether the identifier is shaped like an ISIN: two country
// letters, nine alphanumerics and a check digit.
func (id InstrumentID) IsISIN() bool {
	s := string(id)
	if len(s) != 12 {
		return false
	}
	for i, r := range s {
		switch {
		case i < 2:
			if !unicode.IsUpper(r) {
				return false
			}
		case i == 11:
			if !unicode.IsDigit(r) {
				return false
			}
		default:
			if !unicode.IsUpper(r) && !unicode.IsDigit(r) {
				return false
			}
		}
	}
	return true
}

// PricePoint is one trading day of a series. Open, High, Low and Volume are
// zero when the source does not provide them.
type PricePoint struct {
	Date   time.Time `json:"date" yaml:"date"`
	Close  float64   `json:"close" yaml:"close"`
	Open   float64   `json:"open,omitempty" yaml:"open,omitempty"`
	High   float64   `json:"high,omitempty" yaml:"high,omitempty"`
	Low    float64   `json:"low,omitempty" yaml:"low,omitempty"`
	Volume int64     `json:"volume,omitempty" yaml:"volume,omitempty"`
}

// PriceSeries is an ordered sequence of points for one instrument over a
// requested period.
type PriceSeries struct {
	Instrument InstrumentID `json:"instrument" yaml:"instrument"`
	Period     Period       `json:"period" yaml:"period"`
	Source     string       `json:"source" yaml:"source"`
	Points     []PricePoint `json:"points" yaml:"points"`
}

// Len returns the number of points.
func (s *PriceSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Points)
}

// Closes extracts the closing prices.
func (s *PriceSeries) Closes() []float64 {
	closes := make([]float64, len(s.Points))
	for i, p := range s.Points {
		closes[i] = p.Close
	}
	return closes
}

// Dates extracts the point dates.
func (s *PriceSeries) Dates() []time.Time {
	dates := make([]time.Time, len(s.Points))
	for i, p := range s.Points {
		dates[i] = p.Date
	}
	return dates
}

// First returns the first point. It panics on an empty series.
func (s *PriceSeries) First() PricePoint {
	return s.Points[0]
}

// Last returns the last point. It panics on an empty series.
func (s *PriceSeries) Last() PricePoint {
	return s.Points[len(s.Points)-1]
}

// Since returns a copy of the series holding only points on or after from.
func (s *PriceSeries) Since(from time.Time) *PriceSeries {
	from = Day(from)
	out := &PriceSeries{Instrument: s.Instrument, Period: s.Period, Source: s.Source}
	for _, p := range s.Points {
		if !p.Date.Before(from) {
			out.Points = append(out.Points, p)
		}
	}
	return out
}

// OnOrAfter returns the index of the first point dated on or after date, or -1.
func (s *PriceSeries) OnOrAfter(date time.Time) int {
	date = Day(date)
	for i, p := range s.Points {
		if !p.Date.Before(date) {
			return i
		}
	}
	return -1
}

// Validate checks the series invariants: strictly increasing dates, no
// future dates, non-negative prices and no gap larger than maxGap between
// consecutive points. A zero maxGap disables the gap check.
func (s *PriceSeries) Validate(now time.Time, maxGap time.Duration) error {
	if s.Len() == 0 {
		return fmt.Errorf("empty series")
	}
	today := Day(now)
	for i, p := range s.Points {
		if p.Date.IsZero() {
			return fmt.Errorf("point %d has no date", i)
		}
		if p.Date.After(today) {
			return fmt.Errorf("point %d dated %s is in the future", i, p.Date.Format(DateLayout))
		}
		if p.Close < 0 || p.Open < 0 || p.High < 0 || p.Low < 0 || p.Volume < 0 {
			return fmt.Errorf("point %d dated %s has a negative value", i, p.Date.Format(DateLayout))
		}
		if i == 0 {
			continue
		}
		prev := s.Points[i-1].Date
		if !p.Date.After(prev) {
			return fmt.Errorf("point %d dated %s does not follow %s", i, p.Date.Format(DateLayout), prev.Format(DateLayout))
		}
		if maxGap > 0 && p.Date.Sub(prev) > maxGap {
			return fmt.Errorf("gap of %s between %s and %s", p.Date.Sub(prev), prev.Format(DateLayout), p.Date.Format(DateLayout))
		}
	}
	return nil
}

// QuoteResult is the outcome of resolving one instrument: a series tagged
// with its source, or the failure.
type QuoteResult struct {
	Instrument InstrumentID `json:"instrument" yaml:"instrument"`
	Series     *PriceSeries `json:"series,omitempty" yaml:"series,omitempty"`
	Stale      bool         `json:"stale,omitempty" yaml:"stale,omitempty"`
	Err        error        `json:"-" yaml:"-"`
}

// OK reports whether the result carries a series.
func (r QuoteResult) OK() bool {
	return r.Err == nil && r.Series != nil
}
