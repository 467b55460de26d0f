package patterns

import (
	"time"

	"github.com/moznion/go-optional"

	"portfolio-tracker/internal/analysis/indicators"
	"portfolio-tracker/internal/models"
)

// Crossover defaults.
const (
	DefaultFastPeriod  = 50
	DefaultSlowPeriod  = 200
	DefaultConfirmDays = 3
)

// CrossKind is the direction of a moving average crossover.
type CrossKind string

const (
	GoldenCross CrossKind = "golden"
	DeathCross  CrossKind = "death"
)

// Crossover is one crossing of the fast average through the slow one.
type Crossover struct {
	Kind      CrossKind `json:"kind" yaml:"kind"`
	Index     int       `json:"index" yaml:"index"`
	Date      time.Time `json:"date" yaml:"date"`
	Fast      float64   `json:"fast" yaml:"fast"`
	Slow      float64   `json:"slow" yaml:"slow"`
	Confirmed bool      `json:"confirmed" yaml:"confirmed"`
}

// CrossoverReport holds every crossover found, oldest first, and the most
// recent one that has not yet held for the confirmation window.
type CrossoverReport struct {
	History     []Crossover                `json:"history" yaml:"history"`
	Unconfirmed optional.Option[Crossover] `json:"unconfirmed" yaml:"-"`
}

// Latest returns the most recent crossover.
func (r CrossoverReport) Latest() optional.Option[Crossover] {
	if len(r.History) == 0 {
		return optional.None[Crossover]()
	}
	return optional.Some(r.History[len(r.History)-1])
}

// CrossoverDetector scans SMA(fast) against SMA(slow).
type CrossoverDetector struct {
	Fast        int
	Slow        int
	ConfirmDays int
}

// NewCrossoverDetector returns the classic 50/200 detector.
func NewCrossoverDetector() *CrossoverDetector {
	return &CrossoverDetector{Fast: DefaultFastPeriod, Slow: DefaultSlowPeriod, ConfirmDays: DefaultConfirmDays}
}

// Detect computes both averages and finds their crossings. A series shorter
// than the slow window yields ErrInsufficientData.
func (d *CrossoverDetector) Detect(series *models.PriceSeries) (CrossoverReport, error) {
	closes := series.Closes()
	fast, err := indicators.NewSMA(d.Fast).Calculate(closes)
	if err != nil {
		return CrossoverReport{}, err
	}
	slow, err := indicators.NewSMA(d.Slow).Calculate(closes)
	if err != nil {
		return CrossoverReport{}, err
	}
	return Crossovers(fast, slow, series.Dates(), d.ConfirmDays), nil
}

// Crossovers finds where fast crosses slow. A point where both are equal is
// never a signal by itself: the relation that counts is the last one with a
// non-zero difference, so touching and turning back fires nothing, and
// passing through equality fires on the first point strictly beyond it.
// A crossover is confirmed once the new relation held for confirmDays more
// points.
func Crossovers(fast, slow indicators.Line, dates []time.Time, confirmDays int) CrossoverReport {
	start := fast.Start
	if slow.Start > start {
		start = slow.Start
	}
	n := len(fast.Values)
	if len(slow.Values) < n {
		n = len(slow.Values)
	}

	sign := func(i int) int {
		switch diff := fast.Values[i] - slow.Values[i]; {
		case diff > 0:
			return 1
		case diff < 0:
			return -1
		}
		return 0
	}

	var report CrossoverReport
	// A history opening at equality counts as on both sides, so the first
	// strict relation after it is a cross.
	last := 0
	if start < n {
		last = sign(start)
	}
	for i := start + 1; i < n; i++ {
		s := sign(i)
		if s == 0 {
			continue
		}
		if s != last {
			kind := GoldenCross
			if s < 0 {
				kind = DeathCross
			}
			c := Crossover{Kind: kind, Index: i, Fast: fast.Values[i], Slow: slow.Values[i]}
			if i < len(dates) {
				c.Date = dates[i]
			}
			c.Confirmed = held(sign, i, s, confirmDays, n)
			report.History = append(report.History, c)
		}
		last = s
	}

	report.Unconfirmed = optional.None[Crossover]()
	if latest := report.Latest(); latest.IsSome() && !latest.Unwrap().Confirmed {
		report.Unconfirmed = latest
	}
	return report
}

func held(sign func(int) int, at, want, days, n int) bool {
	if at+days >= n {
		return false
	}
	for j := at + 1; j <= at+days; j++ {
		if sign(j) != want {
			return false
		}
	}
	return true
}
