// Package patterns detects events in price series: moving average
// crossovers, drawdown episodes and support/resistance levels.
package patterns

import (
	"math"
	"sort"
	"time"

	"github.com/moznion/go-optional"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/models"
)

// Level defaults.
const (
	DefaultLevelWindow    = 5
	DefaultLevelTolerance = 0.015
)

// LevelKind tells support from resistance.
type LevelKind string

const (
	Support    LevelKind = "support"
	Resistance LevelKind = "resistance"
)

// Level is a price where several local extrema cluster.
type Level struct {
	Price      float64   `json:"price" yaml:"price"`
	Kind       LevelKind `json:"kind" yaml:"kind"`
	Touches    int       `json:"touches" yaml:"touches"`
	FirstTouch time.Time `json:"first_touch" yaml:"first_touch"`
	LastTouch  time.Time `json:"last_touch" yaml:"last_touch"`
	Broken     bool      `json:"broken" yaml:"broken"`
	BrokenAt   time.Time `json:"broken_at,omitempty" yaml:"broken_at,omitempty"`
}

// LevelReport splits levels into the ones still holding and the broken ones.
// Active levels are ranked strongest first.
type LevelReport struct {
	Active []Level `json:"active" yaml:"active"`
	Broken []Level `json:"broken" yaml:"broken"`
}

// LevelAnalyzer identifies support and resistance levels in price data.
type LevelAnalyzer struct {
	Window     int     // points on each side a pivot must dominate
	Tolerance  float64 // relative band for clustering and breaks
	MinTouches int
}

// NewLevelAnalyzer creates a new support/resistance level analyzer.
func NewLevelAnalyzer() *LevelAnalyzer {
	return &LevelAnalyzer{
		Window:     DefaultLevelWindow,
		Tolerance:  DefaultLevelTolerance,
		MinTouches: 1,
	}
}

type pivot struct {
	index int
	price float64
}

// Analyze finds pivots, clusters them into levels and marks the levels
// that a later close crossed by more than the tolerance.
func (l *LevelAnalyzer) Analyze(series *models.PriceSeries) (LevelReport, error) {
	if l.Window <= 0 {
		return LevelReport{}, apperrors.NewValidationError("window", l.Window, "must be positive")
	}
	if need := 2*l.Window + 1; series.Len() < need {
		return LevelReport{}, apperrors.Wrapf(apperrors.ErrInsufficientData, "levels need %d points, have %d", need, series.Len())
	}

	closes := series.Closes()
	lows, highs := l.pivots(closes)

	var levels []Level
	for _, c := range l.clusterPivots(highs) {
		levels = append(levels, l.level(series, c, Resistance))
	}
	for _, c := range l.clusterPivots(lows) {
		levels = append(levels, l.level(series, c, Support))
	}

	var report LevelReport
	for _, lv := range levels {
		if lv.Touches < l.MinTouches {
			continue
		}
		if lv.Broken {
			report.Broken = append(report.Broken, lv)
		} else {
			report.Active = append(report.Active, lv)
		}
	}
	sort.SliceStable(report.Active, func(i, j int) bool {
		a, b := report.Active[i], report.Active[j]
		if a.Touches != b.Touches {
			return a.Touches > b.Touches
		}
		return a.LastTouch.After(b.LastTouch)
	})
	return report, nil
}

// pivots returns the local minima and maxima. A point is a pivot when it is
// the extreme of the closes within Window points on either side; on a flat
// run only the first point qualifies.
func (l *LevelAnalyzer) pivots(closes []float64) (lows, highs []pivot) {
	w := l.Window
	for i := w; i < len(closes)-w; i++ {
		isLow, isHigh := true, true
		for j := i - w; j <= i+w && (isLow || isHigh); j++ {
			switch {
			case j == i:
			case j < i:
				isLow = isLow && closes[i] < closes[j]
				isHigh = isHigh && closes[i] > closes[j]
			default:
				isLow = isLow && closes[i] <= closes[j]
				isHigh = isHigh && closes[i] >= closes[j]
			}
		}
		if isLow {
			lows = append(lows, pivot{i, closes[i]})
		}
		if isHigh {
			highs = append(highs, pivot{i, closes[i]})
		}
	}
	return lows, highs
}

type clusteredLevel struct {
	price    float64
	touches  int
	firstIdx int
	lastIdx  int
}

// clusterPivots groups nearby pivot points into single levels.
func (l *LevelAnalyzer) clusterPivots(pivots []pivot) []clusteredLevel {
	if len(pivots) == 0 {
		return nil
	}

	sorted := make([]pivot, len(pivots))
	copy(sorted, pivots)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].price < sorted[j].price
	})

	var clusters []clusteredLevel
	current := clusteredLevel{
		price:    sorted[0].price,
		touches:  1,
		firstIdx: sorted[0].index,
		lastIdx:  sorted[0].index,
	}

	for _, p := range sorted[1:] {
		if math.Abs(p.price-current.price)/current.price <= l.Tolerance {
			current.touches++
			current.price += (p.price - current.price) / float64(current.touches)
			if p.index < current.firstIdx {
				current.firstIdx = p.index
			}
			if p.index > current.lastIdx {
				current.lastIdx = p.index
			}
			continue
		}
		clusters = append(clusters, current)
		current = clusteredLevel{
			price:    p.price,
			touches:  1,
			firstIdx: p.index,
			lastIdx:  p.index,
		}
	}
	return append(clusters, current)
}

func (l *LevelAnalyzer) level(series *models.PriceSeries, c clusteredLevel, kind LevelKind) Level {
	lv := Level{
		Price:      c.price,
		Kind:       kind,
		Touches:    c.touches,
		FirstTouch: series.Points[c.firstIdx].Date,
		LastTouch:  series.Points[c.lastIdx].Date,
	}
	for _, p := range series.Points[c.lastIdx+1:] {
		if (kind == Support && p.Close < c.price*(1-l.Tolerance)) ||
			(kind == Resistance && p.Close > c.price*(1+l.Tolerance)) {
			lv.Broken = true
			lv.BrokenAt = p.Date
			break
		}
	}
	return lv
}

// NearestLevels returns the closest active support below price and the
// closest active resistance above it.
func NearestLevels(report LevelReport, price float64) (support, resistance optional.Option[Level]) {
	support, resistance = optional.None[Level](), optional.None[Level]()
	for _, lv := range report.Active {
		switch {
		case lv.Kind == Support && lv.Price <= price:
			if support.IsNone() || lv.Price > support.Unwrap().Price {
				support = optional.Some(lv)
			}
		case lv.Kind == Resistance && lv.Price >= price:
			if resistance.IsNone() || lv.Price < resistance.Unwrap().Price {
				resistance = optional.Some(lv)
			}
		}
	}
	return support, resistance
}
