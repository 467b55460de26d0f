package patterns

import (
	"math"
	"time"

	"github.com/moznion/go-optional"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/models"
)

// Drawdown defaults.
const (
	DefaultDrawdownThreshold = 0.10
	DefaultReboundDays       = 30
)

// RequiredRecovery is the gain needed to undo a fall of depth, both as
// fractions: d/(1-d). A 50% fall needs a 100% gain. A total loss can never
// be recovered and yields +Inf.
func RequiredRecovery(depth float64) float64 {
	if depth >= 1 {
		return math.Inf(1)
	}
	if depth <= 0 {
		return 0
	}
	return depth / (1 - depth)
}

// RecoveryRow is one line of the fall / gain-needed table.
type RecoveryRow struct {
	Drop   float64 `json:"drop" yaml:"drop"`
	Needed float64 `json:"needed" yaml:"needed"`
}

// RecoveryTable lists the gain needed after common falls.
func RecoveryTable() []RecoveryRow {
	drops := []float64{0.10, 0.20, 0.30, 1.0 / 3, 0.40, 0.50, 0.60, 0.70, 0.80, 0.90}
	rows := make([]RecoveryRow, len(drops))
	for i, d := range drops {
		rows[i] = RecoveryRow{Drop: d, Needed: RequiredRecovery(d)}
	}
	return rows
}

// Episode is one fall of at least the threshold from a running peak.
type Episode struct {
	PeakDate         time.Time                  `json:"peak_date"`
	PeakPrice        float64                    `json:"peak_price"`
	TroughDate       time.Time                  `json:"trough_date"`
	TroughPrice      float64                    `json:"trough_price"`
	Depth            float64                    `json:"depth"`
	RequiredRecovery float64                    `json:"required_recovery"`
	RecoveryDate     optional.Option[time.Time] `json:"recovery_date"`
	DaysToRecover    optional.Option[int]       `json:"days_to_recover"`
	Rebound          optional.Option[float64]   `json:"rebound"`
}

// Recovered reports whether price got back to the peak.
func (e Episode) Recovered() bool {
	return e.RecoveryDate.IsSome()
}

// DrawdownDetector finds drawdown episodes.
type DrawdownDetector struct {
	Threshold   float64 // minimum fall from the peak, as a fraction
	ReboundDays int     // trading days after the trough for the rebound figure
}

// NewDrawdownDetector creates a detector with a 10% threshold.
func NewDrawdownDetector() *DrawdownDetector {
	return &DrawdownDetector{Threshold: DefaultDrawdownThreshold, ReboundDays: DefaultReboundDays}
}

// Detect walks the closes keeping a running peak. Once price falls the
// threshold below it an episode opens at the peak; its trough is the lowest
// close before price returns to or above the peak, or before the series
// ends. The recovery point becomes the next peak.
//
// DaysToRecover counts calendar days from trough to recovery. Rebound is the
// return from the trough to the close ReboundDays points later and is absent
// when the series ends first.
func (d *DrawdownDetector) Detect(series *models.PriceSeries) ([]Episode, error) {
	if series.Len() < 2 {
		return nil, apperrors.Wrap(apperrors.ErrInsufficientData, "drawdowns need at least 2 points")
	}
	if d.Threshold <= 0 || d.Threshold >= 1 {
		return nil, apperrors.NewValidationError("threshold", d.Threshold, "must be between 0 and 1")
	}

	points := series.Points
	var episodes []Episode

	peak := 0
	trough := -1 // index of the open episode's trough
	for i := 1; i < len(points); i++ {
		c := points[i].Close
		switch {
		case trough >= 0 && c >= points[peak].Close:
			episodes = append(episodes, d.episode(points, peak, trough, i))
			trough = -1
			peak = i
		case trough >= 0:
			if c < points[trough].Close {
				trough = i
			}
		case c > points[peak].Close:
			peak = i
		case points[peak].Close > 0 && (points[peak].Close-c)/points[peak].Close >= d.Threshold:
			trough = i
		}
	}
	if trough >= 0 {
		episodes = append(episodes, d.episode(points, peak, trough, -1))
	}
	return episodes, nil
}

func (d *DrawdownDetector) episode(points []models.PricePoint, peak, trough, recovery int) Episode {
	p, t := points[peak], points[trough]
	depth := (p.Close - t.Close) / p.Close

	e := Episode{
		PeakDate:         p.Date,
		PeakPrice:        p.Close,
		TroughDate:       t.Date,
		TroughPrice:      t.Close,
		Depth:            depth,
		RequiredRecovery: RequiredRecovery(depth),
		RecoveryDate:     optional.None[time.Time](),
		DaysToRecover:    optional.None[int](),
		Rebound:          optional.None[float64](),
	}
	if recovery >= 0 {
		r := points[recovery].Date
		e.RecoveryDate = optional.Some(r)
		e.DaysToRecover = optional.Some(int(r.Sub(t.Date).Hours() / 24))
	}
	if after := trough + d.ReboundDays; d.ReboundDays > 0 && after < len(points) && t.Close > 0 {
		e.Rebound = optional.Some(points[after].Close/t.Close - 1)
	}
	return e
}
