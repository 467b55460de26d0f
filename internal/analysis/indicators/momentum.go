package indicators

import (
	"fmt"
	"math"
)

// DefaultRSIPeriod is the classic Wilder look-back.
const DefaultRSIPeriod = 14

// RSI calculates the Relative Strength Index with Wilder smoothing.
type RSI struct {
	period int
}

// NewRSI creates a new RSI indicator.
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Name() string {
	return fmt.Sprintf("RSI%d", r.period)
}

func (r *RSI) Period() int {
	return r.period
}

// Calculate needs period+1 closes; the first value sits at index period.
// When the average loss is zero the RSI is 100.
func (r *RSI) Calculate(closes []float64) (Line, error) {
	if r.period <= 0 {
		return Line{}, invalidWindow(r.period)
	}
	if len(closes) < r.period+1 {
		return Line{}, insufficient(r.Name(), r.period+1, len(closes))
	}

	n := len(closes)
	result := make([]float64, n)

	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	// First average using SMA
	avgGain := mean(gains[1 : r.period+1])
	avgLoss := mean(losses[1 : r.period+1])
	result[r.period] = rsiValue(avgGain, avgLoss)

	// Subsequent values using Wilder smoothing
	for i := r.period + 1; i < n; i++ {
		avgGain = (avgGain*float64(r.period-1) + gains[i]) / float64(r.period)
		avgLoss = (avgLoss*float64(r.period-1) + losses[i]) / float64(r.period)
		result[i] = rsiValue(avgGain, avgLoss)
	}

	return Line{Name: r.Name(), Start: r.period, Values: result}, nil
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return math.Max(0, math.Min(100, 100-(100/(1+rs))))
}

// Streak is the run of most recent days that moved in the same direction.
type Streak struct {
	Days      int `json:"days" yaml:"days"`
	Direction int `json:"direction" yaml:"direction"` // +1 up, -1 down, 0 flat
}

func (s Streak) String() string {
	switch s.Direction {
	case 1:
		return fmt.Sprintf("%d up", s.Days)
	case -1:
		return fmt.Sprintf("%d down", s.Days)
	default:
		return "flat"
	}
}

// CurrentStreak counts the consecutive latest day-over-day changes sharing a
// sign. An unchanged day ends the streak, so a flat last day yields zero.
func CurrentStreak(closes []float64) (Streak, error) {
	if len(closes) < 2 {
		return Streak{}, insufficient("streak", 2, len(closes))
	}

	sign := func(i int) int {
		switch d := closes[i] - closes[i-1]; {
		case d > 0:
			return 1
		case d < 0:
			return -1
		}
		return 0
	}

	last := len(closes) - 1
	dir := sign(last)
	if dir == 0 {
		return Streak{}, nil
	}
	days := 0
	for i := last; i >= 1 && sign(i) == dir; i-- {
		days++
	}
	return Streak{Days: days, Direction: dir}, nil
}
