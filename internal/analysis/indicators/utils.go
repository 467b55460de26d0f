package indicators

import (
	"fmt"
	"math"
	"time"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/models"
)

// TradingDays is the number of trading days used to annualize daily figures.
const TradingDays = 252

func insufficient(what string, need, have int) error {
	return fmt.Errorf("%w: %s needs %d points, have %d", apperrors.ErrInsufficientData, what, need, have)
}

func invalidWindow(n int) error {
	return apperrors.NewValidationError("window", n, "must be positive")
}

// sum calculates the sum of a slice of float64.
func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

// mean calculates the arithmetic mean of a slice of float64.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return sum(values) / float64(len(values))
}

// stdDev calculates the population standard deviation.
func stdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var variance float64
	for _, v := range values {
		diff := v - m
		variance += diff * diff
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

// covariance returns the population covariance of two equally long slices.
func covariance(xs, ys []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mx, my := mean(xs), mean(ys)
	var c float64
	for i := range xs {
		c += (xs[i] - mx) * (ys[i] - my)
	}
	return c / float64(len(xs))
}

// Returns converts closes into simple day-over-day returns.
func Returns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		out[i-1] = closes[i]/closes[i-1] - 1
	}
	return out
}

// LogReturns converts closes into day-over-day log returns.
func LogReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		out[i-1] = math.Log(closes[i] / closes[i-1])
	}
	return out
}

// Pearson returns the correlation coefficient of xs and ys. ok is false when
// either side has zero variance.
func Pearson(xs, ys []float64) (r float64, ok bool) {
	sx, sy := stdDev(xs), stdDev(ys)
	if sx == 0 || sy == 0 || len(xs) != len(ys) {
		return 0, false
	}
	r = covariance(xs, ys) / (sx * sy)
	return math.Max(-1, math.Min(1, r)), true
}

// Aligned holds the closes of two series on the dates both have.
type Aligned struct {
	Dates []time.Time
	A     []float64
	B     []float64
}

// Align keeps only the dates present in both series. Nothing is
// interpolated: a date missing on either side is dropped from both.
func Align(a, b *models.PriceSeries) Aligned {
	index := make(map[time.Time]float64, b.Len())
	for _, p := range b.Points {
		index[p.Date] = p.Close
	}
	var out Aligned
	for _, p := range a.Points {
		if c, ok := index[p.Date]; ok {
			out.Dates = append(out.Dates, p.Date)
			out.A = append(out.A, p.Close)
			out.B = append(out.B, c)
		}
	}
	return out
}

// AlignedReturns returns the day-over-day returns of both series over their
// common dates.
func AlignedReturns(a, b *models.PriceSeries) (ra, rb []float64) {
	al := Align(a, b)
	return Returns(al.A), Returns(al.B)
}
