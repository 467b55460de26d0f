package indicators

import (
	"fmt"
	"math"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/models"
)

// Bollinger defaults.
const (
	DefaultBollingerPeriod = 20
	DefaultBollingerK      = 2.0
)

// MinBetaReturns is the fewest aligned daily returns beta is computed from.
const MinBetaReturns = 20

// Bands holds the three Bollinger lines.
type Bands struct {
	Middle Line
	Upper  Line
	Lower  Line
}

// BollingerBands calculates Bollinger Bands.
type BollingerBands struct {
	period    int
	stdDevMul float64
}

// NewBollingerBands creates a new Bollinger Bands indicator.
func NewBollingerBands(period int, stdDevMul float64) *BollingerBands {
	return &BollingerBands{
		period:    period,
		stdDevMul: stdDevMul,
	}
}

func (b *BollingerBands) Name() string {
	return fmt.Sprintf("Bollinger%d", b.period)
}

func (b *BollingerBands) Period() int {
	return b.period
}

// Calculate returns SMA(period) plus and minus k population standard
// deviations of the same window.
func (b *BollingerBands) Calculate(closes []float64) (Bands, error) {
	if b.period <= 0 {
		return Bands{}, invalidWindow(b.period)
	}
	if b.stdDevMul <= 0 {
		return Bands{}, apperrors.NewValidationError("k", b.stdDevMul, "must be positive")
	}
	if len(closes) < b.period {
		return Bands{}, insufficient(b.Name(), b.period, len(closes))
	}

	n := len(closes)
	middle := make([]float64, n)
	upper := make([]float64, n)
	lower := make([]float64, n)

	for i := b.period - 1; i < n; i++ {
		slice := closes[i-b.period+1 : i+1]
		sma := mean(slice)
		sd := stdDev(slice)

		middle[i] = sma
		upper[i] = sma + b.stdDevMul*sd
		lower[i] = sma - b.stdDevMul*sd
	}

	start := b.period - 1
	return Bands{
		Middle: Line{Name: "BollingerMiddle", Start: start, Values: middle},
		Upper:  Line{Name: "BollingerUpper", Start: start, Values: upper},
		Lower:  Line{Name: "BollingerLower", Start: start, Values: lower},
	}, nil
}

// PercentB locates the last close inside the bands: 0 at the lower band,
// 1 at the upper band.
func (b Bands) PercentB(close float64) (float64, bool) {
	up, lo := b.Upper.Last(), b.Lower.Last()
	if up.IsNone() || lo.IsNone() {
		return 0, false
	}
	width := up.Unwrap() - lo.Unwrap()
	if width == 0 {
		return 0.5, true
	}
	return (close - lo.Unwrap()) / width, true
}

// AnnualizedVolatility is the population standard deviation of daily log
// returns scaled by the square root of TradingDays.
func AnnualizedVolatility(closes []float64) (float64, error) {
	if len(closes) < 3 {
		return 0, insufficient("volatility", 3, len(closes))
	}
	return stdDev(LogReturns(closes)) * math.Sqrt(TradingDays), nil
}

// Beta is cov(asset, benchmark) / var(benchmark) over daily returns taken on
// the dates both series share.
func Beta(asset, benchmark *models.PriceSeries) (float64, error) {
	ra, rb := AlignedReturns(asset, benchmark)
	if len(rb) < MinBetaReturns {
		return 0, insufficient("beta", MinBetaReturns+1, len(rb)+1)
	}
	sd := stdDev(rb)
	if sd == 0 {
		return 0, insufficient("beta (flat benchmark)", MinBetaReturns+1, len(rb)+1)
	}
	return covariance(ra, rb) / (sd * sd), nil
}
