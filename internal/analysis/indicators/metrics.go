package indicators

import (
	"math"
	"time"

	"portfolio-tracker/internal/models"
)

const (
	// DefaultRiskFreeRate is the annual rate the Sharpe ratio is measured against.
	DefaultRiskFreeRate = 0.03
	// MinMetricsPoints is the shortest series risk metrics are reported for.
	MinMetricsPoints = 20
)

// DayReturn is a single day's move.
type DayReturn struct {
	Date   time.Time `json:"date" yaml:"date"`
	Return float64   `json:"return" yaml:"return"`
}

// Metrics summarizes the risk and return of a series.
type Metrics struct {
	TotalReturn  float64   `json:"total_return" yaml:"total_return"`
	AnnualReturn float64   `json:"annual_return" yaml:"annual_return"`
	Volatility   float64   `json:"volatility" yaml:"volatility"`
	MaxDrawdown  float64   `json:"max_drawdown" yaml:"max_drawdown"`
	Sharpe       float64   `json:"sharpe" yaml:"sharpe"`
	BestDay      DayReturn `json:"best_day" yaml:"best_day"`
	WorstDay     DayReturn `json:"worst_day" yaml:"worst_day"`
	PositiveDays int       `json:"positive_days" yaml:"positive_days"`
	NegativeDays int       `json:"negative_days" yaml:"negative_days"`
}

// ComputeMetrics derives risk metrics from daily closes. The annual return
// is the mean daily return times TradingDays; Sharpe is zero when the
// series does not move.
func ComputeMetrics(series *models.PriceSeries, riskFree float64) (Metrics, error) {
	if series.Len() < MinMetricsPoints {
		return Metrics{}, insufficient("metrics", MinMetricsPoints, series.Len())
	}

	closes := series.Closes()
	rets := Returns(closes)

	var m Metrics
	m.TotalReturn, _ = TotalReturn(closes)
	m.AnnualReturn = mean(rets) * TradingDays
	m.Volatility, _ = AnnualizedVolatility(closes)
	m.MaxDrawdown = MaxDrawdown(closes)
	if m.Volatility > 0 {
		m.Sharpe = (m.AnnualReturn - riskFree) / m.Volatility
	}

	m.BestDay.Return = math.Inf(-1)
	m.WorstDay.Return = math.Inf(1)
	for i, r := range rets {
		date := series.Points[i+1].Date
		if r > m.BestDay.Return {
			m.BestDay = DayReturn{Date: date, Return: r}
		}
		if r < m.WorstDay.Return {
			m.WorstDay = DayReturn{Date: date, Return: r}
		}
		switch {
		case r > 0:
			m.PositiveDays++
		case r < 0:
			m.NegativeDays++
		}
	}
	return m, nil
}

// MaxDrawdown is the deepest fall from a running peak, as a positive fraction.
func MaxDrawdown(closes []float64) float64 {
	if len(closes) == 0 {
		return 0
	}
	peak := closes[0]
	var worst float64
	for _, c := range closes {
		if c > peak {
			peak = c
		}
		if peak > 0 {
			if dd := (peak - c) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}
