package simulation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/models"
)

func date(s string) time.Time {
	t, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func assertDec(t *testing.T, want decimal.Decimal, got decimal.Decimal, msg string) {
	t.Helper()
	assert.True(t, want.Equal(got), "%s: want %s, got %s", msg, want, got)
}

func TestDCAFlatPrice(t *testing.T) {
	s := &models.PriceSeries{Instrument: "FLAT"}
	for d := date("2023-01-01"); d.Year() == 2023; d = d.AddDate(0, 0, 1) {
		s.Points = append(s.Points, models.PricePoint{Date: d, Close: 50})
	}

	res, err := SimulateDCA(s, DCAConfig{Contribution: dec(100), Frequency: Monthly})
	require.NoError(t, err)

	assert.Equal(t, 12, res.Contributions)
	assertDec(t, dec(1200), res.TotalInvested, "total invested")
	assertDec(t, dec(24), res.Units, "units")
	assertDec(t, dec(50), res.AveragePrice, "average price")
	assertDec(t, dec(1200), res.FinalValue, "final value")
	assert.True(t, res.ReturnPct.IsZero())
	assert.Equal(t, date("2023-12-01"), res.Purchases[11].Date)
}

func TestDCAUsesNextTradingDay(t *testing.T) {
	s := &models.PriceSeries{Instrument: "WEEKDAYS"}
	for d := date("2024-01-01"); d.Before(date("2024-04-01")); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		s.Points = append(s.Points, models.PricePoint{Date: d, Close: 20})
	}

	res, err := SimulateDCA(s, DCAConfig{Contribution: dec(100), Frequency: Monthly, Start: date("2024-01-06")})
	require.NoError(t, err)

	require.Len(t, res.Purchases, 3)
	assert.Equal(t, date("2024-01-06"), res.Purchases[0].Scheduled)
	assert.Equal(t, date("2024-01-08"), res.Purchases[0].Date, "Saturday buys on Monday")
	assert.Equal(t, date("2024-02-06"), res.Purchases[1].Date)
	assert.Equal(t, date("2024-03-06"), res.Purchases[2].Date)
}

func TestDCAScheduleOutsideSeries(t *testing.T) {
	daily := &models.PriceSeries{Instrument: "DAILY"}
	for d := date("2024-01-01"); d.Before(date("2024-03-31")); d = d.AddDate(0, 0, 1) {
		daily.Points = append(daily.Points, models.PricePoint{Date: d, Close: 50})
	}
	gappy := &models.PriceSeries{Instrument: "GAPPY", Points: []models.PricePoint{
		{Date: date("2024-01-01"), Close: 10},
		{Date: date("2024-01-20"), Close: 10},
		{Date: date("2024-01-22"), Close: 10},
	}}

	tests := []struct {
		name   string
		series *models.PriceSeries
		cfg    DCAConfig
		dates  []string
	}{
		{
			name:   "start a year before the first close",
			series: daily,
			cfg:    DCAConfig{Contribution: dec(100), Frequency: Monthly, Start: date("2023-01-01")},
			dates:  []string{"2024-01-01", "2024-02-01", "2024-03-01"},
		},
		{
			name:   "start between closes keeps its day of month",
			series: daily,
			cfg:    DCAConfig{Contribution: dec(100), Frequency: Monthly, Start: date("2023-11-15")},
			dates:  []string{"2024-01-15", "2024-02-15", "2024-03-15"},
		},
		{
			name:   "two dates landing on one trading day buy once",
			series: gappy,
			cfg:    DCAConfig{Contribution: dec(100), Frequency: Weekly},
			dates:  []string{"2024-01-01", "2024-01-20", "2024-01-22"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := SimulateDCA(tt.series, tt.cfg)
			require.NoError(t, err)
			require.Len(t, res.Purchases, len(tt.dates))
			for i, d := range tt.dates {
				assert.Equal(t, date(d), res.Purchases[i].Date)
			}
			assert.Equal(t, len(tt.dates), res.Contributions)
			assertDec(t, dec(int64(100*len(tt.dates))), res.TotalInvested, "total invested")
		})
	}
}

func TestDCAVaryingPrice(t *testing.T) {
	s := &models.PriceSeries{Instrument: "VAR", Points: []models.PricePoint{
		{Date: date("2024-01-01"), Close: 100},
		{Date: date("2024-02-01"), Close: 50},
		{Date: date("2024-03-01"), Close: 100},
	}}

	res, err := SimulateDCA(s, DCAConfig{Contribution: dec(100), Frequency: Monthly})
	require.NoError(t, err)

	assertDec(t, dec(300), res.TotalInvested, "total invested")
	assertDec(t, dec(4), res.Units, "units")
	assertDec(t, dec(75), res.AveragePrice, "average price below mean price")
	assertDec(t, dec(400), res.FinalValue, "final value")
	assertDec(t, decimal.RequireFromString("33.33"), res.ReturnPct, "return")
}

func TestDCAWeeklyAndQuarterly(t *testing.T) {
	s := &models.PriceSeries{Instrument: "D"}
	for d := date("2024-01-01"); d.Year() == 2024; d = d.AddDate(0, 0, 1) {
		s.Points = append(s.Points, models.PricePoint{Date: d, Close: 10})
	}

	weekly, err := SimulateDCA(s, DCAConfig{Contribution: dec(10), Frequency: Weekly})
	require.NoError(t, err)
	assert.Equal(t, 53, weekly.Contributions)

	quarterly, err := SimulateDCA(s, DCAConfig{Contribution: dec(10), Frequency: Quarterly})
	require.NoError(t, err)
	assert.Equal(t, 4, quarterly.Contributions)
}

func TestDCAErrors(t *testing.T) {
	_, err := SimulateDCA(&models.PriceSeries{}, DCAConfig{Contribution: dec(1)})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientData)

	s := &models.PriceSeries{Points: []models.PricePoint{{Date: date("2024-01-01"), Close: 1}}}
	_, err = SimulateDCA(s, DCAConfig{Contribution: dec(0)})
	assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)

	_, err = ParseFrequency("daily")
	assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)
	f, err := ParseFrequency(" Monthly ")
	require.NoError(t, err)
	assert.Equal(t, Monthly, f)
}

func TestAddMonthsClampsToMonthEnd(t *testing.T) {
	assert.Equal(t, date("2024-02-29"), addMonths(date("2024-01-31"), 1))
	assert.Equal(t, date("2024-04-30"), addMonths(date("2024-01-31"), 3))
	assert.Equal(t, date("2025-01-31"), addMonths(date("2024-01-31"), 12))
}

func TestProjectZeroRate(t *testing.T) {
	p, err := Project(ProjectionConfig{Initial: dec(1000), Monthly: dec(100), Years: 2})
	require.NoError(t, err)

	require.Len(t, p.Points, 25)
	assertDec(t, dec(3400), p.FinalValue, "final value")
	assertDec(t, dec(3400), p.TotalContributed, "contributed")
	assert.True(t, p.Gain.IsZero())
	assert.True(t, p.ReturnPct.IsZero())

	require.Len(t, p.Scenarios, 3)
	assert.Equal(t, "pessimistic", p.Scenarios[0].Name)
	assert.Equal(t, 0.0, p.Scenarios[0].Rate, "floored at zero")
	assertDec(t, dec(3400), p.Scenarios[0].FinalValue, "pessimistic")
	assert.Equal(t, 4.0, p.Scenarios[2].Rate)
	assert.True(t, p.Scenarios[2].FinalValue.GreaterThan(p.FinalValue))
}

func TestProjectCompounds(t *testing.T) {
	p, err := Project(ProjectionConfig{Initial: dec(1000), Years: 1, AnnualRate: 12})
	require.NoError(t, err)

	assert.InDelta(t, 1120.0, p.FinalValue.InexactFloat64(), 0.011)
	assert.InDelta(t, 12.0, p.ReturnPct.InexactFloat64(), 0.011)
	assert.InDelta(t, 8.0, p.Scenarios[0].Rate, 1e-12)
	assert.InDelta(t, 1080.0, p.Scenarios[0].FinalValue.InexactFloat64(), 0.011)
	assert.True(t, p.Scenarios[1].FinalValue.Equal(p.FinalValue))

	_, err = Project(ProjectionConfig{Years: 0})
	assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)
}
