package simulation

import (
	"math"

	"github.com/shopspring/decimal"

	apperrors "portfolio-tracker/internal/errors"
)

// ScenarioSpread is the rate shift, in percentage points, between the
// expected scenario and the pessimistic and optimistic ones.
const ScenarioSpread = 4.0

// workingPlaces bounds intermediate precision while compounding.
const workingPlaces = 10

// ProjectionConfig describes a savings plan. AnnualRate is a percentage.
type ProjectionConfig struct {
	Initial    decimal.Decimal
	Monthly    decimal.Decimal
	Years      int
	AnnualRate float64
}

// ProjectionPoint is the plan's state at the start of a month.
type ProjectionPoint struct {
	Month       int             `json:"month" yaml:"month"`
	Value       decimal.Decimal `json:"value" yaml:"value"`
	Contributed decimal.Decimal `json:"contributed" yaml:"contributed"`
	Gain        decimal.Decimal `json:"gain" yaml:"gain"`
}

// Scenario is the final value under one annual rate.
type Scenario struct {
	Name       string          `json:"name" yaml:"name"`
	Rate       float64         `json:"rate" yaml:"rate"`
	FinalValue decimal.Decimal `json:"final_value" yaml:"final_value"`
}

// Projection is the month by month path plus the scenario summary.
type Projection struct {
	Points           []ProjectionPoint `json:"points,omitempty" yaml:"points,omitempty"`
	FinalValue       decimal.Decimal   `json:"final_value" yaml:"final_value"`
	TotalContributed decimal.Decimal   `json:"total_contributed" yaml:"total_contributed"`
	Gain             decimal.Decimal   `json:"gain" yaml:"gain"`
	ReturnPct        decimal.Decimal   `json:"return_pct" yaml:"return_pct"`
	Scenarios        []Scenario        `json:"scenarios" yaml:"scenarios"`
}

// monthlyRate converts an annual percentage into the equivalent compound
// monthly rate.
func monthlyRate(annualPct float64) decimal.Decimal {
	return decimal.NewFromFloat(math.Pow(1+annualPct/100, 1.0/12) - 1)
}

// Project compounds the plan monthly: each month the value grows by the
// monthly rate and then receives the contribution. Scenarios shift the rate
// by ScenarioSpread either way, never below zero.
func Project(cfg ProjectionConfig) (Projection, error) {
	if cfg.Years <= 0 {
		return Projection{}, apperrors.NewValidationError("years", cfg.Years, "must be positive")
	}
	if cfg.Initial.IsNegative() || cfg.Monthly.IsNegative() {
		return Projection{}, apperrors.NewValidationError("amount", "", "must not be negative")
	}
	if cfg.AnnualRate <= -100 {
		return Projection{}, apperrors.NewValidationError("rate", cfg.AnnualRate, "must be above -100")
	}

	months := cfg.Years * 12
	rate := monthlyRate(cfg.AnnualRate)
	one := decimal.NewFromInt(1)

	value, contributed := cfg.Initial, cfg.Initial
	proj := Projection{Points: make([]ProjectionPoint, 0, months+1)}
	for m := 0; m <= months; m++ {
		proj.Points = append(proj.Points, ProjectionPoint{
			Month:       m,
			Value:       value.Round(2),
			Contributed: contributed.Round(2),
			Gain:        value.Sub(contributed).Round(2),
		})
		if m < months {
			value = value.Mul(one.Add(rate)).Add(cfg.Monthly).Round(workingPlaces)
			contributed = contributed.Add(cfg.Monthly)
		}
	}

	proj.FinalValue = value.Round(2)
	proj.TotalContributed = contributed.Round(2)
	proj.Gain = proj.FinalValue.Sub(proj.TotalContributed)
	if contributed.IsPositive() {
		proj.ReturnPct = proj.Gain.Div(proj.TotalContributed).Mul(decimal.NewFromInt(100)).Round(2)
	}

	for _, sc := range []struct {
		name string
		rate float64
	}{
		{"pessimistic", math.Max(0, cfg.AnnualRate-ScenarioSpread)},
		{"expected", cfg.AnnualRate},
		{"optimistic", cfg.AnnualRate + ScenarioSpread},
	} {
		proj.Scenarios = append(proj.Scenarios, Scenario{
			Name:       sc.name,
			Rate:       sc.rate,
			FinalValue: finalValue(cfg, sc.rate, months),
		})
	}
	return proj, nil
}

func finalValue(cfg ProjectionConfig, annualPct float64, months int) decimal.Decimal {
	growth := decimal.NewFromInt(1).Add(monthlyRate(annualPct))
	v := cfg.Initial
	for m := 0; m < months; m++ {
		v = v.Mul(growth).Add(cfg.Monthly).Round(workingPlaces)
	}
	return v.Round(2)
}
