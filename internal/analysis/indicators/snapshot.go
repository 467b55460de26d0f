package indicators

import (
	"time"

	"github.com/moznion/go-optional"

	"portfolio-tracker/internal/models"
)

// Snapshot is the latest value of every standard indicator for one series.
// An absent value means the series was too short, which is not the same as
// a computed zero.
type Snapshot struct {
	Instrument      models.InstrumentID      `json:"instrument"`
	AsOf            time.Time                `json:"as_of"`
	Close           float64                  `json:"close"`
	Points          int                      `json:"points"`
	SMA20           optional.Option[float64] `json:"sma20"`
	SMA50           optional.Option[float64] `json:"sma50"`
	SMA200          optional.Option[float64] `json:"sma200"`
	RSI             optional.Option[float64] `json:"rsi"`
	BollingerUpper  optional.Option[float64] `json:"bollinger_upper"`
	BollingerMiddle optional.Option[float64] `json:"bollinger_middle"`
	BollingerLower  optional.Option[float64] `json:"bollinger_lower"`
	PercentB        optional.Option[float64] `json:"percent_b"`
	Beta            optional.Option[float64] `json:"beta"`
	Volatility      optional.Option[float64] `json:"volatility"`
	Streak          optional.Option[Streak]  `json:"streak"`
}

func newSnapshot(series *models.PriceSeries) Snapshot {
	snap := Snapshot{
		Instrument:      series.Instrument,
		Points:          series.Len(),
		SMA20:           optional.None[float64](),
		SMA50:           optional.None[float64](),
		SMA200:          optional.None[float64](),
		RSI:             optional.None[float64](),
		BollingerUpper:  optional.None[float64](),
		BollingerMiddle: optional.None[float64](),
		BollingerLower:  optional.None[float64](),
		PercentB:        optional.None[float64](),
		Beta:            optional.None[float64](),
		Volatility:      optional.None[float64](),
		Streak:          optional.None[Streak](),
	}
	if series.Len() > 0 {
		snap.AsOf = series.Last().Date
		snap.Close = series.Last().Close
	}
	return snap
}

// NamedValue is one snapshot entry.
type NamedValue struct {
	Name  string
	Value optional.Option[float64]
}

// Values lists the snapshot's indicators in display order.
func (s Snapshot) Values() []NamedValue {
	return []NamedValue{
		{"SMA20", s.SMA20},
		{"SMA50", s.SMA50},
		{"SMA200", s.SMA200},
		{"RSI14", s.RSI},
		{"BollingerUpper", s.BollingerUpper},
		{"BollingerMiddle", s.BollingerMiddle},
		{"BollingerLower", s.BollingerLower},
		{"PercentB", s.PercentB},
		{"Beta", s.Beta},
		{"VolatilityAnnualized", s.Volatility},
	}
}

// Trend classifies the close against SMA50 and SMA200.
func (s Snapshot) Trend() string {
	if s.SMA50.IsNone() || s.SMA200.IsNone() {
		return "unknown"
	}
	s50, s200 := s.SMA50.Unwrap(), s.SMA200.Unwrap()
	switch {
	case s.Close > s50 && s50 > s200:
		return "bullish"
	case s.Close < s50 && s50 < s200:
		return "bearish"
	default:
		return "neutral"
	}
}

func some(v float64) optional.Option[float64] {
	return optional.Some(v)
}

func lastOf(lines map[string]Line, name string) optional.Option[float64] {
	line, ok := lines[name]
	if !ok {
		return optional.None[float64]()
	}
	return line.Last()
}
