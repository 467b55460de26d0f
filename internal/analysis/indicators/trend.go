package indicators

import (
	"fmt"

	"github.com/moznion/go-optional"
)

// Line is an indicator computed point by point over a series of closes.
// Values[i] belongs to close i; values before Start are undefined.
type Line struct {
	Name   string
	Start  int
	Values []float64
}

// Defined reports whether the value at i exists.
func (l Line) Defined(i int) bool {
	return i >= l.Start && i < len(l.Values)
}

// At returns the value at i, or None before Start.
func (l Line) At(i int) optional.Option[float64] {
	if !l.Defined(i) {
		return optional.None[float64]()
	}
	return optional.Some(l.Values[i])
}

// Last returns the most recent value.
func (l Line) Last() optional.Option[float64] {
	return l.At(len(l.Values) - 1)
}

// SMA calculates Simple Moving Average.
type SMA struct {
	period int
}

// NewSMA creates a new SMA indicator.
func NewSMA(period int) *SMA {
	return &SMA{period: period}
}

func (s *SMA) Name() string {
	return fmt.Sprintf("SMA%d", s.period)
}

func (s *SMA) Period() int {
	return s.period
}

// Calculate returns the mean of the trailing period closes at every index
// from period-1 on.
func (s *SMA) Calculate(closes []float64) (Line, error) {
	if s.period <= 0 {
		return Line{}, invalidWindow(s.period)
	}
	if len(closes) < s.period {
		return Line{}, insufficient(s.Name(), s.period, len(closes))
	}

	result := make([]float64, len(closes))
	for i := s.period - 1; i < len(closes); i++ {
		result[i] = mean(closes[i-s.period+1 : i+1])
	}

	return Line{Name: s.Name(), Start: s.period - 1, Values: result}, nil
}
