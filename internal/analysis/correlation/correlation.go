// Package correlation builds Pearson correlation matrices over the daily
// returns of several instruments.
package correlation

import (
	"fmt"
	"sort"

	"github.com/moznion/go-optional"

	"portfolio-tracker/internal/analysis/indicators"
	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/models"
)

// DefaultMinOverlap is the fewest common daily returns a pair needs.
const DefaultMinOverlap = 20

// Matrix is a symmetric correlation matrix. Cells of pairs that share too
// little history, or where one side never moves, are undefined.
type Matrix struct {
	Instruments []models.InstrumentID
	cells       [][]optional.Option[float64]
	overlap     [][]int
	index       map[models.InstrumentID]int
}

// Compute correlates every pair of series on the returns of their common
// dates. The diagonal is always 1.
func Compute(series []*models.PriceSeries, minOverlap int) *Matrix {
	if minOverlap <= 0 {
		minOverlap = DefaultMinOverlap
	}
	n := len(series)
	m := &Matrix{
		Instruments: make([]models.InstrumentID, n),
		cells:       make([][]optional.Option[float64], n),
		overlap:     make([][]int, n),
		index:       make(map[models.InstrumentID]int, n),
	}
	for i, s := range series {
		m.Instruments[i] = s.Instrument
		m.index[s.Instrument] = i
		m.cells[i] = make([]optional.Option[float64], n)
		m.overlap[i] = make([]int, n)
	}

	for i := 0; i < n; i++ {
		m.cells[i][i] = optional.Some(1.0)
		m.overlap[i][i] = max(series[i].Len()-1, 0)
		for j := i + 1; j < n; j++ {
			ra, rb := indicators.AlignedReturns(series[i], series[j])
			cell := optional.None[float64]()
			if len(ra) >= minOverlap {
				if r, ok := indicators.Pearson(ra, rb); ok {
					cell = optional.Some(r)
				}
			}
			m.cells[i][j], m.cells[j][i] = cell, cell
			m.overlap[i][j], m.overlap[j][i] = len(ra), len(ra)
		}
	}
	return m
}

// Get returns the correlation of a and b, or ErrUndefinedCorrelation.
func (m *Matrix) Get(a, b models.InstrumentID) (float64, error) {
	i, ok := m.index[a]
	if !ok {
		return 0, fmt.Errorf("instrument %s not in matrix", a)
	}
	j, ok := m.index[b]
	if !ok {
		return 0, fmt.Errorf("instrument %s not in matrix", b)
	}
	cell := m.At(i, j)
	if cell.IsNone() {
		return 0, fmt.Errorf("%w: %s and %s share %d returns", apperrors.ErrUndefinedCorrelation, a, b, m.overlap[i][j])
	}
	return cell.Unwrap(), nil
}

// At returns the cell at row i, column j.
func (m *Matrix) At(i, j int) optional.Option[float64] {
	return m.cells[i][j]
}

// Overlap returns the number of common daily returns behind cell i, j.
func (m *Matrix) Overlap(i, j int) int {
	return m.overlap[i][j]
}

// Pair is one off-diagonal cell.
type Pair struct {
	A           models.InstrumentID `json:"a" yaml:"a"`
	B           models.InstrumentID `json:"b" yaml:"b"`
	Correlation *float64            `json:"correlation" yaml:"correlation"`
	Overlap     int                 `json:"overlap" yaml:"overlap"`
}

// Pairs lists each unordered pair once, most correlated first; undefined
// pairs come last.
func (m *Matrix) Pairs() []Pair {
	var pairs []Pair
	for i := range m.Instruments {
		for j := i + 1; j < len(m.Instruments); j++ {
			p := Pair{A: m.Instruments[i], B: m.Instruments[j], Overlap: m.overlap[i][j]}
			if v, err := m.cells[i][j].Take(); err == nil {
				p.Correlation = &v
			}
			pairs = append(pairs, p)
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		a, b := pairs[i].Correlation, pairs[j].Correlation
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		return *a > *b
	})
	return pairs
}

// Rows renders the matrix as nested maps; undefined cells are nil.
func (m *Matrix) Rows() map[models.InstrumentID]map[models.InstrumentID]*float64 {
	out := make(map[models.InstrumentID]map[models.InstrumentID]*float64, len(m.Instruments))
	for i, a := range m.Instruments {
		row := make(map[models.InstrumentID]*float64, len(m.Instruments))
		for j, b := range m.Instruments {
			if v, err := m.cells[i][j].Take(); err == nil {
				row[b] = &v
			} else {
				row[b] = nil
			}
		}
		out[a] = row
	}
	return out
}
