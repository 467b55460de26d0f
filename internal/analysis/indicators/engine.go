// Package indicators computes technical indicators and risk metrics over
// price series. Every computation is pure; windows longer than the series
// yield ErrInsufficientData or an absent value, never a partial number.
package indicators

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/moznion/go-optional"
	"golang.org/x/sync/errgroup"

	"portfolio-tracker/internal/models"
)

// Indicator is a single-line indicator over closes.
type Indicator interface {
	Name() string
	Period() int
	Calculate(closes []float64) (Line, error)
}

// Params configures the engine's standard indicator set.
type Params struct {
	RSIPeriod       int
	BollingerPeriod int
	BollingerK      float64
	RiskFreeRate    float64
}

// DefaultParams returns the classic settings.
func DefaultParams() Params {
	return Params{
		RSIPeriod:       DefaultRSIPeriod,
		BollingerPeriod: DefaultBollingerPeriod,
		BollingerK:      DefaultBollingerK,
		RiskFreeRate:    DefaultRiskFreeRate,
	}
}

// Engine provides parallel indicator calculation using a worker pool.
type Engine struct {
	workers    int
	params     Params
	indicators map[string]Indicator
	mu         sync.RWMutex
}

// NewEngine creates an engine with SMA20, SMA50, SMA200 and RSI registered.
func NewEngine(workers int, params Params) *Engine {
	if workers <= 0 {
		workers = 4
	}
	e := &Engine{
		workers:    workers,
		params:     params,
		indicators: make(map[string]Indicator),
	}
	for _, ind := range []Indicator{NewSMA(20), NewSMA(50), NewSMA(200), NewRSI(params.RSIPeriod)} {
		e.RegisterIndicator(ind)
	}
	return e
}

// RegisterIndicator registers a single-value indicator.
func (e *Engine) RegisterIndicator(ind Indicator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.indicators[ind.Name()] = ind
}

// ListIndicators returns the registered indicator names, sorted.
func (e *Engine) ListIndicators() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.indicators))
	for name := range e.indicators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Calculate calculates a specific indicator by name.
func (e *Engine) Calculate(ctx context.Context, name string, closes []float64) (Line, error) {
	e.mu.RLock()
	ind, ok := e.indicators[name]
	e.mu.RUnlock()

	if !ok {
		return Line{}, fmt.Errorf("indicator %s not found", name)
	}

	select {
	case <-ctx.Done():
		return Line{}, ctx.Err()
	default:
		return ind.Calculate(closes)
	}
}

// CalculateAll calculates all registered indicators in parallel. Indicators
// that cannot be computed, usually for lack of data, are reported in errs
// and left out of lines.
func (e *Engine) CalculateAll(ctx context.Context, closes []float64) (lines map[string]Line, errs map[string]error) {
	e.mu.RLock()
	indicators := make([]Indicator, 0, len(e.indicators))
	for _, ind := range e.indicators {
		indicators = append(indicators, ind)
	}
	e.mu.RUnlock()

	lines = make(map[string]Line)
	errs = make(map[string]error)
	var mu sync.Mutex
	var wg sync.WaitGroup

	work := make(chan Indicator, len(indicators))

	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ind := range work {
				select {
				case <-ctx.Done():
					return
				default:
					line, err := ind.Calculate(closes)
					mu.Lock()
					if err != nil {
						errs[ind.Name()] = err
					} else {
						lines[ind.Name()] = line
					}
					mu.Unlock()
				}
			}
		}()
	}

	for _, ind := range indicators {
		work <- ind
	}
	close(work)

	wg.Wait()

	return lines, errs
}

// Snapshot computes the standard snapshot for one series. benchmark may be
// nil, in which case beta is absent.
func (e *Engine) Snapshot(ctx context.Context, series, benchmark *models.PriceSeries) Snapshot {
	closes := series.Closes()
	lines, _ := e.CalculateAll(ctx, closes)

	snap := newSnapshot(series)
	snap.SMA20 = lastOf(lines, "SMA20")
	snap.SMA50 = lastOf(lines, "SMA50")
	snap.SMA200 = lastOf(lines, "SMA200")
	snap.RSI = lastOf(lines, NewRSI(e.params.RSIPeriod).Name())

	if bands, err := NewBollingerBands(e.params.BollingerPeriod, e.params.BollingerK).Calculate(closes); err == nil {
		snap.BollingerUpper = bands.Upper.Last()
		snap.BollingerMiddle = bands.Middle.Last()
		snap.BollingerLower = bands.Lower.Last()
		if pb, ok := bands.PercentB(snap.Close); ok {
			snap.PercentB = some(pb)
		}
	}
	if vol, err := AnnualizedVolatility(closes); err == nil {
		snap.Volatility = some(vol)
	}
	if benchmark != nil && benchmark.Instrument != series.Instrument {
		if beta, err := Beta(series, benchmark); err == nil {
			snap.Beta = some(beta)
		}
	}
	if streak, err := CurrentStreak(closes); err == nil {
		snap.Streak = optional.Some(streak)
	}
	return snap
}

// SnapshotAll computes snapshots for several series concurrently. Results
// keep the input order.
func (e *Engine) SnapshotAll(ctx context.Context, series []*models.PriceSeries, benchmark *models.PriceSeries) ([]Snapshot, error) {
	out := make([]Snapshot, len(series))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, s := range series {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = e.Snapshot(gctx, s, benchmark)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Metrics computes risk metrics with the engine's risk-free rate.
func (e *Engine) Metrics(series *models.PriceSeries) (Metrics, error) {
	return ComputeMetrics(series, e.params.RiskFreeRate)
}
