package patterns

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"portfolio-tracker/internal/analysis/indicators"
)

func TestProperty_CrossoversAlternate(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	// Small integer values make exact equality between the lines common.
	properties.Property("golden and death crosses never share an index and alternate", prop.ForAll(
		func(fast, slow []int) bool {
			n := len(fast)
			if len(slow) < n {
				n = len(slow)
			}
			f, s := make([]float64, n), make([]float64, n)
			for i := 0; i < n; i++ {
				f[i], s[i] = float64(fast[i]), float64(slow[i])
			}

			report := Crossovers(indicators.Line{Values: f}, indicators.Line{Values: s}, nil, 2)
			seen := map[int]bool{}
			for i, c := range report.History {
				if seen[c.Index] {
					return false
				}
				seen[c.Index] = true
				if i > 0 && report.History[i-1].Kind == c.Kind {
					return false
				}
				if f[c.Index] == s[c.Index] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 3)),
		gen.SliceOf(gen.IntRange(0, 3)),
	))

	properties.TestingRun(t)
}

func TestProperty_RecoveryExceedsDrop(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("recovering from a fall takes a larger gain", prop.ForAll(
		func(d float64) bool {
			r := RequiredRecovery(d)
			// Falling d then gaining r returns exactly to the start.
			return r >= d && math.Abs((1-d)*(1+r)-1) < 1e-9
		},
		gen.Float64Range(0.0001, 0.99),
	))

	properties.TestingRun(t)
}
