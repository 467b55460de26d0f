package indicators

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// closesGen generates positive closes of length between minLen and maxLen.
func closesGen(minLen, maxLen int) gopter.Gen {
	return gen.IntRange(minLen, maxLen).FlatMap(func(n interface{}) gopter.Gen {
		return gen.SliceOfN(n.(int), gen.Float64Range(10.0, 1000.0))
	}, reflect.TypeOf([]float64{}))
}

// risingGen generates strictly increasing closes.
func risingGen(minLen, maxLen int) gopter.Gen {
	return closesGen(minLen, maxLen).Map(func(steps []float64) []float64 {
		closes := make([]float64, len(steps))
		price := 100.0
		for i, s := range steps {
			price += s / 100
			closes[i] = price
		}
		return closes
	})
}

func newProperties() *gopter.Properties {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	return gopter.NewProperties(parameters)
}

func TestProperty_RSIWithinBounds(t *testing.T) {
	properties := newProperties()

	properties.Property("RSI values are within [0, 100]", prop.ForAll(
		func(closes []float64) bool {
			rsi := NewRSI(14)
			line, err := rsi.Calculate(closes)
			if err != nil {
				return len(closes) < 15
			}
			for i := line.Start; i < len(line.Values); i++ {
				if v := line.Values[i]; v < 0 || v > 100 || math.IsNaN(v) {
					return false
				}
			}
			return line.At(line.Start - 1).IsNone()
		},
		closesGen(5, 120),
	))

	properties.TestingRun(t)
}

func TestProperty_RSIAllGainsIsHundred(t *testing.T) {
	properties := newProperties()

	properties.Property("RSI is 100 when every change is a gain", prop.ForAll(
		func(closes []float64) bool {
			line, err := NewRSI(14).Calculate(closes)
			if err != nil {
				return false
			}
			for i := line.Start; i < len(line.Values); i++ {
				if line.Values[i] != 100 {
					return false
				}
			}
			return true
		},
		risingGen(15, 80),
	))

	properties.TestingRun(t)
}

func TestProperty_SMAIsTrailingMean(t *testing.T) {
	properties := newProperties()

	properties.Property("SMA is undefined before n-1 and the trailing mean after", prop.ForAll(
		func(closes []float64, n int) bool {
			line, err := NewSMA(n).Calculate(closes)
			if len(closes) < n {
				return err != nil
			}
			if err != nil {
				return false
			}
			for i := range closes {
				v := line.At(i)
				if i < n-1 {
					if v.IsSome() {
						return false
					}
					continue
				}
				var total float64
				for _, c := range closes[i-n+1 : i+1] {
					total += c
				}
				if math.Abs(v.Unwrap()-total/float64(n)) > 1e-9 {
					return false
				}
			}
			return true
		},
		closesGen(1, 80),
		gen.IntRange(1, 30),
	))

	properties.TestingRun(t)
}

func TestProperty_BollingerOrdering(t *testing.T) {
	properties := newProperties()

	properties.Property("upper >= middle >= lower", prop.ForAll(
		func(closes []float64) bool {
			bands, err := NewBollingerBands(20, 2).Calculate(closes)
			if err != nil {
				return len(closes) < 20
			}
			for i := bands.Middle.Start; i < len(closes); i++ {
				if bands.Upper.Values[i] < bands.Middle.Values[i] || bands.Middle.Values[i] < bands.Lower.Values[i] {
					return false
				}
			}
			return true
		},
		closesGen(10, 80),
	))

	properties.TestingRun(t)
}

func TestProperty_PearsonWithinBounds(t *testing.T) {
	properties := newProperties()

	properties.Property("correlation is within [-1, 1] and 1 against itself", prop.ForAll(
		func(xs, ys []float64) bool {
			n := len(xs)
			if len(ys) < n {
				n = len(ys)
			}
			r, ok := Pearson(xs[:n], ys[:n])
			if ok && (r < -1 || r > 1) {
				return false
			}
			self, ok := Pearson(xs, xs)
			return !ok || math.Abs(self-1) < 1e-9
		},
		closesGen(3, 60),
		closesGen(3, 60),
	))

	properties.TestingRun(t)
}
