package signal

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/rileyseaburg/quantum-fox/types"
)

// Window lengths of the two moving averages
const (
	ShortPeriod = 20
	LongPeriod  = 50
)

// ErrInsufficientData is returned when no row has both averages defined
var ErrInsufficientData = errors.New("insufficient data for SMA signal")

// Result is the outcome of a crossover evaluation
type Result struct {
	Signal types.Signal `json:"signal"`
	Short  float64      `json:"sma20"`
	Long   float64      `json:"sma50"`
	// Index of the close the averages end on
	Index int `json:"index"`
}

// RollingMean computes the simple moving average of prices over period for
// every index. Entries without a complete window of finite values are NaN.
func RollingMean(prices []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, errors.New("period must be positive")
	}

	out := make([]float64, len(prices))
	for i := range prices {
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		window := prices[i-period+1 : i+1]
		if countFinite(window) < period {
			out[i] = math.NaN()
			continue
		}
		out[i] = stat.Mean(window, nil)
	}
	return out, nil
}

// Compute evaluates the SMA20/SMA50 crossover on the most recent row where
// both averages are defined.
func Compute(closes []float64) (Result, error) {
	short, err := RollingMean(closes, ShortPeriod)
	if err != nil {
		return Result{}, err
	}
	long, err := RollingMean(closes, LongPeriod)
	if err != nil {
		return Result{}, err
	}

	for i := len(closes) - 1; i >= 0; i-- {
		if math.IsNaN(short[i]) || math.IsNaN(long[i]) {
			continue
		}
		return Result{
			Signal: compare(short[i], long[i]),
			Short:  short[i],
			Long:   long[i],
			Index:  i,
		}, nil
	}

	return Result{}, fmt.Errorf("%w: %d closes, need %d", ErrInsufficientData, countFinite(closes), LongPeriod)
}

// FromSeries runs Compute over the closes of a daily series
func FromSeries(series types.Series) (Result, error) {
	return Compute(series.Closes())
}

func compare(short, long float64) types.Signal {
	switch {
	case short > long:
		return types.SignalBuy
	case short < long:
		return types.SignalSell
	default:
		return types.SignalHold
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func countFinite(values []float64) int {
	n := 0
	for _, v := range values {
		if isFinite(v) {
			n++
		}
	}
	return n
}
