// Package candles fetches OHLC candle series from external market-data providers.
package candles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rileyseaburg/quantum-fox/types"
)

var (
	ErrUnsupportedPeriod   = errors.New("unsupported chart period")
	ErrUnsupportedInterval = errors.New("unsupported chart interval")
	ErrSymbolRequired      = errors.New("symbol is required")
)

// Request selects the candles to fetch
type Request struct {
	Symbol   string `json:"symbol"`
	Period   string `json:"period"`   // e.g. "5d", "1mo"
	Interval string `json:"interval"` // e.g. "1h", "1d"
}

// Provider returns the candle series for a request. A window without data
// yields an empty series, not an error.
type Provider interface {
	Candles(ctx context.Context, req Request) (types.Series, error)
	Name() string
}

// Periods lists the chart periods offered by the dashboard, shortest first
var Periods = []string{"5d", "1mo", "3mo", "6mo", "1y"}

// Intervals lists the bar intervals offered by the dashboard
var Intervals = []string{"1m", "5m", "15m", "1h", "1d"}

var periodSpans = map[string]struct{ years, months, days int }{
	"5d":  {days: 5},
	"1mo": {months: 1},
	"3mo": {months: 3},
	"6mo": {months: 6},
	"1y":  {years: 1},
}

var intervalDurations = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"1h":  time.Hour,
	"1d":  24 * time.Hour,
}

// PeriodStart returns the start of the lookback window ending at end
func PeriodStart(period string, end time.Time) (time.Time, error) {
	span, ok := periodSpans[period]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnsupportedPeriod, period)
	}
	return end.AddDate(-span.years, -span.months, -span.days), nil
}

// IntervalDuration returns the bar width of an interval
func IntervalDuration(interval string) (time.Duration, error) {
	d, ok := intervalDurations[interval]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedInterval, interval)
	}
	return d, nil
}

// Normalize upper-cases the symbol and validates period and interval
func (r Request) Normalize() (Request, error) {
	r.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol))
	if r.Symbol == "" {
		return r, ErrSymbolRequired
	}
	if _, ok := periodSpans[r.Period]; !ok {
		return r, fmt.Errorf("%w: %q", ErrUnsupportedPeriod, r.Period)
	}
	if _, err := IntervalDuration(r.Interval); err != nil {
		return r, err
	}
	return r, nil
}

func emptySeries(req Request) types.Series {
	return types.Series{Symbol: req.Symbol, Period: req.Period, Interval: req.Interval}
}
