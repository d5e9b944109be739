package types

import (
	"time"
)

// Candle represents a single OHLC bar in a candle series
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Series is an ordered (oldest first) sequence of candles for one symbol
type Series struct {
	Symbol   string   `json:"symbol"`
	Period   string   `json:"period"`
	Interval string   `json:"interval"`
	Candles  []Candle `json:"candles,omitempty"`
}

// Empty reports whether the provider returned no candles for the window
func (s Series) Empty() bool {
	return len(s.Candles) == 0
}

// Closes returns the close prices of the series in order
func (s Series) Closes() []float64 {
	closes := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		closes[i] = c.Close
	}
	return closes
}

// Last returns the most recent candle. The second value is false for an empty series.
func (s Series) Last() (Candle, bool) {
	if s.Empty() {
		return Candle{}, false
	}
	return s.Candles[len(s.Candles)-1], true
}
