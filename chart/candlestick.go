// Package chart builds Plotly figure descriptions for candle series.
package chart

import (
	"encoding/json"
	"fmt"
	"html/template"
	"time"

	"github.com/rileyseaburg/quantum-fox/types"
)

const DefaultHeight = 500

// Trace is a single Plotly candlestick trace
type Trace struct {
	Type  string    `json:"type"`
	Name  string    `json:"name,omitempty"`
	X     []string  `json:"x"`
	Open  []float64 `json:"open"`
	High  []float64 `json:"high"`
	Low   []float64 `json:"low"`
	Close []float64 `json:"close"`
}

// Layout holds the subset of Plotly layout options the dashboard sets
type Layout struct {
	Height int    `json:"height"`
	Title  string `json:"title"`
	XAxis  Axis   `json:"xaxis"`
}

type Axis struct {
	RangeSlider RangeSlider `json:"rangeslider"`
}

type RangeSlider struct {
	Visible bool `json:"visible"`
}

// Figure is the Plotly figure ({data, layout}) rendered client side
type Figure struct {
	Data   []Trace `json:"data"`
	Layout Layout  `json:"layout"`
}

// Candlestick builds the figure for a series; false if the series is empty
func Candlestick(series types.Series) (*Figure, bool) {
	if series.Empty() {
		return nil, false
	}

	n := len(series.Candles)
	trace := Trace{
		Type:  "candlestick",
		Name:  series.Symbol,
		X:     make([]string, n),
		Open:  make([]float64, n),
		High:  make([]float64, n),
		Low:   make([]float64, n),
		Close: make([]float64, n),
	}
	for i, c := range series.Candles {
		trace.X[i] = c.Timestamp.Format(time.RFC3339)
		trace.Open[i] = c.Open
		trace.High[i] = c.High
		trace.Low[i] = c.Low
		trace.Close[i] = c.Close
	}

	return &Figure{
		Data: []Trace{trace},
		Layout: Layout{
			Height: DefaultHeight,
			Title:  fmt.Sprintf("%s %s %s", series.Symbol, series.Period, series.Interval),
			XAxis:  Axis{RangeSlider: RangeSlider{Visible: false}},
		},
	}, true
}

// LatestClose returns the close of the most recent candle
func LatestClose(series types.Series) (float64, bool) {
	last, ok := series.Last()
	if !ok {
		return 0, false
	}
	return last.Close, true
}

// JSON encodes the figure for a script block. html/template escapes it
// for the JS context it is placed in.
func (f *Figure) JSON() (template.JS, error) {
	if f == nil {
		return "null", nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("encode figure: %w", err)
	}
	return template.JS(b), nil
}
