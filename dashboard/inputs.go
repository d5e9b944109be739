package dashboard

import (
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/rileyseaburg/quantum-fox/broker"
	"github.com/rileyseaburg/quantum-fox/candles"
	"github.com/rileyseaburg/quantum-fox/order"
)

const (
	DefaultSymbol   = "AAPL"
	DefaultPeriod   = "5d"
	DefaultInterval = "1h"

	actionPlaceOrder = "place_order"
)

// Inputs are the user-facing controls of one page render
type Inputs struct {
	Symbol      string             `json:"symbol"`
	Period      string             `json:"period"`
	Interval    string             `json:"interval"`
	Environment broker.Environment `json:"env"`
	Credentials broker.Credentials `json:"-"`
	Order       order.Request      `json:"order"`
	// Token is the client order id for the order posted with this render
	Token      string `json:"token,omitempty"`
	PlaceOrder bool   `json:"place_order"`
}

// DefaultInputs returns the controls as shown on first load
func DefaultInputs() Inputs {
	return Inputs{
		Symbol:      DefaultSymbol,
		Period:      DefaultPeriod,
		Interval:    DefaultInterval,
		Environment: broker.Paper,
		Order: order.Request{
			Symbol:   DefaultSymbol,
			Quantity: 1,
			Side:     order.Buy,
			Type:     order.Market,
		},
	}
}

// ParseInputs reads the dashboard form. Missing or out-of-range selector
// values fall back to their defaults; numeric fields that fail to parse are
// left invalid so order validation reports them.
func ParseInputs(form url.Values) Inputs {
	in := DefaultInputs()

	if v := normalizeSymbol(form.Get("symbol")); v != "" {
		in.Symbol = v
	}
	in.Period = choice(form.Get("period"), candles.Periods, DefaultPeriod)
	in.Interval = choice(form.Get("interval"), candles.Intervals, DefaultInterval)
	if env, err := broker.ParseEnvironment(form.Get("env")); err == nil {
		in.Environment = env
	}
	in.Credentials = broker.Credentials{
		APIKey:    strings.TrimSpace(form.Get("api_key")),
		APISecret: strings.TrimSpace(form.Get("api_secret")),
	}

	in.Order.Symbol = in.Symbol
	if v := form.Get("qty"); v != "" {
		qty, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			qty = 0
		}
		in.Order.Quantity = qty
	}
	if v := form.Get("side"); v != "" {
		in.Order.Side = order.Side(strings.ToLower(v))
	}
	if v := form.Get("type"); v != "" {
		in.Order.Type = order.Type(strings.ToLower(v))
	}
	if in.Order.Type == order.Limit {
		in.Order.LimitPrice = parsePrice(form.Get("limit_price"))
	}
	in.Order.TakeProfit = parsePrice(form.Get("take_profit"))
	in.Order.StopLoss = parsePrice(form.Get("stop_loss"))

	in.Token = strings.TrimSpace(form.Get("token"))
	in.PlaceOrder = form.Get("action") == actionPlaceOrder
	return in
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func choice(v string, allowed []string, fallback string) string {
	if slices.Contains(allowed, v) {
		return v
	}
	return fallback
}

// parsePrice treats blank as "not set"; unparsable input becomes -1 so
// validation rejects it instead of silently dropping the field.
func parsePrice(v string) float64 {
	v = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(v), "$"))
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return -1
	}
	return f
}
