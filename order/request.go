// Package order validates order requests and submits them with optional exit orders.
package order

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidOrder is wrapped by every ValidationError
var ErrInvalidOrder = errors.New("invalid order")

// Side of an order
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Opposite returns the side that closes a position opened on s
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Type of the primary order
type Type string

const (
	Market Type = "market"
	Limit  Type = "limit"
)

// Request is the user's order panel input
type Request struct {
	Symbol     string  `json:"symbol"`
	Quantity   int     `json:"qty"`
	Side       Side    `json:"side"`
	Type       Type    `json:"type"`
	LimitPrice float64 `json:"limit_price,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
}

// ValidationError names the offending field
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid order: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidOrder
}

// HasExits reports whether a take-profit or stop-loss target is set
func (r Request) HasExits() bool {
	return r.TakeProfit > 0 || r.StopLoss > 0
}

// RoundPrices rounds every price to cents, the precision the broker
// accepts. Validate and HasExits see what will actually be sent.
func (r Request) RoundPrices() Request {
	r.LimitPrice = roundCents(r.LimitPrice)
	r.TakeProfit = roundCents(r.TakeProfit)
	r.StopLoss = roundCents(r.StopLoss)
	return r
}

func roundCents(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Validate checks the request before anything is sent to the broker
func (r Request) Validate() error {
	if strings.TrimSpace(r.Symbol) == "" {
		return &ValidationError{Field: "symbol", Reason: "is required"}
	}
	if r.Quantity < 1 {
		return &ValidationError{Field: "qty", Reason: "must be at least 1"}
	}
	if r.Side != Buy && r.Side != Sell {
		return &ValidationError{Field: "side", Reason: fmt.Sprintf("must be buy or sell, got %q", r.Side)}
	}

	switch r.Type {
	case Market:
	case Limit:
		if !positive(r.LimitPrice) {
			return &ValidationError{Field: "limit_price", Reason: "is required for limit orders"}
		}
	default:
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("must be market or limit, got %q", r.Type)}
	}

	if r.TakeProfit < 0 || math.IsNaN(r.TakeProfit) || math.IsInf(r.TakeProfit, 0) {
		return &ValidationError{Field: "take_profit", Reason: "must be a non-negative price"}
	}
	if r.StopLoss < 0 || math.IsNaN(r.StopLoss) || math.IsInf(r.StopLoss, 0) {
		return &ValidationError{Field: "stop_loss", Reason: "must be a non-negative price"}
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
