// Package brokertest provides an in-memory Alpaca trading client for tests.
package brokertest

import (
	"fmt"
	"sync"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"github.com/rileyseaburg/quantum-fox/broker"
)

// Client records every order it receives and answers with canned data
type Client struct {
	mu sync.Mutex

	Account      *alpaca.Account
	Positions    []alpaca.Position
	AccountErr   error
	PositionsErr error
	// OrderErrs fails the n-th PlaceOrder call (0-based) with the mapped error
	OrderErrs map[int]error

	Orders []alpaca.PlaceOrderRequest
	Opts   []alpaca.ClientOpts
}

// NewClient returns a fake with an active paper account
func NewClient() *Client {
	return &Client{
		Account: &alpaca.Account{
			Status:      "ACTIVE",
			Cash:        decimal.RequireFromString("1000.50"),
			BuyingPower: decimal.RequireFromString("2001"),
			Equity:      decimal.RequireFromString("1500.25"),
		},
	}
}

// Dialer returns a broker.Dialer that hands out this fake
func (c *Client) Dialer() broker.Dialer {
	return func(opts alpaca.ClientOpts) broker.Client {
		c.mu.Lock()
		c.Opts = append(c.Opts, opts)
		c.mu.Unlock()
		return c
	}
}

func (c *Client) GetAccount() (*alpaca.Account, error) {
	if c.AccountErr != nil {
		return nil, c.AccountErr
	}
	acct := *c.Account
	return &acct, nil
}

func (c *Client) GetPositions() ([]alpaca.Position, error) {
	if c.PositionsErr != nil {
		return nil, c.PositionsErr
	}
	return c.Positions, nil
}

func (c *Client) PlaceOrder(req alpaca.PlaceOrderRequest) (*alpaca.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.Orders)
	if err, ok := c.OrderErrs[n]; ok {
		return nil, err
	}
	c.Orders = append(c.Orders, req)

	order := &alpaca.Order{
		ID:            fmt.Sprintf("order-%d", n+1),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Status:        "accepted",
	}
	return order, nil
}

// Placed returns a copy of the order requests received so far
func (c *Client) Placed() []alpaca.PlaceOrderRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]alpaca.PlaceOrderRequest, len(c.Orders))
	copy(out, c.Orders)
	return out
}
