// Package broker holds a per-request connection to an Alpaca brokerage account.
package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	paperTradingURL = "https://paper-api.alpaca.markets"
	liveTradingURL  = "https://api.alpaca.markets"
	liveKeyPrefix   = "AK" // Live API keys usually start with AK
)

var (
	ErrMissingCredentials = errors.New("alpaca api key and secret are required")
	ErrUnknownEnvironment = errors.New("unknown trading environment")
)

// Environment selects paper or live trading
type Environment string

const (
	Paper Environment = "paper"
	Live  Environment = "live"
)

// ParseEnvironment accepts "paper" or "live" (case-insensitive)
func ParseEnvironment(s string) (Environment, error) {
	switch Environment(strings.ToLower(strings.TrimSpace(s))) {
	case Paper:
		return Paper, nil
	case Live:
		return Live, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEnvironment, s)
	}
}

// BaseURL returns the trading API endpoint for the environment
func (e Environment) BaseURL() string {
	if e == Live {
		return liveTradingURL
	}
	return paperTradingURL
}

// Label is the upper-case name shown in the page
func (e Environment) Label() string {
	return strings.ToUpper(string(e))
}

// Credentials are the two Alpaca key strings. They live only as long as the
// request that carries them.
type Credentials struct {
	APIKey    string
	APISecret string
}

// Empty reports whether either key is missing
func (c Credentials) Empty() bool {
	return c.APIKey == "" || c.APISecret == ""
}

// String redacts the secret so credentials never end up in logs
func (c Credentials) String() string {
	if c.Empty() {
		return "Credentials{unset}"
	}
	return "Credentials{redacted}"
}

// GoString keeps %#v from printing the keys
func (c Credentials) GoString() string {
	return c.String()
}

// Client is the part of the Alpaca trading client the dashboard uses.
// *alpaca.Client satisfies it.
type Client interface {
	GetAccount() (*alpaca.Account, error)
	GetPositions() ([]alpaca.Position, error)
	PlaceOrder(req alpaca.PlaceOrderRequest) (*alpaca.Order, error)
}

// Dialer builds a trading client for the given options
type Dialer func(opts alpaca.ClientOpts) Client

// DefaultDialer creates a real Alpaca REST client
func DefaultDialer(opts alpaca.ClientOpts) Client {
	return alpaca.NewClient(opts)
}

// AccountSnapshot is the account summary shown in the page
type AccountSnapshot struct {
	Status      string          `json:"status"`
	Cash        decimal.Decimal `json:"cash"`
	BuyingPower decimal.Decimal `json:"buying_power"`
	Equity      decimal.Decimal `json:"equity"`
}

// Position is one open position
type Position struct {
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"qty"`
	MarketValue   decimal.Decimal `json:"market_value"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
}

// Session is a verified connection to one brokerage account
type Session struct {
	client Client
	env    Environment
	equity decimal.Decimal
}

// Connect builds a client with the system dialer and verifies it
func Connect(ctx context.Context, creds Credentials, env Environment) (*Session, error) {
	return ConnectWith(ctx, DefaultDialer, creds, env)
}

// ConnectWith builds a client with dial and verifies the account is reachable
func ConnectWith(ctx context.Context, dial Dialer, creds Credentials, env Environment) (*Session, error) {
	if creds.Empty() {
		return nil, ErrMissingCredentials
	}
	if env != Paper && env != Live {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEnvironment, env)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if env == Live && !strings.HasPrefix(creds.APIKey, liveKeyPrefix) {
		log.WithField("env", env).Warn("live trading selected but api key does not look like a live key (keys should start with AK)")
	}

	client := dial(alpaca.ClientOpts{
		APIKey:    creds.APIKey,
		APISecret: creds.APISecret,
		BaseURL:   env.BaseURL(),
	})

	acct, err := client.GetAccount()
	if err != nil {
		return nil, fmt.Errorf("failed to get account info: %w", err)
	}

	log.WithFields(log.Fields{"env": env, "status": acct.Status}).Info("connected to alpaca")
	return &Session{client: client, env: env, equity: acct.Equity}, nil
}

// Environment returns the environment the session trades in
func (s *Session) Environment() Environment {
	return s.env
}

// Equity is the account equity observed when the session was established
func (s *Session) Equity() decimal.Decimal {
	return s.equity
}

// Account fetches a fresh account snapshot
func (s *Session) Account() (AccountSnapshot, error) {
	acct, err := s.client.GetAccount()
	if err != nil {
		return AccountSnapshot{}, fmt.Errorf("failed to get account: %w", err)
	}
	return AccountSnapshot{
		Status:      string(acct.Status),
		Cash:        acct.Cash,
		BuyingPower: acct.BuyingPower,
		Equity:      acct.Equity,
	}, nil
}

// Positions lists the open positions
func (s *Session) Positions() ([]Position, error) {
	positions, err := s.client.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}

	out := make([]Position, 0, len(positions))
	for _, p := range positions {
		pos := Position{
			Symbol:        p.Symbol,
			Quantity:      p.Qty,
			AvgEntryPrice: p.AvgEntryPrice,
		}
		if p.MarketValue != nil {
			pos.MarketValue = *p.MarketValue
		}
		out = append(out, pos)
	}
	return out, nil
}

// PlaceOrder forwards an order request to the broker
func (s *Session) PlaceOrder(req alpaca.PlaceOrderRequest) (*alpaca.Order, error) {
	return s.client.PlaceOrder(req)
}
