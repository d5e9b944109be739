// Package dashboard renders the trading page: chart, signal, order panel and account.
package dashboard

import (
	"context"
	"errors"
	"html/template"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/rileyseaburg/quantum-fox/broker"
	"github.com/rileyseaburg/quantum-fox/candles"
	"github.com/rileyseaburg/quantum-fox/chart"
	"github.com/rileyseaburg/quantum-fox/notification"
	"github.com/rileyseaburg/quantum-fox/order"
	"github.com/rileyseaburg/quantum-fox/signal"
)

// ErrBrokerNotConnected is reported when an order is placed without a session
var ErrBrokerNotConnected = errors.New("broker not connected")

const (
	msgNotConnected   = "Broker not connected. Enter Alpaca API keys in the sidebar."
	msgConnectToTrade = "Connect with Alpaca API keys to view account and place live/paper orders."
	msgNoChartData    = "No data available for the selected period/interval."
	msgNoSignal       = "Not enough data for SMA signal."
	msgNoPositions    = "No open positions."
	msgServerKeysOnly = "Orders need your own Alpaca API keys. Enter them in the sidebar."
	msgMissingToken   = "Order form expired. Reload the page and place the order again."
)

// Connector establishes a broker session
type Connector func(ctx context.Context, creds broker.Credentials, env broker.Environment) (*broker.Session, error)

// ProviderFactory returns the market-data provider for a request's credentials
type ProviderFactory func(creds broker.Credentials) candles.Provider

// Options wires a Renderer
type Options struct {
	Connect        Connector
	Provider       ProviderFactory
	ExitMode       order.ExitMode
	SignalPeriod   string
	SignalInterval string
	// DefaultCredentials supplies server-side keys when the form has none
	DefaultCredentials func(env broker.Environment) broker.Credentials
}

// Renderer runs the per-request pass over the external services
type Renderer struct {
	opts Options
}

// NewRenderer fills unset options with defaults
func NewRenderer(opts Options) *Renderer {
	if opts.Connect == nil {
		opts.Connect = broker.Connect
	}
	if opts.ExitMode == "" {
		opts.ExitMode = order.Independent
	}
	if opts.SignalPeriod == "" {
		opts.SignalPeriod = "6mo"
	}
	if opts.SignalInterval == "" {
		opts.SignalInterval = "1d"
	}
	if opts.DefaultCredentials == nil {
		opts.DefaultCredentials = func(broker.Environment) broker.Credentials { return broker.Credentials{} }
	}
	return &Renderer{opts: opts}
}

// Page is everything one render shows. Credentials are never part of it.
type Page struct {
	Inputs      Inputs                      `json:"inputs"`
	Connected   bool                        `json:"connected"`
	Environment string                      `json:"environment"`
	Chart       *chart.Figure               `json:"chart,omitempty"`
	ChartJS     template.JS                 `json:"-"`
	LatestPrice *float64                    `json:"latest_price,omitempty"`
	Signal      *signal.Result              `json:"signal,omitempty"`
	OrderPanel  bool                        `json:"order_enabled"`
	Order       *order.Outcome              `json:"order,omitempty"`
	Account     *broker.AccountSnapshot     `json:"account,omitempty"`
	Positions   []broker.Position           `json:"positions,omitempty"`
	Notices     []notification.Notification `json:"notifications"`
	// SubmitToken is the client order id for the next order placed from this page
	SubmitToken string   `json:"submit_token"`
	Periods     []string `json:"-"`
	Intervals   []string `json:"-"`

	feed *notification.Feed
}

// NoticesFor returns the notices of one section, for the template
func (p *Page) NoticesFor(kind string) []notification.Notification {
	if p.feed == nil {
		return nil
	}
	return p.feed.ByKind(notification.Kind(kind))
}

// Render runs one linear pass: connect, chart, signal, order, account.
// Every failure becomes a notice for its own section. Server-side default
// keys only back the read-only sections; orders need the caller's own keys.
func (r *Renderer) Render(ctx context.Context, in Inputs) *Page {
	feed := notification.NewFeed()
	page := &Page{
		Inputs:      in,
		Environment: in.Environment.Label(),
		SubmitToken: uuid.NewString(),
		Periods:     candles.Periods,
		Intervals:   candles.Intervals,
	}
	page.Inputs.Credentials = broker.Credentials{}

	logger := log.WithFields(log.Fields{"symbol": in.Symbol, "env": in.Environment})

	creds := in.Credentials
	serverKeys := false
	if creds.Empty() {
		creds = r.opts.DefaultCredentials(in.Environment)
		serverKeys = !creds.Empty()
	}

	session := r.connect(ctx, creds, in.Environment, feed, logger)
	page.Connected = session != nil

	var provider candles.Provider
	if r.opts.Provider != nil {
		provider = r.opts.Provider(creds)
	}
	r.renderChart(ctx, provider, in, page, feed, logger)
	r.renderSignal(ctx, provider, in, page, feed, logger)

	page.OrderPanel = session != nil && !serverKeys
	switch {
	case in.PlaceOrder:
		r.placeOrder(session, serverKeys, in, page, feed, logger)
	case session == nil:
		feed.Add(notification.Info(notification.KindOrder, msgNotConnected))
	case serverKeys:
		feed.Add(notification.Info(notification.KindOrder, msgServerKeysOnly))
	}

	r.renderAccount(session, page, feed)

	page.feed = feed
	page.Notices = feed.All()
	return page
}

func (r *Renderer) connect(ctx context.Context, creds broker.Credentials, env broker.Environment, feed *notification.Feed, logger *log.Entry) *broker.Session {
	if creds.Empty() {
		return nil
	}
	session, err := r.opts.Connect(ctx, creds, env)
	if err != nil {
		logger.WithError(err).Warn("alpaca connection failed")
		feed.Add(notification.Error(notification.KindConnection, "Alpaca connection error: %v", err))
		return nil
	}
	feed.Add(notification.CreateConnectedNotification(env.Label(), session.Equity()))
	return session
}

func (r *Renderer) renderChart(ctx context.Context, provider candles.Provider, in Inputs, page *Page, feed *notification.Feed, logger *log.Entry) {
	if provider == nil {
		feed.Add(notification.Error(notification.KindChart, "Chart error: no market data provider configured"))
		return
	}

	series, err := provider.Candles(ctx, candles.Request{Symbol: in.Symbol, Period: in.Period, Interval: in.Interval})
	if err != nil {
		logger.WithError(err).Warn("chart fetch failed")
		feed.Add(notification.Error(notification.KindChart, "Chart error: %v", err))
		return
	}

	fig, ok := chart.Candlestick(series)
	if !ok {
		feed.Add(notification.Info(notification.KindChart, msgNoChartData))
		return
	}
	js, err := fig.JSON()
	if err != nil {
		feed.Add(notification.Error(notification.KindChart, "Chart error: %v", err))
		return
	}
	page.Chart = fig
	page.ChartJS = js
	if price, ok := chart.LatestClose(series); ok {
		page.LatestPrice = &price
	}
}

func (r *Renderer) renderSignal(ctx context.Context, provider candles.Provider, in Inputs, page *Page, feed *notification.Feed, logger *log.Entry) {
	if provider == nil {
		feed.Add(notification.Info(notification.KindSignal, msgNoSignal))
		return
	}

	history, err := provider.Candles(ctx, candles.Request{Symbol: in.Symbol, Period: r.opts.SignalPeriod, Interval: r.opts.SignalInterval})
	if err == nil {
		var res signal.Result
		res, err = signal.FromSeries(history)
		if err == nil {
			page.Signal = &res
			feed.Add(notification.Info(notification.KindSignal, "SMA Signal: %s", res.Signal))
			return
		}
	}
	logger.WithError(err).Debug("no sma signal")
	feed.Add(notification.Info(notification.KindSignal, msgNoSignal))
}

func (r *Renderer) placeOrder(session *broker.Session, serverKeys bool, in Inputs, page *Page, feed *notification.Feed, logger *log.Entry) {
	switch {
	case session == nil:
		logger.WithError(ErrBrokerNotConnected).Info("order rejected")
		feed.Add(notification.Error(notification.KindOrder, msgNotConnected))
		return
	case serverKeys:
		logger.Warn("order rejected, default keys cannot trade")
		feed.Add(notification.Error(notification.KindOrder, msgServerKeysOnly))
		return
	case in.Token == "":
		logger.Warn("order rejected, missing submit token")
		feed.Add(notification.Error(notification.KindOrder, msgMissingToken))
		return
	}

	req := in.Order
	req.Symbol = in.Symbol
	outcome, err := order.NewSubmitter(session, r.opts.ExitMode).Submit(req, in.Token)
	if err != nil {
		logger.WithError(err).Warn("order failed")
		feed.Add(notification.Error(notification.KindOrder, "Order error: %v", err))
		return
	}
	page.Order = outcome
	feed.Add(notification.CreateOrderSubmittedNotification(outcome.Primary.ID, outcome.Primary.Status))

	if len(outcome.Exits) == 0 && outcome.ExitErr == nil {
		return
	}
	switch {
	case outcome.ExitErr != nil:
		feed.Add(notification.Warning(notification.KindOrder, "Could not create TP/SL orders: %v", outcome.ExitErr))
	case len(outcome.Exits) == 1 && outcome.Exits[0].OrderClass == string(order.OCO):
		feed.Add(notification.Info(notification.KindOrder, "Take profit / Stop loss targets linked as one OCO order."))
	default:
		feed.Add(notification.Info(notification.KindOrder, "Take profit / Stop loss targets created as separate orders (paper testing recommended)."))
	}
}

func (r *Renderer) renderAccount(session *broker.Session, page *Page, feed *notification.Feed) {
	if session == nil {
		feed.Add(notification.Info(notification.KindAccount, msgConnectToTrade))
		return
	}

	acct, err := session.Account()
	if err != nil {
		feed.Add(notification.Error(notification.KindAccount, "Account error: %v", err))
		return
	}
	page.Account = &acct
	feed.Add(notification.CreateAccountNotification(acct.Status, acct.Cash, acct.BuyingPower))

	positions, err := session.Positions()
	if err != nil {
		feed.Add(notification.Error(notification.KindAccount, "Account error: %v", err))
		return
	}
	if len(positions) == 0 {
		feed.Add(notification.Info(notification.KindAccount, msgNoPositions))
		return
	}
	page.Positions = positions
}
