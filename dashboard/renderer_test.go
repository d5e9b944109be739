package dashboard

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyseaburg/quantum-fox/broker"
	"github.com/rileyseaburg/quantum-fox/broker/brokertest"
	"github.com/rileyseaburg/quantum-fox/candles"
	"github.com/rileyseaburg/quantum-fox/notification"
	"github.com/rileyseaburg/quantum-fox/order"
	"github.com/rileyseaburg/quantum-fox/types"
)

var testCreds = broker.Credentials{APIKey: "PKTEST", APISecret: "secret"}

// fakeProvider answers by "period/interval"
type fakeProvider struct {
	series map[string]types.Series
	errs   map[string]error
	calls  []candles.Request
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Candles(_ context.Context, req candles.Request) (types.Series, error) {
	p.calls = append(p.calls, req)
	key := req.Period + "/" + req.Interval
	if err, ok := p.errs[key]; ok {
		return types.Series{}, err
	}
	if s, ok := p.series[key]; ok {
		return s, nil
	}
	return types.Series{Symbol: req.Symbol, Period: req.Period, Interval: req.Interval}, nil
}

func makeSeries(symbol string, closes ...float64) types.Series {
	start := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	s := types.Series{Symbol: symbol, Period: "5d", Interval: "1h"}
	for i, c := range closes {
		s.Candles = append(s.Candles, types.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      c - 0.5,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    1000,
		})
	}
	return s
}

func risingSeries(n int) types.Series {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	s := makeSeries("AAPL", closes...)
	s.Period, s.Interval = "6mo", "1d"
	return s
}

func newTestRenderer(fake *brokertest.Client, provider *fakeProvider, mode order.ExitMode) *Renderer {
	return NewRenderer(Options{
		Connect: func(ctx context.Context, creds broker.Credentials, env broker.Environment) (*broker.Session, error) {
			return broker.ConnectWith(ctx, fake.Dialer(), creds, env)
		},
		Provider: func(broker.Credentials) candles.Provider { return provider },
		ExitMode: mode,
	})
}

func messages(ns []notification.Notification) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = n.Message
	}
	return out
}

func TestRender_NotConnected(t *testing.T) {
	fake := brokertest.NewClient()
	provider := &fakeProvider{series: map[string]types.Series{
		"5d/1h": makeSeries("AAPL", 101, 102, 103.5),
	}}
	r := newTestRenderer(fake, provider, "")

	page := r.Render(context.Background(), DefaultInputs())

	assert.False(t, page.Connected)
	assert.False(t, page.OrderPanel)
	assert.Empty(t, fake.Opts, "no connection attempt without keys")
	assert.Contains(t, messages(page.NoticesFor("order")), msgNotConnected)
	assert.Contains(t, messages(page.NoticesFor("account")), msgConnectToTrade)
	assert.Nil(t, page.Account)

	require.NotNil(t, page.Chart)
	require.NotNil(t, page.LatestPrice)
	assert.InDelta(t, 103.5, *page.LatestPrice, 1e-9)
	assert.Contains(t, string(page.ChartJS), `"candlestick"`)
	assert.Equal(t, "PAPER", page.Environment)
}

func TestRender_PlaceOrderWithoutSession(t *testing.T) {
	fake := brokertest.NewClient()
	r := newTestRenderer(fake, &fakeProvider{}, "")

	in := DefaultInputs()
	in.PlaceOrder = true
	page := r.Render(context.Background(), in)

	orderNotices := page.NoticesFor("order")
	require.Len(t, orderNotices, 1)
	assert.Equal(t, notification.LevelError, orderNotices[0].Level)
	assert.Equal(t, msgNotConnected, orderNotices[0].Message)
	assert.Empty(t, fake.Placed())
}

func TestRender_ConnectionError(t *testing.T) {
	fake := brokertest.NewClient()
	fake.AccountErr = errors.New("forbidden")
	r := newTestRenderer(fake, &fakeProvider{}, "")

	in := DefaultInputs()
	in.Credentials = testCreds
	page := r.Render(context.Background(), in)

	assert.False(t, page.Connected)
	conn := page.NoticesFor("connection")
	require.Len(t, conn, 1)
	assert.Equal(t, notification.LevelError, conn[0].Level)
	assert.True(t, strings.HasPrefix(conn[0].Message, "Alpaca connection error: "))
	assert.Contains(t, conn[0].Message, "forbidden")
}

func TestRender_ConnectedAccountAndPositions(t *testing.T) {
	fake := brokertest.NewClient()
	mv := decimal.RequireFromString("1950.40")
	fake.Positions = []alpaca.Position{{
		Symbol:        "AAPL",
		Qty:           decimal.NewFromInt(10),
		MarketValue:   &mv,
		AvgEntryPrice: decimal.RequireFromString("180.10"),
	}}
	r := newTestRenderer(fake, &fakeProvider{}, "")

	in := DefaultInputs()
	in.Credentials = testCreds
	page := r.Render(context.Background(), in)

	require.True(t, page.Connected)
	assert.True(t, page.OrderPanel)
	assert.Equal(t, []string{"Connected to Alpaca (PAPER) — Equity: $1,500.25"}, messages(page.NoticesFor("connection")))
	require.NotNil(t, page.Account)
	assert.Equal(t, "ACTIVE", page.Account.Status)
	assert.Equal(t, []string{"Account status: ACTIVE — Cash: $1,000.50 — Buying Power: $2,001.00"}, messages(page.NoticesFor("account")))
	require.Len(t, page.Positions, 1)
	assert.True(t, page.Positions[0].MarketValue.Equal(mv))
	assert.NotContains(t, messages(page.NoticesFor("order")), msgNotConnected)
	assert.Empty(t, page.Inputs.Credentials.APIKey)
}

func TestRender_NoPositions(t *testing.T) {
	fake := brokertest.NewClient()
	r := newTestRenderer(fake, &fakeProvider{}, "")

	in := DefaultInputs()
	in.Credentials = testCreds
	page := r.Render(context.Background(), in)

	assert.Contains(t, messages(page.NoticesFor("account")), msgNoPositions)
	assert.Empty(t, page.Positions)
}

func TestRender_AccountErrorKeepsOtherSections(t *testing.T) {
	fake := brokertest.NewClient()
	fake.PositionsErr = errors.New("timeout")
	r := newTestRenderer(fake, &fakeProvider{series: map[string]types.Series{
		"5d/1h": makeSeries("AAPL", 101),
	}}, "")

	in := DefaultInputs()
	in.Credentials = testCreds
	page := r.Render(context.Background(), in)

	assert.True(t, page.Connected)
	assert.NotNil(t, page.Chart)
	acct := page.NoticesFor("account")
	require.Len(t, acct, 2)
	assert.Equal(t, "Account status: ACTIVE — Cash: $1,000.50 — Buying Power: $2,001.00", acct[0].Message)
	assert.Equal(t, notification.LevelError, acct[1].Level)
	assert.Equal(t, "Account error: failed to list positions: timeout", acct[1].Message)
}

func TestRender_DefaultCredentials(t *testing.T) {
	fake := brokertest.NewClient()
	r := NewRenderer(Options{
		Connect: func(ctx context.Context, creds broker.Credentials, env broker.Environment) (*broker.Session, error) {
			return broker.ConnectWith(ctx, fake.Dialer(), creds, env)
		},
		Provider: func(broker.Credentials) candles.Provider { return &fakeProvider{} },
		DefaultCredentials: func(env broker.Environment) broker.Credentials {
			if env == broker.Live {
				return broker.Credentials{}
			}
			return broker.Credentials{APIKey: "PKENV", APISecret: "envsecret"}
		},
	})

	page := r.Render(context.Background(), DefaultInputs())
	assert.True(t, page.Connected)
	assert.False(t, page.OrderPanel, "default keys are read-only")
	assert.NotNil(t, page.Account)
	assert.Contains(t, messages(page.NoticesFor("order")), msgServerKeysOnly)
	require.Len(t, fake.Opts, 1)
	assert.Equal(t, "PKENV", fake.Opts[0].APIKey)

	in := DefaultInputs()
	in.Environment = broker.Live
	page = r.Render(context.Background(), in)
	assert.False(t, page.Connected)
}

func TestRender_DefaultCredentialsCannotPlaceOrders(t *testing.T) {
	fake := brokertest.NewClient()
	r := NewRenderer(Options{
		Connect: func(ctx context.Context, creds broker.Credentials, env broker.Environment) (*broker.Session, error) {
			return broker.ConnectWith(ctx, fake.Dialer(), creds, env)
		},
		Provider: func(broker.Credentials) candles.Provider { return &fakeProvider{} },
		DefaultCredentials: func(broker.Environment) broker.Credentials {
			return broker.Credentials{APIKey: "AKLIVE", APISecret: "livesecret"}
		},
	})

	in := DefaultInputs()
	in.Environment = broker.Live
	in.Symbol = "GME"
	in.Order.Quantity = 500
	in.Token = "tok-5"
	in.PlaceOrder = true
	page := r.Render(context.Background(), in)

	assert.Empty(t, fake.Placed())
	assert.Nil(t, page.Order)
	orderNotices := page.NoticesFor("order")
	require.Len(t, orderNotices, 1)
	assert.Equal(t, notification.LevelError, orderNotices[0].Level)
	assert.Equal(t, msgServerKeysOnly, orderNotices[0].Message)

	in.Credentials = testCreds
	page = r.Render(context.Background(), in)
	require.Len(t, fake.Placed(), 1, "the caller's own keys can trade")
	assert.True(t, page.OrderPanel)
}

func TestRender_PlaceOrderWithoutToken(t *testing.T) {
	fake := brokertest.NewClient()
	r := newTestRenderer(fake, &fakeProvider{}, "")

	in := DefaultInputs()
	in.Credentials = testCreds
	in.PlaceOrder = true
	page := r.Render(context.Background(), in)

	assert.Empty(t, fake.Placed())
	assert.Equal(t, []string{msgMissingToken}, messages(page.NoticesFor("order")))
}

func TestRender_SubPennyTargetsCreateNoExits(t *testing.T) {
	fake := brokertest.NewClient()
	r := newTestRenderer(fake, &fakeProvider{}, "")

	in := DefaultInputs()
	in.Credentials = testCreds
	in.PlaceOrder = true
	in.Token = "tok-6"
	in.Order.TakeProfit = 0.004
	page := r.Render(context.Background(), in)

	require.Len(t, fake.Placed(), 1)
	assert.Equal(t, []string{"Order submitted: id=order-1 status=accepted"}, messages(page.NoticesFor("order")))
}

func TestRender_ChartErrorIsIsolated(t *testing.T) {
	fake := brokertest.NewClient()
	provider := &fakeProvider{
		errs:   map[string]error{"5d/1h": errors.New("yahoo unavailable")},
		series: map[string]types.Series{"6mo/1d": risingSeries(60)},
	}
	r := newTestRenderer(fake, provider, "")

	in := DefaultInputs()
	in.Credentials = testCreds
	page := r.Render(context.Background(), in)

	assert.Nil(t, page.Chart)
	assert.Contains(t, messages(page.NoticesFor("chart")), "Chart error: yahoo unavailable")
	require.NotNil(t, page.Signal)
	assert.Equal(t, types.SignalBuy, page.Signal.Signal)
	assert.True(t, page.Connected)
	assert.NotNil(t, page.Account)
}

func TestRender_EmptyChart(t *testing.T) {
	r := newTestRenderer(brokertest.NewClient(), &fakeProvider{}, "")

	page := r.Render(context.Background(), DefaultInputs())

	assert.Nil(t, page.Chart)
	assert.Nil(t, page.LatestPrice)
	chartNotices := page.NoticesFor("chart")
	require.Len(t, chartNotices, 1)
	assert.Equal(t, notification.LevelInfo, chartNotices[0].Level)
	assert.Equal(t, msgNoChartData, chartNotices[0].Message)
}

func TestRender_Signal(t *testing.T) {
	provider := &fakeProvider{series: map[string]types.Series{"6mo/1d": risingSeries(60)}}
	r := newTestRenderer(brokertest.NewClient(), provider, "")

	in := DefaultInputs()
	in.Symbol = "MSFT"
	page := r.Render(context.Background(), in)

	require.NotNil(t, page.Signal)
	assert.Equal(t, types.SignalBuy, page.Signal.Signal)
	assert.Equal(t, []string{"SMA Signal: BUY"}, messages(page.NoticesFor("signal")))

	var signalReq *candles.Request
	for i := range provider.calls {
		if provider.calls[i].Period == "6mo" {
			signalReq = &provider.calls[i]
		}
	}
	require.NotNil(t, signalReq, "signal uses its own daily history")
	assert.Equal(t, "MSFT", signalReq.Symbol)
	assert.Equal(t, "1d", signalReq.Interval)
}

func TestRender_SignalInsufficientData(t *testing.T) {
	provider := &fakeProvider{series: map[string]types.Series{"6mo/1d": risingSeries(30)}}
	r := newTestRenderer(brokertest.NewClient(), provider, "")

	page := r.Render(context.Background(), DefaultInputs())

	assert.Nil(t, page.Signal)
	assert.Equal(t, []string{msgNoSignal}, messages(page.NoticesFor("signal")))
}

func TestRender_PlaceOrderWithExits(t *testing.T) {
	fake := brokertest.NewClient()
	r := newTestRenderer(fake, &fakeProvider{}, order.Independent)

	in := DefaultInputs()
	in.Credentials = testCreds
	in.PlaceOrder = true
	in.Token = "tok-1"
	in.Order.Quantity = 5
	in.Order.TakeProfit = 210
	in.Order.StopLoss = 190
	page := r.Render(context.Background(), in)

	placed := fake.Placed()
	require.Len(t, placed, 3)
	assert.Equal(t, "tok-1", placed[0].ClientOrderID)
	assert.Equal(t, alpaca.Buy, placed[0].Side)
	assert.Equal(t, alpaca.Sell, placed[1].Side)
	assert.Equal(t, alpaca.Limit, placed[1].Type)
	assert.Equal(t, alpaca.Stop, placed[2].Type)

	require.NotNil(t, page.Order)
	assert.Equal(t, "order-1", page.Order.Primary.ID)
	assert.Equal(t, []string{
		"Order submitted: id=order-1 status=accepted",
		"Take profit / Stop loss targets created as separate orders (paper testing recommended).",
	}, messages(page.NoticesFor("order")))
	assert.NotEqual(t, in.Token, page.SubmitToken)
}

func TestRender_PlaceOrderOCO(t *testing.T) {
	fake := brokertest.NewClient()
	r := newTestRenderer(fake, &fakeProvider{}, order.OCO)

	in := DefaultInputs()
	in.Credentials = testCreds
	in.PlaceOrder = true
	in.Token = "tok-2"
	in.Order.TakeProfit = 210
	in.Order.StopLoss = 190
	page := r.Render(context.Background(), in)

	require.Len(t, fake.Placed(), 2)
	assert.Equal(t, alpaca.OCO, fake.Placed()[1].OrderClass)
	assert.Contains(t, messages(page.NoticesFor("order")), "Take profit / Stop loss targets linked as one OCO order.")
}

func TestRender_ExitFailureKeepsPrimary(t *testing.T) {
	fake := brokertest.NewClient()
	fake.OrderErrs = map[int]error{1: errors.New("insufficient qty")}
	r := newTestRenderer(fake, &fakeProvider{}, order.Independent)

	in := DefaultInputs()
	in.Credentials = testCreds
	in.PlaceOrder = true
	in.Token = "tok-2"
	in.Order.TakeProfit = 210
	in.Order.StopLoss = 190
	page := r.Render(context.Background(), in)

	require.Len(t, fake.Placed(), 1, "stop loss is not attempted after take profit fails")
	msgs := messages(page.NoticesFor("order"))
	require.Len(t, msgs, 2)
	assert.Equal(t, "Order submitted: id=order-1 status=accepted", msgs[0])
	assert.True(t, strings.HasPrefix(msgs[1], "Could not create TP/SL orders: "))
	assert.Contains(t, msgs[1], "insufficient qty")
}

func TestRender_PrimaryOrderRejected(t *testing.T) {
	fake := brokertest.NewClient()
	fake.OrderErrs = map[int]error{0: errors.New("market closed")}
	r := newTestRenderer(fake, &fakeProvider{}, "")

	in := DefaultInputs()
	in.Credentials = testCreds
	in.PlaceOrder = true
	in.Token = "tok-3"
	in.Order.TakeProfit = 210
	page := r.Render(context.Background(), in)

	assert.Nil(t, page.Order)
	assert.Empty(t, fake.Placed())
	msgs := messages(page.NoticesFor("order"))
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "market closed")
}

func TestRender_InvalidOrderNotSent(t *testing.T) {
	fake := brokertest.NewClient()
	r := newTestRenderer(fake, &fakeProvider{}, "")

	in := DefaultInputs()
	in.Credentials = testCreds
	in.PlaceOrder = true
	in.Token = "tok-4"
	in.Order.Type = order.Limit
	in.Order.LimitPrice = 0
	page := r.Render(context.Background(), in)

	assert.Empty(t, fake.Placed())
	assert.Nil(t, page.Order)
	require.Len(t, page.NoticesFor("order"), 1)
	assert.Equal(t, notification.LevelError, page.NoticesFor("order")[0].Level)
}
