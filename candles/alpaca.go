package candles

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	log "github.com/sirupsen/logrus"

	"github.com/rileyseaburg/quantum-fox/types"
)

// BarsClient is the part of the Alpaca market-data client used for candles
type BarsClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// Alpaca implements Provider over the Alpaca market-data API
type Alpaca struct {
	client BarsClient
	feed   string
	now    func() time.Time
}

// NewAlpaca creates a provider with a market-data client for the given keys
func NewAlpaca(apiKey, apiSecret, feed string) *Alpaca {
	client := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	})
	return NewAlpacaWithClient(client, feed)
}

// NewAlpacaWithClient wraps an existing bars client
func NewAlpacaWithClient(client BarsClient, feed string) *Alpaca {
	return &Alpaca{client: client, feed: feed, now: time.Now}
}

func (a *Alpaca) Name() string { return "alpaca" }

// Candles fetches bars for the lookback window ending now
func (a *Alpaca) Candles(ctx context.Context, req Request) (types.Series, error) {
	req, err := req.Normalize()
	if err != nil {
		return types.Series{}, err
	}
	if err := ctx.Err(); err != nil {
		return types.Series{}, err
	}

	timeframe, err := ParseTimeFrame(req.Interval)
	if err != nil {
		return types.Series{}, err
	}
	end := a.now()
	start, err := PeriodStart(req.Period, end)
	if err != nil {
		return types.Series{}, err
	}

	bars, err := a.client.GetBars(req.Symbol, marketdata.GetBarsRequest{
		TimeFrame: timeframe,
		Start:     start,
		End:       end,
		Feed:      marketdata.Feed(a.feed),
	})
	if err != nil {
		return types.Series{}, fmt.Errorf("failed to fetch alpaca bars: %w", err)
	}

	series := emptySeries(req)
	if len(bars) > 0 {
		series.Candles = make([]types.Candle, len(bars))
	}
	for i, bar := range bars {
		series.Candles[i] = types.Candle{
			Timestamp: bar.Timestamp,
			Open:      bar.Open,
			High:      bar.High,
			Low:       bar.Low,
			Close:     bar.Close,
			Volume:    float64(bar.Volume),
		}
	}

	log.WithFields(log.Fields{
		"symbol":    req.Symbol,
		"timeframe": GetTimeFrameName(timeframe),
		"start":     start.Format("2006-01-02"),
		"bars":      len(bars),
	}).Debug("fetched alpaca bars")

	return series, nil
}

// ParseTimeFrame converts a chart interval (e.g. "15m") to Alpaca's TimeFrame type
func ParseTimeFrame(interval string) (marketdata.TimeFrame, error) {
	switch interval {
	case "1m":
		return marketdata.OneMin, nil
	case "5m":
		return marketdata.NewTimeFrame(5, marketdata.Min), nil
	case "15m":
		return marketdata.NewTimeFrame(15, marketdata.Min), nil
	case "1h":
		return marketdata.OneHour, nil
	case "1d":
		return marketdata.OneDay, nil
	default:
		return marketdata.TimeFrame{}, fmt.Errorf("%w: %q", ErrUnsupportedInterval, interval)
	}
}

// GetTimeFrameName returns a human-readable name for the timeframe
func GetTimeFrameName(tf marketdata.TimeFrame) string {
	switch tf {
	case marketdata.OneMin:
		return "1 Minute"
	case marketdata.OneHour:
		return "1 Hour"
	case marketdata.OneDay:
		return "1 Day"
	default:
		if tf.Unit == marketdata.Min {
			return fmt.Sprintf("%d Minutes", tf.N)
		}
		return fmt.Sprintf("%d %s", tf.N, tf.Unit)
	}
}
