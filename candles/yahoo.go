package candles

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"

	"github.com/rileyseaburg/quantum-fox/types"
)

const DefaultYahooBaseURL = "https://query1.finance.yahoo.com"

// Yahoo implements Provider over the Yahoo Finance chart API
type Yahoo struct {
	client *resty.Client
}

// NewYahoo creates a Yahoo chart client. An empty baseURL selects the public endpoint.
func NewYahoo(baseURL string, timeout time.Duration) *Yahoo {
	if baseURL == "" {
		baseURL = DefaultYahooBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("User-Agent", "Mozilla/5.0").
		SetHeader("Accept", "application/json")

	return &Yahoo{client: client}
}

func (y *Yahoo) Name() string { return "yahoo" }

// yahooChart is the response body of /v8/finance/chart
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Candles fetches the chart for req.Symbol over req.Period at req.Interval
func (y *Yahoo) Candles(ctx context.Context, req Request) (types.Series, error) {
	req, err := req.Normalize()
	if err != nil {
		return types.Series{}, err
	}

	resp, err := y.client.R().
		SetContext(ctx).
		SetPathParam("symbol", req.Symbol).
		SetQueryParams(map[string]string{
			"range":    req.Period,
			"interval": req.Interval,
		}).
		Get("/v8/finance/chart/{symbol}")
	if err != nil {
		return types.Series{}, fmt.Errorf("yahoo fetch: %w", err)
	}

	var chart yahooChart
	decodeErr := json.Unmarshal(resp.Body(), &chart)

	// Yahoo answers unknown symbols with 404 "Not Found" and intraday
	// intervals outside their retention window with 422 "data not available"
	if decodeErr == nil && chart.Chart.Error != nil && isNoData(chart.Chart.Error.Code, chart.Chart.Error.Description) {
		log.WithFields(log.Fields{
			"symbol":   req.Symbol,
			"period":   req.Period,
			"interval": req.Interval,
		}).Debugf("yahoo has no chart: %s", chart.Chart.Error.Description)
		return emptySeries(req), nil
	}
	if resp.StatusCode() != http.StatusOK {
		return types.Series{}, fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode(), truncate(resp.String(), 200))
	}
	if decodeErr != nil {
		return types.Series{}, fmt.Errorf("yahoo decode: %w", decodeErr)
	}
	if chart.Chart.Error != nil {
		return types.Series{}, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}

	series := emptySeries(req)
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 {
		return series, nil
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return series, nil
	}
	quote := result.Indicators.Quote[0]

	series.Candles = make([]types.Candle, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		o, okO := at(quote.Open, i)
		h, okH := at(quote.High, i)
		l, okL := at(quote.Low, i)
		c, okC := at(quote.Close, i)
		if !okO || !okH || !okL || !okC {
			continue // null bar (halt, holiday)
		}
		v, _ := at(quote.Volume, i)
		series.Candles = append(series.Candles, types.Candle{
			Timestamp: time.Unix(ts, 0).UTC(),
			Open:      o,
			High:      h,
			Low:       l,
			Close:     c,
			Volume:    v,
		})
	}

	sort.Slice(series.Candles, func(i, j int) bool {
		return series.Candles[i].Timestamp.Before(series.Candles[j].Timestamp)
	})

	log.WithFields(log.Fields{
		"symbol":   req.Symbol,
		"period":   req.Period,
		"interval": req.Interval,
		"bars":     len(series.Candles),
	}).Debug("fetched yahoo chart")

	return series, nil
}

func at(values []*float64, i int) (float64, bool) {
	if i >= len(values) || values[i] == nil {
		return 0, false
	}
	return *values[i], true
}

func isNoData(code, description string) bool {
	switch {
	case strings.EqualFold(code, "Not Found"):
		return true
	case strings.EqualFold(code, "Unprocessable Entity"):
		return strings.Contains(strings.ToLower(description), "data not available")
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
