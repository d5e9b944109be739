package order

import (
	"fmt"
	"strings"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Placer submits a single order to the broker. *broker.Session satisfies it.
type Placer interface {
	PlaceOrder(req alpaca.PlaceOrderRequest) (*alpaca.Order, error)
}

// ExitMode controls how take-profit and stop-loss orders are submitted
type ExitMode string

const (
	// Independent submits each exit as its own unlinked order. Both can
	// stay live and both can fill.
	Independent ExitMode = "independent"
	// OCO links both exits in one one-cancels-other order when both are set
	OCO ExitMode = "oco"
)

// ParseExitMode accepts "independent" or "oco"; empty means Independent
func ParseExitMode(s string) (ExitMode, error) {
	switch ExitMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", Independent:
		return Independent, nil
	case OCO:
		return OCO, nil
	default:
		return "", fmt.Errorf("unknown exit mode %q", s)
	}
}

// Result is the broker's answer to one submitted order
type Result struct {
	ID            string           `json:"id"`
	ClientOrderID string           `json:"client_order_id"`
	Status        string           `json:"status"`
	Side          string           `json:"side"`
	Type          string           `json:"type"`
	OrderClass    string           `json:"order_class,omitempty"`
	Quantity      int              `json:"qty"`
	LimitPrice    *decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice     *decimal.Decimal `json:"stop_price,omitempty"`
}

// Outcome of a submission. Primary is always set when Submit returns no
// error; ExitErr reports a failed exit order with the primary left in place.
type Outcome struct {
	Primary Result   `json:"primary"`
	Exits   []Result `json:"exits,omitempty"`
	ExitErr error    `json:"-"`
}

// Submitter places the primary order and its exit orders
type Submitter struct {
	placer Placer
	mode   ExitMode
}

// NewSubmitter creates a submitter that places orders through p
func NewSubmitter(p Placer, mode ExitMode) *Submitter {
	if mode == "" {
		mode = Independent
	}
	return &Submitter{placer: p, mode: mode}
}

// Submit validates req, places the primary order and then any exits.
// token becomes the primary's client order id so a re-posted form is
// rejected by the broker as a duplicate; an empty token gets a fresh id.
func (s *Submitter) Submit(req Request, token string) (*Outcome, error) {
	req = req.RoundPrices()
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if token == "" {
		token = uuid.NewString()
	}

	primaryReq := primaryRequest(req, token)
	primary, err := s.place(primaryReq)
	if err != nil {
		return nil, fmt.Errorf("failed to place %s order: %w", req.Side, err)
	}

	logger := log.WithFields(log.Fields{"symbol": req.Symbol, "side": req.Side, "qty": req.Quantity})
	logger.WithField("order_id", primary.ID).Info("primary order placed")

	outcome := &Outcome{Primary: primary}
	if !req.HasExits() {
		return outcome, nil
	}

	for _, exitReq := range s.exitRequests(req, token) {
		exit, err := s.place(exitReq)
		if err != nil {
			outcome.ExitErr = fmt.Errorf("failed to place %s exit order: %w", exitReq.Type, err)
			logger.WithError(err).Warn("exit order rejected, primary order stays live")
			return outcome, nil
		}
		outcome.Exits = append(outcome.Exits, exit)
	}

	logger.WithField("exits", len(outcome.Exits)).Info("exit orders placed")
	return outcome, nil
}

func (s *Submitter) place(req alpaca.PlaceOrderRequest) (Result, error) {
	order, err := s.placer.PlaceOrder(req)
	if err != nil {
		return Result{}, err
	}
	if order == nil {
		return Result{}, fmt.Errorf("broker returned no order")
	}
	return Result{
		ID:            order.ID,
		ClientOrderID: req.ClientOrderID,
		Status:        string(order.Status),
		Side:          string(req.Side),
		Type:          string(req.Type),
		OrderClass:    string(req.OrderClass),
		Quantity:      int(req.Qty.IntPart()),
		LimitPrice:    req.LimitPrice,
		StopPrice:     req.StopPrice,
	}, nil
}

func primaryRequest(req Request, token string) alpaca.PlaceOrderRequest {
	qty := decimal.NewFromInt(int64(req.Quantity))
	orderReq := alpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          alpacaSide(req.Side),
		Type:          alpaca.Market,
		TimeInForce:   alpaca.GTC,
		ClientOrderID: token,
	}
	if req.Type == Limit {
		orderReq.Type = alpaca.Limit
		orderReq.LimitPrice = price(req.LimitPrice)
	}
	return orderReq
}

func (s *Submitter) exitRequests(req Request, token string) []alpaca.PlaceOrderRequest {
	qty := decimal.NewFromInt(int64(req.Quantity))
	side := alpacaSide(req.Side.Opposite())

	if s.mode == OCO && req.TakeProfit > 0 && req.StopLoss > 0 {
		return []alpaca.PlaceOrderRequest{{
			Symbol:        req.Symbol,
			Qty:           &qty,
			Side:          side,
			Type:          alpaca.Limit,
			TimeInForce:   alpaca.GTC,
			OrderClass:    alpaca.OCO,
			TakeProfit:    &alpaca.TakeProfit{LimitPrice: price(req.TakeProfit)},
			StopLoss:      &alpaca.StopLoss{StopPrice: price(req.StopLoss)},
			ClientOrderID: token + "-oco",
		}}
	}

	var reqs []alpaca.PlaceOrderRequest
	if req.TakeProfit > 0 {
		reqs = append(reqs, alpaca.PlaceOrderRequest{
			Symbol:        req.Symbol,
			Qty:           &qty,
			Side:          side,
			Type:          alpaca.Limit,
			TimeInForce:   alpaca.GTC,
			LimitPrice:    price(req.TakeProfit),
			ClientOrderID: token + "-tp",
		})
	}
	if req.StopLoss > 0 {
		reqs = append(reqs, alpaca.PlaceOrderRequest{
			Symbol:        req.Symbol,
			Qty:           &qty,
			Side:          side,
			Type:          alpaca.Stop,
			TimeInForce:   alpaca.GTC,
			StopPrice:     price(req.StopLoss),
			ClientOrderID: token + "-sl",
		})
	}
	return reqs
}

func alpacaSide(s Side) alpaca.Side {
	if s == Sell {
		return alpaca.Sell
	}
	return alpaca.Buy
}

// price rounds to cents to avoid sub-penny increments
func price(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v).Round(2)
	return &d
}
