// Package execution places approved orders on the exchange under a rolling
// call budget. After too many consecutive external failures it disconnects
// from the exchange for the rest of the session and simulates fills instead.
package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradeledger/src/connectors"
	"tradeledger/src/metrics"
	"tradeledger/src/model"
	"tradeledger/src/retry"
)

// ErrDeferred means the live attempt failed transiently; the order stays
// queued and is retried on a later tick.
var ErrDeferred = errors.New("execution deferred")

var errSilenced = errors.New("live exchange disconnected for this session")

// PriceObserver receives prices seen while executing, typically the quote cache.
type PriceObserver interface {
	Observe(ctx context.Context, symbol string, price decimal.Decimal)
}

// Holdings reports how many units of a symbol the ledger holds.
type Holdings interface {
	HeldQuantity(ctx context.Context, symbol string) (decimal.Decimal, error)
}

type Client struct {
	exchange connectors.Exchange
	budget   *Budget
	observer PriceObserver
	holdings Holdings
	config   Config
	policy   retry.Policy

	mu        sync.Mutex
	streak    int
	simulated bool
	now       func() time.Time
}

// NewClient accepts a nil exchange, in which case the session starts in
// simulation mode.
func NewClient(exchange connectors.Exchange, budget *Budget, observer PriceObserver, config Config) *Client {
	c := &Client{
		exchange:  exchange,
		budget:    budget,
		observer:  observer,
		config:    config,
		simulated: exchange == nil,
		now:       time.Now,
	}
	c.policy = retry.Policy{
		Attempts:   config.RetryAttempts,
		BaseDelay:  config.RetryBase,
		MaxBackoff: config.RetryMax,
		Retryable:  connectors.IsTransient,
	}
	if c.simulated {
		metrics.ExecutionSimulated.Set(1)
	}
	return c
}

// WithHoldings caps simulated sells at the held quantity.
func (c *Client) WithHoldings(h Holdings) *Client {
	c.holdings = h
	return c
}

// Simulated reports whether the silence protocol has tripped.
func (c *Client) Simulated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.simulated
}

// Streak returns the current consecutive external failure count.
func (c *Client) Streak() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streak
}

// Execute runs one APPROVED order. It returns a fill (FILLED or REJECTED), or
// ErrDeferred when the exchange failed transiently and the order should stay
// queued. A deferred attempt still comes with an ERROR fill describing it.
func (c *Client) Execute(ctx context.Context, order *model.Order) (*Fill, error) {
	if order == nil || !order.Amount.IsPositive() || !order.ReferencePrice.IsPositive() {
		return nil, fmt.Errorf("%w: order without amount or reference price", model.ErrValidation)
	}

	if c.Simulated() {
		return c.simulate(ctx, order), nil
	}

	start := c.now()
	fill, err := c.executeLive(ctx, order)
	if errors.Is(err, errSilenced) || (errors.Is(err, ErrDeferred) && c.Simulated()) {
		// The failure that tripped the protocol hands this order to simulation.
		return c.simulate(ctx, order), nil
	}
	if errors.Is(err, ErrDeferred) {
		return &Fill{
			Status:       model.FillStatusError,
			Mode:         model.ExecutionModeLive,
			OrderedPrice: order.ReferencePrice,
			Latency:      c.now().Sub(start),
			Error:        err.Error(),
		}, err
	}
	return fill, err
}

func (c *Client) executeLive(ctx context.Context, order *model.Order) (*Fill, error) {
	start := c.now()

	var market decimal.Decimal
	err := c.call(ctx, "quote", func(ctx context.Context) error {
		p, err := c.exchange.GetTicker(ctx, order.Symbol)
		if err != nil {
			return err
		}
		if !p.IsPositive() {
			return fmt.Errorf("%w: non-positive ticker %s", connectors.ErrUnavailable, p)
		}
		market = p
		return nil
	})
	if err != nil {
		return nil, c.deferOrReject(order, err)
	}
	if c.observer != nil {
		c.observer.Observe(ctx, order.Symbol, market)
	}

	limit := c.limitPrice(order.Side, market)
	qty := c.quantity(order, limit)
	if !qty.IsPositive() {
		return c.rejected(order, limit, "quantity rounds to zero"), nil
	}

	if reason, err := c.checkBalance(ctx, order, qty, limit); err != nil {
		return nil, c.deferOrReject(order, err)
	} else if reason != "" {
		return c.rejected(order, limit, reason), nil
	}

	var ack *connectors.OrderAck
	err = c.call(ctx, "order", func(ctx context.Context) error {
		a, err := c.exchange.PlaceLimitOrder(ctx, connectors.LimitOrderRequest{
			Symbol:        order.Symbol,
			Side:          order.Side,
			Quantity:      qty,
			Price:         limit,
			ClientOrderID: clientOrderID(order),
		})
		ack = a
		return err
	})
	if err != nil {
		if errors.Is(err, connectors.ErrRejected) {
			return c.rejected(order, limit, err.Error()), nil
		}
		return nil, c.deferOrReject(order, err)
	}
	if !ack.Filled() {
		return c.rejected(order, limit, "limit order not filled: "+ack.Status), nil
	}

	notional := ack.QuoteQty
	if !notional.IsPositive() {
		notional = ack.ExecutedQty.Mul(ack.ExecutedPrice)
	}

	fill := &Fill{
		Status:          model.FillStatusFilled,
		Mode:            model.ExecutionModeLive,
		Quantity:        ack.ExecutedQty,
		Notional:        notional,
		OrderedPrice:    order.ReferencePrice,
		LimitPrice:      limit,
		ExecutedPrice:   ack.ExecutedPrice,
		SlippagePct:     slippage(order.ReferencePrice, ack.ExecutedPrice),
		Fee:             ack.Fee,
		Latency:         c.now().Sub(start),
		ExchangeOrderID: ack.ExchangeOrderID,
	}

	logger.WithFields(map[string]interface{}{
		"component": "ExecutionClient",
		"order_id":  order.ID,
		"symbol":    order.Symbol,
		"side":      order.Side,
		"qty":       fill.Quantity.String(),
		"price":     fill.ExecutedPrice.String(),
	}).Info("Live order filled")

	return fill, nil
}

// checkBalance returns a rejection reason when the account cannot cover the order.
func (c *Client) checkBalance(ctx context.Context, order *model.Order, qty, limit decimal.Decimal) (string, error) {
	asset := c.config.QuoteAsset
	need := qty.Mul(limit)
	if order.Side == model.SideSell {
		base, _, err := connectors.SplitSymbol(order.Symbol, c.config.QuoteAsset)
		if err != nil {
			return err.Error(), nil
		}
		asset = base
		need = qty
	}

	var balance decimal.Decimal
	err := c.call(ctx, "balance", func(ctx context.Context) error {
		b, err := c.exchange.GetBalance(ctx, asset)
		balance = b
		return err
	})
	if err != nil {
		return "", err
	}
	if balance.LessThan(need) {
		return fmt.Sprintf("insufficient %s balance: have %s, need %s", asset, balance, need), nil
	}
	return "", nil
}

// call runs one external request under the budget, the timeout and the
// shared retry policy, and feeds the silence protocol.
func (c *Client) call(ctx context.Context, kind string, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, c.policy, func(ctx context.Context) error {
		if c.Simulated() {
			return retry.Permanent(errSilenced)
		}
		if err := c.budget.Acquire(ctx); err != nil {
			return retry.Permanent(err)
		}

		callCtx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
		err := fn(callCtx)
		cancel()

		if err == nil {
			metrics.ExecutionCalls.WithLabelValues(kind, "ok").Inc()
			c.recordSuccess()
			return nil
		}
		if errors.Is(err, connectors.ErrRejected) {
			// The venue answered; a business rejection is not a degraded dependency.
			metrics.ExecutionCalls.WithLabelValues(kind, "rejected").Inc()
			c.recordSuccess()
			return err
		}
		metrics.ExecutionCalls.WithLabelValues(kind, "error").Inc()
		if ctx.Err() == nil {
			c.recordFailure(kind, err)
		}
		return err
	})
}

func (c *Client) recordSuccess() {
	c.mu.Lock()
	c.streak = 0
	c.mu.Unlock()
}

func (c *Client) recordFailure(kind string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.streak++
	fields := map[string]interface{}{
		"component": "ExecutionClient",
		"call":      kind,
		"streak":    c.streak,
		"ceiling":   c.config.SilenceCeiling,
	}
	if c.config.SilenceCeiling > 0 && c.streak >= c.config.SilenceCeiling && !c.simulated {
		c.simulated = true
		metrics.ExecutionSimulated.Set(1)
		logger.WithFields(fields).WithError(err).Warn("Silence protocol tripped, switching to simulation for this session")
		return
	}
	logger.WithFields(fields).WithError(err).Warn("Exchange call failed")
}

func (c *Client) deferOrReject(order *model.Order, err error) error {
	if errors.Is(err, errSilenced) {
		return errSilenced
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: order %d: %v", ErrDeferred, order.ID, err)
}

func (c *Client) rejected(order *model.Order, limit decimal.Decimal, reason string) *Fill {
	logger.WithFields(map[string]interface{}{
		"component": "ExecutionClient",
		"order_id":  order.ID,
		"reason":    reason,
	}).Warn("Order rejected by execution")

	return &Fill{
		Status:       model.FillStatusRejected,
		Mode:         model.ExecutionModeLive,
		OrderedPrice: order.ReferencePrice,
		LimitPrice:   limit,
		Error:        reason,
	}
}

// limitPrice offsets the market by the safety margin: buy below, sell above.
func (c *Client) limitPrice(side string, market decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if side == model.SideSell {
		return market.Mul(one.Add(c.config.PriceMargin))
	}
	return market.Mul(one.Sub(c.config.PriceMargin))
}

// quantity resolves the order amount to units at price, rounded down to the
// exchange precision.
func (c *Client) quantity(order *model.Order, price decimal.Decimal) decimal.Decimal {
	qty := order.Amount
	if order.AmountType != model.AmountQuantity {
		qty = order.Amount.Div(price)
	}
	return qty.Truncate(c.config.QtyPrecision)
}

func clientOrderID(order *model.Order) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("tl%d-%s", order.ID, id[:12])
}
