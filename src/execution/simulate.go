package execution

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradeledger/src/model"
)

// simulate synthesizes a fill around the reference price. The random source
// is seeded from the configured seed and the order id, so the same order
// always simulates to the same fill. A SELL never fills more than the ledger
// holds.
func (c *Client) simulate(ctx context.Context, order *model.Order) *Fill {
	rng := rand.New(rand.NewSource(c.config.SimSeed + int64(order.ID)))

	// Uniform in [-max, +max].
	slip := c.config.SimMaxSlippage.Mul(decimal.NewFromFloat(rng.Float64()*2 - 1)).Round(8)
	executed := order.ReferencePrice.Mul(decimal.NewFromInt(1).Add(slip))

	var latency time.Duration
	if c.config.SimMaxLatency > 0 {
		latency = time.Duration(rng.Int63n(int64(c.config.SimMaxLatency)))
	}

	var qty, notional decimal.Decimal
	if order.AmountType == model.AmountQuantity {
		qty = order.Amount
		notional = qty.Mul(executed)
	} else {
		notional = order.Amount
		qty = notional.DivRound(executed, 12)
	}

	if order.Side == model.SideSell && c.holdings != nil {
		held, err := c.holdings.HeldQuantity(ctx, order.Symbol)
		switch {
		case err != nil:
			logger.WithFields(map[string]interface{}{
				"component": "ExecutionClient",
				"order_id":  order.ID,
				"symbol":    order.Symbol,
			}).WithError(err).Warn("Held quantity unavailable, simulating uncapped")
		case !held.IsPositive():
			fill := c.rejected(order, order.ReferencePrice, "nothing held to sell")
			fill.Mode = model.ExecutionModeSimulated
			return fill
		case qty.GreaterThan(held):
			qty = held
			notional = qty.Mul(executed)
		}
	}

	fill := &Fill{
		Status:          model.FillStatusFilled,
		Mode:            model.ExecutionModeSimulated,
		Quantity:        qty,
		Notional:        notional,
		OrderedPrice:    order.ReferencePrice,
		LimitPrice:      c.limitPrice(order.Side, order.ReferencePrice),
		ExecutedPrice:   executed,
		SlippagePct:     slip,
		Latency:         latency,
		ExchangeOrderID: simulatedOrderID(c.config.SimSeed, order.ID),
	}

	logger.WithFields(map[string]interface{}{
		"component": "ExecutionClient",
		"order_id":  order.ID,
		"symbol":    order.Symbol,
		"side":      order.Side,
		"price":     executed.String(),
		"mode":      fill.Mode,
	}).Info("Simulated fill")

	return fill
}

// simulatedOrderID is stable for a given seed and order.
func simulatedOrderID(seed int64, orderID uint) string {
	return "sim-" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%d/%d", seed, orderID))).String()
}
