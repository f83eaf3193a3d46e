// Package ledger applies fills to positions and cash buckets. Every change
// is one serialized transaction: either the whole fill lands or nothing does.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeledger/src/execution"
	"tradeledger/src/metrics"
	"tradeledger/src/model"
	"tradeledger/src/orders"
	"tradeledger/src/repository"
	"tradeledger/src/serializer"
)

// ErrAlreadyApplied is returned when the order is no longer APPROVED, i.e.
// its fill was applied (or it was retired) before.
var ErrAlreadyApplied = errors.New("fill already applied")

type Engine struct {
	db     *gorm.DB
	writer serializer.Writer
	config Config
	now    func() time.Time
}

func NewEngine(db *gorm.DB, writer serializer.Writer, config Config) *Engine {
	return &Engine{
		db:     db,
		writer: writer,
		config: config,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Applied describes the effect of one fill.
type Applied struct {
	OrderID   uint
	Side      string
	Fee       decimal.Decimal
	CashDelta decimal.Decimal // change of the trading bucket
	Position  model.Position
	Realized  *model.RealizedPnL // SELL only
}

// ApplyFill books a FILLED fill against the order's position and the cash
// buckets and retires the order as DONE, all in one transaction. On any
// failure the transaction rolls back, the order is marked FAILED in a
// separate write and the returned error wraps model.ErrAccounting.
// Once called with a filled execution, booking ignores cancellation of ctx.
func (e *Engine) ApplyFill(ctx context.Context, order *model.Order, fill *execution.Fill) (*Applied, error) {
	if order == nil || !fill.Filled() {
		return nil, fmt.Errorf("%w: apply requires a filled execution", model.ErrValidation)
	}
	ctx = context.WithoutCancel(ctx)

	var applied *Applied
	err := e.writer.Submit(ctx, serializer.PriorityLedger, "ledger.apply_fill", func(tx *gorm.DB) error {
		a, err := e.apply(ctx, tx, order, fill)
		applied = a
		return err
	})
	if err == nil {
		metrics.LedgerFills.WithLabelValues(order.Side, "applied").Inc()
		logger.WithFields(map[string]interface{}{
			"component":  "AccountingEngine",
			"order_id":   order.ID,
			"symbol":     order.Symbol,
			"side":       order.Side,
			"qty":        fill.Quantity.String(),
			"cash_delta": applied.CashDelta.String(),
			"fee":        applied.Fee.String(),
		}).Info("Fill applied")
		return applied, nil
	}

	if errors.Is(err, ErrAlreadyApplied) {
		metrics.LedgerFills.WithLabelValues(order.Side, "duplicate").Inc()
		return nil, err
	}

	metrics.LedgerFills.WithLabelValues(order.Side, "rolled_back").Inc()
	e.retire(ctx, order.ID, err)
	return nil, fmt.Errorf("%w: order %d: %v", model.ErrAccounting, order.ID, err)
}

// retire marks the order FAILED after a rollback and logs freshly read
// balances, since anything computed inside the aborted transaction is void.
func (e *Engine) retire(ctx context.Context, orderID uint, cause error) {
	ctx = context.WithoutCancel(ctx)
	fields := map[string]interface{}{
		"component": "AccountingEngine",
		"order_id":  orderID,
	}

	reason := "accounting rolled back: " + cause.Error()
	err := e.writer.Submit(ctx, serializer.PriorityLedger, "ledger.fail_order", func(tx *gorm.DB) error {
		return orders.Transition(ctx, tx, orderID, model.OrderStatusApproved, model.OrderStatusFailed, reason, e.now())
	})
	if err != nil {
		logger.WithFields(fields).WithError(err).Error("Failed to mark order FAILED after rollback")
	}

	balances, err := e.Balances(ctx)
	if err != nil {
		logger.WithFields(fields).WithError(err).Error("Failed to re-read balances after rollback")
		return
	}
	for bucket, balance := range balances {
		fields["bucket_"+bucket] = balance.String()
	}
	logger.WithFields(fields).WithError(cause).Error("Fill rolled back, order FAILED")
}

func (e *Engine) apply(ctx context.Context, tx *gorm.DB, order *model.Order, fill *execution.Fill) (*Applied, error) {
	orderRepo := repository.NewOrderRepository(tx)
	posRepo := repository.NewPositionRepository(tx)

	current, err := orderRepo.FindByID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("order %d: %w", order.ID, model.ErrNotFound)
	}
	if current.Status != model.OrderStatusApproved {
		return nil, fmt.Errorf("%w: order %d is %s", ErrAlreadyApplied, order.ID, current.Status)
	}

	trading, err := posRepo.FindBucket(ctx, e.config.TradingBucket)
	if err != nil {
		return nil, err
	}
	if trading == nil {
		return nil, fmt.Errorf("cash bucket %s: %w", e.config.TradingBucket, model.ErrNotFound)
	}

	pos, err := posRepo.FindBySymbol(ctx, current.Symbol)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		pos = &model.Position{Symbol: current.Symbol, StrategyTag: current.StrategyTag}
	}

	fee := e.Fee(fill)
	applied := &Applied{OrderID: current.ID, Side: current.Side, Fee: fee}
	before := trading.Balance

	switch current.Side {
	case model.SideBuy:
		cost := fill.Notional.Add(fee)
		qty := pos.Quantity.Add(fill.Quantity)
		pos.AvgCostBasis = pos.CostValue().Add(cost).Div(qty)
		pos.Quantity = qty
		if fill.ExecutedPrice.GreaterThan(pos.PeakPrice) {
			pos.PeakPrice = fill.ExecutedPrice
		}
		if pos.StrategyTag == "" {
			pos.StrategyTag = current.StrategyTag
		}
		trading.Balance = trading.Balance.Sub(cost)

	case model.SideSell:
		if fill.Quantity.GreaterThan(pos.Quantity) {
			return nil, fmt.Errorf("sell of %s %s exceeds held %s", fill.Quantity, current.Symbol, pos.Quantity)
		}
		realized, err := e.sell(ctx, posRepo, current, fill, fee, pos, trading)
		if err != nil {
			return nil, err
		}
		if err := repository.NewPnLRepository(tx).Create(ctx, realized); err != nil {
			return nil, err
		}
		applied.Realized = realized

	default:
		return nil, fmt.Errorf("%w: unknown side %q", model.ErrValidation, current.Side)
	}

	if err := posRepo.Save(ctx, pos); err != nil {
		return nil, err
	}
	if err := posRepo.SaveBucket(ctx, trading); err != nil {
		return nil, err
	}

	reason := fmt.Sprintf("%s fill of %s @ %s", fill.Mode, fill.Quantity, fill.ExecutedPrice)
	if err := orders.Transition(ctx, tx, current.ID, model.OrderStatusApproved, model.OrderStatusDone, reason, e.now()); err != nil {
		return nil, err
	}
	if err := orderRepo.CreateExecutionRecord(ctx, fill.Record(current.ID)); err != nil {
		return nil, err
	}

	applied.CashDelta = trading.Balance.Sub(before)
	applied.Position = *pos
	return applied, nil
}

// sell reduces the position and returns the realized profit row. Positive
// profit is split between the reserve bucket and the trading bucket.
func (e *Engine) sell(
	ctx context.Context,
	posRepo *repository.PositionRepository,
	order *model.Order,
	fill *execution.Fill,
	fee decimal.Decimal,
	pos *model.Position,
	trading *model.CashBucket,
) (*model.RealizedPnL, error) {
	proceeds := fill.Notional.Sub(fee)
	principal := fill.Quantity.Mul(pos.AvgCostBasis)
	profit := proceeds.Sub(principal)

	row := &model.RealizedPnL{
		OrderID:      order.ID,
		Symbol:       order.Symbol,
		ProfitAmount: profit,
		RoiPct:       decimal.Zero,
		CreatedAt:    e.now(),
	}
	if principal.IsPositive() {
		row.RoiPct = profit.Div(principal).Mul(decimal.NewFromInt(100)).Round(8)
	}

	if profit.IsPositive() {
		reserve := profit.Mul(e.config.ReserveRatio)
		recycle := profit.Sub(reserve)

		bucket, err := posRepo.EnsureBucket(ctx, e.config.ReserveBucket)
		if err != nil {
			return nil, err
		}
		bucket.Balance = bucket.Balance.Add(reserve)
		if err := posRepo.SaveBucket(ctx, bucket); err != nil {
			return nil, err
		}

		trading.Balance = trading.Balance.Add(principal).Add(recycle)
		row.ReserveAmount = reserve
		row.RecycledAmount = recycle
	} else {
		trading.Balance = trading.Balance.Add(proceeds)
	}

	pos.Quantity = pos.Quantity.Sub(fill.Quantity)
	if level, ok := HarvestLevel(order.StrategyTag); ok && level > pos.HarvestLevel {
		pos.HarvestLevel = level
	}
	return row, nil
}

// Fee prefers the exchange-reported fee and falls back to the configured
// rate on the notional.
func (e *Engine) Fee(fill *execution.Fill) decimal.Decimal {
	if fill.Fee != nil {
		return *fill.Fee
	}
	return fill.Notional.Mul(e.config.FeeRate)
}

// EstimateFee is the fallback fee for a prospective notional.
func (e *Engine) EstimateFee(notional decimal.Decimal) decimal.Decimal {
	return notional.Mul(e.config.FeeRate)
}

// Reject records a fill that did not trade and retires the order as FAILED.
func (e *Engine) Reject(ctx context.Context, order *model.Order, fill *execution.Fill) error {
	reason := "execution rejected"
	if fill != nil && fill.Error != "" {
		reason = "execution rejected: " + fill.Error
	}
	err := e.writer.Submit(ctx, serializer.PriorityLedger, "ledger.reject", func(tx *gorm.DB) error {
		if err := orders.Transition(ctx, tx, order.ID, model.OrderStatusApproved, model.OrderStatusFailed, reason, e.now()); err != nil {
			return err
		}
		if fill == nil {
			return nil
		}
		return repository.NewOrderRepository(tx).CreateExecutionRecord(ctx, fill.Record(order.ID))
	})
	if err == nil {
		metrics.LedgerFills.WithLabelValues(order.Side, "rejected").Inc()
	}
	return err
}

// RecordAttempt persists an execution attempt that left the order queued.
// The order status does not change.
func (e *Engine) RecordAttempt(ctx context.Context, order *model.Order, fill *execution.Fill) error {
	if order == nil || fill == nil {
		return nil
	}
	return e.writer.Submit(ctx, serializer.PriorityLedger, "ledger.record_attempt", func(tx *gorm.DB) error {
		return repository.NewOrderRepository(tx).CreateExecutionRecord(ctx, fill.Record(order.ID))
	})
}

// Deposit credits amount to a bucket, creating it if needed.
func (e *Engine) Deposit(ctx context.Context, bucketID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if bucketID == "" || !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: deposit needs a bucket and a positive amount", model.ErrValidation)
	}

	var balance decimal.Decimal
	err := e.writer.Submit(ctx, serializer.PriorityLedger, "ledger.deposit", func(tx *gorm.DB) error {
		repo := repository.NewPositionRepository(tx)
		bucket, err := repo.EnsureBucket(ctx, bucketID)
		if err != nil {
			return err
		}
		bucket.Balance = bucket.Balance.Add(amount)
		balance = bucket.Balance
		return repo.SaveBucket(ctx, bucket)
	})
	if err != nil {
		return decimal.Zero, err
	}

	logger.WithFields(map[string]interface{}{
		"component": "AccountingEngine",
		"bucket":    bucketID,
		"amount":    amount.String(),
		"balance":   balance.String(),
	}).Info("Deposit booked")
	return balance, nil
}

// MarkPrice raises the position's peak price. It reports whether the peak moved.
func (e *Engine) MarkPrice(ctx context.Context, symbol string, price decimal.Decimal) (bool, error) {
	if !price.IsPositive() {
		return false, nil
	}

	moved := false
	err := e.writer.Submit(ctx, serializer.PriorityBackground, "ledger.mark_price", func(tx *gorm.DB) error {
		moved = false
		repo := repository.NewPositionRepository(tx)
		pos, err := repo.FindBySymbol(ctx, symbol)
		if err != nil || pos == nil {
			return err
		}
		if !price.GreaterThan(pos.PeakPrice) {
			return nil
		}
		pos.PeakPrice = price
		moved = true
		return repo.Save(ctx, pos)
	})
	return moved, err
}

// HeldQuantity is a fresh read of the units held for symbol, zero when flat.
func (e *Engine) HeldQuantity(ctx context.Context, symbol string) (decimal.Decimal, error) {
	pos, err := repository.NewPositionRepository(e.db).FindBySymbol(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if pos == nil {
		return decimal.Zero, nil
	}
	return pos.Quantity, nil
}

// Balances reads every bucket balance outside of any transaction.
func (e *Engine) Balances(ctx context.Context) (map[string]decimal.Decimal, error) {
	buckets, err := repository.NewPositionRepository(e.db).FindBuckets(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(buckets))
	for _, b := range buckets {
		out[b.BucketID] = b.Balance
	}
	return out, nil
}

// TradingBalance is a fresh read of the trading bucket.
func (e *Engine) TradingBalance(ctx context.Context) (decimal.Decimal, error) {
	bucket, err := repository.NewPositionRepository(e.db).FindBucket(ctx, e.config.TradingBucket)
	if err != nil {
		return decimal.Zero, err
	}
	if bucket == nil {
		return decimal.Zero, nil
	}
	return bucket.Balance, nil
}
