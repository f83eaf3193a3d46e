// Package orders is the durable order state machine:
// PENDING -> APPROVED -> DONE | FAILED | EXPIRED | VETOED.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeledger/src/model"
	"tradeledger/src/repository"
	"tradeledger/src/serializer"
)

// ErrDuplicate is returned by Enqueue when a live order for the same
// (symbol, side) appeared after admission looked.
var ErrDuplicate = fmt.Errorf("%w: live order for symbol and side exists", model.ErrAdmissionVeto)

// Queue owns every status change of an order. Reads go straight to the store,
// writes go through the serializer.
type Queue struct {
	db     *gorm.DB
	writer serializer.Writer
	config Config
	now    func() time.Time
}

func NewQueue(db *gorm.DB, writer serializer.Writer, config Config) *Queue {
	return &Queue{
		db:     db,
		writer: writer,
		config: config,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source.
func (q *Queue) WithClock(now func() time.Time) *Queue {
	q.now = now
	return q
}

// Enqueue creates the given orders as PENDING in one serialized write and,
// in auto-approval mode, approves them in the same write.
func (q *Queue) Enqueue(ctx context.Context, orders []*model.Order, reason string) error {
	if len(orders) == 0 {
		return nil
	}
	for _, o := range orders {
		if err := validate(o); err != nil {
			return err
		}
	}

	return q.writer.Submit(ctx, serializer.PriorityOrders, "orders.enqueue", func(tx *gorm.DB) error {
		repo := repository.NewOrderRepository(tx)

		live, err := repo.ExistsLive(ctx, orders[0].Symbol, orders[0].Side)
		if err != nil {
			return err
		}
		if live {
			return ErrDuplicate
		}

		now := q.now()
		for _, o := range orders {
			o.ID = 0
			o.Status = model.OrderStatusPending
			o.CreatedAt = now
			o.UpdatedAt = now
			if err := repo.CreateWithAutoLog(ctx, o, reason); err != nil {
				return err
			}
			if q.config.AutoApprove {
				if err := Transition(ctx, tx, o.ID, model.OrderStatusPending, model.OrderStatusApproved, "auto-approved", now); err != nil {
					return err
				}
				o.Status = model.OrderStatusApproved
				o.ApprovedAt = &now
			}
		}

		logger.WithFields(map[string]interface{}{
			"component": "OrderQueue",
			"symbol":    orders[0].Symbol,
			"side":      orders[0].Side,
			"count":     len(orders),
			"approved":  q.config.AutoApprove,
		}).Info("Orders enqueued")

		return nil
	})
}

func validate(o *model.Order) error {
	if o.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", model.ErrValidation)
	}
	if o.Side != model.SideBuy && o.Side != model.SideSell {
		return fmt.Errorf("%w: side %q", model.ErrValidation, o.Side)
	}
	if !o.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", model.ErrValidation)
	}
	if !o.ReferencePrice.IsPositive() {
		return fmt.Errorf("%w: reference price must be positive", model.ErrValidation)
	}
	if o.AmountType == "" {
		o.AmountType = model.AmountNotional
	}
	return nil
}

// Approve moves a PENDING order to APPROVED.
func (q *Queue) Approve(ctx context.Context, orderID uint) error {
	return q.transition(ctx, orderID, model.OrderStatusPending, model.OrderStatusApproved, "approved")
}

// Veto retires a PENDING or APPROVED order.
func (q *Queue) Veto(ctx context.Context, orderID uint, reason string) error {
	return q.writer.Submit(ctx, serializer.PriorityOrders, "orders.veto", func(tx *gorm.DB) error {
		order, err := repository.NewOrderRepository(tx).FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return fmt.Errorf("order %d: %w", orderID, model.ErrNotFound)
		}
		return Transition(ctx, tx, orderID, order.Status, model.OrderStatusVetoed, reason, q.now())
	})
}

// Fail retires an APPROVED order after a failed execution or accounting step.
func (q *Queue) Fail(ctx context.Context, orderID uint, reason string) error {
	return q.transition(ctx, orderID, model.OrderStatusApproved, model.OrderStatusFailed, reason)
}

func (q *Queue) transition(ctx context.Context, orderID uint, from, to, reason string) error {
	return q.writer.Submit(ctx, serializer.PriorityOrders, "orders."+to, func(tx *gorm.DB) error {
		return Transition(ctx, tx, orderID, from, to, reason, q.now())
	})
}

// ExpireStale flips to EXPIRED every APPROVED order that has been executable
// for longer than the staleness bound. A delayed order starts its clock at
// not_before. It returns how many orders expired.
func (q *Queue) ExpireStale(ctx context.Context) (int, error) {
	if q.config.Staleness <= 0 {
		return 0, nil
	}

	expired := 0
	err := q.writer.Submit(ctx, serializer.PriorityOrders, "orders.expire", func(tx *gorm.DB) error {
		expired = 0
		now := q.now()
		stale, err := repository.NewOrderRepository(tx).FindStaleApproved(ctx, now.Add(-q.config.Staleness))
		if err != nil {
			return err
		}
		for _, o := range stale {
			reason := fmt.Sprintf("stale: executable for more than %s", q.config.Staleness)
			if err := Transition(ctx, tx, o.ID, model.OrderStatusApproved, model.OrderStatusExpired, reason, now); err != nil {
				return err
			}
			expired++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if expired > 0 {
		logger.WithFields(map[string]interface{}{
			"component": "OrderQueue",
			"expired":   expired,
		}).Warn("Expired stale approved orders")
	}
	return expired, nil
}

// Next expires stale orders and returns the oldest executable APPROVED order,
// or (nil, nil) when there is none.
func (q *Queue) Next(ctx context.Context) (*model.Order, error) {
	if _, err := q.ExpireStale(ctx); err != nil {
		return nil, err
	}
	return repository.NewOrderRepository(q.db).NextApproved(ctx, q.now())
}

// Get reads an order with its history. Returns (nil, nil) when missing.
func (q *Queue) Get(ctx context.Context, orderID uint) (*model.Order, error) {
	return repository.NewOrderRepository(q.db).FindByID(ctx, orderID)
}

// IsStale reports whether an order is past the staleness bound.
func (q *Queue) IsStale(o *model.Order) bool {
	if q.config.Staleness <= 0 {
		return false
	}
	from := o.CreatedAt
	if o.NotBefore != nil {
		from = *o.NotBefore
	}
	return q.now().Sub(from) > q.config.Staleness
}

// IsInvalidTransition is a convenience for callers matching on the sentinel.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}
