package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"tradeledger/src/metrics"
	"tradeledger/src/model"
	"tradeledger/src/repository"
)

var ErrInvalidTransition = errors.New("invalid order status transition")

var allowed = map[string][]string{
	model.OrderStatusPending: {
		model.OrderStatusApproved,
		model.OrderStatusVetoed,
	},
	model.OrderStatusApproved: {
		model.OrderStatusDone,
		model.OrderStatusFailed,
		model.OrderStatusExpired,
		model.OrderStatusVetoed,
	},
}

// CanTransition reports whether from -> to is an edge of the order state machine.
func CanTransition(from, to string) bool {
	for _, next := range allowed[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition flips the order from -> to inside tx. It fails with
// ErrInvalidTransition when the edge is illegal or the order is no longer in
// status from. Callers must already be running inside a serializer job.
func Transition(ctx context.Context, tx *gorm.DB, orderID uint, from, to, reason string, at time.Time) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	ok, err := repository.NewOrderRepository(tx).TransitionWithAutoLog(ctx, orderID, from, to, reason, at)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: order %d is not %s", ErrInvalidTransition, orderID, from)
	}

	metrics.OrderTransitions.WithLabelValues(to).Inc()
	return nil
}
