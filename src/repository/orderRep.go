package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeledger/src/model"
)

// OrderRepository handles read/write operations for orders, their status
// history and their execution records.
//
// Write methods expect r.db to be a transaction handed out by the serializer.
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new repository instance on the given store.
func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *OrderRepository) WithDB(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// OrderSearchOptions filters Search. Nil fields are ignored.
type OrderSearchOptions struct {
	Symbol        *string
	Status        *string
	Agent         *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Limit         int
	Offset        int
}

// ---------------------------------------------------
// Order methods
// ---------------------------------------------------

// FindByID fetches a single order with its status history.
// Returns (nil, nil) if the order is not found.
func (r *OrderRepository) FindByID(
	ctx context.Context,
	id uint,
) (*model.Order, error) {

	var order model.Order

	err := r.db.WithContext(ctx).
		Preload("Logs", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&order, id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo": "OrderRepository",
				"op":   "FindByID",
				"id":   id,
			}).Debug("Order not found")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch order by ID")

		return nil, err
	}

	return &order, nil
}

// Search returns orders matching the filters, newest first.
func (r *OrderRepository) Search(
	ctx context.Context,
	opts OrderSearchOptions,
) ([]model.Order, error) {

	query := r.db.WithContext(ctx).Model(&model.Order{})

	if opts.Symbol != nil {
		query = query.Where("symbol = ?", *opts.Symbol)
	}
	if opts.Status != nil {
		query = query.Where("status = ?", *opts.Status)
	}
	if opts.Agent != nil {
		query = query.Where("agent = ?", *opts.Agent)
	}
	if opts.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *opts.CreatedAfter)
	}
	if opts.CreatedBefore != nil {
		query = query.Where("created_at <= ?", *opts.CreatedBefore)
	}

	query = query.Order("created_at DESC, id DESC")

	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}

	var orders []model.Order
	if err := query.Find(&orders).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "Search",
		}).WithError(err).Error("Failed to search orders")

		return nil, err
	}

	return orders, nil
}

// ExistsLive reports whether an order for (symbol, side) is PENDING or APPROVED.
func (r *OrderRepository) ExistsLive(
	ctx context.Context,
	symbol string,
	side string,
) (bool, error) {

	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("symbol = ? AND side = ? AND status IN ?", symbol, side,
			[]string{model.OrderStatusPending, model.OrderStatusApproved}).
		Count(&count).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "OrderRepository",
			"op":     "ExistsLive",
			"symbol": symbol,
			"side":   side,
		}).WithError(err).Error("Failed to count live orders")

		return false, err
	}

	return count > 0, nil
}

// CountAdmittedSince counts orders created since the given time that were not
// vetoed, i.e. trades the system actually decided to make.
func (r *OrderRepository) CountAdmittedSince(
	ctx context.Context,
	since time.Time,
) (int64, error) {

	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("created_at >= ? AND status <> ?", since, model.OrderStatusVetoed).
		Count(&count).Error

	return count, err
}

// NextApproved returns the oldest APPROVED order whose not_before has passed.
// Returns (nil, nil) when there is nothing to execute.
func (r *OrderRepository) NextApproved(
	ctx context.Context,
	now time.Time,
) (*model.Order, error) {

	var order model.Order

	err := r.db.WithContext(ctx).
		Where("status = ? AND (not_before IS NULL OR not_before <= ?)", model.OrderStatusApproved, now).
		Order("id ASC").
		First(&order).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &order, nil
}

// FindStaleApproved returns APPROVED orders that became executable before
// cutoff: not_before when set, created_at otherwise.
func (r *OrderRepository) FindStaleApproved(
	ctx context.Context,
	cutoff time.Time,
) ([]model.Order, error) {

	var orders []model.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND COALESCE(not_before, created_at) < ?", model.OrderStatusApproved, cutoff).
		Order("id ASC").
		Find(&orders).Error

	return orders, err
}

// FindPending returns PENDING orders oldest first.
func (r *OrderRepository) FindPending(
	ctx context.Context,
	limit int,
) ([]model.Order, error) {

	if limit <= 0 {
		limit = 50
	}

	var orders []model.Order
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OrderStatusPending).
		Order("id ASC").
		Limit(limit).
		Find(&orders).Error

	return orders, err
}

// ---------------------------------------------------
// Execution record methods
// ---------------------------------------------------

// CreateExecutionRecord inserts one fill attempt.
func (r *OrderRepository) CreateExecutionRecord(
	ctx context.Context,
	rec *model.ExecutionRecord,
) error {

	err := r.db.WithContext(ctx).Create(rec).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "CreateExecutionRecord",
			"order_id": rec.OrderID,
		}).WithError(err).Error("Failed to create execution record")

		return err
	}

	return nil
}

// FindExecutionRecordsByOrderID returns all fill attempts of an order, oldest first.
func (r *OrderRepository) FindExecutionRecordsByOrderID(
	ctx context.Context,
	orderID uint,
) ([]model.ExecutionRecord, error) {

	var records []model.ExecutionRecord
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&records).Error

	return records, err
}

// ---------------------------------------------------
// Transaction helpers
// ---------------------------------------------------

// CreateWithAutoLog inserts the order and its first history entry.
func (r *OrderRepository) CreateWithAutoLog(
	ctx context.Context,
	order *model.Order,
	reason string,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":   "OrderRepository",
		"op":     "CreateWithAutoLog",
		"symbol": order.Symbol,
		"side":   order.Side,
		"amount": order.Amount.String(),
	}).Debug("Creating order with automatic status log")

	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		logger.WithError(err).Error("Failed to create order")
		return err
	}

	logEntry := &model.OrderLog{
		OrderID:  order.ID,
		ToStatus: order.Status,
		Reason:   reason,
	}
	if err := r.db.WithContext(ctx).Create(logEntry).Error; err != nil {
		logger.WithError(err).Error("Failed to create order status log")
		return err
	}

	return nil
}

// TransitionWithAutoLog moves the order from one status to another only if it
// is still in the expected status, and appends the history entry.
// It returns false when the order was not in the expected status.
func (r *OrderRepository) TransitionWithAutoLog(
	ctx context.Context,
	orderID uint,
	from string,
	to string,
	reason string,
	at time.Time,
) (bool, error) {

	updates := map[string]interface{}{
		"status":     to,
		"updated_at": at,
	}
	if reason != "" {
		updates["reason"] = reason
	}
	switch to {
	case model.OrderStatusApproved:
		updates["approved_at"] = at
	case model.OrderStatusDone:
		updates["executed_at"] = at
	}

	res := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Updates(updates)
	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "TransitionWithAutoLog",
			"order_id": orderID,
			"from":     from,
			"to":       to,
		}).WithError(res.Error).Error("Failed to update order status")

		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	logEntry := &model.OrderLog{
		OrderID:    orderID,
		FromStatus: from,
		ToStatus:   to,
		Reason:     reason,
		CreatedAt:  at,
	}
	if err := r.db.WithContext(ctx).Create(logEntry).Error; err != nil {
		logger.WithError(err).Error("Failed to create order status log")
		return false, err
	}

	return true, nil
}

// FindLogs returns the status history of an order, oldest first.
func (r *OrderRepository) FindLogs(
	ctx context.Context,
	orderID uint,
) ([]model.OrderLog, error) {

	var logs []model.OrderLog
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&logs).Error

	return logs, err
}
