package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeledger/src/model"
)

// SafetyEventRepository persists the fail-stop audit log.
type SafetyEventRepository struct {
	db *gorm.DB
}

func NewSafetyEventRepository(db *gorm.DB) *SafetyEventRepository {
	return &SafetyEventRepository{db: db}
}

func (r *SafetyEventRepository) WithDB(db *gorm.DB) *SafetyEventRepository {
	return &SafetyEventRepository{db: db}
}

func (r *SafetyEventRepository) Create(ctx context.Context, event *model.SafetyEvent) error {
	logger.WithFields(map[string]interface{}{
		"repo":  "SafetyEventRepository",
		"kind":  event.Kind,
		"rule":  event.Rule,
		"agent": event.Agent,
	}).Warn("Persisting safety event")

	return r.db.WithContext(ctx).Create(event).Error
}

// Latest returns the newest event. Returns (nil, nil) on an empty log.
func (r *SafetyEventRepository) Latest(ctx context.Context) (*model.SafetyEvent, error) {
	var event model.SafetyEvent
	err := r.db.WithContext(ctx).Order("id DESC").First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// FindLatest returns up to limit events, newest first.
func (r *SafetyEventRepository) FindLatest(ctx context.Context, limit int) ([]model.SafetyEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []model.SafetyEvent
	err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&events).Error
	return events, err
}
