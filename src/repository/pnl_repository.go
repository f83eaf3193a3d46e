package repository

import (
	"context"

	"gorm.io/gorm"

	"tradeledger/src/model"
)

// PnLRepository stores realized profit rows, one per completed SELL.
type PnLRepository struct {
	db *gorm.DB
}

func NewPnLRepository(db *gorm.DB) *PnLRepository {
	return &PnLRepository{db: db}
}

func (r *PnLRepository) WithDB(db *gorm.DB) *PnLRepository {
	return &PnLRepository{db: db}
}

func (r *PnLRepository) Create(ctx context.Context, row *model.RealizedPnL) error {
	return r.db.WithContext(ctx).Create(row).Error
}

// FindLatest returns the most recent rows, newest first.
func (r *PnLRepository) FindLatest(ctx context.Context, limit int) ([]model.RealizedPnL, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []model.RealizedPnL
	err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// FindLatestBySymbol is FindLatest restricted to one symbol.
func (r *PnLRepository) FindLatestBySymbol(ctx context.Context, symbol string, limit int) ([]model.RealizedPnL, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []model.RealizedPnL
	err := r.db.WithContext(ctx).Where("symbol = ?", symbol).Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}
