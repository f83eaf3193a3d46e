package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeledger/src/externalmodel"
)

// AdvisorySignalRepository reads advisory values from the read-only signal database.
type AdvisorySignalRepository struct {
	db *gorm.DB
}

func NewAdvisorySignalRepository(db *gorm.DB) *AdvisorySignalRepository {
	return &AdvisorySignalRepository{db: db}
}

// Latest returns the newest signal of kind for symbol ("" for global
// signals), or (nil, nil) when none was published.
func (r *AdvisorySignalRepository) Latest(
	ctx context.Context,
	kind string,
	symbol string,
) (*externalmodel.AdvisorySignal, error) {

	var signal externalmodel.AdvisorySignal
	err := r.db.WithContext(ctx).
		Where("kind = ? AND symbol = ?", kind, symbol).
		Order("id DESC").
		First(&signal).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo":   "AdvisorySignalRepository",
			"op":     "Latest",
			"kind":   kind,
			"symbol": symbol,
		}).WithError(err).Error("Failed to fetch advisory signal")
		return nil, err
	}
	return &signal, nil
}
