// repository/trade_proposal_repository.go
package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeledger/src/externalmodel"
)

// TradeProposalRepository handles read-only operations for trade proposals
// stored in the read-only signal database.
type TradeProposalRepository struct {
	db *gorm.DB
}

// NewTradeProposalRepository creates a new repository instance on the
// read-only connection.
func NewTradeProposalRepository(db *gorm.DB) *TradeProposalRepository {
	logger.WithField("component", "TradeProposalRepository").
		Debug("Creating new TradeProposalRepository")

	return &TradeProposalRepository{db: db}
}

// FindAfter returns proposals with id > lastID, oldest first.
// The limit parameter defines how many records will be returned.
func (r *TradeProposalRepository) FindAfter(
	ctx context.Context,
	lastID uint,
	limit int,
) ([]externalmodel.TradeProposal, error) {

	if limit <= 0 {
		limit = 10 // default safety limit
	}

	var proposals []externalmodel.TradeProposal

	err := r.db.WithContext(ctx).
		Where("id > ?", lastID).
		Order("id ASC").
		Limit(limit).
		Find(&proposals).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "TradeProposalRepository",
			"op":      "FindAfter",
			"last_id": lastID,
		}).WithError(err).Error("Failed to fetch trade proposals")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "TradeProposalRepository",
		"op":          "FindAfter",
		"last_id":     lastID,
		"rows_return": len(proposals),
	}).Debug("Trade proposals fetched")

	return proposals, nil
}

// LatestID returns the highest proposal id, or 0 for an empty table.
func (r *TradeProposalRepository) LatestID(ctx context.Context) (uint, error) {
	var id *uint
	err := r.db.WithContext(ctx).
		Model(&externalmodel.TradeProposal{}).
		Select("MAX(id)").
		Scan(&id).Error
	if err != nil || id == nil {
		return 0, err
	}
	return *id, nil
}
