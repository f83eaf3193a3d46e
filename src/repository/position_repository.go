package repository

import (
	"context"
	"errors"
	"fmt"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradeledger/src/model"
)

// PositionRepository reads and writes positions and cash buckets. Rows of
// both tables are keyed by a unique symbol/bucket id and are never deleted.
type PositionRepository struct {
	db *gorm.DB
}

func NewPositionRepository(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// FindBySymbol returns (nil, nil) when the symbol was never held.
func (r *PositionRepository) FindBySymbol(ctx context.Context, symbol string) (*model.Position, error) {
	var pos model.Position
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("symbol = ?", symbol).
		First(&pos).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo":   "PositionRepository",
			"op":     "FindBySymbol",
			"symbol": symbol,
		}).WithError(err).Error("Failed to fetch position")
		return nil, err
	}
	return &pos, nil
}

// FindAll returns every position, including closed ones, ordered by symbol.
func (r *PositionRepository) FindAll(ctx context.Context) ([]model.Position, error) {
	var positions []model.Position
	err := r.db.WithContext(ctx).Order("symbol ASC").Find(&positions).Error
	return positions, err
}

// FindOpen returns positions with a positive quantity.
func (r *PositionRepository) FindOpen(ctx context.Context) ([]model.Position, error) {
	var positions []model.Position
	err := r.db.WithContext(ctx).Where("quantity > 0").Order("symbol ASC").Find(&positions).Error
	return positions, err
}

// Save inserts or updates the position in place.
func (r *PositionRepository) Save(ctx context.Context, pos *model.Position) error {
	if pos.Quantity.IsNegative() || pos.AvgCostBasis.IsNegative() {
		return fmt.Errorf("position %s: negative quantity or basis", pos.Symbol)
	}
	if err := r.db.WithContext(ctx).Save(pos).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "PositionRepository",
			"op":     "Save",
			"symbol": pos.Symbol,
		}).WithError(err).Error("Failed to save position")
		return err
	}
	return nil
}

// ---------------------------------------------------
// Cash buckets
// ---------------------------------------------------

// FindBucket re-reads the authoritative bucket row, locking it where the
// driver supports row locks. Returns (nil, nil) for an unknown bucket.
func (r *PositionRepository) FindBucket(ctx context.Context, bucketID string) (*model.CashBucket, error) {
	var bucket model.CashBucket
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("bucket_id = ?", bucketID).
		First(&bucket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &bucket, nil
}

// FindBuckets returns every cash bucket ordered by id.
func (r *PositionRepository) FindBuckets(ctx context.Context) ([]model.CashBucket, error) {
	var buckets []model.CashBucket
	err := r.db.WithContext(ctx).Order("bucket_id ASC").Find(&buckets).Error
	return buckets, err
}

// EnsureBucket creates the bucket with a zero balance if it does not exist
// and returns the stored row.
func (r *PositionRepository) EnsureBucket(ctx context.Context, bucketID string) (*model.CashBucket, error) {
	bucket := model.CashBucket{BucketID: bucketID}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "bucket_id"}}, DoNothing: true}).
		Create(&bucket).Error
	if err != nil {
		return nil, err
	}
	return r.FindBucket(ctx, bucketID)
}

// SaveBucket writes the bucket balance. Negative balances are refused so the
// surrounding transaction rolls back.
func (r *PositionRepository) SaveBucket(ctx context.Context, bucket *model.CashBucket) error {
	if bucket.Balance.IsNegative() {
		return fmt.Errorf("cash bucket %s would go negative (%s)", bucket.BucketID, bucket.Balance.String())
	}
	return r.db.WithContext(ctx).Save(bucket).Error
}
