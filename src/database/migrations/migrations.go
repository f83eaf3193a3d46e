// package migrations
package migrations

import (
	"errors"
	"fmt"
	"time"

	"tradeledger/src/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DataMigration tracks executed data migrations (like Django).
// Table name is fixed to avoid collisions with other models.
type DataMigration struct {
	ID        string    `gorm:"primaryKey;size:200;column:id"`
	AppliedAt time.Time `gorm:"not null;column:applied_at"`
}

func (DataMigration) TableName() string { return "data_migrations" }

// Seed describes the cash buckets that must exist before any agent runs.
// Balances are only applied when the bucket row is created.
type Seed struct {
	Buckets map[string]decimal.Decimal
}

func ensureDataMigrationsTable(db *gorm.DB) error {
	return db.AutoMigrate(&DataMigration{})
}

// RunOnce runs fn only if migrationID was not executed before.
// It records the migration as executed only after fn succeeds.
func RunOnce(db *gorm.DB, migrationID string, fn func(*gorm.DB) error) error {
	if db == nil {
		return nil
	}
	if migrationID == "" {
		return fmt.Errorf("migration id is empty")
	}
	if fn == nil {
		return fmt.Errorf("migration %q has nil fn", migrationID)
	}

	if err := ensureDataMigrationsTable(db); err != nil {
		return fmt.Errorf("ensure data migrations table: %w", err)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var m DataMigration
		err := tx.First(&m, "id = ?", migrationID).Error
		if err == nil {
			// already applied
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("check migration %q: %w", migrationID, err)
		}

		if err := fn(tx); err != nil {
			return fmt.Errorf("run migration %q: %w", migrationID, err)
		}

		rec := DataMigration{
			ID:        migrationID,
			AppliedAt: time.Now().UTC(),
		}
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("record migration %q: %w", migrationID, err)
		}

		return nil
	})
}

// Run executes all data migrations that go beyond schema auto-migrations.
// Append new migrations at the bottom with a stable unique id.
func Run(db *gorm.DB, seed Seed) error {
	if db == nil {
		return nil
	}

	if err := RunOnce(db, "00001_seed_cash_buckets", seedCashBuckets(seed)); err != nil {
		return err
	}

	// Buckets added to the configuration later are created on every start.
	return seedCashBuckets(seed)(db)
}

func seedCashBuckets(seed Seed) func(*gorm.DB) error {
	return func(tx *gorm.DB) error {
		for bucketID, balance := range seed.Buckets {
			if balance.IsNegative() {
				return fmt.Errorf("seed balance for bucket %s is negative", bucketID)
			}
			bucket := model.CashBucket{BucketID: bucketID, Balance: balance}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "bucket_id"}},
				DoNothing: true,
			}).Create(&bucket).Error; err != nil {
				return fmt.Errorf("seed cash bucket %s: %w", bucketID, err)
			}
		}
		return nil
	}
}
