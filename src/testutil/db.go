// Package testutil opens throwaway stores for package tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tradeledger/src/database"
	"tradeledger/src/database/migrations"
)

// NewDB returns a migrated in-memory sqlite store private to the test.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	return NewSeededDB(t, migrations.Seed{})
}

// NewSeededDB is NewDB with cash buckets created from seed.
func NewSeededDB(t testing.TB, seed migrations.Seed) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db, seed))
	return db
}

// Dec parses s or fails the test.
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// RequireDecimal compares two amounts with a tolerance of 1e-9, since sqlite
// stores numeric columns as floating point.
func RequireDecimal(t testing.TB, expected, actual decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	diff := expected.Sub(actual).Abs()
	if diff.GreaterThan(decimal.New(1, -9)) {
		require.Fail(t, fmt.Sprintf("decimal mismatch: expected %s, got %s", expected, actual), msgAndArgs...)
	}
}
