package database

import (
	"fmt"
	"time"

	"tradeledger/src/database/migrations"
	"tradeledger/src/externalmodel"
	"tradeledger/src/model"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Models lists every table owned by the main (read/write) store.
func Models() []interface{} {
	return []interface{}{
		&model.Order{},
		&model.OrderLog{},
		&model.Position{},
		&model.CashBucket{},
		&model.ExecutionRecord{},
		&model.RealizedPnL{},
		&model.SafetyEvent{},
		&model.Exception{},
		&migrations.DataMigration{},
	}
}

func dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case DriverPostgres:
		return postgres.Open(dsn), nil
	case DriverSQLite:
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
}

// OpenMainDB opens the shared read/write store. The handle is returned to the
// caller and injected into every component; nothing is kept globally.
func OpenMainDB(config Config) (*gorm.DB, error) {
	d, err := dialector(config.Driver, config.DatabaseURLMain)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(d,
		&gorm.Config{
			TranslateError: true,
			Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to main database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB from MainDB: %w", err)
	}
	if config.Driver == DriverSQLite {
		// sqlite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(1 * time.Hour)

	logrus.WithField("driver", config.Driver).Info("[database] MainDB connection established")

	return db, nil
}

// Migrate runs schema auto-migration followed by the data migrations.
func Migrate(db *gorm.DB, seed migrations.Seed) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to run migrations on MainDB: %w", err)
	}

	if err := migrations.Run(db, seed); err != nil {
		return fmt.Errorf("failed to run data migrations on MainDB: %w", err)
	}

	logrus.Info("[database] MainDB migrations completed")
	return nil
}

// MigrateSignalTables creates the tables normally owned by the external
// collaborators. Only used for local sqlite setups where both stores share a file.
func MigrateSignalTables(db *gorm.DB) error {
	if err := db.AutoMigrate(&externalmodel.TradeProposal{}, &externalmodel.AdvisorySignal{}); err != nil {
		return fmt.Errorf("failed to migrate signal tables: %w", err)
	}
	return nil
}
