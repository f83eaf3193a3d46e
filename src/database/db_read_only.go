package database

import (
	"fmt"

	"tradeledger/src/externalmodel"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenReadOnlyDB opens the connection used to poll trade proposals written by
// external collaborators. The database user should have SELECT-only permissions.
func OpenReadOnlyDB(config Config) (*gorm.DB, error) {
	d, err := dialector(config.Driver, config.DatabaseURLReadOnly)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(d,
		&gorm.Config{
			PrepareStmt:    true,
			TranslateError: true,
			Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to read-only database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB from ReadOnlyDB: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping ReadOnlyDB: %w", err)
	}

	var count int64
	if err := db.Model(&externalmodel.TradeProposal{}).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to access trade_proposals: %w", err)
	}

	logrus.WithFields(map[string]interface{}{"count": count}).Info("[ReadOnlyDB] trade_proposals reachable")

	return db, nil
}
