package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeledger/src/connectors"
	"tradeledger/src/database"
	"tradeledger/src/ledger"
	"tradeledger/src/quotes"
	"tradeledger/src/security"
)

// OpenMainDB connects to the shared store and brings its schema up to date.
func OpenMainDB() (*gorm.DB, error) {
	config := database.GetConfig()
	db, err := database.OpenMainDB(config)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db, ledger.GetConfig().Seed()); err != nil {
		return nil, err
	}
	if config.Driver == database.DriverSQLite {
		// Local setups keep the signal tables in the same file.
		if err := database.MigrateSignalTables(db); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// NewExchange returns nil for the "none" driver, which starts the session
// in simulation mode.
func NewExchange(config connectors.Config) (connectors.Exchange, error) {
	switch config.Driver {
	case connectors.DriverNone:
		logrus.Warn("No exchange configured, fills will be simulated")
		return nil, nil
	case connectors.DriverREST, connectors.DriverGoex:
	default:
		return nil, fmt.Errorf("unsupported EXCHANGE_DRIVER %q", config.Driver)
	}

	if config.APIKey == "" || config.APISecretEnc == "" {
		return nil, errors.New("no valid key/secret set for exchange")
	}
	apiSecret, err := security.DecryptString(config.APISecretEnc)
	if err != nil {
		logrus.WithError(err).Error("Failed to decrypt API Secret")
		return nil, err
	}

	logrus.WithFields(map[string]interface{}{
		"driver":   config.Driver,
		"base_url": config.BaseURL,
	}).Info("Exchange connector ready")

	if config.Driver == connectors.DriverGoex {
		return connectors.NewBinanceExchange(config.APIKey, apiSecret, config.BaseURL, config), nil
	}
	return connectors.NewRestExchange(config.APIKey, apiSecret, config.BaseURL, config), nil
}

// NewQuoteCache returns the configured cache and a func releasing it.
func NewQuoteCache(ctx context.Context, config quotes.Config) (quotes.Cache, func(), error) {
	switch config.Cache {
	case quotes.CacheRedis:
		client, err := quotes.ConnectRedis(ctx, config.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return quotes.NewRedisCache(client, config.TTL), func() { _ = client.Close() }, nil
	case quotes.CacheMemory, "":
		return quotes.NewMemoryCache(config.TTL), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported QUOTE_CACHE %q", config.Cache)
	}
}
