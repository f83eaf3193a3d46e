package ledger

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"tradeledger/src/database/migrations"
)

type Config struct {
	TradingBucket  string          `envconfig:"TRADING_BUCKET" default:"trading"`
	ReserveBucket  string          `envconfig:"RESERVE_BUCKET" default:"reserve"`
	ReserveRatio   decimal.Decimal `envconfig:"RESERVE_RATIO" default:"0.5"`
	FeeRate        decimal.Decimal `envconfig:"FEE_RATE" default:"0.001"`
	HarvestTiers   Tiers           `envconfig:"HARVEST_TIERS" default:"0.10:0.25,0.25:0.25,0.50:0.25"`
	InitialBalance decimal.Decimal `envconfig:"INITIAL_TRADING_BALANCE" default:"10000"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// Seed is the bucket layout created on first migration.
func (c Config) Seed() migrations.Seed {
	return migrations.Seed{Buckets: map[string]decimal.Decimal{
		c.TradingBucket: c.InitialBalance,
		c.ReserveBucket: decimal.Zero,
	}}
}
