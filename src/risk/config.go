package risk

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// Config holds the per-session sizing multipliers. Crypto trades through the
// weekend, so the no-trade window is off unless asked for.
type Config struct {
	WeekendHoliday decimal.Decimal `envconfig:"MOOD_WEEKEND_HOLIDAY" default:"0.5"`
	DeadZone       decimal.Decimal `envconfig:"MOOD_DEAD_ZONE" default:"0.5"`
	Asia           decimal.Decimal `envconfig:"MOOD_ASIA" default:"0.75"`
	London         decimal.Decimal `envconfig:"MOOD_LONDON" default:"1.0"`
	US             decimal.Decimal `envconfig:"MOOD_US" default:"1.25"`
	Default        decimal.Decimal `envconfig:"MOOD_DEFAULT" default:"1.0"`
	NoTradeWindow  bool            `envconfig:"MOOD_NO_TRADE_WINDOW" default:"false"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
