package execution

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	CallBudgetPerHour int             `envconfig:"CALL_BUDGET_PER_HOUR" default:"600"`
	CallTimeout       time.Duration   `envconfig:"CALL_TIMEOUT" default:"10s"`
	SilenceCeiling    int             `envconfig:"SILENCE_CEILING" default:"5"`
	PriceMargin       decimal.Decimal `envconfig:"PRICE_MARGIN" default:"0.001"`
	QtyPrecision      int32           `envconfig:"EXCHANGE_QTY_PRECISION" default:"6"`
	QuoteAsset        string          `envconfig:"QUOTE_ASSET" default:"USDT"`
	RetryAttempts     int             `envconfig:"EXEC_RETRY_ATTEMPTS" default:"3"`
	RetryBase         time.Duration   `envconfig:"EXEC_RETRY_BASE" default:"500ms"`
	RetryMax          time.Duration   `envconfig:"EXEC_RETRY_MAX" default:"8s"`

	SimMaxSlippage decimal.Decimal `envconfig:"SIM_MAX_SLIPPAGE" default:"0.002"`
	SimMaxLatency  time.Duration   `envconfig:"SIM_MAX_LATENCY" default:"400ms"`
	SimSeed        int64           `envconfig:"SIM_SEED" default:"42"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
