package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	DriverREST = "rest"
	DriverGoex = "goex"
	DriverNone = "none"
)

type Config struct {
	Driver    string `envconfig:"EXCHANGE_DRIVER" default:"rest"` // rest | goex | none
	BaseURL   string `envconfig:"EXCHANGE_BASE_URL" default:"https://testnet.binance.vision"`
	StreamURL string `envconfig:"EXCHANGE_STREAM_URL" default:"wss://stream.testnet.binance.vision/stream"`
	APIKey    string `envconfig:"EXCHANGE_API_KEY"`
	// Encrypted with EXCHANGE_CREDENTIALS_KEY, see src/security.
	APISecretEnc string        `envconfig:"EXCHANGE_API_SECRET_ENC"`
	QuoteAsset   string        `envconfig:"QUOTE_ASSET" default:"USDT"`
	CallTimeout  time.Duration `envconfig:"CALL_TIMEOUT" default:"10s"`
	RecvWindow   int64         `envconfig:"EXCHANGE_RECV_WINDOW" default:"5000"`
	// Symbols pushed into the quote cache by the ticker stream, e.g. BTCUSDT,ETHUSDT.
	StreamSymbols []string `envconfig:"STREAM_SYMBOLS"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
