package security

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config has no default key. An unset key makes every seal and open fail
// with ErrNoKey.
type Config struct {
	CredentialsKey string `envconfig:"EXCHANGE_CREDENTIALS_KEY"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
