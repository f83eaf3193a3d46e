package orders

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AutoApprove bool          `envconfig:"AUTO_APPROVE" default:"true"`
	Staleness   time.Duration `envconfig:"ORDER_STALENESS" default:"15m"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
