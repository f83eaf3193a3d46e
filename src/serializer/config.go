package serializer

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	RetryAttempts int           `envconfig:"SERIALIZER_RETRY_ATTEMPTS" default:"5"`
	RetryBase     time.Duration `envconfig:"SERIALIZER_RETRY_BASE" default:"50ms"`
	RetryMax      time.Duration `envconfig:"SERIALIZER_RETRY_MAX" default:"2s"`
	QueueSize     int           `envconfig:"SERIALIZER_QUEUE_SIZE" default:"1024"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
