package quotes

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

type Config struct {
	Cache    string        `envconfig:"QUOTE_CACHE" default:"memory"` // "memory" or "redis"
	RedisURL string        `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	TTL      time.Duration `envconfig:"QUOTE_TTL" default:"60s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
