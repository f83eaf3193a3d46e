package safety

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Window      time.Duration `envconfig:"SAFETY_WINDOW" default:"1h"`
	MinSpan     time.Duration `envconfig:"SAFETY_MIN_SPAN" default:"5m"`
	MaxDrawdown float64       `envconfig:"SAFETY_MAX_DRAWDOWN" default:"0.5"`
	ActionLog   int           `envconfig:"SAFETY_ACTION_LOG" default:"50"`
	GracePeriod time.Duration `envconfig:"SAFETY_GRACE_PERIOD" default:"30m"`
	ExitCode    int           `envconfig:"SAFETY_EXIT_CODE" default:"3"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
