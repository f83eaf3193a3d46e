package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Agent            string        `envconfig:"AGENT_NAME" default:"agent-1"`
	LoopPeriod       time.Duration `envconfig:"LOOP_PERIOD" default:"30s"`
	ProposalBatch    int           `envconfig:"PROPOSAL_BATCH" default:"10"`
	SkipBacklog      bool          `envconfig:"PROPOSALS_SKIP_BACKLOG" default:"true"`
	MaxOrdersPerTick int           `envconfig:"MAX_ORDERS_PER_TICK" default:"5"`
	Harvest          bool          `envconfig:"HARVEST_ENABLED" default:"true"`
	HarvestLane      string        `envconfig:"HARVEST_LANE" default:"fast"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
