package admission

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// CanonicalGates is the default pipeline order.
var CanonicalGates = []string{
	GateDuplicate,
	GatePredictiveRisk,
	GateSystemStress,
	GateHistoricalOutcome,
	GatePatternResonance,
	GateMoodSizing,
	GateCompetitive,
	GateAlignment,
	GateQuality,
	GateCircuitBreaker,
	GateFunding,
}

type Config struct {
	Gates []string `envconfig:"ADMISSION_GATES" default:"duplicate,predictive_risk,system_stress,historical_outcome,pattern_resonance,mood_sizing,competitive,alignment,quality,circuit_breaker,funding"`

	RiskScoreMax         float64 `envconfig:"RISK_SCORE_MAX" default:"0.8"`
	StressMax            float64 `envconfig:"STRESS_MAX" default:"0.9"`
	OutcomeLossThreshold float64 `envconfig:"OUTCOME_LOSS_THRESHOLD" default:"-0.02"`
	OutcomeWindow        int     `envconfig:"OUTCOME_WINDOW" default:"20"`
	ResonanceThreshold   float64 `envconfig:"RESONANCE_THRESHOLD" default:"0.85"`

	MoodMin decimal.Decimal `envconfig:"MOOD_MIN" default:"0.5"`
	MoodMax decimal.Decimal `envconfig:"MOOD_MAX" default:"1.5"`

	AlignmentFloor     decimal.Decimal `envconfig:"ALIGNMENT_FLOOR" default:"500"`
	AlignmentWindow    time.Duration   `envconfig:"ALIGNMENT_WINDOW" default:"1h"`
	AlignmentMaxTrades int             `envconfig:"ALIGNMENT_MAX_TRADES" default:"6"`

	QualityFloor float64 `envconfig:"QUALITY_FLOOR" default:"0.4"`
	FastLane     string  `envconfig:"FAST_LANE" default:"fast"`

	BreakerShrinkStreak int `envconfig:"BREAKER_SHRINK_STREAK" default:"3"`
	BreakerBlockStreak  int `envconfig:"BREAKER_BLOCK_STREAK" default:"5"`

	SliceInterval time.Duration `envconfig:"SLICE_INTERVAL" default:"1m"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
