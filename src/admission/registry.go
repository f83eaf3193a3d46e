package admission

import (
	"fmt"
	"time"
)

// Deps carries the lookups gates are built from. Nil advisory lookups
// default to Neutral; store-backed ones are required by the gates using them.
type Deps struct {
	Orders   LiveOrders
	Trades   TradeCounter
	Outcomes OutcomeHistory
	Streaks  LossStreaks
	Funding  FundingSource

	Risk       RiskScorer
	Stress     StressGauge
	Failures   FailureCatalog
	Mood       MoodProvider
	Advisor    CompetitiveAdvisor
	Governance GovernanceScorer

	Now func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Risk == nil {
		d.Risk = Neutral{}
	}
	if d.Stress == nil {
		d.Stress = Neutral{}
	}
	if d.Failures == nil {
		d.Failures = Neutral{}
	}
	if d.Mood == nil {
		d.Mood = Neutral{}
	}
	if d.Advisor == nil {
		d.Advisor = Neutral{}
	}
	if d.Governance == nil {
		d.Governance = Neutral{}
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	return d
}

type factory func(config Config, deps Deps) (Gate, error)

func missing(gate, dep string) error {
	return fmt.Errorf("gate %s needs %s", gate, dep)
}

var registry = map[string]factory{
	GateDuplicate: func(_ Config, d Deps) (Gate, error) {
		if d.Orders == nil {
			return nil, missing(GateDuplicate, "live order lookup")
		}
		return duplicateGate{orders: d.Orders}, nil
	},
	GatePredictiveRisk: func(c Config, d Deps) (Gate, error) {
		return predictiveRiskGate{risk: d.Risk, max: c.RiskScoreMax}, nil
	},
	GateSystemStress: func(c Config, d Deps) (Gate, error) {
		return systemStressGate{stress: d.Stress, max: c.StressMax}, nil
	},
	GateHistoricalOutcome: func(c Config, d Deps) (Gate, error) {
		if d.Outcomes == nil {
			return nil, missing(GateHistoricalOutcome, "outcome history")
		}
		return historicalOutcomeGate{history: d.Outcomes, window: c.OutcomeWindow, threshold: c.OutcomeLossThreshold}, nil
	},
	GatePatternResonance: func(c Config, d Deps) (Gate, error) {
		return patternResonanceGate{catalog: d.Failures, threshold: c.ResonanceThreshold}, nil
	},
	GateMoodSizing: func(c Config, d Deps) (Gate, error) {
		return moodSizingGate{mood: d.Mood, min: c.MoodMin, max: c.MoodMax}, nil
	},
	GateCompetitive: func(_ Config, d Deps) (Gate, error) {
		return competitiveGate{advisor: d.Advisor}, nil
	},
	GateAlignment: func(c Config, d Deps) (Gate, error) {
		if d.Trades == nil {
			return nil, missing(GateAlignment, "trade counter")
		}
		return alignmentGate{trades: d.Trades, floor: c.AlignmentFloor, window: c.AlignmentWindow, maxTrades: c.AlignmentMaxTrades, now: d.Now}, nil
	},
	GateQuality: func(c Config, d Deps) (Gate, error) {
		return qualityGate{governance: d.Governance, floor: c.QualityFloor, lane: c.FastLane}, nil
	},
	GateCircuitBreaker: func(c Config, d Deps) (Gate, error) {
		if d.Streaks == nil {
			return nil, missing(GateCircuitBreaker, "loss streaks")
		}
		return circuitBreakerGate{streaks: d.Streaks, shrinkStreak: c.BreakerShrinkStreak, blockStreak: c.BreakerBlockStreak}, nil
	},
	GateFunding: func(_ Config, d Deps) (Gate, error) {
		if d.Funding == nil {
			return nil, missing(GateFunding, "funding source")
		}
		return fundingGate{funding: d.Funding}, nil
	},
}

// BuildGates resolves names, in order, into gates.
func BuildGates(names []string, config Config, deps Deps) ([]Gate, error) {
	deps = deps.withDefaults()
	gates := make([]Gate, 0, len(names))
	seen := map[string]bool{}
	for _, name := range names {
		build, ok := registry[name]
		if !ok {
			return nil, fmt.Errorf("unknown admission gate %q", name)
		}
		if seen[name] {
			return nil, fmt.Errorf("admission gate %q listed twice", name)
		}
		seen[name] = true

		gate, err := build(config, deps)
		if err != nil {
			return nil, err
		}
		gates = append(gates, gate)
	}
	return gates, nil
}
