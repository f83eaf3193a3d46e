package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradeledger/src/model"
)

// Gate names as used in ADMISSION_GATES.
const (
	GateDuplicate         = "duplicate"
	GatePredictiveRisk    = "predictive_risk"
	GateSystemStress      = "system_stress"
	GateHistoricalOutcome = "historical_outcome"
	GatePatternResonance  = "pattern_resonance"
	GateMoodSizing        = "mood_sizing"
	GateCompetitive       = "competitive"
	GateAlignment         = "alignment"
	GateQuality           = "quality"
	GateCircuitBreaker    = "circuit_breaker"
	GateFunding           = "funding"
)

// Gate is one stage of the admission pipeline.
type Gate interface {
	Name() string
	Evaluate(ctx context.Context, c *Candidate) Verdict
}

// advisoryFailed lets the candidate through when an external advisory
// lookup is unavailable.
func advisoryFailed(gate string, c *Candidate, err error) Verdict {
	logger.WithFields(map[string]interface{}{
		"component": "Admission",
		"gate":      gate,
		"symbol":    c.Symbol,
	}).WithError(err).Warn("Advisory lookup failed, gate skipped")
	return Warn(fmt.Sprintf("%s advisory unavailable: %v", gate, err))
}

type duplicateGate struct{ orders LiveOrders }

func (g duplicateGate) Name() string { return GateDuplicate }

func (g duplicateGate) Evaluate(ctx context.Context, c *Candidate) Verdict {
	live, err := g.orders.ExistsLive(ctx, c.Symbol, c.Side)
	if err != nil {
		return Block("duplicate check failed: " + err.Error())
	}
	if live {
		return Block(fmt.Sprintf("a %s order for %s is already pending", c.Side, c.Symbol))
	}
	return Pass()
}

type predictiveRiskGate struct {
	risk RiskScorer
	max  float64
}

func (g predictiveRiskGate) Name() string { return GatePredictiveRisk }

func (g predictiveRiskGate) Evaluate(ctx context.Context, c *Candidate) Verdict {
	if c.Side != model.SideBuy {
		return Pass()
	}
	score, err := g.risk.RiskScore(ctx, c.Symbol)
	if err != nil {
		return advisoryFailed(g.Name(), c, err)
	}
	if score > g.max {
		return Block(fmt.Sprintf("risk score %.3f above %.3f", score, g.max))
	}
	return Pass()
}

type systemStressGate struct {
	stress StressGauge
	max    float64
}

func (g systemStressGate) Name() string { return GateSystemStress }

func (g systemStressGate) Evaluate(ctx context.Context, c *Candidate) Verdict {
	if c.Side != model.SideBuy {
		return Pass()
	}
	stress, err := g.stress.SystemStress(ctx)
	if err != nil {
		return advisoryFailed(g.Name(), c, err)
	}
	if stress > g.max {
		return Block(fmt.Sprintf("system stress %.3f above %.3f", stress, g.max))
	}
	return Pass()
}

type historicalOutcomeGate struct {
	history   OutcomeHistory
	window    int
	threshold float64
}

func (g historicalOutcomeGate) Name() string { return GateHistoricalOutcome }

func (g historicalOutcomeGate) Evaluate(ctx context.Context, c *Candidate) Verdict {
	outcomes, err := g.history.RecentOutcomes(ctx, c.Symbol, g.window)
	if err != nil {
		return Block("outcome history unavailable: " + err.Error())
	}
	if len(outcomes) == 0 {
		return Pass()
	}
	sum := 0.0
	for _, o := range outcomes {
		sum += o
	}
	avg := sum / float64(len(outcomes))
	if avg < g.threshold {
		return Block(fmt.Sprintf("average outcome %.4f over last %d trades below %.4f", avg, len(outcomes), g.threshold))
	}
	return Pass()
}

type patternResonanceGate struct {
	catalog   FailureCatalog
	threshold float64
}

func (g patternResonanceGate) Name() string { return GatePatternResonance }

func (g patternResonanceGate) Evaluate(ctx context.Context, c *Candidate) Verdict {
	match, err := g.catalog.Match(ctx, c)
	if err != nil {
		return advisoryFailed(g.Name(), c, err)
	}
	if match == nil {
		return Pass()
	}
	score := match.Similarity * match.Severity.Weight()
	if score <= g.threshold {
		return Pass()
	}
	reason := fmt.Sprintf("resembles past failure %q (%s, score %.3f)", match.Pattern, match.Severity, score)
	if match.Severity == SeverityCritical {
		return Block(reason)
	}
	return Warn(reason)
}

type moodSizingGate struct {
	mood     MoodProvider
	min, max decimal.Decimal
}

func (g moodSizingGate) Name() string { return GateMoodSizing }

func (g moodSizingGate) Evaluate(ctx context.Context, c *Candidate) Verdict {
	mult, err := g.mood.Multiplier(ctx, c.Symbol)
	if err != nil {
		return advisoryFailed(g.Name(), c, err)
	}
	if mult.LessThan(g.min) {
		mult = g.min
	}
	if mult.GreaterThan(g.max) {
		mult = g.max
	}
	if mult.Equal(decimal.NewFromInt(1)) {
		return Pass()
	}
	return Adjust(c.Notional.Mul(mult), 0, 0, "mood multiplier "+mult.String())
}

type competitiveGate struct{ advisor CompetitiveAdvisor }

func (g competitiveGate) Name() string { return GateCompetitive }

func (g competitiveGate) Evaluate(ctx context.Context, c *Candidate) Verdict {
	rec, err := g.advisor.Recommend(ctx, c.Symbol, c.Side, c.Notional)
	if err != nil {
		return advisoryFailed(g.Name(), c, err)
	}
	if rec.Veto {
		return Block("competitive advisory: " + rec.Reason)
	}

	var notional decimal.Decimal
	if rec.Scale.IsPositive() && !rec.Scale.Equal(decimal.NewFromInt(1)) {
		notional = c.Notional.Mul(rec.Scale)
	}
	slices := 0
	if rec.Slices > 1 {
		slices = rec.Slices
	}
	if notional.IsZero() && rec.Delay <= 0 && slices == 0 {
		return Pass()
	}
	return Adjust(notional, rec.Delay, slices, "competitive advisory: "+rec.Reason)
}

type alignmentGate struct {
	trades    TradeCounter
	floor     decimal.Decimal
	window    time.Duration
	maxTrades int
	now       func() time.Time
}

func (g alignmentGate) Name() string { return GateAlignment }

func (g alignmentGate) Evaluate(ctx context.Context, c *Candidate) Verdict {
	if c.Notional.LessThan(g.floor) {
		return Pass()
	}
	count, err := g.trades.CountAdmittedSince(ctx, g.now().Add(-g.window))
	if err != nil {
		return Block("trade frequency unavailable: " + err.Error())
	}
	if count >= int64(g.maxTrades) {
		return Block(fmt.Sprintf("%d trades in the last %s, policy allows %d", count, g.window, g.maxTrades))
	}
	return Pass()
}

type qualityGate struct {
	governance GovernanceScorer
	floor      float64
	lane       string
}

func (g qualityGate) Name() string { return GateQuality }

func (g qualityGate) Evaluate(ctx context.Context, c *Candidate) Verdict {
	if c.Lane != g.lane {
		return Pass()
	}
	score, err := g.governance.GovernanceScore(ctx, c.Symbol)
	if err != nil {
		return advisoryFailed(g.Name(), c, err)
	}
	if score < g.floor {
		return Block(fmt.Sprintf("governance score %.3f below %.3f", score, g.floor))
	}
	return Pass()
}

type circuitBreakerGate struct {
	streaks      LossStreaks
	shrinkStreak int
	blockStreak  int
}

func (g circuitBreakerGate) Name() string { return GateCircuitBreaker }

func (g circuitBreakerGate) Evaluate(ctx context.Context, c *Candidate) Verdict {
	streak, err := g.streaks.LossStreak(ctx)
	if err != nil {
		return Block("loss streak unavailable: " + err.Error())
	}
	switch {
	case g.blockStreak > 0 && streak >= g.blockStreak:
		return Block(fmt.Sprintf("%d consecutive losses", streak))
	case g.shrinkStreak > 0 && streak >= g.shrinkStreak:
		return Adjust(c.Notional.Div(decimal.NewFromInt(2)), 0, 0, fmt.Sprintf("%d consecutive losses, size halved", streak))
	default:
		return Pass()
	}
}

type fundingGate struct{ funding FundingSource }

func (g fundingGate) Name() string { return GateFunding }

func (g fundingGate) Evaluate(ctx context.Context, c *Candidate) Verdict {
	if c.Side != model.SideBuy {
		return Pass()
	}
	balance, err := g.funding.TradingBalance(ctx)
	if err != nil {
		return Block("trading balance unavailable: " + err.Error())
	}
	need := c.Notional.Add(g.funding.EstimateFee(c.Notional))
	if need.GreaterThan(balance) {
		return Block(fmt.Sprintf("needs %s, trading bucket holds %s", need.StringFixed(2), balance.StringFixed(2)))
	}
	return Pass()
}
