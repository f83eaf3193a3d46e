package admission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"tradeledger/src/model"
)

type fakeAdvisory struct {
	risk, stress, governance float64
	mood                     decimal.Decimal
	match                    *FailureMatch
	rec                      Recommendation
	err                      error
}

func (f fakeAdvisory) RiskScore(context.Context, string) (float64, error) { return f.risk, f.err }
func (f fakeAdvisory) SystemStress(context.Context) (float64, error)      { return f.stress, f.err }
func (f fakeAdvisory) GovernanceScore(context.Context, string) (float64, error) {
	return f.governance, f.err
}
func (f fakeAdvisory) Match(context.Context, *Candidate) (*FailureMatch, error) { return f.match, f.err }
func (f fakeAdvisory) Multiplier(context.Context, string) (decimal.Decimal, error) {
	return f.mood, f.err
}
func (f fakeAdvisory) Recommend(context.Context, string, string, decimal.Decimal) (Recommendation, error) {
	return f.rec, f.err
}

type fakeFunding struct {
	balance decimal.Decimal
	err     error
}

func (f *fakeFunding) TradingBalance(context.Context) (decimal.Decimal, error) { return f.balance, f.err }
func (f *fakeFunding) EstimateFee(n decimal.Decimal) decimal.Decimal {
	return n.Mul(decimal.RequireFromString("0.001"))
}

type fakeStreaks struct{ streak int }

func (f fakeStreaks) LossStreak(context.Context) (int, error) { return f.streak, nil }

type fakeOutcomes struct{ outcomes []float64 }

func (f fakeOutcomes) RecentOutcomes(context.Context, string, int) ([]float64, error) {
	return f.outcomes, nil
}

type fakeTrades struct{ count int64 }

func (f fakeTrades) CountAdmittedSince(context.Context, time.Time) (int64, error) { return f.count, nil }

func sell() *Candidate {
	c := candidate()
	c.Side = model.SideSell
	return &c
}

func buy() *Candidate {
	c := candidate()
	return &c
}

func TestPredictiveRiskVetoesBuysOnly(t *testing.T) {
	g := predictiveRiskGate{risk: fakeAdvisory{risk: 0.95}, max: 0.8}
	require.Equal(t, ActionBlock, g.Evaluate(context.Background(), buy()).Action)
	require.Equal(t, ActionPass, g.Evaluate(context.Background(), sell()).Action)
}

func TestSystemStressGate(t *testing.T) {
	g := systemStressGate{stress: fakeAdvisory{stress: 0.5}, max: 0.9}
	require.Equal(t, ActionPass, g.Evaluate(context.Background(), buy()).Action)

	g.stress = fakeAdvisory{stress: 0.91}
	require.Equal(t, ActionBlock, g.Evaluate(context.Background(), buy()).Action)
}

func TestAdvisoryFailurePassesWithWarning(t *testing.T) {
	g := predictiveRiskGate{risk: fakeAdvisory{err: errors.New("down")}, max: 0.8}
	v := g.Evaluate(context.Background(), buy())
	require.Equal(t, ActionPass, v.Action)
	require.Contains(t, v.Reason, "unavailable")
}

func TestHistoricalOutcomeGate(t *testing.T) {
	g := historicalOutcomeGate{history: fakeOutcomes{[]float64{-0.05, -0.01}}, window: 20, threshold: -0.02}
	require.Equal(t, ActionBlock, g.Evaluate(context.Background(), buy()).Action)

	g.history = fakeOutcomes{[]float64{-0.05, 0.03}}
	require.Equal(t, ActionPass, g.Evaluate(context.Background(), buy()).Action)

	g.history = fakeOutcomes{}
	require.Equal(t, ActionPass, g.Evaluate(context.Background(), buy()).Action)
}

func TestPatternResonanceSeverity(t *testing.T) {
	critical := patternResonanceGate{threshold: 0.85, catalog: fakeAdvisory{match: &FailureMatch{Pattern: "flash crash", Similarity: 0.9, Severity: SeverityCritical}}}
	require.Equal(t, ActionBlock, critical.Evaluate(context.Background(), buy()).Action)

	high := patternResonanceGate{threshold: 0.85, catalog: fakeAdvisory{match: &FailureMatch{Pattern: "chase", Similarity: 0.99, Severity: SeverityHigh}}}
	v := high.Evaluate(context.Background(), buy())
	require.Equal(t, ActionPass, v.Action)
	require.NotEmpty(t, v.Reason)

	weak := patternResonanceGate{threshold: 0.85, catalog: fakeAdvisory{match: &FailureMatch{Similarity: 0.5, Severity: SeverityCritical}}}
	v = weak.Evaluate(context.Background(), buy())
	require.Equal(t, ActionPass, v.Action)
	require.Empty(t, v.Reason)
}

func TestMoodSizingClamps(t *testing.T) {
	g := moodSizingGate{min: decimal.RequireFromString("0.5"), max: decimal.RequireFromString("1.5")}

	g.mood = fakeAdvisory{mood: decimal.NewFromInt(3)}
	v := g.Evaluate(context.Background(), buy())
	require.Equal(t, ActionAdjust, v.Action)
	require.True(t, v.Notional.Equal(decimal.NewFromInt(1500)))

	g.mood = fakeAdvisory{mood: decimal.Zero}
	v = g.Evaluate(context.Background(), buy())
	require.True(t, v.Notional.Equal(decimal.NewFromInt(500)))

	g.mood = fakeAdvisory{mood: decimal.NewFromInt(1)}
	require.Equal(t, ActionPass, g.Evaluate(context.Background(), buy()).Action)
}

func TestCompetitiveGate(t *testing.T) {
	g := competitiveGate{advisor: fakeAdvisory{rec: Recommendation{Veto: true, Reason: "crowded"}}}
	require.Equal(t, ActionBlock, g.Evaluate(context.Background(), buy()).Action)

	g.advisor = fakeAdvisory{rec: Recommendation{Slices: 4, Delay: time.Minute, Scale: decimal.RequireFromString("0.5")}}
	v := g.Evaluate(context.Background(), buy())
	require.Equal(t, ActionAdjust, v.Action)
	require.Equal(t, 4, v.Slices)
	require.Equal(t, time.Minute, v.Delay)
	require.True(t, v.Notional.Equal(decimal.NewFromInt(500)))

	g.advisor = fakeAdvisory{}
	require.Equal(t, ActionPass, g.Evaluate(context.Background(), buy()).Action)
}

func TestAlignmentGateAppliesAboveFloor(t *testing.T) {
	g := alignmentGate{
		trades:    fakeTrades{count: 6},
		floor:     decimal.NewFromInt(500),
		window:    time.Hour,
		maxTrades: 6,
		now:       func() time.Time { return fixedNow },
	}
	require.Equal(t, ActionBlock, g.Evaluate(context.Background(), buy()).Action)

	small := buy()
	small.Notional = decimal.NewFromInt(100)
	require.Equal(t, ActionPass, g.Evaluate(context.Background(), small).Action)

	g.trades = fakeTrades{count: 5}
	require.Equal(t, ActionPass, g.Evaluate(context.Background(), buy()).Action)
}

func TestQualityGateOnlyOnFastLane(t *testing.T) {
	g := qualityGate{governance: fakeAdvisory{governance: 0.2}, floor: 0.4, lane: "fast"}
	require.Equal(t, ActionPass, g.Evaluate(context.Background(), buy()).Action)

	fast := buy()
	fast.Lane = "fast"
	require.Equal(t, ActionBlock, g.Evaluate(context.Background(), fast).Action)
}

func TestCircuitBreakerIsGraduated(t *testing.T) {
	g := circuitBreakerGate{shrinkStreak: 3, blockStreak: 5}

	g.streaks = fakeStreaks{2}
	require.Equal(t, ActionPass, g.Evaluate(context.Background(), buy()).Action)

	g.streaks = fakeStreaks{3}
	v := g.Evaluate(context.Background(), buy())
	require.Equal(t, ActionAdjust, v.Action)
	require.True(t, v.Notional.Equal(decimal.NewFromInt(500)))

	g.streaks = fakeStreaks{5}
	require.Equal(t, ActionBlock, g.Evaluate(context.Background(), buy()).Action)
}

func TestFundingGate(t *testing.T) {
	g := fundingGate{funding: &fakeFunding{balance: decimal.NewFromInt(1000)}}
	// 1000 notional + 1 fee does not fit in 1000.
	require.Equal(t, ActionBlock, g.Evaluate(context.Background(), buy()).Action)
	require.Equal(t, ActionPass, g.Evaluate(context.Background(), sell()).Action)

	g.funding = &fakeFunding{balance: decimal.NewFromInt(1001)}
	require.Equal(t, ActionPass, g.Evaluate(context.Background(), buy()).Action)

	g.funding = &fakeFunding{err: errors.New("db down")}
	require.Equal(t, ActionBlock, g.Evaluate(context.Background(), buy()).Action)
}

func TestLossStreakCountsFromNewest(t *testing.T) {
	rows := []model.RealizedPnL{
		{ProfitAmount: decimal.NewFromInt(-1)},
		{ProfitAmount: decimal.Zero},
		{ProfitAmount: decimal.NewFromInt(5)},
		{ProfitAmount: decimal.NewFromInt(-3)},
	}
	require.Equal(t, 2, lossStreak(rows))
}
