package admission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"tradeledger/src/model"
	"tradeledger/src/orders"
	"tradeledger/src/repository"
	"tradeledger/src/serializer"
	"tradeledger/src/testutil"
)

type recordingGate struct {
	name    string
	verdict Verdict
	calls   int
}

func (g *recordingGate) Name() string { return g.name }

func (g *recordingGate) Evaluate(ctx context.Context, c *Candidate) Verdict {
	g.calls++
	return g.verdict
}

type fakeQueue struct {
	enqueued [][]*model.Order
	err      error
}

func (q *fakeQueue) Enqueue(ctx context.Context, ords []*model.Order, reason string) error {
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, ords)
	return nil
}

type fakePrices struct {
	price decimal.Decimal
	err   error
	calls int
}

func (p *fakePrices) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	p.calls++
	return p.price, p.err
}

type fakeRecorder struct{ actions []string }

func (r *fakeRecorder) RecordAction(ctx context.Context, signature string) {
	r.actions = append(r.actions, signature)
}

func candidate() Candidate {
	return Candidate{
		Symbol:         "BTCUSDT",
		Side:           model.SideBuy,
		Notional:       decimal.NewFromInt(1000),
		ReferencePrice: decimal.NewFromInt(10000),
		Rationale:      "breakout",
		Agent:          "agent-1",
	}
}

var fixedNow = time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)

func newController(gates []Gate, q Enqueuer, p PriceSource, r ActionRecorder) *Controller {
	return NewController(gates, q, p, r, Config{SliceInterval: time.Minute}).
		WithClock(func() time.Time { return fixedNow })
}

func TestPipelineShortCircuitsOnFirstBlock(t *testing.T) {
	first := &recordingGate{name: "first", verdict: Pass()}
	blocker := &recordingGate{name: "blocker", verdict: Block("no")}
	after := &recordingGate{name: "after", verdict: Pass()}
	q := &fakeQueue{}
	rec := &fakeRecorder{}

	_, err := newController([]Gate{first, blocker, after}, q, nil, rec).Admit(context.Background(), candidate())

	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	require.Equal(t, CodeVeto, rej.Code)
	require.Equal(t, "blocker", rej.Gate)
	require.ErrorIs(t, err, model.ErrAdmissionVeto)

	require.Equal(t, 1, first.calls)
	require.Equal(t, 1, blocker.calls)
	require.Zero(t, after.calls)
	require.Empty(t, q.enqueued)
	require.Empty(t, rec.actions)
}

func TestAdmitAppliesAdjustmentsAndSplits(t *testing.T) {
	scale := &recordingGate{name: "scale", verdict: Adjust(decimal.NewFromInt(900), 0, 0, "scaled")}
	split := &recordingGate{name: "split", verdict: Adjust(decimal.Zero, 2*time.Minute, 3, "split")}
	q := &fakeQueue{}
	rec := &fakeRecorder{}

	res, err := newController([]Gate{scale, split}, q, nil, rec).Admit(context.Background(), candidate())
	require.NoError(t, err)
	require.Len(t, res.Orders, 3)
	require.Equal(t, []string{"BUY:BTCUSDT"}, rec.actions)

	total := decimal.Zero
	for i, o := range res.Orders {
		total = total.Add(o.Amount)
		require.Equal(t, i, o.SliceIndex)
		require.Equal(t, 3, o.SliceCount)
		require.NotNil(t, o.NotBefore)
		require.Equal(t, fixedNow.Add(2*time.Minute+time.Duration(i)*time.Minute), *o.NotBefore)
	}
	require.True(t, total.Equal(decimal.NewFromInt(900)), "slices sum to %s", total)
}

func TestSellWithQuantityIsSlicedInUnits(t *testing.T) {
	split := &recordingGate{name: "split", verdict: Adjust(decimal.Zero, 0, 3, "split")}
	q := &fakeQueue{}
	cand := candidate()
	cand.Side = model.SideSell
	cand.Quantity = decimal.RequireFromString("0.1")
	cand.Notional = decimal.NewFromInt(1200)
	cand.ReferencePrice = decimal.NewFromInt(12000)

	res, err := newController([]Gate{split}, q, nil, nil).Admit(context.Background(), cand)
	require.NoError(t, err)
	require.Len(t, res.Orders, 3)

	total := decimal.Zero
	for _, o := range res.Orders {
		require.Equal(t, model.AmountQuantity, o.AmountType)
		total = total.Add(o.Amount)
	}
	require.True(t, total.Equal(decimal.RequireFromString("0.1")), "slices sum to %s", total)
}

func TestScalingASellScalesItsQuantity(t *testing.T) {
	half := &recordingGate{name: "half", verdict: Adjust(decimal.NewFromInt(600), 0, 0, "halved")}
	cand := candidate()
	cand.Side = model.SideSell
	cand.Quantity = decimal.RequireFromString("0.1")
	cand.Notional = decimal.NewFromInt(1200)

	res, err := newController([]Gate{half}, &fakeQueue{}, nil, nil).Admit(context.Background(), cand)
	require.NoError(t, err)
	require.Len(t, res.Orders, 1)
	require.Equal(t, model.AmountQuantity, res.Orders[0].AmountType)
	require.True(t, res.Orders[0].Amount.Equal(decimal.RequireFromString("0.05")), "amount %s", res.Orders[0].Amount)
}

func TestBuyIgnoresQuantity(t *testing.T) {
	cand := candidate()
	cand.Quantity = decimal.RequireFromString("0.1")

	res, err := newController(nil, &fakeQueue{}, nil, nil).Admit(context.Background(), cand)
	require.NoError(t, err)
	require.Equal(t, model.AmountNotional, res.Orders[0].AmountType)
	require.True(t, res.Orders[0].Amount.Equal(decimal.NewFromInt(1000)))
}

func TestMissingReferencePriceFetchesQuote(t *testing.T) {
	q := &fakeQueue{}
	prices := &fakePrices{price: decimal.NewFromInt(10500)}
	cand := candidate()
	cand.ReferencePrice = decimal.Zero

	res, err := newController(nil, q, prices, nil).Admit(context.Background(), cand)
	require.NoError(t, err)
	require.Equal(t, 1, prices.calls)
	require.True(t, res.Orders[0].ReferencePrice.Equal(decimal.NewFromInt(10500)))
}

func TestQuoteFailureIsValidationRejection(t *testing.T) {
	gate := &recordingGate{name: "gate", verdict: Pass()}
	q := &fakeQueue{}
	prices := &fakePrices{err: errors.New("no quote available")}
	cand := candidate()
	cand.ReferencePrice = decimal.NewFromInt(-1)

	_, err := newController([]Gate{gate}, q, prices, nil).Admit(context.Background(), cand)

	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	require.Equal(t, CodeValidation, rej.Code)
	require.ErrorIs(t, err, model.ErrValidation)
	require.Zero(t, gate.calls)
	require.Empty(t, q.enqueued)
}

func TestInvalidCandidates(t *testing.T) {
	c := newController(nil, &fakeQueue{}, nil, nil)

	bad := candidate()
	bad.Notional = decimal.Zero
	_, err := c.Admit(context.Background(), bad)
	require.ErrorIs(t, err, model.ErrValidation)

	bad = candidate()
	bad.Side = "HOLD"
	_, err = c.Admit(context.Background(), bad)
	require.ErrorIs(t, err, model.ErrValidation)
}

func TestAdjustToZeroIsVeto(t *testing.T) {
	zero := &recordingGate{name: "zero", verdict: Adjust(decimal.NewFromInt(-5), 0, 0, "shrunk")}
	_, err := newController([]Gate{zero}, &fakeQueue{}, nil, nil).Admit(context.Background(), candidate())
	require.ErrorIs(t, err, model.ErrAdmissionVeto)
}

func TestDuplicateRaceSurfacesAsVeto(t *testing.T) {
	q := &fakeQueue{err: orders.ErrDuplicate}
	_, err := newController(nil, q, nil, nil).Admit(context.Background(), candidate())

	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	require.Equal(t, GateDuplicate, rej.Gate)
}

func TestAdmitWithStoreBackedGates(t *testing.T) {
	db := testutil.NewDB(t)
	s := serializer.New(db, serializer.Config{RetryAttempts: 3, RetryBase: time.Millisecond, RetryMax: time.Millisecond})
	t.Cleanup(s.Close)
	queue := orders.NewQueue(db, s, orders.Config{AutoApprove: true, Staleness: time.Hour})
	orderRepo := repository.NewOrderRepository(db)

	config := Config{
		Gates:              CanonicalGates,
		OutcomeWindow:      20,
		AlignmentFloor:     decimal.NewFromInt(500),
		AlignmentWindow:    time.Hour,
		AlignmentMaxTrades: 6,
		MoodMin:            decimal.RequireFromString("0.5"),
		MoodMax:            decimal.RequireFromString("1.5"),
		RiskScoreMax:       0.8,
		StressMax:          0.9,
		ResonanceThreshold: 0.85,
		QualityFloor:       0.4,
		FastLane:           "fast",
	}
	gates, err := BuildGates(config.Gates, config, Deps{
		Orders:   orderRepo,
		Trades:   orderRepo,
		Outcomes: NewLedgerHistory(db),
		Streaks:  NewLedgerHistory(db),
		Funding:  &fakeFunding{balance: decimal.NewFromInt(5000)},
	})
	require.NoError(t, err)
	require.Len(t, gates, 11)

	c := NewController(gates, queue, nil, nil, config)
	ctx := context.Background()

	res, err := c.Admit(ctx, candidate())
	require.NoError(t, err)
	require.Len(t, res.Orders, 1)
	require.Equal(t, model.OrderStatusApproved, res.Orders[0].Status)

	// Same (symbol, side) is now live.
	_, err = c.Admit(ctx, candidate())
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	require.Equal(t, GateDuplicate, rej.Gate)

	count, err := orderRepo.CountAdmittedSince(ctx, time.Time{})
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestBuildGatesRejectsUnknownAndMissingDeps(t *testing.T) {
	_, err := BuildGates([]string{"nope"}, Config{}, Deps{})
	require.Error(t, err)

	_, err = BuildGates([]string{GateFunding}, Config{}, Deps{})
	require.Error(t, err)

	_, err = BuildGates([]string{GateMoodSizing, GateMoodSizing}, Config{}, Deps{})
	require.Error(t, err)

	gates, err := BuildGates([]string{GatePredictiveRisk, GateMoodSizing}, Config{}, Deps{})
	require.NoError(t, err)
	require.Equal(t, GatePredictiveRisk, gates[0].Name())
	require.Equal(t, GateMoodSizing, gates[1].Name())
}
