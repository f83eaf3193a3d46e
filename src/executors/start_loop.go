// Package executors runs the single-threaded agent loop: ingest proposals,
// admit them, execute queued orders one at a time and book the fills.
package executors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradeledger/src/admission"
	"tradeledger/src/audit"
	"tradeledger/src/execution"
	"tradeledger/src/externalmodel"
	"tradeledger/src/ledger"
	"tradeledger/src/model"
	"tradeledger/src/safety"
)

type ProposalSource interface {
	FindAfter(ctx context.Context, lastID uint, limit int) ([]externalmodel.TradeProposal, error)
	LatestID(ctx context.Context) (uint, error)
}

type Admitter interface {
	Admit(ctx context.Context, cand admission.Candidate) (*admission.Result, error)
}

type OrderSource interface {
	Next(ctx context.Context) (*model.Order, error)
}

type Executor interface {
	Execute(ctx context.Context, order *model.Order) (*execution.Fill, error)
}

type Ledger interface {
	ApplyFill(ctx context.Context, order *model.Order, fill *execution.Fill) (*ledger.Applied, error)
	Reject(ctx context.Context, order *model.Order, fill *execution.Fill) error
	RecordAttempt(ctx context.Context, order *model.Order, fill *execution.Fill) error
	Snapshot(ctx context.Context) (*ledger.Snapshot, error)
	MarkPrice(ctx context.Context, symbol string, price decimal.Decimal) (bool, error)
}

type PriceLookup interface {
	Cached(ctx context.Context, symbol string) (decimal.Decimal, bool)
}

type SafetyMonitor interface {
	ObserveNAV(ctx context.Context, nav decimal.Decimal) error
	ObservePurpose(ctx context.Context, score float64) error
	Terminated() bool
}

type PurposeSource interface {
	PurposeScore(ctx context.Context) (float64, error)
}

type Deps struct {
	Proposals ProposalSource
	Admission Admitter
	Orders    OrderSource
	Execution Executor
	Ledger    Ledger
	Prices    PriceLookup
	Safety    SafetyMonitor
	Purpose   PurposeSource // optional
	Ladder    *ledger.Ladder
	Audit     *audit.Recorder
}

// Agent is one cooperative trading loop. It is not safe for concurrent use;
// concurrency exists across agents, each with its own Agent.
type Agent struct {
	deps      Deps
	config    Config
	watermark uint
	started   bool
}

func NewAgent(deps Deps, config Config) (*Agent, error) {
	switch {
	case deps.Admission == nil, deps.Orders == nil, deps.Execution == nil, deps.Ledger == nil, deps.Safety == nil:
		return nil, errors.New("agent needs admission, orders, execution, ledger and safety")
	}
	if deps.Audit == nil {
		deps.Audit = audit.NewRecorder(nil, config.Agent)
	}
	return &Agent{deps: deps, config: config}, nil
}

// Watermark is the id of the last proposal handled.
func (a *Agent) Watermark() uint {
	return a.watermark
}

// StartLoop ticks every LoopPeriod until ctx ends or the safety monitor fires.
func (a *Agent) StartLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.config.LoopPeriod) // Set up a ticker that fires periodically
	defer ticker.Stop()

	fields := map[string]interface{}{
		"component": "Agent",
		"agent":     a.config.Agent,
	}
	logger.WithFields(fields).WithField("period", a.config.LoopPeriod.String()).Info("loop started")

	for {
		if err := a.Tick(ctx); err != nil {
			if errors.Is(err, safety.ErrTerminated) {
				return err
			}
			if ctx.Err() != nil {
				logger.WithFields(fields).Info("loop stopped")
				return nil
			}
			a.deps.Audit.Capture(ctx, "executors", "Tick", audit.LevelError, err, nil)
		}

		select {
		case <-ctx.Done():
			logger.WithFields(fields).Info("loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one pass: safety observations first, then proposal intake,
// harvest proposals, and finally order execution.
func (a *Agent) Tick(ctx context.Context) error {
	if a.deps.Safety.Terminated() {
		return safety.ErrTerminated
	}

	snap, err := a.deps.Ledger.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	marks := a.marks(ctx, snap)

	if err := a.observe(ctx, snap, marks); err != nil {
		return err
	}
	if err := a.ingest(ctx); err != nil {
		return err
	}
	if a.config.Harvest && a.deps.Ladder != nil {
		a.harvest(ctx, snap, marks)
	}
	return a.drain(ctx)
}

func (a *Agent) marks(ctx context.Context, snap *ledger.Snapshot) map[string]decimal.Decimal {
	marks := make(map[string]decimal.Decimal)
	if a.deps.Prices == nil {
		return marks
	}
	for _, p := range snap.Positions {
		if !p.Quantity.IsPositive() {
			continue
		}
		if price, ok := a.deps.Prices.Cached(ctx, p.Symbol); ok {
			marks[p.Symbol] = price
		}
	}
	return marks
}

func (a *Agent) observe(ctx context.Context, snap *ledger.Snapshot, marks map[string]decimal.Decimal) error {
	nav := snap.NetAssetValue(marks)
	if err := a.deps.Safety.ObserveNAV(ctx, nav); err != nil {
		return err
	}

	if a.deps.Purpose == nil {
		return nil
	}
	score, err := a.deps.Purpose.PurposeScore(ctx)
	if err != nil {
		logger.WithField("component", "Agent").WithError(err).Warn("purpose score unavailable, skipping check")
		return nil
	}
	return a.deps.Safety.ObservePurpose(ctx, score)
}

// ingest admits new proposals in id order. The watermark only moves past a
// proposal once admission decided on it, so store failures retry next tick.
func (a *Agent) ingest(ctx context.Context) error {
	if a.deps.Proposals == nil {
		return nil
	}
	if !a.started {
		if a.config.SkipBacklog {
			latest, err := a.deps.Proposals.LatestID(ctx)
			if err != nil {
				return fmt.Errorf("proposal watermark: %w", err)
			}
			a.watermark = latest
		}
		a.started = true
	}

	proposals, err := a.deps.Proposals.FindAfter(ctx, a.watermark, a.config.ProposalBatch)
	if err != nil {
		return fmt.Errorf("fetch proposals: %w", err)
	}

	for _, p := range proposals {
		_, err := a.deps.Admission.Admit(ctx, a.candidate(p))
		var rej *admission.Rejection
		if err != nil && !errors.As(err, &rej) {
			return fmt.Errorf("admit proposal %d: %w", p.ID, err)
		}
		a.watermark = p.ID
		if a.deps.Safety.Terminated() {
			return safety.ErrTerminated
		}
	}
	return nil
}

func (a *Agent) candidate(p externalmodel.TradeProposal) admission.Candidate {
	cand := admission.Candidate{
		Symbol:      p.Symbol,
		Side:        p.Side,
		Notional:    decimal.NewFromFloat(p.Notional),
		Rationale:   p.Rationale,
		StrategyTag: p.StrategyTag,
		Lane:        p.Lane,
		Agent:       p.Agent,
	}
	if p.ReferencePrice != nil {
		cand.ReferencePrice = decimal.NewFromFloat(*p.ReferencePrice)
	}
	if cand.Agent == "" {
		cand.Agent = a.config.Agent
	}
	if cand.Rationale == "" {
		cand.Rationale = fmt.Sprintf("proposal %d", p.ID)
	}
	return cand
}

// harvest raises peak prices and proposes the next ladder rung for every
// priced open position.
func (a *Agent) harvest(ctx context.Context, snap *ledger.Snapshot, marks map[string]decimal.Decimal) {
	for _, pos := range snap.Positions {
		price, ok := marks[pos.Symbol]
		if !ok {
			continue
		}
		if _, err := a.deps.Ledger.MarkPrice(ctx, pos.Symbol, price); err != nil {
			logger.WithFields(map[string]interface{}{
				"component": "Agent",
				"symbol":    pos.Symbol,
			}).WithError(err).Warn("failed to mark peak price")
		}

		h, ok := a.deps.Ladder.Next(pos, price)
		if !ok {
			continue
		}
		_, err := a.deps.Admission.Admit(ctx, admission.Candidate{
			Symbol:         h.Symbol,
			Side:           model.SideSell,
			Notional:       h.Quantity.Mul(h.Price),
			Quantity:       h.Quantity,
			ReferencePrice: h.Price,
			Rationale:      fmt.Sprintf("harvest rung %d at %s%% gain", h.Level, h.Gain.Mul(decimal.NewFromInt(100)).StringFixed(2)),
			StrategyTag:    ledger.HarvestTag(h.Level),
			Lane:           a.config.HarvestLane,
			Agent:          a.config.Agent,
		})
		var rej *admission.Rejection
		if err != nil && !errors.As(err, &rej) {
			a.deps.Audit.Capture(ctx, "executors", "harvest", audit.LevelWarn, err, map[string]interface{}{"symbol": h.Symbol})
		}
	}
}

// drain executes up to MaxOrdersPerTick queued orders, one at a time.
func (a *Agent) drain(ctx context.Context) error {
	for i := 0; a.config.MaxOrdersPerTick <= 0 || i < a.config.MaxOrdersPerTick; i++ {
		order, err := a.deps.Orders.Next(ctx)
		if err != nil {
			return fmt.Errorf("next order: %w", err)
		}
		if order == nil {
			return nil
		}

		done, err := a.process(ctx, order)
		if err != nil {
			return err
		}
		if !done {
			return nil
		}
	}
	return nil
}

// process runs one order through execution and accounting. It reports false
// when the order was deferred and draining should stop for this tick.
func (a *Agent) process(ctx context.Context, order *model.Order) (bool, error) {
	fields := map[string]interface{}{
		"component": "Agent",
		"order_id":  order.ID,
		"symbol":    order.Symbol,
		"side":      order.Side,
	}

	fill, err := a.deps.Execution.Execute(ctx, order)
	switch {
	case errors.Is(err, execution.ErrDeferred):
		logger.WithFields(fields).WithError(err).Warn("execution deferred, retrying next tick")
		if fill != nil {
			if err := a.deps.Ledger.RecordAttempt(ctx, order, fill); err != nil {
				logger.WithFields(fields).WithError(err).Warn("failed to record deferred attempt")
			}
		}
		return false, nil
	case errors.Is(err, model.ErrValidation):
		logger.WithFields(fields).WithError(err).Error("order cannot be executed")
		if err := a.deps.Ledger.Reject(ctx, order, nil); err != nil {
			return false, err
		}
		return true, nil
	case err != nil:
		return false, err
	}

	if !fill.Filled() {
		if err := a.deps.Ledger.Reject(ctx, order, fill); err != nil {
			return false, err
		}
		return true, nil
	}

	_, err = a.deps.Ledger.ApplyFill(ctx, order, fill)
	switch {
	case err == nil:
	case errors.Is(err, ledger.ErrAlreadyApplied):
		logger.WithFields(fields).Warn("fill already applied, skipping")
	case errors.Is(err, model.ErrAccounting):
		a.deps.Audit.Capture(ctx, "ledger", "ApplyFill", audit.LevelError, err, fields)
	default:
		return false, err
	}
	return true, nil
}
