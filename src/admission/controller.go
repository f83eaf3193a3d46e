// Package admission decides whether a candidate trade becomes queued orders.
// Candidates run through an ordered list of gates; the first Block stops the
// pipeline and nothing is written.
package admission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradeledger/src/metrics"
	"tradeledger/src/model"
	"tradeledger/src/orders"
)

// PriceSource resolves a missing reference price.
type PriceSource interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, orders []*model.Order, reason string) error
}

// ActionRecorder is told about every admitted action.
type ActionRecorder interface {
	RecordAction(ctx context.Context, signature string)
}

// Result is an admitted candidate.
type Result struct {
	Candidate Candidate
	Orders    []*model.Order
	Warnings  []string
}

type Controller struct {
	gates    []Gate
	queue    Enqueuer
	prices   PriceSource
	recorder ActionRecorder
	config   Config
	now      func() time.Time
}

func NewController(gates []Gate, queue Enqueuer, prices PriceSource, recorder ActionRecorder, config Config) *Controller {
	return &Controller{
		gates:    gates,
		queue:    queue,
		prices:   prices,
		recorder: recorder,
		config:   config,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source.
func (c *Controller) WithClock(now func() time.Time) *Controller {
	c.now = now
	return c
}

// Admit runs the candidate through the pipeline and enqueues the resulting
// orders. Refusals are returned as *Rejection.
func (c *Controller) Admit(ctx context.Context, cand Candidate) (*Result, error) {
	cand.Symbol = strings.ToUpper(strings.TrimSpace(cand.Symbol))
	cand.Side = strings.ToUpper(strings.TrimSpace(cand.Side))
	fields := map[string]interface{}{
		"component": "Admission",
		"agent":     cand.Agent,
		"symbol":    cand.Symbol,
		"side":      cand.Side,
	}

	if rej := validate(&cand); rej != nil {
		return nil, c.reject(fields, rej)
	}

	if !cand.ReferencePrice.IsPositive() {
		price, err := c.quote(ctx, cand.Symbol)
		if err != nil {
			return nil, c.reject(fields, &Rejection{Code: CodeValidation, Gate: "quote", Reason: err.Error()})
		}
		cand.ReferencePrice = price
	}

	result := &Result{}
	for _, gate := range c.gates {
		verdict := gate.Evaluate(ctx, &cand)
		metrics.AdmissionDecisions.WithLabelValues(verdict.Action.String(), gate.Name()).Inc()

		switch verdict.Action {
		case ActionBlock:
			return nil, c.reject(fields, &Rejection{Code: CodeVeto, Gate: gate.Name(), Reason: verdict.Reason})

		case ActionAdjust:
			apply(&cand, verdict)
			if !cand.Notional.IsPositive() {
				return nil, c.reject(fields, &Rejection{Code: CodeVeto, Gate: gate.Name(), Reason: "size adjusted to zero"})
			}
			logger.WithFields(fields).WithFields(map[string]interface{}{
				"gate":     gate.Name(),
				"notional": cand.Notional.String(),
				"delay":    cand.Delay.String(),
				"slices":   cand.Slices,
			}).Info(verdict.Reason)

		default:
			if verdict.Reason != "" {
				result.Warnings = append(result.Warnings, gate.Name()+": "+verdict.Reason)
				logger.WithFields(fields).WithField("gate", gate.Name()).Warn(verdict.Reason)
			}
		}
	}

	ords := c.split(cand)
	if err := c.queue.Enqueue(ctx, ords, cand.Rationale); err != nil {
		if errors.Is(err, orders.ErrDuplicate) {
			return nil, c.reject(fields, &Rejection{Code: CodeVeto, Gate: GateDuplicate, Reason: err.Error()})
		}
		return nil, err
	}

	metrics.AdmissionDecisions.WithLabelValues("admitted", "").Inc()
	if c.recorder != nil {
		c.recorder.RecordAction(ctx, cand.Signature())
	}

	logger.WithFields(fields).WithFields(map[string]interface{}{
		"notional": cand.Notional.String(),
		"orders":   len(ords),
	}).Info("Candidate admitted")

	result.Candidate = cand
	result.Orders = ords
	return result, nil
}

func (c *Controller) quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if c.prices == nil {
		return decimal.Zero, fmt.Errorf("no reference price for %s and no quote source", symbol)
	}
	price, err := c.prices.Price(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive quote %s for %s", price, symbol)
	}
	return price, nil
}

func (c *Controller) reject(fields map[string]interface{}, rej *Rejection) error {
	metrics.AdmissionDecisions.WithLabelValues("rejected", rej.Gate).Inc()
	logger.WithFields(fields).WithFields(map[string]interface{}{
		"code": rej.Code,
		"gate": rej.Gate,
	}).Info("Candidate rejected: " + rej.Reason)
	return rej
}

func validate(c *Candidate) *Rejection {
	switch {
	case c.Symbol == "":
		return &Rejection{Code: CodeValidation, Gate: "input", Reason: "empty symbol"}
	case c.Side != model.SideBuy && c.Side != model.SideSell:
		return &Rejection{Code: CodeValidation, Gate: "input", Reason: fmt.Sprintf("unknown side %q", c.Side)}
	case !c.Notional.IsPositive():
		return &Rejection{Code: CodeValidation, Gate: "input", Reason: "notional must be positive"}
	case c.Quantity.IsNegative():
		return &Rejection{Code: CodeValidation, Gate: "input", Reason: "quantity must not be negative"}
	}
	return nil
}

func apply(c *Candidate, v Verdict) {
	if !v.Notional.IsZero() {
		if c.Quantity.IsPositive() {
			c.Quantity = c.Quantity.Mul(v.Notional).Div(c.Notional).Truncate(8)
			if !c.Quantity.IsPositive() {
				// Reported by Admit as an adjustment to zero.
				c.Notional = decimal.Zero
				return
			}
		}
		c.Notional = v.Notional
	}
	if v.Delay > c.Delay {
		c.Delay = v.Delay
	}
	if v.Slices > 1 {
		c.Slices = v.Slices
	}
}

// split turns the candidate into its slices. The last slice absorbs the
// rounding remainder so the slices sum to the candidate amount. A SELL that
// carries a quantity is sliced in units, everything else in notional.
func (c *Controller) split(cand Candidate) []*model.Order {
	n := cand.Slices
	if n < 1 {
		n = 1
	}
	now := c.now()

	total, amountType := cand.Notional, model.AmountNotional
	if cand.Side == model.SideSell && cand.Quantity.IsPositive() {
		total, amountType = cand.Quantity, model.AmountQuantity
	}
	each := total.Div(decimal.NewFromInt(int64(n))).Truncate(8)
	remaining := total

	out := make([]*model.Order, 0, n)
	for i := 0; i < n; i++ {
		amount := each
		if i == n-1 {
			amount = remaining
		}
		remaining = remaining.Sub(amount)

		o := &model.Order{
			Symbol:         cand.Symbol,
			Side:           cand.Side,
			Amount:         amount,
			AmountType:     amountType,
			ReferencePrice: cand.ReferencePrice,
			Reason:         cand.Rationale,
			StrategyTag:    cand.StrategyTag,
			Agent:          cand.Agent,
			SliceIndex:     i,
			SliceCount:     n,
		}
		if delay := cand.Delay + time.Duration(i)*c.config.SliceInterval; delay > 0 {
			at := now.Add(delay)
			o.NotBefore = &at
		}
		out = append(out, o)
	}
	return out
}
