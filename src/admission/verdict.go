package admission

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradeledger/src/model"
)

// Candidate is a proposed trade on its way through the pipeline. Adjusting
// gates rewrite Notional, Delay and Slices in place.
//
// Quantity is optional and only honoured on SELL: when set, the orders are
// sized in units so a full exit cannot oversell when the price moves.
type Candidate struct {
	Symbol         string
	Side           string
	Notional       decimal.Decimal
	Quantity       decimal.Decimal
	ReferencePrice decimal.Decimal
	Rationale      string
	StrategyTag    string
	Lane           string
	Agent          string

	Delay  time.Duration
	Slices int
}

// Signature identifies the kind of action, e.g. "BUY:BTCUSDT".
func (c Candidate) Signature() string {
	return c.Side + ":" + c.Symbol
}

type Action int

const (
	ActionPass Action = iota
	ActionAdjust
	ActionBlock
)

func (a Action) String() string {
	switch a {
	case ActionAdjust:
		return "adjust"
	case ActionBlock:
		return "block"
	default:
		return "pass"
	}
}

// Verdict is the outcome of one gate. For ActionAdjust, zero fields mean
// "leave unchanged". A Pass may carry a warning in Reason.
type Verdict struct {
	Action   Action
	Notional decimal.Decimal
	Delay    time.Duration
	Slices   int
	Reason   string
}

func Pass() Verdict { return Verdict{Action: ActionPass} }

// Warn passes the candidate but records reason.
func Warn(reason string) Verdict { return Verdict{Action: ActionPass, Reason: reason} }

func Block(reason string) Verdict { return Verdict{Action: ActionBlock, Reason: reason} }

func Adjust(notional decimal.Decimal, delay time.Duration, slices int, reason string) Verdict {
	return Verdict{Action: ActionAdjust, Notional: notional, Delay: delay, Slices: slices, Reason: reason}
}

// Rejection codes.
const (
	CodeValidation = "VALIDATION"
	CodeVeto       = "ADMISSION_VETO"
)

// Rejection is the structured refusal returned to the caller. It matches
// model.ErrValidation or model.ErrAdmissionVeto with errors.Is.
type Rejection struct {
	Code   string
	Gate   string
	Reason string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s by %s: %s", r.Code, r.Gate, r.Reason)
}

func (r *Rejection) Unwrap() error {
	if r.Code == CodeValidation {
		return model.ErrValidation
	}
	return model.ErrAdmissionVeto
}
