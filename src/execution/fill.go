package execution

import (
	"time"

	"github.com/shopspring/decimal"

	"tradeledger/src/model"
)

// Fill is the execution-mode-agnostic result of one execution attempt.
type Fill struct {
	Status          string // model.FillStatus*
	Mode            string // model.ExecutionMode*
	Quantity        decimal.Decimal
	Notional        decimal.Decimal // cash value exchanged, excluding fee
	OrderedPrice    decimal.Decimal
	LimitPrice      decimal.Decimal
	ExecutedPrice   decimal.Decimal
	SlippagePct     decimal.Decimal
	Fee             *decimal.Decimal // nil when the venue did not report one
	Latency         time.Duration
	ExchangeOrderID string
	Error           string
}

// Filled reports whether the fill moved quantity.
func (f *Fill) Filled() bool {
	return f != nil && f.Status == model.FillStatusFilled && f.Quantity.IsPositive()
}

// Record converts the fill into its persisted form.
func (f *Fill) Record(orderID uint) *model.ExecutionRecord {
	rec := &model.ExecutionRecord{
		OrderID:         orderID,
		Mode:            f.Mode,
		Status:          f.Status,
		OrderedPrice:    f.OrderedPrice,
		ExecutedPrice:   f.ExecutedPrice,
		Quantity:        f.Quantity,
		SlippagePct:     f.SlippagePct,
		Fee:             f.Fee,
		LatencyMs:       f.Latency.Milliseconds(),
		ExchangeOrderID: f.ExchangeOrderID,
	}
	if f.Error != "" {
		msg := f.Error
		rec.ErrorMessage = &msg
	}
	return rec
}

func slippage(ordered, executed decimal.Decimal) decimal.Decimal {
	if !ordered.IsPositive() {
		return decimal.Zero
	}
	return executed.Sub(ordered).Div(ordered)
}
