// model/order_execution_log.go
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Execution modes.
const (
	ExecutionModeLive      = "LIVE"
	ExecutionModeSimulated = "SIMULATED"
)

// Fill status values reported by the execution client.
const (
	FillStatusFilled   = "FILLED"
	FillStatusRejected = "REJECTED"
	FillStatusError    = "ERROR"
)

// ExecutionRecord stores one fill attempt against the exchange (live or simulated).
type ExecutionRecord struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Foreign key to Order
	OrderID uint   `gorm:"index;not null" json:"order_id"`
	Order   *Order `gorm:"constraint:OnDelete:CASCADE" json:"order,omitempty"`

	Mode            string           `gorm:"size:20;not null" json:"mode"`
	Status          string           `gorm:"size:20;not null" json:"status"`
	OrderedPrice    decimal.Decimal  `gorm:"type:numeric(36,18)" json:"ordered_price"`
	ExecutedPrice   decimal.Decimal  `gorm:"type:numeric(36,18)" json:"executed_price"`
	Quantity        decimal.Decimal  `gorm:"type:numeric(36,18)" json:"quantity"`
	SlippagePct     decimal.Decimal  `gorm:"type:numeric(36,18)" json:"slippage_pct"`
	Fee             *decimal.Decimal `gorm:"type:numeric(36,18)" json:"fee,omitempty"` // nil when the exchange did not report one
	LatencyMs       int64            `json:"latency_ms"`
	ExchangeOrderID string           `gorm:"size:255" json:"exchange_order_id"`
	ErrorMessage    *string          `json:"error_message,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// TableName keeps the persisted layout name.
func (ExecutionRecord) TableName() string {
	return "execution_log"
}
