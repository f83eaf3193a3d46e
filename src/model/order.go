package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order status values. PENDING and APPROVED are live, the rest are absorbing.
const (
	OrderStatusPending  = "PENDING"
	OrderStatusApproved = "APPROVED"
	OrderStatusDone     = "DONE"
	OrderStatusFailed   = "FAILED"
	OrderStatusExpired  = "EXPIRED"
	OrderStatusVetoed   = "VETOED"
)

// Amount types. A notional amount is quoted in the cash asset and is resolved
// to units against the live price at execution time.
const (
	AmountNotional = "NOTIONAL"
	AmountQuantity = "QUANTITY"
)

// Order is a trade intent admitted by the admission pipeline.
type Order struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	Symbol         string          `gorm:"size:50;not null;index:idx_orders_symbol_side_status" json:"symbol"`
	Side           string          `gorm:"size:10;not null;index:idx_orders_symbol_side_status" json:"side"`
	Amount         decimal.Decimal `gorm:"type:numeric(36,18);not null" json:"amount"`
	AmountType     string          `gorm:"size:20;not null;default:NOTIONAL" json:"amount_type"`
	ReferencePrice decimal.Decimal `gorm:"type:numeric(36,18);not null" json:"reference_price"`
	Status         string          `gorm:"size:20;not null;default:PENDING;index:idx_orders_symbol_side_status" json:"status"`
	Reason         string          `gorm:"size:1024" json:"reason"`
	StrategyTag    string          `gorm:"size:100" json:"strategy_tag"`
	Agent          string          `gorm:"size:100;index" json:"agent"`
	SliceIndex     int             `gorm:"not null;default:0" json:"slice_index"`
	SliceCount     int             `gorm:"not null;default:1" json:"slice_count"`
	NotBefore      *time.Time      `json:"not_before,omitempty"`
	ApprovedAt     *time.Time      `json:"approved_at,omitempty"`
	ExecutedAt     *time.Time      `json:"executed_at,omitempty"`
	CreatedAt      time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`

	Logs []OrderLog `gorm:"foreignKey:OrderID" json:"order_logs,omitempty"`
}

// TableName allows you to control the exact table name for orders.
func (Order) TableName() string {
	return "orders"
}

// IsTerminal reports whether status can never change again.
func IsTerminal(status string) bool {
	switch status {
	case OrderStatusDone, OrderStatusFailed, OrderStatusExpired, OrderStatusVetoed:
		return true
	default:
		return false
	}
}

// Signature identifies the kind of action an order represents, e.g. "BUY:BTC".
func (o Order) Signature() string {
	return o.Side + ":" + o.Symbol
}

// OrderLog is the append-only status history of an order.
type OrderLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	OrderID    uint      `gorm:"index;not null" json:"order_id"`
	FromStatus string    `gorm:"size:20" json:"from_status"`
	ToStatus   string    `gorm:"size:20;not null" json:"to_status"`
	Reason     string    `gorm:"size:1024" json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

func (OrderLog) TableName() string {
	return "order_logs"
}
