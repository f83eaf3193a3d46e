package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the holding of a single symbol. Rows are upserted by symbol and
// are never deleted, a closed position simply carries quantity zero.
type Position struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Symbol       string          `gorm:"size:50;not null;uniqueIndex" json:"symbol"`
	Quantity     decimal.Decimal `gorm:"type:numeric(36,18);not null;default:0" json:"quantity"`
	AvgCostBasis decimal.Decimal `gorm:"type:numeric(36,18);not null;default:0" json:"avg_cost_basis"`
	PeakPrice    decimal.Decimal `gorm:"type:numeric(36,18);not null;default:0" json:"peak_price"`
	HarvestLevel int             `gorm:"not null;default:0" json:"harvest_level"`
	StrategyTag  string          `gorm:"size:100" json:"strategy_tag"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (Position) TableName() string {
	return "positions"
}

// CostValue is quantity times average cost basis.
func (p Position) CostValue() decimal.Decimal {
	return p.Quantity.Mul(p.AvgCostBasis)
}

// CashBucket holds a named cash balance, e.g. "trading" or "reserve".
type CashBucket struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	BucketID  string          `gorm:"size:50;not null;uniqueIndex" json:"bucket_id"`
	Balance   decimal.Decimal `gorm:"type:numeric(36,18);not null;default:0" json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (CashBucket) TableName() string {
	return "cash_buckets"
}

// RealizedPnL is written once per completed SELL.
type RealizedPnL struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	OrderID        uint            `gorm:"not null;uniqueIndex" json:"order_id"`
	Symbol         string          `gorm:"size:50;not null;index" json:"symbol"`
	ProfitAmount   decimal.Decimal `gorm:"type:numeric(36,18);not null" json:"profit_amount"`
	RoiPct         decimal.Decimal `gorm:"type:numeric(36,18);not null" json:"roi_pct"`
	ReserveAmount  decimal.Decimal `gorm:"type:numeric(36,18);not null;default:0" json:"reserve_amount"`
	RecycledAmount decimal.Decimal `gorm:"type:numeric(36,18);not null;default:0" json:"recycled_amount"`
	CreatedAt      time.Time       `gorm:"index" json:"created_at"`
}

func (RealizedPnL) TableName() string {
	return "realized_pnl"
}
