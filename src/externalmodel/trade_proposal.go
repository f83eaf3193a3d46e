package externalmodel

import "time"

// TradeProposal is a candidate trade written by an out-of-scope collaborator
// (strategy or reflection agents) into the read-only signal database.
type TradeProposal struct {
	ID             uint       `gorm:"primaryKey;column:id" json:"id"`
	Agent          string     `gorm:"column:agent" json:"agent"`
	Symbol         string     `gorm:"column:symbol" json:"symbol"`
	Side           string     `gorm:"column:side" json:"side"`
	Notional       float64    `gorm:"column:notional" json:"notional"`
	ReferencePrice *float64   `gorm:"column:reference_price" json:"reference_price,omitempty"`
	Rationale      string     `gorm:"column:rationale" json:"rationale"`
	StrategyTag    string     `gorm:"column:strategy_tag" json:"strategy_tag"`
	Lane           string     `gorm:"column:lane" json:"lane"`
	CreatedAt      *time.Time `gorm:"column:created_at" json:"created_at,omitempty"`
}

// TableName Ensures that GORM uses the exact table name from the database.
func (TradeProposal) TableName() string {
	return "trade_proposals"
}
