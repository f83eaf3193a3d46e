package externalmodel

import "time"

// Advisory signal kinds published by the out-of-scope collaborators.
const (
	SignalRiskScore         = "risk_score"
	SignalSystemStress      = "system_stress"
	SignalGovernanceScore   = "governance_score"
	SignalFailureSimilarity = "failure_similarity"
	SignalPurposeScore      = "purpose_score"
	SignalCompetitiveAdvice = "competitive_advice"
)

// AdvisorySignal is one published value. Global signals carry an empty symbol.
// For failure similarity, Detail holds "<severity>:<pattern>". For competitive
// advice it holds "<veto|scale|delay|split>:<reason>" and Value carries the
// scale, the delay in seconds or the slice count.
type AdvisorySignal struct {
	ID        uint      `gorm:"primaryKey;column:id" json:"id"`
	Kind      string    `gorm:"column:kind;index:idx_advisory_kind_symbol" json:"kind"`
	Symbol    string    `gorm:"column:symbol;index:idx_advisory_kind_symbol" json:"symbol"`
	Value     float64   `gorm:"column:value" json:"value"`
	Detail    string    `gorm:"column:detail" json:"detail"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (AdvisorySignal) TableName() string {
	return "advisory_signals"
}
