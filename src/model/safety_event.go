package model

import "time"

const (
	SafetyEventTermination = "TERMINATION"
	SafetyEventReset       = "RESET"
)

// SafetyEvent is the audit trail of the safety monitor. A TERMINATION row
// halts every agent until a later RESET row is written by an operator.
type SafetyEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Kind      string    `gorm:"size:20;not null;index" json:"kind"`
	Rule      string    `gorm:"size:50" json:"rule"`
	Detail    string    `gorm:"type:text" json:"detail"`
	Agent     string    `gorm:"size:100" json:"agent"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (SafetyEvent) TableName() string {
	return "safety_events"
}
