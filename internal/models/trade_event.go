package models

import (
	"time"

	"gorm.io/datatypes"
)

// TradeEvent is one row of the local transition journal.
type TradeEvent struct {
	ID         uint64         `gorm:"primaryKey;autoIncrement"`
	SessionID  string         `gorm:"type:varchar(64);not null;index"`
	TradeID    string         `gorm:"type:varchar(100);index"`
	Kind       string         `gorm:"type:varchar(40);not null;index"`
	FromStatus string         `gorm:"type:varchar(40)"`
	ToStatus   string         `gorm:"type:varchar(40)"`
	Message    string         `gorm:"type:text"`
	TxHash     string         `gorm:"type:varchar(100)"`
	Details    datatypes.JSON `gorm:"type:jsonb"`
	OccurredAt time.Time      `gorm:"type:timestamptz;not null;index"`
	CreatedAt  time.Time      `gorm:"type:timestamptz;autoCreateTime"`
}

func (TradeEvent) TableName() string {
	return "trade_events"
}

const (
	EventTransition       = "transition"
	EventSessionOpened    = "session_opened"
	EventSessionCompleted = "session_completed"
	EventSessionClosed    = "session_closed"
	EventSettlementSoft   = "settlement_unconfirmed"
)
