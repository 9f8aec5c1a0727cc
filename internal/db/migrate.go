package db

import (
	"zkpay/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}
	if err := db.Gorm.AutoMigrate(&models.TradeEvent{}); err != nil {
		return err
	}
	// Session listings read one session's rows in time order.
	return db.Gorm.Exec(
		"CREATE INDEX IF NOT EXISTS idx_trade_events_session_time ON trade_events (session_id, occurred_at)",
	).Error
}
