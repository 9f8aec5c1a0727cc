package repository

import (
	"context"
	"time"

	"zkpay/internal/models"
)

// JournalRepository stores the append-only trade transition journal.
type JournalRepository interface {
	InsertTradeEvent(ctx context.Context, item *models.TradeEvent) error
	ListTradeEvents(ctx context.Context, params ListTradeEventsParams) ([]models.TradeEvent, error)
	DeleteTradeEventsBefore(ctx context.Context, before time.Time) (int64, error)
}

type ListTradeEventsParams struct {
	Limit     int
	Offset    int
	SessionID string
	TradeID   *string
	Kind      *string
	Since     *time.Time
	Asc       *bool
}

// Nop is used when the journal is disabled.
type Nop struct{}

func (Nop) InsertTradeEvent(ctx context.Context, item *models.TradeEvent) error { return nil }

func (Nop) ListTradeEvents(ctx context.Context, params ListTradeEventsParams) ([]models.TradeEvent, error) {
	return nil, nil
}

func (Nop) DeleteTradeEventsBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}
