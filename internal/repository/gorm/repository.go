package gormrepository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"zkpay/internal/models"
	"zkpay/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InsertTradeEvent(ctx context.Context, item *models.TradeEvent) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if item.OccurredAt.IsZero() {
		item.OccurredAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListTradeEvents(ctx context.Context, params repository.ListTradeEventsParams) ([]models.TradeEvent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.TradeEvent
	if err := tradeEventsQuery(s.db.WithContext(ctx), params).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func tradeEventsQuery(db *gorm.DB, params repository.ListTradeEventsParams) *gorm.DB {
	query := db.Model(&models.TradeEvent{})
	if v := strings.TrimSpace(params.SessionID); v != "" {
		query = query.Where("session_id = ?", v)
	}
	if params.TradeID != nil && strings.TrimSpace(*params.TradeID) != "" {
		query = query.Where("trade_id = ?", strings.TrimSpace(*params.TradeID))
	}
	if params.Kind != nil && strings.TrimSpace(*params.Kind) != "" {
		query = query.Where("kind = ?", strings.TrimSpace(*params.Kind))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("occurred_at >= ?", *params.Since)
	}
	if params.Asc != nil && *params.Asc {
		query = query.Order("occurred_at asc").Order("id asc")
	} else {
		query = query.Order("occurred_at desc").Order("id desc")
	}
	return query.Limit(normalizeLimit(params.Limit, 200)).Offset(normalizeOffset(params.Offset))
}

func (s *Store) DeleteTradeEventsBefore(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	if before.IsZero() {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Where("occurred_at < ?", before).Delete(&models.TradeEvent{})
	return res.RowsAffected, res.Error
}

func normalizeLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
