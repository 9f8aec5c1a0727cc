package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"zkpay/internal/models"
	"zkpay/internal/paas"
	"zkpay/internal/repository"
	"zkpay/internal/trade"
)

// EventSink receives every journal-worthy event of a session.
type EventSink interface {
	Record(ctx context.Context, ev models.TradeEvent)
}

// JournalService writes trade events to the journal table and forwards the
// ones worth an audit entry to the platform log.
type JournalService struct {
	Repo   repository.JournalRepository
	PaaS   *paas.Client
	Logger *zap.Logger
}

func (s *JournalService) Record(ctx context.Context, ev models.TradeEvent) {
	if s == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if s.Repo != nil {
		ctx2, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
		err := s.Repo.InsertTradeEvent(ctx2, &ev)
		cancel()
		if err != nil && s.Logger != nil {
			s.Logger.Warn("journal insert failed",
				zap.String("session_id", ev.SessionID),
				zap.String("trade_id", ev.TradeID),
				zap.String("kind", ev.Kind),
				zap.Error(err),
			)
		}
	}
	if !auditWorthy(ev) {
		return
	}
	details := map[string]any{
		"session_id": ev.SessionID,
		"trade_id":   ev.TradeID,
		"from":       ev.FromStatus,
		"to":         ev.ToStatus,
		"tx_hash":    ev.TxHash,
		"message":    ev.Message,
	}
	if err := s.PaaS.Forward(ctx, "zkpay_"+ev.Kind, auditLevel(ev), details); err != nil && s.Logger != nil {
		s.Logger.Debug("paas audit log failed", zap.String("kind", ev.Kind), zap.Error(err))
	}
}

func (s *JournalService) List(ctx context.Context, sessionID string, limit, offset int) ([]models.TradeEvent, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	asc := true
	return s.Repo.ListTradeEvents(ctx, repository.ListTradeEventsParams{
		SessionID: sessionID,
		Limit:     limit,
		Offset:    offset,
		Asc:       &asc,
	})
}

func auditWorthy(ev models.TradeEvent) bool {
	switch ev.Kind {
	case models.EventSessionOpened, models.EventSessionCompleted, models.EventSettlementSoft:
		return true
	case models.EventTransition:
		to := trade.Status(ev.ToStatus)
		return to.Terminal() || to == trade.StatusInvalid || to == trade.StatusProofFailed || to == trade.StatusSubmitted
	}
	return false
}

func auditLevel(ev models.TradeEvent) string {
	switch {
	case ev.Kind == models.EventSettlementSoft:
		return "warn"
	case ev.ToStatus == string(trade.StatusInvalid), ev.ToStatus == string(trade.StatusProofFailed), ev.ToStatus == string(trade.StatusExpired):
		return "warn"
	}
	return "info"
}

// transitionEvent turns a machine transition into a journal row.
func transitionEvent(sessionID string, tr trade.Transition) models.TradeEvent {
	var details datatypes.JSON
	if tr.Error != "" {
		raw, _ := json.Marshal(map[string]any{"error": tr.Error})
		details = datatypes.JSON(raw)
	}
	return models.TradeEvent{
		SessionID:  sessionID,
		TradeID:    tr.TradeID,
		Kind:       models.EventTransition,
		FromStatus: string(tr.From),
		ToStatus:   string(tr.To),
		Message:    tr.Error,
		TxHash:     tr.TxHash,
		Details:    details,
		OccurredAt: tr.At,
	}
}
