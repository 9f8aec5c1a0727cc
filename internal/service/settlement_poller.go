package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"zkpay/internal/models"
)

var ErrSettlementUnconfirmed = errors.New("settlement not visible on the ledger yet")

// SettlementPoller watches the ledger for a submitted trade to settle. Running
// out of attempts is a soft failure: the caller keeps the trade's status.
type SettlementPoller struct {
	Ledger   TradeFetcher
	Attempts int
	Interval time.Duration
	Logger   *zap.Logger
}

func (p *SettlementPoller) Poll(ctx context.Context, tradeID string) (*models.Trade, error) {
	if p == nil || p.Ledger == nil {
		return nil, ErrSettlementUnconfirmed
	}
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 20
	}
	interval := p.Interval
	if interval <= 0 {
		interval = 3 * time.Second
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
		rec, err := p.Ledger.GetTrade(ctx, tradeID)
		switch {
		case err != nil:
			if p.Logger != nil {
				p.Logger.Debug("settlement poll failed", zap.String("trade_id", tradeID), zap.Int("attempt", attempt), zap.Error(err))
			}
		case rec != nil && rec.Status == models.LedgerSettled:
			return rec, nil
		}
		if attempt >= attempts {
			return nil, ErrSettlementUnconfirmed
		}
	}
}
