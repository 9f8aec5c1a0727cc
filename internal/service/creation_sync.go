package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"zkpay/internal/models"
)

var ErrCreationSyncTimeout = errors.New("created trades are not visible on the ledger yet")

// CreationSyncError reports a creation sync that ran out of attempts. The
// trades exist on-chain, so TradeIDs lists all of them for a later attach.
type CreationSyncError struct {
	TradeIDs []string
	Missing  []string
	Attempts int
}

func (e *CreationSyncError) Error() string {
	return fmt.Sprintf("%s after %d attempts: missing %s", ErrCreationSyncTimeout, e.Attempts, strings.Join(e.Missing, ","))
}

func (e *CreationSyncError) Unwrap() error { return ErrCreationSyncTimeout }

// TradeFetcher reads a single trade record from the ledger.
type TradeFetcher interface {
	GetTrade(ctx context.Context, tradeID string) (*models.Trade, error)
}

// CreationSync waits until freshly created trades can be read back from the
// ledger. A round only counts when every id resolves in it.
type CreationSync struct {
	Ledger   TradeFetcher
	Attempts int
	Interval time.Duration
	Logger   *zap.Logger
}

// Wait returns the ledger records of the round in which every id resolved.
func (s *CreationSync) Wait(ctx context.Context, tradeIDs []string) (map[string]*models.Trade, error) {
	if s == nil || s.Ledger == nil {
		return nil, errors.New("creation sync is not configured")
	}
	if len(tradeIDs) == 0 {
		return map[string]*models.Trade{}, nil
	}
	attempts := s.Attempts
	if attempts <= 0 {
		attempts = 20
	}
	interval := s.Interval
	if interval <= 0 {
		interval = 3 * time.Second
	}

	var missing []string
	for attempt := 1; attempt <= attempts; attempt++ {
		found, miss := s.round(ctx, tradeIDs)
		if len(miss) == 0 {
			if s.Logger != nil {
				s.Logger.Info("created trades visible on ledger",
					zap.Int("trades", len(tradeIDs)),
					zap.Int("attempt", attempt),
				)
			}
			return found, nil
		}
		missing = miss
		if s.Logger != nil {
			s.Logger.Debug("waiting for created trades",
				zap.Int("attempt", attempt),
				zap.Strings("missing", miss),
			)
		}
		if attempt == attempts {
			break
		}
		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return nil, &CreationSyncError{
		TradeIDs: append([]string(nil), tradeIDs...),
		Missing:  missing,
		Attempts: attempts,
	}
}

func (s *CreationSync) round(ctx context.Context, tradeIDs []string) (map[string]*models.Trade, []string) {
	found := make(map[string]*models.Trade, len(tradeIDs))
	var missing []string
	for _, id := range tradeIDs {
		t, err := s.Ledger.GetTrade(ctx, id)
		if err != nil || t == nil {
			missing = append(missing, id)
			continue
		}
		found[id] = t
	}
	return found, missing
}
