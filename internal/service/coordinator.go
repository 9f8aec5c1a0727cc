package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"zkpay/internal/client/ledger"
	"zkpay/internal/config"
	"zkpay/internal/models"
	"zkpay/internal/trade"
)

var ErrEmptyBatch = errors.New("no trades to track")

// LedgerAPI is everything the coordinator and its sessions need from the
// backend ledger.
type LedgerAPI interface {
	trade.Backend
	TradeFetcher
	CreateTrades(ctx context.Context, req ledger.CreateTradesRequest) ([]ledger.CreatedTrade, error)
}

type OpenRequest struct {
	Buyer string
	Fills []ledger.Fill
}

// Coordinator is the registry of live sessions. All sessions share one
// submission queue, since every proof is submitted by the same relayer.
type Coordinator struct {
	Ledger     LedgerAPI
	Journal    EventSink
	Config     config.OrchestratorConfig
	Gate       trade.Gate
	Logger     *zap.Logger
	Now        func() time.Time
	OnComplete func(sessionID string, statuses map[string]trade.Status)
	// TickInterval, when set, makes Run drive the deadline tick itself. Used
	// when no scheduler calls Tick.
	TickInterval time.Duration

	mu       sync.Mutex
	base     context.Context
	sessions map[string]*Session
	queue    SubmissionQueue
}

// Run binds session pipelines to ctx and closes every session once ctx ends.
func (c *Coordinator) Run(ctx context.Context) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	c.base = ctx
	c.mu.Unlock()

	if c.TickInterval > 0 {
		t := time.NewTicker(c.TickInterval)
		defer t.Stop()
	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case <-t.C:
				c.Tick(c.now())
			}
		}
	} else {
		<-ctx.Done()
	}

	for _, s := range c.list() {
		s.Close()
	}
	for _, s := range c.list() {
		s.Wait()
	}
	return ctx.Err()
}

// Open creates escrow trades for a match plan, waits until all of them are
// readable on the ledger and starts tracking them. A creation sync timeout
// fails the whole batch.
func (c *Coordinator) Open(ctx context.Context, req OpenRequest) (*Session, error) {
	if c == nil || c.Ledger == nil {
		return nil, errors.New("coordinator is not configured")
	}
	if len(req.Fills) == 0 {
		return nil, ErrEmptyBatch
	}
	created, err := c.Ledger.CreateTrades(ctx, ledger.CreateTradesRequest{
		Buyer: strings.TrimSpace(req.Buyer),
		Fills: req.Fills,
	})
	if err != nil {
		return nil, fmt.Errorf("create trades: %w", err)
	}
	if len(created) == 0 {
		return nil, fmt.Errorf("create trades: %w", ErrEmptyBatch)
	}
	ids := make([]string, 0, len(created))
	byID := make(map[string]ledger.CreatedTrade, len(created))
	for _, ct := range created {
		ids = append(ids, ct.TradeID)
		byID[ct.TradeID] = ct
	}
	c.logger().Info("trades created", zap.Strings("trade_ids", ids))

	trades, err := c.sync(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range trades {
		mergeCreated(&trades[i], byID[trades[i].TradeID])
	}
	return c.register(trades), nil
}

// Attach starts tracking trades that already exist on the ledger.
func (c *Coordinator) Attach(ctx context.Context, tradeIDs []string) (*Session, error) {
	if c == nil || c.Ledger == nil {
		return nil, errors.New("coordinator is not configured")
	}
	ids := cleanIDs(tradeIDs)
	if len(ids) == 0 {
		return nil, ErrEmptyBatch
	}
	trades, err := c.sync(ctx, ids)
	if err != nil {
		return nil, err
	}
	return c.register(trades), nil
}

func (c *Coordinator) sync(ctx context.Context, ids []string) ([]models.Trade, error) {
	cs := &CreationSync{
		Ledger:   c.Ledger,
		Attempts: c.Config.CreationSyncAttempts,
		Interval: c.Config.CreationSyncInterval,
		Logger:   c.logger(),
	}
	found, err := cs.Wait(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]models.Trade, 0, len(ids))
	for _, id := range ids {
		t := *found[id]
		if t.TradeID == "" {
			t.TradeID = id
		}
		out = append(out, t)
	}
	return out, nil
}

func (c *Coordinator) register(trades []models.Trade) *Session {
	id := uuid.NewString()
	log := c.logger().With(zap.String("session_id", id))
	s := NewSession(c.baseContext(), id, trades, SessionConfig{
		Backend:                 c.Ledger,
		Ledger:                  c.Ledger,
		Queue:                   &c.queue,
		Gate:                    c.Gate,
		Journal:                 c.Journal,
		Logger:                  log,
		Now:                     c.Now,
		SettlementAttempts:      c.Config.SettlementAttempts,
		SettlementInterval:      c.Config.SettlementInterval,
		SettlementGrace:         c.Config.SettlementGrace,
		EnforceDeadlineOnSubmit: c.Config.EnforceDeadlineOnSubmit,
		OnComplete:              c.OnComplete,
	})

	c.mu.Lock()
	if c.sessions == nil {
		c.sessions = map[string]*Session{}
	}
	c.sessions[id] = s
	c.mu.Unlock()

	log.Info("session opened", zap.Strings("trade_ids", s.TradeIDs()))
	if c.Journal != nil {
		raw, _ := json.Marshal(map[string]any{"trade_ids": s.TradeIDs()})
		c.Journal.Record(context.Background(), models.TradeEvent{
			SessionID:  id,
			Kind:       models.EventSessionOpened,
			Details:    datatypes.JSON(raw),
			OccurredAt: s.CreatedAt,
		})
	}
	return s
}

func (c *Coordinator) Get(id string) (*Session, error) {
	if c == nil {
		return nil, ErrSessionNotFound
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Close stops a session's pipelines and forgets it.
func (c *Coordinator) Close(id string) error {
	if c == nil {
		return ErrSessionNotFound
	}
	c.mu.Lock()
	s, ok := c.sessions[id]
	delete(c.sessions, id)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.Close()
	c.logger().Info("session closed", zap.String("session_id", id))
	return nil
}

func (c *Coordinator) Count() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// Tick is the shared deadline tick for every trade of every session.
func (c *Coordinator) Tick(now time.Time) {
	for _, s := range c.list() {
		s.Tick(now)
	}
}

// RefreshPending asks the ledger about every pending trade.
func (c *Coordinator) RefreshPending(ctx context.Context) {
	changed := 0
	for _, s := range c.list() {
		if ctx.Err() != nil {
			return
		}
		changed += s.RefreshPending(ctx)
	}
	if changed > 0 {
		c.logger().Info("pending trades updated from ledger", zap.Int("trades", changed))
	}
}

// Sweep drops sessions that finished, or went idle, more than the session TTL
// before now.
func (c *Coordinator) Sweep(now time.Time) int {
	ttl := c.Config.SessionTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	cutoff := now.Add(-ttl)
	var dropped []*Session
	c.mu.Lock()
	for id, s := range c.sessions {
		if s.Sweepable(cutoff) {
			delete(c.sessions, id)
			dropped = append(dropped, s)
		}
	}
	c.mu.Unlock()
	for _, s := range dropped {
		s.Close()
	}
	if len(dropped) > 0 {
		c.logger().Info("sessions swept", zap.Int("sessions", len(dropped)))
	}
	return len(dropped)
}

func (c *Coordinator) list() []*Session {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s)
	}
	return out
}

func (c *Coordinator) baseContext() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.base != nil {
		return c.base
	}
	return context.Background()
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Coordinator) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// mergeCreated fills fields the ledger read may omit from the creation result.
func mergeCreated(t *models.Trade, ct ledger.CreatedTrade) {
	if t.OrderID == "" {
		t.OrderID = ct.OrderID
	}
	if t.EscrowTxHash == "" {
		t.EscrowTxHash = ct.TxHash
	}
	if t.AlipayID == "" {
		t.AlipayID = ct.AlipayID
	}
	if t.AlipayName == "" {
		t.AlipayName = ct.AlipayName
	}
	if t.PaymentNonce == "" {
		t.PaymentNonce = ct.PaymentNonce
	}
	if t.ExpiresAt == 0 {
		t.ExpiresAt = ct.ExpiresAt
	}
}

func cleanIDs(items []string) []string {
	out := make([]string, 0, len(items))
	seen := map[string]struct{}{}
	for _, raw := range items {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
