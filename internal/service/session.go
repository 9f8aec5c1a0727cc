package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"zkpay/internal/models"
	"zkpay/internal/trade"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session is closed")
	ErrTradeNotFound   = errors.New("trade not found in session")
)

type SessionConfig struct {
	Backend trade.Backend
	// Ledger feeds the settlement poller and the pending-trade refresh.
	Ledger TradeFetcher
	// Queue serializes proof submissions. Sessions sharing a queue share the
	// ordering guarantee.
	Queue   *SubmissionQueue
	Gate    trade.Gate
	Journal EventSink
	Logger  *zap.Logger
	Now     func() time.Time

	SettlementAttempts      int
	SettlementInterval      time.Duration
	SettlementGrace         time.Duration
	EnforceDeadlineOnSubmit bool

	// OnComplete fires once, when every trade of a non-empty batch is settled.
	OnComplete func(sessionID string, statuses map[string]trade.Status)
}

// Session owns one state machine per trade of a batch and drives each trade's
// pipeline in its own goroutine. Trades never read each other's state; the
// only thing they share is the submission queue.
type Session struct {
	ID        string
	CreatedAt time.Time

	cfg    SessionConfig
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	order    []string
	machines map[string]*trade.Machine

	mu           sync.Mutex
	closed       bool
	completedAt  *time.Time
	finishedAt   time.Time
	lastActivity time.Time
	warnings     map[string]string
	subs         map[int]chan SessionSnapshot
	nextSub      int
}

func NewSession(parent context.Context, id string, trades []models.Trade, cfg SessionConfig) *Session {
	if parent == nil {
		parent = context.Background()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Queue == nil {
		cfg.Queue = &SubmissionQueue{}
	}
	if cfg.SettlementGrace <= 0 {
		cfg.SettlementGrace = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	now := cfg.Now().UTC()
	s := &Session{
		ID:           id,
		CreatedAt:    now,
		cfg:          cfg,
		ctx:          ctx,
		cancel:       cancel,
		machines:     make(map[string]*trade.Machine, len(trades)),
		lastActivity: now,
		warnings:     map[string]string{},
		subs:         map[int]chan SessionSnapshot{},
	}
	for _, t := range trades {
		if _, dup := s.machines[t.TradeID]; dup || t.TradeID == "" {
			continue
		}
		s.order = append(s.order, t.TradeID)
		s.machines[t.TradeID] = trade.NewMachine(t, trade.MachineConfig{
			Backend:                 cfg.Backend,
			Gate:                    cfg.Gate,
			Now:                     cfg.Now,
			OnTransition:            s.handleTransition,
			EnforceDeadlineOnSubmit: cfg.EnforceDeadlineOnSubmit,
		})
	}
	// Trades the ledger already reports as settled or expired start there.
	for i := range trades {
		if m, ok := s.machines[trades[i].TradeID]; ok {
			rec := trades[i]
			m.ObserveLedger(&rec)
		}
	}
	return s
}

func (s *Session) TradeIDs() []string {
	return append([]string(nil), s.order...)
}

func (s *Session) machine(tradeID string) (*trade.Machine, error) {
	m, ok := s.machines[tradeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTradeNotFound, tradeID)
	}
	return m, nil
}

// SubmitReceipt gate-checks the receipt and, if accepted, runs the trade's
// pipeline in the background: upload, validation, proof, queued submission
// and settlement confirmation.
func (s *Session) SubmitReceipt(tradeID string, r trade.Receipt) error {
	if s.ctx.Err() != nil {
		return ErrSessionClosed
	}
	m, err := s.machine(tradeID)
	if err != nil {
		return err
	}
	if err := m.SelectReceipt(r); err != nil {
		s.publish()
		return err
	}
	s.clearWarning(tradeID)
	s.spawn(func(ctx context.Context) { s.runFromUpload(ctx, m, r) })
	return nil
}

// Retry resets an invalid or proof_failed trade to pending.
func (s *Session) Retry(tradeID string) error {
	m, err := s.machine(tradeID)
	if err != nil {
		return err
	}
	if err := m.Retry(); err != nil {
		return err
	}
	s.clearWarning(tradeID)
	return nil
}

// ResumeProof restarts proof generation for a trade whose receipt the backend
// already accepted.
func (s *Session) ResumeProof(tradeID string) error {
	if s.ctx.Err() != nil {
		return ErrSessionClosed
	}
	m, err := s.machine(tradeID)
	if err != nil {
		return err
	}
	st := m.Snapshot()
	if st.Status != trade.StatusProofFailed || !st.ReceiptAccepted {
		return fmt.Errorf("%w: resume proof while %s", trade.ErrInvalidTransition, st.Status)
	}
	s.spawn(func(ctx context.Context) { s.runFromProof(ctx, m, true) })
	return nil
}

// Tick recomputes every pending trade's countdown from now.
func (s *Session) Tick(now time.Time) {
	for _, id := range s.order {
		s.machines[id].Tick(now)
	}
}

// RefreshPending reads every pending trade from the ledger so settlement made
// through another channel, or ledger-side expiry, is picked up. It returns
// the number of trades whose state changed.
func (s *Session) RefreshPending(ctx context.Context) int {
	if s.cfg.Ledger == nil {
		return 0
	}
	changed := 0
	for _, id := range s.order {
		m := s.machines[id]
		if m.Status() != trade.StatusPending {
			continue
		}
		rec, err := s.cfg.Ledger.GetTrade(ctx, id)
		if err != nil {
			s.cfg.Logger.Debug("pending trade refresh failed", zap.String("trade_id", id), zap.Error(err))
			continue
		}
		if m.ObserveLedger(rec) {
			changed++
		}
	}
	return changed
}

func (s *Session) spawn(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

func (s *Session) runFromUpload(ctx context.Context, m *trade.Machine, r trade.Receipt) {
	if err := m.Validate(ctx, r); err != nil {
		s.phaseFailed(m, "validation", err)
		return
	}
	if m.Status() != trade.StatusValid {
		return
	}
	s.runFromProof(ctx, m, false)
}

func (s *Session) runFromProof(ctx context.Context, m *trade.Machine, resume bool) {
	var err error
	if resume {
		err = m.ResumeProof(ctx)
	} else {
		err = m.GenerateProof(ctx)
	}
	if err != nil {
		s.phaseFailed(m, "proof generation", err)
		return
	}
	if m.Status() != trade.StatusProofReady {
		return
	}
	s.runSubmission(ctx, m)
}

func (s *Session) runSubmission(ctx context.Context, m *trade.Machine) {
	if err := s.cfg.Queue.Do(ctx, m.Submit); err != nil {
		s.phaseFailed(m, "proof submission", err)
		return
	}
	if m.Status() != trade.StatusSubmitted {
		return
	}
	s.confirm(ctx, m)
}

// confirm races the ledger poller against the confirmation grace period. The
// grace period settles the trade with its submission hash; a ledger read that
// shows settlement records the ledger's own hash.
func (s *Session) confirm(ctx context.Context, m *trade.Machine) {
	if s.cfg.Ledger != nil {
		poller := &SettlementPoller{
			Ledger:   s.cfg.Ledger,
			Attempts: s.cfg.SettlementAttempts,
			Interval: s.cfg.SettlementInterval,
			Logger:   s.cfg.Logger,
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			rec, err := poller.Poll(ctx, m.TradeID())
			switch {
			case err == nil:
				if m.ObserveLedger(rec) {
					s.touch()
					s.publish()
				}
			case errors.Is(err, ErrSettlementUnconfirmed):
				s.settlementUnconfirmed(m.TradeID())
			}
		}()
	}

	t := time.NewTimer(s.cfg.SettlementGrace)
	select {
	case <-ctx.Done():
		t.Stop()
		return
	case <-t.C:
	}
	if err := m.ConfirmSettlement(); err != nil {
		s.cfg.Logger.Warn("settlement confirmation rejected", zap.String("trade_id", m.TradeID()), zap.Error(err))
	}
}

func (s *Session) phaseFailed(m *trade.Machine, phase string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	s.cfg.Logger.Warn("trade phase failed",
		zap.String("trade_id", m.TradeID()),
		zap.String("phase", phase),
		zap.String("status", string(m.Status())),
		zap.Error(err),
	)
}

func (s *Session) settlementUnconfirmed(tradeID string) {
	msg := fmt.Sprintf("settlement of trade %s is not visible on the ledger yet; refresh later", tradeID)
	s.mu.Lock()
	s.warnings[tradeID] = msg
	s.mu.Unlock()
	s.cfg.Logger.Warn("settlement unconfirmed", zap.String("trade_id", tradeID))
	if s.cfg.Journal != nil {
		s.cfg.Journal.Record(s.ctx, models.TradeEvent{
			SessionID:  s.ID,
			TradeID:    tradeID,
			Kind:       models.EventSettlementSoft,
			Message:    msg,
			OccurredAt: s.cfg.Now().UTC(),
		})
	}
	s.publish()
}

func (s *Session) clearWarning(tradeID string) {
	s.mu.Lock()
	delete(s.warnings, tradeID)
	s.mu.Unlock()
}

func (s *Session) touch() {
	now := s.cfg.Now().UTC()
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

func (s *Session) handleTransition(tr trade.Transition) {
	s.touch()
	fields := []zap.Field{
		zap.String("trade_id", tr.TradeID),
		zap.String("from", string(tr.From)),
		zap.String("to", string(tr.To)),
	}
	if tr.Error != "" {
		fields = append(fields, zap.String("error", tr.Error))
	}
	if tr.TxHash != "" {
		fields = append(fields, zap.String("tx_hash", tr.TxHash))
	}
	s.cfg.Logger.Info("trade transition", fields...)
	if s.cfg.Journal != nil {
		s.cfg.Journal.Record(s.ctx, transitionEvent(s.ID, tr))
	}
	s.evaluate()
	s.publish()
}

// evaluate records when the batch finished and fires the completion signal
// the first time every trade is settled.
func (s *Session) evaluate() {
	if len(s.order) == 0 {
		return
	}
	all, terminal := true, true
	for _, id := range s.order {
		st := s.machines[id].Status()
		if st != trade.StatusSettled {
			all = false
		}
		if !st.Terminal() {
			terminal = false
		}
	}
	now := s.cfg.Now().UTC()
	s.mu.Lock()
	if terminal && s.finishedAt.IsZero() {
		s.finishedAt = now
	}
	fire := all && s.completedAt == nil
	if fire {
		s.completedAt = &now
	}
	s.mu.Unlock()
	if !fire {
		return
	}

	statuses := s.Statuses()
	s.cfg.Logger.Info("all trades settled", zap.Int("trades", len(statuses)))
	if s.cfg.Journal != nil {
		s.cfg.Journal.Record(s.ctx, models.TradeEvent{
			SessionID:  s.ID,
			Kind:       models.EventSessionCompleted,
			Message:    fmt.Sprintf("%d trades settled", len(statuses)),
			OccurredAt: now,
		})
	}
	if s.cfg.OnComplete != nil {
		s.cfg.OnComplete(s.ID, statuses)
	}
}

// AllSettled is true when the batch is non-empty and every trade is settled.
func (s *Session) AllSettled() bool {
	if len(s.order) == 0 {
		return false
	}
	for _, id := range s.order {
		if s.machines[id].Status() != trade.StatusSettled {
			return false
		}
	}
	return true
}

// Statuses is a read-only copy of trade id to status.
func (s *Session) Statuses() map[string]trade.Status {
	out := make(map[string]trade.Status, len(s.order))
	for _, id := range s.order {
		out[id] = s.machines[id].Status()
	}
	return out
}

func (s *Session) Snapshot() SessionSnapshot {
	snap := SessionSnapshot{
		ID:        s.ID,
		Trades:    make([]TradeView, 0, len(s.order)),
		CreatedAt: s.CreatedAt,
	}
	all := len(s.order) > 0
	for _, id := range s.order {
		m := s.machines[id]
		v := newTradeView(m.Trade(), m.Snapshot())
		if v.Status != trade.StatusSettled {
			all = false
		}
		snap.Trades = append(snap.Trades, v)
	}
	snap.AllSettled = all

	s.mu.Lock()
	if s.completedAt != nil {
		at := *s.completedAt
		snap.CompletedAt = &at
	}
	for _, w := range s.warnings {
		snap.Warnings = append(snap.Warnings, w)
	}
	s.mu.Unlock()
	sort.Strings(snap.Warnings)
	return snap
}

// Subscribe returns a channel that receives the latest snapshot after every
// change. Slow readers only ever see the newest snapshot.
func (s *Session) Subscribe() (<-chan SessionSnapshot, func()) {
	ch := make(chan SessionSnapshot, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *Session) publish() {
	snap := s.Snapshot()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// Sweepable reports whether the session can be dropped: either every trade
// reached a terminal status before cutoff, or nothing has happened since
// cutoff and every remaining trade waits on a user retry.
func (s *Session) Sweepable(cutoff time.Time) bool {
	s.mu.Lock()
	finishedAt, last := s.finishedAt, s.lastActivity
	s.mu.Unlock()
	if !finishedAt.IsZero() {
		return !finishedAt.After(cutoff)
	}
	if last.After(cutoff) {
		return false
	}
	for _, id := range s.order {
		switch s.machines[id].Status() {
		case trade.StatusInvalid, trade.StatusProofFailed, trade.StatusSettled, trade.StatusExpired:
		default:
			return false
		}
	}
	return true
}

// Close stops every pipeline of the session and ends all subscriptions.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.mu.Unlock()
	s.cancel()
	if s.cfg.Journal != nil {
		s.cfg.Journal.Record(context.Background(), models.TradeEvent{
			SessionID:  s.ID,
			Kind:       models.EventSessionClosed,
			OccurredAt: s.cfg.Now().UTC(),
		})
	}
}

// Wait blocks until every background pipeline of the session has returned.
func (s *Session) Wait() {
	s.wg.Wait()
}
