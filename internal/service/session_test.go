package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"zkpay/internal/models"
	"zkpay/internal/trade"
)

func newTestSession(t *testing.T, l *stubLedger, sink EventSink, ids ...string) (*Session, <-chan map[string]trade.Status) {
	t.Helper()
	exp := time.Now().Add(15 * time.Minute).Unix()
	trades := make([]models.Trade, 0, len(ids))
	for _, id := range ids {
		trades = append(trades, testTrade(id, exp))
	}
	done := make(chan map[string]trade.Status, 4)
	s := NewSession(context.Background(), "s-1", trades, SessionConfig{
		Backend:            l,
		Ledger:             l,
		Gate:               trade.DefaultGate(),
		Journal:            sink,
		SettlementAttempts: 50,
		SettlementInterval: time.Millisecond,
		SettlementGrace:    20 * time.Millisecond,
		OnComplete: func(sessionID string, statuses map[string]trade.Status) {
			done <- statuses
		},
	})
	t.Cleanup(func() {
		s.Close()
		s.Wait()
	})
	return s, done
}

func TestSession_PipelineSettlesEveryTradeWithSerializedSubmissions(t *testing.T) {
	l := newStubLedger()
	l.submitDelay = 10 * time.Millisecond
	l.settleOnSubmit = true
	for _, id := range []string{"A", "B", "C"} {
		tr := testTrade(id, time.Now().Add(time.Hour).Unix())
		l.records[id] = &tr
	}
	sink := &recordingSink{}
	s, done := newTestSession(t, l, sink, "A", "B", "C")

	var wg sync.WaitGroup
	for _, id := range []string{"A", "B", "C"} {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.SubmitReceipt(id, trade.Receipt{Filename: "receipt.pdf", Data: pdf()}); err != nil {
				t.Errorf("submit %s: %v", id, err)
			}
		}()
	}
	wg.Wait()

	select {
	case statuses := <-done:
		for id, st := range statuses {
			if st != trade.StatusSettled {
				t.Fatalf("%s status=%s want settled", id, st)
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("completion never fired: %+v", s.Statuses())
	}

	l.mu.Lock()
	maxInFlight, submitted := l.maxInFlight, len(l.submitted)
	l.mu.Unlock()
	if maxInFlight != 1 {
		t.Fatalf("max submissions in flight=%d want 1", maxInFlight)
	}
	if submitted != 3 {
		t.Fatalf("submitted=%d want 3", submitted)
	}
	snap := s.Snapshot()
	if !snap.AllSettled || snap.CompletedAt == nil {
		t.Fatalf("snapshot=%+v", snap)
	}
	for _, v := range snap.Trades {
		if v.CNYAmount != "700.00" || v.SettlementTxHash == "" {
			t.Fatalf("view=%+v", v)
		}
	}
	if got := sink.count(models.EventSessionCompleted); got != 1 {
		t.Fatalf("completed events=%d want 1", got)
	}
}

func TestSession_CompletionFiresOnce(t *testing.T) {
	l := newStubLedger(testTrade("A", 0), testTrade("B", 0))
	s, done := newTestSession(t, l, nil, "A", "B")

	l.setStatus("A", models.LedgerSettled, "0xa")
	s.RefreshPending(context.Background())
	if s.AllSettled() {
		t.Fatalf("all settled with B pending")
	}
	l.setStatus("B", models.LedgerSettled, "0xb")
	if n := s.RefreshPending(context.Background()); n != 1 {
		t.Fatalf("changed=%d want 1", n)
	}
	s.RefreshPending(context.Background())
	s.Tick(time.Now().Add(time.Hour))

	if !s.AllSettled() {
		t.Fatalf("statuses=%v want all settled", s.Statuses())
	}
	select {
	case <-done:
	default:
		t.Fatalf("completion did not fire")
	}
	select {
	case <-done:
		t.Fatalf("completion fired twice")
	default:
	}
}

func TestSession_EmptyBatchNeverCompletes(t *testing.T) {
	l := newStubLedger()
	s, done := newTestSession(t, l, nil)
	s.Tick(time.Now())
	s.RefreshPending(context.Background())
	if s.AllSettled() {
		t.Fatalf("empty batch reported all settled")
	}
	select {
	case <-done:
		t.Fatalf("completion fired for empty batch")
	default:
	}
}

func TestSession_RejectsUnknownTradeAndBadReceipt(t *testing.T) {
	l := newStubLedger(testTrade("A", 0))
	s, _ := newTestSession(t, l, nil, "A")

	if err := s.SubmitReceipt("nope", trade.Receipt{Filename: "r.pdf", Data: pdf()}); !errors.Is(err, ErrTradeNotFound) {
		t.Fatalf("err=%v want ErrTradeNotFound", err)
	}
	if err := s.SubmitReceipt("A", trade.Receipt{Filename: "r.txt", Data: []byte("hello")}); !errors.Is(err, trade.ErrInvalidReceipt) {
		t.Fatalf("err=%v want ErrInvalidReceipt", err)
	}
	snap := s.Snapshot()
	if snap.Trades[0].Status != trade.StatusPending || snap.Trades[0].Error == "" {
		t.Fatalf("view=%+v want pending with error", snap.Trades[0])
	}
	if err := s.ResumeProof("A"); !errors.Is(err, trade.ErrInvalidTransition) {
		t.Fatalf("err=%v want ErrInvalidTransition", err)
	}
}

func TestSession_TickExpiresPendingTrades(t *testing.T) {
	l := newStubLedger()
	s, _ := newTestSession(t, l, nil, "A")
	ch, stop := s.Subscribe()
	defer stop()

	s.Tick(time.Now().Add(time.Hour))
	if got := s.Statuses()["A"]; got != trade.StatusExpired {
		t.Fatalf("status=%s want expired", got)
	}
	select {
	case snap := <-ch:
		if snap.Trades[0].Status != trade.StatusExpired || snap.Trades[0].TimeRemaining != 0 {
			t.Fatalf("snapshot=%+v", snap.Trades[0])
		}
	case <-time.After(time.Second):
		t.Fatalf("no snapshot pushed")
	}
	if !s.Sweepable(time.Now().Add(time.Minute)) {
		t.Fatalf("finished session should be sweepable")
	}
}

func TestSession_SettlementUnconfirmedIsSoft(t *testing.T) {
	l := newStubLedger()
	tr := testTrade("A", time.Now().Add(time.Hour).Unix())
	l.records["A"] = &tr
	sink := &recordingSink{}
	s, _ := newTestSession(t, l, sink, "A")
	s.cfg.SettlementAttempts = 3

	if err := s.SubmitReceipt("A", trade.Receipt{Filename: "r.pdf", Data: pdf()}); err != nil {
		t.Fatalf("err=%v", err)
	}
	waitFor(t, "soft warning", func() bool { return len(s.Snapshot().Warnings) == 1 })
	waitFor(t, "grace settlement", func() bool { return s.Statuses()["A"] == trade.StatusSettled })

	v := s.Snapshot().Trades[0]
	if v.SettlementTxHash != "0xsub-A" {
		t.Fatalf("settlement hash=%q want submission hash", v.SettlementTxHash)
	}
	if sink.count(models.EventSettlementSoft) != 1 {
		t.Fatalf("soft failure not journaled")
	}
}
