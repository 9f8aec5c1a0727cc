package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"zkpay/internal/client/ledger"
	"zkpay/internal/config"
	"zkpay/internal/models"
	"zkpay/internal/trade"
)

func newTestCoordinator(l *stubLedger, sink EventSink) *Coordinator {
	return &Coordinator{
		Ledger:  l,
		Journal: sink,
		Gate:    trade.DefaultGate(),
		Config: config.OrchestratorConfig{
			CreationSyncAttempts: 10,
			CreationSyncInterval: time.Millisecond,
			SettlementAttempts:   5,
			SettlementInterval:   time.Millisecond,
			SettlementGrace:      5 * time.Millisecond,
			SessionTTL:           time.Minute,
		},
	}
}

func TestCoordinator_OpenWaitsForCreatedTrades(t *testing.T) {
	exp := time.Now().Add(10 * time.Minute).Unix()
	l := newStubLedger(
		models.Trade{TradeID: "0x1", CNYAmount: decimal.NewFromInt(70000), ExpiresAt: exp},
		models.Trade{TradeID: "0x2", CNYAmount: decimal.NewFromInt(12345), ExpiresAt: exp},
	)
	l.created = []ledger.CreatedTrade{
		{TradeID: "0x1", OrderID: "7", TxHash: "0xescrow1", PaymentNonce: "n1"},
		{TradeID: "0x2", OrderID: "9", TxHash: "0xescrow1", PaymentNonce: "n2"},
	}
	l.missing["0x2"] = 3
	sink := &recordingSink{}
	c := newTestCoordinator(l, sink)

	s, err := c.Open(context.Background(), OpenRequest{
		Buyer: "0xbuyer",
		Fills: []ledger.Fill{{OrderID: "7", TokenAmount: decimal.NewFromInt(10)}, {OrderID: "9", TokenAmount: decimal.NewFromInt(2)}},
	})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	defer c.Close(s.ID)

	if got := l.calls("0x2"); got != 4 {
		t.Fatalf("0x2 calls=%d want 4", got)
	}
	snap := s.Snapshot()
	if len(snap.Trades) != 2 {
		t.Fatalf("trades=%d want 2", len(snap.Trades))
	}
	first := snap.Trades[0]
	if first.TradeID != "0x1" || first.OrderID != "7" || first.EscrowTxHash != "0xescrow1" || first.CNYAmount != "700.00" {
		t.Fatalf("view=%+v", first)
	}
	if snap.Trades[1].CNYAmount != "123.45" {
		t.Fatalf("cny=%s want 123.45", snap.Trades[1].CNYAmount)
	}
	if first.TimeRemaining <= 0 || first.Status != trade.StatusPending {
		t.Fatalf("view=%+v", first)
	}
	if got, err := c.Get(s.ID); err != nil || got != s {
		t.Fatalf("get=%v err=%v", got, err)
	}
	if sink.count(models.EventSessionOpened) != 1 {
		t.Fatalf("session open not journaled")
	}
}

func TestCoordinator_CreationSyncTimeoutBlocksBatch(t *testing.T) {
	l := newStubLedger(models.Trade{TradeID: "0x1"})
	l.created = []ledger.CreatedTrade{{TradeID: "0x1"}, {TradeID: "0x2"}}
	c := newTestCoordinator(l, nil)

	_, err := c.Open(context.Background(), OpenRequest{Fills: []ledger.Fill{{OrderID: "1"}}})
	if !errors.Is(err, ErrCreationSyncTimeout) {
		t.Fatalf("err=%v want ErrCreationSyncTimeout", err)
	}
	var syncErr *CreationSyncError
	if !errors.As(err, &syncErr) {
		t.Fatalf("err=%T want *CreationSyncError", err)
	}
	if len(syncErr.TradeIDs) != 2 || syncErr.TradeIDs[0] != "0x1" || syncErr.TradeIDs[1] != "0x2" {
		t.Fatalf("trade ids=%v want [0x1 0x2]", syncErr.TradeIDs)
	}
	if len(syncErr.Missing) != 1 || syncErr.Missing[0] != "0x2" {
		t.Fatalf("missing=%v want [0x2]", syncErr.Missing)
	}
	if c.Count() != 0 {
		t.Fatalf("sessions=%d want 0", c.Count())
	}
}

func TestCoordinator_AttachAppliesLedgerStatus(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	done := testTrade("S", exp)
	done.Status = models.LedgerSettled
	done.SettlementTxHash = "0xsettled"
	gone := testTrade("E", exp)
	gone.Status = models.LedgerExpired
	l := newStubLedger(done, gone, testTrade("P", exp))
	sink := &recordingSink{}
	c := newTestCoordinator(l, sink)

	s, err := c.Attach(context.Background(), []string{"S", "E", "P"})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	defer c.Close(s.ID)

	st := s.Statuses()
	if st["S"] != trade.StatusSettled || st["E"] != trade.StatusExpired || st["P"] != trade.StatusPending {
		t.Fatalf("statuses=%v", st)
	}
	if got := s.Snapshot().Trades[0].SettlementTxHash; got != "0xsettled" {
		t.Fatalf("settlement hash=%q want 0xsettled", got)
	}
	if err := s.SubmitReceipt("S", trade.Receipt{Filename: "r.pdf", Data: pdf()}); !errors.Is(err, trade.ErrTerminal) {
		t.Fatalf("err=%v want ErrTerminal", err)
	}
	if err := s.SubmitReceipt("E", trade.Receipt{Filename: "r.pdf", Data: pdf()}); !errors.Is(err, trade.ErrTerminal) {
		t.Fatalf("err=%v want ErrTerminal", err)
	}
}

func TestCoordinator_AttachAllSettledCompletes(t *testing.T) {
	rec := testTrade("S", time.Now().Add(time.Hour).Unix())
	rec.Status = models.LedgerSettled
	l := newStubLedger(rec)
	c := newTestCoordinator(l, nil)
	fired := 0
	c.OnComplete = func(string, map[string]trade.Status) { fired++ }

	s, err := c.Attach(context.Background(), []string{"S"})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	defer c.Close(s.ID)
	if !s.AllSettled() || fired != 1 {
		t.Fatalf("all settled=%v fired=%d want true/1", s.AllSettled(), fired)
	}
}

func TestCoordinator_RunTicksWithoutScheduler(t *testing.T) {
	start := time.Now()
	exp := start.Add(time.Hour).Unix()
	l := newStubLedger(testTrade("P", exp))
	c := newTestCoordinator(l, nil)
	var clock atomic.Int64
	clock.Store(start.Unix())
	c.Now = func() time.Time { return time.Unix(clock.Load(), 0) }
	c.TickInterval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	s, err := c.Attach(context.Background(), []string{"P"})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	clock.Store(exp + 1)
	waitFor(t, "expiry from run tick", func() bool { return s.Statuses()["P"] == trade.StatusExpired })

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("run err=%v want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
}

func TestCoordinator_AttachCloseAndSweep(t *testing.T) {
	exp := time.Now().Add(time.Minute).Unix()
	l := newStubLedger(testTrade("A", exp), testTrade("B", exp))
	c := newTestCoordinator(l, nil)

	if _, err := c.Attach(context.Background(), []string{" ", ""}); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("err=%v want ErrEmptyBatch", err)
	}
	s1, err := c.Attach(context.Background(), []string{"A", "A", "B"})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(s1.TradeIDs()) != 2 {
		t.Fatalf("trade ids=%v want deduplicated", s1.TradeIDs())
	}
	s2, err := c.Attach(context.Background(), []string{"B"})
	if err != nil {
		t.Fatalf("err=%v", err)
	}

	if err := c.Close(s2.ID); err != nil {
		t.Fatalf("close err=%v", err)
	}
	if _, err := c.Get(s2.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err=%v want ErrSessionNotFound", err)
	}
	if err := c.Close(s2.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err=%v want ErrSessionNotFound", err)
	}

	now := time.Now()
	if n := c.Sweep(now); n != 0 {
		t.Fatalf("swept=%d want 0 while trades are pending", n)
	}
	c.Tick(now.Add(2 * time.Minute))
	if got := s1.Statuses()["A"]; got != trade.StatusExpired {
		t.Fatalf("status=%s want expired", got)
	}
	if n := c.Sweep(now.Add(5 * time.Minute)); n != 1 {
		t.Fatalf("swept=%d want 1", n)
	}
	if c.Count() != 0 {
		t.Fatalf("sessions=%d want 0", c.Count())
	}
}

func TestCoordinator_RunClosesSessions(t *testing.T) {
	l := newStubLedger(testTrade("A", time.Now().Add(time.Hour).Unix()))
	c := newTestCoordinator(l, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()
	waitFor(t, "coordinator start", func() bool { return c.baseContext() == ctx })

	s, err := c.Attach(context.Background(), []string{"A"})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
	if err := s.SubmitReceipt("A", trade.Receipt{Filename: "r.pdf", Data: pdf()}); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("err=%v want ErrSessionClosed", err)
	}
}
