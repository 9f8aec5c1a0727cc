package service

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"zkpay/internal/client/ledger"
	"zkpay/internal/models"
)

// stubLedger is an in-memory ledger backend for service tests.
type stubLedger struct {
	mu sync.Mutex

	created   []ledger.CreatedTrade
	createErr error
	records   map[string]*models.Trade
	// missing makes GetTrade 404 for the first n calls of an id.
	missing  map[string]int
	getCalls map[string]int

	submitDelay time.Duration
	// settleOnSubmit marks the ledger record settled once its proof is submitted.
	settleOnSubmit bool

	inFlight    int
	maxInFlight int
	submitted   []string
}

func newStubLedger(trades ...models.Trade) *stubLedger {
	l := &stubLedger{
		records:  map[string]*models.Trade{},
		missing:  map[string]int{},
		getCalls: map[string]int{},
	}
	for i := range trades {
		t := trades[i]
		l.records[t.TradeID] = &t
	}
	return l
}

func testTrade(id string, expiresAt int64) models.Trade {
	return models.Trade{
		TradeID:      id,
		OrderID:      "order-" + id,
		CNYAmount:    decimal.NewFromInt(70000),
		TokenAmount:  decimal.RequireFromString("97.5"),
		PaymentNonce: "nonce-" + id,
		ExpiresAt:    expiresAt,
		Status:       models.LedgerPending,
	}
}

func (l *stubLedger) setStatus(id string, st models.LedgerStatus, hash string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.records[id]; ok {
		rec.Status = st
		rec.SettlementTxHash = hash
	}
}

func (l *stubLedger) calls(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.getCalls[id]
}

func (l *stubLedger) CreateTrades(ctx context.Context, req ledger.CreateTradesRequest) ([]ledger.CreatedTrade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.createErr != nil {
		return nil, l.createErr
	}
	return append([]ledger.CreatedTrade(nil), l.created...), nil
}

func (l *stubLedger) GetTrade(ctx context.Context, tradeID string) (*models.Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.getCalls[tradeID]++
	if l.getCalls[tradeID] <= l.missing[tradeID] {
		return nil, &ledger.APIError{Status: http.StatusNotFound, Body: "trade not found"}
	}
	rec, ok := l.records[tradeID]
	if !ok {
		return nil, &ledger.APIError{Status: http.StatusNotFound, Body: "trade not found"}
	}
	cp := *rec
	return &cp, nil
}

func (l *stubLedger) UploadReceipt(ctx context.Context, tradeID, filename string, data []byte) (ledger.UploadResult, error) {
	return ledger.UploadResult{Filename: tradeID + "-" + filename, Size: int64(len(data))}, nil
}

func (l *stubLedger) ValidateReceipt(ctx context.Context, tradeID string) (ledger.ValidationResult, error) {
	return ledger.ValidationResult{IsValid: true, ExpectedHash: "0x" + tradeID, ActualHash: "0x" + tradeID}, nil
}

func (l *stubLedger) GenerateProof(ctx context.Context, tradeID string) (ledger.ProofResult, error) {
	return ledger.ProofResult{Success: true, ProofID: "proof-" + tradeID}, nil
}

func (l *stubLedger) SubmitProof(ctx context.Context, tradeID string) (ledger.SubmitResult, error) {
	l.mu.Lock()
	l.inFlight++
	if l.inFlight > l.maxInFlight {
		l.maxInFlight = l.inFlight
	}
	delay := l.submitDelay
	l.mu.Unlock()

	time.Sleep(delay)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.inFlight--
	l.submitted = append(l.submitted, tradeID)
	if rec, ok := l.records[tradeID]; ok && l.settleOnSubmit {
		rec.Status = models.LedgerSettled
		rec.SettlementTxHash = "0xledger-" + tradeID
	}
	return ledger.SubmitResult{Success: true, TxHash: "0xsub-" + tradeID}, nil
}

// recordingSink keeps journal events in memory.
type recordingSink struct {
	mu     sync.Mutex
	events []models.TradeEvent
}

func (r *recordingSink) Record(ctx context.Context, ev models.TradeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func pdf() []byte {
	return []byte("%PDF-1.7\n1 0 obj\n<<>>\nendobj\n")
}
