package trade

import (
	"context"
	"errors"
	"sync"
	"time"

	"zkpay/internal/client/ledger"
	"zkpay/internal/models"
)

var errNetwork = errors.New("connection reset by peer")

// stubBackend is a scriptable Backend for machine tests.
type stubBackend struct {
	mu sync.Mutex

	uploadErr   error
	validate    []ledger.ValidationResult
	validateErr error
	proof       ledger.ProofResult
	proofErrs   []error
	submit      ledger.SubmitResult
	submitErr   error

	uploads     int
	validations int
	proofs      int
	submits     int
}

func (s *stubBackend) UploadReceipt(ctx context.Context, tradeID, filename string, data []byte) (ledger.UploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads++
	if s.uploadErr != nil {
		return ledger.UploadResult{}, s.uploadErr
	}
	return ledger.UploadResult{Filename: "stored-" + filename, Size: int64(len(data))}, nil
}

func (s *stubBackend) ValidateReceipt(ctx context.Context, tradeID string) (ledger.ValidationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validations++
	if s.validateErr != nil {
		return ledger.ValidationResult{}, s.validateErr
	}
	if len(s.validate) == 0 {
		return ledger.ValidationResult{IsValid: true, ExpectedHash: "0xaaa", ActualHash: "0xaaa"}, nil
	}
	res := s.validate[0]
	if len(s.validate) > 1 {
		s.validate = s.validate[1:]
	}
	return res, nil
}

func (s *stubBackend) GenerateProof(ctx context.Context, tradeID string) (ledger.ProofResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proofs++
	if len(s.proofErrs) > 0 {
		err := s.proofErrs[0]
		s.proofErrs = s.proofErrs[1:]
		if err != nil {
			return ledger.ProofResult{}, err
		}
	}
	return s.proof, nil
}

func (s *stubBackend) SubmitProof(ctx context.Context, tradeID string) (ledger.SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submits++
	if s.submitErr != nil {
		return ledger.SubmitResult{}, s.submitErr
	}
	return s.submit, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_760_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

func pdfReceipt() Receipt {
	return Receipt{Filename: "alipay.pdf", Data: []byte("%PDF-1.7\n1 0 obj\n<<>>\nendobj\n")}
}

func newTestMachine(b *stubBackend, clock *fakeClock, ttl int64) (*Machine, *[]Transition) {
	var (
		mu  sync.Mutex
		log []Transition
	)
	t := models.Trade{TradeID: "0xt1", OrderID: "7", ExpiresAt: clock.Now().Unix() + ttl}
	m := NewMachine(t, MachineConfig{
		Backend: b,
		Gate:    DefaultGate(),
		Now:     clock.Now,
		OnTransition: func(tr Transition) {
			mu.Lock()
			log = append(log, tr)
			mu.Unlock()
		},
	})
	return m, &log
}
