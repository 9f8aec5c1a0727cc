package trade

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"zkpay/internal/client/ledger"
	"zkpay/internal/models"
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrTerminal          = errors.New("trade is in a terminal state")
	ErrExpired           = errors.New("payment window has closed")
)

// Backend is the slice of the ledger API a single trade needs. Proof
// submission is here too, but only the session calls Submit, through its
// serialized queue.
type Backend interface {
	UploadReceipt(ctx context.Context, tradeID, filename string, data []byte) (ledger.UploadResult, error)
	ValidateReceipt(ctx context.Context, tradeID string) (ledger.ValidationResult, error)
	GenerateProof(ctx context.Context, tradeID string) (ledger.ProofResult, error)
	SubmitProof(ctx context.Context, tradeID string) (ledger.SubmitResult, error)
}

type MachineConfig struct {
	Backend Backend
	Gate    Gate
	Now     func() time.Time
	// OnTransition is called after every status change, outside the
	// machine's lock.
	OnTransition func(Transition)
	// EnforceDeadlineOnSubmit refuses to admit a submission once the payment
	// window has closed. Off by default: in-flight work runs to completion.
	EnforceDeadlineOnSubmit bool
}

// Machine is the authoritative lifecycle of one trade.
type Machine struct {
	trade models.Trade
	cfg   MachineConfig

	mu    sync.Mutex
	state State
}

func NewMachine(t models.Trade, cfg MachineConfig) *Machine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	now := cfg.Now()
	return &Machine{
		trade: t,
		cfg:   cfg,
		state: State{
			TradeID:       t.TradeID,
			Status:        StatusPending,
			TimeRemaining: Remaining(t.ExpiresAt, now),
			UpdatedAt:     now.UTC(),
		},
	}
}

func (m *Machine) TradeID() string { return m.trade.TradeID }

func (m *Machine) Trade() models.Trade { return m.trade }

func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Status
}

// transitionLocked moves the machine to the next status. Callers hold m.mu and
// must emit the returned transition after unlocking.
func (m *Machine) transitionLocked(to Status, mutate func(*State)) (Transition, error) {
	from := m.state.Status
	if from.Terminal() {
		return Transition{}, fmt.Errorf("%w: %s", ErrTerminal, from)
	}
	if !CanTransition(from, to) {
		return Transition{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	m.state.Status = to
	if mutate != nil {
		mutate(&m.state)
	}
	now := m.cfg.Now().UTC()
	m.state.UpdatedAt = now
	tr := Transition{
		TradeID: m.trade.TradeID,
		From:    from,
		To:      to,
		Error:   m.state.Error,
		At:      now,
	}
	switch to {
	case StatusSubmitted:
		tr.TxHash = m.state.BlockchainTxHash
	case StatusSettled:
		tr.TxHash = m.state.SettlementTxHash
	}
	return tr, nil
}

func (m *Machine) emit(tr Transition) {
	if m.cfg.OnTransition != nil && tr.To != "" {
		m.cfg.OnTransition(tr)
	}
}

// move runs one locked transition and emits it.
func (m *Machine) move(to Status, mutate func(*State)) error {
	m.mu.Lock()
	tr, err := m.transitionLocked(to, mutate)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.emit(tr)
	return nil
}

// SelectReceipt accepts a receipt file and moves pending -> uploading. Input
// problems leave the trade pending with Error set and never touch the network.
func (m *Machine) SelectReceipt(r Receipt) error {
	m.mu.Lock()
	if m.state.Status.Terminal() {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTerminal, m.state.Status)
	}
	if m.state.Status != StatusPending {
		st := m.state.Status
		m.mu.Unlock()
		return fmt.Errorf("%w: cannot select a receipt while %s", ErrInvalidTransition, st)
	}
	now := m.cfg.Now()
	m.state.TimeRemaining = Remaining(m.trade.ExpiresAt, now)
	if m.state.TimeRemaining == 0 {
		tr, err := m.transitionLocked(StatusExpired, nil)
		m.mu.Unlock()
		if err == nil {
			m.emit(tr)
		}
		return ErrExpired
	}
	if err := m.cfg.Gate.Check(r); err != nil {
		m.state.Error = err.Error()
		m.state.UpdatedAt = now.UTC()
		m.mu.Unlock()
		return err
	}
	tr, err := m.transitionLocked(StatusUploading, func(s *State) {
		s.Error = ""
		s.UploadedFilename = r.Filename
	})
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.emit(tr)
	return nil
}

// Validate uploads the selected receipt and asks the backend to validate it.
// Transport failures return the trade to pending; only a confirmed mismatch
// lands in invalid.
func (m *Machine) Validate(ctx context.Context, r Receipt) error {
	if st := m.Status(); st != StatusUploading {
		return fmt.Errorf("%w: validate while %s", ErrInvalidTransition, st)
	}
	up, err := m.cfg.Backend.UploadReceipt(ctx, m.trade.TradeID, r.Filename, r.Data)
	if err != nil {
		return m.backToPending("receipt upload failed", err)
	}
	if err := m.move(StatusValidating, func(s *State) {
		if up.Filename != "" {
			s.UploadedFilename = up.Filename
		}
	}); err != nil {
		return err
	}

	res, err := m.cfg.Backend.ValidateReceipt(ctx, m.trade.TradeID)
	if err != nil {
		return m.backToPending("receipt validation failed", err)
	}
	if res.IsValid {
		return m.move(StatusValid, func(s *State) {
			s.ExpectedHash = res.ExpectedHash
			s.ActualHash = res.ActualHash
			s.ValidationDetails = res.Details
			s.ReceiptAccepted = true
		})
	}
	return m.move(StatusInvalid, func(s *State) {
		s.ExpectedHash = res.ExpectedHash
		s.ActualHash = res.ActualHash
		s.ValidationDetails = res.Details
		s.Error = mismatchMessage(res)
	})
}

func (m *Machine) backToPending(what string, cause error) error {
	msg := what + ": " + cause.Error()
	if err := m.move(StatusPending, func(s *State) { s.Error = msg }); err != nil {
		return err
	}
	return fmt.Errorf("%s: %w", what, cause)
}

func mismatchMessage(res ledger.ValidationResult) string {
	var b strings.Builder
	b.WriteString("receipt does not match this trade")
	if res.ExpectedHash != "" || res.ActualHash != "" {
		fmt.Fprintf(&b, " (expected %s, got %s)", orDash(res.ExpectedHash), orDash(res.ActualHash))
	}
	if d := strings.TrimSpace(res.Details); d != "" {
		b.WriteString(": ")
		b.WriteString(d)
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// GenerateProof requests a proof for a validated receipt. It is also the
// resume path from proof_failed when the backend still holds the receipt.
func (m *Machine) GenerateProof(ctx context.Context) error {
	m.mu.Lock()
	st := m.state.Status
	resumable := st == StatusProofFailed && m.state.ReceiptAccepted
	if st != StatusValid && !resumable {
		m.mu.Unlock()
		return fmt.Errorf("%w: generate proof while %s", ErrInvalidTransition, st)
	}
	tr, err := m.transitionLocked(StatusGeneratingProof, func(s *State) { s.Error = "" })
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.emit(tr)

	res, err := m.cfg.Backend.GenerateProof(ctx, m.trade.TradeID)
	if err != nil {
		msg := "proof generation failed: " + err.Error()
		_ = m.move(StatusProofFailed, func(s *State) { s.Error = msg })
		return fmt.Errorf("proof generation failed: %w", err)
	}
	if !res.Success {
		msg := res.Message
		if strings.TrimSpace(msg) == "" {
			msg = "proof generation failed"
		}
		return m.move(StatusProofFailed, func(s *State) { s.Error = msg })
	}
	return m.move(StatusProofReady, func(s *State) { s.ProofID = res.ProofID })
}

// ResumeProof restarts proof generation after a failure without uploading the
// receipt again. The backend must already hold an accepted receipt.
func (m *Machine) ResumeProof(ctx context.Context) error {
	m.mu.Lock()
	st, accepted := m.state.Status, m.state.ReceiptAccepted
	m.mu.Unlock()
	if st != StatusProofFailed || !accepted {
		return fmt.Errorf("%w: resume proof while %s", ErrInvalidTransition, st)
	}
	return m.GenerateProof(ctx)
}

// Submit sends the generated proof on-chain. The session admits callers one
// at a time; the machine itself has no view of sibling trades.
func (m *Machine) Submit(ctx context.Context) error {
	m.mu.Lock()
	if m.state.Status != StatusProofReady {
		st := m.state.Status
		m.mu.Unlock()
		return fmt.Errorf("%w: submit while %s", ErrInvalidTransition, st)
	}
	if m.cfg.EnforceDeadlineOnSubmit && Remaining(m.trade.ExpiresAt, m.cfg.Now()) == 0 {
		tr, err := m.transitionLocked(StatusProofFailed, func(s *State) {
			s.Error = "payment window closed before the proof could be submitted"
		})
		m.mu.Unlock()
		if err == nil {
			m.emit(tr)
		}
		return ErrExpired
	}
	tr, err := m.transitionLocked(StatusSubmitting, func(s *State) { s.Error = "" })
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.emit(tr)

	res, err := m.cfg.Backend.SubmitProof(ctx, m.trade.TradeID)
	if err != nil {
		msg := "proof submission failed: " + err.Error()
		_ = m.move(StatusProofFailed, func(s *State) { s.Error = msg })
		return fmt.Errorf("proof submission failed: %w", err)
	}
	if !res.Success {
		msg := res.Message
		if strings.TrimSpace(msg) == "" {
			msg = "proof submission failed"
		}
		return m.move(StatusProofFailed, func(s *State) { s.Error = msg })
	}
	return m.move(StatusSubmitted, func(s *State) { s.BlockchainTxHash = res.TxHash })
}

// ConfirmSettlement marks a submitted trade settled after the confirmation
// grace period. The settlement hash is the submission hash.
func (m *Machine) ConfirmSettlement() error {
	m.mu.Lock()
	if m.state.Status == StatusSettled {
		m.mu.Unlock()
		return nil
	}
	tr, err := m.transitionLocked(StatusSettled, func(s *State) {
		if s.SettlementTxHash == "" {
			s.SettlementTxHash = s.BlockchainTxHash
		}
	})
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.emit(tr)
	return nil
}

// ObserveLedger applies a ledger read. Settlement seen on the ledger wins over
// the local pipeline when no phase is in flight; a ledger-expired trade
// expires locally too. A trade already settled from its own submission picks
// up the ledger's settlement hash without a new transition. It reports whether
// the state changed.
func (m *Machine) ObserveLedger(t *models.Trade) bool {
	if t == nil {
		return false
	}
	m.mu.Lock()
	st := m.state.Status
	var (
		tr  Transition
		err error
	)
	switch {
	case t.Status == models.LedgerSettled && st == StatusSettled:
		changed := t.SettlementTxHash != "" && t.SettlementTxHash != m.state.SettlementTxHash
		if changed {
			m.state.SettlementTxHash = t.SettlementTxHash
			m.state.UpdatedAt = m.cfg.Now().UTC()
		}
		m.mu.Unlock()
		return changed
	case t.Status == models.LedgerSettled && (st == StatusPending || st == StatusSubmitted):
		tr, err = m.transitionLocked(StatusSettled, func(s *State) {
			s.Error = ""
			switch {
			case t.SettlementTxHash != "":
				s.SettlementTxHash = t.SettlementTxHash
			case t.BlockchainTxHash != "":
				s.SettlementTxHash = t.BlockchainTxHash
			default:
				s.SettlementTxHash = s.BlockchainTxHash
			}
		})
	case t.Status == models.LedgerExpired && st == StatusPending:
		tr, err = m.transitionLocked(StatusExpired, func(s *State) { s.TimeRemaining = 0 })
	default:
		m.mu.Unlock()
		return false
	}
	m.mu.Unlock()
	if err != nil {
		return false
	}
	m.emit(tr)
	return true
}

// Retry resets a terminal-for-attempt trade back to pending so the buyer can
// start over with a fresh receipt.
func (m *Machine) Retry() error {
	m.mu.Lock()
	st := m.state.Status
	if st != StatusInvalid && st != StatusProofFailed {
		m.mu.Unlock()
		if st.Terminal() {
			return fmt.Errorf("%w: %s", ErrTerminal, st)
		}
		return fmt.Errorf("%w: retry while %s", ErrInvalidTransition, st)
	}
	now := m.cfg.Now()
	tr, err := m.transitionLocked(StatusPending, func(s *State) {
		s.clearDiagnostics()
		s.TimeRemaining = Remaining(m.trade.ExpiresAt, now)
	})
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.emit(tr)
	return nil
}

// Tick recomputes the countdown of a pending trade and expires it at zero.
// Trades in any other status keep their last value.
func (m *Machine) Tick(now time.Time) {
	m.mu.Lock()
	if m.state.Status != StatusPending {
		m.mu.Unlock()
		return
	}
	m.state.TimeRemaining = Remaining(m.trade.ExpiresAt, now)
	if m.state.TimeRemaining > 0 {
		m.mu.Unlock()
		return
	}
	tr, err := m.transitionLocked(StatusExpired, nil)
	m.mu.Unlock()
	if err == nil {
		m.emit(tr)
	}
}
