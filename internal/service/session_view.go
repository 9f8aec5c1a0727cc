package service

import (
	"time"

	"zkpay/internal/models"
	"zkpay/internal/trade"
)

// TradeView is what a caller sees of one trade: the ledger record joined with
// the machine's runtime state.
type TradeView struct {
	TradeID           string       `json:"trade_id"`
	OrderID           string       `json:"order_id,omitempty"`
	Status            trade.Status `json:"status"`
	TimeRemaining     int64        `json:"time_remaining"`
	TimeRemainingText string       `json:"time_remaining_text"`
	ExpiresAt         int64        `json:"expires_at"`
	CNYAmount         string       `json:"cny_amount"`
	TokenAmount       string       `json:"token_amount,omitempty"`
	ExchangeRate      string       `json:"exchange_rate,omitempty"`
	PaymentNonce      string       `json:"payment_nonce,omitempty"`
	AlipayID          string       `json:"alipay_id,omitempty"`
	AlipayName        string       `json:"alipay_name,omitempty"`
	UploadedFilename  string       `json:"uploaded_filename,omitempty"`
	ValidationDetails string       `json:"validation_details,omitempty"`
	ExpectedHash      string       `json:"expected_hash,omitempty"`
	ActualHash        string       `json:"actual_hash,omitempty"`
	ProofID           string       `json:"proof_id,omitempty"`
	Error             string       `json:"error,omitempty"`
	ReceiptAccepted   bool         `json:"receipt_accepted"`
	EscrowTxHash      string       `json:"escrow_tx_hash,omitempty"`
	BlockchainTxHash  string       `json:"blockchain_tx_hash,omitempty"`
	SettlementTxHash  string       `json:"settlement_tx_hash,omitempty"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

type SessionSnapshot struct {
	ID          string      `json:"id"`
	Trades      []TradeView `json:"trades"`
	AllSettled  bool        `json:"all_settled"`
	Warnings    []string    `json:"warnings,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// Statuses maps trade id to status for callers that only need the summary.
func (s SessionSnapshot) Statuses() map[string]trade.Status {
	out := make(map[string]trade.Status, len(s.Trades))
	for _, t := range s.Trades {
		out[t.TradeID] = t.Status
	}
	return out
}

func newTradeView(t models.Trade, st trade.State) TradeView {
	v := TradeView{
		TradeID:           t.TradeID,
		OrderID:           t.OrderID,
		Status:            st.Status,
		TimeRemaining:     st.TimeRemaining,
		TimeRemainingText: trade.FormatRemaining(st.TimeRemaining),
		ExpiresAt:         t.ExpiresAt,
		CNYAmount:         t.CNYDisplay(),
		PaymentNonce:      t.PaymentNonce,
		AlipayID:          t.AlipayID,
		AlipayName:        t.AlipayName,
		UploadedFilename:  st.UploadedFilename,
		ValidationDetails: st.ValidationDetails,
		ExpectedHash:      st.ExpectedHash,
		ActualHash:        st.ActualHash,
		ProofID:           st.ProofID,
		Error:             st.Error,
		ReceiptAccepted:   st.ReceiptAccepted,
		EscrowTxHash:      t.EscrowTxHash,
		BlockchainTxHash:  firstNonEmpty(st.BlockchainTxHash, t.BlockchainTxHash),
		SettlementTxHash:  firstNonEmpty(st.SettlementTxHash, t.SettlementTxHash),
		UpdatedAt:         st.UpdatedAt,
	}
	if !t.TokenAmount.IsZero() {
		v.TokenAmount = t.TokenAmount.String()
	}
	if !t.ExchangeRate.IsZero() {
		v.ExchangeRate = t.ExchangeRate.String()
	}
	return v
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
