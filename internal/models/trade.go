package models

import (
	"github.com/shopspring/decimal"
)

// LedgerStatus is the numeric trade status reported by the backend ledger.
type LedgerStatus int

const (
	LedgerPending LedgerStatus = 0
	LedgerSettled LedgerStatus = 1
	LedgerExpired LedgerStatus = 2
)

func (s LedgerStatus) String() string {
	switch s {
	case LedgerPending:
		return "PENDING"
	case LedgerSettled:
		return "SETTLED"
	case LedgerExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// Trade is the ledger's view of one buyer-seller exchange. It is read through
// the ledger API and never written by the orchestrator.
type Trade struct {
	TradeID      string          `json:"trade_id"`
	OrderID      string          `json:"order_id"`
	Buyer        string          `json:"buyer"`
	Seller       string          `json:"seller"`
	TokenAmount  decimal.Decimal `json:"token_amount"`
	CNYAmount    decimal.Decimal `json:"cny_amount"` // minor units (fen)
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	PaymentNonce string          `json:"payment_nonce"`
	AlipayID     string          `json:"alipay_id,omitempty"`
	AlipayName   string          `json:"alipay_name,omitempty"`
	ExpiresAt    int64           `json:"expires_at"`
	Status       LedgerStatus    `json:"status"`

	EscrowTxHash     string `json:"escrow_tx_hash,omitempty"`
	SettlementTxHash string `json:"settlement_tx_hash,omitempty"`
	BlockchainTxHash string `json:"blockchain_tx_hash,omitempty"`
}

var fenPerYuan = decimal.NewFromInt(100)

// CNYDisplay renders the fen amount as yuan with two decimals ("70000" -> "700.00").
func (t Trade) CNYDisplay() string {
	return FormatCNY(t.CNYAmount)
}

func FormatCNY(fen decimal.Decimal) string {
	return fen.Div(fenPerYuan).StringFixed(2)
}
