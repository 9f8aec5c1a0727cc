package ledger

import "github.com/shopspring/decimal"

// Fill is one matched sell-order fill from the match plan.
type Fill struct {
	OrderID     string          `json:"order_id"`
	TokenAmount decimal.Decimal `json:"token_amount"`
}

type CreateTradesRequest struct {
	Buyer string `json:"buyer"`
	Fills []Fill `json:"fills"`
}

// CreatedTrade is the per-fill result of an escrow fill request.
type CreatedTrade struct {
	TradeID      string `json:"trade_id"`
	OrderID      string `json:"order_id"`
	TxHash       string `json:"tx_hash"`
	AlipayID     string `json:"alipay_id"`
	AlipayName   string `json:"alipay_name"`
	PaymentNonce string `json:"payment_nonce"`
	ExpiresAt    int64  `json:"expires_at"`
}

type createTradesResponse struct {
	Trades []CreatedTrade `json:"trades"`
}

type UploadResult struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

type ValidationResult struct {
	IsValid      bool   `json:"is_valid"`
	ExpectedHash string `json:"expected_hash"`
	ActualHash   string `json:"actual_hash"`
	Details      string `json:"details"`
}

type ProofResult struct {
	Success bool   `json:"success"`
	ProofID string `json:"proof_id,omitempty"`
	Message string `json:"message,omitempty"`
}

type SubmitResult struct {
	Success bool   `json:"success"`
	TxHash  string `json:"tx_hash"`
	Message string `json:"message,omitempty"`
}
