package trade

import "time"

// State is the ephemeral runtime state of one trade. It is owned by its
// Machine; callers only ever see copies.
type State struct {
	TradeID       string `json:"trade_id"`
	Status        Status `json:"status"`
	TimeRemaining int64  `json:"time_remaining"`

	UploadedFilename  string `json:"uploaded_filename,omitempty"`
	ValidationDetails string `json:"validation_details,omitempty"`
	ExpectedHash      string `json:"expected_hash,omitempty"`
	ActualHash        string `json:"actual_hash,omitempty"`
	ProofID           string `json:"proof_id,omitempty"`
	Error             string `json:"error,omitempty"`

	// ReceiptAccepted is set once the backend holds a validated receipt for
	// the trade, so proof generation can be resumed without a re-upload.
	ReceiptAccepted bool `json:"receipt_accepted"`

	BlockchainTxHash string `json:"blockchain_tx_hash,omitempty"`
	SettlementTxHash string `json:"settlement_tx_hash,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

func (s *State) clearDiagnostics() {
	s.Error = ""
	s.UploadedFilename = ""
	s.ValidationDetails = ""
	s.ExpectedHash = ""
	s.ActualHash = ""
	s.ProofID = ""
	s.ReceiptAccepted = false
}

// Transition describes one observed status change.
type Transition struct {
	TradeID string    `json:"trade_id"`
	From    Status    `json:"from"`
	To      Status    `json:"to"`
	Error   string    `json:"error,omitempty"`
	TxHash  string    `json:"tx_hash,omitempty"`
	At      time.Time `json:"at"`
}
