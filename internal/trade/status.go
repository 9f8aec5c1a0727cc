package trade

// Status is the client-side phase of one trade.
type Status string

const (
	StatusPending         Status = "pending"
	StatusUploading       Status = "uploading"
	StatusValidating      Status = "validating"
	StatusValid           Status = "valid"
	StatusInvalid         Status = "invalid"
	StatusGeneratingProof Status = "generating_proof"
	StatusProofReady      Status = "proof_ready"
	StatusProofFailed     Status = "proof_failed"
	StatusSubmitting      Status = "submitting_to_blockchain"
	StatusSubmitted       Status = "blockchain_submitted"
	StatusSettled         Status = "settled"
	StatusExpired         Status = "expired"
)

var transitions = map[Status][]Status{
	StatusPending:         {StatusUploading, StatusExpired, StatusSettled},
	StatusUploading:       {StatusValidating, StatusPending},
	StatusValidating:      {StatusValid, StatusInvalid, StatusPending},
	StatusValid:           {StatusGeneratingProof},
	StatusInvalid:         {StatusPending},
	StatusGeneratingProof: {StatusProofReady, StatusProofFailed},
	StatusProofReady:      {StatusSubmitting, StatusProofFailed},
	StatusProofFailed:     {StatusPending, StatusGeneratingProof},
	StatusSubmitting:      {StatusSubmitted, StatusProofFailed},
	StatusSubmitted:       {StatusSettled},
}

// CanTransition reports whether from -> to is an edge of the trade lifecycle.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusSettled || s == StatusExpired
}

// InFlight reports whether a network phase is running for the trade.
func (s Status) InFlight() bool {
	switch s {
	case StatusUploading, StatusValidating, StatusGeneratingProof, StatusSubmitting:
		return true
	default:
		return false
	}
}
