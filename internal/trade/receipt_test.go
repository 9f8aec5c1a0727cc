package trade

import (
	"bytes"
	"errors"
	"testing"
)

func TestGate_Check(t *testing.T) {
	g := Gate{MaxBytes: 64}
	pdf := pdfReceipt()

	if err := g.Check(pdf); err != nil {
		t.Fatalf("pdf err=%v", err)
	}
	if err := g.Check(Receipt{Filename: "RECEIPT.PDF", Data: pdf.Data}); err != nil {
		t.Fatalf("upper-case extension err=%v", err)
	}

	bad := []Receipt{
		{Filename: "empty.pdf"},
		{Filename: "big.pdf", Data: append([]byte("%PDF-1.7\n"), bytes.Repeat([]byte("x"), 100)...)},
		{Filename: "notes.txt", Data: []byte("just some text")},
		{Filename: "receipt.png", Data: pdf.Data},
	}
	for _, r := range bad {
		if err := g.Check(r); !errors.Is(err, ErrInvalidReceipt) {
			t.Fatalf("%s: err=%v want ErrInvalidReceipt", r.Filename, err)
		}
	}
}

func TestStatus_Edges(t *testing.T) {
	if !CanTransition(StatusPending, StatusUploading) || !CanTransition(StatusProofFailed, StatusGeneratingProof) {
		t.Fatalf("expected lifecycle edges to be allowed")
	}
	if CanTransition(StatusValid, StatusSubmitting) {
		t.Fatalf("valid -> submitting must go through proof generation")
	}
	for _, s := range []Status{StatusSettled, StatusExpired} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
		for _, to := range []Status{StatusPending, StatusUploading, StatusSettled, StatusExpired} {
			if CanTransition(s, to) {
				t.Fatalf("%s -> %s should not be allowed", s, to)
			}
		}
	}
	if !StatusGeneratingProof.InFlight() || StatusProofReady.InFlight() {
		t.Fatalf("in-flight classification wrong")
	}
}
