package trade

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var ErrInvalidReceipt = errors.New("invalid receipt")

const DefaultMaxReceiptBytes = 10 << 20

// Receipt is a single payment receipt file selected by the buyer.
type Receipt struct {
	Filename string
	Data     []byte
}

// Gate enforces the receipt type and size constraints before anything is sent
// to the backend.
type Gate struct {
	MaxBytes     int64
	AllowedTypes []string
}

func DefaultGate() Gate {
	return Gate{MaxBytes: DefaultMaxReceiptBytes, AllowedTypes: []string{"application/pdf"}}
}

func (g Gate) Check(r Receipt) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("%w: no file selected", ErrInvalidReceipt)
	}
	maxBytes := g.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxReceiptBytes
	}
	if int64(len(r.Data)) > maxBytes {
		return fmt.Errorf("%w: file is %d bytes, limit is %d", ErrInvalidReceipt, len(r.Data), maxBytes)
	}
	allowed := g.AllowedTypes
	if len(allowed) == 0 {
		allowed = DefaultGate().AllowedTypes
	}
	detected := mimetype.Detect(r.Data)
	var match bool
	for _, t := range allowed {
		if detected.Is(strings.TrimSpace(t)) {
			match = true
			break
		}
	}
	if !match {
		return fmt.Errorf("%w: unsupported file type %s", ErrInvalidReceipt, detected.String())
	}
	if ext := filepath.Ext(r.Filename); ext != "" && !strings.EqualFold(ext, detected.Extension()) {
		return fmt.Errorf("%w: extension %s does not match content %s", ErrInvalidReceipt, ext, detected.String())
	}
	return nil
}
