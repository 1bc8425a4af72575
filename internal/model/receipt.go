package model

import (
	"encoding/base64"
	"fmt"
)

// ReceiptFormat names the encoding of a backend-rendered receipt.
type ReceiptFormat string

const (
	// FormatRawBinary is pre-rendered printer-control bytes, base64 encoded.
	FormatRawBinary ReceiptFormat = "raw-binary"
)

// --- Receipt Structures ---

// ReceiptPayload is the authoritative receipt issued by the backend for a
// transaction. It is never modified or synthesized locally.
type ReceiptPayload struct {
	Format         ReceiptFormat `json:"format"`
	Content        string        `json:"content"`
	TransactionRef string        `json:"transactionRef"`
}

// Bytes decodes the base64 content.
func (p *ReceiptPayload) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(p.Content)
}

// Validate checks that the payload can be handed to hardware as-is.
func (p *ReceiptPayload) Validate(expected ReceiptFormat) error {
	if p == nil {
		return fmt.Errorf("no payload")
	}
	if p.Format != expected {
		return fmt.Errorf("unexpected receipt format %q, want %q", p.Format, expected)
	}
	if p.Content == "" {
		return fmt.Errorf("empty receipt content")
	}
	if _, err := p.Bytes(); err != nil {
		return fmt.Errorf("receipt content is not valid base64: %w", err)
	}
	return nil
}
