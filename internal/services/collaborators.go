package services

import (
	"context"

	"github.com/Riboost-Studio/pos-print-bridge/internal/agent"
	"github.com/Riboost-Studio/pos-print-bridge/internal/model"
)

// TrustBackend holds the key the agent trusts this bridge with.
type TrustBackend interface {
	Certificate(ctx context.Context) (string, error)
	Sign(ctx context.Context, challenge string) (string, error)
}

// PrinterDirectory lists printers registered per outlet.
type PrinterDirectory interface {
	Printers(ctx context.Context, outletID string) ([]model.PrinterRecord, error)
}

// ReceiptSource renders and serves authoritative receipts.
type ReceiptSource interface {
	Receipt(ctx context.Context, transactionRef string, format model.ReceiptFormat) (*model.ReceiptPayload, error)
	GenerateReceipt(ctx context.Context, transactionRef string, format model.ReceiptFormat) error
}

// Connector guarantees a live agent connection.
type Connector interface {
	EnsureConnected(ctx context.Context) error
	Handle() agent.Handle
}
