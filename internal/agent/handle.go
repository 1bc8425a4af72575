// Package agent is the client side of the local print agent: the Handle
// capability the bridge drives, the loader that produces it, and the
// websocket implementation that speaks to the agent process.
package agent

import (
	"context"

	"github.com/Riboost-Studio/pos-print-bridge/internal/model"
)

// CertificateProvider returns the PEM certificate presented to the agent,
// with ok=false when none is available.
type CertificateProvider func(ctx context.Context) (pem string, ok bool)

// Signer answers an agent challenge. It has no error result: the empty
// string means "unsigned" and makes the agent fall back to asking the user.
type Signer func(ctx context.Context, challenge string) string

// Handle is the loaded agent client.
type Handle interface {
	SetCertificateProvider(CertificateProvider)
	SetSignatureProvider(Signer)
	Connect(ctx context.Context) error
	IsActive() bool
	FindPrinters(ctx context.Context) ([]string, error)
	Print(ctx context.Context, cfg model.PrintConfig, data []model.PrintData) error
	Close() error
}

// Loader makes the agent client available to the process.
type Loader interface {
	Load(ctx context.Context) (Handle, error)
}
