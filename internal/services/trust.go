package services

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Riboost-Studio/pos-print-bridge/internal/agent"
)

const certExpiryWarning = 30 * 24 * time.Hour

// TrustContext is the outcome of one negotiation.
type TrustContext struct {
	Certificate      string
	HasCertificate   bool
	SigningAvailable bool
	Sign             agent.Signer
}

// Negotiator lets the agent approve this bridge without prompting the
// cashier, using the backend's certificate and signing endpoints.
type Negotiator struct {
	backend TrustBackend
	logger  *zap.Logger
	now     func() time.Time
}

func NewNegotiator(backend TrustBackend, logger *zap.Logger) *Negotiator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Negotiator{backend: backend, logger: logger, now: time.Now}
}

// Configure probes both trust endpoints and registers the certificate and
// signature providers on h. Probe failures only degrade trust: without a
// certificate or signer the agent falls back to its own approval prompt.
func (n *Negotiator) Configure(ctx context.Context, h agent.Handle) TrustContext {
	tc := TrustContext{}

	if cert, err := n.fetchCertificate(ctx); err != nil {
		n.logger.Warn("print certificate unavailable, agent will ask for approval", zap.Error(err))
	} else {
		tc.Certificate = cert
		tc.HasCertificate = true
	}

	if _, err := n.sign(ctx, "probe:"+uuid.NewString()); err != nil {
		n.logger.Warn("challenge signing unavailable", zap.Error(err))
	} else {
		tc.SigningAvailable = true
	}
	tc.Sign = n.signer(tc.SigningAvailable)

	cert, hasCert := tc.Certificate, tc.HasCertificate
	h.SetCertificateProvider(func(context.Context) (string, bool) { return cert, hasCert })
	h.SetSignatureProvider(tc.Sign)

	n.logger.Debug("trust configured",
		zap.Bool("certificate", tc.HasCertificate), zap.Bool("signing", tc.SigningAvailable))
	return tc
}

func (n *Negotiator) fetchCertificate(ctx context.Context) (string, error) {
	text, err := n.certificate(ctx)
	if err != nil {
		return "", err
	}
	block, _ := pem.Decode([]byte(text))
	if block == nil {
		return "", fmt.Errorf("certificate response is not PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse certificate: %w", err)
	}
	if left := cert.NotAfter.Sub(n.now()); left <= certExpiryWarning {
		n.logger.Warn("print certificate expires soon",
			zap.Time("expires_at", cert.NotAfter), zap.Duration("time_until_expiry", left))
	}
	return text, nil
}

// signer never fails: "" is the unsigned sentinel.
func (n *Negotiator) signer(available bool) agent.Signer {
	if !available {
		return func(context.Context, string) string { return "" }
	}
	return func(ctx context.Context, challenge string) string {
		sig, err := n.sign(ctx, challenge)
		if err != nil {
			n.logger.Warn("failed to sign agent challenge", zap.Error(err))
			return ""
		}
		return sig
	}
}

func (n *Negotiator) sign(ctx context.Context, challenge string) (sig string, err error) {
	defer func() {
		if r := recover(); r != nil {
			sig, err = "", fmt.Errorf("signing panicked: %v", r)
		}
	}()
	return n.backend.Sign(ctx, challenge)
}

func (n *Negotiator) certificate(ctx context.Context) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("certificate fetch panicked: %v", r)
		}
	}()
	return n.backend.Certificate(ctx)
}
