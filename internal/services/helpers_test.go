package services

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Riboost-Studio/pos-print-bridge/internal/agent/agenttest"
	"github.com/Riboost-Studio/pos-print-bridge/internal/model"
	"github.com/Riboost-Studio/pos-print-bridge/internal/store"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

// MockBackend is a mock implementation of Backend
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Certificate(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockBackend) Sign(ctx context.Context, challenge string) (string, error) {
	args := m.Called(ctx, challenge)
	return args.String(0), args.Error(1)
}

func (m *MockBackend) Printers(ctx context.Context, outletID string) ([]model.PrinterRecord, error) {
	args := m.Called(ctx, outletID)
	records, _ := args.Get(0).([]model.PrinterRecord)
	return records, args.Error(1)
}

func (m *MockBackend) Receipt(ctx context.Context, ref string, format model.ReceiptFormat) (*model.ReceiptPayload, error) {
	args := m.Called(ctx, ref, format)
	payload, _ := args.Get(0).(*model.ReceiptPayload)
	return payload, args.Error(1)
}

func (m *MockBackend) GenerateReceipt(ctx context.Context, ref string, format model.ReceiptFormat) error {
	args := m.Called(ctx, ref, format)
	return args.Error(0)
}

// withoutTrust makes both trust endpoints fail.
func (m *MockBackend) withoutTrust() *MockBackend {
	m.On("Certificate", mock.Anything).Return("", assertErr("no certificate")).Maybe()
	m.On("Sign", mock.Anything, mock.Anything).Return("", assertErr("no signing")).Maybe()
	return m
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

type fixture struct {
	backend *MockBackend
	handle  *agenttest.Handle
	loader  *agenttest.Loader
	store   store.Store
	bridge  *Bridge
}

func newFixture(t *testing.T, backend *MockBackend) *fixture {
	t.Helper()
	handle := &agenttest.Handle{}
	loader := &agenttest.Loader{Handle: handle}
	s := store.NewMemoryStore()
	return &fixture{
		backend: backend,
		handle:  handle,
		loader:  loader,
		store:   s,
		bridge:  NewBridge(s, backend, loader, model.FormatRawBinary, zap.NewNop()),
	}
}

func rawPayload(ref, content string) *model.ReceiptPayload {
	return &model.ReceiptPayload{
		Format:         model.FormatRawBinary,
		Content:        base64.StdEncoding.EncodeToString([]byte(content)),
		TransactionRef: ref,
	}
}

func testCertificatePEM(t *testing.T, notAfter time.Time) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "print-bridge"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

// counterValue reads a counter from the registry, 0 when absent.
func counterValue(t *testing.T, reg *prometheus.Registry, name, result string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "result" && l.GetValue() == result {
					return m.GetCounter().GetValue()
				}
			}
			if result == "" && len(m.GetLabel()) == 0 {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}
