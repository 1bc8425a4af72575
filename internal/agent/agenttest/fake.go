// Package agenttest provides in-memory and in-process stand-ins for the
// local print agent.
package agenttest

import (
	"context"
	"sync"

	"github.com/Riboost-Studio/pos-print-bridge/internal/agent"
	"github.com/Riboost-Studio/pos-print-bridge/internal/model"
)

// PrintCall records one Print invocation.
type PrintCall struct {
	Config model.PrintConfig
	Data   []model.PrintData
}

// Handle is a scriptable agent.Handle.
type Handle struct {
	ConnectErr error
	FindErr    error
	PrintErr   error
	Printers   []string

	// ConnectGate, when set, blocks Connect until it is closed.
	ConnectGate chan struct{}

	mu           sync.Mutex
	active       bool
	connectCalls int
	findCalls    int
	prints       []PrintCall
	certificate  agent.CertificateProvider
	signer       agent.Signer
}

var _ agent.Handle = (*Handle)(nil)

func (h *Handle) SetCertificateProvider(p agent.CertificateProvider) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.certificate = p
}

func (h *Handle) SetSignatureProvider(s agent.Signer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.signer = s
}

func (h *Handle) Connect(ctx context.Context) error {
	h.mu.Lock()
	h.connectCalls++
	gate := h.ConnectGate
	h.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if h.ConnectErr != nil {
		return &agent.ConnectionError{URL: "fake://agent", Err: h.ConnectErr}
	}
	h.SetActive(true)
	return nil
}

func (h *Handle) IsActive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// SetActive simulates the socket opening or dropping.
func (h *Handle) SetActive(active bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active = active
}

func (h *Handle) FindPrinters(context.Context) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.findCalls++
	if h.FindErr != nil {
		return nil, h.FindErr
	}
	if !h.active {
		return nil, agent.ErrNotConnected
	}
	return append([]string(nil), h.Printers...), nil
}

func (h *Handle) Print(_ context.Context, cfg model.PrintConfig, data []model.PrintData) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.active {
		return agent.ErrNotConnected
	}
	h.prints = append(h.prints, PrintCall{Config: cfg, Data: data})
	return h.PrintErr
}

func (h *Handle) Close() error {
	h.SetActive(false)
	return nil
}

func (h *Handle) ConnectCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connectCalls
}

func (h *Handle) FindCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.findCalls
}

func (h *Handle) Prints() []PrintCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]PrintCall(nil), h.prints...)
}

// Certificate invokes the registered certificate provider.
func (h *Handle) Certificate(ctx context.Context) (string, bool) {
	h.mu.Lock()
	p := h.certificate
	h.mu.Unlock()
	if p == nil {
		return "", false
	}
	return p(ctx)
}

// Sign invokes the registered signature provider.
func (h *Handle) Sign(ctx context.Context, challenge string) string {
	h.mu.Lock()
	s := h.signer
	h.mu.Unlock()
	if s == nil {
		return ""
	}
	return s(ctx, challenge)
}

// Loader returns Handle synchronously, or Err.
type Loader struct {
	Handle agent.Handle
	Err    error

	mu    sync.Mutex
	loads int
}

func (l *Loader) Load(context.Context) (agent.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads++
	if l.Err != nil {
		return nil, &agent.LoadError{Err: l.Err}
	}
	return l.Handle, nil
}

func (l *Loader) Loads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads
}
