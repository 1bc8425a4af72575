package services

import (
	"context"
	"sync"

	"github.com/Riboost-Studio/pos-print-bridge/internal/agent"
	"github.com/Riboost-Studio/pos-print-bridge/internal/model"
	"github.com/Riboost-Studio/pos-print-bridge/internal/store"
)

// BridgeContext is the process-wide state shared by the bridge components:
// the loaded agent handle, the session state, the last trust negotiation and
// the client-local store holding the cached default printer. One is built
// per process and passed to every component.
//
// The mutex only makes single reads and writes safe. It does not serialize
// print jobs, and two concurrent callers can still interleave transitions.
type BridgeContext struct {
	mu     sync.RWMutex
	handle agent.Handle
	state  model.SessionState
	trust  TrustContext

	store store.Store
}

func NewBridgeContext(s store.Store) *BridgeContext {
	return &BridgeContext{store: s, state: model.SessionDisconnected}
}

func (b *BridgeContext) Handle() agent.Handle {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.handle
}

func (b *BridgeContext) setHandle(h agent.Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handle = h
}

func (b *BridgeContext) State() model.SessionState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *BridgeContext) setState(s model.SessionState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = s
}

func (b *BridgeContext) Trust() TrustContext {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.trust
}

func (b *BridgeContext) setTrust(t TrustContext) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trust = t
}

// CachedDefaultPrinter reads the last discovered or chosen printer.
func (b *BridgeContext) CachedDefaultPrinter(ctx context.Context) (string, bool, error) {
	v, ok, err := b.store.Get(ctx, store.KeyDefaultPrinter)
	if err != nil || !ok || v == "" {
		return "", false, err
	}
	return v, true, nil
}

func (b *BridgeContext) SetCachedDefaultPrinter(ctx context.Context, printer string) error {
	return b.store.Set(ctx, store.KeyDefaultPrinter, printer)
}
