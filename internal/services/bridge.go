package services

import (
	"go.uber.org/zap"

	"github.com/Riboost-Studio/pos-print-bridge/internal/agent"
	"github.com/Riboost-Studio/pos-print-bridge/internal/model"
	"github.com/Riboost-Studio/pos-print-bridge/internal/store"
)

// Backend is everything the bridge needs from the POS backend.
type Backend interface {
	TrustBackend
	PrinterDirectory
	ReceiptSource
}

// Bridge wires the components around one shared BridgeContext.
type Bridge struct {
	Context     *BridgeContext
	Negotiator  *Negotiator
	Connections *ConnectionManager
	Resolver    *Resolver
	Dispatcher  *Dispatcher
	Metrics     *Metrics
}

// NewBridge assembles a bridge. format selects the receipt rendering the
// backend is asked for.
func NewBridge(s store.Store, backend Backend, loader agent.Loader, format model.ReceiptFormat, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	bc := NewBridgeContext(s)
	metrics := NewMetrics()
	negotiator := NewNegotiator(backend, logger.Named("trust"))
	conns := NewConnectionManager(bc, loader, negotiator, metrics, logger.Named("connection"))
	resolver := NewResolver(bc, backend, conns, metrics, logger.Named("resolver"))
	dispatcher := NewDispatcher(resolver, conns, backend, format, metrics, logger.Named("dispatcher"))

	return &Bridge{
		Context:     bc,
		Negotiator:  negotiator,
		Connections: conns,
		Resolver:    resolver,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
	}
}

func (b *Bridge) Close() error {
	return b.Connections.Close()
}
