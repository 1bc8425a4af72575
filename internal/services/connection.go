package services

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Riboost-Studio/pos-print-bridge/internal/agent"
	"github.com/Riboost-Studio/pos-print-bridge/internal/logger"
	"github.com/Riboost-Studio/pos-print-bridge/internal/model"
)

// ConnectionManager keeps the single agent connection of the process.
type ConnectionManager struct {
	bc         *BridgeContext
	loader     agent.Loader
	negotiator *Negotiator
	metrics    *Metrics
	logger     *zap.Logger

	group singleflight.Group
}

func NewConnectionManager(bc *BridgeContext, loader agent.Loader, negotiator *Negotiator, metrics *Metrics, logger *zap.Logger) *ConnectionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnectionManager{
		bc:         bc,
		loader:     loader,
		negotiator: negotiator,
		metrics:    metrics,
		logger:     logger,
	}
}

// EnsureConnected loads the agent client if needed, renegotiates trust and
// opens the socket unless it is already open. Concurrent callers share one
// attempt, which runs detached from any single caller's cancellation; a
// caller whose ctx ends stops waiting and gets ctx.Err(). Nothing is retried
// here.
func (m *ConnectionManager) EnsureConnected(ctx context.Context) error {
	shared := context.WithoutCancel(ctx)
	ch := m.group.DoChan("connect", func() (any, error) {
		return nil, m.ensureConnected(shared)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *ConnectionManager) ensureConnected(ctx context.Context) error {
	h := m.bc.Handle()
	if h == nil {
		loaded, err := m.loader.Load(ctx)
		if err != nil {
			m.metrics.connectResult("load_failed")
			var loadErr *agent.LoadError
			if errors.As(err, &loadErr) {
				return err
			}
			return &agent.LoadError{Err: err}
		}
		m.bc.setHandle(loaded)
		h = loaded
	}

	// Tokens may have rotated since the last connection.
	m.bc.setTrust(m.negotiator.Configure(ctx, h))

	if m.bc.State() == model.SessionConnected && h.IsActive() {
		return nil
	}

	m.bc.setState(model.SessionConnecting)
	if err := h.Connect(ctx); err != nil {
		m.bc.setState(model.SessionDisconnected)
		m.metrics.connectResult("failed")
		logger.FromContext(ctx, m.logger).Warn("failed to connect to print agent", zap.Error(err))
		var connErr *agent.ConnectionError
		if errors.As(err, &connErr) {
			return err
		}
		return &agent.ConnectionError{Err: err}
	}
	m.bc.setState(model.SessionConnected)
	m.metrics.connectResult("connected")
	return nil
}

// Handle returns the loaded agent client, or nil before the first load.
func (m *ConnectionManager) Handle() agent.Handle {
	return m.bc.Handle()
}

// State reports the session state, downgraded when the socket has dropped.
func (m *ConnectionManager) State() model.SessionState {
	s := m.bc.State()
	if s == model.SessionConnected {
		if h := m.bc.Handle(); h == nil || !h.IsActive() {
			return model.SessionDisconnected
		}
	}
	return s
}

func (m *ConnectionManager) Close() error {
	defer m.bc.setState(model.SessionDisconnected)
	if h := m.bc.Handle(); h != nil {
		return h.Close()
	}
	return nil
}
