package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/Riboost-Studio/pos-print-bridge/internal/logger"
	"github.com/Riboost-Studio/pos-print-bridge/internal/model"
)

// Resolver decides which printer receives an outlet's jobs.
type Resolver struct {
	bc        *BridgeContext
	directory PrinterDirectory
	conn      Connector
	metrics   *Metrics
	logger    *zap.Logger
}

func NewResolver(bc *BridgeContext, directory PrinterDirectory, conn Connector, metrics *Metrics, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{bc: bc, directory: directory, conn: conn, metrics: metrics, logger: logger}
}

// ResolveForOutlet tries the outlet's registered printers (default first),
// then the cached default. It never invents an identifier.
func (r *Resolver) ResolveForOutlet(ctx context.Context, outletID string) (string, bool) {
	records, err := r.directory.Printers(ctx, outletID)
	if err != nil {
		logger.FromContext(ctx, r.logger).Warn("failed to list outlet printers, trying cached default",
			zap.String("outlet", outletID), zap.Error(err))
	} else if id, ok := model.PickPrinter(records); ok {
		return id, true
	}
	return r.CachedDefault(ctx)
}

// CachedDefault returns the locally cached printer, if any.
func (r *Resolver) CachedDefault(ctx context.Context) (string, bool) {
	id, ok, err := r.bc.CachedDefaultPrinter(ctx)
	if err != nil {
		logger.FromContext(ctx, r.logger).Warn("failed to read cached default printer", zap.Error(err))
		return "", false
	}
	return id, ok
}

// SetDefault pins the cached default printer.
func (r *Resolver) SetDefault(ctx context.Context, printer string) error {
	return r.bc.SetCachedDefaultPrinter(ctx, printer)
}

// Scan asks the agent which printers the OS can see. With persist, the
// first one becomes the cached default. Failures are logged and yield an
// empty list: callers cannot act differently on "none" and "failed".
func (r *Resolver) Scan(ctx context.Context, persist bool) []string {
	log := logger.FromContext(ctx, r.logger)
	if err := r.conn.EnsureConnected(ctx); err != nil {
		log.Warn("printer scan skipped, agent unavailable", zap.Error(err))
		r.metrics.scanResult("failed")
		return []string{}
	}

	printers, err := r.conn.Handle().FindPrinters(ctx)
	if err != nil {
		log.Warn("printer scan failed", zap.Error(err))
		r.metrics.scanResult("failed")
		return []string{}
	}
	if len(printers) == 0 {
		r.metrics.scanResult("empty")
		return []string{}
	}
	r.metrics.scanResult("found")

	if persist {
		if err := r.bc.SetCachedDefaultPrinter(ctx, printers[0]); err != nil {
			log.Warn("failed to cache discovered printer", zap.String("printer", printers[0]), zap.Error(err))
		} else {
			log.Info("cached discovered printer as default", zap.String("printer", printers[0]))
		}
	}
	return printers
}
