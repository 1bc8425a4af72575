package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Riboost-Studio/pos-print-bridge/internal/logger"
	"github.com/Riboost-Studio/pos-print-bridge/internal/model"
)

// Dispatcher is the entry point the rest of the POS calls to print.
//
// There is no queue and no de-duplication: two concurrent calls for the same
// transaction both print.
type Dispatcher struct {
	resolver *Resolver
	conn     Connector
	receipts ReceiptSource
	format   model.ReceiptFormat
	metrics  *Metrics
	logger   *zap.Logger
}

func NewDispatcher(resolver *Resolver, conn Connector, receipts ReceiptSource, format model.ReceiptFormat, metrics *Metrics, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if format == "" {
		format = model.FormatRawBinary
	}
	return &Dispatcher{
		resolver: resolver,
		conn:     conn,
		receipts: receipts,
		format:   format,
		metrics:  metrics,
		logger:   logger,
	}
}

// PrintReceipt prints the backend-rendered receipt of a transaction.
// outletID may be empty. Steps run strictly in order: resolve printer,
// connect, fetch (or generate and re-fetch once) the receipt, submit.
func (d *Dispatcher) PrintReceipt(ctx context.Context, transactionRef, outletID string) (err error) {
	started := time.Now()
	log := logger.FromContext(ctx, d.logger).With(
		zap.String("job", uuid.NewString()),
		zap.String("transaction", transactionRef),
		zap.String("outlet", outletID),
	)
	defer func() { d.metrics.printResult(err, time.Since(started)) }()

	if transactionRef == "" {
		return ErrInvalidTransaction
	}

	// 1. Resolve printer
	printer, ok := d.resolvePrinter(ctx, outletID)

	// 2. Nothing to print on
	if !ok {
		log.Warn("no printer configured")
		return ErrNoPrinterConfigured
	}
	log = log.With(zap.String("printer", printer))

	// 3. Live connection
	if err := d.conn.EnsureConnected(ctx); err != nil {
		log.Warn("print agent unavailable", zap.Error(err))
		return err
	}

	// 4. Authoritative receipt
	payload, err := d.fetchReceipt(ctx, log, transactionRef)
	if err != nil {
		log.Error("receipt unavailable", zap.Error(err))
		return err
	}

	// 5. Submit raw bytes
	err = d.conn.Handle().Print(ctx, model.PrintConfig{Printer: printer}, []model.PrintData{model.RawBase64(payload.Content)})
	if err != nil {
		log.Error("print submission failed", zap.Error(err))
		return fmt.Errorf("print on %s: %w", printer, err)
	}

	log.Info("receipt printed", zap.Duration("took", time.Since(started)))
	return nil
}

func (d *Dispatcher) resolvePrinter(ctx context.Context, outletID string) (string, bool) {
	if outletID != "" {
		if id, ok := d.resolver.ResolveForOutlet(ctx, outletID); ok {
			return id, true
		}
	} else if id, ok := d.resolver.CachedDefault(ctx); ok {
		return id, true
	}

	if found := d.resolver.Scan(ctx, true); len(found) > 0 {
		return found[0], true
	}
	return "", false
}

// fetchReceipt asks for generation at most once, then gives up.
func (d *Dispatcher) fetchReceipt(ctx context.Context, log *zap.Logger, ref string) (*model.ReceiptPayload, error) {
	payload, err := d.receipts.Receipt(ctx, ref, d.format)
	if err != nil {
		return nil, unavailable(ref, err)
	}
	if d.usable(payload, ref) == nil {
		return payload, nil
	}

	log.Info("no usable receipt yet, requesting generation")
	d.metrics.generationRequested()
	if err := d.receipts.GenerateReceipt(ctx, ref, d.format); err != nil {
		return nil, unavailable(ref, err)
	}

	payload, err = d.receipts.Receipt(ctx, ref, d.format)
	if err != nil {
		return nil, unavailable(ref, err)
	}
	if err := d.usable(payload, ref); err != nil {
		return nil, unavailable(ref, err)
	}
	return payload, nil
}

func (d *Dispatcher) usable(p *model.ReceiptPayload, ref string) error {
	if err := p.Validate(d.format); err != nil {
		return err
	}
	if p.TransactionRef != "" && p.TransactionRef != ref {
		return fmt.Errorf("receipt belongs to transaction %q", p.TransactionRef)
	}
	return nil
}

func unavailable(ref string, cause error) error {
	return fmt.Errorf("%w: transaction %s: %w", ErrReceiptUnavailable, ref, cause)
}
