package services

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Riboost-Studio/pos-print-bridge/internal/agent"
	"github.com/Riboost-Studio/pos-print-bridge/internal/logger"
	"github.com/Riboost-Studio/pos-print-bridge/internal/model"
	"github.com/Riboost-Studio/pos-print-bridge/internal/store"
)

const receiptBytes = "\x1b@RECEIPT TXN-100\n\x1dV\x00"

func TestPrintReceipt_EndToEnd(t *testing.T) {
	ctx := context.Background()
	backend := new(MockBackend).withoutTrust()
	backend.On("Printers", mock.Anything, "O1").Return([]model.PrinterRecord{
		{Identifier: "HP-1", OutletID: "O1"},
		{Identifier: "HP-2", OutletID: "O1", IsDefault: true},
	}, nil)
	backend.On("Receipt", mock.Anything, "TXN-100", model.FormatRawBinary).Return(rawPayload("TXN-100", receiptBytes), nil)
	f := newFixture(t, backend)

	require.NoError(t, f.bridge.Dispatcher.PrintReceipt(ctx, "TXN-100", "O1"))

	prints := f.handle.Prints()
	require.Len(t, prints, 1)
	assert.Equal(t, "HP-2", prints[0].Config.Printer)
	require.Len(t, prints[0].Data, 1)
	assert.Equal(t, "raw", prints[0].Data[0].Type)
	assert.Equal(t, "base64", prints[0].Data[0].Format)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte(receiptBytes)), prints[0].Data[0].Data)

	backend.AssertNotCalled(t, "GenerateReceipt", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, float64(1), counterValue(t, f.bridge.Metrics.Registry(), MetricPrintJobsTotal, "printed"))
}

func TestPrintReceipt_GeneratesMissingReceipt(t *testing.T) {
	ctx := context.Background()
	backend := new(MockBackend).withoutTrust()
	backend.On("Printers", mock.Anything, "O1").Return([]model.PrinterRecord{{Identifier: "HP-2", IsDefault: true}}, nil)
	backend.On("Receipt", mock.Anything, "TXN-7", model.FormatRawBinary).Return(nil, nil).Once()
	backend.On("GenerateReceipt", mock.Anything, "TXN-7", model.FormatRawBinary).Return(nil).Once()
	backend.On("Receipt", mock.Anything, "TXN-7", model.FormatRawBinary).Return(rawPayload("TXN-7", "second"), nil).Once()
	f := newFixture(t, backend)

	require.NoError(t, f.bridge.Dispatcher.PrintReceipt(ctx, "TXN-7", "O1"))

	prints := f.handle.Prints()
	require.Len(t, prints, 1)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("second")), prints[0].Data[0].Data)
	backend.AssertExpectations(t)
	assert.Equal(t, float64(1), counterValue(t, f.bridge.Metrics.Registry(), MetricReceiptGenerationTotal, ""))
}

func TestPrintReceipt_ReceiptUnavailable(t *testing.T) {
	tests := []struct {
		name  string
		first *model.ReceiptPayload
		again *model.ReceiptPayload
	}{
		{name: "still missing"},
		{
			name:  "wrong format",
			first: &model.ReceiptPayload{Format: "html", Content: "PGI+"},
			again: &model.ReceiptPayload{Format: "html", Content: "PGI+"},
		},
		{
			name:  "undecodable content",
			first: &model.ReceiptPayload{Format: model.FormatRawBinary, Content: "%%%"},
			again: &model.ReceiptPayload{Format: model.FormatRawBinary, Content: "%%%"},
		},
		{
			name:  "other transaction",
			first: rawPayload("TXN-99", "x"),
			again: rawPayload("TXN-99", "x"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			backend := new(MockBackend).withoutTrust()
			backend.On("Receipt", mock.Anything, "TXN-1", model.FormatRawBinary).Return(tt.first, nil).Once()
			backend.On("GenerateReceipt", mock.Anything, "TXN-1", model.FormatRawBinary).Return(nil).Once()
			backend.On("Receipt", mock.Anything, "TXN-1", model.FormatRawBinary).Return(tt.again, nil).Once()
			f := newFixture(t, backend)
			require.NoError(t, f.bridge.Resolver.SetDefault(ctx, "HP-2"))

			err := f.bridge.Dispatcher.PrintReceipt(ctx, "TXN-1", "")

			require.ErrorIs(t, err, ErrReceiptUnavailable)
			assert.ErrorContains(t, err, "TXN-1")
			backend.AssertNumberOfCalls(t, "GenerateReceipt", 1)
			backend.AssertNumberOfCalls(t, "Receipt", 2)
			assert.Empty(t, f.handle.Prints())
		})
	}
}

func TestPrintReceipt_BackendErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("fetch fails", func(t *testing.T) {
		backend := new(MockBackend).withoutTrust()
		backend.On("Receipt", mock.Anything, "TXN-1", model.FormatRawBinary).Return(nil, errors.New("503"))
		f := newFixture(t, backend)
		require.NoError(t, f.bridge.Resolver.SetDefault(ctx, "HP-2"))

		err := f.bridge.Dispatcher.PrintReceipt(ctx, "TXN-1", "")
		require.ErrorIs(t, err, ErrReceiptUnavailable)
		backend.AssertNotCalled(t, "GenerateReceipt", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("generation fails", func(t *testing.T) {
		backend := new(MockBackend).withoutTrust()
		backend.On("Receipt", mock.Anything, "TXN-1", model.FormatRawBinary).Return(nil, nil).Once()
		backend.On("GenerateReceipt", mock.Anything, "TXN-1", model.FormatRawBinary).Return(errors.New("renderer down"))
		f := newFixture(t, backend)
		require.NoError(t, f.bridge.Resolver.SetDefault(ctx, "HP-2"))

		err := f.bridge.Dispatcher.PrintReceipt(ctx, "TXN-1", "")
		require.ErrorIs(t, err, ErrReceiptUnavailable)
		assert.ErrorContains(t, err, "renderer down")
		backend.AssertNumberOfCalls(t, "Receipt", 1)
	})
}

func TestPrintReceipt_NoPrinterConfigured(t *testing.T) {
	ctx := context.Background()
	backend := new(MockBackend).withoutTrust()
	backend.On("Printers", mock.Anything, "O1").Return([]model.PrinterRecord{}, nil)
	f := newFixture(t, backend)

	err := f.bridge.Dispatcher.PrintReceipt(ctx, "TXN-100", "O1")

	require.ErrorIs(t, err, ErrNoPrinterConfigured)
	assert.Equal(t, 1, f.handle.FindCalls())
	assert.Empty(t, f.handle.Prints())
	backend.AssertNotCalled(t, "Receipt", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, float64(1), counterValue(t, f.bridge.Metrics.Registry(), MetricPrintJobsTotal, "no_printer"))
}

func TestPrintReceipt_FallsBackToDiscovery(t *testing.T) {
	ctx := context.Background()
	backend := new(MockBackend).withoutTrust()
	backend.On("Receipt", mock.Anything, "TXN-5", model.FormatRawBinary).Return(rawPayload("TXN-5", "r"), nil)
	f := newFixture(t, backend)
	f.handle.Printers = []string{"p1", "p2"}

	require.NoError(t, f.bridge.Dispatcher.PrintReceipt(ctx, "TXN-5", ""))

	prints := f.handle.Prints()
	require.Len(t, prints, 1)
	assert.Equal(t, "p1", prints[0].Config.Printer)
	cached, _, err := f.bridge.Context.CachedDefaultPrinter(ctx)
	require.NoError(t, err)
	assert.Equal(t, "p1", cached)
}

func TestPrintReceipt_UsesCachedDefaultWithoutOutlet(t *testing.T) {
	ctx := context.Background()
	backend := new(MockBackend).withoutTrust()
	backend.On("Receipt", mock.Anything, "TXN-5", model.FormatRawBinary).Return(rawPayload("", "r"), nil)
	f := newFixture(t, backend)
	require.NoError(t, f.store.Set(ctx, store.KeyDefaultPrinter, "EPSON"))
	f.handle.Printers = []string{"p1"}

	require.NoError(t, f.bridge.Dispatcher.PrintReceipt(ctx, "TXN-5", ""))

	assert.Equal(t, "EPSON", f.handle.Prints()[0].Config.Printer)
	assert.Zero(t, f.handle.FindCalls())
	backend.AssertNotCalled(t, "Printers", mock.Anything, mock.Anything)
}

func TestPrintReceipt_AgentErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("load", func(t *testing.T) {
		f := newFixture(t, new(MockBackend).withoutTrust())
		require.NoError(t, f.bridge.Resolver.SetDefault(ctx, "HP-2"))
		f.loader.Err = errors.New("agent missing")

		err := f.bridge.Dispatcher.PrintReceipt(ctx, "TXN-1", "")
		var loadErr *agent.LoadError
		require.ErrorAs(t, err, &loadErr)
		assert.Equal(t, "agent_unavailable", ResultLabel(err))
	})

	t.Run("connect", func(t *testing.T) {
		f := newFixture(t, new(MockBackend).withoutTrust())
		require.NoError(t, f.bridge.Resolver.SetDefault(ctx, "HP-2"))
		f.handle.ConnectErr = errors.New("refused")

		err := f.bridge.Dispatcher.PrintReceipt(ctx, "TXN-1", "")
		var connErr *agent.ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, "agent_connection_failed", ResultLabel(err))
	})

	t.Run("print rejected", func(t *testing.T) {
		backend := new(MockBackend).withoutTrust()
		backend.On("Receipt", mock.Anything, "TXN-1", model.FormatRawBinary).Return(rawPayload("TXN-1", "r"), nil)
		f := newFixture(t, backend)
		require.NoError(t, f.bridge.Resolver.SetDefault(ctx, "HP-2"))
		f.handle.PrintErr = errors.New("paper out")

		err := f.bridge.Dispatcher.PrintReceipt(ctx, "TXN-1", "")
		assert.ErrorContains(t, err, "paper out")
		assert.Equal(t, "print_failed", ResultLabel(err))
	})
}

func TestPrintReceipt_InvalidTransaction(t *testing.T) {
	f := newFixture(t, new(MockBackend))

	err := f.bridge.Dispatcher.PrintReceipt(context.Background(), "", "O1")

	require.ErrorIs(t, err, ErrInvalidTransaction)
	assert.Zero(t, f.loader.Loads())
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.printResult(nil, 0)
		m.generationRequested()
		m.connectResult("connected")
		m.scanResult("found")
	})
}

func TestPrintReceipt_LogsWithRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := logger.WithContext(context.Background(), zap.New(core).With(zap.String("request_id", "req-7")))
	backend := new(MockBackend).withoutTrust()
	backend.On("Receipt", mock.Anything, "TXN-5", model.FormatRawBinary).Return(rawPayload("TXN-5", "r"), nil)
	f := newFixture(t, backend)
	require.NoError(t, f.bridge.Resolver.SetDefault(ctx, "HP-2"))

	require.NoError(t, f.bridge.Dispatcher.PrintReceipt(ctx, "TXN-5", ""))

	printed := logs.FilterMessage("receipt printed").All()
	require.Len(t, printed, 1)
	fields := printed[0].ContextMap()
	assert.Equal(t, "req-7", fields["request_id"])
	assert.Equal(t, "TXN-5", fields["transaction"])
	assert.Equal(t, "HP-2", fields["printer"])
}
