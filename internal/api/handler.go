// Package api exposes the bridge to the POS front end over a loopback HTTP API.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Riboost-Studio/pos-print-bridge/internal/agent"
	"github.com/Riboost-Studio/pos-print-bridge/internal/model"
	"github.com/Riboost-Studio/pos-print-bridge/internal/services"
)

// Error codes returned in ErrorResponse.Error.
const (
	CodeNoPrinterConfigured   = "NO_PRINTER_CONFIGURED"
	CodeReceiptUnavailable    = "RECEIPT_UNAVAILABLE"
	CodeAgentUnavailable      = "AGENT_UNAVAILABLE"
	CodeAgentConnectionFailed = "AGENT_CONNECTION_FAILED"
	CodeInvalidTransaction    = "INVALID_TRANSACTION"
	CodeInvalidRequest        = "INVALID_REQUEST"
	CodePrinterNotFound       = "PRINTER_NOT_FOUND"
	CodeInternal              = "INTERNAL_ERROR"
	CodeOriginNotAllowed      = "ORIGIN_NOT_ALLOWED"
	CodeUnsupportedMediaType  = "UNSUPPORTED_MEDIA_TYPE"
)

// ReceiptPrinter prints transaction receipts.
type ReceiptPrinter interface {
	PrintReceipt(ctx context.Context, transactionRef, outletID string) error
}

// PrinterResolver answers printer questions.
type PrinterResolver interface {
	ResolveForOutlet(ctx context.Context, outletID string) (string, bool)
	Scan(ctx context.Context, persist bool) []string
	SetDefault(ctx context.Context, printer string) error
}

// SessionReporter reports the agent session state.
type SessionReporter interface {
	State() model.SessionState
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type PrinterResponse struct {
	Printer string `json:"printer"`
}

type PrintersResponse struct {
	Printers []string `json:"printers"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Session string `json:"session"`
}

type SetDefaultRequest struct {
	Printer string `json:"printer" binding:"required"`
}

// Handler serves the bridge routes.
type Handler struct {
	printer  ReceiptPrinter
	resolver PrinterResolver
	session  SessionReporter
}

func NewHandler(printer ReceiptPrinter, resolver PrinterResolver, session SessionReporter) *Handler {
	return &Handler{printer: printer, resolver: resolver, session: session}
}

// PrintReceipt handles POST /receipts/:ref/print?outlet=<id>
func (h *Handler) PrintReceipt(c *gin.Context) {
	err := h.printer.PrintReceipt(c.Request.Context(), c.Param("ref"), c.Query("outlet"))
	if err != nil {
		h.printError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ResolvePrinter handles GET /printers/resolve/:outlet
func (h *Handler) ResolvePrinter(c *gin.Context) {
	printer, ok := h.resolver.ResolveForOutlet(c.Request.Context(), c.Param("outlet"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: CodePrinterNotFound, Message: "no printer registered or cached for this outlet"})
		return
	}
	c.JSON(http.StatusOK, PrinterResponse{Printer: printer})
}

// ScanPrinters handles POST /printers/scan?persist=true
func (h *Handler) ScanPrinters(c *gin.Context) {
	persist := c.Query("persist") == "true"
	c.JSON(http.StatusOK, PrintersResponse{Printers: h.resolver.Scan(c.Request.Context(), persist)})
}

// SetDefaultPrinter handles PUT /printers/default
func (h *Handler) SetDefaultPrinter(c *gin.Context) {
	var req SetDefaultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: CodeInvalidRequest, Message: err.Error()})
		return
	}
	if err := h.resolver.SetDefault(c.Request.Context(), req.Printer); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: CodeInternal, Message: err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Session: h.session.State().String()})
}

func (h *Handler) printError(c *gin.Context, err error) {
	status, code := ErrorStatus(err)
	c.JSON(status, ErrorResponse{Error: code, Message: err.Error()})
}

// ErrorStatus maps a print failure to an HTTP status and error code.
func ErrorStatus(err error) (int, string) {
	var loadErr *agent.LoadError
	var connErr *agent.ConnectionError
	switch {
	case errors.Is(err, services.ErrInvalidTransaction):
		return http.StatusBadRequest, CodeInvalidTransaction
	case errors.Is(err, services.ErrNoPrinterConfigured):
		return http.StatusConflict, CodeNoPrinterConfigured
	case errors.Is(err, services.ErrReceiptUnavailable):
		return http.StatusUnprocessableEntity, CodeReceiptUnavailable
	case errors.As(err, &loadErr):
		return http.StatusBadGateway, CodeAgentUnavailable
	case errors.As(err, &connErr):
		return http.StatusBadGateway, CodeAgentConnectionFailed
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
