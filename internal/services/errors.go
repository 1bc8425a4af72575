package services

import "errors"

var (
	// ErrNoPrinterConfigured means no printer could be resolved for a job
	// after the registered, cached and discovered printers were all tried.
	ErrNoPrinterConfigured = errors.New("no printer configured")

	// ErrReceiptUnavailable means the backend did not provide a usable
	// receipt, even after one generation request. Receipts are never
	// produced locally.
	ErrReceiptUnavailable = errors.New("could not obtain receipt from backend")

	ErrInvalidTransaction = errors.New("transaction reference is required")
)
