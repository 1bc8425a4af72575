// Package backend is the HTTP client for the POS backend endpoints the
// print bridge depends on: certificate, challenge signing, printers and
// receipts.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Riboost-Studio/pos-print-bridge/internal/model"
)

const maxErrorBody = 512

// StatusError is returned for any non-2xx backend response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API Error %d on %s %s: %s", e.Code, e.Method, e.Path, e.Body)
}

// TokenSource supplies the bearer credential, or "" when there is none.
type TokenSource interface {
	Token(ctx context.Context) string
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, tokens TokenSource, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
		logger:     logger,
	}
}

// --- Trust endpoints ---

// Certificate fetches the PEM certificate the agent uses to trust this bridge.
func (c *Client) Certificate(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/print/certificate", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// Sign asks the backend to sign an agent challenge with the key it holds.
func (c *Client) Sign(ctx context.Context, challenge string) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/print/sign", map[string]string{"data": challenge})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(buf)), nil
}

// --- Printers ---

// Printers lists the printers registered for an outlet.
func (c *Client) Printers(ctx context.Context, outletID string) ([]model.PrinterRecord, error) {
	resp, err := c.do(ctx, http.MethodGet, "/printers?outlet="+url.QueryEscape(outletID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var envelope struct {
		Data struct {
			Printers []model.PrinterRecord `json:"printers"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode printers response: %w", err)
	}
	return envelope.Data.Printers, nil
}

// --- Receipts ---

// Receipt fetches the rendered receipt of a transaction. A nil payload with a
// nil error means the backend has not rendered one yet.
func (c *Client) Receipt(ctx context.Context, transactionRef string, format model.ReceiptFormat) (*model.ReceiptPayload, error) {
	path := "/receipts/" + url.PathEscape(transactionRef) + "?format=" + url.QueryEscape(string(format))
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		if se, ok := err.(*StatusError); ok && se.Code == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	defer resp.Body.Close()

	var envelope struct {
		Data *model.ReceiptPayload `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode receipt response: %w", err)
	}
	return envelope.Data, nil
}

// GenerateReceipt asks the backend to render the receipt of a transaction.
// Nothing is returned: the caller fetches the result with Receipt.
func (c *Client) GenerateReceipt(ctx context.Context, transactionRef string, format model.ReceiptFormat) error {
	path := "/receipts/" + url.PathEscape(transactionRef) + "/generate"
	resp, err := c.do(ctx, http.MethodPost, path, map[string]string{"format": string(format)})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token := c.tokens.Token(ctx); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("backend response",
		zap.String("method", method), zap.String("path", path), zap.Int("code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		buf, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(buf)}
	}
	return resp, nil
}
