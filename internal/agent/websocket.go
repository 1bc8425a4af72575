package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Riboost-Studio/pos-print-bridge/internal/model"
)

// --- WebSocket Agent Client ---

// WebsocketClient talks to the local print agent over a single websocket.
// Calls are multiplexed by uid; challenges from the agent are answered with
// the registered Signer while the call that triggered them is waiting.
type WebsocketClient struct {
	url    string
	dialer *websocket.Dialer
	logger *zap.Logger

	mu          sync.Mutex
	link        *link
	certificate CertificateProvider
	signer      Signer

	writeMu sync.Mutex
	active  atomic.Bool
}

// link is one open socket and the calls waiting on it. ctx ends when the
// socket is gone.
type link struct {
	conn    *websocket.Conn
	pending map[string]chan model.AgentMessage
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewWebsocketClient(url string, dialer *websocket.Dialer, logger *zap.Logger) *WebsocketClient {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebsocketClient{
		url:    url,
		dialer: dialer,
		logger: logger.With(zap.String("agent", url)),
	}
}

func (c *WebsocketClient) SetCertificateProvider(p CertificateProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.certificate = p
}

func (c *WebsocketClient) SetSignatureProvider(s Signer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signer = s
}

func (c *WebsocketClient) IsActive() bool {
	return c.active.Load()
}

// Connect opens the socket and introduces the bridge with its certificate.
// It is a no-op while a socket is already active.
func (c *WebsocketClient) Connect(ctx context.Context) error {
	if c.IsActive() {
		return nil
	}

	c.logger.Info("Connecting to print agent...")
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return &ConnectionError{URL: c.url, Err: err}
	}

	lctx, cancel := context.WithCancel(context.Background())
	l := &link{conn: conn, pending: make(map[string]chan model.AgentMessage), ctx: lctx, cancel: cancel}
	c.mu.Lock()
	certificate := c.certificate
	c.link = l
	c.mu.Unlock()

	hello := model.AgentMessage{Type: model.MessageTypeHello}
	if certificate != nil {
		if pem, ok := certificate(ctx); ok {
			hello.Data = pem
		}
	}
	if err := c.write(conn, hello); err != nil {
		c.mu.Lock()
		c.link = nil
		c.mu.Unlock()
		cancel()
		conn.Close()
		return &ConnectionError{URL: c.url, Err: fmt.Errorf("failed to send hello: %w", err)}
	}

	c.active.Store(true)
	go c.readLoop(l)
	c.logger.Info("Connected to print agent.")
	return nil
}

func (c *WebsocketClient) Close() error {
	c.mu.Lock()
	l := c.link
	c.link = nil
	c.mu.Unlock()
	c.active.Store(false)
	if l == nil {
		return nil
	}
	return l.conn.Close()
}

// FindPrinters lists the printers the agent's OS can see.
func (c *WebsocketClient) FindPrinters(ctx context.Context) ([]string, error) {
	raw, err := c.call(ctx, model.CallFindPrinters, nil)
	if err != nil {
		return nil, err
	}
	var printers []string
	if len(raw) == 0 {
		return printers, nil
	}
	if err := json.Unmarshal(raw, &printers); err != nil {
		return nil, fmt.Errorf("agent: malformed printers result: %w", err)
	}
	return printers, nil
}

// Print submits pre-rendered data to a printer without agent-side formatting.
func (c *WebsocketClient) Print(ctx context.Context, cfg model.PrintConfig, data []model.PrintData) error {
	_, err := c.call(ctx, model.CallPrint, model.PrintParams{Config: cfg, Data: data})
	return err
}

func (c *WebsocketClient) call(ctx context.Context, name string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	l := c.link
	c.mu.Unlock()
	if !c.IsActive() || l == nil {
		return nil, ErrNotConnected
	}

	msg := model.AgentMessage{Type: model.MessageTypeCall, UID: uuid.NewString(), Call: name}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		msg.Params = raw
	}

	ch := make(chan model.AgentMessage, 1)
	c.mu.Lock()
	if l.pending == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	l.pending[msg.UID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(l.pending, msg.UID)
		c.mu.Unlock()
	}()

	if err := c.write(l.conn, msg); err != nil {
		return nil, fmt.Errorf("agent: failed to send %s: %w", name, err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Error != "" {
			return nil, fmt.Errorf("agent: %s failed: %s", name, res.Error)
		}
		return res.Result, nil
	}
}

func (c *WebsocketClient) readLoop(l *link) {
	defer c.disconnected(l)

	for {
		var msg model.AgentMessage
		if err := l.conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !errors.Is(err, websocket.ErrCloseSent) {
				c.logger.Warn("Read error", zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case model.MessageTypeResult:
			c.deliver(l, msg)

		case model.MessageTypeChallenge:
			go c.answerChallenge(l, msg)

		case model.MessageTypePing:
			if err := c.write(l.conn, model.AgentMessage{Type: model.MessageTypePong}); err != nil {
				c.logger.Warn("Failed to send pong", zap.Error(err))
			}

		default:
			c.logger.Debug("Unknown message type", zap.String("type", string(msg.Type)))
		}
	}
}

func (c *WebsocketClient) deliver(l *link, msg model.AgentMessage) {
	c.mu.Lock()
	ch, ok := l.pending[msg.UID]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("Result for unknown call", zap.String("uid", msg.UID))
		return
	}
	select {
	case ch <- msg:
	default:
	}
}

func (c *WebsocketClient) answerChallenge(l *link, msg model.AgentMessage) {
	c.mu.Lock()
	signer := c.signer
	c.mu.Unlock()

	signature := ""
	if signer != nil {
		signature = signer(l.ctx, msg.Data)
	}
	if l.ctx.Err() != nil {
		return
	}
	reply := model.AgentMessage{Type: model.MessageTypeSignature, UID: msg.UID, Data: signature}
	if err := c.write(l.conn, reply); err != nil {
		c.logger.Warn("Failed to send signature", zap.Error(err))
	}
}

// disconnected fails every call still waiting on l once its socket is gone.
func (c *WebsocketClient) disconnected(l *link) {
	l.cancel()
	l.conn.Close()

	c.mu.Lock()
	if c.link == l {
		c.link = nil
		c.active.Store(false)
	}
	pending := l.pending
	l.pending = nil
	c.mu.Unlock()

	for uid, ch := range pending {
		select {
		case ch <- model.AgentMessage{Type: model.MessageTypeResult, UID: uid, Error: "connection closed"}:
		default:
		}
	}
	c.logger.Info("Disconnected from print agent.")
}

func (c *WebsocketClient) write(conn *websocket.Conn, msg model.AgentMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(msg)
}
