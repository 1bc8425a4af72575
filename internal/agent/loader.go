package agent

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const probeTimeout = 300 * time.Millisecond

// WebsocketLoader builds a WebsocketClient after checking that something is
// listening on the agent's port.
type WebsocketLoader struct {
	URL              string
	Probe            bool
	HandshakeTimeout time.Duration
	Logger           *zap.Logger
}

func (l *WebsocketLoader) Load(ctx context.Context) (Handle, error) {
	u, err := url.Parse(l.URL)
	if err != nil {
		return nil, &LoadError{Err: err}
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, &LoadError{Err: fmt.Errorf("unsupported agent scheme %q", u.Scheme)}
	}

	if l.Probe {
		if err := probe(ctx, hostPort(u)); err != nil {
			return nil, &LoadError{Err: fmt.Errorf("agent not reachable at %s: %w", hostPort(u), err)}
		}
	}

	dialer := &websocket.Dialer{
		Proxy:            nil, // the agent is local, never proxy it
		HandshakeTimeout: l.HandshakeTimeout,
	}
	return NewWebsocketClient(l.URL, dialer, l.Logger), nil
}

func hostPort(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	if u.Scheme == "wss" {
		return net.JoinHostPort(u.Hostname(), "443")
	}
	return net.JoinHostPort(u.Hostname(), "80")
}

func probe(ctx context.Context, addr string) error {
	d := net.Dialer{Timeout: probeTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}
