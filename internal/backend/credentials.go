package backend

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/Riboost-Studio/pos-print-bridge/internal/store"
)

// Credentials reads the bearer token from client-local storage. A missing or
// unreadable token is not an error: requests then go out unauthenticated.
type Credentials struct {
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewCredentials(s store.Store, logger *zap.Logger) *Credentials {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Credentials{store: s, logger: logger, now: time.Now}
}

func (c *Credentials) Token(ctx context.Context) string {
	token, ok, err := c.store.Get(ctx, store.KeyAuthToken)
	if err != nil {
		c.logger.Warn("failed to read auth token", zap.Error(err))
		return ""
	}
	if !ok {
		return ""
	}
	token = strings.TrimSpace(token)
	c.warnIfExpired(token)
	return token
}

// SetToken stores a new bearer token.
func (c *Credentials) SetToken(ctx context.Context, token string) error {
	return c.store.Set(ctx, store.KeyAuthToken, strings.TrimSpace(token))
}

// warnIfExpired only inspects the exp claim; the signature is the backend's business.
func (c *Credentials) warnIfExpired(token string) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(c.now()) {
		c.logger.Warn("auth token has expired, backend calls will likely be rejected",
			zap.Time("expired_at", claims.ExpiresAt.Time))
	}
}
