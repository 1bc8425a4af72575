package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Riboost-Studio/pos-print-bridge/internal/store"
)

type brokenStore struct{ store.MemoryStore }

func (brokenStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("disk on fire")
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func TestCredentialsToken(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	creds := NewCredentials(s, nil)

	assert.Empty(t, creds.Token(ctx))

	require.NoError(t, creds.SetToken(ctx, "  opaque-token \n"))
	assert.Equal(t, "opaque-token", creds.Token(ctx))
}

func TestCredentialsStoreFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	creds := NewCredentials(&brokenStore{}, zap.New(core))

	assert.Empty(t, creds.Token(context.Background()))
	assert.Equal(t, 1, logs.FilterMessage("failed to read auth token").Len())
}

func TestCredentialsExpiredJWT(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.WarnLevel)
	s := store.NewMemoryStore()
	creds := NewCredentials(s, zap.New(core))

	expired := signedToken(t, time.Now().Add(-time.Hour))
	require.NoError(t, creds.SetToken(ctx, expired))
	assert.Equal(t, expired, creds.Token(ctx), "expired token is still sent")
	assert.Equal(t, 1, logs.Len())

	fresh := signedToken(t, time.Now().Add(time.Hour))
	require.NoError(t, creds.SetToken(ctx, fresh))
	assert.Equal(t, fresh, creds.Token(ctx))
	assert.Equal(t, 1, logs.Len())
}
