// Package store keeps the client-local values of the bridge: the cached
// default printer and the bearer token used against the backend.
package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Riboost-Studio/pos-print-bridge/internal/config"
)

// Well-known keys.
const (
	KeyDefaultPrinter = "default_printer"
	KeyAuthToken      = "auth_token"
)

// Store is a small string key/value store local to this installation.
type Store interface {
	// Get returns the value and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// New creates the store selected by cfg.Driver.
func New(cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemoryStore(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return NewRedisStore(client, cfg.KeyPrefix), nil
	case "file", "":
		return NewFileStore(cfg.Path), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
