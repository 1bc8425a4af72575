package store

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Riboost-Studio/pos-print-bridge/internal/config"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, ok, err := s.Get(ctx, KeyDefaultPrinter)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, KeyDefaultPrinter, "EPSON-TM20"))
	v, ok, err := s.Get(ctx, KeyDefaultPrinter)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "EPSON-TM20", v)
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "config", "bridge.json")

	t.Run("missing file reads as empty", func(t *testing.T) {
		s := NewFileStore(path)
		_, ok, err := s.Get(ctx, KeyAuthToken)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("values survive a new store instance", func(t *testing.T) {
		require.NoError(t, NewFileStore(path).Set(ctx, KeyDefaultPrinter, "HP-2"))
		require.NoError(t, NewFileStore(path).Set(ctx, KeyAuthToken, "secret"))

		s := NewFileStore(path)
		v, ok, err := s.Get(ctx, KeyDefaultPrinter)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "HP-2", v)

		v, _, err = s.Get(ctx, KeyAuthToken)
		require.NoError(t, err)
		assert.Equal(t, "secret", v)

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	})

	t.Run("corrupt file is an error", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0600))

		s := NewFileStore(bad)
		_, _, err := s.Get(ctx, KeyDefaultPrinter)
		assert.Error(t, err)
		assert.Error(t, s.Set(ctx, KeyDefaultPrinter, "x"))
	})
}

func TestNew(t *testing.T) {
	s, err := New(config.StoreConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = New(config.StoreConfig{Driver: "file", Path: filepath.Join(t.TempDir(), "s.json")})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = New(config.StoreConfig{Driver: "redis", Redis: config.RedisConfig{Host: "localhost", Port: 6379}})
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, s)
	assert.NoError(t, s.Close())

	_, err = New(config.StoreConfig{Driver: "etcd"})
	assert.Error(t, err)
}

func TestRedisStoreUnreachable(t *testing.T) {
	s, err := New(config.StoreConfig{Driver: "redis", Redis: config.RedisConfig{Host: "127.0.0.1", Port: 1}})
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.Get(context.Background(), KeyDefaultPrinter)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	s := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "pos1:")
	defer s.Close()

	_, ok, err := s.Get(ctx, KeyDefaultPrinter)
	require.NoError(t, err)
	assert.False(t, ok, "missing key is absent, not an error")

	require.NoError(t, s.Set(ctx, KeyDefaultPrinter, "EPSON-TM"))
	v, ok, err := s.Get(ctx, KeyDefaultPrinter)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "EPSON-TM", v)

	raw, err := mr.Get("pos1:" + KeyDefaultPrinter)
	require.NoError(t, err)
	assert.Equal(t, "EPSON-TM", raw)
	assert.False(t, mr.Exists(KeyDefaultPrinter))
}

func TestRedisStoreDefaultPrefix(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set("printbridge:"+KeyAuthToken, "tok"))

	s, err := New(config.StoreConfig{Driver: "redis", Redis: config.RedisConfig{Host: mr.Host(), Port: mustPort(t, mr.Port())}})
	require.NoError(t, err)
	defer s.Close()

	v, ok, err := s.Get(ctx, KeyAuthToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok", v)
}

func mustPort(t *testing.T, port string) int {
	t.Helper()
	n, err := strconv.Atoi(port)
	require.NoError(t, err)
	return n
}
