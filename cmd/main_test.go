package main

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/openleague/gateway/internal/cache"
	"github.com/openleague/gateway/internal/config"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	server, err := miniredis.Run()
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skip("miniredis unavailable in sandbox")
		}
		require.NoError(t, err)
	}
	t.Cleanup(server.Close)
	return server
}

func TestBuildCacheStore(t *testing.T) {
	tests := []struct {
		name   string
		cfg    func(t *testing.T) config.CacheConfig
		verify func(t *testing.T, store cache.Store)
	}{
		{
			name: "defaults to memory",
			cfg: func(t *testing.T) config.CacheConfig {
				return config.CacheConfig{}
			},
			verify: func(t *testing.T, store cache.Store) {
				require.NotNil(t, store)
			},
		},
		{
			name: "unknown backend falls back to memory",
			cfg: func(t *testing.T) config.CacheConfig {
				return config.CacheConfig{Backend: "memcached"}
			},
			verify: func(t *testing.T, store cache.Store) {
				require.NotNil(t, store)
			},
		},
		{
			name: "unreachable valkey falls back to memory",
			cfg: func(t *testing.T) config.CacheConfig {
				return config.CacheConfig{
					Backend: "valkey",
					Valkey:  config.ValkeyCacheConfig{Address: "127.0.0.1:1"},
				}
			},
			verify: func(t *testing.T, store cache.Store) {
				require.NotNil(t, store)
				entry := cache.Entry{Payload: []byte(`{}`), ExpiresAt: time.Now().Add(time.Minute)}
				require.NoError(t, store.Store(context.Background(), "k", entry))
			},
		},
		{
			name: "constructs valkey store",
			cfg: func(t *testing.T) config.CacheConfig {
				server := startMiniredis(t)
				return config.CacheConfig{
					Backend: "valkey",
					Valkey:  config.ValkeyCacheConfig{Address: server.Addr()},
				}
			},
			verify: func(t *testing.T, store cache.Store) {
				ctx := context.Background()
				entry := cache.Entry{
					Payload:   []byte(`{"ok":true}`),
					StoredAt:  time.Now().UTC(),
					ExpiresAt: time.Now().Add(time.Minute).UTC(),
				}
				require.NoError(t, store.Store(ctx, "factory:test", entry))
				got, ok, err := store.Lookup(ctx, "factory:test")
				require.NoError(t, err)
				require.True(t, ok)
				require.JSONEq(t, `{"ok":true}`, string(got.Payload))
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := buildCacheStore(newTestLogger(), tc.cfg(t))
			t.Cleanup(func() { _ = store.Close(context.Background()) })
			tc.verify(t, store)
		})
	}
}

func TestBuildCounterStore(t *testing.T) {
	t.Run("defaults to memory", func(t *testing.T) {
		store := buildCounterStore(newTestLogger(), config.ServerConfig{})
		require.NotNil(t, store)
		count, _, err := store.Incr(context.Background(), "id", time.Minute)
		require.NoError(t, err)
		require.EqualValues(t, 1, count)
	})

	t.Run("unreachable valkey falls back to memory", func(t *testing.T) {
		cfg := config.ServerConfig{
			RateLimit: config.RateLimitConfig{Backend: "valkey"},
			Cache:     config.CacheConfig{Valkey: config.ValkeyCacheConfig{Address: "127.0.0.1:1"}},
		}
		store := buildCounterStore(newTestLogger(), cfg)
		count, _, err := store.Incr(context.Background(), "id", time.Minute)
		require.NoError(t, err)
		require.EqualValues(t, 1, count)
	})

	t.Run("constructs valkey counters", func(t *testing.T) {
		server := startMiniredis(t)
		cfg := config.ServerConfig{
			RateLimit: config.RateLimitConfig{Backend: "valkey"},
			Cache:     config.CacheConfig{Valkey: config.ValkeyCacheConfig{Address: server.Addr()}},
		}
		store := buildCounterStore(newTestLogger(), cfg)
		t.Cleanup(func() { _ = store.Close(context.Background()) })

		for want := int64(1); want <= 3; want++ {
			count, _, err := store.Incr(context.Background(), "caller|route", time.Minute)
			require.NoError(t, err)
			require.Equal(t, want, count)
		}
	})
}
