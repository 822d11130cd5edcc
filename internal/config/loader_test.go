package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoader(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T) []string
		wantErr bool
		assert  func(t *testing.T, cfg Config)
	}{
		{
			name:  "returns defaults when no overrides",
			setup: func(t *testing.T) []string { return nil },
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, 8080, cfg.Server.Listen.Port)
				require.Equal(t, "memory", cfg.Server.Cache.Backend)
				require.Equal(t, 300, cfg.Server.Cache.TTL.ListSeconds)
				require.Equal(t, 60, cfg.Server.RateLimit.MaxAttempts)
				require.Equal(t, 10, cfg.Server.Search.MaxResults)
			},
		},
		{
			name: "merges file overrides",
			setup: func(t *testing.T) []string {
				dir := t.TempDir()
				path := filepath.Join(dir, "server.yaml")
				contents := "server:\n  listen:\n    port: 9090\n  cache:\n    ttl:\n      searchSeconds: 120\n"
				require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
				return []string{path}
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, 9090, cfg.Server.Listen.Port)
				require.Equal(t, 120, cfg.Server.Cache.TTL.SearchSeconds)
				// untouched keys keep their defaults
				require.Equal(t, 300, cfg.Server.Cache.TTL.ListSeconds)
			},
		},
		{
			name: "prefers env overrides",
			setup: func(t *testing.T) []string {
				dir := t.TempDir()
				path := filepath.Join(dir, "server.yaml")
				require.NoError(t, os.WriteFile(path, []byte("server:\n  listen:\n    port: 9090\n"), 0o600))
				t.Setenv("GATEWAY_SERVER__LISTEN__PORT", "9091")
				return []string{path}
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, 9091, cfg.Server.Listen.Port)
			},
		},
		{
			name: "maps env keys onto camel-case paths",
			setup: func(t *testing.T) []string {
				t.Setenv("GATEWAY_SERVER__RATELIMIT__MAXATTEMPTS", "7")
				t.Setenv("GATEWAY_SERVER__SERVICES__TEAMS__BASEURL", "http://teams.internal")
				t.Setenv("GATEWAY_SERVER__CATALOG__FEATUREDEXPRESSION", `status == "live"`)
				return nil
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, 7, cfg.Server.RateLimit.MaxAttempts)
				require.Equal(t, "http://teams.internal", cfg.Server.Services.Teams.BaseURL)
				require.Equal(t, `status == "live"`, cfg.Server.Catalog.FeaturedExpression)
			},
		},
		{
			name: "fails when file missing",
			setup: func(t *testing.T) []string {
				return []string{filepath.Join(t.TempDir(), "missing.yaml")}
			},
			wantErr: true,
		},
		{
			name: "rejects invalid merged configuration",
			setup: func(t *testing.T) []string {
				t.Setenv("GATEWAY_SERVER__LISTEN__PORT", "99999")
				return nil
			},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			files := tc.setup(t)
			loader := NewLoader("GATEWAY", files...)
			cfg, err := loader.Load(context.Background())
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tc.assert(t, cfg)
		})
	}
}

func TestLoaderSkipsEmptyFileEntries(t *testing.T) {
	loader := NewLoader("GATEWAY", "")
	cfg, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, DefaultConfig().Server.Listen.Port, cfg.Server.Listen.Port)
}
