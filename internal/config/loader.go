package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader hydrates the runtime configuration while respecting env > file > default precedence.
type Loader struct {
	envPrefix string
	files     []string
}

// NewLoader prepares a config hydrator that honors the env-first contract before touching files or defaults.
func NewLoader(envPrefix string, files ...string) *Loader {
	return &Loader{
		envPrefix: envPrefix,
		files:     files,
	}
}

// Load assembles the effective snapshot using the documented precedence rules.
func (l *Loader) Load(ctx context.Context) (Config, error) {
	defaultCfg := DefaultConfig()
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(structToMap(defaultCfg), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	for _, path := range l.files {
		if path == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return Config{}, ctx.Err()
		default:
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config: file %s not found", path)
			}
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if l.envPrefix != "" {
		canonical := map[string]string{
			"server.ratelimit.maxattempts":         "server.rateLimit.maxAttempts",
			"server.ratelimit.windowseconds":       "server.rateLimit.windowSeconds",
			"server.ratelimit.backend":             "server.rateLimit.backend",
			"server.cache.ttl.listseconds":         "server.cache.ttl.listSeconds",
			"server.cache.ttl.detailseconds":       "server.cache.ttl.detailSeconds",
			"server.cache.ttl.referenceseconds":    "server.cache.ttl.referenceSeconds",
			"server.cache.ttl.searchseconds":       "server.cache.ttl.searchSeconds",
			"server.cache.valkey.tls.cafile":       "server.cache.valkey.tls.caFile",
			"server.search.maxresults":             "server.search.maxResults",
			"server.services.teams.baseurl":        "server.services.teams.baseUrl",
			"server.services.teams.timeoutseconds": "server.services.teams.timeoutSeconds",
			"server.services.matches.baseurl":      "server.services.matches.baseUrl",
			"server.services.matches.timeoutseconds": "server.services.matches.timeoutSeconds",
			"server.catalog.fixturesfolder":          "server.catalog.fixturesFolder",
			"server.catalog.fixturesfile":            "server.catalog.fixturesFile",
			"server.catalog.featuredexpression":      "server.catalog.featuredExpression",
		}
		transform := func(s string) string {
			// Double underscores signal a nested path (SERVER__LISTEN__PORT -> server.listen.port).
			key := strings.TrimPrefix(s, l.envPrefix+"_")
			key = strings.ReplaceAll(key, "__", ".")
			lower := strings.ToLower(key)
			if mapped, ok := canonical[lower]; ok {
				return mapped
			}
			// Single underscores are removed so LISTEN_PORT collapses into listenport when callers
			// choose not to use double underscores for object nesting.
			key = strings.ReplaceAll(key, "_", "")
			return strings.ToLower(key)
		}
		if err := k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
			return Config{}, fmt.Errorf("config: load env: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// structToMap converts DefaultConfig into a map for the koanf confmap provider.
func structToMap(cfg Config) map[string]any {
	return map[string]any{
		"server": map[string]any{
			"listen": map[string]any{
				"address": cfg.Server.Listen.Address,
				"port":    cfg.Server.Listen.Port,
			},
			"logging": map[string]any{
				"level":  cfg.Server.Logging.Level,
				"format": cfg.Server.Logging.Format,
			},
			"cache": map[string]any{
				"backend": cfg.Server.Cache.Backend,
				"ttl": map[string]any{
					"listSeconds":      cfg.Server.Cache.TTL.ListSeconds,
					"detailSeconds":    cfg.Server.Cache.TTL.DetailSeconds,
					"referenceSeconds": cfg.Server.Cache.TTL.ReferenceSeconds,
					"searchSeconds":    cfg.Server.Cache.TTL.SearchSeconds,
				},
				"valkey": map[string]any{
					"address":  cfg.Server.Cache.Valkey.Address,
					"username": cfg.Server.Cache.Valkey.Username,
					"password": cfg.Server.Cache.Valkey.Password,
					"db":       cfg.Server.Cache.Valkey.DB,
					"tls": map[string]any{
						"enabled": cfg.Server.Cache.Valkey.TLS.Enabled,
						"caFile":  cfg.Server.Cache.Valkey.TLS.CAFile,
					},
				},
			},
			"rateLimit": map[string]any{
				"backend":       cfg.Server.RateLimit.Backend,
				"maxAttempts":   cfg.Server.RateLimit.MaxAttempts,
				"windowSeconds": cfg.Server.RateLimit.WindowSeconds,
			},
			"search": map[string]any{
				"maxResults": cfg.Server.Search.MaxResults,
			},
			"services": map[string]any{
				"teams": map[string]any{
					"baseUrl":        cfg.Server.Services.Teams.BaseURL,
					"timeoutSeconds": cfg.Server.Services.Teams.TimeoutSeconds,
				},
				"matches": map[string]any{
					"baseUrl":        cfg.Server.Services.Matches.BaseURL,
					"timeoutSeconds": cfg.Server.Services.Matches.TimeoutSeconds,
				},
			},
			"catalog": map[string]any{
				"fixturesFolder":     cfg.Server.Catalog.FixturesFolder,
				"fixturesFile":       cfg.Server.Catalog.FixturesFile,
				"featuredExpression": cfg.Server.Catalog.FeaturedExpression,
			},
		},
	}
}
