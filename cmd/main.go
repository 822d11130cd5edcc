package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/openleague/gateway/internal/cache"
	"github.com/openleague/gateway/internal/catalog"
	"github.com/openleague/gateway/internal/config"
	"github.com/openleague/gateway/internal/expr"
	"github.com/openleague/gateway/internal/gateway"
	"github.com/openleague/gateway/internal/logging"
	"github.com/openleague/gateway/internal/metrics"
	"github.com/openleague/gateway/internal/ratelimit"
	"github.com/openleague/gateway/internal/remote"
	"github.com/openleague/gateway/internal/search"
	"github.com/openleague/gateway/internal/server"
)

func main() {
	var (
		configFile = flag.String("config", "", "path to server configuration file")
		envPrefix  = flag.String("env-prefix", "GATEWAY", "environment variable prefix")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*envPrefix, *configFile)
	cfg, err := loader.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Server.Logging)
	if err != nil {
		log.Fatalf("failed to configure logger: %v", err)
	}

	promRegistry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(promRegistry)

	store := buildCacheStore(logger.With(slog.String("component", "cache_factory")), cfg.Server.Cache)
	orchestrator := cache.NewOrchestrator(store, logger, recorder)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := orchestrator.Close(shutdownCtx); err != nil {
			logger.Error("cache shutdown failed", slog.Any("error", err))
		}
	}()

	counterStore := buildCounterStore(logger.With(slog.String("component", "ratelimit_factory")), cfg.Server)
	defer func() { _ = counterStore.Close(context.Background()) }()
	limiter := ratelimit.NewLimiter(counterStore, cfg.Server.RateLimit.MaxAttempts, cfg.Server.RateLimit.Window(), logger, recorder)

	snapshot, err := catalog.LoadSnapshot(cfg.Server.Catalog.FixturesFile, cfg.Server.Catalog.FixturesFolder)
	if err != nil {
		logger.Error("catalog load failed", slog.Any("error", err))
		os.Exit(1)
	}
	cat := catalog.NewMemory(snapshot)
	logger.Info("catalog loaded",
		slog.Int("tournaments", len(snapshot.Tournaments)),
		slog.Int("sports", len(snapshot.Sports)),
		slog.Int("venues", len(snapshot.Venues)))

	selector, err := expr.NewSelector(cfg.Server.Catalog.FeaturedExpression)
	if err != nil {
		logger.Error("featured expression rejected", slog.Any("error", err))
		os.Exit(1)
	}

	teams := remote.NewClient("teams", cfg.Server.Services.Teams.BaseURL, cfg.Server.Services.Teams.Timeout(), nil, logger, recorder)
	matches := remote.NewClient("matches", cfg.Server.Services.Matches.BaseURL, cfg.Server.Services.Matches.Timeout(), nil, logger, recorder)

	ranker := search.NewRanker(cat, cat, cfg.Server.Search.MaxResults, logger)
	aggregator := gateway.NewAggregator(ranker, teams, matches, logger)
	gw := gateway.New(cfg, logger, recorder, orchestrator, limiter, cat, ranker, aggregator, selector, teams, matches)

	if cfg.Server.Catalog.FixturesFile != "" || cfg.Server.Catalog.FixturesFolder != "" {
		watcher, err := catalog.Watch(ctx, cfg.Server.Catalog.FixturesFile, cfg.Server.Catalog.FixturesFolder, func(snap catalog.Snapshot) {
			cat.Replace(snap)
			gw.InvalidateCatalog(ctx)
			logger.Info("catalog reloaded", slog.Int("tournaments", len(snap.Tournaments)))
		}, func(err error) {
			if err != nil {
				logger.Error("catalog watcher error", slog.Any("error", err))
			}
		})
		if err != nil {
			logger.Error("catalog watcher setup failed", slog.Any("error", err))
		} else {
			defer watcher.Stop()
		}
	}

	handler := server.NewHandler(gw, recorder.Handler())
	srv, err := server.New(cfg, logger, handler)
	if err != nil {
		logger.Error("unable to construct server", slog.Any("error", err))
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated unexpectedly", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}

// buildCacheStore selects the cache backend, falling back to memory when
// Valkey cannot be reached so the read path never depends on the cache.
func buildCacheStore(logger *slog.Logger, cfg config.CacheConfig) cache.Store {
	backend := strings.TrimSpace(strings.ToLower(cfg.Backend))
	switch backend {
	case "", "memory":
		logger.Info("using memory cache")
		return cache.NewMemory()
	case "valkey":
		store, err := cache.NewValkey(valkeyConfig(cfg.Valkey))
		if err != nil {
			logger.Error("valkey cache initialization failed", slog.Any("error", err))
			logger.Info("falling back to memory cache")
			return cache.NewMemory()
		}
		logger.Info("using valkey cache", slog.String("address", cfg.Valkey.Address))
		return store
	default:
		logger.Warn("unsupported cache backend, defaulting to memory", slog.String("backend", cfg.Backend))
		return cache.NewMemory()
	}
}

// buildCounterStore selects the rate-limit backend. The Valkey backend
// shares connection settings with the cache so one instance serves both.
func buildCounterStore(logger *slog.Logger, cfg config.ServerConfig) ratelimit.CounterStore {
	backend := strings.TrimSpace(strings.ToLower(cfg.RateLimit.Backend))
	switch backend {
	case "", "memory":
		logger.Info("using memory rate-limit counters")
		return ratelimit.NewMemoryStore()
	case "valkey":
		client, err := cache.DialValkey(valkeyConfig(cfg.Cache.Valkey))
		if err != nil {
			logger.Error("valkey rate-limit initialization failed", slog.Any("error", err))
			logger.Info("falling back to memory rate-limit counters")
			return ratelimit.NewMemoryStore()
		}
		store, err := ratelimit.NewValkeyStore(client)
		if err != nil {
			logger.Error("valkey rate-limit store rejected client", slog.Any("error", err))
			return ratelimit.NewMemoryStore()
		}
		logger.Info("using valkey rate-limit counters", slog.String("address", cfg.Cache.Valkey.Address))
		return store
	default:
		logger.Warn("unsupported rate-limit backend, defaulting to memory", slog.String("backend", cfg.RateLimit.Backend))
		return ratelimit.NewMemoryStore()
	}
}

func valkeyConfig(cfg config.ValkeyCacheConfig) cache.ValkeyConfig {
	return cache.ValkeyConfig{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
		TLS: cache.ValkeyTLSConfig{
			Enabled: cfg.TLS.Enabled,
			CAFile:  cfg.TLS.CAFile,
		},
	}
}
