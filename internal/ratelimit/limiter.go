package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/openleague/gateway/internal/metrics"
)

// Decision is the limiter verdict for one request.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter enforces a fixed-window request quota per caller identity and
// route. The quota is advisory: callers that share an address (NAT) share
// fate, and a failing counter store fails open so the read path stays up.
type Limiter struct {
	store   CounterStore
	max     int
	window  time.Duration
	logger  *slog.Logger
	metrics *metrics.Recorder
}

// NewLimiter builds a limiter with the configured quota.
func NewLimiter(store CounterStore, maxAttempts int, window time.Duration, logger *slog.Logger, recorder *metrics.Recorder) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		store:   store,
		max:     maxAttempts,
		window:  window,
		logger:  logger.With(slog.String("component", "rate_limiter")),
		metrics: recorder,
	}
}

// Check counts the request against the caller's window and reports whether
// it may proceed. The route name is fixed by the router, never taken from
// user input, so callers cannot forge identities into other routes' quotas.
func (l *Limiter) Check(ctx context.Context, clientIP, route string) Decision {
	identity := clientIP + "|" + route
	count, reset, err := l.store.Incr(ctx, identity, l.window)
	if err != nil {
		l.logger.Error("counter store unavailable, allowing request", slog.String("route", route), slog.Any("error", err))
		l.metrics.ObserveRateLimit(route, true)
		return Decision{Allowed: true, Limit: l.max, Remaining: l.max}
	}

	remaining := l.max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	decision := Decision{
		Allowed:   count <= int64(l.max),
		Limit:     l.max,
		Remaining: remaining,
	}
	if !decision.Allowed {
		retry := time.Until(reset)
		if retry < time.Second {
			retry = time.Second
		}
		decision.RetryAfter = retry
	}
	l.metrics.ObserveRateLimit(route, decision.Allowed)
	return decision
}
