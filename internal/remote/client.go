// Package remote calls the downstream domain services (teams, matches) the
// gateway fans out to. Every call is bounded by its own timeout and failures
// are normalized into a result the caller can inspect without branching on
// transport details.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openleague/gateway/internal/metrics"
)

const maxResponseBytes = 1 << 20

// ErrNotConfigured marks calls against a downstream with no base URL.
var ErrNotConfigured = errors.New("remote: service not configured")

type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Result is the normalized outcome of one downstream call. It is consumed
// immediately and never persisted.
type Result struct {
	OK          bool
	Status      int
	Unavailable bool
	Data        json.RawMessage
	Err         error
}

// Client addresses one downstream domain service.
type Client struct {
	name    string
	baseURL string
	timeout time.Duration
	client  httpDoer
	logger  *slog.Logger
	metrics *metrics.Recorder
}

// NewClient builds a client for the named downstream. An empty baseURL
// yields a client whose every call reports unavailable, so wiring stays
// uniform whether or not the downstream is deployed.
func NewClient(name, baseURL string, timeout time.Duration, client httpDoer, logger *slog.Logger, recorder *metrics.Recorder) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client:  client,
		logger:  logger.With(slog.String("component", "remote_client"), slog.String("service", name)),
		metrics: recorder,
	}
}

// Name identifies the downstream for logging and category mapping.
func (c *Client) Name() string { return c.name }

// Configured reports whether a base URL was supplied.
func (c *Client) Configured() bool { return c.baseURL != "" }

// Call performs a GET against the downstream under the client's timeout.
// The returned Result distinguishes "downstream is down or slow"
// (Unavailable) from "downstream rejected the request"; neither is a Go
// error because callers degrade rather than fail.
func (c *Client) Call(ctx context.Context, path string, params map[string]string) Result {
	if !c.Configured() {
		return Result{Unavailable: true, Err: ErrNotConfigured}
	}

	start := time.Now()
	result := c.call(ctx, path, params)
	outcome := metrics.RemoteOK
	switch {
	case result.Unavailable:
		outcome = metrics.RemoteUnavailable
	case !result.OK:
		outcome = metrics.RemoteRejected
	}
	c.metrics.ObserveRemoteCall(c.name, outcome, time.Since(start))

	if result.Err != nil {
		c.logger.Warn("downstream call degraded",
			slog.String("path", path),
			slog.Int("status", result.Status),
			slog.Bool("unavailable", result.Unavailable),
			slog.Any("error", result.Err))
	}
	return result
}

func (c *Client) call(ctx context.Context, path string, params map[string]string) Result {
	target, err := url.Parse(c.baseURL + "/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return Result{Unavailable: true, Err: fmt.Errorf("remote: parse url: %w", err)}
	}
	if len(params) > 0 {
		values := target.Query()
		for name, value := range params {
			values.Set(name, value)
		}
		target.RawQuery = values.Encode()
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, target.String(), nil)
	if err != nil {
		return Result{Unavailable: true, Err: fmt.Errorf("remote: build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// Timeouts and connection failures land here; both mean the
		// downstream cannot serve right now.
		return Result{Unavailable: true, Err: fmt.Errorf("remote: %s: %w", c.name, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{Status: resp.StatusCode, Unavailable: true, Err: fmt.Errorf("remote: read body: %w", err)}
	}

	switch {
	case resp.StatusCode >= 500:
		return Result{Status: resp.StatusCode, Unavailable: true, Err: fmt.Errorf("remote: %s returned %d", c.name, resp.StatusCode)}
	case resp.StatusCode >= 300:
		return Result{Status: resp.StatusCode, Err: fmt.Errorf("remote: %s rejected request with %d", c.name, resp.StatusCode)}
	}

	if len(body) > 0 && !json.Valid(body) {
		return Result{Status: resp.StatusCode, Unavailable: true, Err: fmt.Errorf("remote: %s returned malformed payload", c.name)}
	}
	return Result{OK: true, Status: resp.StatusCode, Data: body}
}
