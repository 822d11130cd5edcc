package remote

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, baseURL string, timeout time.Duration) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	return NewClient("teams", baseURL, timeout, nil, logger, nil)
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestCallSuccess(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"id":1,"name":"Lions","relevance":120}],"total":1}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, time.Second)
	result := client.Call(context.Background(), "/search", map[string]string{"q": "lions"})
	if !result.OK {
		t.Fatalf("expected OK result, got %+v", result)
	}
	if result.Unavailable {
		t.Fatal("successful call flagged unavailable")
	}
	if gotQuery != "q=lions" {
		t.Fatalf("unexpected query string %q", gotQuery)
	}
	if len(result.Data) == 0 {
		t.Fatal("response payload not captured")
	}
}

func TestCallTimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := newTestClient(t, srv.URL, 30*time.Millisecond)
	result := client.Call(context.Background(), "/search", nil)
	if !result.Unavailable {
		t.Fatalf("timeout should report unavailable, got %+v", result)
	}
	if result.OK {
		t.Fatal("timed out call reported OK")
	}
}

func TestCallServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	result := newTestClient(t, srv.URL, time.Second).Call(context.Background(), "/search", nil)
	if !result.Unavailable {
		t.Fatalf("5xx should report unavailable, got %+v", result)
	}
	if result.Status != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", result.Status)
	}
}

func TestCallClientErrorIsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	result := newTestClient(t, srv.URL, time.Second).Call(context.Background(), "/search", nil)
	if result.Unavailable {
		t.Fatalf("4xx is a rejection, not an outage: %+v", result)
	}
	if result.OK {
		t.Fatal("4xx reported OK")
	}
	if result.Err == nil {
		t.Fatal("rejection should carry an error for logging")
	}
}

func TestCallMalformedPayloadIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results": [broken`))
	}))
	defer srv.Close()

	result := newTestClient(t, srv.URL, time.Second).Call(context.Background(), "/search", nil)
	if !result.Unavailable {
		t.Fatalf("malformed payload should report unavailable, got %+v", result)
	}
}

func TestCallUnconfiguredService(t *testing.T) {
	client := newTestClient(t, "", time.Second)
	if client.Configured() {
		t.Fatal("empty base URL reported as configured")
	}
	result := client.Call(context.Background(), "/search", nil)
	if !result.Unavailable || result.Err == nil {
		t.Fatalf("unconfigured service should be unavailable, got %+v", result)
	}
}
