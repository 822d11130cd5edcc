package metrics

import (
	"math"
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func TestRecorderObserveRequest(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveRequest("tournaments.list", 200, true, 250*time.Millisecond)

	families := gather(t, rec, "gateway_http_requests_total", "gateway_http_request_duration_seconds")

	counter := findMetric(t, families["gateway_http_requests_total"], map[string]string{
		"route":       "tournaments.list",
		"status_code": "200",
		"from_cache":  "true",
	})
	if counter.GetCounter() == nil {
		t.Fatalf("expected counter metric for http requests")
	}
	if got := counter.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected counter value 1, got %v", got)
	}

	histMetric := findMetric(t, families["gateway_http_request_duration_seconds"], map[string]string{
		"route": "tournaments.list",
	})
	hist := histMetric.GetHistogram()
	if hist == nil {
		t.Fatalf("expected histogram metric for request latency")
	}
	if hist.GetSampleCount() != 1 {
		t.Fatalf("expected histogram count 1, got %d", hist.GetSampleCount())
	}
	want := 0.25
	if diff := math.Abs(hist.GetSampleSum() - want); diff > 0.001 {
		t.Fatalf("expected histogram sum near %v, got %v", want, hist.GetSampleSum())
	}
}

func TestRecorderObserveCache(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveCache("tournaments:list", CacheOperationLookup, CacheHit, 10*time.Millisecond)
	rec.ObserveCache("tournaments:list", CacheOperationStore, CacheStored, 5*time.Millisecond)

	families := gather(t, rec, "gateway_cache_operations_total")

	lookupMetric := findMetric(t, families["gateway_cache_operations_total"], map[string]string{
		"resource":  "tournaments:list",
		"operation": string(CacheOperationLookup),
		"result":    string(CacheHit),
	})
	if got := lookupMetric.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected lookup counter 1, got %v", got)
	}

	storeMetric := findMetric(t, families["gateway_cache_operations_total"], map[string]string{
		"resource":  "tournaments:list",
		"operation": string(CacheOperationStore),
		"result":    string(CacheStored),
	})
	if got := storeMetric.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected store counter 1, got %v", got)
	}
}

func TestRecorderObserveRateLimitAndRemote(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveRateLimit("search.all", false)
	rec.ObserveRemoteCall("teams", RemoteUnavailable, 50*time.Millisecond)

	families := gather(t, rec, "gateway_ratelimit_decisions_total", "gateway_remote_calls_total")

	decision := findMetric(t, families["gateway_ratelimit_decisions_total"], map[string]string{
		"route":   "search.all",
		"allowed": "false",
	})
	if got := decision.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected decision counter 1, got %v", got)
	}

	call := findMetric(t, families["gateway_remote_calls_total"], map[string]string{
		"service": "teams",
		"outcome": string(RemoteUnavailable),
	})
	if got := call.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected remote counter 1, got %v", got)
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var rec *Recorder
	rec.ObserveRequest("tournaments.list", 200, false, time.Millisecond)
	rec.ObserveCache("", CacheOperationLookup, CacheMiss, time.Millisecond)
	rec.ObserveRateLimit("tournaments.list", true)
	rec.ObserveRemoteCall("teams", RemoteOK, time.Millisecond)

	rr := httptest.NewRecorder()
	rec.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if rr.Code == 0 {
		t.Fatal("nil recorder handler did not respond")
	}
}

func TestRecorderHandler(t *testing.T) {
	rec := NewRecorder(nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)

	rec.Handler().ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("expected 200 response, got %d", rr.Code)
	}
	if rr.Body.Len() == 0 {
		t.Fatalf("expected response body")
	}
}

func gather(t *testing.T, rec *Recorder, names ...string) map[string][]*dto.Metric {
	t.Helper()
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}
	families, err := rec.Gatherer().Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	collected := make(map[string][]*dto.Metric, len(names))
	for _, mf := range families {
		if !wanted[mf.GetName()] {
			continue
		}
		collected[mf.GetName()] = append(collected[mf.GetName()], mf.GetMetric()...)
	}
	for _, name := range names {
		if len(collected[name]) == 0 {
			t.Fatalf("metric %q not collected", name)
		}
	}
	return collected
}

func findMetric(t *testing.T, metrics []*dto.Metric, labels map[string]string) *dto.Metric {
	t.Helper()
	for _, metric := range metrics {
		if matchLabels(metric, labels) {
			return metric
		}
	}
	t.Fatalf("metric with labels %v not found", labels)
	return nil
}

func matchLabels(metric *dto.Metric, labels map[string]string) bool {
	got := make(map[string]string, len(metric.GetLabel()))
	for _, pair := range metric.GetLabel() {
		got[pair.GetName()] = pair.GetValue()
	}
	for name, value := range labels {
		if got[name] != value {
			return false
		}
	}
	return true
}
