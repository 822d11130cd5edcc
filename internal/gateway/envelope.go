package gateway

import (
	"encoding/json"
	"net/http"
	"time"
)

// successEnvelope is the wire shape of every successful response. All six
// keys are always present; cache_expires_at is null for uncached payloads.
type successEnvelope struct {
	Success        bool            `json:"success"`
	Message        string          `json:"message"`
	Data           json.RawMessage `json:"data"`
	Cached         bool            `json:"cached"`
	CacheExpiresAt *time.Time      `json:"cache_expires_at"`
	Timestamp      time.Time       `json:"timestamp"`
}

// errorEnvelope is the wire shape of every failure response. errors is null
// unless the failure carries field-level detail.
type errorEnvelope struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors"`
	ErrorCode string            `json:"error_code"`
}

func writeSuccess(w http.ResponseWriter, message string, data json.RawMessage, cached bool, expiresAt time.Time) {
	env := successEnvelope{
		Success:   true,
		Message:   message,
		Data:      data,
		Cached:    cached,
		Timestamp: time.Now().UTC(),
	}
	if cached && !expiresAt.IsZero() {
		at := expiresAt.UTC()
		env.CacheExpiresAt = &at
	}
	writeJSON(w, http.StatusOK, env)
}

func writeError(w http.ResponseWriter, err error) {
	gerr, ok := err.(*Error)
	if !ok {
		gerr = internalError()
	}
	writeJSON(w, gerr.Status(), errorEnvelope{
		Success:   false,
		Message:   gerr.Message,
		Errors:    gerr.Fields,
		ErrorCode: gerr.Code(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
