package gateway

import "net/http"

// Kind classifies a request failure. Each kind maps to one HTTP status and
// one stable machine-readable code so callers branch on codes, not on
// message text.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindRateLimited
	KindUnavailable
)

// Error is the only error shape handlers surface to the envelope writer.
// Fields carries field-level validation detail when the kind warrants it.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
}

func (e *Error) Error() string { return e.Message }

// Status is the HTTP status the kind maps to.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code is the stable machine-readable identifier for the kind.
func (e *Error) Code() string {
	switch e.Kind {
	case KindValidation:
		return "validation_error"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindUnavailable:
		return "service_unavailable"
	default:
		return "internal_error"
	}
}

func validationError(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: "invalid request parameters", Fields: fields}
}

func notFoundError(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func rateLimitedError() *Error {
	return &Error{Kind: KindRateLimited, Message: "rate limit exceeded, retry later"}
}

func internalError() *Error {
	return &Error{Kind: KindInternal, Message: "internal error"}
}
