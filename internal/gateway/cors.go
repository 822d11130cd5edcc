package gateway

import "net/http"

// The gateway serves anonymous public traffic, so CORS is wide open with a
// fixed method/header set and a day-long preflight cache.
const (
	corsAllowOrigin  = "*"
	corsAllowMethods = "GET, OPTIONS"
	corsAllowHeaders = "Accept, Content-Type"
	corsMaxAge       = "86400"
)

func applyCORS(h http.Header) {
	h.Set("Access-Control-Allow-Origin", corsAllowOrigin)
	h.Set("Access-Control-Allow-Methods", corsAllowMethods)
	h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
	h.Set("Access-Control-Max-Age", corsMaxAge)
}
