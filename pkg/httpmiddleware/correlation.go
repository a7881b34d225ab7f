package httpmiddleware

import (
	"net/http"

	"github.com/lewisedginton/ctfd_announcer/pkg/logger"
)

// CorrelationID ensures every request carries a UUID correlation ID in both
// the X-Correlation-ID header and the request context. A valid inbound UUID
// is kept so probes can be traced end to end; anything else is replaced.
// The ID is echoed on the response.
func CorrelationID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, id := logger.EnsureHTTPCorrelationID(r)
			w.Header().Set(logger.CorrelationIDHeader, id)
			next.ServeHTTP(w, r)
		})
	}
}
