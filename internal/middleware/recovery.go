// Package middleware provides HTTP middleware for the ops server.
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/lewisedginton/ctfd_announcer/pkg/logger"
)

// RecoveryConfig holds configuration for the recovery middleware
type RecoveryConfig struct {
	Logger              logger.Logger
	EnableStackTrace    bool
	ResponseMessage     string
	ResponseContentType string
	// OnPanic is called after logging, e.g. to count panics.
	OnPanic func(r *http.Request, recovered any)
}

// DefaultRecoveryConfig returns a sensible default configuration
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		EnableStackTrace:    true,
		ResponseMessage:     `{"error":"Internal server error","code":"INTERNAL_ERROR"}`,
		ResponseContentType: "application/json",
	}
}

// Recovery returns a middleware that recovers from panics and logs them
func Recovery(config RecoveryConfig) func(http.Handler) http.Handler {
	if config.Logger == nil {
		config.Logger = logger.NewNopLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					handlePanic(w, r, rec, config)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func handlePanic(w http.ResponseWriter, r *http.Request, recovered any, config RecoveryConfig) {
	fields := []logger.LogField{
		logger.StringField("panic_error", fmt.Sprintf("%v", recovered)),
		logger.HTTPMethodField(r.Method),
		logger.HTTPPathField(r.URL.Path),
		logger.ClientIPField(getClientIP(r)),
		logger.StringField("user_agent", r.UserAgent()),
	}
	if config.EnableStackTrace {
		fields = append(fields, logger.StringField("stack_trace", string(debug.Stack())))
	}
	if r.URL.RawQuery != "" {
		fields = append(fields, logger.StringField("query_params", r.URL.RawQuery))
	}
	logger.GetLoggerFromContext(r.Context(), config.Logger).Error("HTTP request panic recovered", fields...)

	if config.OnPanic != nil {
		config.OnPanic(r, recovered)
	}

	w.Header().Set("Content-Type", config.ResponseContentType)
	w.Header().Set("Connection", "close")
	w.WriteHeader(http.StatusInternalServerError)
	if config.ResponseMessage != "" {
		_, _ = w.Write([]byte(config.ResponseMessage))
	}
}

// getClientIP extracts the client IP from proxy headers, falling back to
// RemoteAddr.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
