// Package httpmiddleware assembles the chi middleware stack used by the ops
// HTTP server.
package httpmiddleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lewisedginton/ctfd_announcer/pkg/logger"
)

// Config holds configuration for HTTP middleware application.
// Use DefaultConfig() for sensible defaults, then customize as needed.
type Config struct {
	Logger  logger.Logger
	Timeout time.Duration
	// Recoverer replaces chi's Recoverer when set.
	Recoverer func(http.Handler) http.Handler
	// Extra middleware appended after the built-in stack.
	Extra []func(http.Handler) http.Handler

	EnableCorrelationID bool
	EnableLogging       bool // requires Logger
	EnableRecovery      bool
	EnableHeartbeat     bool // answers GET /ping
	EnableRealIP        bool
	EnableTimeout       bool
}

// DefaultConfig returns the ops server configuration. Logging is off until
// a Logger is provided.
func DefaultConfig() Config {
	return Config{
		Timeout:             30 * time.Second,
		EnableCorrelationID: true,
		EnableRecovery:      true,
		EnableHeartbeat:     true,
		EnableRealIP:        true,
		EnableTimeout:       true,
	}
}

// ApplyToRouter installs the middleware in execution order: correlation ID,
// real IP, logging, recovery, timeout, heartbeat, then cfg.Extra.
func ApplyToRouter(router chi.Router, cfg Config) {
	if cfg.EnableCorrelationID {
		router.Use(CorrelationID())
	}
	if cfg.EnableRealIP {
		router.Use(middleware.RealIP)
	}
	if cfg.EnableLogging && cfg.Logger != nil {
		router.Use(NewHTTPLogger(cfg.Logger).Middleware)
	}
	if cfg.EnableRecovery {
		if cfg.Recoverer != nil {
			router.Use(cfg.Recoverer)
		} else {
			router.Use(middleware.Recoverer)
		}
	}
	if cfg.EnableTimeout && cfg.Timeout > 0 {
		router.Use(middleware.Timeout(cfg.Timeout))
	}
	if cfg.EnableHeartbeat {
		router.Use(middleware.Heartbeat("/ping"))
	}
	for _, mw := range cfg.Extra {
		router.Use(mw)
	}
}

// WithLogger applies DefaultConfig with request logging enabled.
func WithLogger(router chi.Router, log logger.Logger) {
	cfg := DefaultConfig()
	cfg.Logger = log
	cfg.EnableLogging = true
	ApplyToRouter(router, cfg)
}
