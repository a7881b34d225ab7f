// Package monitoring wires the health checks and metrics of the announcer
// into the ops server.
package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/lewisedginton/ctfd_announcer/pkg/health"
	"github.com/lewisedginton/ctfd_announcer/pkg/health/checkers"
	"github.com/lewisedginton/ctfd_announcer/pkg/logger"
)

// Health status constants for the combined endpoint
const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	statusReady     = "ready"
	statusNotReady  = "not_ready"
)

// ErrShuttingDown is reported by the readiness probe once shutdown starts.
var ErrShuttingDown = errors.New("shutting down")

// ConnectorHealthCheck represents a chat connector that can report readiness
type ConnectorHealthCheck interface {
	Ready() error
}

// Config holds configuration for the health monitor
type Config struct {
	Logger  logger.Logger
	Version string

	// Heartbeat returns the time of the last completed poll tick. The
	// liveness probe fails when it is older than HeartbeatMaxAge.
	Heartbeat       func() time.Time
	HeartbeatMaxAge time.Duration

	Scoreboard checkers.Pinger   // CTFd API
	Ledger     checkers.Pinger   // announcement ledger
	Redis      *redis.Client     // Optional: only for the redis ledger backend
	RedisKey   string            // ledger set key checked on Redis
	Connector  ConnectorHealthCheck
	// ConnectorName labels the connector check, e.g. "slack".
	ConnectorName string

	Timeout          time.Duration
	FailureThreshold int
}

// HealthMonitor manages health checks and monitoring endpoints for the application
type HealthMonitor struct {
	checker      *health.HealthChecker
	logger       logger.Logger
	version      string
	startTime    time.Time
	shuttingDown atomic.Bool
}

// NewHealthMonitor creates a new health monitor with configured checks
func NewHealthMonitor(cfg Config) *HealthMonitor {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNopLogger()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	failureThreshold := cfg.FailureThreshold
	if failureThreshold == 0 {
		failureThreshold = 3
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	checker := health.New(
		health.WithLogger(cfg.Logger),
		health.WithTimeout(timeout),
		health.WithFailureThreshold(failureThreshold),
	)

	checker.AddLivenessCheck(health.NewCheckFunc("process", func(ctx context.Context) error {
		return nil
	}))
	if cfg.Heartbeat != nil && cfg.HeartbeatMaxAge > 0 {
		checker.AddLivenessCheck(checkers.NewHeartbeatChecker("poller", cfg.Heartbeat, cfg.HeartbeatMaxAge))
	}

	hm := &HealthMonitor{
		checker:   checker,
		logger:    cfg.Logger,
		version:   version,
		startTime: time.Now(),
	}

	checker.AddReadinessCheck(health.NewCheckFunc("shutdown", func(ctx context.Context) error {
		if hm.shuttingDown.Load() {
			return ErrShuttingDown
		}
		return nil
	}))
	if cfg.Scoreboard != nil {
		checker.AddReadinessCheck(checkers.NewPingChecker(cfg.Scoreboard, "ctfd"))
	}
	if cfg.Ledger != nil {
		checker.AddReadinessCheck(checkers.NewPingChecker(cfg.Ledger, "ledger"))
	}
	if cfg.Redis != nil {
		rc := checkers.NewRedisChecker(cfg.Redis, "redis")
		if cfg.RedisKey != "" {
			rc.ExpectType(cfg.RedisKey, "set").ExpectType(cfg.RedisKey+":at", "hash")
		}
		checker.AddReadinessCheck(rc)
	}
	if cfg.Connector != nil {
		name := cfg.ConnectorName
		if name == "" {
			name = "chat"
		}
		checker.AddReadinessCheck(health.NewCheckFunc(name+"_connector", func(ctx context.Context) error {
			return cfg.Connector.Ready()
		}))
	}

	return hm
}

// HealthHandler returns a combined view of liveness and readiness.
// GET /health
func (hm *HealthMonitor) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		livenessStatus, livenessErr := hm.checker.CheckLiveness(ctx)
		readinessStatus, readinessErr := hm.checker.CheckReadiness(ctx)

		liveness := map[string]interface{}{"status": statusHealthy, "checks": health.Summarize(livenessStatus)}
		readiness := map[string]interface{}{"status": statusReady, "checks": health.Summarize(readinessStatus)}
		if livenessErr != nil {
			liveness["status"] = statusUnhealthy
			liveness["error"] = livenessErr.Error()
		}
		if readinessErr != nil {
			readiness["status"] = statusNotReady
			readiness["error"] = readinessErr.Error()
		}

		response := map[string]interface{}{
			"status":    statusHealthy,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"uptime":    time.Since(hm.startTime).String(),
			"version":   hm.version,
			"liveness":  liveness,
			"readiness": readiness,
		}
		err := errors.Join(livenessErr, readinessErr)
		if err != nil {
			response["status"] = statusUnhealthy
			hm.logger.Warn("Health check failed", logger.ErrorField(err))
		}
		writeJSON(w, err, response)
	}
}

// RegisterRoutes mounts the health endpoints on r.
func (hm *HealthMonitor) RegisterRoutes(r chi.Router) {
	r.Get("/health", hm.HealthHandler())
	r.Get("/health/live", hm.checker.LivenessHandler())
	r.Get("/health/ready", hm.checker.ReadinessHandler())
}

// MarkShuttingDown makes the readiness probe fail from now on.
func (hm *HealthMonitor) MarkShuttingDown() {
	hm.shuttingDown.Store(true)
}

func writeJSON(w http.ResponseWriter, err error, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(body)
}
