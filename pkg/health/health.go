// Package health runs liveness and readiness checks and serves them over
// HTTP.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/lewisedginton/ctfd_announcer/pkg/logger"
)

// Check represents a single health check that can succeed or fail.
type Check interface {
	Name() string
	// Check returns nil if healthy.
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to the Check interface.
type CheckFunc struct {
	name string
	fn   func(context.Context) error
}

// NewCheckFunc creates a new CheckFunc with the given name and function.
func NewCheckFunc(name string, fn func(context.Context) error) *CheckFunc {
	return &CheckFunc{name: name, fn: fn}
}

func (c *CheckFunc) Name() string {
	return c.name
}

func (c *CheckFunc) Check(ctx context.Context) error {
	return c.fn(ctx)
}

// CheckResult is the outcome of one check execution.
type CheckResult struct {
	Name    string
	Healthy bool
	Error   string
	Latency time.Duration
}

// HealthStatus is the aggregated outcome of a probe.
type HealthStatus struct {
	Healthy bool
	Checks  []CheckResult
}

// HealthChecker holds the liveness and readiness checks. A failing check
// only reports unhealthy after failureThreshold consecutive failures.
type HealthChecker struct {
	livenessChecks   []Check
	readinessChecks  []Check
	timeout          time.Duration
	failureCount     map[string]int
	failureThreshold int
	logger           logger.Logger
	mu               sync.RWMutex
}

// Option is a functional option for configuring HealthChecker.
type Option func(*HealthChecker)

// WithTimeout bounds each individual check. Default is 5 seconds.
func WithTimeout(d time.Duration) Option {
	return func(h *HealthChecker) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithLogger sets the logger for health check operations.
func WithLogger(l logger.Logger) Option {
	return func(h *HealthChecker) {
		h.logger = l
	}
}

// WithFailureThreshold sets how many consecutive failures make a check
// unhealthy. Default is 3.
func WithFailureThreshold(threshold int) Option {
	return func(h *HealthChecker) {
		if threshold > 0 {
			h.failureThreshold = threshold
		}
	}
}

// New creates a new HealthChecker with the given options.
func New(opts ...Option) *HealthChecker {
	h := &HealthChecker{
		timeout:          5 * time.Second,
		failureThreshold: 3,
		failureCount:     make(map[string]int),
		logger:           logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AddLivenessCheck adds a check that decides whether the process should be
// restarted.
func (h *HealthChecker) AddLivenessCheck(check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.livenessChecks = append(h.livenessChecks, check)
}

// AddReadinessCheck adds a check that decides whether dependencies are
// reachable.
func (h *HealthChecker) AddReadinessCheck(check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readinessChecks = append(h.readinessChecks, check)
}

func (h *HealthChecker) CheckLiveness(ctx context.Context) (*HealthStatus, error) {
	h.mu.RLock()
	checks := append([]Check(nil), h.livenessChecks...)
	h.mu.RUnlock()
	return h.executeChecks(ctx, checks)
}

func (h *HealthChecker) CheckReadiness(ctx context.Context) (*HealthStatus, error) {
	h.mu.RLock()
	checks := append([]Check(nil), h.readinessChecks...)
	h.mu.RUnlock()
	return h.executeChecks(ctx, checks)
}

// executeChecks runs checks concurrently. The returned error aggregates every
// unhealthy check.
func (h *HealthChecker) executeChecks(ctx context.Context, checks []Check) (*HealthStatus, error) {
	status := &HealthStatus{Healthy: true, Checks: make([]CheckResult, len(checks))}
	if len(checks) == 0 {
		return status, nil
	}

	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(idx int, chk Check) {
			defer wg.Done()
			status.Checks[idx] = h.executeCheck(ctx, chk)
		}(i, check)
	}
	wg.Wait()

	var result *multierror.Error
	for _, r := range status.Checks {
		if !r.Healthy {
			status.Healthy = false
			result = multierror.Append(result, fmt.Errorf("%s: %s", r.Name, r.Error))
		}
	}
	if result != nil {
		result.ErrorFormat = listFormat
		return status, result
	}
	return status, nil
}

func listFormat(errs []error) string {
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	sort.Strings(msgs)
	return fmt.Sprintf("health checks failed: %v", msgs)
}

// executeCheck runs a single check with the timeout and threshold applied.
func (h *HealthChecker) executeCheck(parentCtx context.Context, check Check) CheckResult {
	ctx, cancel := context.WithTimeout(parentCtx, h.timeout)
	defer cancel()

	start := time.Now()
	err := runCheck(ctx, check)
	latency := time.Since(start)

	name := check.Name()
	result := CheckResult{Name: name, Latency: latency, Healthy: true}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err == nil {
		h.failureCount[name] = 0
		h.logger.Debug("Health check passed",
			logger.StringField("check", name),
			logger.DurationField("latency", latency))
		return result
	}

	h.failureCount[name]++
	failures := h.failureCount[name]
	if failures < h.failureThreshold {
		h.logger.Debug("Health check failed but below threshold",
			logger.StringField("check", name),
			logger.ErrorField(err),
			logger.IntField("failures", failures),
			logger.IntField("threshold", h.failureThreshold))
		return result
	}

	result.Healthy = false
	result.Error = err.Error()
	h.logger.Warn("Health check failed",
		logger.StringField("check", name),
		logger.ErrorField(err),
		logger.IntField("failures", failures),
		logger.DurationField("latency", latency))
	return result
}

// runCheck turns a panicking check into a failure.
func runCheck(ctx context.Context, check Check) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("check panicked: %v", r)
		}
	}()
	return check.Check(ctx)
}
