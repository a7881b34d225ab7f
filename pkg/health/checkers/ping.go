package checkers

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Pinger is anything that can verify its own connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker adapts a Pinger to a health check.
type PingChecker struct {
	target Pinger
	name   string
}

// NewPingChecker wraps target under the given check name.
func NewPingChecker(target Pinger, name string) *PingChecker {
	return &PingChecker{target: target, name: name}
}

func (p *PingChecker) Name() string {
	return p.name
}

func (p *PingChecker) Check(ctx context.Context) error {
	if err := p.target.Ping(ctx); err != nil {
		return fmt.Errorf("%s ping failed: %w", p.name, err)
	}
	return nil
}

// ErrStale is returned by HeartbeatChecker when the last beat is too old.
var ErrStale = errors.New("heartbeat is stale")

// HeartbeatChecker fails when a background loop has not reported within
// maxAge. Before the first beat the loop's start time is used, so a loop
// that has just started is healthy.
type HeartbeatChecker struct {
	name    string
	last    func() time.Time
	maxAge  time.Duration
	started time.Time
	now     func() time.Time
}

// NewHeartbeatChecker creates a checker reading the last beat from last.
func NewHeartbeatChecker(name string, last func() time.Time, maxAge time.Duration) *HeartbeatChecker {
	return &HeartbeatChecker{
		name:    name,
		last:    last,
		maxAge:  maxAge,
		started: time.Now(),
		now:     time.Now,
	}
}

func (h *HeartbeatChecker) Name() string {
	return h.name
}

func (h *HeartbeatChecker) Check(context.Context) error {
	beat := h.last()
	if beat.IsZero() {
		beat = h.started
	}
	if age := h.now().Sub(beat); age > h.maxAge {
		return fmt.Errorf("%w: last beat %s ago (max %s)", ErrStale, age.Truncate(time.Second), h.maxAge)
	}
	return nil
}
