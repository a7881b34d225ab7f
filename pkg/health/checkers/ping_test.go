package checkers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestPingChecker(t *testing.T) {
	ok := NewPingChecker(pingFunc(func(context.Context) error { return nil }), "ledger")
	assert.Equal(t, "ledger", ok.Name())
	assert.NoError(t, ok.Check(context.Background()))

	cause := errors.New("connection refused")
	bad := NewPingChecker(pingFunc(func(context.Context) error { return cause }), "ctfd")
	err := bad.Check(context.Background())
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "ctfd ping failed")
}

func TestHeartbeatChecker(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	var last time.Time

	h := NewHeartbeatChecker("poller", func() time.Time { return last }, 90*time.Second)
	h.now = func() time.Time { return now }
	h.started = now.Add(-time.Minute)

	t.Run("no beat yet but recently started", func(t *testing.T) {
		assert.NoError(t, h.Check(context.Background()))
	})

	t.Run("fresh beat", func(t *testing.T) {
		last = now.Add(-30 * time.Second)
		assert.NoError(t, h.Check(context.Background()))
	})

	t.Run("stale beat", func(t *testing.T) {
		last = now.Add(-5 * time.Minute)
		assert.ErrorIs(t, h.Check(context.Background()), ErrStale)
	})

	t.Run("never beat and started long ago", func(t *testing.T) {
		last = time.Time{}
		h.started = now.Add(-10 * time.Minute)
		assert.ErrorIs(t, h.Check(context.Background()), ErrStale)
	})
}
