package monitoring

import (
	"time"

	"github.com/lewisedginton/ctfd_announcer/internal/firstblood"
	"github.com/lewisedginton/ctfd_announcer/pkg/metrics"
)

// TickRecorder feeds poll tick outcomes into the Prometheus metrics.
type TickRecorder struct {
	metrics *metrics.Metrics
}

var _ firstblood.Recorder = (*TickRecorder)(nil)

// NewTickRecorder returns a recorder backed by m.
func NewTickRecorder(m *metrics.Metrics) *TickRecorder {
	return &TickRecorder{metrics: m}
}

// RecordTick implements firstblood.Recorder.
func (t *TickRecorder) RecordTick(result firstblood.TickResult, duration time.Duration, err error) {
	t.metrics.ObservePollTick(duration, result.Announced, result.SendFailures, result.LedgerFailures, err != nil)
}
