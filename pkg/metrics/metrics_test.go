package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestHandlerExposesResponseCounters(t *testing.T) {
	m := NewMetrics(nil)
	for i := 0; i < 5; i++ {
		m.IncrementHTTPResponseCounter(200)
		m.IncrementHTTPResponseCounter(404)
	}

	body := scrape(t, m)
	assert.Contains(t, body, "announcer_total_200_http_responses 5")
	assert.Contains(t, body, "# HELP announcer_total_404_http_responses Total Not Found HTTP responses returned")
	assert.Contains(t, body, "announcer_total_404_http_responses 5")
}

func TestSetCustomMetrics(t *testing.T) {
	m := NewMetrics(nil)
	custom := prometheus.NewGauge(prometheus.GaugeOpts{Subsystem: "test", Name: "foo", Help: "foo help"})
	m.AddCustomMetric(custom)
	custom.Set(1.234)

	assert.Contains(t, scrape(t, m), "test_foo 1.234")
}

func TestObservePollTick(t *testing.T) {
	m := NewMetrics(nil)
	m.ObservePollTick(20*time.Millisecond, 2, 1, 0, false)
	m.ObservePollTick(5*time.Millisecond, 0, 0, 1, true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PollTicks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PollTickFailures))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FirstBloodsAnnounced))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SendFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerWriteFailures))
	assert.Greater(t, testutil.ToFloat64(m.LastTickTimestamp), 0.0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.PollTickDuration))
}

func TestUpstreamAndCommandMetrics(t *testing.T) {
	m := NewMetrics(nil)
	m.ObserveUpstreamRequest("challenges", "ok", 30*time.Millisecond)
	m.ObserveUpstreamRequest("scoreboard", "http_error", 10*time.Millisecond)
	m.IncCommand("/top10", "ok")
	m.IncCommand("/top10", "ok")

	assert.Equal(t, 2, testutil.CollectAndCount(m.UpstreamRequestDuration))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CommandsHandled.WithLabelValues("/top10", "ok")))

	body := scrape(t, m)
	assert.True(t, strings.Contains(body, `announcer_upstream_request_duration_seconds_count{endpoint="challenges",outcome="ok"} 1`))
}

func TestHTTPMiddleware(t *testing.T) {
	m := NewMetrics(nil)
	handler := m.HTTPMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/error" {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("error"))
			return
		}
		_, _ = w.Write([]byte("success"))
	}))

	t.Run("tracks successful requests", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest("GET", "/success", nil))
		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, "success", recorder.Body.String())
	})

	t.Run("tracks error requests", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest("GET", "/error", nil))
		assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TotalHTTPRequestsCounter))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsCounters[200]))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsCounters[500]))
}

func TestResponseWriter(t *testing.T) {
	t.Run("captures custom status code", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		rw := &responseWriter{ResponseWriter: recorder, statusCode: 200}
		rw.WriteHeader(404)
		assert.Equal(t, 404, rw.statusCode)
		assert.Equal(t, 404, recorder.Code)
	})

	t.Run("defaults to 200 if WriteHeader not called", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		rw := &responseWriter{ResponseWriter: recorder, statusCode: 200}
		_, _ = rw.Write([]byte("test"))
		assert.Equal(t, 200, rw.statusCode)
	})
}
