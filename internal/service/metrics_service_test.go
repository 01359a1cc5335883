package service

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ambassador-api/pkg/jobs"
)

func TestMetricsSnapshotTotals(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest("GET", "/api/v1/schools", 200, 10*time.Millisecond)
	m.ObserveHTTPRequest("POST", "/api/v1/intake", 422, 30*time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordIntake("accepted", "Creator")
	m.RecordIntake("rejected", "")
	m.RecordPoints("challenge", 25)
	m.RecordPoints("challenge", -5)
	m.RecordNotification("welcome", nil)
	m.RecordNotification("welcome", errors.New("throttled"))

	snap := m.Snapshot()
	assert.EqualValues(t, 2, snap.RequestsTotal)
	assert.InDelta(t, 20.0, snap.AverageRequestDurationMs, 0.01)
	assert.InDelta(t, 2.0/3.0, snap.CacheHitRatio, 0.001)
	assert.EqualValues(t, 1, snap.IntakesAccepted)
	assert.EqualValues(t, 1, snap.IntakesRejected)
	assert.EqualValues(t, 25, snap.PointsAwarded)
	assert.EqualValues(t, 1, snap.NotificationsSent)
	assert.EqualValues(t, 1, snap.NotificationsFailed)
	assert.Nil(t, snap.Queues)
}

func TestMetricsExposesNamespacedSeries(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest("GET", "/api/v1/schools", 204, time.Millisecond)
	m.TrackQueue("notifications", func() jobs.Stats { return jobs.Stats{Pending: 3, Failed: 1} })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `ambassador_http_request_duration_seconds_count{method="GET",route="/api/v1/schools",status="2xx"} 1`)
	assert.Contains(t, body, `ambassador_queue_pending{queue="notifications"} 3`)
	assert.Contains(t, body, "go_goroutines")

	assert.Equal(t, 3, m.Snapshot().Queues["notifications"].Pending)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *MetricsService
	m.RecordCompletion()
	m.TrackQueue("x", nil)
	assert.Zero(t, m.Snapshot().RequestsTotal)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "4xx", statusClass(429))
	assert.Equal(t, "5xx", statusClass(503))
	assert.Equal(t, "0", statusClass(0))
}
