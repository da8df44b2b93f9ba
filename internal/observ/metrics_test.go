package observ

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAccumulateAcrossLabels(t *testing.T) {
	IncCounter("test_requests_total", map[string]string{"provider": "alpaca"})
	IncCounter("test_requests_total", map[string]string{"provider": "polygon"})
	IncCounterBy("test_requests_total", map[string]string{"provider": "alpaca"}, 3)

	assert.Equal(t, int64(5), CounterValue("test_requests_total"))
}

func TestGaugeByExactLabelSet(t *testing.T) {
	SetGauge("test_state", 2, map[string]string{"provider": "alpaca"})
	SetGauge("test_state", 0, map[string]string{"provider": "polygon"})

	v, ok := GaugeValue("test_state", map[string]string{"provider": "alpaca"})
	require.True(t, ok)
	assert.Equal(t, 2.0, v)

	_, ok = GaugeValue("test_state", map[string]string{"provider": "yahoo"})
	assert.False(t, ok)
}

func TestHandler_DumpsJSON(t *testing.T) {
	IncCounter("test_dump_total", nil)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Counters map[string]map[string]int64 `json:"counters"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Contains(t, payload.Counters, "test_dump_total")
}

func TestHealthHandler_DegradedOnOpenBreaker(t *testing.T) {
	SetGauge("circuit_breaker_state", 0, map[string]string{"provider": "healthy_one"})
	rec := httptest.NewRecorder()
	HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var health HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)

	SetGauge("circuit_breaker_state", 2, map[string]string{"provider": "broken_one"})
	rec = httptest.NewRecorder()
	HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "degraded", health.Status)
	assert.NotEqual(t, http.StatusOK, rec.Code)

	// Heal for any test running after us in the same process.
	SetGauge("circuit_breaker_state", 0, map[string]string{"provider": "broken_one"})
}
