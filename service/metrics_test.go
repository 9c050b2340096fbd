package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMetricsLifecycle(t *testing.T) {
	config := NewConfig()
	config.Metrics.ReportingFreqSec = 1
	m := NewMetrics(zap.NewNop(), config)
	t.Cleanup(m.Close)

	m.CustomCounter("rounds_generated_count", map[string]string{"strategy": "monte_carlo"}, 1)
	m.CustomGauge("sessions_active_gauge", nil, 1)
	m.CustomTimer("generate_time", nil, 3*time.Millisecond)
	m.APIRequest("/v1/healthcheck", http.StatusOK, time.Millisecond)
	m.CountWebsocketOpened(1)
	m.CountWebsocketClosed(1)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	m.HTTPHandler().ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpointWiring(t *testing.T) {
	config := NewConfig()
	config.Metrics.ReportingFreqSec = 1
	require.NoError(t, config.Validate())
	logger := zap.NewNop()
	m := NewMetrics(logger, config)
	t.Cleanup(m.Close)
	registry := NewSessionRegistry(logger, m, config)
	t.Cleanup(registry.Shutdown)
	api := NewApiServer(logger, config, registry, NewMemorySnapshotStore(), m)
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	// Drive a request through the instrumented router first.
	resp, err := http.Get(srv.URL + "/v1/healthcheck")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
}
