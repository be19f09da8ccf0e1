package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/herald/internal/config"
	"github.com/rafaeljc/herald/internal/observability"
	"github.com/rafaeljc/herald/internal/testsupport"
)

func stubChecker(name string, err error) observability.Checker {
	return observability.CheckFunc(name, func(context.Context) error { return err })
}

func testConfig() *config.ObservabilityConfig {
	return &config.ObservabilityConfig{
		Port:          "0",
		Timeout:       time.Second,
		LivenessPath:  "/healthz",
		ReadinessPath: "/readyz",
		MetricsPath:   "/metrics",
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestServer_Liveness(t *testing.T) {
	t.Parallel()

	srv := observability.NewServer(nil, testConfig(), "herald-gate")
	rr := get(t, srv.Handler(), "/healthz")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	srv := observability.NewServer(nil, testConfig(), "herald-gate")
	rr := get(t, srv.Handler(), "/metrics")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
	assert.Contains(t, rr.Body.String(), "herald_")
}

// TestServer_Readiness updates a global gauge and does not run in parallel.
func TestServer_Readiness(t *testing.T) {
	t.Run("returns 200 when every dependency is up", func(t *testing.T) {
		srv := observability.NewServer(nil, testConfig(), "herald-gate",
			stubChecker("probe_pg_ok", nil), stubChecker("probe_redis_ok", nil))

		rr := get(t, srv.Handler(), "/readyz")
		require.Equal(t, http.StatusOK, rr.Code)

		var body struct {
			Status  map[string]string `json:"status"`
			Service string            `json:"service"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "up", body.Status["probe_pg_ok"])
		assert.Equal(t, "up", body.Status["probe_redis_ok"])
		assert.Equal(t, "herald-gate", body.Service)

		testsupport.AssertMetricValue(t, "herald_dependency_up",
			map[string]string{"component": "probe_pg_ok"}, 1)
	})

	t.Run("returns 503 and logs when a dependency is down", func(t *testing.T) {
		var logBuffer bytes.Buffer
		log := slog.New(slog.NewTextHandler(&logBuffer, nil))

		srv := observability.NewServer(log, testConfig(), "herald-gate",
			stubChecker("probe_pg_up", nil),
			stubChecker("probe_redis_down", errors.New("connection refused")))

		rr := get(t, srv.Handler(), "/readyz")
		require.Equal(t, http.StatusServiceUnavailable, rr.Code)

		var body struct {
			Status map[string]string `json:"status"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "up", body.Status["probe_pg_up"])
		assert.Contains(t, body.Status["probe_redis_down"], "down: connection refused")

		testsupport.AssertMetricValue(t, "herald_dependency_up",
			map[string]string{"component": "probe_redis_down"}, 0)
		assert.Contains(t, logBuffer.String(), "component=probe_redis_down")
	})
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	t.Parallel()

	srv := observability.NewServer(nil, testConfig(), "herald-gate")
	assert.NoError(t, srv.Shutdown(context.Background()))
}
