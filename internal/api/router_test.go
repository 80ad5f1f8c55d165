package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/estatehub/internal/app"
	"github.com/charlesng35/estatehub/internal/monitoring"
)

func newMonitor(t *testing.T) *monitoring.Module {
	t.Helper()
	mod, err := monitoring.NewModule(monitoring.Options{DisableGoCollector: true, DisableProcessCollector: true})
	require.NoError(t, err)
	monitoring.SetModule(mod)
	t.Cleanup(monitoring.ResetModule)
	return mod
}

func enabledConfig() *app.Config {
	return &app.Config{
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}
}

func serve(router http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouterRequiresConfig(t *testing.T) {
	_, err := NewRouter(Options{})
	require.Error(t, err)
}

func TestRouterProbes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mon := newMonitor(t)

	var storeErr error
	mon.Health().RegisterReadiness(monitoring.NewCheck("docstore", func(context.Context) monitoring.ProbeResult {
		return monitoring.ResultFromError("docstore", storeErr, 0)
	}))

	router, err := NewRouter(Options{Config: enabledConfig(), Monitor: mon})
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, serve(router, "/healthz").Code)
	require.Equal(t, http.StatusOK, serve(router, "/readyz").Code)
	require.Equal(t, http.StatusOK, serve(router, "/health").Code)

	storeErr = errors.New("server selection timeout")
	require.Equal(t, http.StatusOK, serve(router, "/healthz").Code)
	require.Equal(t, http.StatusServiceUnavailable, serve(router, "/readyz").Code)
	require.Equal(t, http.StatusServiceUnavailable, serve(router, "/health").Code)
}

func TestRouterHealthDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mon := newMonitor(t)

	cfg := enabledConfig()
	cfg.Monitoring.Health.Enabled = false
	router, err := NewRouter(Options{Config: cfg, Monitor: mon})
	require.NoError(t, err)

	rec := serve(router, "/readyz")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "disabled")
}

func TestRouterMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mon := newMonitor(t)

	router, err := NewRouter(Options{Config: enabledConfig(), Monitor: mon})
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, serve(router, "/healthz").Code)

	rec := serve(router, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	if !strings.Contains(body, `estatehub_http_request_duration_seconds_count{method="GET",path="/healthz",status="200"}`) {
		t.Fatalf("metrics output missing latency series: %s", body)
	}
}

func TestRouterStatusAndNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mon := newMonitor(t)

	router, err := NewRouter(Options{
		Config:  enabledConfig(),
		Monitor: mon,
		Models:  func() []string { return []string{"Account"} },
	})
	require.NoError(t, err)

	rec := serve(router, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"models":["Account"]`)

	rec = serve(router, "/api/accounts")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "NOT_FOUND")
}
