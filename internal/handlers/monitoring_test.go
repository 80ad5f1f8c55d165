package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/estatehub/internal/app"
	"github.com/charlesng35/estatehub/internal/monitoring"
)

func newModule(t *testing.T) *monitoring.Module {
	t.Helper()
	mod, err := monitoring.NewModule(monitoring.Options{DisableGoCollector: true, DisableProcessCollector: true})
	require.NoError(t, err)
	monitoring.SetModule(mod)
	t.Cleanup(monitoring.ResetModule)
	return mod
}

func TestMonitoringHandlerSummary(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mod := newModule(t)

	monitoring.RecordLoginAttempt("success")
	monitoring.RecordModelOperation("Account", "save", "success", 20*time.Millisecond)

	cfg := &app.Config{
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/ops/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}
	handler := NewMonitoringHandler(mod, cfg, func() []string { return []string{"Account", "Listing"} })
	require.NotNil(t, handler)

	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request, _ = http.NewRequest(http.MethodGet, "/status", nil)

	handler.Summary(ctx)
	require.Equal(t, http.StatusOK, recorder.Code)

	var payload struct {
		Success bool `json:"success"`
		Data    struct {
			Summary    monitoring.Summary `json:"summary"`
			Models     []string           `json:"models"`
			Prometheus struct {
				Endpoint string `json:"endpoint"`
			} `json:"prometheus"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	require.True(t, payload.Success)
	require.Equal(t, []string{"Account", "Listing"}, payload.Data.Models)
	require.Equal(t, "/ops/metrics", payload.Data.Prometheus.Endpoint)
	require.Equal(t, uint64(1), payload.Data.Summary.Accounts.LoginSuccess)
	require.NotEmpty(t, payload.Data.Summary.Entities)
}

func TestMonitoringHandlerDisabled(t *testing.T) {
	mod := newModule(t)
	require.Nil(t, NewMonitoringHandler(mod, &app.Config{}, nil))
	require.Nil(t, NewMonitoringHandler(nil, &app.Config{}, nil))
}

func TestHealthHandlerReadiness(t *testing.T) {
	gin.SetMode(gin.TestMode)

	manager := monitoring.NewHealthManager()
	manager.RegisterLiveness(monitoring.NewCheck("process", func(context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}))
	manager.RegisterReadiness(monitoring.NewCheck("docstore", func(context.Context) monitoring.ProbeResult {
		return monitoring.ResultFromError("docstore", errors.New("connection refused"), 0)
	}))
	handler := NewHealthHandler(manager)
	require.NotNil(t, handler)

	r := gin.New()
	r.GET("/healthz", handler.Live)
	r.GET("/readyz", handler.Ready)

	live := httptest.NewRecorder()
	r.ServeHTTP(live, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, live.Code)

	ready := httptest.NewRecorder()
	r.ServeHTTP(ready, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, ready.Code)
	require.Contains(t, ready.Body.String(), "connection refused")
}

func TestHealthHandlerNilManager(t *testing.T) {
	require.Nil(t, NewHealthHandler(nil))
}
