package api

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/estatehub/internal/app"
	"github.com/charlesng35/estatehub/internal/handlers"
	"github.com/charlesng35/estatehub/internal/monitoring"
)

func registerMonitoringRoutes(r *gin.Engine, cfg *app.Config, mon *monitoring.Module, models func() []string) {
	if mon == nil {
		return
	}

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(mon.Handler()))
	}

	if handler := handlers.NewMonitoringHandler(mon, cfg, models); handler != nil {
		r.GET("/status", handler.Summary)
	}
}
