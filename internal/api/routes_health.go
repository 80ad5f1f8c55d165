package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/estatehub/internal/app"
	"github.com/charlesng35/estatehub/internal/handlers"
	"github.com/charlesng35/estatehub/internal/monitoring"
)

var probePaths = []string{"/health", "/healthz", "/readyz"}

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, mon *monitoring.Module) {
	var handler *handlers.HealthHandler
	if cfg.Monitoring.Health.Enabled && mon != nil {
		handler = handlers.NewHealthHandler(mon.Health())
	}

	if handler == nil {
		for _, path := range probePaths {
			r.GET(path, handlers.Disabled)
		}
		return
	}

	r.GET("/health", handler.Combined)
	r.GET("/healthz", handler.Live)
	r.GET("/readyz", handler.Ready)
}
