package api

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/estatehub/internal/app"
	"github.com/charlesng35/estatehub/internal/middleware"
	"github.com/charlesng35/estatehub/internal/monitoring"
)

// Options carries the collaborators of the ops router.
type Options struct {
	Config  *app.Config
	Monitor *monitoring.Module
	// Models lists the registered model names for the status endpoint.
	Models func() []string
}

// NewRouter builds the Gin engine serving probes, metrics and the status summary.
func NewRouter(opts Options) (*gin.Engine, error) {
	if opts.Config == nil {
		return nil, errors.New("config must be provided")
	}

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger(probePaths...))
	r.Use(middleware.Metrics())

	registerHealthRoutes(r, opts.Config, opts.Monitor)
	registerMonitoringRoutes(r, opts.Config, opts.Monitor, opts.Models)

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
