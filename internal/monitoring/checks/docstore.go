package checks

import (
	"context"
	"time"

	"github.com/charlesng35/estatehub/internal/monitoring"
)

// Pinger is satisfied by every document store backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DocumentStore returns a readiness probe that pings the configured store.
func DocumentStore(store Pinger, backend string) monitoring.Check {
	name := "docstore"
	if backend != "" {
		name = "docstore:" + backend
	}
	return monitoring.NewCheck(name, func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if store == nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDown,
				Details:  "document store not configured",
				Duration: time.Since(start),
			}
		}
		return monitoring.ResultFromError(name, store.Ping(ctx), time.Since(start))
	})
}

// Registry reports degraded until every declared model has been compiled and
// the registry sealed.
func Registry(sealed func() bool, models func() []string) monitoring.Check {
	return monitoring.NewCheck("models", func(ctx context.Context) monitoring.ProbeResult {
		if sealed == nil || !sealed() {
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "model registry not sealed"}
		}
		if models != nil && len(models()) == 0 {
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "no models registered"}
		}
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	})
}
