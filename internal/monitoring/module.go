package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promcollectors "github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options control monitoring module configuration.
type Options struct {
	// Namespace configures the Prometheus namespace. Defaults to "estatehub".
	Namespace string
	// DisableGoCollector skips registration of the Go runtime collector when true.
	DisableGoCollector bool
	// DisableProcessCollector skips registration of the process collector when true.
	DisableProcessCollector bool
}

// Module owns the Prometheus registry, the per-entity statistics and the health probes.
type Module struct {
	registry  *prometheus.Registry
	metrics   *collectors
	stats     *statStore
	health    *HealthManager
	startedAt time.Time
}

// NewModule builds a module with its own registry. The returned module
// already carries an uptime liveness probe; readiness probes are added by
// the caller once the document store and registry exist.
func NewModule(opts Options) (*Module, error) {
	namespace := strings.TrimSpace(opts.Namespace)
	if namespace == "" {
		namespace = "estatehub"
	}

	registry := prometheus.NewRegistry()
	var runtime []prometheus.Collector
	if !opts.DisableGoCollector {
		runtime = append(runtime, promcollectors.NewGoCollector())
	}
	if !opts.DisableProcessCollector {
		runtime = append(runtime, promcollectors.NewProcessCollector(promcollectors.ProcessCollectorOpts{Namespace: namespace}))
	}

	metrics := newCollectors(namespace)
	for _, collector := range append(runtime, metrics.all()...) {
		if err := registry.Register(collector); err != nil {
			return nil, fmt.Errorf("monitoring: register collector: %w", err)
		}
	}

	module := &Module{
		registry:  registry,
		metrics:   metrics,
		stats:     newStatStore(),
		health:    NewHealthManager(),
		startedAt: time.Now(),
	}
	module.health.RegisterLiveness(NewCheck("uptime", func(context.Context) ProbeResult {
		return ProbeResult{Status: StatusUp, Details: time.Since(module.startedAt).Truncate(time.Second).String()}
	}))
	return module, nil
}

// Registry exposes the underlying Prometheus registry.
func (m *Module) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves this module's registry. Scrape failures surface as HTTP 500
// and are counted by promhttp itself.
func (m *Module) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.InstrumentMetricHandler(m.registry, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry:      m.registry,
		ErrorHandling: promhttp.HTTPErrorOnError,
	}))
}

// Health exposes the health manager responsible for liveness and readiness probes.
func (m *Module) Health() *HealthManager {
	if m == nil {
		return nil
	}
	return m.health
}

var globalModule atomic.Pointer[Module]

// SetModule configures the process-wide monitoring module used by instrumentation helpers.
func SetModule(module *Module) {
	if module == nil {
		return
	}
	globalModule.Store(module)
}

// ResetModule clears the process-wide module. Tests use it to isolate state.
func ResetModule() {
	globalModule.Store(nil)
}

func ensureModule() *Module {
	return globalModule.Load()
}
