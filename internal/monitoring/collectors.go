package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type collectors struct {
	modelOperations   *prometheus.CounterVec
	modelLatency      *prometheus.HistogramVec
	validationErrors  *prometheus.CounterVec
	hookFailures      *prometheus.CounterVec
	compiledModels    prometheus.Gauge
	indexSyncs        *prometheus.CounterVec
	loginAttempts     *prometheus.CounterVec
	accountLockouts   prometheus.Counter
	accountTransition *prometheus.CounterVec
	httpLatency       *prometheus.HistogramVec
}

func newCollectors(namespace string) *collectors {
	return &collectors{
		modelOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_operations_total",
				Help:      "Model operations grouped by entity, operation and result",
			},
			[]string{"entity", "operation", "result"},
		),
		modelLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "model_operation_duration_seconds",
				Help:      "Duration of model operations including hooks",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"entity", "operation"},
		),
		validationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_failures_total",
				Help:      "Documents rejected by schema validation",
			},
			[]string{"entity"},
		),
		hookFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hook_failures_total",
				Help:      "Lifecycle hooks that returned an error",
			},
			[]string{"entity", "event", "phase"},
		),
		compiledModels: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "compiled_models",
				Help:      "Number of models compiled into the registry",
			},
		),
		indexSyncs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "index_syncs_total",
				Help:      "Index synchronisations grouped by entity and result",
			},
			[]string{"entity", "result"},
		),
		loginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "login_attempts_total",
				Help:      "Password verifications grouped by result",
			},
			[]string{"result"},
		),
		accountLockouts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "account_lockouts_total",
				Help:      "Accounts locked after repeated failed logins",
			},
		),
		accountTransition: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "account_status_transitions_total",
				Help:      "Account status transitions",
			},
			[]string{"from", "to"},
		),
		httpLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Latency of ops HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}
}

func (c *collectors) all() []prometheus.Collector {
	return []prometheus.Collector{
		c.modelOperations,
		c.modelLatency,
		c.validationErrors,
		c.hookFailures,
		c.compiledModels,
		c.indexSyncs,
		c.loginAttempts,
		c.accountLockouts,
		c.accountTransition,
		c.httpLatency,
	}
}

// observeDuration records a duration in seconds on the supplied histogram observer.
func observeDuration(observer prometheus.Observer, d time.Duration) {
	if observer == nil {
		return
	}
	if d < 0 {
		d = 0
	}
	observer.Observe(d.Seconds())
}
