package monitoring

import (
	"strconv"
	"strings"
	"time"
)

// RecordModelOperation counts a model operation and observes its latency.
func RecordModelOperation(entity, operation, result string, duration time.Duration) {
	module := ensureModule()
	if module == nil {
		return
	}
	entity = normalizeEntity(entity)
	operation = normalizeLabel(operation)
	result = normalizeLabel(result)

	module.metrics.modelOperations.WithLabelValues(entity, operation, result).Inc()
	observeDuration(module.metrics.modelLatency.WithLabelValues(entity, operation), duration)
	module.stats.entity(entity).recordOperation(result, duration)
}

// RecordValidationFailure counts a document rejected by validation.
func RecordValidationFailure(entity string) {
	module := ensureModule()
	if module == nil {
		return
	}
	entity = normalizeEntity(entity)
	module.metrics.validationErrors.WithLabelValues(entity).Inc()
	module.stats.entity(entity).validationFailures.Add(1)
}

// RecordHookFailure counts a lifecycle hook that returned an error.
func RecordHookFailure(entity, event, phase, message string) {
	module := ensureModule()
	if module == nil {
		return
	}
	entity = normalizeEntity(entity)
	module.metrics.hookFailures.WithLabelValues(entity, normalizeLabel(event), normalizeLabel(phase)).Inc()
	module.stats.entity(entity).recordHookFailure(strings.TrimSpace(message))
}

// RecordModelCompiled bumps the compiled model gauge.
func RecordModelCompiled(entity string) {
	module := ensureModule()
	if module == nil {
		return
	}
	module.metrics.compiledModels.Inc()
	module.stats.entity(normalizeEntity(entity))
}

// RecordIndexSync counts an index synchronisation for entity.
func RecordIndexSync(entity, result string) {
	module := ensureModule()
	if module == nil {
		return
	}
	module.metrics.indexSyncs.WithLabelValues(normalizeEntity(entity), normalizeLabel(result)).Inc()
}

// RecordLoginAttempt counts a password verification outcome.
func RecordLoginAttempt(result string) {
	module := ensureModule()
	if module == nil {
		return
	}
	label := normalizeLabel(result)
	module.metrics.loginAttempts.WithLabelValues(label).Inc()
	module.stats.recordLogin(label)
}

// RecordAccountLockout counts an account crossing the failed login threshold.
func RecordAccountLockout() {
	module := ensureModule()
	if module == nil {
		return
	}
	module.metrics.accountLockouts.Inc()
	module.stats.lockouts.Add(1)
}

// RecordStatusTransition counts an account status change.
func RecordStatusTransition(from, to string) {
	module := ensureModule()
	if module == nil {
		return
	}
	module.metrics.accountTransition.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

// RecordHTTPRequest observes the latency of an ops endpoint request.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	module := ensureModule()
	if module == nil {
		return
	}
	observeDuration(module.metrics.httpLatency.WithLabelValues(strings.ToUpper(method), path, strconv.Itoa(status)), duration)
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}
	return value
}

// normalizeEntity keeps the model name casing since entities are registered by name.
func normalizeEntity(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
