package monitoring

import "time"

// Summary surfaces aggregated monitoring data for the operations endpoint.
type Summary struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Accounts    AccountSummary  `json:"accounts"`
	Entities    []EntitySummary `json:"entities"`
}

type AccountSummary struct {
	LoginSuccess uint64 `json:"login_success"`
	LoginFailure uint64 `json:"login_failure"`
	LoginError   uint64 `json:"login_error"`
	Lockouts     uint64 `json:"lockouts"`
}

type EntitySummary struct {
	Entity                string  `json:"entity"`
	Operations            uint64  `json:"operations"`
	Failures              uint64  `json:"failures"`
	ValidationFailures    uint64  `json:"validation_failures"`
	HookFailures          uint64  `json:"hook_failures"`
	LastHookError         string  `json:"last_hook_error,omitempty"`
	AverageLatencySeconds float64 `json:"average_latency_seconds"`
}

// Snapshot returns a point-in-time summary from the current module when configured.
func Snapshot() Summary {
	if module := ensureModule(); module != nil && module.stats != nil {
		return module.stats.summary()
	}
	return Summary{GeneratedAt: time.Now()}
}
