package monitoring

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type statStore struct {
	loginSuccess atomic.Uint64
	loginFailure atomic.Uint64
	loginError   atomic.Uint64
	lockouts     atomic.Uint64

	entities sync.Map // string -> *entityStats
}

func newStatStore() *statStore {
	return &statStore{}
}

func (s *statStore) entity(name string) *entityStats {
	if existing, ok := s.entities.Load(name); ok {
		return existing.(*entityStats)
	}
	stats, _ := s.entities.LoadOrStore(name, &entityStats{})
	return stats.(*entityStats)
}

func (s *statStore) recordLogin(result string) {
	switch result {
	case "success":
		s.loginSuccess.Add(1)
	case "failure":
		s.loginFailure.Add(1)
	default:
		s.loginError.Add(1)
	}
}

func (s *statStore) summary() Summary {
	entities := []EntitySummary{}
	s.entities.Range(func(key, value any) bool {
		entities = append(entities, value.(*entityStats).snapshot(key.(string)))
		return true
	})
	sort.Slice(entities, func(i, j int) bool { return entities[i].Entity < entities[j].Entity })

	return Summary{
		GeneratedAt: time.Now(),
		Accounts: AccountSummary{
			LoginSuccess: s.loginSuccess.Load(),
			LoginFailure: s.loginFailure.Load(),
			LoginError:   s.loginError.Load(),
			Lockouts:     s.lockouts.Load(),
		},
		Entities: entities,
	}
}

type entityStats struct {
	mu                 sync.Mutex
	operations         uint64
	failures           uint64
	totalLatency       time.Duration
	lastHookError      string
	hookFailures       uint64
	validationFailures atomic.Uint64
}

func (e *entityStats) recordOperation(result string, duration time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.operations++
	if result != "success" {
		e.failures++
	}
	if duration > 0 {
		e.totalLatency += duration
	}
}

func (e *entityStats) recordHookFailure(message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hookFailures++
	if message != "" {
		e.lastHookError = message
	}
}

func (e *entityStats) snapshot(name string) EntitySummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	var avg float64
	if e.operations > 0 {
		avg = e.totalLatency.Seconds() / float64(e.operations)
	}
	return EntitySummary{
		Entity:                name,
		Operations:            e.operations,
		Failures:              e.failures,
		ValidationFailures:    e.validationFailures.Load(),
		HookFailures:          e.hookFailures,
		LastHookError:         e.lastHookError,
		AverageLatencySeconds: avg,
	}
}
