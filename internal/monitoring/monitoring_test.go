package monitoring_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/estatehub/internal/monitoring"
	"github.com/charlesng35/estatehub/internal/monitoring/checks"
)

func setupModule(t *testing.T) *monitoring.Module {
	t.Helper()

	mod, err := monitoring.NewModule(monitoring.Options{DisableGoCollector: true, DisableProcessCollector: true})
	require.NoError(t, err)
	monitoring.SetModule(mod)
	t.Cleanup(monitoring.ResetModule)
	return mod
}

func TestSnapshotAggregatesEntityStats(t *testing.T) {
	mod := setupModule(t)

	monitoring.RecordModelCompiled("Account")
	monitoring.RecordModelOperation("Account", "save", "success", 10*time.Millisecond)
	monitoring.RecordModelOperation("Account", "save", "error", 30*time.Millisecond)
	monitoring.RecordValidationFailure("Account")
	monitoring.RecordHookFailure("Account", "save", "pre", "boom")
	monitoring.RecordLoginAttempt("success")
	monitoring.RecordLoginAttempt("failure")
	monitoring.RecordAccountLockout()

	summary := monitoring.Snapshot()
	require.Len(t, summary.Entities, 1)

	account := summary.Entities[0]
	require.Equal(t, "Account", account.Entity)
	require.EqualValues(t, 2, account.Operations)
	require.EqualValues(t, 1, account.Failures)
	require.EqualValues(t, 1, account.ValidationFailures)
	require.EqualValues(t, 1, account.HookFailures)
	require.Equal(t, "boom", account.LastHookError)
	require.InDelta(t, 0.02, account.AverageLatencySeconds, 0.0001)

	require.EqualValues(t, 1, summary.Accounts.LoginSuccess)
	require.EqualValues(t, 1, summary.Accounts.LoginFailure)
	require.EqualValues(t, 1, summary.Accounts.Lockouts)

	count, err := testutil.GatherAndCount(mod.Registry(), "estatehub_account_lockouts_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestInstrumentationIsNoopWithoutModule(t *testing.T) {
	monitoring.ResetModule()

	require.NotPanics(t, func() {
		monitoring.RecordModelOperation("Account", "find", "success", time.Millisecond)
		monitoring.RecordAccountLockout()
	})
	require.Empty(t, monitoring.Snapshot().Entities)
}

func TestHealthManagerEvaluate(t *testing.T) {
	manager := monitoring.NewHealthManager()
	manager.RegisterReadiness(monitoring.NewCheck("docstore", func(ctx context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}))
	manager.RegisterReadiness(monitoring.NewCheck("mongodb", func(ctx context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "connection refused"}
	}))

	report := manager.EvaluateReadiness(context.Background())
	require.False(t, report.Success)
	require.Equal(t, monitoring.StatusDown, report.Status)
	require.Len(t, report.Checks, 2)
	require.Equal(t, []string{"docstore", "mongodb"}, manager.ReadinessChecks())
}

func TestHealthManagerRecoversPanics(t *testing.T) {
	manager := monitoring.NewHealthManager()
	manager.RegisterLiveness(monitoring.NewCheck("broken", func(ctx context.Context) monitoring.ProbeResult {
		panic("probe exploded")
	}))

	report := manager.EvaluateLiveness(context.Background())
	require.Equal(t, monitoring.StatusDown, report.Status)
	require.Equal(t, "broken", report.Checks[0].Component)
	require.Equal(t, "probe exploded", report.Checks[0].Details)
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestDocumentStoreCheck(t *testing.T) {
	up := checks.DocumentStore(stubPinger{}, "sqlite").Run(context.Background())
	require.Equal(t, monitoring.StatusUp, up.Status)

	down := checks.DocumentStore(stubPinger{err: errors.New("closed")}, "sqlite").Run(context.Background())
	require.Equal(t, monitoring.StatusDown, down.Status)
	require.Equal(t, "closed", down.Details)

	slow := checks.DocumentStore(stubPinger{err: context.DeadlineExceeded}, "").Run(context.Background())
	require.Equal(t, monitoring.StatusDegraded, slow.Status)
}

func TestRegistryCheck(t *testing.T) {
	unsealed := checks.Registry(func() bool { return false }, nil).Run(context.Background())
	require.Equal(t, monitoring.StatusDegraded, unsealed.Status)

	ready := checks.Registry(func() bool { return true }, func() []string { return []string{"Account"} }).Run(context.Background())
	require.Equal(t, monitoring.StatusUp, ready.Status)
}

func TestModuleRegistersUptimeLiveness(t *testing.T) {
	mod := setupModule(t)

	report := mod.Health().EvaluateLiveness(context.Background())
	require.True(t, report.Success)
	require.Len(t, report.Checks, 1)
	require.Equal(t, "uptime", report.Checks[0].Component)
}

func TestModuleHandlerServesNamespacedSeries(t *testing.T) {
	mod, err := monitoring.NewModule(monitoring.Options{Namespace: "listings", DisableGoCollector: true, DisableProcessCollector: true})
	require.NoError(t, err)
	monitoring.SetModule(mod)
	t.Cleanup(monitoring.ResetModule)

	monitoring.RecordStatusTransition("active", "locked")

	rec := httptest.NewRecorder()
	mod.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `listings_account_status_transitions_total{from="active",to="locked"} 1`)
}

func TestNilModuleHandlerIsUnavailable(t *testing.T) {
	var mod *monitoring.Module
	rec := httptest.NewRecorder()
	mod.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
