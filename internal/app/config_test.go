package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/estatehub/pkg/crypto"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, 20, cfg.Database.MaxOpenConns)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5433, cfg.Database.Postgres.Port)
	require.Equal(t, "estate", cfg.Database.Postgres.Username)
	require.Equal(t, map[string]string{"sslmode": "require"}, cfg.Database.Postgres.Options)
	require.Equal(t, "estatehub", cfg.Database.Mongo.Database)

	require.False(t, cfg.Schema.Timestamps)

	require.True(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/internal/metrics", cfg.Monitoring.Prometheus.Endpoint)
	require.Equal(t, 5*time.Second, cfg.Monitoring.Health.Timeout)

	require.Equal(t, 7, cfg.Auth.Local.LockoutThreshold)
	require.Equal(t, 20*time.Minute, cfg.Auth.Local.LockoutDuration)
	require.Equal(t, 12, cfg.Auth.Local.BcryptCost)
	require.Equal(t, 25, cfg.Auth.Local.LoginHistoryLimit)
	require.Equal(t, 32, cfg.Auth.Local.TokenBytes)
	require.Equal(t, 30*time.Minute, cfg.Auth.Local.ResetTokenTTL)

	require.True(t, cfg.Maintenance.Enabled)
	require.Equal(t, "@hourly", cfg.Maintenance.TokenSchedule)
	require.Equal(t, "@every 10m", cfg.Maintenance.LockSchedule)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "./data/estatehub.sqlite", cfg.Database.Path)
	require.True(t, cfg.Schema.Timestamps)
	require.Equal(t, 5, cfg.Auth.Local.LockoutThreshold)
	require.Equal(t, 15*time.Minute, cfg.Auth.Local.LockoutDuration)
	require.Equal(t, time.Hour, cfg.Auth.Local.ResetTokenTTL)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("ESTATEHUB_DATABASE_DRIVER", "mongodb")
	t.Setenv("ESTATEHUB_AUTH_LOCAL_LOCKOUT_THRESHOLD", "3")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "mongodb", cfg.Database.Driver)
	require.Equal(t, 3, cfg.Auth.Local.LockoutThreshold)
}

func TestAccountDeps(t *testing.T) {
	cfg := AuthConfig{
		Local: LocalAuthSettings{
			LockoutThreshold:  4,
			LockoutDuration:   10 * time.Minute,
			BcryptCost:        11,
			LoginHistoryLimit: 20,
			TokenBytes:        24,
			ResetTokenTTL:     2 * time.Hour,
		},
	}

	deps := cfg.AccountDeps()
	require.Equal(t, 4, deps.Lockout.Threshold)
	require.Equal(t, 10*time.Minute, deps.Lockout.Duration)
	require.Equal(t, 20, deps.HistoryLimit)
	require.Equal(t, 24, deps.TokenBytes)
	require.Equal(t, 2*time.Hour, deps.ResetTokenTTL)

	hasher, ok := deps.Hasher.(*crypto.BcryptHasher)
	require.True(t, ok)
	require.Equal(t, 11, hasher.Cost())
}

func TestAccountDepsFallback(t *testing.T) {
	var cfg AuthConfig

	deps := cfg.AccountDeps()
	require.Equal(t, defaultLockoutThreshold, deps.Lockout.Threshold)
	require.Equal(t, defaultLockoutDuration, deps.Lockout.Duration)
	require.Equal(t, crypto.DefaultCost, deps.Hasher.(*crypto.BcryptHasher).Cost())
}
