package app

import (
	"time"

	"github.com/charlesng35/estatehub/internal/accounts"
	"github.com/charlesng35/estatehub/pkg/crypto"
)

const (
	defaultLockoutThreshold = 5
	defaultLockoutDuration  = 15 * time.Minute
)

// AccountDeps converts the local auth settings into account behaviour
// dependencies. Clock, randomness and logger are left to their defaults.
func (c AuthConfig) AccountDeps() accounts.Deps {
	duration := c.Local.LockoutDuration
	if duration <= 0 {
		duration = defaultLockoutDuration
	}

	threshold := c.Local.LockoutThreshold
	if threshold <= 0 {
		threshold = defaultLockoutThreshold
	}

	return accounts.Deps{
		Hasher: crypto.NewBcryptHasher(c.Local.BcryptCost),
		Lockout: accounts.LockoutPolicy{
			Threshold: threshold,
			Duration:  duration,
		},
		HistoryLimit:  c.Local.LoginHistoryLimit,
		TokenBytes:    c.Local.TokenBytes,
		ResetTokenTTL: c.Local.ResetTokenTTL,
	}
}
