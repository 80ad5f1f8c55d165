package accounts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/charlesng35/estatehub/internal/schema"
)

func TestPurgeExpiredResetTokens(t *testing.T) {
	f := newFixture(t)
	expired := f.createActive(t, nil)
	_, err := expired.GeneratePasswordResetToken(f.ctx)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	fresh := f.create(t, bson.M{"username": "john", "email": "john@example.com"})
	_, err = fresh.GeneratePasswordResetToken(f.ctx)
	require.NoError(t, err)

	cleaned, err := f.repo.PurgeExpiredResetTokens(f.ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, cleaned)

	selectToken := schema.Select("+security.auth.passwordResetToken")
	gone, err := f.repo.Model().FindOne(f.ctx, bson.M{"username": "jane_doe"}, selectToken)
	require.NoError(t, err)
	assert.Empty(t, gone.String("security.auth.passwordResetToken"))

	kept, err := f.repo.Model().FindOne(f.ctx, bson.M{"username": "john", "accountStatus": "pending"}, selectToken)
	require.NoError(t, err)
	assert.NotEmpty(t, kept.String("security.auth.passwordResetToken"))
}

func TestReleaseExpiredLocks(t *testing.T) {
	f := newFixture(t)
	account := f.createActive(t, nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, account.IncrementFailedLogins(f.ctx))
	}
	require.True(t, account.IsLocked())

	cleaned, err := f.repo.ReleaseExpiredLocks(f.ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, cleaned, "active locks are kept")

	f.clock.Advance(20 * time.Minute)
	cleaned, err = f.repo.ReleaseExpiredLocks(f.ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, cleaned)

	reloaded, err := f.repo.FindByUsername(f.ctx, "jane_doe")
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.FailedLoginAttempts())
	_, locked := reloaded.LockUntil()
	assert.False(t, locked)
}
