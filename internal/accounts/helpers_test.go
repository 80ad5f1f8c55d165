package accounts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/charlesng35/estatehub/internal/database/testutil"
	"github.com/charlesng35/estatehub/internal/docstore"
	"github.com/charlesng35/estatehub/internal/schema"
	"github.com/charlesng35/estatehub/pkg/crypto"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	repo  *Repository
	clock *testClock
	ctx   context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := docstore.NewSQLStore(context.Background(), testutil.MustOpenTestDB(t))
	require.NoError(t, err)

	clock := newTestClock()
	reg := schema.NewRegistry(store,
		schema.WithClock(clock.Now),
		schema.WithLogger(zap.NewNop()),
	)
	repo, err := Register(reg, Deps{
		Hasher: crypto.NewBcryptHasher(bcrypt.MinCost),
		Now:    clock.Now,
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)
	require.NoError(t, reg.SyncIndexes(context.Background()))

	return &fixture{repo: repo, clock: clock, ctx: context.Background()}
}

func validAccount(overrides bson.M) bson.M {
	values := bson.M{
		"username":  "jane_doe",
		"email":     "jane.doe@example.com",
		"password":  "Secret123",
		"firstName": "Jane",
		"lastName":  "Doe",
	}
	for key, value := range overrides {
		values[key] = value
	}
	return values
}

func (f *fixture) create(t *testing.T, overrides bson.M) *Account {
	t.Helper()
	account, err := f.repo.Create(f.ctx, validAccount(overrides))
	require.NoError(t, err)
	return account
}

// createActive stores an account and activates it so the default scoped
// finders can see it.
func (f *fixture) createActive(t *testing.T, overrides bson.M) *Account {
	t.Helper()
	account := f.create(t, overrides)
	activated, err := f.repo.ActivateUserByID(f.ctx, account.ID())
	require.NoError(t, err)
	return activated
}
