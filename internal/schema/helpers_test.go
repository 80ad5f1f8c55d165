package schema

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/estatehub/internal/database/testutil"
	"github.com/charlesng35/estatehub/internal/docstore"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *docstore.SQLStore {
	t.Helper()
	store, err := docstore.NewSQLStore(context.Background(), testutil.MustOpenTestDB(t))
	require.NoError(t, err)
	return store
}

func newTestCompiler(t *testing.T) *Compiler {
	t.Helper()
	return NewCompiler(newTestStore(t),
		WithClock(func() time.Time { return fixedNow }),
		WithLogger(zap.NewNop()),
	)
}

func mustCompile(t *testing.T, c *Compiler, name string, cfg *ModelConfig) *Model {
	t.Helper()
	m, err := c.Compile(name, cfg)
	require.NoError(t, err)
	require.NoError(t, m.SyncIndexes(context.Background()))
	return m
}
