package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteMemory(t *testing.T) {
	db, err := Open(Config{Driver: "sqlite"})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Exec("SELECT 1").Error)
	require.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestOpenSQLiteFileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "estatehub.sqlite")

	db, err := Open(Config{Driver: "sqlite3", Path: path})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Exec("CREATE TABLE probe (id INTEGER)").Error)
	require.FileExists(t, path)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
}

func TestNormalizeDriver(t *testing.T) {
	require.Equal(t, "sqlite", NormalizeDriver(""))
	require.Equal(t, "postgres", NormalizeDriver(" PostgreSQL "))
	require.Equal(t, "mysql", NormalizeDriver("mariadb"))
	require.Equal(t, "mongodb", NormalizeDriver("MongoDB"))
}

func TestSQLiteDSN(t *testing.T) {
	dsn, memory, err := sqliteDSN(Config{Path: ":memory:"})
	require.NoError(t, err)
	require.True(t, memory)
	require.Equal(t, "file::memory:?cache=shared", dsn)

	path := filepath.Join(t.TempDir(), "data", "estatehub.sqlite")
	dsn, memory, err = sqliteDSN(Config{Path: path})
	require.NoError(t, err)
	require.False(t, memory)
	require.Contains(t, dsn, "_busy_timeout=5000")
	require.DirExists(t, filepath.Dir(path))
}
