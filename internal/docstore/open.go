package docstore

import (
	"context"
	"fmt"

	"github.com/charlesng35/estatehub/internal/database"
)

// Config selects and configures a backend.
type Config struct {
	Driver        string
	SQL           database.Config
	MongoURI      string
	MongoDatabase string
}

// Open returns the backend named by cfg.Driver. "mongodb" selects MongoStore,
// every relational driver selects SQLStore.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch driver := database.NormalizeDriver(cfg.Driver); driver {
	case "mongodb", "mongo":
		return OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case "sqlite", "postgres", "mysql":
		sqlCfg := cfg.SQL
		sqlCfg.Driver = driver
		db, err := database.Open(sqlCfg)
		if err != nil {
			return nil, fmt.Errorf("docstore: open %s: %w", driver, err)
		}
		store, err := NewSQLStore(ctx, db)
		if err != nil {
			if sqlDB, dbErr := db.DB(); dbErr == nil {
				_ = sqlDB.Close()
			}
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("docstore: unsupported driver %q", cfg.Driver)
	}
}
