package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/estatehub/internal/accounts"
	"github.com/charlesng35/estatehub/internal/api"
	"github.com/charlesng35/estatehub/internal/app"
	"github.com/charlesng35/estatehub/internal/app/maintenance"
	"github.com/charlesng35/estatehub/internal/database"
	"github.com/charlesng35/estatehub/internal/docstore"
	"github.com/charlesng35/estatehub/internal/listings"
	"github.com/charlesng35/estatehub/internal/monitoring"
	"github.com/charlesng35/estatehub/internal/monitoring/checks"
	"github.com/charlesng35/estatehub/internal/schema"
	"github.com/charlesng35/estatehub/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	Store    docstore.Store
	Monitor  *monitoring.Module
	Registry *schema.Registry
	Accounts *accounts.Repository
	Listings *listings.Repository
	Cleaner  *maintenance.Cleaner
	Router   *gin.Engine
}

// bootstrapRuntime opens the document store, compiles every model and builds
// the ops router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			_ = stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mode
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.Monitor, err = monitoring.NewModule(monitoring.Options{Namespace: cfg.Monitoring.Namespace})
	if err != nil {
		return nil, fmt.Errorf("initialise monitoring: %w", err)
	}
	monitoring.SetModule(stack.Monitor)
	stack.Monitor.Health().SetTimeout(cfg.Monitoring.Health.Timeout)

	stack.Store, err = initialiseStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	stack.Registry = schema.NewRegistry(stack.Store,
		schema.WithSchemaDefaults(schema.SchemaOptions{Timestamps: cfg.Schema.Timestamps}),
		schema.WithLogger(logger.WithModule("schema")),
	)

	stack.Accounts, err = accounts.Register(stack.Registry, cfg.Auth.AccountDeps())
	if err != nil {
		return nil, fmt.Errorf("register account model: %w", err)
	}

	stack.Listings, err = listings.Register(stack.Registry, listings.Deps{Logger: logger.WithModule("listings")})
	if err != nil {
		return nil, fmt.Errorf("register listing model: %w", err)
	}

	stack.Registry.Seal()
	if err := stack.Registry.SyncIndexes(ctx); err != nil {
		return nil, fmt.Errorf("sync indexes: %w", err)
	}
	log.Info("models compiled", zap.Strings("models", stack.Registry.Names()))

	health := stack.Monitor.Health()
	health.RegisterReadiness(checks.DocumentStore(stack.Store, cfg.Database.Driver))
	health.RegisterReadiness(checks.Registry(stack.Registry.Sealed, stack.Registry.Names))

	if cfg.Maintenance.Enabled {
		stack.Cleaner = maintenance.NewCleaner(stack.Accounts,
			maintenance.WithTokenSchedule(cfg.Maintenance.TokenSchedule),
			maintenance.WithLockSchedule(cfg.Maintenance.LockSchedule),
		)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	stack.Router, err = api.NewRouter(api.Options{
		Config:  cfg,
		Monitor: stack.Monitor,
		Models:  stack.Registry.Names,
	})
	if err != nil {
		return nil, fmt.Errorf("build ops router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown stops background jobs, then closes the registry and its store.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) error {
	if s == nil {
		return nil
	}

	var errs error
	if s.Cleaner != nil {
		select {
		case <-s.Cleaner.Stop().Done():
		case <-ctx.Done():
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	switch {
	case s.Registry != nil:
		errs = multierr.Append(errs, s.Registry.Close(ctx))
	case s.Store != nil:
		errs = multierr.Append(errs, s.Store.Close(ctx))
	}

	if errs != nil {
		log.Warn("document store shutdown", zap.Error(errs))
	}
	return errs
}

func initialiseStore(ctx context.Context, cfg *app.Config) (docstore.Store, error) {
	storeCfg := convertDatabaseConfig(cfg)
	store, err := docstore.Open(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}

	logger.WithModule("database").Info("document store connected", zap.String("driver", storeCfg.Driver))
	return store, nil
}

func convertDatabaseConfig(cfg *app.Config) docstore.Config {
	db := cfg.Database
	storeCfg := docstore.Config{
		Driver: strings.ToLower(strings.TrimSpace(db.Driver)),
		SQL: database.Config{
			Path:         strings.TrimSpace(db.Path),
			DSN:          strings.TrimSpace(db.DSN),
			MaxOpenConns: db.MaxOpenConns,
			LogLevel:     db.LogLevel,
		},
	}

	var auth *app.DBAuthConfig
	switch storeCfg.Driver {
	case "", "sqlite":
		storeCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		storeCfg.Driver = "postgres"
		auth = &db.Postgres
	case "mysql":
		auth = &db.MySQL
	case "mongodb", "mongo":
		storeCfg.Driver = "mongodb"
		storeCfg.MongoURI = strings.TrimSpace(db.Mongo.URI)
		storeCfg.MongoDatabase = strings.TrimSpace(db.Mongo.Database)
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	if auth != nil {
		storeCfg.SQL.Host = strings.TrimSpace(auth.Host)
		storeCfg.SQL.Port = auth.Port
		storeCfg.SQL.Name = strings.TrimSpace(auth.Database)
		storeCfg.SQL.User = strings.TrimSpace(auth.Username)
		storeCfg.SQL.Password = auth.Password
		storeCfg.SQL.Options = auth.Options
	}

	return storeCfg
}
