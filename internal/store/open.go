package store

import (
	"context"
	"fmt"

	"riseready-notifications/internal/common/config"
	"riseready-notifications/internal/common/database"
	"riseready-notifications/internal/common/logger"
)

// Open connects the backend selected by cfg.Driver and brings its schema up
// to date.
func Open(ctx context.Context, cfg config.StoreConfig, log logger.Logger) (Backend, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		client, err := database.NewPostgres(cfg.Postgres)
		if err != nil {
			return nil, err
		}
		if err := client.Ping(ctx); err != nil {
			client.Close()
			return nil, fmt.Errorf("postgres ping failed: %w", err)
		}
		s := NewSQLStore(client.DB)
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		log.Info("notification store ready", map[string]interface{}{"driver": cfg.Driver, "host": cfg.Postgres.Host})
		return s, nil

	case config.DriverSQLite:
		db, err := database.NewSQLite(cfg.SQLite)
		if err != nil {
			return nil, err
		}
		s := NewSQLStore(db)
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		log.Info("notification store ready", map[string]interface{}{"driver": cfg.Driver, "path": cfg.SQLite.Path})
		return s, nil

	case config.DriverMongo:
		client, err := database.NewMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		if err := client.Ping(ctx); err != nil {
			client.Close(ctx)
			return nil, err
		}
		s := NewMongoStore(client.Database)
		if err := s.EnsureIndexes(ctx); err != nil {
			// the app may own index management; carry on without ours
			log.Warn("could not ensure notification indexes", map[string]interface{}{"error": err.Error()})
		}
		log.Info("notification store ready", map[string]interface{}{"driver": cfg.Driver, "database": cfg.Mongo.Database})
		return s, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// NewTestStore returns a migrated in-memory SQLite store.
func NewTestStore(ctx context.Context) (*SQLStore, error) {
	db, err := database.NewSQLite(config.SQLiteConfig{Path: ":memory:"})
	if err != nil {
		return nil, err
	}
	s := NewSQLStore(db)
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}
