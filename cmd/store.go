package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/worklog-cli/internal/store"
)

// initStore opens the configured backend. Statement preparation is skipped
// when prepare is false so that migrate can run against an empty database.
func initStore(ctx context.Context, prepare bool) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "worklog.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns:          cfg.Store.MaxConns,
			MinConns:          cfg.Store.MinConns,
			PrepareStatements: prepare,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
