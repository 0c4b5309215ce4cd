// Package postgres holds the sqlx-backed repositories. Queries are written
// with ? placeholders and rebound, so the same code runs on lib/pq and on
// the embedded sqlite driver.
package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"hypolab/adapters/postgres/migrations"
)

// Connect opens a pool with the given driver ("postgres" or "sqlite") without migrating
func Connect(ctx context.Context, driver, url string, maxOpenConns int) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, driver, url)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to connect to %s database", driver)
	}
	if driver == "sqlite" {
		// one connection keeps an in-memory database alive and serializes writers
		db.SetMaxOpenConns(1)
	} else if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	return db, nil
}

// Open connects and applies pending migrations
func Open(ctx context.Context, driver, url string, maxOpenConns int, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := Connect(ctx, driver, url, maxOpenConns)
	if err != nil {
		return nil, err
	}
	if err := migrations.NewMigrator(db, logger).Up(ctx); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "failed to migrate database")
	}
	return db, nil
}
