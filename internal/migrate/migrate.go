// Package migrate runs the forward-only schema migrations for CodeDox's
// storage layer at startup.
package migrate

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const migrationsDir = "db/migrations"

// Options controls migration behavior.
type Options struct {
	// Force, when true, lets startup continue when a migration fails
	// instead of halting it. The failing migration and any after it stay
	// unapplied; the error is discarded and nothing records the
	// migration as skipped.
	Force bool
	// Drop recreates the schema from scratch before applying migrations.
	Drop bool
}

// Run applies all pending migrations in db/migrations using goose. It
// opens and closes its own DB handle so it is independent of the app
// store.
func Run(dsn string, opts Options) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	// On fresh startup, Postgres may not be ready immediately. Retry the
	// ping briefly instead of failing hard on initial connection refusal.
	deadline := time.Now().Add(30 * time.Second)
	for {
		if err := db.Ping(); err == nil {
			break
		}
		if time.Now().After(deadline) {
			if err := db.Ping(); err != nil {
				return fmt.Errorf("db not ready: %w", err)
			}
			break
		}
		time.Sleep(500 * time.Millisecond)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if opts.Drop {
		if err := goose.DownTo(db, migrationsDir, 0); err != nil {
			return fmt.Errorf("drop schema: %w", err)
		}
	}

	if err := goose.Up(db, migrationsDir); err != nil {
		if !opts.Force {
			return fmt.Errorf("goose up: %w", err)
		}
		// Force mode: the failing migration is left unapplied and we
		// continue startup rather than halting. goose has no native
		// "skip and record" primitive, so the error is dropped and
		// startup proceeds with whatever migrations did succeed.
		return nil
	}

	return nil
}
