package ledger

import (
	"context"
	"embed"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies every migrations/*.sql file in lexical order, each file
// inside its own transaction, tracking progress in a migrations_applied
// table so repeated calls are a no-op once caught up. The
// teacher ships hand-written SQL through sqlc rather than a migration
// framework; this keeps that spirit without adding a new dependency.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS migrations_applied (
			name        TEXT PRIMARY KEY,
			applied_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return errors.Wrap(err, "ledger: create migrations_applied table")
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return errors.Wrap(err, "ledger: read embedded migrations")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var alreadyApplied bool
		if err := pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM migrations_applied WHERE name = $1)`, name).Scan(&alreadyApplied); err != nil {
			return errors.Wrapf(err, "ledger: check migration %s", name)
		}
		if alreadyApplied {
			continue
		}

		sql, err := migrationFiles.ReadFile("migrations/" + name)
		if err != nil {
			return errors.Wrapf(err, "ledger: read migration %s", name)
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return errors.Wrap(err, "ledger: begin migration transaction")
		}
		if _, err := tx.Exec(ctx, string(sql)); err != nil {
			_ = tx.Rollback(ctx)
			return errors.Wrapf(err, "ledger: apply migration %s", name)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO migrations_applied (name) VALUES ($1)`, name); err != nil {
			_ = tx.Rollback(ctx)
			return errors.Wrapf(err, "ledger: record migration %s", name)
		}
		if err := tx.Commit(ctx); err != nil {
			return errors.Wrapf(err, "ledger: commit migration %s", name)
		}
	}
	return nil
}
