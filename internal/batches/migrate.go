package batches

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5"

	"voicebatch-platform/pkg/logger"
	"voicebatch-platform/pkg/utils"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const migrationLockID = 5120417

// Migrate applies embedded SQL migrations not yet recorded in
// schema_migrations, in filename order. All of it runs in one transaction
// holding a transaction-scoped advisory lock, so the lock is released on
// commit or rollback by the same session that took it.
func Migrate(ctx context.Context, db utils.DB) error {
	log := logger.From(ctx).With("component", "batches.migrate")

	names, err := migrationNames()
	if err != nil {
		return err
	}

	return utils.WithTx(ctx, db, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockID); err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}

		if _, err := tx.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
    filename   TEXT        PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
			return fmt.Errorf("ensure schema_migrations: %w", err)
		}

		applied, err := appliedMigrations(ctx, tx)
		if err != nil {
			return err
		}

		for _, name := range names {
			if applied[name] {
				continue
			}
			data, err := migrationFS.ReadFile("migrations/" + name)
			if err != nil {
				return fmt.Errorf("read migration %s: %w", name, err)
			}
			if _, err := tx.Exec(ctx, string(data)); err != nil {
				return fmt.Errorf("apply migration %s: %w", name, err)
			}
			if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (filename) VALUES ($1)", name); err != nil {
				return fmt.Errorf("record migration %s: %w", name, err)
			}
			log.Info("migration applied", "file", name)
		}
		return nil
	})
}

func migrationNames() ([]string, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migration dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func appliedMigrations(ctx context.Context, db utils.DB) (map[string]bool, error) {
	rows, err := db.Query(ctx, "SELECT filename FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan migration row: %w", err)
		}
		applied[name] = true
	}
	return applied, rows.Err()
}
