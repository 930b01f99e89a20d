package storage

import (
	"context"
	"database/sql"
	"fmt"
)

type dialect struct {
	name           string
	migrationTable string
	registerQuery  string
}

var (
	postgresDialect = dialect{
		name: "postgres",
		migrationTable: `CREATE TABLE IF NOT EXISTS migration
("id" SERIAL PRIMARY KEY, "query" TEXT)`,
		registerQuery: `INSERT INTO migration (query) VALUES ($1)`,
	}
	sqliteDialect = dialect{
		name: "sqlite",
		migrationTable: `CREATE TABLE IF NOT EXISTS migration
("id" INTEGER PRIMARY KEY AUTOINCREMENT, "query" TEXT)`,
		registerQuery: `INSERT INTO migration (query) VALUES (?)`,
	}
)

// migrate applies the queries in wanted that are not yet recorded in the
// migration table. Each query runs in its own transaction together with its
// registration.
func migrate(ctx context.Context, db *sql.DB, d dialect, wanted []string) error {
	if _, err := db.ExecContext(ctx, d.migrationTable); err != nil {
		return fmt.Errorf("create %s migration table: %w", d.name, err)
	}

	// find existing
	rows, err := db.QueryContext(ctx, `SELECT query FROM migration ORDER BY id`)
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	existing := []string{}
	for rows.Next() {
		var query string
		if err := rows.Scan(&query); err != nil {
			rows.Close()
			return fmt.Errorf("scan migration: %w", err)
		}
		existing = append(existing, query)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("list migrations: %w", err)
	}
	rows.Close()

	// compare
	missing, err := compareMigrations(wanted, existing)
	if err != nil {
		return err
	}

	// execute missing
	for _, query := range missing {
		err := withTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, query); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, d.registerQuery, query)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply %s migration: %w", d.name, err)
		}
	}

	return nil
}

func compareMigrations(wanted, existing []string) ([]string, error) {
	needed := []string{}
	if len(wanted) < len(existing) {
		return []string{}, fmt.Errorf("not enough migrations")
	}

	for i, want := range wanted {
		switch {
		case i >= len(existing):
			needed = append(needed, want)
		case want == existing[i]:
			// do nothing
		case want != existing[i]:
			return []string{}, fmt.Errorf("incompatible migration: %v", want)
		}
	}

	return needed, nil
}

// withTx runs fn in a transaction and rolls back when fn fails.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
