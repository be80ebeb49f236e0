// Package db opens fireup's SQLite inventory and applies its migration
// ledger, then exposes typed repositories over it (see models/).
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed migration/*.sql
var migrationFiles embed.FS

// additivePrefixes names migrations whose failure mode "duplicate column
// name: X" (or "duplicate column name X" on older sqlite3 builds) is
// tolerated, because the column already exists from a prior run.
var additivePrefixes = []string{
	"002_", "003_", "004_",
}

// Open opens the SQLite file at path in WAL mode, creating it if missing,
// and applies every migration under migration/ in filename order.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite only tolerates a single writer; force the pool down to one
	// connection so WAL semantics match the single-writer assumption C3
	// relies on for short transactions.
	conn.SetMaxOpenConns(1)

	if err := applyMigrations(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}

func applyMigrations(ctx context.Context, conn *sql.DB) error {
	entries, err := migrationFiles.ReadDir("migration")
	if err != nil {
		return fmt.Errorf("read migration dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		script, err := migrationFiles.ReadFile("migration/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if err := applyScript(ctx, conn, name, string(script)); err != nil {
			return &MigrationFailedError{Script: name, Cause: err}
		}
	}

	return nil
}

func applyScript(ctx context.Context, conn *sql.DB, name, script string) error {
	additive := isAdditive(name)

	for _, stmt := range splitStatements(script) {
		if stmt == "" {
			continue
		}
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			if additive && isDuplicateColumnError(err) {
				continue
			}
			return err
		}
	}

	return nil
}

func isAdditive(name string) bool {
	for _, p := range additivePrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func isDuplicateColumnError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "duplicate column name")
}

func splitStatements(script string) []string {
	parts := strings.Split(script, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// MigrationFailedError wraps a non-additive migration failure.
type MigrationFailedError struct {
	Script string
	Cause  error
}

func (e *MigrationFailedError) Error() string {
	return fmt.Sprintf("migration %s failed: %v", e.Script, e.Cause)
}

func (e *MigrationFailedError) Unwrap() error {
	return e.Cause
}
