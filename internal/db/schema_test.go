package db

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenAppliesMigrationsIdempotently(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	conn, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	conn.Close()

	// Re-opening (and thus re-applying every migration) against the same
	// file must not fail even though the additive ALTER TABLE statements
	// now collide with existing columns.
	conn2, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer conn2.Close()

	rows, err := conn2.QueryContext(ctx, `PRAGMA table_info(virtual_machines)`)
	if err != nil {
		t.Fatalf("table_info: %v", err)
	}
	defer rows.Close()

	cols := map[string]bool{}
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			t.Fatalf("scan: %v", err)
		}
		cols[name] = true
	}

	for _, want := range []string{"ip_address", "vmlinux", "rootfs", "bootargs", "ssh_keys"} {
		if !cols[want] {
			t.Errorf("missing column %s after migrations", want)
		}
	}
}

func TestOpenCreatesDrivesTable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	conn, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `SELECT id FROM drives LIMIT 1`); err != nil {
		t.Fatalf("drives table not created: %v", err)
	}
}
