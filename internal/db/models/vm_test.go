package models

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	fcdb "github.com/maxdollinger/fireup/internal/db"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dir := t.TempDir()
	conn, err := fcdb.Open(context.Background(), filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestVMCreateFindUpdate(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	repo := NewVMRepository(conn)

	vm := &VirtualMachine{
		ID:         "vm-1",
		Name:       "alpha",
		VCPU:       2,
		Memory:     1024,
		Distro:     "ubuntu",
		MacAddress: "02:00:00:00:00:01",
		Bridge:     "fcbr0",
		Tap:        "tap0",
		ApiSocket:  "/tmp/firecracker-alpha.sock",
	}

	if err := repo.Create(ctx, vm); err != nil {
		t.Fatalf("create: %v", err)
	}

	found, err := repo.Find(ctx, "alpha")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.Status != StatusRunning {
		t.Fatalf("status = %s, want RUNNING", found.Status)
	}
	if found.Tap != "tap0" {
		t.Fatalf("tap = %s, want tap0", found.Tap)
	}

	found.IPAddress = sql.NullString{String: "172.16.0.2", Valid: true}
	found.Status = StatusStopped
	if err := repo.Update(ctx, found); err != nil {
		t.Fatalf("update: %v", err)
	}

	reloaded, err := repo.Find(ctx, "vm-1")
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if reloaded.Status != StatusStopped {
		t.Fatalf("status after update = %s, want STOPPED", reloaded.Status)
	}
	if !reloaded.IPAddress.Valid || reloaded.IPAddress.String != "172.16.0.2" {
		t.Fatalf("ip address not persisted: %+v", reloaded.IPAddress)
	}
	// id and tap/mac survive restarts unchanged across an update that only
	// touches status/ip_address.
	if reloaded.ID != "vm-1" || reloaded.Tap != "tap0" || reloaded.MacAddress != vm.MacAddress {
		t.Fatalf("identity fields drifted: %+v", reloaded)
	}
}

func TestVMFindMissing(t *testing.T) {
	ctx := context.Background()
	repo := NewVMRepository(openTestDB(t))

	if _, err := repo.Find(ctx, "nope"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateAllStatusReconcilesOrphans(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	repo := NewVMRepository(conn)

	for _, name := range []string{"a", "b"} {
		vm := &VirtualMachine{
			ID: name, Name: name, Bridge: "fcbr0", Distro: "ubuntu", VCPU: 1, Memory: 512,
			Tap: "tap-" + name, MacAddress: "02:00:00:00:00:0" + name,
			ApiSocket: "/tmp/firecracker-" + name + ".sock",
		}
		if err := repo.Create(ctx, vm); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	if err := repo.UpdateAllStatus(ctx, StatusStopped); err != nil {
		t.Fatalf("update all status: %v", err)
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, vm := range all {
		if vm.Status != StatusStopped {
			t.Fatalf("vm %s status = %s, want STOPPED", vm.Name, vm.Status)
		}
	}
}
