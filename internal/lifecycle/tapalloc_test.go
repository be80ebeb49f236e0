package lifecycle

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/maxdollinger/fireup/internal/db"
	"github.com/maxdollinger/fireup/internal/db/models"
	"github.com/maxdollinger/fireup/internal/network"
)

func openTestDB(t *testing.T) *models.VMRepository {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fireup.db")
	conn, err := db.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return models.NewVMRepository(conn)
}

func mustCreateVM(t *testing.T, vms *models.VMRepository, name, tap string) {
	t.Helper()
	vm := &models.VirtualMachine{
		ID: name, Name: name, Tap: tap, MacAddress: fmt.Sprintf("02:00:00:00:00:%02x", name[len(name)-1]),
		ApiSocket: "/tmp/" + name + ".sock", Bridge: network.DefaultBridge,
		VCPU: 1, Memory: 512, Distro: "alpine",
	}
	if err := vms.Create(context.Background(), vm); err != nil {
		t.Fatalf("create vm %s: %v", name, err)
	}
}

func TestAllocateTapStartsAtZero(t *testing.T) {
	vms := openTestDB(t)
	tap, err := allocateTap(context.Background(), vms)
	if err != nil {
		t.Fatalf("allocateTap: %v", err)
	}
	if tap != "tap0" {
		t.Errorf("got %q, want tap0", tap)
	}
}

func TestAllocateTapSkipsFirstUnused(t *testing.T) {
	vms := openTestDB(t)
	mustCreateVM(t, vms, "vm-a", "tap0")
	mustCreateVM(t, vms, "vm-b", "tap1")

	tap, err := allocateTap(context.Background(), vms)
	if err != nil {
		t.Fatalf("allocateTap: %v", err)
	}
	if tap != "tap2" {
		t.Errorf("got %q, want tap2", tap)
	}
}

func TestAllocateTapProbesPastGap(t *testing.T) {
	vms := openTestDB(t)
	mustCreateVM(t, vms, "vm-a", "tap0")
	mustCreateVM(t, vms, "vm-b", "tap1")
	mustCreateVM(t, vms, "vm-c", "tap2")
	// Delete vm-b to leave a hole at tap1. The probe does not reuse it,
	// since it starts counting from len(tap-prefixed rows), not the lowest
	// free slot.
	_ = vms.Delete(context.Background(), "vm-b")

	tap, err := allocateTap(context.Background(), vms)
	if err != nil {
		t.Fatalf("allocateTap: %v", err)
	}
	// Starting index derives from the remaining tap-count (2: tap0, tap2),
	// so the probe begins at tap2, finds it taken, and advances to tap3.
	if tap != "tap3" {
		t.Errorf("got %q, want tap3", tap)
	}
}

func TestValidateExplicitTapRejectsCollisionWithOtherVM(t *testing.T) {
	vms := openTestDB(t)
	mustCreateVM(t, vms, "vm-a", "tap5")

	err := validateExplicitTap(context.Background(), vms, "tap5", "")
	if err != network.ErrTapInUse {
		t.Errorf("got %v, want ErrTapInUse", err)
	}
}

func TestValidateExplicitTapAllowsSelfReuse(t *testing.T) {
	vms := openTestDB(t)
	mustCreateVM(t, vms, "vm-a", "tap5")

	err := validateExplicitTap(context.Background(), vms, "tap5", "vm-a")
	if err != nil {
		t.Errorf("self-reuse should be allowed, got %v", err)
	}
}
