package lifecycle

import (
	"database/sql"
	"testing"

	"github.com/maxdollinger/fireup/internal/db/models"
)

func TestMergeFromRowPreservesIdentity(t *testing.T) {
	vm := &models.VirtualMachine{
		Name: "quiet-heron", Tap: "tap3", MacAddress: "02:AA:BB:CC:DD:EE",
		ApiSocket: "/tmp/quiet-heron.sock", Bridge: "fcbr0",
	}

	opts := UpOptions{Tap: "tap7"} // caller-supplied values must be overridden
	mergeFromRow(&opts, vm)

	if opts.Name != vm.Name {
		t.Errorf("name: got %q, want %q", opts.Name, vm.Name)
	}
	if opts.Tap != vm.Tap {
		t.Errorf("tap: got %q, want %q (restart must keep the original tap)", opts.Tap, vm.Tap)
	}
	if opts.MacAddress != vm.MacAddress {
		t.Errorf("mac: got %q, want %q", opts.MacAddress, vm.MacAddress)
	}
	if opts.ApiSocket != vm.ApiSocket {
		t.Errorf("api_socket: got %q, want %q", opts.ApiSocket, vm.ApiSocket)
	}
}

func TestMergeFromRowKeepsCallerSuppliedName(t *testing.T) {
	vm := &models.VirtualMachine{Name: "row-name", Tap: "tap1"}
	opts := UpOptions{Name: "caller-name"}
	mergeFromRow(&opts, vm)
	if opts.Name != "caller-name" {
		t.Errorf("got %q, want caller-supplied name preserved", opts.Name)
	}
}

func TestOptionsFromRowRoundTripsOverrides(t *testing.T) {
	vm := &models.VirtualMachine{
		Name: "vm1", Distro: "alpine", VCPU: 2, Memory: 512,
		Bridge: "fcbr0", Tap: "tap0", ApiSocket: "/tmp/vm1.sock",
		MacAddress:  "02:00:00:00:00:01",
		ProjectDir:  sql.NullString{String: "/home/user/proj", Valid: true},
		Vmlinux:     sql.NullString{String: "/var/lib/fireup/vmlinux", Valid: true},
		Rootfs:      sql.NullString{String: "/var/lib/fireup/rootfs.img", Valid: true},
		BootArgs:    sql.NullString{Valid: false},
	}

	opts := optionsFromRow(vm)

	if opts.ProjectDir != "/home/user/proj" {
		t.Errorf("project dir: got %q", opts.ProjectDir)
	}
	if opts.Vmlinux != "/var/lib/fireup/vmlinux" {
		t.Errorf("vmlinux: got %q", opts.Vmlinux)
	}
	if opts.Rootfs != "/var/lib/fireup/rootfs.img" {
		t.Errorf("rootfs: got %q", opts.Rootfs)
	}
	if opts.BootArgs != "" {
		t.Errorf("bootargs: got %q, want empty for a NULL column", opts.BootArgs)
	}
}

func TestJoinSSHKeys(t *testing.T) {
	got := joinSSHKeys([]string{"key-a", "key-b"})
	if got != "key-a,key-b" {
		t.Errorf("got %q", got)
	}
	if joinSSHKeys(nil) != "" {
		t.Errorf("want empty string for no keys")
	}
}
