package firecracker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/firecracker-microvm/firecracker-go-sdk/client/models"

	"github.com/maxdollinger/fireup/internal/runner"
)

type fakeClient struct {
	calls []string
}

func (f *fakeClient) PutLogger(ctx context.Context, logger *models.Logger) error {
	f.calls = append(f.calls, "logger")
	return nil
}

func (f *fakeClient) PutMachineConfiguration(ctx context.Context, cfg *models.MachineConfiguration) error {
	f.calls = append(f.calls, "machine-config")
	return nil
}

func (f *fakeClient) PutGuestBootSource(ctx context.Context, source *models.BootSource) error {
	f.calls = append(f.calls, "boot-source")
	return nil
}

func (f *fakeClient) PutGuestDriveByID(ctx context.Context, driveID string, drive *models.Drive) error {
	f.calls = append(f.calls, "drive:"+driveID)
	return nil
}

func (f *fakeClient) PutGuestNetworkInterfaceByID(ctx context.Context, ifaceID string, iface *models.NetworkInterface) error {
	f.calls = append(f.calls, "network-interface")
	return nil
}

func (f *fakeClient) CreateSyncAction(ctx context.Context, info *models.InstanceActionInfo) error {
	f.calls = append(f.calls, "instance-start")
	return nil
}

func TestConfigureRunsStepsInOrder(t *testing.T) {
	fake := &fakeClient{}
	d := &Driver{
		newClient:  func(socketPath string, debug bool) apiClient { return fake },
		skipDelays: true,
	}

	spec := Spec{
		SocketPath: "unused",
		LogPath:    "/tmp/fc.log",
		LogLevel:   "Error",
		Boot:       BootConfig{KernelImagePath: "/boot/vmlinux", BootArgs: "console=ttyS0"},
		Drives: []DriveConfig{
			{ID: "rootfs", PathOnHost: "/var/lib/fireup/rootfs.ext4", IsRootDevice: true, IsReadOnly: true},
			{ID: "extra", PathOnHost: "/var/lib/fireup/extra.ext4"},
		},
		Net:     NetConfig{IfaceID: "eth0", HostDevName: "tap0", MacAddress: "02:AB:CD:00:00:01"},
		Machine: MachineConfig{VCPUCount: 2, MemSizeMib: 512},
	}

	if err := d.Configure(context.Background(), spec); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	want := []string{"logger", "boot-source", "drive:rootfs", "drive:extra", "network-interface", "machine-config", "instance-start"}
	if len(fake.calls) != len(want) {
		t.Fatalf("got %d calls, want %d: %v", len(fake.calls), len(want), fake.calls)
	}
	for i, step := range want {
		if fake.calls[i] != step {
			t.Errorf("call %d = %q, want %q", i, fake.calls[i], step)
		}
	}
}

func TestWaitForSocketSucceedsOnceCreated(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "api.sock")

	go func() {
		time.Sleep(20 * time.Millisecond)
		f, _ := os.Create(sock)
		f.Close()
	}()

	if err := waitForSocket(context.Background(), sock, 20, 10*time.Millisecond); err != nil {
		t.Fatalf("waitForSocket: %v", err)
	}
}

func TestWaitForSocketTimesOut(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "never-created.sock")

	err := waitForSocket(context.Background(), sock, 3, 5*time.Millisecond)
	if err != ErrSocketTimeout {
		t.Fatalf("expected ErrSocketTimeout, got %v", err)
	}
}

func TestParsePID(t *testing.T) {
	pid, err := parsePID("12345")
	if err != nil {
		t.Fatalf("parsePID: %v", err)
	}
	if pid != 12345 {
		t.Errorf("got %d, want 12345", pid)
	}
}

func TestParsePIDRejectsNonNumeric(t *testing.T) {
	if _, err := parsePID("not-a-pid"); err == nil {
		t.Fatal("expected an error for non-numeric stdout")
	}
}

func TestSpawnRejectsExistingSocket(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "api.sock")
	if f, err := os.Create(sock); err != nil {
		t.Fatalf("create socket fixture: %v", err)
	} else {
		f.Close()
	}

	d := &Driver{BinaryPath: "sleep", Runner: runner.New()}
	if _, err := d.Spawn(context.Background(), sock); err == nil {
		t.Fatal("expected an error when the socket already exists")
	}
}

func TestSpawnReturnsRealPID(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "api.sock")
	d := &Driver{BinaryPath: "sleep", Runner: runner.New()}

	go func() {
		time.Sleep(20 * time.Millisecond)
		f, err := os.Create(sock)
		if err == nil {
			f.Close()
		}
	}()

	pid, err := d.Spawn(context.Background(), sock)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if pid <= 0 {
		t.Errorf("got pid %d, want a positive pid", pid)
	}
}
