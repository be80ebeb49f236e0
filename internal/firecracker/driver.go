package firecracker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/firecracker-microvm/firecracker-go-sdk/client/models"

	"github.com/maxdollinger/fireup/internal/runner"
)

// Driver spawns and configures Firecracker microVM processes over their
// Unix-socket control API. Grounded on the teacher's
// internal/runtime/firecracker.go process-spawn/healthcheck pattern,
// generalized from the teacher's single-JSON-config launch to the
// spec's explicit two-phase spawn-then-PUT-sequence flow.
type Driver struct {
	BinaryPath string
	Runner     *runner.Runner

	// newClient is overridable in tests to substitute a fake apiClient
	// instead of dialing a real Unix socket.
	newClient func(socketPath string, debug bool) apiClient

	// skipDelays disables the settle/boot sleeps in Configure; set by tests.
	skipDelays bool
}

// NewDriver defaults BinaryPath to "firecracker" (resolved on PATH by the
// runner) unless FIREUP_FIRECRACKER_BIN overrides it.
func NewDriver(r *runner.Runner) *Driver {
	bin := os.Getenv("FIREUP_FIRECRACKER_BIN")
	if bin == "" {
		bin = "firecracker"
	}
	return &Driver{
		BinaryPath: bin,
		Runner:     r,
		newClient:  func(socketPath string, debug bool) apiClient { return newSDKClient(socketPath, debug) },
	}
}

// Spawn starts the firecracker process bound to socketPath and waits for
// the control socket to appear. It does not configure the VM; callers
// should follow with Configure.
func (d *Driver) Spawn(ctx context.Context, socketPath string) (pid int, err error) {
	if _, err := os.Stat(socketPath); err == nil {
		return 0, fmt.Errorf("api socket %s already exists", socketPath)
	}

	result, err := d.Runner.Run(ctx, false, runner.Background, d.BinaryPath, "--api-sock", socketPath)
	if err != nil {
		return 0, fmt.Errorf("spawn firecracker: %w", err)
	}

	if err := waitForSocket(ctx, socketPath, 100, 500*time.Millisecond); err != nil {
		return 0, err
	}

	return parsePID(result.Stdout)
}

// parsePID extracts the PID runner.Background stuffs into Result.Stdout as
// a decimal string (internal/runner/runner.go's runBackground).
func parsePID(stdout string) (int, error) {
	pid, err := strconv.Atoi(stdout)
	if err != nil {
		return 0, fmt.Errorf("parse firecracker pid from %q: %w", stdout, err)
	}
	return pid, nil
}

// waitForSocket polls up to attempts*interval for socketPath to appear,
// matching spec.md §4.6's bounded 100x500ms poll.
func waitForSocket(ctx context.Context, socketPath string, attempts int, interval time.Duration) error {
	for i := 0; i < attempts; i++ {
		if _, err := os.Stat(socketPath); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return ErrSocketTimeout
}

// Configure runs the full PUT sequence spec.md §4.6 requires, in order:
// logger, boot source, each drive, the network interface, machine config,
// then InstanceStart. A short sleep before InstanceStart and a longer one
// after it match the Open Question decision recorded in SPEC_FULL.md §13.2.
func (d *Driver) Configure(ctx context.Context, spec Spec) error {
	client := d.newClient(spec.SocketPath, false)

	if err := errWrap("logger", client.PutLogger(ctx, &models.Logger{
		LogPath: strPtr(spec.LogPath),
		Level:   strPtr(spec.LogLevel),
	})); err != nil {
		return err
	}

	if err := errWrap("boot-source", client.PutGuestBootSource(ctx, &models.BootSource{
		KernelImagePath: strPtr(spec.Boot.KernelImagePath),
		BootArgs:        spec.Boot.BootArgs,
	})); err != nil {
		return err
	}

	for _, drv := range spec.Drives {
		if err := errWrap("drive:"+drv.ID, client.PutGuestDriveByID(ctx, drv.ID, &models.Drive{
			DriveID:      strPtr(drv.ID),
			PathOnHost:   strPtr(drv.PathOnHost),
			IsRootDevice: boolPtr(drv.IsRootDevice),
			IsReadOnly:   boolPtr(drv.IsReadOnly),
		})); err != nil {
			return err
		}
	}

	if err := errWrap("network-interface", client.PutGuestNetworkInterfaceByID(ctx, spec.Net.IfaceID, &models.NetworkInterface{
		IfaceID:     strPtr(spec.Net.IfaceID),
		HostDevName: strPtr(spec.Net.HostDevName),
		GuestMac:    spec.Net.MacAddress,
	})); err != nil {
		return err
	}

	if err := errWrap("machine-config", client.PutMachineConfiguration(ctx, &models.MachineConfiguration{
		VcpuCount:  int64Ptr(spec.Machine.VCPUCount),
		MemSizeMib: int64Ptr(spec.Machine.MemSizeMib),
		Smt:        boolPtr(false),
	})); err != nil {
		return err
	}

	// Firecracker needs a brief moment to settle guest device configuration
	// before accepting the start action.
	if err := d.sleep(ctx, 15*time.Millisecond); err != nil {
		return err
	}

	if err := errWrap("instance-start", client.CreateSyncAction(ctx, &models.InstanceActionInfo{
		ActionType: models.InstanceActionInfoActionTypeInstanceStart,
	})); err != nil {
		return err
	}

	// Guest boot isn't synchronous with InstanceStart returning; give the
	// kernel time to bring up networking before the DHCP wait begins.
	return d.sleep(ctx, 2*time.Second)
}

func (d *Driver) sleep(ctx context.Context, dur time.Duration) error {
	if d.skipDelays {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(dur):
	}
	return nil
}

// Stop sends SIGKILL to pid and removes the control socket. Firecracker has
// no graceful-shutdown API call exposed for forceful termination, so this
// mirrors the teacher's process-signal based Stop.
func (d *Driver) Stop(ctx context.Context, pid int, socketPath string) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAlreadyDead, err)
	}

	if err := proc.Kill(); err != nil {
		return fmt.Errorf("kill firecracker pid %d: %w", pid, err)
	}

	_ = os.Remove(socketPath)
	return nil
}

// StopAll kills every firecracker process on the host and removes leftover
// api sockets, used by the daemon at startup to reconcile orphans (spec.md
// §4.9, SPEC_FULL.md §12).
func (d *Driver) StopAll(ctx context.Context) error {
	_, _ = d.Runner.Run(ctx, true, runner.Capture, "pkill", "-x", "firecracker")

	matches, err := filepath.Glob("/tmp/firecracker-*.sock")
	if err != nil {
		return err
	}
	for _, m := range matches {
		_ = os.Remove(m)
	}
	return nil
}
