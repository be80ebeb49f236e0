package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/maxdollinger/fireup/internal/db/models"
	fc "github.com/maxdollinger/fireup/internal/firecracker"
	"github.com/maxdollinger/fireup/internal/image"
	"github.com/maxdollinger/fireup/internal/network"
	"github.com/maxdollinger/fireup/internal/runner"
	"github.com/maxdollinger/fireup/pkg/utils"
)

const defaultBootArgs = "console=ttyS0 reboot=k panic=1 pci=off ip=dhcp"

// dhcpLeaseTimeout bounds the guest DHCP wait per spec.md §5's "at least
// 60s" recommendation; without it a guest that never DHCPs hangs Up forever.
const dhcpLeaseTimeout = 60 * time.Second

// Up creates or re-starts a microVM following the eight-step sequence from
// spec.md §4.7: identity reconciliation, tap/mac/socket allocation, fabric
// bring-up, image assembly, hypervisor spawn/configure, DHCP wait, SSH
// reconcile, and inventory write.
func (c *Controller) Up(ctx context.Context, opts UpOptions) (*models.VirtualMachine, error) {
	vm, err := c.reconcileIdentity(ctx, &opts)
	if err != nil {
		return nil, err
	}

	if err := c.allocateIdentity(ctx, &opts, vm); err != nil {
		return nil, err
	}

	if err := network.EnsureFabric(ctx, c.Runner, c.fabricOptions(opts.Bridge)); err != nil {
		return nil, fmt.Errorf("ensure network fabric: %w", err)
	}
	if err := network.EnsureTAP(opts.Tap, opts.Bridge); err != nil {
		return nil, fmt.Errorf("ensure tap %s: %w", opts.Tap, err)
	}

	kernelPath, rootfsPath, err := c.ensureImage(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("ensure image: %w", err)
	}

	pid, err := c.spawnAndConfigure(ctx, opts, kernelPath, rootfsPath)
	if err != nil {
		return nil, err
	}

	dhcpCtx, cancel := context.WithTimeout(ctx, dhcpLeaseTimeout)
	ip, err := network.WaitForDHCPLease(dhcpCtx, c.Runner, network.MQTTBroker)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("await guest dhcp lease: %w", err)
	}

	if len(c.EtcdEndpoints) > 0 {
		if err := network.PublishSkydnsRecord(ctx, c.EtcdEndpoints, opts.Name, ip); err != nil {
			c.logger.WarnContext(ctx, "failed to publish skydns record", "name", opts.Name, "error", err)
		}
	}

	if opts.Distro != string(image.NixOS) {
		c.reconcileGuestResolvConf(ctx, opts.Name)
	}

	return c.writeInventory(ctx, vm, opts, pid, kernelPath, rootfsPath, ip)
}

// reconcileIdentity implements step 1: locate a prior VM by project_dir,
// then by api_socket, else treat as new.
func (c *Controller) reconcileIdentity(ctx context.Context, opts *UpOptions) (*models.VirtualMachine, error) {
	if opts.ProjectDir != "" {
		vm, err := c.VMs.FindByProjectDir(ctx, opts.ProjectDir)
		if err == nil {
			mergeFromRow(opts, vm)
			return vm, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, &DatabaseError{Op: "find vm by project dir", Cause: err}
		}
	}

	if opts.ApiSocket != "" {
		vm, err := c.VMs.FindByApiSocket(ctx, opts.ApiSocket)
		if err == nil {
			mergeFromRow(opts, vm)
			return vm, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, &DatabaseError{Op: "find vm by api socket", Cause: err}
		}
	}

	return nil, nil
}

// mergeFromRow fills in identity fields from a prior row so restarts keep
// tap/mac/api_socket stable (spec.md §8's "universal invariant").
func mergeFromRow(opts *UpOptions, vm *models.VirtualMachine) {
	if opts.Name == "" {
		opts.Name = vm.Name
	}
	opts.Tap = vm.Tap
	opts.MacAddress = vm.MacAddress
	opts.ApiSocket = vm.ApiSocket
	if opts.Bridge == "" {
		opts.Bridge = vm.Bridge
	}
}

// allocateIdentity implements step 2.
func (c *Controller) allocateIdentity(ctx context.Context, opts *UpOptions, existing *models.VirtualMachine) error {
	if opts.Bridge == "" {
		opts.Bridge = network.DefaultBridge
	}

	if opts.Arch == "" {
		opts.Arch = "x86_64"
		if runtime.GOARCH == "arm64" {
			opts.Arch = "aarch64"
		}
	}

	if opts.Name == "" {
		name, err := c.generateUniqueName(ctx)
		if err != nil {
			return err
		}
		opts.Name = name
	}

	selfID := ""
	if existing != nil {
		selfID = existing.ID
	}

	if opts.Tap != "" {
		if err := validateExplicitTap(ctx, c.VMs, opts.Tap, selfID); err != nil {
			return err
		}
	} else {
		tap, err := c.allocateTapWithRetry(ctx)
		if err != nil {
			return err
		}
		opts.Tap = tap
	}

	if opts.MacAddress == "" {
		mac, err := network.GenerateMACAddress()
		if err != nil {
			return fmt.Errorf("generate mac address: %w", err)
		}
		opts.MacAddress = mac
	}

	if opts.ApiSocket == "" {
		opts.ApiSocket = filepath.Join("/tmp", "firecracker-"+opts.Name+".sock")
	}

	return nil
}

func (c *Controller) generateUniqueName(ctx context.Context) (string, error) {
	for i := 0; i < 20; i++ {
		name, err := GenerateName()
		if err != nil {
			return "", err
		}
		if _, err := c.VMs.Find(ctx, name); errors.Is(err, models.ErrNotFound) {
			return name, nil
		}
	}
	return "", fmt.Errorf("could not generate a unique vm name after 20 attempts")
}

// allocateTapWithRetry picks a tap with allocateTap, then re-reads the
// inventory and retries, up to tapRetryLimit times, if another row already
// holds that tap. A uniqueness violation raised later by the inventory
// write in writeInventory is returned as an error and is not retried.
func (c *Controller) allocateTapWithRetry(ctx context.Context) (string, error) {
	var lastErr error
	for i := 0; i < tapRetryLimit; i++ {
		tap, err := allocateTap(ctx, c.VMs)
		if err != nil {
			return "", err
		}
		if err := validateExplicitTap(ctx, c.VMs, tap, ""); err == nil {
			return tap, nil
		} else {
			lastErr = err
		}
	}
	return "", fmt.Errorf("allocate tap after %d retries: %w", tapRetryLimit, lastErr)
}

// ensureImage implements step 4: skip C4 entirely when both a kernel and a
// rootfs path were supplied as overrides (fire.toml's vmlinux/rootfs keys).
func (c *Controller) ensureImage(ctx context.Context, opts UpOptions) (kernelPath, rootfsPath string, err error) {
	if opts.Vmlinux != "" && opts.Rootfs != "" {
		return opts.Vmlinux, opts.Rootfs, nil
	}

	preparer, err := c.Images.Preparer(image.Distro(opts.Distro))
	if err != nil {
		return "", "", err
	}

	artifact, err := preparer.Prepare(ctx, image.Options{
		Distro:         image.Distro(opts.Distro),
		Arch:           opts.Arch,
		StateDir:       c.StateDir,
		KernelOverride: opts.Vmlinux,
		SSHKeys:        opts.SSHKeys,
	})
	if err != nil {
		return "", "", err
	}

	kernelPath = artifact.KernelPath
	rootfsPath = artifact.RootfsImagePath
	if opts.Vmlinux != "" {
		kernelPath = opts.Vmlinux
	}
	if opts.Rootfs != "" {
		rootfsPath = opts.Rootfs
	}
	return kernelPath, rootfsPath, nil
}

// spawnAndConfigure implements step 5 (C6).
func (c *Controller) spawnAndConfigure(ctx context.Context, opts UpOptions, kernelPath, rootfsPath string) (int, error) {
	pid, err := c.FC.Spawn(ctx, opts.ApiSocket)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrHypervisorStartTimeout, err)
	}

	bootArgs := opts.BootArgs
	if bootArgs == "" {
		bootArgs = defaultBootArgs
		if opts.Arch == "aarch64" {
			bootArgs = "keep_bootcon " + bootArgs
		}
	}

	spec := fc.Spec{
		SocketPath: opts.ApiSocket,
		LogPath:    filepath.Join(c.StateDir, "logs", "firecracker-"+opts.Name+".log"),
		LogLevel:   "Debug",
		Boot:       fc.BootConfig{KernelImagePath: kernelPath, BootArgs: bootArgs},
		Drives: []fc.DriveConfig{
			{ID: "rootfs", PathOnHost: rootfsPath, IsRootDevice: true, IsReadOnly: false},
		},
		Net: fc.NetConfig{IfaceID: "eth0", HostDevName: opts.Tap, MacAddress: opts.MacAddress},
		Machine: fc.MachineConfig{
			VCPUCount:  int64(opts.VCPU),
			MemSizeMib: int64(opts.Memory),
		},
	}

	if err := c.FC.Configure(ctx, spec); err != nil {
		_ = c.FC.Stop(ctx, pid, opts.ApiSocket)
		return 0, err
	}

	return pid, nil
}

// reconcileGuestResolvConf implements step 7: best-effort, non-fatal per
// spec.md §7 ("Guest-reconcile SSH failures after the retry budget are
// warnings, not failures").
func (c *Controller) reconcileGuestResolvConf(ctx context.Context, name string) {
	host := name + ".firecracker"
	keyPath := filepath.Join(c.StateDir, "id_rsa")

	var lastErr error
	for i := 0; i < 500; i++ {
		_, err := c.Runner.Run(ctx, false, runner.Capture, "ssh",
			"-i", keyPath,
			"-o", "StrictHostKeyChecking=no",
			"-o", "ConnectTimeout=1",
			"root@"+host,
			"echo nameserver "+network.BridgeIP+" > /etc/resolv.conf")
		if err == nil {
			return
		}
		lastErr = err

		select {
		case <-ctx.Done():
			c.logger.WarnContext(ctx, "resolv.conf reconcile cancelled", "name", name, "error", ctx.Err())
			return
		case <-time.After(100 * time.Millisecond):
		}
	}

	c.logger.WarnContext(ctx, "resolv.conf reconcile gave up, vm still reachable by dns name", "name", name, "error", lastErr)
}

// writeInventory implements step 8.
func (c *Controller) writeInventory(ctx context.Context, existing *models.VirtualMachine, opts UpOptions, pid int, kernelPath, rootfsPath, ip string) (*models.VirtualMachine, error) {
	vm := &models.VirtualMachine{
		Name:       opts.Name,
		Status:     models.StatusRunning,
		VCPU:       opts.VCPU,
		Memory:     opts.Memory,
		Distro:     opts.Distro,
		PID:        sql.NullInt64{Int64: int64(pid), Valid: true},
		MacAddress: opts.MacAddress,
		Bridge:     opts.Bridge,
		Tap:        opts.Tap,
		ApiSocket:  opts.ApiSocket,
		ProjectDir: nullableString(opts.ProjectDir),
		IPAddress:  nullableString(ip),
		Vmlinux:    nullableString(kernelPath),
		Rootfs:     nullableString(rootfsPath),
		BootArgs:   nullableString(opts.BootArgs),
		SSHKeys:    nullableString(joinSSHKeys(opts.SSHKeys)),
	}

	if existing != nil {
		vm.ID = existing.ID
		if err := c.VMs.Update(ctx, vm); err != nil {
			return nil, &DatabaseError{Op: "update vm", Cause: err}
		}
		return vm, nil
	}

	id, err := utils.NewUUID7()
	if err != nil {
		return nil, fmt.Errorf("generate vm id: %w", err)
	}
	vm.ID = id

	if err := c.VMs.Create(ctx, vm); err != nil {
		return nil, &DatabaseError{Op: "create vm", Cause: err}
	}
	return vm, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// joinSSHKeys comma-joins keys for the virtual_machines.ssh_keys column
// (spec.md:51), distinct from the newline-joined authorized_keys file
// content internal/image/ssh.go writes into the guest image.
func joinSSHKeys(keys []string) string {
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += ","
		}
		out += k
	}
	return out
}
