package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/maxdollinger/fireup/internal/db/models"
	"github.com/maxdollinger/fireup/internal/network"
	"github.com/maxdollinger/fireup/internal/runner"
)

// Stop kills the VM's firecracker process, tears down its tap device, and
// marks the row STOPPED. It is not an error to stop an already-stopped VM.
func (c *Controller) Stop(ctx context.Context, name string) error {
	vm, err := c.VMs.Find(ctx, name)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &VmNotFoundError{Name: name}
		}
		return &DatabaseError{Op: "find vm", Cause: err}
	}

	if vm.PID.Valid && isRunning(ctx, c.Runner, int(vm.PID.Int64)) {
		if err := c.FC.Stop(ctx, int(vm.PID.Int64), vm.ApiSocket); err != nil {
			c.logger.WarnContext(ctx, "failed to stop firecracker process", "name", name, "error", err)
		}
	}

	if err := network.DestroyTAP(vm.Tap); err != nil {
		c.logger.WarnContext(ctx, "failed to destroy tap device", "name", name, "tap", vm.Tap, "error", err)
	}

	if err := c.VMs.UpdateStatus(ctx, vm.ID, models.StatusStopped); err != nil {
		return &DatabaseError{Op: "update vm status", Cause: err}
	}
	return nil
}

// Start re-runs Up with the options rehydrated from an existing row, so a
// restarted VM keeps its tap, mac, and api_socket (spec.md §8).
func (c *Controller) Start(ctx context.Context, name string) (*models.VirtualMachine, error) {
	vm, err := c.VMs.Find(ctx, name)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, &VmNotFoundError{Name: name}
		}
		return nil, &DatabaseError{Op: "find vm", Cause: err}
	}

	return c.Up(ctx, optionsFromRow(vm))
}

// Restart stops then starts a VM.
func (c *Controller) Restart(ctx context.Context, name string) (*models.VirtualMachine, error) {
	if err := c.Stop(ctx, name); err != nil {
		return nil, err
	}
	return c.Start(ctx, name)
}

// Rm stops the VM if running, tears down its tap, and deletes its row.
func (c *Controller) Rm(ctx context.Context, name string) error {
	var notFound *VmNotFoundError
	if err := c.Stop(ctx, name); err != nil && !errors.As(err, &notFound) {
		return err
	}

	if err := c.VMs.Delete(ctx, name); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &VmNotFoundError{Name: name}
		}
		return &DatabaseError{Op: "delete vm", Cause: err}
	}
	return nil
}

// Reset removes packaged rootfs images so the next Up repackages them.
// When name is empty, every *.img in the state dir is removed; otherwise
// only the <distro>-rootfs.img of that VM's distro is (per SPEC_FULL.md
// §12's per-VM-vs-all-images distinction).
func (c *Controller) Reset(ctx context.Context, name string) error {
	if name == "" {
		matches, err := filepath.Glob(filepath.Join(c.StateDir, "*.img"))
		if err != nil {
			return err
		}
		for _, m := range matches {
			if err := os.RemoveAll(m); err != nil {
				return err
			}
		}
		return nil
	}

	vm, err := c.VMs.Find(ctx, name)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &VmNotFoundError{Name: name}
		}
		return &DatabaseError{Op: "find vm", Cause: err}
	}

	return os.RemoveAll(filepath.Join(c.StateDir, vm.Distro+"-rootfs.img"))
}

// Status reconciles the row against host reality before returning it: a
// RUNNING row whose firecracker process is gone is flipped to STOPPED
// in-place (SPEC_FULL.md §12's is_running/vm_is_running supplemented
// feature).
func (c *Controller) Status(ctx context.Context, name string) (*models.VirtualMachine, error) {
	vm, err := c.VMs.Find(ctx, name)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, &VmNotFoundError{Name: name}
		}
		return nil, &DatabaseError{Op: "find vm", Cause: err}
	}

	if vm.Status == models.StatusRunning && !vmIsRunning(ctx, c.Runner, vm) {
		if err := c.VMs.UpdateStatus(ctx, vm.ID, models.StatusStopped); err != nil {
			return nil, &DatabaseError{Op: "update vm status", Cause: err}
		}
		vm.Status = models.StatusStopped
	}

	return vm, nil
}

// SSHCommand returns the argv fireup's CLI front-end should exec to reach
// the guest. Actually invoking ssh is out of scope for this package (the
// CLI layer owns stdio passthrough); this only resolves the target.
func (c *Controller) SSHCommand(ctx context.Context, name string) ([]string, error) {
	vm, err := c.VMs.Find(ctx, name)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, &VmNotFoundError{Name: name}
		}
		return nil, &DatabaseError{Op: "find vm", Cause: err}
	}

	if vm.Status != models.StatusRunning {
		return nil, fmt.Errorf("%w: vm %s is not running", ErrConfigInvalid, name)
	}

	return []string{"ssh", "-i", c.StateDir + "/id_rsa", "root@" + vm.Name + ".firecracker"}, nil
}

// isRunning probes whether pid still belongs to a live firecracker process
// (spec.md's supplemented is_running feature: "pgrep -x firecracker").
func isRunning(ctx context.Context, r *runner.Runner, pid int) bool {
	res, err := r.Run(ctx, false, runner.Capture, "pgrep", "-x", "firecracker")
	if err != nil {
		return false
	}
	return containsPID(res.Stdout, pid)
}

// vmIsRunning additionally checks the VM's own api_socket still exists, so
// a process reuse of the same PID by an unrelated program isn't mistaken
// for this VM still being up.
func vmIsRunning(ctx context.Context, r *runner.Runner, vm *models.VirtualMachine) bool {
	if !vm.PID.Valid {
		return false
	}
	if _, err := os.Stat(vm.ApiSocket); err != nil {
		return false
	}
	return isRunning(ctx, r, int(vm.PID.Int64))
}

func containsPID(pgrepOutput string, pid int) bool {
	target := fmt.Sprintf("%d", pid)
	for _, line := range splitLines(pgrepOutput) {
		if line == target {
			return true
		}
	}
	return false
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// optionsFromRow rebuilds the UpOptions a prior Up call would have
// produced, so Start can re-enter the same pipeline.
func optionsFromRow(vm *models.VirtualMachine) UpOptions {
	opts := UpOptions{
		Name:       vm.Name,
		Distro:     vm.Distro,
		VCPU:       vm.VCPU,
		Memory:     vm.Memory,
		Bridge:     vm.Bridge,
		Tap:        vm.Tap,
		ApiSocket:  vm.ApiSocket,
		MacAddress: vm.MacAddress,
	}
	if vm.ProjectDir.Valid {
		opts.ProjectDir = vm.ProjectDir.String
	}
	if vm.Vmlinux.Valid {
		opts.Vmlinux = vm.Vmlinux.String
	}
	if vm.Rootfs.Valid {
		opts.Rootfs = vm.Rootfs.String
	}
	if vm.BootArgs.Valid {
		opts.BootArgs = vm.BootArgs.String
	}
	return opts
}
