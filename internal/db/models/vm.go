// Package models holds fireup's persistent entities and their SQLite-backed
// repositories.
package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by a repository lookup that matches no row.
var ErrNotFound = errors.New("not found")

// Status is the lifecycle state of a VirtualMachine row.
type Status string

const (
	StatusRunning Status = "RUNNING"
	StatusStopped Status = "STOPPED"
	StatusDeleted Status = "DELETED"
)

// VirtualMachine is the canonical entity described in spec.md §3.
type VirtualMachine struct {
	ID         string
	Name       string
	Status     Status
	VCPU       int
	Memory     int
	Distro     string
	PID        sql.NullInt64
	MacAddress string
	Bridge     string
	Tap        string
	ApiSocket  string
	ProjectDir sql.NullString
	IPAddress  sql.NullString
	Vmlinux    sql.NullString
	Rootfs     sql.NullString
	BootArgs   sql.NullString
	SSHKeys    sql.NullString
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// VMRepository is the typed read/write primitive set from spec.md §4.3.
type VMRepository struct {
	db *sql.DB
}

func NewVMRepository(db *sql.DB) *VMRepository {
	return &VMRepository{db: db}
}

const vmColumns = `id, name, status, vcpu, memory, distro, pid, mac_address, bridge, tap,
	api_socket, project_dir, ip_address, vmlinux, rootfs, bootargs, ssh_keys,
	created_at, updated_at`

func scanVM(row interface{ Scan(...any) error }) (*VirtualMachine, error) {
	var vm VirtualMachine
	var created, updated string

	err := row.Scan(
		&vm.ID, &vm.Name, &vm.Status, &vm.VCPU, &vm.Memory, &vm.Distro, &vm.PID,
		&vm.MacAddress, &vm.Bridge, &vm.Tap, &vm.ApiSocket, &vm.ProjectDir,
		&vm.IPAddress, &vm.Vmlinux, &vm.Rootfs, &vm.BootArgs, &vm.SSHKeys,
		&created, &updated,
	)
	if err != nil {
		return nil, err
	}

	vm.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	vm.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)

	return &vm, nil
}

// List returns every VM row, newest first.
func (r *VMRepository) List(ctx context.Context) ([]*VirtualMachine, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+vmColumns+` FROM virtual_machines ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list vms: %w", err)
	}
	defer rows.Close()

	var out []*VirtualMachine
	for rows.Next() {
		vm, err := scanVM(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vm: %w", err)
		}
		out = append(out, vm)
	}
	return out, rows.Err()
}

// Find looks a VM up by name or id, whichever matches.
func (r *VMRepository) Find(ctx context.Context, nameOrID string) (*VirtualMachine, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+vmColumns+` FROM virtual_machines WHERE name = ? OR id = ?`,
		nameOrID, nameOrID)
	vm, err := scanVM(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find vm %s: %w", nameOrID, err)
	}
	return vm, nil
}

// FindByProjectDir returns the VM bound to a project directory, if any.
func (r *VMRepository) FindByProjectDir(ctx context.Context, dir string) (*VirtualMachine, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+vmColumns+` FROM virtual_machines WHERE project_dir = ?`, dir)
	vm, err := scanVM(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find vm by project dir %s: %w", dir, err)
	}
	return vm, nil
}

// FindByApiSocket returns the VM bound to a given Firecracker API socket path.
func (r *VMRepository) FindByApiSocket(ctx context.Context, socket string) (*VirtualMachine, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+vmColumns+` FROM virtual_machines WHERE api_socket = ?`, socket)
	vm, err := scanVM(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find vm by api socket %s: %w", socket, err)
	}
	return vm, nil
}

// Create inserts vm, assigning status RUNNING. The caller must already have
// assigned vm.ID (see pkg/utils.NewUUID7).
func (r *VMRepository) Create(ctx context.Context, vm *VirtualMachine) error {
	vm.Status = StatusRunning

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO virtual_machines (
			id, name, status, vcpu, memory, distro, pid, mac_address, bridge, tap,
			api_socket, project_dir, ip_address, vmlinux, rootfs, bootargs, ssh_keys
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		vm.ID, vm.Name, vm.Status, vm.VCPU, vm.Memory, vm.Distro, vm.PID,
		vm.MacAddress, vm.Bridge, vm.Tap, vm.ApiSocket, vm.ProjectDir,
		vm.IPAddress, vm.Vmlinux, vm.Rootfs, vm.BootArgs, vm.SSHKeys,
	)
	if err != nil {
		return fmt.Errorf("create vm %s: %w", vm.Name, err)
	}
	return nil
}

// Update replaces every mutable field of the row identified by vm.ID. It
// does not touch id or created_at. This is the canonical full-column update
// from spec.md §3/§4.3; see DESIGN.md for why the legacy five-column shape
// is not reproduced.
func (r *VMRepository) Update(ctx context.Context, vm *VirtualMachine) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE virtual_machines SET
			name = ?, status = ?, vcpu = ?, memory = ?, distro = ?, pid = ?,
			mac_address = ?, bridge = ?, tap = ?, api_socket = ?, project_dir = ?,
			ip_address = ?, vmlinux = ?, rootfs = ?, bootargs = ?, ssh_keys = ?,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		WHERE id = ?`,
		vm.Name, vm.Status, vm.VCPU, vm.Memory, vm.Distro, vm.PID,
		vm.MacAddress, vm.Bridge, vm.Tap, vm.ApiSocket, vm.ProjectDir,
		vm.IPAddress, vm.Vmlinux, vm.Rootfs, vm.BootArgs, vm.SSHKeys, vm.ID,
	)
	if err != nil {
		return fmt.Errorf("update vm %s: %w", vm.ID, err)
	}
	return rowsAffectedOrNotFound(res)
}

// UpdateStatus sets only the status column of the row matched by name or id.
func (r *VMRepository) UpdateStatus(ctx context.Context, nameOrID string, status Status) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE virtual_machines SET status = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		WHERE name = ? OR id = ?`, status, nameOrID, nameOrID)
	if err != nil {
		return fmt.Errorf("update vm status %s: %w", nameOrID, err)
	}
	return rowsAffectedOrNotFound(res)
}

// UpdateAllStatus marks every row with the given status; used at daemon
// startup to reconcile orphans left RUNNING by an unclean shutdown.
func (r *VMRepository) UpdateAllStatus(ctx context.Context, status Status) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE virtual_machines SET status = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`, status)
	if err != nil {
		return fmt.Errorf("update all vm status: %w", err)
	}
	return nil
}

// Delete removes the row matched by name or id.
func (r *VMRepository) Delete(ctx context.Context, nameOrID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM virtual_machines WHERE name = ? OR id = ?`, nameOrID, nameOrID)
	if err != nil {
		return fmt.Errorf("delete vm %s: %w", nameOrID, err)
	}
	return rowsAffectedOrNotFound(res)
}

func rowsAffectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
