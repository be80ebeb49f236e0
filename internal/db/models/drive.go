package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Drive is an attached block device, per spec.md §3.
type Drive struct {
	ID           string
	Name         string
	VMID         sql.NullString
	PathOnHost   string
	IsRootDevice bool
	IsReadOnly   bool
	SizeInGB     sql.NullInt64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type DriveRepository struct {
	db *sql.DB
}

func NewDriveRepository(db *sql.DB) *DriveRepository {
	return &DriveRepository{db: db}
}

const driveColumns = `id, name, vm_id, path_on_host, is_root_device, is_read_only, size_in_gb, created_at, updated_at`

func scanDrive(row interface{ Scan(...any) error }) (*Drive, error) {
	var d Drive
	var created, updated string

	err := row.Scan(&d.ID, &d.Name, &d.VMID, &d.PathOnHost, &d.IsRootDevice,
		&d.IsReadOnly, &d.SizeInGB, &created, &updated)
	if err != nil {
		return nil, err
	}

	d.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	d.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)

	return &d, nil
}

func (r *DriveRepository) List(ctx context.Context) ([]*Drive, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+driveColumns+` FROM drives ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list drives: %w", err)
	}
	defer rows.Close()

	var out []*Drive
	for rows.Next() {
		d, err := scanDrive(rows)
		if err != nil {
			return nil, fmt.Errorf("scan drive: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *DriveRepository) Find(ctx context.Context, nameOrID string) (*Drive, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+driveColumns+` FROM drives WHERE name = ? OR id = ?`, nameOrID, nameOrID)
	d, err := scanDrive(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find drive %s: %w", nameOrID, err)
	}
	return d, nil
}

func (r *DriveRepository) FindByVMID(ctx context.Context, vmID string) ([]*Drive, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+driveColumns+` FROM drives WHERE vm_id = ?`, vmID)
	if err != nil {
		return nil, fmt.Errorf("find drives by vm %s: %w", vmID, err)
	}
	defer rows.Close()

	var out []*Drive
	for rows.Next() {
		d, err := scanDrive(rows)
		if err != nil {
			return nil, fmt.Errorf("scan drive: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *DriveRepository) Create(ctx context.Context, d *Drive) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO drives (id, name, vm_id, path_on_host, is_root_device, is_read_only, size_in_gb)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, d.VMID, d.PathOnHost, d.IsRootDevice, d.IsReadOnly, d.SizeInGB)
	if err != nil {
		return fmt.Errorf("create drive %s: %w", d.Name, err)
	}
	return nil
}

func (r *DriveRepository) UpdateVMID(ctx context.Context, driveID string, vmID sql.NullString) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE drives SET vm_id = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now') WHERE id = ?`,
		vmID, driveID)
	if err != nil {
		return fmt.Errorf("update drive vm_id %s: %w", driveID, err)
	}
	return rowsAffectedOrNotFound(res)
}

func (r *DriveRepository) UpdateName(ctx context.Context, driveID, name string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE drives SET name = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now') WHERE id = ?`,
		name, driveID)
	if err != nil {
		return fmt.Errorf("update drive name %s: %w", driveID, err)
	}
	return rowsAffectedOrNotFound(res)
}

func (r *DriveRepository) Delete(ctx context.Context, nameOrID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM drives WHERE name = ? OR id = ?`, nameOrID, nameOrID)
	if err != nil {
		return fmt.Errorf("delete drive %s: %w", nameOrID, err)
	}
	return rowsAffectedOrNotFound(res)
}
