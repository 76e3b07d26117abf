package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/guestgate/guestgate/internal/models"
)

const deviceColumns = `id, mac, name, guest_id, staff_id,
	suspended, suspension_reason,
	auto_suspended, auto_suspension_reason, auto_suspension_date,
	bytes_in, bytes_out, daily_quota_mb, bandwidth_limit_mbps,
	created_at, updated_at`

func scanDevice(row pgx.Row) (*models.Device, error) {
	var d models.Device
	err := row.Scan(
		&d.ID, &d.MAC, &d.Name, &d.GuestID, &d.StaffID,
		&d.Suspended, &d.SuspensionReason,
		&d.AutoSuspended, &d.AutoSuspensionReason, &d.AutoSuspensionDate,
		&d.BytesIn, &d.BytesOut, &d.DailyQuotaMB, &d.BandwidthLimitMbps,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

func (p *Postgres) listDevices(ctx context.Context, query string, args ...any) ([]models.Device, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}
	return devices, rows.Err()
}

// CreateDevice registers a new end-device under access control. The MAC
// must already be canonical.
func (p *Postgres) CreateDevice(ctx context.Context, d *models.Device) error {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO devices (mac, name, guest_id, staff_id, daily_quota_mb, bandwidth_limit_mbps)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		d.MAC, d.Name, d.GuestID, d.StaffID, d.DailyQuotaMB, d.BandwidthLimitMbps,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create device: %w", err)
	}
	return nil
}

// GetDevice fetches one end-device by id.
func (p *Postgres) GetDevice(ctx context.Context, id uuid.UUID) (*models.Device, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = $1`, id)
	return scanDevice(row)
}

// GetDeviceByMAC fetches one end-device by canonical MAC.
func (p *Postgres) GetDeviceByMAC(ctx context.Context, mac string) (*models.Device, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE mac = $1`, mac)
	return scanDevice(row)
}

// ListDevices returns every end-device under access control.
func (p *Postgres) ListDevices(ctx context.Context) ([]models.Device, error) {
	return p.listDevices(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY mac`)
}

// ListManagedDevices is the policy engine's view of ListDevices.
func (p *Postgres) ListManagedDevices(ctx context.Context) ([]models.Device, error) {
	return p.ListDevices(ctx)
}

// ListDevicesByGuest returns every device registered to a guest.
func (p *Postgres) ListDevicesByGuest(ctx context.Context, guestID uuid.UUID) ([]models.Device, error) {
	return p.listDevices(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE guest_id = $1 ORDER BY mac`, guestID)
}

// ListSuspendedDevices returns devices with either suspension flag set.
func (p *Postgres) ListSuspendedDevices(ctx context.Context) ([]models.Device, error) {
	return p.listDevices(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE suspended OR auto_suspended ORDER BY mac`)
}

// SetManualSuspension flips the operator-owned suspension flag.
func (p *Postgres) SetManualSuspension(ctx context.Context, deviceID uuid.UUID, suspended bool, reason *string) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE devices SET suspended = $2, suspension_reason = $3, updated_at = now()
		WHERE id = $1`,
		deviceID, suspended, reason)
	if err != nil {
		return fmt.Errorf("set manual suspension: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDevice removes an end-device and detaches its history.
func (p *Postgres) DeleteDevice(ctx context.Context, id uuid.UUID) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
