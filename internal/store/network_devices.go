package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/guestgate/guestgate/internal/models"
)

const networkDeviceColumns = `id, name, brand, device_type, host, port, use_tls, verify_tls,
	auth_type, credentials, timeout_seconds,
	supports_mac_blocking, supports_bandwidth_control, supports_client_listing,
	connection_status, total_operations, failed_operations, success_rate,
	last_connection_attempt, last_successful_connection, last_error_message,
	created_at, updated_at, deleted_at`

func scanNetworkDevice(row pgx.Row) (*models.NetworkDevice, error) {
	var nd models.NetworkDevice
	err := row.Scan(
		&nd.ID, &nd.Name, &nd.Brand, &nd.DeviceType, &nd.Host, &nd.Port, &nd.UseTLS, &nd.VerifyTLS,
		&nd.AuthType, &nd.Credentials, &nd.TimeoutSeconds,
		&nd.SupportsMACBlocking, &nd.SupportsBandwidthControl, &nd.SupportsClientListing,
		&nd.ConnectionStatus, &nd.TotalOperations, &nd.FailedOperations, &nd.SuccessRate,
		&nd.LastConnectionAttempt, &nd.LastSuccessfulConnection, &nd.LastErrorMessage,
		&nd.CreatedAt, &nd.UpdatedAt, &nd.DeletedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &nd, nil
}

// CreateNetworkDevice inserts a new piece of managed equipment.
func (p *Postgres) CreateNetworkDevice(ctx context.Context, nd *models.NetworkDevice) error {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO network_devices
			(name, brand, device_type, host, port, use_tls, verify_tls,
			 auth_type, credentials, timeout_seconds,
			 supports_mac_blocking, supports_bandwidth_control, supports_client_listing)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, connection_status, success_rate, created_at, updated_at`,
		nd.Name, nd.Brand, nd.DeviceType, nd.Host, nd.Port, nd.UseTLS, nd.VerifyTLS,
		nd.AuthType, nd.Credentials, nd.TimeoutSeconds,
		nd.SupportsMACBlocking, nd.SupportsBandwidthControl, nd.SupportsClientListing,
	).Scan(&nd.ID, &nd.ConnectionStatus, &nd.SuccessRate, &nd.CreatedAt, &nd.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create network device: %w", err)
	}
	return nil
}

// GetNetworkDevice fetches one non-deleted equipment record.
func (p *Postgres) GetNetworkDevice(ctx context.Context, id uuid.UUID) (*models.NetworkDevice, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+networkDeviceColumns+` FROM network_devices WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanNetworkDevice(row)
}

// ListNetworkDevices returns all non-deleted equipment records.
func (p *Postgres) ListNetworkDevices(ctx context.Context) ([]models.NetworkDevice, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+networkDeviceColumns+` FROM network_devices WHERE deleted_at IS NULL ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list network devices: %w", err)
	}
	defer rows.Close()

	var devices []models.NetworkDevice
	for rows.Next() {
		nd, err := scanNetworkDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *nd)
	}
	return devices, rows.Err()
}

// UpdateNetworkDevice updates the operator-editable fields of an
// equipment record. Counters and status are owned by FinalizeOperation.
func (p *Postgres) UpdateNetworkDevice(ctx context.Context, nd *models.NetworkDevice) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE network_devices SET
			name = $2, brand = $3, device_type = $4, host = $5, port = $6,
			use_tls = $7, verify_tls = $8, auth_type = $9, credentials = $10,
			timeout_seconds = $11, supports_mac_blocking = $12,
			supports_bandwidth_control = $13, supports_client_listing = $14,
			updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`,
		nd.ID, nd.Name, nd.Brand, nd.DeviceType, nd.Host, nd.Port,
		nd.UseTLS, nd.VerifyTLS, nd.AuthType, nd.Credentials,
		nd.TimeoutSeconds, nd.SupportsMACBlocking,
		nd.SupportsBandwidthControl, nd.SupportsClientListing,
	)
	if err != nil {
		return fmt.Errorf("update network device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteNetworkDevice soft-deletes an equipment record.
func (p *Postgres) DeleteNetworkDevice(ctx context.Context, id uuid.UUID) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE network_devices SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("delete network device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
