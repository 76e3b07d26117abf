package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/guestgate/guestgate/internal/enforcement"
	"github.com/guestgate/guestgate/internal/models"
	"github.com/guestgate/guestgate/internal/policy"
)

// GuestExists reports whether a guest record is present.
func (p *Postgres) GuestExists(ctx context.Context, guestID uuid.UUID) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM guests WHERE id = $1)`, guestID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("guest exists: %w", err)
	}
	return exists, nil
}

// HasActiveOccupancy reports whether the guest has any occupancy with
// a null check-out.
func (p *Postgres) HasActiveOccupancy(ctx context.Context, guestID uuid.UUID) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM occupancies WHERE guest_id = $1 AND check_out IS NULL)`,
		guestID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("active occupancy: %w", err)
	}
	return exists, nil
}

// HasPendingPayment reports whether the guest has any payment in the
// 'pending' state.
func (p *Postgres) HasPendingPayment(ctx context.Context, guestID uuid.UUID) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payments WHERE guest_id = $1 AND status = 'pending')`,
		guestID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("pending payment: %w", err)
	}
	return exists, nil
}

// StaffStatus returns the status of a staff member and whether the
// record exists.
func (p *Postgres) StaffStatus(ctx context.Context, staffID uuid.UUID) (models.StaffStatus, bool, error) {
	var status models.StaffStatus
	err := p.pool.QueryRow(ctx,
		`SELECT status FROM staff WHERE id = $1`, staffID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("staff status: %w", err)
	}
	return status, true, nil
}

// ApplySuspensionChanges applies a sweep's flag mutations in one
// transaction. Any failure rolls the whole batch back.
func (p *Postgres) ApplySuspensionChanges(ctx context.Context, changes []policy.SuspensionChange) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin suspension batch: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, ch := range changes {
		if ch.Suspend {
			_, err = tx.Exec(ctx, `
				UPDATE devices SET
					auto_suspended = TRUE,
					auto_suspension_reason = $2,
					auto_suspension_date = $3,
					updated_at = now()
				WHERE id = $1`,
				ch.DeviceID, string(ch.Reason), ch.At)
		} else {
			_, err = tx.Exec(ctx, `
				UPDATE devices SET
					auto_suspended = FALSE,
					auto_suspension_reason = NULL,
					auto_suspension_date = NULL,
					updated_at = now()
				WHERE id = $1`,
				ch.DeviceID)
		}
		if err != nil {
			return fmt.Errorf("apply suspension change for %s: %w", ch.MAC, err)
		}
	}

	return tx.Commit(ctx)
}

// FinalizeOperation persists the outcome of one enforcement call in a
// single transaction: equipment counters and status, the ticket, and
// the activity entry live or die together.
func (p *Postgres) FinalizeOperation(ctx context.Context, params enforcement.FinalizeParams) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin finalize: %w", err)
	}
	defer tx.Rollback(ctx)

	nd := params.NetworkDevice
	_, err = tx.Exec(ctx, `
		UPDATE network_devices SET
			connection_status = $2,
			total_operations = $3,
			failed_operations = $4,
			success_rate = $5,
			last_connection_attempt = $6,
			last_successful_connection = $7,
			last_error_message = $8,
			updated_at = now()
		WHERE id = $1`,
		nd.ID, nd.ConnectionStatus, nd.TotalOperations, nd.FailedOperations, nd.SuccessRate,
		nd.LastConnectionAttempt, nd.LastSuccessfulConnection, nd.LastErrorMessage)
	if err != nil {
		return fmt.Errorf("update equipment health: %w", err)
	}

	if t := params.Ticket; t != nil {
		_, err = tx.Exec(ctx, `
			INSERT INTO usage_tickets
				(id, ticket_number, ticket_type, status, action_status, priority,
				 mac, device_id, network_device_id, reason, resolution_notes, error_message,
				 duration_minutes, is_temporary, scheduled_action_time,
				 retry_count, next_retry_at, created_at, resolved_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
			t.ID, t.TicketNumber, t.TicketType, t.Status, t.ActionStatus, t.Priority,
			t.MAC, t.DeviceID, t.NetworkDeviceID, t.Reason, t.ResolutionNotes, t.ErrorMessage,
			t.DurationMinutes, t.IsTemporary, t.ScheduledActionTime,
			t.RetryCount, t.NextRetryAt, t.CreatedAt, t.ResolvedAt)
		if err != nil {
			return fmt.Errorf("insert ticket %s: %w", t.TicketNumber, err)
		}
	}

	if a := params.Activity; a != nil {
		_, err = tx.Exec(ctx, `
			INSERT INTO network_activity
				(id, device_id, mac, activity_type, bytes_in, bytes_out, initiated_by_system, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			a.ID, a.DeviceID, a.MAC, a.ActivityType, a.BytesIn, a.BytesOut, a.InitiatedBySystem, a.OccurredAt)
		if err != nil {
			return fmt.Errorf("insert activity: %w", err)
		}
	}

	return tx.Commit(ctx)
}
