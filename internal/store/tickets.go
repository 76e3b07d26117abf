package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/guestgate/guestgate/internal/models"
)

const ticketColumns = `id, ticket_number, ticket_type, status, action_status, priority,
	mac, device_id, network_device_id, reason, resolution_notes, error_message,
	duration_minutes, is_temporary, scheduled_action_time,
	retry_count, next_retry_at, created_at, resolved_at`

func scanTicket(row pgx.Row) (*models.UsageTicket, error) {
	var t models.UsageTicket
	err := row.Scan(
		&t.ID, &t.TicketNumber, &t.TicketType, &t.Status, &t.ActionStatus, &t.Priority,
		&t.MAC, &t.DeviceID, &t.NetworkDeviceID, &t.Reason, &t.ResolutionNotes, &t.ErrorMessage,
		&t.DurationMinutes, &t.IsTemporary, &t.ScheduledActionTime,
		&t.RetryCount, &t.NextRetryAt, &t.CreatedAt, &t.ResolvedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// TicketFilter narrows ListTickets. Zero values match everything.
type TicketFilter struct {
	MAC             string
	Status          models.TicketStatus
	NetworkDeviceID *uuid.UUID
	Limit           int
}

// ListTickets returns tickets newest-first, optionally filtered.
func (p *Postgres) ListTickets(ctx context.Context, filter TicketFilter) ([]models.UsageTicket, error) {
	query := `SELECT ` + ticketColumns + ` FROM usage_tickets WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.MAC != "" {
		query += ` AND mac = ` + arg(filter.MAC)
	}
	if filter.Status != "" {
		query += ` AND status = ` + arg(filter.Status)
	}
	if filter.NetworkDeviceID != nil {
		query += ` AND network_device_id = ` + arg(*filter.NetworkDeviceID)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []models.UsageTicket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *t)
	}
	return tickets, rows.Err()
}

// GetTicketByNumber fetches one ticket by its human-facing number.
func (p *Postgres) GetTicketByNumber(ctx context.Context, number string) (*models.UsageTicket, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM usage_tickets WHERE ticket_number = $1`, number)
	return scanTicket(row)
}

// ListActivity returns the activity log for one MAC, newest-first.
func (p *Postgres) ListActivity(ctx context.Context, mac string, limit int) ([]models.NetworkActivity, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, device_id, mac, activity_type, bytes_in, bytes_out, initiated_by_system, occurred_at
		FROM network_activity
		WHERE mac = $1
		ORDER BY occurred_at DESC
		LIMIT $2`, mac, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var entries []models.NetworkActivity
	for rows.Next() {
		var a models.NetworkActivity
		if err := rows.Scan(&a.ID, &a.DeviceID, &a.MAC, &a.ActivityType,
			&a.BytesIn, &a.BytesOut, &a.InitiatedBySystem, &a.OccurredAt); err != nil {
			return nil, err
		}
		entries = append(entries, a)
	}
	return entries, rows.Err()
}
