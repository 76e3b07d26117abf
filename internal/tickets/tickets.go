// Package tickets creates and resolves the usage tickets that audit
// every enforcement action. Each ticket is created pending before the
// adapter call and updated exactly once with the call's outcome.
package tickets

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/guestgate/guestgate/internal/models"
)

// NewTicketNumber generates a ticket number of the form
// TICKET-YYYYMMDD-XXXXXX with six uppercase hex digits of randomness.
// Uniqueness is additionally enforced by the store's unique index; the
// 24 bits of entropy per day make collisions a retry case, not a
// design concern.
func NewTicketNumber(now time.Time) string {
	var buf [3]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand only fails when the platform entropy source is
		// broken; there is no meaningful fallback.
		panic(fmt.Sprintf("tickets: entropy source unavailable: %v", err))
	}
	return fmt.Sprintf("TICKET-%s-%s", now.Format("20060102"), strings.ToUpper(hex.EncodeToString(buf[:])))
}

// Options carries the optional scheduling fields a caller may attach
// to an enforcement request. Execution of temporary or scheduled
// actions is delegated to an external scheduler that re-invokes the
// enforcement path later.
type Options struct {
	Priority            models.TicketPriority
	DurationMinutes     *int
	IsTemporary         bool
	ScheduledActionTime *time.Time
}

// New builds a pending ticket for one enforcement action.
func New(ticketType models.TicketType, mac string, deviceID, networkDeviceID *uuid.UUID, reason string, opts Options, now time.Time) models.UsageTicket {
	priority := opts.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}
	return models.UsageTicket{
		ID:                  uuid.New(),
		TicketNumber:        NewTicketNumber(now),
		TicketType:          ticketType,
		Status:              models.TicketPending,
		ActionStatus:        models.ActionPending,
		Priority:            priority,
		MAC:                 mac,
		DeviceID:            deviceID,
		NetworkDeviceID:     networkDeviceID,
		Reason:              reason,
		DurationMinutes:     opts.DurationMinutes,
		IsTemporary:         opts.IsTemporary,
		ScheduledActionTime: opts.ScheduledActionTime,
		CreatedAt:           now,
	}
}

// Resolve closes a ticket after a successful adapter call.
func Resolve(t *models.UsageTicket, notes string, now time.Time) {
	t.ActionStatus = models.ActionSuccess
	t.Status = models.TicketResolved
	t.ResolutionNotes = &notes
	at := now
	t.ResolvedAt = &at
}

// Fail records a failed adapter call. The ticket stays open for
// operator follow-up or a scheduled retry.
func Fail(t *models.UsageTicket, errMsg string, now time.Time) {
	t.ActionStatus = models.ActionFailed
	t.Status = models.TicketOpen
	t.ErrorMessage = &errMsg
}
