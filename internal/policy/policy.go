// Package policy decides, from business state alone, whether a
// device's network access should be suspended. The engine performs no
// network I/O: it only flips persisted suspension flags. Physical
// enforcement through the adapters is a separate, explicitly invoked
// step.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/guestgate/guestgate/internal/models"
)

// Reason explains why a device is (or would be) auto-suspended.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonNoActiveOccupancy Reason = "NO_ACTIVE_OCCUPANCY"
	ReasonGuestInArrears    Reason = "GUEST_IN_ARREARS"
	ReasonStaffInactive     Reason = "STAFF_INACTIVE"
)

// ConflictError reports a local precondition failure, e.g. resuming a
// device that is not suspended. No network call is made.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

// BusinessReader is the read side of the persistence layer the engine
// consumes: guests, staff, occupancies and payments are external
// records owned by other systems.
type BusinessReader interface {
	GuestExists(ctx context.Context, guestID uuid.UUID) (bool, error)
	HasActiveOccupancy(ctx context.Context, guestID uuid.UUID) (bool, error)
	HasPendingPayment(ctx context.Context, guestID uuid.UUID) (bool, error)
	StaffStatus(ctx context.Context, staffID uuid.UUID) (models.StaffStatus, bool, error)
	ListManagedDevices(ctx context.Context) ([]models.Device, error)
}

// SuspensionChange is one flag mutation produced by a sweep or a
// single-device evaluation.
type SuspensionChange struct {
	DeviceID uuid.UUID
	MAC      string
	Suspend  bool
	Reason   Reason
	At       time.Time
}

// SuspensionWriter applies a batch of flag mutations as one
// transaction; a failure rolls back the entire batch.
type SuspensionWriter interface {
	ApplySuspensionChanges(ctx context.Context, changes []SuspensionChange) error
}

// Store is the full persistence contract of the engine.
type Store interface {
	BusinessReader
	SuspensionWriter
}

// SweepResult aggregates one run over all managed devices.
type SweepResult struct {
	Checked          int       `json:"checked"`
	NewlySuspended   int       `json:"newly_suspended"`
	AlreadySuspended int       `json:"already_suspended"`
	Reactivated      int       `json:"reactivated"`
	Errors           []string  `json:"errors"`
	StartedAt        time.Time `json:"started_at"`
	CompletedAt      time.Time `json:"completed_at"`
}

// ErrSweepInProgress is returned when a sweep is requested while a
// previous run has not finished. Overlapping sweeps would double-count
// and race on flag writes.
var ErrSweepInProgress = &ConflictError{Msg: "a suspension sweep is already running"}

// Engine evaluates suspension policy.
type Engine struct {
	store  Store
	logger *slog.Logger

	// sweepMu enforces single-flight sweeps.
	sweepMu sync.Mutex

	now func() time.Time
}

// NewEngine creates a policy engine over the given store.
func NewEngine(store Store, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		logger: logger.With("component", "policy"),
		now:    time.Now,
	}
}

// SuspensionReason evaluates the current business state for one
// device:
//
//   - staff-owned: suspend unless the staff member exists and is active
//   - guest-owned: suspend when the guest is missing, has no active
//     occupancy, or has any pending payment
//   - orphan (neither owner): always suspend-eligible
func (e *Engine) SuspensionReason(ctx context.Context, dev *models.Device) (Reason, error) {
	if dev.StaffID != nil {
		status, found, err := e.store.StaffStatus(ctx, *dev.StaffID)
		if err != nil {
			return ReasonNone, fmt.Errorf("staff lookup for device %s: %w", dev.MAC, err)
		}
		if !found || status != models.StaffActive {
			return ReasonStaffInactive, nil
		}
		return ReasonNone, nil
	}

	if dev.GuestID != nil {
		exists, err := e.store.GuestExists(ctx, *dev.GuestID)
		if err != nil {
			return ReasonNone, fmt.Errorf("guest lookup for device %s: %w", dev.MAC, err)
		}
		if !exists {
			return ReasonNoActiveOccupancy, nil
		}
		active, err := e.store.HasActiveOccupancy(ctx, *dev.GuestID)
		if err != nil {
			return ReasonNone, fmt.Errorf("occupancy lookup for device %s: %w", dev.MAC, err)
		}
		if !active {
			return ReasonNoActiveOccupancy, nil
		}
		arrears, err := e.store.HasPendingPayment(ctx, *dev.GuestID)
		if err != nil {
			return ReasonNone, fmt.Errorf("payment lookup for device %s: %w", dev.MAC, err)
		}
		if arrears {
			return ReasonGuestInArrears, nil
		}
		return ReasonNone, nil
	}

	// Orphan devices have no business justification for access.
	return ReasonNoActiveOccupancy, nil
}

// AutoSuspend flags a device as auto-suspended. Idempotent: a device
// that is already auto-suspended is left untouched and false is
// returned.
func (e *Engine) AutoSuspend(dev *models.Device, reason Reason, now time.Time) bool {
	if dev.AutoSuspended {
		return false
	}
	dev.AutoSuspended = true
	r := string(reason)
	dev.AutoSuspensionReason = &r
	at := now
	dev.AutoSuspensionDate = &at
	return true
}

// AutoReactivate clears the auto-suspension flag if, and only if, the
// business state no longer justifies it. The reason is re-evaluated at
// call time, never assumed from the prior state.
func (e *Engine) AutoReactivate(ctx context.Context, dev *models.Device) (bool, error) {
	if !dev.AutoSuspended {
		return false, nil
	}
	reason, err := e.SuspensionReason(ctx, dev)
	if err != nil {
		return false, err
	}
	if reason != ReasonNone {
		return false, nil
	}
	dev.AutoSuspended = false
	dev.AutoSuspensionReason = nil
	dev.AutoSuspensionDate = nil
	return true, nil
}

// SweepAll evaluates every managed device and applies the resulting
// flag changes in one transaction. A per-device evaluation failure is
// collected into Errors without aborting the sweep; a failure to
// commit rolls all of the sweep's mutations back.
func (e *Engine) SweepAll(ctx context.Context) (SweepResult, error) {
	if !e.sweepMu.TryLock() {
		return SweepResult{}, ErrSweepInProgress
	}
	defer e.sweepMu.Unlock()

	now := e.now()
	result := SweepResult{StartedAt: now, Errors: []string{}}

	devices, err := e.store.ListManagedDevices(ctx)
	if err != nil {
		return result, fmt.Errorf("list devices: %w", err)
	}

	var changes []SuspensionChange
	for i := range devices {
		dev := &devices[i]
		result.Checked++

		// Suspended devices go through AutoReactivate, which
		// re-evaluates the business state itself.
		if dev.AutoSuspended {
			changed, err := e.AutoReactivate(ctx, dev)
			if err != nil {
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			if !changed {
				result.AlreadySuspended++
				continue
			}
			changes = append(changes, SuspensionChange{
				DeviceID: dev.ID,
				MAC:      dev.MAC,
				Suspend:  false,
				At:       now,
			})
			result.Reactivated++
			continue
		}

		reason, err := e.SuspensionReason(ctx, dev)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		if reason != ReasonNone && e.AutoSuspend(dev, reason, now) {
			changes = append(changes, SuspensionChange{
				DeviceID: dev.ID,
				MAC:      dev.MAC,
				Suspend:  true,
				Reason:   reason,
				At:       now,
			})
			result.NewlySuspended++
		}
	}

	if len(changes) > 0 {
		if err := e.store.ApplySuspensionChanges(ctx, changes); err != nil {
			return result, fmt.Errorf("apply suspension changes: %w", err)
		}
	}

	result.CompletedAt = e.now()
	e.logger.Info("Suspension sweep completed",
		"checked", result.Checked,
		"newly_suspended", result.NewlySuspended,
		"already_suspended", result.AlreadySuspended,
		"reactivated", result.Reactivated,
		"errors", len(result.Errors),
	)
	return result, nil
}
