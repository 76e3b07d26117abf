// Package channels provides typed Go channels for the event-driven
// parts of GuestGate: enforcement outcomes and sweep completions flow
// through here to the audit logger and the metrics recorder.
package channels

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/guestgate/guestgate/internal/models"
)

// EnforcementEvent is published after every enforcement attempt,
// successful or not.
type EnforcementEvent struct {
	TicketNumber    string
	Action          models.TicketType
	MAC             string
	NetworkDeviceID uuid.UUID
	Brand           models.DeviceBrand
	Success         bool
	Message         string
	DurationMs      int64
	Timestamp       time.Time
}

// SweepCompletedEvent is published when a suspension sweep finishes.
type SweepCompletedEvent struct {
	Checked          int
	NewlySuspended   int
	AlreadySuspended int
	Reactivated      int
	Errors           int
	StartedAt        time.Time
	CompletedAt      time.Time
}

// EventChannels provides typed channels for all system events.
type EventChannels struct {
	Enforcement    chan EnforcementEvent
	SweepCompleted chan SweepCompletedEvent

	done      chan struct{}
	closeOnce sync.Once
}

// Config sets the channel buffer sizes.
type Config struct {
	EnforcementBufferSize int
	SweepBufferSize       int
}

// NewEventChannels creates the hub with configured buffer sizes.
func NewEventChannels(cfg Config) *EventChannels {
	if cfg.EnforcementBufferSize <= 0 {
		cfg.EnforcementBufferSize = 100
	}
	if cfg.SweepBufferSize <= 0 {
		cfg.SweepBufferSize = 10
	}
	return &EventChannels{
		Enforcement:    make(chan EnforcementEvent, cfg.EnforcementBufferSize),
		SweepCompleted: make(chan SweepCompletedEvent, cfg.SweepBufferSize),
		done:           make(chan struct{}),
	}
}

// PublishEnforcement publishes without blocking; if the buffer is full
// the event is dropped. The durable audit trail lives in the ticket
// store, not here.
func (ec *EventChannels) PublishEnforcement(event EnforcementEvent) {
	select {
	case ec.Enforcement <- event:
	case <-ec.done:
	default:
	}
}

// PublishSweepCompleted publishes without blocking.
func (ec *EventChannels) PublishSweepCompleted(event SweepCompletedEvent) {
	select {
	case ec.SweepCompleted <- event:
	case <-ec.done:
	default:
	}
}

// Close signals shutdown. The data channels stay open so a publisher
// racing shutdown can never hit a closed channel; consumers exit via
// Done and late events fall to the drop case.
func (ec *EventChannels) Close() error {
	ec.closeOnce.Do(func() { close(ec.done) })
	return nil
}

// Done returns a channel that's closed when the hub is shutting down.
func (ec *EventChannels) Done() <-chan struct{} {
	return ec.done
}
