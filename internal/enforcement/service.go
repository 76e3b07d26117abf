// Package enforcement orchestrates every physical network action: it
// validates input, resolves the vendor adapter, runs the call under
// the device's timeout, keeps the health counters honest, and leaves a
// durable ticket and activity trail for each mutation.
package enforcement

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/guestgate/guestgate/internal/channels"
	"github.com/guestgate/guestgate/internal/health"
	"github.com/guestgate/guestgate/internal/models"
	"github.com/guestgate/guestgate/internal/netops"
	"github.com/guestgate/guestgate/internal/policy"
	"github.com/guestgate/guestgate/internal/tickets"
)

// FinalizeParams carries the write set of one completed operation.
// The store persists all three pieces in a single transaction so a
// ticket can never exist without its counter update.
type FinalizeParams struct {
	NetworkDevice *models.NetworkDevice
	Ticket        *models.UsageTicket
	Activity      *models.NetworkActivity
}

// Store is the persistence contract of the enforcement service.
type Store interface {
	GetNetworkDevice(ctx context.Context, id uuid.UUID) (*models.NetworkDevice, error)
	ListNetworkDevices(ctx context.Context) ([]models.NetworkDevice, error)

	GetDevice(ctx context.Context, id uuid.UUID) (*models.Device, error)
	GetDeviceByMAC(ctx context.Context, mac string) (*models.Device, error)
	ListDevicesByGuest(ctx context.Context, guestID uuid.UUID) ([]models.Device, error)
	ListSuspendedDevices(ctx context.Context) ([]models.Device, error)
	SetManualSuspension(ctx context.Context, deviceID uuid.UUID, suspended bool, reason *string) error

	FinalizeOperation(ctx context.Context, params FinalizeParams) error
}

// CredentialDecrypter recovers adapter credentials from the encrypted
// blob stored on a network device record. Satisfied by auth.Service.
type CredentialDecrypter interface {
	DecryptCredentials(data models.EncryptedData) (netops.Credentials, error)
}

// keyedMutex serializes operations per network device. Concurrent
// calls against different equipment proceed in parallel; against the
// same equipment they queue. Entries are never removed: the map is
// bounded by the managed-device count.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func (k *keyedMutex) lock(id uuid.UUID) *sync.Mutex {
	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &sync.Mutex{}
		k.locks[id] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m
}

// Service executes enforcement actions against managed equipment.
type Service struct {
	store    Store
	registry *netops.Registry
	creds    CredentialDecrypter
	events   *channels.EventChannels
	logger   *slog.Logger

	perDevice keyedMutex

	now func() time.Time
}

// NewService wires the enforcement service.
func NewService(store Store, registry *netops.Registry, creds CredentialDecrypter, events *channels.EventChannels, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		registry:  registry,
		creds:     creds,
		events:    events,
		logger:    logger.With("component", "enforcement"),
		perDevice: keyedMutex{locks: make(map[uuid.UUID]*sync.Mutex)},
		now:       time.Now,
	}
}

// prepare loads the network device and builds its adapter. Failures
// here never touch the health counters: the operation has not reached
// the equipment yet.
func (s *Service) prepare(ctx context.Context, networkDeviceID uuid.UUID) (*models.NetworkDevice, netops.Adapter, error) {
	nd, err := s.store.GetNetworkDevice(ctx, networkDeviceID)
	if err != nil {
		return nil, nil, err
	}
	creds, err := s.creds.DecryptCredentials(nd.Credentials)
	if err != nil {
		return nil, nil, fmt.Errorf("decrypt credentials for %s: %w", nd.Name, err)
	}
	adapter, err := s.registry.SelectAdapter(nd, creds)
	if err != nil {
		return nil, nil, err
	}
	return nd, adapter, nil
}

// finalize records the outcome of one adapter call: health counters,
// ticket state, activity log, all in one store transaction. Errors
// outside the countable taxonomy (validation, unsupported operations)
// leave the counters alone.
func (s *Service) finalize(ctx context.Context, nd *models.NetworkDevice, ticket *models.UsageTicket, activity *models.NetworkActivity, opErr error, message string) error {
	now := s.now()
	if opErr == nil {
		health.RecordSuccess(nd, now)
		if ticket != nil {
			tickets.Resolve(ticket, message, now)
		}
	} else {
		if netops.IsCountable(opErr) {
			health.RecordFailure(nd, now, opErr.Error())
		}
		if ticket != nil {
			tickets.Fail(ticket, opErr.Error(), now)
		}
		activity = nil // no activity entry for a failed action
	}
	if err := s.store.FinalizeOperation(ctx, FinalizeParams{
		NetworkDevice: nd,
		Ticket:        ticket,
		Activity:      activity,
	}); err != nil {
		s.logger.Error("Failed to persist operation outcome",
			"network_device", nd.Name, "error", err)
		return err
	}
	return nil
}

func (s *Service) publish(nd *models.NetworkDevice, ticket *models.UsageTicket, mac string, success bool, message string, started time.Time) {
	if s.events == nil {
		return
	}
	var number string
	var action models.TicketType
	if ticket != nil {
		number = ticket.TicketNumber
		action = ticket.TicketType
	}
	s.events.PublishEnforcement(channels.EnforcementEvent{
		TicketNumber:    number,
		Action:          action,
		MAC:             mac,
		NetworkDeviceID: nd.ID,
		Brand:           nd.Brand,
		Success:         success,
		Message:         message,
		DurationMs:      s.now().Sub(started).Milliseconds(),
		Timestamp:       s.now(),
	})
}

// TestConnection probes the equipment and updates its health record.
func (s *Service) TestConnection(ctx context.Context, networkDeviceID uuid.UUID) (netops.TestResult, error) {
	mu := s.perDevice.lock(networkDeviceID)
	defer mu.Unlock()

	nd, adapter, err := s.prepare(ctx, networkDeviceID)
	if err != nil {
		return netops.TestResult{}, err
	}

	opCtx, cancel := context.WithTimeout(ctx, nd.Timeout())
	defer cancel()

	health.BeginAttempt(nd, s.now())
	result, opErr := adapter.TestConnection(opCtx)
	if ferr := s.finalize(ctx, nd, nil, nil, opErr, result.Message); ferr != nil {
		return result, ferr
	}
	return result, opErr
}

// mutate runs one MAC-level action through the full ticketed path.
// The MAC is normalized here, once, at the boundary; adapters receive
// canonical form.
func (s *Service) mutate(
	ctx context.Context,
	networkDeviceID uuid.UUID,
	ticketType models.TicketType,
	mac, reason string,
	opts tickets.Options,
	activityType models.ActivityType,
	systemInitiated bool,
	call func(ctx context.Context, a netops.Adapter, mac string) (string, error),
) (*models.UsageTicket, error) {
	canonical, err := netops.NormalizeMAC(mac)
	if err != nil {
		return nil, err
	}

	mu := s.perDevice.lock(networkDeviceID)
	defer mu.Unlock()

	nd, adapter, err := s.prepare(ctx, networkDeviceID)
	if err != nil {
		return nil, err
	}
	if err := s.checkCapability(nd, ticketType); err != nil {
		return nil, err
	}

	var deviceID *uuid.UUID
	if dev, err := s.store.GetDeviceByMAC(ctx, canonical); err == nil && dev != nil {
		deviceID = &dev.ID
	}

	ndID := nd.ID
	ticket := tickets.New(ticketType, canonical, deviceID, &ndID, reason, opts, s.now())

	opCtx, cancel := context.WithTimeout(ctx, nd.Timeout())
	defer cancel()

	started := s.now()
	health.BeginAttempt(nd, started)
	message, opErr := call(opCtx, adapter, canonical)

	var activity *models.NetworkActivity
	if activityType != "" {
		activity = &models.NetworkActivity{
			ID:                uuid.New(),
			DeviceID:          deviceID,
			MAC:               canonical,
			ActivityType:      activityType,
			InitiatedBySystem: systemInitiated,
			OccurredAt:        s.now(),
		}
	}

	if ferr := s.finalize(ctx, nd, &ticket, activity, opErr, message); ferr != nil {
		return &ticket, ferr
	}
	if opErr != nil {
		s.publish(nd, &ticket, canonical, false, opErr.Error(), started)
		return &ticket, opErr
	}
	s.publish(nd, &ticket, canonical, true, message, started)
	return &ticket, nil
}

// checkCapability rejects operations the equipment is flagged not to
// support, before any network traffic.
func (s *Service) checkCapability(nd *models.NetworkDevice, ticketType models.TicketType) error {
	switch ticketType {
	case models.TicketBlock, models.TicketUnblock, models.TicketSuspension, models.TicketReactivation:
		if !nd.SupportsMACBlocking {
			return &netops.NotSupportedError{Vendor: string(nd.Brand), Capability: "mac blocking"}
		}
	case models.TicketBandwidthLimit, models.TicketBandwidthRestore:
		if !nd.SupportsBandwidthControl {
			return &netops.NotSupportedError{Vendor: string(nd.Brand), Capability: "bandwidth control"}
		}
	}
	return nil
}

// BlockMAC blocks a client MAC on the given equipment.
func (s *Service) BlockMAC(ctx context.Context, networkDeviceID uuid.UUID, mac, reason string, opts tickets.Options) (*models.UsageTicket, error) {
	return s.mutate(ctx, networkDeviceID, models.TicketBlock, mac, reason, opts, models.ActivityBlocked, false,
		func(ctx context.Context, a netops.Adapter, mac string) (string, error) {
			return a.BlockMAC(ctx, mac, reason)
		})
}

// UnblockMAC removes a client MAC block on the given equipment.
func (s *Service) UnblockMAC(ctx context.Context, networkDeviceID uuid.UUID, mac, reason string, opts tickets.Options) (*models.UsageTicket, error) {
	return s.mutate(ctx, networkDeviceID, models.TicketUnblock, mac, reason, opts, models.ActivityUnblocked, false,
		func(ctx context.Context, a netops.Adapter, mac string) (string, error) {
			return a.UnblockMAC(ctx, mac)
		})
}

// SetBandwidthLimit applies a rate limit in Mbps to a client MAC.
func (s *Service) SetBandwidthLimit(ctx context.Context, networkDeviceID uuid.UUID, mac string, limitMbps float64, reason string, opts tickets.Options) (*models.UsageTicket, error) {
	if limitMbps <= 0 {
		return nil, &netops.ValidationError{Msg: "bandwidth limit must be positive"}
	}
	return s.mutate(ctx, networkDeviceID, models.TicketBandwidthLimit, mac, reason, opts, "", false,
		func(ctx context.Context, a netops.Adapter, mac string) (string, error) {
			return a.SetBandwidthLimit(ctx, mac, limitMbps)
		})
}

// RemoveBandwidthLimit lifts a previously applied rate limit.
func (s *Service) RemoveBandwidthLimit(ctx context.Context, networkDeviceID uuid.UUID, mac, reason string, opts tickets.Options) (*models.UsageTicket, error) {
	return s.mutate(ctx, networkDeviceID, models.TicketBandwidthRestore, mac, reason, opts, "", false,
		func(ctx context.Context, a netops.Adapter, mac string) (string, error) {
			return a.RemoveBandwidthLimit(ctx, mac)
		})
}

// GetBlockedMACs reads the current block list from the equipment.
func (s *Service) GetBlockedMACs(ctx context.Context, networkDeviceID uuid.UUID) ([]string, error) {
	var macs []string
	err := s.readOnly(ctx, networkDeviceID, func(ctx context.Context, a netops.Adapter) error {
		var err error
		macs, err = a.GetBlockedMACs(ctx)
		return err
	})
	return macs, err
}

// GetDeviceStats reads a health snapshot from the equipment.
func (s *Service) GetDeviceStats(ctx context.Context, networkDeviceID uuid.UUID) (netops.DeviceStats, error) {
	var stats netops.DeviceStats
	err := s.readOnly(ctx, networkDeviceID, func(ctx context.Context, a netops.Adapter) error {
		var err error
		stats, err = a.GetDeviceStats(ctx)
		return err
	})
	return stats, err
}

// GetConnectedDevices lists the clients currently known to the
// equipment.
func (s *Service) GetConnectedDevices(ctx context.Context, networkDeviceID uuid.UUID) ([]netops.ClientInfo, error) {
	var clients []netops.ClientInfo
	err := s.readOnly(ctx, networkDeviceID, func(ctx context.Context, a netops.Adapter) error {
		var err error
		clients, err = a.GetConnectedDevices(ctx)
		return err
	})
	return clients, err
}

// readOnly runs a query against the equipment. No ticket is cut, but
// the health counters still see the attempt.
func (s *Service) readOnly(ctx context.Context, networkDeviceID uuid.UUID, call func(ctx context.Context, a netops.Adapter) error) error {
	mu := s.perDevice.lock(networkDeviceID)
	defer mu.Unlock()

	nd, adapter, err := s.prepare(ctx, networkDeviceID)
	if err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, nd.Timeout())
	defer cancel()

	health.BeginAttempt(nd, s.now())
	opErr := call(opCtx, adapter)
	if ferr := s.finalize(ctx, nd, nil, nil, opErr, ""); ferr != nil {
		return ferr
	}
	return opErr
}

// SuspendDevice sets the manual suspension flag on an end-device. It
// does not touch the network: physical enforcement is a separate,
// explicit step (see EnforceSuspensions).
func (s *Service) SuspendDevice(ctx context.Context, deviceID uuid.UUID, reason string) error {
	dev, err := s.store.GetDevice(ctx, deviceID)
	if err != nil {
		return err
	}
	if dev.Suspended {
		return &policy.ConflictError{Msg: fmt.Sprintf("device %s is already suspended", dev.MAC)}
	}
	if err := s.store.SetManualSuspension(ctx, deviceID, true, &reason); err != nil {
		return err
	}
	s.logger.Info("Device suspended", "mac", dev.MAC, "reason", reason)
	return nil
}

// ResumeDevice clears the manual suspension flag on an end-device.
func (s *Service) ResumeDevice(ctx context.Context, deviceID uuid.UUID) error {
	dev, err := s.store.GetDevice(ctx, deviceID)
	if err != nil {
		return err
	}
	if !dev.Suspended {
		return &policy.ConflictError{Msg: fmt.Sprintf("device %s is not suspended", dev.MAC)}
	}
	if err := s.store.SetManualSuspension(ctx, deviceID, false, nil); err != nil {
		return err
	}
	s.logger.Info("Device resumed", "mac", dev.MAC)
	return nil
}

// SuspendGuestDevices flags every device registered to a guest. It
// returns the number of devices newly suspended.
func (s *Service) SuspendGuestDevices(ctx context.Context, guestID uuid.UUID, reason string) (int, error) {
	devices, err := s.store.ListDevicesByGuest(ctx, guestID)
	if err != nil {
		return 0, err
	}
	suspended := 0
	for i := range devices {
		dev := &devices[i]
		if dev.Suspended {
			continue
		}
		if err := s.store.SetManualSuspension(ctx, dev.ID, true, &reason); err != nil {
			return suspended, fmt.Errorf("suspend device %s: %w", dev.MAC, err)
		}
		suspended++
	}
	s.logger.Info("Guest devices suspended",
		"guest_id", guestID, "suspended", suspended, "total", len(devices))
	return suspended, nil
}

// EnforcementReport aggregates one batch enforcement run.
type EnforcementReport struct {
	Total     int      `json:"total"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors"`
}

// EnforceSuspensions physically blocks every suspended device (manual
// or automatic) on the given equipment. Per-device failures are
// collected; the batch never aborts early.
func (s *Service) EnforceSuspensions(ctx context.Context, networkDeviceID uuid.UUID) (EnforcementReport, error) {
	report := EnforcementReport{Errors: []string{}}

	devices, err := s.store.ListSuspendedDevices(ctx)
	if err != nil {
		return report, fmt.Errorf("list suspended devices: %w", err)
	}

	for i := range devices {
		dev := &devices[i]
		report.Total++

		reason := "suspension enforcement"
		if dev.SuspensionReason != nil {
			reason = *dev.SuspensionReason
		} else if dev.AutoSuspensionReason != nil {
			reason = *dev.AutoSuspensionReason
		}

		_, err := s.mutate(ctx, networkDeviceID, models.TicketSuspension, dev.MAC, reason,
			tickets.Options{Priority: models.PriorityHigh}, models.ActivityBlocked, true,
			func(ctx context.Context, a netops.Adapter, mac string) (string, error) {
				return a.BlockMAC(ctx, mac, reason)
			})
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", dev.MAC, err))
			continue
		}
		report.Succeeded++
	}

	s.logger.Info("Suspension enforcement completed",
		"network_device_id", networkDeviceID,
		"total", report.Total, "succeeded", report.Succeeded, "failed", report.Failed)
	return report, nil
}
