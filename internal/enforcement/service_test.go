package enforcement

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/guestgate/guestgate/internal/models"
	"github.com/guestgate/guestgate/internal/netops"
	"github.com/guestgate/guestgate/internal/policy"
	"github.com/guestgate/guestgate/internal/tickets"
)

// fakeAdapter scripts adapter outcomes for service tests.
type fakeAdapter struct {
	blockErr   error
	blockHook  func(mac string)
	blockCalls int
	lastMAC    string
	mu         sync.Mutex
}

func (f *fakeAdapter) Vendor() string { return "fake" }

func (f *fakeAdapter) TestConnection(ctx context.Context) (netops.TestResult, error) {
	if f.blockErr != nil {
		return netops.TestResult{Connected: false, Message: f.blockErr.Error()}, f.blockErr
	}
	return netops.TestResult{Connected: true, Message: "ok"}, nil
}

func (f *fakeAdapter) BlockMAC(ctx context.Context, mac, reason string) (string, error) {
	f.mu.Lock()
	f.blockCalls++
	f.lastMAC = mac
	f.mu.Unlock()
	if f.blockHook != nil {
		f.blockHook(mac)
	}
	if f.blockErr != nil {
		return "", f.blockErr
	}
	return "blocked " + mac, nil
}

func (f *fakeAdapter) UnblockMAC(ctx context.Context, mac string) (string, error) {
	return "unblocked " + mac, nil
}

func (f *fakeAdapter) GetBlockedMACs(ctx context.Context) ([]string, error) {
	return []string{"AA:BB:CC:DD:EE:FF"}, nil
}

func (f *fakeAdapter) SetBandwidthLimit(ctx context.Context, mac string, limitMbps float64) (string, error) {
	return "limited", nil
}

func (f *fakeAdapter) RemoveBandwidthLimit(ctx context.Context, mac string) (string, error) {
	return "restored", nil
}

func (f *fakeAdapter) GetDeviceStats(ctx context.Context) (netops.DeviceStats, error) {
	return netops.DeviceStats{Hostname: "fake"}, nil
}

func (f *fakeAdapter) GetConnectedDevices(ctx context.Context) ([]netops.ClientInfo, error) {
	return nil, nil
}

// fakeStore is an in-memory Store for service tests.
type fakeStore struct {
	mu sync.Mutex

	networkDevices map[uuid.UUID]*models.NetworkDevice
	devices        map[uuid.UUID]*models.Device
	byMAC          map[string]*models.Device

	finalized []FinalizeParams
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		networkDevices: make(map[uuid.UUID]*models.NetworkDevice),
		devices:        make(map[uuid.UUID]*models.Device),
		byMAC:          make(map[string]*models.Device),
	}
}

func (f *fakeStore) addDevice(d models.Device) *models.Device {
	f.devices[d.ID] = &d
	f.byMAC[d.MAC] = &d
	return &d
}

func (f *fakeStore) GetNetworkDevice(ctx context.Context, id uuid.UUID) (*models.NetworkDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	nd, ok := f.networkDevices[id]
	if !ok {
		return nil, errors.New("network device not found")
	}
	copied := *nd
	return &copied, nil
}

func (f *fakeStore) ListNetworkDevices(ctx context.Context) ([]models.NetworkDevice, error) {
	return nil, nil
}

func (f *fakeStore) GetDevice(ctx context.Context, id uuid.UUID) (*models.Device, error) {
	d, ok := f.devices[id]
	if !ok {
		return nil, errors.New("device not found")
	}
	copied := *d
	return &copied, nil
}

func (f *fakeStore) GetDeviceByMAC(ctx context.Context, mac string) (*models.Device, error) {
	d, ok := f.byMAC[mac]
	if !ok {
		return nil, errors.New("device not found")
	}
	return d, nil
}

func (f *fakeStore) ListDevicesByGuest(ctx context.Context, guestID uuid.UUID) ([]models.Device, error) {
	var out []models.Device
	for _, d := range f.devices {
		if d.GuestID != nil && *d.GuestID == guestID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeStore) ListSuspendedDevices(ctx context.Context) ([]models.Device, error) {
	var out []models.Device
	for _, d := range f.devices {
		if d.Suspended || d.AutoSuspended {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeStore) SetManualSuspension(ctx context.Context, deviceID uuid.UUID, suspended bool, reason *string) error {
	d, ok := f.devices[deviceID]
	if !ok {
		return errors.New("device not found")
	}
	d.Suspended = suspended
	d.SuspensionReason = reason
	return nil
}

func (f *fakeStore) FinalizeOperation(ctx context.Context, params FinalizeParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalized = append(f.finalized, params)
	// Persist the counter updates like the real store does.
	if nd, ok := f.networkDevices[params.NetworkDevice.ID]; ok {
		*nd = *params.NetworkDevice
	}
	return nil
}

type fakeDecrypter struct{}

func (fakeDecrypter) DecryptCredentials(models.EncryptedData) (netops.Credentials, error) {
	return netops.Credentials{Username: "u", Password: "p"}, nil
}

// fixture wires a service against one fake equipment record with a
// scripted adapter.
func fixture(t *testing.T, adapter *fakeAdapter) (*Service, *fakeStore, uuid.UUID) {
	t.Helper()
	store := newFakeStore()
	nd := &models.NetworkDevice{
		ID:                       uuid.New(),
		Name:                     "gw-1",
		Brand:                    models.BrandMikrotik,
		SupportsMACBlocking:      true,
		SupportsBandwidthControl: true,
		TimeoutSeconds:           5,
	}
	store.networkDevices[nd.ID] = nd

	registry := netops.NewRegistry()
	registry.Register(models.BrandMikrotik, func(cfg netops.Config) netops.Adapter { return adapter })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(store, registry, fakeDecrypter{}, nil, logger)
	return svc, store, nd.ID
}

func TestBlockMACSuccess(t *testing.T) {
	adapter := &fakeAdapter{}
	svc, store, ndID := fixture(t, adapter)

	ticket, err := svc.BlockMAC(context.Background(), ndID, "aa-bb-cc-dd-ee-ff", "arrears", tickets.Options{})
	if err != nil {
		t.Fatalf("BlockMAC: %v", err)
	}

	if adapter.lastMAC != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("adapter received MAC %q, want canonical form", adapter.lastMAC)
	}
	if ticket.Status != models.TicketResolved || ticket.ActionStatus != models.ActionSuccess {
		t.Errorf("ticket state %s/%s, want resolved/success", ticket.Status, ticket.ActionStatus)
	}

	nd := store.networkDevices[ndID]
	if nd.TotalOperations != 1 || nd.FailedOperations != 0 {
		t.Errorf("counters %d/%d, want 1/0", nd.TotalOperations, nd.FailedOperations)
	}
	if nd.ConnectionStatus != models.StatusConnected {
		t.Errorf("status = %q, want connected", nd.ConnectionStatus)
	}

	if len(store.finalized) != 1 {
		t.Fatalf("FinalizeOperation called %d times, want 1", len(store.finalized))
	}
	if store.finalized[0].Activity == nil {
		t.Error("successful block must append an activity entry")
	}
}

func TestBlockMACAdapterFailure(t *testing.T) {
	adapter := &fakeAdapter{blockErr: &netops.TransientError{Vendor: "fake", Op: "block", Err: errors.New("timeout")}}
	svc, store, ndID := fixture(t, adapter)

	ticket, err := svc.BlockMAC(context.Background(), ndID, "AA:BB:CC:DD:EE:FF", "arrears", tickets.Options{})
	if err == nil {
		t.Fatal("expected error from failing adapter")
	}
	if ticket == nil {
		t.Fatal("failed operation must still produce a ticket")
	}
	if ticket.ActionStatus != models.ActionFailed {
		t.Errorf("action status = %q, want failed", ticket.ActionStatus)
	}
	if ticket.ResolvedAt != nil {
		t.Error("failed ticket must stay unresolved")
	}

	nd := store.networkDevices[ndID]
	if nd.TotalOperations != 1 || nd.FailedOperations != 1 {
		t.Errorf("counters %d/%d, want 1/1", nd.TotalOperations, nd.FailedOperations)
	}
	if nd.ConnectionStatus != models.StatusError {
		t.Errorf("status = %q, want error", nd.ConnectionStatus)
	}
	if store.finalized[0].Activity != nil {
		t.Error("failed block must not append an activity entry")
	}
}

func TestBlockMACInvalidInputSkipsEverything(t *testing.T) {
	adapter := &fakeAdapter{}
	svc, store, ndID := fixture(t, adapter)

	_, err := svc.BlockMAC(context.Background(), ndID, "not-a-mac", "arrears", tickets.Options{})
	var ve *netops.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error %T, want *ValidationError", err)
	}
	if adapter.blockCalls != 0 {
		t.Error("validation failure must not reach the adapter")
	}
	if len(store.finalized) != 0 {
		t.Error("validation failure must not touch the store")
	}
	if store.networkDevices[ndID].TotalOperations != 0 {
		t.Error("validation failure must not touch the counters")
	}
}

func TestCapabilityCheckedBeforeNetwork(t *testing.T) {
	adapter := &fakeAdapter{}
	svc, store, ndID := fixture(t, adapter)
	store.networkDevices[ndID].SupportsMACBlocking = false

	_, err := svc.BlockMAC(context.Background(), ndID, "AA:BB:CC:DD:EE:FF", "arrears", tickets.Options{})
	var ns *netops.NotSupportedError
	if !errors.As(err, &ns) {
		t.Fatalf("error %T, want *NotSupportedError", err)
	}
	if adapter.blockCalls != 0 {
		t.Error("capability failure must not reach the adapter")
	}
	if store.networkDevices[ndID].TotalOperations != 0 {
		t.Error("capability failure must not touch the counters")
	}
}

func TestSameDeviceCallsSerialize(t *testing.T) {
	parkMAC := "AA:BB:CC:DD:EE:F1"
	entered := make(chan string, 2)
	release := make(chan struct{})

	adapter := &fakeAdapter{blockHook: func(mac string) {
		entered <- mac
		if mac == parkMAC {
			<-release
		}
	}}
	svc, store, ndID := fixture(t, adapter)

	// Second piece of equipment, same brand, same adapter.
	other := &models.NetworkDevice{
		ID:                  uuid.New(),
		Name:                "gw-2",
		Brand:               models.BrandMikrotik,
		SupportsMACBlocking: true,
		TimeoutSeconds:      5,
	}
	store.networkDevices[other.ID] = other

	firstDone := make(chan error, 1)
	go func() {
		_, err := svc.BlockMAC(context.Background(), ndID, parkMAC, "x", tickets.Options{})
		firstDone <- err
	}()
	if got := <-entered; got != parkMAC {
		t.Fatalf("first call entered with %q", got)
	}

	// Same equipment: must queue behind the parked call.
	secondDone := make(chan error, 1)
	go func() {
		_, err := svc.BlockMAC(context.Background(), ndID, "AA:BB:CC:DD:EE:F2", "x", tickets.Options{})
		secondDone <- err
	}()
	select {
	case mac := <-entered:
		t.Fatalf("call for %s reached the adapter while the first was in flight", mac)
	case <-time.After(100 * time.Millisecond):
	}

	// Different equipment: proceeds immediately.
	otherDone := make(chan error, 1)
	go func() {
		_, err := svc.BlockMAC(context.Background(), other.ID, "AA:BB:CC:DD:EE:F3", "x", tickets.Options{})
		otherDone <- err
	}()
	select {
	case err := <-otherDone:
		if err != nil {
			t.Fatalf("operation on other equipment: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("operation on other equipment queued behind an unrelated one")
	}
	if got := <-entered; got != "AA:BB:CC:DD:EE:F3" {
		t.Fatalf("other equipment call entered with %q", got)
	}

	close(release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first call: %v", err)
	}
	if err := <-secondDone; err != nil {
		t.Fatalf("second call: %v", err)
	}
	if got := <-entered; got != "AA:BB:CC:DD:EE:F2" {
		t.Fatalf("queued call entered with %q", got)
	}

	if n := store.networkDevices[ndID].TotalOperations; n != 2 {
		t.Errorf("first equipment counters = %d, want 2", n)
	}
	if n := store.networkDevices[other.ID].TotalOperations; n != 1 {
		t.Errorf("other equipment counters = %d, want 1", n)
	}
}

func TestSuspendResumeDevice(t *testing.T) {
	adapter := &fakeAdapter{}
	svc, store, _ := fixture(t, adapter)
	dev := store.addDevice(models.Device{ID: uuid.New(), MAC: "AA:BB:CC:DD:EE:01"})

	if err := svc.SuspendDevice(context.Background(), dev.ID, "operator request"); err != nil {
		t.Fatalf("SuspendDevice: %v", err)
	}

	// Second suspension conflicts.
	err := svc.SuspendDevice(context.Background(), dev.ID, "again")
	var conflict *policy.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("double suspend returned %T, want *ConflictError", err)
	}

	if err := svc.ResumeDevice(context.Background(), dev.ID); err != nil {
		t.Fatalf("ResumeDevice: %v", err)
	}

	// Resuming an unsuspended device conflicts.
	err = svc.ResumeDevice(context.Background(), dev.ID)
	if !errors.As(err, &conflict) {
		t.Fatalf("resume of unsuspended device returned %T, want *ConflictError", err)
	}
}

func TestSuspendGuestDevices(t *testing.T) {
	adapter := &fakeAdapter{}
	svc, store, _ := fixture(t, adapter)

	guestID := uuid.New()
	store.addDevice(models.Device{ID: uuid.New(), MAC: "AA:BB:CC:DD:EE:02", GuestID: &guestID})
	store.addDevice(models.Device{ID: uuid.New(), MAC: "AA:BB:CC:DD:EE:03", GuestID: &guestID})
	already := "already"
	store.addDevice(models.Device{ID: uuid.New(), MAC: "AA:BB:CC:DD:EE:04", GuestID: &guestID, Suspended: true, SuspensionReason: &already})

	count, err := svc.SuspendGuestDevices(context.Background(), guestID, "checkout")
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("suspended %d devices, want 2 (one was already suspended)", count)
	}
}

func TestEnforceSuspensionsAggregatesFailures(t *testing.T) {
	adapter := &fakeAdapter{}
	svc, store, ndID := fixture(t, adapter)

	reason := "NO_ACTIVE_OCCUPANCY"
	store.addDevice(models.Device{ID: uuid.New(), MAC: "AA:BB:CC:DD:EE:05", AutoSuspended: true, AutoSuspensionReason: &reason})
	store.addDevice(models.Device{ID: uuid.New(), MAC: "AA:BB:CC:DD:EE:06", Suspended: true})
	store.addDevice(models.Device{ID: uuid.New(), MAC: "AA:BB:CC:DD:EE:07"}) // not suspended

	report, err := svc.EnforceSuspensions(context.Background(), ndID)
	if err != nil {
		t.Fatal(err)
	}
	if report.Total != 2 {
		t.Errorf("Total = %d, want 2 (unsuspended devices are not enforced)", report.Total)
	}
	if report.Succeeded != 2 || report.Failed != 0 {
		t.Errorf("report %d/%d, want 2 succeeded, 0 failed", report.Succeeded, report.Failed)
	}
	if adapter.blockCalls != 2 {
		t.Errorf("adapter called %d times, want 2", adapter.blockCalls)
	}

	// Every enforcement cut a suspension ticket.
	for _, fin := range store.finalized {
		if fin.Ticket == nil || fin.Ticket.TicketType != models.TicketSuspension {
			t.Errorf("expected suspension tickets, got %+v", fin.Ticket)
		}
	}
}

func TestEnforceSuspensionsContinuesPastFailures(t *testing.T) {
	adapter := &fakeAdapter{blockErr: &netops.TransientError{Vendor: "fake", Op: "block", Err: errors.New("refused")}}
	svc, store, ndID := fixture(t, adapter)

	store.addDevice(models.Device{ID: uuid.New(), MAC: "AA:BB:CC:DD:EE:08", Suspended: true})
	store.addDevice(models.Device{ID: uuid.New(), MAC: "AA:BB:CC:DD:EE:09", Suspended: true})

	report, err := svc.EnforceSuspensions(context.Background(), ndID)
	if err != nil {
		t.Fatal(err)
	}
	if report.Failed != 2 || report.Succeeded != 0 {
		t.Errorf("report %d succeeded / %d failed, want 0/2", report.Succeeded, report.Failed)
	}
	if len(report.Errors) != 2 {
		t.Errorf("Errors = %v, want two entries", report.Errors)
	}
	if adapter.blockCalls != 2 {
		t.Errorf("adapter called %d times, want 2 (batch must not abort early)", adapter.blockCalls)
	}
}

func TestReadOnlyOpsCountAgainstHealth(t *testing.T) {
	adapter := &fakeAdapter{}
	svc, store, ndID := fixture(t, adapter)

	if _, err := svc.GetDeviceStats(context.Background(), ndID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GetBlockedMACs(context.Background(), ndID); err != nil {
		t.Fatal(err)
	}

	nd := store.networkDevices[ndID]
	if nd.TotalOperations != 2 {
		t.Errorf("counters = %d, want 2 (reads are operations too)", nd.TotalOperations)
	}
	for _, fin := range store.finalized {
		if fin.Ticket != nil {
			t.Error("read-only operations must not cut tickets")
		}
	}
}
