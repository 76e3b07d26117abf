package policy

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
)

// fakeStore is an in-memory Store for engine tests.
type fakeStore struct {
	mu sync.Mutex

	guests      map[uuid.UUID]bool
	occupancies map[uuid.UUID]bool
	arrears     map[uuid.UUID]bool
	staff       map[uuid.UUID]models.StaffStatus
	devices     []models.Device

	applied    [][]SuspensionChange
	applyErr   error
	listErr    error
	staffErr   error
	blockApply func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		guests:      make(map[uuid.UUID]bool),
		occupancies: make(map[uuid.UUID]bool),
		arrears:     make(map[uuid.UUID]bool),
		staff:       make(map[uuid.UUID]models.StaffStatus),
	}
}

func (f *fakeStore) GuestExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return f.guests[id], nil
}

func (f *fakeStore) HasActiveOccupancy(ctx context.Context, id uuid.UUID) (bool, error) {
	return f.occupancies[id], nil
}

func (f *fakeStore) HasPendingPayment(ctx context.Context, id uuid.UUID) (bool, error) {
	return f.arrears[id], nil
}

func (f *fakeStore) StaffStatus(ctx context.Context, id uuid.UUID) (models.StaffStatus, bool, error) {
	if f.staffErr != nil {
		return "", false, f.staffErr
	}
	status, ok := f.staff[id]
	return status, ok, nil
}

func (f *fakeStore) ListManagedDevices(ctx context.Context) ([]models.Device, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]models.Device, len(f.devices))
	copy(out, f.devices)
	return out, nil
}

func (f *fakeStore) ApplySuspensionChanges(ctx context.Context, changes []SuspensionChange) error {
	if f.blockApply != nil {
		f.blockApply()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applied = append(f.applied, changes)
	for _, ch := range changes {
		for i := range f.devices {
			if f.devices[i].ID == ch.DeviceID {
				f.devices[i].AutoSuspended = ch.Suspend
				if ch.Suspend {
					r := string(ch.Reason)
					f.devices[i].AutoSuspensionReason = &r
				} else {
					f.devices[i].AutoSuspensionReason = nil
				}
			}
		}
	}
	return nil
}

func testEngine(store Store) *Engine {
	return NewEngine(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// checkedInGuest adds a guest with an active occupancy and no arrears.
func (f *fakeStore) checkedInGuest() uuid.UUID {
	id := uuid.New()
	f.guests[id] = true
	f.occupancies[id] = true
	return id
}

func guestDevice(guestID uuid.UUID, mac string) models.Device {
	return models.Device{ID: uuid.New(), MAC: mac, GuestID: &guestID}
}

func TestSuspensionReasonActiveGuest(t *testing.T) {
	store := newFakeStore()
	guestID := store.checkedInGuest()
	dev := guestDevice(guestID, "AA:BB:CC:00:00:01")

	reason, err := testEngine(store).SuspensionReason(context.Background(), &dev)
	if err != nil {
		t.Fatal(err)
	}
	if reason != ReasonNone {
		t.Errorf("reason = %q, want none for a checked-in guest", reason)
	}
}

func TestSuspensionReasonCheckedOutGuest(t *testing.T) {
	store := newFakeStore()
	guestID := store.checkedInGuest()
	store.occupancies[guestID] = false
	dev := guestDevice(guestID, "AA:BB:CC:00:00:02")

	reason, err := testEngine(store).SuspensionReason(context.Background(), &dev)
	if err != nil {
		t.Fatal(err)
	}
	if reason != ReasonNoActiveOccupancy {
		t.Errorf("reason = %q, want %q", reason, ReasonNoActiveOccupancy)
	}
}

func TestSuspensionReasonGuestInArrears(t *testing.T) {
	store := newFakeStore()
	guestID := store.checkedInGuest()
	store.arrears[guestID] = true
	dev := guestDevice(guestID, "AA:BB:CC:00:00:03")

	reason, err := testEngine(store).SuspensionReason(context.Background(), &dev)
	if err != nil {
		t.Fatal(err)
	}
	if reason != ReasonGuestInArrears {
		t.Errorf("reason = %q, want %q", reason, ReasonGuestInArrears)
	}
}

func TestSuspensionReasonStaff(t *testing.T) {
	store := newFakeStore()
	engine := testEngine(store)

	activeID := uuid.New()
	store.staff[activeID] = models.StaffActive
	leaveID := uuid.New()
	store.staff[leaveID] = models.StaffOnLeave

	activeDev := models.Device{ID: uuid.New(), MAC: "AA:BB:CC:00:00:04", StaffID: &activeID}
	reason, err := engine.SuspensionReason(context.Background(), &activeDev)
	if err != nil {
		t.Fatal(err)
	}
	if reason != ReasonNone {
		t.Errorf("active staff device: reason = %q, want none", reason)
	}

	leaveDev := models.Device{ID: uuid.New(), MAC: "AA:BB:CC:00:00:05", StaffID: &leaveID}
	reason, err = engine.SuspensionReason(context.Background(), &leaveDev)
	if err != nil {
		t.Fatal(err)
	}
	if reason != ReasonStaffInactive {
		t.Errorf("on-leave staff device: reason = %q, want %q", reason, ReasonStaffInactive)
	}

	missingID := uuid.New()
	missingDev := models.Device{ID: uuid.New(), MAC: "AA:BB:CC:00:00:06", StaffID: &missingID}
	reason, err = engine.SuspensionReason(context.Background(), &missingDev)
	if err != nil {
		t.Fatal(err)
	}
	if reason != ReasonStaffInactive {
		t.Errorf("missing staff device: reason = %q, want %q", reason, ReasonStaffInactive)
	}
}

func TestSuspensionReasonOrphanDevice(t *testing.T) {
	store := newFakeStore()
	dev := models.Device{ID: uuid.New(), MAC: "AA:BB:CC:00:00:07"}

	reason, err := testEngine(store).SuspensionReason(context.Background(), &dev)
	if err != nil {
		t.Fatal(err)
	}
	if reason != ReasonNoActiveOccupancy {
		t.Errorf("orphan device: reason = %q, want %q", reason, ReasonNoActiveOccupancy)
	}
}

func TestAutoSuspendIdempotent(t *testing.T) {
	engine := testEngine(newFakeStore())
	now := time.Now()
	dev := models.Device{ID: uuid.New(), MAC: "AA:BB:CC:00:00:08"}

	if !engine.AutoSuspend(&dev, ReasonGuestInArrears, now) {
		t.Fatal("first AutoSuspend returned false")
	}
	firstDate := *dev.AutoSuspensionDate

	if engine.AutoSuspend(&dev, ReasonNoActiveOccupancy, now.Add(time.Hour)) {
		t.Error("second AutoSuspend must be a no-op")
	}
	if *dev.AutoSuspensionReason != string(ReasonGuestInArrears) {
		t.Error("second AutoSuspend overwrote the original reason")
	}
	if !dev.AutoSuspensionDate.Equal(firstDate) {
		t.Error("second AutoSuspend overwrote the original date")
	}
}

func TestAutoReactivateReevaluatesState(t *testing.T) {
	store := newFakeStore()
	engine := testEngine(store)
	guestID := store.checkedInGuest()
	store.arrears[guestID] = true
	dev := guestDevice(guestID, "AA:BB:CC:00:00:09")
	engine.AutoSuspend(&dev, ReasonGuestInArrears, time.Now())

	// Still in arrears: no reactivation.
	changed, err := engine.AutoReactivate(context.Background(), &dev)
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Fatal("reactivated while business state still justifies suspension")
	}

	// Arrears cleared: reactivation proceeds.
	store.arrears[guestID] = false
	changed, err = engine.AutoReactivate(context.Background(), &dev)
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Fatal("expected reactivation after arrears cleared")
	}
	if dev.AutoSuspended || dev.AutoSuspensionReason != nil || dev.AutoSuspensionDate != nil {
		t.Error("reactivation must clear all auto-suspension fields")
	}
}

// Three devices: A belongs to a checked-in guest, B to a checked-out
// guest, C is already auto-suspended with its guest still checked out.
func sweepFixture() (*fakeStore, *Engine) {
	store := newFakeStore()
	engine := testEngine(store)

	activeGuest := store.checkedInGuest()
	goneGuest := store.checkedInGuest()
	store.occupancies[goneGuest] = false

	reason := string(ReasonNoActiveOccupancy)
	store.devices = []models.Device{
		guestDevice(activeGuest, "AA:BB:CC:00:00:0A"),
		guestDevice(goneGuest, "AA:BB:CC:00:00:0B"),
		{
			ID: uuid.New(), MAC: "AA:BB:CC:00:00:0C", GuestID: &goneGuest,
			AutoSuspended: true, AutoSuspensionReason: &reason,
		},
	}
	return store, engine
}

func TestSweepAll(t *testing.T) {
	store, engine := sweepFixture()

	result, err := engine.SweepAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if result.Checked != 3 {
		t.Errorf("Checked = %d, want 3", result.Checked)
	}
	if result.NewlySuspended != 1 {
		t.Errorf("NewlySuspended = %d, want 1", result.NewlySuspended)
	}
	if result.AlreadySuspended != 1 {
		t.Errorf("AlreadySuspended = %d, want 1", result.AlreadySuspended)
	}
	if result.Reactivated != 0 {
		t.Errorf("Reactivated = %d, want 0", result.Reactivated)
	}
	if len(result.Errors) != 0 {
		t.Errorf("Errors = %v, want none", result.Errors)
	}
	if len(store.applied) != 1 || len(store.applied[0]) != 1 {
		t.Fatalf("expected exactly one applied change, got %v", store.applied)
	}
	if store.applied[0][0].MAC != "AA:BB:CC:00:00:0B" || !store.applied[0][0].Suspend {
		t.Errorf("unexpected change %+v", store.applied[0][0])
	}
}

func TestSweepAllIdempotent(t *testing.T) {
	store, engine := sweepFixture()

	if _, err := engine.SweepAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	second, err := engine.SweepAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if second.NewlySuspended != 0 {
		t.Errorf("second sweep NewlySuspended = %d, want 0", second.NewlySuspended)
	}
	if second.AlreadySuspended != 2 {
		t.Errorf("second sweep AlreadySuspended = %d, want 2", second.AlreadySuspended)
	}
	if len(store.applied) != 1 {
		t.Errorf("second sweep wrote changes: %v", store.applied)
	}
}

func TestSweepReactivates(t *testing.T) {
	store, engine := sweepFixture()
	if _, err := engine.SweepAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	// The gone guest checks back in.
	for id := range store.guests {
		store.occupancies[id] = true
	}

	result, err := engine.SweepAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Reactivated != 2 {
		t.Errorf("Reactivated = %d, want 2", result.Reactivated)
	}
	for _, dev := range store.devices {
		if dev.AutoSuspended {
			t.Errorf("device %s still auto-suspended after reactivating sweep", dev.MAC)
		}
	}
}

func TestSweepMixedOutcomesInOneRun(t *testing.T) {
	store := newFakeStore()
	engine := testEngine(store)

	goneGuest := store.checkedInGuest()
	store.occupancies[goneGuest] = false
	backGuest := store.checkedInGuest()

	reason := string(ReasonNoActiveOccupancy)
	store.devices = []models.Device{
		// Needs suspension.
		guestDevice(goneGuest, "AA:BB:CC:00:00:10"),
		// Already suspended, still qualifies.
		{
			ID: uuid.New(), MAC: "AA:BB:CC:00:00:11", GuestID: &goneGuest,
			AutoSuspended: true, AutoSuspensionReason: &reason,
		},
		// Suspended earlier, guest has since checked back in.
		{
			ID: uuid.New(), MAC: "AA:BB:CC:00:00:12", GuestID: &backGuest,
			AutoSuspended: true, AutoSuspensionReason: &reason,
		},
	}

	result, err := engine.SweepAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Checked != 3 || result.NewlySuspended != 1 ||
		result.AlreadySuspended != 1 || result.Reactivated != 1 {
		t.Errorf("result = %+v, want checked 3, newly 1, already 1, reactivated 1", result)
	}
	if len(result.Errors) != 0 {
		t.Errorf("Errors = %v, want none", result.Errors)
	}
	// Both flag flips land in one ApplySuspensionChanges call.
	if len(store.applied) != 1 || len(store.applied[0]) != 2 {
		t.Fatalf("expected one commit with two changes, got %v", store.applied)
	}
}

func TestSweepCollectsPerDeviceErrors(t *testing.T) {
	store := newFakeStore()
	engine := testEngine(store)

	staffID := uuid.New()
	store.staffErr = errors.New("staff table unavailable")
	store.devices = []models.Device{
		{ID: uuid.New(), MAC: "AA:BB:CC:00:00:0D", StaffID: &staffID},
		guestDevice(store.checkedInGuest(), "AA:BB:CC:00:00:0E"),
	}

	result, err := engine.SweepAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Checked != 2 {
		t.Errorf("Checked = %d, want 2 (errors still count as checked)", result.Checked)
	}
	if len(result.Errors) != 1 {
		t.Errorf("Errors = %v, want exactly one", result.Errors)
	}
}

func TestSweepSingleFlight(t *testing.T) {
	store, engine := sweepFixture()

	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	store.blockApply = func() {
		once.Do(func() { close(entered) })
		<-release
	}

	done := make(chan error, 1)
	go func() {
		_, err := engine.SweepAll(context.Background())
		done <- err
	}()

	<-entered
	_, err := engine.SweepAll(context.Background())
	if !errors.Is(err, ErrSweepInProgress) {
		t.Errorf("concurrent sweep returned %v, want ErrSweepInProgress", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first sweep failed: %v", err)
	}
}
