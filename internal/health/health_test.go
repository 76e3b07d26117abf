package health

import (
	"testing"
	"time"

	"github.com/guestgate/guestgate/internal/models"
)

func TestFreshDeviceReportsFullSuccessRate(t *testing.T) {
	if got := models.ComputeSuccessRate(0, 0); got != 100 {
		t.Errorf("ComputeSuccessRate(0, 0) = %v, want 100", got)
	}
}

func TestBeginAttempt(t *testing.T) {
	now := time.Now()
	dev := &models.NetworkDevice{ConnectionStatus: models.StatusDisconnected}

	BeginAttempt(dev, now)

	if dev.ConnectionStatus != models.StatusTesting {
		t.Errorf("status = %q, want %q", dev.ConnectionStatus, models.StatusTesting)
	}
	if dev.LastConnectionAttempt == nil || !dev.LastConnectionAttempt.Equal(now) {
		t.Error("LastConnectionAttempt not recorded")
	}
}

func TestBeginAttemptKeepsEstablishedStatus(t *testing.T) {
	now := time.Now()
	dev := &models.NetworkDevice{ConnectionStatus: models.StatusConnected}

	BeginAttempt(dev, now)

	if dev.ConnectionStatus != models.StatusConnected {
		t.Errorf("status flipped to %q, established status must survive an attempt", dev.ConnectionStatus)
	}
}

func TestRecordSuccess(t *testing.T) {
	now := time.Now()
	msg := "previous failure"
	dev := &models.NetworkDevice{
		ConnectionStatus: models.StatusError,
		TotalOperations:  9,
		FailedOperations: 3,
		LastErrorMessage: &msg,
	}

	RecordSuccess(dev, now)

	if dev.TotalOperations != 10 || dev.FailedOperations != 3 {
		t.Errorf("counters = %d/%d, want 10/3", dev.TotalOperations, dev.FailedOperations)
	}
	if dev.SuccessRate != 70 {
		t.Errorf("SuccessRate = %v, want 70", dev.SuccessRate)
	}
	if dev.ConnectionStatus != models.StatusConnected {
		t.Errorf("status = %q, want connected", dev.ConnectionStatus)
	}
	if dev.LastSuccessfulConnection == nil || !dev.LastSuccessfulConnection.Equal(now) {
		t.Error("LastSuccessfulConnection not recorded")
	}
	if dev.LastErrorMessage != nil {
		t.Error("LastErrorMessage must be cleared on success")
	}
}

func TestRecordFailure(t *testing.T) {
	now := time.Now()
	dev := &models.NetworkDevice{
		ConnectionStatus: models.StatusConnected,
		TotalOperations:  3,
		FailedOperations: 0,
	}

	RecordFailure(dev, now, "connection refused")

	if dev.TotalOperations != 4 || dev.FailedOperations != 1 {
		t.Errorf("counters = %d/%d, want 4/1", dev.TotalOperations, dev.FailedOperations)
	}
	if dev.SuccessRate != 75 {
		t.Errorf("SuccessRate = %v, want 75", dev.SuccessRate)
	}
	if dev.ConnectionStatus != models.StatusError {
		t.Errorf("status = %q, want error", dev.ConnectionStatus)
	}
	if dev.LastErrorMessage == nil || *dev.LastErrorMessage != "connection refused" {
		t.Error("LastErrorMessage not recorded")
	}
}

func TestSuccessRateRecomputedEveryOperation(t *testing.T) {
	now := time.Now()
	dev := &models.NetworkDevice{}

	RecordSuccess(dev, now)
	if dev.SuccessRate != 100 {
		t.Fatalf("after one success, rate = %v, want 100", dev.SuccessRate)
	}
	RecordFailure(dev, now, "timeout")
	if dev.SuccessRate != 50 {
		t.Fatalf("after one success and one failure, rate = %v, want 50", dev.SuccessRate)
	}
	RecordSuccess(dev, now)
	RecordSuccess(dev, now)
	if dev.SuccessRate != 75 {
		t.Fatalf("after 3/4 successes, rate = %v, want 75", dev.SuccessRate)
	}
}
