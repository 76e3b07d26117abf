// Package health is the operation accounting layer for managed
// equipment. It is the only code path permitted to mutate a
// NetworkDevice's operation counters, connection status and
// success rate. Counters are recomputed synchronously on every
// outcome, never cached or batch-updated.
package health

import (
	"time"

	"github.com/guestgate/guestgate/internal/models"
)

// BeginAttempt marks the start of an adapter call. A device that has
// never been probed moves to the testing state; devices with a known
// state keep it until the outcome lands.
func BeginAttempt(dev *models.NetworkDevice, now time.Time) {
	at := now
	dev.LastConnectionAttempt = &at
	if dev.ConnectionStatus == models.StatusDisconnected || dev.ConnectionStatus == "" {
		dev.ConnectionStatus = models.StatusTesting
	}
}

// RecordSuccess accounts one successful operation.
func RecordSuccess(dev *models.NetworkDevice, now time.Time) {
	dev.TotalOperations++
	dev.SuccessRate = models.ComputeSuccessRate(dev.TotalOperations, dev.FailedOperations)
	dev.ConnectionStatus = models.StatusConnected
	at := now
	dev.LastSuccessfulConnection = &at
	dev.LastErrorMessage = nil
}

// RecordFailure accounts one failed operation and captures the error
// message for the device record.
func RecordFailure(dev *models.NetworkDevice, now time.Time, message string) {
	dev.TotalOperations++
	dev.FailedOperations++
	dev.SuccessRate = models.ComputeSuccessRate(dev.TotalOperations, dev.FailedOperations)
	dev.ConnectionStatus = models.StatusError
	msg := message
	dev.LastErrorMessage = &msg
}
