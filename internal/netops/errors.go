package netops

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/guestgate/guestgate/internal/models"
)

// The error taxonomy every adapter call resolves into. Validation and
// unsupported-brand errors fail locally and never touch the operation
// counters; transient, authentication and protocol errors are counted
// as operation failures by the health accounting layer.

// ValidationError reports malformed input (bad MAC, bad limit). No
// network I/O is performed for a call that fails validation.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// UnsupportedBrandError is returned by the registry when no adapter is
// registered for a brand. It is never counted as an operation failure.
type UnsupportedBrandError struct {
	Brand models.DeviceBrand
}

func (e *UnsupportedBrandError) Error() string {
	return fmt.Sprintf("no adapter registered for brand %q", e.Brand)
}

// TransientError wraps timeouts and connectivity failures. These are
// retry-eligible at a higher layer.
type TransientError struct {
	Vendor string
	Op     string
	Err    error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Vendor, e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// AuthError reports rejected credentials or an expired session.
type AuthError struct {
	Vendor string
	Msg    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %s", e.Vendor, e.Msg)
}

// ProtocolError reports an unexpected or malformed vendor response.
// Raw carries a truncated copy of the offending payload for the ticket.
type ProtocolError struct {
	Vendor     string
	Op         string
	StatusCode int
	Msg        string
	Raw        string
}

func (e *ProtocolError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s: HTTP %d: %s", e.Vendor, e.Op, e.StatusCode, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Vendor, e.Op, e.Msg)
}

// NotSupportedError reports a capability the vendor protocol cannot
// express. It fails locally, before any remote call.
type NotSupportedError struct {
	Vendor     string
	Capability string
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("%s: %s is not supported by this adapter", e.Vendor, e.Capability)
}

// IsCountable reports whether an error should be recorded as an
// operation failure on the device. Local precondition failures are not
// operations at all.
func IsCountable(err error) bool {
	if err == nil {
		return false
	}
	var ve *ValidationError
	var ue *UnsupportedBrandError
	var ns *NotSupportedError
	if errors.As(err, &ve) || errors.As(err, &ue) || errors.As(err, &ns) {
		return false
	}
	return true
}

// transientErr classifies transport-level failures (timeout, refused
// connection, cancelled context) under the transient class.
func transientErr(vendor, op string, err error) error {
	return &TransientError{Vendor: vendor, Op: op, Err: err}
}

// isTransport reports whether err looks like a network-level failure
// rather than a vendor-level one.
func isTransport(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
