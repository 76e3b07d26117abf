// Package models holds the domain entities shared across the GuestGate
// services: managed network equipment, guest/staff end-devices under
// access control, the append-only activity log, and enforcement tickets.
package models

import (
	"time"

	"github.com/google/uuid"
)

// DeviceBrand identifies the vendor of a piece of managed equipment.
type DeviceBrand string

const (
	BrandUbiquiti DeviceBrand = "ubiquiti"
	BrandMikrotik DeviceBrand = "mikrotik"
	BrandCisco    DeviceBrand = "cisco"
	BrandTPLink   DeviceBrand = "tp_link"
	BrandAsus     DeviceBrand = "asus"
	BrandDLink    DeviceBrand = "dlink"
	BrandNetgear  DeviceBrand = "netgear"
	BrandAruba    DeviceBrand = "aruba"
	BrandFortinet DeviceBrand = "fortinet"
	BrandOpenWrt  DeviceBrand = "openwrt"
	BrandOther    DeviceBrand = "other"
)

// ConnectionStatus tracks the operational state of managed equipment.
// Transitions: disconnected -> testing -> {connected, error};
// {connected, error} -> connected on success, -> error on failure.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
	StatusTesting      ConnectionStatus = "testing"
)

// AuthType describes how an adapter authenticates against equipment.
type AuthType string

const (
	AuthBasic     AuthType = "basic"     // HTTP Basic (Mikrotik, Cisco)
	AuthToken     AuthType = "token"     // static Bearer token (Ubiquiti)
	AuthLogin     AuthType = "login"     // username/password exchanged for a session (Ubiquiti, OpenWrt)
	AuthCommunity AuthType = "community" // SNMP community string
)

// NetworkDevice is a piece of managed equipment (router, switch, AP,
// controller). Operation counters and connection status are mutated
// exclusively by the health accounting layer.
type NetworkDevice struct {
	ID         uuid.UUID   `db:"id" json:"id"`
	Name       string      `db:"name" json:"name"`
	Brand      DeviceBrand `db:"brand" json:"brand"`
	DeviceType string      `db:"device_type" json:"device_type"` // 'router', 'switch', 'access_point', 'controller'
	Host       string      `db:"host" json:"host"`
	Port       int         `db:"port" json:"port"`
	UseTLS     bool        `db:"use_tls" json:"use_tls"`
	VerifyTLS  bool        `db:"verify_tls" json:"verify_tls"`

	AuthType    AuthType      `db:"auth_type" json:"auth_type"`
	Credentials EncryptedData `db:"credentials" json:"-"` // AES-GCM encrypted JSON, opaque here

	TimeoutSeconds int `db:"timeout_seconds" json:"timeout_seconds"`

	SupportsMACBlocking      bool `db:"supports_mac_blocking" json:"supports_mac_blocking"`
	SupportsBandwidthControl bool `db:"supports_bandwidth_control" json:"supports_bandwidth_control"`
	SupportsClientListing    bool `db:"supports_client_listing" json:"supports_client_listing"`

	ConnectionStatus         ConnectionStatus `db:"connection_status" json:"connection_status"`
	TotalOperations          int64            `db:"total_operations" json:"total_operations"`
	FailedOperations         int64            `db:"failed_operations" json:"failed_operations"`
	SuccessRate              float64          `db:"success_rate" json:"success_rate"`
	LastConnectionAttempt    *time.Time       `db:"last_connection_attempt" json:"last_connection_attempt"`
	LastSuccessfulConnection *time.Time       `db:"last_successful_connection" json:"last_successful_connection"`
	LastErrorMessage         *string          `db:"last_error_message" json:"last_error_message"`

	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at"` // Soft delete
}

// Timeout returns the per-call deadline for this device.
func (d *NetworkDevice) Timeout() time.Duration {
	if d.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(d.TimeoutSeconds) * time.Second
}

// ComputeSuccessRate derives the success rate from the operation
// counters. A device with no operations yet reports 100.
func ComputeSuccessRate(total, failed int64) float64 {
	if total == 0 {
		return 100
	}
	return float64(total-failed) / float64(total) * 100
}

// Device is a guest or staff end-device under access control, keyed by
// its canonical MAC address (AA:BB:CC:DD:EE:FF). At most one of GuestID
// and StaffID is set; a device with neither is an orphan and is always
// eligible for auto-suspension.
type Device struct {
	ID      uuid.UUID  `db:"id" json:"id"`
	MAC     string     `db:"mac" json:"mac"`
	Name    string     `db:"name" json:"name"`
	GuestID *uuid.UUID `db:"guest_id" json:"guest_id"`
	StaffID *uuid.UUID `db:"staff_id" json:"staff_id"`

	// Manual suspension, set by an operator.
	Suspended        bool    `db:"suspended" json:"suspended"`
	SuspensionReason *string `db:"suspension_reason" json:"suspension_reason"`

	// Automatic suspension, set only by the policy engine.
	AutoSuspended        bool       `db:"auto_suspended" json:"auto_suspended"`
	AutoSuspensionReason *string    `db:"auto_suspension_reason" json:"auto_suspension_reason"`
	AutoSuspensionDate   *time.Time `db:"auto_suspension_date" json:"auto_suspension_date"`

	BytesIn            int64    `db:"bytes_in" json:"bytes_in"`
	BytesOut           int64    `db:"bytes_out" json:"bytes_out"`
	DailyQuotaMB       *int     `db:"daily_quota_mb" json:"daily_quota_mb"`
	BandwidthLimitMbps *float64 `db:"bandwidth_limit_mbps" json:"bandwidth_limit_mbps"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ActivityType classifies an entry in the network activity log.
type ActivityType string

const (
	ActivityConnected     ActivityType = "connected"
	ActivityDisconnected  ActivityType = "disconnected"
	ActivityBlocked       ActivityType = "blocked"
	ActivityUnblocked     ActivityType = "unblocked"
	ActivityQuotaExceeded ActivityType = "quota_exceeded"
)

// NetworkActivity is an append-only log entry. Rows are never updated.
type NetworkActivity struct {
	ID                uuid.UUID    `db:"id" json:"id"`
	DeviceID          *uuid.UUID   `db:"device_id" json:"device_id"`
	MAC               string       `db:"mac" json:"mac"`
	ActivityType      ActivityType `db:"activity_type" json:"activity_type"`
	BytesIn           int64        `db:"bytes_in" json:"bytes_in"`
	BytesOut          int64        `db:"bytes_out" json:"bytes_out"`
	InitiatedBySystem bool         `db:"initiated_by_system" json:"initiated_by_system"`
	OccurredAt        time.Time    `db:"occurred_at" json:"occurred_at"`
}

// TicketType classifies the enforcement action a ticket tracks.
type TicketType string

const (
	TicketBlock            TicketType = "block"
	TicketUnblock          TicketType = "unblock"
	TicketSuspension       TicketType = "suspension"
	TicketReactivation     TicketType = "reactivation"
	TicketBandwidthLimit   TicketType = "bandwidth_limit"
	TicketBandwidthRestore TicketType = "bandwidth_restore"
)

// TicketStatus is the workflow state of a ticket.
// open/pending -> in_progress -> {resolved, closed, cancelled}.
type TicketStatus string

const (
	TicketOpen       TicketStatus = "open"
	TicketPending    TicketStatus = "pending"
	TicketInProgress TicketStatus = "in_progress"
	TicketResolved   TicketStatus = "resolved"
	TicketClosed     TicketStatus = "closed"
	TicketCancelled  TicketStatus = "cancelled"
)

// ActionStatus is the outcome of the underlying adapter call.
// pending -> {success, failed, partial}.
type ActionStatus string

const (
	ActionPending ActionStatus = "pending"
	ActionSuccess ActionStatus = "success"
	ActionFailed  ActionStatus = "failed"
	ActionPartial ActionStatus = "partial"
)

// TicketPriority orders tickets for operator follow-up.
type TicketPriority string

const (
	PriorityLow    TicketPriority = "low"
	PriorityNormal TicketPriority = "normal"
	PriorityHigh   TicketPriority = "high"
	PriorityUrgent TicketPriority = "urgent"
)

// UsageTicket is one durable record per enforcement action, created
// when the action is requested and updated exactly once with its
// outcome. TicketNumber matches TICKET-YYYYMMDD-[A-F0-9]{6}.
type UsageTicket struct {
	ID           uuid.UUID      `db:"id" json:"id"`
	TicketNumber string         `db:"ticket_number" json:"ticket_number"`
	TicketType   TicketType     `db:"ticket_type" json:"ticket_type"`
	Status       TicketStatus   `db:"status" json:"status"`
	ActionStatus ActionStatus   `db:"action_status" json:"action_status"`
	Priority     TicketPriority `db:"priority" json:"priority"`

	MAC             string     `db:"mac" json:"mac"`
	DeviceID        *uuid.UUID `db:"device_id" json:"device_id"`
	NetworkDeviceID *uuid.UUID `db:"network_device_id" json:"network_device_id"`

	Reason          string  `db:"reason" json:"reason"`
	ResolutionNotes *string `db:"resolution_notes" json:"resolution_notes"`
	ErrorMessage    *string `db:"error_message" json:"error_message"`

	DurationMinutes     *int       `db:"duration_minutes" json:"duration_minutes"`
	IsTemporary         bool       `db:"is_temporary" json:"is_temporary"`
	ScheduledActionTime *time.Time `db:"scheduled_action_time" json:"scheduled_action_time"`

	// Retry is a higher-level concern; the enforcement layer never
	// retries on its own.
	RetryCount  int        `db:"retry_count" json:"retry_count"`
	NextRetryAt *time.Time `db:"next_retry_at" json:"next_retry_at"`

	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt *time.Time `db:"resolved_at" json:"resolved_at"`
}

// Guest is a read-only business record consumed by the policy engine.
type Guest struct {
	ID       uuid.UUID `db:"id" json:"id"`
	FullName string    `db:"full_name" json:"full_name"`
	Email    string    `db:"email" json:"email"`
}

// Occupancy is active iff CheckOut is null.
type Occupancy struct {
	ID       uuid.UUID  `db:"id" json:"id"`
	GuestID  uuid.UUID  `db:"guest_id" json:"guest_id"`
	Room     string     `db:"room" json:"room"`
	CheckIn  time.Time  `db:"check_in" json:"check_in"`
	CheckOut *time.Time `db:"check_out" json:"check_out"`
}

// PaymentStatus: a 'pending' payment signals arrears.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentVoided   PaymentStatus = "voided"
)

// Payment is a read-only business record consumed by the policy engine.
type Payment struct {
	ID      uuid.UUID     `db:"id" json:"id"`
	GuestID uuid.UUID     `db:"guest_id" json:"guest_id"`
	Amount  float64       `db:"amount" json:"amount"`
	Status  PaymentStatus `db:"status" json:"status"`
}

// StaffStatus gates staff-owned devices: anything but 'active' suspends.
type StaffStatus string

const (
	StaffActive     StaffStatus = "active"
	StaffInactive   StaffStatus = "inactive"
	StaffOnLeave    StaffStatus = "on_leave"
	StaffTerminated StaffStatus = "terminated"
)

// Staff is a read-only business record consumed by the policy engine.
type Staff struct {
	ID       uuid.UUID   `db:"id" json:"id"`
	FullName string      `db:"full_name" json:"full_name"`
	Status   StaffStatus `db:"status" json:"status"`
}

// EncryptedData wraps an AES-GCM encrypted, base64-encoded payload.
type EncryptedData string
