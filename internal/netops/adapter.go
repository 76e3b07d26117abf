// Package netops implements the vendor-agnostic capability contract
// over the incompatible management protocols of the supported
// equipment vendors (UniFi-style REST, RouterOS REST, IOS-XE RESTCONF,
// LuCI JSON-RPC, plus a read-only SNMP probe).
//
// Adapters translate the contract into one wire protocol each. They
// normalize input, never panic across their boundary, and never touch
// the persisted device records; all bookkeeping happens in the health
// accounting layer outside the adapter.
package netops

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"
)

// Credentials is the decrypted secret material for one device. Which
// fields are used depends on the adapter's auth mode.
type Credentials struct {
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
	Token     string `json:"token,omitempty"`
	Community string `json:"community,omitempty"`
}

// Config carries everything an adapter needs to reach one device.
type Config struct {
	Host        string
	Port        int
	UseTLS      bool
	VerifyTLS   bool
	Timeout     time.Duration
	Credentials Credentials
}

// TestResult is the outcome of a connectivity probe.
type TestResult struct {
	Connected bool   `json:"connected"`
	Message   string `json:"message"`
	LatencyMs *int   `json:"latency_ms,omitempty"`
}

// DeviceStats is a vendor-normalized snapshot of equipment health.
type DeviceStats struct {
	Hostname         string   `json:"hostname,omitempty"`
	Model            string   `json:"model,omitempty"`
	Version          string   `json:"version,omitempty"`
	UptimeSeconds    int64    `json:"uptime_seconds,omitempty"`
	CPULoadPercent   *float64 `json:"cpu_load_percent,omitempty"`
	MemoryUsedBytes  *int64   `json:"memory_used_bytes,omitempty"`
	MemoryTotalBytes *int64   `json:"memory_total_bytes,omitempty"`
	ClientCount      *int     `json:"client_count,omitempty"`
}

// ClientInfo describes one client currently known to the equipment.
type ClientInfo struct {
	MAC       string `json:"mac"`
	IP        string `json:"ip,omitempty"`
	Hostname  string `json:"hostname,omitempty"`
	Network   string `json:"network,omitempty"`
	RxBytes   int64  `json:"rx_bytes,omitempty"`
	TxBytes   int64  `json:"tx_bytes,omitempty"`
	SignalDBM *int   `json:"signal_dbm,omitempty"`
}

// Adapter is the capability contract every vendor client implements.
//
// All methods are bounded by the context deadline the caller derives
// from the device's configured timeout. Expected failure classes come
// back as errors from the taxonomy in errors.go; the string return on
// mutating calls is a human-readable message for the ticket trail.
// MAC arguments must already be canonical (see NormalizeMAC); adapters
// re-normalize defensively but treat failure as a local error.
type Adapter interface {
	Vendor() string

	TestConnection(ctx context.Context) (TestResult, error)

	BlockMAC(ctx context.Context, mac, reason string) (string, error)
	UnblockMAC(ctx context.Context, mac string) (string, error)
	GetBlockedMACs(ctx context.Context) ([]string, error)

	SetBandwidthLimit(ctx context.Context, mac string, limitMbps float64) (string, error)
	RemoveBandwidthLimit(ctx context.Context, mac string) (string, error)

	GetDeviceStats(ctx context.Context) (DeviceStats, error)
	GetConnectedDevices(ctx context.Context) ([]ClientInfo, error)
}

// newHTTPClient builds the transport shared by the REST-style
// adapters. Equipment commonly runs self-signed certificates, so
// verification is opt-in per device.
func newHTTPClient(cfg Config) *http.Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.VerifyTLS},
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
