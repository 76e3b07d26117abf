package netops

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// wifiIface is the UCI section the MAC filter is managed on.
const wifiIface = "@wifi-iface[0]"

// openwrtAdapter speaks the LuCI JSON-RPC API. A session is
// established via auth.login and the resulting sysauth token is cached
// on the adapter instance; a 403 invalidates the cache and triggers
// exactly one re-authentication retry before the failure surfaces.
// Blocking is UCI macfilter=deny plus maclist membership, committed
// and followed by a wifi reload.
type openwrtAdapter struct {
	cfg  Config
	rest restClient
	base string

	mu      sync.Mutex
	sysauth string
}

// NewOpenWrtAdapter builds an adapter for a LuCI-enabled OpenWrt box.
func NewOpenWrtAdapter(cfg Config) Adapter {
	scheme := "http"
	if cfg.UseTLS {
		scheme = "https"
	}
	return &openwrtAdapter{
		cfg:  cfg,
		rest: restClient{vendor: "openwrt", http: newHTTPClient(cfg)},
		base: fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port),
	}
}

func (a *openwrtAdapter) Vendor() string { return "openwrt" }

type luciRequest struct {
	ID     int    `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

type luciResponse struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  any             `json:"error"`
}

// login exchanges username/password for a sysauth token.
func (a *openwrtAdapter) login(ctx context.Context) (string, error) {
	var resp luciResponse
	status, raw, err := a.rest.doJSON(ctx, "login", http.MethodPost, a.base+"/cgi-bin/luci/rpc/auth",
		nil,
		luciRequest{ID: 1, Method: "login", Params: []any{a.cfg.Credentials.Username, a.cfg.Credentials.Password}},
		&resp)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", a.rest.statusErr("login", status, raw)
	}

	var token string
	if err := json.Unmarshal(resp.Result, &token); err != nil || token == "" {
		return "", &AuthError{Vendor: "openwrt", Msg: "login rejected"}
	}
	return token, nil
}

func (a *openwrtAdapter) ensureSession(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sysauth != "" {
		return a.sysauth, nil
	}
	token, err := a.login(ctx)
	if err != nil {
		return "", err
	}
	a.sysauth = token
	return token, nil
}

func (a *openwrtAdapter) invalidateSession() {
	a.mu.Lock()
	a.sysauth = ""
	a.mu.Unlock()
}

// rpc performs one authenticated JSON-RPC call against a LuCI library
// endpoint ("uci" or "sys"). On a 403 the cached sysauth is dropped
// and the call is retried once with a fresh session.
func (a *openwrtAdapter) rpc(ctx context.Context, op, library, method string, params []any, out any) error {
	for attempt := 0; ; attempt++ {
		token, err := a.ensureSession(ctx)
		if err != nil {
			return err
		}

		endpoint := fmt.Sprintf("%s/cgi-bin/luci/rpc/%s?auth=%s", a.base, library, url.QueryEscape(token))
		headers := map[string]string{"Cookie": "sysauth=" + token}

		var resp luciResponse
		status, raw, err := a.rest.doJSON(ctx, op, http.MethodPost, endpoint, headers,
			luciRequest{ID: 1, Method: method, Params: params}, &resp)
		if err != nil {
			return err
		}
		if status == http.StatusForbidden {
			if attempt == 0 {
				a.invalidateSession()
				continue
			}
			return &AuthError{Vendor: "openwrt", Msg: "session rejected after re-authentication"}
		}
		if status != http.StatusOK {
			return a.rest.statusErr(op, status, raw)
		}
		if resp.Error != nil {
			return &ProtocolError{Vendor: "openwrt", Op: op, Msg: fmt.Sprintf("rpc error: %v", resp.Error)}
		}
		if out != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, out); err != nil {
				return &ProtocolError{Vendor: "openwrt", Op: op, Msg: fmt.Sprintf("malformed result: %v", err), Raw: truncate(resp.Result, 256)}
			}
		}
		return nil
	}
}

// commitWireless persists staged UCI changes and reloads the radios.
func (a *openwrtAdapter) commitWireless(ctx context.Context, op string) error {
	if err := a.rpc(ctx, op, "uci", "commit", []any{"wireless"}, nil); err != nil {
		return err
	}
	return a.rpc(ctx, op, "sys", "exec", []any{"/sbin/wifi reload"}, nil)
}

func (a *openwrtAdapter) TestConnection(ctx context.Context) (TestResult, error) {
	start := time.Now()
	var hostname string
	if err := a.rpc(ctx, "test connection", "sys", "hostname", nil, &hostname); err != nil {
		return TestResult{Connected: false, Message: err.Error()}, err
	}
	latency := int(time.Since(start).Milliseconds())
	return TestResult{
		Connected: true,
		Message:   fmt.Sprintf("OpenWrt host %s reachable over LuCI RPC", hostname),
		LatencyMs: &latency,
	}, nil
}

func (a *openwrtAdapter) BlockMAC(ctx context.Context, mac, reason string) (string, error) {
	mac, err := NormalizeMAC(mac)
	if err != nil {
		return "", err
	}

	if err := a.rpc(ctx, "block", "uci", "set", []any{"wireless", wifiIface, "macfilter", "deny"}, nil); err != nil {
		return "", err
	}
	if err := a.rpc(ctx, "block", "uci", "add_list", []any{"wireless", wifiIface, "maclist", mac}, nil); err != nil {
		return "", err
	}
	if err := a.commitWireless(ctx, "block"); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s added to deny maclist, wifi reloaded", mac), nil
}

func (a *openwrtAdapter) UnblockMAC(ctx context.Context, mac string) (string, error) {
	mac, err := NormalizeMAC(mac)
	if err != nil {
		return "", err
	}

	if err := a.rpc(ctx, "unblock", "uci", "delete_list", []any{"wireless", wifiIface, "maclist", mac}, nil); err != nil {
		return "", err
	}
	if err := a.commitWireless(ctx, "unblock"); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s removed from deny maclist, wifi reloaded", mac), nil
}

func (a *openwrtAdapter) GetBlockedMACs(ctx context.Context) ([]string, error) {
	// maclist comes back as an array, or as one space-separated string
	// on older LuCI builds.
	var result json.RawMessage
	if err := a.rpc(ctx, "list blocked", "uci", "get", []any{"wireless", wifiIface, "maclist"}, &result); err != nil {
		return nil, err
	}
	if len(result) == 0 || string(result) == "null" {
		return nil, nil
	}

	var entries []string
	if err := json.Unmarshal(result, &entries); err != nil {
		var single string
		if err := json.Unmarshal(result, &single); err != nil {
			return nil, &ProtocolError{Vendor: "openwrt", Op: "list blocked", Msg: "unexpected maclist shape", Raw: truncate(result, 256)}
		}
		entries = strings.Fields(single)
	}

	macs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if norm, err := NormalizeMAC(entry); err == nil {
			macs = append(macs, norm)
		}
	}
	return macs, nil
}

func (a *openwrtAdapter) SetBandwidthLimit(ctx context.Context, mac string, limitMbps float64) (string, error) {
	if _, err := NormalizeMAC(mac); err != nil {
		return "", err
	}
	return "", &NotSupportedError{Vendor: "openwrt", Capability: "bandwidth control"}
}

func (a *openwrtAdapter) RemoveBandwidthLimit(ctx context.Context, mac string) (string, error) {
	if _, err := NormalizeMAC(mac); err != nil {
		return "", err
	}
	return "", &NotSupportedError{Vendor: "openwrt", Capability: "bandwidth control"}
}

func (a *openwrtAdapter) GetDeviceStats(ctx context.Context) (DeviceStats, error) {
	var hostname string
	if err := a.rpc(ctx, "device stats", "sys", "hostname", nil, &hostname); err != nil {
		return DeviceStats{}, err
	}
	var uptime float64
	if err := a.rpc(ctx, "device stats", "sys", "uptime", nil, &uptime); err != nil {
		return DeviceStats{}, err
	}
	var load []float64
	if err := a.rpc(ctx, "device stats", "sys", "loadavg", nil, &load); err != nil {
		return DeviceStats{}, err
	}

	stats := DeviceStats{
		Hostname:      hostname,
		UptimeSeconds: int64(uptime),
	}
	if len(load) > 0 {
		pct := load[0] * 100
		stats.CPULoadPercent = &pct
	}
	return stats, nil
}

func (a *openwrtAdapter) GetConnectedDevices(ctx context.Context) ([]ClientInfo, error) {
	var table []map[string]string
	if err := a.rpc(ctx, "list clients", "sys", "net.arptable", nil, &table); err != nil {
		return nil, err
	}
	out := make([]ClientInfo, 0, len(table))
	for _, row := range table {
		mac, err := NormalizeMAC(row["HW address"])
		if err != nil {
			continue
		}
		out = append(out, ClientInfo{
			MAC:     mac,
			IP:      row["IP address"],
			Network: row["Device"],
		})
	}
	return out, nil
}
