package netops

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// mikrotikAdapter speaks the RouterOS v7 REST API with Basic auth.
// Blocking is a forward-chain drop rule keyed by source MAC; bandwidth
// limits are simple-queue entries in kbps.
type mikrotikAdapter struct {
	cfg  Config
	rest restClient
	base string
	auth string
}

// NewMikrotikAdapter builds an adapter for a RouterOS device.
func NewMikrotikAdapter(cfg Config) Adapter {
	scheme := "http"
	if cfg.UseTLS {
		scheme = "https"
	}
	basic := base64.StdEncoding.EncodeToString(
		[]byte(cfg.Credentials.Username + ":" + cfg.Credentials.Password))
	return &mikrotikAdapter{
		cfg:  cfg,
		rest: restClient{vendor: "mikrotik", http: newHTTPClient(cfg)},
		base: fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port),
		auth: "Basic " + basic,
	}
}

func (a *mikrotikAdapter) Vendor() string { return "mikrotik" }

func (a *mikrotikAdapter) headers() map[string]string {
	return map[string]string{"Authorization": a.auth}
}

func (a *mikrotikAdapter) call(ctx context.Context, op, method, path string, body, out any) error {
	status, raw, err := a.rest.doJSON(ctx, op, method, a.base+path, a.headers(), body, out)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return a.rest.statusErr(op, status, raw)
	}
	return nil
}

// mtFilterRule is a firewall filter entry. RouterOS REST serializes
// every property as a string.
type mtFilterRule struct {
	ID         string `json:".id"`
	Chain      string `json:"chain"`
	Action     string `json:"action"`
	SrcMAC     string `json:"src-mac-address"`
	Comment    string `json:"comment"`
	Disabled   string `json:"disabled"`
}

type mtQueue struct {
	ID       string `json:".id"`
	Name     string `json:"name"`
	Target   string `json:"target"`
	MaxLimit string `json:"max-limit"`
}

type mtResource struct {
	Uptime      string `json:"uptime"`
	Version     string `json:"version"`
	CPULoad     string `json:"cpu-load"`
	FreeMemory  string `json:"free-memory"`
	TotalMemory string `json:"total-memory"`
	BoardName   string `json:"board-name"`
}

type mtLease struct {
	Address  string `json:"address"`
	MAC      string `json:"mac-address"`
	HostName string `json:"host-name"`
	Status   string `json:"status"`
}

func (a *mikrotikAdapter) TestConnection(ctx context.Context) (TestResult, error) {
	start := time.Now()
	var res mtResource
	if err := a.call(ctx, "test connection", http.MethodGet, "/rest/system/resource", nil, &res); err != nil {
		return TestResult{Connected: false, Message: err.Error()}, err
	}
	latency := int(time.Since(start).Milliseconds())
	return TestResult{
		Connected: true,
		Message:   fmt.Sprintf("RouterOS %s on %s reachable", res.Version, res.BoardName),
		LatencyMs: &latency,
	}, nil
}

func (a *mikrotikAdapter) findDropRules(ctx context.Context, mac string) ([]mtFilterRule, error) {
	var rules []mtFilterRule
	path := "/rest/ip/firewall/filter?chain=forward&action=drop&src-mac-address=" + url.QueryEscape(mac)
	if err := a.call(ctx, "lookup filter rule", http.MethodGet, path, nil, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func (a *mikrotikAdapter) BlockMAC(ctx context.Context, mac, reason string) (string, error) {
	mac, err := NormalizeMAC(mac)
	if err != nil {
		return "", err
	}

	existing, err := a.findDropRules(ctx, mac)
	if err != nil {
		return "", err
	}
	if len(existing) > 0 {
		return fmt.Sprintf("drop rule for %s already present (id %s)", mac, existing[0].ID), nil
	}

	comment := "guestgate block"
	if reason != "" {
		comment += ": " + reason
	}
	var created struct {
		ID string `json:".id"`
	}
	body := map[string]string{
		"chain":           "forward",
		"action":          "drop",
		"src-mac-address": mac,
		"comment":         comment,
	}
	if err := a.call(ctx, "block", http.MethodPost, "/rest/ip/firewall/filter", body, &created); err != nil {
		return "", err
	}
	return fmt.Sprintf("drop rule %s inserted for %s", created.ID, mac), nil
}

func (a *mikrotikAdapter) UnblockMAC(ctx context.Context, mac string) (string, error) {
	mac, err := NormalizeMAC(mac)
	if err != nil {
		return "", err
	}

	rules, err := a.findDropRules(ctx, mac)
	if err != nil {
		return "", err
	}
	if len(rules) == 0 {
		return fmt.Sprintf("no drop rule present for %s", mac), nil
	}
	for _, rule := range rules {
		path := "/rest/ip/firewall/filter/" + url.PathEscape(rule.ID)
		if err := a.call(ctx, "unblock", http.MethodDelete, path, nil, nil); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%d drop rule(s) removed for %s", len(rules), mac), nil
}

func (a *mikrotikAdapter) GetBlockedMACs(ctx context.Context) ([]string, error) {
	var rules []mtFilterRule
	path := "/rest/ip/firewall/filter?chain=forward&action=drop"
	if err := a.call(ctx, "list blocked", http.MethodGet, path, nil, &rules); err != nil {
		return nil, err
	}
	macs := make([]string, 0, len(rules))
	for _, rule := range rules {
		if rule.SrcMAC == "" {
			continue
		}
		if norm, err := NormalizeMAC(rule.SrcMAC); err == nil {
			macs = append(macs, norm)
		}
	}
	return macs, nil
}

// queueName derives a stable simple-queue name for a MAC.
func queueName(mac string) string {
	return "gg-" + strings.ToLower(strings.ReplaceAll(mac, ":", ""))
}

func (a *mikrotikAdapter) findQueue(ctx context.Context, mac string) (*mtQueue, error) {
	var queues []mtQueue
	path := "/rest/queue/simple?name=" + url.QueryEscape(queueName(mac))
	if err := a.call(ctx, "lookup queue", http.MethodGet, path, nil, &queues); err != nil {
		return nil, err
	}
	if len(queues) == 0 {
		return nil, nil
	}
	return &queues[0], nil
}

func (a *mikrotikAdapter) SetBandwidthLimit(ctx context.Context, mac string, limitMbps float64) (string, error) {
	mac, err := NormalizeMAC(mac)
	if err != nil {
		return "", err
	}
	if limitMbps <= 0 {
		return "", &ValidationError{Msg: "bandwidth limit must be positive"}
	}

	// simple-queue rates are expressed in kbps.
	kbps := int64(limitMbps * 1000)
	rate := fmt.Sprintf("%dk/%dk", kbps, kbps)
	body := map[string]string{
		"name":        queueName(mac),
		"target":      mac,
		"max-limit":   rate,
		"burst-limit": rate,
		"limit-at":    rate,
		"comment":     "guestgate bandwidth limit",
	}

	existing, err := a.findQueue(ctx, mac)
	if err != nil {
		return "", err
	}
	if existing != nil {
		path := "/rest/queue/simple/" + url.PathEscape(existing.ID)
		if err := a.call(ctx, "update queue", http.MethodPatch, path, body, nil); err != nil {
			return "", err
		}
		return fmt.Sprintf("simple queue for %s updated to %d kbps", mac, kbps), nil
	}
	if err := a.call(ctx, "set bandwidth limit", http.MethodPost, "/rest/queue/simple", body, nil); err != nil {
		return "", err
	}
	return fmt.Sprintf("simple queue for %s created at %d kbps", mac, kbps), nil
}

func (a *mikrotikAdapter) RemoveBandwidthLimit(ctx context.Context, mac string) (string, error) {
	mac, err := NormalizeMAC(mac)
	if err != nil {
		return "", err
	}
	existing, err := a.findQueue(ctx, mac)
	if err != nil {
		return "", err
	}
	if existing == nil {
		return fmt.Sprintf("no simple queue present for %s", mac), nil
	}
	path := "/rest/queue/simple/" + url.PathEscape(existing.ID)
	if err := a.call(ctx, "remove bandwidth limit", http.MethodDelete, path, nil, nil); err != nil {
		return "", err
	}
	return fmt.Sprintf("simple queue removed for %s", mac), nil
}

func (a *mikrotikAdapter) GetDeviceStats(ctx context.Context) (DeviceStats, error) {
	var res mtResource
	if err := a.call(ctx, "device stats", http.MethodGet, "/rest/system/resource", nil, &res); err != nil {
		return DeviceStats{}, err
	}

	stats := DeviceStats{
		Model:         res.BoardName,
		Version:       res.Version,
		UptimeSeconds: parseRouterOSUptime(res.Uptime),
	}
	if v, err := strconv.ParseFloat(res.CPULoad, 64); err == nil {
		stats.CPULoadPercent = &v
	}
	total, errTotal := strconv.ParseInt(res.TotalMemory, 10, 64)
	free, errFree := strconv.ParseInt(res.FreeMemory, 10, 64)
	if errTotal == nil {
		stats.MemoryTotalBytes = &total
		if errFree == nil {
			used := total - free
			stats.MemoryUsedBytes = &used
		}
	}
	return stats, nil
}

func (a *mikrotikAdapter) GetConnectedDevices(ctx context.Context) ([]ClientInfo, error) {
	var leases []mtLease
	if err := a.call(ctx, "list clients", http.MethodGet, "/rest/ip/dhcp-server/lease", nil, &leases); err != nil {
		return nil, err
	}
	out := make([]ClientInfo, 0, len(leases))
	for _, lease := range leases {
		if lease.Status != "bound" {
			continue
		}
		mac, err := NormalizeMAC(lease.MAC)
		if err != nil {
			continue
		}
		out = append(out, ClientInfo{
			MAC:      mac,
			IP:       lease.Address,
			Hostname: lease.HostName,
		})
	}
	return out, nil
}

// parseRouterOSUptime parses RouterOS duration strings such as
// "2w3d4h5m6s" into seconds. Unknown segments are skipped.
func parseRouterOSUptime(s string) int64 {
	var total, cur int64
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			cur = cur*10 + int64(r-'0')
		case r == 'w':
			total += cur * 7 * 24 * 3600
			cur = 0
		case r == 'd':
			total += cur * 24 * 3600
			cur = 0
		case r == 'h':
			total += cur * 3600
			cur = 0
		case r == 'm':
			total += cur * 60
			cur = 0
		case r == 's':
			total += cur
			cur = 0
		default:
			cur = 0
		}
	}
	return total
}
