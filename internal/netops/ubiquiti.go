package netops

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// ubiquitiAdapter speaks the UniFi-style controller REST API. Clients
// are looked up by MAC filter and blocked/unblocked through the
// resolved client id. Bandwidth limits are expressed in bits/sec.
type ubiquitiAdapter struct {
	cfg  Config
	rest restClient
	base string

	mu    sync.Mutex
	token string // session token; static when a Bearer token is configured
}

// NewUbiquitiAdapter builds an adapter for a UniFi-style controller.
func NewUbiquitiAdapter(cfg Config) Adapter {
	scheme := "http"
	if cfg.UseTLS {
		scheme = "https"
	}
	return &ubiquitiAdapter{
		cfg:  cfg,
		rest: restClient{vendor: "ubiquiti", http: newHTTPClient(cfg)},
		base: fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port),
	}
}

func (a *ubiquitiAdapter) Vendor() string { return "ubiquiti" }

type uniClient struct {
	ID       string `json:"id"`
	MAC      string `json:"mac"`
	Name     string `json:"name"`
	Hostname string `json:"hostname"`
	IP       string `json:"ip"`
	Network  string `json:"network"`
	Blocked  bool   `json:"blocked"`
	RxBytes  int64  `json:"rx_bytes"`
	TxBytes  int64  `json:"tx_bytes"`
}

type uniSystem struct {
	Name          string `json:"name"`
	Model         string `json:"model"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	NumClients    int    `json:"num_clients"`
}

// ensureToken resolves the Bearer token: either the statically
// configured one, or a session token from the login endpoint.
func (a *ubiquitiAdapter) ensureToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" {
		return a.token, nil
	}
	if a.cfg.Credentials.Token != "" {
		a.token = a.cfg.Credentials.Token
		return a.token, nil
	}

	var out struct {
		Token string `json:"token"`
	}
	status, raw, err := a.rest.doJSON(ctx, "login", http.MethodPost, a.base+"/api/v2/login",
		nil,
		map[string]string{
			"username": a.cfg.Credentials.Username,
			"password": a.cfg.Credentials.Password,
		},
		&out)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", a.rest.statusErr("login", status, raw)
	}
	if out.Token == "" {
		return "", &ProtocolError{Vendor: "ubiquiti", Op: "login", Msg: "login response carried no token", Raw: truncate(raw, 256)}
	}

	a.token = out.Token
	return a.token, nil
}

func (a *ubiquitiAdapter) invalidateToken() {
	a.mu.Lock()
	// A statically configured token cannot be refreshed; only session
	// tokens are dropped.
	if a.cfg.Credentials.Token == "" {
		a.token = ""
	}
	a.mu.Unlock()
}

// call runs one authenticated request, refreshing a session token once
// on an authentication failure.
func (a *ubiquitiAdapter) call(ctx context.Context, op, method, path string, body, out any) error {
	for attempt := 0; ; attempt++ {
		token, err := a.ensureToken(ctx)
		if err != nil {
			return err
		}
		headers := map[string]string{"Authorization": "Bearer " + token}
		status, raw, err := a.rest.doJSON(ctx, op, method, a.base+path, headers, body, out)
		if err != nil {
			return err
		}
		if status >= 200 && status < 300 {
			return nil
		}
		err = a.rest.statusErr(op, status, raw)
		var authErr *AuthError
		if errors.As(err, &authErr) && attempt == 0 && a.cfg.Credentials.Token == "" {
			a.invalidateToken()
			continue
		}
		return err
	}
}

func (a *ubiquitiAdapter) findClient(ctx context.Context, mac string) (*uniClient, error) {
	var clients []uniClient
	path := "/api/v2/sites/default/clients?mac=" + url.QueryEscape(mac)
	if err := a.call(ctx, "lookup client", http.MethodGet, path, nil, &clients); err != nil {
		return nil, err
	}
	for i := range clients {
		if norm, err := NormalizeMAC(clients[i].MAC); err == nil && norm == mac {
			return &clients[i], nil
		}
	}
	return nil, &ProtocolError{Vendor: "ubiquiti", Op: "lookup client", Msg: fmt.Sprintf("client %s not known to controller", mac)}
}

func (a *ubiquitiAdapter) TestConnection(ctx context.Context) (TestResult, error) {
	start := time.Now()
	var sys uniSystem
	if err := a.call(ctx, "test connection", http.MethodGet, "/api/v2/system", nil, &sys); err != nil {
		return TestResult{Connected: false, Message: err.Error()}, err
	}
	latency := int(time.Since(start).Milliseconds())
	return TestResult{
		Connected: true,
		Message:   fmt.Sprintf("controller %s (version %s) reachable", sys.Name, sys.Version),
		LatencyMs: &latency,
	}, nil
}

func (a *ubiquitiAdapter) BlockMAC(ctx context.Context, mac, reason string) (string, error) {
	mac, err := NormalizeMAC(mac)
	if err != nil {
		return "", err
	}
	client, err := a.findClient(ctx, mac)
	if err != nil {
		return "", err
	}
	path := fmt.Sprintf("/api/v2/sites/default/clients/%s/block", client.ID)
	if err := a.call(ctx, "block", http.MethodPost, path, map[string]bool{"blocked": true}, nil); err != nil {
		return "", err
	}
	return fmt.Sprintf("client %s blocked on controller", mac), nil
}

func (a *ubiquitiAdapter) UnblockMAC(ctx context.Context, mac string) (string, error) {
	mac, err := NormalizeMAC(mac)
	if err != nil {
		return "", err
	}
	client, err := a.findClient(ctx, mac)
	if err != nil {
		return "", err
	}
	path := fmt.Sprintf("/api/v2/sites/default/clients/%s/block", client.ID)
	if err := a.call(ctx, "unblock", http.MethodPost, path, map[string]bool{"blocked": false}, nil); err != nil {
		return "", err
	}
	return fmt.Sprintf("client %s unblocked on controller", mac), nil
}

func (a *ubiquitiAdapter) GetBlockedMACs(ctx context.Context) ([]string, error) {
	var clients []uniClient
	if err := a.call(ctx, "list blocked", http.MethodGet, "/api/v2/sites/default/clients?blocked=true", nil, &clients); err != nil {
		return nil, err
	}
	macs := make([]string, 0, len(clients))
	for _, c := range clients {
		if norm, err := NormalizeMAC(c.MAC); err == nil {
			macs = append(macs, norm)
		}
	}
	return macs, nil
}

func (a *ubiquitiAdapter) SetBandwidthLimit(ctx context.Context, mac string, limitMbps float64) (string, error) {
	mac, err := NormalizeMAC(mac)
	if err != nil {
		return "", err
	}
	if limitMbps <= 0 {
		return "", &ValidationError{Msg: "bandwidth limit must be positive"}
	}
	client, err := a.findClient(ctx, mac)
	if err != nil {
		return "", err
	}
	// The controller expresses rate limits in bits per second.
	bps := int64(limitMbps * 1_000_000)
	path := fmt.Sprintf("/api/v2/sites/default/clients/%s", client.ID)
	body := map[string]any{
		"qos_enabled":       true,
		"qos_rate_max_down": bps,
		"qos_rate_max_up":   bps,
	}
	if err := a.call(ctx, "set bandwidth limit", http.MethodPut, path, body, nil); err != nil {
		return "", err
	}
	return fmt.Sprintf("client %s limited to %.1f Mbps", mac, limitMbps), nil
}

func (a *ubiquitiAdapter) RemoveBandwidthLimit(ctx context.Context, mac string) (string, error) {
	mac, err := NormalizeMAC(mac)
	if err != nil {
		return "", err
	}
	client, err := a.findClient(ctx, mac)
	if err != nil {
		return "", err
	}
	path := fmt.Sprintf("/api/v2/sites/default/clients/%s", client.ID)
	if err := a.call(ctx, "remove bandwidth limit", http.MethodPut, path, map[string]any{"qos_enabled": false}, nil); err != nil {
		return "", err
	}
	return fmt.Sprintf("bandwidth limit removed for client %s", mac), nil
}

func (a *ubiquitiAdapter) GetDeviceStats(ctx context.Context) (DeviceStats, error) {
	var sys uniSystem
	if err := a.call(ctx, "device stats", http.MethodGet, "/api/v2/system", nil, &sys); err != nil {
		return DeviceStats{}, err
	}
	clients := sys.NumClients
	return DeviceStats{
		Hostname:      sys.Name,
		Model:         sys.Model,
		Version:       sys.Version,
		UptimeSeconds: sys.UptimeSeconds,
		ClientCount:   &clients,
	}, nil
}

func (a *ubiquitiAdapter) GetConnectedDevices(ctx context.Context) ([]ClientInfo, error) {
	var clients []uniClient
	if err := a.call(ctx, "list clients", http.MethodGet, "/api/v2/sites/default/clients", nil, &clients); err != nil {
		return nil, err
	}
	out := make([]ClientInfo, 0, len(clients))
	for _, c := range clients {
		mac, err := NormalizeMAC(c.MAC)
		if err != nil {
			continue
		}
		name := c.Name
		if name == "" {
			name = c.Hostname
		}
		out = append(out, ClientInfo{
			MAC:      mac,
			IP:       c.IP,
			Hostname: name,
			Network:  c.Network,
			RxBytes:  c.RxBytes,
			TxBytes:  c.TxBytes,
		})
	}
	return out, nil
}
