package netops

import (
	"context"
	"encoding/base64"
	"fmt"
	"hash/crc32"
	"net/http"
	"strings"
	"time"
)

const (
	ciscoBlockACL   = "GUESTGATE-BLOCK"
	ciscoPolicyStem = "GG-LIMIT-"
)

// ciscoAdapter speaks RESTCONF against IOS-XE with Basic auth. MAC
// blocking is YANG-modeled ACL entries under a dedicated extended ACL;
// bandwidth limiting is a per-client policy-map with a police action.
type ciscoAdapter struct {
	cfg  Config
	rest restClient
	base string
	auth string
}

// NewCiscoAdapter builds an adapter for an IOS-XE device.
func NewCiscoAdapter(cfg Config) Adapter {
	scheme := "http"
	if cfg.UseTLS {
		scheme = "https"
	}
	basic := base64.StdEncoding.EncodeToString(
		[]byte(cfg.Credentials.Username + ":" + cfg.Credentials.Password))
	return &ciscoAdapter{
		cfg:  cfg,
		rest: restClient{vendor: "cisco", http: newHTTPClient(cfg)},
		base: fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port),
		auth: "Basic " + basic,
	}
}

func (a *ciscoAdapter) Vendor() string { return "cisco" }

func (a *ciscoAdapter) headers() map[string]string {
	return map[string]string{
		"Authorization": a.auth,
		"Content-Type":  "application/yang-data+json",
		"Accept":        "application/yang-data+json",
	}
}

// call runs one RESTCONF request. okNotFound treats a 404 as an empty
// result rather than an error; RESTCONF returns 404 for absent
// resources, which several operations treat as a normal state.
func (a *ciscoAdapter) call(ctx context.Context, op, method, path string, body, out any, okNotFound bool) (bool, error) {
	status, raw, err := a.rest.doJSON(ctx, op, method, a.base+path, a.headers(), body, out)
	if err != nil {
		return false, err
	}
	if status == http.StatusNotFound && okNotFound {
		return false, nil
	}
	if status < 200 || status >= 300 {
		return false, a.rest.statusErr(op, status, raw)
	}
	return true, nil
}

// ciscoDottedMAC renders a canonical MAC in IOS dotted notation
// (aabb.ccdd.eeff), which the YANG models expect.
func ciscoDottedMAC(mac string) string {
	hex := strings.ToLower(strings.ReplaceAll(mac, ":", ""))
	return hex[0:4] + "." + hex[4:8] + "." + hex[8:12]
}

// aceSequence derives a stable ACL sequence number from a MAC so the
// entry can be addressed for deletion without reading the table back.
func aceSequence(mac string) uint32 {
	return crc32.ChecksumIEEE([]byte(mac))%2000000 + 10
}

func policyMapName(mac string) string {
	return ciscoPolicyStem + strings.ToUpper(strings.ReplaceAll(mac, ":", ""))
}

type ciscoACLRule struct {
	Sequence uint32 `json:"sequence"`
	ACERule  struct {
		Action string `json:"action"`
		Host   string `json:"host"`
	} `json:"ace-rule"`
}

func (a *ciscoAdapter) TestConnection(ctx context.Context) (TestResult, error) {
	start := time.Now()
	var out struct {
		Version string `json:"Cisco-IOS-XE-native:version"`
	}
	if _, err := a.call(ctx, "test connection", http.MethodGet, "/restconf/data/Cisco-IOS-XE-native:native/version", nil, &out, false); err != nil {
		return TestResult{Connected: false, Message: err.Error()}, err
	}
	latency := int(time.Since(start).Milliseconds())
	return TestResult{
		Connected: true,
		Message:   fmt.Sprintf("IOS-XE %s reachable over RESTCONF", out.Version),
		LatencyMs: &latency,
	}, nil
}

func (a *ciscoAdapter) BlockMAC(ctx context.Context, mac, reason string) (string, error) {
	mac, err := NormalizeMAC(mac)
	if err != nil {
		return "", err
	}

	seq := aceSequence(mac)
	rule := ciscoACLRule{Sequence: seq}
	rule.ACERule.Action = "deny"
	rule.ACERule.Host = ciscoDottedMAC(mac)

	body := map[string]any{
		"Cisco-IOS-XE-native:mac": map[string]any{
			"access-list": map[string]any{
				"extended": []map[string]any{{
					"name":                 ciscoBlockACL,
					"access-list-seq-rule": []ciscoACLRule{rule},
				}},
			},
		},
	}
	if _, err := a.call(ctx, "block", http.MethodPatch, "/restconf/data/Cisco-IOS-XE-native:native/mac", body, nil, false); err != nil {
		return "", err
	}
	return fmt.Sprintf("ACL deny entry %d added for %s", seq, mac), nil
}

func (a *ciscoAdapter) UnblockMAC(ctx context.Context, mac string) (string, error) {
	mac, err := NormalizeMAC(mac)
	if err != nil {
		return "", err
	}
	seq := aceSequence(mac)
	path := fmt.Sprintf("/restconf/data/Cisco-IOS-XE-native:native/mac/access-list/extended=%s/access-list-seq-rule=%d",
		ciscoBlockACL, seq)
	found, err := a.call(ctx, "unblock", http.MethodDelete, path, nil, nil, true)
	if err != nil {
		return "", err
	}
	if !found {
		return fmt.Sprintf("no ACL entry present for %s", mac), nil
	}
	return fmt.Sprintf("ACL deny entry %d removed for %s", seq, mac), nil
}

func (a *ciscoAdapter) GetBlockedMACs(ctx context.Context) ([]string, error) {
	var out struct {
		Extended []struct {
			Name  string         `json:"name"`
			Rules []ciscoACLRule `json:"access-list-seq-rule"`
		} `json:"Cisco-IOS-XE-native:extended"`
	}
	path := "/restconf/data/Cisco-IOS-XE-native:native/mac/access-list/extended=" + ciscoBlockACL
	found, err := a.call(ctx, "list blocked", http.MethodGet, path, nil, &out, true)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	var macs []string
	for _, acl := range out.Extended {
		if acl.Name != ciscoBlockACL {
			continue
		}
		for _, rule := range acl.Rules {
			if rule.ACERule.Action != "deny" {
				continue
			}
			if norm, err := NormalizeMAC(rule.ACERule.Host); err == nil {
				macs = append(macs, norm)
			}
		}
	}
	return macs, nil
}

func (a *ciscoAdapter) SetBandwidthLimit(ctx context.Context, mac string, limitMbps float64) (string, error) {
	mac, err := NormalizeMAC(mac)
	if err != nil {
		return "", err
	}
	if limitMbps <= 0 {
		return "", &ValidationError{Msg: "bandwidth limit must be positive"}
	}

	bps := int64(limitMbps * 1_000_000)
	body := map[string]any{
		"Cisco-IOS-XE-native:policy": map[string]any{
			"policy-map": []map[string]any{{
				"name": policyMapName(mac),
				"class": []map[string]any{{
					"name": "class-default",
					"action-list": []map[string]any{{
						"action-type": "police",
						"police": map[string]any{
							"rate-bps": bps,
						},
					}},
				}},
			}},
		},
	}
	if _, err := a.call(ctx, "set bandwidth limit", http.MethodPatch, "/restconf/data/Cisco-IOS-XE-native:native/policy", body, nil, false); err != nil {
		return "", err
	}
	return fmt.Sprintf("policy-map %s polices %s at %d bps", policyMapName(mac), mac, bps), nil
}

func (a *ciscoAdapter) RemoveBandwidthLimit(ctx context.Context, mac string) (string, error) {
	mac, err := NormalizeMAC(mac)
	if err != nil {
		return "", err
	}
	path := "/restconf/data/Cisco-IOS-XE-native:native/policy/policy-map=" + policyMapName(mac)
	found, err := a.call(ctx, "remove bandwidth limit", http.MethodDelete, path, nil, nil, true)
	if err != nil {
		return "", err
	}
	if !found {
		return fmt.Sprintf("no policy-map present for %s", mac), nil
	}
	return fmt.Sprintf("policy-map %s removed", policyMapName(mac)), nil
}

func (a *ciscoAdapter) GetDeviceStats(ctx context.Context) (DeviceStats, error) {
	var version struct {
		Version string `json:"Cisco-IOS-XE-native:version"`
	}
	if _, err := a.call(ctx, "device stats", http.MethodGet, "/restconf/data/Cisco-IOS-XE-native:native/version", nil, &version, false); err != nil {
		return DeviceStats{}, err
	}

	var hostname struct {
		Hostname string `json:"Cisco-IOS-XE-native:hostname"`
	}
	// Hostname is best-effort; some deployments restrict this subtree.
	if _, err := a.call(ctx, "device stats", http.MethodGet, "/restconf/data/Cisco-IOS-XE-native:native/hostname", nil, &hostname, true); err != nil {
		return DeviceStats{}, err
	}

	return DeviceStats{
		Hostname: hostname.Hostname,
		Version:  version.Version,
	}, nil
}

func (a *ciscoAdapter) GetConnectedDevices(ctx context.Context) ([]ClientInfo, error) {
	var out struct {
		ARPData struct {
			VRFs []struct {
				Entries []struct {
					Address  string `json:"address"`
					Hardware string `json:"hardware"`
				} `json:"arp-oper"`
			} `json:"arp-vrf"`
		} `json:"Cisco-IOS-XE-arp-oper:arp-data"`
	}
	found, err := a.call(ctx, "list clients", http.MethodGet, "/restconf/data/Cisco-IOS-XE-arp-oper:arp-data", nil, &out, true)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	var clients []ClientInfo
	for _, vrf := range out.ARPData.VRFs {
		for _, entry := range vrf.Entries {
			mac, err := NormalizeMAC(entry.Hardware)
			if err != nil {
				continue
			}
			clients = append(clients, ClientInfo{MAC: mac, IP: entry.Address})
		}
	}
	return clients, nil
}
