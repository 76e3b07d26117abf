package netops

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
)

const (
	oidSysDescr  = "1.3.6.1.2.1.1.1.0"
	oidSysUptime = "1.3.6.1.2.1.1.3.0"
	oidSysName   = "1.3.6.1.2.1.1.5.0"
	// ipNetToMediaPhysAddress: ARP table, index carries the IP.
	oidArpPhysAddr = "1.3.6.1.2.1.4.22.1.2"
)

// snmpProbe is the read-only fallback adapter for consumer-grade
// brands without a usable management API. It answers connectivity,
// stats and client-listing queries over SNMP v2c; enforcement
// capabilities fail locally so callers never count them against the
// device.
type snmpProbe struct {
	cfg Config
}

// NewSNMPProbe builds the read-only SNMP adapter.
func NewSNMPProbe(cfg Config) Adapter {
	return &snmpProbe{cfg: cfg}
}

func (p *snmpProbe) Vendor() string { return "snmp" }

func (p *snmpProbe) session() *gosnmp.GoSNMP {
	port := p.cfg.Port
	if port <= 0 {
		port = 161
	}
	timeout := p.cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &gosnmp.GoSNMP{
		Target:    p.cfg.Host,
		Port:      uint16(port),
		Community: p.cfg.Credentials.Community,
		Version:   gosnmp.Version2c,
		Timeout:   timeout,
		Retries:   1,
	}
}

// connect opens the UDP session. gosnmp enforces its own timeout, so
// the context is only consulted up front.
func (p *snmpProbe) connect(ctx context.Context, op string) (*gosnmp.GoSNMP, error) {
	if err := ctx.Err(); err != nil {
		return nil, transientErr("snmp", op, err)
	}
	g := p.session()
	if err := g.Connect(); err != nil {
		return nil, transientErr("snmp", op, err)
	}
	return g, nil
}

func pduString(pdu gosnmp.SnmpPDU) string {
	switch v := pdu.Value.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	default:
		return ""
	}
}

func (p *snmpProbe) TestConnection(ctx context.Context) (TestResult, error) {
	g, err := p.connect(ctx, "test connection")
	if err != nil {
		return TestResult{Connected: false, Message: err.Error()}, err
	}
	defer g.Conn.Close()

	start := time.Now()
	res, err := g.Get([]string{oidSysDescr})
	if err != nil {
		err = transientErr("snmp", "test connection", err)
		return TestResult{Connected: false, Message: err.Error()}, err
	}
	if len(res.Variables) == 0 {
		perr := &ProtocolError{Vendor: "snmp", Op: "test connection", Msg: "empty GET response"}
		return TestResult{Connected: false, Message: perr.Error()}, perr
	}

	latency := int(time.Since(start).Milliseconds())
	descr := pduString(res.Variables[0])
	if i := strings.IndexByte(descr, '\n'); i > 0 {
		descr = descr[:i]
	}
	return TestResult{
		Connected: true,
		Message:   fmt.Sprintf("SNMP agent reachable: %s", descr),
		LatencyMs: &latency,
	}, nil
}

func (p *snmpProbe) BlockMAC(ctx context.Context, mac, reason string) (string, error) {
	return "", &NotSupportedError{Vendor: "snmp", Capability: "MAC blocking"}
}

func (p *snmpProbe) UnblockMAC(ctx context.Context, mac string) (string, error) {
	return "", &NotSupportedError{Vendor: "snmp", Capability: "MAC blocking"}
}

func (p *snmpProbe) GetBlockedMACs(ctx context.Context) ([]string, error) {
	return nil, &NotSupportedError{Vendor: "snmp", Capability: "MAC blocking"}
}

func (p *snmpProbe) SetBandwidthLimit(ctx context.Context, mac string, limitMbps float64) (string, error) {
	return "", &NotSupportedError{Vendor: "snmp", Capability: "bandwidth control"}
}

func (p *snmpProbe) RemoveBandwidthLimit(ctx context.Context, mac string) (string, error) {
	return "", &NotSupportedError{Vendor: "snmp", Capability: "bandwidth control"}
}

func (p *snmpProbe) GetDeviceStats(ctx context.Context) (DeviceStats, error) {
	g, err := p.connect(ctx, "device stats")
	if err != nil {
		return DeviceStats{}, err
	}
	defer g.Conn.Close()

	res, err := g.Get([]string{oidSysName, oidSysDescr, oidSysUptime})
	if err != nil {
		return DeviceStats{}, transientErr("snmp", "device stats", err)
	}

	stats := DeviceStats{}
	for _, pdu := range res.Variables {
		switch pdu.Name {
		case "." + oidSysName:
			stats.Hostname = pduString(pdu)
		case "." + oidSysDescr:
			stats.Model = pduString(pdu)
		case "." + oidSysUptime:
			// sysUpTime is in hundredths of a second.
			stats.UptimeSeconds = int64(gosnmp.ToBigInt(pdu.Value).Int64() / 100)
		}
	}
	return stats, nil
}

func (p *snmpProbe) GetConnectedDevices(ctx context.Context) ([]ClientInfo, error) {
	g, err := p.connect(ctx, "list clients")
	if err != nil {
		return nil, err
	}
	defer g.Conn.Close()

	var clients []ClientInfo
	err = g.BulkWalk(oidArpPhysAddr, func(pdu gosnmp.SnmpPDU) error {
		raw, ok := pdu.Value.([]byte)
		if !ok || len(raw) != 6 {
			return nil
		}
		mac, err := NormalizeMAC(net.HardwareAddr(raw).String())
		if err != nil {
			return nil
		}
		clients = append(clients, ClientInfo{
			MAC: mac,
			IP:  arpIndexIP(pdu.Name),
		})
		return nil
	})
	if err != nil {
		return nil, transientErr("snmp", "list clients", err)
	}
	return clients, nil
}

// arpIndexIP extracts the IP from an ipNetToMediaPhysAddress OID
// suffix (…<ifIndex>.<a>.<b>.<c>.<d>).
func arpIndexIP(oid string) string {
	parts := strings.Split(strings.TrimPrefix(oid, "."), ".")
	if len(parts) < 4 {
		return ""
	}
	return strings.Join(parts[len(parts)-4:], ".")
}
