package netops

import (
	"fmt"
	"net"
	"strings"
)

// NormalizeMAC canonicalizes a MAC address to uppercase colon-separated
// hex pairs (AA:BB:CC:DD:EE:FF). It accepts colon, hyphen and Cisco
// dot notation as well as bare 12-digit hex. Normalization is
// idempotent. A malformed MAC returns a ValidationError and must never
// reach an adapter.
func NormalizeMAC(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", &ValidationError{Msg: "MAC address is empty"}
	}

	// net.ParseMAC does not accept bare hex; insert separators first.
	if len(s) == 12 && !strings.ContainsAny(s, ":-.") {
		var b strings.Builder
		for i := 0; i < 12; i += 2 {
			if i > 0 {
				b.WriteByte(':')
			}
			b.WriteString(s[i : i+2])
		}
		s = b.String()
	}

	hw, err := net.ParseMAC(s)
	if err != nil || len(hw) != 6 {
		return "", &ValidationError{Msg: fmt.Sprintf("invalid MAC address %q", raw)}
	}

	return strings.ToUpper(hw.String()), nil
}
