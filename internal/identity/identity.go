// Package identity is a best-effort local identity source: human-readable
// device names derived from the platform string and an approximate network
// origin. Everything here is optional metadata; failures return zero values
// and are never required for correctness.
package identity

import (
	"net"
	"os"

	"github.com/oplink/sessionsync/internal/domain/session"
)

// DisplayName derives a cosmetic device name from the platform.
func DisplayName(p session.Platform) string {
	switch p {
	case session.PlatformIOS:
		return "iOS Device"
	case session.PlatformAndroid:
		return "Android Device"
	case session.PlatformWeb:
		return "Web Browser"
	case session.PlatformDesktop:
		return "Desktop App"
	default:
		return "Unknown Device"
	}
}

// Origin describes the approximate network identity of this device.
type Origin struct {
	Hostname string `json:"hostname,omitempty"`
	IP       string `json:"ip,omitempty"`
}

// LocalOrigin returns best-effort host identity: the hostname and the first
// non-loopback unicast IP. Fields that cannot be determined are left empty.
func LocalOrigin() Origin {
	var o Origin
	if name, err := os.Hostname(); err == nil {
		o.Hostname = name
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return o
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			o.IP = ip4.String()
			break
		}
		if o.IP == "" {
			o.IP = ipNet.IP.String()
		}
	}
	return o
}
