package audit

import (
	"net"
	"strings"
)

// AnonymizeIP truncates an IP address for privacy-preserving retention.
// IPv4 addresses lose the last octet (192.168.1.100 -> 192.168.1.0);
// IPv6 addresses lose the last 80 bits. Invalid input returns "".
func AnonymizeIP(ipStr string) string {
	if ipStr == "" {
		return ""
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return ""
	}
	if ip.To4() != nil {
		parts := strings.Split(ipStr, ".")
		if len(parts) != 4 {
			return ""
		}
		parts[3] = "0"
		return strings.Join(parts, ".")
	}
	ipBytes := []byte(ip.To16())
	if len(ipBytes) != 16 {
		return ""
	}
	// Keep the first 48 bits, zero the rest.
	for i := 6; i < 16; i++ {
		ipBytes[i] = 0
	}
	return net.IP(ipBytes).String()
}
