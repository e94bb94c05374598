package utils

import (
	"net"
	"strings"
)

// cgnatBlock is 100.64.0.0/10. Cloudflare WARP, Tailscale and carrier grade
// NATs hand out addresses from it.
var cgnatBlock = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// vpnNameHints are interface name fragments used by tunnels and virtual adapters.
var vpnNameHints = []string{"tun", "tap", "wg", "ppp", "warp", "utun"}

// ShouldForceRelay checks if the system is likely behind a restrictive VPN or CGNAT
// and returns true if we should force TURN usage.
func ShouldForceRelay() bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	for _, iface := range interfaces {
		// Ignore loopback and down interfaces
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			addrs = nil
		}

		var ips []net.IP
		for _, addr := range addrs {
			switch v := addr.(type) {
			case *net.IPNet:
				ips = append(ips, v.IP)
			case *net.IPAddr:
				ips = append(ips, v.IP)
			}
		}

		if RestrictedInterface(iface.Name, ips) {
			return true
		}
	}

	return false
}

// RestrictedInterface reports whether an interface looks like a VPN tunnel
// or sits behind CGNAT, where direct peer-to-peer paths usually fail.
func RestrictedInterface(name string, ips []net.IP) bool {
	name = strings.ToLower(name)
	for _, hint := range vpnNameHints {
		if strings.Contains(name, hint) {
			return true
		}
	}

	for _, ip := range ips {
		if cgnatBlock.Contains(ip) {
			return true
		}
	}
	return false
}
