package utils

import (
	"net"
	"strings"
)

// cgnat is 100.64.0.0/10, used by Cloudflare WARP, Tailscale and carrier
// grade NAT.
var cgnat = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// vpnNameHints are interface name fragments of tunnel adapters.
var vpnNameHints = []string{"tun", "tap", "wg", "ppp", "warp", "utun"}

// Interface is the subset of an interface ShouldForceRelay looks at.
type Interface struct {
	Name  string
	Flags net.Flags
	Addrs []net.IP
}

// ShouldForceRelay checks if the host is likely behind a VPN or CGNAT,
// where direct media paths usually fail and TURN should be forced.
func ShouldForceRelay() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	list := make([]Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		item := Interface{Name: iface.Name, Flags: iface.Flags}
		addrs, err := iface.Addrs()
		if err == nil {
			for _, addr := range addrs {
				switch v := addr.(type) {
				case *net.IPNet:
					item.Addrs = append(item.Addrs, v.IP)
				case *net.IPAddr:
					item.Addrs = append(item.Addrs, v.IP)
				}
			}
		}
		list = append(list, item)
	}
	return LooksRelayed(list)
}

// LooksRelayed applies the VPN and CGNAT heuristics to ifaces. Down and
// loopback interfaces are ignored.
func LooksRelayed(ifaces []Interface) bool {
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		name := strings.ToLower(iface.Name)
		for _, hint := range vpnNameHints {
			if strings.Contains(name, hint) {
				return true
			}
		}

		for _, ip := range iface.Addrs {
			if cgnat.Contains(ip) {
				return true
			}
		}
	}
	return false
}
