// Dialer and transport for outbound requests to user-configured URLs (webhook rules), which refuse to connect anywhere but public addresses on the standard web ports.
//
// Checks happen at dial time, after DNS resolution, so a hostname which resolves to a private address is rejected too. Approach adapted from Andrew Ayer's public domain (CC0) write-up: https://www.agwa.name/blog/post/preventing_server_side_request_forgery_in_golang
package ssrf

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"syscall"
	"time"
)

var reservedIPv4Prefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),       // current network
	netip.MustParsePrefix("10.0.0.0/8"),      // private
	netip.MustParsePrefix("100.64.0.0/10"),   // carrier-grade NAT
	netip.MustParsePrefix("127.0.0.0/8"),     // loopback
	netip.MustParsePrefix("169.254.0.0/16"),  // link-local, including cloud metadata
	netip.MustParsePrefix("172.16.0.0/12"),   // private
	netip.MustParsePrefix("192.0.0.0/24"),    // IETF protocol assignments
	netip.MustParsePrefix("192.0.2.0/24"),    // documentation
	netip.MustParsePrefix("192.88.99.0/24"),  // 6to4 relay
	netip.MustParsePrefix("192.168.0.0/16"),  // private
	netip.MustParsePrefix("198.18.0.0/15"),   // benchmarking
	netip.MustParsePrefix("198.51.100.0/24"), // documentation
	netip.MustParsePrefix("203.0.113.0/24"),  // documentation
	netip.MustParsePrefix("224.0.0.0/4"),     // multicast
	netip.MustParsePrefix("240.0.0.0/4"),     // reserved, including broadcast
}

// 2000::/3 is the only IPv6 range handed out for global unicast
var globalUnicastIPv6 = netip.MustParsePrefix("2000::/3")

// Ports a webhook may be served from
var AllowedPorts = map[string]bool{
	"80":  true,
	"443": true,
}

func IsPublicIPAddress(address net.IP) bool {
	addr, ok := netip.AddrFromSlice(address)
	if !ok {
		return false
	}
	return IsPublicAddr(addr)
}

func IsPublicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.Is4() {
		for _, p := range reservedIPv4Prefixes {
			if p.Contains(addr) {
				return false
			}
		}
		return true
	}
	return globalUnicastIPv6.Contains(addr)
}

// Implementation of the [net.Dialer] `Control` hook which rejects non-TCP networks, non-public addresses, and ports not in AllowedPorts.
func PublicOnlyControl(network string, address string, conn syscall.RawConn) error {
	if network != "tcp4" && network != "tcp6" {
		return fmt.Errorf("%s is not a safe network type", network)
	}
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%s is not a valid address and port: %w", address, err)
	}
	if !IsPublicAddr(ap.Addr()) {
		return fmt.Errorf("%s is not a public IP address", ap.Addr())
	}
	if port := fmt.Sprintf("%d", ap.Port()); !AllowedPorts[port] {
		return fmt.Errorf("%s is not a safe port number", port)
	}
	return nil
}

func PublicOnlyDialer() *net.Dialer {
	return &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   PublicOnlyControl,
	}
}

// [http.Transport] dialing through [PublicOnlyDialer]. Environment proxies are ignored, since a proxy would dial on our behalf.
func PublicOnlyTransport() *http.Transport {
	dialer := PublicOnlyDialer()
	return &http.Transport{
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
