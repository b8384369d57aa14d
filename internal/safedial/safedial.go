// Package safedial provides the SSRF-safe dialer shared by the headless
// crawler (C9) and the WHOIS client (C8), adapted from the teacher's
// proxy.ssrfSafeDial: resolve first, reject any blocked address, then
// connect to a resolved IP rather than the original hostname — so there is
// no window between the safety check and the connection.
package safedial

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/alerta-link/alerta-link/internal/netguard"
)

var dialer = &net.Dialer{Timeout: 10 * time.Second}

// DialContext resolves addr's host, rejects it if any resolved IP (or the
// literal itself) is blocked by netguard, and connects to the first safe
// resolved address.
func DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("safedial: invalid address %q: %w", addr, err)
	}

	if ip := net.ParseIP(host); ip != nil {
		if netguard.IsBlocked(ip) {
			return nil, fmt.Errorf("safedial: %s is a disallowed address", ip)
		}
		return dialer.DialContext(ctx, network, addr)
	}

	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("safedial: dns lookup failed: %w", err)
	}
	for _, ipAddr := range ips {
		if netguard.IsBlocked(ipAddr.IP) {
			return nil, fmt.Errorf("safedial: %s resolves to disallowed address %s", host, ipAddr.IP)
		}
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("safedial: no addresses for %s", host)
	}

	safeAddr := net.JoinHostPort(ips[0].IP.String(), port)
	return dialer.DialContext(ctx, network, safeAddr)
}
