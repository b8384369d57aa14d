// Package netguard implements the SSRF safety gate shared by the URL
// normalizer (C1) and the headless crawler (C9): it rejects literal IPs and
// resolved addresses that fall inside loopback, link-local, private,
// unique-local, multicast, or broadcast ranges, plus the cloud metadata
// address.
package netguard

import "net"

// BlockedCIDRs are networks a target host must never resolve to.
var BlockedCIDRs = func() []*net.IPNet {
	cidrs := []string{
		"127.0.0.0/8",    // loopback
		"10.0.0.0/8",     // RFC1918
		"172.16.0.0/12",  // RFC1918
		"192.168.0.0/16", // RFC1918
		"169.254.0.0/16", // link-local / cloud metadata range
		"0.0.0.0/8",      // unspecified
		"224.0.0.0/4",    // IPv4 multicast
		"255.255.255.255/32",
		"::1/128",   // IPv6 loopback
		"fe80::/10", // IPv6 link-local
		"fc00::/7",  // IPv6 unique-local
		"ff00::/8",  // IPv6 multicast
	}
	var nets []*net.IPNet
	for _, c := range cidrs {
		_, ipNet, err := net.ParseCIDR(c)
		if err != nil {
			continue
		}
		nets = append(nets, ipNet)
	}
	return nets
}()

// metadataHost is the cloud metadata endpoint most SSRF payloads target.
const metadataHost = "169.254.169.254"

// IsBlocked reports whether ip falls within a disallowed range.
func IsBlocked(ip net.IP) bool {
	if ip == nil {
		return true
	}
	for _, cidr := range BlockedCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// IsBlockedHost reports whether host (hostname or literal IP) is disallowed.
// For a literal it parses directly; for a hostname it leaves resolution to
// the caller, who must pass the same resolver used downstream (no TOCTOU).
func IsBlockedHost(host string) bool {
	if host == metadataHost {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return IsBlocked(ip)
}
