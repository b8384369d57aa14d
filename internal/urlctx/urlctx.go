// Package urlctx implements the URL Normalizer & Safety Gate (C1): it
// canonicalizes an arbitrary input string into an immutable, request-scoped
// Context, or rejects it as InvalidURL / BlockedTarget.
package urlctx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"

	"github.com/alerta-link/alerta-link/internal/netguard"
)

// ErrInvalidURL covers length, scheme, and parse failures.
var ErrInvalidURL = errors.New("invalid url")

// ErrBlockedTarget covers SSRF-hazardous targets.
var ErrBlockedTarget = errors.New("blocked target")

const (
	minLen = 10
	maxLen = 2048
)

// Context is the normalized, request-scoped representation of a URL.
// It is immutable once built and records the host's resolved addresses as
// checked by the safety gate. The crawler does not read them: its dialer
// (internal/safedial) resolves the host again and re-applies the same
// blocklist to the addresses it actually connects to.
type Context struct {
	Original      string
	Normalized    string
	Scheme        string
	Host          string // punycode-normalized, lowercase, no default port
	Port          string // empty if default for scheme
	Path          string
	RawQuery      string
	Registrable   string // effective second-level domain
	Subdomains    []string
	RequiredPunycode bool
	ResolvedIPs   []net.IP
}

// Resolver is the subset of *net.Resolver used here, so callers can inject
// a stub in tests without touching the real DNS system.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Normalize runs C1's full contract: canonicalize, then apply the SSRF
// safety gate. It resolves host via r and rejects the URL if any resolved
// address is blocked.
func Normalize(ctx context.Context, raw string, r Resolver) (*Context, error) {
	if len(raw) < minLen || len(raw) > maxLen {
		return nil, fmt.Errorf("%w: length %d out of [%d,%d]", ErrInvalidURL, len(raw), minLen, maxLen)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q not permitted", ErrInvalidURL, u.Scheme)
	}

	hostname := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if hostname == "" {
		return nil, fmt.Errorf("%w: empty host", ErrInvalidURL)
	}

	requiredPunycode := false
	encodedHost, err := idna.Lookup.ToASCII(hostname)
	if err != nil {
		// Not a valid IDNA label set — only acceptable if it's a literal IP.
		if net.ParseIP(hostname) == nil {
			return nil, fmt.Errorf("%w: invalid host %q: %v", ErrInvalidURL, hostname, err)
		}
		encodedHost = hostname
	} else if encodedHost != hostname {
		requiredPunycode = true
	}

	port := u.Port()
	if port == defaultPort(scheme) {
		port = ""
	}

	// Safety gate — literal IP.
	if ip := net.ParseIP(encodedHost); ip != nil {
		if netguard.IsBlocked(ip) {
			return nil, fmt.Errorf("%w: %s is a disallowed address", ErrBlockedTarget, ip)
		}
	}

	// Safety gate — resolved hostname. Same resolver instance the fetcher reuses.
	var resolved []net.IP
	if net.ParseIP(encodedHost) == nil && r != nil {
		addrs, err := r.LookupIPAddr(ctx, encodedHost)
		if err != nil {
			return nil, fmt.Errorf("%w: host fails to resolve: %v", ErrInvalidURL, err)
		}
		for _, a := range addrs {
			if netguard.IsBlocked(a.IP) {
				return nil, fmt.Errorf("%w: %s resolves to disallowed address %s", ErrBlockedTarget, encodedHost, a.IP)
			}
			resolved = append(resolved, a.IP)
		}
	}

	registrable, err := publicsuffix.EffectiveTLDPlusOne(encodedHost)
	if err != nil {
		// IP literals and single-label hosts have no registrable domain;
		// fall back to the host itself rather than failing the request.
		registrable = encodedHost
	}

	var subdomains []string
	if registrable != encodedHost {
		prefix := strings.TrimSuffix(encodedHost, "."+registrable)
		if prefix != "" {
			subdomains = strings.Split(prefix, ".")
		}
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}

	hostPort := encodedHost
	if port != "" {
		hostPort = net.JoinHostPort(encodedHost, port)
	}
	normalized := scheme + "://" + hostPort + path
	if u.RawQuery != "" {
		normalized += "?" + u.RawQuery
	}

	return &Context{
		Original:         raw,
		Normalized:       normalized,
		Scheme:           scheme,
		Host:             encodedHost,
		Port:             port,
		Path:             path,
		RawQuery:         u.RawQuery,
		Registrable:      registrable,
		Subdomains:       subdomains,
		RequiredPunycode: requiredPunycode,
		ResolvedIPs:      resolved,
	}, nil
}

func defaultPort(scheme string) string {
	if scheme == "https" {
		return "443"
	}
	return "80"
}

// HasPort reports whether the normalized context carries an explicit,
// non-default port — feeds feature extraction's has_port field.
func (c *Context) HasPort() bool { return c.Port != "" }

// NumSubdomains is the count of labels left of the registrable domain.
func (c *Context) NumSubdomains() int { return len(c.Subdomains) }
