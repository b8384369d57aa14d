// Package whois implements the WHOIS client (C8): cache-through domain-age
// lookups speaking the WHOIS protocol (RFC 3912) directly over TCP, bounded
// by a 3s timeout. No WHOIS library appears anywhere in the retrieved
// example pack, so this talks the wire protocol itself.
package whois

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/alerta-link/alerta-link/internal/cache"
	"github.com/alerta-link/alerta-link/internal/safedial"
)

// ErrUnavailable covers timeout, connection, and parse failures.
var ErrUnavailable = errors.New("whois: unavailable")

const (
	timeout       = 3 * time.Second
	positiveTTL   = 24 * time.Hour
	negativeTTL   = 6 * time.Hour
	ianaWHOISHost = "whois.iana.org"
	whoisPort     = "43"
	maxReferrals  = 3
)

// Payload is the WHOIS lookup result (§4.6).
type Payload struct {
	AgeDays   int    `json:"age_days"`
	Known     bool   `json:"-"`
	Registrar string `json:"registrar,omitempty"`
	Available bool   `json:"available"`
}

// Client is the cache-through WHOIS collaborator.
type Client struct {
	cache *cache.TTLCache
	dial  func(ctx context.Context, network, addr string) (net.Conn, error)
	now   func() time.Time
}

// New builds a Client using the default SSRF-safe dialer (shared with the
// crawler so WHOIS lookups cannot be used as an SSRF vector either).
func New(dial func(ctx context.Context, network, addr string) (net.Conn, error)) *Client {
	if dial == nil {
		dial = safedial.DialContext
	}
	return &Client{cache: cache.New(10000), dial: dial, now: time.Now}
}

// PurgeExpired evicts stale cache entries; intended for a periodic janitor.
func (c *Client) PurgeExpired() int { return c.cache.Purge() }

// Lookup returns registration-age information for a registrable domain, or
// ErrUnavailable. Cache key is the lowercased registrable domain (§4.6).
func (c *Client) Lookup(ctx context.Context, registrableDomain string) (Payload, error) {
	key := strings.ToLower(registrableDomain)
	v, err := c.cache.Fetch(ctx, key, positiveTTL, negativeTTL, func(ctx context.Context) (any, error) {
		return c.fetch(ctx, key)
	})
	if err != nil {
		return Payload{}, err
	}
	return v.(Payload), nil
}

func (c *Client) fetch(ctx context.Context, domain string) (Payload, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	host := ianaWHOISHost
	var raw string
	for i := 0; i <= maxReferrals; i++ {
		resp, err := c.query(ctx, host, domain)
		if err != nil {
			return Payload{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		raw = resp
		next := referredServer(resp)
		if next == "" || next == host {
			break
		}
		host = next
	}

	return parseWHOIS(raw), nil
}

func (c *Client) query(ctx context.Context, host, domain string) (string, error) {
	conn, err := c.dial(ctx, "tcp", net.JoinHostPort(host, whoisPort))
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if _, err := conn.Write([]byte(domain + "\r\n")); err != nil {
		return "", err
	}

	var sb strings.Builder
	_, err = io.Copy(&sb, bufio.NewReader(conn))
	if err != nil && err != io.EOF {
		return "", err
	}
	return sb.String(), nil
}

func referredServer(resp string) string {
	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(line)
		lower := strings.ToLower(line)
		if strings.HasPrefix(lower, "refer:") || strings.HasPrefix(lower, "whois server:") || strings.HasPrefix(lower, "whois:") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				return strings.TrimSpace(parts[1])
			}
		}
	}
	return ""
}

func parseWHOIS(resp string) Payload {
	lower := strings.ToLower(resp)
	if strings.Contains(lower, "no match") || strings.Contains(lower, "not found") || strings.Contains(lower, "no data found") || strings.Contains(lower, "domain status: available") {
		return Payload{Available: true}
	}

	var registrar string
	var created time.Time
	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(line)
		lowerLine := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lowerLine, "registrar:") && registrar == "":
			registrar = strings.TrimSpace(line[len("registrar:"):])
		case strings.HasPrefix(lowerLine, "creation date:"), strings.HasPrefix(lowerLine, "created:"), strings.HasPrefix(lowerLine, "created on:"):
			idx := strings.IndexByte(line, ':')
			if idx < 0 {
				continue
			}
			if t, err := parseWHOISDate(strings.TrimSpace(line[idx+1:])); err == nil {
				created = t
			}
		}
	}

	if created.IsZero() {
		return Payload{Registrar: registrar}
	}

	ageDays := int(time.Since(created).Hours() / 24)
	return Payload{AgeDays: ageDays, Known: true, Registrar: registrar}
}

var whoisDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-Jan-2006",
	"2006.01.02",
}

func parseWHOISDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range whoisDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("whois: unrecognized date format %q", s)
}
