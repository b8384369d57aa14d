// Package catalog holds ALERTA-LINK's static reference data (C3): brand
// names, suspicious keywords, risky TLDs, shortener/paste domains, and the
// trusted-domain allowlist. Loaded once at boot from embedded JSON, never
// mutated at runtime — the same shape as the teacher's embedded CrowdSec
// pattern files (classify.crowdsecData in the teacher repo).
package catalog

import (
	"embed"
	"encoding/json"
	"strings"
)

//go:embed data/*.json
var catalogFS embed.FS

// Brand is a known brand and its canonical registrable domain.
type Brand struct {
	Name           string `json:"name"`
	CanonicalDomain string `json:"canonical_domain"`
}

// Catalog is the immutable set of reference data consulted by the feature
// extractor (C2) and the heuristic predictor (C5).
type Catalog struct {
	Brands            []Brand
	SuspiciousKeywords []string
	RiskyTLDs         map[string]struct{}
	Shorteners        map[string]struct{}
	PasteServices     map[string]struct{}
	TrustedDomains    map[string]struct{}
}

type rawFile struct {
	Brands             []Brand  `json:"brands"`
	SuspiciousKeywords []string `json:"suspicious_keywords"`
	RiskyTLDs          []string `json:"risky_tlds"`
	Shorteners         []string `json:"shorteners"`
	PasteServices      []string `json:"paste_services"`
	TrustedDomains     []string `json:"trusted_domains"`
}

// Load reads and parses the embedded catalog, returning a ready-to-use
// Catalog. It cannot fail on the embedded copy but returns an error to keep
// the contract explicit for callers that might load an override path later.
func Load() (*Catalog, error) {
	data, err := catalogFS.ReadFile("data/catalog.json")
	if err != nil {
		return nil, err
	}

	var raw rawFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	c := &Catalog{
		Brands:             raw.Brands,
		SuspiciousKeywords: raw.SuspiciousKeywords,
		RiskyTLDs:          toSet(raw.RiskyTLDs),
		Shorteners:         toSet(raw.Shorteners),
		PasteServices:      toSet(raw.PasteServices),
		TrustedDomains:     toSet(raw.TrustedDomains),
	}
	return c, nil
}

func toSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, item := range items {
		out[strings.ToLower(item)] = struct{}{}
	}
	return out
}

// IsShortener reports whether host is a known URL-shortening service.
func (c *Catalog) IsShortener(host string) bool {
	_, ok := c.Shorteners[strings.ToLower(host)]
	return ok
}

// IsPasteService reports whether host is a known paste/snippet service.
func (c *Catalog) IsPasteService(host string) bool {
	_, ok := c.PasteServices[strings.ToLower(host)]
	return ok
}

// IsTrusted reports whether host is on the trusted-domain allowlist.
func (c *Catalog) IsTrusted(host string) bool {
	_, ok := c.TrustedDomains[strings.ToLower(host)]
	return ok
}

// IsRiskyTLD reports whether tld (without leading dot) is in the risky set.
func (c *Catalog) IsRiskyTLD(tld string) bool {
	_, ok := c.RiskyTLDs[strings.ToLower(tld)]
	return ok
}

// CountSuspiciousWords returns how many distinct suspicious keywords appear
// anywhere in s (case-insensitive, substring match).
func (c *Catalog) CountSuspiciousWords(s string) int {
	lower := strings.ToLower(s)
	count := 0
	for _, kw := range c.SuspiciousKeywords {
		if strings.Contains(lower, kw) {
			count++
		}
	}
	return count
}
