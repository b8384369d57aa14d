// Package features implements the Feature Extractor (C2): a total, pure
// function from a normalized URL context to the fixed 24-field record
// consumed by both predictors.
package features

import (
	"math"
	"net"
	"strings"

	"github.com/alerta-link/alerta-link/internal/catalog"
	"github.com/alerta-link/alerta-link/internal/urlctx"
)

// Names is the fixed, ordered feature-name list. The ML artifact's own
// feature-name list must equal this exactly (§4.4's load-time check).
var Names = []string{
	"url_length", "domain_length", "path_length", "num_digits", "num_hyphens",
	"num_dots", "num_subdomains", "entropy", "has_https", "has_port",
	"has_at_symbol", "contains_ip", "has_punycode", "shortener_detected",
	"paste_service_detected", "has_suspicious_words", "tld_risk",
	"excessive_subdomains", "digit_ratio", "num_params", "special_chars",
	"in_tranco", "tranco_rank", "brand_impersonation",
}

// Record is the 24-valued feature vector, field order fixed to Names.
type Record struct {
	URLLength             int
	DomainLength          int
	PathLength            int
	NumDigits             int
	NumHyphens            int
	NumDots               int
	NumSubdomains         int
	Entropy               float64
	HasHTTPS              bool
	HasPort               bool
	HasAtSymbol           bool
	ContainsIP            bool
	HasPunycode           bool
	ShortenerDetected     bool
	PasteServiceDetected  bool
	HasSuspiciousWords    int
	TLDRisk               bool
	ExcessiveSubdomains   bool
	DigitRatio            float64
	NumParams             int
	SpecialChars          int
	InTranco              bool
	TrancoRank            float64
	BrandImpersonation    bool
}

// Vector returns r as an ordered slice of float64, matching Names, for
// feeding into the ML pipeline's standardizer.
func (r Record) Vector() []float64 {
	return []float64{
		float64(r.URLLength), float64(r.DomainLength), float64(r.PathLength),
		float64(r.NumDigits), float64(r.NumHyphens), float64(r.NumDots),
		float64(r.NumSubdomains), r.Entropy, b2f(r.HasHTTPS), b2f(r.HasPort),
		b2f(r.HasAtSymbol), b2f(r.ContainsIP), b2f(r.HasPunycode),
		b2f(r.ShortenerDetected), b2f(r.PasteServiceDetected),
		float64(r.HasSuspiciousWords), b2f(r.TLDRisk), b2f(r.ExcessiveSubdomains),
		r.DigitRatio, float64(r.NumParams), float64(r.SpecialChars),
		b2f(r.InTranco), r.TrancoRank, b2f(r.BrandImpersonation),
	}
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Extract computes the feature record for c. It is total: every well-formed
// Context (the only kind urlctx.Normalize produces) yields a record, never
// an error. tranco is nil when no Tranco lookup has run for this request;
// trancoThreshold is the configured rank cutoff (§4.6).
func Extract(c *urlctx.Context, cat *catalog.Catalog, tranco *TrancoSignal, trancoThreshold int) Record {
	url := c.Normalized
	host := c.Host

	r := Record{
		URLLength:    len(url),
		DomainLength: len(c.Registrable),
		PathLength:   len(c.Path),
		NumSubdomains: c.NumSubdomains(),
		HasHTTPS:     c.Scheme == "https",
		HasPort:      c.HasPort(),
		HasAtSymbol:  strings.Contains(url, "@"),
		ContainsIP:   net.ParseIP(host) != nil,
		HasPunycode:  c.RequiredPunycode || strings.Contains(host, "xn--"),
	}

	for _, ch := range url {
		switch {
		case ch >= '0' && ch <= '9':
			r.NumDigits++
		case ch == '-':
			r.NumHyphens++
		case ch == '.':
			r.NumDots++
		case ch == '=':
			r.NumParams++
		}
		if !isAllowedChar(ch) {
			r.SpecialChars++
		}
	}

	r.Entropy = shannonEntropy(host)
	if r.URLLength > 0 {
		r.DigitRatio = float64(r.NumDigits) / float64(r.URLLength)
	}
	r.ExcessiveSubdomains = r.NumSubdomains > 3

	if cat != nil {
		r.ShortenerDetected = cat.IsShortener(host)
		r.PasteServiceDetected = cat.IsPasteService(host)
		r.HasSuspiciousWords = cat.CountSuspiciousWords(url)
		r.TLDRisk = cat.IsRiskyTLD(effectiveTLD(c.Registrable))
		r.BrandImpersonation = detectBrandImpersonation(c, cat)
	}

	if tranco != nil {
		r.InTranco = tranco.InTopK
		if trancoThreshold > 0 && tranco.Rank > 0 {
			r.TrancoRank = 1 - float64(tranco.Rank)/float64(trancoThreshold)
			if r.TrancoRank < 0 {
				r.TrancoRank = 0
			}
		}
	}

	return r
}

// TrancoSignal is the subset of the Tranco payload the extractor needs,
// passed in by the orchestrator once its lookup (C6) completes.
type TrancoSignal struct {
	Rank   int
	InTopK bool
}

func isAllowedChar(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r == '.' || r == '/' || r == ':' || r == '?' || r == '=' || r == '&' || r == '_' || r == '-':
		return true
	}
	return false
}

func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	counts := make(map[rune]int)
	for _, r := range s {
		counts[r]++
	}
	total := float64(len(s))
	var h float64
	for _, n := range counts {
		p := float64(n) / total
		h -= p * math.Log2(p)
	}
	return h
}

func effectiveTLD(registrable string) string {
	i := strings.LastIndexByte(registrable, '.')
	if i < 0 {
		return registrable
	}
	return registrable[i+1:]
}

// detectBrandImpersonation flags a registrable second-level label that is a
// near-miss of a known brand name — close enough in edit distance to fool a
// human reader — or a subdomain label that equals a brand name exactly,
// unless the registrable domain is that brand's own canonical domain.
func detectBrandImpersonation(c *urlctx.Context, cat *catalog.Catalog) bool {
	label := secondLevelLabel(c.Registrable)
	for _, brand := range cat.Brands {
		if c.Registrable == brand.CanonicalDomain {
			continue
		}
		if label != brand.Name && similarity(label, brand.Name) >= 0.70 {
			return true
		}
		for _, sub := range c.Subdomains {
			if sub == brand.Name {
				return true
			}
		}
	}
	return false
}

func secondLevelLabel(registrable string) string {
	i := strings.LastIndexByte(registrable, '.')
	if i < 0 {
		return registrable
	}
	return registrable[:i]
}

// similarity converts Damerau-Levenshtein distance to a normalized [0,1]
// score against the longer of the two strings.
func similarity(a, b string) float64 {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	d := damerauLevenshtein(a, b)
	return 1 - float64(d)/float64(maxLen)
}

// damerauLevenshtein computes the optimal-string-alignment edit distance
// (insert, delete, substitute, adjacent transposition) between a and b.
func damerauLevenshtein(a, b string) int {
	la, lb := len(a), len(b)
	d := make([][]int, la+1)
	for i := range d {
		d[i] = make([]int, lb+1)
		d[i][0] = i
	}
	for j := 0; j <= lb; j++ {
		d[0][j] = j
	}
	for i := 1; i <= la; i++ {
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			del := d[i-1][j] + 1
			ins := d[i][j-1] + 1
			sub := d[i-1][j-1] + cost
			min := del
			if ins < min {
				min = ins
			}
			if sub < min {
				min = sub
			}
			if i > 1 && j > 1 && a[i-1] == b[j-2] && a[i-2] == b[j-1] {
				if t := d[i-2][j-2] + cost; t < min {
					min = t
				}
			}
			d[i][j] = min
		}
	}
	return d[la][lb]
}
