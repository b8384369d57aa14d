// Package heuristic implements the Heuristic Predictor (C5): a deterministic
// weighted-rule scorer over the feature record plus external signals,
// producing an explainable score and the signal list that justifies it.
package heuristic

import (
	"os"

	"github.com/tidwall/gjson"

	"github.com/alerta-link/alerta-link/internal/catalog"
	"github.com/alerta-link/alerta-link/internal/features"
	"github.com/alerta-link/alerta-link/internal/urlctx"
	"github.com/alerta-link/alerta-link/internal/verdict"
)

const baseScore = 15

// defaultWeights are the §4.5 fallback values, used whenever the versioned
// weights artifact omits a signal id or fails to load.
var defaultWeights = map[string]int{
	"IP_AS_HOST":                  39,
	"NO_HTTPS":                    34,
	"BRAND_IMPERSONATION":         31,
	"SUSPICIOUS_WORDS":            18,
	"PUNYCODE_DETECTED":           17,
	"PASTE_SERVICE":               16,
	"DOMAIN_NOT_IN_TRANCO":        12,
	"HIGH_DIGIT_RATIO":            8,
	"HIGH_ENTROPY":                8,
	"URL_SHORTENER":               6,
	"AT_SYMBOL":                   5,
	"RISKY_TLD":                   15,
	"EXCESSIVE_SUBDOMAINS":        10,
	"LONG_URL":                    1,
	"DOMAIN_IN_TRANCO":            -35,
	"VIRUSTOTAL_CLEAN":            -25,
	"TRUSTED_DOMAIN":              -15,
	"DOMAIN_TOO_NEW":              35,
	"DOMAIN_ESTABLISHED":          -15,
	"VIRUSTOTAL_MALICIOUS_LOW":    25,
	"VIRUSTOTAL_MALICIOUS_MED":    40,
	"VIRUSTOTAL_MALICIOUS_HIGH":   60,
	"VIRUSTOTAL_MALICIOUS_CRIT":   80,
	"FORM_SUBMITS_EXTERNALLY":     35,
	"SSL_CERTIFICATE_ERROR":       35,
	"REDIRECT_CROSS_DOMAIN":       35,
	"LOGIN_FORM_DETECTED":         15,
	"BRAND_CONTENT_DETECTED":      40,
	"CREDIT_CARD_FORM":            25,
	"PHISHING_PHRASES":            10,
	"SENSITIVE_INPUT_FIELDS":      20,
}

// Weights is the loaded, possibly-calibrated weight table. Zero value uses
// defaults for every signal.
type Weights struct {
	byID map[string]int
}

// LoadWeights reads the versioned weights artifact (§6.3: a JSON document
// with a top-level "weights" object and an open-ended "metrics" object).
// gjson reads the "weights" object as an open {id: weight} map without a
// fully-typed struct; other top-level fields, "metrics" included, are not
// read. Ids absent from the file keep their defaults, and a missing or
// malformed file leaves every weight at its default.
func LoadWeights(path string) (*Weights, error) {
	w := &Weights{byID: make(map[string]int, len(defaultWeights))}
	for id, v := range defaultWeights {
		w.byID[id] = v
	}
	if path == "" {
		return w, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return w, err
	}
	result := gjson.GetBytes(data, "weights")
	if !result.Exists() {
		return w, nil
	}
	result.ForEach(func(key, value gjson.Result) bool {
		w.byID[key.String()] = int(value.Int())
		return true
	})
	return w, nil
}

// Weight returns the configured weight for a signal id, falling back to the
// §4.5 default when the loaded table omits it. Exported so the orchestrator
// (C10) and crawler (C9) can source their own signal weights from the same
// table instead of keeping a second, unconfigurable copy of the numbers.
func (w *Weights) Weight(id string) int {
	if w == nil {
		return defaultWeights[id]
	}
	if v, ok := w.byID[id]; ok {
		return v
	}
	return defaultWeights[id]
}

// External carries the optional external-signal inputs the orchestrator
// gathers from C6/C7/C8 before invoking the heuristic predictor.
type External struct {
	TrancoConsulted bool
	InTranco        bool

	VirusTotalConsulted bool
	VTMalicious         int
	VTHarmless          int
	VTTotalEngines      int

	WHOISConsulted bool
	WHOISAgeDays   int
	WHOISKnown     bool
}

// Predict runs the §4.5 rule table over rec/ext and returns the clamped
// score plus the ordered signal list that produced it.
func Predict(c *urlctx.Context, rec features.Record, ext External, cat *catalog.Catalog, w *Weights) (int, []verdict.Signal) {
	score := baseScore
	var signals []verdict.Signal

	add := func(id string, severity verdict.Severity, explanation string, evidence map[string]any) {
		weight := w.Weight(id)
		score += weight
		signals = append(signals, verdict.Signal{
			ID: id, Severity: severity, Weight: weight,
			Explanation: explanation, Evidence: evidence, Origin: "heuristic",
		})
	}

	if rec.ContainsIP {
		add("IP_AS_HOST", verdict.SeverityHigh, "host is a literal IP address", nil)
	}
	if !rec.HasHTTPS {
		add("NO_HTTPS", verdict.SeverityMedium, "scheme is not https", nil)
	}
	if rec.BrandImpersonation {
		add("BRAND_IMPERSONATION", verdict.SeverityHigh, "domain closely resembles a known brand", nil)
	}
	if rec.HasSuspiciousWords >= 1 {
		add("SUSPICIOUS_WORDS", verdict.SeverityMedium, "contains suspicious keywords", map[string]any{"count": rec.HasSuspiciousWords})
	}
	if rec.HasPunycode {
		add("PUNYCODE_DETECTED", verdict.SeverityMedium, "host contains a punycode-encoded label", nil)
	}
	if rec.PasteServiceDetected {
		add("PASTE_SERVICE", verdict.SeverityLow, "host is a known paste service", nil)
	}
	if ext.TrancoConsulted && !ext.InTranco {
		add("DOMAIN_NOT_IN_TRANCO", verdict.SeverityLow, "domain is not in the top-sites list", nil)
	}
	if rec.DigitRatio >= 0.30 {
		add("HIGH_DIGIT_RATIO", verdict.SeverityLow, "unusually high proportion of digits", nil)
	}
	if rec.Entropy >= 3.5 {
		add("HIGH_ENTROPY", verdict.SeverityLow, "host has high character entropy", nil)
	}
	if rec.ShortenerDetected {
		add("URL_SHORTENER", verdict.SeverityLow, "host is a known URL shortener", nil)
	}
	if rec.HasAtSymbol {
		add("AT_SYMBOL", verdict.SeverityLow, "URL contains an '@' character", nil)
	}
	if rec.TLDRisk {
		add("RISKY_TLD", verdict.SeverityMedium, "TLD is commonly abused", nil)
	}
	if rec.ExcessiveSubdomains {
		add("EXCESSIVE_SUBDOMAINS", verdict.SeverityLow, "more than 3 subdomain labels", nil)
	}
	if rec.URLLength > 100 {
		add("LONG_URL", verdict.SeverityLow, "URL exceeds 100 characters", nil)
	}
	if rec.InTranco && !rec.ShortenerDetected && !rec.PasteServiceDetected {
		add("DOMAIN_IN_TRANCO", verdict.SeverityLow, "domain is in the top-sites list", nil)
	}
	if cat != nil && cat.IsTrusted(c.Host) {
		add("TRUSTED_DOMAIN", verdict.SeverityLow, "host is on the trusted allowlist", nil)
	}

	if ext.VirusTotalConsulted {
		harmlessRatio := 0.0
		if ext.VTTotalEngines > 0 {
			harmlessRatio = float64(ext.VTHarmless) / float64(ext.VTTotalEngines)
		}
		switch {
		case ext.VTMalicious == 0 && harmlessRatio >= 0.80:
			add("VIRUSTOTAL_CLEAN", verdict.SeverityLow, "clean across the majority of antivirus engines", nil)
		case ext.VTMalicious >= 10:
			add("VIRUSTOTAL_MALICIOUS_CRIT", verdict.SeverityHigh, "flagged malicious by 10+ engines", map[string]any{"malicious": ext.VTMalicious})
		case ext.VTMalicious >= 7:
			add("VIRUSTOTAL_MALICIOUS_HIGH", verdict.SeverityHigh, "flagged malicious by 7-9 engines", map[string]any{"malicious": ext.VTMalicious})
		case ext.VTMalicious >= 4:
			add("VIRUSTOTAL_MALICIOUS_MED", verdict.SeverityMedium, "flagged malicious by 4-6 engines", map[string]any{"malicious": ext.VTMalicious})
		case ext.VTMalicious >= 1:
			add("VIRUSTOTAL_MALICIOUS_LOW", verdict.SeverityMedium, "flagged malicious by 1-3 engines", map[string]any{"malicious": ext.VTMalicious})
		}
	}

	if ext.WHOISConsulted && ext.WHOISKnown {
		switch {
		case ext.WHOISAgeDays < 30:
			add("DOMAIN_TOO_NEW", verdict.SeverityHigh, "domain registered under 30 days ago", map[string]any{"age_days": ext.WHOISAgeDays})
		case ext.WHOISAgeDays > 365:
			add("DOMAIN_ESTABLISHED", verdict.SeverityLow, "domain registered over a year ago", map[string]any{"age_days": ext.WHOISAgeDays})
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, signals
}
