// Package crawler implements the Headless Crawler (C9): fetches a URL over
// the SSRF-safe HTTP client, follows redirects up to a cap while recording
// the chain, and runs a single goquery document pass to extract phishing
// evidence. No JS execution — the example pack carries no browser-control
// library, and static-HTML inspection satisfies the DOM-feature-depth the
// spec calls for; dynamically-rendered kits are an explicit Non-goal.
package crawler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/alerta-link/alerta-link/internal/catalog"
	"github.com/alerta-link/alerta-link/internal/heuristic"
	"github.com/alerta-link/alerta-link/internal/safedial"
	"github.com/alerta-link/alerta-link/internal/verdict"
)

// ErrDisabled is returned when Crawl is invoked while the feature is off.
var ErrDisabled = errors.New("crawler: disabled")

// ErrUnavailable covers navigation failures other than a captured SSL error.
var ErrUnavailable = errors.New("crawler: unavailable")

const maxBodyBytes = 2 << 20 // 2MiB cap on the fetched document

var phishingPhrases = []string{
	"verify your account", "unusual activity", "suspended", "confirm your identity",
	"update your payment", "your account will be locked", "click here immediately",
	"security alert", "unauthorized login attempt",
}

var sensitiveInputNames = []string{"ssn", "social", "pin", "cvv", "creditcard", "card_number", "cardnumber"}

// Crawler runs the DOM-inspection pass. Disabled by default; enabled
// per-request via the orchestrator's options (§4.7).
type Crawler struct {
	client *http.Client
	cat    *catalog.Catalog
}

// New builds a Crawler that fetches through the SSRF-safe dialer and looks
// up brand mentions in cat. The redirect cap is passed per call to Crawl.
func New(cat *catalog.Catalog) *Crawler {
	return &Crawler{
		client: &http.Client{
			Transport: &http.Transport{DialContext: safedial.DialContext},
		},
		cat: cat,
	}
}

// Crawl fetches url with an overall deadline and a redirect cap, then
// extracts the evidence fields in a single query pass.
func (c *Crawler) Crawl(ctx context.Context, url string, timeout time.Duration, maxRedirects int) (*verdict.CrawlReport, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var redirectChain []string
	client := *c.client
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		redirectChain = append(redirectChain, req.URL.String())
		if len(via) >= maxRedirects {
			return fmt.Errorf("crawler: too many redirects")
		}
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		if isTLSError(err) {
			return &verdict.CrawlReport{
				Enabled:       true,
				FinalURL:      url,
				RedirectChain: redirectChain,
				Evidence:      verdict.CrawlEvidence{SSLError: true},
			}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrUnavailable, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing document: %v", ErrUnavailable, err)
	}

	finalURL := resp.Request.URL.String()
	evidence := extractEvidence(doc, finalURL, c.cat)

	sum := sha256.Sum256(normalizedDOMSlice(doc))

	return &verdict.CrawlReport{
		Enabled:         true,
		Status:          resp.StatusCode,
		FinalURL:        finalURL,
		RedirectChain:   redirectChain,
		HTMLFingerprint: hex.EncodeToString(sum[:]),
		Evidence:        evidence,
	}, nil
}

func isTLSError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "certificate") ||
		strings.Contains(strings.ToLower(err.Error()), "x509")
}

func extractEvidence(doc *goquery.Document, finalURL string, cat *catalog.Catalog) verdict.CrawlEvidence {
	ev := verdict.CrawlEvidence{
		PageTitle: strings.TrimSpace(doc.Find("title").First().Text()),
	}

	doc.Find("form").Each(func(_ int, form *goquery.Selection) {
		hasPassword := form.Find(`input[type="password"]`).Length() > 0
		if hasPassword {
			ev.HasLoginForm = true
			ev.HasPasswordField = true
		}
		form.Find("input").Each(func(_ int, input *goquery.Selection) {
			name := strings.ToLower(input.AttrOr("name", ""))
			inputType := strings.ToLower(input.AttrOr("type", "text"))
			if inputType == "hidden" {
				ev.HiddenInputCount++
			}
			if name == "cc" || name == "card" || strings.Contains(name, "creditcard") || strings.Contains(name, "card_number") {
				ev.HasCreditCardField = true
			}
			for _, sensitive := range sensitiveInputNames {
				if strings.Contains(name, sensitive) {
					ev.HasSuspiciousInputs = true
				}
			}
		})

		action := form.AttrOr("action", "")
		if action != "" && !strings.HasPrefix(action, "/") && !strings.Contains(action, hostOf(finalURL)) && (strings.HasPrefix(action, "http://") || strings.HasPrefix(action, "https://")) {
			ev.FormSubmitsExternally = true
		}
	})

	ev.IframeCount = doc.Find("iframe").Length()

	bodyText := strings.ToLower(doc.Find("body").Text())
	for _, phrase := range phishingPhrases {
		if strings.Contains(bodyText, phrase) {
			ev.PhishingPhrasesCount++
		}
	}

	if cat != nil {
		for _, brand := range cat.Brands {
			if strings.Contains(bodyText, brand.Name) {
				ev.BrandsDetected = append(ev.BrandsDetected, brand.Name)
			}
		}
	}

	return ev
}

func hostOf(rawURL string) string {
	idx := strings.Index(rawURL, "://")
	if idx < 0 {
		return rawURL
	}
	rest := rawURL[idx+3:]
	if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

// normalizedDOMSlice returns a stable slice of the document (the trimmed
// title followed by the tag names of the first 201 elements under body, in
// document order) used as the fingerprint input.
func normalizedDOMSlice(doc *goquery.Document) []byte {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(doc.Find("title").First().Text()))
	doc.Find("body *").Each(func(i int, s *goquery.Selection) {
		if i > 200 {
			return
		}
		if tag := goquery.NodeName(s); tag != "" {
			sb.WriteString(tag)
		}
	})
	return []byte(sb.String())
}

// SignalsFromEvidence maps the crawl evidence to §4.5's extension table,
// applying the Tranco top-k false-positive guard: if inTopK, only critical
// signals (SSL error, external-form submission, cross-domain redirect) are
// admitted. Weights come from the shared heuristic weights table (nil-safe)
// rather than a second hardcoded copy of the numbers.
func SignalsFromEvidence(report *verdict.CrawlReport, inTopK bool, redirectedCrossDomain bool, weights *heuristic.Weights) []verdict.Signal {
	var signals []verdict.Signal
	add := func(id string, sev verdict.Severity, explanation string) {
		signals = append(signals, verdict.Signal{ID: id, Severity: sev, Weight: weights.Weight(id), Explanation: explanation, Origin: "crawler"})
	}

	ev := report.Evidence
	critical := func() {
		if ev.SSLError {
			add("SSL_CERTIFICATE_ERROR", verdict.SeverityHigh, "TLS certificate error during navigation")
		}
		if ev.FormSubmitsExternally {
			add("FORM_SUBMITS_EXTERNALLY", verdict.SeverityHigh, "form submits to a different domain")
		}
		if redirectedCrossDomain {
			add("REDIRECT_CROSS_DOMAIN", verdict.SeverityHigh, "redirect chain crosses to a different domain")
		}
	}

	if inTopK {
		critical()
		return signals
	}

	critical()
	if ev.HasLoginForm {
		add("LOGIN_FORM_DETECTED", verdict.SeverityMedium, "page contains a login form")
	}
	if ev.HasCreditCardField {
		add("CREDIT_CARD_FORM", verdict.SeverityMedium, "page collects credit card details")
	}
	if len(ev.BrandsDetected) > 0 {
		add("BRAND_CONTENT_DETECTED", verdict.SeverityHigh, "page content references a known brand")
	}
	if ev.PhishingPhrasesCount > 0 {
		add("PHISHING_PHRASES", verdict.SeverityMedium, "page text matches known phishing phrasing")
	}
	if ev.HasSuspiciousInputs {
		add("SENSITIVE_INPUT_FIELDS", verdict.SeverityMedium, "form requests sensitive identifiers")
	}
	return signals
}
