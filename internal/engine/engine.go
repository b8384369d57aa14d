// Package engine implements the Orchestrator/Fusion (C10): the full
// analyze(url, options) pipeline from spec §4.8, fanning C6/C7/C8 out
// concurrently under one deadline via errgroup (adapted from the teacher's
// background-goroutine fan-out in proxy.Handler.proxyRequest, generalized
// into a blocking wait since fusion needs the results, not a fire-and-log).
package engine

import (
	"context"
	"net/url"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alerta-link/alerta-link/internal/catalog"
	"github.com/alerta-link/alerta-link/internal/crawler"
	"github.com/alerta-link/alerta-link/internal/features"
	"github.com/alerta-link/alerta-link/internal/heuristic"
	"github.com/alerta-link/alerta-link/internal/mlmodel"
	"github.com/alerta-link/alerta-link/internal/tranco"
	"github.com/alerta-link/alerta-link/internal/urlctx"
	"github.com/alerta-link/alerta-link/internal/verdict"
	"github.com/alerta-link/alerta-link/internal/virustotal"
	"github.com/alerta-link/alerta-link/internal/whois"
)

const (
	defaultTimeout        = 10 * time.Second
	defaultTimeoutCrawler = 30 * time.Second
	defaultMaxRedirects   = 10
)

// Model selects which predictor's score is treated as authoritative in
// score_base (§4.8 step 5).
type Model string

const (
	ModelML        Model = "ml"
	ModelHeuristic Model = "heuristic"
)

// Options configures one analyze call (§4.8).
type Options struct {
	Model         Model
	Mode          string // "auto" | "online" | "offline" — recorded verbatim, not enforced (§9.3)
	EnableCrawler bool
	Timeout       time.Duration
	MaxRedirects  int
}

// Engine wires every collaborator the pipeline consults.
type Engine struct {
	Catalog    *catalog.Catalog
	Resolver   urlctx.Resolver
	ML         *mlmodel.Predictor
	Weights    *heuristic.Weights
	Tranco     *tranco.Client
	VirusTotal *virustotal.Client
	WHOIS      *whois.Client
	Crawler    *crawler.Crawler

	TrancoThreshold int

	// VirusTotalThreshold is the minimum malicious-engine count (§6.4,
	// VIRUSTOTAL_THRESHOLD) required before the lowest VirusTotal tier
	// fires at all; zero falls back to the spec default of 3.
	VirusTotalThreshold int
	// VirusTotalUncertainMin/Max bound the step-7 uncertainty window
	// (§6.4, VIRUSTOTAL_UNCERTAINTY_MIN/MAX); both zero falls back to
	// the spec default of 30/70.
	VirusTotalUncertainMin int
	VirusTotalUncertainMax int
}

// ErrorVerdict is a sentinel used when normalization fails; the HTTP layer
// maps it to 400.
type ErrorVerdict struct {
	Err error
}

func (e *ErrorVerdict) Error() string { return e.Err.Error() }

// Analyze runs the full §4.8 pipeline.
func (e *Engine) Analyze(ctx context.Context, rawURL string, opts Options) (*verdict.Verdict, error) {
	requestedAt := time.Now()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
		if opts.EnableCrawler {
			timeout = defaultTimeoutCrawler
		}
	}
	maxRedirects := opts.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = defaultMaxRedirects
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Step 1: normalize + safety gate.
	urlCtx, err := urlctx.Normalize(ctx, rawURL, e.Resolver)
	if err != nil {
		return nil, &ErrorVerdict{Err: err}
	}

	var apis verdict.APIsConsulted

	// Step 4: Tranco lookup, always attempted.
	var trancoPayload tranco.Payload
	if e.Tranco != nil {
		if p, err := e.Tranco.Lookup(ctx, urlCtx.Registrable); err == nil {
			trancoPayload = p
			apis.Tranco = true
		}
	}

	// Step 2: feature extraction, fed the Tranco signal gathered above.
	trancoSignal := &features.TrancoSignal{Rank: trancoPayload.Rank, InTopK: trancoPayload.InTopK}
	rec := features.Extract(urlCtx, e.Catalog, trancoSignal, e.TrancoThreshold)

	// Step 3/5: base signals — heuristic's local rules only (no externals yet).
	scoreHeuristicPartial, signals := heuristic.Predict(urlCtx, rec, heuristic.External{
		TrancoConsulted: apis.Tranco,
		InTranco:        trancoPayload.InTopK,
	}, e.Catalog, e.Weights)

	scoreBase := scoreHeuristicPartial
	modelUsed := string(ModelHeuristic)
	if opts.Model != ModelHeuristic {
		modelUsed = string(ModelML)
		if e.ML.Available() {
			if scoreML, err := e.ML.Predict(rec); err == nil {
				if scoreML > scoreBase {
					scoreBase = scoreML
				}
				signals = append(signals, verdict.Signal{
					ID: "ML_SCORE", Severity: severityForScore(scoreML), Weight: scoreML,
					Explanation: "supervised model malicious-probability score", Origin: "ml",
				})
			}
		} else {
			modelUsed = string(ModelHeuristic)
		}
	}

	// Step 6 (Tranco adjustment): heuristic.Predict already applied the
	// DOMAIN_IN_TRANCO discount above, guarded by the same shortener/paste
	// exclusion, as part of scoreHeuristicPartial — that is the only place
	// this evidence moves the score, so it is not reapplied here.

	// Steps 7/8 run concurrently: VT only in the uncertainty window, WHOIS
	// only when not Tranco top-k — independent of each other per §5.
	var vtPayload virustotal.Payload
	var whoisPayload whois.Payload
	vtConsulted := false
	whoisConsulted := false

	uncertainMin, uncertainMax := e.VirusTotalUncertainMin, e.VirusTotalUncertainMax
	if uncertainMin == 0 && uncertainMax == 0 {
		uncertainMin, uncertainMax = 30, 70
	}
	inUncertaintyWindow := scoreBase >= uncertainMin && scoreBase <= uncertainMax
	needWHOIS := !trancoPayload.InTopK

	g, gctx := errgroup.WithContext(ctx)
	if inUncertaintyWindow && e.VirusTotal != nil {
		g.Go(func() error {
			p, err := e.VirusTotal.Lookup(gctx, urlCtx.Normalized)
			if err == nil {
				vtPayload = p
				vtConsulted = true
			}
			return nil
		})
	}
	if needWHOIS && e.WHOIS != nil {
		g.Go(func() error {
			p, err := e.WHOIS.Lookup(gctx, urlCtx.Registrable)
			if err == nil {
				whoisPayload = p
				whoisConsulted = true
			}
			return nil
		})
	}
	_ = g.Wait() // per-lookup errors already folded into Unavailable above

	apis.VirusTotal = vtConsulted
	apis.WHOIS = whoisConsulted

	vtThreshold := e.VirusTotalThreshold
	if vtThreshold <= 0 {
		vtThreshold = 3
	}

	if vtConsulted {
		before := len(signals)
		signals = appendVTSignal(signals, vtPayload, e.Weights, vtThreshold)
		for _, s := range signals[before:] {
			scoreBase += s.Weight
		}
	}

	if whoisConsulted {
		before := len(signals)
		signals = appendWHOISSignal(signals, whoisPayload, e.Weights)
		for _, s := range signals[before:] {
			scoreBase += s.Weight
		}
	}

	// Step 9: optional crawler.
	var crawlReport *verdict.CrawlReport
	if opts.EnableCrawler && e.Crawler != nil {
		report, err := e.Crawler.Crawl(ctx, urlCtx.Normalized, timeout, maxRedirects)
		if err == nil {
			crawlReport = report
			apis.Crawler = true
			crossDomain := crawlCrossesDomain(urlCtx.Host, report.FinalURL)
			crawlSignals := crawler.SignalsFromEvidence(report, trancoPayload.InTopK, crossDomain, e.Weights)
			for _, s := range crawlSignals {
				scoreBase += s.Weight
			}
			signals = append(signals, crawlSignals...)
		}
	}

	// Step 10: clamp and bucket.
	if scoreBase < 0 {
		scoreBase = 0
	}
	if scoreBase > 100 {
		scoreBase = 100
	}
	level := verdict.LevelForScore(scoreBase)

	// Step 11: order signals, assemble recommendations.
	sortSignals(signals)
	recs := recommendationsFor(level, signals)

	mode := opts.Mode
	if mode == "" {
		mode = "auto"
	}

	completedAt := time.Now()
	return &verdict.Verdict{
		URL:             rawURL,
		NormalizedURL:   urlCtx.Normalized,
		Score:           scoreBase,
		RiskLevel:       level,
		ModelUsed:       modelUsed,
		ModeUsed:        mode,
		APIsConsulted:   apis,
		Signals:         signals,
		Recommendations: recs,
		Crawl:           crawlReport,
		Timestamps: verdict.Timestamps{
			RequestedAt: requestedAt,
			CompletedAt: completedAt,
			DurationMs:  completedAt.Sub(requestedAt).Milliseconds(),
		},
	}, nil
}

func severityForScore(score int) verdict.Severity {
	switch {
	case score >= 70:
		return verdict.SeverityHigh
	case score >= 30:
		return verdict.SeverityMedium
	default:
		return verdict.SeverityLow
	}
}

// appendVTSignal sources every weight from the shared heuristic weights
// table (nil-safe: falls back to the §4.5 defaults) so C5's internal rules
// and C10's own VT application never carry two different numbers for the
// same signal id. threshold is the configured VIRUSTOTAL_THRESHOLD floor
// for the lowest tier.
func appendVTSignal(signals []verdict.Signal, p virustotal.Payload, weights *heuristic.Weights, threshold int) []verdict.Signal {
	evidence := map[string]any{"malicious": p.Malicious, "harmless": p.Harmless, "total_engines": p.TotalEngines}
	switch {
	case p.Malicious >= 10:
		w := weights.Weight("VIRUSTOTAL_MALICIOUS_CRIT")
		return append(signals, verdict.Signal{ID: "VIRUSTOTAL_MALICIOUS_CRIT", Severity: verdict.SeverityHigh, Weight: w, Explanation: "flagged malicious by 10+ engines", Evidence: evidence, Origin: "virustotal"})
	case p.Malicious >= 7:
		w := weights.Weight("VIRUSTOTAL_MALICIOUS_HIGH")
		return append(signals, verdict.Signal{ID: "VIRUSTOTAL_MALICIOUS_HIGH", Severity: verdict.SeverityHigh, Weight: w, Explanation: "flagged malicious by 7-9 engines", Evidence: evidence, Origin: "virustotal"})
	case p.Malicious >= 4:
		w := weights.Weight("VIRUSTOTAL_MALICIOUS_MED")
		return append(signals, verdict.Signal{ID: "VIRUSTOTAL_MALICIOUS_MED", Severity: verdict.SeverityMedium, Weight: w, Explanation: "flagged malicious by 4-6 engines", Evidence: evidence, Origin: "virustotal"})
	case p.Malicious >= threshold:
		w := weights.Weight("VIRUSTOTAL_MALICIOUS_LOW")
		return append(signals, verdict.Signal{ID: "VIRUSTOTAL_MALICIOUS_LOW", Severity: verdict.SeverityMedium, Weight: w, Explanation: "flagged malicious by enough engines to clear the configured threshold", Evidence: evidence, Origin: "virustotal"})
	case p.TotalEngines > 0 && float64(p.Harmless)/float64(p.TotalEngines) >= 0.8:
		w := weights.Weight("VIRUSTOTAL_CLEAN")
		return append(signals, verdict.Signal{ID: "VIRUSTOTAL_CLEAN", Severity: verdict.SeverityLow, Weight: w, Explanation: "clean across the majority of antivirus engines", Evidence: evidence, Origin: "virustotal"})
	}
	return signals
}

func appendWHOISSignal(signals []verdict.Signal, p whois.Payload, weights *heuristic.Weights) []verdict.Signal {
	if !p.Known {
		return signals
	}
	evidence := map[string]any{"age_days": p.AgeDays}
	switch {
	case p.AgeDays < 30:
		w := weights.Weight("DOMAIN_TOO_NEW")
		return append(signals, verdict.Signal{ID: "DOMAIN_TOO_NEW", Severity: verdict.SeverityHigh, Weight: w, Explanation: "domain registered under 30 days ago", Evidence: evidence, Origin: "whois"})
	case p.AgeDays > 365:
		w := weights.Weight("DOMAIN_ESTABLISHED")
		return append(signals, verdict.Signal{ID: "DOMAIN_ESTABLISHED", Severity: verdict.SeverityLow, Weight: w, Explanation: "domain registered over a year ago", Evidence: evidence, Origin: "whois"})
	}
	return signals
}

// sortSignals orders by |weight| descending, alphabetical on id for ties
// (§4.8 tie-break rule).
func sortSignals(signals []verdict.Signal) {
	sort.SliceStable(signals, func(i, j int) bool {
		wi, wj := abs(signals[i].Weight), abs(signals[j].Weight)
		if wi != wj {
			return wi > wj
		}
		return signals[i].ID < signals[j].ID
	})
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

var recommendationTable = map[verdict.Level][]string{
	verdict.LevelSafe:   {"No action needed."},
	verdict.LevelLow:    {"Proceed with routine caution."},
	verdict.LevelMedium: {"Verify the sender before interacting.", "Avoid entering credentials."},
	verdict.LevelHigh:   {"Do not visit this link.", "Report it if received unsolicited."},
}

func recommendationsFor(level verdict.Level, signals []verdict.Signal) []string {
	recs := append([]string{}, recommendationTable[level]...)
	for _, s := range signals {
		if s.ID == "BRAND_IMPERSONATION" || s.ID == "BRAND_CONTENT_DETECTED" {
			recs = append(recs, "Double-check the domain against the brand's official site.")
			break
		}
	}
	return recs
}

func crawlCrossesDomain(originalHost, finalURL string) bool {
	host := hostOf(finalURL)
	return host != "" && host != originalHost
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
