// Package httpapi implements the HTTP surface (§6.1) consumed by mobile and
// web clients: /analyze, /report, /ingest, /health, /settings, /whois.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alerta-link/alerta-link/internal/engine"
	"github.com/alerta-link/alerta-link/internal/ratelimit"
	"github.com/alerta-link/alerta-link/internal/store"
	"github.com/alerta-link/alerta-link/internal/whois"
)

// Server owns the chi router wiring and the engine/store/limiter it fronts.
type Server struct {
	Engine  *engine.Engine
	Store   store.Store
	Limiter *ratelimit.Limiter
	Logger  *slog.Logger
	Version string

	modeMu      sync.RWMutex
	currentMode string
}

// NewRouter builds the full route tree (§6.1).
func NewRouter(s *Server) chi.Router {
	if s.currentMode == "" {
		s.currentMode = "auto"
	}

	r := chi.NewRouter()
	r.Post("/analyze", s.handleAnalyze)
	r.Post("/report", s.handleReport)
	r.Post("/ingest", s.handleIngest)
	r.Get("/health", s.handleHealth)
	r.Get("/settings", s.handleGetSettings)
	r.Post("/settings/mode", s.handleSetMode)
	r.Get("/whois/{domain}", s.handleWHOIS)
	return r
}

type analyzeRequest struct {
	URL     string `json:"url"`
	Model   string `json:"model"`
	Mode    string `json:"mode"`
	Options struct {
		EnableCrawler  bool `json:"enable_crawler"`
		TimeoutSeconds int  `json:"timeout_seconds"`
		MaxRedirects   int  `json:"max_redirects"`
	} `json:"options"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.Limiter.Check(w, r, "analyze") {
		return
	}

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	model := engine.ModelML
	if req.Model == string(engine.ModelHeuristic) {
		model = engine.ModelHeuristic
	}
	mode := req.Mode
	if mode == "" {
		mode = s.currentModeValue()
	}

	opts := engine.Options{
		Model:         model,
		Mode:          mode,
		EnableCrawler: req.Options.EnableCrawler,
		MaxRedirects:  req.Options.MaxRedirects,
	}
	if req.Options.TimeoutSeconds > 0 {
		opts.Timeout = time.Duration(req.Options.TimeoutSeconds) * time.Second
	}

	v, err := s.Engine.Analyze(r.Context(), req.URL, opts)
	if err != nil {
		var ev *engine.ErrorVerdict
		if errors.As(err, &ev) {
			writeError(w, http.StatusBadRequest, ev.Error())
			return
		}
		s.Logger.Error("analyze failed", "err", err, "url", req.URL)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if s.Store != nil {
		if err := s.Store.InsertAnalysisResult(r.Context(), store.AnalysisResult{
			URL: req.URL, NormalizedURL: v.NormalizedURL, Score: v.Score,
			RiskLevel: string(v.RiskLevel), ModelUsed: v.ModelUsed,
		}); err != nil {
			s.Logger.Warn("failed to persist analysis result", "err", err)
		}
	}

	writeJSON(w, http.StatusOK, v)
}

type reportRequest struct {
	URL     string `json:"url"`
	Label   string `json:"label"`
	Comment string `json:"comment"`
	Contact string `json:"contact"`
}

var validReportLabels = map[string]bool{
	"phishing": true, "malware": true, "scam": true, "spam": true, "unknown": true,
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if s.Limiter.Check(w, r, "report") {
		return
	}

	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" || !validReportLabels[req.Label] {
		writeError(w, http.StatusBadRequest, "url and a valid label are required")
		return
	}

	id, err := s.Store.InsertReport(r.Context(), req.URL, req.Label, req.Comment, req.Contact)
	if err != nil {
		s.Logger.Error("insert report failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "received", "report_id": id})
}

type ingestRequest struct {
	URL      string         `json:"url"`
	Label    int             `json:"label"`
	Source   string          `json:"source"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.Limiter.Check(w, r, "ingest") {
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" || (req.Label != 0 && req.Label != 1) {
		writeError(w, http.StatusBadRequest, "url and a 0/1 label are required")
		return
	}

	id, err := s.Store.InsertIngestedURL(r.Context(), req.URL, req.Source, req.Label)
	if err != nil {
		s.Logger.Error("insert ingested url failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "acknowledged", "id": id})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"version":      s.Version,
		"model_loaded": s.Engine.ML.Available(),
		"apis": map[string]bool{
			"tranco":     s.Engine.Tranco != nil,
			"virustotal": s.Engine.VirusTotal != nil,
		},
	})
}

func (s *Server) currentModeValue() string {
	s.modeMu.RLock()
	defer s.modeMu.RUnlock()
	return s.currentMode
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"mode": s.currentModeValue()})
}

var validModes = map[string]bool{"auto": true, "online": true, "offline": true}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	if s.Limiter.Check(w, r, "settings") {
		return
	}
	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !validModes[req.Mode] {
		writeError(w, http.StatusBadRequest, "mode must be one of auto, online, offline")
		return
	}
	s.modeMu.Lock()
	s.currentMode = req.Mode
	s.modeMu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"mode": req.Mode})
}

func (s *Server) handleWHOIS(w http.ResponseWriter, r *http.Request) {
	if s.Limiter.Check(w, r, "whois") {
		return
	}
	domain := strings.ToLower(chi.URLParam(r, "domain"))
	if domain == "" {
		writeError(w, http.StatusBadRequest, "domain is required")
		return
	}

	payload, err := s.Engine.WHOIS.Lookup(r.Context(), domain)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"domain": domain, "age_days": nil, "is_new_domain": false, "risk_indicator": "unknown",
		})
		return
	}

	risk := "established"
	isNew := false
	if payload.Known {
		isNew = payload.AgeDays < 30
		if isNew {
			risk = "new"
		} else if payload.AgeDays <= 365 {
			risk = "recent"
		}
	} else {
		risk = "unknown"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"domain":         domain,
		"age_days":       whoisAgeOrNil(payload),
		"is_new_domain":  isNew,
		"risk_indicator": risk,
	})
}

func whoisAgeOrNil(p whois.Payload) any {
	if !p.Known {
		return nil
	}
	return p.AgeDays
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
