// Package virustotal implements the VirusTotal multi-engine client (C7):
// cache-through lookups guarded by a shared quota token bucket, bounded by a
// 4s timeout.
package virustotal

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/alerta-link/alerta-link/internal/cache"
)

// ErrUnavailable covers quota exhaustion, timeout, transport, and non-2xx.
var ErrUnavailable = errors.New("virustotal: unavailable")

const (
	timeout     = 4 * time.Second
	positiveTTL = 6 * time.Hour
	negativeTTL = time.Hour
	baseURL     = "https://www.virustotal.com/api/v3/urls"
)

// Payload is the VirusTotal aggregate result (§4.6).
type Payload struct {
	Malicious    int      `json:"malicious"`
	Suspicious   int      `json:"suspicious"`
	Harmless     int      `json:"harmless"`
	TotalEngines int      `json:"total_engines"`
	ThreatNames  []string `json:"threat_names"`
}

// quota is a simple token bucket shared across all lookups with this
// client's API key (default 4/min, §4.6).
type quota struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
}

func newQuota(perMinute int) *quota {
	rate := float64(perMinute) / 60.0
	return &quota{
		tokens:     float64(perMinute),
		capacity:   float64(perMinute),
		refillRate: rate,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

func (q *quota) take() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	elapsed := now.Sub(q.lastRefill).Seconds()
	q.tokens += elapsed * q.refillRate
	if q.tokens > q.capacity {
		q.tokens = q.capacity
	}
	q.lastRefill = now
	if q.tokens < 1 {
		return false
	}
	q.tokens--
	return true
}

// Client is the cache-through VirusTotal collaborator.
type Client struct {
	httpClient *http.Client
	cache      *cache.TTLCache
	quota      *quota
	apiKey     string
}

// New builds a Client. perMinute is the shared quota (§4.6, default 4).
func New(apiKey string, perMinute int) *Client {
	if perMinute <= 0 {
		perMinute = 4
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		cache:      cache.New(10000),
		quota:      newQuota(perMinute),
		apiKey:     apiKey,
	}
}

// PurgeExpired evicts stale cache entries; intended for a periodic janitor.
func (c *Client) PurgeExpired() int { return c.cache.Purge() }

// Lookup returns the aggregate AV result for normalizedURL, or
// ErrUnavailable. Cache key is the SHA-256 of the normalized URL (§4.6).
func (c *Client) Lookup(ctx context.Context, normalizedURL string) (Payload, error) {
	sum := sha256.Sum256([]byte(normalizedURL))
	key := hex.EncodeToString(sum[:])

	v, err := c.cache.Fetch(ctx, key, positiveTTL, negativeTTL, func(ctx context.Context) (any, error) {
		if !c.quota.take() {
			return Payload{}, fmt.Errorf("%w: quota exhausted", ErrUnavailable)
		}
		return c.fetch(ctx, normalizedURL)
	})
	if err != nil {
		return Payload{}, err
	}
	return v.(Payload), nil
}

func (c *Client) fetch(ctx context.Context, normalizedURL string) (Payload, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	urlID := base64.RawURLEncoding.EncodeToString([]byte(normalizedURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/"+urlID, nil)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("x-apikey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Payload{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return Payload{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var body struct {
		Data struct {
			Attributes struct {
				LastAnalysisStats struct {
					Malicious  int `json:"malicious"`
					Suspicious int `json:"suspicious"`
					Harmless   int `json:"harmless"`
					Undetected int `json:"undetected"`
					Timeout    int `json:"timeout"`
				} `json:"last_analysis_stats"`
				LastAnalysisResults map[string]struct {
					Category string `json:"category"`
					Result   string `json:"result"`
				} `json:"last_analysis_results"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Payload{}, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}

	stats := body.Data.Attributes.LastAnalysisStats
	total := stats.Malicious + stats.Suspicious + stats.Harmless + stats.Undetected + stats.Timeout

	var names []string
	for engine, r := range body.Data.Attributes.LastAnalysisResults {
		if r.Category == "malicious" && r.Result != "" {
			names = append(names, engine+":"+r.Result)
		}
	}

	return Payload{
		Malicious:    stats.Malicious,
		Suspicious:   stats.Suspicious,
		Harmless:     stats.Harmless,
		TotalEngines: total,
		ThreatNames:  names,
	}, nil
}
