// Package tranco implements the Tranco top-sites client (C6): cache-through
// rank lookups against the Tranco list API, bounded by a 2s timeout.
package tranco

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alerta-link/alerta-link/internal/cache"
)

// ErrUnavailable is returned whenever the lookup could not complete —
// timeout, transport error, or non-2xx response. Never treat this as a
// reason to fail the overall analysis; record it as unconsulted instead.
var ErrUnavailable = errors.New("tranco: unavailable")

const (
	timeout        = 2 * time.Second
	positiveTTL    = 7 * 24 * time.Hour
	negativeTTL    = 24 * time.Hour
	defaultBaseURL = "https://api.tranco-list.eu"
)

// Payload is the Tranco lookup result (§4.6).
type Payload struct {
	Rank    int  `json:"rank"`
	InTopK  bool `json:"in_top_k"`
}

// Client is the cache-through Tranco collaborator.
type Client struct {
	httpClient *http.Client
	cache      *cache.TTLCache
	baseURL    string
	apiKey     string
	apiEmail   string
	threshold  int
}

// New builds a Client. threshold is the configured top-k cutoff (§4.6,
// default 100000).
func New(apiKey, apiEmail string, threshold int) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		cache:      cache.New(10000),
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		apiEmail:   apiEmail,
		threshold:  threshold,
	}
}

// PurgeExpired evicts stale cache entries; intended for a periodic janitor.
func (c *Client) PurgeExpired() int { return c.cache.Purge() }

// Lookup returns the Tranco payload for a registrable domain, or
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

	url := fmt.Sprintf("%s/ranks/domain/%s", c.baseURL, domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Payload{Rank: 0, InTopK: false}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return Payload{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var body struct {
		Ranks []struct {
			Rank int `json:"rank"`
		} `json:"ranks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Payload{}, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	if len(body.Ranks) == 0 {
		return Payload{Rank: 0, InTopK: false}, nil
	}

	rank := body.Ranks[0].Rank
	return Payload{Rank: rank, InTopK: rank > 0 && rank <= c.threshold}, nil
}
