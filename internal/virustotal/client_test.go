package virustotal

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alerta-link/alerta-link/internal/cache"
)

// roundTripFunc lets a fetch be tested without touching the network:
// requests to the VirusTotal API are answered in-process.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func testClient(t *testing.T, body string, status int, perMinute int) *Client {
	t.Helper()
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: status,
			Body:       io.NopCloser(bytes.NewBufferString(body)),
			Header:     make(http.Header),
		}, nil
	})
	if perMinute <= 0 {
		perMinute = 4
	}
	return &Client{
		httpClient: &http.Client{Transport: rt},
		cache:      cache.New(100),
		quota:      newQuota(perMinute),
	}
}

func TestLookup_ParsesStats(t *testing.T) {
	body := `{"data":{"attributes":{"last_analysis_stats":{"malicious":3,"suspicious":1,"harmless":60,"undetected":6,"timeout":0}}}}`
	c := testClient(t, body, http.StatusOK, 4)

	p, err := c.Lookup(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Malicious)
	assert.Equal(t, 1, p.Suspicious)
	assert.Equal(t, 60, p.Harmless)
	assert.Equal(t, 70, p.TotalEngines)
}

func TestLookup_NotFoundReturnsEmptyPayload(t *testing.T) {
	c := testClient(t, ``, http.StatusNotFound, 4)

	p, err := c.Lookup(context.Background(), "https://never-scanned.example")
	require.NoError(t, err)
	assert.Equal(t, Payload{}, p)
}

func TestLookup_ServerErrorIsUnavailable(t *testing.T) {
	c := testClient(t, ``, http.StatusInternalServerError, 4)

	_, err := c.Lookup(context.Background(), "https://example.com")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestLookup_QuotaExhaustedIsUnavailable(t *testing.T) {
	c := testClient(t, `{"data":{"attributes":{"last_analysis_stats":{}}}}`, http.StatusOK, 1)

	_, err := c.Lookup(context.Background(), "https://one.example")
	require.NoError(t, err)

	_, err = c.Lookup(context.Background(), "https://two.example")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestQuota_Take_RespectsCapacity(t *testing.T) {
	q := newQuota(2)
	assert.True(t, q.take())
	assert.True(t, q.take())
	assert.False(t, q.take())
}
