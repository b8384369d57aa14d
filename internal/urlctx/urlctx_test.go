package urlctx

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	addrs map[string][]net.IPAddr
	err   error
}

func (s stubResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	if s.err != nil {
		return nil, s.err
	}
	if addrs, ok := s.addrs[host]; ok {
		return addrs, nil
	}
	return []net.IPAddr{{IP: net.ParseIP("93.184.216.34")}}, nil
}

func TestNormalize_RejectsShortURL(t *testing.T) {
	_, err := Normalize(context.Background(), "http://a", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestNormalize_RejectsBadScheme(t *testing.T) {
	_, err := Normalize(context.Background(), "ftp://example.com/some/path", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestNormalize_RejectsBlockedLiteralIP(t *testing.T) {
	_, err := Normalize(context.Background(), "http://127.0.0.1/admin/panel", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBlockedTarget)
}

func TestNormalize_RejectsBlockedResolvedHost(t *testing.T) {
	r := stubResolver{addrs: map[string][]net.IPAddr{
		"internal.example.com": {{IP: net.ParseIP("10.0.0.5")}},
	}}
	_, err := Normalize(context.Background(), "https://internal.example.com/path", r)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBlockedTarget)
}

func TestNormalize_HappyPath(t *testing.T) {
	r := stubResolver{addrs: map[string][]net.IPAddr{
		"shop.example.com": {{IP: net.ParseIP("93.184.216.34")}},
	}}
	c, err := Normalize(context.Background(), "HTTPS://shop.example.com:443/checkout?ref=1", r)
	require.NoError(t, err)
	assert.Equal(t, "https", c.Scheme)
	assert.Equal(t, "shop.example.com", c.Host)
	assert.Equal(t, "example.com", c.Registrable)
	assert.Equal(t, []string{"shop"}, c.Subdomains)
	assert.False(t, c.HasPort(), "443 is the default port for https and should be stripped")
	assert.Equal(t, 1, c.NumSubdomains())
}

func TestNormalize_PunycodeHost(t *testing.T) {
	r := stubResolver{addrs: map[string][]net.IPAddr{}}
	c, err := Normalize(context.Background(), "http://аpple.com/login", r)
	require.NoError(t, err)
	assert.True(t, c.RequiredPunycode)
}
