package netguard

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsBlocked(t *testing.T) {
	cases := []struct {
		name    string
		ip      string
		blocked bool
	}{
		{"loopback", "127.0.0.1", true},
		{"private class A", "10.1.2.3", true},
		{"private class B", "172.16.0.5", true},
		{"private class C", "192.168.1.1", true},
		{"link-local metadata", "169.254.169.254", true},
		{"public", "93.184.216.34", false},
		{"ipv6 loopback", "::1", true},
		{"ipv6 unique-local", "fc00::1", true},
		{"ipv6 public", "2606:4700:4700::1111", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ip := net.ParseIP(tc.ip)
			assert.Equal(t, tc.blocked, IsBlocked(ip))
		})
	}
}

func TestIsBlockedNil(t *testing.T) {
	assert.True(t, IsBlocked(nil))
}

func TestIsBlockedHost(t *testing.T) {
	assert.True(t, IsBlockedHost("169.254.169.254"))
	assert.True(t, IsBlockedHost("127.0.0.1"))
	assert.False(t, IsBlockedHost("example.com"))
}
