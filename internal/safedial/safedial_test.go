package safedial

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDialContext_RejectsBlockedLiteralIP(t *testing.T) {
	_, err := DialContext(context.Background(), "tcp", "127.0.0.1:80")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "disallowed")
}

func TestDialContext_RejectsBlockedResolvedHost(t *testing.T) {
	_, err := DialContext(context.Background(), "tcp", "localhost:80")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "disallowed")
}

func TestDialContext_RejectsMalformedAddress(t *testing.T) {
	_, err := DialContext(context.Background(), "tcp", "not-a-valid-address")
	assert.Error(t, err)
}

func TestDialContext_RejectsMetadataIP(t *testing.T) {
	_, err := DialContext(context.Background(), "tcp", "169.254.169.254:80")
	assert.Error(t, err)
}
