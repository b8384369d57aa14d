package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch_CachesPositiveResult(t *testing.T) {
	c := New(10)
	var calls int32

	load := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "value", nil
	}

	v1, err := c.Fetch(context.Background(), "k", time.Minute, time.Minute, load)
	require.NoError(t, err)
	v2, err := c.Fetch(context.Background(), "k", time.Minute, time.Minute, load)
	require.NoError(t, err)

	assert.Equal(t, "value", v1)
	assert.Equal(t, "value", v2)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "second Fetch should hit the cache, not reload")
}

func TestFetch_CachesNegativeResult(t *testing.T) {
	c := New(10)
	wantErr := errors.New("boom")
	var calls int32

	load := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, wantErr
	}

	_, err1 := c.Fetch(context.Background(), "k", time.Minute, time.Minute, load)
	_, err2 := c.Fetch(context.Background(), "k", time.Minute, time.Minute, load)

	assert.ErrorIs(t, err1, wantErr)
	assert.ErrorIs(t, err2, wantErr)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestFetch_ExpiresAfterTTL(t *testing.T) {
	c := New(10)
	now := time.Now()
	c.now = func() time.Time { return now }

	var calls int32
	load := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "v", nil
	}

	_, err := c.Fetch(context.Background(), "k", time.Second, time.Second, load)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = c.Fetch(context.Background(), "k", time.Second, time.Second, load)
	require.NoError(t, err)

	assert.EqualValues(t, 2, atomic.LoadInt32(&calls), "expired entry should trigger a reload")
}

func TestSet_EvictsLRUWhenFull(t *testing.T) {
	c := New(2)
	c.Set("a", 1, nil, time.Minute)
	c.Set("b", 2, nil, time.Minute)
	c.Set("c", 3, nil, time.Minute) // evicts "a" (least recently used)

	_, _, ok := c.Get("a")
	assert.False(t, ok)
	_, _, ok = c.Get("b")
	assert.True(t, ok)
	_, _, ok = c.Get("c")
	assert.True(t, ok)
}

func TestPurge_RemovesExpiredOnly(t *testing.T) {
	c := New(10)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("stale", 1, nil, time.Second)
	c.Set("fresh", 2, nil, time.Hour)

	now = now.Add(2 * time.Second)
	removed := c.Purge()

	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, c.Len())
}
