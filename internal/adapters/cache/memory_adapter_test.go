package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/reviewgate/backend/internal/domain/providers"
)

func newTestAdapter(t *testing.T) *MemoryAdapter {
	t.Helper()
	a, err := NewMemoryAdapter(1 << 20)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestMemoryAdapter_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	_, err := a.Get(ctx, "session:1")
	assert.ErrorIs(t, err, providers.ErrCacheMiss)

	require.NoError(t, a.Set(ctx, "session:1", []byte("v"), 60))
	got, err := a.Get(ctx, "session:1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	ok, err := a.Exists(ctx, "session:1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, a.Delete(ctx, "session:1"))
	_, err = a.Get(ctx, "session:1")
	assert.ErrorIs(t, err, providers.ErrCacheMiss)
}

func TestMemoryAdapter_IncrWindow(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	for want := int64(1); want <= 3; want++ {
		n, err := a.Incr(ctx, "rate:1.2.3.4", 60)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	now = now.Add(61 * time.Second)
	n, err := a.Incr(ctx, "rate:1.2.3.4", 60)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryAdapter_ExactEntriesExpire(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	require.NoError(t, a.Set(ctx, "session:1", []byte("v"), 60))
	now = now.Add(59 * time.Second)
	_, err := a.Get(ctx, "session:1")
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = a.Get(ctx, "session:1")
	assert.ErrorIs(t, err, providers.ErrCacheMiss)
	ok, err := a.Exists(ctx, "session:1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryAdapter_FullCacheKeepsExactEntries(t *testing.T) {
	ctx := context.Background()
	a, err := NewMemoryAdapter(4<<10, "dup:")
	require.NoError(t, err)
	t.Cleanup(a.Close)

	value := make([]byte, 512)
	for i := 0; i < 500; i++ {
		require.NoError(t, a.Set(ctx, fmt.Sprintf("session:%d", i), value, 600))
		// Evictable writes compete for the bounded cache and may be refused.
		_ = a.Set(ctx, fmt.Sprintf("dup:%d", i), value, 600)
	}

	for i := 0; i < 500; i++ {
		got, err := a.Get(ctx, fmt.Sprintf("session:%d", i))
		require.NoError(t, err, "session:%d lost", i)
		assert.Len(t, got, 512)
	}
}

func TestMemoryAdapter_EvictableKeysUseBoundedCache(t *testing.T) {
	ctx := context.Background()
	a, err := NewMemoryAdapter(1<<20, "dup:")
	require.NoError(t, err)
	t.Cleanup(a.Close)

	require.NoError(t, a.Set(ctx, "dup:abc", []byte("1"), 60))
	ok, err := a.Exists(ctx, "dup:abc")
	require.NoError(t, err)
	assert.True(t, ok)

	a.mu.Lock()
	_, inExact := a.entries["dup:abc"]
	a.mu.Unlock()
	assert.False(t, inExact)

	require.NoError(t, a.Delete(ctx, "dup:abc"))
	_, err = a.Get(ctx, "dup:abc")
	assert.ErrorIs(t, err, providers.ErrCacheMiss)
}
