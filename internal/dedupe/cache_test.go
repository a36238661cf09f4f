// ABOUTME: Tests for the idempotency-key cache backing the webchat API.
// ABOUTME: Validates TTL expiration, size limits, eviction, cleanup, and concurrency safety.

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bechir-ai/chatd/internal/store"
)

func msg(id int64) *store.Message {
	return &store.Message{ID: id, ConversationID: "1", Body: "test"}
}

func TestCache_Lookup_Unknown(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	// Key that was never recorded should return nil
	assert.Nil(t, cache.Lookup("never-seen-key"))
}

func TestCache_Lookup_Recorded(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	cache.Record("my-key", msg(42))

	got := cache.Lookup("my-key")
	require.NotNil(t, got)
	assert.Equal(t, int64(42), got.ID)
}

func TestCache_Lookup_Expired(t *testing.T) {
	// Use a very short TTL for testing
	cache := New(10*time.Millisecond, 100)
	defer cache.Close()

	cache.Record("expiring-key", msg(1))

	// Should be present initially
	assert.NotNil(t, cache.Lookup("expiring-key"))

	// Wait for TTL to expire
	time.Sleep(20 * time.Millisecond)

	// Should no longer be present after TTL
	assert.Nil(t, cache.Lookup("expiring-key"))
}

func TestCache_Record_Multiple(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	cache.Record("key-1", msg(1))
	cache.Record("key-2", msg(2))
	cache.Record("key-3", msg(3))

	// Each key maps to its own message
	require.NotNil(t, cache.Lookup("key-1"))
	assert.Equal(t, int64(1), cache.Lookup("key-1").ID)
	assert.Equal(t, int64(2), cache.Lookup("key-2").ID)
	assert.Equal(t, int64(3), cache.Lookup("key-3").ID)

	// Unknown key should not be present
	assert.Nil(t, cache.Lookup("key-4"))
}

func TestCache_Record_RefreshesTimestamp(t *testing.T) {
	// Use a short TTL
	cache := New(50*time.Millisecond, 100)
	defer cache.Close()

	cache.Record("refresh-key", msg(1))

	// Wait partway through TTL
	time.Sleep(30 * time.Millisecond)

	// Re-record to refresh
	cache.Record("refresh-key", msg(1))

	// Wait another 30ms (would be past original TTL)
	time.Sleep(30 * time.Millisecond)

	// Should still be present because we refreshed
	assert.NotNil(t, cache.Lookup("refresh-key"))
}

func TestCache_Eviction(t *testing.T) {
	// Small cache for testing eviction
	cache := New(5*time.Minute, 3)
	defer cache.Close()

	// Fill the cache
	cache.Record("key-1", msg(1))
	time.Sleep(1 * time.Millisecond) // Ensure different timestamps
	cache.Record("key-2", msg(2))
	time.Sleep(1 * time.Millisecond)
	cache.Record("key-3", msg(3))

	// All three should be present
	assert.NotNil(t, cache.Lookup("key-1"))
	assert.NotNil(t, cache.Lookup("key-2"))
	assert.NotNil(t, cache.Lookup("key-3"))

	// Add a fourth key - should evict the oldest (key-1)
	time.Sleep(1 * time.Millisecond)
	cache.Record("key-4", msg(4))

	// key-1 should be evicted (oldest)
	assert.Nil(t, cache.Lookup("key-1"), "oldest key should be evicted")

	// Other keys should remain
	assert.NotNil(t, cache.Lookup("key-2"))
	assert.NotNil(t, cache.Lookup("key-3"))
	assert.NotNil(t, cache.Lookup("key-4"))
}

func TestCache_Cleanup(t *testing.T) {
	// Note: cleanup runs every minute by default, so we trigger it manually
	// and verify expired entries are removed from the map
	cache := New(10*time.Millisecond, 100)
	defer cache.Close()

	cache.Record("cleanup-1", msg(1))
	cache.Record("cleanup-2", msg(2))
	cache.Record("cleanup-3", msg(3))

	// All should be present
	assert.NotNil(t, cache.Lookup("cleanup-1"))
	assert.NotNil(t, cache.Lookup("cleanup-2"))
	assert.NotNil(t, cache.Lookup("cleanup-3"))

	// Wait for entries to expire
	time.Sleep(20 * time.Millisecond)

	// All should be expired now (Lookup returns nil for expired)
	assert.Nil(t, cache.Lookup("cleanup-1"))
	assert.Nil(t, cache.Lookup("cleanup-2"))
	assert.Nil(t, cache.Lookup("cleanup-3"))

	cache.runCleanup()

	// Verify the map is empty after cleanup
	cache.mu.RLock()
	mapLen := len(cache.seen)
	cache.mu.RUnlock()
	assert.Equal(t, 0, mapLen, "cleanup should remove expired entries from map")
}

func TestCache_Concurrent(t *testing.T) {
	cache := New(5*time.Minute, 1000)
	defer cache.Close()

	const numGoroutines = 100
	const opsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	// Concurrent records and lookups
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < opsPerGoroutine; j++ {
				key := fmt.Sprintf("key-%d-%d", id%26, j%10)
				cache.Record(key, msg(int64(j)))
				cache.Lookup(key)
			}
		}(i)
	}

	wg.Wait()

	// No panics or race conditions - test passes if we get here
	// Also verify cache is still functional
	cache.Record("final-key", msg(99))
	assert.NotNil(t, cache.Lookup("final-key"))
}

func TestCache_Close(t *testing.T) {
	cache := New(5*time.Minute, 100)

	cache.Record("before-close", msg(1))
	assert.NotNil(t, cache.Lookup("before-close"))

	// Close should not panic and should stop the cleanup goroutine
	cache.Close()

	// Multiple closes should not panic
	cache.Close()
}

func TestCache_EvictionOrder(t *testing.T) {
	// Test that eviction properly removes oldest entry (O(1) using linked list)
	cache := New(5*time.Minute, 3)
	defer cache.Close()

	// Add keys in order
	cache.Record("first", msg(1))
	time.Sleep(1 * time.Millisecond)
	cache.Record("second", msg(2))
	time.Sleep(1 * time.Millisecond)
	cache.Record("third", msg(3))

	// Add fourth - should evict "first" (oldest)
	cache.Record("fourth", msg(4))

	assert.Nil(t, cache.Lookup("first"), "first should be evicted")
	assert.NotNil(t, cache.Lookup("second"))
	assert.NotNil(t, cache.Lookup("third"))
	assert.NotNil(t, cache.Lookup("fourth"))

	// Add fifth - should evict "second"
	cache.Record("fifth", msg(5))

	assert.Nil(t, cache.Lookup("second"), "second should be evicted")
	assert.NotNil(t, cache.Lookup("third"))
	assert.NotNil(t, cache.Lookup("fourth"))
	assert.NotNil(t, cache.Lookup("fifth"))
}
