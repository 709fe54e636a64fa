package cache_test

import (
	"errors"
	"hash/maphash"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vixen-gfx/vixen/cache"
)

func TestHashIsStableAcrossEqualDescriptors(t *testing.T) {
	seed := maphash.MakeSeed()
	type descriptor struct {
		Width, Height uint32
		Format        string
	}
	a := descriptor{Width: 1920, Height: 1080, Format: "rgba8"}
	b := descriptor{Width: 1920, Height: 1080, Format: "rgba8"}
	assert.Equal(t, cache.Hash(seed, a), cache.Hash(seed, b))
}

func TestHashDiffersOnDifferentFields(t *testing.T) {
	seed := maphash.MakeSeed()
	type descriptor struct{ Width uint32 }
	assert.NotEqual(t, cache.Hash(seed, descriptor{Width: 1}), cache.Hash(seed, descriptor{Width: 2}))
}

// TestGetOrCreateReusesExistingEntry: GetOrCreate on the same key returns
// the same value without invoking create again, and bumps the ref count.
func TestGetOrCreateReusesExistingEntry(t *testing.T) {
	c := cache.New[string, int](0, nil)
	calls := 0
	build := func() (int, error) { calls++; return 42, nil }

	v1, err := c.GetOrCreate("a", 8, build)
	require.NoError(t, err)
	v2, err := c.GetOrCreate("a", 8, build)
	require.NoError(t, err)

	assert.Equal(t, 42, v1)
	assert.Equal(t, 42, v2)
	assert.Equal(t, 1, calls, "create must run exactly once for a repeated key")
	assert.Equal(t, 2, c.RefCount("a"))
}

func TestGetOrCreatePropagatesBuildError(t *testing.T) {
	c := cache.New[string, int](0, nil)
	sentinel := errors.New("boom")
	_, err := c.GetOrCreate("a", 8, func() (int, error) { return 0, sentinel })
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 0, c.Len(), "a failed build must not leave a stale entry")
}

func TestLRUEvictsOnlyZeroRefCountEntries(t *testing.T) {
	var evicted []string
	c := cache.New[string, int](10, func(key string, value int) {
		evicted = append(evicted, key)
	})

	_, err := c.GetOrCreate("a", 6, func() (int, error) { return 1, nil })
	require.NoError(t, err)
	_, err = c.GetOrCreate("b", 6, func() (int, error) { return 2, nil })
	require.NoError(t, err)

	// "a" is still referenced (ref count 1); only "b" would need eviction
	// pressure, but since "a" + "b" exceed maxBytes and "a" was inserted
	// first (least recently used), "a" is the eviction target — except
	// it's in use, so it must be skipped and the cache stays over-budget
	// rather than evicting something live.
	assert.Equal(t, uint64(12), c.UsedBytes())
	assert.Empty(t, evicted)

	c.Release("a")
	_, err = c.GetOrCreate("c", 6, func() (int, error) { return 3, nil })
	require.NoError(t, err)

	assert.Contains(t, evicted, "a", "once released, the least-recently-used entry becomes evictable")
	assert.Equal(t, 0, c.RefCount("a"))
}

func TestReleaseBelowZeroIsNoop(t *testing.T) {
	c := cache.New[string, int](0, nil)
	c.Release("missing")
	_, err := c.GetOrCreate("a", 1, func() (int, error) { return 1, nil })
	require.NoError(t, err)
	c.Release("a")
	c.Release("a")
	assert.Equal(t, 0, c.RefCount("a"))
}
