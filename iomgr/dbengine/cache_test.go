package dbengine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestObjectCacheEvictsExactlyLRU(t *testing.T) {
	c := newObjectCache("test", 3)
	c.emplace(1, "a")
	c.emplace(2, "b")
	c.emplace(3, "c")

	// refresh 1 so 2 becomes the least recently used
	_, ok := c.get(1)
	require.True(t, ok)

	c.emplace(4, "d")
	require.Equal(t, 3, c.len())

	_, ok = c.get(2)
	require.False(t, ok)
	for _, id := range []uint64{1, 3, 4} {
		_, ok := c.get(id)
		require.True(t, ok, "id %d must remain cached", id)
	}
}

func TestObjectCacheReplaceRefreshes(t *testing.T) {
	c := newObjectCache("test", 2)
	c.emplace(1, "a")
	c.emplace(2, "b")
	c.emplace(1, "a2")
	c.emplace(3, "c")

	// 2 was LRU after 1 got refreshed by re-emplace
	_, ok := c.get(2)
	require.False(t, ok)
	v, ok := c.get(1)
	require.True(t, ok)
	require.Equal(t, "a2", v)
}

func TestObjectCacheErase(t *testing.T) {
	c := newObjectCache("test", 2)
	c.emplace(1, "a")
	c.erase(1)
	_, ok := c.get(1)
	require.False(t, ok)
	require.Equal(t, 0, c.len())
}
