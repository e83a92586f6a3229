package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetAndEvictionOrder(t *testing.T) {
	var evicted []string
	c := NewLRU[int](2, func(key string, _ int) { evicted = append(evicted, key) })

	c.Put("a", 1)
	c.Put("b", 2)
	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Put("c", 3)
	assert.Equal(t, []string{"b"}, evicted)
	assert.Equal(t, 2, c.Len())

	_, ok = c.Get("b")
	assert.False(t, ok)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestPutRefreshesExistingKey(t *testing.T) {
	var evictions int
	c := NewLRU[string](2, func(string, string) { evictions++ })
	c.Put("a", "one")
	c.Put("a", "uno")
	c.Put("b", "two")
	assert.Equal(t, 0, evictions)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "uno", v)
}

func TestRemoveSkipsCallback(t *testing.T) {
	var evictions int
	c := NewLRU[int](2, func(string, int) { evictions++ })
	c.Put("a", 1)
	c.Remove("a")
	assert.Equal(t, 0, evictions)
	assert.Equal(t, 0, c.Len())
}

func TestValuesMostRecentFirst(t *testing.T) {
	c := NewLRU[int](3, nil)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)
	_, _ = c.Get("a")
	assert.Equal(t, []int{1, 3, 2}, c.Values())
}
