package routingcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMissThenHitReplaysVerbatim(t *testing.T) {
	c := NewCache(10, time.Hour, nil)
	_, ok := c.Get("do the thing")
	assert.False(t, ok)

	c.Put("do the thing", map[string]any{"action": "delegate"})
	got, ok := c.Get("do the thing")
	require.True(t, ok)
	assert.Equal(t, "delegate", got.(map[string]any)["action"])
}

func TestNormalizeKeyIgnoresCaseAndWhitespace(t *testing.T) {
	c := NewCache(10, time.Hour, nil)
	c.Put("Do   The Thing", "decision-a")
	got, ok := c.Get("do the thing")
	require.True(t, ok)
	assert.Equal(t, "decision-a", got)
}

func TestEntryExpiresAfterTTL(t *testing.T) {
	c := NewCache(10, time.Millisecond, nil)
	c.Put("p", "d")
	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get("p")
	assert.False(t, ok)
}

func TestGenerationChangeInvalidatesEntry(t *testing.T) {
	gen := int64(0)
	c := NewCache(10, time.Hour, func() int64 { return gen })
	c.Put("p", "d")
	_, ok := c.Get("p")
	require.True(t, ok)

	gen = 1
	_, ok = c.Get("p")
	assert.False(t, ok, "a bump in agent-registry generation must invalidate the cached decision")
}

func TestClearEmptiesCache(t *testing.T) {
	c := NewCache(10, time.Hour, nil)
	c.Put("p", "d")
	c.Clear()
	assert.Equal(t, 0, c.Len())
}
