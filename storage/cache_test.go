package storage

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDate = []byte("Mon, 01 Jan 2024 00:00:00 GMT")

func newTestEntry(target string) *Entry {
	return NewEntry(target, testDate, []byte("body of "+target))
}

// admit the way the handler does: age everything, then place the new entry.
func admit(c *Cache, e *Entry) bool {
	c.TouchAll()
	return c.Admit(e)
}

func TestLookupMissOnEmpty(t *testing.T) {
	c := NewCache(3, FIFO)
	assert.Nil(t, c.Lookup("a"))
}

func TestInsertAndLookup(t *testing.T) {
	c := NewCache(3, FIFO)
	require.True(t, admit(c, newTestEntry("a")))

	e := c.Lookup("a")
	require.NotNil(t, e)
	assert.Equal(t, "body of a", string(e.Body()))
	assert.Equal(t, string(testDate), string(e.LastModified()))
	assert.Zero(t, e.Recency())
}

func TestKeyTruncation(t *testing.T) {
	c := NewCache(3, FIFO)
	long := "0123456789abcdefghij" // 20 bytes, key is the first 15
	require.True(t, admit(c, newTestEntry(long)))

	assert.NotNil(t, c.Lookup(long))
	assert.NotNil(t, c.Lookup("0123456789abcdeXYZ"))
	assert.Nil(t, c.Lookup("0123456789abcdX"))
}

func TestCapacityNeverExceeded(t *testing.T) {
	c := NewCache(2, FIFO)
	for i := 0; i < 10; i++ {
		admit(c, newTestEntry(fmt.Sprintf("k%d", i)))
		assert.LessOrEqual(t, c.Len(), 2)
	}
}

func TestKeysDistinct(t *testing.T) {
	c := NewCache(3, FIFO)
	admit(c, newTestEntry("a"))
	admit(c, newTestEntry("b"))
	admit(c, newTestEntry("c"))

	seen := map[string]bool{}
	for _, k := range c.Keys() {
		assert.False(t, seen[k])
		seen[k] = true
	}
}

func TestZeroCapacityAdmitsNothing(t *testing.T) {
	c := NewCache(0, LRU)
	assert.False(t, admit(c, newTestEntry("a")))
	assert.Zero(t, c.Len())
}

func TestTouchEntryMakesStrictlyNewest(t *testing.T) {
	c := NewCache(3, LRU)
	admit(c, newTestEntry("a"))
	admit(c, newTestEntry("b"))
	admit(c, newTestEntry("c"))

	a := c.Lookup("a")
	require.NotNil(t, a)
	require.NotZero(t, a.Recency())

	c.TouchEntry(a)
	assert.Zero(t, a.Recency())
	for _, key := range []string{"b", "c"} {
		assert.Less(t, a.Recency(), c.Lookup(key).Recency())
	}
}

func TestTouchEntryNoopWhenAlreadyNewest(t *testing.T) {
	c := NewCache(3, LRU)
	admit(c, newTestEntry("a"))
	admit(c, newTestEntry("b"))

	b := c.Lookup("b")
	require.Zero(t, b.Recency())
	aBefore := c.Lookup("a").Recency()

	c.TouchEntry(b)
	assert.Equal(t, aBefore, c.Lookup("a").Recency())
}

func TestLRUEvictsHighestRecency(t *testing.T) {
	c := NewCache(2, LRU)
	admit(c, newTestEntry("a")) // a:0
	admit(c, newTestEntry("b")) // a:1 b:0
	admit(c, newTestEntry("c")) // a evicted

	assert.Nil(t, c.Lookup("a"))
	assert.NotNil(t, c.Lookup("b"))
	assert.NotNil(t, c.Lookup("c"))
}

func TestLRUEvictionRespectsTouch(t *testing.T) {
	c := NewCache(2, LRU)
	admit(c, newTestEntry("a"))
	admit(c, newTestEntry("b"))

	// a revalidated: aged entries shift and a becomes newest
	c.TouchEntry(c.Lookup("a"))

	admit(c, newTestEntry("c")) // b now has the highest recency
	assert.NotNil(t, c.Lookup("a"))
	assert.Nil(t, c.Lookup("b"))
	assert.NotNil(t, c.Lookup("c"))
}

func TestLRUEvictionSplicesInPlace(t *testing.T) {
	c := NewCache(3, LRU)
	admit(c, newTestEntry("a"))
	admit(c, newTestEntry("b"))
	admit(c, newTestEntry("c")) // order head->tail: c b a, recency a=2 b=1 c=0

	admit(c, newTestEntry("d")) // a's slot is reused
	assert.Equal(t, []string{"c", "b", "d"}, c.Keys())
}

func TestFIFOEvictsOldestInsertion(t *testing.T) {
	c := NewCache(2, FIFO)
	admit(c, newTestEntry("a"))
	admit(c, newTestEntry("b"))

	// touch a so LRU would spare it; FIFO must not care
	c.TouchEntry(c.Lookup("a"))

	admit(c, newTestEntry("c"))
	assert.Nil(t, c.Lookup("a"))
	assert.Equal(t, []string{"c", "b"}, c.Keys())
}

func TestRemove(t *testing.T) {
	c := NewCache(3, FIFO)
	admit(c, newTestEntry("a"))
	admit(c, newTestEntry("b"))

	assert.True(t, c.Remove("a"))
	assert.Nil(t, c.Lookup("a"))
	assert.Equal(t, 1, c.Len())
	assert.False(t, c.Remove("a"))
}

func TestRefresh(t *testing.T) {
	c := NewCache(3, FIFO)
	admit(c, newTestEntry("a"))

	e := c.Lookup("a")
	newDate := []byte("Tue, 02 Jan 2024 00:00:00 GMT")
	e.Refresh(newDate, []byte("WORLD!"))

	assert.Equal(t, "WORLD!", string(e.Body()))
	assert.True(t, e.SameFingerprint(newDate))
	assert.False(t, e.SameFingerprint(testDate))
}

func TestParsePolicy(t *testing.T) {
	assert.Equal(t, LRU, ParsePolicy("lru"))
	assert.Equal(t, FIFO, ParsePolicy("fifo"))
	assert.Equal(t, FIFO, ParsePolicy(""))
}
