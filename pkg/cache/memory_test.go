package cache_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/glorpus-work/crxget/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testID = "aapocclcgogkmnckokdopfmhonfmgoek"

func TestKey(t *testing.T) {
	k1 := cache.Key(testID, "https://example.com/crx?x=1")
	k2 := cache.Key(testID, "https://example.com/crx?x=1")
	k3 := cache.Key(testID, "https://example.com/crx?x=2")

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.Len(t, k1, len(testID)+1+16)
	assert.Regexp(t, "^"+testID+"_[0-9a-f]{16}$", k1)
}

func TestMemory_GetPut(t *testing.T) {
	c := cache.NewMemory()

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Put("k", []byte("first"))
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "first", string(got))

	c.Put("k", []byte("second!"))
	got, ok = c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "second!", string(got))

	info := c.Info()
	assert.Equal(t, 1, info.Entries)
	assert.Equal(t, int64(len("second!")), info.Bytes)
	assert.Equal(t, int64(2), info.Hits)
	assert.Equal(t, int64(1), info.Misses)
}

func TestMemory_Concurrent(t *testing.T) {
	c := cache.NewMemory()
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%4)
			if _, ok := c.Get(key); !ok {
				c.Put(key, []byte(key))
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		key := fmt.Sprintf("k%d", i)
		got, ok := c.Get(key)
		require.True(t, ok)
		assert.Equal(t, key, string(got))
	}
	assert.Equal(t, 4, c.Info().Entries)
}

var _ cache.Cache = (*cache.Memory)(nil)
