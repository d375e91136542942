/*
File Name:  Memory_test.go
Copyright:  2024 Cratenet s.r.o.
*/

package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ms := NewMemoryStore()

	require.NoError(t, ms.Set([]byte("a"), []byte("1")))
	require.NoError(t, ms.Set([]byte("b"), []byte("2")))

	value, found := ms.Get([]byte("a"))
	require.True(t, found)
	assert.Equal(t, []byte("1"), value)

	_, found = ms.Get([]byte("missing"))
	assert.False(t, found)

	assert.Equal(t, 2, ms.Count())

	seen := map[string]string{}
	ms.Iterate(func(key []byte, value []byte) {
		seen[string(key)] = string(value)
	})
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, seen)

	ms.Delete([]byte("a"))
	_, found = ms.Get([]byte("a"))
	assert.False(t, found)
	assert.Equal(t, 1, ms.Count())
}

func TestMemoryStoreExpiration(t *testing.T) {
	ms := NewMemoryStore()

	require.NoError(t, ms.SetExpire([]byte("soon"), []byte("x"), time.Now().Add(-time.Second)))
	require.NoError(t, ms.SetExpire([]byte("later"), []byte("y"), time.Now().Add(time.Hour)))

	ms.ExpireKeys()

	_, found := ms.Get([]byte("soon"))
	assert.False(t, found)
	_, found = ms.Get([]byte("later"))
	assert.True(t, found)

	// Overwriting with Set clears the expiration.
	require.NoError(t, ms.SetExpire([]byte("soon"), []byte("x"), time.Now().Add(-time.Second)))
	require.NoError(t, ms.Set([]byte("soon"), []byte("z")))
	ms.ExpireKeys()
	_, found = ms.Get([]byte("soon"))
	assert.True(t, found)
}
