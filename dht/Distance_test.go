/*
File Name:  Distance_test.go
Copyright:  2024 Cratenet s.r.o.
*/

package dht

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistance(t *testing.T) {
	assert.Equal(t, []byte{0}, Distance([]byte{5}, []byte{5}), "distance to self is zero")
	assert.Equal(t, []byte{3}, Distance([]byte{1}, []byte{2}))
	assert.Equal(t, Distance([]byte{0x1F}, []byte{0xF1}), Distance([]byte{0xF1}, []byte{0x1F}), "distance is symmetric")
}

func TestCompareDistance(t *testing.T) {
	target := []byte{3}

	assert.Equal(t, -1, CompareDistance([]byte{2}, []byte{1}, target), "2 is closer to 3 than 1")
	assert.Equal(t, 1, CompareDistance([]byte{8}, []byte{1}, target))
	assert.Equal(t, 0, CompareDistance([]byte{2}, []byte{2}, target))

	assert.True(t, IsCloser([]byte{2}, []byte{1}, target))
	assert.False(t, IsCloser([]byte{1}, []byte{2}, target))
}

func TestBucketIndex(t *testing.T) {
	self := []byte{0}

	// Distance 1 lands in bucket 0, the largest distances in the highest bucket.
	tests := []struct {
		remote []byte
		index  int
	}{
		{[]byte{1}, 0},
		{[]byte{2}, 1},
		{[]byte{3}, 1},
		{[]byte{4}, 2},
		{[]byte{0x80}, 7},
		{[]byte{0xFF}, 7},
	}

	for _, tt := range tests {
		index, valid := BucketIndex(self, tt.remote)
		require.True(t, valid)
		assert.Equal(t, tt.index, index, "remote %x", tt.remote)
	}

	_, valid := BucketIndex(self, self)
	assert.False(t, valid, "the local identifier has no bucket")
}

func TestBucketIndexDeterministic(t *testing.T) {
	self := []byte{0xA5, 0x00, 0xFF, 0x13}
	remote := []byte{0xA5, 0x00, 0xFE, 0x13}

	first, valid := BucketIndex(self, remote)
	require.True(t, valid)

	for i := 0; i < 100; i++ {
		index, valid := BucketIndex(self, remote)
		require.True(t, valid)
		require.Equal(t, first, index, "bucket index must not vary between calls")
	}
}

func TestBucketIndexWidth(t *testing.T) {
	// 32 byte identifiers differing in the last bit map to bucket 0, in the first bit to bucket 255.
	self := make([]byte, 32)
	remote := make([]byte, 32)

	remote[31] = 1
	index, valid := BucketIndex(self, remote)
	require.True(t, valid)
	assert.Equal(t, 0, index)

	remote[31] = 0
	remote[0] = 0x80
	index, valid = BucketIndex(self, remote)
	require.True(t, valid)
	assert.Equal(t, 255, index)
}
