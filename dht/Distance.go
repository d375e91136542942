/*
File Name:  Distance.go
Copyright:  2024 Cratenet s.r.o.

Pure functions over fixed-width node identifiers. The proximity metric is the
XOR of two identifiers compared byte-by-byte, most-significant first. A smaller
XOR means closer.
*/

package dht

import (
	"bytes"
	"math/bits"
)

// Distance returns the XOR distance between two identifiers of equal length.
func Distance(id1, id2 []byte) (dist []byte) {
	dist = make([]byte, len(id1))
	for i := range id1 {
		dist[i] = id1[i] ^ id2[i]
	}
	return dist
}

// CompareDistance compares the distances of id1 and id2 to the target.
// It returns -1 if id1 is closer, 1 if id2 is closer and 0 if both are at equal distance.
func CompareDistance(id1, id2, target []byte) int {
	return bytes.Compare(Distance(id1, target), Distance(id2, target))
}

// IsCloser checks whether id1 is closer to the target than id2.
func IsCloser(id1, id2, target []byte) bool {
	return CompareDistance(id1, id2, target) == -1
}

// leadingZeroBits counts the number of leading zero bits of the input, i.e. the common prefix length of the two identifiers XORed.
func leadingZeroBits(data []byte) (count int) {
	for _, b := range data {
		if b == 0 {
			count += 8
			continue
		}
		return count + bits.LeadingZeros8(b)
	}
	return count
}

// BucketIndex calculates the bucket index of a remote identifier relative to the local one.
// The index is (bit width - 1) - common prefix length. The local identifier itself has no
// bucket index; in that case valid is false. Self is never bucketed.
func BucketIndex(self, remote []byte) (index int, valid bool) {
	if bytes.Equal(self, remote) {
		return 0, false
	}

	dist := Distance(self, remote)
	return len(self)*8 - 1 - leadingZeroBits(dist), true
}
