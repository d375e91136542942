/*
File Name:  Routing Table.go
Copyright:  2024 Cratenet s.r.o.

The routing table is an array of buckets indexed by the distance of the remote
identifier to the local one. A node is stored in exactly the bucket whose index
equals its bucket index; the local identifier itself is never stored.
*/

package dht

import (
	"bytes"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"
)

const (
	// DefaultBucketSize is the count of nodes per bucket (the Kademlia k).
	DefaultBucketSize = 20

	// DefaultReplacementCacheSize bounds the per-bucket overflow list of admission candidates.
	DefaultReplacementCacheSize = 5

	// DefaultStalePeriod is the time after which an unseen node is eligible for eviction.
	DefaultStalePeriod = 10 * time.Minute
)

// MutationType classifies a routing table change for observers.
type MutationType int

const (
	MutationAdded MutationType = iota
	MutationUpdated
	MutationRemoved
)

// MutationEvent describes a single routing table change.
type MutationEvent struct {
	Type        MutationType
	NodeID      []byte
	BucketIndex int
}

// RoutingTable is the local node's view of the overlay, bBits buckets of up to bSize nodes each.
type RoutingTable struct {
	// Self is the local node. It is never stored in any bucket.
	Self *Node

	// the size in bits of the identifiers; one bucket exists per possible bucket index
	bBits int

	// the maximum number of nodes stored in a bucket's active list
	bSize int

	// ReplacementCacheSize, StalePeriod and AllowReplacement may be adjusted after creation, before first use.
	ReplacementCacheSize int
	StalePeriod          time.Duration
	AllowReplacement     bool

	// OnMutation, if set, is called after every add/update/remove, outside the table lock.
	OnMutation func(event MutationEvent)

	buckets []*bucket
	mutex   sync.RWMutex
}

// NewRoutingTable initializes a routing table for the given local node.
// bits is the identifier width in bits, bucketSize the Kademlia k.
func NewRoutingTable(self *Node, bits, bucketSize int) *RoutingTable {
	rt := &RoutingTable{
		Self:                 self,
		bBits:                bits,
		bSize:                bucketSize,
		ReplacementCacheSize: DefaultReplacementCacheSize,
		StalePeriod:          DefaultStalePeriod,
		AllowReplacement:     true,
	}

	rt.buckets = make([]*bucket, bits)
	for i := range rt.buckets {
		rt.buckets[i] = &bucket{}
	}

	return rt
}

func (rt *RoutingTable) emit(event MutationEvent) {
	if rt.OnMutation != nil {
		rt.OnMutation(event)
	}
}

// Insert adds a node to its bucket, following the admission policy documented on the result type.
// Inserting the local node's own identifier is ignored.
func (rt *RoutingTable) Insert(node *Node) (result InsertResult) {
	index, valid := BucketIndex(rt.Self.ID, node.ID)
	if !valid {
		return InsertResult{Status: ResultIgnored}
	}

	rt.mutex.Lock()
	result = rt.buckets[index].insert(node, rt.bSize, rt.ReplacementCacheSize, rt.StalePeriod, rt.AllowReplacement, time.Now().UTC())
	rt.mutex.Unlock()

	switch result.Status {
	case ResultInserted:
		rt.emit(MutationEvent{Type: MutationAdded, NodeID: node.ID, BucketIndex: index})
	case ResultUpdated:
		rt.emit(MutationEvent{Type: MutationUpdated, NodeID: node.ID, BucketIndex: index})
	case ResultReplacement:
		if !result.Pending {
			rt.emit(MutationEvent{Type: MutationRemoved, NodeID: result.Evicted.ID, BucketIndex: index})
			rt.emit(MutationEvent{Type: MutationAdded, NodeID: node.ID, BucketIndex: index})
		}
	}

	return result
}

// Remove deletes the identifier from the table. The oldest replacement-cache candidate, if any,
// is promoted into the freed active slot.
func (rt *RoutingTable) Remove(id []byte) (removed *Node) {
	index, valid := BucketIndex(rt.Self.ID, id)
	if !valid {
		return nil
	}

	rt.mutex.Lock()
	removed = rt.buckets[index].remove(id, time.Now().UTC())
	rt.mutex.Unlock()

	if removed != nil {
		rt.emit(MutationEvent{Type: MutationRemoved, NodeID: id, BucketIndex: index})
	}

	return removed
}

// Get returns the active entry for the identifier, or nil. Replacement-cache candidates are not returned.
func (rt *RoutingTable) Get(id []byte) *Node {
	index, valid := BucketIndex(rt.Self.ID, id)
	if !valid {
		return nil
	}

	rt.mutex.RLock()
	defer rt.mutex.RUnlock()

	if i := rt.buckets[index].findActive(id); i != -1 {
		return rt.buckets[index].active[i]
	}
	return nil
}

// IsBucketFull checks whether the active list of the identifier's bucket is at capacity.
func (rt *RoutingTable) IsBucketFull(id []byte) bool {
	index, valid := BucketIndex(rt.Self.ID, id)
	if !valid {
		return false
	}

	rt.mutex.RLock()
	defer rt.mutex.RUnlock()
	return len(rt.buckets[index].active) >= rt.bSize
}

// ClosestPeers returns up to num active nodes sorted ascending by distance to the target.
// Candidates are merged from the buckets nearest to the target's bucket index and re-sorted
// globally. Nodes at equal distance are ordered most-recently-seen first; recency is the
// table's eviction currency, so it is the tie currency too.
func (rt *RoutingTable) ClosestPeers(target []byte, num int, filterFunc NodeFilterFunc, ignoredNodes ...[]byte) (nodes []*Node) {
	rt.mutex.RLock()

	// Build the list of bucket indices in order of adjacency to the target's index.
	index, valid := BucketIndex(rt.Self.ID, target)
	if !valid {
		index = 0
	}
	indexList := []int{index}
	for i, j := index-1, index+1; len(indexList) < rt.bBits; i, j = i-1, j+1 {
		if j < rt.bBits {
			indexList = append(indexList, j)
		}
		if i >= 0 {
			indexList = append(indexList, i)
		}
	}

	sl := newShortList(target)

	leftToAdd := num * 2 // overcollect; adjacent buckets do not strictly order by distance
	if num <= 0 {
		leftToAdd = 0
	}

	for leftToAdd > 0 && len(indexList) > 0 {
		index, indexList = indexList[0], indexList[1:]

	bucketLoop:
		for _, node := range rt.buckets[index].active {
			for _, ignored := range ignoredNodes {
				if bytes.Equal(node.ID, ignored) {
					continue bucketLoop
				}
			}

			// The filter function allows the caller to only accept certain nodes.
			if filterFunc != nil && !filterFunc(node) {
				continue
			}

			sl.AppendUniqueNodes(node)
			leftToAdd--
			if leftToAdd == 0 {
				break
			}
		}
	}

	rt.mutex.RUnlock()

	sort.Stable(sl)

	nodes = sl.Nodes
	if num >= 0 && len(nodes) > num {
		nodes = nodes[:num]
	}
	return nodes
}

// RefreshStaleEntries marks all stale, non-querying entries as querying and returns them so the
// caller can schedule a liveness probe for each.
func (rt *RoutingTable) RefreshStaleEntries() (nodes []*Node) {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()

	now := time.Now().UTC()
	for _, b := range rt.buckets {
		nodes = append(nodes, b.staleNodes(rt.StalePeriod, now)...)
	}
	return nodes
}

// MarkQuerying flags a node as undergoing a liveness check, protecting it from concurrent
// eviction until LivenessResult concludes the check.
func (rt *RoutingTable) MarkQuerying(id []byte) {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()

	index, valid := BucketIndex(rt.Self.ID, id)
	if !valid {
		return
	}
	if i := rt.buckets[index].findActive(id); i != -1 {
		rt.buckets[index].active[i].Querying = true
	}
}

// LivenessResult concludes an outstanding liveness check for the identifier. On success the node is
// marked as seen; on failure it is removed from the table.
func (rt *RoutingTable) LivenessResult(id []byte, success bool) {
	index, valid := BucketIndex(rt.Self.ID, id)
	if !valid {
		return
	}

	rt.mutex.Lock()

	i := rt.buckets[index].findActive(id)
	if i == -1 {
		rt.mutex.Unlock()
		return
	}

	node := rt.buckets[index].active[i]
	node.Querying = false

	if success {
		node.MarkSuccess()
		rt.buckets[index].markSeen(i, time.Now().UTC())
		rt.mutex.Unlock()
		return
	}

	node.MarkFailure()
	rt.buckets[index].remove(id, time.Now().UTC())
	rt.mutex.Unlock()

	rt.emit(MutationEvent{Type: MutationRemoved, NodeID: id, BucketIndex: index})
}

// UpdateStatus sets the connection status of the node if it is in the table.
func (rt *RoutingTable) UpdateStatus(id []byte, status ConnectionStatus) {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()

	index, valid := BucketIndex(rt.Self.ID, id)
	if !valid {
		return
	}
	if i := rt.buckets[index].findActive(id); i != -1 {
		rt.buckets[index].active[i].Status = status
	}
}

// NumNodes returns the count of active nodes across all buckets.
func (rt *RoutingTable) NumNodes() (total int) {
	rt.mutex.RLock()
	defer rt.mutex.RUnlock()

	for _, b := range rt.buckets {
		total += len(b.active)
	}
	return total
}

// NodesPerBucket returns the count of active nodes in each bucket.
func (rt *RoutingTable) NodesPerBucket() (total []int) {
	rt.mutex.RLock()
	defer rt.mutex.RUnlock()

	total = make([]int, len(rt.buckets))
	for n := range rt.buckets {
		total[n] = len(rt.buckets[n].active)
	}
	return total
}

// Nodes returns all active nodes.
func (rt *RoutingTable) Nodes() (nodes []*Node) {
	rt.mutex.RLock()
	defer rt.mutex.RUnlock()

	nodes = make([]*Node, 0, rt.bSize)
	for _, b := range rt.buckets {
		nodes = append(nodes, b.active...)
	}
	return nodes
}

// LastSeenBefore returns all active nodes last seen before the cutoff time.
func (rt *RoutingTable) LastSeenBefore(cutoff time.Time) (nodes []*Node) {
	rt.mutex.RLock()
	defer rt.mutex.RUnlock()

	for _, b := range rt.buckets {
		for _, node := range b.active {
			if node.LastSeen.Before(cutoff) {
				nodes = append(nodes, node)
			}
		}
	}
	return nodes
}

// RandomIDFromBucket generates a random identifier that falls into the given bucket,
// i.e. shares the bucket's common prefix with the local identifier. Used for bucket refresh lookups.
func (rt *RoutingTable) RandomIDFromBucket(bucket int) (id []byte) {
	rt.mutex.RLock()
	defer rt.mutex.RUnlock()

	// The identifier equals Self in every bit before the differing bit of the bucket, the
	// differing bit is flipped implicitly by randomization from there on.
	prefixBits := rt.bBits - 1 - bucket

	byteIndex := prefixBits / 8
	for i := 0; i < byteIndex; i++ {
		id = append(id, rt.Self.ID[i])
	}

	differingBitStart := prefixBits % 8

	var firstByte byte
	for i := 0; i < 8; i++ {
		var bit bool
		if i < differingBitStart {
			bit = hasBit(rt.Self.ID[byteIndex], uint(i))
		} else if i == differingBitStart {
			bit = !hasBit(rt.Self.ID[byteIndex], uint(i))
		} else {
			bit = rand.Intn(2) == 1
		}

		if bit {
			firstByte += byte(math.Pow(2, float64(7-i)))
		}
	}

	id = append(id, firstByte)

	for i := byteIndex + 1; i < rt.bBits/8; i++ {
		id = append(id, byte(rand.Intn(256)))
	}

	return id
}

// hasBit determines the value of a particular bit in a byte by index, counted from the most significant bit.
func hasBit(n byte, pos uint) bool {
	pos = 7 - pos
	return n&(1<<pos) > 0
}
