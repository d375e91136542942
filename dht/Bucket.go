/*
File Name:  Bucket.go
Copyright:  2024 Cratenet s.r.o.

A bucket is a bounded container of nodes at one distance range. The active list
is ordered by recency:
[ ][ ][ ][ ][ ][ ][ ][ ][ ][ ][ ][ ][ ][ ][ ][ ][ ][ ][ ][ ][ ]
 ^                                                           ^
 └ Least recently seen                    Most recently seen ┘

The replacement cache holds candidates that could not be admitted because the
bucket was full. Most recent candidate at the head, oldest trimmed first.
A node identifier appears in at most one of the two lists at a time.
*/

package dht

import (
	"bytes"
	"time"
)

// InsertStatus is the outcome class of a bucket insert.
type InsertStatus int

const (
	// ResultInserted means the node was appended to a bucket with free capacity.
	ResultInserted InsertStatus = iota

	// ResultUpdated means the node already existed. New addresses were merged and it moved to the most-recently-seen position.
	ResultUpdated

	// ResultReplacement means the bucket was full. Either a stale entry was evicted in favor of the
	// new node, or the new node was queued into the replacement cache (see InsertResult.Pending).
	ResultReplacement

	// ResultFull means the bucket is full and replacement is disallowed. The node was not stored.
	ResultFull

	// ResultIgnored means the node is the local node itself, which is never bucketed.
	ResultIgnored
)

func (s InsertStatus) String() string {
	switch s {
	case ResultInserted:
		return "inserted"
	case ResultUpdated:
		return "updated"
	case ResultReplacement:
		return "replacement"
	case ResultFull:
		return "full"
	case ResultIgnored:
		return "ignored"
	}
	return "invalid"
}

// InsertResult is the full outcome of inserting a node into the routing table.
type InsertResult struct {
	Status InsertStatus

	// Evicted is only set for ResultReplacement. If Pending is false it is the stale entry that was
	// removed from the active list. If Pending is true no eviction happened; the new node went into
	// the replacement cache and Evicted is the least-recently-seen active entry, returned as a
	// candidate for the caller to confirm via a liveness probe.
	Evicted *Node

	// Pending indicates that the new node waits in the replacement cache.
	Pending bool
}

// bucket holds the nodes of one distance range. All access goes through the routing table's lock.
type bucket struct {
	active       []*Node // bounded by the bucket size k
	replacements []*Node // bounded by the replacement cache size
}

// findActive returns the position of the identifier in the active list, or -1.
func (b *bucket) findActive(id []byte) int {
	for i, node := range b.active {
		if bytes.Equal(node.ID, id) {
			return i
		}
	}
	return -1
}

// findReplacement returns the position of the identifier in the replacement cache, or -1.
func (b *bucket) findReplacement(id []byte) int {
	for i, node := range b.replacements {
		if bytes.Equal(node.ID, id) {
			return i
		}
	}
	return -1
}

// markSeen moves the node at the given active position to the most-recently-seen position.
func (b *bucket) markSeen(index int, now time.Time) {
	node := b.active[index]
	node.LastSeen = now

	b.active = append(b.active[:index], b.active[index+1:]...)
	b.active = append(b.active, node)
}

// insert applies the admission policy to a single bucket. See RoutingTable.Insert for the contract.
func (b *bucket) insert(node *Node, k, replacementSize int, stalePeriod time.Duration, allowReplacement bool, now time.Time) (result InsertResult) {
	// Known node: merge addresses, mark success, move to the most-recently-seen position.
	if i := b.findActive(node.ID); i != -1 {
		existing := b.active[i]
		existing.AddAddresses(node.Addresses)
		existing.MarkSuccess()
		if node.Status != StatusUnknown {
			existing.Status = node.Status
		}
		b.markSeen(i, now)
		return InsertResult{Status: ResultUpdated}
	}

	// A candidate re-announced while waiting in the replacement cache is refreshed in place.
	if i := b.findReplacement(node.ID); i != -1 {
		existing := b.replacements[i]
		existing.AddAddresses(node.Addresses)
		existing.LastSeen = now

		b.replacements = append(b.replacements[:i], b.replacements[i+1:]...)
		b.replacements = append([]*Node{existing}, b.replacements...)
		return InsertResult{Status: ResultUpdated}
	}

	node.LastSeen = now
	if node.Added.IsZero() {
		node.Added = now
	}

	// Free capacity: append as most recently seen.
	if len(b.active) < k {
		b.active = append(b.active, node)
		return InsertResult{Status: ResultInserted}
	}

	if !allowReplacement {
		return InsertResult{Status: ResultFull}
	}

	// Full bucket: evict the first entry that is stale and not protected by an in-flight liveness check.
	for i, existing := range b.active {
		if existing.IsStale(stalePeriod, now) && !existing.Querying {
			b.active = append(b.active[:i], b.active[i+1:]...)
			b.active = append(b.active, node)
			return InsertResult{Status: ResultReplacement, Evicted: existing}
		}
	}

	// No stale entry. Queue the candidate and hand the least-recently-seen active entry to the
	// caller as an eviction candidate to verify. The bucket itself does not evict on this path.
	b.addReplacement(node, replacementSize)
	return InsertResult{Status: ResultReplacement, Evicted: b.active[0], Pending: true}
}

// addReplacement pushes a candidate to the front of the replacement cache and trims the tail.
func (b *bucket) addReplacement(node *Node, replacementSize int) {
	if i := b.findReplacement(node.ID); i != -1 {
		b.replacements = append(b.replacements[:i], b.replacements[i+1:]...)
	}

	b.replacements = append([]*Node{node}, b.replacements...)
	if len(b.replacements) > replacementSize {
		b.replacements = b.replacements[:replacementSize]
	}
}

// remove deletes the identifier from the bucket. If it was removed from the active list, the oldest
// replacement-cache candidate is promoted into the freed slot.
func (b *bucket) remove(id []byte, now time.Time) (removed *Node) {
	if i := b.findActive(id); i != -1 {
		removed = b.active[i]
		b.active = append(b.active[:i], b.active[i+1:]...)

		if len(b.replacements) > 0 {
			promoted := b.replacements[len(b.replacements)-1]
			b.replacements = b.replacements[:len(b.replacements)-1]
			promoted.LastSeen = now
			if promoted.Added.IsZero() {
				promoted.Added = now
			}
			b.active = append(b.active, promoted)
		}

		return removed
	}

	if i := b.findReplacement(id); i != -1 {
		removed = b.replacements[i]
		b.replacements = append(b.replacements[:i], b.replacements[i+1:]...)
		return removed
	}

	return nil
}

// staleNodes flags all stale entries without an in-flight liveness check as querying and returns them.
func (b *bucket) staleNodes(stalePeriod time.Duration, now time.Time) (nodes []*Node) {
	for _, node := range b.active {
		if node.IsStale(stalePeriod, now) && !node.Querying {
			node.Querying = true
			nodes = append(nodes, node)
		}
	}
	return nodes
}
