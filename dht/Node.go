/*
File Name:  Node.go
Copyright:  2024 Cratenet s.r.o.
*/

package dht

import (
	"net"
	"time"
)

// ConnectionStatus indicates whether a live connection to the node is known to exist.
type ConnectionStatus int

const (
	StatusUnknown ConnectionStatus = iota
	StatusConnected
	StatusDisconnected
)

// Node is a single entry in the routing table representing a remote peer.
type Node struct {
	// ID is the node identifier in the overlay. Typically the blake3 hash of the peer's public key.
	ID []byte

	// Addresses are the known network addresses, ordered as first learned and de-duplicated.
	Addresses []*net.UDPAddr

	// Status is the last known connection status.
	Status ConnectionStatus

	// LastSeen is updated on every sighting of the node. Added is set once on first insertion.
	LastSeen time.Time
	Added    time.Time

	// Successes and Failures count the outcomes of requests sent to the node.
	Successes uint32
	Failures  uint32

	// Querying is true while an outstanding liveness check to this node is in flight.
	// A node being queried is protected from stale eviction until the check concludes.
	Querying bool

	// Info is an arbitrary pointer specified by the caller.
	Info interface{}
}

// AddAddresses merges the given addresses into the node's address list.
// Duplicates are skipped. It reports whether at least one new address was added.
func (node *Node) AddAddresses(addresses []*net.UDPAddr) (added bool) {
loopNew:
	for _, addressNew := range addresses {
		if addressNew == nil {
			continue
		}
		for _, addressExist := range node.Addresses {
			if addressExist.IP.Equal(addressNew.IP) && addressExist.Port == addressNew.Port {
				continue loopNew
			}
		}

		node.Addresses = append(node.Addresses, addressNew)
		added = true
	}

	return added
}

// MarkSuccess records a successful request to the node.
func (node *Node) MarkSuccess() {
	node.Successes++
}

// MarkFailure records a failed request to the node.
func (node *Node) MarkFailure() {
	node.Failures++
}

// ReliabilityScore is the ratio of successful requests. It is 0.5 for a node that was never queried.
func (node *Node) ReliabilityScore() float64 {
	total := node.Successes + node.Failures
	if total == 0 {
		return 0.5
	}
	return float64(node.Successes) / float64(total)
}

// IsStale checks whether the node was last seen before the staleness cutoff.
func (node *Node) IsStale(stalePeriod time.Duration, now time.Time) bool {
	return node.LastSeen.Add(stalePeriod).Before(now)
}
