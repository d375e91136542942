/*
File Name:  Peer List.go
Copyright:  2024 Cratenet s.r.o.

The peer list keeps everything known about remote peers that identified
themselves, whether or not they were admitted into the routing table.
*/

package core

import (
	"net"
	"sync"

	"github.com/btcsuite/btcd/btcec"
)

// Capability strings advertised by peers in their identity push.
const (
	// CapabilityClient marks a client-only peer. It is never admitted into the routing table.
	CapabilityClient = "client"

	// CapabilityReachabilityCheck marks an agent that exists to probe reachability.
	// It is never admitted; instead it is enqueued into the dial-back workflow so it can probe us.
	CapabilityReachabilityCheck = "reachability-check"

	// CapabilityDoNotDisturb marks a peer that accepts do-not-disturb requests to suppress
	// repeated dial-back retries.
	CapabilityDoNotDisturb = "do-not-disturb"
)

// PeerInfo stores information about a single remote peer
type PeerInfo struct {
	PublicKey *btcec.PublicKey // Public key, if known
	NodeID    []byte           // Node ID in the routing table = blake3(Public Key)

	ProtocolVersion string   // Protocol identifier received in the identity push
	AgentVersion    string   // Free-form agent string
	Capabilities    []string // Advertised capabilities

	addresses  []*net.UDPAddr // Known addresses, ordered, de-duplicated
	IsRootPeer bool           // Whether the peer is from the initial seed list

	sync.RWMutex

	// statistics
	StatsPacketSent     uint64 // Count of packets sent
	StatsPacketReceived uint64 // Count of packets received
}

// HasCapability checks whether the peer advertised the given capability.
func (peer *PeerInfo) HasCapability(capability string) bool {
	peer.RLock()
	defer peer.RUnlock()

	for _, c := range peer.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// Addresses returns a copy of the peer's known addresses.
func (peer *PeerInfo) Addresses() (addresses []*net.UDPAddr) {
	peer.RLock()
	defer peer.RUnlock()
	return append(addresses, peer.addresses...)
}

// addAddresses merges new addresses into the peer's list, de-duplicated.
func (peer *PeerInfo) addAddresses(addresses []*net.UDPAddr) {
	peer.Lock()
	defer peer.Unlock()

loopNew:
	for _, addressNew := range addresses {
		if addressNew == nil {
			continue
		}
		for _, addressExist := range peer.addresses {
			if addressExist.IP.Equal(addressNew.IP) && addressExist.Port == addressNew.Port {
				continue loopNew
			}
		}
		peer.addresses = append(peer.addresses, addressNew)
	}
}

// PeerlistAdd adds the peer to the peer list if not yet present and returns the stored record.
func (backend *Backend) PeerlistAdd(peer *PeerInfo) *PeerInfo {
	backend.peerListMutex.Lock()
	defer backend.peerListMutex.Unlock()

	if existing, ok := backend.peerList[string(peer.NodeID)]; ok {
		return existing
	}

	backend.peerList[string(peer.NodeID)] = peer
	return peer
}

// PeerlistLookup returns the peer record for the node ID, or nil.
func (backend *Backend) PeerlistLookup(nodeID []byte) *PeerInfo {
	backend.peerListMutex.RLock()
	defer backend.peerListMutex.RUnlock()
	return backend.peerList[string(nodeID)]
}

// PeerlistRemove removes the peer from the peer list.
func (backend *Backend) PeerlistRemove(nodeID []byte) {
	backend.peerListMutex.Lock()
	defer backend.peerListMutex.Unlock()
	delete(backend.peerList, string(nodeID))
}

// PeerlistCount returns the current count of peers in the peer list.
func (backend *Backend) PeerlistCount() int {
	backend.peerListMutex.RLock()
	defer backend.peerListMutex.RUnlock()
	return len(backend.peerList)
}

// PeerlistAll returns all peers currently in the peer list.
func (backend *Backend) PeerlistAll() (peers []*PeerInfo) {
	backend.peerListMutex.RLock()
	defer backend.peerListMutex.RUnlock()

	peers = make([]*PeerInfo, 0, len(backend.peerList))
	for _, peer := range backend.peerList {
		peers = append(peers, peer)
	}
	return peers
}
