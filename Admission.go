/*
File Name:  Admission.go
Copyright:  2024 Cratenet s.r.o.

Admission control: what happens when a peer identifies itself. Only verified
peers make it into the routing table; everything else is merged, deferred to
the dial-back workflow, or blocked.
*/

package core

import (
	"net"

	"github.com/cratenet/core/dht"
)

// handleIdentityReceived drives the admission policy for an identity push. Runs on the event loop.
func (backend *Backend) handleIdentityReceived(event EventIdentityReceived) {
	if backend.Blacklist.IsBlocked(event.NodeID) {
		return
	}

	// A wrong protocol version is fatal for the peer: block it and purge any prior table entry.
	if event.ProtocolVersion != backend.Config.ProtocolVersion {
		backend.LogInfo("handleIdentityReceived", "node %x advertises protocol '%s', local is '%s', blocking\n", event.NodeID, event.ProtocolVersion, backend.Config.ProtocolVersion)
		backend.Blacklist.Block(event.NodeID, "protocol version mismatch: "+event.ProtocolVersion)
		backend.table.Remove(event.NodeID)
		backend.PeerlistRemove(event.NodeID)
		backend.dialManager.Abandon(event.NodeID)
		backend.forgetPeer(event.NodeID)
		return
	}

	peer := backend.PeerlistAdd(&PeerInfo{NodeID: event.NodeID})
	peer.Lock()
	peer.IsRootPeer = backend.isBootstrapContact(event.NodeID)
	peer.ProtocolVersion = event.ProtocolVersion
	peer.AgentVersion = event.AgentVersion
	peer.Capabilities = event.Capabilities
	peer.Unlock()
	peer.addAddresses(event.Addresses)

	// Role peers are never admitted into the routing table.
	if peer.HasCapability(CapabilityClient) {
		return
	}
	if peer.HasCapability(CapabilityReachabilityCheck) {
		// A reachability-check agent is there to probe us; hand it to the workflow.
		backend.dialManager.Enqueue(&Contact{NodeID: event.NodeID, Addresses: event.Addresses}, peer.HasCapability(CapabilityDoNotDisturb))
		return
	}

	// An identity push is also the dial-back confirmation for a peer under evaluation.
	if backend.dialManager.HandleDialBackSignal(event.NodeID) {
		backend.AdmitPeer(peer, event.Addresses)
		return
	}

	// A peer already in the table is merged in place; new addresses need no re-verification.
	if backend.table.Get(event.NodeID) != nil {
		backend.table.Insert(&dht.Node{ID: event.NodeID, Addresses: event.Addresses})
		backend.transport.AddKnownAddresses(event.NodeID, event.Addresses)
		return
	}

	// In local/trusted mode, or when we dialed the peer ourselves, the established session is
	// itself sufficient evidence of reachability.
	if backend.Config.LocalMode || backend.wasDialed(event.NodeID) {
		backend.AdmitPeer(peer, event.Addresses)
		return
	}

	// Verifying a peer that cannot fit is pointless; normal backpressure, not an error.
	if backend.table.IsBucketFull(event.NodeID) {
		return
	}

	backend.dialManager.Enqueue(&Contact{NodeID: event.NodeID, Addresses: event.Addresses}, peer.HasCapability(CapabilityDoNotDisturb))
}

// AdmitPeer inserts a verified peer into the routing table and persists it.
func (backend *Backend) AdmitPeer(peer *PeerInfo, addresses []*net.UDPAddr) {
	status := dht.StatusUnknown
	if backend.transport.IsConnected(peer.NodeID) {
		status = dht.StatusConnected
	}

	node := &dht.Node{
		ID:        peer.NodeID,
		Addresses: addresses,
		Status:    status,
		Info:      peer,
	}

	result := backend.table.Insert(node)
	switch result.Status {
	case dht.ResultInserted:
		backend.Filters.NewPeer(peer)
		backend.persistPeer(node)
	case dht.ResultReplacement:
		if result.Pending {
			// The candidate waits in the replacement cache; probe the eviction candidate so a dead
			// entry frees the slot.
			backend.probeLiveness(result.Evicted)
		} else {
			backend.Filters.NewPeer(peer)
			backend.persistPeer(node)
		}
	case dht.ResultUpdated:
		backend.persistPeer(backend.table.Get(peer.NodeID))
	}
}

// wasDialed checks whether we established an outbound connection to the peer before.
func (backend *Backend) wasDialed(nodeID []byte) bool {
	_, ok := backend.dialedPeers[string(nodeID)]
	return ok
}
