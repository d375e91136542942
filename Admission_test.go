/*
File Name:  Admission_test.go
Copyright:  2024 Cratenet s.r.o.
*/

package core

import (
	"net"
	"testing"
	"time"

	"github.com/cratenet/core/dht"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityEvent(id byte, port int) EventIdentityReceived {
	return EventIdentityReceived{
		NodeID:          []byte{id},
		ConnectionID:    uint64(id),
		ProtocolVersion: "cratenet/1",
		AgentVersion:    "test agent",
		Addresses:       []*net.UDPAddr{{IP: net.ParseIP("192.0.2.1"), Port: port}},
	}
}

// A peer on the wrong protocol version is blocked and purged everywhere.
func TestAdmissionProtocolMismatch(t *testing.T) {
	backend, _, _ := newTestBackend(t)

	backend.table.Insert(&dht.Node{ID: []byte{1}})
	backend.PeerlistAdd(&PeerInfo{NodeID: []byte{1}})

	event := identityEvent(1, 1001)
	event.ProtocolVersion = "other/9"
	backend.handleIdentityReceived(event)

	assert.True(t, backend.Blacklist.IsBlocked([]byte{1}))
	assert.Nil(t, backend.table.Get([]byte{1}))
	assert.Nil(t, backend.PeerlistLookup([]byte{1}))

	// Identity pushes from a blocked peer are ignored from now on.
	backend.handleIdentityReceived(identityEvent(1, 1001))
	assert.Nil(t, backend.PeerlistLookup([]byte{1}))
}

// Blocking a previously verified peer also removes it from the peer cache, otherwise it would be
// restored as a dialable bootstrap contact at the next start.
func TestAdmissionBlockPurgesPeerCache(t *testing.T) {
	backend, _, _ := newTestBackend(t)

	backend.persistPeer(&dht.Node{ID: []byte{5}, Addresses: []*net.UDPAddr{{IP: net.ParseIP("192.0.2.1"), Port: 1000}}})
	require.Len(t, backend.loadPersistedPeers(), 1)

	event := identityEvent(5, 1000)
	event.ProtocolVersion = "other/9"
	backend.handleIdentityReceived(event)

	assert.True(t, backend.Blacklist.IsBlocked([]byte{5}))
	assert.Empty(t, backend.loadPersistedPeers())

	// The purge reaches the store itself, not just the blacklist filter on load.
	_, found := backend.peerStore.Get([]byte{5})
	assert.False(t, found)
}

// Client role peers are tracked in the peer list but never routed to.
func TestAdmissionClientRole(t *testing.T) {
	backend, transport, _ := newTestBackend(t)

	event := identityEvent(1, 1001)
	event.Capabilities = []string{CapabilityClient}
	backend.handleIdentityReceived(event)

	require.NotNil(t, backend.PeerlistLookup([]byte{1}))
	assert.Nil(t, backend.table.Get([]byte{1}))
	assert.Equal(t, 0, transport.dialCount([]byte{1}), "clients are not verified")
}

// In local mode the established session is proof enough; the peer enters the table immediately.
func TestAdmissionLocalMode(t *testing.T) {
	backend, _, _ := newTestBackend(t)
	backend.Config.LocalMode = true

	var newPeers int
	backend.Filters.NewPeer = func(peer *PeerInfo) { newPeers++ }

	backend.handleIdentityReceived(identityEvent(1, 1001))

	assert.NotNil(t, backend.table.Get([]byte{1}))
	assert.Equal(t, 1, newPeers)
}

// A peer we dialed ourselves is admitted without dial-back verification.
func TestAdmissionAfterOwnDial(t *testing.T) {
	backend, _, _ := newTestBackend(t)

	backend.dialedPeers[string([]byte{1})] = struct{}{}
	backend.handleIdentityReceived(identityEvent(1, 1001))

	assert.NotNil(t, backend.table.Get([]byte{1}))
}

// An unknown inbound peer goes through reachability verification before entering the table.
func TestAdmissionUnknownPeerIsVerified(t *testing.T) {
	backend, transport, mockClock := newTestBackend(t)

	backend.handleIdentityReceived(identityEvent(1, 1001))

	assert.Nil(t, backend.table.Get([]byte{1}), "not admitted before dial-back")
	require.Equal(t, 1, transport.dialCount([]byte{1}), "verification dial started")

	// The outbound connection stands, the peer dials back after the delay and pushes its identity.
	backend.dialManager.HandleConnectionEstablished([]byte{1})
	mockClock.Add(backend.Config.DialBackDelay())
	backend.handleIdentityReceived(identityEvent(1, 1001))

	assert.NotNil(t, backend.table.Get([]byte{1}))
	assert.Equal(t, OutcomeSuccessfulDialBack, backend.dialManager.Outcome([]byte{1}))
}

// Re-announcement of a peer already in the table merges addresses in place, no re-verification.
func TestAdmissionMergeExisting(t *testing.T) {
	backend, transport, _ := newTestBackend(t)

	backend.table.Insert(&dht.Node{ID: []byte{1}, Addresses: []*net.UDPAddr{{IP: net.ParseIP("192.0.2.1"), Port: 1001}}})
	transport.dialed = nil

	backend.handleIdentityReceived(identityEvent(1, 2002))

	node := backend.table.Get([]byte{1})
	require.NotNil(t, node)
	assert.Len(t, node.Addresses, 2)
	assert.Equal(t, 0, transport.dialCount([]byte{1}))
}

// A peer whose bucket is full is not verified; backpressure, not an error.
func TestAdmissionBucketFull(t *testing.T) {
	backend, transport, _ := newTestBackend(t)
	backend.Config.LocalMode = false

	// Fill bucket 7 (identifiers 0x80..0xFF relative to self 0).
	for i := 0; i < backend.Config.BucketSize; i++ {
		backend.table.Insert(&dht.Node{ID: []byte{byte(0x80 + i)}})
	}
	transport.dialed = nil

	backend.handleIdentityReceived(identityEvent(0xF0, 1001))

	assert.Equal(t, 0, transport.dialCount([]byte{0xF0}))
	assert.Len(t, backend.dialManager.active, 0)
	assert.Nil(t, backend.table.Get([]byte{0xF0}))
}

// The reachability-check role is handed to the dial workflow and never admitted by itself.
func TestAdmissionReachabilityCheckRole(t *testing.T) {
	backend, transport, _ := newTestBackend(t)

	event := identityEvent(1, 1001)
	event.Capabilities = []string{CapabilityReachabilityCheck}
	backend.handleIdentityReceived(event)

	assert.Nil(t, backend.table.Get([]byte{1}))
	assert.Equal(t, 1, transport.dialCount([]byte{1}))
}

// Admitting into a full bucket with a fresh table probes the eviction candidate instead of
// displacing it.
func TestAdmitPeerFullBucketProbesCandidate(t *testing.T) {
	backend, transport, _ := newTestBackend(t)

	for i := 0; i < backend.Config.BucketSize; i++ {
		backend.table.Insert(&dht.Node{ID: []byte{byte(0x80 + i)}})
	}

	peer := backend.PeerlistAdd(&PeerInfo{NodeID: []byte{0xF0}})
	backend.AdmitPeer(peer, nil)

	assert.Nil(t, backend.table.Get([]byte{0xF0}), "candidate waits in the replacement cache")
	require.NotNil(t, backend.table.Get([]byte{0x80}))
	assert.True(t, backend.table.Get([]byte{0x80}).Querying, "eviction candidate under liveness check")

	// The ping runs off-loop and reports back through the liveness channel.
	require.Eventually(t, func() bool {
		transport.Lock()
		defer transport.Unlock()
		return len(transport.requests) == 1 && transport.requests[0].Type == MessagePing
	}, time.Second, time.Millisecond)
}
