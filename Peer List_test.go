/*
File Name:  Peer List_test.go
Copyright:  2024 Cratenet s.r.o.
*/

package core

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeerlist(t *testing.T) {
	backend, _, _ := newTestBackend(t)

	peer := backend.PeerlistAdd(&PeerInfo{NodeID: []byte{1}})
	require.NotNil(t, peer)
	assert.Equal(t, 1, backend.PeerlistCount())

	// Adding the same identifier returns the existing record.
	same := backend.PeerlistAdd(&PeerInfo{NodeID: []byte{1}, AgentVersion: "ignored"})
	assert.Same(t, peer, same)
	assert.Equal(t, 1, backend.PeerlistCount())

	assert.Same(t, peer, backend.PeerlistLookup([]byte{1}))
	assert.Nil(t, backend.PeerlistLookup([]byte{2}))

	backend.PeerlistAdd(&PeerInfo{NodeID: []byte{2}})
	assert.Len(t, backend.PeerlistAll(), 2)

	backend.PeerlistRemove([]byte{1})
	assert.Nil(t, backend.PeerlistLookup([]byte{1}))
	assert.Equal(t, 1, backend.PeerlistCount())
}

func TestPeerCapabilities(t *testing.T) {
	peer := &PeerInfo{NodeID: []byte{1}, Capabilities: []string{CapabilityClient, CapabilityDoNotDisturb}}

	assert.True(t, peer.HasCapability(CapabilityClient))
	assert.True(t, peer.HasCapability(CapabilityDoNotDisturb))
	assert.False(t, peer.HasCapability(CapabilityReachabilityCheck))
}

func TestPeerAddresses(t *testing.T) {
	peer := &PeerInfo{NodeID: []byte{1}}

	peer.addAddresses([]*net.UDPAddr{{IP: net.ParseIP("192.0.2.1"), Port: 1000}})
	peer.addAddresses([]*net.UDPAddr{{IP: net.ParseIP("192.0.2.1"), Port: 1000}, {IP: net.ParseIP("192.0.2.2"), Port: 2000}})

	assert.Len(t, peer.Addresses(), 2)
}
