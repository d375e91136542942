/*
File Name:  Peer Store.go
Copyright:  2024 Cratenet s.r.o.

Persistent cache of verified peers. Peers that passed the dial-back check are
written out and restored at the next start as additional bootstrap contacts,
so a restarted node does not depend on the seed list alone.
*/

package core

import (
	"encoding/json"
	"net"
	"time"

	"github.com/cratenet/core/dht"
	"github.com/cratenet/core/store"
)

// peerRecord is the stored form of a verified peer. Key is the node ID.
type peerRecord struct {
	Addresses []string  `json:"addresses"`
	LastSeen  time.Time `json:"lastseen"`
	Successes uint32    `json:"successes"`
	Failures  uint32    `json:"failures"`
}

// initPeerStore opens the verified peer cache. Without a configured filename it stays in memory.
func (backend *Backend) initPeerStore() (err error) {
	if backend.Config.PeerStoreFile == "" {
		backend.peerStore = store.NewMemoryStore()
		return nil
	}

	if backend.peerStore, err = store.NewPogrebStore(backend.Config.PeerStoreFile); err != nil {
		return err
	}
	return nil
}

// persistPeer writes the routing table entry to the peer cache.
func (backend *Backend) persistPeer(node *dht.Node) {
	if node == nil {
		return
	}

	record := peerRecord{
		Addresses: udpAddrsToStrings(node.Addresses),
		LastSeen:  node.LastSeen,
		Successes: node.Successes,
		Failures:  node.Failures,
	}

	data, err := json.Marshal(record)
	if err != nil {
		backend.LogError("persistPeer", "marshalling record for node %x: %v\n", node.ID, err.Error())
		return
	}

	if err := backend.peerStore.Set(node.ID, data); err != nil {
		backend.LogError("persistPeer", "storing record for node %x: %v\n", node.ID, err.Error())
	}
}

// forgetPeer removes the peer from the cache, e.g. after blacklisting.
func (backend *Backend) forgetPeer(nodeID []byte) {
	backend.peerStore.Delete(nodeID)
}

// loadPersistedPeers restores cached peers as bootstrap contacts. Peers blocked since they were
// cached are skipped; the cache must never resurrect a blacklisted peer as a dialable contact.
func (backend *Backend) loadPersistedPeers() (contacts []*Contact) {
	backend.peerStore.Iterate(func(key []byte, value []byte) {
		if backend.Blacklist.IsBlocked(key) {
			return
		}

		var record peerRecord
		if err := json.Unmarshal(value, &record); err != nil {
			return
		}

		contact := &Contact{NodeID: append([]byte(nil), key...)}
		for _, addressA := range record.Addresses {
			if address, err := parseAddress(addressA); err == nil {
				contact.Addresses = append(contact.Addresses, address)
			}
		}
		if len(contact.Addresses) == 0 {
			return
		}

		contacts = append(contacts, contact)
	})

	return contacts
}

// udpAddrsToStrings renders addresses in the "IP:Port" form accepted by parseAddress.
func udpAddrsToStrings(addresses []*net.UDPAddr) (list []string) {
	for _, address := range addresses {
		list = append(list, address.String())
	}
	return list
}
