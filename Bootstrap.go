/*
File Name:  Bootstrap.go
Copyright:  2024 Cratenet s.r.o.

Initial contacts for the reachability workflow. Contacts come from the config's
seed list and from the persistent cache of previously verified peers. Relayed
contacts and contacts without an embedded peer identity are filtered out; a
dial-back through a relay proves nothing about reachability.
*/

package core

import (
	"bytes"
	"encoding/hex"
	"errors"
	"net"
	"strconv"

	"github.com/btcsuite/btcd/btcec"
)

// Contact is a single bootstrap contact: a peer identity with its addresses.
type Contact struct {
	PublicKey *btcec.PublicKey // Public key, nil for contacts restored from the peer cache
	NodeID    []byte           // Node ID derived from the public key
	Addresses []*net.UDPAddr   // IP:Port addresses
}

// initSeedList parses the seed list from the config into usable contacts.
// Note: This should be called before the dial manager is created so the contact permutation covers the full list.
func (backend *Backend) initSeedList() {
	backend.contacts = nil

loopSeedList:
	for _, seed := range backend.Config.SeedList {
		// Contacts without an embedded identity cannot be verified against anything; skip.
		if seed.PublicKey == "" {
			backend.LogWarn("initSeedList", "seed entry without public key skipped\n")
			continue
		}
		if seed.Relayed {
			continue
		}

		publicKeyB, err := hex.DecodeString(seed.PublicKey)
		if err != nil {
			backend.LogError("initSeedList", "public key '%s': %v\n", seed.PublicKey, err.Error())
			continue
		}

		publicKey, err := btcec.ParsePubKey(publicKeyB, btcec.S256())
		if err != nil {
			backend.LogError("initSeedList", "public key '%s': %v\n", seed.PublicKey, err.Error())
			continue
		}

		if publicKey.IsEqual(backend.peerPublicKey) { // skip if self
			continue
		}

		contact := &Contact{PublicKey: publicKey, NodeID: PublicKey2NodeID(publicKey)}

		for _, addressA := range seed.Address {
			address, err := parseAddress(addressA)
			if err != nil {
				backend.LogError("initSeedList", "public key '%s' address '%s': %v\n", seed.PublicKey, addressA, err.Error())
				continue loopSeedList
			}
			contact.Addresses = append(contact.Addresses, address)
		}

		if len(contact.Addresses) == 0 {
			continue
		}

		backend.contacts = append(backend.contacts, contact)
	}

	// Previously verified peers from the persistent cache extend the seed list.
	backend.contacts = append(backend.contacts, backend.loadPersistedPeers()...)
}

// isBootstrapContact checks whether the node ID belongs to one of the initial contacts.
func (backend *Backend) isBootstrapContact(nodeID []byte) bool {
	for _, contact := range backend.contacts {
		if bytes.Equal(contact.NodeID, nodeID) {
			return true
		}
	}
	return false
}

// parseAddress parses an input peer address in the form "IP:Port".
func parseAddress(Address string) (remote *net.UDPAddr, err error) {
	host, portA, err := net.SplitHostPort(Address)
	if err != nil {
		return nil, err
	}

	portI, err := strconv.Atoi(portA)
	if err != nil {
		return nil, err
	} else if portI <= 0 || portI > 65535 {
		return nil, errors.New("invalid port number")
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return nil, errors.New("invalid input IP")
	}

	return &net.UDPAddr{IP: ip, Port: portI}, err
}
