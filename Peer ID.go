/*
File Name:  Peer ID.go
Copyright:  2024 Cratenet s.r.o.
*/

package core

import (
	"encoding/hex"
	"errors"

	"github.com/btcsuite/btcd/btcec"
	"lukechampine.com/blake3"
)

// The peer ID is an ECDSA (secp256k1) 257-bit public key.
// The node ID is the blake3 hash of the public key in compressed form.

// initPeerID loads the key pair from the config or creates a new one.
func (backend *Backend) initPeerID() (err error) {
	// load existing key from config, if available
	if len(backend.Config.PrivateKey) > 0 {
		configPK, err := hex.DecodeString(backend.Config.PrivateKey)
		if err != nil {
			return errors.New("private key in config is corrupted")
		}

		backend.peerPrivateKey, backend.peerPublicKey = btcec.PrivKeyFromBytes(btcec.S256(), configPK)
		backend.nodeID = PublicKey2NodeID(backend.peerPublicKey)
		return nil
	}

	// if the peer ID is empty, create a new public-private key pair
	if backend.peerPrivateKey, backend.peerPublicKey, err = Secp256k1NewPrivateKey(); err != nil {
		return err
	}
	backend.nodeID = PublicKey2NodeID(backend.peerPublicKey)

	// save the newly generated private key into the config
	backend.Config.PrivateKey = hex.EncodeToString(backend.peerPrivateKey.Serialize())
	backend.SaveConfig()

	return nil
}

// Secp256k1NewPrivateKey creates a new public-private key pair
func Secp256k1NewPrivateKey() (privateKey *btcec.PrivateKey, publicKey *btcec.PublicKey, err error) {
	key, err := btcec.NewPrivateKey(btcec.S256())
	if err != nil {
		return nil, nil, err
	}

	return key, (*btcec.PublicKey)(&key.PublicKey), nil
}

// PublicKey2NodeID derives the node ID used in the routing table from the peer's public key.
func PublicKey2NodeID(publicKey *btcec.PublicKey) (nodeID []byte) {
	hash := blake3.Sum256(publicKey.SerializeCompressed())
	return hash[:]
}

// ExportPrivateKey returns the peer's public and private key
func (backend *Backend) ExportPrivateKey() (privateKey *btcec.PrivateKey, publicKey *btcec.PublicKey) {
	return backend.peerPrivateKey, backend.peerPublicKey
}

// SelfNodeID returns the node ID used in the routing table.
func (backend *Backend) SelfNodeID() []byte {
	return backend.nodeID
}
