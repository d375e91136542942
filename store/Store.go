/*
File Name:  Store.go
Copyright:  2024 Cratenet s.r.o.

Simple key-value store interface used for the verified peer cache and the
blacklist. Backends: in-memory (testing, non-persistent operation) and pogreb.
*/

package store

import (
	"time"
)

// Store is the interface for the key-value storage backends.
type Store interface {
	// Set stores the key/value pair.
	Set(key []byte, value []byte) error

	// SetExpire stores the key/value pair and marks it for deletion after the expiration time.
	// If the key already exists it is overwritten and the new expiration applies.
	SetExpire(key []byte, value []byte, expiration time.Time) error

	// Get returns the value for the key if present.
	Get(key []byte) (value []byte, found bool)

	// Delete deletes a key/value pair.
	Delete(key []byte)

	// Iterate calls the function for every stored key/value pair. Order is unspecified.
	Iterate(f func(key []byte, value []byte))

	// ExpireKeys deletes all keys that are marked for expiration.
	ExpireKeys()

	// Count returns the number of stored keys.
	Count() int
}
