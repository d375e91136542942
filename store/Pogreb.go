/*
File Name:  Pogreb.go
Copyright:  2024 Cratenet s.r.o.

Persistent key-value backend using Pogreb. Expiration is not supported; the
callers using expiration keep those records in the memory store.
*/

package store

import (
	"errors"
	"io"
	"log"
	"time"

	"github.com/akrylysov/pogreb"
)

// PogrebStore is a persistent key/value store using Pogreb.
type PogrebStore struct {
	filename string
	db       *pogreb.DB
}

// NewPogrebStore creates a properly initialized Pogreb store.
func NewPogrebStore(filename string) (store *PogrebStore, err error) {
	pogreb.SetLogger(log.New(io.Discard, "", 0))

	// if the database does not exist, it will be created
	db, err := pogreb.Open(filename, nil)
	if err != nil {
		return nil, err
	}

	return &PogrebStore{
		filename: filename,
		db:       db,
	}, nil
}

// Set stores the key/value pair.
func (store *PogrebStore) Set(key []byte, value []byte) error {
	return store.db.Put(key, value)
}

// SetExpire is not supported by this backend.
func (store *PogrebStore) SetExpire(key []byte, value []byte, expiration time.Time) error {
	return errors.New("expiration not supported")
}

// Get returns the value for the key if present.
func (store *PogrebStore) Get(key []byte) (value []byte, found bool) {
	value, err := store.db.Get(key)
	if err != nil || value == nil {
		return nil, false
	}
	return value, true
}

// Delete deletes a key/value pair.
func (store *PogrebStore) Delete(key []byte) {
	store.db.Delete(key)
}

// Iterate calls the function for every stored key/value pair.
func (store *PogrebStore) Iterate(f func(key []byte, value []byte)) {
	it := store.db.Items()
	for {
		key, value, err := it.Next()
		if err != nil {
			// pogreb.ErrIterationDone or a read error; either way iteration ends here.
			return
		}
		f(key, value)
	}
}

// ExpireKeys does nothing for this backend.
func (store *PogrebStore) ExpireKeys() {
}

// Count returns the number of stored keys.
func (store *PogrebStore) Count() int {
	return int(store.db.Count())
}

// Close flushes and closes the database.
func (store *PogrebStore) Close() error {
	return store.db.Close()
}
