/*
File Name:  Memory.go
Copyright:  2024 Cratenet s.r.o.
*/

package store

import (
	"sync"
	"time"
)

// MemoryStore is a simple in-memory key/value store for testing and non-persistent operation.
type MemoryStore struct {
	mutex     sync.Mutex
	data      map[string][]byte
	expireMap map[string]time.Time
}

// NewMemoryStore creates a properly initialized memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:      make(map[string][]byte),
		expireMap: make(map[string]time.Time),
	}
}

// Set stores the key/value pair.
func (ms *MemoryStore) Set(key []byte, value []byte) error {
	ms.mutex.Lock()
	ms.data[string(key)] = value
	delete(ms.expireMap, string(key))
	ms.mutex.Unlock()
	return nil
}

// SetExpire stores the key/value pair and marks it for deletion after the expiration time.
func (ms *MemoryStore) SetExpire(key []byte, value []byte, expiration time.Time) error {
	ms.mutex.Lock()
	ms.data[string(key)] = value
	ms.expireMap[string(key)] = expiration
	ms.mutex.Unlock()
	return nil
}

// Get returns the value for the key if present.
func (ms *MemoryStore) Get(key []byte) (value []byte, found bool) {
	ms.mutex.Lock()
	value, found = ms.data[string(key)]
	ms.mutex.Unlock()
	return value, found
}

// Delete deletes a key/value pair.
func (ms *MemoryStore) Delete(key []byte) {
	ms.mutex.Lock()
	delete(ms.data, string(key))
	delete(ms.expireMap, string(key))
	ms.mutex.Unlock()
}

// Iterate calls the function for every stored key/value pair.
func (ms *MemoryStore) Iterate(f func(key []byte, value []byte)) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	for k, v := range ms.data {
		f([]byte(k), v)
	}
}

// ExpireKeys deletes all keys that are marked for expiration.
func (ms *MemoryStore) ExpireKeys() {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	for k, expiration := range ms.expireMap {
		if time.Now().After(expiration) {
			delete(ms.expireMap, k)
			delete(ms.data, k)
		}
	}
}

// Count returns the number of stored keys.
func (ms *MemoryStore) Count() int {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	return len(ms.data)
}
