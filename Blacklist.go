/*
File Name:  Blacklist.go
Copyright:  2024 Cratenet s.r.o.
*/

package core

import (
	"github.com/cratenet/core/store"
)

// BlacklistDB records blocked peers. A blocked peer is purged from the routing table and all of
// its future events are dropped.
type BlacklistDB struct {
	Database store.Store
}

// initBlacklist opens the blacklist database. Without a configured filename it stays in memory.
func (backend *Backend) initBlacklist() (err error) {
	backend.Blacklist = &BlacklistDB{}

	if backend.Config.BlacklistFile == "" {
		backend.Blacklist.Database = store.NewMemoryStore()
		return nil
	}

	if backend.Blacklist.Database, err = store.NewPogrebStore(backend.Config.BlacklistFile); err != nil {
		return err
	}
	return nil
}

// Block adds the peer to the blacklist with a reason.
func (list *BlacklistDB) Block(nodeID []byte, reason string) {
	list.Database.Set(nodeID, []byte(reason))
}

// IsBlocked checks whether the peer is blacklisted.
func (list *BlacklistDB) IsBlocked(nodeID []byte) bool {
	_, found := list.Database.Get(nodeID)
	return found
}

// Unblock removes the peer from the blacklist.
func (list *BlacklistDB) Unblock(nodeID []byte) {
	list.Database.Delete(nodeID)
}

// Iterate calls the function for every blacklisted peer with its reason.
func (list *BlacklistDB) Iterate(f func(nodeID []byte, reason string)) {
	list.Database.Iterate(func(key []byte, value []byte) {
		f(key, string(value))
	})
}
