/*
File Name:  Backend.go
Copyright:  2024 Cratenet s.r.o.
*/

package core

import (
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/btcsuite/btcd/btcec"
	"github.com/cratenet/core/dht"
	"github.com/cratenet/core/store"
	"github.com/sirupsen/logrus"
)

// nodeIDBits is the identifier width. Node IDs are blake3 hashes, 32 bytes.
const nodeIDBits = 256

// Backend is one node instance: routing table, reachability workflow and NAT probe, all driven
// by a single event loop. Multiple backends may coexist in one process (testing).
type Backend struct {
	Config  *Config
	Filters Filters

	configFile string
	log        *logrus.Logger
	clock      clock.Clock

	transport Transport

	// identity
	peerPrivateKey *btcec.PrivateKey
	peerPublicKey  *btcec.PublicKey
	nodeID         []byte

	// state owned by the event loop
	table       *dht.RoutingTable
	dialManager *DialManager
	natProbe    *natProbe
	dialedPeers map[string]struct{} // peers we established an outbound connection to

	// NAT verdict, published once
	natStatus    NatStatus
	natStatusSet bool
	natMutex     sync.RWMutex

	// peer bookkeeping
	peerList      map[string]*PeerInfo
	peerListMutex sync.RWMutex
	contacts      []*Contact

	Blacklist *BlacklistDB
	peerStore store.Store

	// channels into the event loop
	upnpResult      chan upnpProbeOutcome
	livenessResults chan livenessResult

	// routing event fan-out for observers (web API)
	eventSubscribers      []chan dht.MutationEvent
	eventSubscribersMutex sync.Mutex

	terminateSignal chan struct{}
	terminateOnce   sync.Once
}

type upnpProbeOutcome struct {
	status NatStatus
	err    error
}

type livenessResult struct {
	nodeID  []byte
	success bool
}

// Init initializes the backend. The transport collaborator must be ready; the config is loaded
// from the given file (empty filename selects the embedded default).
// Status codes are those of LoadConfig.
func Init(transport Transport, configFilename string) (backend *Backend, status int, err error) {
	backend = &Backend{
		configFile:      configFilename,
		clock:           clock.New(),
		transport:       transport,
		dialedPeers:     make(map[string]struct{}),
		peerList:        make(map[string]*PeerInfo),
		upnpResult:      make(chan upnpProbeOutcome, 1),
		livenessResults: make(chan livenessResult, 64),
		terminateSignal: make(chan struct{}),
	}

	if backend.Config, status, err = LoadConfig(configFilename); err != nil {
		return nil, status, err
	}
	if err = backend.initLog(); err != nil {
		return backend, 1, err
	}

	backend.initFilters()

	if err = backend.initPeerID(); err != nil {
		return backend, 0, err
	}
	if err = backend.initBlacklist(); err != nil {
		return backend, 0, err
	}
	if err = backend.initPeerStore(); err != nil {
		return backend, 0, err
	}

	backend.initSeedList()

	backend.table = dht.NewRoutingTable(&dht.Node{ID: backend.nodeID}, nodeIDBits, backend.Config.BucketSize)
	backend.table.ReplacementCacheSize = backend.Config.ReplacementCacheSize
	backend.table.StalePeriod = backend.Config.StalePeriod()
	backend.table.OnMutation = backend.routingMutation

	backend.dialManager = newDialManager(backend)
	backend.natProbe = newNatProbe(backend.Config.NatSamples)

	return backend, 3, nil
}

// Connect starts the event loop, the NAT probe and the reachability workflow.
func (backend *Backend) Connect() {
	go backend.run()
}

// Disconnect stops the event loop. It is safe to call multiple times.
func (backend *Backend) Disconnect() {
	backend.terminateOnce.Do(func() {
		close(backend.terminateSignal)
	})
}

// RoutingTable exposes the routing table for read-mostly queries (record lookup engines, web API).
// The table guards itself with a short-critical-section lock; its raw internals are not exposed.
func (backend *Backend) RoutingTable() *dht.RoutingTable {
	return backend.table
}

// NatStatus returns the published NAT classification verdict, if available yet.
func (backend *Backend) NatStatus() (status NatStatus, valid bool) {
	backend.natMutex.RLock()
	defer backend.natMutex.RUnlock()
	return backend.natStatus, backend.natStatusSet
}

func (backend *Backend) publishNatStatus(status NatStatus) {
	backend.natMutex.Lock()
	if backend.natStatusSet {
		backend.natMutex.Unlock()
		return
	}
	backend.natStatus = status
	backend.natStatusSet = true
	backend.natMutex.Unlock()

	backend.LogInfo("publishNatStatus", "NAT classification verdict: %s\n", status)
	backend.Filters.NatStatusVerdict(status)
}

// routingMutation fans a routing table change out to the filter and all subscribers.
func (backend *Backend) routingMutation(event dht.MutationEvent) {
	backend.Filters.RoutingMutation(event)

	backend.eventSubscribersMutex.Lock()
	defer backend.eventSubscribersMutex.Unlock()
	for _, subscriber := range backend.eventSubscribers {
		select {
		case subscriber <- event:
		default:
			// A slow observer never blocks the core.
		}
	}
}

// SubscribeRoutingEvents registers an observer for routing table changes. The returned function
// unsubscribes.
func (backend *Backend) SubscribeRoutingEvents() (events chan dht.MutationEvent, unsubscribe func()) {
	events = make(chan dht.MutationEvent, 64)

	backend.eventSubscribersMutex.Lock()
	backend.eventSubscribers = append(backend.eventSubscribers, events)
	backend.eventSubscribersMutex.Unlock()

	return events, func() {
		backend.eventSubscribersMutex.Lock()
		defer backend.eventSubscribersMutex.Unlock()
		for i, subscriber := range backend.eventSubscribers {
			if subscriber == events {
				backend.eventSubscribers = append(backend.eventSubscribers[:i], backend.eventSubscribers[i+1:]...)
				return
			}
		}
	}
}
