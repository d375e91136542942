/*
File Name:  Test_test.go
Copyright:  2024 Cratenet s.r.o.

Shared test fixtures: a scripted in-memory transport and a backend wired to a
mock clock so timing rules can be tested without sleeping.
*/

package core

import (
	"errors"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/cratenet/core/dht"
	"github.com/cratenet/core/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// mockTransport records dials and requests and lets tests script failures.
type mockTransport struct {
	sync.Mutex

	localID   []byte
	events    chan Event
	dialed    [][]byte         // node IDs in dial order
	dialErr   map[string]error // scripted dial failures per node ID
	requests  []Message        // all requests sent
	reqErr    map[string]error // scripted request failures per node ID
	connected map[string]bool  // scripted IsConnected results
	known     map[string]int   // count of AddKnownAddresses calls per node ID
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		localID:   []byte{0},
		events:    make(chan Event, 64),
		dialErr:   make(map[string]error),
		reqErr:    make(map[string]error),
		connected: make(map[string]bool),
		known:     make(map[string]int),
	}
}

func (m *mockTransport) LocalIdentifier() []byte { return m.localID }

func (m *mockTransport) Dial(nodeID []byte, addresses []*net.UDPAddr) error {
	m.Lock()
	defer m.Unlock()
	m.dialed = append(m.dialed, nodeID)
	return m.dialErr[string(nodeID)]
}

func (m *mockTransport) SendRequest(nodeID []byte, message Message) (Message, error) {
	m.Lock()
	defer m.Unlock()
	m.requests = append(m.requests, message)
	if err := m.reqErr[string(nodeID)]; err != nil {
		return Message{}, err
	}
	return Message{}, nil
}

func (m *mockTransport) IsConnected(nodeID []byte) bool {
	m.Lock()
	defer m.Unlock()
	return m.connected[string(nodeID)]
}

func (m *mockTransport) AddKnownAddresses(nodeID []byte, addresses []*net.UDPAddr) {
	m.Lock()
	defer m.Unlock()
	m.known[string(nodeID)]++
}

func (m *mockTransport) Events() <-chan Event { return m.events }

func (m *mockTransport) dialCount(nodeID []byte) (count int) {
	m.Lock()
	defer m.Unlock()
	for _, dialed := range m.dialed {
		if string(dialed) == string(nodeID) {
			count++
		}
	}
	return count
}

var errDialRefused = errors.New("connection refused")

// newTestBackend assembles a backend around the mock transport and a mock clock. No event loop is
// running; tests drive handlers directly, the way the loop would.
func newTestBackend(t *testing.T) (*Backend, *mockTransport, *clock.Mock) {
	config, _, err := LoadConfig("")
	require.NoError(t, err)
	config.LogFile = ""
	config.SeedList = nil
	config.EnableUPnP = false

	log := logrus.New()
	log.SetOutput(io.Discard)

	transport := newMockTransport()

	backend := &Backend{
		Config:          config,
		clock:           clock.NewMock(),
		transport:       transport,
		log:             log,
		nodeID:          transport.localID,
		dialedPeers:     make(map[string]struct{}),
		peerList:        make(map[string]*PeerInfo),
		upnpResult:      make(chan upnpProbeOutcome, 1),
		livenessResults: make(chan livenessResult, 64),
		terminateSignal: make(chan struct{}),
	}
	backend.initFilters()
	backend.Blacklist = &BlacklistDB{Database: store.NewMemoryStore()}
	backend.peerStore = store.NewMemoryStore()

	backend.table = dht.NewRoutingTable(&dht.Node{ID: backend.nodeID}, 8, config.BucketSize)
	backend.table.ReplacementCacheSize = config.ReplacementCacheSize
	backend.table.StalePeriod = config.StalePeriod()
	backend.table.OnMutation = backend.routingMutation

	backend.dialManager = newDialManager(backend)
	backend.natProbe = newNatProbe(config.NatSamples)

	return backend, transport, backend.clock.(*clock.Mock)
}

func testContact(id byte, port int) *Contact {
	return &Contact{
		NodeID:    []byte{id},
		Addresses: []*net.UDPAddr{{IP: net.ParseIP("192.0.2.1"), Port: port}},
	}
}
