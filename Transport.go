/*
File Name:  Transport.go
Copyright:  2024 Cratenet s.r.o.

Boundary to the wire transport. The routing core defines no on-wire byte
format; it only layers policy on top of whatever request/response and identity
messages the transport already carries.
*/

package core

import (
	"net"
	"time"
)

// ConnectionDirection indicates who initiated a connection.
type ConnectionDirection int

const (
	DirectionInbound ConnectionDirection = iota
	DirectionOutbound
)

// MessageType identifies a policy-level request. The encoding is up to the transport.
type MessageType int

const (
	// MessagePing is a liveness probe. Any response proves the peer alive.
	MessagePing MessageType = iota

	// MessageDoNotDisturb asks the peer to suppress dial-back retries towards us for the given duration.
	MessageDoNotDisturb
)

// Message is a policy-level request or response exchanged with a peer.
type Message struct {
	Type     MessageType
	Duration time.Duration // MessageDoNotDisturb only
	Payload  []byte
}

// Transport is the collaborator carrying connections and messages. Implementations live outside
// this core (stream multiplexing, encryption handshake, wire codec).
type Transport interface {
	// LocalIdentifier returns the transport's view of the local node ID.
	LocalIdentifier() []byte

	// Dial attempts to establish a connection to the peer at any of the given addresses.
	// Progress is reported asynchronously through the event stream.
	Dial(nodeID []byte, addresses []*net.UDPAddr) error

	// SendRequest sends a request to a connected peer and blocks until the response or an error.
	SendRequest(nodeID []byte, message Message) (response Message, err error)

	// IsConnected checks whether a live connection to the peer exists.
	IsConnected(nodeID []byte) bool

	// AddKnownAddresses makes additional addresses of the peer available to the dialer.
	AddKnownAddresses(nodeID []byte, addresses []*net.UDPAddr)

	// Events is the stream of network events. It is closed when the transport shuts down.
	Events() <-chan Event
}

// Event is a network event from the transport. It is a closed union; the concrete types below
// are the only implementations.
type Event interface {
	isEvent()
}

// EventConnectionEstablished reports a new connection to a peer.
type EventConnectionEstablished struct {
	NodeID       []byte
	Direction    ConnectionDirection
	Address      *net.UDPAddr // Remote address of the connection
	ConnectionID uint64       // Unique per connection, used to attribute later events to it
}

// EventConnectionClosed reports that a connection to a peer ended.
type EventConnectionClosed struct {
	NodeID       []byte
	ConnectionID uint64
	Reason       error // nil for a clean shutdown
}

// EventIdentityReceived reports an identity push from a peer: its protocol version, advertised
// addresses and the address it observed us under.
type EventIdentityReceived struct {
	NodeID          []byte
	ConnectionID    uint64
	ProtocolVersion string
	AgentVersion    string
	Addresses       []*net.UDPAddr
	ObservedAddress *net.UDPAddr // The (IP, port) the remote peer reports observing for us. May be nil.
	Capabilities    []string
}

// EventDialFailed reports that a dial to a peer failed.
type EventDialFailed struct {
	NodeID []byte
	Err    error
}

func (EventConnectionEstablished) isEvent() {}
func (EventConnectionClosed) isEvent()      {}
func (EventIdentityReceived) isEvent()      {}
func (EventDialFailed) isEvent()            {}
