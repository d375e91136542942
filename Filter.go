/*
File Name:  Filter.go
Copyright:  2024 Cratenet s.r.o.

Filters allow the caller to intercept events to log or act on. The functions
are called sequentially and block the event loop; a filter that takes a long
time should start a Go routine.
*/

package core

import (
	"github.com/cratenet/core/dht"
)

// Filters contains all hook functions of a backend. Unset functions are replaced with blanks at Init.
type Filters struct {
	// NewPeer is called every time a peer is admitted that was not in the routing table before.
	NewPeer func(peer *PeerInfo)

	// RoutingMutation is called for every routing table change (peer added/updated/removed, with bucket index).
	RoutingMutation func(event dht.MutationEvent)

	// NatStatusVerdict is called exactly once, when the NAT classification concludes.
	NatStatusVerdict func(status NatStatus)

	// DialWorkflowDone is called when the reachability workflow completes. faulty indicates that the
	// local node never demonstrated any inbound reachability and startup may be aborted.
	DialWorkflowDone func(faulty bool)
}

func (backend *Backend) initFilters() {
	// Set default filters to blank functions so they can be safely called without constant nil checks.
	// Only if not already set before Init.

	if backend.Filters.NewPeer == nil {
		backend.Filters.NewPeer = func(peer *PeerInfo) {}
	}
	if backend.Filters.RoutingMutation == nil {
		backend.Filters.RoutingMutation = func(event dht.MutationEvent) {}
	}
	if backend.Filters.NatStatusVerdict == nil {
		backend.Filters.NatStatusVerdict = func(status NatStatus) {}
	}
	if backend.Filters.DialWorkflowDone == nil {
		backend.Filters.DialWorkflowDone = func(faulty bool) {}
	}
}
