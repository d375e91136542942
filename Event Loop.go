/*
File Name:  Event Loop.go
Copyright:  2024 Cratenet s.r.o.

The single goroutine that owns all mutable reachability and NAT state. Transport
events, gateway probe results, liveness replies and timers are all funneled
here, so the dial manager and the NAT probe need no locking of their own.
*/

package core

import (
	"time"

	"github.com/cratenet/core/dht"
)

const (
	// dialSweepInterval is how often pending dial attempts are checked for timeouts.
	dialSweepInterval = time.Second

	// staleRefreshDivisor: the table is swept for stale entries a few times per stale period.
	staleRefreshDivisor = 4
)

// run is the event loop. It terminates when Disconnect is called or the transport closes its
// event stream.
func (backend *Backend) run() {
	if backend.Config.EnableUPnP {
		go func() {
			status, err := probeGateway(backend.Config.ListenPort)
			select {
			case backend.upnpResult <- upnpProbeOutcome{status: status, err: err}:
			case <-backend.terminateSignal:
			}
		}()
	} else {
		backend.startAddressTriangulation()
	}

	backend.dialManager.fillSlots()

	sweepTicker := backend.clock.Ticker(dialSweepInterval)
	defer sweepTicker.Stop()
	staleTicker := backend.clock.Ticker(backend.Config.StalePeriod() / staleRefreshDivisor)
	defer staleTicker.Stop()

	for {
		select {
		case event, ok := <-backend.transport.Events():
			if !ok {
				return
			}
			backend.handleTransportEvent(event)

		case outcome := <-backend.upnpResult:
			if outcome.err == nil {
				backend.publishNatStatus(outcome.status)
			} else {
				backend.LogInfo("run", "gateway probe failed (%v), falling back to address triangulation\n", outcome.err)
				backend.startAddressTriangulation()
			}

		case result := <-backend.livenessResults:
			backend.table.LivenessResult(result.nodeID, result.success)

		case <-sweepTicker.C:
			backend.dialManager.Sweep()
			backend.maybeRestartWorkflow()

		case <-staleTicker.C:
			for _, node := range backend.table.RefreshStaleEntries() {
				backend.probeLiveness(node)
			}

		case <-backend.terminateSignal:
			return
		}
	}
}

func (backend *Backend) handleTransportEvent(event Event) {
	switch event := event.(type) {
	case EventConnectionEstablished:
		if event.Direction == DirectionInbound {
			backend.natProbe.recordInbound(event.ConnectionID)

			// An unsolicited inbound connection from a peer under evaluation is its dial-back.
			if backend.dialManager.HandleDialBackSignal(event.NodeID) {
				if peer := backend.PeerlistLookup(event.NodeID); peer != nil {
					backend.AdmitPeer(peer, peer.Addresses())
				}
			}
		} else {
			backend.dialedPeers[string(event.NodeID)] = struct{}{}
			backend.dialManager.HandleConnectionEstablished(event.NodeID)
		}
		backend.table.UpdateStatus(event.NodeID, dht.StatusConnected)

	case EventConnectionClosed:
		if !backend.transport.IsConnected(event.NodeID) {
			backend.table.UpdateStatus(event.NodeID, dht.StatusDisconnected)
		}

	case EventIdentityReceived:
		if event.ObservedAddress != nil {
			if status, done := backend.natProbe.recordObservation(event.NodeID, event.ConnectionID, event.ObservedAddress); done {
				backend.publishNatStatus(status)
			}
		}
		backend.handleIdentityReceived(event)

	case EventDialFailed:
		backend.dialManager.HandleDialError(event.NodeID, event.Err)
	}
}

// startAddressTriangulation begins NAT phase B, unless a verdict exists already.
func (backend *Backend) startAddressTriangulation() {
	if _, valid := backend.NatStatus(); valid {
		return
	}
	backend.natProbe.startTriangulation()
}

// maybeRestartWorkflow starts the reachability workflow over when it ran out of contacts without
// the local node ever demonstrating inbound reachability.
func (backend *Backend) maybeRestartWorkflow() {
	if len(backend.contacts) == 0 {
		return
	}
	if !backend.dialManager.Completed() || !backend.dialManager.ContactsExhausted() {
		return
	}
	if !backend.dialManager.AreWeFaulty() {
		return
	}

	backend.LogInfo("maybeRestartWorkflow", "reachability workflow attempt %d exhausted without success, restarting\n", backend.dialManager.AttemptCounter)
	backend.dialManager.Restart()
}

// probeLiveness sends a ping to the node off-loop and feeds the result back in. The node is
// protected from eviction while the probe is in flight.
func (backend *Backend) probeLiveness(node *dht.Node) {
	backend.table.MarkQuerying(node.ID)

	go func(nodeID []byte) {
		_, err := backend.transport.SendRequest(nodeID, Message{Type: MessagePing})
		select {
		case backend.livenessResults <- livenessResult{nodeID: nodeID, success: err == nil}:
		case <-backend.terminateSignal:
		}
	}(node.ID)
}
