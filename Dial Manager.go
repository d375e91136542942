/*
File Name:  Dial Manager.go
Copyright:  2024 Cratenet s.r.o.

The dial manager drives the reachability workflow: a bounded set of concurrent
dial-back attempts, terminal results per peer, and a rotating cursor over the
bootstrap contacts that never repeats a contact within one workflow attempt.
All state is owned by the event loop; no method here is safe for concurrent use.
*/

package core

import (
	"math/rand"
	"net"
	"time"

	"github.com/google/uuid"
)

// dialCandidate is a peer waiting for a free slot in the workflow.
type dialCandidate struct {
	contact     *Contact
	supportsDND bool
	resets      int
}

// DialManager is the state of one reachability workflow.
type DialManager struct {
	backend *Backend

	// WorkflowID identifies the current workflow attempt. AttemptCounter increments on every restart.
	WorkflowID     uuid.UUID
	AttemptCounter int

	maxAttempts int           // concurrency cap, enforced before an attempt is created
	delay       time.Duration // dial-back delay D

	active   map[string]*dialAttempt // peers in Initiated or Connected, keyed by node ID
	queue    []*dialCandidate        // candidates waiting for a slot
	outcomes map[string]DialOutcome  // terminal results per peer for the whole workflow

	contactOrder  []*Contact // pseudo-random permutation of the usable bootstrap contacts
	contactCursor int

	startedAny         bool // at least one attempt was created in this workflow
	everPartialSuccess bool // some peer reached Connected or DialBackReceived
	completedReported  bool
}

func newDialManager(backend *Backend) (dm *DialManager) {
	dm = &DialManager{
		backend:     backend,
		WorkflowID:  uuid.New(),
		maxAttempts: backend.Config.DialConcurrency,
		delay:       backend.Config.DialBackDelay(),
		active:      make(map[string]*dialAttempt),
		outcomes:    make(map[string]DialOutcome),
	}
	dm.AttemptCounter = 1
	dm.shuffleContacts()
	return dm
}

// shuffleContacts draws a fresh pseudo-random order over the bootstrap contacts.
func (dm *DialManager) shuffleContacts() {
	contacts := dm.backend.contacts
	dm.contactOrder = make([]*Contact, len(contacts))
	for i, j := range rand.Perm(len(contacts)) {
		dm.contactOrder[i] = contacts[j]
	}
	dm.contactCursor = 0
}

// Enqueue registers a peer for reachability verification. Re-announcing a peer that is already
// queued or under evaluation restarts its delay timer; after maxDialResets the anti-thrash rule
// applies instead: peers supporting do-not-disturb are silenced with a request, others are dialed
// immediately so the backlog cannot grow with the delay.
func (dm *DialManager) Enqueue(contact *Contact, supportsDND bool) {
	key := string(contact.NodeID)
	now := dm.backend.clock.Now()

	if dm.outcomes[key] == OutcomeSuccessfulDialBack {
		return
	}

	if attempt, ok := dm.active[key]; ok {
		if attempt.silenced {
			return
		}
		if supportsDND {
			attempt.supportsDND = true
		}
		attempt.addresses = mergeAddresses(attempt.addresses, contact.Addresses)

		attempt.resets++
		if attempt.resets < maxDialResets {
			attempt.restartDelay(now)
			return
		}

		if attempt.supportsDND {
			dm.sendDoNotDisturb(contact.NodeID)
			attempt.silenced = true
		} else {
			// Dial right away instead of restarting the delay once more.
			if err := dm.backend.transport.Dial(contact.NodeID, attempt.addresses); err != nil {
				dm.HandleDialError(contact.NodeID, err)
			}
		}
		return
	}

	for i, candidate := range dm.queue {
		if string(candidate.contact.NodeID) != key {
			continue
		}

		if supportsDND {
			candidate.supportsDND = true
		}
		candidate.contact.Addresses = mergeAddresses(candidate.contact.Addresses, contact.Addresses)

		candidate.resets++
		if candidate.resets >= maxDialResets {
			if candidate.supportsDND {
				dm.sendDoNotDisturb(candidate.contact.NodeID)
				dm.queue = append(dm.queue[:i], dm.queue[i+1:]...)
			} else {
				// Move to the front so the next free slot dials it immediately.
				dm.queue = append(dm.queue[:i], dm.queue[i+1:]...)
				dm.queue = append([]*dialCandidate{candidate}, dm.queue...)
			}
		}
		dm.fillSlots()
		return
	}

	dm.queue = append(dm.queue, &dialCandidate{contact: contact, supportsDND: supportsDND})
	dm.fillSlots()
}

// mergeAddresses merges new addresses into the list, de-duplicated. A re-announcing peer must not
// grow the list without bound.
func mergeAddresses(existing []*net.UDPAddr, added []*net.UDPAddr) []*net.UDPAddr {
loopNew:
	for _, addressNew := range added {
		if addressNew == nil {
			continue
		}
		for _, addressExist := range existing {
			if addressExist.IP.Equal(addressNew.IP) && addressExist.Port == addressNew.Port {
				continue loopNew
			}
		}
		existing = append(existing, addressNew)
	}
	return existing
}

// sendDoNotDisturb asks the peer to stop re-announcing for a while. Sent from a Go routine since
// SendRequest blocks and the caller runs on the event loop.
func (dm *DialManager) sendDoNotDisturb(nodeID []byte) {
	transport := dm.backend.transport
	backend := dm.backend
	go func() {
		if _, err := transport.SendRequest(nodeID, Message{Type: MessageDoNotDisturb, Duration: dndDuration}); err != nil {
			backend.LogWarn("sendDoNotDisturb", "requesting do-not-disturb: %v\n", err)
		}
	}()
}

// fillSlots starts new attempts until the concurrency cap is reached, drawing first from the
// queue, then from the bootstrap contact cursor.
func (dm *DialManager) fillSlots() {
	for len(dm.active) < dm.maxAttempts {
		var candidate *dialCandidate

		if len(dm.queue) > 0 {
			candidate, dm.queue = dm.queue[0], dm.queue[1:]
		} else if contact := dm.nextContact(); contact != nil {
			candidate = &dialCandidate{contact: contact}
		} else {
			return
		}

		dm.startAttempt(candidate)
	}
}

// nextContact advances the cursor over the contact permutation. A contact is never returned twice
// within one workflow attempt.
func (dm *DialManager) nextContact() *Contact {
	for dm.contactCursor < len(dm.contactOrder) {
		contact := dm.contactOrder[dm.contactCursor]
		dm.contactCursor++

		key := string(contact.NodeID)
		if _, ok := dm.active[key]; ok {
			continue
		}
		if dm.outcomes[key] != OutcomeNone {
			continue
		}
		if dm.backend.table.Get(contact.NodeID) != nil {
			continue
		}
		if dm.backend.Blacklist.IsBlocked(contact.NodeID) {
			continue
		}

		return contact
	}
	return nil
}

func (dm *DialManager) startAttempt(candidate *dialCandidate) {
	key := string(candidate.contact.NodeID)

	attempt := newDialAttempt(candidate.contact.NodeID, candidate.contact.Addresses, candidate.supportsDND, dm.backend.clock.Now())
	attempt.resets = candidate.resets
	dm.active[key] = attempt
	dm.startedAny = true

	dm.backend.transport.AddKnownAddresses(candidate.contact.NodeID, candidate.contact.Addresses)
	if err := dm.backend.transport.Dial(candidate.contact.NodeID, candidate.contact.Addresses); err != nil {
		dm.handleDialErrorLocked(key, err)
	}
}

// HandleConnectionEstablished moves the peer's attempt from Initiated to Connected. Connections
// where we are not the dialer do not advance the state.
func (dm *DialManager) HandleConnectionEstablished(nodeID []byte) {
	attempt, ok := dm.active[string(nodeID)]
	if !ok {
		return
	}

	if !attempt.connected(dm.backend.clock.Now()) {
		dm.backend.LogWarn("HandleConnectionEstablished", "illegal transition to connected from state '%s' for node %x\n", attempt.state, nodeID)
		return
	}

	dm.everPartialSuccess = true
}

// HandleDialBackSignal processes a dial-back confirmation (inbound connection or identity push)
// for a peer under evaluation. It reports whether the attempt concluded successfully; a signal
// arriving before the delay elapsed is ignored.
func (dm *DialManager) HandleDialBackSignal(nodeID []byte) (confirmed bool) {
	key := string(nodeID)
	attempt, ok := dm.active[key]
	if !ok {
		return false
	}

	ok, tooEarly := attempt.confirmDialBack(dm.backend.clock.Now(), dm.delay)
	if tooEarly {
		dm.backend.LogWarn("HandleDialBackSignal", "dial-back from node %x arrived before the delay elapsed, not yet valid\n", nodeID)
		return false
	}
	if !ok {
		return false
	}

	dm.everPartialSuccess = true
	dm.recordOutcome(key, OutcomeSuccessfulDialBack)
	delete(dm.active, key)
	dm.fillSlots()
	return true
}

// HandleDialError concludes the peer's attempt with the error outcome. Errors are the weakest
// outcome; a success or timeout recorded later for the same peer overrides them.
func (dm *DialManager) HandleDialError(nodeID []byte, err error) {
	key := string(nodeID)
	if _, ok := dm.active[key]; !ok {
		return
	}

	dm.backend.LogInfo("HandleDialError", "dial to node %x failed: %v\n", nodeID, err)
	dm.handleDialErrorLocked(key, err)
}

func (dm *DialManager) handleDialErrorLocked(key string, err error) {
	dm.recordOutcome(key, OutcomeErrorDuringDial)
	delete(dm.active, key)
	dm.fillSlots()
}

// Abandon drops the peer's attempt without recording an outcome, e.g. when its bucket was filled
// by a competing admission. Other in-flight attempts are unaffected.
func (dm *DialManager) Abandon(nodeID []byte) {
	key := string(nodeID)
	if _, ok := dm.active[key]; !ok {
		return
	}

	delete(dm.active, key)
	dm.fillSlots()
}

// Sweep times out overdue attempts and reports workflow completion once.
func (dm *DialManager) Sweep() {
	now := dm.backend.clock.Now()

	for key, attempt := range dm.active {
		outcome, timedOut := attempt.timedOut(now, dm.delay)
		if !timedOut {
			continue
		}

		dm.recordOutcome(key, outcome)
		delete(dm.active, key)
	}

	dm.fillSlots()

	if dm.startedAny && dm.Completed() && !dm.completedReported {
		dm.completedReported = true
		faulty := dm.AreWeFaulty()
		if faulty {
			dm.backend.LogWarn("Sweep", "reachability workflow %s completed: node never demonstrated inbound reachability\n", dm.WorkflowID)
		}
		dm.backend.Filters.DialWorkflowDone(faulty)
	}
}

// recordOutcome stores a terminal result, honoring the precedence rule: an error never
// overwrites an existing outcome, every other outcome overwrites an error.
func (dm *DialManager) recordOutcome(key string, outcome DialOutcome) {
	if existing := dm.outcomes[key]; existing != OutcomeNone && outcome == OutcomeErrorDuringDial {
		return
	}
	dm.outcomes[key] = outcome
}

// Outcome returns the terminal result recorded for the peer in this workflow.
func (dm *DialManager) Outcome(nodeID []byte) DialOutcome {
	return dm.outcomes[string(nodeID)]
}

// Completed checks the workflow completion predicate: no peer remains in Initiated and every
// peer that reached Connected has either timed out or confirmed the dial-back.
func (dm *DialManager) Completed() bool {
	return len(dm.active) == 0 && len(dm.queue) == 0
}

// AreWeFaulty is the self-fault predicate: after completion, the local node is considered faulty
// if no peer across the entire workflow ever reached Connected or DialBackReceived. A single
// partial success anywhere exonerates it.
func (dm *DialManager) AreWeFaulty() bool {
	return !dm.everPartialSuccess
}

// Restart begins a fresh workflow attempt: new attempt counter, cleared dial state, reshuffled
// contact cursor.
func (dm *DialManager) Restart() {
	dm.WorkflowID = uuid.New()
	dm.AttemptCounter++
	dm.active = make(map[string]*dialAttempt)
	dm.queue = nil
	dm.outcomes = make(map[string]DialOutcome)
	dm.startedAny = false
	dm.everPartialSuccess = false
	dm.completedReported = false
	dm.shuffleContacts()
	dm.fillSlots()
}

// ContactsExhausted checks whether the bootstrap cursor has no contacts left to hand out.
func (dm *DialManager) ContactsExhausted() bool {
	return dm.contactCursor >= len(dm.contactOrder)
}
