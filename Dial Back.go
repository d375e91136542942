/*
File Name:  Dial Back.go
Copyright:  2024 Cratenet s.r.o.

Per-peer state machine for reachability verification. A peer is dialed, and
once the outbound connection stands, the peer is expected to independently dial
us back (or push its identity again) after a deliberate delay. The delay lets
prior NAT mappings expire, so a confirmation arriving after it proves the peer
can reach us without an existing mapping.
*/

package core

import (
	"net"
	"time"
)

const (
	// DialTimeoutInitiated is T1: the maximum time to wait for the outbound connection.
	DialTimeoutInitiated = 30 * time.Second

	// DialTimeoutConnected is added to the dial-back delay D to form T2: the maximum time in
	// Connected before the attempt times out.
	DialTimeoutConnected = 20 * time.Second

	// MaxDialAttempts bounds how many peers may be under reachability evaluation at once.
	MaxDialAttempts = 5

	// maxDialResets is the number of times an attempt's delay timer may be restarted before the
	// anti-thrash rule applies.
	maxDialResets = 3

	// dndDuration is the do-not-disturb period requested from peers that support it.
	dndDuration = time.Hour
)

// DialState is the phase of a single reachability attempt.
type DialState int

const (
	// DialStateInitiated: we dialed the peer and wait for the connection.
	DialStateInitiated DialState = iota

	// DialStateConnected: the outbound connection stands; we wait for the peer's dial-back.
	DialStateConnected

	// DialStateDialBackReceived: terminal success.
	DialStateDialBackReceived
)

func (s DialState) String() string {
	switch s {
	case DialStateInitiated:
		return "initiated"
	case DialStateConnected:
		return "connected"
	case DialStateDialBackReceived:
		return "dial-back received"
	}
	return "invalid"
}

// DialOutcome is the terminal result of a reachability attempt within one workflow.
type DialOutcome int

const (
	OutcomeNone DialOutcome = iota

	// OutcomeErrorDuringDial is the weakest outcome. Any later outcome for the same peer overrides it.
	OutcomeErrorDuringDial

	OutcomeTimedOutOnInitiated
	OutcomeTimedOutAfterConnecting
	OutcomeSuccessfulDialBack
)

func (o DialOutcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeErrorDuringDial:
		return "error during dial"
	case OutcomeTimedOutOnInitiated:
		return "timed out on initiated"
	case OutcomeTimedOutAfterConnecting:
		return "timed out after connecting"
	case OutcomeSuccessfulDialBack:
		return "successful dial-back"
	}
	return "invalid"
}

// dialAttempt is the state of one peer under reachability evaluation.
type dialAttempt struct {
	nodeID    []byte
	addresses []*net.UDPAddr

	state       DialState
	started     time.Time // entered Initiated
	connectedAt time.Time // entered Connected

	// resets counts how often the attempt was re-announced and its delay timer restarted.
	resets int

	// supportsDND indicates the peer advertised the do-not-disturb capability.
	supportsDND bool

	// silenced means a do-not-disturb request was sent; the attempt is no longer touched on re-announcements.
	silenced bool
}

func newDialAttempt(nodeID []byte, addresses []*net.UDPAddr, supportsDND bool, now time.Time) *dialAttempt {
	return &dialAttempt{
		nodeID:      nodeID,
		addresses:   addresses,
		state:       DialStateInitiated,
		started:     now,
		supportsDND: supportsDND,
	}
}

// connected transitions Initiated -> Connected. Any other transition into Connected is illegal;
// the state machine never moves backward.
func (attempt *dialAttempt) connected(now time.Time) (ok bool) {
	if attempt.state != DialStateInitiated {
		return false
	}

	attempt.state = DialStateConnected
	attempt.connectedAt = now
	return true
}

// confirmDialBack transitions Connected -> DialBackReceived, but only if the delay has fully
// elapsed since entering Connected. An earlier confirmation is not yet valid: the NAT mapping
// from our own outbound dial may still be open, proving nothing.
func (attempt *dialAttempt) confirmDialBack(now time.Time, delay time.Duration) (ok bool, tooEarly bool) {
	if attempt.state != DialStateConnected {
		return false, false
	}

	if now.Sub(attempt.connectedAt) < delay {
		return false, true
	}

	attempt.state = DialStateDialBackReceived
	return true, false
}

// restartDelay restarts the dial-back delay timer after a re-announcement.
func (attempt *dialAttempt) restartDelay(now time.Time) {
	if attempt.state == DialStateConnected {
		attempt.connectedAt = now
	}
}

// timedOut checks whether the attempt exceeded its phase timeout. T1 applies in Initiated,
// delay+T2 in Connected.
func (attempt *dialAttempt) timedOut(now time.Time, delay time.Duration) (outcome DialOutcome, timedOut bool) {
	switch attempt.state {
	case DialStateInitiated:
		if now.Sub(attempt.started) >= DialTimeoutInitiated {
			return OutcomeTimedOutOnInitiated, true
		}
	case DialStateConnected:
		if now.Sub(attempt.connectedAt) >= delay+DialTimeoutConnected {
			return OutcomeTimedOutAfterConnecting, true
		}
	}
	return OutcomeNone, false
}
