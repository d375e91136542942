/*
File Name:  Dial Back_test.go
Copyright:  2024 Cratenet s.r.o.
*/

package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialAttemptTransitions(t *testing.T) {
	now := time.Now()
	attempt := newDialAttempt([]byte{1}, nil, false, now)

	require.Equal(t, DialStateInitiated, attempt.state)
	assert.True(t, attempt.connected(now))
	assert.Equal(t, DialStateConnected, attempt.state)

	// The machine never moves backward or repeats a transition.
	assert.False(t, attempt.connected(now), "connected is only reachable from initiated")

	ok, _ := attempt.confirmDialBack(now.Add(200*time.Second), 180*time.Second)
	require.True(t, ok)
	assert.Equal(t, DialStateDialBackReceived, attempt.state)

	ok, tooEarly := attempt.confirmDialBack(now.Add(300*time.Second), 180*time.Second)
	assert.False(t, ok)
	assert.False(t, tooEarly, "terminal state accepts no further transitions")
}

// A dial-back 170 seconds after connecting must be rejected when the delay is 180 seconds, without
// harming the attempt. The same signal 10 seconds later is valid.
func TestDialBackDelayGuard(t *testing.T) {
	start := time.Now()
	delay := 180 * time.Second

	attempt := newDialAttempt([]byte{1}, nil, false, start)
	require.True(t, attempt.connected(start))

	ok, tooEarly := attempt.confirmDialBack(start.Add(170*time.Second), delay)
	assert.False(t, ok)
	assert.True(t, tooEarly)
	assert.Equal(t, DialStateConnected, attempt.state, "an early signal does not change state")

	ok, tooEarly = attempt.confirmDialBack(start.Add(180*time.Second), delay)
	assert.True(t, ok)
	assert.False(t, tooEarly)
}

func TestDialAttemptTimeouts(t *testing.T) {
	start := time.Now()
	delay := 180 * time.Second

	attempt := newDialAttempt([]byte{1}, nil, false, start)

	outcome, timedOut := attempt.timedOut(start.Add(DialTimeoutInitiated-time.Second), delay)
	assert.False(t, timedOut)
	assert.Equal(t, OutcomeNone, outcome)

	outcome, timedOut = attempt.timedOut(start.Add(DialTimeoutInitiated), delay)
	assert.True(t, timedOut)
	assert.Equal(t, OutcomeTimedOutOnInitiated, outcome)

	// Once connected, the clock runs against delay + T2 from the connection time.
	attempt = newDialAttempt([]byte{1}, nil, false, start)
	require.True(t, attempt.connected(start.Add(10*time.Second)))

	_, timedOut = attempt.timedOut(start.Add(10*time.Second).Add(delay+DialTimeoutConnected-time.Second), delay)
	assert.False(t, timedOut)

	outcome, timedOut = attempt.timedOut(start.Add(10*time.Second).Add(delay+DialTimeoutConnected), delay)
	assert.True(t, timedOut)
	assert.Equal(t, OutcomeTimedOutAfterConnecting, outcome)
}

// Restarting the delay timer pushes both the earliest valid dial-back and the timeout forward.
func TestDialAttemptRestartDelay(t *testing.T) {
	start := time.Now()
	delay := 180 * time.Second

	attempt := newDialAttempt([]byte{1}, nil, false, start)
	require.True(t, attempt.connected(start))

	attempt.restartDelay(start.Add(100 * time.Second))

	ok, tooEarly := attempt.confirmDialBack(start.Add(200*time.Second), delay)
	assert.False(t, ok)
	assert.True(t, tooEarly, "delay counts from the restart")

	ok, _ = attempt.confirmDialBack(start.Add(280*time.Second), delay)
	assert.True(t, ok)
}
