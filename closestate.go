package http2

import "sync/atomic"

// sessionCloseState is the Session-wide (not per-stream) shutdown state. It is monotone and
// CAS-driven: once CLOSED, no other state is reachable, and GOAWAY/transport-close effects are
// applied exactly once no matter how many goroutines race to close the session.
//
// https://tools.ietf.org/html/rfc7540#section-6.8
type sessionCloseState int32

const (
	sessionNotClosed sessionCloseState = iota
	// sessionLocallyClosed: this side sent GOAWAY and shut its output side once that was
	// flushed; it keeps reading frames for streams already open below the advertised
	// last-stream-id but writes no further frames.
	sessionLocallyClosed
	// sessionRemotelyClosed: the peer sent GOAWAY; mirrors sessionLocallyClosed from the other
	// side.
	sessionRemotelyClosed
	// sessionClosed: both halves down, or the transport died outright. Terminal.
	sessionClosed
)

func (cs sessionCloseState) String() string {
	switch cs {
	case sessionNotClosed:
		return "open"
	case sessionLocallyClosed:
		return "locally-closed"
	case sessionRemotelyClosed:
		return "remotely-closed"
	case sessionClosed:
		return "closed"
	}
	return "unknown"
}

// closeTracker is an embeddable CAS state holder for the four-state session close machine.
type closeTracker struct {
	state int32
}

func (ct *closeTracker) load() sessionCloseState {
	return sessionCloseState(atomic.LoadInt32(&ct.state))
}

// closeLocal transitions toward sessionLocallyClosed (or straight to sessionClosed if the
// remote half was already closed), returning true the first time this half is closed.
func (ct *closeTracker) closeLocal() (transitioned bool, now sessionCloseState) {
	for {
		cur := sessionCloseState(atomic.LoadInt32(&ct.state))
		var next sessionCloseState
		switch cur {
		case sessionNotClosed:
			next = sessionLocallyClosed
		case sessionRemotelyClosed:
			next = sessionClosed
		default:
			return false, cur
		}
		if atomic.CompareAndSwapInt32(&ct.state, int32(cur), int32(next)) {
			return true, next
		}
	}
}

// closeRemote transitions sessionNotClosed -> sessionRemotelyClosed only, per spec §4.1's GOAWAY
// handling: "if currently NOT_CLOSED, transition ... Otherwise ignore." A GOAWAY received while
// already LOCALLY_CLOSED (this side's own graceful close already in flight) does not escalate to
// sessionClosed here — that transition belongs to the transport-FIN/idle-timeout rows of the
// §4.3 table, not to receiving a second GOAWAY.
func (ct *closeTracker) closeRemote() (transitioned bool) {
	return atomic.CompareAndSwapInt32(&ct.state, int32(sessionNotClosed), int32(sessionRemotelyClosed))
}

// forceClose jumps straight to sessionClosed regardless of current state (used on a fatal
// transport error), reporting whether this call was the one that performed the transition.
func (ct *closeTracker) forceClose() bool {
	for {
		cur := sessionCloseState(atomic.LoadInt32(&ct.state))
		if cur == sessionClosed {
			return false
		}
		if atomic.CompareAndSwapInt32(&ct.state, int32(cur), int32(sessionClosed)) {
			return true
		}
	}
}

func (ct *closeTracker) isClosed() bool {
	return ct.load() == sessionClosed
}
