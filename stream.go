package http2

import (
	"sync"
	"sync/atomic"
)

// StreamState is the RFC 7540 §5.1 stream lifecycle state.
type StreamState int8

const (
	StreamStateIdle StreamState = iota
	StreamStateReservedLocal
	StreamStateReservedRemote
	StreamStateOpen
	StreamStateHalfClosedLocal
	StreamStateHalfClosedRemote
	StreamStateClosed
)

func (ss StreamState) String() string {
	switch ss {
	case StreamStateIdle:
		return "idle"
	case StreamStateReservedLocal:
		return "reserved(local)"
	case StreamStateReservedRemote:
		return "reserved(remote)"
	case StreamStateOpen:
		return "open"
	case StreamStateHalfClosedLocal:
		return "half-closed(local)"
	case StreamStateHalfClosedRemote:
		return "half-closed(remote)"
	case StreamStateClosed:
		return "closed"
	}
	return "unknown"
}

// closeState tracks which half(s) of a stream have been closed, independent of StreamState,
// so a RST_STREAM or an end-of-stream flag from either side can be applied exactly once without
// the two racing transitions clobbering each other.
type closeState int32

const (
	closeStateOpen closeState = iota
	closeStateLocal
	closeStateRemote
	closeStateBoth // == fully closed
)

// Stream is one HTTP/2 stream's local bookkeeping: state, half-close tracking, and its
// per-stream flow-control windows. All mutation goes through atomics or the embedded mutex so a
// Stream can be read from the Flusher goroutine and the inbound dispatch goroutine concurrently.
//
// https://tools.ietf.org/html/rfc7540#section-5.1
type Stream struct {
	id uint32

	// session is the Session that created this stream, set once before the stream is ever
	// visible outside Session and never mutated afterward — a caller-facing equivalent of the
	// opaque data slot below, letting collaborators like fasthttpbridge recover the Session a
	// Stream belongs to without needing a field of their own per connection.
	session *Session

	mu    sync.Mutex
	state StreamState

	// close is CAS-driven independently of state so "did remote half-close already happen"
	// can be answered without taking mu, mirroring the session-level close-state machine.
	close int32

	// sendWindow is this stream's outbound credit, adjusted by WINDOW_UPDATE frames received
	// from the peer and by the peer's SETTINGS INITIAL_WINDOW_SIZE deltas. May go negative per RFC
	// 7540 §6.9.2 when a SETTINGS delta shrinks it under in-flight data.
	sendWindow int64
	// recvWindow is this stream's inbound credit already granted to the peer; consumed as DATA
	// arrives and replenished by emitting WINDOW_UPDATE.
	recvWindow int64

	// data is caller-supplied per-stream context (e.g. a request/response pair), opaque to the
	// engine.
	data interface{}

	// dependency, weight and exclusive record this stream's RFC 7540 §5.3 priority. Until a
	// PRIORITY frame or priority-carrying HEADERS sets them, dependency is 0 and weight is 16;
	// once set, weight holds the frame's wire value (0-255).
	dependency uint32
	weight     uint8
	exclusive  bool

	// idleCancel cancels this stream's pending idle-timeout callback (see Session.armStreamIdle/
	// resetStreamIdle in idletimer.go); nil once the stream is closed or idle timeouts are off.
	idleCancel func()
}

// NewStream constructs a Stream in the idle state with the given initial windows.
func NewStream(id uint32, initialSendWindow, initialRecvWindow int64, data interface{}) *Stream {
	return &Stream{
		id:         id,
		state:      StreamStateIdle,
		sendWindow: initialSendWindow,
		recvWindow: initialRecvWindow,
		weight:     16, // RFC 7540 §5.3.5 default weight
		data:       data,
	}
}

func (s *Stream) ID() uint32 { return s.id }

// Session returns the Session that owns this stream.
func (s *Stream) Session() *Session { return s.session }

func (s *Stream) State() StreamState {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()
	return st
}

func (s *Stream) setState(state StreamState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// isValidTransition reports whether moving from cur to next is legal per the RFC 7540 §5.1 state
// diagram. Transition reports a move outside this table as a STREAM_CLOSED stream error.
func isValidTransition(cur, next StreamState) bool {
	if cur == next {
		return true
	}
	switch cur {
	case StreamStateIdle:
		switch next {
		case StreamStateOpen, StreamStateReservedLocal, StreamStateReservedRemote:
			return true
		}
	case StreamStateReservedLocal:
		switch next {
		case StreamStateHalfClosedRemote, StreamStateClosed:
			return true
		}
	case StreamStateReservedRemote:
		switch next {
		case StreamStateHalfClosedLocal, StreamStateClosed:
			return true
		}
	case StreamStateOpen:
		switch next {
		case StreamStateHalfClosedLocal, StreamStateHalfClosedRemote, StreamStateClosed:
			return true
		}
	case StreamStateHalfClosedLocal:
		switch next {
		case StreamStateClosed:
			return true
		}
	case StreamStateHalfClosedRemote:
		switch next {
		case StreamStateClosed:
			return true
		}
	}
	return false
}

// Transition attempts to move the stream to next, returning a StreamError if the RFC table
// forbids it.
func (s *Stream) Transition(next StreamState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !isValidTransition(s.state, next) {
		return NewStreamError(s.id, ErrCodeStreamClosed)
	}
	s.state = next
	return nil
}

// closeLocal marks the local half closed, moving Open->HalfClosedLocal or either
// half-closed/reserved state straight to Closed once both halves are down.
func (s *Stream) closeLocal() {
	for {
		cur := atomic.LoadInt32(&s.close)
		next := cur | int32(closeStateLocal)
		if atomic.CompareAndSwapInt32(&s.close, cur, next) {
			s.applyCloseTransition(closeState(next))
			return
		}
	}
}

func (s *Stream) closeRemote() {
	for {
		cur := atomic.LoadInt32(&s.close)
		next := cur | int32(closeStateRemote)
		if atomic.CompareAndSwapInt32(&s.close, cur, next) {
			s.applyCloseTransition(closeState(next))
			return
		}
	}
}

func (s *Stream) applyCloseTransition(cs closeState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch cs {
	case closeStateLocal:
		if s.state == StreamStateOpen {
			s.state = StreamStateHalfClosedLocal
		}
	case closeStateRemote:
		if s.state == StreamStateOpen {
			s.state = StreamStateHalfClosedRemote
		}
	case closeStateBoth:
		s.state = StreamStateClosed
	}
}

// IsClosed reports whether both halves are closed.
func (s *Stream) IsClosed() bool {
	return closeState(atomic.LoadInt32(&s.close)) == closeStateBoth
}

func (s *Stream) SendWindow() int64 {
	s.mu.Lock()
	w := s.sendWindow
	s.mu.Unlock()
	return w
}

// AddSendWindow applies delta (positive from WINDOW_UPDATE, positive or negative from a
// SETTINGS INITIAL_WINDOW_SIZE change) and returns the resulting value. Per RFC 7540 §6.9.1 the
// result must never exceed 2^31-1; overflow is reported so the caller can turn it into a
// FLOW_CONTROL_ERROR RST_STREAM.
func (s *Stream) AddSendWindow(delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.sendWindow + delta
	if next > int64(MaxWindowSize) {
		return s.sendWindow, ErrWindowOverflow
	}
	s.sendWindow = next
	return next, nil
}

func (s *Stream) RecvWindow() int64 {
	s.mu.Lock()
	w := s.recvWindow
	s.mu.Unlock()
	return w
}

func (s *Stream) AddRecvWindow(delta int64) int64 {
	s.mu.Lock()
	s.recvWindow += delta
	w := s.recvWindow
	s.mu.Unlock()
	return w
}

func (s *Stream) Data() interface{} { return s.data }

func (s *Stream) SetData(v interface{}) {
	s.mu.Lock()
	s.data = v
	s.mu.Unlock()
}

// setIdleCancel replaces the stream's outstanding idle-timer cancel func, canceling whatever was
// previously armed. Called under the Session's idle-timer bookkeeping, never concurrently with
// itself for the same stream (see Session.resetStreamIdle).
func (s *Stream) setIdleCancel(cancel func()) {
	s.mu.Lock()
	prev := s.idleCancel
	s.idleCancel = cancel
	s.mu.Unlock()
	if prev != nil {
		prev()
	}
}

// cancelIdle stops any pending idle-timeout callback, used once the stream closes so a late
// timer firing is a safe no-op rather than a leaked goroutine wakeup.
func (s *Stream) cancelIdle() {
	s.mu.Lock()
	cancel := s.idleCancel
	s.idleCancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Stream) Dependency() (streamID uint32, weight uint8, exclusive bool) {
	s.mu.Lock()
	streamID, weight, exclusive = s.dependency, s.weight, s.exclusive
	s.mu.Unlock()
	return
}

func (s *Stream) SetDependency(streamID uint32, weight uint8, exclusive bool) {
	s.mu.Lock()
	s.dependency, s.weight, s.exclusive = streamID, weight, exclusive
	s.mu.Unlock()
}
