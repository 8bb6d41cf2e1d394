package http2

import "sync"

// FlowControl is the pluggable windowing strategy a Session delegates to for every event that
// can move a send or receive window. Implementations own both the connection-level (session-wide)
// window and per-stream windows; the Session calls these hooks at the points RFC 7540 §5.2/§6.9
// require a window adjustment and otherwise stays out of the bookkeeping entirely.
//
// Grounded on MiraiMindz-watt's FlowController (connection+stream window pair, overflow/underflow
// checks, ChunkData-style windowed sends), restructured as an interface so a caller can swap in a
// buffer-aware variant (one that only grants WINDOW_UPDATE credit once the consumer has actually
// drained a buffer, rather than as soon as bytes are read off the wire) without touching Session.
type FlowControl interface {
	// onStreamCreated registers a new stream's initial send/recv windows.
	onStreamCreated(s *Stream)
	// onStreamDestroyed releases any connection-level accounting tied to s.
	onStreamDestroyed(s *Stream)

	// onDataReceived consumes n bytes from the connection receive window and, if s is non-nil,
	// from s's receive window too. s may be nil (the stream already closed locally, e.g. after a
	// local RST_STREAM, while the peer's DATA for it was still in flight) — the connection window
	// must still be debited in that case so a reset stream can't be used to starve session-level
	// flow control; only a non-nil s can turn a negative result into a *ConnectionError, since a
	// nil-stream overrun is the expected tail of a race, not a protocol violation by the peer.
	onDataReceived(s *Stream, n int) error
	// onDataConsumed is called once previously-received bytes have actually been handed to the
	// listener, so a buffer-aware strategy can defer crediting the peer back until here instead
	// of at onDataReceived time.
	onDataConsumed(s *Stream, n int) (connIncrement, streamIncrement uint32)

	// onDataSending reports how many bytes of a pending write of size want may be sent right
	// now given current windows, without mutating any window (the Flusher calls this to decide
	// how to slice a DataEntry; it commits the consumption separately via onDataSent).
	onDataSending(s *Stream, want int) int
	// onDataSent commits the consumption of n bytes against both windows after the Flusher has
	// actually handed them to the Transport.
	onDataSent(s *Stream, n int)

	// updateInitialStreamWindow applies a peer SETTINGS INITIAL_WINDOW_SIZE change: every
	// open stream's send window shifts by (newVal - oldVal) per RFC 7540 §6.9.2.
	updateInitialStreamWindow(oldVal, newVal uint32, streams *Streams) error

	// windowUpdate applies a WINDOW_UPDATE frame's increment to either the connection window
	// (stream id 0) or a specific stream's send window.
	windowUpdate(s *Stream, increment uint32) error
}

// simpleFlowControl is the default FlowControl: credits the peer back immediately as bytes are
// received (no buffering deferral), restoring each window to its initial size once consumption
// crosses 50% — matching MiraiMindz-watt's ShouldSendWindowUpdate/CalculateWindowUpdate pair.
type simpleFlowControl struct {
	mu                sync.Mutex
	connSendWindow    int64
	connRecvWindow    int64
	initialWindowSize uint32
}

// NewSimpleFlowControl builds the default FlowControl strategy with initialWindowSize applied to
// both the connection window and every new stream's window.
func NewSimpleFlowControl(initialWindowSize uint32) FlowControl {
	return &simpleFlowControl{
		connSendWindow:    int64(initialWindowSize),
		connRecvWindow:    int64(initialWindowSize),
		initialWindowSize: initialWindowSize,
	}
}

func (fc *simpleFlowControl) onStreamCreated(s *Stream) {
	fc.mu.Lock()
	init := int64(fc.initialWindowSize)
	fc.mu.Unlock()
	s.sendWindow = init
	s.recvWindow = init
}

func (fc *simpleFlowControl) onStreamDestroyed(s *Stream) {
	// no connection-level state keyed by stream id to release in the simple strategy.
}

func (fc *simpleFlowControl) onDataReceived(s *Stream, n int) error {
	if n <= 0 {
		return nil
	}

	// Debit the connection window unconditionally, even if s is nil: a stream we've already
	// dropped locally (e.g. RST_STREAM racing inbound DATA) still consumed session-wide credit
	// on the wire, and letting a reset stream escape that accounting would let a peer starve
	// the connection window by racing resets against data.
	fc.mu.Lock()
	fc.connRecvWindow -= int64(n)
	negative := fc.connRecvWindow < 0
	fc.mu.Unlock()

	if s == nil {
		return nil
	}
	if negative {
		return NewConnError(ErrCodeFlowControl, "connection receive window exceeded")
	}

	if s.RecvWindow() < int64(n) {
		return NewStreamError(s.id, ErrCodeFlowControl)
	}
	s.AddRecvWindow(-int64(n))
	return nil
}

func (fc *simpleFlowControl) onDataConsumed(s *Stream, n int) (uint32, uint32) {
	if n <= 0 {
		return 0, 0
	}

	var connIncrement uint32
	fc.mu.Lock()
	if fc.connRecvWindow < int64(fc.initialWindowSize)/2 {
		connIncrement = uint32(int64(fc.initialWindowSize) - fc.connRecvWindow)
		fc.connRecvWindow = int64(fc.initialWindowSize)
	}
	fc.mu.Unlock()

	var streamIncrement uint32
	cur := s.RecvWindow()
	if cur < int64(fc.initialWindowSize)/2 {
		streamIncrement = uint32(int64(fc.initialWindowSize) - cur)
		s.AddRecvWindow(int64(streamIncrement))
	}

	return connIncrement, streamIncrement
}

func (fc *simpleFlowControl) onDataSending(s *Stream, want int) int {
	fc.mu.Lock()
	avail := fc.connSendWindow
	fc.mu.Unlock()

	streamAvail := s.SendWindow()
	if streamAvail < avail {
		avail = streamAvail
	}
	if avail <= 0 {
		return 0
	}
	if int64(want) > avail {
		return int(avail)
	}
	return want
}

func (fc *simpleFlowControl) onDataSent(s *Stream, n int) {
	if n <= 0 {
		return
	}
	fc.mu.Lock()
	fc.connSendWindow -= int64(n)
	fc.mu.Unlock()
	s.AddSendWindow(-int64(n))
}

func (fc *simpleFlowControl) updateInitialStreamWindow(oldVal, newVal uint32, streams *Streams) error {
	delta := int64(newVal) - int64(oldVal)

	fc.mu.Lock()
	fc.initialWindowSize = newVal
	fc.mu.Unlock()

	var firstErr error
	streams.Each(func(s *Stream) {
		if firstErr != nil {
			return
		}
		if _, err := s.AddSendWindow(delta); err != nil {
			firstErr = NewStreamError(s.id, ErrCodeFlowControl)
		}
	})
	return firstErr
}

func (fc *simpleFlowControl) windowUpdate(s *Stream, increment uint32) error {
	if increment == 0 {
		if s == nil {
			return NewConnError(ErrCodeProtocol, "WINDOW_UPDATE increment of 0 on the connection")
		}
		return NewStreamError(s.id, ErrCodeProtocol)
	}

	if s == nil {
		fc.mu.Lock()
		defer fc.mu.Unlock()
		next := fc.connSendWindow + int64(increment)
		if next > int64(MaxWindowSize) {
			return NewConnError(ErrCodeFlowControl, "connection send window overflow")
		}
		fc.connSendWindow = next
		return nil
	}

	if _, err := s.AddSendWindow(int64(increment)); err != nil {
		return NewStreamError(s.id, ErrCodeFlowControl)
	}
	return nil
}
