package http2

// Listener is the set of session-lifecycle and stream-lifecycle hooks a caller can supply to
// observe engine behavior; no hook can veto it. Every field is optional; a nil hook is
// simply skipped. Each hook's doc comment states whether the Session invokes it as a Blocking or
// NonBlocking Task by default — callers that need the other behavior wrap the hook themselves and
// resubmit via their own executor.
type Listener struct {
	// OnStreamOpen fires once a stream has transitioned out of idle, after HEADERS (or PUSH_PROMISE
	// on the push side) has been accepted. Invoked as a Blocking task: the handler typically wants
	// to start producing a response before more frames for the stream arrive.
	OnStreamOpen func(s *Stream)

	// OnStreamClosed fires once a stream has been removed from the registry: both halves closed,
	// a RST_STREAM sent or received, an idle timeout, or Abort. Invoked as a NonBlocking task.
	OnStreamClosed func(s *Stream, code ErrorCode)

	// OnHeaders fires when a complete header block (HEADERS plus any CONTINUATIONs) has been
	// reassembled for a stream. Invoked as a Blocking task.
	OnHeaders func(s *Stream, fields []HeaderField, endStream bool)

	// OnData fires for each DATA frame after flow-control bookkeeping has been applied. Invoked
	// as a Blocking task so the handler can apply backpressure by not returning promptly.
	OnData func(s *Stream, data []byte, endStream bool)

	// OnPriority fires when a PRIORITY frame (or HEADERS carrying priority fields) updates a
	// stream's position in the dependency tree. Invoked as a NonBlocking task.
	OnPriority func(s *Stream, dependsOn uint32, weight uint8, exclusive bool)

	// OnPing fires when the peer's ACK for one of this side's PINGs arrives, with its payload.
	// A non-ACK PING from the peer is answered automatically and does not fire it. Invoked as a
	// NonBlocking task.
	OnPing func(data [8]byte)

	// OnGoAway fires when the peer begins graceful shutdown. Invoked as a Blocking task so a
	// caller can stop issuing new requests before returning.
	OnGoAway func(lastStreamID uint32, code ErrorCode, debugData []byte)

	// OnSettingsChanged fires after a non-ACK SETTINGS frame from the peer has been applied.
	// Invoked as a NonBlocking task.
	OnSettingsChanged func(s *Settings)

	// OnClosed fires when Close has flushed its GOAWAY and shut the transport's output (err is
	// CloseWrite's result), and when Abort forces the session to sessionClosed. A session closed
	// with Close and later aborted sees it twice. Invoked as a NonBlocking task.
	OnClosed func(err error)

	// OnFrameError fires for a recoverable per-frame decode/validation error that was turned
	// into a stream-level RST_STREAM rather than tearing down the whole session, and for a
	// RST_STREAM received on a stream id the registry no longer holds (no RST_STREAM is sent
	// then). Invoked as a NonBlocking task, useful for logging/metrics.
	OnFrameError func(err *StreamError)
}

func (l *Listener) streamOpen(s *Stream, exec func(func()), log Logger) {
	if l == nil || l.OnStreamOpen == nil {
		return
	}
	dispatch(BlockingTask(func() { l.OnStreamOpen(s) }), exec, log)
}

func (l *Listener) streamClosed(s *Stream, code ErrorCode, exec func(func()), log Logger) {
	if l == nil || l.OnStreamClosed == nil {
		return
	}
	dispatch(NonBlockingTask(func() { l.OnStreamClosed(s, code) }), exec, log)
}

func (l *Listener) headers(s *Stream, fields []HeaderField, endStream bool, exec func(func()), log Logger) {
	if l == nil || l.OnHeaders == nil {
		return
	}
	dispatch(BlockingTask(func() { l.OnHeaders(s, fields, endStream) }), exec, log)
}

func (l *Listener) data(s *Stream, b []byte, endStream bool, exec func(func()), log Logger) {
	if l == nil || l.OnData == nil {
		return
	}
	dispatch(BlockingTask(func() { l.OnData(s, b, endStream) }), exec, log)
}

func (l *Listener) priority(s *Stream, dependsOn uint32, weight uint8, exclusive bool, exec func(func()), log Logger) {
	if l == nil || l.OnPriority == nil {
		return
	}
	dispatch(NonBlockingTask(func() { l.OnPriority(s, dependsOn, weight, exclusive) }), exec, log)
}

func (l *Listener) ping(data [8]byte, exec func(func()), log Logger) {
	if l == nil || l.OnPing == nil {
		return
	}
	dispatch(NonBlockingTask(func() { l.OnPing(data) }), exec, log)
}

func (l *Listener) goAway(lastStreamID uint32, code ErrorCode, debugData []byte, exec func(func()), log Logger) {
	if l == nil || l.OnGoAway == nil {
		return
	}
	dispatch(BlockingTask(func() { l.OnGoAway(lastStreamID, code, debugData) }), exec, log)
}

func (l *Listener) settingsChanged(s *Settings, exec func(func()), log Logger) {
	if l == nil || l.OnSettingsChanged == nil {
		return
	}
	dispatch(NonBlockingTask(func() { l.OnSettingsChanged(s) }), exec, log)
}

func (l *Listener) closed(err error, exec func(func()), log Logger) {
	if l == nil || l.OnClosed == nil {
		return
	}
	dispatch(NonBlockingTask(func() { l.OnClosed(err) }), exec, log)
}

func (l *Listener) frameError(err *StreamError, exec func(func()), log Logger) {
	if l == nil || l.OnFrameError == nil {
		return
	}
	dispatch(NonBlockingTask(func() { l.OnFrameError(err) }), exec, log)
}
