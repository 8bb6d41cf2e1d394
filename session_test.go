package http2

import (
	"bufio"
	"bytes"
	"errors"
	"testing"
)

func newTestSession(t *testing.T, transport *fakeTransport, isServer bool) *Session {
	t.Helper()
	cfg := DefaultConfig()
	s, err := NewSession(transport, cfg, isServer)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func firstFrame(t *testing.T, raw []byte) *FrameHeader {
	t.Helper()
	br := bufio.NewReader(bytes.NewReader(raw))
	fh, err := ReadFrameFrom(br)
	if err != nil {
		t.Fatalf("expected at least one frame, got error: %s", err)
	}
	return fh
}

// TestSessionHandlePingRepliesWithAck checks RFC 7540 §6.7: a non-ACK PING must be answered with
// an ACK PING carrying the same payload, and submitted to the priority lane (see handlePing).
func TestSessionHandlePingRepliesWithAck(t *testing.T) {
	transport := &fakeTransport{}
	s := newTestSession(t, transport, true)

	fh := AcquireFrameHeader()
	fh.SetStream(0)
	ping := AcquireFrame(FramePing).(*Ping)
	ping.SetData([]byte("12345678"))
	fh.SetBody(ping)

	if err := s.HandleFrame(fh); err != nil {
		t.Fatal(err)
	}
	ReleaseFrameHeader(fh)
	s.flusher.Stop()

	out := firstFrame(t, transport.buf.Bytes())
	reply, ok := out.Body().(*Ping)
	if !ok {
		t.Fatalf("expected a PING reply, got %s", out.Type())
	}
	if !reply.ack {
		t.Fatal("expected the reply PING to carry the ACK flag")
	}
	if string(reply.Data()) != "12345678" {
		t.Fatalf("expected the reply to echo the ping payload, got %q", reply.Data())
	}
}

// TestSessionHandlePingAckDoesNotReply checks that an ACK PING (our own measurement coming back)
// is reported to the listener but never re-replied to, avoiding a reply storm.
func TestSessionHandlePingAckDoesNotReply(t *testing.T) {
	transport := &fakeTransport{}
	var seen [8]byte
	s := newTestSession(t, transport, true)
	s.listener = &Listener{OnPing: func(data [8]byte) { seen = data }}

	fh := AcquireFrameHeader()
	fh.SetStream(0)
	ping := AcquireFrame(FramePing).(*Ping)
	ping.SetData([]byte("abcdefgh"))
	ping.ack = true
	fh.SetBody(ping)

	if err := s.HandleFrame(fh); err != nil {
		t.Fatal(err)
	}
	ReleaseFrameHeader(fh)
	s.flusher.Stop()

	if transport.buf.Len() != 0 {
		t.Fatal("expected no reply to an ACK ping")
	}
	if string(seen[:]) != "abcdefgh" {
		t.Fatalf("expected OnPing to observe the ack payload, got %q", seen)
	}
}

// TestSessionHandleSettingsAcksAndAppliesInitialWindow checks RFC 7540 §6.5.3: a non-ACK SETTINGS
// frame is applied (here, INITIAL_WINDOW_SIZE shifts every open stream's send window) and then
// acknowledged with an empty, ACK-flagged SETTINGS frame.
func TestSessionHandleSettingsAcksAndAppliesInitialWindow(t *testing.T) {
	transport := &fakeTransport{}
	s := newTestSession(t, transport, true)

	stream, err := s.getOrCreatePeerStream(1)
	if err != nil {
		t.Fatal(err)
	}
	before := stream.SendWindow()

	st := AcquireFrame(FrameSettings).(*Settings)
	st.SetInitialWindowSize(DefaultInitialWindowSize + 1000)

	fh := AcquireFrameHeader()
	fh.SetStream(0)
	fh.SetBody(st)

	if err := s.HandleFrame(fh); err != nil {
		t.Fatal(err)
	}
	ReleaseFrameHeader(fh)
	s.flusher.Stop()

	if got, want := stream.SendWindow(), before+1000; got != want {
		t.Fatalf("expected stream send window to shift by +1000, got %d want %d", got, want)
	}

	out := firstFrame(t, transport.buf.Bytes())
	ack, ok := out.Body().(*Settings)
	if !ok {
		t.Fatalf("expected a SETTINGS ack, got %s", out.Type())
	}
	if !ack.IsAck() {
		t.Fatal("expected the SETTINGS reply to carry the ACK flag")
	}
}

// TestSessionCloseEmitsGoAway checks that Close submits a GOAWAY carrying the highest accepted
// peer stream id and the given code, and cannot be called twice.
func TestSessionCloseEmitsGoAway(t *testing.T) {
	transport := &fakeTransport{}
	s := newTestSession(t, transport, true)

	if _, err := s.getOrCreatePeerStream(3); err != nil {
		t.Fatal(err)
	}

	if err := s.Close(ErrCodeNo, "bye"); err != nil {
		t.Fatal(err)
	}

	out := firstFrame(t, transport.buf.Bytes())
	ga, ok := out.Body().(*GoAway)
	if !ok {
		t.Fatalf("expected a GOAWAY frame, got %s", out.Type())
	}
	if ga.Stream() != 3 {
		t.Fatalf("expected GOAWAY to carry last-accepted-stream-id 3, got %d", ga.Stream())
	}
	if ga.Code() != ErrCodeNo {
		t.Fatalf("expected GOAWAY code %v, got %v", ErrCodeNo, ga.Code())
	}

	if err := s.Close(ErrCodeNo, "again"); err != ErrSessionClosed {
		t.Fatalf("expected a second Close to report ErrSessionClosed, got %v", err)
	}
}

// TestSessionAbortClosesTransportAndStreams checks the unrecoverable-fault path: Abort jumps to
// the closed state regardless of current state, tears down every open stream, and closes the
// transport without emitting further frames.
func TestSessionAbortClosesTransportAndStreams(t *testing.T) {
	transport := &fakeTransport{}
	s := newTestSession(t, transport, true)

	if _, err := s.getOrCreatePeerStream(1); err != nil {
		t.Fatal(err)
	}

	var closedErr error
	s.listener = &Listener{OnClosed: func(err error) { closedErr = err }}

	boom := errors.New("boom")
	s.Abort(boom)

	if !s.close.isClosed() {
		t.Fatal("expected Abort to force the session into the closed state")
	}
	if !transport.closed {
		t.Fatal("expected Abort to close the transport")
	}
	if s.streams.Len() != 0 {
		t.Fatalf("expected Abort to clear the stream registry, got %d streams left", s.streams.Len())
	}
	if closedErr != boom {
		t.Fatalf("expected OnClosed to observe the aborting error, got %v", closedErr)
	}

	// A second Abort must be a safe no-op (forceClose returns false once already closed).
	s.Abort(errors.New("ignored"))
}

// TestSessionHandleFrameErrorResetsJustTheStream checks the two-tier error policy: a *StreamError
// resets only the offending stream via RST_STREAM and the session stays open.
func TestSessionHandleFrameErrorResetsJustTheStream(t *testing.T) {
	transport := &fakeTransport{}
	s := newTestSession(t, transport, true)

	if _, err := s.getOrCreatePeerStream(5); err != nil {
		t.Fatal(err)
	}

	s.HandleFrameError(NewStreamError(5, ErrCodeProtocol))

	if s.close.isClosed() {
		t.Fatal("a StreamError must not close the whole session")
	}
	if s.streams.Get(5) != nil {
		t.Fatal("expected the offending stream to be removed from the registry")
	}
	s.flusher.Stop()

	out := firstFrame(t, transport.buf.Bytes())
	rst, ok := out.Body().(*RstStream)
	if !ok {
		t.Fatalf("expected an RST_STREAM, got %s", out.Type())
	}
	if rst.Code() != ErrCodeProtocol {
		t.Fatalf("expected RST_STREAM code %v, got %v", ErrCodeProtocol, rst.Code())
	}
}

// TestSessionHandleFrameErrorClosesOnConnectionError checks that a *ConnectionError tears down
// the whole session via GOAWAY instead of resetting a single stream.
func TestSessionHandleFrameErrorClosesOnConnectionError(t *testing.T) {
	transport := &fakeTransport{}
	s := newTestSession(t, transport, true)

	s.HandleFrameError(NewConnError(ErrCodeProtocol, "bad frame"))

	out := firstFrame(t, transport.buf.Bytes())
	if _, ok := out.Body().(*GoAway); !ok {
		t.Fatalf("expected a GOAWAY frame, got %s", out.Type())
	}
}

// TestSessionHandleGoAwayClosesTransportViaDisconnect checks that receiving GOAWAY while
// NOT_CLOSED moves the session to remotely-closed, notifies the listener, and then drives the
// transport closed through the synthetic DISCONNECT entry rather than leaving it dangling.
func TestSessionHandleGoAwayClosesTransportViaDisconnect(t *testing.T) {
	transport := &fakeTransport{}
	s := newTestSession(t, transport, true)

	var sawLast uint32
	var sawCode ErrorCode
	s.listener = &Listener{OnGoAway: func(lastStreamID uint32, code ErrorCode, debugData []byte) {
		sawLast, sawCode = lastStreamID, code
	}}

	ga := AcquireFrame(FrameGoAway).(*GoAway)
	ga.SetStream(7)
	ga.SetCode(ErrCodeNo)

	fh := AcquireFrameHeader()
	fh.SetStream(0)
	fh.SetBody(ga)

	if err := s.HandleFrame(fh); err != nil {
		t.Fatal(err)
	}
	ReleaseFrameHeader(fh)

	// Stop is idempotent and blocks until the Flusher goroutine has actually finished, whether it
	// stopped because of this call or because it already processed the DISCONNECT entry itself.
	s.flusher.Stop()

	if sawLast != 7 || sawCode != ErrCodeNo {
		t.Fatalf("expected OnGoAway(7, %v, ...), got OnGoAway(%d, %v, ...)", ErrCodeNo, sawLast, sawCode)
	}
	if !transport.closed {
		t.Fatal("expected the synthetic DISCONNECT to close the transport")
	}
	if s.close.load() == sessionNotClosed {
		t.Fatal("expected the session to have left sessionNotClosed")
	}
}

// TestSessionCloseHalfClosesTransportOutputOnly checks that a local Close shuts down only the
// transport's write side, per RFC 7540 §6.8 (the session keeps reading until a real FIN).
func TestSessionCloseHalfClosesTransportOutputOnly(t *testing.T) {
	transport := &fakeTransport{}
	s := newTestSession(t, transport, true)

	if err := s.Close(ErrCodeNo, "bye"); err != nil {
		t.Fatal(err)
	}

	if !transport.closedWrite {
		t.Fatal("expected Close to half-close the transport's write side")
	}
	if transport.closed {
		t.Fatal("expected Close not to fully close the transport")
	}
}

// TestSessionPushAllocatesPromisedStreamAndEmitsPushPromise checks RFC 7540 §8.2.1: Push
// allocates a local-parity promised stream id, puts it straight into reserved(local) then
// half-closed(remote) (a push carries no incoming request), and emits a PUSH_PROMISE carrying
// the promised id, associated with the parent stream.
func TestSessionPushAllocatesPromisedStreamAndEmitsPushPromise(t *testing.T) {
	transport := &fakeTransport{}
	s := newTestSession(t, transport, true)

	parent, err := s.getOrCreatePeerStream(1)
	if err != nil {
		t.Fatal(err)
	}

	var pathField HeaderField
	pathField.SetKey(":path")
	pathField.SetValue("/style.css")

	promised, err := s.Push(parent, []HeaderField{pathField}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if promised.ID() != 2 {
		t.Fatalf("expected the first server-initiated push to take stream id 2, got %d", promised.ID())
	}
	if promised.State() != StreamStateHalfClosedRemote {
		t.Fatalf("expected the promised stream to be half-closed(remote) immediately, got %s", promised.State())
	}

	s.flusher.Stop()

	out := firstFrame(t, transport.buf.Bytes())
	pp, ok := out.Body().(*PushPromise)
	if !ok {
		t.Fatalf("expected a PUSH_PROMISE frame, got %s", out.Type())
	}
	if out.Stream() != parent.ID() {
		t.Fatalf("expected the PUSH_PROMISE frame header to carry the parent stream id %d, got %d", parent.ID(), out.Stream())
	}
	if pp.Stream() != 2 {
		t.Fatalf("expected the PUSH_PROMISE payload to carry promised stream id 2, got %d", pp.Stream())
	}
	if !pp.EndHeaders() {
		t.Fatal("expected the PUSH_PROMISE to carry END_HEADERS")
	}
}

// TestSessionPushRejectedWhenPeerDisabledPush checks that Push refuses to allocate anything once
// the peer has advertised SETTINGS_ENABLE_PUSH=0.
func TestSessionPushRejectedWhenPeerDisabledPush(t *testing.T) {
	transport := &fakeTransport{}
	s := newTestSession(t, transport, true)
	s.remoteSettings.SetEnablePush(false)

	parent, err := s.getOrCreatePeerStream(1)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Push(parent, nil, nil); err == nil {
		t.Fatal("expected Push to fail once the peer has disabled push")
	}
	if s.streams.Len() != 1 {
		t.Fatalf("expected no promised stream to have been registered, got %d streams", s.streams.Len())
	}
}

// TestSessionHandleRstStreamNotifiesListenerWhenStreamMissing checks that an RST_STREAM for an id
// this session no longer has registered still reaches Listener.OnFrameError instead of being
// dropped silently.
func TestSessionHandleRstStreamNotifiesListenerWhenStreamMissing(t *testing.T) {
	transport := &fakeTransport{}
	s := newTestSession(t, transport, true)

	var seen *StreamError
	s.listener = &Listener{OnFrameError: func(err *StreamError) { seen = err }}

	rst := AcquireFrame(FrameResetStream).(*RstStream)
	rst.SetCode(ErrCodeCancel)

	fh := AcquireFrameHeader()
	fh.SetStream(9)
	fh.SetBody(rst)

	if err := s.HandleFrame(fh); err != nil {
		t.Fatal(err)
	}
	ReleaseFrameHeader(fh)
	s.flusher.Stop()

	if seen == nil {
		t.Fatal("expected OnFrameError to fire for an RST_STREAM on an unknown stream id")
	}
	if seen.StreamID != 9 || seen.Code != ErrCodeCancel {
		t.Fatalf("expected StreamError{9, %v}, got %+v", ErrCodeCancel, seen)
	}
}
