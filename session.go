package http2

import (
	"sync"
	"sync/atomic"
	"unicode/utf8"
)

// connection preface per RFC 7540 §3.5.
var connectionPreface = []byte("PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n")

// ReadPreface reads and validates the connection preface from r, consuming exactly
// len(connectionPreface) bytes on success.
func ReadPreface(r interface{ Read([]byte) (int, error) }) bool {
	buf := make([]byte, len(connectionPreface))
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return false
		}
	}
	for i := range buf {
		if buf[i] != connectionPreface[i] {
			return false
		}
	}
	return true
}

// Session is one HTTP/2 connection's engine: inbound frame dispatch, the stream registry, flow
// control, and the Flusher that owns all outbound writes. A Session never reads from or parses
// the wire itself — decoded *FrameHeader values arrive via HandleFrame from an external reader
// loop (see conn.go), keeping the codec and transport pluggable per Config.
type Session struct {
	cfg    *Config
	server bool

	transport Transport
	codecEnc  HeaderCodec
	codecDec  HeaderCodec
	fc        FlowControl
	flusher   *Flusher
	streams   *Streams
	limiter   *priorityLimiter
	// priTree is nil unless Config.EnablePriorityTree is set; handlePriority/handleHeaders and
	// stream teardown skip the tree bookkeeping entirely when nil.
	priTree *priorityTree

	localSettings  Settings
	remoteSettings Settings

	close closeTracker

	// nextStreamID is the id this side will assign to the next self-initiated stream. Allocation
	// and registry insertion happen together under newStreamMu so two concurrent NewStream
	// calls can never race to claim the same id.
	newStreamMu  chan struct{} // 1-buffered mutex substitute kept consistent with Flusher's channel-free style
	nextStreamID uint32        // atomic
	lastPeerID   uint32        // atomic, highest stream id accepted from the peer

	// reassembly holds in-progress HEADERS blocks awaiting CONTINUATION frames, keyed by stream
	// id. A PUSH_PROMISE's header block is neither reassembled nor decoded.
	reassembly map[uint32]*headerReassembly

	listener *Listener
	log      Logger

	scheduler Scheduler

	// idleMu guards the three session-scoped timer cancel funcs below; each is replaced (and the
	// previous one canceled) whenever the corresponding event reschedules it. See idletimer.go.
	idleMu           sync.Mutex
	sessionIdleCancel func()
	settingsAckCancel func()
	pingCancel        func()
}

type headerReassembly struct {
	block     []byte
	endStream bool
}

// NewSession builds a Session over transport. isServer selects stream-id parity: servers assign
// even ids to pushed streams and expect odd ids from the client; clients do the reverse.
func NewSession(transport Transport, cfg *Config, isServer bool) (*Session, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	codec := cfg.HeaderCodec
	if codec == nil {
		codec = NewHPACKCodec(cfg.HeaderTableSize)
	}

	s := &Session{
		cfg:        cfg,
		server:     isServer,
		transport:  transport,
		codecEnc:   codec,
		codecDec:   codec,
		fc:         cfg.FlowControl,
		streams:    NewStreams(),
		limiter:    newPriorityLimiter(cfg.MaxPriorityUpdatesPerSecond, cfg.PriorityRateLimitWindow),
		reassembly: make(map[uint32]*headerReassembly),
		listener:   cfg.Listener,
		log:        cfg.Logger,
	}
	if cfg.EnablePriorityTree {
		s.priTree = newPriorityTree()
	}
	s.localSettings.Reset()
	s.localSettings.SetHeaderTableSize(cfg.HeaderTableSize)
	s.localSettings.SetEnablePush(cfg.EnablePush)
	s.localSettings.SetMaxConcurrentStreams(cfg.MaxConcurrentStreams)
	s.localSettings.SetInitialWindowSize(cfg.InitialWindowSize)
	s.localSettings.SetMaxFrameSize(cfg.MaxFrameSize)
	if cfg.MaxHeaderListSize > 0 {
		s.localSettings.SetMaxHeaderListSize(cfg.MaxHeaderListSize)
	}
	s.remoteSettings.Reset()

	if isServer {
		s.nextStreamID = 2
	} else {
		s.nextStreamID = 1
	}

	s.flusher = NewFlusher(transport, s.fc, cfg.MaxFrameSize, s.log, cfg.BufferPool)
	s.newStreamMu = make(chan struct{}, 1)
	s.newStreamMu <- struct{}{}

	s.scheduler = cfg.Scheduler
	if s.scheduler == nil {
		s.scheduler = NewDefaultScheduler()
	}
	s.resetSessionIdle()

	return s, nil
}

func (s *Session) lock()   { <-s.newStreamMu }
func (s *Session) unlock() { s.newStreamMu <- struct{}{} }

func (s *Session) exec(fn func()) {
	if s.cfg.Executor != nil {
		s.cfg.Executor(fn)
	} else {
		fn()
	}
}

// NewStream allocates the next local stream id and registers it in one atomic step (lock → bump
// → insert → unlock), then submits the opening HEADERS frame through the Flusher. This is the
// "atomic allocate-and-enqueue" invariant: another goroutine calling NewStream concurrently can
// never observe a gap or a reused id, because the Flusher submission happens while the
// allocation lock is still held.
func (s *Session) NewStream(fields []HeaderField, endStream bool, data interface{}) (*Stream, error) {
	s.lock()
	defer s.unlock()

	if s.close.isClosed() {
		return nil, ErrSessionClosed
	}
	if uint32(s.streams.Len()) >= s.remoteMaxConcurrentStreams() {
		return nil, ErrTooManyStreams
	}

	id := atomic.LoadUint32(&s.nextStreamID)
	atomic.AddUint32(&s.nextStreamID, 2)

	stream := s.newLocalStream(id, int64(s.remoteSettingsInitialWindow()), int64(s.cfg.InitialWindowSize))
	stream.SetData(data)
	s.fc.onStreamCreated(stream)
	if err := s.streams.Insert(stream); err != nil {
		return nil, err
	}
	if s.priTree != nil {
		s.priTree.add(id, 0, 15, false)
	}
	if err := stream.Transition(StreamStateOpen); err != nil {
		return nil, err
	}

	if err := s.SendHeaders(stream, fields, endStream); err != nil {
		return nil, err
	}

	s.armStreamIdle(stream)
	s.listener.streamOpen(stream, s.cfg.Executor, s.log)
	return stream, nil
}

// Push originates a server push: under the same allocation lock as NewStream, assigns the next
// local stream id to the promised stream and submits its PUSH_PROMISE frame (associated with
// parent) in one atomic step, so a concurrent NewStream/Push can never observe a gap or land its
// frame out of numeric order. RFC 7540 §8.2.1 puts a freshly promised stream straight into
// reserved (local); since a push carries no incoming request to wait on, this call also closes
// the stream's remote half immediately, leaving only the response for the caller to send via
// SendHeaders/SendData.
func (s *Session) Push(parent *Stream, fields []HeaderField, data interface{}) (*Stream, error) {
	s.lock()
	defer s.unlock()

	if s.close.isClosed() {
		return nil, ErrSessionClosed
	}
	if !s.remoteSettings.EnablePush {
		return nil, NewConnError(ErrCodeProtocol, "push attempted with push disabled by peer")
	}
	if uint32(s.streams.Len()) >= s.remoteMaxConcurrentStreams() {
		return nil, ErrTooManyStreams
	}

	id := atomic.LoadUint32(&s.nextStreamID)
	atomic.AddUint32(&s.nextStreamID, 2)

	stream := s.newLocalStream(id, int64(s.remoteSettingsInitialWindow()), int64(s.cfg.InitialWindowSize))
	stream.SetData(data)
	s.fc.onStreamCreated(stream)
	if err := s.streams.Insert(stream); err != nil {
		return nil, err
	}
	if s.priTree != nil {
		s.priTree.add(id, parent.ID(), 15, false)
	}
	if err := stream.Transition(StreamStateReservedLocal); err != nil {
		return nil, err
	}

	pp := &PushPromise{}
	pp.SetStream(id)
	pp.SetEndHeaders(true)
	pp.SetHeader(s.codecEnc.Encode(nil, fields))

	fh := AcquireFrameHeader()
	fh.SetStream(parent.ID())
	fh.SetBody(pp)
	if err := s.flusher.Submit(fh); err != nil {
		return nil, err
	}

	if err := stream.Transition(StreamStateHalfClosedRemote); err != nil {
		return nil, err
	}
	stream.closeRemote()

	s.armStreamIdle(stream)
	s.listener.streamOpen(stream, s.cfg.Executor, s.log)
	return stream, nil
}

func (s *Session) remoteMaxConcurrentStreams() uint32 {
	if s.remoteSettings.MaxConcurrentStreams == 0 {
		return DefaultMaxConcurrentStreams
	}
	return s.remoteSettings.MaxConcurrentStreams
}

func (s *Session) remoteSettingsInitialWindow() uint32 {
	if s.remoteSettings.HasInitialWindowSize() {
		return s.remoteSettings.InitialWindowSize
	}
	return DefaultInitialWindowSize
}

// SendHeaders queues a HEADERS frame carrying fields for stream — the outbound counterpart to
// the headers a HeaderPolicy/Listener observes inbound, used both to originate a new stream's
// request headers (see NewStream) and to reply with response headers on a peer-originated stream.
func (s *Session) SendHeaders(stream *Stream, fields []HeaderField, endStream bool) error {
	h := &Headers{}
	h.SetEndHeaders(true)
	h.SetEndStream(endStream)
	h.SetHeaders(s.codecEnc.Encode(nil, fields))

	fh := AcquireFrameHeader()
	fh.SetStream(stream.ID())
	fh.SetBody(h)
	return s.flusher.SubmitHeaders(fh, stream, endStream)
}

// SendData queues a DATA write for stream.
func (s *Session) SendData(stream *Stream, data []byte, endStream bool) error {
	if s.close.isClosed() {
		return ErrSessionClosed
	}
	return s.flusher.SubmitData(stream, data, endStream)
}

// SendPriority emits a PRIORITY frame re-parenting stream under dependsOn.
func (s *Session) SendPriority(stream *Stream, dependsOn uint32, weight uint8, exclusive bool) error {
	p := &Priority{}
	p.SetStream(dependsOn)
	p.SetExclusive(exclusive)
	p.SetWeight(weight)

	fh := AcquireFrameHeader()
	fh.SetStream(stream.ID())
	fh.SetBody(p)
	return s.flusher.Submit(fh)
}

// Ping submits a PING frame carrying data, which must not be an ack (the Session answers peer
// pings automatically in HandleFrame).
func (s *Session) Ping(data [8]byte) error {
	p := &Ping{}
	p.SetData(data[:])
	fh := AcquireFrameHeader()
	fh.SetStream(0)
	fh.SetBody(p)
	if err := s.flusher.SubmitPriority(fh); err != nil {
		return err
	}
	s.armPingTimeout()
	return nil
}

// maxGoAwayDebugLen is the cap on a GOAWAY frame's debug data, per this repo's own choice (RFC
// 7540 doesn't mandate a limit, but an unbounded debug string is a trivial amplification vector).
const maxGoAwayDebugLen = 32

// truncateReasonUTF8 shortens reason to at most maxGoAwayDebugLen bytes without splitting a
// multi-byte UTF-8 codepoint, walking backward from the cut point to the nearest rune boundary.
func truncateReasonUTF8(reason string) []byte {
	b := []byte(reason)
	if len(b) <= maxGoAwayDebugLen {
		return b
	}
	cut := maxGoAwayDebugLen
	for cut > 0 && !utf8.RuneStart(b[cut]) {
		cut--
	}
	return b[:cut]
}

// Close begins graceful shutdown: emits GOAWAY with the highest peer stream id accepted so far
// and code/reason, then — once the Flusher drains — shuts down the transport's output side only.
// Per spec §4.3's LOCALLY_CLOSED row, reads are left open: this side keeps accepting inbound
// frames for streams already open below the advertised last-stream-id until a real transport FIN
// arrives (handled by Conn.Serve's read loop, which is untouched by this call).
func (s *Session) Close(code ErrorCode, reason string) error {
	transitioned, _ := s.close.closeLocal()
	if !transitioned {
		return ErrSessionClosed
	}

	ga := &GoAway{}
	ga.SetStream(atomic.LoadUint32(&s.lastPeerID))
	ga.SetCode(code)
	ga.SetData(truncateReasonUTF8(reason))

	fh := AcquireFrameHeader()
	fh.SetStream(0)
	fh.SetBody(ga)
	if err := s.flusher.Submit(fh); err != nil {
		return err
	}

	s.flusher.Stop()
	s.cancelIdleTimers()
	err := s.transport.CloseWrite()
	s.listener.closed(err, s.cfg.Executor, s.log)
	return err
}

// HandleFrame is the inbound dispatch entrypoint: an external reader loop (conn.go) decodes one
// FrameHeader at a time off the wire and passes it here. Grounded on dgrr-http2/serverConn.go's
// handleStreams switch, generalized to this repo's Stream/FlowControl/Flusher types and to the
// full RFC 7540 §6 per-type semantics (serverConn.go's switch was mostly println stubs).
func (s *Session) HandleFrame(fh *FrameHeader) error {
	if s.close.isClosed() {
		return ErrSessionClosed
	}

	s.resetSessionIdle()

	streamID := fh.Stream()
	if streamID != 0 {
		for {
			cur := atomic.LoadUint32(&s.lastPeerID)
			if streamID <= cur || (s.isLocalID(streamID) && streamID != 0) {
				break
			}
			if atomic.CompareAndSwapUint32(&s.lastPeerID, cur, streamID) {
				break
			}
		}
	}

	switch body := fh.Body().(type) {
	case *Headers:
		return s.handleHeaders(fh, body)
	case *Continuation:
		return s.handleContinuation(fh, body)
	case *Data:
		return s.handleData(fh, body)
	case *Priority:
		return s.handlePriority(fh, body)
	case *RstStream:
		return s.handleRstStream(fh, body)
	case *Settings:
		return s.handleSettings(body)
	case *PushPromise:
		return s.handlePushPromise(fh, body)
	case *Ping:
		return s.handlePing(body)
	case *GoAway:
		return s.handleGoAway(body)
	case *WindowUpdate:
		return s.handleWindowUpdate(fh, body)
	}
	return nil
}

// isLocalID reports whether id has this side's parity (i.e. a stream we opened, not the peer).
func (s *Session) isLocalID(id uint32) bool {
	if s.server {
		return id&1 == 0
	}
	return id&1 == 1
}

func (s *Session) getOrCreatePeerStream(id uint32) (*Stream, error) {
	if stream := s.streams.Get(id); stream != nil {
		return stream, nil
	}
	if uint32(s.streams.Len()) >= s.cfg.MaxConcurrentStreams {
		return nil, NewStreamError(id, ErrCodeRefusedStream)
	}
	stream := s.newRemoteStream(id, int64(s.remoteSettingsInitialWindow()), int64(s.cfg.InitialWindowSize))
	s.fc.onStreamCreated(stream)
	if err := s.streams.Insert(stream); err != nil {
		return nil, err
	}
	for {
		cur := atomic.LoadUint32(&s.lastPeerID)
		if id <= cur || atomic.CompareAndSwapUint32(&s.lastPeerID, cur, id) {
			break
		}
	}
	if s.priTree != nil {
		s.priTree.add(id, 0, 15, false)
	}
	s.armStreamIdle(stream)
	return stream, nil
}

// newLocalStream builds a Stream this side is originating, deferring to cfg.StreamFactory when
// the caller supplied one.
func (s *Session) newLocalStream(id uint32, sendWindow, recvWindow int64) *Stream {
	var stream *Stream
	if s.cfg.StreamFactory != nil {
		stream = s.cfg.StreamFactory.NewLocalStream(id, sendWindow, recvWindow)
	} else {
		stream = NewStream(id, sendWindow, recvWindow, nil)
	}
	stream.session = s
	return stream
}

// newRemoteStream builds a Stream the peer is originating, deferring to cfg.StreamFactory when
// the caller supplied one.
func (s *Session) newRemoteStream(id uint32, sendWindow, recvWindow int64) *Stream {
	var stream *Stream
	if s.cfg.StreamFactory != nil {
		stream = s.cfg.StreamFactory.NewRemoteStream(id, sendWindow, recvWindow)
	} else {
		stream = NewStream(id, sendWindow, recvWindow, nil)
	}
	stream.session = s
	return stream
}

func (s *Session) handleHeaders(fh *FrameHeader, h *Headers) error {
	stream, err := s.getOrCreatePeerStream(fh.Stream())
	if err != nil {
		return err
	}
	opened := stream.State() == StreamStateIdle
	if err := stream.Transition(StreamStateOpen); err != nil {
		return err
	}
	if opened {
		s.listener.streamOpen(stream, s.cfg.Executor, s.log)
	}
	if h.Weight() > 0 {
		stream.SetDependency(h.Stream(), h.Weight(), h.Exclusive())
		if s.priTree != nil {
			if err := s.priTree.reprioritize(fh.Stream(), h.Stream(), h.Weight(), h.Exclusive()); err != nil {
				return err
			}
		}
		s.listener.priority(stream, h.Stream(), h.Weight(), h.Exclusive(), s.cfg.Executor, s.log)
	}

	s.reassembly[fh.Stream()] = &headerReassembly{block: append([]byte(nil), h.Headers()...), endStream: h.EndStream()}
	if h.EndHeaders() {
		return s.finishHeaders(stream, fh.Stream())
	}
	return nil
}

func (s *Session) handleContinuation(fh *FrameHeader, c *Continuation) error {
	r, ok := s.reassembly[fh.Stream()]
	if !ok {
		return NewConnError(ErrCodeProtocol, "CONTINUATION with no preceding HEADERS")
	}
	r.block = append(r.block, c.Headers()...)
	if !c.EndHeaders() {
		return nil
	}
	stream := s.streams.Get(fh.Stream())
	if stream == nil {
		return NewStreamError(fh.Stream(), ErrCodeProtocol)
	}
	return s.finishHeaders(stream, fh.Stream())
}

func (s *Session) finishHeaders(stream *Stream, streamID uint32) error {
	r := s.reassembly[streamID]
	delete(s.reassembly, streamID)
	s.resetStreamIdle(stream)

	var fields []HeaderField
	err := s.codecDec.Decode(r.block, func(f HeaderField) {
		fields = append(fields, f)
	})
	if err != nil {
		return NewConnError(ErrCodeCompression, "HPACK decode failure")
	}

	s.listener.headers(stream, fields, r.endStream, s.cfg.Executor, s.log)

	if hp := s.cfg.HeaderPolicy; hp != nil {
		if s.isLocalID(streamID) {
			hp.ProcessResponseHeaders(stream, fields, r.endStream)
		} else {
			hp.ProcessRequestHeaders(stream, fields, r.endStream)
		}
	}

	if r.endStream {
		stream.closeRemote()
		s.maybeCloseStream(stream)
	}
	return nil
}

func (s *Session) handleData(fh *FrameHeader, d *Data) error {
	stream := s.streams.Get(fh.Stream())
	// The connection receive window is debited regardless of whether stream is still present —
	// a locally-reset stream's in-flight DATA still spent session-wide credit on the wire. The
	// debit is the whole frame payload, padding included.
	n := fh.Len()
	if err := s.fc.onDataReceived(stream, n); err != nil {
		return err
	}
	if stream == nil {
		return NewStreamError(fh.Stream(), ErrCodeStreamClosed)
	}
	s.resetStreamIdle(stream)

	s.listener.data(stream, d.Data(), d.EndStream(), s.cfg.Executor, s.log)

	connInc, streamInc := s.fc.onDataConsumed(stream, n)
	if connInc > 0 {
		wu := &WindowUpdate{}
		wu.SetIncrement(connInc)
		wfh := AcquireFrameHeader()
		wfh.SetStream(0)
		wfh.SetBody(wu)
		s.flusher.Submit(wfh)
	}
	if streamInc > 0 {
		wu := &WindowUpdate{}
		wu.SetIncrement(streamInc)
		wfh := AcquireFrameHeader()
		wfh.SetStream(stream.ID())
		wfh.SetBody(wu)
		s.flusher.Submit(wfh)
	}

	if d.EndStream() {
		stream.closeRemote()
		s.maybeCloseStream(stream)
	}
	return nil
}

func (s *Session) handlePriority(fh *FrameHeader, p *Priority) error {
	if fh.Stream() == 0 {
		return NewConnError(ErrCodeProtocol, "PRIORITY on stream 0")
	}
	if !s.limiter.allow() {
		return NewConnError(ErrCodeEnhanceYourCalm, "too many PRIORITY frames")
	}

	dep := p.Stream()
	exclusive := p.Exclusive()
	if dep == fh.Stream() {
		return NewStreamError(fh.Stream(), ErrCodeProtocol)
	}

	stream, err := s.getOrCreatePeerStream(fh.Stream())
	if err != nil {
		return err
	}
	s.resetStreamIdle(stream)
	stream.SetDependency(dep, p.Weight(), exclusive)
	if s.priTree != nil {
		if err := s.priTree.reprioritize(fh.Stream(), dep, p.Weight(), exclusive); err != nil {
			return err
		}
	}
	s.listener.priority(stream, dep, p.Weight(), exclusive, s.cfg.Executor, s.log)
	return nil
}

func (s *Session) handleRstStream(fh *FrameHeader, rst *RstStream) error {
	stream := s.streams.Get(fh.Stream())
	if stream == nil {
		// No stream to transition — still surface the reset to the listener rather than drop it
		// on the floor (e.g. a RST_STREAM racing a stream this side already reaped).
		s.listener.frameError(NewStreamError(fh.Stream(), rst.Code()), s.cfg.Executor, s.log)
		return nil
	}
	s.streams.Del(stream.ID())
	stream.cancelIdle()
	s.fc.onStreamDestroyed(stream)
	if s.priTree != nil {
		s.priTree.remove(stream.ID())
	}
	s.listener.streamClosed(stream, rst.Code(), s.cfg.Executor, s.log)
	return nil
}

func (s *Session) handleSettings(st *Settings) error {
	if st.IsAck() {
		s.cancelSettingsAck()
		return nil
	}

	oldInitial := s.remoteSettingsInitialWindow()

	if st.HasMaxFrameSize() {
		if st.MaxFrameSize < MinAllowedFrameSize || st.MaxFrameSize > MaxAllowedFrameSize {
			return NewConnError(ErrCodeProtocol, "invalid SETTINGS_MAX_FRAME_SIZE")
		}
	}

	st.CopyTo(&s.remoteSettings)

	if st.HasInitialWindowSize() {
		newInitial := st.InitialWindowSize
		if newInitial > MaxWindowSize {
			return NewConnError(ErrCodeFlowControl, "invalid SETTINGS_INITIAL_WINDOW_SIZE")
		}
		if err := s.fc.updateInitialStreamWindow(oldInitial, newInitial, s.streams); err != nil {
			return err
		}
	}

	s.listener.settingsChanged(&s.remoteSettings, s.cfg.Executor, s.log)

	ack := &Settings{}
	ack.SetAck(true)
	fh := AcquireFrameHeader()
	fh.SetStream(0)
	fh.SetBody(ack)
	return s.flusher.Submit(fh)
}

func (s *Session) handlePushPromise(fh *FrameHeader, pp *PushPromise) error {
	if !s.localSettings.EnablePush {
		return NewConnError(ErrCodeProtocol, "PUSH_PROMISE received with push disabled")
	}
	stream, err := s.getOrCreatePeerStream(pp.stream)
	if err != nil {
		return err
	}
	return stream.Transition(StreamStateReservedRemote)
}

func (s *Session) handlePing(p *Ping) error {
	var data [8]byte
	copy(data[:], p.Data())

	if p.ack {
		s.cancelPingTimeout()
		s.listener.ping(data, s.cfg.Executor, s.log)
		return nil
	}

	reply := &Ping{}
	reply.ack = true
	reply.SetData(data[:])
	fh := AcquireFrameHeader()
	fh.SetStream(0)
	fh.SetBody(reply)
	return s.flusher.SubmitPriority(fh)
}

// handleGoAway implements spec §4.1's GOAWAY handling: if the session is currently NOT_CLOSED,
// transition to REMOTELY_CLOSED, notify the listener, then enqueue a synthetic DISCONNECT so the
// Flusher drains whatever is still queued and then closes the transport (§4.4: "DISCONNECT
// (synthetic): terminate everything"). A GOAWAY received in any other state is ignored per spec.
func (s *Session) handleGoAway(ga *GoAway) error {
	if !s.close.closeRemote() {
		return nil
	}
	s.listener.goAway(ga.Stream(), ga.Code(), ga.Data(), s.cfg.Executor, s.log)
	return s.flusher.SubmitDisconnect()
}

// handleWindowUpdate applies a WINDOW_UPDATE frame's increment through the Flusher goroutine so
// it serializes with in-flight send-window consumption. RunCommand's own done channel always
// carries nil (its command signature has no return value), so the FlowControl error is captured
// into a closed-over variable and returned after the command completes — a connection-window
// overflow or a zero-increment on stream 0 is a connection-fatal PROTOCOL_ERROR/FLOW_CONTROL_ERROR
// per RFC 7540 §6.9.1, not something to merely log and otherwise ignore.
func (s *Session) handleWindowUpdate(fh *FrameHeader, wu *WindowUpdate) error {
	if fh.Stream() == 0 {
		var ferr error
		if err := s.flusher.RunCommand(func() {
			ferr = s.fc.windowUpdate(nil, wu.Increment())
		}); err != nil {
			return err
		}
		return ferr
	}

	stream := s.streams.Get(fh.Stream())
	if stream == nil {
		return nil
	}
	var ferr error
	if err := s.flusher.RunCommand(func() {
		ferr = s.fc.windowUpdate(stream, wu.Increment())
	}); err != nil {
		return err
	}
	return ferr
}

// SendSettings submits this side's initial SETTINGS frame, required immediately after the
// connection preface per RFC 7540 §3.5. Grounded on dgrr-http2/server_fasthttp.go's
// serveConn, which wrote an empty SETTINGS frame at the same point before any other traffic;
// this repo advertises the configured, non-empty local SETTINGS instead of an empty one.
func (s *Session) SendSettings() error {
	st := &Settings{}
	s.localSettings.CopyTo(st)
	fh := AcquireFrameHeader()
	fh.SetStream(0)
	fh.SetBody(st)
	if err := s.flusher.Submit(fh); err != nil {
		return err
	}
	s.armSettingsAck()
	return nil
}

// HandleFrameError applies this engine's two-tier error policy to whatever HandleFrame returned:
// a *StreamError resets just that stream and the session continues; a *ConnectionError tears
// down the whole session via GOAWAY (Close); any other error aborts the session (Abort) without
// a GOAWAY, matching this repo's error-handling design (spec §7) of stream errors vs connection
// errors vs abort.
func (s *Session) HandleFrameError(err error) {
	if err == nil {
		return
	}

	var serr *StreamError
	if se, ok := err.(*StreamError); ok {
		serr = se
	}
	if serr != nil {
		s.listener.frameError(serr, s.cfg.Executor, s.log)

		rst := &RstStream{}
		rst.SetCode(serr.Code)
		fh := AcquireFrameHeader()
		fh.SetStream(serr.StreamID)
		fh.SetBody(rst)
		s.flusher.Submit(fh)

		if stream := s.streams.Del(serr.StreamID); stream != nil {
			stream.cancelIdle()
			s.fc.onStreamDestroyed(stream)
			s.listener.streamClosed(stream, serr.Code, s.cfg.Executor, s.log)
		}
		return
	}

	if cerr, ok := err.(*ConnectionError); ok {
		s.Close(cerr.Code, cerr.Reason)
		return
	}

	s.Abort(err)
}

// Abort is the unrecoverable-fault path: a transport read/write failure or other corruption that
// leaves no well-formed way to keep talking to the peer. It jumps straight to the CLOSED state
// (regardless of current state), closes the transport, terminates the Flusher (whatever is still
// queued is written against the closed transport, so no further frame reaches the peer), and
// closes every open stream.
func (s *Session) Abort(err error) {
	if !s.close.forceClose() {
		return
	}

	s.transport.Close()
	s.flusher.Stop()

	s.streams.Each(func(stream *Stream) {
		if s.streams.Del(stream.ID()) != nil {
			stream.cancelIdle()
			s.fc.onStreamDestroyed(stream)
			s.listener.streamClosed(stream, ErrCodeInternal, s.cfg.Executor, s.log)
		}
	})

	s.cancelIdleTimers()
	s.listener.closed(err, s.cfg.Executor, s.log)
}

// maybeCloseStream removes stream from the registry once both halves are closed. Local and
// remote close can race (the Flusher closing the local half concurrently with inbound dispatch
// closing the remote half), and both sides call this after their half-close — so the actual
// removal is gated on Streams.Del succeeding, not just on IsClosed(), to guarantee
// onStreamDestroyed/listener.streamClosed fire exactly once per stream.
func (s *Session) maybeCloseStream(stream *Stream) {
	if !stream.IsClosed() {
		return
	}
	if s.streams.Del(stream.ID()) == nil {
		return
	}
	stream.cancelIdle()
	s.fc.onStreamDestroyed(stream)
	if s.priTree != nil {
		s.priTree.remove(stream.ID())
	}
	s.listener.streamClosed(stream, ErrCodeNo, s.cfg.Executor, s.log)
}
