package http2

import (
	"sync"
)

// flushKind distinguishes the four kinds of work a Flusher processes: a frame ready to write
// as-is, a pending DATA write that may need to be sliced across multiple frames as window
// credit becomes available, a command run on the Flusher goroutine, and the synthetic
// DISCONNECT.
type flushKind uint8

const (
	flushFrame flushKind = iota
	flushData
	flushCommand
	// flushDisconnect is the synthetic DISCONNECT entry (see FrameDisconnect in frame.go):
	// enqueued at the back of the normal queue so it drains after anything already queued,
	// then closes the transport and terminates the Flusher for good (spec §4.4).
	flushDisconnect
)

// flushEntry is one item in the Flusher's queue.
type flushEntry struct {
	kind flushKind

	// flushFrame
	header *FrameHeader

	// flushData
	stream    *Stream
	data      []byte
	poolBuf   []byte // underlying allocation to return to pool once data is fully drained
	endStream bool

	// flushCommand: an arbitrary closure executed on the Flusher goroutine, used for window
	// mutations that must serialize with frame emission (SETTINGS INITIAL_WINDOW_SIZE deltas,
	// WINDOW_UPDATE application) per the single-writer invariant.
	command func()

	done chan error
}

// Flusher is the single goroutine that owns both outbound frame emission and all send-window
// mutation for a Session. Serializing the two together is what makes onDataSending/onDataSent
// safe to call without their own locking beyond what FlowControl itself provides, and it's what
// makes a SETTINGS INITIAL_WINDOW_SIZE delta or a WINDOW_UPDATE atomic with respect to in-flight
// DATA writes.
//
// No file in the retrieved pack implements this: dgrr-http2's client.go/conn.go funnel writes
// through a single writeRequest-style call but never model window-constrained slicing or a
// priority lane, and muxado's session.go funnels writes through a `writeFrames chan writeReq`
// but has no flow-control-aware chunking at all (muxado's streams manage their own window
// directly). This file generalizes both into one goroutine that also owns the flow-control
// strategy's send-side mutations.
type Flusher struct {
	mu       sync.Mutex
	cond     *sync.Cond
	normal   []*flushEntry
	priority []*flushEntry // PING and other frames that must jump the queue
	pending  map[uint32][]*flushEntry
	stopped  bool

	transport Transport
	fc        FlowControl
	maxFrame  uint32
	log       Logger
	pool      BufferPool

	wg sync.WaitGroup
}

// NewFlusher builds a Flusher writing frames to transport, consulting fc for window-constrained
// DATA slicing, and never emitting a single frame payload larger than maxFrame bytes. Every
// SubmitData call copies its payload into a buffer leased from pool (see SubmitData) rather than
// holding onto the caller's slice, since a DATA write can sit parked in the Flusher's queue for
// an arbitrary amount of time waiting on flow-control credit.
func NewFlusher(transport Transport, fc FlowControl, maxFrame uint32, log Logger, pool BufferPool) *Flusher {
	if pool == nil {
		pool = NewDefaultBufferPool()
	}
	f := &Flusher{
		transport: transport,
		fc:        fc,
		maxFrame:  maxFrame,
		log:       log,
		pool:      pool,
		pending:   make(map[uint32][]*flushEntry),
	}
	f.cond = sync.NewCond(&f.mu)
	f.wg.Add(1)
	go f.run()
	return f
}

// Submit enqueues a fully-formed non-DATA frame at the back of the normal queue.
func (f *Flusher) Submit(header *FrameHeader) error {
	return f.enqueue(&flushEntry{kind: flushFrame, header: header}, false)
}

// SubmitHeaders enqueues a HEADERS control frame and, once it has actually gone out on the
// wire, closes stream's local half if endStream is set — the HEADERS post-write effect from
// spec §4.4 ("if END_STREAM, mark local half closed (maybe remove)"). Kept distinct from Submit
// because only the opening/closing HEADERS write needs this follow-up; PING/SETTINGS/GOAWAY etc.
// carry no stream to close.
func (f *Flusher) SubmitHeaders(header *FrameHeader, stream *Stream, endStream bool) error {
	e := &flushEntry{kind: flushFrame, header: header}
	if endStream {
		e.stream = stream
		e.endStream = true
	}
	return f.enqueue(e, false)
}

// SubmitPriority enqueues header at the front of the queue, ahead of everything already queued.
// Used for PING, whose RTT measurement is only meaningful if it isn't stuck behind a large
// backlog of DATA frames.
func (f *Flusher) SubmitPriority(header *FrameHeader) error {
	return f.enqueue(&flushEntry{kind: flushFrame, header: header}, true)
}

// SubmitData enqueues a DATA write for stream; it may be sliced across several wire frames
// depending on window availability at write time. The payload is copied into a buffer leased
// from the Flusher's BufferPool immediately (not referenced in place), since a write blocked on
// flow-control credit may outlive whatever the caller does with data next.
func (f *Flusher) SubmitData(stream *Stream, data []byte, endStream bool) error {
	buf := f.pool.Get()
	buf = append(buf[:0], data...)
	return f.enqueue(&flushEntry{kind: flushData, stream: stream, data: buf, poolBuf: buf, endStream: endStream}, false)
}

// SubmitDisconnect enqueues a synthetic DISCONNECT at the back of the normal queue: every frame
// already queued (including any GOAWAY just submitted) drains to the wire first, then the
// Flusher closes the transport and terminates itself. Safe to call more than once or after the
// Flusher has already stopped; ErrFlusherStopped is not treated as a caller error here since the
// outcome (transport eventually closed) is the same either way.
func (f *Flusher) SubmitDisconnect() error {
	if err := f.enqueue(&flushEntry{kind: flushDisconnect}, false); err != nil && err != ErrFlusherStopped {
		return err
	}
	return nil
}

// RunCommand submits fn to run on the Flusher goroutine, serialized with all frame writes and
// window mutations, and blocks until fn has completed.
func (f *Flusher) RunCommand(fn func()) error {
	e := &flushEntry{kind: flushCommand, command: fn, done: make(chan error, 1)}
	if err := f.enqueue(e, false); err != nil {
		return err
	}
	return <-e.done
}

func (f *Flusher) enqueue(e *flushEntry, front bool) error {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return ErrFlusherStopped
	}
	if front {
		f.priority = append([]*flushEntry{e}, f.priority...)
	} else {
		f.normal = append(f.normal, e)
	}
	f.cond.Signal()
	f.mu.Unlock()
	return nil
}

// Stop terminates the Flusher after draining anything already queued; further Submit* calls
// return ErrFlusherStopped.
func (f *Flusher) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.cond.Broadcast()
	f.mu.Unlock()
	f.wg.Wait()
}

func (f *Flusher) run() {
	defer f.wg.Done()
	for {
		e := f.next()
		if e == nil {
			return
		}
		if f.process(e) {
			return
		}
	}
}

// next blocks until an entry is available or the Flusher has been stopped with nothing left to
// drain.
func (f *Flusher) next() *flushEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		if len(f.priority) > 0 {
			e := f.priority[0]
			f.priority = f.priority[1:]
			return e
		}
		if len(f.normal) > 0 {
			e := f.normal[0]
			f.normal = f.normal[1:]
			return e
		}
		if f.stopped {
			return nil
		}
		f.cond.Wait()
	}
}

// process handles one queue entry and reports whether the Flusher should terminate after it
// (true only for flushDisconnect).
func (f *Flusher) process(e *flushEntry) bool {
	switch e.kind {
	case flushFrame:
		f.writeFrame(e.header)
		if e.endStream && e.stream != nil {
			f.closeStreamLocal(e.stream)
		}
	case flushData:
		f.writeData(e)
	case flushCommand:
		e.command()
		if e.done != nil {
			e.done <- nil
		}
		f.drainPending()
	case flushDisconnect:
		f.transport.Close()
		f.mu.Lock()
		f.stopped = true
		f.mu.Unlock()
		return true
	}
	return false
}

func (f *Flusher) writeFrame(header *FrameHeader) {
	if _, err := header.WriteTo(f.transport); err != nil {
		f.log.Printf("write frame: %s", err)
	}
	if err := f.transport.Flush(); err != nil {
		f.log.Printf("flush: %s", err)
	}
	ReleaseFrameHeader(header)
}

// writeData slices e.data against current window availability, writing as many DATA frames as
// the window allows right now and re-queuing the remainder (preserving stream order) once
// window credit runs out.
func (f *Flusher) writeData(e *flushEntry) {
	// A zero-length body with END_STREAM (e.g. a request/response with no entity) still needs
	// one DATA frame on the wire to carry the flag — it costs no flow-control credit either way.
	if len(e.data) == 0 {
		if e.endStream {
			f.emitData(e.stream, nil, true)
			f.closeStreamLocal(e.stream)
		}
		f.pool.Put(e.poolBuf)
		return
	}

	for len(e.data) > 0 {
		want := len(e.data)
		if uint32(want) > f.maxFrame {
			want = int(f.maxFrame)
		}
		n := f.fc.onDataSending(e.stream, want)
		if n <= 0 {
			f.park(e)
			return
		}

		chunk := e.data[:n]
		e.data = e.data[n:]
		last := len(e.data) == 0

		f.fc.onDataSent(e.stream, n)
		f.emitData(e.stream, chunk, last && e.endStream)
		if last && e.endStream {
			f.closeStreamLocal(e.stream)
		}
	}
	f.pool.Put(e.poolBuf)
}

func (f *Flusher) emitData(stream *Stream, chunk []byte, endStream bool) {
	df := AcquireData()
	df.SetData(chunk)
	df.SetEndStream(endStream)

	fh := AcquireFrameHeader()
	fh.SetStream(stream.ID())
	fh.SetBody(df)
	f.writeFrame(fh)
}

// closeStreamLocal applies the local half-close following an outbound END_STREAM write and lets
// the owning Session drop the stream from its registry if that closed the stream fully.
func (f *Flusher) closeStreamLocal(stream *Stream) {
	stream.closeLocal()
	if sess := stream.session; sess != nil {
		sess.maybeCloseStream(stream)
	}
}

// park sets e.data aside, keyed by stream id, until a WINDOW_UPDATE or SETTINGS delta reopens
// the window (see drainPending).
func (f *Flusher) park(e *flushEntry) {
	id := e.stream.ID()
	f.pending[id] = append(f.pending[id], e)
}

// drainPending retries every parked DATA entry after a window-opening command has run. Called
// only from the Flusher goroutine itself, so this never races with writeData.
func (f *Flusher) drainPending() {
	parked := f.pending
	f.pending = make(map[uint32][]*flushEntry)
	for _, entries := range parked {
		for _, e := range entries {
			if f.fc.onDataSending(e.stream, 1) <= 0 {
				f.park(e)
				continue
			}
			f.writeData(e)
		}
	}
}
