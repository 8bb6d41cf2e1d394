package http2

import (
	"bufio"
	"bytes"
	"io"
	"testing"
)

// fakeTransport records everything written to it without touching a real socket.
type fakeTransport struct {
	buf         bytes.Buffer
	closed      bool
	closedWrite bool
}

func (t *fakeTransport) Read(p []byte) (int, error)  { return 0, io.EOF }
func (t *fakeTransport) Write(p []byte) (int, error) { return t.buf.Write(p) }
func (t *fakeTransport) Flush() error                { return nil }
func (t *fakeTransport) Close() error                { t.closed = true; return nil }
func (t *fakeTransport) CloseWrite() error           { t.closedWrite = true; return nil }
func (t *fakeTransport) RemoteAddr() string          { return "test" }

// fakeFlowControl gives a test direct control over how many bytes a DATA write may send per
// call, without pulling in simpleFlowControl's window-crediting policy.
type fakeFlowControl struct {
	avail int
}

func (f *fakeFlowControl) onStreamCreated(s *Stream)   {}
func (f *fakeFlowControl) onStreamDestroyed(s *Stream) {}
func (f *fakeFlowControl) onDataReceived(s *Stream, n int) error          { return nil }
func (f *fakeFlowControl) onDataConsumed(s *Stream, n int) (uint32, uint32) { return 0, 0 }

func (f *fakeFlowControl) onDataSending(s *Stream, want int) int {
	if f.avail <= 0 {
		return 0
	}
	if want > f.avail {
		return f.avail
	}
	return want
}

func (f *fakeFlowControl) onDataSent(s *Stream, n int) {
	f.avail -= n
}

func (f *fakeFlowControl) updateInitialStreamWindow(oldVal, newVal uint32, streams *Streams) error {
	return nil
}

func (f *fakeFlowControl) windowUpdate(s *Stream, increment uint32) error {
	f.avail += int(increment)
	return nil
}

func newTestFlusher(transport *fakeTransport, fc FlowControl, maxFrame uint32) *Flusher {
	return &Flusher{
		transport: transport,
		fc:        fc,
		maxFrame:  maxFrame,
		log:       defaultLogger(),
		pool:      NewDefaultBufferPool(),
		pending:   make(map[uint32][]*flushEntry),
	}
}

func readDataFrames(t *testing.T, raw []byte) []*Data {
	t.Helper()
	br := bufio.NewReader(bytes.NewReader(raw))
	var frames []*Data
	for {
		fh, err := ReadFrameFrom(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected read error: %s", err)
		}
		d, ok := fh.Body().(*Data)
		if !ok {
			t.Fatalf("unexpected frame type %s", fh.Type())
		}
		// copy out before releasing fh back to the pool, which would zero d's payload.
		cp := &Data{}
		d.CopyTo(cp)
		frames = append(frames, cp)
		ReleaseFrameHeader(fh)
	}
	return frames
}

// TestFlusherEnqueueOrdering verifies the priority lane always drains ahead of the normal lane,
// regardless of arrival order — the guarantee PING relies on to measure RTT past a DATA backlog.
func TestFlusherEnqueueOrdering(t *testing.T) {
	f := newTestFlusher(&fakeTransport{}, &fakeFlowControl{}, DefaultMaxFrameSize)

	normal1 := &flushEntry{kind: flushFrame}
	normal2 := &flushEntry{kind: flushFrame}
	priority := &flushEntry{kind: flushFrame}

	if err := f.enqueue(normal1, false); err != nil {
		t.Fatal(err)
	}
	if err := f.enqueue(normal2, false); err != nil {
		t.Fatal(err)
	}
	if err := f.enqueue(priority, true); err != nil {
		t.Fatal(err)
	}

	if got := f.next(); got != priority {
		t.Fatalf("expected priority entry first, got %#v", got)
	}
	if got := f.next(); got != normal1 {
		t.Fatalf("expected normal1 second, got %#v", got)
	}
	if got := f.next(); got != normal2 {
		t.Fatalf("expected normal2 third, got %#v", got)
	}
}

func TestFlusherEnqueueAfterStopFails(t *testing.T) {
	f := newTestFlusher(&fakeTransport{}, &fakeFlowControl{}, DefaultMaxFrameSize)
	f.stopped = true

	if err := f.enqueue(&flushEntry{kind: flushFrame}, false); err != ErrFlusherStopped {
		t.Fatalf("expected ErrFlusherStopped, got %v", err)
	}
}

// TestFlusherWriteDataSlicesAcrossMaxFrame checks that a DATA write larger than maxFrame is split
// into multiple wire frames, each clamped to maxFrame, with END_STREAM only on the final slice.
func TestFlusherWriteDataSlicesAcrossMaxFrame(t *testing.T) {
	transport := &fakeTransport{}
	fc := &fakeFlowControl{avail: 1000}
	f := newTestFlusher(transport, fc, 4)

	stream := NewStream(1, 1000, 1000, nil)
	payload := []byte("helloworld")
	entry := &flushEntry{kind: flushData, stream: stream, data: append([]byte(nil), payload...), poolBuf: f.pool.Get(), endStream: true}

	f.writeData(entry)

	frames := readDataFrames(t, transport.buf.Bytes())
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames for a 10-byte write with maxFrame=4, got %d", len(frames))
	}

	var reassembled []byte
	for i, fr := range frames {
		reassembled = append(reassembled, fr.Data()...)
		wantEnd := i == len(frames)-1
		if fr.EndStream() != wantEnd {
			t.Fatalf("frame %d: END_STREAM=%v, want %v", i, fr.EndStream(), wantEnd)
		}
	}
	if string(reassembled) != string(payload) {
		t.Fatalf("reassembled payload mismatch: %q <> %q", reassembled, payload)
	}
}

// TestFlusherParksOnExhaustedWindowThenDrains checks that a write blocked on flow-control credit
// is parked rather than dropped, and resumes once the window reopens.
func TestFlusherParksOnExhaustedWindowThenDrains(t *testing.T) {
	transport := &fakeTransport{}
	fc := &fakeFlowControl{avail: 5}
	f := newTestFlusher(transport, fc, 4)

	stream := NewStream(7, 1000, 1000, nil)
	payload := []byte("helloworld") // 10 bytes, only 5 sendable up front
	entry := &flushEntry{kind: flushData, stream: stream, data: append([]byte(nil), payload...), poolBuf: f.pool.Get(), endStream: true}

	f.writeData(entry)

	if len(f.pending[7]) != 1 {
		t.Fatalf("expected one parked entry for stream 7, got %d", len(f.pending[7]))
	}
	if n := transport.buf.Len(); n == 0 {
		t.Fatal("expected the initially sendable bytes to have been written before parking")
	}

	fc.avail = 1000
	f.drainPending()

	if _, ok := f.pending[7]; ok {
		t.Fatal("expected the parked entry to be cleared after drainPending")
	}

	frames := readDataFrames(t, transport.buf.Bytes())
	var reassembled []byte
	for _, fr := range frames {
		reassembled = append(reassembled, fr.Data()...)
	}
	if string(reassembled) != string(payload) {
		t.Fatalf("reassembled payload mismatch after drain: %q <> %q", reassembled, payload)
	}
	if !frames[len(frames)-1].EndStream() {
		t.Fatal("expected the final frame after drain to carry END_STREAM")
	}
}
