package http2

import (
	"io"
	"time"
)

// HeaderCodec compresses and decompresses a stream's header block using a connection-scoped
// HPACK dynamic table. Sessions hold one encoder (for outbound HEADERS/PUSH_PROMISE) and one
// decoder (for inbound) since HPACK state is directional per RFC 7541 §2.2.
//
// A default implementation backed by golang.org/x/net/http2/hpack ships in hpackcodec.go.
type HeaderCodec interface {
	// Encode appends the HPACK encoding of fields to dst and returns the extended slice.
	Encode(dst []byte, fields []HeaderField) []byte
	// Decode parses an HPACK-encoded header block, invoking emit for each field in wire order.
	Decode(block []byte, emit func(HeaderField)) error
	// SetMaxDynamicTableSize applies a HEADER_TABLE_SIZE change received via SETTINGS.
	SetMaxDynamicTableSize(size uint32)
}

// Transport is the minimal read/write surface the Session needs from a connection: a frame
// source and sink, plus a way to learn the peer's address for logging. The default
// net.Conn-based transport_default.go adapter satisfies this with a *bufio.Reader/
// *bufio.Writer pair underneath.
type Transport interface {
	io.Reader
	io.Writer
	// Flush pushes any writer-side buffering to the wire; the Flusher calls this once per batch
	// of frames rather than per frame.
	Flush() error
	// Close tears down the underlying connection, both directions at once. Used for the abort
	// path (spec §4.3's "any -> unrecoverable I/O fault -> CLOSED") and for the synthetic
	// DISCONNECT entry, where both halves are meant to go down together.
	Close() error
	// CloseWrite shuts down the output side only, per spec §4.3's LOCALLY_CLOSED row ("shutdown
	// transport output only (reads continue)"): after a local Close(), this session must keep
	// accepting inbound frames on streams already open below the advertised last-stream-id until
	// a real transport FIN arrives. Implementations that cannot half-close (no underlying
	// duplex-close primitive) may fall back to Close().
	CloseWrite() error
	// RemoteAddr is used only for logging/diagnostics.
	RemoteAddr() string
}

// Scheduler provides the timers a Session needs without pulling a specific timer implementation
// into the core: stream and session idle timeouts, SETTINGS-ack timeouts, and PING-ack
// timeouts. The default idletimer.go adapter wraps time.AfterFunc with jitter.
type Scheduler interface {
	// After schedules fn to run once after d, returning a cancel function. Calling cancel after
	// fn has already fired is a safe no-op.
	After(d time.Duration, fn func()) (cancel func())
}

// BufferPool supplies reusable byte buffers for frame payloads so the Session doesn't lean on
// the garbage collector for every DATA frame. The default bufferpool_default.go adapter wraps
// github.com/valyala/bytebufferpool.
type BufferPool interface {
	Get() []byte
	Put([]byte)
}

// StreamFactory builds the Stream value a Session registers for a given id, letting a caller
// substitute its own Stream subtype-by-embedding (carrying request/response state alongside the
// protocol fields) without forking the stream-table/flow-control plumbing in session.go. Nil
// defaults to a plain NewStream call; see newLocalStream/newRemoteStream in session.go.
type StreamFactory interface {
	// NewLocalStream builds a Stream this side is originating (an outbound request or a server
	// push), with sendWindow/recvWindow seeded from the currently negotiated SETTINGS.
	NewLocalStream(id uint32, sendWindow, recvWindow int64) *Stream
	// NewRemoteStream builds a Stream the peer is originating, at the point the first HEADERS
	// frame for it arrives.
	NewRemoteStream(id uint32, sendWindow, recvWindow int64) *Stream
}

// HeaderPolicy lets a caller observe a fully reassembled, HPACK-decoded header block in terms of
// its HTTP role instead of a raw []HeaderField, without the Session itself knowing what a
// "request" or "response" is. Both methods observe received headers: the Session calls
// ProcessRequestHeaders for a stream the peer originated and ProcessResponseHeaders for a stream
// this side originated, whichever its role. Nil is legal — the Session then relies solely on its Listener.OnHeaders
// callback, which always fires regardless of HeaderPolicy. The default implementation, in the
// separate fasthttpbridge package, decodes into a fasthttp.Request/fasthttp.Response pair.
type HeaderPolicy interface {
	// ProcessRequestHeaders is called when this Session receives the HEADERS a peer is using to
	// originate a stream (the request side, from a server's point of view).
	ProcessRequestHeaders(stream *Stream, fields []HeaderField, endStream bool)
	// ProcessResponseHeaders is called when this Session receives the HEADERS a peer sends back
	// on a stream it originated (the response side, from a client's point of view).
	ProcessResponseHeaders(stream *Stream, fields []HeaderField, endStream bool)
}
