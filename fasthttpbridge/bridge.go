// Package fasthttpbridge lets a fasthttp.RequestHandler be served over an h2session.Session,
// translating HPACK-decoded header blocks into a fasthttp.Request/fasthttp.Response pair instead
// of a raw []h2session.HeaderField.
//
// Adapted from the teacher's adaptor.go (fasthttpRequestHeaders/fasthttpResponseHeaders) and
// request.go/response.go: those walked a hand-rolled HPACK decoder directly against pseudo-header
// bytes. Here the decode already happened in the engine's HeaderCodec, so this package only does
// the pseudo-header-to-fasthttp-field mapping, generalized to work off any HeaderCodec rather
// than the teacher's HPACK type.
package fasthttpbridge

import (
	"bytes"
	"strconv"
	"sync"

	"github.com/valyala/fasthttp"

	http2 "github.com/nilgrove/h2session"
)

var (
	strPath          = []byte(":path")
	strMethod        = []byte(":method")
	strScheme        = []byte(":scheme")
	strAuthority     = []byte(":authority")
	strUserAgent     = []byte("user-agent")
	strContentType   = []byte("content-type")
	strContentLength = []byte("content-length")
	strStatus        = []byte(":status")
)

// requestState is what Server stashes on a Stream's opaque Data slot (Stream.SetData/Data) while
// a request is being reassembled across HEADERS and DATA frames.
type requestState struct {
	req fasthttp.Request
}

var statePool = sync.Pool{New: func() interface{} { return new(requestState) }}

// Server adapts a fasthttp.RequestHandler to h2session's HeaderPolicy and Listener.OnData hooks.
// Install it on every server-role Session's Config.HeaderPolicy and Config.Listener.OnData. A
// single Server is safe to share across every connection a Listener accepts:
// it carries no per-connection state of its own, recovering the owning Session from
// Stream.Session() instead of a field on Server — see stream.go's Stream.session.
type Server struct {
	Handler fasthttp.RequestHandler
}

// NewServer builds a Server that dispatches completed requests to handler.
func NewServer(handler fasthttp.RequestHandler) *Server {
	return &Server{Handler: handler}
}

// ProcessRequestHeaders implements http2.HeaderPolicy: it accumulates pseudo- and regular headers
// into a fasthttp.Request parked on the Stream, and serves the request immediately if the HEADERS
// frame already carried END_STREAM (no body).
func (s *Server) ProcessRequestHeaders(stream *http2.Stream, fields []http2.HeaderField, endStream bool) {
	st, _ := stream.Data().(*requestState)
	if st == nil {
		st = statePool.Get().(*requestState)
		st.req.Reset()
		stream.SetData(st)
	}
	for i := range fields {
		applyRequestHeader(&st.req, &fields[i])
	}
	if endStream {
		s.serve(stream, st)
	}
}

// ProcessResponseHeaders is a no-op here: this Server only plays the server role, which never
// receives response headers (a client-role bridge would decode a status line here instead).
func (s *Server) ProcessResponseHeaders(stream *http2.Stream, fields []http2.HeaderField, endStream bool) {
}

// OnData is the Listener.OnData hook this bridge needs wired in alongside the HeaderPolicy, since
// DATA frames carry the request body and HeaderPolicy only sees HEADERS.
func (s *Server) OnData(stream *http2.Stream, data []byte, endStream bool) {
	st, _ := stream.Data().(*requestState)
	if st == nil {
		return
	}
	st.req.AppendBody(data)
	if endStream {
		s.serve(stream, st)
	}
}

func (s *Server) serve(stream *http2.Stream, st *requestState) {
	stream.SetData(nil)

	// No net.Conn is passed to Init2: the Session abstracts the wire behind Transport, so this
	// bridge never sees the raw connection the way the teacher's OnNewStream(c net.Conn, ...) did.
	// Handlers that call ctx.RemoteAddr()/LocalAddr() will see fasthttp's zero-value addresses.
	var resp fasthttp.Response
	ctx := fasthttp.RequestCtx{}
	ctx.Init2(nil, nil, false)
	st.req.CopyTo(&ctx.Request)
	s.Handler(&ctx)
	ctx.Response.CopyTo(&resp)

	fields := responseHeaderFields(&resp)

	body := resp.Body()
	endStream := len(body) == 0

	sess := stream.Session()
	if err := sess.SendHeaders(stream, fields, endStream); err != nil {
		return
	}
	if !endStream {
		sess.SendData(stream, body, true)
	}

	st.req.Reset()
	statePool.Put(st)
}

// applyRequestHeader maps one decoded header field onto req, following the teacher's
// fasthttpRequestHeaders dispatch: pseudo-headers (":method", ":path", ":scheme", ":authority")
// drive the request line, everything else becomes a regular header.
func applyRequestHeader(req *fasthttp.Request, hf *http2.HeaderField) {
	k, v := hf.KeyBytes(), hf.ValueBytes()

	if !hf.IsPseudo() {
		if bytes.Equal(k, strUserAgent) {
			req.Header.SetUserAgentBytes(v)
			return
		}
		if bytes.Equal(k, strContentType) {
			req.Header.SetContentTypeBytes(v)
			return
		}
		req.Header.AddBytesKV(k, v)
		return
	}

	switch {
	case bytes.Equal(k, strMethod):
		req.Header.SetMethodBytes(v)
	case bytes.Equal(k, strPath):
		req.URI().SetPathBytes(v)
	case bytes.Equal(k, strScheme):
		req.URI().SetSchemeBytes(v)
	case bytes.Equal(k, strAuthority):
		req.URI().SetHostBytes(v)
		req.Header.SetHostBytes(v)
	}
}

// responseHeaderFields builds the HEADERS field list for resp, following the teacher's
// fasthttpResponseHeaders: a leading ":status" pseudo-header, a content-length derived from the
// final body, then every header fasthttp recorded, lowercased per RFC 7540 §8.1.2.
func responseHeaderFields(resp *fasthttp.Response) []http2.HeaderField {
	fields := make([]http2.HeaderField, 0, 2+resp.Header.Len())

	var status http2.HeaderField
	status.SetKeyBytes(strStatus)
	status.SetValue(strconv.Itoa(resp.StatusCode()))
	fields = append(fields, status)

	var contentLength http2.HeaderField
	contentLength.SetKeyBytes(strContentLength)
	contentLength.SetValue(strconv.Itoa(len(resp.Body())))
	fields = append(fields, contentLength)

	// fasthttp's VisitAll surfaces its internally tracked Content-Length alongside every other
	// header; skip it here since the content-length field above is the one derived from the
	// actual final body we're about to write, and emitting both would send two content-length
	// header lines on the same response (RFC 7540 §8.1.2.2 forbids duplicate pseudo/singleton
	// fields, and a divergent pair is exactly the kind of ambiguity request/response smuggling
	// exploits).
	resp.Header.VisitAll(func(k, v []byte) {
		lower := http2.ToLower(append([]byte(nil), k...))
		if bytes.Equal(lower, strContentLength) {
			return
		}
		var hf http2.HeaderField
		hf.SetKeyBytes(lower)
		hf.SetValueBytes(v)
		fields = append(fields, hf)
	})

	return fields
}
