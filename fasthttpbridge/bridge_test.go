package fasthttpbridge

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	http2 "github.com/nilgrove/h2session"
)

func field(k, v string) http2.HeaderField {
	var hf http2.HeaderField
	hf.Set(k, v)
	return hf
}

// TestApplyRequestHeaderPseudoHeaders checks the teacher-derived dispatch: pseudo-headers drive
// the request line, everything else lands as a regular header.
func TestApplyRequestHeaderPseudoHeaders(t *testing.T) {
	var req fasthttp.Request

	fields := []http2.HeaderField{
		field(":method", "POST"),
		field(":path", "/widgets"),
		field(":scheme", "https"),
		field(":authority", "example.com"),
		field("user-agent", "h2session-test"),
		field("content-type", "application/json"),
		field("x-custom", "1"),
	}
	for i := range fields {
		applyRequestHeader(&req, &fields[i])
	}

	require.Equal(t, "POST", string(req.Header.Method()))
	require.Equal(t, "/widgets", string(req.URI().Path()))
	require.Equal(t, "https", string(req.URI().Scheme()))
	require.Equal(t, "example.com", string(req.URI().Host()))
	require.Equal(t, "example.com", string(req.Header.Host()))
	require.Equal(t, "h2session-test", string(req.Header.UserAgent()))
	require.Equal(t, "application/json", string(req.Header.ContentType()))
	require.Equal(t, "1", string(req.Header.Peek("X-Custom")))
}

// TestResponseHeaderFields checks the response side emits a leading :status, a computed
// content-length, and every fasthttp response header lowercased per RFC 7540 §8.1.2.
func TestResponseHeaderFields(t *testing.T) {
	var resp fasthttp.Response
	resp.SetStatusCode(201)
	resp.Header.Set("X-Request-Id", "abc123")
	resp.SetBodyString("hello")

	fields := responseHeaderFields(&resp)
	require.GreaterOrEqual(t, len(fields), 3)
	require.Equal(t, ":status", fields[0].Key())
	require.Equal(t, "201", fields[0].Value())
	require.Equal(t, "content-length", fields[1].Key())
	require.Equal(t, "5", fields[1].Value())

	var sawRequestID, sawContentLength int
	for _, hf := range fields[2:] {
		if hf.Key() == "x-request-id" {
			sawRequestID++
			require.Equal(t, "abc123", hf.Value())
		}
		if hf.Key() == "content-length" {
			sawContentLength++
		}
		require.Equal(t, hf.Key(), string(http2.ToLower([]byte(hf.Key()))))
	}
	require.Equal(t, 1, sawRequestID)
	// fasthttp's own Header.VisitAll surfaces Content-Length alongside every other header; it
	// must be suppressed there since fields[1] above is already the authoritative, body-derived
	// content-length — a duplicate would put two content-length lines on one response.
	require.Equal(t, 0, sawContentLength)
}
