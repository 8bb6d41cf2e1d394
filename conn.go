package http2

import (
	"bufio"
	"net"
)

// Conn drives one HTTP/2 connection end to end: the preface exchange, the read loop that
// decodes FrameHeaders off the wire and feeds them to a Session, and the error-to-wire-effect
// policy (Session.HandleFrameError). Everything state-related — stream registry, windows,
// close state, the Flusher — lives on the Session; Conn only owns the blocking read loop, since
// that is the one piece of I/O the Session itself never performs (see session.go's doc comment).
//
// Grounded on dgrr-http2/serverConn.go's handleStreams/handleFrame loop shape: that loop read a
// FrameHeader, switched on its type, and mutated a sorted-slice Streams list inline. This repo
// keeps the "read one frame, dispatch it, loop" shape but the dispatch itself now lives entirely
// in Session.HandleFrame, so Conn is just the transport-facing shell around it.
type Conn struct {
	Session *Session

	nc  net.Conn
	br  *bufio.Reader
	cfg *Config
}

// NewConn wraps an already-accepted, already-ALPN-negotiated net.Conn as a Conn, building a
// fresh Session over it. isServer selects local stream-id parity (see NewSession).
func NewConn(nc net.Conn, cfg *Config, isServer bool) (*Conn, error) {
	transport := NewConnTransport(nc).(*connTransport)
	sess, err := NewSession(transport, cfg, isServer)
	if err != nil {
		return nil, err
	}
	return &Conn{Session: sess, nc: nc, br: transport.Reader(), cfg: sess.cfg}, nil
}

// Serve performs the connection preface, submits this side's initial SETTINGS, and then reads
// frames until the transport closes or an unrecoverable error forces shutdown. It blocks for the
// lifetime of the connection; callers typically invoke it in its own goroutine (see Server.Serve
// and Client's per-connection goroutine).
func (c *Conn) Serve() error {
	if c.Session.server {
		if !ReadPreface(c.br) {
			c.nc.Close()
			return ErrBadPreface
		}
	} else if _, err := c.nc.Write(connectionPreface); err != nil {
		c.nc.Close()
		return err
	}

	if err := c.Session.SendSettings(); err != nil {
		c.nc.Close()
		return err
	}

	maxIncoming := c.cfg.MaxFrameSize + DefaultFrameSize
	for {
		fh, err := ReadFrameFromWithSize(c.br, maxIncoming)
		if err != nil {
			if err == ErrUnknownFrame {
				// spec §4.1: "Unknown frame at the top level ... fail connection with
				// PROTOCOL_ERROR" — a connection error (GOAWAY + graceful shutdown), not the
				// fatal-transport-fault abort every other read error routes to.
				c.Session.HandleFrameError(NewConnError(ErrCodeProtocol, "unknown frame type"))
				if c.Session.close.isClosed() {
					return err
				}
				continue
			}
			c.Session.Abort(err)
			return err
		}

		err = c.Session.HandleFrame(fh)
		ReleaseFrameHeader(fh)
		if err != nil {
			c.Session.HandleFrameError(err)
			if c.Session.close.isClosed() {
				return err
			}
		}
	}
}
