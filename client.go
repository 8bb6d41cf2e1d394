package http2

import (
	"crypto/tls"
	"fmt"
)

// Client dials a single HTTP/2 connection and exposes its Session for issuing requests via
// Session.NewStream. Grounded on dgrr-http2/client.go's Dial (TLS dial, Handshake, ALPN check)
// — the per-connection frame loop itself is Conn.Serve's, started here in its own goroutine
// exactly once per Dial, not duplicated.
type Client struct {
	conn *Conn
	done chan error
}

// Dial establishes a TLS connection to addr, verifies the peer negotiated H2TLSProto, sends this
// side's SETTINGS, and starts the connection's read loop in its own goroutine. The returned
// Client's Session is ready for Session.NewStream once Dial returns.
func Dial(addr string, tlsConfig *tls.Config, cfg *Config) (*Client, error) {
	if tlsConfig == nil {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12, MaxVersion: tls.VersionTLS13}
	}
	tlsConfig.NextProtos = appendMissing(tlsConfig.NextProtos, H2TLSProto)

	c, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return nil, err
	}
	if err := c.Handshake(); err != nil {
		c.Close()
		return nil, err
	}
	if proto := c.ConnectionState().NegotiatedProtocol; proto != H2TLSProto {
		c.Close()
		return nil, fmt.Errorf("h2 client: server negotiated unsupported protocol %q", proto)
	}

	conn, err := NewConn(c, cfg, false)
	if err != nil {
		c.Close()
		return nil, err
	}

	done := make(chan error, 1)
	go func() { done <- conn.Serve() }()

	return &Client{conn: conn, done: done}, nil
}

func appendMissing(protos []string, proto string) []string {
	for _, p := range protos {
		if p == proto {
			return protos
		}
	}
	return append(protos, proto)
}

// Session is the connection's protocol engine, used to open requests (Session.NewStream) and
// submit other frames.
func (c *Client) Session() *Session { return c.conn.Session }

// Wait blocks until the connection's read loop returns, which happens once the transport closes
// or an unrecoverable error forces shutdown.
func (c *Client) Wait() error { return <-c.done }

// Close begins graceful shutdown of the underlying connection.
func (c *Client) Close() error {
	return c.conn.Session.Close(ErrCodeNo, "client closing")
}
