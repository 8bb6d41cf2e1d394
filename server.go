package http2

import (
	"crypto/tls"
	"net"
)

// Server drives a net.Listener's accept loop, negotiating ALPN h2 over TLS and handing each
// accepted connection to its own Conn/Session pair. Grounded on dgrr-http2/server_fasthttp.go's
// Serve/ListenAndServeTLS shape (accept, check the negotiated ALPN protocol, hand off, loop) —
// the per-connection frame loop itself is entirely Conn.Serve's, not duplicated here.
//
// Config is shared across every accepted connection, but NewConn builds a fresh Session per
// connection, so per-connection state (the stream registry, flow-control windows, close state)
// is never shared. Wire request handling through Config.HeaderPolicy and Config.Listener.OnData,
// e.g. via fasthttpbridge.NewServer — a single fasthttpbridge.Server is safe to share the same
// way, since it recovers the owning Session from Stream.Session() rather than a field of its own.
type Server struct {
	Config *Config
}

// ListenAndServeTLS loads a certificate pair, listens on addr, and serves h2 connections until
// the listener's Accept returns an error (see Serve).
func (s *Server) ListenAndServeTLS(addr, certFile, keyFile string) error {
	tlsConfig, err := TLSConfig(certFile, keyFile)
	if err != nil {
		return err
	}
	ln, err := tls.Listen("tcp", addr, tlsConfig)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// connALPN is satisfied by *tls.Conn. A listener handing back connections that don't implement
// it (a plain net.Listener, already-upgraded h2c) are served without an ALPN check.
type connALPN interface {
	ConnectionState() tls.ConnectionState
	Handshake() error
}

// Serve accepts connections from ln until Accept returns an error, dispatching each to its own
// goroutine running Conn.Serve. A TLS connection must have negotiated H2TLSProto via ALPN;
// anything else is rejected before any HTTP/2 traffic is read.
func (s *Server) Serve(ln net.Listener) error {
	log := s.Config.Logger
	if log == nil {
		log = defaultLogger()
	}

	for {
		c, err := ln.Accept()
		if err != nil {
			return err
		}

		if tlsConn, ok := c.(connALPN); ok {
			if err := tlsConn.Handshake(); err != nil {
				log.Printf("h2 server: TLS handshake: %s", err)
				c.Close()
				continue
			}
			if proto := tlsConn.ConnectionState().NegotiatedProtocol; proto != H2TLSProto {
				log.Printf("h2 server: peer negotiated unsupported protocol %q", proto)
				c.Close()
				continue
			}
		}

		go s.serveConn(c)
	}
}

func (s *Server) serveConn(c net.Conn) {
	conn, err := NewConn(c, s.Config, true)
	if err != nil {
		c.Close()
		return
	}
	conn.Serve()
}
