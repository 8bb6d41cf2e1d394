package http2

import (
	"bufio"
	"crypto/tls"
	"net"

	"golang.org/x/crypto/acme/autocert"
)

// connTransport is the default Transport, a thin bufio wrapper over a net.Conn. Grounded on
// dgrr-http2/server_fasthttp.go's acquireTLSConfig (certificate loading, ALPN NextProtos) for
// the TLS construction helpers below; the read loop itself belongs to Conn.Serve and writes go
// through the Session's Flusher, not this adapter.
type connTransport struct {
	c  net.Conn
	br *bufio.Reader
	bw *bufio.Writer
}

// NewConnTransport wraps an already-accepted, already-ALPN-negotiated net.Conn as a Transport.
func NewConnTransport(c net.Conn) Transport {
	return &connTransport{c: c, br: bufio.NewReader(c), bw: bufio.NewWriter(c)}
}

func (t *connTransport) Read(p []byte) (int, error)  { return t.br.Read(p) }
func (t *connTransport) Write(p []byte) (int, error) { return t.bw.Write(p) }
func (t *connTransport) Flush() error                { return t.bw.Flush() }
func (t *connTransport) Close() error                { return t.c.Close() }
func (t *connTransport) RemoteAddr() string          { return t.c.RemoteAddr().String() }

// halfCloser is satisfied by *net.TCPConn, *tls.Conn, and any other duplex connection that can
// shut down its write side independently of its read side.
type halfCloser interface {
	CloseWrite() error
}

// CloseWrite shuts down the write side of the underlying connection only, leaving reads open
// for whatever the peer still has in flight — see the Transport interface doc in
// collaborators.go. Falls back to a full Close when the concrete net.Conn doesn't expose
// CloseWrite (e.g. net.Pipe's in-memory conn), since there is no more targeted option left.
func (t *connTransport) CloseWrite() error {
	if hc, ok := t.c.(halfCloser); ok {
		return hc.CloseWrite()
	}
	return t.c.Close()
}

// Reader exposes the underlying *bufio.Reader for the frame-parsing shim (conn.go) that reads
// 9-byte frame headers directly rather than through the io.Reader interface.
func (t *connTransport) Reader() *bufio.Reader { return t.br }

// TLSConfig builds a *tls.Config suitable for ALPN-negotiated h2, loading a certificate pair
// from disk. Equivalent to dgrr-http2's acquireTLSConfig, kept as a named export so callers
// don't have to special-case NextProtos themselves.
func TLSConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{H2TLSProto},
	}
	return cfg, nil
}

// AutocertTLSConfig builds a *tls.Config that fetches certificates automatically via ACME for
// the given hostnames, caching them under cacheDir. This is the optional TLSProvider mentioned
// in the domain dependency list: dgrr-http2 never wired autocert itself (it only ever loads a
// static cert/key pair), so this adapter is the one place in the repo that exercises
// golang.org/x/crypto/acme/autocert, for deployments that want Let's Encrypt-issued certs
// instead of a manually managed keypair.
func AutocertTLSConfig(cacheDir string, hostnames ...string) *tls.Config {
	mgr := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(hostnames...),
		Cache:      autocert.DirCache(cacheDir),
	}
	cfg := mgr.TLSConfig()
	cfg.NextProtos = append(cfg.NextProtos, H2TLSProto)
	return cfg
}
