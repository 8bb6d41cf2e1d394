package http2

import (
	"bufio"
	"errors"
	"net"
	"testing"
)

// fakeListener hands out pre-connected net.Conn values instead of doing a real accept(2), so
// Server.Serve can be exercised without binding a socket.
type fakeListener struct {
	conns  chan net.Conn
	closed bool
}

func (l *fakeListener) Accept() (net.Conn, error) {
	c, ok := <-l.conns
	if !ok {
		return nil, errors.New("listener closed")
	}
	return c, nil
}

func (l *fakeListener) Close() error {
	if !l.closed {
		l.closed = true
		close(l.conns)
	}
	return nil
}

func (l *fakeListener) Addr() net.Addr { return nil }

// TestServerServeHandlesPlainConn checks that a non-TLS net.Conn (one that doesn't implement
// connALPN) skips the ALPN check entirely and is handed straight to Conn.Serve, which performs
// the preface exchange and sends this side's SETTINGS.
func TestServerServeHandlesPlainConn(t *testing.T) {
	serverSide, clientSide := net.Pipe()

	ln := &fakeListener{conns: make(chan net.Conn, 1)}
	ln.conns <- serverSide

	srv := &Server{Config: DefaultConfig()}
	go srv.Serve(ln)

	if _, err := clientSide.Write(connectionPreface); err != nil {
		t.Fatal(err)
	}

	br := bufio.NewReader(clientSide)
	fh, err := ReadFrameFrom(br)
	if err != nil {
		t.Fatalf("expected the server to send its initial SETTINGS, got error: %s", err)
	}
	if _, ok := fh.Body().(*Settings); !ok {
		t.Fatalf("expected a SETTINGS frame, got %s", fh.Type())
	}

	clientSide.Close()
	ln.Close()
}
