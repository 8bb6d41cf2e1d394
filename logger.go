package http2

import (
	"log"
	"os"
)

// Logger is the minimal logging surface the Session needs, satisfied directly by *log.Logger
// the way dgrr-http2's serverConn.go injects one, so callers that already use the standard
// logger don't need an adapter.
type Logger interface {
	Printf(format string, args ...interface{})
}

// defaultLogger writes to stderr with the "http2: " prefix and log.LstdFlags.
func defaultLogger() Logger {
	return log.New(os.Stderr, "http2: ", log.LstdFlags)
}
