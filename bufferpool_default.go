package http2

import "github.com/valyala/bytebufferpool"

// defaultBufferPool is the default BufferPool, backed by github.com/valyala/bytebufferpool — the
// same pooled-buffer library dgrr-http2 takes as a direct dependency (previously unused by the
// core frame/session code, only reachable via the fasthttp bridge's own internals).
type defaultBufferPool struct{}

// NewDefaultBufferPool builds the default BufferPool.
func NewDefaultBufferPool() BufferPool {
	return defaultBufferPool{}
}

func (defaultBufferPool) Get() []byte {
	bb := bytebufferpool.Get()
	return bb.B
}

func (defaultBufferPool) Put(b []byte) {
	bb := &bytebufferpool.ByteBuffer{B: b}
	bytebufferpool.Put(bb)
}
