package http2

import "sync"

// FrameType identifies an HTTP/2 frame's wire type.
//
// https://httpwg.org/specs/rfc7540.html#FrameTypes
type FrameType uint8

// The per-type FrameType constants (FrameData, FrameHeaders, FramePriority, FrameResetStream,
// FrameSettings, FramePushPromise, FramePing, FrameGoAway, FrameWindowUpdate, FrameContinuation)
// are declared alongside their Frame implementations in data.go, headers.go, priority.go,
// rststream.go, settings.go, pushpromise.go, ping.go, goaway.go, windowupdate.go and
// continuation.go respectively, matching the teacher's convention of a frame type owning its own
// wire-type constant.
const (
	// FrameDisconnect is internal to this engine: a synthetic queue entry that tells the
	// Flusher to drain outstanding work and then close the transport. It never appears on the
	// wire and has no FrameHeader encoding.
	FrameDisconnect FrameType = 0xff

	minFrameType FrameType = FrameData
	maxFrameType FrameType = FrameContinuation
)

func (t FrameType) String() string {
	switch t {
	case FrameData:
		return "DATA"
	case FrameHeaders:
		return "HEADERS"
	case FramePriority:
		return "PRIORITY"
	case FrameResetStream:
		return "RST_STREAM"
	case FrameSettings:
		return "SETTINGS"
	case FramePushPromise:
		return "PUSH_PROMISE"
	case FramePing:
		return "PING"
	case FrameGoAway:
		return "GOAWAY"
	case FrameWindowUpdate:
		return "WINDOW_UPDATE"
	case FrameContinuation:
		return "CONTINUATION"
	case FrameDisconnect:
		return "DISCONNECT"
	default:
		return "UNKNOWN"
	}
}

// Frame is the contract every typed frame record (Data, Headers, Settings, ...) satisfies.
//
// This interface is reconstructed from the usage contract visible across the sibling frame
// types (each already implements Type/Reset/Deserialize/Serialize) rather than copied from a
// single source file: the retrieved reference material's own dispatcher was lost in transit (see
// DESIGN.md).
type Frame interface {
	Type() FrameType
	Reset()
	// Deserialize reads fr's payload (already read off the wire by the FrameHeader) into the
	// receiver's fields.
	Deserialize(fr *FrameHeader) error
	// Serialize writes the receiver's fields into fr's payload and flags, ready for the
	// FrameHeader to emit.
	Serialize(fr *FrameHeader)
}

// framePools holds one sync.Pool per concrete frame type, keyed by FrameType, so AcquireFrame
// can hand back a ready-to-use, reset Frame without an allocation on the hot path.
var framePools = [maxFrameType + 1]pooler{
	FrameData:         poolerFor(func() Frame { return &Data{} }),
	FrameHeaders:      poolerFor(func() Frame { return &Headers{} }),
	FramePriority:     poolerFor(func() Frame { return &Priority{} }),
	FrameResetStream:  poolerFor(func() Frame { return &RstStream{} }),
	FrameSettings:     poolerFor(func() Frame { return &Settings{} }),
	FramePushPromise:  poolerFor(func() Frame { return &PushPromise{} }),
	FramePing:         poolerFor(func() Frame { return &Ping{} }),
	FrameGoAway:       poolerFor(func() Frame { return &GoAway{} }),
	FrameWindowUpdate: poolerFor(func() Frame { return &WindowUpdate{} }),
	FrameContinuation: poolerFor(func() Frame { return &Continuation{} }),
}

// AcquireFrame returns a pooled, reset Frame of the given type, or nil if kind is not a known
// frame type (the caller must treat that as ErrUnknownFrame).
func AcquireFrame(kind FrameType) Frame {
	if kind < minFrameType || kind > maxFrameType {
		return nil
	}
	fr := framePools[kind].get()
	fr.Reset()
	return fr
}

// ReleaseFrame returns fr to its type's pool after resetting it.
func ReleaseFrame(fr Frame) {
	if fr == nil {
		return
	}
	fr.Reset()
	if t := fr.Type(); t >= minFrameType && t <= maxFrameType {
		framePools[t].put(fr)
	}
}

type pooler struct {
	get func() Frame
	put func(Frame)
}

// poolerFor builds a pooler backed by a sync.Pool for the concrete type construct builds.
func poolerFor(construct func() Frame) pooler {
	p := sync.Pool{New: func() interface{} { return construct() }}
	return pooler{
		get: func() Frame { return p.Get().(Frame) },
		put: func(fr Frame) { p.Put(fr) },
	}
}
