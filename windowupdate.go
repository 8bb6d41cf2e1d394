package http2

import (
	"github.com/nilgrove/h2session/http2utils"
)

const FrameWindowUpdate FrameType = 0x8

var _ Frame = &WindowUpdate{}

// WindowUpdate carries a flow-control credit increment, either session-scoped (stream id 0) or
// stream-scoped.
//
// https://tools.ietf.org/html/rfc7540#section-6.9
type WindowUpdate struct {
	increment uint32
}

// AcquireWindowUpdate is a typed convenience wrapper over AcquireFrame.
func AcquireWindowUpdate() *WindowUpdate {
	return AcquireFrame(FrameWindowUpdate).(*WindowUpdate)
}

// ReleaseWindowUpdate is a typed convenience wrapper over ReleaseFrame.
func ReleaseWindowUpdate(wu *WindowUpdate) {
	ReleaseFrame(wu)
}

func (wu *WindowUpdate) Type() FrameType {
	return FrameWindowUpdate
}

// Reset ...
func (wu *WindowUpdate) Reset() {
	wu.increment = 0
}

// CopyTo ...
func (wu *WindowUpdate) CopyTo(w *WindowUpdate) {
	w.increment = wu.increment
}

// Increment ...
func (wu *WindowUpdate) Increment() uint32 {
	return wu.increment
}

// SetIncrement ...
func (wu *WindowUpdate) SetIncrement(increment uint32) {
	wu.increment = increment & (1<<31 - 1)
}

func (wu *WindowUpdate) Deserialize(fr *FrameHeader) error {
	if len(fr.payload) < 4 {
		wu.increment = 0
		return ErrMissingBytes
	}

	wu.increment = http2utils.BytesToUint32(fr.payload) & (1<<31 - 1)

	return nil
}

func (wu *WindowUpdate) Serialize(fr *FrameHeader) {
	fr.payload = http2utils.AppendUint32Bytes(fr.payload[:0], wu.increment)
}
