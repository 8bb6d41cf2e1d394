package http2

import (
	"github.com/nilgrove/h2session/http2utils"
)

const FramePriority FrameType = 0x2

var _ Frame = &Priority{}

// Priority represents the Priority frame.
//
// https://tools.ietf.org/html/rfc7540#section-6.3
type Priority struct {
	stream    uint32
	weight    byte
	exclusive bool
}

func (pry *Priority) Type() FrameType {
	return FramePriority
}

// Reset resets priority fields.
func (pry *Priority) Reset() {
	pry.stream = 0
	pry.weight = 0
	pry.exclusive = false
}

func (pry *Priority) CopyTo(p *Priority) {
	p.stream = pry.stream
	p.weight = pry.weight
	p.exclusive = pry.exclusive
}

// Stream returns the Priority frame's dependency stream id (the exclusive bit excluded; see
// Exclusive).
func (pry *Priority) Stream() uint32 {
	return pry.stream
}

// SetStream sets the Priority frame's dependency stream id. The top bit of stream, if any, is
// discarded — use SetExclusive to carry RFC 7540 §5.3's exclusive-dependency bit, which lives in
// the same wire byte but is tracked as its own field so it survives Deserialize/Serialize
// round-trips instead of being silently masked away.
func (pry *Priority) SetStream(stream uint32) {
	pry.stream = stream & (1<<31 - 1)
}

// Exclusive reports whether this PRIORITY frame reparents stream exclusively.
func (pry *Priority) Exclusive() bool {
	return pry.exclusive
}

// SetExclusive sets the exclusive-dependency bit.
func (pry *Priority) SetExclusive(exclusive bool) {
	pry.exclusive = exclusive
}

// Weight returns the Priority frame weight.
func (pry *Priority) Weight() byte {
	return pry.weight
}

// SetWeight sets the Priority frame weight.
func (pry *Priority) SetWeight(w byte) {
	pry.weight = w
}

func (pry *Priority) Deserialize(fr *FrameHeader) (err error) {
	if len(fr.payload) < 5 {
		err = ErrMissingBytes
	} else {
		raw := http2utils.BytesToUint32(fr.payload)
		pry.stream = raw & (1<<31 - 1)
		pry.exclusive = raw&(1<<31) != 0
		pry.weight = fr.payload[4]
	}

	return
}

func (pry *Priority) Serialize(fr *FrameHeader) {
	raw := pry.stream
	if pry.exclusive {
		raw |= 1 << 31
	}
	fr.payload = http2utils.AppendUint32Bytes(fr.payload[:0], raw)
	fr.payload = append(fr.payload, pry.weight)
}
