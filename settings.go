package http2

const FrameSettings FrameType = 0x4

var _ Frame = &Settings{}

// SETTINGS parameter identifiers.
//
// https://httpwg.org/specs/rfc7540.html#SettingValues
const (
	SettingHeaderTableSize      uint16 = 0x1
	SettingEnablePush           uint16 = 0x2
	SettingMaxConcurrentStreams uint16 = 0x3
	SettingInitialWindowSize    uint16 = 0x4
	SettingMaxFrameSize         uint16 = 0x5
	SettingMaxHeaderListSize    uint16 = 0x6
)

// RFC 7540 §6.5.2 defaults and §6.5.1 limits.
const (
	DefaultHeaderTableSize      uint32 = 4096
	DefaultEnablePush                  = true
	DefaultMaxConcurrentStreams uint32 = 100
	DefaultInitialWindowSize    uint32 = 1<<16 - 1
	DefaultMaxFrameSize         uint32 = 1 << 14
	MaxAllowedFrameSize         uint32 = 1<<24 - 1
	MinAllowedFrameSize         uint32 = 1 << 14
	MaxWindowSize               uint32 = 1<<31 - 1
)

// Settings represents a SETTINGS frame's humanized parameter set. A field that was never
// present on the wire is left at its RFC default (see Reset), and the SetXxx setters mark a
// field present so a caller can distinguish "default" from "explicitly set to the default
// value" when that matters for Serialize.
//
// https://tools.ietf.org/html/rfc7540#section-6.5
type Settings struct {
	ack bool

	HeaderTableSize      uint32
	EnablePush           bool
	MaxConcurrentStreams uint32
	InitialWindowSize    uint32
	MaxFrameSize         uint32
	MaxHeaderListSize    uint32

	// present tracks which parameters appeared on the wire (or were explicitly set locally),
	// so Serialize only emits fields the caller actually touched, matching RFC 7540 §6.5's
	// "identifiers not understood... MUST be ignored" symmetry: we don't invent values either.
	present uint8
}

const (
	presentHeaderTableSize = 1 << iota
	presentEnablePush
	presentMaxConcurrentStreams
	presentInitialWindowSize
	presentMaxFrameSize
	presentMaxHeaderListSize
)

func (st *Settings) Type() FrameType {
	return FrameSettings
}

// Reset restores RFC defaults and clears the ack flag and presence bitmap.
func (st *Settings) Reset() {
	st.ack = false
	st.HeaderTableSize = DefaultHeaderTableSize
	st.EnablePush = DefaultEnablePush
	st.MaxConcurrentStreams = DefaultMaxConcurrentStreams
	st.InitialWindowSize = DefaultInitialWindowSize
	st.MaxFrameSize = DefaultMaxFrameSize
	st.MaxHeaderListSize = 0
	st.present = 0
}

func (st *Settings) CopyTo(other *Settings) {
	other.ack = st.ack
	other.HeaderTableSize = st.HeaderTableSize
	other.EnablePush = st.EnablePush
	other.MaxConcurrentStreams = st.MaxConcurrentStreams
	other.InitialWindowSize = st.InitialWindowSize
	other.MaxFrameSize = st.MaxFrameSize
	other.MaxHeaderListSize = st.MaxHeaderListSize
	other.present = st.present
}

// IsAck reports whether this is a SETTINGS acknowledgement (empty payload, ACK flag set).
func (st *Settings) IsAck() bool { return st.ack }

// SetAck marks this Settings as an acknowledgement; Serialize then ignores all fields.
func (st *Settings) SetAck(ack bool) { st.ack = ack }

func (st *Settings) SetHeaderTableSize(v uint32) {
	st.HeaderTableSize = v
	st.present |= presentHeaderTableSize
}

func (st *Settings) SetEnablePush(v bool) {
	st.EnablePush = v
	st.present |= presentEnablePush
}

func (st *Settings) SetMaxConcurrentStreams(v uint32) {
	st.MaxConcurrentStreams = v
	st.present |= presentMaxConcurrentStreams
}

func (st *Settings) SetInitialWindowSize(v uint32) {
	st.InitialWindowSize = v
	st.present |= presentInitialWindowSize
}

func (st *Settings) SetMaxFrameSize(v uint32) {
	st.MaxFrameSize = v
	st.present |= presentMaxFrameSize
}

func (st *Settings) SetMaxHeaderListSize(v uint32) {
	st.MaxHeaderListSize = v
	st.present |= presentMaxHeaderListSize
}

// HasInitialWindowSize reports whether INITIAL_WINDOW_SIZE was present on this frame — callers
// that need to compute a delta against the previous value (see updateInitialStreamWindow in
// flowcontrol.go) use this to avoid mistaking "not sent" for "sent as zero".
func (st *Settings) HasInitialWindowSize() bool { return st.present&presentInitialWindowSize != 0 }

// HasMaxFrameSize reports whether MAX_FRAME_SIZE was present on this frame.
func (st *Settings) HasMaxFrameSize() bool { return st.present&presentMaxFrameSize != 0 }

// Deserialize decodes a SETTINGS frame payload: a sequence of 6-byte (2-byte id, 4-byte value)
// records. An ACK-flagged frame must have zero length (RFC 7540 §6.5); a non-empty one returns
// ErrPayloadExceeds.
func (st *Settings) Deserialize(fr *FrameHeader) error {
	st.ack = fr.Flags().Has(FlagAck)
	if st.ack {
		if len(fr.payload) != 0 {
			return ErrPayloadExceeds
		}
		return nil
	}

	payload := fr.payload
	if len(payload)%6 != 0 {
		return ErrMissingBytes
	}

	for i := 0; i+6 <= len(payload); i += 6 {
		id := uint16(payload[i])<<8 | uint16(payload[i+1])
		val := uint32(payload[i+2])<<24 | uint32(payload[i+3])<<16 | uint32(payload[i+4])<<8 | uint32(payload[i+5])

		switch id {
		case SettingHeaderTableSize:
			st.SetHeaderTableSize(val)
		case SettingEnablePush:
			st.SetEnablePush(val != 0)
		case SettingMaxConcurrentStreams:
			st.SetMaxConcurrentStreams(val)
		case SettingInitialWindowSize:
			st.SetInitialWindowSize(val)
		case SettingMaxFrameSize:
			st.SetMaxFrameSize(val)
		case SettingMaxHeaderListSize:
			st.SetMaxHeaderListSize(val)
			// unrecognized identifiers are ignored per RFC 7540 §6.5.2
		}
	}

	return nil
}

// Serialize encodes only the parameters that were marked present, in ascending identifier order,
// matching the wire format a peer expects for a readable settings list.
func (st *Settings) Serialize(fr *FrameHeader) {
	fr.payload = fr.payload[:0]

	if st.ack {
		fr.SetFlags(fr.Flags().Add(FlagAck))
		return
	}

	if st.present&presentHeaderTableSize != 0 {
		fr.payload = appendSetting(fr.payload, SettingHeaderTableSize, st.HeaderTableSize)
	}
	if st.present&presentEnablePush != 0 {
		v := uint32(0)
		if st.EnablePush {
			v = 1
		}
		fr.payload = appendSetting(fr.payload, SettingEnablePush, v)
	}
	if st.present&presentMaxConcurrentStreams != 0 {
		fr.payload = appendSetting(fr.payload, SettingMaxConcurrentStreams, st.MaxConcurrentStreams)
	}
	if st.present&presentInitialWindowSize != 0 {
		fr.payload = appendSetting(fr.payload, SettingInitialWindowSize, st.InitialWindowSize)
	}
	if st.present&presentMaxFrameSize != 0 {
		fr.payload = appendSetting(fr.payload, SettingMaxFrameSize, st.MaxFrameSize)
	}
	if st.present&presentMaxHeaderListSize != 0 {
		fr.payload = appendSetting(fr.payload, SettingMaxHeaderListSize, st.MaxHeaderListSize)
	}
}

func appendSetting(dst []byte, id uint16, val uint32) []byte {
	return append(dst,
		byte(id>>8), byte(id),
		byte(val>>24), byte(val>>16), byte(val>>8), byte(val),
	)
}
