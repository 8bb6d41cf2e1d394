package http2

// FrameFlags is the 8-bit flags field of a frame header. Individual flag bits are declared
// alongside DefaultFrameSize in frameHeader.go; this file only carries the bitset helpers, which
// no single frame type owns.
type FrameFlags uint8

// Has reports whether flag is set.
func (ff FrameFlags) Has(flag FrameFlags) bool {
	return ff&flag == flag
}

// Add returns ff with flag set.
func (ff FrameFlags) Add(flag FrameFlags) FrameFlags {
	return ff | flag
}

// Del returns ff with flag cleared.
func (ff FrameFlags) Del(flag FrameFlags) FrameFlags {
	return ff &^ flag
}
