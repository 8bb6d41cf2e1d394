package http2

import (
	"bytes"

	"golang.org/x/net/http2/hpack"
)

// hpackCodec is the default HeaderCodec, backed by golang.org/x/net/http2/hpack. It owns one
// encoder and one decoder, each with its own dynamic table, matching the directional pairing
// dgrr-http2's conn.go/server.go kept (enc for outbound, dec for inbound) before the hand-rolled
// hpack.go draft was dropped in favor of this real dependency.
type hpackCodec struct {
	buf bytes.Buffer
	enc *hpack.Encoder
	dec *hpack.Decoder
}

// NewHPACKCodec builds the default HeaderCodec with maxDynamicTableSize applied to both sides.
func NewHPACKCodec(maxDynamicTableSize uint32) HeaderCodec {
	c := &hpackCodec{}
	c.enc = hpack.NewEncoder(&c.buf)
	c.enc.SetMaxDynamicTableSize(maxDynamicTableSize)
	c.dec = hpack.NewDecoder(maxDynamicTableSize, nil)
	return c
}

func (c *hpackCodec) Encode(dst []byte, fields []HeaderField) []byte {
	c.buf.Reset()
	for i := range fields {
		f := &fields[i]
		c.enc.WriteField(hpack.HeaderField{
			Name:      f.Key(),
			Value:     f.Value(),
			Sensitive: f.IsSensible(),
		})
	}
	return append(dst, c.buf.Bytes()...)
}

func (c *hpackCodec) Decode(block []byte, emit func(HeaderField)) error {
	c.dec.SetEmitFunc(func(hf hpack.HeaderField) {
		var out HeaderField
		out.SetKey(hf.Name)
		out.SetValue(hf.Value)
		out.SetSensible(hf.Sensitive)
		emit(out)
	})
	_, err := c.dec.Write(block)
	if err != nil {
		return err
	}
	return c.dec.Close()
}

func (c *hpackCodec) SetMaxDynamicTableSize(size uint32) {
	c.enc.SetMaxDynamicTableSize(size)
	c.dec.SetMaxDynamicTableSize(size)
}
