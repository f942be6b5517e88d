// Package grpcframe implements the gRPC length-prefixed message framing
// used to decode unary and server-streaming responses: one byte
// compression flag, a 4-byte big-endian length, then the payload.
package grpcframe

import "encoding/binary"

const headerSize = 5

// Decoder is a stateful streaming frame decoder. Feed it arbitrary
// byte chunks (as they arrive off the wire, split however the
// transport happens to split them) and it emits zero or more complete
// message payloads, retaining any incomplete tail across calls.
type Decoder struct {
	buf []byte
}

// NewDecoder returns a fresh decoder with no buffered state.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode appends chunk to the internal buffer and returns every
// complete frame payload now available. Zero-length payloads are
// valid and are returned as empty (non-nil) slices.
func (d *Decoder) Decode(chunk []byte) [][]byte {
	d.buf = append(d.buf, chunk...)

	var out [][]byte
	for {
		if len(d.buf) < headerSize {
			break
		}
		length := binary.BigEndian.Uint32(d.buf[1:5])
		total := headerSize + int(length)
		if len(d.buf) < total {
			break
		}
		payload := make([]byte, length)
		copy(payload, d.buf[headerSize:total])
		out = append(out, payload)
		d.buf = d.buf[total:]
	}
	return out
}

// Reset discards any buffered partial frame.
func (d *Decoder) Reset() {
	d.buf = nil
}

// Encode frames a single payload for transmission: compression flag 0
// (uncompressed) + big-endian length + payload.
func Encode(payload []byte) []byte {
	out := make([]byte, headerSize+len(payload))
	out[0] = 0
	binary.BigEndian.PutUint32(out[1:5], uint32(len(payload)))
	copy(out[headerSize:], payload)
	return out
}
