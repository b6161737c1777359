package websocket

import "strconv"

// Opcode denotes the type of a WebSocket frame, as defined in
// https://datatracker.ietf.org/doc/html/rfc6455#section-5.2 and
// https://datatracker.ietf.org/doc/html/rfc6455#section-11.8.
type Opcode int

const (
	OpcodeContinuation Opcode = iota
	OpcodeText
	OpcodeBinary
	// 3-7 are reserved for further non-control frames.
	_
	_
	_
	_
	_
	OpcodeClose
	OpcodePing
	OpcodePong
	// 11-15 are reserved for further control frames.
)

// String returns the opcode's name, or its number if it's unrecognized.
func (o Opcode) String() string {
	switch o {
	case OpcodeContinuation:
		return "continuation"
	case OpcodeText:
		return "text"
	case OpcodeBinary:
		return "binary"
	case OpcodeClose:
		return "close"
	case OpcodePing:
		return "ping"
	case OpcodePong:
		return "pong"
	default:
		return strconv.Itoa(int(o))
	}
}

// isData reports whether frames with this opcode may
// be fragmented, i.e. sent with the FIN bit clear.
func (o Opcode) isData() bool {
	return o >= OpcodeContinuation && o <= OpcodeBinary
}

// isControl reports whether this is a close, ping, or pong opcode.
func (o Opcode) isControl() bool {
	return o >= OpcodeClose && o <= OpcodePong
}

func (o Opcode) isValid() bool {
	return o.isData() || o.isControl()
}

// Frame parsing/construction constants, as defined in
// https://datatracker.ietf.org/doc/html/rfc6455#section-5.2.
const (
	bit0     = 0x80
	bit1     = 0x40
	bit2     = 0x20
	bit3     = 0x10
	bits1to7 = 0x7f
	bits4to7 = 0x0f

	len7bits  = 125 // Payload length of up to 125 bytes.
	len16bits = 126 // Extended payload length of up to 64 KiB.
	len64bits = 127 // Extended payload length of up to 16 EiB.
)

// maxControlPayload is the maximum length of a control frame payload,
// as defined in https://datatracker.ietf.org/doc/html/rfc6455#section-5.5.
const (
	maxControlPayload = 125
)

// maxExactLength is the payload length (2^53) from which on not every
// integer can be represented exactly by peers limited to double-precision
// arithmetic. The codec rejects lengths of 2^53 or more in both directions.
const maxExactLength = uint64(1) << 53

// frameHeader is based on https://datatracker.ietf.org/doc/html/rfc6455#section-5.2,
// excluding the payload data. It is populated incrementally by the
// decoder as header bytes arrive.
type frameHeader struct {
	// Bit 0: Indicates that this is the final fragment in a message.
	// The first fragment MAY also be the final fragment.
	fin bool
	// Bits 1-3: Reserved.
	rsv [3]bool
	// Bits 4-7: Defines the interpretation of the "Payload data".
	opcode Opcode
	// Bit 8: Defines whether the "Payload data" is masked. If set to 1,
	// maskKey is used to unmask the "Payload data" as per [Section 5.3].
	// All frames sent from client to server have this bit set to 1.
	//
	// [Section 5.3]: https://datatracker.ietf.org/doc/html/rfc6455#section-5.3
	mask bool
	// The 4-byte masking key, meaningful only when mask is set.
	maskKey [4]byte
	// Bits 9-15 + 0 or 2 or 8 bytes: The length of the "Payload data",
	// in bytes, after extended-length resolution. Multibyte length
	// quantities are expressed in network byte order.
	payloadLength uint64
	// The number of bytes from the start of the frame to the start of
	// the payload: 2, 4, or 10, plus 4 when the frame is masked.
	payloadOffset int
}

// Frame is a single decoded WebSocket frame: its opcode, its FIN bit,
// and its unmasked payload. The payload may be empty. Fragmented
// messages arrive as multiple frames; reassembling them is the
// responsibility of the layer above the codec.
type Frame struct {
	Opcode Opcode
	Fin    bool
	Data   []byte
}

// applyMask implements https://datatracker.ietf.org/doc/html/rfc6455#section-5.3.
// Notice that it changes the input slice in-place! However, this function
// is its own inverse: applying it twice with the same key results in the
// original unmasked bytes, which is why the decoder and the encoder
// share it.
func applyMask(b []byte, key [4]byte) {
	for i := range b {
		b[i] ^= key[i&3]
	}
}
