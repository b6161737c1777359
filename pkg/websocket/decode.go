package websocket

import (
	"encoding/binary"
	"fmt"
)

// decoderPhase is the decoder's position within the current frame.
type decoderPhase int

const (
	awaitHeader decoderPhase = iota
	awaitPayload
)

// decoder assembles WebSocket frames from arbitrary byte deliveries.
// A single delivery may contain header bytes only, a header plus a
// partial payload, exactly one frame, multiple whole frames, or the
// tail of one frame followed by the head of the next. The decoder
// never reads ahead of what has arrived: it parks between deliveries
// with a partial header in scratch, or a partial payload.
//
// It is based on:
//   - Base framing protocol: https://datatracker.ietf.org/doc/html/rfc6455#section-5.2
//   - Client-to-server masking: https://datatracker.ietf.org/doc/html/rfc6455#section-5.3
//   - Receiving data: https://datatracker.ietf.org/doc/html/rfc6455#section-6.2
type decoder struct {
	phase   decoderPhase
	scratch []byte       // Unparsed header bytes, while phase == awaitHeader.
	header  *frameHeader // Nil until the current frame's header is complete.
	payload []byte       // Exactly header.payloadLength bytes, allocated on the header/payload transition.
	written int

	emit func(Frame)
}

// feed consumes the delivery entirely, emitting each frame it
// completes, in byte order, before returning. The first protocol
// violation is returned as one of the sentinel errors in errors.go;
// the decoder is then in an unspecified state and must not be fed
// again.
func (d *decoder) feed(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	if d.phase == awaitPayload {
		chunk = d.fillPayload(chunk)
		if d.phase == awaitPayload {
			return nil // The delivery ended mid-payload.
		}
	}

	d.scratch = append(d.scratch, chunk...)
	for {
		h, err := parseFrameHeader(d.scratch)
		if err != nil {
			return err
		}
		if h == nil {
			return nil // The delivery ended mid-header.
		}

		rest := d.scratch[h.payloadOffset:]
		d.scratch = nil
		d.header = h
		d.payload = make([]byte, h.payloadLength)
		d.written = 0
		d.phase = awaitPayload

		rest = d.fillPayload(rest)
		if d.phase == awaitPayload {
			return nil // The delivery ended mid-payload.
		}
		if len(rest) == 0 {
			return nil
		}
		d.scratch = rest // The head of the next frame.
	}
}

// fillPayload copies bytes into the in-progress payload buffer, and
// emits the frame as soon as the buffer is full. A zero-length payload
// is full immediately, so empty frames are emitted within the same
// call that completed their header. It returns the unconsumed
// remainder of b.
func (d *decoder) fillPayload(b []byte) []byte {
	n := copy(d.payload[d.written:], b)
	d.written += n

	if d.written == len(d.payload) {
		d.emitFrame()
	}

	return b[n:]
}

// emitFrame unmasks the completed payload if needed, resets the
// decoder for the next frame, and hands the payload to the listener.
// Ownership of the payload buffer transfers to the listener: the
// decoder allocates a fresh one per frame and never retains it.
func (d *decoder) emitFrame() {
	h, data := d.header, d.payload
	d.phase = awaitHeader
	d.header = nil
	d.payload = nil
	d.written = 0

	if h.mask {
		applyMask(data, h.maskKey)
	}

	d.emit(Frame{Opcode: h.opcode, Fin: h.fin, Data: data})
}

// parseFrameHeader parses one complete frame header from the start of
// b. It returns (nil, nil) while b is still too short, so callers can
// simply wait for the next delivery. Validations that need only the
// 2-byte base header are performed as soon as those 2 bytes exist,
// before any extended length or masking key arrives.
func parseFrameHeader(b []byte) (*frameHeader, error) {
	if len(b) < 2 {
		return nil, nil
	}

	h := &frameHeader{
		fin:    b[0]&bit0 != 0,
		rsv:    [3]bool{b[0]&bit1 != 0, b[0]&bit2 != 0, b[0]&bit3 != 0},
		opcode: Opcode(b[0] & bits4to7),
		mask:   b[1]&bit0 != 0,
	}

	// "Reserved bits MUST be 0 unless an extension is negotiated that
	// defines meanings for non-zero values. If a nonzero value is
	// received and none of the negotiated extensions defines the meaning
	// of such a nonzero value, the receiving endpoint MUST _Fail the
	// WebSocket Connection_".
	if h.rsv[0] || h.rsv[1] || h.rsv[2] {
		return nil, fmt.Errorf("%w: 0x%02x", ErrReservedBits, b[0]&(bit1|bit2|bit3))
	}

	// "If an unknown opcode is received, the receiving
	// endpoint MUST _Fail the WebSocket Connection_".
	if !h.opcode.isValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOpcode, int(h.opcode))
	}

	// "All control frames MUST have a payload length of
	// 125 bytes or less and MUST NOT be fragmented".
	if h.opcode.isControl() && !h.fin {
		return nil, fmt.Errorf("%w: opcode %s", ErrFragmentedControl, h.opcode)
	}

	h.payloadOffset = 2
	switch l := b[1] & bits1to7; l {
	case len16bits:
		h.payloadOffset = 4
		if len(b) < h.payloadOffset {
			return nil, nil
		}
		h.payloadLength = uint64(binary.BigEndian.Uint16(b[2:4]))
	case len64bits:
		h.payloadOffset = 10
		if len(b) < h.payloadOffset {
			return nil, nil
		}
		h.payloadLength = binary.BigEndian.Uint64(b[2:10])
		if h.payloadLength >= maxExactLength {
			return nil, fmt.Errorf("%w: %d bytes", ErrUnsupportedLength, h.payloadLength)
		}
	default:
		h.payloadLength = uint64(l)
	}

	if h.opcode.isControl() && h.payloadLength > maxControlPayload {
		return nil, fmt.Errorf("%w: opcode %s, %d bytes", ErrControlTooLarge, h.opcode, h.payloadLength)
	}

	if h.mask {
		if len(b) < h.payloadOffset+4 {
			return nil, nil
		}
		copy(h.maskKey[:], b[h.payloadOffset:])
		h.payloadOffset += 4
	}

	return h, nil
}
