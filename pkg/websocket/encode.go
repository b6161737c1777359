package websocket

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// buildFrame returns a newly allocated, complete frame with the FIN
// bit set, all reserved bits clear, and the given opcode. When masked,
// a fresh random 4-byte masking key is drawn from randSrc per frame,
// and the payload region of the buffer is masked in place.
//
// It is based on:
//   - Base framing protocol: https://datatracker.ietf.org/doc/html/rfc6455#section-5.2
//   - Client-to-server masking: https://datatracker.ietf.org/doc/html/rfc6455#section-5.3
//   - Sending data: https://datatracker.ietf.org/doc/html/rfc6455#section-6.1
func buildFrame(op Opcode, payload []byte, masked bool, randSrc io.Reader) ([]byte, error) {
	n := uint64(len(payload))
	if n >= maxExactLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrUnsupportedLength, n)
	}

	// Note that in all cases, the minimal number of
	// bytes MUST be used to encode the payload length.
	extLen := 0
	switch {
	case n <= len7bits:
	case n <= math.MaxUint16:
		extLen = 2
	default:
		extLen = 8
	}

	offset := 2 + extLen
	if masked {
		offset += 4
	}

	buf := make([]byte, offset+len(payload))
	buf[0] = bit0 | byte(op)

	switch extLen {
	case 0:
		buf[1] = byte(n)
	case 2:
		buf[1] = len16bits
		binary.BigEndian.PutUint16(buf[2:4], uint16(n)) //gosec:disable G115 -- value checked before cast
	case 8:
		buf[1] = len64bits
		binary.BigEndian.PutUint64(buf[2:10], n)
	}

	copy(buf[offset:], payload)

	if masked {
		buf[1] |= bit0

		var key [4]byte
		if _, err := io.ReadFull(randSrc, key[:]); err != nil {
			return nil, fmt.Errorf("failed to generate masking key for WebSocket frame: %w", err)
		}
		copy(buf[2+extLen:], key[:])

		applyMask(buf[offset:], key)
	}

	return buf, nil
}
