package websocket

import "errors"

// Protocol violations detected by the frame codec. All of them indicate
// a malformed peer, so none is recoverable: the owning connection is
// expected to fail the WebSocket connection, as defined in
// https://datatracker.ietf.org/doc/html/rfc6455#section-7.1.7.
var (
	// ErrReservedBits indicates an incoming header with RSV1/RSV2/RSV3
	// set, without any negotiated extension that defines their meaning.
	ErrReservedBits = errors.New("websocket: reserved bits must be 0")

	// ErrInvalidOpcode indicates an opcode in the ranges 3-7 or 11-15,
	// which are reserved for future frame types.
	ErrInvalidOpcode = errors.New("websocket: invalid opcode")

	// ErrFragmentedControl indicates a control frame (close/ping/pong)
	// with the FIN bit clear. Control frames must not be fragmented.
	ErrFragmentedControl = errors.New("websocket: control frame must not be fragmented")

	// ErrControlTooLarge indicates a control frame with a payload
	// length above 125 bytes.
	ErrControlTooLarge = errors.New("websocket: control frame payload too large")

	// ErrUnsupportedLength indicates a payload length of 2^53 bytes or
	// more, which not every peer can represent as an exact integer.
	// Reported for both incoming and outgoing frames.
	ErrUnsupportedLength = errors.New("websocket: unsupported payload length")
)
