package websocket

import (
	"crypto/rand"
	"io"
)

// FrameHandler receives each completed incoming frame exactly once, in
// the byte order of the underlying stream, on the same call stack as
// [Codec.Feed]. Ownership of the frame's payload buffer transfers to
// the handler; the codec never touches it again.
type FrameHandler func(Frame)

// Codec pairs a streaming frame decoder with a frame serializer for
// one endpoint of a WebSocket connection. The masking flag is fixed at
// construction time by whoever ran the opening handshake: a client
// MUST mask every frame it sends, a server MUST NOT, as defined in
// https://datatracker.ietf.org/doc/html/rfc6455#section-5.3.
//
// A Codec owns mutable decoding state and is not safe for concurrent
// use. None of its methods block.
type Codec struct {
	masking bool
	randSrc io.Reader

	dec decoder
	err error
}

// NewCodec returns a codec that reports each decoded frame to h.
func NewCodec(masking bool, h FrameHandler) *Codec {
	c := &Codec{masking: masking, randSrc: rand.Reader}
	c.dec.emit = h
	return c
}

// Feed consumes a delivery of raw transport bytes, invoking the frame
// handler once per frame it completes. Zero-length deliveries are a
// no-op. The first protocol violation is terminal: the codec reports
// it and refuses all further deliveries, and the owner is expected to
// drop the connection.
func (c *Codec) Feed(chunk []byte) error {
	if c.err != nil {
		return c.err
	}

	c.err = c.dec.feed(chunk)
	return c.err
}

// Err returns the error that killed the codec, if any.
func (c *Codec) Err() error {
	return c.err
}

// BuildFrame serializes a single unfragmented frame with the given
// opcode, masked iff the codec is the client endpoint. The only
// possible error for payloads under 2^53 bytes is a failure of the
// random source.
func (c *Codec) BuildFrame(op Opcode, payload []byte) ([]byte, error) {
	return buildFrame(op, payload, c.masking, c.randSrc)
}

// BuildContinuationFrame serializes a continuation frame.
func (c *Codec) BuildContinuationFrame(payload []byte) ([]byte, error) {
	return c.BuildFrame(OpcodeContinuation, payload)
}

// BuildTextFrame serializes a text data frame.
func (c *Codec) BuildTextFrame(payload []byte) ([]byte, error) {
	return c.BuildFrame(OpcodeText, payload)
}

// BuildBinaryFrame serializes a binary data frame.
func (c *Codec) BuildBinaryFrame(payload []byte) ([]byte, error) {
	return c.BuildFrame(OpcodeBinary, payload)
}

// BuildCloseFrame serializes a close control frame.
func (c *Codec) BuildCloseFrame(payload []byte) ([]byte, error) {
	return c.BuildFrame(OpcodeClose, payload)
}

// BuildPingFrame serializes a ping control frame.
func (c *Codec) BuildPingFrame(payload []byte) ([]byte, error) {
	return c.BuildFrame(OpcodePing, payload)
}

// BuildPongFrame serializes a pong control frame.
func (c *Codec) BuildPongFrame(payload []byte) ([]byte, error) {
	return c.BuildFrame(OpcodePong, payload)
}
