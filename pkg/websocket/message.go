package websocket

import (
	"bytes"
	"unicode/utf8"
)

// handleFrame is the connection's [FrameHandler]: the codec invokes it
// once per decoded frame, on the read goroutine's call stack. It
// responds to control frames (whether or not they're interleaved with
// a fragmented message), and defragments data frames into [Message]s.
//
// It is based on:
//   - Fragmentation: https://datatracker.ietf.org/doc/html/rfc6455#section-5.4
//   - Control frames: https://datatracker.ietf.org/doc/html/rfc6455#section-5.5
//   - Data frames: https://datatracker.ietf.org/doc/html/rfc6455#section-5.6
//   - Closing the connection: https://datatracker.ietf.org/doc/html/rfc6455#section-7
func (c *Conn) handleFrame(f Frame) {
	if c.done {
		return // Frames trailing a closing handshake or a failure.
	}

	c.logger.Trace().Bool("fin", f.Fin).Str("opcode", f.Opcode.String()).
		Int("length", len(f.Data)).Msg("received WebSocket frame")

	switch f.Opcode {
	case OpcodeContinuation, OpcodeText, OpcodeBinary:
		c.handleDataFrame(f)

	// "If an endpoint receives a Close frame and did not previously send
	// a Close frame, the endpoint MUST send a Close frame in response".
	case OpcodeClose:
		c.closeReceived.Store(true)
		c.done = true

		status, reason := parseClosePayload(f.Data)
		c.logger.Trace().Str("close_status", status.String()).Str("close_reason", reason).
			Msg("received WebSocket close control frame")

		c.closeHandshake(status, reason)
		// No-op when this endpoint initiated the closing handshake,
		// because [Conn.closeHandshake] is idempotent - but the
		// handshake is complete in both directions either way.
		_ = c.transport.Close()

	// "An endpoint MUST be capable of handling control
	// frames in the middle of a fragmented message".
	case OpcodePing:
		if err := <-c.enqueue(OpcodePong, f.Data); err != nil {
			c.logger.Err(err).Bytes("payload", f.Data).Msg("failed to send WebSocket pong control frame")
		}

	case OpcodePong:
		// No need to handle "Pong" control frames, since this
		// client doesn't send unsolicited "Ping" control frames.
	}
}

// handleDataFrame accumulates data frames into the in-flight message,
// and publishes the message to the connection's subscribers when its
// final fragment arrives.
func (c *Conn) handleDataFrame(f Frame) {
	// "A fragmented message consists of a single frame with the FIN bit
	// clear and an opcode other than 0, followed by zero or more frames
	// with the FIN bit clear and the opcode set to 0, and terminated by
	// a single frame with the FIN bit set and an opcode of 0".
	if f.Opcode == OpcodeContinuation && c.msgOp == OpcodeContinuation {
		c.failMessage(StatusProtocolError, "continuation frame with nothing to continue")
		return
	}
	if f.Opcode != OpcodeContinuation && c.msgOp != OpcodeContinuation {
		c.failMessage(StatusProtocolError, "data frame interleaved in a fragmented message")
		return
	}

	if f.Opcode != OpcodeContinuation {
		c.msgOp = f.Opcode
	}
	c.msg.Write(f.Data)

	if !f.Fin {
		return
	}

	op := c.msgOp
	data := bytes.Clone(c.msg.Bytes())
	c.msg.Reset()
	c.msgOp = OpcodeContinuation

	if data == nil {
		data = []byte{}
	}

	// "When an endpoint is to interpret a byte stream as UTF-8 but finds
	// that the byte stream is not, in fact, a valid UTF-8 stream, that
	// endpoint MUST _Fail the WebSocket Connection_. This rule applies both
	// during the opening handshake and during subsequent data exchange".
	if op == OpcodeText && !utf8.Valid(data) {
		c.failMessage(StatusInvalidData, "invalid UTF-8 text")
		return
	}

	c.logger.Debug().Str("opcode", op.String()).Int("length", len(data)).
		Msg("finished receiving WebSocket data message")

	c.incoming <- Message{Opcode: op, Data: data}
}

// failMessage fails the WebSocket connection at the message layer,
// e.g. a broken fragmentation sequence or invalid UTF-8 text.
func (c *Conn) failMessage(status StatusCode, reason string) {
	c.logger.Error().Str("reason", reason).Msg("protocol error due to invalid message")
	c.closeHandshake(status, reason)

	c.done = true
	_ = c.transport.Close()
}

// SendTextMessage sends a [UTF-8 text] message to the server.
//
// This is done asynchronously, to manage [isolation or safe multiplexing]
// of multiple concurrent calls, including interleaved control frames.
// Despite that, this function enables the caller to block and/or
// handle errors, with the returned channel.
//
// [UTF-8 text]: https://datatracker.ietf.org/doc/html/rfc6455#section-5.6
// [isolation or safe multiplexing]: https://datatracker.ietf.org/doc/html/rfc6455#section-5.4
func (c *Conn) SendTextMessage(data []byte) <-chan error {
	return c.enqueue(OpcodeText, data)
}

// SendBinaryMessage sends a [binary] message to the server.
//
// This is done asynchronously, to manage [isolation or safe multiplexing]
// of multiple concurrent calls, including interleaved control frames.
// Despite that, this function enables the caller to block and/or
// handle errors, with the returned channel.
//
// [binary]: https://datatracker.ietf.org/doc/html/rfc6455#section-5.6
// [isolation or safe multiplexing]: https://datatracker.ietf.org/doc/html/rfc6455#section-5.4
func (c *Conn) SendBinaryMessage(data []byte) <-chan error {
	return c.enqueue(OpcodeBinary, data)
}
