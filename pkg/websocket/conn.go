package websocket

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/lithammer/shortuuid/v4"
	"github.com/rs/zerolog"
)

// readBufSize is the size of the scratch buffer used to move raw bytes
// from the transport into the frame decoder.
const readBufSize = 4096

// Conn respresents the state of an open client
// connection to a WebSocket server.
type Conn struct {
	logger *zerolog.Logger
	id     string

	codec     *Codec
	bufw      *bufio.Writer
	transport io.ReadWriteCloser

	incoming chan Message
	outgoing chan outbound

	// Defragmentation state, owned by the read goroutine: the in-flight
	// message's payload so far, and its opcode (OpcodeContinuation when
	// no fragmented message is in flight).
	msg   bytes.Buffer
	msgOp Opcode

	// done stops the read loop after a closing handshake or a protocol
	// failure. Only the read goroutine (including the codec callback
	// running on its stack) reads and writes it.
	done bool

	// Each direction of the closing handshake flips exactly one of
	// these, exactly once. The transport is dropped when both are set.
	closeSent     atomic.Bool
	closeReceived atomic.Bool
}

// Message with WebSocket data, from one or more (defragmented) data frames,
// as defined in https://datatracker.ietf.org/doc/html/rfc6455#section-5.6.
// Returned by the Go channel that is exposed by [Conn.IncomingMessages].
type Message struct {
	Opcode Opcode
	Data   []byte
}

// outbound is one queued frame: every write, data or control, passes
// through the connection's write loop one frame at a time.
type outbound struct {
	op   Opcode
	data []byte
	done chan error
}

// IncomingMessages returns the connection's channel that publishes
// data [Message]s as they are received from the server.
//
// [Message]: https://pkg.go.dev/github.com/tzrikka/strand/pkg/websocket#Message
func (c *Conn) IncomingMessages() <-chan Message {
	return c.incoming
}

// start wires a frame [Codec] to the given transport and spins up the
// connection's read and write goroutines. Called at the end of a
// successful handshake, and directly by unit tests.
func (c *Conn) start(rwc io.ReadWriteCloser) {
	if c.logger == nil {
		l := zerolog.Nop()
		c.logger = &l
	}
	if c.id == "" {
		c.id = shortuuid.New()
	}
	l := c.logger.With().Str("conn_id", c.id).Logger()
	c.logger = &l

	// This endpoint is the client, so every outbound frame is masked.
	c.codec = NewCodec(true, c.handleFrame)
	c.bufw = bufio.NewWriter(rwc)
	c.incoming = make(chan Message)
	c.outgoing = make(chan outbound)
	c.transport = rwc

	go c.readLoop()
	go c.writeLoop()
}

// readLoop runs as a [Conn] goroutine: it moves raw bytes from the
// transport into the frame decoder until the connection is closed or
// the server violates the protocol. Everything above the byte level
// happens in [Conn.handleFrame], on this goroutine's call stack.
func (c *Conn) readLoop() {
	defer close(c.incoming)

	buf := make([]byte, readBufSize)
	for !c.done {
		n, err := c.transport.Read(buf)
		if n > 0 {
			if ferr := c.codec.Feed(buf[:n]); ferr != nil {
				c.failConn(ferr)
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || c.IsClosing() {
				c.logger.Debug().Msg("WebSocket connection closed")
				c.closeReceived.Store(true)
				c.closeSent.Store(true)
			} else {
				c.logger.Err(err).Msg("failed to read from WebSocket connection")
				c.closeHandshake(StatusInternalError, "transport read error")
			}
			return
		}
	}
}

// failConn fails the WebSocket connection after the decoder reported a
// protocol violation: the violation becomes the reason of a close
// frame to the server, and the transport is dropped without waiting
// for the server's reply.
func (c *Conn) failConn(err error) {
	c.logger.Err(err).Msg("protocol error due to invalid frame")

	status := StatusProtocolError
	if errors.Is(err, ErrUnsupportedLength) || errors.Is(err, ErrControlTooLarge) {
		status = StatusMessageTooBig
	}
	c.closeHandshake(status, err.Error())

	c.done = true
	_ = c.transport.Close()
}

// enqueue hands one frame to the write loop. The returned channel
// reports the outcome of the write; it is buffered, so callers are
// free to ignore it.
func (c *Conn) enqueue(op Opcode, data []byte) <-chan error {
	done := make(chan error, 1)
	c.outgoing <- outbound{op: op, data: data, done: done}
	return done
}

// writeLoop runs as a [Conn] goroutine, serializing all frame writes.
// For the time being, this package doesn't need to implement frame
// fragmentation in outbound messages.
func (c *Conn) writeLoop() {
	for out := range c.outgoing {
		out.done <- c.writeFrame(out.op, out.data)
		close(out.done)
	}
}

// writeFrame serializes and sends a single, unfragmented, masked frame.
//
// Do not call this function directly, call [Conn.enqueue] instead,
// to ensure we always send one frame at a time!
func (c *Conn) writeFrame(op Opcode, payload []byte) error {
	frame, err := c.codec.BuildFrame(op, payload)
	if err != nil {
		return fmt.Errorf("failed to serialize WebSocket frame: %w", err)
	}

	if _, err := c.bufw.Write(frame); err != nil {
		return fmt.Errorf("failed to write WebSocket frame: %w", err)
	}

	// Send the frame to the server.
	if err := c.bufw.Flush(); err != nil {
		return fmt.Errorf("failed to flush after writing WebSocket frame: %w", err)
	}

	return nil
}
