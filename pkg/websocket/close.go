package websocket

import (
	"encoding/binary"
	"strconv"
	"unicode/utf8"
)

// StatusCode indicates a reason for the closure of
// an established WebSocket connection, as defined in
// https://datatracker.ietf.org/doc/html/rfc6455#section-7.4
// and registered in the [IANA close code registry].
//
// Codes 3000-3999 are reserved for libraries and frameworks,
// and 4000-4999 for private use; neither range is named here.
//
// [IANA close code registry]: https://www.iana.org/assignments/websocket/websocket.xhtml#close-code-number
type StatusCode uint16

const (
	// The purpose for which the connection was established has been fulfilled.
	StatusNormalClosure StatusCode = iota + 1000
	// The endpoint is going away (server shutdown, browser navigation).
	StatusGoingAway
	// A protocol error was detected.
	StatusProtocolError
	// A data type the endpoint cannot accept was received.
	StatusUnsupportedData
	// 1004 is reserved without a defined meaning.
	_
	// Never sent on the wire: no status code was present in the close frame.
	StatusNotReceived
	// Never sent on the wire: the connection closed without a close frame.
	StatusClosedAbnormally
	// A message was inconsistent with its type, e.g. non-UTF-8 text.
	StatusInvalidData
	// A message violated the endpoint's policy (generic catch-all).
	StatusPolicyViolation
	// A message was too big to process.
	StatusMessageTooBig
	// The server didn't negotiate an extension the client requires.
	StatusMandatoryExtension
	// The remote endpoint hit an unexpected condition.
	// See https://www.rfc-editor.org/errata_search.php?eid=3227.
	StatusInternalError
	// The server is restarting; the client may reconnect.
	StatusServiceRestart
	// The connection was refused temporarily; retry later.
	StatusTryAgainLater
	// A gateway or proxy received an invalid upstream response.
	StatusBadGateway
	// Never sent on the wire: the TLS handshake failed.
	StatusTLSHandshake
)

// String returns the status code's name, or its number if it's unrecognized.
func (s StatusCode) String() string {
	switch s {
	case StatusNormalClosure:
		return "normal closure"
	case StatusGoingAway:
		return "going away"
	case StatusProtocolError:
		return "protocol error"
	case StatusUnsupportedData:
		return "unsupported data"
	case StatusNotReceived:
		return "status not received"
	case StatusClosedAbnormally:
		return "closed abnormally"
	case StatusInvalidData:
		return "invalid data"
	case StatusPolicyViolation:
		return "policy violation"
	case StatusMessageTooBig:
		return "message too big"
	case StatusMandatoryExtension:
		return "expected extension negotiation"
	case StatusInternalError:
		return "internal error"
	case StatusServiceRestart:
		return "service restart"
	case StatusTryAgainLater:
		return "try again later"
	case StatusBadGateway:
		return "bad gateway"
	case StatusTLSHandshake:
		return "TLS handshake"
	default:
		return strconv.Itoa(int(s))
	}
}

// maxCloseReason is the maximum length of a connection closing reason.
// The difference from [maxControlPayload] is due to the status code.
const (
	maxCloseReason = maxControlPayload - 2
)

// parseClosePayload extracts the [StatusCode] and the optional UTF-8
// reason from an incoming close frame payload. Malformed payloads
// (a truncated status code, a non-UTF-8 reason) are reported as the
// matching error status instead of their content.
func parseClosePayload(payload []byte) (StatusCode, string) {
	switch {
	case len(payload) == 0:
		// "If this Close control frame contains no status code,
		// _The WebSocket Connection Close Code_ is considered to be 1005"
		// - but this endpoint must not echo 1005 back, so close normally.
		return StatusNormalClosure, ""
	case len(payload) == 1:
		return StatusProtocolError, ""
	}

	status := StatusCode(binary.BigEndian.Uint16(payload))
	reason := payload[2:]
	if !utf8.Valid(reason) {
		return StatusInvalidData, ""
	}

	return status, string(reason)
}

// closePayload encodes a status code and reason as a close frame
// payload, truncating the reason to fit the control frame size limit.
func closePayload(status StatusCode, reason string) []byte {
	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}

	p := make([]byte, 2, 2+len(reason))
	binary.BigEndian.PutUint16(p, uint16(status))
	return append(p, reason...)
}

// sanitizeCloseStatus replaces status codes that MUST NOT appear on
// the wire (reserved, undefined, or out of range) with 1002, so this
// endpoint never echoes an invalid code back at a misbehaving server.
func sanitizeCloseStatus(status StatusCode) StatusCode {
	switch {
	case status < StatusNormalClosure, status >= 5000:
		return StatusProtocolError
	case status >= 3000:
		return status // Library, framework, application, and private ranges.
	case status > StatusTLSHandshake:
		return StatusProtocolError
	case status == 1004, status == StatusNotReceived, status == StatusClosedAbnormally, status == StatusTLSHandshake:
		return StatusProtocolError
	}

	return status
}

// closeHandshake either initiates or responds to a WebSocket closing
// handshake, and drops the transport once a close frame has gone in
// each direction. It can be called from the read goroutine and from
// [Conn.Close].
//
// It is idempotent: the first caller wins the closeSent flag and sends
// the close frame; every later call is a no-op.
//
// It is based on:
//   - Control frames - close: https://datatracker.ietf.org/doc/html/rfc6455#section-5.5.1
//   - Closing the connection: https://datatracker.ietf.org/doc/html/rfc6455#section-7
func (c *Conn) closeHandshake(status StatusCode, reason string) {
	// "If an endpoint receives a Close frame and did not previously send
	// a Close frame, the endpoint MUST send a Close frame in response."
	if !c.closeSent.CompareAndSwap(false, true) {
		return
	}

	status = sanitizeCloseStatus(status)

	l := c.logger.With().Str("close_status", status.String()).Str("close_reason", reason).Logger()
	if err := <-c.enqueue(OpcodeClose, closePayload(status, reason)); err != nil {
		l.Err(err).Msg("failed to send WebSocket close control frame")
	} else {
		l.Trace().Msg("sent WebSocket close control frame")
	}

	if c.closeReceived.Load() {
		_ = c.transport.Close()
	}
}

// Close performs a [WebSocket closing handshake]
// to initiate the closure of an open connection.
//
// [WebSocket closing handshake]: https://datatracker.ietf.org/doc/html/rfc6455#section-7.1.2
func (c *Conn) Close(s StatusCode) {
	c.closeHandshake(s, "")
}

func (c *Conn) IsClosed() bool {
	return c.closeReceived.Load() && c.closeSent.Load()
}

func (c *Conn) IsClosing() bool {
	return c.closeReceived.Load() || c.closeSent.Load()
}
