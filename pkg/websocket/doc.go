// Package websocket is a lightweight yet robust client-only
// implementation of the WebSocket protocol (RFC 6455).
//
// Its foundation is a streaming frame [Codec]: an incremental decoder
// that assembles well-formed frames from arbitrary, possibly
// fragmented, byte deliveries, paired with a serializer that emits
// well-formed, optionally-masked frames for each control and data
// opcode. The codec never blocks and never reads ahead of what has
// arrived, so it works with any byte transport.
//
// On top of the codec, [Dial] and [Conn] provide a complete client
// endpoint: the opening HTTP/1.1 upgrade handshake, continuous
// asynchronous reading of text/binary messages (with defragmentation
// and automatic control frame responses), occasional writing, and the
// closing handshake. [Client] adds connection caching and seamless
// reconnections on top of [Conn].
//
// Note: WebSocket [extensions] and [subprotocols] are not supported yet.
//
// [extensions]: https://www.iana.org/assignments/websocket/websocket.xhtml#extension-name
// [subprotocols]: https://www.iana.org/assignments/websocket/websocket.xhtml#subprotocol-name
package websocket
