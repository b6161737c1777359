package websocket

import (
	"context"
	"crypto/rand"
	"crypto/sha1" //gosec:disable G505 // Required by the WebSocket protocol.
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tzrikka/strand/internal/logger"
)

// Dialer holds the configuration of the opening handshake. It is
// short-lived: [Dial] constructs one from its options, uses it for a
// single handshake, and hands the upgraded transport to a [Conn].
type Dialer struct {
	client   *http.Client
	headers  http.Header
	nonceSrc io.Reader
}

type DialOpt func(*Dialer)

// WithHTTPClient lets callers of [Dial] specify a custom [http.Client]
// to use for the WebSocket handshake, instead of [http.DefaultClient].
//
// Do not specify a custom timeout in the HTTP client! This will interfere with
// the long-lived WebSocket connection beyond the scope of its initial handshake.
// Instead, use [context.WithTimeout] with the [context.Context] passed to [Dial].
func WithHTTPClient(hc *http.Client) DialOpt {
	return func(d *Dialer) {
		d.client = hc
	}
}

// WithHTTPHeader lets callers of [Dial] add a single HTTP header to the WebSocket
// handshake's HTTP request. Use [WithHTTPHeaders] to specify multiple ones.
func WithHTTPHeader(key, value string) DialOpt {
	return func(d *Dialer) {
		d.headers.Add(key, value)
	}
}

// WithHTTPHeaders lets callers of [Dial] add multiple HTTP headers to the WebSocket
// handshake's HTTP request, instead of calling [WithHTTPHeader] multiple times.
func WithHTTPHeaders(hs http.Header) DialOpt {
	return func(d *Dialer) {
		for k, vs := range hs {
			for _, v := range vs {
				d.headers.Add(k, v)
			}
		}
	}
}

// Dial performs a [WebSocket handshake] to establish
// a connection to the given URL ("ws://..." or "wss://").
//
// [WebSocket handshake]: https://datatracker.ietf.org/doc/html/rfc6455#section-4.1
func Dial(ctx context.Context, wsURL string, opts ...DialOpt) (*Conn, error) {
	d := &Dialer{headers: http.Header{}, nonceSrc: rand.Reader}
	for _, opt := range opts {
		opt(d)
	}

	return d.dial(ctx, wsURL)
}

func (d *Dialer) dial(ctx context.Context, wsURL string) (*Conn, error) {
	nonce, err := newNonce(d.nonceSrc)
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce for WebSocket handshake: %w", err)
	}

	req, err := upgradeRequest(ctx, wsURL, d.headers, nonce)
	if err != nil {
		return nil, err
	}

	resp, err := redirectSafeClient(d.client).Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send WebSocket handshake request: %w", err)
	}
	if err := verifyUpgrade(resp, nonce); err != nil {
		_ = resp.Body.Close()
		return nil, err
	}

	// From this point on, every byte on the wire belongs to the frame
	// codec, in both directions.
	rwc, ok := resp.Body.(io.ReadWriteCloser)
	if !ok {
		return nil, fmt.Errorf("WebSocket handshake response body type: got %T, want io.ReadWriteCloser", resp.Body)
	}

	c := &Conn{logger: logger.FromContext(ctx)}
	c.start(rwc)

	c.logger.Debug().Msg("WebSocket connection initialized")
	return c, nil
}

// httpScheme maps the ws/wss URL schemes to their HTTP equivalents;
// any other scheme is returned unchanged.
func httpScheme(s string) string {
	switch s {
	case "ws":
		return "http"
	case "wss":
		return "https"
	}
	return s
}

// redirectSafeClient returns a shallow copy of the given [http.Client]
// (or of [http.DefaultClient] when hc is nil) whose redirect policy
// retries ws/wss redirect targets over http/https, instead of failing
// on an unsupported scheme inside the transport.
func redirectSafeClient(hc *http.Client) *http.Client {
	if hc == nil {
		hc = http.DefaultClient
	}

	c := *hc
	next := c.CheckRedirect
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		req.URL.Scheme = httpScheme(req.URL.Scheme)
		if next != nil {
			return next(req, via)
		}
		return nil
	}

	return &c
}

// newNonce returns the Base64 encoding of a random 16-byte value.
// The nonce MUST be selected randomly for each connection.
func newNonce(r io.Reader) (string, error) {
	var b [16]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b[:]), nil
}

// upgradeRequest constructs the client's opening GET request,
// as defined in https://datatracker.ietf.org/doc/html/rfc6455#section-4.1.
func upgradeRequest(ctx context.Context, wsURL string, headers http.Header, nonce string) (*http.Request, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse WebSocket URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss", "http", "https":
		u.Scheme = httpScheme(u.Scheme)
	default:
		return nil, fmt.Errorf("unexpected WebSocket URL scheme: %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create WebSocket handshake request: %w", err)
	}

	req.Header = headers.Clone()
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Sec-WebSocket-Key", nonce)
	req.Header.Set("Sec-WebSocket-Version", "13")
	// Sec-WebSocket-Extensions, Sec-WebSocket-Protocol.

	return req, nil
}

// verifyUpgrade checks the server's handshake response, as defined
// in https://datatracker.ietf.org/doc/html/rfc6455#section-4.2.2:
// the 101 status, and the three mandatory response headers.
func verifyUpgrade(resp *http.Response, nonce string) error {
	if resp.StatusCode != http.StatusSwitchingProtocols {
		msg := fmt.Sprintf("WebSocket handshake response status: got %d, want %d",
			resp.StatusCode, http.StatusSwitchingProtocols)

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if len(body) > 0 {
			msg = fmt.Sprintf("%s (%s)", msg, body)
		}

		return errors.New(msg)
	}

	for key, want := range map[string]string{
		"Upgrade":              "websocket",
		"Connection":           "Upgrade",
		"Sec-WebSocket-Accept": acceptKey(nonce),
	} {
		if got := resp.Header.Get(key); !strings.EqualFold(got, want) {
			return fmt.Errorf("WebSocket handshake response header %q: got %q, want %q", key, got, want)
		}
	}

	// Sec-WebSocket-Protocol, Sec-WebSocket-Extensions.

	return nil
}

// acceptGUID is defined in https://datatracker.ietf.org/doc/html/rfc6455#section-1.3.
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// acceptKey computes the expected value of the "Sec-WebSocket-Accept"
// response header for a given handshake nonce: the Base64 encoding of
// the SHA-1 of the nonce concatenated with a fixed GUID.
func acceptKey(nonce string) string {
	sum := sha1.Sum([]byte(nonce + acceptGUID)) //gosec:disable G401 // Required by the WebSocket protocol.
	return base64.StdEncoding.EncodeToString(sum[:])
}
