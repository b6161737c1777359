package websocket

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tzrikka/strand/internal/logger"
)

// clients caches active [Client]s by hashed ID, so that repeated
// lookups with the same ID share one set of connections per process.
var clients sync.Map

type urlFunc func(ctx context.Context) (string, error)

// Client keeps one logical WebSocket subscription alive across
// reconnections: it owns an active [Conn], optionally prepares a
// standby one shortly before a planned disconnection, and redials
// whenever the active connection dies unexpectedly.
type Client struct {
	logger *zerolog.Logger
	url    urlFunc
	opts   []DialOpt

	active  *Conn
	standby *Conn
	relayed chan Message

	refresh *time.Timer
}

// NewOrCachedClient returns the cached client for the given ID, or
// dials a new one and caches it. IDs are hashed before being used as
// cache keys, so they may contain secrets.
func NewOrCachedClient(ctx context.Context, url urlFunc, id string, opts ...DialOpt) (*Client, error) {
	key := hashID(id)
	if cached, ok := clients.Load(key); ok {
		return cached.(*Client), nil //nolint:errcheck
	}

	c := &Client{
		logger:  logger.FromContext(ctx),
		url:     url,
		opts:    opts,
		relayed: make(chan Message),
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.active = conn

	cached, raced := clients.LoadOrStore(key, c)
	if raced {
		// A different goroutine cached a client for this ID since the
		// clients.Load() above, so this one's connection is redundant.
		conn.Close(StatusGoingAway)
	} else {
		go c.relay(ctx)
	}

	return cached.(*Client), nil //nolint:errcheck
}

// hashID reduces a client ID to a stable but irreversible cache key.
func hashID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}

func (c *Client) dial(ctx context.Context) (*Conn, error) {
	u, err := c.url(ctx)
	if err != nil {
		return nil, err
	}

	return Dial(logger.WithContext(ctx, c.logger), u, c.opts...)
}

// relay runs as a [Client] goroutine: it forwards data [Message]s from
// the active connection to the client's subscribers, and replaces the
// connection whenever its message channel closes.
func (c *Client) relay(ctx context.Context) {
	for {
		msg, ok := <-c.active.IncomingMessages()
		if ok {
			c.relayed <- msg
			continue
		}

		// A planned switch, prepared by [Client.RefreshConnectionIn].
		if c.standby != nil {
			c.active, c.standby = c.standby, nil
			continue
		}

		c.redial(ctx)
	}
}

// redial replaces a dead connection, retrying
// with a capped backoff until a dial succeeds.
func (c *Client) redial(ctx context.Context) {
	backoff := time.Second
	for i := 0; ; i++ {
		conn, err := c.dial(ctx)
		if err == nil {
			c.active = conn
			return
		}

		c.logger.Err(err).Int("retry", i).Msg("failed to replace WebSocket connection")

		time.Sleep(backoff)
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// IncomingMessages returns the client's channel that publishes
// data [Message]s as they are received from the server.
//
// [Message]: https://pkg.go.dev/github.com/tzrikka/strand/pkg/websocket#Message
func (c *Client) IncomingMessages() <-chan Message {
	return c.relayed
}

// RefreshConnectionIn instructs the client to replace its underlying [Conn]
// seamlessly after the given duration of time. This prevents unnecessary
// downtime during normal reconnections, which is useful in connections
// where the disconnection time is known or coordinated in advance.
func (c *Client) RefreshConnectionIn(ctx context.Context, d time.Duration) {
	msg := "starting timer to refresh WebSocket connection"
	if c.refresh != nil {
		c.refresh.Stop()
		msg = "re" + msg
	}
	c.logger.Debug().Msg(msg)

	c.refresh = time.AfterFunc(d, func() {
		c.refresh = nil

		conn, err := c.dial(ctx)
		if err != nil {
			c.logger.Err(err).Msg("failed to refresh WebSocket connection")
			return
		}

		// The switch itself happens in [Client.relay], when the old
		// active connection completes its closing handshake.
		c.standby = conn
		c.active.Close(StatusGoingAway)
	})
}

// SendJSONMessage sends a JSON text message to the server.
func (c *Client) SendJSONMessage(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return <-c.active.SendTextMessage(b)
}
