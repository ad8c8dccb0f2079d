package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/interfaces"
)

// Client is a SyncChannel backed by a WebSocket connection to a Hub.
type Client struct {
	conn   *websocket.Conn
	log    *slog.Logger
	events chan interfaces.Event

	writeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to a hub's WebSocket endpoint, for example
// "ws://coordinator:8080/ws".
func Dial(ctx context.Context, url string, log *slog.Logger) (*Client, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	c := &Client{
		conn:   conn,
		log:    log,
		events: make(chan interfaces.Event, hubEventBuffer),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

// Broadcast sends an event to the hub, which relays it to all other peers.
func (c *Client) Broadcast(ctx context.Context, ev interfaces.Event) error {
	select {
	case <-c.done:
		return interfaces.ErrChannelClosed
	default:
	}

	data, err := ev.Marshal()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send event: %w", err)
	}
	return nil
}

// Events returns the stream of events relayed by the hub.
func (c *Client) Events() <-chan interfaces.Event {
	return c.events
}

// Close closes the connection.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
	return nil
}

func (c *Client) readLoop() {
	defer close(c.events)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.log.Warn("Connection to hub lost", "err", err)
			}
			return
		}
		ev, err := interfaces.UnmarshalEvent(data)
		if err != nil {
			c.log.Warn("Dropping malformed event from hub", "err", err)
			continue
		}
		select {
		case c.events <- ev:
		default:
			c.log.Warn("Event buffer full, dropping event", slog.String("kind", string(ev.Kind)))
		}
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
