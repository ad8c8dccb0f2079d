package broadcast

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/interfaces"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	sessionSendBuffer = 64
	hubEventBuffer    = 256
)

// Hub relays access-session events between WebSocket peers. Every event a
// peer sends is forwarded to all other peers and surfaced on the hub's own
// event stream, so the process hosting the hub participates as a replica too.
//
// The hub makes no ordering or exact-once promises. A peer that reconnects
// may miss events entirely; replicas recover by re-broadcasting their state
// on request or converging from later events.
type Hub struct {
	log      *slog.Logger
	upgrader websocket.Upgrader

	register   chan *wsSession
	unregister chan *wsSession
	inbound    chan inboundFrame
	outbound   chan []byte
	events     chan interfaces.Event

	done      chan struct{}
	closeOnce sync.Once
}

type inboundFrame struct {
	origin *wsSession
	data   []byte
}

// NewHub creates a hub. Run must be called before peers connect.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		register:   make(chan *wsSession),
		unregister: make(chan *wsSession),
		inbound:    make(chan inboundFrame, hubEventBuffer),
		outbound:   make(chan []byte, hubEventBuffer),
		events:     make(chan interfaces.Event, hubEventBuffer),
		done:       make(chan struct{}),
	}
}

// Run drives the hub until ctx is cancelled. It owns the session set; all
// membership changes and fan-outs happen on this goroutine.
func (h *Hub) Run(ctx context.Context) {
	sessions := make(map[*wsSession]struct{})
	defer func() {
		for session := range sessions {
			session.close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return

		case session := <-h.register:
			sessions[session] = struct{}{}
			h.log.Debug("Peer connected", slog.String("remoteAddr", session.remoteAddr), slog.Int("peers", len(sessions)))

		case session := <-h.unregister:
			if _, ok := sessions[session]; ok {
				delete(sessions, session)
				session.close()
				h.log.Debug("Peer disconnected", slog.String("remoteAddr", session.remoteAddr), slog.Int("peers", len(sessions)))
			}

		case frame := <-h.inbound:
			ev, err := interfaces.UnmarshalEvent(frame.data)
			if err != nil {
				h.log.Warn("Dropping malformed event from peer",
					slog.String("remoteAddr", frame.origin.remoteAddr), "err", err)
				continue
			}
			// Surface to the local replica, then relay to the other peers.
			select {
			case h.events <- ev:
			default:
				h.log.Warn("Local event stream full, dropping event", slog.String("kind", string(ev.Kind)))
			}
			for session := range sessions {
				if session == frame.origin {
					continue
				}
				session.trySend(frame.data, h.log)
			}

		case data := <-h.outbound:
			for session := range sessions {
				session.trySend(data, h.log)
			}
		}
	}
}

// ServeWS upgrades an HTTP request to a WebSocket peer connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "err", err)
		return
	}

	session := &wsSession{
		conn:       conn,
		send:       make(chan []byte, sessionSendBuffer),
		remoteAddr: conn.RemoteAddr().String(),
	}

	select {
	case h.register <- session:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go session.writePump()
	go session.readPump(h)
}

// Broadcast sends an event to every connected peer.
func (h *Hub) Broadcast(ctx context.Context, ev interfaces.Event) error {
	data, err := ev.Marshal()
	if err != nil {
		return err
	}
	select {
	case h.outbound <- data:
		return nil
	case <-h.done:
		return interfaces.ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns the stream of events received from peers.
func (h *Hub) Events() <-chan interfaces.Event {
	return h.events
}

// Close shuts the hub down.
func (h *Hub) Close() error {
	h.closeOnce.Do(func() {
		close(h.done)
	})
	return nil
}

// wsSession is one connected peer. The read pump feeds frames to the hub,
// the write pump drains the send buffer and keeps the connection alive.
type wsSession struct {
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string
	closeOnce  sync.Once
}

func (s *wsSession) close() {
	s.closeOnce.Do(func() {
		close(s.send)
	})
}

// trySend queues a frame without blocking the hub loop. A peer that cannot
// keep up has its frame dropped; convergence recovers from the loss.
func (s *wsSession) trySend(data []byte, log *slog.Logger) {
	select {
	case s.send <- data:
	default:
		log.Warn("Peer send buffer full, dropping frame", slog.String("remoteAddr", s.remoteAddr))
	}
}

func (s *wsSession) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- s:
		case <-h.done:
		}
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("Peer read failed", slog.String("remoteAddr", s.remoteAddr), "err", err)
			}
			return
		}
		select {
		case h.inbound <- inboundFrame{origin: s, data: data}:
		case <-h.done:
			return
		}
	}
}

func (s *wsSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case data, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
