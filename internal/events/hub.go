package events

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"voiceui/internal/domain"
)

const (
	sendBuffer = 256
	writeWait  = 10 * time.Second
)

// Message types published on the hub.
const (
	TypeOutcome = "outcome"
	TypeStep    = "step"
)

// Message is one websocket frame.
type Message struct {
	Type    string              `json:"type"`
	Session string              `json:"session,omitempty"`
	Outcome *domain.Outcome     `json:"outcome,omitempty"`
	Step    *domain.StepOutcome `json:"step,omitempty"`
}

type envelope struct {
	session string
	data    []byte
}

// Hub fans messages out to websocket subscribers. Subscribers may restrict
// themselves to one session.
type Hub struct {
	Logger      zerolog.Logger
	CheckOrigin func(r *http.Request) bool

	register   chan *client
	unregister chan *client
	broadcast  chan envelope
	clients    map[*client]bool
}

type client struct {
	hub     *Hub
	conn    *websocket.Conn
	session string
	send    chan []byte
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		Logger:     logger,
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan envelope, sendBuffer),
		clients:    make(map[*client]bool),
	}
}

// Run dispatches until ctx is done, then closes all subscribers.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			return
		case c := <-h.register:
			h.clients[c] = true
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				if c.session != "" && c.session != msg.session {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// Publish queues m without blocking; it is dropped when the queue is full.
func (h *Hub) Publish(m Message) {
	b, err := json.Marshal(m)
	if err != nil {
		h.Logger.Error().Err(err).Msg("marshal hub message")
		return
	}
	select {
	case h.broadcast <- envelope{session: m.Session, data: b}:
	default:
		h.Logger.Warn().Str("type", m.Type).Msg("hub queue full, dropping message")
	}
}

// For returns an observer publishing outcomes for session.
func (h *Hub) For(session string) domain.Observer {
	return domain.ObserverFunc(func(o domain.Outcome) {
		h.Publish(Message{Type: TypeOutcome, Session: session, Outcome: &o})
	})
}

// Steps returns a step callback publishing plan progress for session.
func (h *Hub) Steps(session string) func(int, domain.ActionStep, bool) {
	return func(i int, step domain.ActionStep, ok bool) {
		h.Publish(Message{Type: TypeStep, Session: session, Step: &domain.StepOutcome{Index: i, Step: step, OK: ok}})
	}
}

// ServeWS upgrades the request and subscribes it. An empty session receives
// every message.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, session string) {
	up := websocket.Upgrader{CheckOrigin: h.CheckOrigin}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn().Err(err).Msg("ws upgrade")
		return
	}
	c := &client{hub: h, conn: conn, session: session, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-r.Context().Done():
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

func (c *client) writePump() {
	defer func() { _ = c.conn.Close() }()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.leave()
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump discards inbound frames and notices disconnects.
func (c *client) readPump() {
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			c.leave()
			return
		}
	}
}

func (c *client) leave() {
	// The hub may already have stopped.
	select {
	case c.hub.unregister <- c:
	case <-time.After(time.Second):
	}
}
