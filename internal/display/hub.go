package display

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"dealboard/internal/celebration"
	"dealboard/internal/overlay"
	logx "dealboard/pkg/logx"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4 * 1024
	sendBuffer     = 16
)

const (
	MsgShow   = "SHOW"
	MsgHide   = "HIDE"
	MsgRemove = "REMOVE"
	MsgTheme  = "THEME"
)

// Message is what TV browsers receive.
type Message struct {
	Type    string           `json:"type"`
	ID      celebration.ID   `json:"id,omitempty"`
	Overlay *overlay.Overlay `json:"overlay,omitempty"`
	Theme   overlay.Theme    `json:"theme,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

// Hub fans celebration messages out to every connected display. A display
// that connects mid-celebration receives the SHOW that is on screen.
type Hub struct {
	log logx.Logger

	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan Message
	done       chan struct{}
	stopOnce   sync.Once

	mu      sync.Mutex
	current *Message

	clients atomic.Int64
	dropped atomic.Uint64
}

func NewHub(log logx.Logger) *Hub {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Hub{
		log:        log.With(logx.String("comp", "display.hub")),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan Message, 64),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Clients() int { return int(h.clients.Load()) }

// Run owns the client set until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	clients := map[*wsClient]struct{}{}
	defer func() {
		h.stopOnce.Do(func() { close(h.done) })
		for c := range clients {
			close(c.send)
		}
		h.clients.Store(0)
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-h.register:
			clients[c] = struct{}{}
			h.clients.Store(int64(len(clients)))
			h.mu.Lock()
			cur := h.current
			h.mu.Unlock()
			if cur != nil {
				c.offer(*cur)
			}
			h.log.Debug("display connected", logx.Int("clients", len(clients)))
		case c := <-h.unregister:
			if _, ok := clients[c]; ok {
				delete(clients, c)
				close(c.send)
				h.clients.Store(int64(len(clients)))
				h.log.Debug("display disconnected", logx.Int("clients", len(clients)))
			}
		case m := <-h.broadcast:
			for c := range clients {
				if !c.offer(m) {
					delete(clients, c)
					close(c.send)
					h.dropped.Add(1)
				}
			}
			h.clients.Store(int64(len(clients)))
		}
	}
}

// Publish queues m for every display; it never blocks.
func (h *Hub) Publish(m Message) {
	h.mu.Lock()
	switch m.Type {
	case MsgShow:
		mm := m
		h.current = &mm
	case MsgRemove:
		h.current = nil
	}
	h.mu.Unlock()

	select {
	case h.broadcast <- m:
	default:
		h.dropped.Add(1)
		h.log.Warn("display broadcast queue full", logx.String("type", m.Type))
	}
}

func (h *Hub) Show(_ context.Context, o overlay.Overlay) error {
	h.Publish(Message{Type: MsgShow, ID: o.ID, Overlay: &o})
	return nil
}

func (h *Hub) Hide(_ context.Context, id celebration.ID) error {
	h.Publish(Message{Type: MsgHide, ID: id})
	return nil
}

func (h *Hub) Remove(_ context.Context, id celebration.ID) error {
	h.Publish(Message{Type: MsgRemove, ID: id})
	return nil
}

// ServeWS upgrades the request and attaches the display to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", logx.Err(err))
		return
	}
	c := &wsClient{hub: h, conn: conn, send: make(chan Message, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	case <-r.Context().Done():
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Message
}

func (c *wsClient) offer(m Message) bool {
	select {
	case c.send <- m:
		return true
	default:
		return false
	}
}

func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		// displays only listen; anything they send is discarded
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("display read failed", logx.Err(err))
			}
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case m, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(m); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
