package ai

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/auth"
)

const (
	sendBuffer     = 256
	maxMessageSize = 8192
	pongWait       = 120 * time.Second
	pingPeriod     = 15 * time.Second
	writeWait      = 30 * time.Second
)

// Responder answers one chat message. *Assistant implements it.
type Responder interface {
	Chat(ctx context.Context, userID *int64, role, message string) (Reply, error)
}

// inbound is what the widget sends. A frame that is not JSON is taken as
// the message text itself.
type inbound struct {
	Message string `json:"message"`
}

type outbound struct {
	Type       string `json:"type"`
	Response   string `json:"response,omitempty"`
	TokensUsed int    `json:"tokensUsed,omitempty"`
	Error      string `json:"error,omitempty"`
}

type client struct {
	conn         *websocket.Conn
	send         chan []byte
	userID       *int64
	role         string
	lastActivity atomic.Int64
}

func (c *client) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// Hub keeps the open chat widget connections and answers each inbound frame
// through a Responder.
type Hub struct {
	responder Responder
	log       *slog.Logger
	upgrader  websocket.Upgrader

	clients map[*client]bool
	closed  bool
	mu      sync.RWMutex

	MaxInactivity time.Duration
	CheckEvery    time.Duration
	PingEvery     time.Duration
	ReplyTimeout  time.Duration
}

// NewHub builds a hub. An empty allowedOrigins list accepts every origin.
func NewHub(responder Responder, allowedOrigins []string, log *slog.Logger) *Hub {
	h := &Hub{
		responder:     responder,
		log:           log.With("component", "ChatHub"),
		clients:       make(map[*client]bool),
		MaxInactivity: 5 * time.Minute,
		CheckEvery:    time.Minute,
		PingEvery:     pingPeriod,
		ReplyTimeout:  60 * time.Second,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// Run sweeps idle connections until ctx is cancelled, then closes every
// connection and refuses new ones.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.CheckEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.cleanupInactive(time.Now())

		case <-ctx.Done():
			h.mu.Lock()
			h.closed = true
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = true
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
}

// cleanupInactive drops connections idle for longer than MaxInactivity.
// Closing send makes the write pump say goodbye and close the socket.
func (h *Hub) cleanupInactive(now time.Time) {
	var idle []*client
	h.mu.RLock()
	for c := range h.clients {
		if now.Sub(time.Unix(0, c.lastActivity.Load())) > h.MaxInactivity {
			idle = append(idle, c)
		}
	}
	h.mu.RUnlock()

	if len(idle) > 0 {
		h.log.Info("Cleaning up inactive chat connections", "count", len(idle))
	}
	for _, c := range idle {
		h.remove(c)
	}
}

// Count is the number of open connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWs upgrades GET /ws/chat. Visitors without a session chat as guests.
func (h *Hub) ServeWs(c *gin.Context) {
	var userID *int64
	role := "Guest"
	if s, ok := auth.SessionFrom(c); ok {
		id := s.UserID
		userID = &id
		role = s.PrimaryRole()
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	cl := &client{conn: conn, send: make(chan []byte, sendBuffer), userID: userID, role: role}
	cl.touch()

	if !h.add(cl) {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down"))
		conn.Close()
		return
	}

	go h.writePump(cl)
	go h.readPump(cl)
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.PingEvery)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "Connection inactive"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	// Pongs only prove the socket is alive. Inactivity is measured on
	// messages from the visitor.
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("WebSocket read error", "error", err)
			}
			return
		}
		c.touch()

		reply := h.answer(c, raw)
		data, err := json.Marshal(reply)
		if err != nil {
			h.log.Error("Failed to encode chat reply", "error", err)
			continue
		}
		if !h.queue(c, data) {
			return
		}
	}
}

func (h *Hub) answer(c *client, raw []byte) outbound {
	var in inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		in.Message = string(raw)
	}
	in.Message = strings.TrimSpace(in.Message)
	if in.Message == "" {
		return outbound{Type: "error", Error: "Message cannot be empty"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.ReplyTimeout)
	defer cancel()
	reply, err := h.responder.Chat(ctx, c.userID, c.role, in.Message)
	if err != nil {
		h.log.Error("Chat reply failed", "error", err)
		return outbound{Type: "error", Error: "The assistant is unavailable right now"}
	}
	return outbound{Type: "reply", Response: reply.Response, TokensUsed: reply.TokensUsed}
}

// queue hands data to the write pump. It reports false once the client has
// been removed.
func (h *Hub) queue(c *client, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[c] {
		return false
	}
	select {
	case c.send <- data:
	default:
		h.log.Warn("Chat send buffer full, dropping reply")
	}
	return true
}
