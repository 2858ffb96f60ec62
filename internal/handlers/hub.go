package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chemviz/internal/config"
	"chemviz/internal/dashboard"
	"chemviz/internal/events"
)

// Frame is the wire format pushed to browsers over the WebSocket.
type Frame struct {
	Type    string             `json:"type"` // always "snapshot" for now
	Event   events.EventType   `json:"event,omitempty"`
	Message string             `json:"message,omitempty"`
	State   dashboard.Snapshot `json:"state"`
}

// Hub fans dashboard snapshots out to every connected browser whenever an
// event is published on the bus.
type Hub struct {
	state       *dashboard.State
	upgrader    websocket.Upgrader
	unsubscribe func()

	mu    sync.Mutex
	conns map[string]*wsConn // client id → connection
}

// wsConn wraps a WebSocket connection with its outbound queue. Only the
// writer goroutine writes data frames.
type wsConn struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *wsConn) close() {
	c.once.Do(func() { close(c.done) })
}

// NewHub creates a hub and subscribes it to the state's event bus.
func NewHub(state *dashboard.State) *Hub {
	h := &Hub{
		state: state,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     sameOrigin,
		},
		conns: make(map[string]*wsConn),
	}
	h.unsubscribe = state.Bus().Subscribe(h.onEvent, events.StateChanges...)
	return h
}

// sameOrigin accepts connections from pages served by this dashboard and
// from non-browser clients that send no Origin.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
}

func (h *Hub) onEvent(e events.Event) {
	h.Broadcast(Frame{Type: "snapshot", Event: e.Type, Message: e.Message, State: h.state.Snapshot()})
}

// Broadcast queues f for every connection, dropping it for clients whose
// queue is full.
func (h *Hub) Broadcast(f Frame) {
	msg, err := json.Marshal(f)
	if err != nil {
		config.Logger.Errorf("[WS] encode frame: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.conns {
		select {
		case c.send <- msg:
		default:
			config.Logger.Debugf("[WS] client %s is slow, dropping frame", c.id)
		}
	}
}

// HandleConnection upgrades the request and streams snapshots until the
// browser goes away.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		config.Logger.Warnf("[WS] Upgrade failed: %v", err)
		return
	}

	c := &wsConn{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 16),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
	config.Logger.Debugf("[WS] client %s connected", c.id)

	initial, _ := json.Marshal(Frame{Type: "snapshot", State: h.state.Snapshot()})
	c.send <- initial

	go h.writeLoop(c)
	h.readLoop(c)

	h.mu.Lock()
	delete(h.conns, c.id)
	h.mu.Unlock()
	config.Logger.Debugf("[WS] client %s disconnected", c.id)
}

// readLoop discards client messages and keeps the read deadline fresh.
func (h *Hub) readLoop(c *wsConn) {
	defer func() {
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				config.Logger.Debugf("[WS] Read error client %s: %v", c.id, err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	}
}

// writeLoop sends queued frames and periodic pings.
func (h *Hub) writeLoop(c *wsConn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.close()
				c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(
				websocket.PingMessage, nil,
				time.Now().Add(10*time.Second),
			); err != nil {
				c.close()
				c.conn.Close()
				return
			}
		}
	}
}

// ActiveConnections returns the number of connected browsers.
func (h *Hub) ActiveConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close stops listening to the bus and disconnects every browser.
func (h *Hub) Close() {
	h.unsubscribe()
	h.CloseAll()
}

// CloseAll terminates all active WebSocket connections.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, c := range h.conns {
		c.close()
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(5*time.Second),
		)
		c.conn.Close()
		delete(h.conns, id)
	}
}
