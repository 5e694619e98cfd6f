package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/spawnkit/spawnd/internal/console"
	"github.com/spawnkit/spawnd/internal/event"
	"github.com/spawnkit/spawnd/internal/registry"
)

// Message is the envelope for everything pushed over a console socket.
// Type is one of "console", "status", "players".
type Message struct {
	Type      string    `json:"type"`
	ServerID  string    `json:"server_id"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

type client struct {
	conn   *websocket.Conn
	room   string
	send   chan *Message
	replay []console.Line // set by the hub loop before the pumps start
}

// registration pairs a new subscriber with a history fetch so the hub
// loop can snapshot and enroll in one step. Any line broadcast before
// enrollment was pushed to history first, so it is in the snapshot.
type registration struct {
	c       *client
	history func() []console.Line
}

type broadcastMessage struct {
	room string
	msg  *Message
}

// Hub fans live server events out to websocket subscribers, one room per
// server id. New subscribers receive the console history before any live
// line.
type Hub struct {
	mu         sync.RWMutex
	rooms      map[string]map[*client]bool
	register   chan *registration
	unregister chan *client
	broadcast  chan *broadcastMessage
	log        *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		rooms:      make(map[string]map[*client]bool),
		register:   make(chan *registration),
		unregister: make(chan *client),
		broadcast:  make(chan *broadcastMessage, 256),
		log:        log,
	}
}

// Bind subscribes the hub to a registry's event streams.
func (h *Hub) Bind(reg *registry.Registry) {
	reg.OnConsole(func(e event.Console) {
		h.Broadcast(e.ServerID, &Message{Type: "console", ServerID: e.ServerID, Payload: consolePayload(e.Text, e.At), Timestamp: time.Now()})
	})
	reg.OnStatus(func(e event.Status) {
		h.Broadcast(e.ServerID, &Message{Type: "status", ServerID: e.ServerID, Payload: e, Timestamp: time.Now()})
	})
	reg.OnPlayers(func(e event.Players) {
		h.Broadcast(e.ServerID, &Message{Type: "players", ServerID: e.ServerID, Payload: e, Timestamp: time.Now()})
	})
}

// Run owns registration and delivery. It returns when ctx is canceled,
// closing every connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case reg := <-h.register:
			c := reg.c
			h.mu.Lock()
			if h.rooms[c.room] == nil {
				h.rooms[c.room] = make(map[*client]bool)
			}
			h.rooms[c.room][c] = true
			h.mu.Unlock()
			// Snapshot on the loop, after enrollment. A line arriving now
			// goes to c.send; a line from before enrollment is in the
			// snapshot. The overlap can repeat a line, never skip one.
			if reg.history != nil {
				c.replay = reg.history()
			}
			go c.writePump()
			go c.readPump(h)
		case c := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[c.room]; ok && clients[c] {
				delete(clients, c)
				close(c.send)
				if len(clients) == 0 {
					delete(h.rooms, c.room)
				}
			}
			h.mu.Unlock()
		case bm := <-h.broadcast:
			h.mu.RLock()
			for c := range h.rooms[bm.room] {
				select {
				case c.send <- bm.msg:
				default:
					// Slow subscriber: drop rather than stall the room.
				}
			}
			h.mu.RUnlock()
		case <-ctx.Done():
			h.mu.Lock()
			for _, clients := range h.rooms {
				for c := range clients {
					close(c.send)
					_ = c.conn.Close()
				}
			}
			h.rooms = make(map[string]map[*client]bool)
			h.mu.Unlock()
			return
		}
	}
}

// Broadcast queues a message for every subscriber of the room.
func (h *Hub) Broadcast(room string, msg *Message) {
	select {
	case h.broadcast <- &broadcastMessage{room: room, msg: msg}:
	default:
		h.log.Warn("websocket broadcast queue full, dropping", "room", room, "type", msg.Type)
	}
}

// RoomSize reports the subscriber count for a server id.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin policy is the proxy's concern; the daemon binds localhost
	// or a trusted interface.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Attach upgrades the request and subscribes it to the server's room.
// history is snapshotted by the hub loop at enrollment and written
// before any live message, so the subscriber never misses a line that
// landed between the HTTP request and the subscription.
func (h *Hub) Attach(w http.ResponseWriter, r *http.Request, serverID string, history func() []console.Line) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{
		conn: conn,
		room: serverID,
		send: make(chan *Message, 256),
	}
	h.register <- &registration{c: c, history: history}
	return nil
}

func consolePayload(text string, at time.Time) map[string]any {
	return map[string]any{"text": text, "at": at}
}

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// readPump drains the connection; inbound frames are ignored but the read
// loop drives pong handling and close detection.
func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		_ = c.conn.Close()
	}()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for _, line := range c.replay {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		data, err := json.Marshal(&Message{Type: "console", ServerID: c.room, Payload: consolePayload(line.Text, line.At), Timestamp: time.Now()})
		if err != nil {
			continue
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
