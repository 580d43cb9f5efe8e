package status

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Event is the envelope pushed to every connected websocket client.
// Type discriminates between FSM transitions relayed from the status
// subject tree and component log entries relayed from the log subject tree.
type Event struct {
	Type      string          `json:"type"` // "status" or "log"
	Timestamp int64           `json:"timestamp"` // Unix milliseconds
	Payload   json.RawMessage `json:"payload"`
}

type client struct {
	conn        *websocket.Conn
	send        chan []byte
	closed      atomic.Bool
	closeOnce   sync.Once
	connectedAt time.Time
}

// hub fans out events to every connected websocket client. Delivery is
// at-most-once: a client that falls behind has its oldest queued event
// dropped rather than stalling the broadcaster.
type hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}

	shutdown chan struct{}
	wg       sync.WaitGroup
}

func newHub(corsAllowed func(origin string) bool) *hub {
	return &hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if corsAllowed == nil {
					return true
				}
				return corsAllowed(r.Header.Get("Origin"))
			},
		},
		clients:  make(map[*client]struct{}),
		shutdown: make(chan struct{}),
	}
}

func (h *hub) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &client{
		conn:        conn,
		send:        make(chan []byte, 64),
		connectedAt: time.Now(),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.wg.Add(1)
	go h.writePump(c)
	h.wg.Add(1)
	go h.readPump(c)
}

// writePump is the only goroutine that writes to the connection, per
// gorilla/websocket's single-writer requirement.
func (h *hub) writePump(c *client) {
	defer h.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.shutdown:
			h.removeClient(c)
			return
		case msg, ok := <-c.send:
			if !ok {
				h.removeClient(c)
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.removeClient(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.removeClient(c)
				return
			}
		}
	}
}

// readPump drains client control frames; status clients are read-only but
// the connection still needs pong handling to stay alive.
func (h *hub) readPump(c *client) {
	defer h.wg.Done()
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.removeClient(c)
			return
		}
	}
}

func (h *hub) removeClient(c *client) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		close(c.send)
		_ = c.conn.Close()
	})
}

// broadcast enqueues data for every connected client, dropping the oldest
// queued message for clients whose send buffer is full.
func (h *hub) broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if c.closed.Load() {
			continue
		}
		select {
		case c.send <- data:
		default:
			select {
			case <-c.send:
			default:
			}
			select {
			case c.send <- data:
			default:
			}
		}
	}
}

func (h *hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// close disconnects all clients and waits for their pumps to exit.
func (h *hub) close(ctx context.Context) {
	close(h.shutdown)

	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.removeClient(c)
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}
