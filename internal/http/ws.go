package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"storefront/internal/events"
	"storefront/internal/logging"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	sendBuffer   = 16
	writeTimeout = 2 * time.Second
)

// Hub рассылает события заказов подключённым администраторам
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
}

// client очередь исходящих сообщений одного соединения
type client struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

var _ events.Publisher = (*Hub)(nil)

// Publish queues the event for every client without waiting on the network.
// A client whose queue is full is disconnected.
func (h *Hub) Publish(_ context.Context, e events.Event) error {
	data, err := e.Marshal()
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			logging.Warn(logging.Fields{Component: "ws", OrderID: e.OrderID, Step: "drop_slow_client", Message: e.Type})
			h.dropLocked(c)
		}
	}
	return nil
}

func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.dropLocked(c)
	}
	return nil
}

// Clients is the number of open connections.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register(conn *websocket.Conn) *client {
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	go h.writeLoop(c)
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

// dropLocked must be called with h.mu held; closing send stops the writer.
func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.unregister(c)
			return
		}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// @Summary Live order feed
// @Description Upgrades to a websocket that streams order lifecycle events as JSON.
// @Tags admin
// @Security BearerAuth
// @Router /admin/orders/ws [get]
func (s *Server) orderFeed(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	cl := s.hub.register(conn)
	logging.Debug(logging.Fields{Component: "ws", UserID: actorFrom(c).UserID, Step: "connect"})

	// read until the client goes away; inbound messages are ignored
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.hub.unregister(cl)
}
