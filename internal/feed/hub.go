// Package feed streams order notices to connected merchant dashboards over
// WebSocket. Delivery is best-effort: a slow or full client is dropped
// rather than slowing down order handling.
package feed

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The dashboard is served from the storefront origins; CORS on the
		// router already gates browsers, so accept the upgrade here.
		return true
	},
}

// OrderNotice is the payload broadcast after a successful dispatch. No
// contact details beyond the customer name.
type OrderNotice struct {
	OrderNumber  string `json:"order_number"`
	CustomerName string `json:"customer_name"`
	ItemCount    int    `json:"item_count"`
	Total        string `json:"total"`
	ReceivedAt   string `json:"received_at"`
}

type client struct {
	conn *websocket.Conn
	send chan OrderNotice
}

type Hub struct {
	clients    map[*client]bool
	broadcast  chan OrderNotice
	register   chan *client
	unregister chan *client
	logger     *logrus.Logger
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan OrderNotice, 64),
		register:   make(chan *client),
		unregister: make(chan *client),
		logger:     logger,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			h.logger.WithField("client_count", len(h.clients)).Info("Dashboard client connected")

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.logger.WithField("client_count", len(h.clients)).Info("Dashboard client disconnected")

		case notice := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- notice:
				default:
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// Notify queues a notice for broadcast. Never blocks the request path.
func (h *Hub) Notify(notice OrderNotice) {
	select {
	case h.broadcast <- notice:
	default:
		h.logger.Warn("Order feed channel full, dropping notice")
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade to WebSocket")
		return
	}

	c := &client{
		conn: conn,
		send: make(chan OrderNotice, 64),
	}
	h.register <- c

	go c.writePump(h)
	go c.readPump(h)
}

func (c *client) writePump(h *Hub) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case notice, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(notice); err != nil {
				h.logger.WithError(err).Debug("Failed to write order notice")
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames so pong handling and close detection work;
// the dashboard never sends application data.
func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
