package events

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"msgflow/backend/internal/models"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebSocketClient streams events to one browser or dashboard connection.
// The connection is push-only; anything the peer sends is discarded.
type WebSocketClient struct {
	id    string
	types map[models.EventType]bool
	conn  *websocket.Conn
	hub   *Hub
	send  chan models.DeliveryEvent
}

func (c *WebSocketClient) ID() string                               { return c.id }
func (c *WebSocketClient) SendChannel() chan<- models.DeliveryEvent { return c.send }

func (c *WebSocketClient) Wants(ev models.DeliveryEvent) bool {
	return len(c.types) == 0 || c.types[ev.Type]
}

func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close stops writePump, which closes the connection.
func (c *WebSocketClient) Close() {
	close(c.send)
}

// ServeWS upgrades the request and registers a subscriber with the hub. An
// empty types list subscribes to everything.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, subscriber string, types []models.EventType) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &WebSocketClient{
		id:    subscriber,
		types: make(map[models.EventType]bool, len(types)),
		conn:  conn,
		hub:   h,
		send:  make(chan models.DeliveryEvent, sendBuffer),
	}
	for _, t := range types {
		c.types[t] = true
	}

	select {
	case h.RegisterCh <- c:
	case <-h.done:
		conn.Close()
		return nil
	}
	c.Run()
	return nil
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("event subscriber read error", slog.String("client", c.id), slog.String("error", err.Error()))
			}
			return
		}
	}
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				slog.Error("event encode failed", slog.String("client", c.id), slog.String("error", err.Error()))
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
