package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shootingwala/inbox/internal/engine"
	"github.com/shootingwala/inbox/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS and auth middleware.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamMessage is one frame on the event stream. The first frame carries the
// current state; every later frame carries one engine event.
type StreamMessage struct {
	Type  string           `json:"type"` // "snapshot" or "event"
	State *engine.Snapshot `json:"state,omitempty"`
	Event *engine.Event    `json:"event,omitempty"`
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *streamClient) close() {
	c.once.Do(func() { close(c.done) })
}

// push queues data without blocking the engine. A client that cannot keep up
// is disconnected; it re-reads the state on reconnect.
func (c *streamClient) push(data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.close()
	}
}

// Stream upgrades to a websocket and forwards engine events until the client
// disconnects.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &streamClient{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}

	// Subscribe before taking the snapshot so no change falls in between.
	unsubscribe := h.inbox.On(func(ev engine.Event) {
		data, err := json.Marshal(StreamMessage{Type: "event", Event: &ev})
		if err != nil {
			return
		}
		client.push(data)
	})

	snap := h.inbox.Snapshot()
	if data, err := json.Marshal(StreamMessage{Type: "snapshot", State: &snap}); err == nil {
		client.push(data)
	}

	logger := h.requestLogger(r)
	metrics.WebsocketClients.Inc()
	logger.Debug().Str("remote_addr", r.RemoteAddr).Msg("stream client connected")

	go func() {
		client.writePump()
		unsubscribe()
		conn.Close()
		metrics.WebsocketClients.Dec()
		logger.Debug().Str("remote_addr", r.RemoteAddr).Msg("stream client disconnected")
	}()
	go client.readPump()
}

// readPump discards client frames and keeps the read deadline fresh.
func (c *streamClient) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
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
