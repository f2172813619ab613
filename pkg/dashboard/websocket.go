package dashboard

import (
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/net/websocket"
)

// LogStreamMessage represents a log message sent to WebSocket clients.
type LogStreamMessage struct {
	Type       string            `json:"type"`
	Timestamp  int64             `json:"timestamp"`
	Level      string            `json:"level"`
	Message    string            `json:"message"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Client represents a connected WebSocket client.
type Client struct {
	conn   *websocket.Conn
	sendCh chan []byte
}

// LogStreamHub manages WebSocket connections for log streaming. It uses a
// channel-based design with a single goroutine owning the clients map.
type LogStreamHub struct {
	registerCh   chan *Client
	unregisterCh chan *Client
	broadcastCh  chan LogStreamMessage
	stopCh       chan struct{}
	doneCh       chan struct{}
}

// NewLogStreamHub creates a new LogStreamHub.
func NewLogStreamHub() *LogStreamHub {
	return &LogStreamHub{
		registerCh:   make(chan *Client, 16),
		unregisterCh: make(chan *Client, 16),
		broadcastCh:  make(chan LogStreamMessage, 256),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Start begins the hub's event loop.
func (h *LogStreamHub) Start() {
	go h.run()
}

// Stop shuts down the hub.
func (h *LogStreamHub) Stop() {
	close(h.stopCh)
	<-h.doneCh
}

// Broadcast queues a message for all connected clients. Messages are dropped
// when the hub's buffer is full; log streaming is best-effort.
func (h *LogStreamHub) Broadcast(msg LogStreamMessage) {
	select {
	case h.broadcastCh <- msg:
	default:
	}
}

func (h *LogStreamHub) run() {
	defer close(h.doneCh)

	clients := make(map[*Client]struct{})
	for {
		select {
		case c := <-h.registerCh:
			clients[c] = struct{}{}
		case c := <-h.unregisterCh:
			if _, ok := clients[c]; ok {
				delete(clients, c)
				close(c.sendCh)
			}
		case msg := <-h.broadcastCh:
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			for c := range clients {
				select {
				case c.sendCh <- data:
				default:
					// Slow client; drop the message rather than block the hub.
				}
			}
		case <-h.stopCh:
			// Registrations queued before the stop still own a sendCh that
			// must be closed, or their handlers never unblock.
			for {
				select {
				case c := <-h.registerCh:
					clients[c] = struct{}{}
				default:
					for c := range clients {
						close(c.sendCh)
					}
					return
				}
			}
		}
	}
}

// register adds a client to the hub, or reports false when the hub has
// already shut down.
func (h *LogStreamHub) register(c *Client) bool {
	select {
	case h.registerCh <- c:
		return true
	case <-h.doneCh:
		return false
	}
}

// handleWebSocket upgrades the connection and streams log messages to it.
func (d *Dashboard) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		client := &Client{
			conn:   conn,
			sendCh: make(chan []byte, 64),
		}
		if !d.hub.register(client) {
			conn.Close()
			return
		}

		defer func() {
			select {
			case d.hub.unregisterCh <- client:
			case <-d.hub.doneCh:
			}
			conn.Close()
		}()

		for data := range client.sendCh {
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if _, err := conn.Write(data); err != nil {
				return
			}
		}
	}).ServeHTTP(w, r)
}
