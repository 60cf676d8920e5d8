package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second

	// Per-client outbound buffer. A client that cannot keep up is dropped
	// rather than blocking the broadcast path.
	wsSendBuffer = 64
)

// wsEvent is the frame sent to dashboard clients.
type wsEvent struct {
	Type string    `json:"type"`
	Data any       `json:"data"`
	Time time.Time `json:"time"`
}

// wsCommand is what dashboard clients may send back.
type wsCommand struct {
	Type  string `json:"type"`
	Agent string `json:"agent,omitempty"`
}

// Hub fans call events out to the connected dashboard clients and routes
// their commands to the call controller. It implements gateway.Broadcaster.
type Hub struct {
	log  *slog.Logger
	ctrl CallController

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates the WebSocket hub. The controller may be nil until the
// gateway is wired in.
func NewHub(ctrl CallController) *Hub {
	return &Hub{
		log:  slog.Default().With("component", "ws"),
		ctrl: ctrl,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The API key middleware already gates the upgrade; the
			// dashboard may be served from a different origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// SetController wires the call controller in after construction.
func (h *Hub) SetController(ctrl CallController) {
	h.ctrl = ctrl
}

// Broadcast sends one event to every connected client. Clients whose buffer
// is full are disconnected.
func (h *Hub) Broadcast(event string, data any) {
	frame, err := json.Marshal(wsEvent{Type: event, Data: data, Time: time.Now().UTC()})
	if err != nil {
		h.log.Error("marshaling ws event", "event", event, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			h.log.Warn("dropping slow ws client")
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// ClientCount returns the number of connected dashboard clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// HandleWS upgrades the connection and starts the client pumps.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Info("ws client connected", "remote_addr", r.RemoteAddr, "clients", n)

	go h.writePump(c)
	go h.readPump(c)
}

// Close disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		c.conn.Close()
		delete(h.clients, c)
	}
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(c *wsClient) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("ws read error", "error", err)
			}
			return
		}

		var cmd wsCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			h.log.Warn("unparseable ws command", "error", err)
			continue
		}
		h.dispatch(cmd)
	}
}

// dispatch executes one dashboard command against the active call.
func (h *Hub) dispatch(cmd wsCommand) {
	if h.ctrl == nil {
		return
	}

	var err error
	switch cmd.Type {
	case "hangup":
		err = h.ctrl.HangupActive()
	case "mute_ai":
		err = h.ctrl.SetAIMuted(true)
	case "unmute_ai":
		err = h.ctrl.SetAIMuted(false)
	case "switch_agent":
		err = h.ctrl.SwitchActiveAgent(cmd.Agent)
	default:
		h.log.Warn("unknown ws command", "type", cmd.Type)
		return
	}
	if err != nil {
		h.log.Warn("ws command failed", "type", cmd.Type, "error", err)
	}
}
