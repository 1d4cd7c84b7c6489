package telemetry

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tiltbot/internal/sim"
)

const (
	writeWait  = time.Second
	sendBuffer = 8
)

// CommandSetter receives commands decoded from control clients.
type CommandSetter interface {
	Set(sim.Command)
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// Hub fans frames out to websocket subscribers. It implements sim.Sink;
// Render never blocks on a slow client, frames are dropped for it instead.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
	commands CommandSetter
	logger   *zap.SugaredLogger
}

// NewHub creates a hub. commands may be nil, in which case control clients
// can watch but not steer.
func NewHub(commands CommandSetter, logger *zap.SugaredLogger) *Hub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Hub{
		clients:  make(map[*client]struct{}),
		commands: commands,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Render broadcasts the frame to every subscriber.
func (h *Hub) Render(frame sim.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		return
	}

	payload := EncodeFrame(frame)
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.logger.Debugw("telemetry client lagging, frame dropped", "client", c.id, "tick", frame.Tick)
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

// TelemetryHandler streams frames; anything the client sends is ignored.
func (h *Hub) TelemetryHandler() http.HandlerFunc {
	return h.handler(false)
}

// ControlHandler streams frames and applies ControlUpdate messages (binary)
// or bare command tokens (text) sent by the client.
func (h *Hub) ControlHandler() http.HandlerFunc {
	return h.handler(true)
}

func (h *Hub) handler(control bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warnw("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}
		h.add(c)
		h.logger.Infow("telemetry client connected", "client", c.id, "remote", r.RemoteAddr, "control", control)

		go h.writeLoop(c)
		defer func() {
			h.remove(c)
			h.logger.Infow("telemetry client disconnected", "client", c.id)
		}()

		for {
			typ, data, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.logger.Debugw("telemetry read error", "client", c.id, "error", err)
				}
				return
			}
			if !control || h.commands == nil {
				continue
			}
			h.apply(c, typ, data)
		}
	}
}

func (h *Hub) apply(c *client, typ int, data []byte) {
	token := string(data)
	if typ == websocket.BinaryMessage {
		var err error
		if token, err = DecodeControl(data); err != nil {
			h.logger.Warnw("unable to decode control update", "client", c.id, "error", err)
			return
		}
	}
	cmd, ok := sim.ParseCommand(token)
	if !ok {
		h.logger.Warnw("unrecognized command, treating as stop", "client", c.id, "token", token)
	}
	h.commands.Set(cmd)
	h.logger.Infow("websocket command", "client", c.id, "command", cmd.String())
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for payload := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return
		}
		if err := c.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
			h.logger.Debugw("failed to write to client", "client", c.id, "error", err)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}
