package stream

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/ims-admission-api/internal/events"
	"github.com/noah-isme/ims-admission-api/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	readLimit  = 512
)

// Frame is the JSON envelope pushed to connected dashboards.
type Frame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Connection is one subscribed dashboard. Clients only listen; the read
// pump exists to process pongs and close frames.
type Connection struct {
	conn *websocket.Conn
	send chan Frame

	userID string
	role   models.UserRole
}

// Hub fans transition events out to every connected dashboard. It consumes
// events from the relay, so dashboards on this instance see transitions
// applied on any instance.
type Hub struct {
	connections map[*Connection]bool
	broadcast   chan Frame
	register    chan *Connection
	unregister  chan *Connection
	stop        chan struct{}

	upgrader   websocket.Upgrader
	sendBuffer int
	clients    atomic.Int64
	logger     *zap.Logger
}

func NewHub(sendBuffer int, logger *zap.Logger) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		connections: make(map[*Connection]bool),
		broadcast:   make(chan Frame, 256),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		stop:        make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin is enforced by the CORS layer in front of the API.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sendBuffer: sendBuffer,
		logger:     logger,
	}
}

// Run owns the connection set. Call it once, in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.connections[conn] = true
			h.clients.Store(int64(len(h.connections)))
			h.logger.Debug("stream client connected",
				zap.String("user_id", conn.userID),
				zap.String("role", string(conn.role)),
				zap.Int("clients", len(h.connections)))

		case conn := <-h.unregister:
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				close(conn.send)
			}
			h.clients.Store(int64(len(h.connections)))

		case frame := <-h.broadcast:
			for conn := range h.connections {
				select {
				case conn.send <- frame:
				default:
					// Slow consumer; drop the connection rather than
					// stall the whole broadcast.
					delete(h.connections, conn)
					close(conn.send)
				}
			}
			h.clients.Store(int64(len(h.connections)))

		case <-h.stop:
			for conn := range h.connections {
				delete(h.connections, conn)
				close(conn.send)
			}
			h.clients.Store(0)
			return
		}
	}
}

// OnTransition implements events.TransitionSink. It never blocks: when the
// broadcast buffer is full the event is dropped and logged.
func (h *Hub) OnTransition(event events.AdmissionTransitionedEvent) {
	frame := Frame{Type: events.TopicAdmissionTransitioned, Data: event}
	select {
	case h.broadcast <- frame:
	default:
		h.logger.Warn("stream broadcast buffer full, dropping event",
			zap.String("admission_id", event.AdmissionID),
			zap.Int64("seq", event.Seq))
	}
}

// Serve upgrades the request and subscribes the caller. On upgrade failure
// the upgrader has already written the HTTP response.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, user models.UserInfo) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &Connection{
		conn:   conn,
		send:   make(chan Frame, h.sendBuffer),
		userID: user.ID,
		role:   user.Role,
	}

	h.register <- c
	go h.readPump(c)
	go h.writePump(c)
	return nil
}

// ClientCount reports how many dashboards are currently subscribed.
func (h *Hub) ClientCount() int {
	return int(h.clients.Load())
}

// Close disconnects every client and stops the run loop.
func (h *Hub) Close() {
	close(h.stop)
}

func (h *Hub) readPump(c *Connection) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Debug("stream read", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(c *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
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
