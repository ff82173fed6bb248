package signaling

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"callbridge/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrBackpressure is returned when an endpoint's send buffer is full. The
// frame is dropped for that recipient only.
var ErrBackpressure = errors.New("signaling: send buffer full")

// ErrEndpointClosed is returned by Send after teardown has begun. A
// broadcast may race disconnect; the frame is dropped for that recipient.
var ErrEndpointClosed = errors.New("signaling: endpoint closed")

const (
	sendBufferSize   = 32
	writeWait        = 5 * time.Second
	maxFrameBytes    = 64 << 10
	presenceInterval = 30 * time.Second
)

// wsEndpoint adapts one gorilla connection to the Endpoint interface. All
// writes go through the buffered send channel so a slow peer never blocks
// a broadcast.
//
// Send and close are serialized by mu: a broadcast that snapshotted this
// endpoint before teardown must get an error, not a send on a closed
// channel.
type wsEndpoint struct {
	id       string
	userID   int64
	username string

	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func (e *wsEndpoint) ID() string       { return e.id }
func (e *wsEndpoint) UserID() int64    { return e.userID }
func (e *wsEndpoint) Username() string { return e.username }

func (e *wsEndpoint) Send(frame []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEndpointClosed
	}
	select {
	case e.send <- frame:
		return nil
	default:
		return ErrBackpressure
	}
}

func (e *wsEndpoint) close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	// No sender can be in flight past this point; Send checks closed under
	// the same mutex.
	close(e.send)
	_ = e.conn.Close()
}

// WSHandler upgrades authenticated HTTP requests to signaling connections
// and runs their read/write pumps.
type WSHandler struct {
	relay    *Relay
	presence Presence
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(relay *Relay, presence Presence, log *slog.Logger) *WSHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WSHandler{
		relay:    relay,
		presence: presence,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The browser client is served from the same origin; tokens, not
			// origins, gate access here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle expects auth middleware to have already verified the access token
// and injected the identity.
func (h *WSHandler) Handle(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	username, _ := auth.Username(c.Request.Context())

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "user_id", userID, "err", err)
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	ep := &wsEndpoint{
		id:       uuid.NewString(),
		userID:   userID,
		username: username,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.log.Info("endpoint connected", "user_id", userID, "endpoint_id", ep.id)

	go h.writePump(ctx, ep)
	go h.heartbeat(ctx, ep)
	go h.readPump(ctx, cancel, ep)
}

func (h *WSHandler) readPump(ctx context.Context, cancel context.CancelFunc, ep *wsEndpoint) {
	defer func() {
		// Teardown order matters: membership must be gone before the
		// connection is, or a concurrent broadcast could target a dead peer.
		h.relay.Disconnect(ctx, ep)
		cancel()
		ep.close()
	}()

	for {
		_, data, err := ep.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("unexpected close", "user_id", ep.userID, "err", err)
			}
			return
		}
		h.relay.HandleEvent(ctx, ep, data)
	}
}

func (h *WSHandler) writePump(ctx context.Context, ep *wsEndpoint) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-ep.send:
			if !ok {
				return
			}
			if err := ep.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				h.log.Warn("set write deadline failed", "user_id", ep.userID, "err", err)
				return
			}
			if err := ep.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.log.Warn("write failed", "user_id", ep.userID, "err", err)
				return
			}
		}
	}
}

// heartbeat refreshes the advisory online marker while the connection
// lives, so presence survives TTL expiry on long idle calls.
func (h *WSHandler) heartbeat(ctx context.Context, ep *wsEndpoint) {
	if h.presence == nil {
		return
	}
	ticker := time.NewTicker(presenceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.presence.Online(ctx, ep.userID); err != nil {
				h.log.Warn("presence refresh failed", "user_id", ep.userID, "err", err)
			}
		}
	}
}
