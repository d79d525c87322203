package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/peppoasap/InVeritas/internal/app/orch"
	"github.com/peppoasap/InVeritas/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

type SignalWSController struct {
	Orch *orch.Orchestrator

	limiter *RoomRateLimiter
}

func NewSignalWSController(o *orch.Orchestrator) *SignalWSController {
	return &SignalWSController{
		Orch:    o,
		limiter: NewRoomRateLimiter(60, time.Second),
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the HTTP request to the room's signaling
// socket. One socket drives one room; when it drops, the room's whole
// session is torn down.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	room := domain.RoomKey(c.Query("room"))
	if room == "" {
		room = domain.RoomKey(c.GetString("client_token"))
	}
	log.Info().Str("module", "signal").Str("room", string(room)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan []byte, 32),
	}

	if err := ctl.Orch.EnsureSession(ctx, room); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("room", string(room)).Msg("ensure session")
		conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, room, conn)
}
