package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aircast/coordinator/internal/eventbus"
)

// frame is the wire shape every /ws message takes (§4.7).
type frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

const (
	writeWait  = 2 * time.Second // §5 "WS write 2s"
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// hub is C7's push-channel fan-out, adapted from the teacher's
// WebSocketService register/unregister/broadcast loop: every topic C4
// carries is relayed to every connected client as a typed frame, with the
// teacher's auth/room/notification-type machinery dropped (this channel
// has no authenticated users or rooms, §1).
type hub struct {
	logger *zap.Logger
	bus    *eventbus.Bus

	mu    sync.RWMutex
	conns map[uint64]*wsConn

	nextID uint64
}

type wsConn struct {
	id   uint64
	conn *websocket.Conn
	send chan frame
}

func newHub(logger *zap.Logger, bus *eventbus.Bus) *hub {
	return &hub{logger: logger, bus: bus, conns: make(map[uint64]*wsConn)}
}

// run subscribes to every C4 topic once and relays each message to every
// live connection, dropping oldest-first on a saturated per-connection
// buffer and emitting a lag_hint frame to that connection (§4.7).
func (h *hub) run(ctx context.Context) {
	sub := h.bus.Subscribe()
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			h.relay(msg)
		}
	}
}

func (h *hub) relay(msg eventbus.Message) {
	frameType := frameTypeFor(msg.Topic)
	f := frame{Type: frameType, Payload: msg.Payload}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.conns {
		select {
		case c.send <- f:
		default:
			select {
			case <-c.send:
			default:
			}
			select {
			case c.send <- f:
			default:
			}
			select {
			case c.send <- frame{Type: "lag_hint"}:
			default:
			}
		}
	}
}

func frameTypeFor(t eventbus.Topic) string {
	switch t {
	case eventbus.TopicTrackChanged:
		return "track_update"
	case eventbus.TopicHistoryAppended:
		return "history_update"
	case eventbus.TopicDJState:
		return "dj_state"
	default:
		return string(t)
	}
}

func (h *hub) serve(c *gin.Context) {
	upg := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	conn, err := upg.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.nextID++
	wc := &wsConn{id: h.nextID, conn: conn, send: make(chan frame, 64)}
	h.conns[wc.id] = wc
	h.mu.Unlock()

	go h.readPump(wc)
	h.writePump(wc)
}

// readPump exists solely to notice the client going away and to keep the
// connection's read deadline fresh; the push channel is one-directional.
func (h *hub) readPump(wc *wsConn) {
	defer h.unregister(wc)

	wc.conn.SetReadLimit(512)
	_ = wc.conn.SetReadDeadline(time.Now().Add(pongWait))
	wc.conn.SetPongHandler(func(string) error {
		_ = wc.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := wc.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *hub) writePump(wc *wsConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wc.conn.Close()
		h.unregister(wc)
	}()

	for {
		select {
		case f, ok := <-wc.send:
			_ = wc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = wc.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := wc.conn.WriteJSON(f); err != nil {
				return
			}
		case <-ticker.C:
			_ = wc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *hub) unregister(wc *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[wc.id]; ok {
		delete(h.conns, wc.id)
		close(wc.send)
	}
}
