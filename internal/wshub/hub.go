// Package wshub serves game clients over WebSocket. Each connection binds to
// one identity and at most one room; session events fan out to every
// connection in the room.
package wshub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/xiangqi-server/internal/adapter/xqpresenter"
	"github.com/park285/xiangqi-server/internal/msgcat"
	"github.com/park285/xiangqi-server/internal/obslog"
	"github.com/park285/xiangqi-server/internal/registry"
	"github.com/park285/xiangqi-server/internal/roomstore"
	"github.com/park285/xiangqi-server/internal/session"
	"github.com/park285/xiangqi-server/pkg/xqdto"
)

// RoomCreator allocates persisted rooms. roomstore.Store implements it.
type RoomCreator interface {
	CreateRoom(ctx context.Context, creatorID, creatorName string, set roomstore.Settings) (*roomstore.RoomMeta, error)
}

type Config struct {
	Registry  *registry.Registry
	Rooms     RoomCreator
	Presenter *xqpresenter.Presenter
	Messages  *msgcat.Catalog
	// Defaults apply to create_room fields the client leaves unset.
	Defaults       roomstore.Settings
	AllowedOrigins []string
	PingInterval   time.Duration
	SendBuffer     int
}

type Hub struct {
	reg       *registry.Registry
	rooms     RoomCreator
	presenter *xqpresenter.Presenter
	msgs      *msgcat.Catalog
	defaults  roomstore.Settings
	origins   map[string]bool
	ping      time.Duration
	buffer    int
	logger    *zap.Logger

	mu     sync.RWMutex
	conns  map[*conn]struct{}
	byRoom map[string]map[*conn]struct{}
}

// conn is one client socket. Only the reader goroutine mutates identity,
// name and room; broadcasters read room under Hub.mu through byRoom.
type conn struct {
	id       string
	ws       *websocket.Conn
	send     chan []byte
	identity string
	name     string
	room     string
}

func NewHub(cfg Config) *Hub {
	origins := map[string]bool{}
	for _, o := range cfg.AllowedOrigins {
		if o != "" {
			origins[o] = true
		}
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 15 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.Presenter == nil {
		cfg.Presenter = xqpresenter.NewPresenter(nil)
	}
	if cfg.Messages == nil {
		cfg.Messages = msgcat.Must()
	}
	return &Hub{
		reg:       cfg.Registry,
		rooms:     cfg.Rooms,
		presenter: cfg.Presenter,
		msgs:      cfg.Messages,
		defaults:  cfg.Defaults,
		origins:   origins,
		ping:      cfg.PingInterval,
		buffer:    cfg.SendBuffer,
		logger:    obslog.Named("wshub"),
		conns:     map[*conn]struct{}{},
		byRoom:    map[string]map[*conn]struct{}{},
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin != "" && len(h.origins) > 0 && !h.origins[origin] {
		http.Error(w, "forbidden origin", http.StatusForbidden)
		return
	}
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.logger.Warn("ws_accept_failed", zap.Error(err))
		return
	}
	c := &conn{id: uuid.NewString(), ws: ws, send: make(chan []byte, h.buffer)}
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("ws_connected", zap.String("conn_id", c.id))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writeLoop(ctx, c)
	}()

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			break
		}
		var env xqdto.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			h.sendError(c, "", errBadRequest)
			continue
		}
		h.dispatch(ctx, c, env)
	}

	h.drop(c)
	cancel()
	<-done
	h.logger.Info("ws_disconnected", zap.String("conn_id", c.id), zap.String("identity", c.identity))
}

func (h *Hub) writeLoop(ctx context.Context, c *conn) {
	ping := time.NewTicker(h.ping)
	defer func() {
		ping.Stop()
		_ = c.ws.Close(websocket.StatusNormalClosure, "bye")
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := c.ws.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := c.ws.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// drop forgets c and reports the lost connection to its room.
func (h *Hub) drop(c *conn) {
	room := c.room
	h.mu.Lock()
	delete(h.conns, c)
	h.leaveLocked(c)
	h.mu.Unlock()
	if room != "" && c.identity != "" && h.reg != nil && !h.identityOnline(room, c.identity) {
		if err := h.reg.Disconnect(room, c.identity); err != nil && errorCode(err) != "room_not_found" {
			h.logger.Debug("ws_disconnect_report", zap.String("room_id", room), zap.Error(err))
		}
	}
}

// identityOnline reports whether another socket of identity is still in room.
func (h *Hub) identityOnline(room, identity string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for other := range h.byRoom[room] {
		if other.identity == identity {
			return true
		}
	}
	return false
}

func (h *Hub) joinRoom(c *conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c)
	c.room = room
	set := h.byRoom[room]
	if set == nil {
		set = map[*conn]struct{}{}
		h.byRoom[room] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) leaveRoom(c *conn) {
	h.mu.Lock()
	h.leaveLocked(c)
	h.mu.Unlock()
}

func (h *Hub) leaveLocked(c *conn) {
	if c.room == "" {
		return
	}
	if set := h.byRoom[c.room]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byRoom, c.room)
		}
	}
	c.room = ""
}

// Publish broadcasts the room's state after every session event. Selection
// changes stay private to the selecting connection.
func (h *Hub) Publish(ev session.Event) {
	if h == nil || ev.Snapshot == nil || ev.Kind == session.EventSelectionChanged {
		return
	}
	h.broadcast(ev.RoomID, xqdto.FrameGameState, xqpresenter.ToDTOState(ev.Snapshot, ev.Kind))
}

// Connections returns the number of open sockets.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) broadcast(room, typ string, payload any) {
	b, err := encode(typ, room, payload)
	if err != nil {
		h.logger.Error("ws_encode_failed", zap.String("type", typ), zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.byRoom[room] {
		h.enqueue(c, b)
	}
}

func (h *Hub) sendTo(c *conn, room, typ string, payload any) {
	b, err := encode(typ, room, payload)
	if err != nil {
		h.logger.Error("ws_encode_failed", zap.String("type", typ), zap.Error(err))
		return
	}
	h.enqueue(c, b)
}

func (h *Hub) sendError(c *conn, room string, err error) {
	var data map[string]string
	var te turnError
	if errors.As(err, &te) {
		data = map[string]string{"Side": te.side}
	}
	de := h.domainError(err, data)
	if de.Code == "internal" {
		h.logger.Error("ws_intent_failed", zap.String("conn_id", c.id), zap.String("room_id", room), zap.Error(err))
	}
	h.sendTo(c, room, xqdto.FrameError, de)
}

// enqueue never blocks; a client too slow to drain its buffer loses frames.
func (h *Hub) enqueue(c *conn, b []byte) {
	select {
	case c.send <- b:
	default:
		h.logger.Warn("ws_send_buffer_full", zap.String("conn_id", c.id))
	}
}

func encode(typ, room string, payload any) ([]byte, error) {
	env, err := xqdto.NewEnvelope(typ, room, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}
