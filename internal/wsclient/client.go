// Package wsclient is a reconnecting client for the game socket.
package wsclient

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/xiangqi-server/internal/obslog"
	"github.com/park285/xiangqi-server/pkg/xqdto"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "disconnected"
	}
}

var ErrNotConnected = errors.New("websocket not connected")

type MessageCallback func(env xqdto.Envelope)

type StateCallback func(state State)

type Option func(*Client)

// WithReconnect retries a lost connection up to attempts times. Zero disables
// reconnection.
func WithReconnect(attempts int) Option {
	return func(c *Client) { c.maxReconnect = attempts }
}

func WithPingInterval(d time.Duration) Option {
	return func(c *Client) { c.pingInterval = d }
}

func WithHeader(k, v string) Option {
	return func(c *Client) {
		if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
			c.header.Set(k, v)
		}
	}
}

// Client keeps one socket open and fans incoming envelopes out to callbacks.
// Callbacks run on the reader goroutine and must not block.
type Client struct {
	url    string
	header http.Header
	logger *zap.Logger

	maxReconnect int
	pingInterval time.Duration

	mu    sync.Mutex
	conn  *websocket.Conn
	state State
	gen   int

	writeMu sync.Mutex

	cbMu     sync.RWMutex
	nextCB   int
	msgCbs   map[int]MessageCallback
	stateCbs map[int]StateCallback

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(url string, opts ...Option) *Client {
	c := &Client{
		url:          url,
		header:       http.Header{},
		logger:       obslog.Named("wsclient"),
		maxReconnect: 5,
		pingInterval: 30 * time.Second,
		msgCbs:       map[int]MessageCallback{},
		stateCbs:     map[int]StateCallback{},
		stopCh:       make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials once. On failure a background reconnect is scheduled when
// reconnection is enabled, and the dial error is returned.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	c.setState(StateConnecting)

	if err := c.dial(ctx); err != nil {
		c.setState(StateFailed)
		c.scheduleReconnect()
		return err
	}
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(dctx, c.url, &websocket.DialOptions{HTTPHeader: c.header.Clone()})
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.stopping() {
		c.mu.Unlock()
		_ = ws.Close(websocket.StatusNormalClosure, "closed")
		return ErrNotConnected
	}
	c.conn = ws
	c.gen++
	gen := c.gen
	c.mu.Unlock()
	c.setState(StateConnected)

	c.wg.Add(2)
	go c.listen(ws, gen)
	go c.pingLoop(ws, gen)
	return nil
}

// Send writes one envelope.
func (c *Client) Send(ctx context.Context, typ, roomID string, payload any) error {
	env, err := xqdto.NewEnvelope(typ, roomID, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	ws := c.conn
	c.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsjson.Write(ctx, ws, env)
}

func (c *Client) listen(ws *websocket.Conn, gen int) {
	defer c.wg.Done()
	ctx, cancel := c.stopContext()
	defer cancel()
	for {
		var env xqdto.Envelope
		if err := wsjson.Read(ctx, ws, &env); err != nil {
			c.lost(ws, gen, "read", err)
			return
		}
		c.cbMu.RLock()
		cbs := make([]MessageCallback, 0, len(c.msgCbs))
		for _, cb := range c.msgCbs {
			cbs = append(cbs, cb)
		}
		c.cbMu.RUnlock()
		for _, cb := range cbs {
			cb(env)
		}
	}
}

func (c *Client) pingLoop(ws *websocket.Conn, gen int) {
	defer c.wg.Done()
	t := time.NewTicker(c.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-c.stopCh:
			return
		case <-t.C:
			if !c.current(gen) {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := ws.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				c.lost(ws, gen, "ping", err)
				return
			}
		}
	}
}

// lost tears down generation gen once; stale goroutines of older
// connections are ignored.
func (c *Client) lost(ws *websocket.Conn, gen int, cause string, err error) {
	c.mu.Lock()
	if c.gen != gen || c.conn != ws {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.mu.Unlock()
	_ = ws.Close(websocket.StatusGoingAway, cause)
	if c.stopping() {
		return
	}
	c.logger.Warn("ws_connection_lost", zap.String("cause", cause), zap.Error(err))
	c.setState(StateDisconnected)
	c.scheduleReconnect()
}

func (c *Client) scheduleReconnect() {
	if c.maxReconnect <= 0 || c.stopping() {
		return
	}
	c.setState(StateReconnecting)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for attempt := 1; attempt <= c.maxReconnect; attempt++ {
			select {
			case <-c.stopCh:
				return
			case <-time.After(backoffDuration(attempt)):
			}
			ctx, cancel := c.stopContext()
			err := c.dial(ctx)
			cancel()
			if err == nil {
				c.logger.Info("ws_reconnected", zap.Int("attempt", attempt))
				return
			}
		}
		c.setState(StateFailed)
	}()
}

func (c *Client) current(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen && c.conn != nil
}

func (c *Client) OnMessage(cb MessageCallback) int {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.nextCB++
	c.msgCbs[c.nextCB] = cb
	return c.nextCB
}

func (c *Client) RemoveMessageCallback(id int) {
	c.cbMu.Lock()
	delete(c.msgCbs, id)
	c.cbMu.Unlock()
}

func (c *Client) OnStateChange(cb StateCallback) int {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.nextCB++
	c.stateCbs[c.nextCB] = cb
	return c.nextCB
}

func (c *Client) RemoveStateCallback(id int) {
	c.cbMu.Lock()
	delete(c.stateCbs, id)
	c.cbMu.Unlock()
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()

	c.cbMu.RLock()
	cbs := make([]StateCallback, 0, len(c.stateCbs))
	for _, cb := range c.stateCbs {
		cbs = append(cbs, cb)
	}
	c.cbMu.RUnlock()
	for _, cb := range cbs {
		cb(s)
	}
}

// Close stops reconnection, closes the socket and waits for the background
// goroutines or ctx.
func (c *Client) Close(ctx context.Context) error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.mu.Lock()
	ws := c.conn
	c.conn = nil
	c.mu.Unlock()
	if ws != nil {
		_ = ws.Close(websocket.StatusNormalClosure, "close")
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		c.setState(StateDisconnected)
		return nil
	}
}

func (c *Client) stopping() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

// stopContext is cancelled when the client is closed.
func (c *Client) stopContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-c.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func backoffDuration(attempt int) time.Duration {
	attempt = min(max(attempt, 1), 6)
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}
