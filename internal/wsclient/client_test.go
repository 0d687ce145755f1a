package wsclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/xiangqi-server/pkg/xqdto"
)

// echoServer echoes every envelope. When dropFirst is set the first
// connection is closed right after the handshake.
func echoServer(t *testing.T, dropFirst bool) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var accepted atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close(websocket.StatusNormalClosure, "")
		if n := accepted.Add(1); dropFirst && n == 1 {
			return
		}
		for {
			var env xqdto.Envelope
			if err := wsjson.Read(r.Context(), ws, &env); err != nil {
				return
			}
			if err := wsjson.Write(r.Context(), ws, env); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &accepted
}

func wsURL(srv *httptest.Server) string { return "ws" + strings.TrimPrefix(srv.URL, "http") }

func TestSendAndReceive(t *testing.T) {
	srv, _ := echoServer(t, false)
	c := New(wsURL(srv), WithReconnect(0))
	got := make(chan xqdto.Envelope, 1)
	c.OnMessage(func(env xqdto.Envelope) { got <- env })

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if c.State() != StateConnected {
		t.Fatalf("state = %v", c.State())
	}
	if err := c.Send(context.Background(), xqdto.IntentAuth, "XQ-ABCDEF", xqdto.AuthRequest{Identity: "alice"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case env := <-got:
		var req xqdto.AuthRequest
		if err := env.Decode(&req); err != nil || env.Type != xqdto.IntentAuth || req.Identity != "alice" || env.RoomID != "XQ-ABCDEF" {
			t.Fatalf("unexpected echo %+v (%v)", env, err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no echo received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Send(context.Background(), xqdto.IntentAuth, "", nil); err != ErrNotConnected {
		t.Fatalf("Send after Close = %v, want ErrNotConnected", err)
	}
}

func TestReconnectsAfterServerDrop(t *testing.T) {
	srv, accepted := echoServer(t, true)
	c := New(wsURL(srv), WithReconnect(5))
	connected := make(chan struct{}, 4)
	c.OnStateChange(func(s State) {
		if s == StateConnected {
			connected <- struct{}{}
		}
	})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	for i := 0; i < 2; i++ {
		select {
		case <-connected:
		case <-time.After(5 * time.Second):
			t.Fatalf("connection %d not established", i+1)
		}
	}
	if accepted.Load() < 2 {
		t.Fatalf("expected a second handshake, got %d", accepted.Load())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestConnectFailureWithoutReconnect(t *testing.T) {
	c := New("ws://127.0.0.1:1/ws", WithReconnect(0))
	if err := c.Connect(context.Background()); err == nil {
		t.Fatalf("expected dial error")
	}
	if c.State() != StateFailed {
		t.Fatalf("state = %v, want failed", c.State())
	}
}
