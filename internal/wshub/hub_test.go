package wshub

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/xiangqi-server/internal/registry"
	"github.com/park285/xiangqi-server/internal/roomstore"
	"github.com/park285/xiangqi-server/internal/session"
	"github.com/park285/xiangqi-server/pkg/xqdto"
)

type fixture struct {
	srv   *httptest.Server
	store *roomstore.Store
	reg   *registry.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := roomstore.NewStore(rdb, time.Minute)

	var hub *Hub
	reg := registry.New(registry.Config{
		Defaults: session.DefaultOptions(),
		Source:   store,
		Sink:     session.SinkFunc(func(ev session.Event) { hub.Publish(ev) }),
	})
	hub = NewHub(Config{
		Registry: reg,
		Rooms:    store,
		Defaults: roomstore.Settings{UndoEnabled: true, MaxUndo: 3, ClockSeconds: 1800},
	})
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, store: store, reg: reg}
}

type client struct {
	t  *testing.T
	ws *websocket.Conn
}

func (f *fixture) dial(t *testing.T) *client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http")
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close(websocket.StatusNormalClosure, "") })
	return &client{t: t, ws: ws}
}

func (c *client) send(typ, room string, payload any) {
	c.t.Helper()
	env, err := xqdto.NewEnvelope(typ, room, payload)
	if err != nil {
		c.t.Fatalf("envelope: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, c.ws, env); err != nil {
		c.t.Fatalf("write %s: %v", typ, err)
	}
}

// expect reads frames until one of type typ arrives and decodes it into v.
func (c *client) expect(typ string, v any) xqdto.Envelope {
	c.t.Helper()
	return c.expectMatch(typ, v, func() bool { return true })
}

func (c *client) expectMatch(typ string, v any, ok func() bool) xqdto.Envelope {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		var env xqdto.Envelope
		if err := wsjson.Read(ctx, c.ws, &env); err != nil {
			c.t.Fatalf("waiting for %s: %v", typ, err)
		}
		if env.Type != typ {
			continue
		}
		if v != nil {
			if err := env.Decode(v); err != nil {
				c.t.Fatalf("decode %s: %v", typ, err)
			}
		}
		if ok() {
			return env
		}
	}
}

func (c *client) expectError(code string) xqdto.DomainError {
	c.t.Helper()
	var de xqdto.DomainError
	c.expect(xqdto.FrameError, &de)
	if de.Code != code {
		c.t.Fatalf("error code = %q (%s), want %q", de.Code, de.Message, code)
	}
	return de
}

// seatedPair creates a room for alice and seats bob in it.
func (f *fixture) seatedPair(t *testing.T) (alice, bob *client, room string) {
	t.Helper()
	alice, bob = f.dial(t), f.dial(t)

	alice.send(xqdto.IntentAuth, "", xqdto.AuthRequest{Identity: "alice", Name: "Alice"})
	alice.expect(xqdto.FrameAuthOK, nil)
	alice.send(xqdto.IntentCreateRoom, "", xqdto.CreateRoomRequest{})
	var created xqdto.RoomCreated
	alice.expect(xqdto.FrameRoomCreated, &created)
	if created.Side != "red" || !strings.HasPrefix(created.RoomID, "XQ-") {
		t.Fatalf("unexpected room_created %+v", created)
	}

	bob.send(xqdto.IntentAuth, "", xqdto.AuthRequest{Identity: "bob", Name: "Bob", RoomID: created.RoomID})
	var ok xqdto.AuthOK
	bob.expect(xqdto.FrameAuthOK, &ok)
	if ok.Side != "black" || ok.RoomID != created.RoomID {
		t.Fatalf("unexpected auth_ok %+v", ok)
	}
	return alice, bob, created.RoomID
}

func startGame(t *testing.T, alice, bob *client, room string) {
	t.Helper()
	alice.send(xqdto.IntentPlayerReady, room, nil)
	bob.send(xqdto.IntentPlayerReady, room, nil)
	for _, c := range []*client{alice, bob} {
		var st xqdto.GameState
		c.expectMatch(xqdto.FrameGameState, &st, func() bool { return st.Status == "PLAYING" })
		if st.Turn != "red" || st.MoveCount != 0 || len(st.Board) != 10 {
			t.Fatalf("unexpected start state %+v", st)
		}
	}
}

func TestGameFlowOverSocket(t *testing.T) {
	f := newFixture(t)
	alice, bob, room := f.seatedPair(t)
	startGame(t, alice, bob, room)

	meta, err := f.store.LoadRoom(context.Background(), room)
	if err != nil || meta == nil || meta.State != roomstore.StatePlaying {
		t.Fatalf("room metadata not marked playing: %+v %v", meta, err)
	}

	bob.send(xqdto.IntentMovePiece, room, xqdto.MoveRequest{From: xqdto.Position{Row: 0, Col: 1}, To: xqdto.Position{Row: 2, Col: 2}})
	de := bob.expectError("not_your_turn")
	if !strings.Contains(de.Message, "홍") {
		t.Fatalf("message should name the side to move: %q", de.Message)
	}

	alice.send(xqdto.IntentSelectPiece, room, xqdto.SelectRequest{Position: xqdto.Position{Row: 9, Col: 1}})
	var am xqdto.AvailableMoves
	alice.expect(xqdto.FrameAvailableMoves, &am)
	if len(am.Destinations) != 2 {
		t.Fatalf("opening horse should have 2 destinations, got %v", am.Destinations)
	}

	alice.send(xqdto.IntentMovePiece, room, xqdto.MoveRequest{From: xqdto.Position{Row: 9, Col: 1}, To: xqdto.Position{Row: 7, Col: 2}})
	var st xqdto.GameState
	bob.expectMatch(xqdto.FrameGameState, &st, func() bool { return st.Event == "move_applied" })
	if st.Turn != "black" || st.MoveCount != 1 || st.LastMove == nil || st.LastMove.Notation != "馬(9,1)到(7,2)" {
		t.Fatalf("unexpected state after move %+v", st)
	}

	alice.send(xqdto.IntentSurrender, room, nil)
	bob.expectMatch(xqdto.FrameGameState, &st, func() bool { return st.Status == "BLACK_WIN" })
	if st.Reason != session.ReasonSurrender || st.Winner != "black" {
		t.Fatalf("unexpected end state %+v", st)
	}
}

func TestRejectsBeforeAuth(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t)

	c.send(xqdto.IntentSelectPiece, "XQ-AAAAAA", xqdto.SelectRequest{})
	c.expectError("unauthenticated")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.ws.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	c.expectError("bad_request")

	c.send(xqdto.IntentAuth, "", xqdto.AuthRequest{Identity: "carol"})
	c.expect(xqdto.FrameAuthOK, nil)
	c.send(xqdto.IntentMovePiece, "", xqdto.MoveRequest{})
	c.expectError("room_not_found")
}

func TestAuthIntoUnknownRoom(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t)
	c.send(xqdto.IntentAuth, "", xqdto.AuthRequest{Identity: "dave", RoomID: "XQ-NOPE00"})
	de := c.expectError("room_not_found")
	if de.Message == "" {
		t.Fatalf("error frame should carry a message")
	}
}

func TestThirdPlayerIsRejected(t *testing.T) {
	f := newFixture(t)
	_, _, room := f.seatedPair(t)
	eve := f.dial(t)
	eve.send(xqdto.IntentAuth, "", xqdto.AuthRequest{Identity: "eve", RoomID: room})
	eve.expectError("room_full")
}

func TestBoardImageFrame(t *testing.T) {
	f := newFixture(t)
	alice, _, room := f.seatedPair(t)
	alice.send(xqdto.IntentBoardImage, room, xqdto.BoardImageRequest{})
	var img xqdto.BoardImage
	alice.expect(xqdto.FrameBoardImage, &img)
	if img.RoomID != room || len(img.ImageBase64) < 100 {
		t.Fatalf("unexpected board image frame: room=%q len=%d", img.RoomID, len(img.ImageBase64))
	}
}

func TestLeaveDeletesEmptyRoom(t *testing.T) {
	f := newFixture(t)
	alice := f.dial(t)
	alice.send(xqdto.IntentAuth, "", xqdto.AuthRequest{Identity: "alice"})
	alice.expect(xqdto.FrameAuthOK, nil)
	alice.send(xqdto.IntentCreateRoom, "", xqdto.CreateRoomRequest{})
	var created xqdto.RoomCreated
	alice.expect(xqdto.FrameRoomCreated, &created)

	alice.send(xqdto.IntentLeaveRoom, created.RoomID, nil)
	alice.expect(xqdto.FrameRoomLeft, nil)

	if _, ok := f.reg.Get(created.RoomID); ok {
		t.Fatalf("empty room should be evicted")
	}
	meta, err := f.store.LoadRoom(context.Background(), created.RoomID)
	if err != nil || meta != nil {
		t.Fatalf("room metadata should be deleted, got %+v %v", meta, err)
	}
}

func TestDisconnectPausesGame(t *testing.T) {
	f := newFixture(t)
	alice, bob, room := f.seatedPair(t)
	startGame(t, alice, bob, room)

	_ = bob.ws.Close(websocket.StatusNormalClosure, "bye")
	var st xqdto.GameState
	alice.expectMatch(xqdto.FrameGameState, &st, func() bool { return st.Status == "PAUSED" })
	if st.Black == nil || st.Black.Connected {
		t.Fatalf("black should be shown disconnected: %+v", st.Black)
	}
}

func TestErrorCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{session.ErrIllegalMove, "illegal_move"},
		{registry.ErrRoomNotFound, "room_not_found"},
		{roomstore.ErrRoomFull, "room_full"},
		{turnError{err: session.ErrNotYourTurn, side: "홍"}, "not_your_turn"},
		{context.DeadlineExceeded, "internal"},
	}
	for _, tc := range cases {
		if got := errorCode(tc.err); got != tc.want {
			t.Fatalf("errorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
