package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/xiangqi-server/internal/roomstore"
	"github.com/park285/xiangqi-server/internal/session"
	"github.com/park285/xiangqi-server/internal/xiangqi"
	"github.com/redis/go-redis/v9"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type sink struct {
	mu     sync.Mutex
	counts map[session.EventKind]int
}

func (s *sink) Publish(ev session.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts == nil {
		s.counts = map[session.EventKind]int{}
	}
	s.counts[ev.Kind]++
}

func (s *sink) count(k session.EventKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[k]
}

func newTestRegistry(t *testing.T, source RoomSource) (*Registry, *clock, *sink) {
	t.Helper()
	clk := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	snk := &sink{}
	opts := session.DefaultOptions()
	opts.Clock = time.Minute
	r := New(Config{Defaults: opts, Source: source, Sink: snk, Now: clk.Now})
	return r, clk, snk
}

func newTestStore(t *testing.T) (*roomstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return roomstore.NewStore(rdb, time.Minute), mr
}

func TestGetOrCreateConstructsOnce(t *testing.T) {
	r, _, snk := newTestRegistry(t, nil)
	ctx := context.Background()

	const n = 32
	got := make([]*session.Session, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := r.GetOrCreate(ctx, "room-1")
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			got[i] = s
		}(i)
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		if got[i] != got[0] {
			t.Fatalf("caller %d received a different session", i)
		}
	}
	if c := snk.count(session.EventSessionCreated); c != 1 {
		t.Fatalf("expected one session_created, got %d", c)
	}
	if rooms := r.Rooms(); len(rooms) != 1 || rooms[0] != "room-1" {
		t.Fatalf("unexpected rooms %v", rooms)
	}
}

func TestGetBeforeCreate(t *testing.T) {
	r, _, _ := newTestRegistry(t, nil)
	if _, ok := r.Get("room-1"); ok {
		t.Fatalf("no session should exist yet")
	}
	if _, ok := r.LastActivityTime("room-1"); ok {
		t.Fatalf("no activity for a missing room")
	}
	if err := r.Leave(context.Background(), "room-1", "u1"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestJoinWithoutSourceAutoSeats(t *testing.T) {
	r, _, _ := newTestRegistry(t, nil)
	ctx := context.Background()
	if _, side, err := r.Join(ctx, "room-1", "u1", "Alice"); err != nil || side != xiangqi.Red {
		t.Fatalf("first join: %v %v", side, err)
	}
	if _, side, err := r.Join(ctx, "room-1", "u2", "Bob"); err != nil || side != xiangqi.Black {
		t.Fatalf("second join: %v %v", side, err)
	}
	if _, _, err := r.Join(ctx, "room-1", "u3", "Carol"); !errors.Is(err, session.ErrSeatsFull) {
		t.Fatalf("third join: %v", err)
	}
}

func TestJoinResolvesSeatsFromStore(t *testing.T) {
	store, _ := newTestStore(t)
	r, _, _ := newTestRegistry(t, store)
	ctx := context.Background()

	if _, _, err := r.Join(ctx, "XQ-NOPE00", "u1", "Alice"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
	meta, err := store.CreateRoom(ctx, "u1", "Alice", roomstore.Settings{UndoEnabled: true, MaxUndo: 1, ClockSeconds: 120})
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	// the joiner connects first but still gets player two's seat
	s, side, err := r.Join(ctx, meta.ID, "u2", "Bob")
	if err != nil || side != xiangqi.Black {
		t.Fatalf("join u2: %v %v", side, err)
	}
	if _, side, err := r.Join(ctx, meta.ID, "u1", "Alice"); err != nil || side != xiangqi.Red {
		t.Fatalf("join u1: %v %v", side, err)
	}
	snap := s.Snapshot()
	if snap.UndoBudget != 1 || snap.RedClock != 2*time.Minute {
		t.Fatalf("room settings not applied: budget=%d clock=%v", snap.UndoBudget, snap.RedClock)
	}

	s.SetReady("u1", true)
	s.SetReady("u2", true)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got, _ := store.LoadRoom(ctx, meta.ID); got.State != roomstore.StatePlaying {
		t.Fatalf("room should be marked playing, got %s", got.State)
	}
	s.Surrender("u2")
	if got, _ := store.LoadRoom(ctx, meta.ID); got.State != roomstore.StateFinished || got.Result != string(session.StatusRedWin) {
		t.Fatalf("room should be finished with RED_WIN, got %+v", got)
	}
}

func TestRejectedJoinReleasesSeatClaim(t *testing.T) {
	store, _ := newTestStore(t)
	r, _, _ := newTestRegistry(t, store)
	ctx := context.Background()
	meta, _ := store.CreateRoom(ctx, "u1", "Alice", roomstore.Settings{UndoEnabled: true})
	s, _, _ := r.Join(ctx, meta.ID, "u1", "Alice")
	r.Join(ctx, meta.ID, "u2", "Bob")
	s.SetReady("u1", true)
	s.SetReady("u2", true)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Surrender("u2")
	if err := r.Leave(ctx, meta.ID, "u2"); err != nil {
		t.Fatalf("Leave u2: %v", err)
	}

	// the game is over, so the session refuses the newcomer
	if _, _, err := r.Join(ctx, meta.ID, "u3", "Carol"); !errors.Is(err, session.ErrNotWaiting) {
		t.Fatalf("expected ErrNotWaiting, got %v", err)
	}
	got, _ := store.LoadRoom(ctx, meta.ID)
	if got == nil || got.Player2ID != "" || got.Seats() != 1 {
		t.Fatalf("rejected join must not keep a seat claim: %+v", got)
	}

	if err := s.Rematch(); err != nil {
		t.Fatalf("Rematch: %v", err)
	}
	if _, side, err := r.Join(ctx, meta.ID, "u4", "Dan"); err != nil || side != xiangqi.Black {
		t.Fatalf("newcomer after rematch: %v %v", side, err)
	}
	if got, _ := store.LoadRoom(ctx, meta.ID); got.Player2ID != "u4" {
		t.Fatalf("u4 should hold player two: %+v", got)
	}
}

func TestRejoinMarksConnected(t *testing.T) {
	r, _, _ := newTestRegistry(t, nil)
	ctx := context.Background()
	s, _, _ := r.Join(ctx, "room-1", "u1", "Alice")
	r.Join(ctx, "room-1", "u2", "Bob")

	if err := r.Disconnect("room-1", "u1"); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if p := s.Snapshot().Red; p.Connected {
		t.Fatalf("u1 should be disconnected")
	}
	if _, side, err := r.Join(ctx, "room-1", "u1", "Alice"); err != nil || side != xiangqi.Red {
		t.Fatalf("rejoin: %v %v", side, err)
	}
	if p := s.Snapshot().Red; !p.Connected {
		t.Fatalf("u1 should be connected again")
	}
}

func TestDisconnectAllEvicts(t *testing.T) {
	r, _, snk := newTestRegistry(t, nil)
	ctx := context.Background()
	r.Join(ctx, "room-1", "u1", "Alice")
	r.Join(ctx, "room-1", "u2", "Bob")

	r.Disconnect("room-1", "u1")
	if _, ok := r.Get("room-1"); !ok {
		t.Fatalf("one connected participant keeps the room")
	}
	r.Disconnect("room-1", "u2")
	if _, ok := r.Get("room-1"); ok {
		t.Fatalf("room should be evicted")
	}
	if snk.count(session.EventSessionEvicted) != 1 {
		t.Fatalf("expected session_evicted")
	}
}

func TestLeaveBothDeletesRoom(t *testing.T) {
	store, _ := newTestStore(t)
	r, _, _ := newTestRegistry(t, store)
	ctx := context.Background()
	meta, _ := store.CreateRoom(ctx, "u1", "Alice", roomstore.Settings{UndoEnabled: true})
	r.Join(ctx, meta.ID, "u1", "Alice")
	r.Join(ctx, meta.ID, "u2", "Bob")

	if err := r.Leave(ctx, meta.ID, "u2"); err != nil {
		t.Fatalf("Leave u2: %v", err)
	}
	if got, _ := store.LoadRoom(ctx, meta.ID); got == nil || got.Player2ID != "" {
		t.Fatalf("player two should be released: %+v", got)
	}
	if err := r.Leave(ctx, meta.ID, "u1"); err != nil {
		t.Fatalf("Leave u1: %v", err)
	}
	if _, ok := r.Get(meta.ID); ok {
		t.Fatalf("empty room should be evicted")
	}
	if got, _ := store.LoadRoom(ctx, meta.ID); got != nil {
		t.Fatalf("empty room metadata should be deleted")
	}
}

func TestSweepIdle(t *testing.T) {
	r, clk, _ := newTestRegistry(t, nil)
	ctx := context.Background()
	r.Join(ctx, "old", "u1", "Alice")
	clk.Advance(20 * time.Minute)
	r.Join(ctx, "new", "u2", "Bob")

	if at, ok := r.LastActivityTime("new"); !ok || !at.Equal(clk.Now()) {
		t.Fatalf("LastActivityTime = %v %v", at, ok)
	}
	clk.Advance(15 * time.Minute)
	evicted := r.Sweep(30 * time.Minute)
	if len(evicted) != 1 || evicted[0] != "old" {
		t.Fatalf("expected only old swept, got %v", evicted)
	}
	if rooms := r.Rooms(); len(rooms) != 1 || rooms[0] != "new" {
		t.Fatalf("unexpected rooms %v", rooms)
	}
}

func TestExpireClocks(t *testing.T) {
	r, clk, _ := newTestRegistry(t, nil)
	ctx := context.Background()
	s, _, _ := r.Join(ctx, "room-1", "u1", "Alice")
	r.Join(ctx, "room-1", "u2", "Bob")
	s.SetReady("u1", true)
	s.SetReady("u2", true)
	s.Start()

	if got := r.ExpireClocks(); len(got) != 0 {
		t.Fatalf("nothing should expire yet: %v", got)
	}
	clk.Advance(2 * time.Minute)
	if got := r.ExpireClocks(); len(got) != 1 {
		t.Fatalf("expected one forfeit, got %v", got)
	}
	if st := s.Status(); st != session.StatusBlackWin {
		t.Fatalf("status = %s", st)
	}
}

func TestSweeperEvictsExpiredWaitingRooms(t *testing.T) {
	store, mr := newTestStore(t)
	r, _, _ := newTestRegistry(t, store)
	ctx := context.Background()
	meta, _ := store.CreateRoom(ctx, "u1", "Alice", roomstore.Settings{})
	r.Join(ctx, meta.ID, "u1", "Alice")

	sw := &Sweeper{Registry: r, Waiting: store, IdleTimeout: time.Hour}
	sw.SweepOnce(ctx)
	if _, ok := r.Get(meta.ID); !ok {
		t.Fatalf("room should survive before the waiting ttl")
	}
	mr.FastForward(2 * time.Minute)
	sw.SweepOnce(ctx)
	if _, ok := r.Get(meta.ID); ok {
		t.Fatalf("expired waiting room should be evicted")
	}
}

func TestSweeperRunStopsWithContext(t *testing.T) {
	r, _, _ := newTestRegistry(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- (&Sweeper{Registry: r, Interval: time.Millisecond}).Run(ctx) }()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop")
	}
}
