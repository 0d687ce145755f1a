package roomstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/xiangqi-server/internal/xiangqi"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
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
	return NewStore(rdb, time.Minute), mr
}

var defaultSettings = Settings{UndoEnabled: true, MaxUndo: 3, ClockSeconds: 600}

func TestCreateAndLoadRoom(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	meta, err := s.CreateRoom(ctx, "u1", "Alice", defaultSettings)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if len(meta.ID) != 9 || meta.ID[:3] != "XQ-" {
		t.Fatalf("unexpected room code %q", meta.ID)
	}
	got, err := s.LoadRoom(ctx, meta.ID)
	if err != nil || got == nil {
		t.Fatalf("LoadRoom: %v %v", got, err)
	}
	if got.State != StateWaiting || got.Player1ID != "u1" || got.Player1Name != "Alice" || got.MaxUndo != 3 {
		t.Fatalf("unexpected meta %+v", got)
	}
	if missing, err := s.LoadRoom(ctx, "XQ-NOPE00"); err != nil || missing != nil {
		t.Fatalf("missing room should be nil, nil: %v %v", missing, err)
	}
}

func TestCreatorLimitedToOneWaitingRoom(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	if _, err := s.CreateRoom(ctx, "u1", "Alice", defaultSettings); err != nil {
		t.Fatalf("first CreateRoom: %v", err)
	}
	if _, err := s.CreateRoom(ctx, "u1", "Alice", defaultSettings); !errors.Is(err, ErrCreatorHasRoom) {
		t.Fatalf("expected ErrCreatorHasRoom, got %v", err)
	}
	if _, err := s.CreateRoom(ctx, " ", "", defaultSettings); !errors.Is(err, ErrInvalidArgs) {
		t.Fatalf("expected ErrInvalidArgs, got %v", err)
	}
}

func TestResolveSeat(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	meta, _ := s.CreateRoom(ctx, "u1", "Alice", defaultSettings)

	cases := []struct {
		identity string
		want     xiangqi.Side
		claimed  bool
		err      error
	}{
		{"u1", xiangqi.Red, false, nil},
		{"u2", xiangqi.Black, true, nil},
		{"u2", xiangqi.Black, false, nil},
		{"u3", xiangqi.NoSide, false, ErrRoomFull},
	}
	for _, tc := range cases {
		side, claimed, err := s.ResolveSeat(ctx, meta.ID, tc.identity, tc.identity)
		if !errors.Is(err, tc.err) || side != tc.want || claimed != tc.claimed {
			t.Fatalf("ResolveSeat(%s) = %v, %v, %v; want %v, %v, %v", tc.identity, side, claimed, err, tc.want, tc.claimed, tc.err)
		}
	}
	if _, _, err := s.ResolveSeat(ctx, "XQ-NOPE00", "u1", "u1"); !errors.Is(err, ErrRoomGone) {
		t.Fatalf("expected ErrRoomGone, got %v", err)
	}
}

func TestResolveSeatRaceHasOneWinner(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	meta, _ := s.CreateRoom(ctx, "u1", "Alice", defaultSettings)

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			side, _, err := s.ResolveSeat(ctx, meta.ID, id, id)
			if err == nil && side == xiangqi.Black {
				mu.Lock()
				winners++
				mu.Unlock()
			} else if err != nil && !errors.Is(err, ErrRoomFull) {
				t.Errorf("ResolveSeat(%s): %v", id, err)
			}
		}(i)
	}
	wg.Wait()
	if winners != 1 {
		t.Fatalf("expected exactly one seat winner, got %d", winners)
	}
}

func TestReleaseSeatFreesSlot(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	meta, _ := s.CreateRoom(ctx, "u1", "Alice", defaultSettings)
	s.ResolveSeat(ctx, meta.ID, "u2", "Bob")

	if err := s.ReleaseSeat(ctx, meta.ID, "u2"); err != nil {
		t.Fatalf("ReleaseSeat: %v", err)
	}
	got, _ := s.LoadRoom(ctx, meta.ID)
	if got.Player2ID != "" || got.Seats() != 1 {
		t.Fatalf("player2 should be free: %+v", got)
	}
	if side, _, err := s.ResolveSeat(ctx, meta.ID, "u3", "Carol"); err != nil || side != xiangqi.Black {
		t.Fatalf("newcomer should take black: %v %v", side, err)
	}
	if err := s.ReleaseSeat(ctx, "XQ-NOPE00", "u1"); err != nil {
		t.Fatalf("releasing in a missing room is a no-op: %v", err)
	}
}

func TestStateTransitionsAndLobby(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	a, _ := s.CreateRoom(ctx, "u1", "Alice", defaultSettings)
	b, _ := s.CreateRoom(ctx, "u2", "Bob", defaultSettings)

	if err := s.MarkPlaying(ctx, a.ID); err != nil {
		t.Fatalf("MarkPlaying: %v", err)
	}
	list, err := s.ListWaiting(ctx)
	if err != nil {
		t.Fatalf("ListWaiting: %v", err)
	}
	if len(list) != 1 || list[0].ID != b.ID {
		t.Fatalf("expected only %s waiting, got %v", b.ID, list)
	}

	if err := s.MarkFinished(ctx, a.ID, "RED_WIN"); err != nil {
		t.Fatalf("MarkFinished: %v", err)
	}
	got, _ := s.LoadRoom(ctx, a.ID)
	if got.State != StateFinished || got.Result != "RED_WIN" {
		t.Fatalf("unexpected finished meta %+v", got)
	}
	if err := s.MarkWaiting(ctx, a.ID); err != nil {
		t.Fatalf("MarkWaiting: %v", err)
	}
	if list, _ := s.ListWaiting(ctx); len(list) != 2 {
		t.Fatalf("rematch room should be back in the lobby, got %d", len(list))
	}

	if err := s.DeleteRoom(ctx, a.ID); err != nil {
		t.Fatalf("DeleteRoom: %v", err)
	}
	if got, _ := s.LoadRoom(ctx, a.ID); got != nil {
		t.Fatalf("room should be gone")
	}
	if err := s.MarkPlaying(ctx, a.ID); !errors.Is(err, ErrRoomGone) {
		t.Fatalf("expected ErrRoomGone, got %v", err)
	}
}

func TestSweepWaitingRemovesExpiredRooms(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	stale, _ := s.CreateRoom(ctx, "u1", "Alice", defaultSettings)
	playing, _ := s.CreateRoom(ctx, "u2", "Bob", defaultSettings)
	s.MarkPlaying(ctx, playing.ID)

	if swept, err := s.SweepWaiting(ctx); err != nil || len(swept) != 0 {
		t.Fatalf("nothing expired yet: %v %v", swept, err)
	}
	mr.FastForward(2 * time.Minute)
	fresh, _ := s.CreateRoom(ctx, "u3", "Carol", defaultSettings)

	swept, err := s.SweepWaiting(ctx)
	if err != nil {
		t.Fatalf("SweepWaiting: %v", err)
	}
	if len(swept) != 1 || swept[0] != stale.ID {
		t.Fatalf("expected %s swept, got %v", stale.ID, swept)
	}
	if got, _ := s.LoadRoom(ctx, playing.ID); got == nil {
		t.Fatalf("playing room must survive the sweep")
	}
	if got, _ := s.LoadRoom(ctx, fresh.ID); got == nil {
		t.Fatalf("fresh room must survive the sweep")
	}
	if _, err := s.CreateRoom(ctx, "u1", "Alice", defaultSettings); err != nil {
		t.Fatalf("creator may open a new room after the sweep: %v", err)
	}
}

func TestParseRedisURL(t *testing.T) {
	opts, err := parseRedisURL("redis://:secret@localhost:6380/2")
	if err != nil {
		t.Fatalf("parseRedisURL: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.Password != "secret" || opts.DB != 2 {
		t.Fatalf("unexpected options %+v", opts)
	}
	if _, err := parseRedisURL("http://localhost"); err == nil {
		t.Fatalf("expected scheme error")
	}
}
