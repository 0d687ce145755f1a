package xqpresenter

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/park285/xiangqi-server/internal/session"
	"github.com/park285/xiangqi-server/internal/xiangqi"
)

func playing(t *testing.T) *session.Session {
	t.Helper()
	s := session.New("room-1", session.DefaultOptions())
	s.Seat("u1", "Alice", xiangqi.NoSide)
	s.Seat("u2", "Bob", xiangqi.NoSide)
	s.SetReady("u1", true)
	s.SetReady("u2", true)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return s
}

func TestToDTOState(t *testing.T) {
	s := playing(t)
	if _, err := s.TryMove("u1", xiangqi.Pos(7, 1), xiangqi.Pos(0, 1)); err != nil {
		t.Fatalf("TryMove: %v", err)
	}
	snap := s.Snapshot()
	st := ToDTOState(&snap, session.EventMoveApplied)

	if st.Status != "PLAYING" || st.Turn != "black" || st.Event != "move_applied" {
		t.Fatalf("unexpected header %+v", st)
	}
	if len(st.Board) != 10 || len(st.Board[0]) != 9 {
		t.Fatalf("board must be 10x9")
	}
	if p := st.Board[0][1]; p == nil || p.Side != "red" || p.Kind != "cannon" {
		t.Fatalf("expected red cannon on (0,1), got %+v", p)
	}
	if st.Board[7][1] != nil {
		t.Fatalf("(7,1) should be empty")
	}
	if st.LastMove == nil || st.LastMove.Captured == nil || st.LastMove.Captured.Kind != "horse" {
		t.Fatalf("last move should record the captured horse: %+v", st.LastMove)
	}
	if st.LastMove.Notation != "炮(7,1)吃(0,1)" {
		t.Fatalf("notation = %q", st.LastMove.Notation)
	}
	if st.Red == nil || st.Red.Name != "Alice" || st.UndoRemaining != 3 {
		t.Fatalf("players/undo not converted: %+v", st)
	}
	if st.InCheck {
		t.Fatalf("black is not in check")
	}
}

func TestToNotification(t *testing.T) {
	s := playing(t)
	s.Surrender("u1")
	snap := s.Snapshot()
	n := ToNotification(session.Event{Kind: session.EventGameEnded, RoomID: "room-1", SessionID: snap.ID, Status: snap.Status, Reason: snap.Reason, Snapshot: &snap})
	if n.Winner != "black" || n.Status != "BLACK_WIN" || n.Reason != session.ReasonSurrender {
		t.Fatalf("unexpected notification %+v", n)
	}
	if n.FEN != xiangqi.OpeningFEN {
		t.Fatalf("FEN = %q", n.FEN)
	}
}

func TestBoardImage(t *testing.T) {
	s := playing(t)
	s.SelectPiece("u1", xiangqi.Pos(9, 1))
	snap := s.Snapshot()
	img, err := NewPresenter(nil).BoardImage(context.Background(), &snap, xiangqi.Red)
	if err != nil {
		t.Fatalf("BoardImage: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(img)
	if err != nil || len(raw) < 8 || string(raw[1:4]) != "PNG" {
		t.Fatalf("expected base64 PNG, got %d bytes err=%v", len(raw), err)
	}
}
