package xqpresenter

import (
	"github.com/park285/xiangqi-server/internal/session"
	"github.com/park285/xiangqi-server/internal/xiangqi"
	"github.com/park285/xiangqi-server/pkg/xqdto"
)

// ToDTOState converts a session snapshot into the wire view. event names the
// change that produced it and may be empty.
func ToDTOState(s *session.Snapshot, event session.EventKind) *xqdto.GameState {
	if s == nil {
		return nil
	}
	st := &xqdto.GameState{
		RoomID:        s.RoomID,
		SessionID:     s.ID,
		Event:         string(event),
		Status:        string(s.Status),
		Reason:        s.Reason,
		Turn:          s.Turn.String(),
		Board:         ToDTOBoard(&s.Board),
		FEN:           xiangqi.EncodeFEN(&s.Board, s.Turn),
		Red:           ToDTOPlayer(s.Red),
		Black:         ToDTOPlayer(s.Black),
		RedClockMs:    s.RedClock.Milliseconds(),
		BlackClockMs:  s.BlackClock.Milliseconds(),
		UndoEnabled:   s.UndoEnabled,
		UndoRemaining: max(s.UndoBudget-s.UndoUsed, 0),
		MoveCount:     s.MoveCount,
		LastMove:      ToDTOMove(s.LastMove),
		Record:        append([]string{}, s.Record...),
	}
	if s.Status == session.StatusPlaying || s.Status == session.StatusPaused {
		st.InCheck = xiangqi.IsInCheck(&s.Board, s.Turn)
	}
	if s.DrawOffer != xiangqi.NoSide {
		st.DrawOffer = s.DrawOffer.String()
	}
	if w := s.Winner(); w != xiangqi.NoSide {
		st.Winner = w.String()
	}
	if !s.StartedAt.IsZero() {
		t := s.StartedAt
		st.StartedAt = &t
	}
	if !s.EndedAt.IsZero() {
		t := s.EndedAt
		st.EndedAt = &t
	}
	return st
}

// ToDTOBoard lays the grid out as [row][col] with nil for empty cells.
func ToDTOBoard(b *xiangqi.Board) [][]*xqdto.Piece {
	grid := b.Grid()
	out := make([][]*xqdto.Piece, xiangqi.Rows)
	for r := range grid {
		out[r] = make([]*xqdto.Piece, xiangqi.Cols)
		for c, p := range grid[r] {
			out[r][c] = ToDTOPiece(p)
		}
	}
	return out
}

func ToDTOPiece(p xiangqi.Piece) *xqdto.Piece {
	if p.IsZero() {
		return nil
	}
	return &xqdto.Piece{Side: p.Side.String(), Kind: p.Kind.String()}
}

func ToDTOMove(m *xiangqi.Move) *xqdto.Move {
	if m == nil {
		return nil
	}
	out := &xqdto.Move{
		From:     ToDTOPosition(m.From),
		To:       ToDTOPosition(m.To),
		Notation: m.Notation(),
	}
	if p := ToDTOPiece(m.Moved); p != nil {
		out.Piece = *p
	}
	out.Captured = ToDTOPiece(m.Captured)
	return out
}

func ToDTOPlayer(p *session.Participant) *xqdto.Player {
	if p == nil {
		return nil
	}
	return &xqdto.Player{ID: p.Identity, Name: p.Name, Side: p.Side.String(), Connected: p.Connected, Ready: p.Ready}
}

func ToDTOPosition(p xiangqi.Position) xqdto.Position {
	return xqdto.Position{Row: p.Row, Col: p.Col}
}

func ToDTOPositions(ps []xiangqi.Position) []xqdto.Position {
	out := make([]xqdto.Position, 0, len(ps))
	for _, p := range ps {
		out = append(out, ToDTOPosition(p))
	}
	return out
}

func FromDTOPosition(p xqdto.Position) xiangqi.Position {
	return xiangqi.Pos(p.Row, p.Col)
}

// ToNotification builds the webhook body for ev. The image is attached by
// the caller.
func ToNotification(ev session.Event) *xqdto.Notification {
	n := &xqdto.Notification{
		Event:     string(ev.Kind),
		RoomID:    ev.RoomID,
		SessionID: ev.SessionID,
		Status:    string(ev.Status),
		Reason:    ev.Reason,
		At:        ev.At,
	}
	if s := ev.Snapshot; s != nil {
		n.Red = ToDTOPlayer(s.Red)
		n.Black = ToDTOPlayer(s.Black)
		n.MoveCount = s.MoveCount
		n.FEN = xiangqi.EncodeFEN(&s.Board, s.Turn)
		if w := s.Winner(); w != xiangqi.NoSide {
			n.Winner = w.String()
		}
	}
	return n
}
