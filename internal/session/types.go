package session

import (
	"time"

	"github.com/park285/xiangqi-server/internal/xiangqi"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusWaiting   Status = "WAITING"
	StatusPlaying   Status = "PLAYING"
	StatusPaused    Status = "PAUSED"
	StatusRedWin    Status = "RED_WIN"
	StatusBlackWin  Status = "BLACK_WIN"
	StatusDraw      Status = "DRAW"
	StatusAbandoned Status = "ABANDONED"
)

// Terminal reports whether no further moves can be played.
func (s Status) Terminal() bool {
	switch s {
	case StatusRedWin, StatusBlackWin, StatusDraw, StatusAbandoned:
		return true
	default:
		return false
	}
}

func winStatus(side xiangqi.Side) Status {
	if side == xiangqi.Red {
		return StatusRedWin
	}
	return StatusBlackWin
}

func fromResult(r xiangqi.Result) Status {
	switch r {
	case xiangqi.RedWin:
		return StatusRedWin
	case xiangqi.BlackWin:
		return StatusBlackWin
	case xiangqi.Draw:
		return StatusDraw
	default:
		return StatusPlaying
	}
}

// End reasons beyond the rule-engine verdicts.
const (
	ReasonSurrender  = "surrender"
	ReasonTimeout    = "timeout"
	ReasonDrawAgreed = "draw_agreed"
	ReasonAbandoned  = "abandoned"
)

// Participant is a seated player. An empty Identity marks a non-human seat.
type Participant struct {
	Identity  string       `json:"identity"`
	Name      string       `json:"name"`
	Side      xiangqi.Side `json:"side"`
	Connected bool         `json:"connected"`
	Ready     bool         `json:"ready"`
}

func (p Participant) IsHuman() bool { return p.Identity != "" }

// Options are fixed at session creation.
type Options struct {
	UndoEnabled bool
	UndoBudget  int
	// Clock is the per-side thinking time. Zero disables clocks.
	Clock time.Duration
	Now   func() time.Time
	Sink  EventSink
}

func DefaultOptions() Options {
	return Options{UndoEnabled: true, UndoBudget: 3, Clock: 30 * time.Minute}
}

// Selection is the result of SelectPiece. When the selection turned into a
// move, Moved is set and Move holds it.
type Selection struct {
	Position     xiangqi.Position   `json:"position"`
	Destinations []xiangqi.Position `json:"destinations"`
	Moved        bool               `json:"moved"`
	Move         xiangqi.Move       `json:"move"`
}

// Snapshot is a copy of the session state, safe to use without locking.
type Snapshot struct {
	ID          string
	RoomID      string
	Status      Status
	Reason      string
	Turn        xiangqi.Side
	Board       xiangqi.Board
	Red         *Participant
	Black       *Participant
	Selection   *xiangqi.Position
	Hints       []xiangqi.Position
	RedClock    time.Duration
	BlackClock  time.Duration
	UndoEnabled bool
	UndoBudget  int
	UndoUsed    int
	MoveCount   int
	LastMove    *xiangqi.Move
	Record      []string
	DrawOffer   xiangqi.Side
	CreatedAt   time.Time
	StartedAt   time.Time
	EndedAt     time.Time
	LastMoveAt  time.Time
}

// Participant returns the seat for side, or nil.
func (s *Snapshot) Participant(side xiangqi.Side) *Participant {
	switch side {
	case xiangqi.Red:
		return s.Red
	case xiangqi.Black:
		return s.Black
	default:
		return nil
	}
}

// Winner returns the winning side, or NoSide for draws and unfinished games.
func (s *Snapshot) Winner() xiangqi.Side {
	switch s.Status {
	case StatusRedWin:
		return xiangqi.Red
	case StatusBlackWin:
		return xiangqi.Black
	default:
		return xiangqi.NoSide
	}
}

// Errors
var (
	ErrNotWaiting    = errf("game is not waiting for players")
	ErrNotPlaying    = errf("game is not in progress")
	ErrNotFinished   = errf("game has not finished")
	ErrSeatsFull     = errf("both seats are taken")
	ErrSeatTaken     = errf("requested seat is taken")
	ErrAlreadySeated = errf("participant already holds a seat")
	ErrNotSeated     = errf("participant has no seat")
	ErrSeatsOpen     = errf("both seats must be filled")
	ErrNotReady      = errf("both participants must be ready")
	ErrNotYourTurn   = errf("not your turn")
	ErrNotYourPiece  = errf("piece does not belong to the side to move")
	ErrIllegalMove   = errf("illegal move")
	ErrOffBoard      = errf("position off board")
	ErrNoSelection   = errf("no piece selected")
	ErrUndoDisabled  = errf("undo is disabled")
	ErrNoHistory     = errf("no move to undo")
	ErrUndoBudget    = errf("undo budget exhausted")
	ErrNoDrawOffer   = errf("no draw offer from the opponent")
	ErrOwnDrawOffer  = errf("cannot answer your own draw offer")
	ErrClockExpired  = errf("clock expired")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error        { return staticErr(s) }
