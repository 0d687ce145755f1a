package roomstore

import "time"

// RoomState is the persisted lifecycle of a room.
type RoomState string

const (
	StateWaiting  RoomState = "WAITING"
	StatePlaying  RoomState = "PLAYING"
	StateFinished RoomState = "FINISHED"
)

// RoomMeta is stored as JSON under room:<id>. Player1 sits Red, Player2 Black.
type RoomMeta struct {
	ID        string    `json:"id"`
	State     RoomState `json:"state"`
	CreatedAt time.Time `json:"created_at"`

	Player1ID   string `json:"player1_id,omitempty"`
	Player1Name string `json:"player1_name,omitempty"`
	Player2ID   string `json:"player2_id,omitempty"`
	Player2Name string `json:"player2_name,omitempty"`

	UndoEnabled  bool `json:"undo_enabled"`
	MaxUndo      int  `json:"max_undo"`
	ClockSeconds int  `json:"clock_seconds"`

	Result string `json:"result,omitempty"`
}

// Settings are the per-room game parameters chosen at creation.
type Settings struct {
	UndoEnabled  bool
	MaxUndo      int
	ClockSeconds int
}

// Seats reports how many player slots are taken.
func (m *RoomMeta) Seats() int {
	n := 0
	if m.Player1ID != "" {
		n++
	}
	if m.Player2ID != "" {
		n++
	}
	return n
}

// Errors
var (
	ErrInvalidArgs    = errf("invalid arguments")
	ErrRoomGone       = errf("room not found or expired")
	ErrRoomFull       = errf("room already has two players")
	ErrCreatorHasRoom = errf("user already has a waiting room")
	ErrContended      = errf("room update contended, try again")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error        { return staticErr(s) }
