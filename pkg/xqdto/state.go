package xqdto

import "time"

type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Piece is one occupied cell; Side is "red" or "black", Kind is "general",
// "advisor", "elephant", "horse", "chariot", "cannon" or "soldier".
type Piece struct {
	Side string `json:"side"`
	Kind string `json:"kind"`
}

type Move struct {
	From     Position `json:"from"`
	To       Position `json:"to"`
	Piece    Piece    `json:"piece"`
	Captured *Piece   `json:"captured,omitempty"`
	Notation string   `json:"notation"`
}

type Player struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Side      string `json:"side"`
	Connected bool   `json:"connected"`
	Ready     bool   `json:"ready"`
}

// GameState is the full room view sent after every change. Board is indexed
// [row][col]; nil marks an empty intersection.
type GameState struct {
	RoomID        string     `json:"room_id"`
	SessionID     string     `json:"session_id"`
	Event         string     `json:"event,omitempty"`
	Status        string     `json:"status"`
	Reason        string     `json:"reason,omitempty"`
	Turn          string     `json:"turn"`
	Board         [][]*Piece `json:"board"`
	FEN           string     `json:"fen"`
	Red           *Player    `json:"red,omitempty"`
	Black         *Player    `json:"black,omitempty"`
	InCheck       bool       `json:"in_check"`
	RedClockMs    int64      `json:"red_clock_ms"`
	BlackClockMs  int64      `json:"black_clock_ms"`
	UndoEnabled   bool       `json:"undo_enabled"`
	UndoRemaining int        `json:"undo_remaining"`
	MoveCount     int        `json:"move_count"`
	LastMove      *Move      `json:"last_move,omitempty"`
	Record        []string   `json:"record"`
	DrawOffer     string     `json:"draw_offer,omitempty"`
	Winner        string     `json:"winner,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
}

type AvailableMoves struct {
	From         Position   `json:"from"`
	Destinations []Position `json:"destinations"`
}

type BoardImage struct {
	RoomID      string `json:"room_id"`
	ImageBase64 string `json:"image_base64"`
}

type RoomCreated struct {
	RoomID string `json:"room_id"`
	Side   string `json:"side"`
}

type AuthOK struct {
	Identity string `json:"identity"`
	RoomID   string `json:"room_id,omitempty"`
	Side     string `json:"side,omitempty"`
}
