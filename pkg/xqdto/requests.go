package xqdto

// AuthRequest binds a connection to an identity and, optionally, a room.
type AuthRequest struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
	RoomID   string `json:"room_id,omitempty"`
}

type CreateRoomRequest struct {
	UndoEnabled  *bool `json:"undo_enabled,omitempty"`
	MaxUndo      int   `json:"max_undo,omitempty"`
	ClockSeconds int   `json:"clock_seconds,omitempty"`
}

type ReadyRequest struct {
	Ready *bool `json:"ready,omitempty"`
}

type SelectRequest struct {
	Position Position `json:"position"`
}

type MoveRequest struct {
	From Position `json:"from"`
	To   Position `json:"to"`
}

type BoardImageRequest struct {
	Flip bool `json:"flip,omitempty"`
}
