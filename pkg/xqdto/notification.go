package xqdto

import "time"

// Notification is the body POSTed to the webhook for lifecycle events.
type Notification struct {
	Event       string    `json:"event"`
	RoomID      string    `json:"room_id"`
	SessionID   string    `json:"session_id"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	Winner      string    `json:"winner,omitempty"`
	Red         *Player   `json:"red,omitempty"`
	Black       *Player   `json:"black,omitempty"`
	MoveCount   int       `json:"move_count"`
	FEN         string    `json:"fen,omitempty"`
	At          time.Time `json:"at"`
	ImageBase64 string    `json:"image_base64,omitempty"`
}
