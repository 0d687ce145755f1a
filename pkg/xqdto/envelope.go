// Package xqdto holds the JSON shapes exchanged with game clients and
// webhook receivers.
package xqdto

import "encoding/json"

// Envelope wraps every frame on the socket in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"room_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an envelope of the given type.
func NewEnvelope(typ, roomID string, payload any) (Envelope, error) {
	env := Envelope{Type: typ, RoomID: roomID}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	env.Payload = raw
	return env, nil
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// Client intents
const (
	IntentAuth        = "auth"
	IntentCreateRoom  = "create_room"
	IntentPlayerReady = "player_ready"
	IntentSelectPiece = "select_piece"
	IntentMovePiece   = "move_piece"
	IntentUndoMove    = "undo_move"
	IntentSurrender   = "surrender"
	IntentProposeDraw = "propose_draw"
	IntentAcceptDraw  = "accept_draw"
	IntentDeclineDraw = "decline_draw"
	IntentRematch     = "rematch"
	IntentBoardImage  = "board_image"
	IntentLeaveRoom   = "leave_room"
)

// Server frames
const (
	FrameAuthOK         = "auth_ok"
	FrameRoomCreated    = "room_created"
	FrameGameState      = "game_state"
	FrameAvailableMoves = "available_moves"
	FrameBoardImage     = "board_image"
	FrameRoomLeft       = "room_left"
	FrameError          = "error"
)
