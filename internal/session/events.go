package session

import (
	"time"

	"github.com/park285/xiangqi-server/internal/xiangqi"
)

// EventKind names a lifecycle event.
type EventKind string

const (
	EventSessionCreated    EventKind = "session_created"
	EventSeatFilled        EventKind = "seat_filled"
	EventParticipantLeft   EventKind = "participant_left"
	EventConnectionChanged EventKind = "connection_changed"
	EventReadyChanged      EventKind = "ready_changed"
	EventGameStarted       EventKind = "game_started"
	EventMoveApplied       EventKind = "move_applied"
	EventSelectionChanged  EventKind = "selection_changed"
	EventUndoApplied       EventKind = "undo_applied"
	EventDrawOffered       EventKind = "draw_offered"
	EventDrawDeclined      EventKind = "draw_declined"
	EventGamePaused        EventKind = "game_paused"
	EventGameResumed       EventKind = "game_resumed"
	EventGameEnded         EventKind = "game_ended"
	EventSessionReset      EventKind = "session_reset"
	EventSessionEvicted    EventKind = "session_evicted"
)

// Event is emitted after a successful mutation, outside the session lock.
type Event struct {
	Kind         EventKind
	RoomID       string
	SessionID    string
	Side         xiangqi.Side
	Participant  *Participant
	Move         *xiangqi.Move
	Status       Status
	Reason       string
	Position     *xiangqi.Position
	Destinations []xiangqi.Position
	Snapshot     *Snapshot
	At           time.Time
}

// EventSink receives session events. Implementations must not call back into
// the session synchronously while holding their own locks.
type EventSink interface {
	Publish(ev Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ev Event)

func (f SinkFunc) Publish(ev Event) { f(ev) }

// Fanout publishes to every non-nil sink in order.
type Fanout []EventSink

func (f Fanout) Publish(ev Event) {
	for _, s := range f {
		if s != nil {
			s.Publish(ev)
		}
	}
}
