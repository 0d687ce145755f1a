package wshub

import (
	"errors"

	"github.com/park285/xiangqi-server/internal/registry"
	"github.com/park285/xiangqi-server/internal/roomstore"
	"github.com/park285/xiangqi-server/internal/session"
	"github.com/park285/xiangqi-server/pkg/xqdto"
)

var (
	errUnauthenticated = errors.New("unauthenticated")
	errBadRequest      = errors.New("bad request")
	errNoRoom          = errors.New("connection has no room")
)

// codes maps sentinels to stable wire codes. Order matters only for wrapped
// errors matching more than one entry.
var codes = []struct {
	err  error
	code string
}{
	{session.ErrNotWaiting, "not_waiting"},
	{session.ErrNotPlaying, "not_playing"},
	{session.ErrNotFinished, "not_finished"},
	{session.ErrSeatsFull, "seats_full"},
	{session.ErrSeatTaken, "seat_taken"},
	{session.ErrAlreadySeated, "already_seated"},
	{session.ErrNotSeated, "not_seated"},
	{session.ErrSeatsOpen, "seats_open"},
	{session.ErrNotReady, "not_ready"},
	{session.ErrNotYourTurn, "not_your_turn"},
	{session.ErrNotYourPiece, "not_your_piece"},
	{session.ErrIllegalMove, "illegal_move"},
	{session.ErrOffBoard, "off_board"},
	{session.ErrNoSelection, "no_selection"},
	{session.ErrUndoDisabled, "undo_disabled"},
	{session.ErrNoHistory, "no_history"},
	{session.ErrUndoBudget, "undo_budget"},
	{session.ErrNoDrawOffer, "no_draw_offer"},
	{session.ErrOwnDrawOffer, "own_draw_offer"},
	{session.ErrClockExpired, "clock_expired"},
	{registry.ErrRoomNotFound, "room_not_found"},
	{roomstore.ErrRoomGone, "room_not_found"},
	{errNoRoom, "room_not_found"},
	{roomstore.ErrRoomFull, "room_full"},
	{roomstore.ErrCreatorHasRoom, "creator_has_room"},
	{roomstore.ErrContended, "contended"},
	{roomstore.ErrInvalidArgs, "bad_request"},
	{errBadRequest, "bad_request"},
	{errUnauthenticated, "unauthenticated"},
}

func errorCode(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

// domainError renders err for the wire. data feeds the message template.
func (h *Hub) domainError(err error, data map[string]string) xqdto.DomainError {
	code := errorCode(err)
	fallback := err.Error()
	if code == "internal" {
		fallback = "internal error"
	}
	if data == nil {
		data = map[string]string{}
	}
	return xqdto.DomainError{
		Code:      code,
		Message:   h.msgs.Text("error."+code, data, fallback),
		Retryable: code == "contended" || code == "internal",
	}
}
