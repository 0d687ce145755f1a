package wshub

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/xiangqi-server/internal/adapter/xqpresenter"
	"github.com/park285/xiangqi-server/internal/session"
	"github.com/park285/xiangqi-server/internal/xiangqi"
	"github.com/park285/xiangqi-server/pkg/xqdto"
)

func (h *Hub) dispatch(ctx context.Context, c *conn, env xqdto.Envelope) {
	var err error
	switch env.Type {
	case xqdto.IntentAuth:
		err = h.handleAuth(ctx, c, env)
	case xqdto.IntentCreateRoom:
		err = h.handleCreateRoom(ctx, c, env)
	case xqdto.IntentLeaveRoom:
		err = h.handleLeave(ctx, c)
	default:
		err = h.handleRoomIntent(ctx, c, env)
	}
	if err != nil {
		h.sendError(c, c.room, err)
	}
}

func (h *Hub) handleAuth(ctx context.Context, c *conn, env xqdto.Envelope) error {
	var req xqdto.AuthRequest
	if err := env.Decode(&req); err != nil {
		return errBadRequest
	}
	identity := strings.TrimSpace(req.Identity)
	if identity == "" {
		return errBadRequest
	}
	if c.identity != "" && c.identity != identity {
		return errBadRequest
	}
	h.mu.Lock()
	c.identity = identity
	c.name = strings.TrimSpace(req.Name)
	h.mu.Unlock()

	ok := xqdto.AuthOK{Identity: identity}
	roomID := strings.TrimSpace(req.RoomID)
	if roomID == "" {
		roomID = strings.TrimSpace(env.RoomID)
	}
	if roomID != "" {
		side, err := h.join(ctx, c, roomID)
		if err != nil {
			return err
		}
		ok.RoomID, ok.Side = roomID, side.String()
	}
	h.sendTo(c, ok.RoomID, xqdto.FrameAuthOK, ok)
	if ok.RoomID != "" {
		h.sendState(c, ok.RoomID)
	}
	h.logger.Info("ws_auth", zap.String("conn_id", c.id), zap.String("identity", identity), zap.String("room_id", roomID))
	return nil
}

func (h *Hub) handleCreateRoom(ctx context.Context, c *conn, env xqdto.Envelope) error {
	if c.identity == "" {
		return errUnauthenticated
	}
	if h.rooms == nil {
		return errors.New("room creation unavailable")
	}
	var req xqdto.CreateRoomRequest
	if err := env.Decode(&req); err != nil {
		return errBadRequest
	}
	set := h.defaults
	if req.UndoEnabled != nil {
		set.UndoEnabled = *req.UndoEnabled
	}
	if req.MaxUndo > 0 {
		set.MaxUndo = req.MaxUndo
	}
	if req.ClockSeconds > 0 {
		set.ClockSeconds = req.ClockSeconds
	}
	meta, err := h.rooms.CreateRoom(ctx, c.identity, c.name, set)
	if err != nil {
		return err
	}
	side, err := h.join(ctx, c, meta.ID)
	if err != nil {
		return err
	}
	h.sendTo(c, meta.ID, xqdto.FrameRoomCreated, xqdto.RoomCreated{RoomID: meta.ID, Side: side.String()})
	h.sendState(c, meta.ID)
	h.logger.Info("ws_room_created", zap.String("room_id", meta.ID), zap.String("identity", c.identity))
	return nil
}

// join subscribes c to the room before seating so the seat event reaches it.
func (h *Hub) join(ctx context.Context, c *conn, roomID string) (xiangqi.Side, error) {
	prev := c.room
	h.joinRoom(c, roomID)
	_, side, err := h.reg.Join(ctx, roomID, c.identity, c.name)
	if err != nil {
		if prev != "" {
			h.joinRoom(c, prev)
		} else {
			h.leaveRoom(c)
		}
		return xiangqi.NoSide, err
	}
	return side, nil
}

func (h *Hub) handleLeave(ctx context.Context, c *conn) error {
	if c.identity == "" {
		return errUnauthenticated
	}
	room := c.room
	if room == "" {
		return errNoRoom
	}
	if err := h.reg.Leave(ctx, room, c.identity); err != nil && errorCode(err) != "room_not_found" {
		return err
	}
	h.leaveRoom(c)
	h.sendTo(c, room, xqdto.FrameRoomLeft, map[string]string{"room_id": room})
	return nil
}

// handleRoomIntent runs intents that act on the connection's current room.
func (h *Hub) handleRoomIntent(ctx context.Context, c *conn, env xqdto.Envelope) error {
	if c.identity == "" {
		return errUnauthenticated
	}
	if c.room == "" {
		return errNoRoom
	}
	s, ok := h.reg.Get(c.room)
	if !ok {
		var err error
		if s, err = h.reg.GetOrCreate(ctx, c.room); err != nil {
			return err
		}
	}
	id := c.identity

	switch env.Type {
	case xqdto.IntentPlayerReady:
		req := xqdto.ReadyRequest{}
		if err := env.Decode(&req); err != nil {
			return errBadRequest
		}
		ready := req.Ready == nil || *req.Ready
		if err := s.SetReady(id, ready); err != nil {
			return err
		}
		if ready {
			err := s.Start()
			switch {
			case err == nil, errors.Is(err, session.ErrNotReady), errors.Is(err, session.ErrSeatsOpen), errors.Is(err, session.ErrNotWaiting):
			default:
				return err
			}
		}
		return nil

	case xqdto.IntentSelectPiece:
		var req xqdto.SelectRequest
		if err := env.Decode(&req); err != nil {
			return errBadRequest
		}
		sel, err := s.SelectPiece(id, xqpresenter.FromDTOPosition(req.Position))
		if err != nil {
			return h.withTurn(err, s)
		}
		if !sel.Moved {
			h.sendTo(c, c.room, xqdto.FrameAvailableMoves, xqdto.AvailableMoves{
				From:         xqpresenter.ToDTOPosition(sel.Position),
				Destinations: xqpresenter.ToDTOPositions(sel.Destinations),
			})
		}
		return nil

	case xqdto.IntentMovePiece:
		var req xqdto.MoveRequest
		if err := env.Decode(&req); err != nil {
			return errBadRequest
		}
		_, err := s.TryMove(id, xqpresenter.FromDTOPosition(req.From), xqpresenter.FromDTOPosition(req.To))
		return h.withTurn(err, s)

	case xqdto.IntentUndoMove:
		return s.Undo(id)

	case xqdto.IntentSurrender:
		_, err := s.Surrender(id)
		return err

	case xqdto.IntentProposeDraw:
		return s.ProposeDraw(id)

	case xqdto.IntentAcceptDraw:
		return s.AcceptDraw(id)

	case xqdto.IntentDeclineDraw:
		return s.DeclineDraw(id)

	case xqdto.IntentRematch:
		if s.SideOf(id) == xiangqi.NoSide {
			return session.ErrNotSeated
		}
		return s.Rematch()

	case xqdto.IntentBoardImage:
		var req xqdto.BoardImageRequest
		if err := env.Decode(&req); err != nil {
			return errBadRequest
		}
		viewer := s.SideOf(id)
		snap := s.Snapshot()
		img, err := h.presenter.Render(ctx, &snap, viewer, (viewer == xiangqi.Black) != req.Flip)
		if err != nil {
			return err
		}
		h.sendTo(c, c.room, xqdto.FrameBoardImage, xqdto.BoardImage{RoomID: c.room, ImageBase64: img})
		return nil

	default:
		return errBadRequest
	}
}

// sendState pushes the current room view to c alone.
func (h *Hub) sendState(c *conn, roomID string) {
	s, ok := h.reg.Get(roomID)
	if !ok {
		return
	}
	snap := s.Snapshot()
	h.sendTo(c, roomID, xqdto.FrameGameState, xqpresenter.ToDTOState(&snap, ""))
}

// turnError carries the side to move into the not_your_turn message.
type turnError struct {
	err  error
	side string
}

func (e turnError) Error() string { return e.err.Error() }
func (e turnError) Unwrap() error { return e.err }

func (h *Hub) withTurn(err error, s *session.Session) error {
	if errors.Is(err, session.ErrNotYourTurn) {
		return turnError{err: err, side: s.Snapshot().Turn.Label()}
	}
	return err
}
