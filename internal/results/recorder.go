package results

import (
	"context"
	"time"

	"github.com/park285/xiangqi-server/internal/obslog"
	"github.com/park285/xiangqi-server/internal/session"
	"github.com/park285/xiangqi-server/internal/xiangqi"
	"go.uber.org/zap"
)

// Recorder is a session.EventSink that stores every game_ended.
type Recorder struct {
	repo    Repository
	timeout time.Duration
}

func NewRecorder(repo Repository, timeout time.Duration) *Recorder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Recorder{repo: repo, timeout: timeout}
}

func (r *Recorder) Publish(ev session.Event) {
	if ev.Kind != session.EventGameEnded || ev.Snapshot == nil || r.repo == nil {
		return
	}
	res := FromSnapshot(ev.Snapshot)
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.repo.SaveResult(ctx, res); err != nil {
		obslog.L().Error("result_persist_error", zap.String("room_id", res.RoomID), zap.String("session_id", res.SessionID), zap.Error(err))
		return
	}
	obslog.L().Info("result_persist", zap.String("room_id", res.RoomID), zap.String("session_id", res.SessionID), zap.String("status", res.Status), zap.String("reason", res.Reason))
}

// FromSnapshot builds the stored result of a finished session.
func FromSnapshot(snap *session.Snapshot) *GameResult {
	res := &GameResult{
		SessionID: snap.ID,
		RoomID:    snap.RoomID,
		Status:    string(snap.Status),
		Reason:    snap.Reason,
		Moves:     snap.MoveCount,
		FinalFEN:  xiangqi.EncodeFEN(&snap.Board, snap.Turn),
		StartedAt: snap.StartedAt,
		EndedAt:   snap.EndedAt,
	}
	if p := snap.Red; p != nil {
		res.RedID, res.RedName = p.Identity, p.Name
	}
	if p := snap.Black; p != nil {
		res.BlackID, res.BlackName = p.Identity, p.Name
	}
	if res.EndedAt.IsZero() {
		res.EndedAt = time.Now()
	}
	if !res.StartedAt.IsZero() {
		if d := res.EndedAt.Sub(res.StartedAt); d > 0 {
			res.Duration = d
		}
	}
	return res
}
