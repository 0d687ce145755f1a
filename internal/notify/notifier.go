package notify

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/park285/xiangqi-server/internal/adapter/xqpresenter"
	"github.com/park285/xiangqi-server/internal/obslog"
	"github.com/park285/xiangqi-server/internal/session"
	"github.com/park285/xiangqi-server/internal/xiangqi"
)

// Poster delivers one notification body.
type Poster interface {
	Post(ctx context.Context, body any) error
}

// ImageSource renders a finished board for game_ended notifications.
type ImageSource interface {
	BoardImage(ctx context.Context, s *session.Snapshot, viewer xiangqi.Side) (string, error)
}

var lifecycle = map[session.EventKind]bool{
	session.EventGameStarted:     true,
	session.EventGamePaused:      true,
	session.EventGameResumed:     true,
	session.EventGameEnded:       true,
	session.EventSessionEvicted:  true,
	session.EventParticipantLeft: true,
}

// Notifier is a session.EventSink that forwards lifecycle events to a
// webhook from a single background worker. Publish never blocks; events are
// dropped when the queue is full.
type Notifier struct {
	poster  Poster
	images  ImageSource
	queue   chan session.Event
	timeout time.Duration
	logger  *zap.Logger
	dropped atomic.Int64
}

func NewNotifier(p Poster, images ImageSource, queueSize int) *Notifier {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Notifier{
		poster:  p,
		images:  images,
		queue:   make(chan session.Event, queueSize),
		timeout: 15 * time.Second,
		logger:  obslog.Named("notify"),
	}
}

func (n *Notifier) Publish(ev session.Event) {
	if n == nil || !lifecycle[ev.Kind] {
		return
	}
	select {
	case n.queue <- ev:
	default:
		n.dropped.Add(1)
		n.logger.Warn("notify_queue_full", zap.String("room_id", ev.RoomID), zap.String("event", string(ev.Kind)))
	}
}

// Dropped counts events discarded because the queue was full.
func (n *Notifier) Dropped() int64 { return n.dropped.Load() }

// Run delivers queued events until ctx is done.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-n.queue:
			n.deliver(ctx, ev)
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, ev session.Event) {
	dctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	body := xqpresenter.ToNotification(ev)
	if ev.Kind == session.EventGameEnded && n.images != nil && ev.Snapshot != nil {
		img, err := n.images.BoardImage(dctx, ev.Snapshot, xiangqi.Red)
		if err != nil {
			n.logger.Warn("notify_render_failed", zap.String("room_id", ev.RoomID), zap.Error(err))
		} else {
			body.ImageBase64 = img
		}
	}
	if err := n.poster.Post(dctx, body); err != nil {
		n.logger.Warn("notify_post_failed", zap.String("room_id", ev.RoomID), zap.String("event", string(ev.Kind)), zap.Error(err))
		return
	}
	n.logger.Debug("notify_sent", zap.String("room_id", ev.RoomID), zap.String("event", string(ev.Kind)))
}

var _ session.EventSink = (*Notifier)(nil)
var _ Poster = (*Client)(nil)
