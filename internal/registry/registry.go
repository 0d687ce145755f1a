// Package registry owns the live sessions of a process, one per room.
package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/park285/xiangqi-server/internal/obslog"
	"github.com/park285/xiangqi-server/internal/roomstore"
	"github.com/park285/xiangqi-server/internal/session"
	"github.com/park285/xiangqi-server/internal/xiangqi"
	"go.uber.org/zap"
)

var ErrRoomNotFound = errors.New("room not found")

// RoomSource is the persisted room metadata the registry seats players from.
// roomstore.Store implements it.
type RoomSource interface {
	LoadRoom(ctx context.Context, roomID string) (*roomstore.RoomMeta, error)
	ResolveSeat(ctx context.Context, roomID, identity, name string) (xiangqi.Side, bool, error)
	ReleaseSeat(ctx context.Context, roomID, identity string) error
	MarkPlaying(ctx context.Context, roomID string) error
	MarkWaiting(ctx context.Context, roomID string) error
	MarkFinished(ctx context.Context, roomID, result string) error
	DeleteRoom(ctx context.Context, roomID string) error
}

// Config wires a Registry. Defaults is the session template; its Sink is
// replaced by the registry, which forwards to Sink.
type Config struct {
	Defaults session.Options
	Source   RoomSource
	Sink     session.EventSink
	Now      func() time.Time
}

type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry

	defaults session.Options
	source   RoomSource
	sink     session.EventSink
	now      func() time.Time
}

// entry is inserted under the map lock before the session exists, so the
// first caller builds it and everyone else waits on once.
type entry struct {
	once sync.Once
	sess atomic.Pointer[session.Session]
	err  error
}

func New(cfg Config) *Registry {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Defaults.Now == nil {
		cfg.Defaults.Now = cfg.Now
	}
	return &Registry{
		entries:  make(map[string]*entry),
		defaults: cfg.Defaults,
		source:   cfg.Source,
		sink:     cfg.Sink,
		now:      cfg.Now,
	}
}

// GetOrCreate returns the room's session, constructing it on first access.
// Concurrent first accesses construct exactly one session.
func (r *Registry) GetOrCreate(ctx context.Context, roomID string) (*session.Session, error) {
	if roomID == "" {
		return nil, ErrRoomNotFound
	}
	r.mu.Lock()
	e, ok := r.entries[roomID]
	if !ok {
		e = &entry{}
		r.entries[roomID] = e
	}
	r.mu.Unlock()

	e.once.Do(func() {
		s, err := r.build(ctx, roomID)
		if err != nil {
			e.err = err
			return
		}
		e.sess.Store(s)
	})
	if e.err != nil {
		r.mu.Lock()
		if r.entries[roomID] == e {
			delete(r.entries, roomID)
		}
		r.mu.Unlock()
		return nil, e.err
	}
	return e.sess.Load(), nil
}

func (r *Registry) build(ctx context.Context, roomID string) (*session.Session, error) {
	opts := r.defaults
	if r.source != nil {
		meta, err := r.source.LoadRoom(ctx, roomID)
		if err != nil {
			return nil, err
		}
		if meta == nil {
			return nil, ErrRoomNotFound
		}
		opts.UndoEnabled = meta.UndoEnabled
		if meta.MaxUndo > 0 {
			opts.UndoBudget = meta.MaxUndo
		}
		if meta.ClockSeconds > 0 {
			opts.Clock = time.Duration(meta.ClockSeconds) * time.Second
		}
	}
	opts.Sink = session.SinkFunc(r.publish)
	s := session.New(roomID, opts)
	obslog.L().Info("registry_create", zap.String("room_id", roomID), zap.String("session_id", s.ID()))
	snap := s.Snapshot()
	r.publish(session.Event{
		Kind:      session.EventSessionCreated,
		RoomID:    roomID,
		SessionID: s.ID(),
		Status:    snap.Status,
		Snapshot:  &snap,
		At:        r.now(),
	})
	return s, nil
}

// Get returns a session that has already been constructed.
func (r *Registry) Get(roomID string) (*session.Session, bool) {
	r.mu.Lock()
	e, ok := r.entries[roomID]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	s := e.sess.Load()
	return s, s != nil
}

// Join seats identity in the room. A participant already seated is marked
// connected again instead of being rejected.
func (r *Registry) Join(ctx context.Context, roomID, identity, name string) (*session.Session, xiangqi.Side, error) {
	s, err := r.GetOrCreate(ctx, roomID)
	if err != nil {
		return nil, xiangqi.NoSide, err
	}
	if side := s.SideOf(identity); side != xiangqi.NoSide {
		if err := s.SetConnected(identity, true); err != nil {
			return nil, xiangqi.NoSide, err
		}
		obslog.L().Info("registry_rejoin", zap.String("room_id", roomID), zap.String("identity", identity), zap.Stringer("side", side))
		return s, side, nil
	}
	want := xiangqi.NoSide
	claimed := false
	if r.source != nil {
		want, claimed, err = r.source.ResolveSeat(ctx, roomID, identity, name)
		if errors.Is(err, roomstore.ErrRoomGone) {
			return nil, xiangqi.NoSide, ErrRoomNotFound
		}
		if err != nil {
			return nil, xiangqi.NoSide, err
		}
	}
	side, err := s.Seat(identity, name, want)
	if err != nil {
		obslog.L().Warn("registry_join_rejected", zap.String("room_id", roomID), zap.String("identity", identity), zap.Error(err))
		if claimed {
			if rerr := r.source.ReleaseSeat(ctx, roomID, identity); rerr != nil {
				obslog.L().Error("registry_release_seat_error", zap.String("room_id", roomID), zap.String("identity", identity), zap.Error(rerr))
			}
		}
		return nil, xiangqi.NoSide, err
	}
	obslog.L().Info("registry_join", zap.String("room_id", roomID), zap.String("identity", identity), zap.Stringer("side", side))
	return s, side, nil
}

// Leave frees identity's seat. When both seats are empty the room is evicted
// and its metadata deleted.
func (r *Registry) Leave(ctx context.Context, roomID, identity string) error {
	s, ok := r.Get(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	if _, err := s.Vacate(identity); err != nil {
		return err
	}
	if r.source != nil {
		if err := r.source.ReleaseSeat(ctx, roomID, identity); err != nil {
			obslog.L().Warn("registry_release_seat_error", zap.String("room_id", roomID), zap.Error(err))
		}
	}
	if s.Empty() {
		r.evict(roomID, s, "empty")
		if r.source != nil {
			if err := r.source.DeleteRoom(ctx, roomID); err != nil {
				obslog.L().Warn("registry_delete_room_error", zap.String("room_id", roomID), zap.Error(err))
			}
		}
	}
	return nil
}

// Disconnect marks identity's connection as lost. The room is evicted once
// nobody seated is connected.
func (r *Registry) Disconnect(roomID, identity string) error {
	s, ok := r.Get(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	if err := s.SetConnected(identity, false); err != nil {
		return err
	}
	if !s.AnyConnected() {
		r.evict(roomID, s, "disconnected")
	}
	return nil
}

// Evict removes the room's session. It reports whether one was present.
func (r *Registry) Evict(roomID, reason string) bool {
	s, ok := r.Get(roomID)
	if !ok {
		return false
	}
	return r.evict(roomID, s, reason)
}

func (r *Registry) evict(roomID string, s *session.Session, reason string) bool {
	r.mu.Lock()
	e, ok := r.entries[roomID]
	if !ok || e.sess.Load() != s {
		r.mu.Unlock()
		return false
	}
	delete(r.entries, roomID)
	r.mu.Unlock()

	obslog.L().Info("registry_evict", zap.String("room_id", roomID), zap.String("session_id", s.ID()), zap.String("reason", reason))
	snap := s.Snapshot()
	r.publish(session.Event{
		Kind:      session.EventSessionEvicted,
		RoomID:    roomID,
		SessionID: s.ID(),
		Status:    snap.Status,
		Reason:    reason,
		Snapshot:  &snap,
		At:        r.now(),
	})
	return true
}

// LastActivityTime reports when the room's session last changed.
func (r *Registry) LastActivityTime(roomID string) (time.Time, bool) {
	s, ok := r.Get(roomID)
	if !ok {
		return time.Time{}, false
	}
	return s.LastActivity(), true
}

// Sweep evicts sessions idle for at least idle and returns their room ids.
func (r *Registry) Sweep(idle time.Duration) []string {
	now := r.now()
	var out []string
	for id, s := range r.live() {
		if now.Sub(s.LastActivity()) >= idle && r.evict(id, s, "idle") {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// ExpireClocks forfeits every game whose side to move has run out of time.
func (r *Registry) ExpireClocks() []string {
	now := r.now()
	var out []string
	for id, s := range r.live() {
		if st, expired := s.ExpireClock(now); expired {
			obslog.L().Info("registry_clock_expired", zap.String("room_id", id), zap.String("status", string(st)))
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Rooms lists the room ids with a live session.
func (r *Registry) Rooms() []string {
	live := r.live()
	out := make([]string, 0, len(live))
	for id := range live {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) live() map[string]*session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*session.Session, len(r.entries))
	for id, e := range r.entries {
		if s := e.sess.Load(); s != nil {
			out[id] = s
		}
	}
	return out
}

// publish mirrors lifecycle changes into the room metadata, then forwards.
func (r *Registry) publish(ev session.Event) {
	if r.source != nil {
		r.syncRoom(ev)
	}
	if r.sink != nil {
		r.sink.Publish(ev)
	}
}

func (r *Registry) syncRoom(ev session.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var err error
	switch ev.Kind {
	case session.EventGameStarted:
		err = r.source.MarkPlaying(ctx, ev.RoomID)
	case session.EventGameEnded:
		err = r.source.MarkFinished(ctx, ev.RoomID, string(ev.Status))
	case session.EventSessionReset:
		err = r.source.MarkWaiting(ctx, ev.RoomID)
	default:
		return
	}
	if err != nil && !errors.Is(err, roomstore.ErrRoomGone) {
		obslog.L().Warn("registry_room_sync_error", zap.String("room_id", ev.RoomID), zap.String("event", string(ev.Kind)), zap.Error(err))
	}
}
