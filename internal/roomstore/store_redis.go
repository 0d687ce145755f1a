package roomstore

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/xiangqi-server/internal/obslog"
	"github.com/park285/xiangqi-server/internal/xiangqi"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	ttlRoom           = 24 * time.Hour
	defaultWaitingTTL = 5 * time.Minute
	maxTxAttempts     = 5
)

// Store keeps room metadata in Redis. A room waiting for players also owns a
// short-lived marker key; once the marker expires the room is swept.
type Store struct {
	rdb        *redis.Client
	waitingTTL time.Duration
	now        func() time.Time
}

func NewStore(rdb *redis.Client, waitingTTL time.Duration) *Store {
	if waitingTTL <= 0 {
		waitingTTL = defaultWaitingTTL
	}
	return &Store{rdb: rdb, waitingTTL: waitingTTL, now: time.Now}
}

func keyMeta(id string) string      { return "room:" + strings.TrimSpace(id) }
func keyWaiting(id string) string   { return "room:waiting:" + strings.TrimSpace(id) }
func keyUserIdx(user string) string { return "room:index:user:" + strings.TrimSpace(user) }
func keyLobby() string              { return "room:lobby" }

// CreateRoom allocates a fresh room code and seats the creator as player one.
func (s *Store) CreateRoom(ctx context.Context, creatorID, creatorName string, set Settings) (*RoomMeta, error) {
	creatorID = strings.TrimSpace(creatorID)
	if creatorID == "" {
		return nil, ErrInvalidArgs
	}
	codes, err := s.rdb.SMembers(ctx, keyUserIdx(creatorID)).Result()
	if err != nil {
		return nil, err
	}
	for _, c := range codes {
		if m, _ := s.LoadRoom(ctx, c); m != nil && m.State == StateWaiting && m.Player1ID == creatorID {
			return nil, ErrCreatorHasRoom
		}
	}
	for i := 0; i < 5; i++ {
		code, err := codeGen()
		if err != nil {
			return nil, err
		}
		ok, err := s.rdb.SetNX(ctx, keyMeta(code), []byte("{}"), ttlRoom).Result()
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		meta := &RoomMeta{
			ID:           code,
			State:        StateWaiting,
			CreatedAt:    s.now(),
			Player1ID:    creatorID,
			Player1Name:  strings.TrimSpace(creatorName),
			UndoEnabled:  set.UndoEnabled,
			MaxUndo:      set.MaxUndo,
			ClockSeconds: set.ClockSeconds,
		}
		raw, err := json.Marshal(meta)
		if err != nil {
			return nil, err
		}
		pipe := s.rdb.TxPipeline()
		pipe.Set(ctx, keyMeta(code), raw, ttlRoom)
		pipe.Set(ctx, keyWaiting(code), "1", s.waitingTTL)
		pipe.SAdd(ctx, keyLobby(), code)
		pipe.SAdd(ctx, keyUserIdx(creatorID), code)
		pipe.Expire(ctx, keyUserIdx(creatorID), ttlRoom)
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, err
		}
		obslog.L().Info("room_create", zap.String("room_id", code), zap.String("creator_id", creatorID))
		return meta, nil
	}
	return nil, fmt.Errorf("failed to allocate room code")
}

// LoadRoom returns nil, nil when the room does not exist.
func (s *Store) LoadRoom(ctx context.Context, id string) (*RoomMeta, error) {
	raw, err := s.rdb.Get(ctx, keyMeta(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeMeta(raw)
}

// ResolveSeat maps identity to its side in the room, claiming the first free
// player slot for a newcomer. The bool reports whether this call took the
// slot. Concurrent claims on the last slot produce exactly one winner; the
// others get ErrRoomFull.
func (s *Store) ResolveSeat(ctx context.Context, roomID, identity, name string) (xiangqi.Side, bool, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" || strings.TrimSpace(roomID) == "" {
		return xiangqi.NoSide, false, ErrInvalidArgs
	}
	var side xiangqi.Side
	var claimed bool
	_, err := s.update(ctx, roomID, func(m *RoomMeta) (bool, error) {
		claimed = false
		switch identity {
		case m.Player1ID:
			side = xiangqi.Red
			return false, nil
		case m.Player2ID:
			side = xiangqi.Black
			return false, nil
		}
		switch {
		case m.Player1ID == "":
			m.Player1ID, m.Player1Name = identity, strings.TrimSpace(name)
			side = xiangqi.Red
		case m.Player2ID == "":
			m.Player2ID, m.Player2Name = identity, strings.TrimSpace(name)
			side = xiangqi.Black
		default:
			return false, ErrRoomFull
		}
		claimed = true
		return true, nil
	}, func(pipe redis.Pipeliner) {
		pipe.SAdd(ctx, keyUserIdx(identity), roomID)
		pipe.Expire(ctx, keyUserIdx(identity), ttlRoom)
	})
	if err != nil {
		return xiangqi.NoSide, false, err
	}
	return side, claimed, nil
}

// ReleaseSeat frees identity's player slot. Unknown identities are ignored.
func (s *Store) ReleaseSeat(ctx context.Context, roomID, identity string) error {
	identity = strings.TrimSpace(identity)
	_, err := s.update(ctx, roomID, func(m *RoomMeta) (bool, error) {
		switch identity {
		case "":
			return false, nil
		case m.Player1ID:
			m.Player1ID, m.Player1Name = "", ""
		case m.Player2ID:
			m.Player2ID, m.Player2Name = "", ""
		default:
			return false, nil
		}
		return true, nil
	}, func(pipe redis.Pipeliner) {
		pipe.SRem(ctx, keyUserIdx(identity), roomID)
	})
	if errors.Is(err, ErrRoomGone) {
		return nil
	}
	return err
}

// MarkPlaying takes the room out of the waiting lobby.
func (s *Store) MarkPlaying(ctx context.Context, roomID string) error {
	_, err := s.update(ctx, roomID, func(m *RoomMeta) (bool, error) {
		m.State = StatePlaying
		m.Result = ""
		return true, nil
	}, func(pipe redis.Pipeliner) {
		pipe.Del(ctx, keyWaiting(roomID))
		pipe.SRem(ctx, keyLobby(), roomID)
	})
	return err
}

// MarkWaiting returns a finished room to the lobby, e.g. for a rematch.
func (s *Store) MarkWaiting(ctx context.Context, roomID string) error {
	_, err := s.update(ctx, roomID, func(m *RoomMeta) (bool, error) {
		m.State = StateWaiting
		m.Result = ""
		return true, nil
	}, func(pipe redis.Pipeliner) {
		pipe.Set(ctx, keyWaiting(roomID), "1", s.waitingTTL)
		pipe.SAdd(ctx, keyLobby(), roomID)
	})
	return err
}

// MarkFinished records the final status of the room's game.
func (s *Store) MarkFinished(ctx context.Context, roomID, result string) error {
	_, err := s.update(ctx, roomID, func(m *RoomMeta) (bool, error) {
		m.State = StateFinished
		m.Result = result
		return true, nil
	}, nil)
	return err
}

// DeleteRoom removes the room and its index entries.
func (s *Store) DeleteRoom(ctx context.Context, roomID string) error {
	m, err := s.LoadRoom(ctx, roomID)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, keyMeta(roomID), keyWaiting(roomID))
	pipe.SRem(ctx, keyLobby(), roomID)
	if m != nil {
		for _, id := range []string{m.Player1ID, m.Player2ID} {
			if id != "" {
				pipe.SRem(ctx, keyUserIdx(id), roomID)
			}
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	obslog.L().Info("room_delete", zap.String("room_id", roomID))
	return nil
}

// ListWaiting returns rooms that still accept players.
func (s *Store) ListWaiting(ctx context.Context) ([]*RoomMeta, error) {
	codes, err := s.rdb.SMembers(ctx, keyLobby()).Result()
	if err != nil {
		return nil, err
	}
	var out []*RoomMeta
	for _, c := range codes {
		m, _ := s.LoadRoom(ctx, c)
		if m == nil || m.State != StateWaiting {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// SweepWaiting deletes waiting rooms whose marker has expired and returns
// their ids.
func (s *Store) SweepWaiting(ctx context.Context) ([]string, error) {
	codes, err := s.rdb.SMembers(ctx, keyLobby()).Result()
	if err != nil {
		return nil, err
	}
	var swept []string
	for _, c := range codes {
		n, err := s.rdb.Exists(ctx, keyWaiting(c)).Result()
		if err != nil {
			return swept, err
		}
		if n > 0 {
			continue
		}
		m, err := s.LoadRoom(ctx, c)
		if err != nil {
			return swept, err
		}
		if m != nil && m.State != StateWaiting {
			_ = s.rdb.SRem(ctx, keyLobby(), c).Err()
			continue
		}
		if err := s.DeleteRoom(ctx, c); err != nil {
			return swept, err
		}
		swept = append(swept, c)
	}
	if len(swept) > 0 {
		obslog.L().Info("room_sweep_waiting", zap.Strings("room_ids", swept))
	}
	return swept, nil
}

// update applies fn to the room under WATCH. fn reports whether it changed
// the metadata; extra queues companion writes into the same transaction.
func (s *Store) update(ctx context.Context, roomID string, fn func(m *RoomMeta) (bool, error), extra func(pipe redis.Pipeliner)) (*RoomMeta, error) {
	key := keyMeta(roomID)
	var out *RoomMeta
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrRoomGone
		}
		if err != nil {
			return err
		}
		m, err := decodeMeta(raw)
		if err != nil {
			return err
		}
		changed, err := fn(m)
		if err != nil {
			return err
		}
		out = m
		if !changed {
			return nil
		}
		enc, err := json.Marshal(m)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, enc, ttlRoom)
			if extra != nil {
				extra(pipe)
			}
			return nil
		})
		return err
	}
	for i := 0; i < maxTxAttempts; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	obslog.L().Warn("room_update_contended", zap.String("room_id", roomID))
	return nil, ErrContended
}

func decodeMeta(raw []byte) (*RoomMeta, error) {
	var m RoomMeta
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if m.ID == "" {
		// placeholder written by SetNX before the metadata lands
		return nil, ErrRoomGone
	}
	return &m, nil
}

// codeGen returns `XQ-` + 6 upper alnum.
func codeGen() (string, error) {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return "XQ-" + string(b), nil
}
