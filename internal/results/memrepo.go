package results

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// memrepo is used when no database is configured.
type memrepo struct {
	mu sync.RWMutex

	bySession map[string]*GameResult
	byPlayer  map[string][]string // player id -> session ids
}

func NewMemoryRepository() Repository {
	return &memrepo{
		bySession: make(map[string]*GameResult),
		byPlayer:  make(map[string][]string),
	}
}

func (m *memrepo) SaveResult(ctx context.Context, res *GameResult) error {
	if res == nil || res.SessionID == "" || res.RoomID == "" {
		return ErrInvalidResult
	}
	cp := *res
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.bySession[cp.SessionID]; !exists {
		for _, id := range []string{cp.RedID, cp.BlackID} {
			if id = strings.TrimSpace(id); id != "" {
				m.byPlayer[id] = append(m.byPlayer[id], cp.SessionID)
			}
		}
	}
	m.bySession[cp.SessionID] = &cp
	return nil
}

func (m *memrepo) RoomStats(ctx context.Context, roomID string) (*RoomStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := &RoomStats{RoomID: roomID}
	for _, res := range m.bySession {
		if res.RoomID == roomID {
			st.add(res.Status)
		}
	}
	return st, nil
}

func (m *memrepo) RecentByPlayer(ctx context.Context, playerID string, limit int) ([]*GameResult, error) {
	if limit <= 0 {
		limit = 10
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.byPlayer[strings.TrimSpace(playerID)]
	items := make([]*GameResult, 0, len(ids))
	for _, id := range ids {
		if res, ok := m.bySession[id]; ok {
			cp := *res
			items = append(items, &cp)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].EndedAt.Equal(items[j].EndedAt) {
			return items[i].EndedAt.After(items[j].EndedAt)
		}
		return items[i].SessionID > items[j].SessionID
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
