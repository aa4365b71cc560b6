package gamelog

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository keeps records in process; used when no database is configured.
type MemoryRepository struct {
	mu       sync.RWMutex
	byID     map[string]Record
	byClient map[string][]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:     make(map[string]Record),
		byClient: make(map[string][]string),
	}
}

func (m *MemoryRepository) Save(_ context.Context, rec Record) error {
	rec.Moves = append([]string(nil), rec.Moves...)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byID[rec.GameID]; !exists {
		m.byClient[rec.ClientID] = append(m.byClient[rec.ClientID], rec.GameID)
	}
	m.byID[rec.GameID] = rec
	return nil
}

func (m *MemoryRepository) Recent(_ context.Context, clientID string, limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.byClient[clientID]
	items := make([]Record, 0, len(ids))
	for _, id := range ids {
		items = append(items, m.byID[id])
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].EndedAt.After(items[j].EndedAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *MemoryRepository) Close() error { return nil }
