package exercise

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store interface {
	Save(ctx context.Context, ex *Exercise) error
	Get(ctx context.Context, id string) (*Exercise, error)
	ListByClient(ctx context.Context, clientID string) ([]*Exercise, error)
	Delete(ctx context.Context, clientID, id string) error
}

type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) keyExercise(id string) string {
	return "ex:" + strings.TrimSpace(id)
}

func (s *RedisStore) keyClient(clientID string) string {
	return "ex:client:" + strings.TrimSpace(clientID)
}

func (s *RedisStore) Save(ctx context.Context, ex *Exercise) error {
	raw, err := json.Marshal(ex)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.keyExercise(ex.ID), raw, s.ttl)
		if ex.ClientID != "" {
			p.SAdd(ctx, s.keyClient(ex.ClientID), ex.ID)
			p.Expire(ctx, s.keyClient(ex.ClientID), s.ttl)
		}
		return nil
	})
	return err
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Exercise, error) {
	raw, err := s.rdb.Get(ctx, s.keyExercise(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var ex Exercise
	if err := json.Unmarshal(raw, &ex); err != nil {
		return nil, err
	}
	return &ex, nil
}

// ListByClient returns the client's exercises, newest first. Index entries whose
// record has expired are pruned.
func (s *RedisStore) ListByClient(ctx context.Context, clientID string) ([]*Exercise, error) {
	ids, err := s.rdb.SMembers(ctx, s.keyClient(clientID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*Exercise, 0, len(ids))
	for _, id := range ids {
		ex, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			_ = s.rdb.SRem(ctx, s.keyClient(clientID), id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, clientID, id string) error {
	ex, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if ex.ClientID != clientID {
		return ErrNotFound
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.keyExercise(id))
		p.SRem(ctx, s.keyClient(clientID), id)
		return nil
	})
	return err
}

// MemoryStore is the fallback when no redis is configured.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]*Exercise
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Exercise)}
}

func (m *MemoryStore) Save(_ context.Context, ex *Exercise) error {
	cp := *ex
	m.mu.Lock()
	m.byID[ex.ID] = &cp
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Exercise, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ex, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ex
	return &cp, nil
}

func (m *MemoryStore) ListByClient(_ context.Context, clientID string) ([]*Exercise, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*Exercise{}
	for _, ex := range m.byID {
		if ex.ClientID == clientID {
			cp := *ex
			out = append(out, &cp)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, clientID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ex, ok := m.byID[id]
	if !ok || ex.ClientID != clientID {
		return ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func sortNewestFirst(list []*Exercise) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})
}
