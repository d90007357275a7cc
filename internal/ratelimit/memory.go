package ratelimit

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

type window struct {
	start time.Time
	count int64
}

// MemoryStore keeps windows in process. The client table is an LRU, so a
// flood of distinct addresses evicts the least recent ones instead of
// growing without bound.
type MemoryStore struct {
	mu      sync.Mutex
	clients *lru.Cache
	now     func() time.Time
}

func NewMemoryStore(maxClients int) (*MemoryStore, error) {
	clients, err := lru.New(maxClients)
	if err != nil {
		return nil, err
	}

	return &MemoryStore{
		clients: clients,
		now:     time.Now,
	}, nil
}

func (s *MemoryStore) Hit(_ context.Context, key string, d time.Duration) (Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	w, ok := s.clients.Get(key)
	cur, _ := w.(*window)
	if !ok || cur == nil || now.Sub(cur.start) >= d {
		cur = &window{start: now}
		s.clients.Add(key, cur)
	}
	cur.count++

	return Usage{
		Count:   cur.count,
		ResetIn: cur.start.Add(d).Sub(now),
	}, nil
}
