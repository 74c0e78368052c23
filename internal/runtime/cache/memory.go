package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the default in-process store. Expired entries are dropped
// lazily on read and by a background janitor.
type MemoryStore struct {
	mu      sync.RWMutex
	items   map[string]memoryItem
	closed  bool
	stopJan chan struct{}
	once    sync.Once
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryStore creates a store whose janitor sweeps expired entries every
// cleanupInterval. Zero disables the janitor; expiry then happens on read.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		items:   make(map[string]memoryItem),
		stopJan: make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go s.janitor(cleanupInterval)
	}
	return s
}

func (s *MemoryStore) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopJan:
			return
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for k, item := range s.items {
				if !item.expiresAt.IsZero() && item.expiresAt.Before(now) {
					delete(s.items, k)
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, false, ErrClosed
	}
	item, ok := s.items[key]
	s.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if !item.expiresAt.IsZero() && item.expiresAt.Before(time.Now()) {
		s.mu.Lock()
		delete(s.items, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	return item.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	item := memoryItem{value: value}
	if ttl > 0 {
		item.expiresAt = time.Now().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.items[key] = item
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.items, key)
	return nil
}

func (s *MemoryStore) Close() error {
	s.once.Do(func() {
		close(s.stopJan)
		s.mu.Lock()
		s.closed = true
		s.items = nil
		s.mu.Unlock()
	})
	return nil
}
