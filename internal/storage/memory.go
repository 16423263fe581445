package storage

import (
	"context"
	"errors"
	"strings"
	"sync"
)

type memoryStore struct {
	mu     sync.RWMutex
	groups map[int64]string
}

func NewMemory() Store {
	return &memoryStore{groups: map[int64]string{}}
}

func (s *memoryStore) GetGroup(ctx context.Context, chatID int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[chatID]
	if !ok {
		return "", ErrNotFound
	}
	return g, nil
}

func (s *memoryStore) SaveGroup(ctx context.Context, chatID int64, group string) error {
	group = strings.TrimSpace(group)
	if group == "" {
		return errors.New("storage: empty group")
	}
	s.mu.Lock()
	s.groups[chatID] = group
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) DeleteGroup(ctx context.Context, chatID int64) error {
	s.mu.Lock()
	delete(s.groups, chatID)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Close() error { return nil }
