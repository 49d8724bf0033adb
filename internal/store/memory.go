package store

import (
	"context"
	"sync"
)

// Memory is the Store fallback when no redis is configured, and the
// backend tests run against. Contents do not survive a restart.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
	sets   map[string]map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		values: make(map[string]string),
		sets:   make(map[string]map[string]struct{}),
	}
}

func (s *Memory) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *Memory) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *Memory) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	delete(s.sets, key)
	return nil
}

func (s *Memory) AddMember(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	set[member] = struct{}{}
	return nil
}

func (s *Memory) RemoveMember(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.sets[key]; ok {
		delete(set, member)
	}
	return nil
}

func (s *Memory) HasMember(_ context.Context, key, member string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.sets[key]
	if !ok {
		return false, nil
	}
	_, found := set[member]
	return found, nil
}

func (s *Memory) Members(_ context.Context, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := make([]string, 0, len(s.sets[key]))
	for m := range s.sets[key] {
		members = append(members, m)
	}
	return members, nil
}
