package store

import (
	"context"
	"sync"
	"time"

	domain "github.com/example/task-manager/domain/task"
)

// MemoryStore keeps tasks in a map. Data survives Close and reconnects for the
// lifetime of the value.
type MemoryStore struct {
	mu        sync.RWMutex
	connected bool
	tasks     map[string]domain.Task
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[string]domain.Task),
	}
}

func (s *MemoryStore) Driver() string {
	return DriverMemory
}

func (s *MemoryStore) Connect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

func (s *MemoryStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return ErrNotConnected
	}
	return nil
}

func (s *MemoryStore) FindByOwner(_ context.Context, ownerID string, filter domain.Filter) ([]domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return nil, ErrNotConnected
	}

	result := make([]domain.Task, 0)
	for _, t := range s.tasks {
		if t.OwnerID == ownerID && filter.Matches(t) {
			result = append(result, t.Clone())
		}
	}
	sortNewestFirst(result)
	return result, nil
}

func (s *MemoryStore) FindOne(_ context.Context, id, ownerID string) (domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return domain.Task{}, ErrNotConnected
	}

	t, ok := s.tasks[id]
	if !ok || t.OwnerID != ownerID {
		return domain.Task{}, domain.ErrNotFound
	}
	return t.Clone(), nil
}

func (s *MemoryStore) Insert(_ context.Context, t domain.Task) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return domain.Task{}, ErrNotConnected
	}

	t = prepareInsert(t, time.Now())
	if _, exists := s.tasks[t.ID]; exists {
		return domain.Task{}, unavailable("insert", errDuplicateID)
	}
	s.tasks[t.ID] = t
	return t.Clone(), nil
}

func (s *MemoryStore) UpdateFields(_ context.Context, id, ownerID string, fields domain.Fields) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return domain.Task{}, ErrNotConnected
	}

	t, ok := s.tasks[id]
	if !ok || t.OwnerID != ownerID {
		return domain.Task{}, domain.ErrNotFound
	}
	fields.Apply(&t, time.Now())
	s.tasks[id] = t
	return t.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, id, ownerID string) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return domain.Task{}, ErrNotConnected
	}

	t, ok := s.tasks[id]
	if !ok || t.OwnerID != ownerID {
		return domain.Task{}, domain.ErrNotFound
	}
	delete(s.tasks, id)
	return t.Clone(), nil
}
