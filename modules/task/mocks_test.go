package task

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	domain "github.com/example/task-manager/domain/task"
	"github.com/example/task-manager/events"
	"github.com/example/task-manager/modules/store"
	"github.com/go-monolith/mono/pkg/types"
)

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(_ string, _ ...any) {}
func (m *mockLogger) Info(_ string, _ ...any)  {}
func (m *mockLogger) Warn(_ string, _ ...any)  {}
func (m *mockLogger) Error(_ string, _ ...any) {}
func (m *mockLogger) With(_ ...any) types.Logger {
	return m
}
func (m *mockLogger) WithModule(_ string) types.Logger {
	return m
}
func (m *mockLogger) WithError(_ error) types.Logger {
	return m
}

func newMockLogger() types.Logger {
	return &mockLogger{}
}

// countingStore wraps a Store, counts calls and can inject failures.
type countingStore struct {
	store.Store
	mu    sync.Mutex
	calls int
	err   error
}

func newCountingStore() *countingStore {
	s := store.NewMemoryStore()
	_ = s.Connect(context.Background())
	return &countingStore{Store: s}
}

func (s *countingStore) hit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.err
}

func (s *countingStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *countingStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *countingStore) FindByOwner(ctx context.Context, ownerID string, filter domain.Filter) ([]domain.Task, error) {
	if err := s.hit(); err != nil {
		return nil, err
	}
	return s.Store.FindByOwner(ctx, ownerID, filter)
}

func (s *countingStore) FindOne(ctx context.Context, id, ownerID string) (domain.Task, error) {
	if err := s.hit(); err != nil {
		return domain.Task{}, err
	}
	return s.Store.FindOne(ctx, id, ownerID)
}

func (s *countingStore) Insert(ctx context.Context, t domain.Task) (domain.Task, error) {
	if err := s.hit(); err != nil {
		return domain.Task{}, err
	}
	return s.Store.Insert(ctx, t)
}

func (s *countingStore) UpdateFields(ctx context.Context, id, ownerID string, f domain.Fields) (domain.Task, error) {
	if err := s.hit(); err != nil {
		return domain.Task{}, err
	}
	return s.Store.UpdateFields(ctx, id, ownerID, f)
}

func (s *countingStore) Delete(ctx context.Context, id, ownerID string) (domain.Task, error) {
	if err := s.hit(); err != nil {
		return domain.Task{}, err
	}
	return s.Store.Delete(ctx, id, ownerID)
}

// gatedStore holds the first armed FindByOwner after it has read its rows,
// until release is closed. The held call then reports ctx cancellation like a
// real driver would.
type gatedStore struct {
	*countingStore
	armed   atomic.Bool
	read    chan struct{}
	release chan struct{}
}

func newGatedStore() *gatedStore {
	g := &gatedStore{
		countingStore: newCountingStore(),
		read:          make(chan struct{}),
		release:       make(chan struct{}),
	}
	g.armed.Store(true)
	return g
}

func (g *gatedStore) FindByOwner(ctx context.Context, ownerID string, filter domain.Filter) ([]domain.Task, error) {
	tasks, err := g.countingStore.FindByOwner(ctx, ownerID, filter)
	if g.armed.CompareAndSwap(true, false) {
		close(g.read)
		<-g.release
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return tasks, err
}

// recordingPublisher records every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (p *recordingPublisher) record(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, name)
	return p.err
}

func (p *recordingPublisher) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func (p *recordingPublisher) PublishCreated(e events.TaskCreatedEvent) error {
	return p.record("created:" + e.TaskID)
}

func (p *recordingPublisher) PublishUpdated(e events.TaskUpdatedEvent) error {
	return p.record("updated:" + e.TaskID)
}

func (p *recordingPublisher) PublishStatusChanged(e events.TaskStatusChangedEvent) error {
	return p.record("status:" + e.From + "->" + e.To)
}

func (p *recordingPublisher) PublishDeleted(e events.TaskDeletedEvent) error {
	return p.record("deleted:" + e.TaskID)
}

// memoryCache implements cache.CacheService in memory.
type memoryCache struct {
	mu          sync.Mutex
	data        map[string][]byte
	gens        map[string]int
	hits        int
	invalidated []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]byte{}, gens: map[string]int{}}
}

func (c *memoryCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.data[key]
	if !ok {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(data, dest)
}

func (c *memoryCache) Set(_ context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
	return nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *memoryCache) OwnerKey(_ context.Context, ownerID, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, _ := json.Marshal([]any{ownerID, c.gens[ownerID], key})
	return string(b), nil
}

func (c *memoryCache) InvalidateOwner(_ context.Context, ownerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[ownerID]++
	c.invalidated = append(c.invalidated, ownerID)
	return nil
}

func (c *memoryCache) Close() error { return nil }
