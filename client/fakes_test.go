package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	domain "github.com/example/task-manager/domain/task"
)

// fakeRemote is a Remote whose calls are answered by func fields. Calls
// without a func succeed against an in-memory server list.
type fakeRemote struct {
	mu     sync.Mutex
	server []domain.Task
	seq    int
	calls  atomic.Int32

	setStatusFunc func(ctx context.Context, id string, status domain.Status) (domain.Task, error)
	deleteFunc    func(ctx context.Context, id string) error
	createFunc    func(ctx context.Context, payload domain.Payload) (domain.Task, error)
	updateFunc    func(ctx context.Context, id string, payload domain.Payload) (domain.Task, error)
}

func newFakeRemote(statuses ...domain.Status) *fakeRemote {
	r := &fakeRemote{}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, st := range statuses {
		at := base.Add(time.Duration(len(statuses)-i) * time.Minute)
		r.server = append(r.server, domain.Task{
			ID:        fmt.Sprintf("t%d", i+1),
			Title:     fmt.Sprintf("Task %d", i+1),
			Status:    st,
			Priority:  domain.PriorityMedium,
			Labels:    []string{},
			CreatedAt: at,
			UpdatedAt: at,
		})
	}
	return r
}

func (r *fakeRemote) ListTasks(_ context.Context, filter domain.Filter) ([]domain.Task, error) {
	r.calls.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Task{}
	for _, t := range r.server {
		if filter.Matches(t) {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (r *fakeRemote) CreateTask(ctx context.Context, payload domain.Payload) (domain.Task, error) {
	r.calls.Add(1)
	if r.createFunc != nil {
		return r.createFunc(ctx, payload)
	}
	return r.create(payload)
}

func (r *fakeRemote) create(payload domain.Payload) (domain.Task, error) {
	v, err := domain.Validate(payload)
	if err != nil {
		return domain.Task{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	t := v.NewTask("owner")
	t.ID = fmt.Sprintf("srv-%d", r.seq)
	t.CreatedAt = time.Now().UTC()
	t.UpdatedAt = t.CreatedAt
	r.server = append([]domain.Task{t}, r.server...)
	return t.Clone(), nil
}

func (r *fakeRemote) UpdateTask(ctx context.Context, id string, payload domain.Payload) (domain.Task, error) {
	r.calls.Add(1)
	if r.updateFunc != nil {
		return r.updateFunc(ctx, id, payload)
	}
	return r.update(id, payload)
}

func (r *fakeRemote) update(id string, payload domain.Payload) (domain.Task, error) {
	fields, err := domain.ValidatePatch(payload)
	if err != nil {
		return domain.Task{}, err
	}
	return r.mutate(id, func(t *domain.Task) { fields.Apply(t, time.Now()) })
}

func (r *fakeRemote) SetStatus(ctx context.Context, id string, status domain.Status) (domain.Task, error) {
	r.calls.Add(1)
	if r.setStatusFunc != nil {
		return r.setStatusFunc(ctx, id, status)
	}
	return r.mutate(id, func(t *domain.Task) { domain.Fields{Status: &status}.Apply(t, time.Now()) })
}

func (r *fakeRemote) DeleteTask(ctx context.Context, id string) error {
	r.calls.Add(1)
	if r.deleteFunc != nil {
		return r.deleteFunc(ctx, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, t := range r.server {
		if t.ID == id {
			r.server = append(r.server[:i], r.server[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *fakeRemote) mutate(id string, fn func(*domain.Task)) (domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.server {
		if r.server[i].ID == id {
			fn(&r.server[i])
			return r.server[i].Clone(), nil
		}
	}
	return domain.Task{}, domain.ErrNotFound
}

// recordingNotifier keeps every message it is given.
type recordingNotifier struct {
	mu        sync.Mutex
	successes []string
	errors    []string
}

func (n *recordingNotifier) Success(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, msg)
}

func (n *recordingNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

func (n *recordingNotifier) Successes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.successes...)
}

func (n *recordingNotifier) Errors() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.errors...)
}

// gate holds a fake call until released.
type gate chan struct{}

func (g gate) wait(ctx context.Context) error {
	select {
	case <-g:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g gate) release() { close(g) }
