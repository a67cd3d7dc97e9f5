// Package client keeps a client-side copy of an owner's task list and applies
// mutations optimistically: the local list changes at once, the server call
// runs in the background, and the change is confirmed or rolled back when the
// call resolves.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	domain "github.com/example/task-manager/domain/task"
	nanoid "github.com/jaevor/go-nanoid"
)

// Remote is the task service as seen by a signed-in client.
type Remote interface {
	ListTasks(ctx context.Context, filter domain.Filter) ([]domain.Task, error)
	CreateTask(ctx context.Context, payload domain.Payload) (domain.Task, error)
	UpdateTask(ctx context.Context, id string, payload domain.Payload) (domain.Task, error)
	SetStatus(ctx context.Context, id string, status domain.Status) (domain.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// Notifier surfaces the outcome of a mutation to the user.
type Notifier interface {
	Success(message string)
	Error(message string)
}

type nopNotifier struct{}

func (nopNotifier) Success(string) {}
func (nopNotifier) Error(string)   {}

// TempIDPrefix marks placeholder IDs of creates that are still in flight.
const TempIDPrefix = "tmp_"

// Cache is the optimistic client task list. All methods are safe for
// concurrent use.
type Cache struct {
	remote   Remote
	notifier Notifier
	newID    func() string

	mu     sync.Mutex
	tasks  []domain.Task
	subs   map[int]func([]domain.Task)
	nextID int
}

// Option configures a Cache.
type Option func(*Cache)

// WithNotifier sets the notifier. The default discards messages.
func WithNotifier(n Notifier) Option {
	return func(c *Cache) {
		c.notifier = n
	}
}

// WithTempIDs overrides the placeholder ID generator.
func WithTempIDs(gen func() string) Option {
	return func(c *Cache) {
		c.newID = gen
	}
}

// New creates an empty cache. Call Refresh to load the server state.
func New(remote Remote, opts ...Option) (*Cache, error) {
	c := &Cache{
		remote:   remote,
		notifier: nopNotifier{},
		tasks:    []domain.Task{},
		subs:     make(map[int]func([]domain.Task)),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.newID == nil {
		gen, err := nanoid.Standard(12)
		if err != nil {
			return nil, fmt.Errorf("failed to create id generator: %w", err)
		}
		c.newID = func() string { return TempIDPrefix + gen() }
	}
	return c, nil
}

// Tasks returns a copy of the cached list.
func (c *Cache) Tasks() []domain.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneTasks(c.tasks)
}

// Subscribe registers fn to receive the list after every change. The
// returned function removes the subscription.
func (c *Cache) Subscribe(fn func([]domain.Task)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Refresh replaces the cached list with the server's. Mutations still in
// flight resolve against the new list by task ID.
func (c *Cache) Refresh(ctx context.Context) error {
	tasks, err := c.remote.ListTasks(ctx, domain.FilterAll)
	if err != nil {
		c.notifier.Error(failureMessage(err))
		return err
	}

	c.mu.Lock()
	c.tasks = cloneTasks(tasks)
	c.mu.Unlock()
	c.publish()
	return nil
}

// Create inserts a placeholder at the head of the list and creates the task
// on the server. On confirm the placeholder is replaced by the server record.
func (c *Cache) Create(ctx context.Context, payload domain.Payload) *Commit {
	v, err := domain.Validate(payload)
	if err != nil {
		return c.reject(err)
	}

	placeholder := v.NewTask("")
	placeholder.ID = c.newID()

	return c.begin(ctx, mutation{
		kind:   mutationCreate,
		taskID: placeholder.ID,
		apply: func(tasks []domain.Task) ([]domain.Task, bool) {
			return append([]domain.Task{placeholder}, tasks...), true
		},
		call: func(ctx context.Context) (*domain.Task, error) {
			t, err := c.remote.CreateTask(ctx, payload)
			return &t, err
		},
		success: "Task created successfully",
	})
}

// Update applies the provided fields locally, then on the server.
func (c *Cache) Update(ctx context.Context, id string, payload domain.Payload) *Commit {
	fields, err := domain.ValidatePatch(payload)
	if err != nil {
		return c.reject(err)
	}

	return c.begin(ctx, mutation{
		kind:   mutationUpdate,
		taskID: id,
		apply: func(tasks []domain.Task) ([]domain.Task, bool) {
			i := indexOf(tasks, id)
			if i < 0 {
				return tasks, false
			}
			t := tasks[i].Clone()
			fields.Apply(&t, t.UpdatedAt)
			tasks[i] = t
			return tasks, true
		},
		call: func(ctx context.Context) (*domain.Task, error) {
			t, err := c.remote.UpdateTask(ctx, id, payload)
			return &t, err
		},
		success: "Task updated successfully",
	})
}

// SetStatus moves a task to another column.
func (c *Cache) SetStatus(ctx context.Context, id string, status domain.Status) *Commit {
	if !status.IsValid() {
		return c.reject(&domain.ValidationError{Field: "status", Reason: "Status must be one of todo, in-progress, completed"})
	}

	return c.begin(ctx, mutation{
		kind:   mutationUpdate,
		taskID: id,
		apply: func(tasks []domain.Task) ([]domain.Task, bool) {
			i := indexOf(tasks, id)
			if i < 0 {
				return tasks, false
			}
			t := tasks[i].Clone()
			t.Status = status
			tasks[i] = t
			return tasks, true
		},
		call: func(ctx context.Context) (*domain.Task, error) {
			t, err := c.remote.SetStatus(ctx, id, status)
			return &t, err
		},
		success: "Task moved to " + status.Label(),
	})
}

// Delete removes a task locally, then on the server.
func (c *Cache) Delete(ctx context.Context, id string) *Commit {
	return c.begin(ctx, mutation{
		kind:   mutationDelete,
		taskID: id,
		apply: func(tasks []domain.Task) ([]domain.Task, bool) {
			i := indexOf(tasks, id)
			if i < 0 {
				return tasks, false
			}
			return append(tasks[:i], tasks[i+1:]...), true
		},
		call: func(ctx context.Context) (*domain.Task, error) {
			return nil, c.remote.DeleteTask(ctx, id)
		},
		success: "Task deleted successfully",
	})
}

// reject resolves a mutation that failed before reaching the server.
func (c *Cache) reject(err error) *Commit {
	commit := newCommit()
	c.notifier.Error(failureMessage(err))
	commit.resolve(nil, err)
	return commit
}

func (c *Cache) publish() {
	c.mu.Lock()
	snapshot := cloneTasks(c.tasks)
	subs := make([]func([]domain.Task), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(cloneTasks(snapshot))
	}
}

// failureMessage is what the user sees for err: the field reason for
// validation failures, the error text otherwise.
func failureMessage(err error) string {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return verr.Reason
	}
	return err.Error()
}

func indexOf(tasks []domain.Task, id string) int {
	for i := range tasks {
		if tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneTasks(in []domain.Task) []domain.Task {
	out := make([]domain.Task, len(in))
	for i, t := range in {
		out[i] = t.Clone()
	}
	return out
}
