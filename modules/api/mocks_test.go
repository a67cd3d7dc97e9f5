package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domain "github.com/example/task-manager/domain/task"
	user "github.com/example/task-manager/domain/user"
	"github.com/example/task-manager/modules/auth"
	"github.com/go-monolith/mono"
)

// mockAuthPort implements auth.AuthPort for testing. Tokens of the form
// "token-<owner>" are valid.
type mockAuthPort struct {
	registerFunc func(ctx context.Context, email, password string) (*user.User, error)
	loginFunc    func(ctx context.Context, email, password string) (*user.TokenPair, error)
	refreshFunc  func(ctx context.Context, refreshToken string) (*user.TokenPair, error)
}

var _ auth.AuthPort = (*mockAuthPort)(nil)

func (m *mockAuthPort) Register(ctx context.Context, email, password string) (*user.User, error) {
	if m.registerFunc != nil {
		return m.registerFunc(ctx, email, password)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthPort) Login(ctx context.Context, email, password string) (*user.TokenPair, error) {
	if m.loginFunc != nil {
		return m.loginFunc(ctx, email, password)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthPort) Refresh(ctx context.Context, refreshToken string) (*user.TokenPair, error) {
	if m.refreshFunc != nil {
		return m.refreshFunc(ctx, refreshToken)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthPort) ValidateToken(_ context.Context, token string) (*user.Identity, error) {
	switch token {
	case "token-alice":
		return &user.Identity{OwnerID: "alice", Email: "alice@example.com"}, nil
	case "token-bob":
		return &user.Identity{OwnerID: "bob", Email: "bob@example.com"}, nil
	case "expired":
		return nil, auth.ErrExpiredToken
	}
	return nil, auth.ErrInvalidToken
}

// fakeTaskPort is an in-memory TaskPort with the same owner scoping and
// validation as the real service.
type fakeTaskPort struct {
	mu    sync.Mutex
	tasks []domain.Task
	seq   int
	err   error
}

func (f *fakeTaskPort) ListTasks(_ context.Context, ownerID string, filter domain.Filter) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := []domain.Task{}
	for _, t := range f.tasks {
		if t.OwnerID == ownerID && filter.Matches(t) {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (f *fakeTaskPort) find(ownerID, id string) (int, error) {
	for i, t := range f.tasks {
		if t.OwnerID == ownerID && t.ID == id {
			return i, nil
		}
	}
	return -1, domain.ErrNotFound
}

func (f *fakeTaskPort) GetTask(_ context.Context, ownerID, id string) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Task{}, f.err
	}
	i, err := f.find(ownerID, id)
	if err != nil {
		return domain.Task{}, err
	}
	return f.tasks[i].Clone(), nil
}

func (f *fakeTaskPort) CreateTask(_ context.Context, ownerID string, payload domain.Payload) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Task{}, f.err
	}
	v, err := domain.Validate(payload)
	if err != nil {
		return domain.Task{}, err
	}
	f.seq++
	t := v.NewTask(ownerID)
	t.ID = fmt.Sprintf("task-%d", f.seq)
	t.CreatedAt = time.Now().UTC()
	t.UpdatedAt = t.CreatedAt
	f.tasks = append([]domain.Task{t}, f.tasks...)
	return t.Clone(), nil
}

func (f *fakeTaskPort) UpdateTask(_ context.Context, ownerID, id string, payload domain.Payload) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Task{}, f.err
	}
	fields, err := domain.ValidatePatch(payload)
	if err != nil {
		return domain.Task{}, err
	}
	i, err := f.find(ownerID, id)
	if err != nil {
		return domain.Task{}, err
	}
	fields.Apply(&f.tasks[i], time.Now())
	return f.tasks[i].Clone(), nil
}

func (f *fakeTaskPort) SetStatus(_ context.Context, ownerID, id, status string) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Task{}, f.err
	}
	st, err := domain.ParseStatus(status)
	if err != nil {
		return domain.Task{}, &domain.ValidationError{Field: "status", Reason: "Status must be one of todo, in-progress, completed"}
	}
	i, err := f.find(ownerID, id)
	if err != nil {
		return domain.Task{}, err
	}
	domain.Fields{Status: &st}.Apply(&f.tasks[i], time.Now())
	return f.tasks[i].Clone(), nil
}

func (f *fakeTaskPort) DeleteTask(_ context.Context, ownerID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	i, err := f.find(ownerID, id)
	if err != nil {
		return err
	}
	f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
	return nil
}

type staticHealth struct {
	name    string
	healthy bool
}

func (s staticHealth) Name() string { return s.name }

func (s staticHealth) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{Healthy: s.healthy}
}
