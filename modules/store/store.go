// Package store persists tasks. Every backend is an explicitly constructed
// handle: callers Connect it before use and Close it on shutdown.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	domain "github.com/example/task-manager/domain/task"
	"github.com/google/uuid"
)

// Driver names accepted by New.
const (
	DriverMemory    = "memory"
	DriverSQLite    = "sqlite"
	DriverPostgres  = "postgres"
	DriverJetStream = "jetstream"
)

// ErrNotConnected is returned by operations on a handle that is not connected.
var ErrNotConnected = fmt.Errorf("%w: not connected", domain.ErrStoreUnavailable)

var errDuplicateID = errors.New("duplicate task id")

// Store is the persistence port of the task service. Lookups are always
// scoped by owner: a task owned by someone else is reported as not found.
type Store interface {
	// Connect establishes the backend connection. It is idempotent and safe
	// for concurrent callers.
	Connect(ctx context.Context) error
	// Close releases the backend connection. Closing twice is a no-op.
	Close() error
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	// Driver names the backend.
	Driver() string

	// FindByOwner returns the owner's tasks matching the filter, newest first.
	FindByOwner(ctx context.Context, ownerID string, filter domain.Filter) ([]domain.Task, error)
	FindOne(ctx context.Context, id, ownerID string) (domain.Task, error)
	// Insert persists a new task. A missing ID or timestamps are assigned.
	Insert(ctx context.Context, t domain.Task) (domain.Task, error)
	// UpdateFields applies a partial update and refreshes UpdatedAt.
	UpdateFields(ctx context.Context, id, ownerID string, fields domain.Fields) (domain.Task, error)
	// Delete removes a task and returns the removed record.
	Delete(ctx context.Context, id, ownerID string) (domain.Task, error)
}

// Config selects and configures a backend.
type Config struct {
	Driver      string
	DBPath      string
	DBDebug     bool
	DatabaseURL string
	NATSURL     string
	Bucket      string
}

// New builds an unconnected store for cfg.Driver.
func New(cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite, "":
		return NewGormStore(cfg.DBPath, cfg.DBDebug), nil
	case DriverPostgres:
		return NewPostgresStore(cfg.DatabaseURL), nil
	case DriverJetStream:
		return NewJetStreamStore(cfg.NATSURL, cfg.Bucket), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// unavailable wraps a backend failure so callers only ever see
// ErrStoreUnavailable, with the driver error kept for logs.
func unavailable(op string, err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
}

// prepareInsert fills the server-assigned fields of a new task.
func prepareInsert(t domain.Task, now time.Time) domain.Task {
	t = t.Clone()
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now = now.UTC().Truncate(time.Microsecond)
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	if t.Labels == nil {
		t.Labels = []string{}
	}
	return t
}

// sortNewestFirst orders by CreatedAt descending, then ID descending.
func sortNewestFirst(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
		}
		return tasks[i].ID > tasks[j].ID
	})
}
