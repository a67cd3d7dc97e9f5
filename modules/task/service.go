package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/example/task-manager/domain/task"
	"github.com/example/task-manager/events"
	"github.com/example/task-manager/modules/cache"
	"github.com/example/task-manager/modules/store"
	"github.com/go-monolith/mono/pkg/types"
	"golang.org/x/sync/singleflight"
)

// Service implements the task use cases on top of a Store. It owns identity
// checks, validation and error classification; the store only persists.
type Service struct {
	store     store.Store
	cache     cache.CacheService
	publisher EventPublisher
	logger    types.Logger
	sfGroup   singleflight.Group
}

var _ TaskPort = (*Service)(nil)

// Option configures a Service.
type Option func(*Service)

// WithCache enables the owner-scoped list cache.
func WithCache(c cache.CacheService) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithPublisher sets the sink for mutation events.
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// NewService creates a task service. logger must not be nil.
func NewService(st store.Store, logger types.Logger, opts ...Option) *Service {
	s := &Service{
		store:  st,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// requireOwner rejects a missing identity before any store access.
func requireOwner(ownerID string) (string, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return "", domain.ErrUnauthorized
	}
	return ownerID, nil
}

// storeError keeps NotFound and reports every other store failure as
// ErrStoreUnavailable.
func (s *Service) storeError(op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.ErrNotFound
	case errors.Is(err, domain.ErrStoreUnavailable):
		s.logger.Error("Task store failure", "op", op, "error", err)
		return err
	default:
		s.logger.Error("Task store failure", "op", op, "error", err)
		return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
	}
}

func listCacheKey(filter domain.Filter) string {
	return "list:" + filter.String()
}

// ListTasks returns the owner's tasks matching filter, newest first.
func (s *Service) ListTasks(ctx context.Context, ownerID string, filter domain.Filter) ([]domain.Task, error) {
	ownerID, err := requireOwner(ownerID)
	if err != nil {
		return nil, err
	}

	var cacheKey string
	if s.cache != nil {
		cacheKey, err = s.cache.OwnerKey(ctx, ownerID, listCacheKey(filter))
		if err != nil {
			s.logger.Warn("Cache unavailable, reading from store", "error", err)
			cacheKey = ""
		}
	}

	if cacheKey != "" {
		var cached []domain.Task
		found, err := s.cache.Get(ctx, cacheKey, &cached)
		if err != nil {
			s.logger.Warn("Cache read failed", "key", cacheKey, "error", err)
		}
		if found {
			return cached, nil
		}
	}

	// Concurrent misses share one store read. With a cache the flight is
	// keyed by the generation-scoped key, so a read started before a
	// mutation is never handed to a caller that looked up after it.
	flightKey := cacheKey
	if flightKey == "" {
		flightKey = ownerID + "|" + filter.String()
	}
	flightCtx := context.WithoutCancel(ctx)
	val, err, _ := s.sfGroup.Do(flightKey, func() (any, error) {
		return s.store.FindByOwner(flightCtx, ownerID, filter)
	})
	if err != nil {
		return nil, s.storeError("list", err)
	}
	tasks := cloneTasks(val.([]domain.Task))

	if cacheKey != "" {
		if err := s.cache.Set(ctx, cacheKey, tasks); err != nil {
			s.logger.Warn("Cache write failed", "key", cacheKey, "error", err)
		}
	}
	return tasks, nil
}

// GetTask returns one of the owner's tasks.
func (s *Service) GetTask(ctx context.Context, ownerID, id string) (domain.Task, error) {
	ownerID, err := requireOwner(ownerID)
	if err != nil {
		return domain.Task{}, err
	}

	t, err := s.store.FindOne(ctx, id, ownerID)
	if err != nil {
		return domain.Task{}, s.storeError("get", err)
	}
	return t, nil
}

// CreateTask validates payload and persists a new task owned by ownerID.
func (s *Service) CreateTask(ctx context.Context, ownerID string, payload domain.Payload) (domain.Task, error) {
	ownerID, err := requireOwner(ownerID)
	if err != nil {
		return domain.Task{}, err
	}

	v, err := domain.Validate(payload)
	if err != nil {
		return domain.Task{}, err
	}

	created, err := s.store.Insert(ctx, v.NewTask(ownerID))
	if err != nil {
		return domain.Task{}, s.storeError("create", err)
	}

	s.invalidate(ctx, ownerID)
	s.publish("TaskCreated", created.ID, func(p EventPublisher) error {
		return p.PublishCreated(events.TaskCreatedEvent{
			TaskID:    created.ID,
			OwnerID:   created.OwnerID,
			Title:     created.Title,
			Status:    string(created.Status),
			CreatedAt: created.CreatedAt,
		})
	})
	return created, nil
}

// UpdateTask re-validates the provided fields of payload and applies them.
func (s *Service) UpdateTask(ctx context.Context, ownerID, id string, payload domain.Payload) (domain.Task, error) {
	ownerID, err := requireOwner(ownerID)
	if err != nil {
		return domain.Task{}, err
	}

	fields, err := domain.ValidatePatch(payload)
	if err != nil {
		return domain.Task{}, err
	}

	updated, err := s.store.UpdateFields(ctx, id, ownerID, fields)
	if err != nil {
		return domain.Task{}, s.storeError("update", err)
	}

	s.invalidate(ctx, ownerID)
	s.publish("TaskUpdated", updated.ID, func(p EventPublisher) error {
		return p.PublishUpdated(events.TaskUpdatedEvent{
			TaskID:    updated.ID,
			OwnerID:   updated.OwnerID,
			Title:     updated.Title,
			UpdatedAt: updated.UpdatedAt,
		})
	})
	return updated, nil
}

// SetStatus moves a task to status. Every transition between the three
// statuses is allowed; no other field changes.
func (s *Service) SetStatus(ctx context.Context, ownerID, id, status string) (domain.Task, error) {
	ownerID, err := requireOwner(ownerID)
	if err != nil {
		return domain.Task{}, err
	}

	st, err := domain.ParseStatus(status)
	if err != nil {
		return domain.Task{}, &domain.ValidationError{Field: "status", Reason: "Status must be one of todo, in-progress, completed"}
	}

	before, err := s.store.FindOne(ctx, id, ownerID)
	if err != nil {
		return domain.Task{}, s.storeError("set status", err)
	}

	updated, err := s.store.UpdateFields(ctx, id, ownerID, domain.Fields{Status: &st})
	if err != nil {
		return domain.Task{}, s.storeError("set status", err)
	}

	s.invalidate(ctx, ownerID)
	s.publish("TaskStatusChanged", updated.ID, func(p EventPublisher) error {
		return p.PublishStatusChanged(events.TaskStatusChangedEvent{
			TaskID:    updated.ID,
			OwnerID:   updated.OwnerID,
			From:      string(before.Status),
			To:        string(updated.Status),
			ChangedAt: updated.UpdatedAt,
		})
	})
	return updated, nil
}

// DeleteTask removes a task. Deleting it again reports ErrNotFound.
func (s *Service) DeleteTask(ctx context.Context, ownerID, id string) error {
	ownerID, err := requireOwner(ownerID)
	if err != nil {
		return err
	}

	deleted, err := s.store.Delete(ctx, id, ownerID)
	if err != nil {
		return s.storeError("delete", err)
	}
	s.logger.Debug("Task deleted", "task_id", deleted.ID, "title", deleted.Title)

	s.invalidate(ctx, ownerID)
	s.publish("TaskDeleted", id, func(p EventPublisher) error {
		return p.PublishDeleted(events.TaskDeletedEvent{
			TaskID:    id,
			OwnerID:   ownerID,
			DeletedAt: time.Now().UTC(),
		})
	})
	return nil
}

func (s *Service) invalidate(ctx context.Context, ownerID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateOwner(ctx, ownerID); err != nil {
		s.logger.Warn("Failed to invalidate task cache", "owner", ownerID, "error", err)
	}
}

// publish is best-effort: a failed publish is logged and never fails the
// mutation that already committed.
func (s *Service) publish(event, taskID string, fn func(EventPublisher) error) {
	if s.publisher == nil {
		return
	}
	if err := fn(s.publisher); err != nil {
		s.logger.Warn("Failed to publish event", "event", event, "task_id", taskID, "error", err)
	}
}

func cloneTasks(in []domain.Task) []domain.Task {
	out := make([]domain.Task, len(in))
	for i, t := range in {
		out[i] = t.Clone()
	}
	return out
}
