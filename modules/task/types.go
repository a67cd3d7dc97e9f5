package task

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/example/task-manager/domain/task"
)

// Fault carries a classified failure across the request-reply boundary.
// Handlers return it in the response body so the caller can rebuild a typed
// error instead of parsing a transport error string.
type Fault struct {
	Kind    domain.Kind `json:"kind"`
	Field   string      `json:"field,omitempty"`
	Message string      `json:"message"`
}

// faultFrom classifies err. It returns nil for a nil error.
func faultFrom(err error) *Fault {
	if err == nil {
		return nil
	}
	f := &Fault{Kind: domain.KindOf(err), Message: err.Error()}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		f.Field = verr.Field
		f.Message = verr.Reason
	}
	if f.Kind == domain.KindStoreUnavailable {
		// Driver details stay in the server log.
		f.Message = domain.ErrStoreUnavailable.Error()
	}
	return f
}

// Err rebuilds the typed error described by the fault.
func (f *Fault) Err() error {
	if f == nil {
		return nil
	}
	switch f.Kind {
	case domain.KindUnauthorized:
		return domain.ErrUnauthorized
	case domain.KindValidationFailed:
		return &domain.ValidationError{Field: f.Field, Reason: f.Message}
	case domain.KindNotFound:
		return domain.ErrNotFound
	default:
		return fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, f.Message)
	}
}

// ListTasksRequest is the request for listing an owner's tasks.
type ListTasksRequest struct {
	OwnerID string `json:"owner_id"`
	Status  string `json:"status,omitempty"`
}

// ListTasksResponse is the response for listing tasks.
type ListTasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
	Total int           `json:"total"`
	Fault *Fault        `json:"fault,omitempty"`
}

// GetTaskRequest is the request for getting a task.
type GetTaskRequest struct {
	OwnerID string `json:"owner_id"`
	TaskID  string `json:"task_id"`
}

// CreateTaskRequest is the request for creating a task.
type CreateTaskRequest struct {
	OwnerID string         `json:"owner_id"`
	Payload domain.Payload `json:"payload"`
}

// UpdateTaskRequest is the request for editing a task.
type UpdateTaskRequest struct {
	OwnerID string         `json:"owner_id"`
	TaskID  string         `json:"task_id"`
	Payload domain.Payload `json:"payload"`
}

// SetStatusRequest is the request for moving a task to another status.
type SetStatusRequest struct {
	OwnerID string `json:"owner_id"`
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
}

// DeleteTaskRequest is the request for deleting a task.
type DeleteTaskRequest struct {
	OwnerID string `json:"owner_id"`
	TaskID  string `json:"task_id"`
}

// TaskResponse is the response for operations returning a single task.
type TaskResponse struct {
	Task  *domain.Task `json:"task,omitempty"`
	Fault *Fault       `json:"fault,omitempty"`
}

// DeleteTaskResponse is the response for deleting a task.
type DeleteTaskResponse struct {
	Deleted bool   `json:"deleted"`
	Fault   *Fault `json:"fault,omitempty"`
}

// TaskPort defines the task operations offered to driving adapters such as
// the HTTP API. Every method reports failures as domain errors classifiable
// with domain.KindOf.
type TaskPort interface {
	ListTasks(ctx context.Context, ownerID string, filter domain.Filter) ([]domain.Task, error)
	GetTask(ctx context.Context, ownerID, id string) (domain.Task, error)
	CreateTask(ctx context.Context, ownerID string, payload domain.Payload) (domain.Task, error)
	UpdateTask(ctx context.Context, ownerID, id string, payload domain.Payload) (domain.Task, error)
	SetStatus(ctx context.Context, ownerID, id, status string) (domain.Task, error)
	DeleteTask(ctx context.Context, ownerID, id string) error
}
