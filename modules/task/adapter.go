package task

import (
	"context"
	"encoding/json"
	"fmt"

	domain "github.com/example/task-manager/domain/task"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// taskAdapter implements TaskPort over the task module's request-reply
// services, turning response faults back into domain errors.
type taskAdapter struct {
	container mono.ServiceContainer
}

// NewTaskAdapter creates a TaskPort for the container received via
// SetDependencyServiceContainer.
func NewTaskAdapter(container mono.ServiceContainer) TaskPort {
	if container == nil {
		panic("task adapter requires non-nil ServiceContainer")
	}
	return &taskAdapter{container: container}
}

// call reports a transport failure as ErrStoreUnavailable: the caller cannot
// tell whether the store was reached.
func (a *taskAdapter) call(ctx context.Context, service string, req, resp any) error {
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		service,
		json.Marshal,
		json.Unmarshal,
		req,
		&resp,
	); err != nil {
		return fmt.Errorf("%w: %s service call failed: %v", domain.ErrStoreUnavailable, service, err)
	}
	return nil
}

func (a *taskAdapter) ListTasks(ctx context.Context, ownerID string, filter domain.Filter) ([]domain.Task, error) {
	req := ListTasksRequest{OwnerID: ownerID, Status: filter.String()}
	var resp ListTasksResponse
	if err := a.call(ctx, "list-tasks", &req, &resp); err != nil {
		return nil, err
	}
	if resp.Fault != nil {
		return nil, resp.Fault.Err()
	}
	if resp.Tasks == nil {
		resp.Tasks = []domain.Task{}
	}
	return resp.Tasks, nil
}

func (a *taskAdapter) GetTask(ctx context.Context, ownerID, id string) (domain.Task, error) {
	req := GetTaskRequest{OwnerID: ownerID, TaskID: id}
	return a.single(ctx, "get-task", &req)
}

func (a *taskAdapter) CreateTask(ctx context.Context, ownerID string, payload domain.Payload) (domain.Task, error) {
	req := CreateTaskRequest{OwnerID: ownerID, Payload: payload}
	return a.single(ctx, "create-task", &req)
}

func (a *taskAdapter) UpdateTask(ctx context.Context, ownerID, id string, payload domain.Payload) (domain.Task, error) {
	req := UpdateTaskRequest{OwnerID: ownerID, TaskID: id, Payload: payload}
	return a.single(ctx, "update-task", &req)
}

func (a *taskAdapter) SetStatus(ctx context.Context, ownerID, id, status string) (domain.Task, error) {
	req := SetStatusRequest{OwnerID: ownerID, TaskID: id, Status: status}
	return a.single(ctx, "set-task-status", &req)
}

func (a *taskAdapter) DeleteTask(ctx context.Context, ownerID, id string) error {
	req := DeleteTaskRequest{OwnerID: ownerID, TaskID: id}
	var resp DeleteTaskResponse
	if err := a.call(ctx, "delete-task", &req, &resp); err != nil {
		return err
	}
	if resp.Fault != nil {
		return resp.Fault.Err()
	}
	if !resp.Deleted {
		return fmt.Errorf("%w: task %s not deleted", domain.ErrStoreUnavailable, id)
	}
	return nil
}

func (a *taskAdapter) single(ctx context.Context, service string, req any) (domain.Task, error) {
	var resp TaskResponse
	if err := a.call(ctx, service, req, &resp); err != nil {
		return domain.Task{}, err
	}
	if resp.Fault != nil {
		return domain.Task{}, resp.Fault.Err()
	}
	if resp.Task == nil {
		return domain.Task{}, fmt.Errorf("%w: %s returned no task", domain.ErrStoreUnavailable, service)
	}
	return *resp.Task, nil
}
