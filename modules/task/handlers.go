package task

import (
	"context"

	domain "github.com/example/task-manager/domain/task"
	"github.com/go-monolith/mono"
)

// Request-reply handlers never return a transport error for a domain
// failure; the failure travels as a Fault in the response.

func (m *TaskModule) handleListTasks(ctx context.Context, req ListTasksRequest, _ *mono.Msg) (ListTasksResponse, error) {
	tasks, err := m.service.ListTasks(ctx, req.OwnerID, domain.ParseFilter(req.Status))
	if err != nil {
		return ListTasksResponse{Tasks: []domain.Task{}, Fault: faultFrom(err)}, nil
	}
	return ListTasksResponse{Tasks: tasks, Total: len(tasks)}, nil
}

func (m *TaskModule) handleGetTask(ctx context.Context, req GetTaskRequest, _ *mono.Msg) (TaskResponse, error) {
	return taskResponse(m.service.GetTask(ctx, req.OwnerID, req.TaskID))
}

func (m *TaskModule) handleCreateTask(ctx context.Context, req CreateTaskRequest, _ *mono.Msg) (TaskResponse, error) {
	return taskResponse(m.service.CreateTask(ctx, req.OwnerID, req.Payload))
}

func (m *TaskModule) handleUpdateTask(ctx context.Context, req UpdateTaskRequest, _ *mono.Msg) (TaskResponse, error) {
	return taskResponse(m.service.UpdateTask(ctx, req.OwnerID, req.TaskID, req.Payload))
}

func (m *TaskModule) handleSetStatus(ctx context.Context, req SetStatusRequest, _ *mono.Msg) (TaskResponse, error) {
	return taskResponse(m.service.SetStatus(ctx, req.OwnerID, req.TaskID, req.Status))
}

func (m *TaskModule) handleDeleteTask(ctx context.Context, req DeleteTaskRequest, _ *mono.Msg) (DeleteTaskResponse, error) {
	if err := m.service.DeleteTask(ctx, req.OwnerID, req.TaskID); err != nil {
		return DeleteTaskResponse{Deleted: false, Fault: faultFrom(err)}, nil
	}
	return DeleteTaskResponse{Deleted: true}, nil
}

func taskResponse(t domain.Task, err error) (TaskResponse, error) {
	if err != nil {
		return TaskResponse{Fault: faultFrom(err)}, nil
	}
	return TaskResponse{Task: &t}, nil
}
