package task

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/task-manager/events"
	"github.com/example/task-manager/modules/cache"
	"github.com/example/task-manager/modules/store"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// TaskModule exposes the task service to other modules as request-reply
// services and owns the store lifecycle.
type TaskModule struct {
	store       store.Store
	service     *Service
	cachePlugin *cache.PluginModule
	eventBus    mono.EventBus
	logger      types.Logger
}

var (
	_ mono.Module                = (*TaskModule)(nil)
	_ mono.ServiceProviderModule = (*TaskModule)(nil)
	_ mono.EventBusAwareModule   = (*TaskModule)(nil)
	_ mono.EventEmitterModule    = (*TaskModule)(nil)
	_ mono.UsePluginModule       = (*TaskModule)(nil)
	_ mono.HealthCheckableModule = (*TaskModule)(nil)
)

// NewModule creates a task module persisting to st. The store is connected
// in Start and closed in Stop.
func NewModule(st store.Store, logger types.Logger) *TaskModule {
	return &TaskModule{
		store:  st,
		logger: logger.WithModule("task"),
	}
}

func (m *TaskModule) Name() string {
	return "task"
}

// SetPlugin receives the optional cache plugin.
func (m *TaskModule) SetPlugin(alias string, plugin mono.PluginModule) {
	if alias != "cache" {
		return
	}
	cp, ok := plugin.(*cache.PluginModule)
	if !ok {
		m.logger.Error("Invalid plugin type for cache",
			"alias", alias,
			"expected", "*cache.PluginModule")
		return
	}
	m.cachePlugin = cp
	m.logger.Info("Received cache plugin", "alias", alias)
}

func (m *TaskModule) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

func (m *TaskModule) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.TaskCreatedV1.ToBase(),
		events.TaskUpdatedV1.ToBase(),
		events.TaskStatusChangedV1.ToBase(),
		events.TaskDeletedV1.ToBase(),
	}
}

// RegisterServices registers the request-reply services. The framework
// prefixes them with "services.task.".
func (m *TaskModule) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, "list-tasks", json.Unmarshal, json.Marshal, m.handleListTasks,
	); err != nil {
		return fmt.Errorf("failed to register list-tasks service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "get-task", json.Unmarshal, json.Marshal, m.handleGetTask,
	); err != nil {
		return fmt.Errorf("failed to register get-task service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "create-task", json.Unmarshal, json.Marshal, m.handleCreateTask,
	); err != nil {
		return fmt.Errorf("failed to register create-task service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "update-task", json.Unmarshal, json.Marshal, m.handleUpdateTask,
	); err != nil {
		return fmt.Errorf("failed to register update-task service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "set-task-status", json.Unmarshal, json.Marshal, m.handleSetStatus,
	); err != nil {
		return fmt.Errorf("failed to register set-task-status service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "delete-task", json.Unmarshal, json.Marshal, m.handleDeleteTask,
	); err != nil {
		return fmt.Errorf("failed to register delete-task service: %w", err)
	}

	m.logger.Info("Registered services",
		"services", "list-tasks, get-task, create-task, update-task, set-task-status, delete-task")
	return nil
}

// Start connects the store and builds the service.
func (m *TaskModule) Start(ctx context.Context) error {
	if err := m.store.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect task store: %w", err)
	}

	var opts []Option
	if m.cachePlugin != nil && m.cachePlugin.Port() != nil {
		opts = append(opts, WithCache(m.cachePlugin.Port()))
	}
	if m.eventBus != nil {
		opts = append(opts, WithPublisher(NewBusPublisher(m.eventBus)))
	} else {
		m.logger.Warn("EventBus not set, task events will not be published")
	}

	m.service = NewService(m.store, m.logger, opts...)
	m.logger.Info("Task module started",
		"driver", m.store.Driver(),
		"cache", m.cachePlugin != nil)
	return nil
}

// Stop closes the store.
func (m *TaskModule) Stop(_ context.Context) error {
	if err := m.store.Close(); err != nil {
		return fmt.Errorf("failed to close task store: %w", err)
	}
	m.logger.Info("Task module stopped")
	return nil
}

func (m *TaskModule) Health(ctx context.Context) mono.HealthStatus {
	if err := m.store.Ping(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("task store unavailable: %v", err),
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"driver": m.store.Driver(),
		},
	}
}

// Service returns the task service. It is nil until Start.
func (m *TaskModule) Service() *Service {
	return m.service
}
