package broadcast

import (
	"context"
	"fmt"
	"sync"
	"time"

	domain "github.com/example/task-manager/domain/task"
	"github.com/example/task-manager/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// NoticeInvalidated tells a client its task list is stale.
const NoticeInvalidated = "tasks_invalidated"

// Notice is the frame pushed to websocket clients.
type Notice struct {
	Type   string    `json:"type"`
	Reason string    `json:"reason"`
	TaskID string    `json:"task_id"`
	At     time.Time `json:"at"`
}

// Notification is an entry of the owner-visible activity log.
type Notification struct {
	TaskID    string    `json:"task_id"`
	OwnerID   string    `json:"-"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// DefaultLogSize bounds the in-memory notification log.
const DefaultLogSize = 500

// BroadcastModule consumes task events, pushes invalidation notices to the
// owner's websocket connections and keeps a bounded notification log.
type BroadcastModule struct {
	hub       *Hub
	cancelHub context.CancelFunc
	logger    types.Logger

	mu            sync.RWMutex
	notifications []Notification
	logSize       int
}

var (
	_ mono.Module                = (*BroadcastModule)(nil)
	_ mono.EventConsumerModule   = (*BroadcastModule)(nil)
	_ mono.HealthCheckableModule = (*BroadcastModule)(nil)
)

// NewModule creates a new BroadcastModule.
func NewModule(logger types.Logger) *BroadcastModule {
	logger = logger.WithModule("broadcast")
	return &BroadcastModule{
		hub:           NewHub(logger),
		logger:        logger,
		notifications: make([]Notification, 0),
		logSize:       DefaultLogSize,
	}
}

func (m *BroadcastModule) Name() string {
	return "broadcast"
}

// Start runs the hub until Stop.
func (m *BroadcastModule) Start(_ context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelHub = cancel
	go m.hub.Run(ctx)
	m.logger.Info("Broadcast module started, websocket hub running")
	return nil
}

func (m *BroadcastModule) Stop(_ context.Context) error {
	clientCount := m.hub.ClientCount()
	if m.cancelHub != nil {
		m.cancelHub()
		m.hub.Wait()
	}
	m.logger.Info("Broadcast module stopped", "connected_clients", clientCount)
	return nil
}

func (m *BroadcastModule) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connected_clients": m.hub.ClientCount(),
		},
	}
}

func (m *BroadcastModule) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.TaskCreatedV1, m.handleTaskCreated, m,
	); err != nil {
		return fmt.Errorf("failed to register TaskCreated consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.TaskUpdatedV1, m.handleTaskUpdated, m,
	); err != nil {
		return fmt.Errorf("failed to register TaskUpdated consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.TaskStatusChangedV1, m.handleTaskStatusChanged, m,
	); err != nil {
		return fmt.Errorf("failed to register TaskStatusChanged consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.TaskDeletedV1, m.handleTaskDeleted, m,
	); err != nil {
		return fmt.Errorf("failed to register TaskDeleted consumer: %w", err)
	}

	m.logger.Info("Registered event consumers",
		"events", "TaskCreated, TaskUpdated, TaskStatusChanged, TaskDeleted")
	return nil
}

func (m *BroadcastModule) handleTaskCreated(_ context.Context, event events.TaskCreatedEvent, _ *mono.Msg) error {
	m.notify(event.OwnerID, event.TaskID, "task_created", fmt.Sprintf("Task '%s' created", event.Title), event.CreatedAt)
	return nil
}

func (m *BroadcastModule) handleTaskUpdated(_ context.Context, event events.TaskUpdatedEvent, _ *mono.Msg) error {
	m.notify(event.OwnerID, event.TaskID, "task_updated", fmt.Sprintf("Task '%s' updated", event.Title), event.UpdatedAt)
	return nil
}

func (m *BroadcastModule) handleTaskStatusChanged(_ context.Context, event events.TaskStatusChangedEvent, _ *mono.Msg) error {
	m.notify(event.OwnerID, event.TaskID, "task_status_changed",
		fmt.Sprintf("Task moved to %s", domain.Status(event.To).Label()), event.ChangedAt)
	return nil
}

func (m *BroadcastModule) handleTaskDeleted(_ context.Context, event events.TaskDeletedEvent, _ *mono.Msg) error {
	m.notify(event.OwnerID, event.TaskID, "task_deleted", "Task deleted", event.DeletedAt)
	return nil
}

func (m *BroadcastModule) notify(ownerID, taskID, reason, message string, at time.Time) {
	if ownerID == "" {
		m.logger.Warn("Dropping task event without owner", "task_id", taskID, "reason", reason)
		return
	}

	m.logNotification(Notification{
		TaskID:    taskID,
		OwnerID:   ownerID,
		Type:      reason,
		Message:   message,
		Timestamp: at,
	})
	m.hub.Send(ownerID, Notice{
		Type:   NoticeInvalidated,
		Reason: reason,
		TaskID: taskID,
		At:     at,
	})
}

func (m *BroadcastModule) logNotification(n Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.notifications = append(m.notifications, n)
	if over := len(m.notifications) - m.logSize; over > 0 {
		m.notifications = append(m.notifications[:0:0], m.notifications[over:]...)
	}
}

// Notifications returns ownerID's log entries, newest first, at most limit
// of them (all when limit <= 0).
func (m *BroadcastModule) Notifications(ownerID string, limit int) []Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Notification, 0)
	for i := len(m.notifications) - 1; i >= 0; i-- {
		if m.notifications[i].OwnerID != ownerID {
			continue
		}
		result = append(result, m.notifications[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result
}

// GetHub returns the websocket hub for the API module to use.
func (m *BroadcastModule) GetHub() *Hub {
	return m.hub
}
