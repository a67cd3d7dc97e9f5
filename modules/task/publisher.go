package task

import (
	"github.com/example/task-manager/events"
	"github.com/go-monolith/mono"
)

// EventPublisher emits the success signal of each task mutation.
type EventPublisher interface {
	PublishCreated(event events.TaskCreatedEvent) error
	PublishUpdated(event events.TaskUpdatedEvent) error
	PublishStatusChanged(event events.TaskStatusChangedEvent) error
	PublishDeleted(event events.TaskDeletedEvent) error
}

// busPublisher publishes typed task events on the mono event bus.
type busPublisher struct {
	bus mono.EventBus
}

// NewBusPublisher creates an EventPublisher backed by the framework event bus.
func NewBusPublisher(bus mono.EventBus) EventPublisher {
	return &busPublisher{bus: bus}
}

func (p *busPublisher) PublishCreated(event events.TaskCreatedEvent) error {
	return events.TaskCreatedV1.Publish(p.bus, event, nil)
}

func (p *busPublisher) PublishUpdated(event events.TaskUpdatedEvent) error {
	return events.TaskUpdatedV1.Publish(p.bus, event, nil)
}

func (p *busPublisher) PublishStatusChanged(event events.TaskStatusChangedEvent) error {
	return events.TaskStatusChangedV1.Publish(p.bus, event, nil)
}

func (p *busPublisher) PublishDeleted(event events.TaskDeletedEvent) error {
	return events.TaskDeletedV1.Publish(p.bus, event, nil)
}
