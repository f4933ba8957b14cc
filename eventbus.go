package koseki

import "reflect"

// EventBus is a synchronous, type-keyed event bus. Systems and tooling
// subscribe to concrete event types; the core publishes entity lifecycle
// events without knowing subscriber identity.
type EventBus struct {
	handlers map[reflect.Type][]any
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{handlers: make(map[reflect.Type][]any)}
}

// Subscribe registers a handler for events of type T. Handlers run
// synchronously in subscription order when a matching event is published.
func Subscribe[T any](bus *EventBus, handler func(T)) {
	t := reflect.TypeFor[T]()
	bus.handlers[t] = append(bus.handlers[t], handler)
}

// Publish delivers the event to every handler registered for its type.
// Publishing a type with no subscribers is a no-op.
func Publish[T any](bus *EventBus, event T) {
	for _, h := range bus.handlers[reflect.TypeFor[T]()] {
		h.(func(T))(event)
	}
}

// EntityCreatedEvent is published after an entity is fully registered in all
// indexes.
type EntityCreatedEvent struct {
	Entity *Entity
}

// EntityDestroyedEvent is published after an entity has been removed from
// all indexes and its identifiers released. The Entity pointer remains
// usable for reading the final state but is no longer tracked anywhere.
type EntityDestroyedEvent struct {
	Entity *Entity
	Handle EntityID
}
