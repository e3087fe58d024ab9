// internal/events/bus.go
package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"device-dispatch/internal/model"
)

// AllEvents subscribes to every event type
const AllEvents model.EventType = "*"

// Bus fans command lifecycle events out to subscribers
type Bus struct {
	subscribers map[model.EventType]map[int]chan model.CommandEvent
	nextID      int
	events      chan model.CommandEvent
	mutex       sync.RWMutex
	logger      *zap.Logger
}

// NewBus creates a new event bus with the given publish buffer
func NewBus(buffer int, logger *zap.Logger) *Bus {
	if buffer < 1 {
		buffer = 1000
	}
	return &Bus{
		subscribers: make(map[model.EventType]map[int]chan model.CommandEvent),
		events:      make(chan model.CommandEvent, buffer),
		logger:      logger,
	}
}

// Run distributes events until ctx is done
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-b.events:
			b.distribute(event)
		}
	}
}

// Publish queues an event without blocking. Events are dropped when the
// buffer is full.
func (b *Bus) Publish(event model.CommandEvent) {
	select {
	case b.events <- event:
	default:
		b.logger.Warn("Event bus full, dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("device_id", event.DeviceID),
		)
	}
}

// Subscribe returns a channel receiving events of eventType (or AllEvents)
// and a function that removes the subscription
func (b *Bus) Subscribe(eventType model.EventType) (<-chan model.CommandEvent, func()) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan model.CommandEvent, 100)
	if b.subscribers[eventType] == nil {
		b.subscribers[eventType] = make(map[int]chan model.CommandEvent)
	}
	b.subscribers[eventType][id] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mutex.Lock()
			defer b.mutex.Unlock()
			delete(b.subscribers[eventType], id)
			close(ch)
		})
	}
	return ch, unsubscribe
}

// distribute delivers to type subscribers and wildcard subscribers. Slow
// subscribers miss events rather than stall the bus.
func (b *Bus) distribute(event model.CommandEvent) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	for _, key := range []model.EventType{event.Type, AllEvents} {
		for _, ch := range b.subscribers[key] {
			select {
			case ch <- event:
			default:
			}
		}
	}
}
