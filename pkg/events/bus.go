package events

import (
	"sync"
	"time"

	"github.com/code-100-precent/LingReader/pkg/logger"
	"go.uber.org/zap"
)

// Speech event types
const (
	TypeSpeechState        = "speech.state"        // session state transitions
	TypeSpeechSection      = "speech.section"      // a section started playing
	TypeSpeechNotification = "speech.notification" // user-visible error messages
	Wildcard               = "*"
)

// Event system event
type Event struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Source    string                 `json:"source"`
}

// EventHandler event handler function
type EventHandler func(event Event) error

// EventBus delivers events to subscribers asynchronously
type EventBus struct {
	handlers       map[string][]EventHandler
	publishedTypes map[string]time.Time
	mu             sync.RWMutex
	logger         *zap.Logger
}

var globalEventBus *EventBus
var once sync.Once

// NewEventBus creates a standalone bus
func NewEventBus(lg *zap.Logger) *EventBus {
	return &EventBus{
		handlers:       make(map[string][]EventHandler),
		publishedTypes: make(map[string]time.Time),
		logger:         logger.Named(lg, "events"),
	}
}

// GetEventBus gets global event bus instance
func GetEventBus() *EventBus {
	once.Do(func() {
		globalEventBus = NewEventBus(nil)
	})
	return globalEventBus
}

// Subscribe registers handler for eventType; "*" receives everything
func (bus *EventBus) Subscribe(eventType string, handler EventHandler) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.handlers[eventType] = append(bus.handlers[eventType], handler)
	bus.logger.Debug("event handler subscribed", zap.String("eventType", eventType))
}

// Unsubscribe removes all handlers for the type
func (bus *EventBus) Unsubscribe(eventType string) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	delete(bus.handlers, eventType)
}

// Publish publishes an event
func (bus *EventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	bus.mu.Lock()
	if _, exists := bus.publishedTypes[event.Type]; !exists {
		bus.publishedTypes[event.Type] = event.Timestamp
	}
	all := make([]EventHandler, 0, len(bus.handlers[event.Type])+len(bus.handlers[Wildcard]))
	all = append(all, bus.handlers[event.Type]...)
	if event.Type != Wildcard {
		all = append(all, bus.handlers[Wildcard]...)
	}
	bus.mu.Unlock()

	if len(all) == 0 {
		return
	}

	for _, handler := range all {
		go func(h EventHandler) {
			if err := h(event); err != nil {
				bus.logger.Warn("event handler failed",
					zap.String("eventType", event.Type),
					zap.Error(err))
			}
		}(handler)
	}
}

// GetPublishedEventTypes gets all published event types
func (bus *EventBus) GetPublishedEventTypes() map[string]time.Time {
	bus.mu.RLock()
	defer bus.mu.RUnlock()

	result := make(map[string]time.Time, len(bus.publishedTypes))
	for k, v := range bus.publishedTypes {
		result[k] = v
	}
	return result
}

// PublishEvent convenience method: publish on the global bus
func PublishEvent(eventType string, data map[string]interface{}, source string) {
	GetEventBus().Publish(Event{
		Type:   eventType,
		Data:   data,
		Source: source,
	})
}
