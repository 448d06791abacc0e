package notification

import (
	"strings"
	"sync"

	"github.com/code-100-precent/LingReader/pkg/events"
	"go.uber.org/zap"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is a user-visible message. Kind carries the error kind
// when the message reports a failure.
type Notification struct {
	Kind     string   `json:"kind,omitempty"`
	Severity Severity `json:"severity"`
	Lines    []string `json:"lines"`
	Session  string   `json:"session,omitempty"`
}

// Text joins the lines for single-line outputs
func (n Notification) Text() string {
	return strings.Join(n.Lines, " ")
}

// Sink receives notifications
type Sink interface {
	Notify(n Notification)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(n Notification)

func (f SinkFunc) Notify(n Notification) { f(n) }

// LogSink writes notifications to a zap logger
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("notification")}
}

func (s *LogSink) Notify(n Notification) {
	fields := []zap.Field{
		zap.String("kind", n.Kind),
		zap.String("session", n.Session),
		zap.Strings("lines", n.Lines),
	}
	switch n.Severity {
	case SeverityError:
		s.logger.Error("notification", fields...)
	case SeverityWarning:
		s.logger.Warn("notification", fields...)
	default:
		s.logger.Info("notification", fields...)
	}
}

// BusSink publishes notifications as speech.notification events
type BusSink struct {
	bus *events.EventBus
}

func NewBusSink(bus *events.EventBus) *BusSink {
	return &BusSink{bus: bus}
}

func (s *BusSink) Notify(n Notification) {
	s.bus.Publish(events.Event{
		Type:   events.TypeSpeechNotification,
		Source: "speech",
		Data: map[string]interface{}{
			"kind":     n.Kind,
			"severity": string(n.Severity),
			"lines":    n.Lines,
			"session":  n.Session,
		},
	})
}

// Multi fans a notification out to every sink
type Multi []Sink

func (m Multi) Notify(n Notification) {
	for _, s := range m {
		if s != nil {
			s.Notify(n)
		}
	}
}

// Recorder keeps every notification; the control API exposes the latest
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

// All returns a copy of everything recorded
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}

// Last returns the most recent notification
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return Notification{}, false
	}
	return r.items[len(r.items)-1], true
}
