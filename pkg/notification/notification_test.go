package notification

import (
	"testing"
	"time"

	"github.com/code-100-precent/LingReader/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogSinkLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))

	sink.Notify(Notification{Kind: "auth-failed", Severity: SeverityError, Lines: []string{"Read aloud", "bad key"}})
	sink.Notify(Notification{Severity: SeverityInfo, Lines: []string{"done"}})

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, "auth-failed", entries[0].ContextMap()["kind"])
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
}

func TestBusSinkPublishes(t *testing.T) {
	bus := events.NewEventBus(zap.NewNop())
	got := make(chan events.Event, 1)
	bus.Subscribe(events.TypeSpeechNotification, func(e events.Event) error { got <- e; return nil })

	NewBusSink(bus).Notify(Notification{Kind: "rate-limited", Severity: SeverityError, Lines: []string{"slow down"}})

	select {
	case e := <-got:
		assert.Equal(t, "rate-limited", e.Data["kind"])
		assert.Equal(t, []string{"slow down"}, e.Data["lines"])
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

func TestMultiAndRecorder(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	var called int
	m := Multi{a, nil, b, SinkFunc(func(Notification) { called++ })}

	m.Notify(Notification{Lines: []string{"one", "two"}})

	assert.Len(t, a.All(), 1)
	assert.Len(t, b.All(), 1)
	assert.Equal(t, 1, called)
	last, ok := a.Last()
	require.True(t, ok)
	assert.Equal(t, "one two", last.Text())

	_, ok = (&Recorder{}).Last()
	assert.False(t, ok)
}
