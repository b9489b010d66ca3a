package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memorySink struct {
	events []*Event
	closed bool
}

func (m *memorySink) Write(event *Event) error {
	m.events = append(m.events, event)
	return nil
}

func (m *memorySink) Close() error {
	m.closed = true
	return nil
}

func TestLogFillsDefaultsAndFansOutToSinks(t *testing.T) {
	sink := &memorySink{}
	l := New(&Config{Enabled: true, DefaultActor: "fleetroll", Sinks: []EventSink{sink}})

	l.Log(context.Background(), &Event{EventType: EventHostDetached, Message: "host detached"})

	require.Len(t, sink.events, 1)
	got := sink.events[0]
	require.Equal(t, CategoryHost, got.Category)
	require.Equal(t, SeverityInfo, got.Severity)
	require.Equal(t, "fleetroll", got.Actor)
	require.False(t, got.Timestamp.IsZero())
}

func TestLogSkipsDisabledLogger(t *testing.T) {
	sink := &memorySink{}
	l := New(&Config{Enabled: false, Sinks: []EventSink{sink}})

	l.Log(context.Background(), &Event{EventType: EventHostDetached})
	require.Empty(t, sink.events)

	l.Enable()
	l.Log(context.Background(), &Event{EventType: EventHostDetached})
	require.Len(t, sink.events, 1)

	l.Disable()
	require.False(t, l.IsEnabled())
}

func TestSeverityDerivedFromFailureEventTypes(t *testing.T) {
	sink := &memorySink{}
	l := New(&Config{Enabled: true, Sinks: []EventSink{sink}})

	l.LogReplacementTimedOut(context.Background(), "host-1", 5*time.Minute)
	require.Len(t, sink.events, 1)
	require.Equal(t, EventReplacementTimedOut, sink.events[0].EventType)
	require.Equal(t, SeverityError, sink.events[0].Severity)

	l.LogShutdownSkipped(context.Background(), "host-1", "container stop preflight failed")
	require.Len(t, sink.events, 2)
	require.Equal(t, SeverityWarning, sink.events[1].Severity)
}

func TestCloseClosesEverySink(t *testing.T) {
	sink := &memorySink{}
	l := New(&Config{Enabled: true, Sinks: []EventSink{sink}})
	require.NoError(t, l.Close())
	require.True(t, sink.closed)
}
