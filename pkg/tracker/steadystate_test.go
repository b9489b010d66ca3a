package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nimbusops/fleetroll/pkg/cloud"
	"github.com/nimbusops/fleetroll/pkg/cloud/fake"
)

func TestAwaitSteadyStateSucceeds(t *testing.T) {
	sched := fake.NewScheduler()
	sched.Services["svc-a"] = cloud.Service{ID: "svc-a"}
	sched.SteadyStateAtCall = 2 // appears on the second poll

	cursor := cloud.Event{CreatedAt: time.Now().Add(-time.Hour)}
	result, err := AwaitSteadyState(context.Background(), sched, "svc-a", cursor, 5*time.Millisecond, time.Second)
	require.NoError(t, err)
	require.False(t, result.TimedOut)
	require.True(t, result.SawEvent)
	require.Contains(t, result.LastSeenEvent.Message, "has reached a steady state")
}

func TestAwaitSteadyStateTimesOut(t *testing.T) {
	sched := fake.NewScheduler()
	sched.Services["svc-a"] = cloud.Service{ID: "svc-a"}
	// SteadyStateAtCall left at zero: the event never appears.

	cursor := cloud.Event{CreatedAt: time.Now().Add(-time.Hour)}
	result, err := AwaitSteadyState(context.Background(), sched, "svc-a", cursor, 5*time.Millisecond, 30*time.Millisecond)
	require.NoError(t, err)
	require.True(t, result.TimedOut)
}

func TestAwaitSteadyStateIgnoresEventsBeforeCursor(t *testing.T) {
	sched := fake.NewScheduler()
	past := time.Now().Add(-time.Hour)
	sched.Services["svc-a"] = cloud.Service{
		ID: "svc-a",
		Events: []cloud.Event{
			{ID: "stale", CreatedAt: past, Message: "service svc-a has reached a steady state."},
		},
	}
	cursor := cloud.Event{CreatedAt: time.Now()} // cursor is newer than the stale event

	result, err := AwaitSteadyState(context.Background(), sched, "svc-a", cursor, 5*time.Millisecond, 20*time.Millisecond)
	require.NoError(t, err)
	require.True(t, result.TimedOut)
}
