package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nimbusops/fleetroll/pkg/cloud"
)

func TestMapHostServicesDedupesAndIgnoresAdHocTasks(t *testing.T) {
	services := []cloud.Service{
		{ID: "svc-a", TaskDefinition: "def-a"},
		{ID: "svc-b", TaskDefinition: "def-b"},
	}
	tasks := []cloud.Task{
		{ID: "t1", TaskDefinition: "def-a", HostID: "host-1"},
		{ID: "t2", TaskDefinition: "def-a", HostID: "host-1"}, // duplicate service on same host
		{ID: "t3", TaskDefinition: "def-b", HostID: "host-1"},
		{ID: "t4", TaskDefinition: "def-unknown", HostID: "host-1"}, // ad-hoc, ignored
	}

	snap := TakeSnapshot(services, tasks)
	require.ElementsMatch(t, []string{"svc-a", "svc-b"}, snap.HostServices["host-1"])
}

func TestMapHostServicesIdempotent(t *testing.T) {
	services := []cloud.Service{{ID: "svc-a", TaskDefinition: "def-a"}}
	tasks := []cloud.Task{{ID: "t1", TaskDefinition: "def-a", HostID: "host-1"}}

	first := mapHostServices(services, tasks)
	second := mapHostServices(services, tasks)
	require.Equal(t, first, second)
}

func TestCursorIsLatestEvent(t *testing.T) {
	now := time.Now()
	services := []cloud.Service{{
		ID: "svc-a",
		Events: []cloud.Event{
			{ID: "e2", CreatedAt: now.Add(2 * time.Second)},
			{ID: "e1", CreatedAt: now.Add(1 * time.Second)},
		},
	}}
	snap := TakeSnapshot(services, nil)
	require.Equal(t, "e2", snap.Cursors["svc-a"].ID)
}
