// Package tracker snapshots services and tasks, maps hosts to the
// services running on them, and detects when a service has settled after
// a host is drained by polling ECS service events against a deadline.
package tracker

import (
	"sort"

	"github.com/nimbusops/fleetroll/pkg/cloud"
)

// Snapshot is a point-in-time view of services and tasks, with the
// derived host->services map and per-service event cursors.
type Snapshot struct {
	Services     []cloud.Service
	HostServices map[string][]string    // host id -> service ids (deduplicated)
	Cursors      map[string]cloud.Event // service id -> latest observed event
}

// TakeSnapshot builds a Snapshot from a fresh services and tasks listing.
func TakeSnapshot(services []cloud.Service, tasks []cloud.Task) Snapshot {
	snap := Snapshot{
		Services:     services,
		HostServices: mapHostServices(services, tasks),
		Cursors:      make(map[string]cloud.Event),
	}
	for _, s := range services {
		if cursor, ok := latestEvent(s.Events); ok {
			snap.Cursors[s.ID] = cursor
		}
	}
	return snap
}

// mapHostServices builds host->services from a service/task snapshot:
// first the taskDef->serviceId map, then one pass over tasks appending the
// owning service id to its host's set, deduplicated. Tasks whose
// task-definition matches no service are ad-hoc/startup tasks and are
// ignored. Running this twice on the same snapshot yields the same result
// with no duplicates (idempotent).
func mapHostServices(services []cloud.Service, tasks []cloud.Task) map[string][]string {
	defToService := make(map[string]string, len(services))
	for _, s := range services {
		defToService[s.TaskDefinition] = s.ID
	}

	out := make(map[string][]string)
	seen := make(map[string]map[string]bool) // host -> service -> present

	for _, t := range tasks {
		svcID, ok := defToService[t.TaskDefinition]
		if !ok {
			continue
		}
		if seen[t.HostID] == nil {
			seen[t.HostID] = make(map[string]bool)
		}
		if seen[t.HostID][svcID] {
			continue
		}
		seen[t.HostID][svcID] = true
		out[t.HostID] = append(out[t.HostID], svcID)
	}
	return out
}

// latestEvent returns the event with the greatest createdAt, used as the
// cursor at snapshot time.
func latestEvent(events []cloud.Event) (cloud.Event, bool) {
	if len(events) == 0 {
		return cloud.Event{}, false
	}
	sorted := make([]cloud.Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	return sorted[len(sorted)-1], true
}
