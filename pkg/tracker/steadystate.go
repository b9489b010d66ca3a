package tracker

import (
	"context"
	"strings"
	"time"

	"github.com/nimbusops/fleetroll/pkg/cloud"
)

const (
	// SteadyStatePollInterval is how often describeServices is re-polled.
	SteadyStatePollInterval = 10 * time.Second
	// SteadyStateDeadline bounds how long AwaitSteadyState waits before
	// giving up and reporting a timeout.
	SteadyStateDeadline = 600 * time.Second

	steadyStateSubstring = "has reached a steady state"
)

// SteadyStateResult is the outcome of one AwaitSteadyState call.
type SteadyStateResult struct {
	TimedOut bool
	// LastSeenEvent is the newest event observed over the poll, set
	// whether the call succeeded or timed out, so the caller can always
	// advance its cursor.
	LastSeenEvent cloud.Event
	SawEvent      bool
}

// AwaitSteadyState polls sched.DescribeServices([serviceID]) on interval
// until an event strictly newer than cursor contains the steady-state
// substring, or deadline elapses. The caller must advance its cursor to
// LastSeenEvent before awaiting any other service (monotonicity), even on
// timeout.
func AwaitSteadyState(ctx context.Context, sched cloud.Scheduler, serviceID string, cursor cloud.Event, interval, deadline time.Duration) (SteadyStateResult, error) {
	deadlineAt := time.Now().Add(deadline)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var result SteadyStateResult

	poll := func() (bool, error) {
		services, err := sched.DescribeServices(ctx, []string{serviceID})
		if err != nil {
			return false, err
		}
		if len(services) == 0 {
			return false, nil
		}
		for _, ev := range services[0].Events {
			if !ev.CreatedAt.After(result.LastSeenEvent.CreatedAt) {
				continue
			}
			result.LastSeenEvent = ev
			result.SawEvent = true
		}
		for _, ev := range services[0].Events {
			if ev.CreatedAt.After(cursor.CreatedAt) && strings.Contains(ev.Message, steadyStateSubstring) {
				return true, nil
			}
		}
		return false, nil
	}

	if ok, err := poll(); err != nil {
		return result, err
	} else if ok {
		return result, nil
	}

	for {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-ticker.C:
			if time.Now().After(deadlineAt) {
				result.TimedOut = true
				return result, nil
			}
			ok, err := poll()
			if err != nil {
				return result, err
			}
			if ok {
				return result, nil
			}
			if time.Now().After(deadlineAt) {
				result.TimedOut = true
				return result, nil
			}
		}
	}
}
