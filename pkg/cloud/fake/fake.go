// Package fake provides in-memory implementations of the pkg/cloud
// capability interfaces for deterministic tests.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/nimbusops/fleetroll/pkg/cloud"
)

// VM is an in-memory cloud.VM.
type VM struct {
	mu    sync.Mutex
	Infos map[string]cloud.VMInfo

	StoppedIDs    []string
	TerminatedIDs []string
}

func NewVM() *VM {
	return &VM{Infos: make(map[string]cloud.VMInfo)}
}

func (v *VM) Describe(_ context.Context, ids []string) (map[string]cloud.VMInfo, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]cloud.VMInfo, len(ids))
	for _, id := range ids {
		if info, ok := v.Infos[id]; ok {
			out[id] = info
		}
	}
	return out, nil
}

func (v *VM) StopAndAwait(_ context.Context, ids []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.StoppedIDs = append(v.StoppedIDs, ids...)
	for _, id := range ids {
		if info, ok := v.Infos[id]; ok {
			info.State = "stopped"
			v.Infos[id] = info
		}
	}
	return nil
}

func (v *VM) TerminateAndAwait(_ context.Context, ids []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.TerminatedIDs = append(v.TerminatedIDs, ids...)
	for _, id := range ids {
		if info, ok := v.Infos[id]; ok {
			info.State = "terminated"
			v.Infos[id] = info
		}
	}
	return nil
}

// ASG is an in-memory cloud.ASG. ReplacementsByDetached simulates an ASG
// launching a new member after a Detach call for a VM id it lists.
type ASG struct {
	mu      sync.Mutex
	Members []cloud.Member

	// ReplacementsByDetached maps a detached VM id to the replacement
	// Member that DescribeMembers includes once that VM id has been
	// detached and more than AppearAfterCalls DescribeMembers calls have
	// been made in total (counted from construction, including calls made
	// before the detach).
	ReplacementsByDetached map[string]cloud.Member
	AppearAfterCalls       int

	detachCalls    int
	describeCalls  int
	DetachedVMIDs  []string
	DecrementFlags []bool
	Activities     []cloud.Activity
}

func NewASG(members []cloud.Member) *ASG {
	return &ASG{Members: members, ReplacementsByDetached: make(map[string]cloud.Member)}
}

func (a *ASG) DescribeMembers(_ context.Context) ([]cloud.Member, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.describeCalls++

	members := make([]cloud.Member, len(a.Members))
	copy(members, a.Members)

	if a.describeCalls > a.AppearAfterCalls {
		for _, detached := range a.DetachedVMIDs {
			if repl, ok := a.ReplacementsByDetached[detached]; ok {
				found := false
				for _, m := range members {
					if m.VMID == repl.VMID {
						found = true
						break
					}
				}
				if !found {
					members = append(members, repl)
				}
			}
		}
	}
	return members, nil
}

func (a *ASG) Detach(_ context.Context, vmIDs []string, decrementDesired bool) ([]cloud.Activity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.detachCalls++
	a.DetachedVMIDs = append(a.DetachedVMIDs, vmIDs...)
	a.DecrementFlags = append(a.DecrementFlags, decrementDesired)

	remaining := a.Members[:0:0]
	for _, m := range a.Members {
		keep := true
		for _, id := range vmIDs {
			if m.VMID == id {
				keep = false
				break
			}
		}
		if keep {
			remaining = append(remaining, m)
		}
	}
	a.Members = remaining

	activity := cloud.Activity{ID: "activity", StartTime: time.Now(), Progress: 100}
	a.Activities = append(a.Activities, activity)
	return []cloud.Activity{activity}, nil
}

func (a *ASG) DescribeActivities(_ context.Context) ([]cloud.Activity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]cloud.Activity, len(a.Activities))
	copy(out, a.Activities)
	return out, nil
}

// Scheduler is an in-memory cloud.Scheduler.
type Scheduler struct {
	mu sync.Mutex

	Hosts    map[string]cloud.SchedulerHost
	Services map[string]cloud.Service
	Tasks    map[string]cloud.Task

	DeregisteredHosts []string
	ActiveHostIDs     []string

	// SteadyStateAtCall makes DescribeServices append a steady-state event
	// to each service's Events starting on the Nth call (1-indexed), the
	// way a real deployment settles a few polls after a host is drained.
	SteadyStateAtCall int
	describeCalls     int
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		Hosts:    make(map[string]cloud.SchedulerHost),
		Services: make(map[string]cloud.Service),
		Tasks:    make(map[string]cloud.Task),
	}
}

func (s *Scheduler) ListHosts(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.Hosts))
	for id := range s.Hosts {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Scheduler) DescribeHosts(_ context.Context, ids []string) ([]cloud.SchedulerHost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]cloud.SchedulerHost, 0, len(ids))
	for _, id := range ids {
		if h, ok := s.Hosts[id]; ok {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *Scheduler) ListServices(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.Services))
	for id := range s.Services {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Scheduler) DescribeServices(_ context.Context, ids []string) ([]cloud.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.describeCalls++

	out := make([]cloud.Service, 0, len(ids))
	for _, id := range ids {
		svc, ok := s.Services[id]
		if !ok {
			continue
		}
		if s.SteadyStateAtCall > 0 && s.describeCalls >= s.SteadyStateAtCall {
			svc.Events = append(svc.Events, cloud.Event{
				ID:        svc.ID + "-steady",
				CreatedAt: time.Now(),
				Message:   "service " + svc.ID + " has reached a steady state.",
			})
		}
		out = append(out, svc)
	}
	return out, nil
}

func (s *Scheduler) ListTasks(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.Tasks))
	for id := range s.Tasks {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Scheduler) DescribeTasks(_ context.Context, ids []string) ([]cloud.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]cloud.Task, 0, len(ids))
	for _, id := range ids {
		if t, ok := s.Tasks[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Scheduler) DeregisterHost(_ context.Context, id string, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Hosts, id)
	s.DeregisteredHosts = append(s.DeregisteredHosts, id)
	return nil
}

func (s *Scheduler) ListActiveHosts(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.ActiveHostIDs))
	copy(out, s.ActiveHostIDs)
	return out, nil
}

// LBClassic is an in-memory cloud.LBClassic.
type LBClassic struct {
	mu           sync.Mutex
	Members      map[string][]string // load balancer name -> member VM ids
	Deregistered []string
}

func NewLBClassic() *LBClassic {
	return &LBClassic{Members: make(map[string][]string)}
}

func (l *LBClassic) Deregister(_ context.Context, name string, vmIDs []string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Deregistered = append(l.Deregistered, vmIDs...)

	members := l.Members[name]
	remaining := members[:0:0]
	for _, m := range members {
		keep := true
		for _, id := range vmIDs {
			if m == id {
				keep = false
				break
			}
		}
		if keep {
			remaining = append(remaining, m)
		}
	}
	l.Members[name] = remaining
	out := make([]string, len(remaining))
	copy(out, remaining)
	return out, nil
}

func (l *LBClassic) LoadBalancersWithInstance(_ context.Context, vmID string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var names []string
	for name, members := range l.Members {
		for _, m := range members {
			if m == vmID {
				names = append(names, name)
				break
			}
		}
	}
	return names, nil
}

// LBTarget is an in-memory cloud.LBTarget.
type LBTarget struct {
	mu     sync.Mutex
	Groups []cloud.TargetGroup

	// DeregisterErrs injects a failure for DeregisterTargets on a specific
	// target group ARN.
	DeregisterErrs map[string]error

	DeregisteredTargets []string
}

func NewLBTarget(groups []cloud.TargetGroup) *LBTarget {
	return &LBTarget{Groups: groups, DeregisterErrs: make(map[string]error)}
}

func (l *LBTarget) DeregisterTargets(_ context.Context, arn string, vmIDs []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.DeregisterErrs[arn]; err != nil {
		return err
	}
	l.DeregisteredTargets = append(l.DeregisteredTargets, vmIDs...)

	for i, g := range l.Groups {
		if g.ARN != arn {
			continue
		}
		remaining := g.Members[:0:0]
		for _, m := range g.Members {
			keep := true
			for _, id := range vmIDs {
				if m == id {
					keep = false
					break
				}
			}
			if keep {
				remaining = append(remaining, m)
			}
		}
		l.Groups[i].Members = remaining
	}
	return nil
}

func (l *LBTarget) DescribeTargetGroups(_ context.Context) ([]cloud.TargetGroup, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]cloud.TargetGroup, len(l.Groups))
	copy(out, l.Groups)
	return out, nil
}

// RemoteExec is an in-memory cloud.RemoteExec. Results maps a vmID+command
// key (joined with a null byte) to the canned outcome; an unset key
// succeeds by default.
type RemoteExec struct {
	mu      sync.Mutex
	Results map[string]bool
	Errors  map[string]error
	Calls   []string
}

func NewRemoteExec() *RemoteExec {
	return &RemoteExec{Results: make(map[string]bool), Errors: make(map[string]error)}
}

func resultKey(vmID, command string) string {
	return vmID + "\x00" + command
}

// SetResult configures the outcome of Run for a specific vmID+command pair.
func (r *RemoteExec) SetResult(vmID, command string, ok bool, err error) {
	key := resultKey(vmID, command)
	r.Results[key] = ok
	if err != nil {
		r.Errors[key] = err
	}
}

func (r *RemoteExec) Run(_ context.Context, vmID string, command string, _ time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := resultKey(vmID, command)
	r.Calls = append(r.Calls, key)
	if err, ok := r.Errors[key]; ok {
		return false, err
	}
	if ok, set := r.Results[key]; set {
		return ok, nil
	}
	return true, nil
}
