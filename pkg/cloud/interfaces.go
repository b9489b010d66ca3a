// Package cloud defines the six capability interfaces the rollover engine
// drives: VM, ASG, Scheduler, LBClassic, LBTarget and RemoteExec. The
// interfaces are the contract; concrete implementations live in the
// sibling *_aws.go and remoteexec_ssh.go files and are thin shims over an SDK client,
// never exercised by pkg/engine directly except through these interfaces.
package cloud

import (
	"context"
	"time"
)

// VM manages the lifecycle of the virtual machines backing container hosts.
type VM interface {
	// Describe returns VM-side info for the given VM ids, keyed by id.
	Describe(ctx context.Context, ids []string) (map[string]VMInfo, error)
	// StopAndAwait stops the given VMs and blocks until each reaches the
	// stopped lifecycle state.
	StopAndAwait(ctx context.Context, ids []string) error
	// TerminateAndAwait terminates the given VMs and blocks until each
	// reaches the terminated lifecycle state.
	TerminateAndAwait(ctx context.Context, ids []string) error
}

// ASG manages the auto-scaling group backing a cluster's hosts.
type ASG interface {
	// DescribeMembers returns the current ASG membership.
	DescribeMembers(ctx context.Context) ([]Member, error)
	// Detach removes the given VM ids from the ASG. decrementDesired
	// controls whether the ASG's desired capacity is decremented (true for
	// scale-down, false for rollover, where a replacement is expected).
	Detach(ctx context.Context, vmIDs []string, decrementDesired bool) ([]Activity, error)
	// DescribeActivities returns recent scaling activities.
	DescribeActivities(ctx context.Context) ([]Activity, error)
}

// Scheduler queries and mutates the managed container scheduler (hosts,
// services, tasks).
type Scheduler interface {
	ListHosts(ctx context.Context) ([]string, error)
	DescribeHosts(ctx context.Context, ids []string) ([]SchedulerHost, error)
	ListServices(ctx context.Context) ([]string, error)
	DescribeServices(ctx context.Context, ids []string) ([]Service, error)
	ListTasks(ctx context.Context) ([]string, error)
	DescribeTasks(ctx context.Context, ids []string) ([]Task, error)
	// DeregisterHost deregisters the scheduler host id. force=true
	// deregisters even hosts with tasks still running, orphaning them for
	// rescheduling.
	DeregisterHost(ctx context.Context, id string, force bool) error
	// ListActiveHosts returns ids of hosts currently registered and active.
	ListActiveHosts(ctx context.Context) ([]string, error)
}

// LBClassic manages classic (EC2-Classic style) load balancer membership.
type LBClassic interface {
	// Deregister removes vmIDs from the named classic LB and returns the
	// VM ids still registered afterward.
	Deregister(ctx context.Context, name string, vmIDs []string) ([]string, error)
	// LoadBalancersWithInstance returns the names of every classic LB that
	// currently has vmID registered, for callers that weren't given an
	// explicit load balancer name to target.
	LoadBalancersWithInstance(ctx context.Context, vmID string) ([]string, error)
}

// LBTarget manages target-group (ALB/NLB) load balancer membership.
type LBTarget interface {
	DeregisterTargets(ctx context.Context, arn string, vmIDs []string) error
	DescribeTargetGroups(ctx context.Context) ([]TargetGroup, error)
}

// RemoteExec executes a shell command on a VM out-of-band (SSH or a
// cloud-side run-command facility) and reports success.
type RemoteExec interface {
	// Run executes command on the VM identified by vmID (or its address,
	// depending on implementation), bounded by timeout. Returns true iff
	// the command exited zero.
	Run(ctx context.Context, vmID string, command string, timeout time.Duration) (bool, error)
}
