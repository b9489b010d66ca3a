package cloud

import "time"

// VMInfo is the VM-side view of a container host.
type VMInfo struct {
	ID         string
	AZ         string
	PrivateIP  string
	LaunchTime time.Time
	State      string // e.g. "running", "stopped", "terminated"
}

// Member is an ASG membership record.
type Member struct {
	VMID           string
	AZ             string
	LifecycleState string
}

// Activity is an ASG scaling activity, returned by Detach and
// DescribeActivities.
type Activity struct {
	ID        string
	StartTime time.Time
	Progress  int // 0-100
}

// SchedulerHost is the scheduler-side view of a container host.
type SchedulerHost struct {
	ID               string // scheduler-assigned host id (container-instance ARN)
	VMID             string
	RegisteredCPU    int
	RemainingCPU     int
	RegisteredMemory int
	RemainingMemory  int
}

// LoadBalancerRef identifies a classic LB or a target-group LB attached to
// a service.
type LoadBalancerRef struct {
	ClassicName    string
	TargetGroupARN string
}

// Service is a scheduler-managed long running workload.
type Service struct {
	ID             string
	TaskDefinition string
	DesiredCount   int
	Status         string // "ACTIVE" or other
	LoadBalancers  []LoadBalancerRef
	Events         []Event
}

// Event is one entry in a service's append-only event stream.
type Event struct {
	ID        string
	CreatedAt time.Time
	Message   string
}

// Task is a running instance of a task definition, bound to a host.
type Task struct {
	ID             string
	TaskDefinition string
	HostID         string
}

// TargetGroup describes a target-group LB and its current VM members.
type TargetGroup struct {
	ARN     string
	Members []string // VM ids
}
