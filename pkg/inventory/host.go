// Package inventory joins scheduler-side and VM-side views of a cluster's
// container hosts into a single Host record, ready for sorting and
// selection before a scale decision.
package inventory

import (
	"context"
	"math"
	"time"

	"github.com/nimbusops/fleetroll/pkg/cloud"
)

// UnknownUtilization is the sentinel reported when registered capacity is
// missing or non-positive.
const UnknownUtilization = -1

// Host is a point-in-time join of scheduler and VM data for one container
// host. Snapshots are never assumed live by callers.
type Host struct {
	ID         string // scheduler-assigned host id (e.g. container instance ARN)
	VMID       string
	AZ         string
	PrivateIP  string
	LaunchTime time.Time
	CPUPercent int
	MemPercent int

	// NotInASG is set by selection.BuildPlan once the current ASG
	// membership is known; Snapshot itself has no ASG view and leaves it
	// at its zero value (false, i.e. assumed an ASG member) until a plan
	// is built. A host with NotInASG == true is deregistered and
	// terminated without an awaited replacement.
	NotInASG bool
}

// Snapshot joins Scheduler.describeHosts with VM.describe over every host
// currently registered with the scheduler.
func Snapshot(ctx context.Context, sched cloud.Scheduler, vm cloud.VM) ([]Host, error) {
	hostIDs, err := sched.ListHosts(ctx)
	if err != nil {
		return nil, err
	}
	schedHosts, err := sched.DescribeHosts(ctx, hostIDs)
	if err != nil {
		return nil, err
	}

	vmIDs := make([]string, 0, len(schedHosts))
	for _, sh := range schedHosts {
		vmIDs = append(vmIDs, sh.VMID)
	}
	vmInfos, err := vm.Describe(ctx, vmIDs)
	if err != nil {
		return nil, err
	}

	hosts := make([]Host, 0, len(schedHosts))
	for _, sh := range schedHosts {
		info := vmInfos[sh.VMID]
		hosts = append(hosts, Host{
			ID:         sh.ID,
			VMID:       sh.VMID,
			AZ:         info.AZ,
			PrivateIP:  info.PrivateIP,
			LaunchTime: info.LaunchTime,
			CPUPercent: utilization(sh.RegisteredCPU, sh.RemainingCPU),
			MemPercent: utilization(sh.RegisteredMemory, sh.RemainingMemory),
		})
	}
	return hosts, nil
}

// utilization computes ceil(100*(1 - remaining/registered)), or the
// UnknownUtilization sentinel when registered capacity is missing or
// non-positive.
func utilization(registered, remaining int) int {
	if registered <= 0 {
		return UnknownUtilization
	}
	pct := 100.0 * (1.0 - float64(remaining)/float64(registered))
	return int(math.Ceil(pct))
}
