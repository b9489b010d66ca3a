package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nimbusops/fleetroll/pkg/cloud"
	"github.com/nimbusops/fleetroll/pkg/cloud/fake"
)

func TestSnapshotJoinsSchedulerAndVMData(t *testing.T) {
	sched := fake.NewScheduler()
	launch := time.Now().Add(-24 * time.Hour)
	sched.Hosts["host-1"] = cloud.SchedulerHost{
		ID: "host-1", VMID: "i-1",
		RegisteredCPU: 1024, RemainingCPU: 256,
		RegisteredMemory: 2048, RemainingMemory: 2048,
	}

	vm := fake.NewVM()
	vm.Infos["i-1"] = cloud.VMInfo{ID: "i-1", AZ: "us-east-1a", PrivateIP: "10.0.0.1", LaunchTime: launch}

	hosts, err := Snapshot(context.Background(), sched, vm)
	require.NoError(t, err)
	require.Len(t, hosts, 1)

	h := hosts[0]
	require.Equal(t, "host-1", h.ID)
	require.Equal(t, "i-1", h.VMID)
	require.Equal(t, "us-east-1a", h.AZ)
	require.Equal(t, 75, h.CPUPercent) // ceil(100*(1-256/1024))
	require.Equal(t, 0, h.MemPercent)  // ceil(100*(1-2048/2048))
}

func TestUtilizationSentinelOnNonPositiveRegistered(t *testing.T) {
	require.Equal(t, UnknownUtilization, utilization(0, 0))
	require.Equal(t, UnknownUtilization, utilization(-5, 10))
}
