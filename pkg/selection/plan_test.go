package selection

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nimbusops/fleetroll/pkg/cloud"
	"github.com/nimbusops/fleetroll/pkg/inventory"
)

func TestBuildPlanRoundRobinsLargestAZFirst(t *testing.T) {
	// 3 AZs, 6 selected hosts, 2 per AZ, with 1 untouched member per AZ
	// remaining so remainingByAZ is equal and ties break stably in AZ
	// name order (az1, az2, az3).
	members := []cloud.Member{
		{VMID: "r1", AZ: "az1"}, {VMID: "s1a", AZ: "az1"}, {VMID: "s1b", AZ: "az1"},
		{VMID: "r2", AZ: "az2"}, {VMID: "s2a", AZ: "az2"}, {VMID: "s2b", AZ: "az2"},
		{VMID: "r3", AZ: "az3"}, {VMID: "s3a", AZ: "az3"}, {VMID: "s3b", AZ: "az3"},
	}
	selected := []inventory.Host{
		{ID: "h-s1a", VMID: "s1a"}, {ID: "h-s1b", VMID: "s1b"},
		{ID: "h-s2a", VMID: "s2a"}, {ID: "h-s2b", VMID: "s2b"},
		{ID: "h-s3a", VMID: "s3a"}, {ID: "h-s3b", VMID: "s3b"},
	}

	plan := BuildPlan(selected, members)
	require.Len(t, plan.Order, 6)

	azSeq := make([]string, len(plan.Order))
	vmToAZ := map[string]string{"s1a": "az1", "s1b": "az1", "s2a": "az2", "s2b": "az2", "s3a": "az3", "s3b": "az3"}
	for i, h := range plan.Order {
		azSeq[i] = vmToAZ[h.VMID]
	}
	require.Equal(t, []string{"az1", "az2", "az3", "az1", "az2", "az3"}, azSeq)
	require.Equal(t, 0, plan.MaxDiff)
	require.False(t, plan.Warn)
}

func TestBuildPlanWarnsOnImbalance(t *testing.T) {
	members := []cloud.Member{
		{VMID: "r1", AZ: "az1"}, {VMID: "r1b", AZ: "az1"}, {VMID: "r1c", AZ: "az1"},
		{VMID: "s2", AZ: "az2"},
	}
	selected := []inventory.Host{{ID: "h-s2", VMID: "s2"}}

	plan := BuildPlan(selected, members)
	require.True(t, plan.Warn)
	require.Equal(t, 3, plan.MaxDiff) // az1=3 remaining, az2=0 remaining
}

func TestBuildPlanHandlesHostNotInASG(t *testing.T) {
	members := []cloud.Member{{VMID: "r1", AZ: "az1"}}
	selected := []inventory.Host{{ID: "h-orphan", VMID: "orphan-vm"}}

	plan := BuildPlan(selected, members)
	require.Len(t, plan.NotInASG, 1)
	require.Equal(t, "h-orphan", plan.NotInASG[0].ID)
	require.True(t, plan.NotInASG[0].NotInASG)
	require.Len(t, plan.Order, 1)
	require.True(t, plan.Order[0].NotInASG, "the membership fact must reach plan.Order, not just plan.NotInASG")
}

func TestCheckPreconditionsFailsOnInactiveService(t *testing.T) {
	services := []cloud.Service{{ID: "svc-a", Status: "ACTIVE"}, {ID: "svc-b", Status: "DRAINING"}}
	err := CheckPreconditions(services, ModeRollover, 10, 3)
	require.Error(t, err)
	var precondErr *PreconditionError
	require.ErrorAs(t, err, &precondErr)
	require.Equal(t, []string{"svc-b"}, precondErr.Services)
}

func TestCheckPreconditionsFailsOnScaleDownCapacity(t *testing.T) {
	services := []cloud.Service{{ID: "svc-a", Status: "ACTIVE", DesiredCount: 2}}
	err := CheckPreconditions(services, ModeScaleDown, 6, 5)
	require.Error(t, err)
}

func TestCheckPreconditionsPasses(t *testing.T) {
	services := []cloud.Service{{ID: "svc-a", Status: "ACTIVE", DesiredCount: 2}}
	err := CheckPreconditions(services, ModeScaleDown, 6, 1)
	require.NoError(t, err)
}
