package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nimbusops/fleetroll/pkg/cloud"
	"github.com/nimbusops/fleetroll/pkg/cloud/fake"
	"github.com/nimbusops/fleetroll/pkg/inventory"
	"github.com/nimbusops/fleetroll/pkg/selection"
)

func newTestAdapters() (*fake.ASG, *fake.Scheduler, *fake.VM, *fake.LBClassic, *fake.LBTarget, *fake.RemoteExec) {
	asg := fake.NewASG(nil)
	sched := fake.NewScheduler()
	vm := fake.NewVM()
	lbc := fake.NewLBClassic()
	lbt := fake.NewLBTarget(nil)
	rexec := fake.NewRemoteExec()
	return asg, sched, vm, lbc, lbt, rexec
}

func TestRunHappyRolloverTerminatesVM(t *testing.T) {
	asg, sched, vm, lbc, lbt, rexec := newTestAdapters()

	asg.Members = []cloud.Member{{VMID: "i-old", AZ: "az1"}}
	asg.ReplacementsByDetached = map[string]cloud.Member{"i-old": {VMID: "i-new", AZ: "az1"}}
	asg.AppearAfterCalls = 0

	sched.ActiveHostIDs = []string{"host-new"}
	sched.Hosts["host-new"] = cloud.SchedulerHost{ID: "host-new", VMID: "i-new"}
	sched.Services["svc-a"] = cloud.Service{
		ID: "svc-a", TaskDefinition: "def-a", Status: "ACTIVE",
		LoadBalancers: []cloud.LoadBalancerRef{{TargetGroupARN: "arn:tg:1"}},
	}
	sched.Tasks["t1"] = cloud.Task{ID: "t1", TaskDefinition: "def-a", HostID: "host-old"}
	sched.SteadyStateAtCall = 1

	vm.Infos["i-old"] = cloud.VMInfo{ID: "i-old", State: "running"}

	adapters := Adapters{VM: vm, ASG: asg, Scheduler: sched, LBClassic: lbc, LBTarget: lbt, RemoteExec: rexec}
	cfg := Config{Mode: selection.ModeRollover}
	e := New(adapters, cfg, zaptest.NewLogger(t))

	plan := selection.Plan{Order: []inventory.Host{{ID: "host-old", VMID: "i-old", AZ: "az1"}}}

	summary := e.Run(context.Background(), plan)

	require.NoError(t, summary.AbortErr)
	require.Len(t, summary.Outcomes, 1)
	require.True(t, summary.Outcomes[0].Completed)
	require.False(t, summary.Outcomes[0].Skipped)
	require.Contains(t, vm.TerminatedIDs, "i-old")
	require.Contains(t, sched.DeregisteredHosts, "host-old")
	require.Contains(t, lbt.DeregisteredTargets, "i-old")
}

func TestRunContainerPreflightFailureSkipsShutdown(t *testing.T) {
	asg, sched, vm, lbc, lbt, rexec := newTestAdapters()

	asg.Members = []cloud.Member{{VMID: "i-old", AZ: "az1"}}
	asg.ReplacementsByDetached = map[string]cloud.Member{"i-old": {VMID: "i-new", AZ: "az1"}}

	sched.ActiveHostIDs = []string{"host-new"}
	sched.Hosts["host-new"] = cloud.SchedulerHost{ID: "host-new", VMID: "i-new"}

	rexec.SetResult("i-old", "docker ps -a -q", false, nil)

	adapters := Adapters{VM: vm, ASG: asg, Scheduler: sched, LBClassic: lbc, LBTarget: lbt, RemoteExec: rexec}
	e := New(adapters, Config{Mode: selection.ModeRollover}, zaptest.NewLogger(t))

	plan := selection.Plan{Order: []inventory.Host{{ID: "host-old", VMID: "i-old", AZ: "az1"}}}
	summary := e.Run(context.Background(), plan)

	require.NoError(t, summary.AbortErr)
	require.True(t, summary.Outcomes[0].Skipped)
	require.False(t, summary.Outcomes[0].Completed)
	require.NotContains(t, vm.TerminatedIDs, "i-old")
	require.True(t, summary.HasErrors())
}

func TestRunHostNotInASGSkipsDetachAndReplacementWait(t *testing.T) {
	asg, sched, vm, lbc, lbt, rexec := newTestAdapters()

	// No ASG members at all: the selected host's VM id is not present,
	// matching what selection.BuildPlan reports via plan.NotInASG.
	sched.Hosts["host-old"] = cloud.SchedulerHost{ID: "host-old", VMID: "i-old"}
	sched.Services["svc-a"] = cloud.Service{
		ID: "svc-a", TaskDefinition: "def-a", Status: "ACTIVE",
		LoadBalancers: []cloud.LoadBalancerRef{{TargetGroupARN: "arn:tg:1"}},
	}
	sched.Tasks["t1"] = cloud.Task{ID: "t1", TaskDefinition: "def-a", HostID: "host-old"}
	sched.SteadyStateAtCall = 1

	vm.Infos["i-old"] = cloud.VMInfo{ID: "i-old", State: "running"}

	adapters := Adapters{VM: vm, ASG: asg, Scheduler: sched, LBClassic: lbc, LBTarget: lbt, RemoteExec: rexec}
	cfg := Config{Mode: selection.ModeRollover, ReplacementDeadline: 50 * time.Millisecond, ReplacementPollInterval: 5 * time.Millisecond}
	e := New(adapters, cfg, zaptest.NewLogger(t))

	plan := selection.Plan{Order: []inventory.Host{{ID: "host-old", VMID: "i-old", AZ: "az1", NotInASG: true}}}

	summary := e.Run(context.Background(), plan)

	require.NoError(t, summary.AbortErr, "a not-in-ASG host must never abort the run")
	require.Len(t, summary.Outcomes, 1)
	require.True(t, summary.Outcomes[0].Completed)
	require.False(t, summary.Outcomes[0].Skipped)
	require.Contains(t, vm.TerminatedIDs, "i-old")
	require.Contains(t, sched.DeregisteredHosts, "host-old")
	require.Empty(t, asg.DetachedVMIDs, "ASG.Detach must never be called for a host that isn't a member")
}

func TestRunScaleDownDecrementsDesiredAndSkipsReplacementWait(t *testing.T) {
	asg, sched, vm, lbc, lbt, rexec := newTestAdapters()

	// No replacement is ever configured: if the engine wrongly waited for
	// one in scale-down mode it would exhaust the deadline and abort.
	asg.Members = []cloud.Member{{VMID: "i-old", AZ: "az1"}, {VMID: "i-keep", AZ: "az2"}}
	sched.Services["svc-a"] = cloud.Service{ID: "svc-a", TaskDefinition: "def-a", Status: "ACTIVE"}
	sched.Tasks["t1"] = cloud.Task{ID: "t1", TaskDefinition: "def-a", HostID: "host-old"}
	sched.SteadyStateAtCall = 1

	vm.Infos["i-old"] = cloud.VMInfo{ID: "i-old", State: "running"}

	adapters := Adapters{VM: vm, ASG: asg, Scheduler: sched, LBClassic: lbc, LBTarget: lbt, RemoteExec: rexec}
	cfg := Config{Mode: selection.ModeScaleDown, ReplacementDeadline: 20 * time.Millisecond, ReplacementPollInterval: 5 * time.Millisecond}
	e := New(adapters, cfg, zaptest.NewLogger(t))

	plan := selection.Plan{Order: []inventory.Host{{ID: "host-old", VMID: "i-old", AZ: "az1"}}}
	summary := e.Run(context.Background(), plan)

	require.NoError(t, summary.AbortErr)
	require.True(t, summary.Outcomes[0].Completed)
	require.Equal(t, []string{"i-old"}, asg.DetachedVMIDs)
	require.Equal(t, []bool{true}, asg.DecrementFlags, "scale-down must decrement the ASG's desired capacity")
	require.Contains(t, vm.TerminatedIDs, "i-old")
}

func TestRunDryRunMakesNoMutatingCalls(t *testing.T) {
	asg, sched, vm, lbc, lbt, rexec := newTestAdapters()

	asg.Members = []cloud.Member{{VMID: "i-old", AZ: "az1"}}
	sched.Hosts["host-old"] = cloud.SchedulerHost{ID: "host-old", VMID: "i-old"}
	vm.Infos["i-old"] = cloud.VMInfo{ID: "i-old", State: "running"}

	adapters := Adapters{VM: vm, ASG: asg, Scheduler: sched, LBClassic: lbc, LBTarget: lbt, RemoteExec: rexec}
	e := New(adapters, Config{Mode: selection.ModeRollover, DryRun: true}, zaptest.NewLogger(t))

	plan := selection.Plan{Order: []inventory.Host{{ID: "host-old", VMID: "i-old", AZ: "az1"}}}
	summary := e.Run(context.Background(), plan)

	require.NoError(t, summary.AbortErr)
	require.True(t, summary.Outcomes[0].Completed)
	require.Empty(t, asg.DetachedVMIDs)
	require.Empty(t, sched.DeregisteredHosts)
	require.Empty(t, vm.StoppedIDs)
	require.Empty(t, vm.TerminatedIDs)
	require.Empty(t, lbc.Deregistered)
	require.Empty(t, lbt.DeregisteredTargets)
	require.Empty(t, rexec.Calls)
}

func TestRunDrainFailureWarnsAndContinues(t *testing.T) {
	asg, sched, vm, lbc, lbt, rexec := newTestAdapters()

	asg.Members = []cloud.Member{{VMID: "i-old", AZ: "az1"}}
	asg.ReplacementsByDetached = map[string]cloud.Member{"i-old": {VMID: "i-new", AZ: "az1"}}

	sched.ActiveHostIDs = []string{"host-new"}
	sched.Hosts["host-new"] = cloud.SchedulerHost{ID: "host-new", VMID: "i-new"}
	sched.Services["svc-a"] = cloud.Service{
		ID: "svc-a", TaskDefinition: "def-a", Status: "ACTIVE",
		LoadBalancers: []cloud.LoadBalancerRef{{TargetGroupARN: "arn:tg:1"}},
	}
	sched.Tasks["t1"] = cloud.Task{ID: "t1", TaskDefinition: "def-a", HostID: "host-old"}
	sched.SteadyStateAtCall = 1

	vm.Infos["i-old"] = cloud.VMInfo{ID: "i-old", State: "running"}
	lbt.DeregisterErrs["arn:tg:1"] = errors.New("deregister throttled")

	adapters := Adapters{VM: vm, ASG: asg, Scheduler: sched, LBClassic: lbc, LBTarget: lbt, RemoteExec: rexec}
	e := New(adapters, Config{Mode: selection.ModeRollover}, zaptest.NewLogger(t))

	plan := selection.Plan{Order: []inventory.Host{{ID: "host-old", VMID: "i-old", AZ: "az1"}}}
	summary := e.Run(context.Background(), plan)

	require.NoError(t, summary.AbortErr, "a drain failure only affects the host being torn down")
	require.True(t, summary.Outcomes[0].Completed)
	require.NotEmpty(t, summary.Outcomes[0].Warnings)
	require.Contains(t, vm.TerminatedIDs, "i-old")
	require.True(t, summary.HasErrors())
}

func TestRunCanceledContextStopsBetweenHosts(t *testing.T) {
	asg, sched, vm, lbc, lbt, rexec := newTestAdapters()

	adapters := Adapters{VM: vm, ASG: asg, Scheduler: sched, LBClassic: lbc, LBTarget: lbt, RemoteExec: rexec}
	e := New(adapters, Config{Mode: selection.ModeRollover}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	plan := selection.Plan{Order: []inventory.Host{{ID: "host-old", VMID: "i-old", AZ: "az1"}}}
	summary := e.Run(ctx, plan)

	require.ErrorIs(t, summary.AbortErr, context.Canceled)
	require.Empty(t, summary.Outcomes)
	require.Empty(t, asg.DetachedVMIDs)
}

func TestRunSteadyStateTimeoutAbortsRun(t *testing.T) {
	asg, sched, vm, lbc, lbt, rexec := newTestAdapters()

	asg.Members = []cloud.Member{{VMID: "i-old", AZ: "az1"}}
	asg.ReplacementsByDetached = map[string]cloud.Member{"i-old": {VMID: "i-new", AZ: "az1"}}

	sched.ActiveHostIDs = []string{"host-new"}
	sched.Hosts["host-new"] = cloud.SchedulerHost{ID: "host-new", VMID: "i-new"}
	sched.Services["svc-a"] = cloud.Service{ID: "svc-a", TaskDefinition: "def-a", Status: "ACTIVE"}
	sched.Tasks["t1"] = cloud.Task{ID: "t1", TaskDefinition: "def-a", HostID: "host-old"}
	// SteadyStateAtCall left at zero so the event never fires within the deadline.

	cfg := Config{
		Mode:                    selection.ModeRollover,
		SteadyStatePollInterval: 5 * time.Millisecond,
		SteadyStateDeadline:     30 * time.Millisecond,
	}
	adapters := Adapters{VM: vm, ASG: asg, Scheduler: sched, LBClassic: lbc, LBTarget: lbt, RemoteExec: rexec}
	e := New(adapters, cfg, zaptest.NewLogger(t))

	// Use a second host after the failing one to prove the loop truly stops.
	plan := selection.Plan{Order: []inventory.Host{
		{ID: "host-old", VMID: "i-old", AZ: "az1"},
		{ID: "host-never-reached", VMID: "i-never", AZ: "az1"},
	}}

	summary := e.Run(context.Background(), plan)

	require.Error(t, summary.AbortErr)
	require.Len(t, summary.Outcomes, 1, "loop must stop before the second host")
}
