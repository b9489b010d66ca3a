// Package engine drives the per-host rollover state machine: detach from
// the ASG, await a replacement, snapshot services, deregister the host,
// wait for steady state, drain load balancers, stop containers, and
// terminate the VM. Hosts are processed one at a time in a single
// sequential pipeline; there is no concurrent rollover and no rollback.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nimbusops/fleetroll/internal/audit"
	"github.com/nimbusops/fleetroll/internal/logging"
	"github.com/nimbusops/fleetroll/pkg/cloud"
	"github.com/nimbusops/fleetroll/pkg/inventory"
	"github.com/nimbusops/fleetroll/pkg/metrics"
	"github.com/nimbusops/fleetroll/pkg/selection"
	"github.com/nimbusops/fleetroll/pkg/tracker"
)

// Phase names the current state of a host's pipeline, used for logging and
// the audit trail.
type Phase string

const (
	PhaseDetach           Phase = "DETACH"
	PhaseAwaitReplacement Phase = "AWAIT_REPLACEMENT"
	PhaseSnapshot         Phase = "SNAPSHOT"
	PhaseDeregisterHost   Phase = "DEREGISTER_HOST"
	PhaseAwaitSteady      Phase = "AWAIT_STEADY"
	PhaseDrainLB          Phase = "DRAIN_LB"
	PhaseStopContainers   Phase = "STOP_CONTAINERS"
	PhaseTerminateVM      Phase = "TERMINATE_VM"
)

// Adapters bundles the six cloud capability interfaces the engine drives,
// plus the process-scoped target-group cache shared across hosts in one
// run.
type Adapters struct {
	VM         cloud.VM
	ASG        cloud.ASG
	Scheduler  cloud.Scheduler
	LBClassic  cloud.LBClassic
	LBTarget   cloud.LBTarget
	RemoteExec cloud.RemoteExec
	TGCache    *cloud.TargetGroupCache
}

// Config holds the per-run parameters a CLI subcommand supplies. The
// steady-state and replacement-wait timings default to a 10s poll /
// 300s-600s deadline when left zero; tests inject smaller values so the
// suite doesn't block on real wall-clock waits.
type Config struct {
	Mode              selection.Mode
	DryRun            bool
	RemoteExecTimeout time.Duration // docker stop -t; default 30s

	ReplacementPollInterval time.Duration
	ReplacementDeadline     time.Duration
	SteadyStatePollInterval time.Duration
	SteadyStateDeadline     time.Duration
}

const dockerStopPreflightTimeout = 10 * time.Second

func (c Config) replacementPollInterval() time.Duration {
	if c.ReplacementPollInterval > 0 {
		return c.ReplacementPollInterval
	}
	return 10 * time.Second
}

func (c Config) replacementDeadline() time.Duration {
	if c.ReplacementDeadline > 0 {
		return c.ReplacementDeadline
	}
	return 300 * time.Second
}

func (c Config) steadyStatePollInterval() time.Duration {
	if c.SteadyStatePollInterval > 0 {
		return c.SteadyStatePollInterval
	}
	return tracker.SteadyStatePollInterval
}

func (c Config) steadyStateDeadline() time.Duration {
	if c.SteadyStateDeadline > 0 {
		return c.SteadyStateDeadline
	}
	return tracker.SteadyStateDeadline
}

// HostOutcome records what happened to one host over the run.
type HostOutcome struct {
	Host      inventory.Host
	Completed bool
	Skipped   bool // container shutdown was skipped; VM was not terminated
	Warnings  []error
}

// Summary is the end-of-run report.
type Summary struct {
	Outcomes []HostOutcome
	// AbortErr is set when the loop stopped before processing every host
	// in the plan.
	AbortErr error
}

// HasErrors reports whether any host produced a warning, or the run was
// aborted early — the two conditions behind the "NOTE: Some errors were
// encountered." summary line.
func (s Summary) HasErrors() bool {
	if s.AbortErr != nil {
		return true
	}
	for _, o := range s.Outcomes {
		if len(o.Warnings) > 0 || o.Skipped {
			return true
		}
	}
	return false
}

// Engine runs the rollover/scale-down state machine for one Removal Plan.
type Engine struct {
	Adapters Adapters
	Config   Config
	Logger   *zap.Logger
	// Audit receives a structured event at each notable state transition.
	// A nil Audit disables audit logging; New leaves it nil rather than
	// forcing callers to wire a no-op logger.
	Audit *audit.Logger
}

// New constructs an Engine. A nil logger is replaced with zap.NewNop().
func New(adapters Adapters, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{Adapters: adapters, Config: cfg, Logger: logger}
}

// Run drives every host in plan.Order, in order, stopping early only when
// a stage's failure implies the cluster may be unhealthy.
func (e *Engine) Run(ctx context.Context, plan selection.Plan) Summary {
	summary := Summary{}

	if e.Audit != nil {
		e.Audit.LogRunStarted(ctx, string(e.Config.Mode), len(plan.Order))
	}

	for _, host := range plan.Order {
		if err := ctx.Err(); err != nil {
			summary.AbortErr = err
			e.Logger.Warn("run canceled between hosts", zap.Error(err))
			break
		}
		logger := e.Logger.With(zap.String("host", host.ID), zap.String("vm", host.VMID))
		start := time.Now()
		outcome, abortErr := e.runHost(ctx, logger, host)
		metrics.HostDuration.WithLabelValues(string(e.Config.Mode)).Observe(time.Since(start).Seconds())

		summary.Outcomes = append(summary.Outcomes, outcome)
		if outcome.Skipped {
			metrics.HostsSkippedTotal.WithLabelValues(string(e.Config.Mode)).Inc()
		}
		if abortErr != nil {
			summary.AbortErr = abortErr
			metrics.RunAbortedTotal.WithLabelValues(string(e.Config.Mode), abortReason(abortErr)).Inc()
			logger.Error("aborting run", zap.Error(abortErr))
			break
		}
		metrics.HostsProcessedTotal.WithLabelValues(string(e.Config.Mode), hostOutcomeLabel(outcome)).Inc()
	}

	if e.Audit != nil {
		completed, skipped := 0, 0
		for _, o := range summary.Outcomes {
			if o.Completed {
				completed++
			}
			if o.Skipped {
				skipped++
			}
		}
		e.Audit.LogRunCompleted(ctx, string(e.Config.Mode), completed, skipped, summary.AbortErr != nil)
	}
	return summary
}

func hostOutcomeLabel(o HostOutcome) string {
	switch {
	case o.Skipped:
		return "skipped_shutdown"
	case len(o.Warnings) > 0:
		return "completed_with_warnings"
	default:
		return "completed"
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func abortReason(err error) string {
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return "timeout"
	}
	return "cloud_error"
}

func (e *Engine) runHost(ctx context.Context, logger *zap.Logger, host inventory.Host) (HostOutcome, error) {
	outcome := HostOutcome{Host: host}

	if host.NotInASG {
		// Host is not a current ASG member: the detach and the
		// await-replacement have nothing to act on and nothing to wait
		// for, so skip straight to the snapshot. A warning, never an
		// abort.
		logger.Warn("host has no ASG membership; skipping detach and replacement wait",
			zap.String("phase", string(PhaseDetach)))
		outcome.Warnings = append(outcome.Warnings, &NotInASGWarning{HostID: host.ID})
	} else {
		// DETACH
		logging.LogHostPhase(logger, host.ID, host.VMID, string(PhaseDetach))
		var oldMembers []cloud.Member
		if !e.Config.DryRun {
			var err error
			oldMembers, err = e.Adapters.ASG.DescribeMembers(ctx)
			if err != nil {
				return outcome, fmt.Errorf("host %s: snapshot ASG before detach: %w", host.ID, err)
			}
			decrement := e.Config.Mode == selection.ModeScaleDown
			if _, err := e.Adapters.ASG.Detach(ctx, []string{host.VMID}, decrement); err != nil {
				if e.Audit != nil {
					e.Audit.LogHostDetachFailed(ctx, host.ID, err)
				}
				return outcome, fmt.Errorf("host %s: detach: %w", host.ID, err)
			}
			if e.Audit != nil {
				e.Audit.LogHostDetached(ctx, host.ID, host.AZ)
			}
		}

		if e.Config.Mode == selection.ModeRollover {
			// AWAIT_REPLACEMENT
			logging.LogHostPhase(logger, host.ID, host.VMID, string(PhaseAwaitReplacement))
			if !e.Config.DryRun {
				replacementStart := time.Now()
				if err := e.awaitReplacement(ctx, oldMembers); err != nil {
					var timeoutErr *TimeoutError
					if e.Audit != nil && errors.As(err, &timeoutErr) {
						e.Audit.LogReplacementTimedOut(ctx, host.ID, time.Since(replacementStart))
					}
					return outcome, fmt.Errorf("host %s: %w", host.ID, err)
				}
				metrics.ReplacementWaitDuration.WithLabelValues().Observe(time.Since(replacementStart).Seconds())
				if e.Audit != nil {
					e.Audit.LogReplacementReady(ctx, host.ID, time.Since(replacementStart))
				}
			}
		}
	}

	// SNAPSHOT: must happen immediately before the deregister.
	logging.LogHostPhase(logger, host.ID, host.VMID, string(PhaseSnapshot))
	var snap tracker.Snapshot
	if !e.Config.DryRun {
		services, tasks, err := e.snapshotServicesAndTasks(ctx)
		if err != nil {
			return outcome, fmt.Errorf("host %s: snapshot: %w", host.ID, err)
		}
		snap = tracker.TakeSnapshot(services, tasks)
	}

	// DEREGISTER_HOST
	logging.LogHostPhase(logger, host.ID, host.VMID, string(PhaseDeregisterHost))
	if !e.Config.DryRun {
		if err := e.Adapters.Scheduler.DeregisterHost(ctx, host.ID, true); err != nil {
			return outcome, fmt.Errorf("host %s: deregister: %w", host.ID, err)
		}
		if e.Audit != nil {
			e.Audit.LogHostDeregistered(ctx, host.ID)
		}
	}

	// AWAIT_STEADY
	logging.LogHostPhase(logger, host.ID, host.VMID, string(PhaseAwaitSteady))
	if !e.Config.DryRun {
		for _, serviceID := range snap.HostServices[host.ID] {
			waitStart := time.Now()
			result, err := tracker.AwaitSteadyState(ctx, e.Adapters.Scheduler, serviceID, snap.Cursors[serviceID], e.Config.steadyStatePollInterval(), e.Config.steadyStateDeadline())
			if err != nil {
				return outcome, fmt.Errorf("host %s: steady state %s: %w", host.ID, serviceID, err)
			}
			metrics.SteadyStateWaitDuration.WithLabelValues(boolLabel(result.TimedOut)).Observe(time.Since(waitStart).Seconds())
			if result.SawEvent {
				snap.Cursors[serviceID] = result.LastSeenEvent
			}
			if e.Audit != nil {
				e.Audit.LogSteadyState(ctx, host.ID, serviceID, time.Since(waitStart), result.TimedOut)
			}
			if result.TimedOut {
				return outcome, &TimeoutError{HostID: host.ID, Stage: string(PhaseAwaitSteady)}
			}
		}
	}

	// DRAIN_LB: failures here warn and continue, never abort.
	logging.LogHostPhase(logger, host.ID, host.VMID, string(PhaseDrainLB))
	if !e.Config.DryRun {
		drainWarnings := 0
		for _, serviceID := range snap.HostServices[host.ID] {
			warnings := e.drainService(ctx, host, snap, serviceID)
			outcome.Warnings = append(outcome.Warnings, warnings...)
			drainWarnings += len(warnings)
		}
		if drainWarnings == 0 && e.Audit != nil {
			e.Audit.LogLoadBalancerDrained(ctx, host.ID)
		}
	}

	// STOP_CONTAINERS
	logging.LogHostPhase(logger, host.ID, host.VMID, string(PhaseStopContainers))
	skip := false
	if !e.Config.DryRun {
		ok, err := e.Adapters.RemoteExec.Run(ctx, host.VMID, "docker ps -a -q", dockerStopPreflightTimeout)
		if err != nil || !ok {
			outcome.Warnings = append(outcome.Warnings, &RemoteExecWarning{HostID: host.ID, Stage: "preflight", Cause: err})
			skip = true
		} else {
			timeout := e.Config.RemoteExecTimeout
			if timeout <= 0 {
				timeout = 30 * time.Second
			}
			cmd := fmt.Sprintf("docker stop -t %d $(docker ps -a -q)", int(timeout.Seconds()))
			if ok, err := e.Adapters.RemoteExec.Run(ctx, host.VMID, cmd, timeout); err != nil || !ok {
				outcome.Warnings = append(outcome.Warnings, &RemoteExecWarning{HostID: host.ID, Stage: "stop", Cause: err})
			} else if e.Audit != nil {
				e.Audit.LogContainersStopped(ctx, host.ID)
			}
		}
	}
	if skip {
		outcome.Skipped = true
		logger.Warn("skipping VM shutdown, container preflight failed")
		if e.Audit != nil {
			e.Audit.LogShutdownSkipped(ctx, host.ID, "container stop preflight failed")
		}
		return outcome, nil
	}

	// TERMINATE_VM
	logging.LogHostPhase(logger, host.ID, host.VMID, string(PhaseTerminateVM))
	if !e.Config.DryRun {
		if err := e.Adapters.VM.StopAndAwait(ctx, []string{host.VMID}); err != nil {
			if e.Audit != nil {
				e.Audit.LogHostTerminated(ctx, host.ID, host.VMID, "failure")
			}
			return outcome, fmt.Errorf("host %s: stop VM: %w", host.ID, err)
		}
		if err := e.Adapters.VM.TerminateAndAwait(ctx, []string{host.VMID}); err != nil {
			if e.Audit != nil {
				e.Audit.LogHostTerminated(ctx, host.ID, host.VMID, "failure")
			}
			return outcome, fmt.Errorf("host %s: terminate VM: %w", host.ID, err)
		}
		if e.Audit != nil {
			e.Audit.LogHostTerminated(ctx, host.ID, host.VMID, "success")
		}
	}

	outcome.Completed = true
	return outcome, nil
}

func (e *Engine) snapshotServicesAndTasks(ctx context.Context) ([]cloud.Service, []cloud.Task, error) {
	serviceIDs, err := e.Adapters.Scheduler.ListServices(ctx)
	if err != nil {
		return nil, nil, err
	}
	services, err := e.Adapters.Scheduler.DescribeServices(ctx, serviceIDs)
	if err != nil {
		return nil, nil, err
	}
	taskIDs, err := e.Adapters.Scheduler.ListTasks(ctx)
	if err != nil {
		return nil, nil, err
	}
	tasks, err := e.Adapters.Scheduler.DescribeTasks(ctx, taskIDs)
	if err != nil {
		return nil, nil, err
	}
	return services, tasks, nil
}

func (e *Engine) drainService(ctx context.Context, host inventory.Host, snap tracker.Snapshot, serviceID string) []error {
	var warnings []error
	declared := make(map[string]bool)
	for _, svc := range snap.Services {
		if svc.ID != serviceID {
			continue
		}
		for _, lb := range svc.LoadBalancers {
			if lb.ClassicName != "" {
				if _, err := e.Adapters.LBClassic.Deregister(ctx, lb.ClassicName, []string{host.VMID}); err != nil {
					warnings = append(warnings, fmt.Errorf("drain classic LB %s: %w", lb.ClassicName, err))
				}
			}
			if lb.TargetGroupARN != "" {
				declared[lb.TargetGroupARN] = true
				if err := e.Adapters.LBTarget.DeregisterTargets(ctx, lb.TargetGroupARN, []string{host.VMID}); err != nil {
					warnings = append(warnings, fmt.Errorf("drain target group %s: %w", lb.TargetGroupARN, err))
				}
			}
		}
	}

	// The per-service LoadBalancers list is the ECS-reported association;
	// cross-check the target-group cache for membership it didn't
	// mention, so a VM isn't left registered in a group the service API
	// failed to surface.
	if e.Adapters.TGCache != nil {
		arns, err := e.Adapters.TGCache.TargetGroupsContaining(ctx, host.VMID)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("list target groups containing %s: %w", host.VMID, err))
			return warnings
		}
		for _, arn := range arns {
			if declared[arn] {
				continue
			}
			if err := e.Adapters.LBTarget.DeregisterTargets(ctx, arn, []string{host.VMID}); err != nil {
				warnings = append(warnings, fmt.Errorf("drain undeclared target group %s: %w", arn, err))
			}
		}
	}
	return warnings
}

// awaitReplacement snapshots ASG membership, computes the set difference
// against oldMembers, and polls until the replacement VM both appears in
// ASG membership and is listed as an active scheduler host.
func (e *Engine) awaitReplacement(ctx context.Context, oldMembers []cloud.Member) error {
	oldByVM := make(map[string]bool, len(oldMembers))
	for _, m := range oldMembers {
		oldByVM[m.VMID] = true
	}

	deadline := time.Now().Add(e.Config.replacementDeadline())
	ticker := time.NewTicker(e.Config.replacementPollInterval())
	defer ticker.Stop()

	check := func() (bool, error) {
		members, err := e.Adapters.ASG.DescribeMembers(ctx)
		if err != nil {
			return false, err
		}
		var replacementVMID string
		for _, m := range members {
			if !oldByVM[m.VMID] {
				replacementVMID = m.VMID
				break
			}
		}
		if replacementVMID == "" {
			return false, nil
		}
		activeHostIDs, err := e.Adapters.Scheduler.ListActiveHosts(ctx)
		if err != nil {
			return false, err
		}
		activeHosts, err := e.Adapters.Scheduler.DescribeHosts(ctx, activeHostIDs)
		if err != nil {
			return false, err
		}
		for _, h := range activeHosts {
			if h.VMID == replacementVMID {
				return true, nil
			}
		}
		return false, nil
	}

	if ready, err := check(); err != nil {
		return err
	} else if ready {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			ready, err := check()
			if err != nil {
				return err
			}
			if ready {
				return nil
			}
			if time.Now().After(deadline) {
				return &TimeoutError{Stage: string(PhaseAwaitReplacement)}
			}
		}
	}
}
