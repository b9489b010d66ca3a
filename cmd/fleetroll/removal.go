package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nimbusops/fleetroll/internal/audit"
	"github.com/nimbusops/fleetroll/internal/logging"
	"github.com/nimbusops/fleetroll/pkg/cloud"
	"github.com/nimbusops/fleetroll/pkg/engine"
	"github.com/nimbusops/fleetroll/pkg/inventory"
	"github.com/nimbusops/fleetroll/pkg/metrics"
	"github.com/nimbusops/fleetroll/pkg/selection"
)

// runRemoval drives one rollover or scale-down invocation end to end:
// inventory snapshot, operator selection, AZ-balanced plan, safety
// preconditions, confirmation, and the Engine run.
func runRemoval(mode selection.Mode, cluster, asgName string, timeoutSeconds int, sortKey selection.SortKey, dryRun bool) error {
	// An interrupt cancels the context; the engine finishes the state
	// transition in flight and stops before starting the next host.
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, _ := logging.WithRunID(sigCtx)
	runLogger := logging.WithRunIDField(ctx, logger)

	cfg := appConfig()
	awsCfg, err := cfg.LoadAWSConfig(ctx)
	if err != nil {
		return err
	}

	auditLogger := audit.New(&audit.Config{Enabled: cfg.AuditEnabled, Logger: runLogger, DefaultActor: "fleetroll"})
	defer auditLogger.Close()

	// RemoteExec isn't needed until after host selection, since it dials
	// by private IP discovered from the inventory snapshot.
	adapters := buildCoreAdapters(awsCfg, cluster, asgName, runLogger, auditLogger)

	hosts, err := inventory.Snapshot(ctx, adapters.Scheduler, adapters.VM)
	if err != nil {
		return fmt.Errorf("snapshot inventory: %w", err)
	}
	if len(hosts) == 0 {
		fmt.Println("No hosts registered with the scheduler.")
		return nil
	}

	displayed := selection.Sorted(hosts, sortKey)
	printHostTable(displayed)

	expr, err := readLine(os.Stdin, fmt.Sprintf("Select hosts to %s (e.g. 0,2,5-7): ", modeVerb(mode)))
	if err != nil {
		return fmt.Errorf("read selection: %w", err)
	}
	indices, err := selection.ParseIndices(expr, len(displayed))
	if err != nil {
		return err
	}
	selected := make([]inventory.Host, 0, len(indices))
	for _, i := range indices {
		selected = append(selected, displayed[i])
	}

	services, err := listServices(ctx, adapters)
	if err != nil {
		return fmt.Errorf("snapshot services: %w", err)
	}
	if err := selection.CheckPreconditions(services, mode, len(hosts), len(selected)); err != nil {
		auditLogger.LogPreconditionFailed(ctx, err.Error(), serviceIDs(services))
		return err
	}

	members, err := adapters.ASG.DescribeMembers(ctx)
	if err != nil {
		return fmt.Errorf("describe ASG membership: %w", err)
	}
	plan := selection.BuildPlan(selected, members)

	printPlan(plan)
	if plan.Warn {
		auditLogger.LogPlanImbalanced(ctx, plan.MaxDiff)
		fmt.Println("WARNING: post-removal availability-zone distribution is imbalanced.")
	}
	for _, h := range plan.NotInASG {
		fmt.Printf("WARNING: host %s (VM %s) is not a current ASG member; it will be deregistered and terminated without an awaited replacement.\n", h.ID, h.VMID)
	}

	ok, err := confirm(os.Stdin, fmt.Sprintf("Proceed with %s of %d host(s)?", modeVerb(mode), len(plan.Order)))
	if err != nil {
		return fmt.Errorf("read confirmation: %w", err)
	}
	if !ok {
		fmt.Println("Aborted.")
		return nil
	}

	if !dryRun {
		remoteExec, err := buildRemoteExec(cfg, hostsByVMID(hosts), runLogger)
		if err != nil {
			return err
		}
		adapters.RemoteExec = remoteExec
	}

	eng := engine.New(adapters, engine.Config{
		Mode:              mode,
		DryRun:            dryRun,
		RemoteExecTimeout: time.Duration(timeoutSeconds) * time.Second,
	}, runLogger)
	eng.Audit = auditLogger

	logging.LogRunStart(runLogger, string(mode), cluster, asgName, len(plan.Order))
	summary := eng.Run(ctx, plan)

	completed, skipped := 0, 0
	for _, o := range summary.Outcomes {
		if o.Completed {
			completed++
		}
		if o.Skipped {
			skipped++
		}
	}
	logging.LogRunComplete(runLogger, string(mode), completed, skipped, summary.AbortErr != nil)

	printSummary(mode, summary)
	// Only an aborted run fails the command: a skipped-shutdown host or a
	// warned-but-continued host is reported to the operator but does not
	// by itself make the run unsuccessful.
	if summary.AbortErr != nil {
		return fmt.Errorf("%s completed with errors", modeVerb(mode))
	}
	return nil
}

func listServices(ctx context.Context, adapters engine.Adapters) ([]cloud.Service, error) {
	ids, err := adapters.Scheduler.ListServices(ctx)
	if err != nil {
		return nil, err
	}
	return adapters.Scheduler.DescribeServices(ctx, ids)
}

func modeVerb(mode selection.Mode) string {
	if mode == selection.ModeScaleDown {
		return "scale down"
	}
	return "rollover"
}

func printHostTable(hosts []inventory.Host) {
	fmt.Println("  #  Host ID              VM ID        AZ          Launch Time           CPU%  Mem%")
	for i, h := range hosts {
		fmt.Printf("%3d  %-20s %-12s %-11s %-21s %4d  %4d\n",
			i, h.ID, h.VMID, h.AZ, h.LaunchTime.Format(time.RFC3339), h.CPUPercent, h.MemPercent)
	}
}

func printPlan(plan selection.Plan) {
	fmt.Println("Removal order:")
	for i, h := range plan.Order {
		fmt.Printf("  %d. %s (VM %s, AZ %s)\n", i+1, h.ID, h.VMID, h.AZ)
	}
	fmt.Println("AZ distribution before / after:")
	for az, before := range plan.BeforeCounts {
		fmt.Printf("  %s: %d -> %d\n", az, before, plan.AfterCounts[az])
	}
}

func printSummary(mode selection.Mode, summary engine.Summary) {
	var skipped []string
	for _, o := range summary.Outcomes {
		if o.Skipped {
			skipped = append(skipped, o.Host.ID)
		}
	}
	if len(skipped) > 0 {
		fmt.Printf("Skipped shutdown (container preflight failed) for: %v\n", skipped)
	}
	switch {
	case summary.HasErrors():
		fmt.Println("NOTE: Some errors were encountered.")
	case mode == selection.ModeScaleDown:
		fmt.Println("Scale down complete!")
	default:
		fmt.Println("Rollover complete!")
	}
}

func serviceIDs(services []cloud.Service) []string {
	ids := make([]string, 0, len(services))
	for _, s := range services {
		ids = append(ids, s.ID)
	}
	return ids
}

var registerMetricsOnce sync.Once

func init() {
	registerMetricsOnce.Do(func() {
		metrics.Register(prometheus.DefaultRegisterer)
	})
}
