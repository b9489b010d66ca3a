package main

import (
	"github.com/spf13/cobra"

	"github.com/nimbusops/fleetroll/pkg/selection"
)

var (
	removalTimeout int
	removalSort    string
	removalDryRun  bool
)

func addRemovalFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&removalTimeout, "timeout", "t", 30, "Seconds to wait for containers to stop before force-killing")
	cmd.Flags().StringVarP(&removalSort, "sort", "s", string(selection.SortLaunchTime), "Display sort order: launch_time or utilization")
	cmd.Flags().BoolVar(&removalDryRun, "dry-run", false, "Follow the state sequence and log every step without mutating anything")
}

var rolloverCmd = &cobra.Command{
	Use:   "rollover cluster asg",
	Short: "Replace hosts one by one, each backed by an ASG-provided replacement",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRemoval(selection.ModeRollover, args[0], args[1], removalTimeout, selection.SortKey(removalSort), removalDryRun)
	},
}

var scaledownCmd = &cobra.Command{
	Use:   "scaledown cluster asg",
	Short: "Remove hosts without an ASG replacement, shrinking the fleet",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRemoval(selection.ModeScaleDown, args[0], args[1], removalTimeout, selection.SortKey(removalSort), removalDryRun)
	},
}

func init() {
	addRemovalFlags(rolloverCmd)
	addRemovalFlags(scaledownCmd)
}
