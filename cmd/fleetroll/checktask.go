package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/spf13/cobra"

	"github.com/nimbusops/fleetroll/pkg/cloud"
)

var checkTaskInvert bool

var checkTaskCmd = &cobra.Command{
	Use:   "check-task cluster task_name_expr",
	Short: "List hosts whose running task definitions match (or don't match) a glob",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		cfg := appConfig()
		awsCfg, err := cfg.LoadAWSConfig(ctx)
		if err != nil {
			return err
		}

		cluster, expr := args[0], args[1]
		sched := cloud.NewECSScheduler(ecs.NewFromConfig(awsCfg), cluster, logger, cloud.DefaultCircuitBreakerConfig())

		taskIDs, err := sched.ListTasks(ctx)
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}
		tasks, err := sched.DescribeTasks(ctx, taskIDs)
		if err != nil {
			return fmt.Errorf("describe tasks: %w", err)
		}

		matched := 0
		for _, t := range tasks {
			ok, err := filepath.Match(expr, taskDefName(t.TaskDefinition))
			if err != nil {
				return fmt.Errorf("invalid match expression %q: %w", expr, err)
			}
			if checkTaskInvert {
				ok = !ok
			}
			if ok {
				fmt.Printf("%s\t%s\t%s\n", t.HostID, t.ID, t.TaskDefinition)
				matched++
			}
		}
		if matched == 0 {
			fmt.Println("No matching tasks found.")
		}
		return nil
	},
}

// taskDefName reduces a task-definition ARN like
// "arn:aws:ecs:...:task-definition/web:12" to the family name "web" the
// operator's glob is written against. Non-ARN values pass through as-is.
func taskDefName(ref string) string {
	if slash := strings.LastIndexByte(ref, '/'); slash >= 0 {
		ref = ref[slash+1:]
	}
	if colon := strings.LastIndexByte(ref, ':'); colon >= 0 {
		ref = ref[:colon]
	}
	return ref
}

func init() {
	checkTaskCmd.Flags().BoolVarP(&checkTaskInvert, "invert-match", "v", false, "List tasks whose definition name does NOT match the expression")
}
