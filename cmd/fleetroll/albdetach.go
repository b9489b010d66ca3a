package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/spf13/cobra"

	"github.com/nimbusops/fleetroll/pkg/cloud"
)

var albDetachCmd = &cobra.Command{
	Use:   "alb-detach ec2_id [target_group_arn...]",
	Short: "Deregister an instance from one or more ALB/NLB target groups",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		cfg := appConfig()
		awsCfg, err := cfg.LoadAWSConfig(ctx)
		if err != nil {
			return err
		}

		vmID := args[0]
		arns := args[1:]

		lbTarget := cloud.NewTargetGroupLB(elasticloadbalancingv2.NewFromConfig(awsCfg), logger, cloud.DefaultCircuitBreakerConfig())

		if len(arns) == 0 {
			cache := cloud.NewTargetGroupCache(lbTarget)
			arns, err = cache.TargetGroupsContaining(ctx, vmID)
			if err != nil {
				return fmt.Errorf("find target groups containing %s: %w", vmID, err)
			}
			if len(arns) == 0 {
				fmt.Printf("%s is not registered with any target group.\n", vmID)
				return nil
			}
		}

		for _, arn := range arns {
			fmt.Printf("Detaching %s from %s ... ", vmID, arn)
			if err := lbTarget.DeregisterTargets(ctx, arn, []string{vmID}); err != nil {
				fmt.Println("failed")
				return fmt.Errorf("deregister %s from %s: %w", vmID, arn, err)
			}
			fmt.Println("done")
		}
		return nil
	},
}
