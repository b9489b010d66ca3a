package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing"
	"github.com/spf13/cobra"

	"github.com/nimbusops/fleetroll/pkg/cloud"
)

var elbDetachCmd = &cobra.Command{
	Use:   "elb-detach ec2_id [load_balancer_name...]",
	Short: "Deregister an instance from one or more classic load balancers",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		cfg := appConfig()
		awsCfg, err := cfg.LoadAWSConfig(ctx)
		if err != nil {
			return err
		}

		vmID := args[0]
		names := args[1:]

		lb := cloud.NewClassicLB(elasticloadbalancing.NewFromConfig(awsCfg), logger, cloud.DefaultCircuitBreakerConfig())

		if len(names) == 0 {
			names, err = lb.LoadBalancersWithInstance(ctx, vmID)
			if err != nil {
				return fmt.Errorf("find load balancers containing %s: %w", vmID, err)
			}
			if len(names) == 0 {
				fmt.Printf("%s is not registered with any classic load balancer.\n", vmID)
				return nil
			}
		}

		for _, name := range names {
			fmt.Printf("Detaching %s from %s ... ", vmID, name)
			if _, err := lb.Deregister(ctx, name, []string{vmID}); err != nil {
				fmt.Println("failed")
				return fmt.Errorf("deregister %s from %s: %w", vmID, name, err)
			}
			fmt.Println("done")
		}
		return nil
	},
}
