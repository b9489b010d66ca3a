package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/spf13/cobra"

	"github.com/nimbusops/fleetroll/pkg/cloud"
)

var ec2TerminateCmd = &cobra.Command{
	Use:   "ec2-terminate ec2_id...",
	Short: "Terminate EC2 instances and wait until each reaches the terminated state",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		cfg := appConfig()
		awsCfg, err := cfg.LoadAWSConfig(ctx)
		if err != nil {
			return err
		}

		vm := cloud.NewEC2VM(ec2.NewFromConfig(awsCfg), logger, cloud.DefaultCircuitBreakerConfig())
		if err := vm.TerminateAndAwait(ctx, args); err != nil {
			return fmt.Errorf("terminate %v: %w", args, err)
		}
		fmt.Printf("Terminated: %v\n", args)
		return nil
	},
}
