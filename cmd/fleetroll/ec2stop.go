package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/spf13/cobra"

	"github.com/nimbusops/fleetroll/pkg/cloud"
)

var ec2StopCmd = &cobra.Command{
	Use:   "ec2-stop ec2_id...",
	Short: "Stop EC2 instances and wait until each reaches the stopped state",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		cfg := appConfig()
		awsCfg, err := cfg.LoadAWSConfig(ctx)
		if err != nil {
			return err
		}

		vm := cloud.NewEC2VM(ec2.NewFromConfig(awsCfg), logger, cloud.DefaultCircuitBreakerConfig())
		if err := vm.StopAndAwait(ctx, args); err != nil {
			return fmt.Errorf("stop %v: %w", args, err)
		}
		fmt.Printf("Stopped: %v\n", args)
		return nil
	},
}
