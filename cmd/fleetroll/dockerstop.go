package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/spf13/cobra"

	"github.com/nimbusops/fleetroll/pkg/cloud"
	"github.com/nimbusops/fleetroll/pkg/inventory"
)

const dockerStopPreflightTimeout = 10 * time.Second

var dockerStopTimeout int

var dockerStopCmd = &cobra.Command{
	Use:   "docker-stop ec2_id",
	Short: "Stop all containers on a host over SSH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		cfg := appConfig()
		awsCfg, err := cfg.LoadAWSConfig(ctx)
		if err != nil {
			return err
		}

		vmID := args[0]
		vm := cloud.NewEC2VM(ec2.NewFromConfig(awsCfg), logger, cloud.DefaultCircuitBreakerConfig())
		infos, err := vm.Describe(ctx, []string{vmID})
		if err != nil {
			return fmt.Errorf("describe %s: %w", vmID, err)
		}
		info, ok := infos[vmID]
		if !ok || info.PrivateIP == "" {
			return fmt.Errorf("no known private IP for %s", vmID)
		}

		remoteExec, err := buildRemoteExec(cfg, map[string]inventory.Host{
			vmID: {VMID: vmID, PrivateIP: info.PrivateIP},
		}, logger)
		if err != nil {
			return err
		}

		ok, err = remoteExec.Run(ctx, vmID, "docker ps -a -q", dockerStopPreflightTimeout)
		if err != nil || !ok {
			return fmt.Errorf("container preflight failed on %s: %w", vmID, err)
		}

		timeout := time.Duration(dockerStopTimeout) * time.Second
		command := fmt.Sprintf("docker stop -t %d $(docker ps -a -q)", dockerStopTimeout)
		ok, err = remoteExec.Run(ctx, vmID, command, timeout)
		if err != nil {
			return fmt.Errorf("stop containers on %s: %w", vmID, err)
		}
		if !ok {
			return fmt.Errorf("docker stop exited non-zero on %s", vmID)
		}
		fmt.Printf("Containers stopped on %s.\n", vmID)
		return nil
	},
}

func init() {
	dockerStopCmd.Flags().IntVarP(&dockerStopTimeout, "timeout", "t", 30, "Seconds to wait for containers to stop before force-killing")
}
