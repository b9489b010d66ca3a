package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/nimbusops/fleetroll/internal/audit"
	"github.com/nimbusops/fleetroll/internal/config"
	"github.com/nimbusops/fleetroll/pkg/cloud"
	"github.com/nimbusops/fleetroll/pkg/engine"
	"github.com/nimbusops/fleetroll/pkg/inventory"
)

// circuitBreakerConfig builds the shared CircuitBreaker configuration every
// Cloud Adapter in one run is constructed with, wiring its state-change and
// per-call hooks to auditLogger. A nil auditLogger yields a plain config
// with no hooks, for the standalone side-tool commands that never build an
// audit Logger.
func circuitBreakerConfig(auditLogger *audit.Logger) cloud.CircuitBreakerConfig {
	cbConfig := cloud.DefaultCircuitBreakerConfig()
	if auditLogger == nil {
		return cbConfig
	}
	cbConfig.OnStateChange = func(adapter string, from, to cloud.CircuitState) {
		ctx := context.Background()
		if to == cloud.StateOpen {
			auditLogger.CircuitBreakerOpened(ctx, adapter)
		} else if to == cloud.StateClosed {
			auditLogger.CircuitBreakerClosed(ctx, adapter)
		}
	}
	cbConfig.OnCall = func(ctx context.Context, adapter, op string, err error) {
		if err != nil {
			auditLogger.CloudCallFailed(ctx, adapter, op, err)
			return
		}
		auditLogger.CloudCallSucceeded(ctx, adapter, op)
	}
	return cbConfig
}

// buildCoreAdapters wires every Cloud Adapter except RemoteExec against
// real AWS clients for one cluster+ASG pair. It never fails — the AWS SDK
// clients it builds are lazy and only touch the network on first call —
// so it is safe to call before the operator has picked any hosts.
func buildCoreAdapters(awsCfg aws.Config, cluster, asgName string, logger *zap.Logger, auditLogger *audit.Logger) engine.Adapters {
	cbConfig := circuitBreakerConfig(auditLogger)
	lbTarget := cloud.NewTargetGroupLB(elasticloadbalancingv2.NewFromConfig(awsCfg), logger, cbConfig)

	return engine.Adapters{
		VM:        cloud.NewEC2VM(ec2.NewFromConfig(awsCfg), logger, cbConfig),
		ASG:       cloud.NewAutoScalingASG(autoscaling.NewFromConfig(awsCfg), asgName, logger, cbConfig),
		Scheduler: cloud.NewECSScheduler(ecs.NewFromConfig(awsCfg), cluster, logger, cbConfig),
		LBClassic: cloud.NewClassicLB(elasticloadbalancing.NewFromConfig(awsCfg), logger, cbConfig),
		LBTarget:  lbTarget,
		TGCache:   cloud.NewTargetGroupCache(lbTarget),
	}
}

func buildRemoteExec(cfg *config.Config, hostsByVMID map[string]inventory.Host, logger *zap.Logger) (cloud.RemoteExec, error) {
	if cfg.SSHKeyPath == "" {
		return nil, fmt.Errorf("--ssh-key is required to stop containers over SSH")
	}
	keyBytes, err := os.ReadFile(cfg.SSHKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read SSH key %s: %w", cfg.SSHKeyPath, err)
	}
	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("parse SSH key %s: %w", cfg.SSHKeyPath, err)
	}

	addressOf := func(vmID string) (string, error) {
		h, ok := hostsByVMID[vmID]
		if !ok || h.PrivateIP == "" {
			return "", fmt.Errorf("no known private IP for VM %s", vmID)
		}
		return h.PrivateIP, nil
	}

	return cloud.NewSSHRemoteExec(addressOf, cfg.SSHUser, signer, logger), nil
}

func hostsByVMID(hosts []inventory.Host) map[string]inventory.Host {
	m := make(map[string]inventory.Host, len(hosts))
	for _, h := range hosts {
		m[h.VMID] = h
	}
	return m
}
